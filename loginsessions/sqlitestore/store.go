// Package sqlitestore persists login sessions in SQLite. Timestamps are
// stored as integer unix milliseconds and every row is keyed by
// (tenant_id, id).
package sqlitestore

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"path/filepath"
	"strings"
	"time"

	apperrors "github.com/jrsteele09/go-identity-server/internal/errors"
	"github.com/jrsteele09/go-identity-server/loginsessions"
	"github.com/pkg/errors"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

//go:embed schema.sql
var schema string

var _ loginsessions.Repo = (*Store)(nil)

const selectColumns = `tenant_id, id, auth_params, state, state_data, failure_reason,
	csrf_token, session_id, user_id, version, created_at, updated_at, expires_at`

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("[sqlitestore.Open] path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "[sqlitestore.Open] sql.Open")
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "[sqlitestore.Open] Ping")
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "[sqlitestore.Open] apply schema")
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Create(ctx context.Context, ls *loginsessions.LoginSession) error {
	authParams, stateData, err := encode(ls)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO login_sessions (`+selectColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ls.TenantID, ls.ID, authParams, string(ls.State), stateData, ls.FailureReason,
		ls.CSRFToken, ls.SessionID, ls.UserID, ls.Version,
		toMillis(ls.CreatedAt), toMillis(ls.UpdatedAt), toMillis(ls.ExpiresAt))
	if isConstraintError(err) {
		return loginsessions.ErrConflict
	}
	return errors.Wrap(err, "[sqlitestore.Create]")
}

func (s *Store) Get(ctx context.Context, tenantID, id string) (*loginsessions.LoginSession, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM login_sessions WHERE tenant_id = ? AND id = ?`, tenantID, id)
	ls, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, loginsessions.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "[sqlitestore.Get]")
	}
	return ls, nil
}

func (s *Store) Update(ctx context.Context, ls *loginsessions.LoginSession) error {
	authParams, stateData, err := encode(ls)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
UPDATE login_sessions
SET auth_params = ?, state = ?, state_data = ?, failure_reason = ?, csrf_token = ?,
    session_id = ?, user_id = ?, version = version + 1, updated_at = ?, expires_at = ?
WHERE tenant_id = ? AND id = ? AND version = ? AND state = ?`,
		authParams, string(ls.State), stateData, ls.FailureReason, ls.CSRFToken,
		ls.SessionID, ls.UserID, toMillis(ls.UpdatedAt), toMillis(ls.ExpiresAt),
		ls.TenantID, ls.ID, ls.Version, string(loginsessions.StatePending))
	if err != nil {
		return errors.Wrap(err, "[sqlitestore.Update]")
	}
	if err := s.checkAffected(ctx, res, ls.TenantID, ls.ID, loginsessions.ErrConflict); err != nil {
		return err
	}
	ls.Version++
	return nil
}

func (s *Store) AttachSession(ctx context.Context, tenantID, id, sessionID string) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE login_sessions SET session_id = ?, version = version + 1
WHERE tenant_id = ? AND id = ? AND state = ?`,
		sessionID, tenantID, id, string(loginsessions.StateCompleted))
	if err != nil {
		return errors.Wrap(err, "[sqlitestore.AttachSession]")
	}
	return s.checkAffected(ctx, res, tenantID, id, loginsessions.ErrTerminal)
}

func (s *Store) ExpirePending(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
UPDATE login_sessions SET state = ?, updated_at = ?, version = version + 1
WHERE state = ? AND expires_at <= ?`,
		string(loginsessions.StateExpired), toMillis(now), string(loginsessions.StatePending), toMillis(now))
	if err != nil {
		return 0, errors.Wrap(err, "[sqlitestore.ExpirePending]")
	}
	n, err := res.RowsAffected()
	return int(n), errors.Wrap(err, "[sqlitestore.ExpirePending] RowsAffected")
}

func (s *Store) Delete(ctx context.Context, tenantID, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM login_sessions WHERE tenant_id = ? AND id = ?`, tenantID, id)
	return errors.Wrap(err, "[sqlitestore.Delete]")
}

// checkAffected turns a zero-row conditional update into NotFound or the
// supplied state error.
func (s *Store) checkAffected(ctx context.Context, res sql.Result, tenantID, id string, stateErr error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "[sqlitestore] RowsAffected")
	}
	if n > 0 {
		return nil
	}
	var exists int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM login_sessions WHERE tenant_id = ? AND id = ?`, tenantID, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return loginsessions.ErrNotFound
	}
	if err != nil {
		return errors.Wrap(err, "[sqlitestore] exists")
	}
	return stateErr
}

func encode(ls *loginsessions.LoginSession) (string, string, error) {
	authParams, err := json.Marshal(ls.AuthParams)
	if err != nil {
		return "", "", apperrors.WithKind(apperrors.KindInvalid, err, "encode auth params")
	}
	stateData, err := json.Marshal(ls.StateData)
	if err != nil {
		return "", "", apperrors.WithKind(apperrors.KindInvalid, err, "encode state data")
	}
	return string(authParams), string(stateData), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(row scanner) (*loginsessions.LoginSession, error) {
	var (
		ls                              loginsessions.LoginSession
		state, authParams, stateData    string
		createdAt, updatedAt, expiresAt int64
	)
	if err := row.Scan(&ls.TenantID, &ls.ID, &authParams, &state, &stateData, &ls.FailureReason,
		&ls.CSRFToken, &ls.SessionID, &ls.UserID, &ls.Version, &createdAt, &updatedAt, &expiresAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(authParams), &ls.AuthParams); err != nil {
		return nil, errors.Wrap(err, "decode auth params")
	}
	if err := json.Unmarshal([]byte(stateData), &ls.StateData); err != nil {
		return nil, errors.Wrap(err, "decode state data")
	}
	ls.State = loginsessions.State(state)
	ls.CreatedAt = fromMillis(createdAt)
	ls.UpdatedAt = fromMillis(updatedAt)
	ls.ExpiresAt = fromMillis(expiresAt)
	return &ls, nil
}

func isConstraintError(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
		return true
	}
	return false
}
