package auth

import (
	"strings"

	"github.com/jrsteele09/go-identity-server/connections"
	"github.com/jrsteele09/go-identity-server/users"
)

// IdentifierConnection picks the connection an identifier logs in with.
// Precedence:
//  1. an explicitly requested connection, which must be enabled;
//  2. a phone number uses the first SMS connection;
//  3. an email address uses the first password connection, else the first
//     email-code connection;
//  4. anything else is a username and uses the first password connection.
func IdentifierConnection(enabled []connections.Connection, connectionID, identifier string) (connections.Connection, error) {
	if connectionID != "" {
		for _, c := range enabled {
			if c.ID == connectionID {
				return c, nil
			}
		}
		return connections.Connection{}, ErrConnectionNotEnabled
	}

	switch {
	case isPhoneNumber(identifier):
		if c, ok := firstOf(enabled, connections.SMSCodeStrategy{}); ok {
			return c, nil
		}
	case strings.Contains(identifier, "@"):
		if c, ok := firstOf(enabled, connections.PasswordStrategy{}); ok {
			return c, nil
		}
		if c, ok := firstOf(enabled, connections.EmailCodeStrategy{}); ok {
			return c, nil
		}
	default:
		if c, ok := firstOf(enabled, connections.PasswordStrategy{}); ok {
			return c, nil
		}
	}
	return connections.Connection{}, ErrNoConnection
}

func firstOf(enabled []connections.Connection, strategy connections.Strategy) (connections.Connection, bool) {
	for _, c := range enabled {
		if c.Strategy() == strategy {
			return c, true
		}
	}
	return connections.Connection{}, false
}

// NormaliseIdentifier lower-cases email addresses and strips phone number
// punctuation.
func NormaliseIdentifier(identifier string) string {
	identifier = strings.TrimSpace(identifier)
	if strings.Contains(identifier, "@") {
		return users.NormaliseEmail(identifier)
	}
	if isPhoneNumber(identifier) {
		return strings.Map(func(r rune) rune {
			if r == '+' || (r >= '0' && r <= '9') {
				return r
			}
			return -1
		}, identifier)
	}
	return identifier
}

func isPhoneNumber(identifier string) bool {
	digits := 0
	for i, r := range identifier {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '+' && i == 0:
		case r == ' ' || r == '-' || r == '(' || r == ')':
		default:
			return false
		}
	}
	return digits >= 7
}
