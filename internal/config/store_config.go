package config

import "time"

// StoreConfig selects the durable backends. Empty values fall back to the
// in-memory stores.
type StoreConfig interface {
	GetRedisAddr() string
	GetRedisPassword() string
	GetRedisDB() int
	GetRedisKeyPrefix() string
	GetSQLitePath() string
	GetSweepInterval() time.Duration
}

type Stores struct {
	RedisAddr      string        `env:"REDIS_ADDR"`
	RedisPassword  string        `env:"REDIS_PASSWORD"`
	RedisDB        int           `env:"REDIS_DB" envDefault:"0"`
	RedisKeyPrefix string        `env:"REDIS_KEY_PREFIX" envDefault:"idp"`
	SQLitePath     string        `env:"SQLITE_PATH"`
	SweepInterval  time.Duration `env:"SWEEP_INTERVAL" envDefault:"1m"`
}

var _ StoreConfig = Stores{}

func (s Stores) GetRedisAddr() string {
	return s.RedisAddr
}

func (s Stores) GetRedisPassword() string {
	return s.RedisPassword
}

func (s Stores) GetRedisDB() int {
	return s.RedisDB
}

func (s Stores) GetRedisKeyPrefix() string {
	return s.RedisKeyPrefix
}

func (s Stores) GetSQLitePath() string {
	return s.SQLitePath
}

func (s Stores) GetSweepInterval() time.Duration {
	return s.SweepInterval
}
