package server

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config holds the server's runtime settings, read from the
// environment. RIGGEN_STORE selects the layout backend the same way
// the CLI does: "memory", "mongo", or a directory path, with an unset
// value falling back to StoreDir. Builds are cached in Redis when
// RIGGEN_REDIS_ADDR is set; otherwise every request builds fresh.
type Config struct {
	Addr string `env:"RIGGEN_ADDR" envDefault:":8080"`

	Store    string `env:"RIGGEN_STORE"`
	StoreDir string `env:"RIGGEN_STORE_DIR" envDefault:"layouts"`

	RedisAddr     string `env:"RIGGEN_REDIS_ADDR"`
	RedisPassword string `env:"RIGGEN_REDIS_PASSWORD"`
	RedisDB       int    `env:"RIGGEN_REDIS_DB" envDefault:"0"`

	MongoURI string `env:"RIGGEN_MONGO_URI"`
	MongoDB  string `env:"RIGGEN_MONGO_DB"`
}

// LoadConfig reads the server configuration from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse server config: %w", err)
	}
	return cfg, nil
}
