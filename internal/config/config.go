package config

import (
	"log"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Service struct {
		Port     string `env:"SERVICE_PORT" env-default:"8080"`
		LogLevel string `env:"LOG_LEVEL" env-default:"info"`
	}
	Redis struct {
		URL string `env:"REDIS_URL" env-default:"redis://localhost:6379"`
	}
	Postgres struct {
		Host     string `env:"POSTGRES_HOST" env-default:"localhost"`
		Port     string `env:"POSTGRES_PORT" env-default:"5432"`
		User     string `env:"POSTGRES_USER" env-default:"orderstream"`
		Password string `env:"POSTGRES_PASSWORD" env-default:""`
		Database string `env:"POSTGRES_DB" env-default:"orderstream"`
	}
	JWT struct {
		Secret string        `env:"JWT_SECRET" env-required:"true"`
		TTL    time.Duration `env:"JWT_TTL" env-default:"24h"`
	}
}

func MustLoad() *Config {
	cfg := &Config{}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		log.Fatalf("failed to read config: %v", err)
	}
	return cfg
}
