package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

type Config struct {
	AppName         string        `env:"APP_NAME,default=My App"`
	AppEnv          string        `env:"APP_ENV,default=development"`
	HTTPAddr        string        `env:"HTTP_ADDR,default=:3000"`
	DBPath          string        `env:"DB_PATH,default=./data/messenger.db"`
	SeedUsersPath   string        `env:"SEED_USERS_PATH,default=./data/users.json"`
	StaticDir       string        `env:"STATIC_DIR,default=./web"`
	SecretKey       string        `env:"SECRET_KEY,default=default_secret_key"`
	TokenTTL        time.Duration `env:"TOKEN_TTL,default=1h"`
	TCPFeedAddr     string        `env:"TCP_FEED_ADDR,default=:9090"`
	UDPNotifyAddr   string        `env:"UDP_NOTIFY_ADDR,default=:7070"`
	GRPCAddr        string        `env:"GRPC_ADDR,default=:50051"`
	LogLevel        string        `env:"LOG_LEVEL,default=INFO"`
	WSSendBuffer    int           `env:"WS_SEND_BUFFER,default=256"`
	WSMaxMessage    int64         `env:"WS_MAX_MESSAGE_SIZE,default=4096"`
	FeedBuffer      int           `env:"FEED_BUFFER,default=100"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=5s"`
	HealthInterval  time.Duration `env:"HEALTH_INTERVAL,default=10s"`
	// Comma-separated user ids allowed to call /admin/notify.
	AdminUserIDs string `env:"ADMIN_USER_IDS"`
}

// Load reads an optional .env file and then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.SecretKey == "" {
		return fmt.Errorf("SECRET_KEY must not be empty")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive, got %s", c.TokenTTL)
	}
	if c.WSSendBuffer <= 0 || c.FeedBuffer <= 0 {
		return fmt.Errorf("WS_SEND_BUFFER and FEED_BUFFER must be positive")
	}
	if _, err := c.AdminIDs(); err != nil {
		return err
	}
	return nil
}

// AdminIDs parses AdminUserIDs. An empty list disables /admin/notify.
func (c Config) AdminIDs() ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(c.AdminUserIDs, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("ADMIN_USER_IDS: invalid user id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Production reports whether cookies should be marked Secure.
func (c Config) Production() bool {
	return c.AppEnv == "production"
}
