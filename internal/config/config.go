package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Server holds runtime configuration for cmd/server.
type Server struct {
	AppEnv         string        `envconfig:"APP_ENV" default:"development"`
	Port           string        `envconfig:"PORT" default:"3000"`
	AllowedOrigin  string        `envconfig:"ALLOWED_ORIGIN" default:"http://127.0.0.1:8081"`
	DatabaseURL    string        `envconfig:"DATABASE_URL"`
	AuthSecret     string        `envconfig:"AUTH_SECRET"`
	AccessTokenTTL time.Duration `envconfig:"ACCESS_TOKEN_TTL" default:"8h"`
	LoginPerMinute int           `envconfig:"LOGIN_RATE_PER_MINUTE" default:"5"`
	LogFormat      string        `envconfig:"LOG_FORMAT" default:"text"`
}

// Client holds runtime configuration for cmd/marketctl.
type Client struct {
	APIURL        string        `envconfig:"MARKETBAZA_API_URL" default:"http://127.0.0.1:3000/api"`
	Timeout       time.Duration `envconfig:"MARKETBAZA_TIMEOUT" default:"15s"`
	Retries       int           `envconfig:"MARKETBAZA_RETRIES" default:"2"`
	SessionFile   string        `envconfig:"MARKETBAZA_SESSION_FILE"`
	RedisAddr     string        `envconfig:"REDIS_ADDR"`
	RedisPassword string        `envconfig:"REDIS_PASSWORD"`
	RedisDB       int           `envconfig:"REDIS_DB" default:"0"`
	LogFormat     string        `envconfig:"LOG_FORMAT" default:"text"`
}

// LoadServer reads an optional .env file and then the process environment.
// Values already present in the environment win over the file.
func LoadServer() (Server, error) {
	if err := loadDotEnv(); err != nil {
		return Server{}, err
	}
	var cfg Server
	if err := envconfig.Process("", &cfg); err != nil {
		return Server{}, err
	}
	cfg.AuthSecret = strings.TrimSpace(cfg.AuthSecret)
	return cfg, nil
}

func LoadClient() (Client, error) {
	if err := loadDotEnv(); err != nil {
		return Client{}, err
	}
	var cfg Client
	if err := envconfig.Process("", &cfg); err != nil {
		return Client{}, err
	}
	cfg.APIURL = strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/")
	if cfg.APIURL == "" {
		return Client{}, errors.New("MARKETBAZA_API_URL must not be empty")
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	return cfg, nil
}

func (c Server) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Server) IsProduction() bool {
	return c.AppEnv == "production"
}

// NewLogger returns a JSON logger when format is "json" and a text logger
// otherwise.
func NewLogger(format string, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, nil))
	}
	return slog.New(slog.NewTextHandler(w, nil))
}

func loadDotEnv() error {
	path := os.Getenv("MARKETBAZA_ENV_FILE")
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}
