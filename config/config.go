package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/Domenick1991/airline-backoffice/internal/circuitbreaker"
)

type Config struct {
	HTTP        HTTPConfig               `yaml:"http"`
	GRPC        GRPCConfig               `yaml:"grpc"`
	Database    DatabaseConfig           `yaml:"database"`
	Redis       RedisConfig              `yaml:"redis"`
	Kafka       KafkaConfig              `yaml:"kafka"`
	Log         LogConfig                `yaml:"log"`
	Auth        AuthConfig               `yaml:"auth"`
	Breakers    BreakersConfig           `yaml:"breakers"`
	Services    map[string]ServiceConfig `yaml:"services" validate:"dive"`
	Reservation ReservationConfig        `yaml:"reservation"`
	Worker      WorkerConfig             `yaml:"worker"`
}

type HTTPConfig struct {
	Address         string        `yaml:"address" validate:"required"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type GRPCConfig struct {
	Address string `yaml:"address" validate:"required"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int32  `yaml:"max_conns" validate:"gte=0"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s", d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers            []string `yaml:"brokers"`
	ReservationTopic   string   `yaml:"reservation_topic"`
	NotificationsTopic string   `yaml:"notifications_topic"`
	GroupID            string   `yaml:"group_id"`
}

// Enabled reports whether reservation events should be published at all.
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0 && k.ReservationTopic != ""
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

type AuthConfig struct {
	JWTSecret   string `yaml:"jwt_secret"`
	DefaultDeny bool   `yaml:"default_deny"`
}

type BreakersConfig struct {
	Database circuitbreaker.Config `yaml:"database"`
	HTTP     circuitbreaker.Config `yaml:"http"`
}

type ServiceConfig struct {
	URL     string        `yaml:"url" validate:"required,url"`
	Timeout time.Duration `yaml:"timeout" validate:"gt=0"`
}

const (
	LockModeLocal = "local"
	LockModeRedis = "redis"
)

type ReservationConfig struct {
	LockMode     string        `yaml:"lock_mode" validate:"oneof=local redis"`
	LockTTL      time.Duration `yaml:"lock_ttl" validate:"gt=0"`
	SeatAttempts int           `yaml:"seat_attempts" validate:"min=1,max=10"`
}

type WorkerConfig struct {
	Concurrency int `yaml:"concurrency" validate:"min=1"`
}

const defaultServiceTimeout = 5 * time.Second

var validate = validator.New()

// LoadConfig reads the YAML file at path, applies environment overrides and
// defaults, and validates the result. A .env file in the working directory is
// loaded first when present; variables already set in the environment win.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	return Parse(data)
}

// Parse builds a Config from YAML bytes and the current environment.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("DATABASE_PASSWORD"); v != "" {
		c.Database.Password = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("AUTH_DEFAULT_DENY"); v != "" {
		deny, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid AUTH_DEFAULT_DENY %q: %w", v, err)
		}
		c.Auth.DefaultDeny = deny
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.HTTP.ShutdownTimeout == 0 {
		c.HTTP.ShutdownTimeout = 10 * time.Second
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Breakers.Database == (circuitbreaker.Config{}) {
		c.Breakers.Database = circuitbreaker.DatabaseConfig()
	}
	if c.Breakers.HTTP == (circuitbreaker.Config{}) {
		c.Breakers.HTTP = circuitbreaker.HTTPConfig()
	}
	for name, svc := range c.Services {
		if svc.Timeout == 0 {
			svc.Timeout = defaultServiceTimeout
			c.Services[name] = svc
		}
	}
	if c.Reservation.LockMode == "" {
		c.Reservation.LockMode = LockModeLocal
	}
	if c.Reservation.LockTTL == 0 {
		c.Reservation.LockTTL = 10 * time.Second
	}
	if c.Reservation.SeatAttempts == 0 {
		c.Reservation.SeatAttempts = 3
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "notification-worker"
	}
	if c.Worker.Concurrency == 0 {
		c.Worker.Concurrency = 1
	}
}

// Validate checks struct tags and the cross-field rule that every outbound
// call times out before the HTTP breaker would consider recovery.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	for name, svc := range c.Services {
		if svc.Timeout >= c.Breakers.HTTP.RecoveryTimeout {
			return fmt.Errorf("invalid config: services.%s.timeout %s must be shorter than breakers.http.recovery_timeout %s",
				name, svc.Timeout, c.Breakers.HTTP.RecoveryTimeout)
		}
	}
	if c.Reservation.LockMode == LockModeRedis && c.Redis.Addr == "" {
		return errors.New("invalid config: reservation.lock_mode redis requires redis.addr")
	}
	return nil
}

// Service returns the named downstream, or false when it is not configured.
func (c *Config) Service(name string) (ServiceConfig, bool) {
	svc, ok := c.Services[name]
	return svc, ok
}
