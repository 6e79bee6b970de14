package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App struct {
		HTTPPort     string
		GRPCPort     string
		CookieSecure bool
	}
	Log struct {
		Level  string
		Format string
	}
	MySQL struct {
		DSN string
	}
	Redis struct {
		Addr     string
		Password string
		DB       int
	}
	Orders struct {
		Workers   int
		QueueSize int
	}
	Auth struct {
		URL         string
		APIKey      string
		RedirectURL string
	}
	Assistant struct {
		// URL empty means the built-in keyword assistant answers.
		URL    string
		APIKey string
	}
	Pricing struct {
		DeliveryFeeCents int64
		TaxBasisPoints   int64
	}
	Workspace struct {
		TTL               time.Duration
		MessageRetryDelay time.Duration
		OrderStepInterval time.Duration
	}
}

// Load reads path as a .env file when it exists, then the environment.
func Load(path string) (*Config, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load .env: %w", err)
		}
	}

	var errs []error
	cfg := &Config{}

	cfg.App.HTTPPort = getEnv("HTTP_PORT", "8080")
	cfg.App.GRPCPort = getEnv("GRPC_PORT", "50051")
	cfg.App.CookieSecure = getBool("COOKIE_SECURE", false, &errs)

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "console")

	cfg.MySQL.DSN = getEnv("MYSQL_DSN", "root:root@tcp(localhost:3306)/foodflow?parseTime=true")

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = os.Getenv("REDIS_PASSWORD")
	cfg.Redis.DB = getInt("REDIS_DB", 0, &errs)

	cfg.Orders.Workers = getInt("WORKER_COUNT", 10, &errs)
	cfg.Orders.QueueSize = getInt("QUEUE_SIZE", 10000, &errs)

	cfg.Auth.URL = os.Getenv("AUTH_URL")
	if cfg.Auth.URL == "" {
		errs = append(errs, errors.New("AUTH_URL is required"))
	}
	cfg.Auth.APIKey = os.Getenv("AUTH_API_KEY")
	cfg.Auth.RedirectURL = os.Getenv("AUTH_REDIRECT_URL")

	cfg.Assistant.URL = os.Getenv("ASSISTANT_URL")
	cfg.Assistant.APIKey = os.Getenv("ASSISTANT_API_KEY")

	cfg.Pricing.DeliveryFeeCents = int64(getInt("DELIVERY_FEE_CENTS", 299, &errs))
	cfg.Pricing.TaxBasisPoints = int64(getInt("TAX_BASIS_POINTS", 0, &errs))

	cfg.Workspace.TTL = getDuration("WORKSPACE_TTL", 30*time.Minute, &errs)
	cfg.Workspace.MessageRetryDelay = getDuration("MESSAGE_RETRY_DELAY", 3*time.Second, &errs)
	cfg.Workspace.OrderStepInterval = getDuration("ORDER_STEP_INTERVAL", 10*time.Second, &errs)

	if cfg.Orders.Workers <= 0 {
		errs = append(errs, errors.New("WORKER_COUNT must be positive"))
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int, errs *[]error) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return n
}

func getBool(key string, fallback bool, errs *[]error) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return b
}

func getDuration(key string, fallback time.Duration, errs *[]error) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return d
}
