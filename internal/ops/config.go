package ops

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/yanun0323/logs"

	"main/internal/model"
)

// Config is the resolved runtime configuration shared by the server and
// worker binaries.
type Config struct {
	HTTPAddr string

	PostgresDSN string

	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string

	Workers       int
	QueueCapacity int
	MaxAttempts   int
	RetryBase     time.Duration

	Venues             []model.Venue
	SlippageTolerance  float64
	BuildDelay         time.Duration
	EnableProfiler     bool
	PyroscopeServerURL string
}

// Load reads the optional .env file, then resolves the configuration
// from environment variables with defaults.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		logs.Infof("no .env file loaded: %v", err)
	}

	cfg := Config{
		HTTPAddr:           envString("HTTP_ADDR", ":8080"),
		PostgresDSN:        envString("POSTGRES_DSN", ""),
		KafkaTopic:         envString("KAFKA_TOPIC", "order-status"),
		KafkaGroupID:       envString("KAFKA_GROUP_ID", "order-gateway"),
		Workers:            envInt("WORKER_COUNT", 10),
		QueueCapacity:      envInt("QUEUE_CAPACITY", 256),
		MaxAttempts:        envInt("MAX_ATTEMPTS", 3),
		RetryBase:          envDuration("RETRY_BASE_DELAY", time.Second),
		SlippageTolerance:  envFloat("SLIPPAGE_TOLERANCE", 0.01),
		BuildDelay:         envDuration("BUILD_DELAY", 500*time.Millisecond),
		EnableProfiler:     envBool("ENABLE_PROFILER", false),
		PyroscopeServerURL: envString("PYROSCOPE_SERVER_URL", "http://localhost:4040"),
	}

	if brokers := envString("KAFKA_BROKERS", ""); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}

	venues, err := resolveVenues(envString("VENUES", "raydium,meteora"))
	if err != nil {
		return Config{}, err
	}
	cfg.Venues = venues

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Workers <= 0 {
		return fmt.Errorf("worker count must be > 0, got %d", c.Workers)
	}
	if c.QueueCapacity <= 0 {
		return fmt.Errorf("queue capacity must be > 0, got %d", c.QueueCapacity)
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("max attempts must be > 0, got %d", c.MaxAttempts)
	}
	if c.SlippageTolerance <= 0 || c.SlippageTolerance >= 1 {
		return fmt.Errorf("slippage tolerance must be in (0, 1), got %v", c.SlippageTolerance)
	}
	if len(c.Venues) == 0 {
		return fmt.Errorf("at least one venue is required")
	}
	return nil
}

func resolveVenues(raw string) ([]model.Venue, error) {
	var venues []model.Venue
	for _, name := range strings.Split(raw, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		v := model.Venue(name)
		switch v {
		case model.VenueRaydium, model.VenueMeteora:
			venues = append(venues, v)
		default:
			return nil, fmt.Errorf("unknown venue: %s", name)
		}
	}
	return venues, nil
}

func envString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		logs.Warnf("invalid %s=%q, using %d", key, v, fallback)
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
		logs.Warnf("invalid %s=%q, using %v", key, v, fallback)
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
		logs.Warnf("invalid %s=%q, using %v", key, v, fallback)
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		logs.Warnf("invalid %s=%q, using %v", key, v, fallback)
	}
	return fallback
}
