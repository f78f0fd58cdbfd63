package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/epeers/netnet/internal/util"
)

// Config holds application configuration loaded from environment variables.
// It is built once by Load and passed to every component.
type Config struct {
	APIURL   string
	Email    string
	Password string
	IDToken  string

	DataDir     string
	OutputDir   string
	TickersFile string

	AnalysisDates []time.Time

	ConcurrencyLimit  int
	BatchSize         int
	FSLookbehindDays  int
	STLookbehindDays  int
	PriceLookbackDays int
	NetNetThreshold   float64
	CollectPrices     bool

	RequestsPerSecond float64
	RetryMaxAttempts  int
	RetryMinWait      time.Duration
	RetryMaxWait      time.Duration
	HTTPTimeout       time.Duration
	PerfLogInterval   time.Duration

	PGURL      string
	Port       string
	AdminToken string
	LogLevel   string
}

// Load reads configuration from environment variables, after merging in a
// .env file from the working directory when one exists. Variables already set
// in the environment win over the file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		APIURL:      envOr("JQUANTS_API_URL", "https://api.jquants.com"),
		Email:       os.Getenv("JQUANTS_EMAIL"),
		Password:    os.Getenv("JQUANTS_PASSWORD"),
		IDToken:     os.Getenv("JQUANTS_ID_TOKEN"),
		DataDir:     envOr("DATA_DIR", "data"),
		OutputDir:   envOr("OUTPUT_DIR", "jquant_logs"),
		TickersFile: os.Getenv("TICKERS_FILE"),
		PGURL:       os.Getenv("PG_URL"),
		Port:        envOr("PORT", "8080"),
		AdminToken:  os.Getenv("ADMIN_TOKEN"),
		LogLevel:    envOr("LOG_LEVEL", "info"),
	}

	if !strings.HasPrefix(cfg.APIURL, "http://") && !strings.HasPrefix(cfg.APIURL, "https://") {
		cfg.APIURL = "https://" + cfg.APIURL
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")

	if cfg.IDToken == "" && (cfg.Email == "" || cfg.Password == "") {
		return nil, fmt.Errorf("JQUANTS_EMAIL and JQUANTS_PASSWORD environment variables are required when JQUANTS_ID_TOKEN is not set")
	}

	var err error
	if cfg.AnalysisDates, err = analysisDates(); err != nil {
		return nil, err
	}

	ints := []struct {
		name string
		dst  *int
		def  int
	}{
		{"CONCURRENCY_LIMIT", &cfg.ConcurrencyLimit, 5},
		{"BATCH_SIZE", &cfg.BatchSize, 20},
		{"FS_LOOKBEHIND_DAYS", &cfg.FSLookbehindDays, 365},
		{"ST_LOOKBEHIND_DAYS", &cfg.STLookbehindDays, 365},
		{"PRICE_LOOKBACK_DAYS", &cfg.PriceLookbackDays, 14},
		{"RETRY_MAX_ATTEMPTS", &cfg.RetryMaxAttempts, 6},
	}
	for _, v := range ints {
		if *v.dst, err = envInt(v.name, v.def); err != nil {
			return nil, err
		}
	}

	durations := []struct {
		name string
		dst  *time.Duration
		def  time.Duration
	}{
		{"RETRY_MIN_WAIT", &cfg.RetryMinWait, 5 * time.Second},
		{"RETRY_MAX_WAIT", &cfg.RetryMaxWait, 60 * time.Second},
		{"HTTP_TIMEOUT", &cfg.HTTPTimeout, 30 * time.Second},
		{"PERF_LOG_INTERVAL", &cfg.PerfLogInterval, 60 * time.Second},
	}
	for _, v := range durations {
		if *v.dst, err = envDuration(v.name, v.def); err != nil {
			return nil, err
		}
	}

	if cfg.NetNetThreshold, err = envFloat("NETNET_THRESHOLD", 0.8); err != nil {
		return nil, err
	}
	if cfg.RequestsPerSecond, err = envFloat("REQUESTS_PER_SECOND", 0); err != nil {
		return nil, err
	}
	if cfg.CollectPrices, err = envBool("COLLECT_PRICES", true); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.ConcurrencyLimit < 1 || c.ConcurrencyLimit > 50 {
		return fmt.Errorf("CONCURRENCY_LIMIT must be between 1 and 50, got %d", c.ConcurrencyLimit)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("BATCH_SIZE must be positive, got %d", c.BatchSize)
	}
	if c.NetNetThreshold <= 0 || c.NetNetThreshold > 1.5 {
		return fmt.Errorf("NETNET_THRESHOLD must be in (0, 1.5], got %g", c.NetNetThreshold)
	}
	if c.PriceLookbackDays < 0 {
		return fmt.Errorf("PRICE_LOOKBACK_DAYS must not be negative, got %d", c.PriceLookbackDays)
	}
	if c.RetryMaxAttempts < 1 {
		return fmt.Errorf("RETRY_MAX_ATTEMPTS must be at least 1, got %d", c.RetryMaxAttempts)
	}
	if c.RetryMinWait > c.RetryMaxWait {
		return fmt.Errorf("RETRY_MIN_WAIT (%s) must not exceed RETRY_MAX_WAIT (%s)", c.RetryMinWait, c.RetryMaxWait)
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("REQUESTS_PER_SECOND must not be negative, got %g", c.RequestsPerSecond)
	}
	return nil
}

// analysisDates reads ANALYSIS_DATES, or expands ANALYSIS_DATE_RANGE to weekly Wednesdays.
func analysisDates() ([]time.Time, error) {
	if list := os.Getenv("ANALYSIS_DATES"); list != "" {
		dates, err := util.ParseDateList(list)
		if err != nil {
			return nil, fmt.Errorf("ANALYSIS_DATES: %w", err)
		}
		return dates, nil
	}
	if rng := os.Getenv("ANALYSIS_DATE_RANGE"); rng != "" {
		dates, err := util.ParseDateRange(rng, time.Wednesday)
		if err != nil {
			return nil, fmt.Errorf("ANALYSIS_DATE_RANGE: %w", err)
		}
		return dates, nil
	}
	return nil, nil
}

func envOr(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

func envInt(name string, def int) (int, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", name, err)
	}
	return n, nil
}

func envFloat(name string, def float64) (float64, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number: %w", name, err)
	}
	return f, nil
}

func envBool(name string, def bool) (bool, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean: %w", name, err)
	}
	return b, nil
}

func envDuration(name string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration: %w", name, err)
	}
	return d, nil
}
