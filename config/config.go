package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrKeywordsNotFound is returned when the keyword file does not exist.
var ErrKeywordsNotFound = errors.New("keywords file not found")

// Exhausted-retry policies for links that fail every classification attempt.
const (
	PolicySkip        = "skip"
	PolicyLeak        = "leak"
	PolicyUnavailable = "unavailable"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	BaseURL   string
	OutputDir string

	LinksFileName     string
	OutputFile        string
	ProcessedFileName string
	LeakedFileName    string
	DebugFileName     string
	ExportFileName    string

	KeywordsFile string
	Keywords     []string

	Headless          bool
	ChromeBin         string
	NavigationTimeout time.Duration
	DetailTimeout     time.Duration

	Concurrency       int
	EnrichConcurrency int
	MaxRetries        int
	RetryDelay        time.Duration
	RateLimitMs       int
	MaxPages          int
	PageRetries       int
	ExhaustedPolicy   string
	Incremental       bool

	ExchangeRate float64
	OllamaURL    string
	OllamaModel  string
	LLMTimeout   time.Duration

	StoreBackend     string
	SQLitePath       string
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	LogLevel string
}

// Load reads the .env file (or the given files) and returns a populated Config struct.
func Load(envFiles ...string) *Config {
	if err := godotenv.Load(envFiles...); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	cfg := &Config{
		BaseURL:   getEnv("BASE_URL", "https://www.olx.uz/nedvizhimost/kvartiry/tashkent/?currency=UYE"),
		OutputDir: getEnv("OUTPUT_DIR", "./output"),

		LinksFileName:     getEnv("LINKS_FILE", "links.json"),
		OutputFile:        getEnv("FILTER_OUTPUT_FILE", "filtered.json"),
		ProcessedFileName: getEnv("PROCESSED_FILE", "processed_data.json"),
		LeakedFileName:    getEnv("LEAKED_FILE", "processed_data_leaked.json"),
		DebugFileName:     getEnv("DEBUG_FILE", "debug_processed_data.json"),
		ExportFileName:    getEnv("EXPORT_FILE", "processed_data.csv"),

		KeywordsFile: getEnv("KEYWORDS_FILE", "keywords.yaml"),
		Keywords:     splitList(getEnv("KEYWORDS", "")),

		Headless:          getEnvBool("HEADLESS", true),
		ChromeBin:         getEnv("CHROME_BIN", ""),
		NavigationTimeout: getEnvDuration("NAVIGATION_TIMEOUT", 60*time.Second),
		DetailTimeout:     getEnvDuration("DETAIL_TIMEOUT", 90*time.Second),

		Concurrency:       getEnvInt("CONCURRENCY", 2),
		EnrichConcurrency: getEnvInt("ENRICH_CONCURRENCY", 1),
		MaxRetries:        getEnvInt("MAX_RETRIES", 3),
		RetryDelay:        getEnvDuration("RETRY_DELAY", 2*time.Second),
		RateLimitMs:       getEnvInt("RATE_LIMIT_MS", 0),
		MaxPages:          getEnvInt("MAX_PAGES", 25),
		PageRetries:       getEnvInt("PAGE_RETRIES", 5),
		ExhaustedPolicy:   strings.ToLower(getEnv("EXHAUSTED_POLICY", PolicySkip)),
		Incremental:       getEnvBool("INCREMENTAL", true),

		ExchangeRate: getEnvFloat("EXCHANGE_RATE", 12900),
		OllamaURL:    getEnv("OLLAMA_URL", "http://127.0.0.1:11434"),
		OllamaModel:  getEnv("OLLAMA_MODEL", "mistral"),
		LLMTimeout:   getEnvDuration("LLM_TIMEOUT", 5*time.Minute),

		StoreBackend:     strings.ToLower(getEnv("STATE_BACKEND", "memory")),
		SQLitePath:       getEnv("SQLITE_PATH", "./output/state.db"),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "lider"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "lider"),
		PostgresDB:       getEnv("POSTGRES_DB", "lider"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	return cfg
}

// Validate checks the values that components cannot work around.
func (c *Config) Validate() error {
	if c.OutputDir == "" || c.OutputFile == "" {
		return errors.New("config: output directory or output file is missing")
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("config: concurrency must be positive, got %d", c.Concurrency)
	}
	switch c.ExhaustedPolicy {
	case PolicySkip, PolicyLeak, PolicyUnavailable:
	default:
		return fmt.Errorf("config: unknown exhausted policy %q", c.ExhaustedPolicy)
	}
	switch c.StoreBackend {
	case "memory", "postgres", "sqlite":
	default:
		return fmt.Errorf("config: unknown state backend %q", c.StoreBackend)
	}
	return nil
}

// Path joins name onto the output directory.
func (c *Config) Path(name string) string {
	return filepath.Join(c.OutputDir, name)
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

// keywordFile is the YAML layout of the keyword list: groups of synonyms
// that are flattened into one set.
type keywordFile struct {
	Keywords [][]string `yaml:"keywords"`
}

// LoadKeywords reads keyword groups from path and returns them flattened and
// de-duplicated in file order.
func LoadKeywords(path string) ([]string, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from configuration
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrKeywordsNotFound
		}
		return nil, fmt.Errorf("config: read keywords: %w", err)
	}

	var kf keywordFile
	if err := yaml.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("config: parse keywords %s: %w", path, err)
	}

	var flat []string
	for _, group := range kf.Keywords {
		flat = append(flat, group...)
	}
	return dedupe(flat), nil
}

// ResolveKeywords merges keywords from the environment and the keyword file.
// A missing file is not an error when the environment already lists keywords.
func (c *Config) ResolveKeywords() error {
	fromFile, err := LoadKeywords(c.KeywordsFile)
	switch {
	case errors.Is(err, ErrKeywordsNotFound) && len(c.Keywords) > 0:
	case err != nil:
		return err
	}
	c.Keywords = dedupe(append(c.Keywords, fromFile...))
	if len(c.Keywords) == 0 {
		return errors.New("config: keyword list is empty")
	}
	return nil
}

func dedupe(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return dedupe(strings.Split(s, ","))
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(val)
		if err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		d, err := time.ParseDuration(val)
		if err == nil {
			return d
		}
	}
	return fallback
}
