package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env string

	Port string

	StateBackend  string // memory | file | mysql | postgres
	FileDir       string // required when STATE_BACKEND=file
	MySQLDSN      string // required when STATE_BACKEND=mysql
	PostgresDSN   string // required when STATE_BACKEND=postgres
	RunMigrations bool
	MigrationsDir string

	SitemapIndexURL string
	ProductAPIURL   string
	ProductAPIKey   string // x-apikey header omitted entirely when empty
	Region          string
	Language        string
	UserAgent       string
	HTTPTimeout     time.Duration

	FetchAttempts  int
	FetchRetryBase time.Duration

	Workers   int
	Freshness time.Duration
	Timezone  string
	DailyAt   string // HH:MM, daemon trigger time in Timezone
}

func Load() Config {
	_ = godotenv.Load()
	cfg := Config{
		Env:  getenv("ENV", "dev"),
		Port: getenv("PORT", "8080"),

		StateBackend:  getenv("STATE_BACKEND", "memory"),
		FileDir:       getenv("FILE_DIR", "./data"),
		MySQLDSN:      getenv("DB_DSN", ""),
		PostgresDSN:   getenv("POSTGRES_DSN", ""),
		RunMigrations: getenv("RUN_MIGRATIONS", "false") == "true",
		MigrationsDir: getenv("MIGRATIONS_DIR", "./migrations"),

		SitemapIndexURL: getenv("SITEMAP_INDEX_URL", ""),
		ProductAPIURL:   getenv("PRODUCT_API_URL", ""),
		ProductAPIKey:   getenv("PRODUCT_API_KEY", ""),
		Region:          getenv("REGION", "HU"),
		Language:        getenv("LANGUAGE", "hu-HU"),
		UserAgent:       getenv("USER_AGENT", defaultUserAgent),
		HTTPTimeout:     getenvDuration("HTTP_TIMEOUT", 15*time.Second),

		FetchAttempts:  getenvInt("FETCH_ATTEMPTS", 5),
		FetchRetryBase: getenvDuration("FETCH_RETRY_BASE", 2*time.Second),

		Workers:   getenvInt("HARVEST_WORKERS", 4),
		Freshness: getenvDuration("FRESHNESS_WINDOW", 12*time.Hour),
		Timezone:  getenv("HARVEST_TZ", "Europe/Budapest"),
		DailyAt:   getenv("HARVEST_DAILY_AT", "05:00"),
	}
	return cfg
}

const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:109.0) Gecko/20100101 Firefox/115.0"

func getenv(key string, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
