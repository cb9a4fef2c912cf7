package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	BrandTerms []string
	AlertFeeds []string

	GSCClientID     string
	GSCClientSecret string
	GSCRefreshToken string
	GSCSiteURL      string

	AccessLogPath string
	ExtraBots     []string
	MaxLogLines   int

	OutputDir string

	FetchTimeout time.Duration
	RunTimeout   time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load() // optional

	return &Config{
		BrandTerms:      getenvList("BRAND_TERMS"),
		AlertFeeds:      getenvList("ALERT_FEEDS"),
		GSCClientID:     getenv("GSC_CLIENT_ID", ""),
		GSCClientSecret: getenv("GSC_CLIENT_SECRET", ""),
		GSCRefreshToken: getenv("GSC_REFRESH_TOKEN", ""),
		GSCSiteURL:      getenv("GSC_SITE_URL", ""),
		AccessLogPath:   getenv("ACCESS_LOG_PATH", ""),
		ExtraBots:       getenvList("EXTRA_BOTS"),
		MaxLogLines:     getenvInt("MAX_LOG_LINES", 0),
		OutputDir:       getenv("OUTPUT_DIR", "./public"),
		FetchTimeout:    time.Duration(getenvInt("FETCH_TIMEOUT", 20)) * time.Second,
		RunTimeout:      time.Duration(getenvInt("RUN_TIMEOUT", 120)) * time.Second,
	}, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// getenvList splits a comma-separated env value, dropping empty tokens.
func getenvList(key string) []string {
	raw := os.Getenv(key)
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
