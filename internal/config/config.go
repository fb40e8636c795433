package config

import (
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	BotToken      string
	AdminID       int64
	DatabaseURL   string
	RedisURL      string
	PublicBaseURL string
	WebappURL     string
	CORSOrigins   []string
	JWTSecret     string
	Port          string

	RunAPI         bool
	RunBot         bool
	RunAutoCollect bool
	RunLottery     bool

	TapRatePerSec float64
	TapRateBurst  int

	Game Game
}

func mustEnv(key string) string {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		log.Printf("missing env: %s, using default", key)
		return ""
	}
	return val
}

func normalizeDatabaseURL(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return s
	}

	// Some provider consoles show `psql 'postgresql://...'` examples. Accept them too.
	if i := strings.Index(s, "postgresql://"); i >= 0 {
		s = s[i:]
	} else if i := strings.Index(s, "postgres://"); i >= 0 {
		s = s[i:]
	}

	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"'`)
	if i := strings.IndexAny(s, " \t\r\n"); i >= 0 {
		s = strings.Trim(s[:i], `"'`)
	}

	u, err := url.Parse(s)
	if err != nil {
		return s
	}
	q := u.Query()
	// pgx does not need channel_binding and may treat it as a runtime param.
	q.Del("channel_binding")
	u.RawQuery = q.Encode()
	return u.String()
}

func normalizeRedisURL(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return s
	}

	// Redis providers often show connection as a CLI command, e.g.:
	//   redis-cli -u redis://default:<pass>@host:port
	// Accept that too by extracting the URL portion.
	if i := strings.Index(s, "rediss://"); i >= 0 {
		s = s[i:]
	} else if i := strings.Index(s, "redis://"); i >= 0 {
		s = s[i:]
	}

	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"'`)
	if i := strings.IndexAny(s, " \t\r\n"); i >= 0 {
		s = strings.Trim(s[:i], `"'`)
	}

	return s
}

func parseCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envBool(key string, def bool) bool {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return def
	}
	switch strings.ToLower(val) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return def
}

func envInt(key string, def int) int {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return def
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return def
	}
	return n
}

func envInt64(key string, def int64) int64 {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return def
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envFloat64(key string, def float64) float64 {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return def
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return def
	}
	return f
}

func Load() Config {
	publicBase := strings.TrimSpace(os.Getenv("PUBLIC_BASE_URL"))
	if publicBase == "" {
		publicBase = strings.TrimSpace(os.Getenv("RENDER_EXTERNAL_URL"))
	}
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}
	if publicBase == "" {
		publicBase = "http://127.0.0.1:" + port
	}

	webappURL := strings.TrimSpace(os.Getenv("WEBAPP_URL"))
	if webappURL == "" {
		webappURL = publicBase
	}

	publicBase = strings.TrimRight(publicBase, "/")
	webappURL = strings.TrimRight(webappURL, "/")

	cfg := Config{
		BotToken:      mustEnv("BOT_TOKEN"),
		AdminID:       envInt64("ADMIN_ID", 0),
		DatabaseURL:   normalizeDatabaseURL(os.Getenv("DATABASE_URL")),
		RedisURL:      normalizeRedisURL(os.Getenv("REDIS_URL")),
		PublicBaseURL: publicBase,
		WebappURL:     webappURL,
		CORSOrigins:   parseCSV(strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))),
		JWTSecret:     mustEnv("JWT_SECRET"),
		Port:          port,

		RunAPI:         envBool("RUN_API", true),
		RunBot:         envBool("RUN_BOT", true),
		RunAutoCollect: envBool("RUN_AUTOCOLLECT_WORKER", true),
		RunLottery:     envBool("RUN_LOTTERY_WORKER", true),

		TapRatePerSec: envFloat64("TAP_RATE_PER_SEC", 20),
		TapRateBurst:  envInt("TAP_RATE_BURST", 40),

		Game: loadGame(),
	}

	if cfg.JWTSecret == "" {
		cfg.JWTSecret = cfg.BotToken
	}

	return cfg
}
