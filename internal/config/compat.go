package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ApplyCompatFromEnv reads environment variables that are not represented by
// dedicated CLI flags, including the names used by earlier deployments of the
// service (SECRET_KEY, DATABASE_URL in SQLAlchemy form).
func (c *Config) ApplyCompatFromEnv() error {
	if c == nil {
		return nil
	}

	var err error
	if err = applyBoolEnv("CHATMEM_DB_MIGRATE_AT_START", &c.DatastoreMigrateAtStart); err != nil {
		return err
	}
	if err = applyDurationEnv("CHATMEM_DB_CONN_MAX_LIFETIME", &c.DBConnMaxLifetime); err != nil {
		return err
	}
	if err = applyDurationEnv("CHATMEM_DB_BUSY_TIMEOUT", &c.DBBusyTimeout); err != nil {
		return err
	}
	if err = applyIntEnv("CHATMEM_DRAIN_TIMEOUT", &c.DrainTimeout); err != nil {
		return err
	}
	if raw := strings.TrimSpace(os.Getenv("CHATMEM_MAX_BODY_SIZE")); raw != "" {
		size, parseErr := parseMemorySize(raw)
		if parseErr != nil {
			return fmt.Errorf("invalid CHATMEM_MAX_BODY_SIZE: %w", parseErr)
		}
		c.MaxBodySize = size
	}
	applyStringEnv("CORS_ORIGINS", &c.CORSOrigins)

	c.DBURL = NormalizeDBURL(c.DBURL)

	// Tokens: CHATMEM_API_TOKENS_<CLIENT>=<token>[,<token>...] plus the legacy SECRET_KEY.
	if c.APITokens == nil {
		c.APITokens = map[string]string{}
	}
	for token, client := range loadAPITokensFromEnv() {
		c.APITokens[token] = client
	}
	if secret := strings.TrimSpace(os.Getenv("SECRET_KEY")); secret != "" {
		c.APITokens[secret] = "default"
	}

	return nil
}

// loadAPITokensFromEnv scans env vars matching CHATMEM_API_TOKENS_<CLIENT>=<token>[,<token>...]
// and returns a map from token to client name.
func loadAPITokensFromEnv() map[string]string {
	const prefix = "CHATMEM_API_TOKENS_"
	result := map[string]string{}
	for _, env := range os.Environ() {
		if !strings.HasPrefix(env, prefix) {
			continue
		}
		eqIdx := strings.IndexByte(env, '=')
		if eqIdx < 0 {
			continue
		}
		client := strings.ToLower(strings.TrimSpace(env[len(prefix):eqIdx]))
		if client == "" {
			continue
		}
		for _, token := range strings.Split(env[eqIdx+1:], ",") {
			value := strings.TrimSpace(token)
			if value == "" {
				continue
			}
			result[value] = client
		}
	}
	return result
}

// NormalizeDBURL accepts SQLAlchemy style URLs and returns a DSN the gorm
// drivers understand. sqlite:///./chat.db becomes ./chat.db, sqlite:////var/chat.db
// becomes /var/chat.db and driver suffixes such as postgresql+psycopg2 are dropped.
func NormalizeDBURL(raw string) string {
	v := strings.TrimSpace(raw)
	lower := strings.ToLower(v)
	switch {
	case strings.HasPrefix(lower, "sqlite:///"):
		return v[len("sqlite:///"):]
	case strings.HasPrefix(lower, "sqlite://"):
		return v[len("sqlite://"):]
	case strings.HasPrefix(lower, "postgresql+"), strings.HasPrefix(lower, "postgres+"):
		if idx := strings.Index(v, "://"); idx > 0 {
			return "postgresql" + v[idx:]
		}
	}
	return v
}

func applyStringEnv(key string, dest *string) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return
	}
	*dest = raw
}

func applyIntEnv(key string, dest *int) error {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dest = v
	return nil
}

func applyBoolEnv(key string, dest *bool) error {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dest = v
	return nil
}

func applyDurationEnv(key string, dest *time.Duration) error {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	v, err := parseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dest = v
	return nil
}

func parseDuration(raw string) (time.Duration, error) {
	v := strings.TrimSpace(strings.ToUpper(raw))
	if v == "" {
		return 0, fmt.Errorf("empty duration")
	}

	// Go duration first (e.g. 30s, 5m).
	if d, err := time.ParseDuration(strings.ToLower(v)); err == nil {
		return d, nil
	}

	// Minimal ISO-8601 support: PT#H#M#S
	if !strings.HasPrefix(v, "PT") {
		return 0, fmt.Errorf("unsupported format %q", raw)
	}
	rest := strings.TrimPrefix(v, "PT")
	if rest == "" {
		return 0, fmt.Errorf("invalid format %q", raw)
	}
	total := time.Duration(0)
	for len(rest) > 0 {
		i := 0
		for i < len(rest) && rest[i] >= '0' && rest[i] <= '9' {
			i++
		}
		if i == 0 || i >= len(rest) {
			return 0, fmt.Errorf("invalid format %q", raw)
		}
		n, err := strconv.Atoi(rest[:i])
		if err != nil {
			return 0, fmt.Errorf("invalid format %q", raw)
		}
		switch rest[i] {
		case 'H':
			total += time.Duration(n) * time.Hour
		case 'M':
			total += time.Duration(n) * time.Minute
		case 'S':
			total += time.Duration(n) * time.Second
		default:
			return 0, fmt.Errorf("invalid format %q", raw)
		}
		rest = rest[i+1:]
	}
	if total <= 0 {
		return 0, fmt.Errorf("duration must be positive")
	}
	return total, nil
}

func parseMemorySize(raw string) (int64, error) {
	v := strings.TrimSpace(strings.ToUpper(raw))
	if v == "" {
		return 0, fmt.Errorf("empty size")
	}
	multiplier := int64(1)
	switch {
	case strings.HasSuffix(v, "KB"), strings.HasSuffix(v, "K"):
		multiplier = 1024
		v = strings.TrimSuffix(strings.TrimSuffix(v, "KB"), "K")
	case strings.HasSuffix(v, "MB"), strings.HasSuffix(v, "M"):
		multiplier = 1024 * 1024
		v = strings.TrimSuffix(strings.TrimSuffix(v, "MB"), "M")
	case strings.HasSuffix(v, "GB"), strings.HasSuffix(v, "G"):
		multiplier = 1024 * 1024 * 1024
		v = strings.TrimSuffix(strings.TrimSuffix(v, "GB"), "G")
	case strings.HasSuffix(v, "B"):
		v = strings.TrimSuffix(v, "B")
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid size %q", raw)
	}
	return n * multiplier, nil
}
