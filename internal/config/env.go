package config

import (
	"os"
	"strconv"
	"strings"
)

// FromEnv overlays TASKD_* environment variables onto cfg.
// Unset or unparsable variables leave the field alone.
func FromEnv(cfg *Config) {
	if val := getEnv("TASKD_ADDR"); val != "" {
		cfg.Addr = val
	}
	if val := getEnv("TASKD_DATA_DIR"); val != "" {
		cfg.DataDir = val
	}
	if val := getEnv("TASKD_STORAGE"); val != "" {
		cfg.Storage.Backend = strings.ToLower(val)
	}
	if val := getEnv("TASKD_SQLITE_PATH"); val != "" {
		cfg.Storage.SQLitePath = val
	}
	if val := getEnvInt("TASKD_DEBOUNCE_MS"); val > 0 {
		cfg.Search.DebounceMS = val
	}
	if val := getEnvInt("TASKD_TICK_MS"); val > 0 {
		cfg.Timer.TickMS = val
	}
	if val := getEnv("TASKD_CORS_ORIGINS"); val != "" {
		var origins []string
		for _, o := range strings.Split(val, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		cfg.CORS.AllowedOrigins = origins
	}
	if val := getEnv("TASKD_SEED_EXAMPLES"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.SeedExamples = &b
		}
	}
}

func getEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func getEnvInt(key string) int {
	val := getEnv(key)
	if val == "" {
		return 0
	}
	num, err := strconv.Atoi(val)
	if err != nil {
		return 0
	}
	return num
}
