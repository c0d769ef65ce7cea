package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort      string
	DatabaseURL     string
	RedisAddr       string
	FirebaseProject string
	Environment     string
	AdminUserIDs    []string
	ChatActiveLimit int
}

func Load() (*Config, error) {
	godotenv.Load()

	config := &Config{
		ServerPort:      getEnv("SERVER_PORT", "8080"),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		RedisAddr:       getEnv("REDIS_ADDR", ""),
		FirebaseProject: getEnv("FIREBASE_PROJECT_ID", ""),
		Environment:     getEnv("ENVIRONMENT", "development"),
		AdminUserIDs:    getEnvAsList("ADMIN_USER_IDS"),
		ChatActiveLimit: getEnvAsInt("CHAT_ACTIVE_LIMIT", 10),
	}

	return config, nil
}

// IsAdmin reports whether uid appears in ADMIN_USER_IDS. Admin capability is
// resolved here, at the boundary, and passed down as a plain bool.
func (c *Config) IsAdmin(uid string) bool {
	for _, id := range c.AdminUserIDs {
		if id == uid {
			return true
		}
	}
	return false
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		intValue, err := strconv.Atoi(value)
		if err == nil && intValue > 0 {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return nil
	}

	var ids []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			ids = append(ids, trimmed)
		}
	}
	return ids
}
