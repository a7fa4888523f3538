package env

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type EnvironmentVariables struct {
	InstanceName      string
	BackendPort       string
	RedisAddr         string
	DatabaseURL       string
	MerchantProfiles  string
	StorageScheme     string
	KVMerchants       []string
	DrainerPartitions int
	ReconcileWorkers  int
	ConnectorTimeout  int
}

var (
	Env *EnvironmentVariables
)

func Load() {
	// A local .env is a development convenience; in containers the variables
	// come from the runtime.
	_ = godotenv.Load()

	Env = &EnvironmentVariables{
		InstanceName:      getOptionalEnv("INSTANCE_NAME", "payflow-1"),
		BackendPort:       getOptionalEnv("BACKEND_PORT", "8080"),
		RedisAddr:         getRequiredEnv("REDIS_ADDR"),
		DatabaseURL:       getRequiredEnv("DATABASE_URL"),
		MerchantProfiles:  getRequiredEnv("MERCHANT_PROFILES_PATH"),
		StorageScheme:     getOptionalEnv("STORAGE_SCHEME", "kv"),
		KVMerchants:       getListEnv("STORAGE_KV_MERCHANTS"),
		DrainerPartitions: getIntEnv("DRAINER_PARTITIONS", 4),
		ReconcileWorkers:  getIntEnv("RECONCILE_WORKERS", 4),
		ConnectorTimeout:  getIntEnv("CONNECTOR_TIMEOUT_MS", 15000),
	}

	log.Printf("[ENV] Environment variables loaded successfully:")
	log.Printf("  - Instance: %s", Env.InstanceName)
	log.Printf("  - Backend Port: %s", Env.BackendPort)
	log.Printf("  - Redis: %s", Env.RedisAddr)
	log.Printf("  - Storage Scheme: %s", Env.StorageScheme)
	log.Printf("  - Drainer Partitions: %d", Env.DrainerPartitions)
}

func getRequiredEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		log.Fatalf("[ENV] Required environment variable %s is not set", key)
	}
	return value
}

func getOptionalEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getIntEnv(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		log.Fatalf("[ENV] Environment variable %s must be an integer, got %q", key, value)
	}
	return parsed
}

func getListEnv(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func IsProduction() bool {
	return getOptionalEnv("ENVIRONMENT", "development") == "production"
}

func IsDevelopment() bool {
	return !IsProduction()
}
