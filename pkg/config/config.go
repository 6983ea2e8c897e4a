package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Port                    string
	Env                     string
	StoreDriver             string
	MongoURI                string
	MongoDatabase           string
	FirebaseCredentialsPath string
	PostgresUrl             string
	RedisURL                string
	AuthMode                string
	JWTSecret               string
	InstitutionDomain       string
	MetricsPort             string
	RateLimitRPS            float64
	ReconcileInterval       time.Duration
}

// Load reads the configuration from the environment, after loading .env when present.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file found, assuming environment variables are set")
	}
	return &Config{
		Port:                    getEnv("PORT", "8080"),
		Env:                     getEnv("ENV", "development"),
		StoreDriver:             getEnv("STORE_DRIVER", "memory"),
		MongoURI:                getEnv("MONGO_URI", ""),
		MongoDatabase:           getEnv("MONGO_DATABASE", "campusfeed"),
		FirebaseCredentialsPath: getEnv("FIREBASE_CREDENTIALS_PATH", ""),
		PostgresUrl:             getEnv("POSTGRES_URL", ""),
		RedisURL:                getEnv("REDIS_URL", ""),
		AuthMode:                getEnv("AUTH_MODE", "jwt"),
		JWTSecret:               getEnv("JWT_SECRET", "supersecretjwtkey"),
		InstitutionDomain:       getEnv("INSTITUTION_DOMAIN", "srit.ac.in"),
		MetricsPort:             getEnv("METRICS_PORT", "9090"),
		RateLimitRPS:            getEnvFloat("RATE_LIMIT_RPS", 20),
		ReconcileInterval:       getEnvDuration("RECONCILE_INTERVAL", time.Minute),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil || v <= 0 {
		return defaultValue
	}
	return v
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}
