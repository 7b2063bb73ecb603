package config

import (
	"log"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	ListenAddr       string
	LogLevel         string
	LogJSON          bool
	PostgresUser     string
	PostgresPassword string
	PostgresHost     string
	PostgresPort     string
	PostgresDatabase string
	PostgresSSLMode  string
	S3Bucket         string
	S3Region         string
	S3Endpoint       string
	S3AccessKey      string
	S3SecretKey      string
	FlightCacheTTL   time.Duration
	ForexCacheTTL    time.Duration
	PurgeInterval    time.Duration
	RateLimit        int
	RateLimitWindow  time.Duration
}

func Load() *Config {
	viper.SetConfigFile(".env")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("no .env file, using environment variables: %v", err)
	}

	viper.SetDefault("LISTEN_ADDR", ":8080")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LOG_JSON", false)
	viper.SetDefault("POSTGRES_USER", "chasquifx")
	viper.SetDefault("POSTGRES_PASSWORD", "password")
	viper.SetDefault("POSTGRES_HOST", "localhost")
	viper.SetDefault("POSTGRES_PORT", "5432")
	viper.SetDefault("POSTGRES_DATABASE", "chasquifx_cache")
	viper.SetDefault("POSTGRES_SSL_MODE", "disable")
	viper.SetDefault("S3_BUCKET", "chasquifx-snapshots")
	viper.SetDefault("AWS_REGION", "us-east-1")
	// Flight inventory is stabler than forex rates, hence the longer TTL.
	viper.SetDefault("FLIGHT_CACHE_TTL", 24*time.Hour)
	viper.SetDefault("FOREX_CACHE_TTL", 12*time.Hour)
	viper.SetDefault("PURGE_INTERVAL", 30*time.Minute)
	viper.SetDefault("RATE_LIMIT", 100)
	viper.SetDefault("RATE_LIMIT_WINDOW", time.Minute)

	return &Config{
		ListenAddr:       viper.GetString("LISTEN_ADDR"),
		LogLevel:         viper.GetString("LOG_LEVEL"),
		LogJSON:          viper.GetBool("LOG_JSON"),
		PostgresUser:     viper.GetString("POSTGRES_USER"),
		PostgresPassword: viper.GetString("POSTGRES_PASSWORD"),
		PostgresHost:     viper.GetString("POSTGRES_HOST"),
		PostgresPort:     viper.GetString("POSTGRES_PORT"),
		PostgresDatabase: viper.GetString("POSTGRES_DATABASE"),
		PostgresSSLMode:  viper.GetString("POSTGRES_SSL_MODE"),
		S3Bucket:         viper.GetString("S3_BUCKET"),
		S3Region:         viper.GetString("AWS_REGION"),
		S3Endpoint:       viper.GetString("S3_ENDPOINT"),
		S3AccessKey:      viper.GetString("AWS_ACCESS_KEY_ID"),
		S3SecretKey:      viper.GetString("AWS_SECRET_ACCESS_KEY"),
		FlightCacheTTL:   viper.GetDuration("FLIGHT_CACHE_TTL"),
		ForexCacheTTL:    viper.GetDuration("FOREX_CACHE_TTL"),
		PurgeInterval:    viper.GetDuration("PURGE_INTERVAL"),
		RateLimit:        viper.GetInt("RATE_LIMIT"),
		RateLimitWindow:  viper.GetDuration("RATE_LIMIT_WINDOW"),
	}
}
