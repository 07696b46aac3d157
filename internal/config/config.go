/**
 * @description
 * This package handles the configuration management for the service. It uses
 * the Viper library to read configuration from environment variables,
 * providing a centralized and straightforward way to manage application
 * settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the licensing-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort                 string `mapstructure:"SERVER_PORT"`
	DatabaseURL                string `mapstructure:"DATABASE_URL"`
	RedisURL                   string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix       string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL                string `mapstructure:"RABBITMQ_URL"`
	JVZooSecretKey             string `mapstructure:"JVZOO_SECRET_KEY"`
	LicenseSecretKey           string `mapstructure:"LICENSE_SECRET_KEY"`
	ServiceJWTSecret           string `mapstructure:"SERVICE_JWT_SECRET"`
	CreditResetSchedule        string `mapstructure:"CREDIT_RESET_SCHEDULE"`
	LapsedLicenseSchedule      string `mapstructure:"LAPSED_LICENSE_SCHEDULE"`
	ValidateRateLimitPerMinute int    `mapstructure:"VALIDATE_RATE_LIMIT_PER_MINUTE"`
	ActivateRateLimitPerMinute int    `mapstructure:"ACTIVATE_RATE_LIMIT_PER_MINUTE"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "licensing:rate_limit")
	// Daily at 00:05 so month-boundary resets land shortly after midnight UTC.
	viper.SetDefault("CREDIT_RESET_SCHEDULE", "5 0 * * *")
	viper.SetDefault("LAPSED_LICENSE_SCHEDULE", "30 1 * * *")
	viper.SetDefault("VALIDATE_RATE_LIMIT_PER_MINUTE", 60)
	viper.SetDefault("ACTIVATE_RATE_LIMIT_PER_MINUTE", 10)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "LICENSING_REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("JVZOO_SECRET_KEY", "JVZOO_SECRET_KEY", "JVZOO_IPN_SECRET")
	_ = viper.BindEnv("LICENSE_SECRET_KEY")
	_ = viper.BindEnv("SERVICE_JWT_SECRET")
	_ = viper.BindEnv("CREDIT_RESET_SCHEDULE")
	_ = viper.BindEnv("LAPSED_LICENSE_SCHEDULE")
	_ = viper.BindEnv("VALIDATE_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("ACTIVATE_RATE_LIMIT_PER_MINUTE")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		// If the config file is not found, we can ignore the error.
		// For other errors, we should return them.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	if strings.TrimSpace(config.JVZooSecretKey) == "" {
		config.JVZooSecretKey = strings.TrimSpace(os.Getenv("JVZOO_IPN_SECRET"))
	}
	config.JVZooSecretKey = strings.TrimSpace(config.JVZooSecretKey)
	config.LicenseSecretKey = strings.TrimSpace(config.LicenseSecretKey)
	config.ServiceJWTSecret = strings.TrimSpace(config.ServiceJWTSecret)
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "licensing:rate_limit"
	}
	if strings.TrimSpace(config.CreditResetSchedule) == "" {
		config.CreditResetSchedule = "5 0 * * *"
	}
	if strings.TrimSpace(config.LapsedLicenseSchedule) == "" {
		config.LapsedLicenseSchedule = "30 1 * * *"
	}
	if config.ValidateRateLimitPerMinute <= 0 {
		config.ValidateRateLimitPerMinute = 60
	}
	if config.ActivateRateLimitPerMinute <= 0 {
		config.ActivateRateLimitPerMinute = 10
	}

	return
}
