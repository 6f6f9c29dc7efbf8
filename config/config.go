package config

import (
	"log"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration values.
type Config struct {
	AppPort           string `mapstructure:"APP_PORT"`
	Env               string `mapstructure:"ENV"`
	LogLevel          string `mapstructure:"LOG_LEVEL"`
	MaxRequestsPerMin int    `mapstructure:"MAX_REQUESTS_PER_MIN"`

	// Portal booking API. An empty base URL means the demo runs against the
	// embedded sandbox instead of a live portal.
	PortalBaseURL      string `mapstructure:"PORTAL_BASE_URL"`
	PortalBearerToken  string `mapstructure:"PORTAL_BEARER_TOKEN"`
	RequestTimeoutSecs int    `mapstructure:"REQUEST_TIMEOUT_SECS"`
	FetchRetries       int    `mapstructure:"FETCH_RETRIES"`

	// Availability window and refresh cadence.
	AvailabilityDays    int `mapstructure:"AVAILABILITY_DAYS"`
	RefreshIntervalSecs int `mapstructure:"REFRESH_INTERVAL_SECS"`
	StaleAfterSecs      int `mapstructure:"STALE_AFTER_SECS"`

	// Timezone sent with bookings when detection fails.
	DefaultTimezone string `mapstructure:"DEFAULT_TIMEZONE"`

	// Seconds before the success screen advances on its own.
	SuccessCountdownSecs int `mapstructure:"SUCCESS_COUNTDOWN_SECS"`

	// Wellness-journey step tracker. The task/step pair is data so the
	// journey page can be reordered without a client release.
	JourneyBaseURL     string `mapstructure:"JOURNEY_BASE_URL"`
	JourneyBearerToken string `mapstructure:"JOURNEY_BEARER_TOKEN"`
	JourneyTaskID      string `mapstructure:"JOURNEY_TASK_ID"`
	JourneyTaskStep    int    `mapstructure:"JOURNEY_TASK_STEP"`
}

var AppConfig Config

func LoadConfig() {
	// Look for a config file named "config.yaml" in the current and "config" directory.
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	// Automatically use environment variables where available.
	viper.AutomaticEnv()

	// Set default values.
	viper.SetDefault("APP_PORT", "8080")
	viper.SetDefault("ENV", "development")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("MAX_REQUESTS_PER_MIN", 100)
	viper.SetDefault("PORTAL_BASE_URL", "")
	viper.SetDefault("PORTAL_BEARER_TOKEN", "")
	viper.SetDefault("REQUEST_TIMEOUT_SECS", 15)
	viper.SetDefault("FETCH_RETRIES", 2)
	viper.SetDefault("AVAILABILITY_DAYS", 14)
	viper.SetDefault("REFRESH_INTERVAL_SECS", 60)
	viper.SetDefault("STALE_AFTER_SECS", 30)
	viper.SetDefault("DEFAULT_TIMEZONE", "America/Los_Angeles")
	viper.SetDefault("SUCCESS_COUNTDOWN_SECS", 5)
	viper.SetDefault("JOURNEY_BASE_URL", "")
	viper.SetDefault("JOURNEY_BEARER_TOKEN", "")
	viper.SetDefault("JOURNEY_TASK_ID", "book-consultation")
	viper.SetDefault("JOURNEY_TASK_STEP", 2)

	if err := viper.ReadInConfig(); err != nil {
		log.Println("No config file found, using environment variables only")
	}

	if err := viper.Unmarshal(&AppConfig); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
}

func GetEnv() string {
	return AppConfig.Env
}

func IsProduction() bool {
	return GetEnv() == "production"
}

// RequestTimeout returns the per-attempt HTTP timeout.
func RequestTimeout() time.Duration {
	return time.Duration(AppConfig.RequestTimeoutSecs) * time.Second
}

// RefreshInterval returns the availability polling cadence.
func RefreshInterval() time.Duration {
	return time.Duration(AppConfig.RefreshIntervalSecs) * time.Second
}

// StaleAfter returns how old a snapshot may grow before it is refetched on
// resume instead of being served as-is.
func StaleAfter() time.Duration {
	return time.Duration(AppConfig.StaleAfterSecs) * time.Second
}

// SuccessCountdown returns the auto-advance delay on the success screen.
func SuccessCountdown() time.Duration {
	return time.Duration(AppConfig.SuccessCountdownSecs) * time.Second
}
