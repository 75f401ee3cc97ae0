package environments

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Relay no-results policies. A relay may acknowledge a batch without a
// per-recipient result list; the policy decides what happens to the rows.
const (
	NoResultsKeepPending = "pending"
	NoResultsMarkSent    = "sent"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Relay     RelayConfig
	Directory DirectoryConfig
	WhatsApp  WhatsAppConfig
	SMS       SMSConfig
	Upload    UploadConfig
	Dispatch  DispatchConfig
	Alert     AlertConfig
	Auth      AuthConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port string
}

type DatabaseConfig struct {
	Driver     string
	Host       string
	Port       string
	User       string
	Password   string
	DBName     string
	SQLitePath string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type RelayConfig struct {
	WhatsAppURL     string
	EmailURL        string
	AuthKey         string
	Timeout         time.Duration
	NoResultsPolicy string
	DefaultSubject  string
}

type DirectoryConfig struct {
	LoginURL         string
	ContactsURL      string
	Email            string
	Password         string
	LoginTimeout     time.Duration
	ReadTimeout      time.Duration
	TokenTTL         time.Duration
	TokenMargin      time.Duration
	MaxAttempts      int
	BackoffBase      time.Duration
	ContactsCacheTTL time.Duration
}

type WhatsAppConfig struct {
	BaseURL           string
	AccessToken       string
	BusinessAccountID string
	PhoneNumberID     string
	DefaultLanguage   string
	Timeout           time.Duration
	RatePerSecond     int
}

type SMSConfig struct {
	APIURL        string
	BalanceURL    string
	Username      string
	Token         string
	Sender        string
	Timeout       time.Duration
	RatePerSecond int
	SSLVerify     bool
}

type UploadConfig struct {
	Dir           string
	MaxFileSizeMB int
	RetentionDays int
	CleanupCron   string
}

type DispatchConfig struct {
	Workers   int
	QueueSize int
}

type AlertConfig struct {
	WebhookURL     string
	IterationCount int
}

type AuthConfig struct {
	MessagesAPIKey   string
	CallbackAPIKey   string
	DispatcherAPIKey string
}

type LogConfig struct {
	Level string
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present; real environment variables win.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Port: GetEnv("SERVER_PORT", "8080"),
		},
		Database: DatabaseConfig{
			Driver:     GetEnv("DB_DRIVER", "mysql"),
			Host:       GetEnv("DB_HOST", "localhost"),
			Port:       GetEnv("DB_PORT", "3306"),
			User:       GetEnv("DB_USER", "dispatch"),
			Password:   GetEnv("DB_PASSWORD", "dispatch123"),
			DBName:     GetEnv("DB_NAME", "bulk_dispatch"),
			SQLitePath: GetEnv("DB_SQLITE_PATH", "./messaging.db"),
		},
		Redis: RedisConfig{
			Host:     GetEnv("REDIS_HOST", "localhost"),
			Port:     GetEnv("REDIS_PORT", "6379"),
			Password: GetEnv("REDIS_PASSWORD", ""),
			DB:       GetEnvAsInt("REDIS_DB", 0),
		},
		Relay: RelayConfig{
			WhatsAppURL:     GetEnv("RELAY_WHATSAPP_URL", ""),
			EmailURL:        GetEnv("RELAY_EMAIL_URL", ""),
			AuthKey:         GetEnv("RELAY_AUTH_KEY", ""),
			Timeout:         time.Duration(GetEnvAsInt("RELAY_TIMEOUT_SECONDS", 600)) * time.Second,
			NoResultsPolicy: GetEnv("RELAY_NO_RESULTS_POLICY", NoResultsKeepPending),
			DefaultSubject:  GetEnv("RELAY_DEFAULT_SUBJECT", "Mensaje sin asunto"),
		},
		Directory: DirectoryConfig{
			LoginURL:         GetEnv("DIRECTORY_LOGIN_URL", ""),
			ContactsURL:      GetEnv("DIRECTORY_CONTACTS_URL", ""),
			Email:            GetEnv("DIRECTORY_EMAIL", ""),
			Password:         GetEnv("DIRECTORY_PASSWORD", ""),
			LoginTimeout:     time.Duration(GetEnvAsInt("DIRECTORY_LOGIN_TIMEOUT_SECONDS", 30)) * time.Second,
			ReadTimeout:      time.Duration(GetEnvAsInt("DIRECTORY_READ_TIMEOUT_SECONDS", 120)) * time.Second,
			TokenTTL:         GetEnvAsDuration("DIRECTORY_TOKEN_TTL", time.Hour),
			TokenMargin:      GetEnvAsDuration("DIRECTORY_TOKEN_MARGIN", 5*time.Minute),
			MaxAttempts:      GetEnvAsInt("DIRECTORY_MAX_ATTEMPTS", 3),
			BackoffBase:      GetEnvAsDuration("DIRECTORY_BACKOFF_BASE", time.Second),
			ContactsCacheTTL: GetEnvAsDuration("DIRECTORY_CONTACTS_CACHE_TTL", 5*time.Minute),
		},
		WhatsApp: WhatsAppConfig{
			BaseURL:           GetEnv("WHATSAPP_API_BASE_URL", "https://graph.facebook.com/v18.0"),
			AccessToken:       GetEnv("WHATSAPP_ACCESS_TOKEN", ""),
			BusinessAccountID: GetEnv("WHATSAPP_BUSINESS_ACCOUNT_ID", ""),
			PhoneNumberID:     GetEnv("WHATSAPP_PHONE_NUMBER_ID", ""),
			DefaultLanguage:   GetEnv("WHATSAPP_DEFAULT_LANGUAGE", "es_CO"),
			Timeout:           time.Duration(GetEnvAsInt("WHATSAPP_TIMEOUT_SECONDS", 30)) * time.Second,
			RatePerSecond:     GetEnvAsInt("WHATSAPP_RATE_PER_SECOND", 20),
		},
		SMS: SMSConfig{
			APIURL:        GetEnv("SMS_API_URL", "https://api.labsmobile.com/json/send"),
			BalanceURL:    GetEnv("SMS_BALANCE_URL", "https://api.labsmobile.com/json/balance"),
			Username:      GetEnv("SMS_USERNAME", ""),
			Token:         GetEnv("SMS_TOKEN", ""),
			Sender:        GetEnv("SMS_SENDER", ""),
			Timeout:       time.Duration(GetEnvAsInt("SMS_TIMEOUT_SECONDS", 30)) * time.Second,
			RatePerSecond: GetEnvAsInt("SMS_RATE_PER_SECOND", 10),
			SSLVerify:     GetEnvAsBool("SSL_VERIFY", true),
		},
		Upload: UploadConfig{
			Dir:           GetEnv("UPLOAD_DIR", "./uploads"),
			MaxFileSizeMB: GetEnvAsInt("MAX_FILE_SIZE_MB", 15),
			RetentionDays: GetEnvAsInt("UPLOAD_RETENTION_DAYS", 7),
			CleanupCron:   GetEnv("UPLOAD_CLEANUP_CRON", "0 3 * * *"),
		},
		Dispatch: DispatchConfig{
			Workers:   GetEnvAsInt("DISPATCH_WORKERS", 4),
			QueueSize: GetEnvAsInt("DISPATCH_QUEUE_SIZE", 100),
		},
		Alert: AlertConfig{
			WebhookURL:     GetEnv("ALERT_WEBHOOK_URL", ""),
			IterationCount: GetEnvAsInt("ALERT_ITERATION_COUNT", 0),
		},
		Auth: AuthConfig{
			MessagesAPIKey:   GetEnv("MESSAGES_API_KEY", ""),
			CallbackAPIKey:   GetEnv("CALLBACK_API_KEY", ""),
			DispatcherAPIKey: GetEnv("DISPATCHER_API_KEY", ""),
		},
		Log: LogConfig{
			Level: GetEnv("LOG_LEVEL", "info"),
		},
	}
}

func GetEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func GetEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func GetEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func GetEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
