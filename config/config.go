package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort    int
	Database      DatabaseConfig
	JWT           JWTConfig
	Features      FeatureConfig
	Log           LogConfig
	Redis         RedisConfig
	PasswordReset PasswordResetConfig
	OAuth         OAuthConfig
	MQ            MQConfig
	Storage       StorageConfig
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	UseSSL   bool
}

type JWTConfig struct {
	Secret string
	TTL    time.Duration
}

// FeatureConfig holds operator-controlled switches.
type FeatureConfig struct {
	// AllowRoleOnRegister lets registration requests carry a role name.
	// Intended for development environments only.
	AllowRoleOnRegister bool
}

type LogConfig struct {
	Level string
	Dev   bool
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type PasswordResetConfig struct {
	TTL      time.Duration
	Throttle time.Duration
	URL      string
}

type OAuthConfig struct {
	GoogleClientID   string
	AppleClientID    string
	FacebookEnabled  bool
	FacebookGraphURL string
	Timeout          time.Duration
}

type MQConfig struct {
	Backend              string
	NotificationsChannel string
	RabbitMQ             RabbitMQConfig
	PubSub               PubSubConfig
	Kafka                KafkaConfig
}

type RabbitMQConfig struct {
	URL             string
	QueueDurable    bool
	QueueAutoDelete bool
	PrefetchCount   int
}

type PubSubConfig struct {
	ProjectID          string
	CredentialsFile    string
	SubscriptionSuffix string
}

type KafkaConfig struct {
	Brokers []string
	GroupID string
}

type StorageConfig struct {
	Backend   string
	PublicURL string
	Minio     MinioConfig
	GCS       GCSConfig
}

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type GCSConfig struct {
	Bucket          string
	ProjectID       string
	CredentialsFile string
}

func LoadConfig() Config {
	if os.Getenv("ENV") == "dev" {
		godotenv.Load()
	}

	dbConfig := DatabaseConfig{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnvInt("DB_PORT", 5432),
		User:     getEnv("DB_USER", "spotseeker"),
		Password: getEnv("DB_PASSWORD", "password"),
		DBName:   getEnv("DB_NAME", "spotseeker_db"),
		UseSSL:   getEnvBool("DB_SSL", false),
	}

	return Config{
		ServerPort: getEnvInt("SERVER_PORT", 8080),
		Database:   dbConfig,
		JWT: JWTConfig{
			Secret: strings.TrimSpace(getEnv("JWT_SECRET", "")),
			TTL:    getEnvDuration("JWT_TTL", 24*time.Hour),
		},
		Features: FeatureConfig{
			AllowRoleOnRegister: getEnvBool("ALLOW_ROLE_ON_REGISTER", false),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
			Dev:   getEnvBool("LOG_DEV", false),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		PasswordReset: PasswordResetConfig{
			TTL:      getEnvDuration("PASSWORD_RESET_TTL", 60*time.Minute),
			Throttle: getEnvDuration("PASSWORD_RESET_THROTTLE", 60*time.Second),
			URL:      getEnv("PASSWORD_RESET_URL", "http://localhost:3000/reset-password"),
		},
		OAuth: OAuthConfig{
			GoogleClientID:   getEnv("GOOGLE_CLIENT_ID", ""),
			AppleClientID:    getEnv("APPLE_CLIENT_ID", ""),
			FacebookEnabled:  getEnvBool("FACEBOOK_LOGIN_ENABLED", false),
			FacebookGraphURL: getEnv("FACEBOOK_GRAPH_URL", "https://graph.facebook.com/v19.0"),
			Timeout:          getEnvDuration("OAUTH_TIMEOUT", 10*time.Second),
		},
		MQ: MQConfig{
			Backend:              strings.ToLower(getEnv("MQ_BACKEND", "none")),
			NotificationsChannel: getEnv("NOTIFICATIONS_CHANNEL", "identity-notifications"),
			RabbitMQ: RabbitMQConfig{
				URL:             getEnv("RABBITMQ_URL", ""),
				QueueDurable:    getEnvBool("RABBITMQ_QUEUE_DURABLE", true),
				QueueAutoDelete: getEnvBool("RABBITMQ_QUEUE_AUTO_DELETE", false),
				PrefetchCount:   getEnvInt("RABBITMQ_PREFETCH", 10),
			},
			PubSub: PubSubConfig{
				ProjectID:          getEnv("PUBSUB_PROJECT_ID", ""),
				CredentialsFile:    getEnv("PUBSUB_CREDENTIALS_FILE", ""),
				SubscriptionSuffix: getEnv("PUBSUB_SUBSCRIPTION_SUFFIX", "-sub"),
			},
			Kafka: KafkaConfig{
				Brokers: getEnvList("KAFKA_BROKERS"),
				GroupID: getEnv("KAFKA_GROUP_ID", "spotseeker-identity"),
			},
		},
		Storage: StorageConfig{
			Backend:   strings.ToLower(getEnv("STORAGE_BACKEND", "none")),
			PublicURL: getEnv("STORAGE_PUBLIC_URL", ""),
			Minio: MinioConfig{
				Endpoint:  getEnv("MINIO_ENDPOINT", ""),
				AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
				SecretKey: getEnv("MINIO_SECRET_KEY", ""),
				Bucket:    getEnv("MINIO_BUCKET", "spotseeker"),
				UseSSL:    getEnvBool("MINIO_USE_SSL", false),
			},
			GCS: GCSConfig{
				Bucket:          getEnv("GCS_BUCKET", ""),
				ProjectID:       getEnv("GCS_PROJECT_ID", ""),
				CredentialsFile: getEnv("GCS_CREDENTIALS_FILE", ""),
			},
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(key); exists {
		var value int
		if _, err := fmt.Sscanf(valueStr, "%d", &value); err != nil {
			return defaultValue
		}
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if valueStr, exists := os.LookupEnv(key); exists {
		value, err := strconv.ParseBool(strings.TrimSpace(valueStr))
		if err != nil {
			return defaultValue
		}
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if valueStr, exists := os.LookupEnv(key); exists {
		value, err := time.ParseDuration(strings.TrimSpace(valueStr))
		if err != nil {
			return defaultValue
		}
		return value
	}
	return defaultValue
}

func getEnvList(key string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			values = append(values, part)
		}
	}
	return values
}
