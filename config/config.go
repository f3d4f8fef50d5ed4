package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config stores the application configuration.
type Config struct {
	HTTPAddr string

	// 数据库配置
	DBDriver   string // mysql 或 sqlite
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	SQLitePath string

	// Redis配置
	RedisEnabled  bool
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// MinIO配置
	MinioEnabled   bool
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
	MinioRegion    string
	MediaBaseURL   string // 对外暴露的音频访问前缀，例如 http://localhost:8080/media

	// 认证
	JWTSecret string
	JWTTTL    time.Duration

	// 歌词生成（OpenAI 兼容接口），LLMAPIURL 为空时使用内置模板
	LLMAPIURL      string
	LLMAPIKey      string
	LLMModel       string
	LLMMaxTokens   int
	LLMTemperature float64

	// 音频合成，SynthAPIURL 为空时使用占位音频
	SynthAPIURL    string
	SynthAPIKey    string
	SynthOutputDir string
	SynthDuration  int // seconds
	AudioStubDelay time.Duration

	// 生成队列消费者
	QueueEnabled      bool
	QueuePollInterval time.Duration
	QueueStaleAfter   time.Duration
	QueueBatch        int
	QueueWorkers      int
	StepLockTTL       time.Duration

	GenerateRatePerMin int

	LogLevel   string
	LogFile    string
	LogMaxSize int
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvDuration accepts Go duration strings ("2s", "5m").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// godotenv.Load() 不会覆盖已存在的环境变量
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on existing environment variables and defaults.")
	}

	return &Config{
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),

		DBDriver:   getEnv("DB_DRIVER", "mysql"),
		DBHost:     getEnv("DB_HOST", "127.0.0.1"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "root"),
		DBPassword: os.Getenv("DB_PASSWORD"), // 密码不设默认值
		DBName:     getEnv("DB_NAME", "raplab"),
		SQLitePath: getEnv("SQLITE_PATH", "raplab.db"),

		RedisEnabled:  getEnvBool("REDIS_ENABLED", true),
		RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		MinioEnabled:   getEnvBool("MINIO_ENABLED", false),
		MinioEndpoint:  getEnv("MINIO_ENDPOINT", "127.0.0.1:9000"),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getEnv("MINIO_SECRET_KEY", ""),
		MinioBucket:    getEnv("MINIO_BUCKET", "raplab"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),
		MinioRegion:    getEnv("MINIO_REGION", "us-east-1"),
		MediaBaseURL:   strings.TrimRight(getEnv("MEDIA_BASE_URL", "http://localhost:8080/media"), "/"),

		JWTSecret: getEnv("JWT_SECRET", "raplab-dev-secret-change-me"),
		JWTTTL:    getEnvDuration("JWT_TTL", 7*24*time.Hour),

		LLMAPIURL:      strings.TrimRight(getEnv("LLM_API_URL", ""), "/"),
		LLMAPIKey:      getEnv("LLM_API_KEY", ""),
		LLMModel:       getEnv("LLM_MODEL", "grok-3"),
		LLMMaxTokens:   getEnvInt("LLM_MAX_TOKENS", 1024),
		LLMTemperature: getEnvFloat("LLM_TEMPERATURE", 0.9),

		SynthAPIURL:    strings.TrimRight(getEnv("SYNTH_API_URL", ""), "/"),
		SynthAPIKey:    getEnv("SYNTH_API_KEY", ""),
		SynthOutputDir: getEnv("SYNTH_OUTPUT_DIR", ""),
		SynthDuration:  getEnvInt("SYNTH_DURATION", 120),
		AudioStubDelay: getEnvDuration("AUDIO_STUB_DELAY", 2*time.Second),

		QueueEnabled:      getEnvBool("QUEUE_ENABLED", true),
		QueuePollInterval: getEnvDuration("QUEUE_POLL_INTERVAL", 15*time.Second),
		QueueStaleAfter:   getEnvDuration("QUEUE_STALE_AFTER", 2*time.Minute),
		QueueBatch:        getEnvInt("QUEUE_BATCH", 10),
		QueueWorkers:      getEnvInt("QUEUE_WORKERS", 4),
		StepLockTTL:       getEnvDuration("STEP_LOCK_TTL", 10*time.Minute),

		GenerateRatePerMin: getEnvInt("GENERATE_RATE_PER_MIN", 6),

		LogLevel:   getEnv("LOG_LEVEL", "info"),
		LogFile:    getEnv("LOG_FILE", ""),
		LogMaxSize: getEnvInt("LOG_MAX_SIZE_MB", 100),
	}
}
