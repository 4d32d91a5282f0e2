package config

import (
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 应用配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Database DatabaseConfig `mapstructure:"database"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Media    MediaConfig    `mapstructure:"media"`
	Quota    QuotaConfig    `mapstructure:"quota"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Address      string        `mapstructure:"address"`
	Mode         string        `mapstructure:"mode"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// AuthConfig 认证配置
type AuthConfig struct {
	JWTSecret   string        `mapstructure:"jwt_secret"`
	TokenExpiry time.Duration `mapstructure:"token_expiry"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Type     string         `mapstructure:"type"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
}

// PostgresConfig PostgreSQL配置
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

// SQLiteConfig SQLite配置
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// StorageConfig 对象存储配置
type StorageConfig struct {
	MinIO MinIOConfig `mapstructure:"minio"`
}

// MinIOConfig MinIO配置。PublicBaseURL 用于拼接对外可访问的文件地址
type MinIOConfig struct {
	Endpoint      string `mapstructure:"endpoint"`
	AccessKey     string `mapstructure:"access_key"`
	SecretKey     string `mapstructure:"secret_key"`
	UseSSL        bool   `mapstructure:"use_ssl"`
	BucketName    string `mapstructure:"bucket_name"`
	PublicBaseURL string `mapstructure:"public_base_url"`
}

// CacheConfig 缓存配置：memory 为进程内身份缓存，redis 供任务队列与令牌吊销使用
type CacheConfig struct {
	Memory MemoryConfig `mapstructure:"memory"`
	Redis  RedisConfig  `mapstructure:"redis"`
}

// MemoryConfig 进程内身份缓存配置
type MemoryConfig struct {
	TTL     time.Duration `mapstructure:"ttl"`
	MaxSize int           `mapstructure:"max_size"`
}

// RedisConfig Redis配置
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// MediaConfig 媒体处理配置
type MediaConfig struct {
	FFmpegPath       string        `mapstructure:"ffmpeg_path"`
	MaxImageSize     int64         `mapstructure:"max_image_size"`
	MaxVideoSize     int64         `mapstructure:"max_video_size"`
	TranscodeTimeout time.Duration `mapstructure:"transcode_timeout"`
}

// QuotaConfig 配额配置，所有用户共用同一个全局上限
type QuotaConfig struct {
	UserStorageLimit int64 `mapstructure:"user_storage_limit"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load 加载配置：默认值 -> 配置文件 -> 环境变量（.env 优先载入）
func Load() (*Config, error) {
	// .env 仅在存在时生效
	_ = godotenv.Load()

	viper.SetDefault("server.address", ":8080")
	viper.SetDefault("server.mode", "debug")
	viper.SetDefault("server.read_timeout", 10*time.Minute)
	viper.SetDefault("server.write_timeout", 10*time.Minute)
	viper.SetDefault("auth.jwt_secret", "your-secret-key")
	viper.SetDefault("auth.token_expiry", 24*time.Hour)
	viper.SetDefault("database.type", "postgres")
	viper.SetDefault("database.postgres.host", "localhost")
	viper.SetDefault("database.postgres.port", 5432)
	viper.SetDefault("database.postgres.ssl_mode", "disable")
	viper.SetDefault("database.sqlite.path", "./data/app.db")
	viper.SetDefault("storage.minio.endpoint", "localhost:9000")
	viper.SetDefault("storage.minio.use_ssl", false)
	viper.SetDefault("storage.minio.bucket_name", "frame-files")
	viper.SetDefault("cache.memory.ttl", 15*time.Minute)
	viper.SetDefault("cache.memory.max_size", 1000)
	viper.SetDefault("cache.redis.address", "localhost:6379")
	viper.SetDefault("media.ffmpeg_path", "ffmpeg")
	viper.SetDefault("media.max_image_size", int64(10*1024*1024))
	viper.SetDefault("media.max_video_size", int64(100*1024*1024))
	viper.SetDefault("media.transcode_timeout", 3*time.Minute)
	viper.SetDefault("quota.user_storage_limit", int64(1024*1024*1024))
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/framevault")

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	setEnvOverrides()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// setEnvOverrides 设置环境变量覆盖
func setEnvOverrides() {
	if addr := os.Getenv("SERVER_ADDRESS"); addr != "" {
		viper.Set("server.address", addr)
	}
	if mode := os.Getenv("SERVER_MODE"); mode != "" {
		viper.Set("server.mode", mode)
	}

	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		viper.Set("auth.jwt_secret", secret)
	}

	if endpoint := os.Getenv("MINIO_ENDPOINT"); endpoint != "" {
		viper.Set("storage.minio.endpoint", endpoint)
	}
	if accessKey := os.Getenv("MINIO_ACCESS_KEY"); accessKey != "" {
		viper.Set("storage.minio.access_key", accessKey)
	}
	if secretKey := os.Getenv("MINIO_SECRET_KEY"); secretKey != "" {
		viper.Set("storage.minio.secret_key", secretKey)
	}
	if bucket := os.Getenv("MINIO_BUCKET_NAME"); bucket != "" {
		viper.Set("storage.minio.bucket_name", bucket)
	}
	if baseURL := os.Getenv("MINIO_PUBLIC_BASE_URL"); baseURL != "" {
		viper.Set("storage.minio.public_base_url", baseURL)
	}

	if pgHost := os.Getenv("POSTGRES_HOST"); pgHost != "" {
		viper.Set("database.postgres.host", pgHost)
	}
	if pgPort := os.Getenv("POSTGRES_PORT"); pgPort != "" {
		if port, err := strconv.Atoi(pgPort); err == nil {
			viper.Set("database.postgres.port", port)
		}
	}
	if pgUser := os.Getenv("POSTGRES_USERNAME"); pgUser != "" {
		viper.Set("database.postgres.username", pgUser)
	}
	if pgPassword := os.Getenv("POSTGRES_PASSWORD"); pgPassword != "" {
		viper.Set("database.postgres.password", pgPassword)
	}
	if pgDatabase := os.Getenv("POSTGRES_DATABASE"); pgDatabase != "" {
		viper.Set("database.postgres.database", pgDatabase)
	}

	if redisAddr := os.Getenv("REDIS_ADDRESS"); redisAddr != "" {
		viper.Set("cache.redis.address", redisAddr)
	}
	if redisPassword := os.Getenv("REDIS_PASSWORD"); redisPassword != "" {
		viper.Set("cache.redis.password", redisPassword)
	}
	if redisDB := os.Getenv("REDIS_DB"); redisDB != "" {
		if db, err := strconv.Atoi(redisDB); err == nil {
			viper.Set("cache.redis.db", db)
		}
	}

	if ffmpeg := os.Getenv("FFMPEG_PATH"); ffmpeg != "" {
		viper.Set("media.ffmpeg_path", ffmpeg)
	}
	if limit := os.Getenv("USER_STORAGE_LIMIT"); limit != "" {
		if n, err := strconv.ParseInt(limit, 10, 64); err == nil {
			viper.Set("quota.user_storage_limit", n)
		}
	}
}

// GetDSN 获取数据库连接字符串
func (c *Config) GetDSN() string {
	switch c.Database.Type {
	case "postgres":
		return buildPostgresDSN(c.Database.Postgres)
	case "sqlite":
		return c.Database.SQLite.Path
	default:
		return ""
	}
}

// buildPostgresDSN 构建PostgreSQL DSN
func buildPostgresDSN(config PostgresConfig) string {
	dsn := "host=" + config.Host
	dsn += " port=" + strconv.Itoa(config.Port)
	dsn += " user=" + config.Username
	dsn += " password=" + config.Password
	dsn += " dbname=" + config.Database
	dsn += " sslmode=" + config.SSLMode
	return dsn
}

// PublicBaseURL 对象存储对外基地址，未配置时按 endpoint 推导
func (c *Config) PublicBaseURL() string {
	if c.Storage.MinIO.PublicBaseURL != "" {
		return c.Storage.MinIO.PublicBaseURL
	}
	scheme := "http"
	if c.Storage.MinIO.UseSSL {
		scheme = "https"
	}
	return scheme + "://" + c.Storage.MinIO.Endpoint
}

// IsProduction 检查是否为生产环境
func (c *Config) IsProduction() bool {
	return c.Server.Mode == "production" || c.Server.Mode == "release"
}

// GetGINMode 获取Gin模式
func (c *Config) GetGINMode() string {
	switch c.Server.Mode {
	case "debug":
		return gin.DebugMode
	case "release", "production":
		return gin.ReleaseMode
	case "test":
		return gin.TestMode
	default:
		return gin.DebugMode
	}
}
