package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/fyerfyer/doc-pipeline/internal/pipeline"
	"github.com/fyerfyer/doc-pipeline/pkg/storage"
	"github.com/fyerfyer/doc-pipeline/pkg/taskqueue"
)

// Config 应用程序配置结构体
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port" validate:"min=1,max=65535"`
	// Mode gin运行模式
	Mode        string        `mapstructure:"mode" validate:"oneof=debug release test"`
	ReadTimeout time.Duration `mapstructure:"read_timeout" validate:"gte=0"`
	// WriteTimeout 同步执行节点时需要足够长
	WriteTimeout time.Duration `mapstructure:"write_timeout" validate:"gte=0"`
	// AllowOrigins 允许跨域的来源，为空表示全部
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	// File 日志文件，为空时只输出到标准输出
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `mapstructure:"max_backups" validate:"gte=0"`
	MaxAgeDays int    `mapstructure:"max_age_days" validate:"gte=0"`
	Compress   bool   `mapstructure:"compress"`
}

// StorageConfig 存储配置
type StorageConfig struct {
	Type      string `mapstructure:"type" validate:"oneof=local minio s3"` // 存储类型
	Path      string `mapstructure:"path" validate:"required_if=Type local"`
	Bucket    string `mapstructure:"bucket" validate:"required_unless=Type local"`
	Endpoint  string `mapstructure:"endpoint" validate:"required_if=Type minio"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// QueueConfig 任务队列配置
type QueueConfig struct {
	Enable        bool          `mapstructure:"enable"`
	RedisAddr     string        `mapstructure:"redis_addr" validate:"required_if=Enable true"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db" validate:"gte=0"`
	Concurrency   int           `mapstructure:"concurrency" validate:"gte=1"`
	RetryLimit    int           `mapstructure:"retry_limit" validate:"gte=0"`
	RetryDelay    time.Duration `mapstructure:"retry_delay" validate:"gte=0"`
	TaskTimeout   time.Duration `mapstructure:"task_timeout" validate:"gte=0"`
}

// PipelineConfig 节点执行配置
type PipelineConfig struct {
	ChunkingStrategy string `mapstructure:"chunking_strategy"`
	ChunkSize        int    `mapstructure:"chunk_size" validate:"gt=0"`
	ChunkOverlap     int    `mapstructure:"chunk_overlap" validate:"gte=0,ltfield=ChunkSize"`
	// MaxWorkers 0表示按主机资源自动计算
	MaxWorkers  int           `mapstructure:"max_workers" validate:"gte=0"`
	UnitTimeout time.Duration `mapstructure:"unit_timeout" validate:"gte=0"`
	TempDir     string        `mapstructure:"temp_dir"`
	// UploadRate 每秒上传文件数，0表示不限制
	UploadRate  float64 `mapstructure:"upload_rate" validate:"gte=0"`
	UploadBurst int     `mapstructure:"upload_burst" validate:"gte=0"`
	// SpellingCorpus chunk-clean拼写纠正使用的英文语料文件，为空时不能启用to_correct_spelling
	SpellingCorpus string `mapstructure:"spelling_corpus" validate:"omitempty,file"`
}

// Load 从文件和环境变量加载配置
// 工作目录下的.env会先被加载到环境变量
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if configPath == "" {
		configPath = "config.yaml"
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		log.Printf("Warning: Config file not found at %s, using defaults", configPath)
	}

	// 支持环境变量覆盖，如 SERVER_PORT、QUEUE_REDIS_ADDR
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// StorageOptions 转换为存储层配置
func (c *Config) StorageOptions() storage.Config {
	s := c.Storage
	return storage.Config{
		Type:  storage.Type(s.Type),
		Local: storage.LocalConfig{Path: s.Path},
		Minio: storage.MinioConfig{
			Endpoint:  s.Endpoint,
			AccessKey: s.AccessKey,
			SecretKey: s.SecretKey,
			UseSSL:    s.UseSSL,
			Bucket:    s.Bucket,
		},
		S3: storage.S3Config{
			Region:    s.Region,
			Bucket:    s.Bucket,
			AccessKey: s.AccessKey,
			SecretKey: s.SecretKey,
			Endpoint:  s.Endpoint,
		},
	}
}

// QueueOptions 转换为任务队列配置
func (c *Config) QueueOptions() *taskqueue.Config {
	q := taskqueue.DefaultConfig()
	q.RedisAddr = c.Queue.RedisAddr
	q.RedisPassword = c.Queue.RedisPassword
	q.RedisDB = c.Queue.RedisDB
	q.Concurrency = c.Queue.Concurrency
	q.RetryLimit = c.Queue.RetryLimit
	q.RetryDelay = c.Queue.RetryDelay
	q.TaskTimeout = c.Queue.TaskTimeout
	return q
}

// NodeDefaults 节点配置默认值，请求中未设置的项使用这些值
func (c *Config) NodeDefaults() pipeline.NodeConfig {
	n := pipeline.DefaultNodeConfig()
	if c.Pipeline.ChunkingStrategy != "" {
		n.ChunkingStrategy = c.Pipeline.ChunkingStrategy
	}
	n.ChunkSize = c.Pipeline.ChunkSize
	n.ChunkOverlap = c.Pipeline.ChunkOverlap
	n.MaxWorkers = c.Pipeline.MaxWorkers
	return n
}

// setDefaults 设置配置的默认值
func setDefaults(v *viper.Viper) {
	// 服务器默认配置
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "10m")
	v.SetDefault("server.allow_origins", []string{})

	// 日志默认配置
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("log.compress", true)

	// 存储默认配置
	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.path", "./data/files")
	v.SetDefault("storage.bucket", "doc-pipeline")
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.access_key", "")
	v.SetDefault("storage.secret_key", "")
	v.SetDefault("storage.use_ssl", false)

	// 队列默认配置
	v.SetDefault("queue.enable", false)
	v.SetDefault("queue.redis_addr", "localhost:6379")
	v.SetDefault("queue.redis_password", "")
	v.SetDefault("queue.redis_db", 0)
	v.SetDefault("queue.concurrency", 4)
	v.SetDefault("queue.retry_limit", 3)
	v.SetDefault("queue.retry_delay", "1m")
	v.SetDefault("queue.task_timeout", "30m")

	// 节点执行默认配置
	v.SetDefault("pipeline.chunking_strategy", "recursive")
	v.SetDefault("pipeline.chunk_size", 1000)
	v.SetDefault("pipeline.chunk_overlap", 200)
	v.SetDefault("pipeline.max_workers", 0)
	v.SetDefault("pipeline.unit_timeout", "2m")
	v.SetDefault("pipeline.temp_dir", "")
	v.SetDefault("pipeline.upload_rate", 0)
	v.SetDefault("pipeline.upload_burst", 1)
	v.SetDefault("pipeline.spelling_corpus", "")
}
