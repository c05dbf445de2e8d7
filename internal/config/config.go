// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Log           LogConfig           `mapstructure:"log"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	Embedding     EmbeddingConfig     `mapstructure:"embedding"`
	LLM           LLMConfig           `mapstructure:"llm"`
	Assistant     AssistantConfig     `mapstructure:"assistant"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	// Driver 取值 mysql 或 postgres；postgres 时长期记忆使用 pgvector 检索。
	Driver string      `mapstructure:"driver"`
	DSN    string      `mapstructure:"dsn"`
	Redis  RedisConfig `mapstructure:"redis"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// KafkaConfig 存储 Kafka 相关的配置。Brokers 为空时审计事件同步落库。
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。Addresses 为空时使用内存车源目录。
type ElasticsearchConfig struct {
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	IndexName string `mapstructure:"index_name"`
}

// MinIOConfig 存储 MinIO 对象存储的配置，用于归档被压缩的会话记录。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// EmbeddingConfig 存储 Embedding 模型相关的配置。
type EmbeddingConfig struct {
	APIKey       string `mapstructure:"api_key"`
	BaseURL      string `mapstructure:"base_url"`
	Model        string `mapstructure:"model"`
	Dimensions   int    `mapstructure:"dimensions"`
	CacheMinutes int    `mapstructure:"cache_minutes"`
}

// LLMConfig 存储大语言模型相关的配置。
type LLMConfig struct {
	APIKey         string              `mapstructure:"api_key"`
	BaseURL        string              `mapstructure:"base_url"`
	Model          string              `mapstructure:"model"`
	TimeoutSeconds int                 `mapstructure:"timeout_seconds"`
	Generation     LLMGenerationConfig `mapstructure:"generation"`
}

// LLMGenerationConfig 配置生成相关参数（可选）。
type LLMGenerationConfig struct {
	Temperature float64 `mapstructure:"temperature"`
	TopP        float64 `mapstructure:"top_p"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// AssistantConfig 汇总对话编排与放宽检索的可调参数。
type AssistantConfig struct {
	MinResults           int     `mapstructure:"min_results"`
	MaxRelaxationSteps   int     `mapstructure:"max_relaxation_steps"`
	ResultLimit          int     `mapstructure:"result_limit"`
	RecommendationWindow int     `mapstructure:"recommendation_window"`
	PriceWidenRatio      float64 `mapstructure:"price_widen_ratio"`
	YearWidenStep        int     `mapstructure:"year_widen_step"`
	CheaperRatio         float64 `mapstructure:"cheaper_ratio"`
	MemoryTopK           int     `mapstructure:"memory_top_k"`
	MemoryRetryBackoffMs int     `mapstructure:"memory_retry_backoff_ms"`
	MaxSessionUtterances int     `mapstructure:"max_session_utterances"`
	KeepUtterances       int     `mapstructure:"keep_utterances"`

	// 贷款试算的默认条件，用户在发言中给出时以发言为准。
	LoanAnnualRate         float64 `mapstructure:"loan_annual_rate"`
	LoanTermMonths         int     `mapstructure:"loan_term_months"`
	LoanDownPaymentPercent float64 `mapstructure:"loan_down_payment_percent"`
}

// DefaultAssistantConfig 返回未配置时使用的默认值。
func DefaultAssistantConfig() AssistantConfig {
	return AssistantConfig{
		MinResults:           1,
		MaxRelaxationSteps:   5,
		ResultLimit:          10,
		RecommendationWindow: 50,
		PriceWidenRatio:      0.2,
		YearWidenStep:        2,
		CheaperRatio:         0.8,
		MemoryTopK:           5,
		MemoryRetryBackoffMs: 200,
		MaxSessionUtterances: 60,
		KeepUtterances:       20,

		LoanAnnualRate:         12.5,
		LoanTermMonths:         60,
		LoanDownPaymentPercent: 20,
	}
}

func setDefaults(v *viper.Viper) {
	d := DefaultAssistantConfig()
	v.SetDefault("server.port", "8081")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.driver", "mysql")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.max_size_mb", 50)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("kafka.topic", "dialogue-turns")
	v.SetDefault("kafka.group_id", "auto-advisor-audit")
	v.SetDefault("elasticsearch.index_name", "car_catalog")
	v.SetDefault("embedding.cache_minutes", 30)
	v.SetDefault("llm.timeout_seconds", 15)
	v.SetDefault("assistant.min_results", d.MinResults)
	v.SetDefault("assistant.max_relaxation_steps", d.MaxRelaxationSteps)
	v.SetDefault("assistant.result_limit", d.ResultLimit)
	v.SetDefault("assistant.recommendation_window", d.RecommendationWindow)
	v.SetDefault("assistant.price_widen_ratio", d.PriceWidenRatio)
	v.SetDefault("assistant.year_widen_step", d.YearWidenStep)
	v.SetDefault("assistant.cheaper_ratio", d.CheaperRatio)
	v.SetDefault("assistant.memory_top_k", d.MemoryTopK)
	v.SetDefault("assistant.memory_retry_backoff_ms", d.MemoryRetryBackoffMs)
	v.SetDefault("assistant.max_session_utterances", d.MaxSessionUtterances)
	v.SetDefault("assistant.keep_utterances", d.KeepUtterances)
	v.SetDefault("assistant.loan_annual_rate", d.LoanAnnualRate)
	v.SetDefault("assistant.loan_term_months", d.LoanTermMonths)
	v.SetDefault("assistant.loan_down_payment_percent", d.LoanDownPaymentPercent)
}

// Load 从指定路径读取 YAML 配置，环境变量 ADVISOR_* 可覆盖同名键。
func Load(configPath string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("ADVISOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.ReadInConfig(); err != nil {
		return cfg, fmt.Errorf("读取配置文件失败: %w", err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	return cfg, nil
}

// Init 初始化配置加载，从指定的路径读取 YAML 文件并解析到 Conf 变量中。
func Init(configPath string) {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err)
	}
	Conf = cfg
}
