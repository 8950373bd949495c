package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/wizai/InstallWiz/internal/storage"
)

type ArkConfig struct {
	APIKey  string `mapstructure:"api_key"`
	ModelID string `mapstructure:"model_id"`
	BaseURL string `mapstructure:"base_url"`
}

// AgentConfig 会话引擎的运行参数
type AgentConfig struct {
	// EscalateAfter 无进展轮次达到该值后转人工
	EscalateAfter int `mapstructure:"escalate_after"`
}

// RetrievalConfig 知识库检索参数
type RetrievalConfig struct {
	// TopK 每轮拼进提示词的片段数
	TopK int `mapstructure:"top_k"`
}

type Config struct {
	Storage   storage.Config  `mapstructure:"storage"`
	Ark       ArkConfig       `mapstructure:"ark"`
	Agent     AgentConfig     `mapstructure:"agent"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	LogLevel  string          `mapstructure:"log_level"`
}

func Load(cfgFile string) (*Config, error) {
	// 1. 初始化 Viper
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		// 默认搜索路径
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.installwiz")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("INSTALLWIZ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Viper 的 Unmarshal 只反序列化它“知道”的 key（来自配置文件、Defaults 或显式 Bind），
	// 所以所有 key 都要先 SetDefault，环境变量覆盖才能生效。
	setDefaults(v)

	// 2. 读取配置文件
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
		// 配置文件未找到，使用默认值
	}

	// 3. 反序列化 (文件/环境变量 覆盖 默认值)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	// 4. 验证关键配置
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	// Ark 配置验证：必须存在
	if c.Ark.APIKey == "" {
		return fmt.Errorf("ark.api_key is required (or set ARK_API_KEY env var)")
	}
	if c.Ark.ModelID == "" {
		return fmt.Errorf("ark.model_id is required (or set ARK_MODEL_ID env var)")
	}
	if c.Agent.EscalateAfter <= 0 {
		return fmt.Errorf("agent.escalate_after must be positive, got %d", c.Agent.EscalateAfter)
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k must be positive, got %d", c.Retrieval.TopK)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// -------------------------------------------------------------------------
	// Global Defaults (全局默认值)
	// -------------------------------------------------------------------------
	v.SetDefault("log_level", "info")

	// -------------------------------------------------------------------------
	// Storage Defaults (存储默认值)
	// -------------------------------------------------------------------------
	v.SetDefault("storage.path", "installwiz.db")
	v.SetDefault("storage.enable_wal", true)
	v.SetDefault("storage.busy_timeout", 5*time.Second)

	// -------------------------------------------------------------------------
	// Agent Defaults (会话引擎默认值)
	// -------------------------------------------------------------------------
	v.SetDefault("agent.escalate_after", 9)

	// -------------------------------------------------------------------------
	// Retrieval Defaults (检索默认值)
	// -------------------------------------------------------------------------
	v.SetDefault("retrieval.top_k", 3)

	// -------------------------------------------------------------------------
	// Ark AI Defaults (AI 模型默认值)
	// -------------------------------------------------------------------------
	v.SetDefault("ark.api_key", "")
	v.SetDefault("ark.model_id", "")
	v.SetDefault("ark.base_url", "https://ark.cn-beijing.volces.com/api/v3")

	v.BindEnv("ark.api_key", "ARK_API_KEY")
	v.BindEnv("ark.model_id", "ARK_MODEL_ID")
	v.BindEnv("ark.base_url", "ARK_BASE_URL")
}

func DefaultConfig() Config {
	return Config{
		LogLevel: "info",
		Storage: storage.Config{
			Path:        "installwiz.db",
			EnableWAL:   true,
			BusyTimeout: 5 * time.Second,
		},
		Agent:     AgentConfig{EscalateAfter: 9},
		Retrieval: RetrievalConfig{TopK: 3},
	}
}
