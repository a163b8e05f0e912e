package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/caarlos0/env/v6"
	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
	"github.com/pkg/errors"
)

// Provider names an LLM backend.
type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderArk    Provider = "ark"
)

const (
	DefaultSystemPrompt = "You are a helpful AI assistant."
	DefaultHistoryLimit = 20
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server ServerConfig
	LLM    LLMConfig
	Chat   ChatConfig
	Log    LogConfig
}

// environment mirrors the variables read by the server.
type environment struct {
	Port string `env:"PORT" envDefault:"8000"`

	Provider      string `env:"LLM_PROVIDER"`
	OpenAIAPIKey  string `env:"OPENAI_API_KEY"`
	GroqAPIKey    string `env:"GROQ_API_KEY"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL" envDefault:"https://api.groq.com/openai/v1"`
	OpenAIModel   string `env:"OPENAI_MODEL" envDefault:"llama-3.1-8b-instant"`

	ArkAPIKey    string `env:"ARK_API_KEY"`
	ArkAccessKey string `env:"ARK_ACCESS_KEY"`
	ArkSecretKey string `env:"ARK_SECRET_KEY"`
	ArkModel     string `env:"ARK_MODEL"`
	ArkBaseURL   string `env:"ARK_BASE_URL" envDefault:"https://ark.cn-beijing.volces.com/api/v3"`
	ArkRegion    string `env:"ARK_REGION" envDefault:"cn-beijing"`

	SystemPrompt string `env:"SYSTEM_PROMPT"`
	HistoryLimit int    `env:"HISTORY_LIMIT" envDefault:"20"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	var raw environment
	if err := env.Parse(&raw); err != nil {
		return nil, errors.Wrap(err, "parse environment")
	}

	server, err := loadServerConfig(raw.Port)
	if err != nil {
		return nil, err
	}

	llm, err := loadLLMConfig(raw)
	if err != nil {
		return nil, err
	}

	chat := ChatConfig{
		SystemPrompt: strings.TrimSpace(raw.SystemPrompt),
		HistoryLimit: raw.HistoryLimit,
	}
	if chat.SystemPrompt == "" {
		chat.SystemPrompt = DefaultSystemPrompt
	}
	if chat.HistoryLimit < 1 {
		chat.HistoryLimit = DefaultHistoryLimit
	}

	return &Config{
		Server: server,
		LLM:    llm,
		Chat:   chat,
		Log:    LogConfig{Level: raw.LogLevel, Format: raw.LogFormat},
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig(port string) (ServerConfig, error) {
	port = strings.TrimSpace(port)
	if port == "" {
		port = "8000"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8000" 或 "127.0.0.1:8000"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// ChatConfig 描述对话历史配置。
type ChatConfig struct {
	SystemPrompt string
	HistoryLimit int
}

// LogConfig 描述日志输出。
type LogConfig struct {
	Level  string
	Format string
}

// LLMConfig selects and configures the completion provider.
type LLMConfig struct {
	Provider Provider
	OpenAI   OpenAIConfig
	Ark      ArkConfig
}

// OpenAIConfig covers any OpenAI-compatible endpoint; Groq by default.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Enabled 表示是否提供了必需的密钥。
func (c OpenAIConfig) Enabled() bool {
	return c.APIKey != "" && c.Model != ""
}

// ArkConfig 描述火山方舟大模型配置。
type ArkConfig struct {
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// Enabled 表示是否提供了必需的密钥。
func (c ArkConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c ArkConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + ARK_MODEL 或 AK/SK 组合")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

// Active reports the provider to use. An explicit LLM_PROVIDER wins;
// otherwise the first provider with credentials is picked.
func (c LLMConfig) Active() (Provider, bool) {
	switch c.Provider {
	case ProviderOpenAI:
		return ProviderOpenAI, c.OpenAI.Enabled()
	case ProviderArk:
		return ProviderArk, c.Ark.Enabled()
	}
	if c.OpenAI.Enabled() {
		return ProviderOpenAI, true
	}
	if c.Ark.Enabled() {
		return ProviderArk, true
	}
	return "", false
}

func loadLLMConfig(raw environment) (LLMConfig, error) {
	provider := Provider(strings.ToLower(strings.TrimSpace(raw.Provider)))
	switch provider {
	case "", ProviderOpenAI, ProviderArk:
	default:
		return LLMConfig{}, fmt.Errorf("invalid LLM_PROVIDER value: %q", raw.Provider)
	}

	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return LLMConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return LLMConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return LLMConfig{}, err
	}

	apiKey := strings.TrimSpace(raw.OpenAIAPIKey)
	if apiKey == "" {
		apiKey = strings.TrimSpace(raw.GroqAPIKey)
	}

	return LLMConfig{
		Provider: provider,
		OpenAI: OpenAIConfig{
			APIKey:  apiKey,
			BaseURL: strings.TrimSpace(raw.OpenAIBaseURL),
			Model:   strings.TrimSpace(raw.OpenAIModel),
		},
		Ark: ArkConfig{
			APIKey:      strings.TrimSpace(raw.ArkAPIKey),
			AccessKey:   strings.TrimSpace(raw.ArkAccessKey),
			SecretKey:   strings.TrimSpace(raw.ArkSecretKey),
			Model:       strings.TrimSpace(raw.ArkModel),
			BaseURL:     strings.TrimSpace(raw.ArkBaseURL),
			Region:      strings.TrimSpace(raw.ArkRegion),
			Temperature: temperature,
			TopP:        topP,
			MaxTokens:   maxTokens,
		},
	}, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
