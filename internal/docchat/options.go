// Package docchat provides the docchat service application.
package docchat

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	logopts "github.com/kart-io/docchat/pkg/options/logger"
)

// Options contains all docchat service options.
type Options struct {
	// Server contains HTTP server configuration.
	Server *ServerOptions `json:"server" mapstructure:"server"`

	// Log contains logger configuration.
	Log *logopts.Options `json:"log" mapstructure:"log"`

	// Database contains document and transcript store configuration.
	Database *DatabaseOptions `json:"database" mapstructure:"database"`

	// Redis contains conversation context store configuration.
	Redis *RedisOptions `json:"redis" mapstructure:"redis"`

	// Embedding contains embedding provider configuration.
	Embedding *LLMProviderOptions `json:"embedding" mapstructure:"embedding"`

	// Chat contains chat provider configuration.
	Chat *LLMProviderOptions `json:"chat" mapstructure:"chat"`

	// DocChat contains answer pipeline configuration.
	DocChat *DocChatOptions `json:"docchat" mapstructure:"docchat"`
}

// ServerOptions contains HTTP server configuration.
type ServerOptions struct {
	// Addr is the address the HTTP server listens on.
	Addr string `json:"addr" mapstructure:"addr"`

	// Mode is the gin mode (debug, release, test).
	Mode string `json:"mode" mapstructure:"mode"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `json:"shutdown-timeout" mapstructure:"shutdown-timeout"`
}

// NewServerOptions creates default server options.
func NewServerOptions() *ServerOptions {
	return &ServerOptions{
		Addr:            ":8085",
		Mode:            "release",
		ShutdownTimeout: 10 * time.Second,
	}
}

// DatabaseOptions contains the SQLite store configuration.
type DatabaseOptions struct {
	// Path is the SQLite database file. ":memory:" keeps everything
	// in process.
	Path string `json:"path" mapstructure:"path"`
}

// NewDatabaseOptions creates default database options.
func NewDatabaseOptions() *DatabaseOptions {
	return &DatabaseOptions{
		Path: "_output/docchat.db",
	}
}

// RedisOptions contains the context store configuration.
type RedisOptions struct {
	// Enabled selects Redis for conversation context. When false, or
	// when Redis is unreachable at startup, an in-memory store is used.
	Enabled bool `json:"enabled" mapstructure:"enabled"`

	// Host is the Redis host.
	Host string `json:"host" mapstructure:"host"`

	// Port is the Redis port.
	Port int `json:"port" mapstructure:"port"`

	// Password is the Redis password.
	Password string `json:"password" mapstructure:"password"`

	// Database is the Redis database number.
	Database int `json:"database" mapstructure:"database"`

	// TTL is how long idle conversation contexts are kept.
	TTL time.Duration `json:"ttl" mapstructure:"ttl"`
}

// NewRedisOptions creates default Redis options.
func NewRedisOptions() *RedisOptions {
	return &RedisOptions{
		Enabled:  true,
		Host:     "localhost",
		Port:     6379,
		Database: 0,
		TTL:      24 * time.Hour,
	}
}

// Addr returns the host:port address.
func (o *RedisOptions) Addr() string {
	return fmt.Sprintf("%s:%d", o.Host, o.Port)
}

// LLMProviderOptions configures one LLM provider.
type LLMProviderOptions struct {
	// Provider is the provider name (ollama, openai).
	Provider string `json:"provider" mapstructure:"provider"`

	// BaseURL is the API base URL.
	BaseURL string `json:"base-url" mapstructure:"base-url"`

	// APIKey is the API key (required for OpenAI).
	APIKey string `json:"api-key" mapstructure:"api-key"`

	// Model is the model name.
	Model string `json:"model" mapstructure:"model"`

	// Timeout is the request timeout.
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`

	// MaxRetries is the retry budget per request.
	MaxRetries int `json:"max-retries" mapstructure:"max-retries"`

	// Organization is the organization id (OpenAI, optional).
	Organization string `json:"organization" mapstructure:"organization"`
}

// NewLLMProviderOptions creates default LLM provider options.
func NewLLMProviderOptions() *LLMProviderOptions {
	return &LLMProviderOptions{
		Provider:   "openai",
		BaseURL:    "https://api.openai.com/v1",
		Timeout:    120 * time.Second,
		MaxRetries: 3,
	}
}

// ToConfigMap converts the options into the provider factory format.
func (o *LLMProviderOptions) ToConfigMap() map[string]any {
	return map[string]any{
		"base_url":     o.BaseURL,
		"api_key":      o.APIKey,
		"embed_model":  o.Model,
		"chat_model":   o.Model,
		"timeout":      o.Timeout,
		"max_retries":  o.MaxRetries,
		"organization": o.Organization,
	}
}

// DocChatOptions contains answer pipeline configuration.
type DocChatOptions struct {
	// TopK is the default snippet count for retrieval.
	TopK int `json:"top-k" mapstructure:"top-k"`

	// HistoryLimit caps replayed transcript messages per turn.
	HistoryLimit int `json:"history-limit" mapstructure:"history-limit"`

	// Workers sizes the tool execution pool.
	Workers int `json:"workers" mapstructure:"workers"`
}

// NewDocChatOptions creates default pipeline options.
func NewDocChatOptions() *DocChatOptions {
	return &DocChatOptions{
		TopK:         3,
		HistoryLimit: 20,
		Workers:      16,
	}
}

// NewOptions creates new Options with defaults.
func NewOptions() *Options {
	embeddingOpts := NewLLMProviderOptions()
	embeddingOpts.Model = "text-embedding-3-small"

	chatOpts := NewLLMProviderOptions()
	chatOpts.Model = "gpt-4o-mini"

	return &Options{
		Server:    NewServerOptions(),
		Log:       logopts.NewOptions(),
		Database:  NewDatabaseOptions(),
		Redis:     NewRedisOptions(),
		Embedding: embeddingOpts,
		Chat:      chatOpts,
		DocChat:   NewDocChatOptions(),
	}
}

// AddFlags adds flags to the flagset.
func (o *Options) AddFlags(fs *pflag.FlagSet) {
	o.Log.AddFlags(fs)
	o.addServerFlags(fs)
	o.addDatabaseFlags(fs)
	o.addRedisFlags(fs)
	o.addProviderFlags(fs, o.Embedding, "embedding")
	o.addProviderFlags(fs, o.Chat, "chat")
	o.addDocChatFlags(fs)
}

func (o *Options) addServerFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Server.Addr, "server.addr", o.Server.Addr, "HTTP server listen address")
	fs.StringVar(&o.Server.Mode, "server.mode", o.Server.Mode, "Server mode (debug, release, test)")
	fs.DurationVar(&o.Server.ShutdownTimeout, "server.shutdown-timeout", o.Server.ShutdownTimeout, "Graceful shutdown timeout")
}

func (o *Options) addDatabaseFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Database.Path, "database.path", o.Database.Path, "SQLite database file path")
}

func (o *Options) addRedisFlags(fs *pflag.FlagSet) {
	fs.BoolVar(&o.Redis.Enabled, "redis.enabled", o.Redis.Enabled, "Use Redis for conversation context")
	fs.StringVar(&o.Redis.Host, "redis.host", o.Redis.Host, "Redis host")
	fs.IntVar(&o.Redis.Port, "redis.port", o.Redis.Port, "Redis port")
	fs.StringVar(&o.Redis.Password, "redis.password", o.Redis.Password, "Redis password")
	fs.IntVar(&o.Redis.Database, "redis.database", o.Redis.Database, "Redis database number")
	fs.DurationVar(&o.Redis.TTL, "redis.ttl", o.Redis.TTL, "Conversation context TTL")
}

func (o *Options) addProviderFlags(fs *pflag.FlagSet, opts *LLMProviderOptions, prefix string) {
	fs.StringVar(&opts.Provider, prefix+".provider", opts.Provider, "Provider name (ollama, openai)")
	fs.StringVar(&opts.BaseURL, prefix+".base-url", opts.BaseURL, "Provider API base URL")
	fs.StringVar(&opts.APIKey, prefix+".api-key", opts.APIKey, "Provider API key (for OpenAI)")
	fs.StringVar(&opts.Model, prefix+".model", opts.Model, "Model name")
	fs.DurationVar(&opts.Timeout, prefix+".timeout", opts.Timeout, "Request timeout")
	fs.IntVar(&opts.MaxRetries, prefix+".max-retries", opts.MaxRetries, "Max retries per request")
}

func (o *Options) addDocChatFlags(fs *pflag.FlagSet) {
	fs.IntVar(&o.DocChat.TopK, "docchat.top-k", o.DocChat.TopK, "Number of snippets from retrieval")
	fs.IntVar(&o.DocChat.HistoryLimit, "docchat.history-limit", o.DocChat.HistoryLimit, "Max transcript messages replayed per turn")
	fs.IntVar(&o.DocChat.Workers, "docchat.workers", o.DocChat.Workers, "Tool execution pool size")
}

// Validate validates the options.
func (o *Options) Validate() error {
	if err := o.Log.Validate(); err != nil {
		return err
	}
	if o.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if o.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if err := o.validateProvider(o.Chat, "chat", true); err != nil {
		return err
	}
	// Embedding is optional: an unconfigured provider pins ranking to
	// the lexical path.
	if o.Embedding.Provider != "" && o.Embedding.APIKey != "" {
		if err := o.validateProvider(o.Embedding, "embedding", false); err != nil {
			return err
		}
	}
	if o.DocChat.TopK <= 0 {
		return fmt.Errorf("docchat.top-k must be positive")
	}
	if o.DocChat.Workers <= 0 {
		return fmt.Errorf("docchat.workers must be positive")
	}
	return nil
}

func (o *Options) validateProvider(opts *LLMProviderOptions, prefix string, required bool) error {
	if opts.Provider == "" {
		if !required {
			return nil
		}
		return fmt.Errorf("%s.provider is required", prefix)
	}
	if opts.BaseURL == "" {
		return fmt.Errorf("%s.base-url is required", prefix)
	}
	if opts.Model == "" {
		return fmt.Errorf("%s.model is required", prefix)
	}
	if opts.Provider == "openai" && required && opts.APIKey == "" {
		return fmt.Errorf("%s.api-key is required for openai provider", prefix)
	}
	if opts.Timeout <= 0 {
		return fmt.Errorf("%s.timeout must be positive", prefix)
	}
	return nil
}

// Complete completes the options.
func (o *Options) Complete() error {
	return nil
}
