package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/xxxsen/common/logger"

	"github.com/xxxsen/ragchat/internal/model"
)

type Config struct {
	Port        int               `json:"port"`
	AdminSecret string            `json:"admin_secret"`
	LogConfig   logger.LogConfig  `json:"log_config"`
	Database    DatabaseConfig    `json:"database"`
	VectorStore VectorStoreConfig `json:"vector_store"`
	Embedders   []EmbedderConfig  `json:"embedders"`
	EmbedCache  EmbedCacheConfig  `json:"embed_cache"`
	Models      []ModelConfig     `json:"models"`
	OpenRouter  OpenRouterConfig  `json:"openrouter"`
	PromptStore PromptStoreConfig `json:"prompt_store"`
	FileStore   FileStoreConfig   `json:"file_store"`
	Chunk       ChunkConfig       `json:"chunk"`
	Search      SearchConfig      `json:"search"`
	HTTP        HTTPConfig        `json:"http"`
}

type HTTPConfig struct {
	CORSOrigins     []string `json:"cors_origins"`
	MaxUploadMB     int64    `json:"max_upload_mb"`
	ChatRateLimitMS int64    `json:"chat_rate_limit_ms"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
	SSLMode  string `json:"sslmode"`
}

func (c DatabaseConfig) Enabled() bool {
	return c.DSN != "" || c.Host != ""
}

type VectorStoreConfig struct {
	Type       string      `json:"type"`
	Collection string      `json:"collection"`
	Dimension  int         `json:"dimension"`
	Metric     string      `json:"metric"`
	Data       interface{} `json:"data"`
}

type EmbedderConfig struct {
	Name      string                 `json:"name"`
	Provider  string                 `json:"provider"`
	Model     string                 `json:"model"`
	APIKeyEnv string                 `json:"api_key_env"`
	Data      map[string]interface{} `json:"data"`
}

// ProviderArgs returns Data with the api key resolved from APIKeyEnv.
func (c EmbedderConfig) ProviderArgs() map[string]interface{} {
	args := make(map[string]interface{}, len(c.Data)+1)
	for k, v := range c.Data {
		args[k] = v
	}
	if c.APIKeyEnv != "" {
		if key := strings.TrimSpace(os.Getenv(c.APIKeyEnv)); key != "" {
			args["api_key"] = key
		}
	}
	return args
}

type EmbedCacheConfig struct {
	LRUSize       int    `json:"lru_size"`
	LRUTTLSeconds int64  `json:"lru_ttl_seconds"`
	UseDB         bool   `json:"use_db"`
	RetentionDays int    `json:"retention_days"`
	CleanupCron   string `json:"cleanup_cron"`
}

type ModelConfig struct {
	ID             string `json:"id"`
	Provider       string `json:"provider"`
	Label          string `json:"label"`
	APIKeyEnv      string `json:"api_key_env"`
	BaseURL        string `json:"base_url"`
	BaseURLEnv     string `json:"base_url_env"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

type OpenRouterConfig struct {
	HTTPReferer string `json:"http_referer"`
	XTitle      string `json:"x_title"`
}

type PromptStoreConfig struct {
	Type string `json:"type"`
	Path string `json:"path"`
}

type FileStoreConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type ChunkConfig struct {
	Size    int    `json:"size"`
	Overlap *int   `json:"overlap"`
	AppID   string `json:"app_id"`
}

func (c ChunkConfig) OverlapWords() int {
	if c.Overlap == nil {
		return 50
	}
	return max(0, *c.Overlap)
}

type SearchConfig struct {
	Limit       int     `json:"limit"`
	MaxDistance float64 `json:"max_distance"`
}

// DefaultModels is the model table used when the config lists none.
func DefaultModels() []ModelConfig {
	return []ModelConfig{
		{ID: "google/gemini-2.5-flash", Provider: "genai", Label: "gemini-2.5-flash", APIKeyEnv: "GEMINI_API_KEY", TimeoutSeconds: 60},
		{ID: "google/gemini-2.5-flash-lite", Provider: "genai", Label: "gemini-2.5-flash-lite", APIKeyEnv: "GEMINI_API_KEY", TimeoutSeconds: 30},
		{ID: "google/gemini-2.5-pro", Provider: "genai", Label: "gemini-2.5-pro", APIKeyEnv: "GEMINI_API_KEY", TimeoutSeconds: 120},
		{ID: "chimege/chat-egune-v0.5", Provider: "chimege", Label: "egune", APIKeyEnv: "EGUNE_API_KEY", BaseURLEnv: "EGUNE_BASE_URL", TimeoutSeconds: 90},
		{ID: "openai/gpt-4o-latest", Provider: "openai", Label: "chatgpt-4o-latest", APIKeyEnv: "OPENAI_API_KEY", TimeoutSeconds: 120},
		{ID: "openai/o1-mini", Provider: "openai", Label: "o1-mini", APIKeyEnv: "OPENAI_API_KEY", TimeoutSeconds: 120},
		{ID: "openai/o3-mini", Provider: "openai", Label: "o3-mini", APIKeyEnv: "OPENAI_API_KEY", TimeoutSeconds: 120},
	}
}

// Descriptors resolves the model table against the environment.
func (c *Config) Descriptors() []model.ModelDescriptor {
	out := make([]model.ModelDescriptor, 0, len(c.Models))
	for _, m := range c.Models {
		baseURL := m.BaseURL
		if m.BaseURLEnv != "" {
			if v := strings.TrimSpace(os.Getenv(m.BaseURLEnv)); v != "" {
				baseURL = v
			}
		}
		var apiKey string
		if m.APIKeyEnv != "" {
			apiKey = strings.TrimSpace(os.Getenv(m.APIKeyEnv))
		}
		out = append(out, model.ModelDescriptor{
			ID:            m.ID,
			ProviderClass: m.Provider,
			Label:         m.Label,
			APIKey:        apiKey,
			BaseURL:       baseURL,
			Timeout:       time.Duration(m.TimeoutSeconds) * time.Second,
		})
	}
	return out
}

// LoadEnv reads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is not
// an error.
func LoadEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() error {
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.LogConfig.Level == "" {
		c.LogConfig.Level = "info"
	}
	if c.VectorStore.Type == "" {
		c.VectorStore.Type = "memory"
	}
	if c.VectorStore.Collection == "" {
		c.VectorStore.Collection = "Documents"
	}
	if c.VectorStore.Dimension <= 0 {
		c.VectorStore.Dimension = 1024
	}
	switch strings.ToLower(c.VectorStore.Metric) {
	case "":
		c.VectorStore.Metric = "l2"
	case "l2", "cosine":
		c.VectorStore.Metric = strings.ToLower(c.VectorStore.Metric)
	default:
		return fmt.Errorf("vector_store.metric must be l2 or cosine")
	}
	if len(c.Embedders) == 0 {
		return fmt.Errorf("at least one embedder is required")
	}
	for i, e := range c.Embedders {
		if e.Provider == "" || e.Model == "" {
			return fmt.Errorf("embedders[%d]: provider and model are required", i)
		}
		if e.Name == "" {
			c.Embedders[i].Name = e.Provider + ":" + e.Model
		}
	}
	if c.EmbedCache.UseDB && !c.Database.Enabled() {
		return fmt.Errorf("embed_cache.use_db requires database")
	}
	if c.EmbedCache.RetentionDays <= 0 {
		c.EmbedCache.RetentionDays = 30
	}
	if c.EmbedCache.CleanupCron == "" {
		c.EmbedCache.CleanupCron = "0 3 * * *"
	}
	if len(c.Models) == 0 {
		c.Models = DefaultModels()
	}
	seen := make(map[string]bool, len(c.Models))
	for i, m := range c.Models {
		if m.ID == "" || m.Provider == "" {
			return fmt.Errorf("models[%d]: id and provider are required", i)
		}
		if seen[m.ID] {
			return fmt.Errorf("models[%d]: duplicate id %s", i, m.ID)
		}
		seen[m.ID] = true
		if m.Label == "" {
			if _, label, ok := strings.Cut(m.ID, "/"); ok {
				c.Models[i].Label = label
			}
		}
		if m.TimeoutSeconds <= 0 {
			c.Models[i].TimeoutSeconds = 60
		}
	}
	switch c.PromptStore.Type {
	case "":
		c.PromptStore.Type = "file"
		fallthrough
	case "file":
		if c.PromptStore.Path == "" {
			c.PromptStore.Path = "prompts.yml"
		}
	case "db":
		if !c.Database.Enabled() {
			return fmt.Errorf("prompt_store.type db requires database")
		}
	default:
		return fmt.Errorf("prompt_store.type must be file or db")
	}
	if c.FileStore.Type == "" {
		c.FileStore.Type = "local"
	}
	if c.FileStore.Type == "local" && c.FileStore.Data == nil {
		c.FileStore.Data = map[string]interface{}{"dir": "data/documents"}
	}
	if c.Chunk.Size <= 0 {
		c.Chunk.Size = 200
	}
	if c.Chunk.Overlap == nil {
		overlap := 50
		c.Chunk.Overlap = &overlap
	}
	if c.Chunk.AppID == "" {
		c.Chunk.AppID = "egune-test"
	}
	if c.Search.Limit <= 0 {
		c.Search.Limit = 5
	}
	if c.Search.MaxDistance <= 0 {
		c.Search.MaxDistance = 0.25
	}
	if c.HTTP.MaxUploadMB <= 0 {
		c.HTTP.MaxUploadMB = 20
	}
	return nil
}
