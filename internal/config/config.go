// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// ErrTemplateWritten signals that no config file existed, a template was
// written in its place, and the process should exit so the user can fill
// it in.
var ErrTemplateWritten = errors.New("config template written, edit it and restart")

type BotConfig struct {
	// Token empty disables the Telegram transport; outbound messages are
	// logged instead. Useful for local runs against the admin API only.
	Token    string  `yaml:"token"`
	OwnerIDs []int64 `yaml:"owner_ids"`
	Workers  int     `yaml:"workers"` // polling workers
}

type LogConfig struct {
	Level  string `yaml:"level"`  // trace|debug|info|warn|error
	Format string `yaml:"format"` // json|console
}

type AIConfig struct {
	WorkersAccountID string `yaml:"workers_account_id"`
	WorkersAPIKey    string `yaml:"workers_api_key"`
	WorkersBaseURL   string `yaml:"workers_base_url"`

	OpenAIKey     string `yaml:"openai_key"`
	OpenAIBaseURL string `yaml:"openai_base_url"`

	GeminiKey string `yaml:"gemini_key"`
	GeminiURL string `yaml:"gemini_url"`

	TextModel       string `yaml:"text_model"`
	ImageModel      string `yaml:"image_model"`
	TranscribeModel string `yaml:"transcribe_model"`

	// ModelProviders pins specific models to a provider ("workers" |
	// "openai" | "gemini") when the prefix heuristics are not enough.
	ModelProviders map[string]string `yaml:"model_providers"`
}

type ChatConfig struct {
	DefaultPrompt string   `yaml:"default_prompt"`
	MemoryLimit   int      `yaml:"memory_limit"` // retained user/assistant pairs per chat
	PromptsPath   string   `yaml:"prompts_path"`
	Subscriptions []string `yaml:"subscriptions"`
}

type AdminConfig struct {
	Port          int    `yaml:"port"`
	APIKey        string `yaml:"api_key"`
	SessionSecret string `yaml:"session_secret"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type Config struct {
	Bot      BotConfig      `yaml:"bot"`
	Log      LogConfig      `yaml:"log"`
	AI       AIConfig       `yaml:"ai"`
	Chat     ChatConfig     `yaml:"chat"`
	Admin    AdminConfig    `yaml:"admin"`
	Redis    RedisConfig    `yaml:"redis"`
	Database DatabaseConfig `yaml:"database"`
}

const template = `bot:
  token: ""            # Telegram bot token from @BotFather; empty runs without Telegram
  owner_ids: []        # Telegram user IDs allowed to run privileged commands
  workers: 8

log:
  level: info
  format: json

ai:
  workers_account_id: ""   # Cloudflare Workers AI account
  workers_api_key: ""
  # openai_key: ""
  # gemini_key: ""
  text_model: "@cf/meta/llama-3.1-8b-instruct"
  image_model: "@cf/stabilityai/stable-diffusion-xl-base-1.0"
  transcribe_model: "@cf/openai/whisper"

chat:
  default_prompt: "You are a creative storyteller. Keep replies vivid and short."
  memory_limit: 5
  prompts_path: prompts.json
  subscriptions: []

admin:
  port: 0              # >0 enables the admin HTTP server
  api_key: ""
  session_secret: ""

redis:
  url: ""              # optional, enables per-chat rate limiting

database:
  url: ""              # optional, enables the turn archive
`

// Load reads and validates the configuration document. A missing file is
// bootstrapped from the template and reported as ErrTemplateWritten; a
// malformed or incomplete document fails with every violation listed, so a
// bad reload can never partially apply.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if werr := os.WriteFile(path, []byte(template), 0o600); werr != nil {
				return nil, fmt.Errorf("write config template: %w", werr)
			}
			return nil, ErrTemplateWritten
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Bot.Workers <= 0 {
		c.Bot.Workers = 8
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Chat.MemoryLimit <= 0 {
		c.Chat.MemoryLimit = 5
	}
	if c.Chat.PromptsPath == "" {
		c.Chat.PromptsPath = "prompts.json"
	}
	if c.AI.WorkersBaseURL == "" {
		c.AI.WorkersBaseURL = "https://api.cloudflare.com/client/v4"
	}
}

// validate collects every violation instead of stopping at the first, so a
// single edit round trip fixes the whole file.
func (c *Config) validate() error {
	var problems []string
	if strings.TrimSpace(c.Bot.Token) != "" && len(c.Bot.OwnerIDs) == 0 {
		problems = append(problems, "bot.owner_ids must list at least one user when bot.token is set")
	}
	hasWorkers := c.AI.WorkersAccountID != "" && c.AI.WorkersAPIKey != ""
	if !hasWorkers && c.AI.OpenAIKey == "" && c.AI.GeminiKey == "" {
		problems = append(problems, "ai: configure workers_account_id+workers_api_key, openai_key or gemini_key")
	}
	if c.AI.TextModel == "" {
		problems = append(problems, "ai.text_model is required")
	}
	if c.AI.ImageModel == "" {
		problems = append(problems, "ai.image_model is required")
	}
	if strings.TrimSpace(c.Chat.DefaultPrompt) == "" {
		problems = append(problems, "chat.default_prompt is required")
	}
	if c.Admin.Port > 0 && c.Admin.APIKey == "" {
		problems = append(problems, "admin.api_key is required when admin.port is set")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Manager owns the live configuration: concurrent reads, atomic swap on
// reload, and write-back of the subscription list.
type Manager struct {
	mu   sync.RWMutex
	path string
	cur  *Config
}

func NewManager(path string, cfg *Config) *Manager {
	return &Manager{path: path, cur: cfg}
}

// Current returns the active config snapshot. Callers must treat it as
// read-only; mutation goes through Reload or SaveSubscriptions.
func (m *Manager) Current() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cur
}

// Reload re-reads and revalidates the document. On any failure the previous
// config stays active and is returned alongside the error.
func (m *Manager) Reload() (*Config, error) {
	next, err := Load(m.path)
	if err != nil {
		return m.Current(), fmt.Errorf("reload: %w", err)
	}
	m.mu.Lock()
	m.cur = next
	m.mu.Unlock()
	return next, nil
}

// SaveSubscriptions persists the new subscription set and, only after the
// document is durably written, swaps it into the live config.
func (m *Manager) SaveSubscriptions(chatIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := *m.cur
	next.Chat.Subscriptions = append([]string(nil), chatIDs...)

	b, err := yaml.Marshal(&next)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(m.path, b, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	m.cur = &next
	return nil
}
