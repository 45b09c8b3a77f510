package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config 是 aeronews 的顶层配置结构。
type Config struct {
	DataDir     string            `yaml:"data_dir"`
	Feeds       []FeedConfig      `yaml:"feeds"`
	Digest      DigestConfig      `yaml:"digest"`
	Mail        MailConfig        `yaml:"mail"`
	Subscribers SubscribersConfig `yaml:"subscribers"`
	Archive     ArchiveConfig     `yaml:"archive"`
	LLM         LLMConfig         `yaml:"llm"`
	Server      ServerConfig      `yaml:"server"`
	Log         LogConfig         `yaml:"log"`
}

// FeedConfig 单个 RSS 订阅源。
type FeedConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// DigestConfig 摘要邮件配置。
type DigestConfig struct {
	Subject      string `yaml:"subject"`
	Title        string `yaml:"title"`
	LimitPerFeed int    `yaml:"limit_per_feed"`
	// FetchTimeout 单个订阅源的抓取超时（秒）。
	FetchTimeout int `yaml:"fetch_timeout"`
	// Intro 可选的 Markdown 导语，HTML 正文中渲染，纯文本正文原样保留。
	Intro string `yaml:"intro"`
	// PublicURL 退订链接的站点前缀，为空则邮件中不带退订链接。
	PublicURL string `yaml:"public_url"`
}

// MailConfig SMTP 发信配置。
type MailConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	// To 没有活跃订阅者时的兜底收件人。
	To string `yaml:"to"`
	// Timeout 连接与会话超时（秒）。
	Timeout int `yaml:"timeout"`
}

// SubscribersConfig 订阅者存储配置。
type SubscribersConfig struct {
	File string `yaml:"file"`
	// AllowResubscribe 为 true 时已退订的邮箱可以重新订阅，默认拒绝。
	AllowResubscribe bool `yaml:"allow_resubscribe"`
}

// ArchiveConfig 投递历史数据库配置。
type ArchiveConfig struct {
	Path string `yaml:"path"`
}

// LLMConfig AI 导语配置，APIKey 为空时不启用。
type LLMConfig struct {
	APIURL      string  `yaml:"api_url"`
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float32 `yaml:"temperature"`
	// Timeout 单次请求超时（秒）。
	Timeout int `yaml:"timeout"`
	// Fallbacks 主模型不可用（限流、额度耗尽、超时）时依次尝试的备用模型。
	Fallbacks []LLMModelConfig `yaml:"fallbacks"`
}

// LLMModelConfig 备用模型，api_url 和 api_key 留空时沿用主模型的设置。
type LLMModelConfig struct {
	Name   string `yaml:"name"`
	APIURL string `yaml:"api_url"`
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// Enabled 是否配置了 API Key。
func (c LLMConfig) Enabled() bool {
	return c.APIKey != ""
}

// ServerConfig 订阅表单 HTTP 服务配置。
type ServerConfig struct {
	Addr  string `yaml:"addr"`
	Debug bool   `yaml:"debug"`
}

// LogConfig 日志配置。
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
}

// DefaultFeeds 是航空航天与防务新闻的默认订阅源。
var DefaultFeeds = []FeedConfig{
	{Name: "Defense News", URL: "https://www.defensenews.com/rss/"},
	{Name: "FlightGlobal", URL: "https://www.flightglobal.com/rss"},
	{Name: "Breaking Defense", URL: "https://breakingdefense.com/feed/"},
	{Name: "NASA Breaking News", URL: "https://www.nasa.gov/rss/dyn/breaking_news.rss"},
}

// Load 读取 YAML 配置文件并返回 Config。
// 支持 ${VAR_NAME} 形式的环境变量展开。
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件 %s 失败: %w", path, err)
	}

	// 展开环境变量，如 ${GMAIL_APP_PASSWORD}
	expanded := os.Expand(string(data), func(key string) string {
		return os.Getenv(key)
	})

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件 %s 失败: %w", path, err)
	}

	setDefaults(cfg)
	return cfg, nil
}

// LoadOrDefault 配置文件不存在时返回纯默认配置，便于不写配置直接使用环境变量。
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := &Config{
			Mail: MailConfig{
				Username: os.Getenv("GMAIL_EMAIL"),
				Password: os.Getenv("GMAIL_APP_PASSWORD"),
				To:       os.Getenv("TO_EMAIL"),
			},
			LLM: LLMConfig{
				APIKey: os.Getenv("OPENAI_API_KEY"),
			},
		}
		setDefaults(cfg)
		return cfg, nil
	}
	return Load(path)
}

// setDefaults 为未设置的配置项填充默认值。
func setDefaults(cfg *Config) {
	if cfg.DataDir == "" {
		home, _ := os.UserHomeDir()
		if home != "" {
			cfg.DataDir = filepath.Join(home, ".aeronews")
		} else {
			cfg.DataDir = "./.aeronews-data"
		}
	}
	cfg.DataDir = expandHome(cfg.DataDir)

	if len(cfg.Feeds) == 0 {
		cfg.Feeds = append([]FeedConfig(nil), DefaultFeeds...)
	}
	for i := range cfg.Feeds {
		if cfg.Feeds[i].Name == "" {
			cfg.Feeds[i].Name = cfg.Feeds[i].URL
		}
	}

	if cfg.Digest.Subject == "" {
		cfg.Digest.Subject = "Latest Aerospace & Defense News"
	}
	if cfg.Digest.Title == "" {
		cfg.Digest.Title = "Aerospace & Defense News"
	}
	if cfg.Digest.LimitPerFeed == 0 {
		cfg.Digest.LimitPerFeed = 5
	}
	if cfg.Digest.FetchTimeout == 0 {
		cfg.Digest.FetchTimeout = 15
	}
	cfg.Digest.PublicURL = strings.TrimRight(strings.TrimSpace(cfg.Digest.PublicURL), "/")

	if cfg.Mail.Host == "" {
		cfg.Mail.Host = "smtp.gmail.com"
	}
	if cfg.Mail.Port == 0 {
		cfg.Mail.Port = 587
	}
	if cfg.Mail.Timeout == 0 {
		cfg.Mail.Timeout = 30
	}
	// 展开后的凭据两端常带空白
	cfg.Mail.Username = strings.TrimSpace(cfg.Mail.Username)
	cfg.Mail.Password = strings.TrimSpace(cfg.Mail.Password)
	cfg.Mail.To = strings.TrimSpace(cfg.Mail.To)
	if cfg.Mail.From == "" {
		cfg.Mail.From = cfg.Mail.Username
	}

	if cfg.Subscribers.File == "" {
		cfg.Subscribers.File = filepath.Join(cfg.DataDir, "subscribers.json")
	}
	cfg.Subscribers.File = expandHome(cfg.Subscribers.File)

	if cfg.Archive.Path == "" {
		cfg.Archive.Path = filepath.Join(cfg.DataDir, "archive.db")
	}
	cfg.Archive.Path = expandHome(cfg.Archive.Path)

	cfg.LLM.APIKey = strings.TrimSpace(cfg.LLM.APIKey)
	if cfg.LLM.APIURL == "" {
		cfg.LLM.APIURL = "https://api.openai.com/v1"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gpt-4o-mini"
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 400
	}
	if cfg.LLM.Temperature == 0 {
		cfg.LLM.Temperature = 0.7
	}
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = 60
	}
	for i := range cfg.LLM.Fallbacks {
		fb := &cfg.LLM.Fallbacks[i]
		fb.APIKey = strings.TrimSpace(fb.APIKey)
		if fb.APIURL == "" {
			fb.APIURL = cfg.LLM.APIURL
		}
		if fb.APIKey == "" {
			fb.APIKey = cfg.LLM.APIKey
		}
		if fb.Name == "" {
			fb.Name = fb.Model
		}
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":5000"
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	cfg.Log.File = expandHome(cfg.Log.File)
}

// expandHome 展开路径开头的 ~/，Go 不会自动处理。
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, _ := os.UserHomeDir()
	if home == "" {
		return path
	}
	return filepath.Join(home, path[2:])
}
