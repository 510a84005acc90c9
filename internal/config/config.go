package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// ErrInvalid 表示配置缺失或非法，启动阶段即失败
var ErrInvalid = errors.New("invalid config")

const (
	ProviderGmail = "gmail"
	ProviderIMAP  = "imap"
	ProviderMCP   = "mcp"
)

const (
	BackendSheets   = "sheets"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendCSV      = "csv"
	BackendMemory   = "memory"
)

type Config struct {
	Mail       MailConfig     `yaml:"mail" toml:"mail"`
	Google     GoogleConfig   `yaml:"google" toml:"google"`
	Classify   ClassifyConfig `yaml:"classify" toml:"classify"`
	Query      QueryConfig    `yaml:"query" toml:"query"`
	Ledger     LedgerConfig   `yaml:"ledger" toml:"ledger"`
	Log        LogConfig      `yaml:"log" toml:"log"`
	Metrics    MetricsConfig  `yaml:"metrics" toml:"metrics"`
	Notify     NotifyConfig   `yaml:"notify" toml:"notify"`
	Server     ServerConfig   `yaml:"server" toml:"server"`
	Timezone   string         `yaml:"timezone" toml:"timezone"`
	RunTimeout time.Duration  `yaml:"run_timeout" toml:"run_timeout"`
}

type MailConfig struct {
	Provider     string     `yaml:"provider" toml:"provider"`
	Email        string     `yaml:"email" toml:"email"`
	LookbackDays int        `yaml:"lookback_days" toml:"lookback_days"`
	Since        string     `yaml:"since" toml:"since"` // YYYY-MM-DD or RFC3339
	MaxResults   int        `yaml:"max_results" toml:"max_results"`
	IMAP         IMAPConfig `yaml:"imap" toml:"imap"`
	MCP          MCPConfig  `yaml:"mcp" toml:"mcp"`
}

type IMAPConfig struct {
	Host     string   `yaml:"host" toml:"host"`
	UseTLS   bool     `yaml:"use_tls" toml:"use_tls"`
	Username string   `yaml:"username" toml:"username"`
	Password string   `yaml:"password" toml:"password"`
	Auth     string   `yaml:"auth" toml:"auth"` // password | oauthbearer
	Folders  []string `yaml:"folders" toml:"folders"`
}

type MCPConfig struct {
	Endpoint string `yaml:"endpoint" toml:"endpoint"`
	APIKey   string `yaml:"api_key" toml:"api_key"`
}

type GoogleConfig struct {
	CredentialsFile string `yaml:"credentials_file" toml:"credentials_file"`
	TokenFile       string `yaml:"token_file" toml:"token_file"`
	RedirectURL     string `yaml:"redirect_url" toml:"redirect_url"`
}

type ClassifyConfig struct {
	ConfirmationKeywords []string `yaml:"confirmation_keywords" toml:"confirmation_keywords"`
	ExclusionKeywords    []string `yaml:"exclusion_keywords" toml:"exclusion_keywords"`
}

type QueryConfig struct {
	StrategyCount   int `yaml:"strategy_count" toml:"strategy_count"` // 0 表示全部
	PhraseGroupSize int `yaml:"phrase_group_size" toml:"phrase_group_size"`
}

type LedgerConfig struct {
	Backend           string      `yaml:"backend" toml:"backend"`
	SheetID           string      `yaml:"sheet_id" toml:"sheet_id"`
	ApplicationsTable string      `yaml:"applications_table" toml:"applications_table"`
	ProcessedTable    string      `yaml:"processed_table" toml:"processed_table"`
	SummaryTable      string      `yaml:"summary_table" toml:"summary_table"`
	Path              string      `yaml:"path" toml:"path"`
	DSN               string      `yaml:"dsn" toml:"dsn"`
	Redis             RedisConfig `yaml:"redis" toml:"redis"`
	BatchSize         int         `yaml:"batch_size" toml:"batch_size"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" toml:"addr"`
	Password string `yaml:"password" toml:"password"`
	DB       int    `yaml:"db" toml:"db"`
	Prefix   string `yaml:"prefix" toml:"prefix"`
}

type LogConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"` // json | console
}

type MetricsConfig struct {
	PushgatewayURL string `yaml:"pushgateway_url" toml:"pushgateway_url"`
	Job            string `yaml:"job" toml:"job"`
}

type NotifyConfig struct {
	AMQPURL  string `yaml:"amqp_url" toml:"amqp_url"`
	Exchange string `yaml:"exchange" toml:"exchange"`
}

type ServerConfig struct {
	Listen string `yaml:"listen" toml:"listen"`
}

// Load 加载配置文件并替换环境变量
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(filepath.Ext(path), b)
}

// LoadMail 同 Load，但只校验邮件部分。供只读邮箱的 mcp-server 使用
func LoadMail(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return ParseMail(filepath.Ext(path), b)
}

// Parse 按扩展名解析配置内容，填充默认值并校验
func Parse(ext string, b []byte) (*Config, error) {
	cfg, err := decode(ext, b)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func ParseMail(ext string, b []byte) (*Config, error) {
	cfg, err := decode(ext, b)
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateMail(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(ext string, b []byte) (*Config, error) {
	// 替换环境变量 ${VAR_NAME} 格式
	content := expandEnvVars(string(b))

	var cfg Config
	switch strings.ToLower(ext) {
	case ".toml":
		if _, err := toml.Decode(content, &cfg); err != nil {
			return nil, fmt.Errorf("%w: parse toml: %v", ErrInvalid, err)
		}
	default:
		if err := yaml.Unmarshal([]byte(content), &cfg); err != nil {
			return nil, fmt.Errorf("%w: parse yaml: %v", ErrInvalid, err)
		}
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Mail.Provider == "" {
		switch {
		case c.Mail.MCP.Endpoint != "":
			c.Mail.Provider = ProviderMCP
		case inferEmailProvider(c.Mail.Email) == "gmail":
			c.Mail.Provider = ProviderGmail
		default:
			c.Mail.Provider = ProviderIMAP
		}
	}
	c.Mail.Provider = strings.ToLower(c.Mail.Provider)

	if c.Mail.Provider == ProviderIMAP {
		// 自动推断IMAP配置
		if c.Mail.IMAP.Host == "" {
			c.Mail.IMAP.Host = inferIMAPHost(c.Mail.Email)
			if c.Mail.IMAP.Host != "" {
				c.Mail.IMAP.UseTLS = true
			}
		}
		if c.Mail.IMAP.Username == "" {
			c.Mail.IMAP.Username = c.Mail.Email
		}
		if c.Mail.IMAP.Auth == "" {
			c.Mail.IMAP.Auth = "password"
		}
		if c.Mail.IMAP.Password == "" {
			c.Mail.IMAP.Password = os.Getenv("EMAIL_PASSWORD")
		}
		if c.Mail.IMAP.Password == "" {
			c.Mail.IMAP.Password = os.Getenv("EMAIL_APP_PASSWORD")
		}
	}

	// 默认文件夹配置根据邮箱提供商调整
	if len(c.Mail.IMAP.Folders) == 0 {
		c.Mail.IMAP.Folders = getDefaultFolders(inferEmailProvider(c.Mail.Email))
	}
	if c.Mail.LookbackDays <= 0 {
		c.Mail.LookbackDays = 30
	}
	if c.Mail.MaxResults <= 0 {
		c.Mail.MaxResults = 500
	}

	if c.Google.CredentialsFile == "" {
		c.Google.CredentialsFile = "credentials.json"
	}
	if c.Google.TokenFile == "" {
		c.Google.TokenFile = "token.json"
	}
	if c.Google.RedirectURL == "" {
		c.Google.RedirectURL = "http://localhost:8080/oauth/callback"
	}

	if len(c.Classify.ConfirmationKeywords) == 0 {
		c.Classify.ConfirmationKeywords = DefaultConfirmationKeywords()
	}
	if len(c.Classify.ExclusionKeywords) == 0 {
		c.Classify.ExclusionKeywords = DefaultExclusionKeywords()
	}
	c.Classify.ConfirmationKeywords = normalizeKeywords(c.Classify.ConfirmationKeywords)
	c.Classify.ExclusionKeywords = normalizeKeywords(c.Classify.ExclusionKeywords)

	if c.Query.PhraseGroupSize <= 0 {
		c.Query.PhraseGroupSize = 5
	}

	if c.Ledger.Backend == "" {
		c.Ledger.Backend = BackendSheets
	}
	c.Ledger.Backend = strings.ToLower(c.Ledger.Backend)
	if c.Ledger.ApplicationsTable == "" {
		c.Ledger.ApplicationsTable = "Applications"
	}
	if c.Ledger.ProcessedTable == "" {
		c.Ledger.ProcessedTable = "ProcessedMessageIds"
	}
	if c.Ledger.SummaryTable == "" {
		c.Ledger.SummaryTable = "CompanySummary"
	}
	if c.Ledger.Redis.Prefix == "" {
		c.Ledger.Redis.Prefix = "appledger"
	}
	if c.Ledger.BatchSize <= 0 {
		c.Ledger.BatchSize = 50
	}

	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = 10 * time.Minute
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Metrics.Job == "" {
		c.Metrics.Job = "appledger"
	}
	if c.Notify.Exchange == "" {
		c.Notify.Exchange = "appledger"
	}
	if c.Server.Listen == "" {
		c.Server.Listen = ":8080"
	}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// ValidateMail 只校验 mail 段
func (c *Config) ValidateMail() error {
	switch c.Mail.Provider {
	case ProviderGmail:
	case ProviderIMAP:
		if c.Mail.Email == "" && c.Mail.IMAP.Username == "" {
			return invalid("mail.email is required")
		}
		if c.Mail.IMAP.Host == "" {
			return invalid("mail.imap.host is required for %s", c.Mail.Email)
		}
		switch c.Mail.IMAP.Auth {
		case "password", "oauthbearer":
		default:
			return invalid("unknown mail.imap.auth %q", c.Mail.IMAP.Auth)
		}
	case ProviderMCP:
		if c.Mail.MCP.Endpoint == "" {
			return invalid("mail.mcp.endpoint is required")
		}
	default:
		return invalid("unknown mail.provider %q", c.Mail.Provider)
	}
	if c.Mail.Since != "" && ParseDateLoose(c.Mail.Since, time.Time{}).IsZero() {
		return invalid("mail.since %q is not a date", c.Mail.Since)
	}
	return nil
}

// Validate 校验必填项，错误均包装 ErrInvalid
func (c *Config) Validate() error {
	if err := c.ValidateMail(); err != nil {
		return err
	}

	switch c.Ledger.Backend {
	case BackendSheets:
		if c.Ledger.SheetID == "" {
			return invalid("ledger.sheet_id is required")
		}
	case BackendSQLite, BackendCSV:
		if c.Ledger.Path == "" {
			return invalid("ledger.path is required for %s backend", c.Ledger.Backend)
		}
	case BackendPostgres:
		if c.Ledger.DSN == "" {
			return invalid("ledger.dsn is required")
		}
	case BackendRedis:
		if c.Ledger.Redis.Addr == "" {
			return invalid("ledger.redis.addr is required")
		}
	case BackendMemory:
	default:
		return invalid("unknown ledger.backend %q", c.Ledger.Backend)
	}

	if len(c.Classify.ConfirmationKeywords) == 0 {
		return invalid("classify.confirmation_keywords is empty")
	}
	if c.Query.StrategyCount < 0 {
		return invalid("query.strategy_count must not be negative")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return invalid("timezone %q: %v", c.Timezone, err)
	}
	return nil
}

// Location 返回记录申请日期所用的时区
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// expandEnvVars 替换 ${VAR_NAME} 格式的环境变量
func expandEnvVars(content string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(content, func(match string) string {
		varName := match[2 : len(match)-1] // 去掉 ${ 和 }
		if value := os.Getenv(varName); value != "" {
			return value
		}
		return match // 如果环境变量不存在，保持原样
	})
}

// normalizeKeywords 小写、压缩空白并去重
func normalizeKeywords(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, k := range in {
		k = strings.Join(strings.Fields(strings.ToLower(k)), " ")
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}

// inferEmailProvider 根据邮箱地址推断提供商
func inferEmailProvider(email string) string {
	email = strings.ToLower(email)

	if strings.Contains(email, "@gmail.com") || strings.Contains(email, "@googlemail.com") {
		return "gmail"
	}
	if strings.Contains(email, "@outlook.com") || strings.Contains(email, "@hotmail.com") || strings.Contains(email, "@live.com") {
		return "outlook"
	}
	if strings.Contains(email, "@yahoo.com") || strings.Contains(email, "@yahoo.co.") {
		return "yahoo"
	}
	if strings.Contains(email, "@qq.com") || strings.Contains(email, "@163.com") || strings.Contains(email, "@126.com") {
		return "chinese"
	}

	return "custom"
}

// inferIMAPHost 根据邮箱地址推断IMAP主机
func inferIMAPHost(email string) string {
	email = strings.ToLower(email)

	switch inferEmailProvider(email) {
	case "gmail":
		return "imap.gmail.com:993"
	case "outlook":
		return "outlook.office365.com:993"
	case "yahoo":
		return "imap.mail.yahoo.com:993"
	}
	switch {
	case strings.HasSuffix(email, "@qq.com"):
		return "imap.qq.com:993"
	case strings.HasSuffix(email, "@163.com"):
		return "imap.163.com:993"
	case strings.HasSuffix(email, "@126.com"):
		return "imap.126.com:993"
	}
	return "" // 需要手动配置
}

// getDefaultFolders 根据邮箱提供商返回默认文件夹
func getDefaultFolders(provider string) []string {
	switch provider {
	case "gmail":
		return []string{"[Gmail]/All Mail"}
	case "outlook":
		return []string{"INBOX", "Archive"}
	default:
		return []string{"INBOX"}
	}
}

func ParseDateLoose(s string, def time.Time) time.Time {
	if s == "" {
		return def
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return def
}
