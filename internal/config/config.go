package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"DealScanner/internal/classifier"
	"DealScanner/internal/domain"
)

const (
	configPathEnv        = "DEAL_SCANNER_CONFIG"
	databaseDSNEnv       = "DATABASE_DSN"
	telegramTokenEnv     = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv    = "TELEGRAM_CHAT_ID"
	telegramOperatorEnv  = "TELEGRAM_OPERATOR_CHAT_ID"
	crawlAPITokenEnv     = "CRAWL_API_TOKEN"
	logLevelEnv          = "LOG_LEVEL"
	listenAddrEnv        = "LISTEN_ADDR"
	defaultLedgerPath    = "data/delivered.ledger"
	defaultTelegramAPI   = "https://api.telegram.org"
	strategyCrawlAPI     = "crawlapi"
	ledgerBackendPostgre = "postgres"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging       LoggingConfig      `yaml:"logging"`
	HTTP          HTTPConfig         `yaml:"http"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	Fetch         FetchConfig        `yaml:"fetch"`
	Ledger        LedgerConfig       `yaml:"ledger"`
	Database      DatabaseConfig     `yaml:"database"`
	Notifications NotificationConfig `yaml:"notifications"`
	Classifier    ClassifierConfig   `yaml:"classifier"`
	Identities    []IdentityConfig   `yaml:"identities" validate:"dive"`
	Sites         []SiteConfig       `yaml:"sites" validate:"required,min=1,unique=Name,dive"`
}

// LoggingConfig selects slog level and handler.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn warning error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

// HTTPConfig configures the control API; an empty address disables it.
type HTTPConfig struct {
	ListenAddr string `yaml:"listenAddr"`
}

// SchedulerConfig drives the delivery loop.
type SchedulerConfig struct {
	Interval      time.Duration `yaml:"interval" validate:"gt=0"`
	Jitter        time.Duration `yaml:"jitter" validate:"gte=0"`
	ErrorCooldown time.Duration `yaml:"errorCooldown" validate:"gt=0"`
	DispatchDelay time.Duration `yaml:"dispatchDelay" validate:"gte=0"`
	BatchSize     int           `yaml:"batchSize" validate:"gt=0"`
	MinScore      int           `yaml:"minScore" validate:"gte=0"`
	SendStartup   bool          `yaml:"sendStartup"`
	SendSummary   bool          `yaml:"sendSummary"`
}

// FetchConfig bounds the fetching phase and the per-source retry policy.
type FetchConfig struct {
	Timeout           time.Duration `yaml:"timeout" validate:"gt=0"`
	RequestTimeout    time.Duration `yaml:"requestTimeout" validate:"gt=0"`
	RenderTimeout     time.Duration `yaml:"renderTimeout" validate:"gt=0"`
	Concurrency       int           `yaml:"concurrency" validate:"gte=0"`
	MaxAttempts       int           `yaml:"maxAttempts" validate:"gt=0"`
	TransientRetries  int           `yaml:"transientRetries" validate:"gte=0"`
	TransientDelayMin time.Duration `yaml:"transientDelayMin" validate:"gte=0"`
	TransientDelayMax time.Duration `yaml:"transientDelayMax" validate:"gtefield=TransientDelayMin"`
	RequestDelayMin   time.Duration `yaml:"requestDelayMin" validate:"gte=0"`
	RequestDelayMax   time.Duration `yaml:"requestDelayMax" validate:"gtefield=RequestDelayMin"`
	CooldownAfter     int           `yaml:"cooldownAfter" validate:"gte=0"`
	CooldownPeriod    time.Duration `yaml:"cooldownPeriod" validate:"gte=0"`
}

// LedgerConfig selects where delivered ids are persisted.
type LedgerConfig struct {
	Backend         string        `yaml:"backend" validate:"oneof=file postgres memory"`
	Path            string        `yaml:"path" validate:"required_if=Backend file"`
	Retention       time.Duration `yaml:"retention" validate:"gte=0"`
	WriteTimeout    time.Duration `yaml:"writeTimeout" validate:"gte=0"`
	SyncEveryCommit bool          `yaml:"syncEveryCommit"`
}

// DatabaseConfig describes Postgres connection details.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// NotificationConfig encapsulates outbound channels.
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken          string  `yaml:"botToken"`
	ChatID            string  `yaml:"chatId"`
	OperatorChatID    string  `yaml:"operatorChatId"`
	APIBaseURL        string  `yaml:"apiBaseUrl" validate:"omitempty,url"`
	MessagesPerSecond float64 `yaml:"messagesPerSecond" validate:"gte=0"`
}

// Enabled reports whether Telegram delivery is configured.
func (t TelegramConfig) Enabled() bool {
	return t.BotToken != "" && t.ChatID != ""
}

// ClassifierConfig overrides the built-in keyword tables; empty lists keep defaults.
type ClassifierConfig struct {
	ScoreCeiling int             `yaml:"scoreCeiling" validate:"gte=0"`
	Areas        []string        `yaml:"areas"`
	Makes        []MakeConfig    `yaml:"makes" validate:"dive"`
	Keywords     []KeywordConfig `yaml:"keywords" validate:"dive"`
}

// MakeConfig lists title keywords for one make.
type MakeConfig struct {
	Name     string   `yaml:"name" validate:"required"`
	Keywords []string `yaml:"keywords" validate:"required,min=1"`
}

// KeywordConfig is one weighted scoring phrase.
type KeywordConfig struct {
	Phrase string `yaml:"phrase" validate:"required"`
	Weight int    `yaml:"weight" validate:"gt=0"`
}

// IdentityConfig is one egress identity (proxy and/or header fingerprint).
type IdentityConfig struct {
	Name      string            `yaml:"name"`
	ProxyURL  string            `yaml:"proxyUrl" validate:"omitempty,url"`
	UserAgent string            `yaml:"userAgent"`
	Headers   map[string]string `yaml:"headers"`
}

// SiteConfig describes a single site with its fetch strategy.
type SiteConfig struct {
	Name         string            `yaml:"name" validate:"required"`
	Strategy     string            `yaml:"strategy" validate:"oneof=static rendered crawlapi"`
	BaseURL      string            `yaml:"baseUrl" validate:"omitempty,url"`
	Pages        []PageConfig      `yaml:"pages" validate:"required,min=1,dive"`
	Selectors    SelectorConfig    `yaml:"selectors"`
	Limit        int               `yaml:"limit" validate:"gte=0"`
	MinBodyBytes int               `yaml:"minBodyBytes" validate:"gte=0"`
	Identities   []IdentityConfig  `yaml:"identities" validate:"dive"`
	Options      map[string]string `yaml:"options"`
}

// PageConfig is one concrete listing page of a site.
type PageConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url" validate:"required,url"`
}

// SelectorConfig holds CSS selectors for HTML strategies.
type SelectorConfig struct {
	Card        string `yaml:"card"`
	Title       string `yaml:"title"`
	Price       string `yaml:"price"`
	Location    string `yaml:"location"`
	Link        string `yaml:"link"`
	Description string `yaml:"description"`
}

// Load reads YAML configuration from $DEAL_SCANNER_CONFIG (if set) over the
// defaults and applies environment overrides.
func Load() (Config, error) {
	return LoadFile(os.Getenv(configPathEnv))
}

// LoadFile is Load with an explicit path; an empty path means defaults only.
func LoadFile(path string) (Config, error) {
	cfg := defaultConfig()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		cfg, err = Parse(raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Parse decodes YAML over the defaults. Keys absent from raw keep their
// default; lists present in raw replace the default list.
func Parse(raw []byte) (Config, error) {
	cfg := defaultConfig()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}
	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}
	if v := os.Getenv(telegramOperatorEnv); v != "" {
		c.Notifications.Telegram.OperatorChatID = v
	}
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv(listenAddrEnv); v != "" {
		c.HTTP.ListenAddr = v
	}
	if v := os.Getenv(crawlAPITokenEnv); v != "" {
		for i := range c.Sites {
			if c.Sites[i].Strategy != strategyCrawlAPI || c.Sites[i].Options["token"] != "" {
				continue
			}
			if c.Sites[i].Options == nil {
				c.Sites[i].Options = map[string]string{}
			}
			c.Sites[i].Options["token"] = v
		}
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and cross-section requirements.
func (c Config) Validate() error {
	var errs []error
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				errs = append(errs, fmt.Errorf("%s: failed %q (%v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
		} else {
			errs = append(errs, err)
		}
	}
	if c.Ledger.Backend == ledgerBackendPostgre && c.Database.DSN == "" {
		errs = append(errs, fmt.Errorf("ledger backend postgres requires database.dsn or %s", databaseDSNEnv))
	}
	t := c.Notifications.Telegram
	if (t.BotToken == "") != (t.ChatID == "") {
		errs = append(errs, fmt.Errorf("telegram needs both botToken and chatId"))
	}
	return errors.Join(errs...)
}

// Tables builds classifier tables from the defaults and configured overrides.
func (c ClassifierConfig) Tables() classifier.Tables {
	tables := classifier.DefaultTables()
	if len(c.Areas) > 0 {
		tables.Areas = append([]string(nil), c.Areas...)
	}
	if len(c.Makes) > 0 {
		tables.Makes = make([]classifier.MakeKeywords, 0, len(c.Makes))
		for _, m := range c.Makes {
			tables.Makes = append(tables.Makes, classifier.MakeKeywords{
				Make:     domain.Make(strings.ToUpper(m.Name)),
				Keywords: append([]string(nil), m.Keywords...),
			})
		}
	}
	if len(c.Keywords) > 0 {
		tables.Keywords = make([]classifier.WeightedKeyword, 0, len(c.Keywords))
		for _, k := range c.Keywords {
			tables.Keywords = append(tables.Keywords, classifier.WeightedKeyword{Keyword: k.Phrase, Weight: k.Weight})
		}
	}
	return tables
}

func defaultConfig() Config {
	return Config{
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Scheduler: SchedulerConfig{
			Interval:      10 * time.Minute,
			Jitter:        2 * time.Minute,
			ErrorCooldown: 5 * time.Minute,
			DispatchDelay: 2 * time.Second,
			BatchSize:     8,
			SendStartup:   true,
		},
		Fetch: FetchConfig{
			Timeout:           5 * time.Minute,
			RequestTimeout:    20 * time.Second,
			RenderTimeout:     45 * time.Second,
			MaxAttempts:       3,
			TransientRetries:  1,
			TransientDelayMin: 2 * time.Second,
			TransientDelayMax: 5 * time.Second,
			RequestDelayMin:   2 * time.Second,
			RequestDelayMax:   8 * time.Second,
			CooldownAfter:     3,
			CooldownPeriod:    15 * time.Minute,
		},
		Ledger: LedgerConfig{
			Backend:         "file",
			Path:            defaultLedgerPath,
			WriteTimeout:    10 * time.Second,
			SyncEveryCommit: true,
		},
		Notifications: NotificationConfig{
			Telegram: TelegramConfig{APIBaseURL: defaultTelegramAPI, MessagesPerSecond: 1},
		},
		Classifier: ClassifierConfig{ScoreCeiling: classifier.DefaultScoreCeiling},
		Sites: []SiteConfig{
			{
				Name:     "jiji",
				Strategy: "static",
				BaseURL:  "https://jiji.ng",
				Pages: []PageConfig{
					{Name: "abuja-cars", URL: "https://jiji.ng/abuja/cars"},
				},
				Limit: 20,
			},
		},
	}
}
