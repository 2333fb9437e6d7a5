package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/MarcoPoloResearchLab/pagepin/internal/page"
)

const (
	envPrefix           = "PAGEPIN"
	defaultHTTPAddress  = "0.0.0.0:8080"
	defaultDatabasePath = "pagepin.db"
	defaultLogLevel     = "info"
	defaultPollInterval = 300 * time.Second
	defaultTimezone     = "Europe/Madrid"
)

// AppConfig captures runtime configuration for the sync service.
type AppConfig struct {
	HTTPAddress    string
	DatabasePath   string
	LogLevel       string
	NotionToken    string
	RootPageID     page.PageID
	TelegramToken  string
	TelegramChatID int64
	PollInterval   time.Duration
	Timezone       *time.Location
	StatusAPIToken string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("poll.interval", defaultPollInterval)
	configViper.SetDefault("timezone", defaultTimezone)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:    configViper.GetString("http.address"),
		DatabasePath:   configViper.GetString("database.path"),
		LogLevel:       configViper.GetString("log.level"),
		NotionToken:    configViper.GetString("notion.token"),
		TelegramToken:  configViper.GetString("telegram.token"),
		TelegramChatID: configViper.GetInt64("telegram.chat_id"),
		PollInterval:   configViper.GetDuration("poll.interval"),
		StatusAPIToken: configViper.GetString("status.api_token"),
	}

	rootRef := strings.TrimSpace(configViper.GetString("notion.root_page"))
	if rootRef != "" {
		rootID, err := parseRootPage(rootRef)
		if err != nil {
			return AppConfig{}, err
		}
		cfg.RootPageID = rootID
	}

	timezoneName := strings.TrimSpace(configViper.GetString("timezone"))
	timezone, err := time.LoadLocation(timezoneName)
	if err != nil {
		return AppConfig{}, fmt.Errorf("timezone %q is invalid: %w", timezoneName, err)
	}
	cfg.Timezone = timezone

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

// parseRootPage accepts either a bare page id or a full Notion page URL.
func parseRootPage(ref string) (page.PageID, error) {
	if strings.Contains(ref, "://") {
		extracted := page.ExtractPageID(ref)
		if extracted == "" {
			return "", fmt.Errorf("notion.root_page URL %q carries no page id", ref)
		}
		ref = extracted
	}
	rootID, err := page.NewPageID(ref)
	if err != nil {
		return "", fmt.Errorf("notion.root_page is invalid: %w", err)
	}
	return rootID, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.NotionToken) == "" {
		return fmt.Errorf("notion.token is required")
	}
	if c.RootPageID == "" {
		return fmt.Errorf("notion.root_page is required")
	}
	if strings.TrimSpace(c.TelegramToken) == "" {
		return fmt.Errorf("telegram.token is required")
	}
	if c.TelegramChatID == 0 {
		return fmt.Errorf("telegram.chat_id is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll.interval must be positive")
	}
	return nil
}
