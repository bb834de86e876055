package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"goodwill_sniper/internal/model"
)

const (
	AuthTypeUniversal  = "universal"
	AuthTypeCommandBid = "command_bid"
)

type Config struct {
	Auth       AuthConfig     `yaml:"auth_info"`
	Sniper     SniperConfig   `yaml:"bid_sniper"`
	FriendList []string       `yaml:"friend_list"`
	Provider   ProviderConfig `yaml:"provider"`
	Logging    LoggingConfig  `yaml:"logging"`
	Notify     NotifyConfig   `yaml:"notify"`
	Storage    StorageConfig  `yaml:"storage"`
	Status     StatusConfig   `yaml:"status"`
}

type AuthConfig struct {
	AuthType       string  `yaml:"auth_type"`
	Account        Account `yaml:",inline"`
	CommandAccount Account `yaml:"command_account"`
	BidAccount     Account `yaml:"bid_account"`
}

type Account struct {
	AccessToken       string `yaml:"access_token"`
	Username          string `yaml:"username"`
	Password          string `yaml:"password"`
	EncryptedUsername string `yaml:"encrypted_username"`
	EncryptedPassword string `yaml:"encrypted_password"`
}

// Credentials lists the usable credentials of the account in resolution order.
func (a Account) Credentials() []model.Credential {
	all := []model.Credential{
		{Kind: model.CredentialAccessToken, Token: strings.TrimSpace(a.AccessToken)},
		{Kind: model.CredentialEncryptedPassword, Username: strings.TrimSpace(a.EncryptedUsername), Password: strings.TrimSpace(a.EncryptedPassword)},
		{Kind: model.CredentialPlaintextPassword, Username: strings.TrimSpace(a.Username), Password: a.Password},
	}
	out := make([]model.Credential, 0, len(all))
	for _, c := range all {
		if c.Usable() {
			out = append(out, c)
		}
	}
	return out
}

func (c AuthConfig) DualAccount() bool {
	return strings.EqualFold(strings.TrimSpace(c.AuthType), AuthTypeCommandBid)
}

func (c AuthConfig) AccountFor(role model.AccountRole) Account {
	if !c.DualAccount() {
		return c.Account
	}
	if role == model.RoleBid {
		return c.BidAccount
	}
	return c.CommandAccount
}

type SniperConfig struct {
	RefreshSeconds           int        `yaml:"refresh_seconds"`
	BidSnipeTimeDelta        Duration   `yaml:"bid_snipe_time_delta"`
	FavoritesMaxCacheSeconds *int       `yaml:"favorites_max_cache_seconds"`
	AlertTimeDeltas          []Duration `yaml:"alert_time_deltas"`
	FavoriteDefaultNote      string     `yaml:"favorite_default_note"`
	PreciseWakeups           *bool      `yaml:"precise_wakeups"`
}

func (c SniperConfig) RefreshInterval() time.Duration {
	if c.RefreshSeconds <= 0 {
		return 300 * time.Second
	}
	return time.Duration(c.RefreshSeconds) * time.Second
}

func (c SniperConfig) SnipeDelta() time.Duration {
	if c.BidSnipeTimeDelta <= 0 {
		return 30 * time.Second
	}
	return c.BidSnipeTimeDelta.Std()
}

// FavoritesMaxAge is the staleness threshold of the favorites cache; zero
// means every read refreshes.
func (c SniperConfig) FavoritesMaxAge() time.Duration {
	if c.FavoritesMaxCacheSeconds == nil {
		return 60 * time.Second
	}
	if *c.FavoritesMaxCacheSeconds <= 0 {
		return 0
	}
	return time.Duration(*c.FavoritesMaxCacheSeconds) * time.Second
}

func (c SniperConfig) AlertOffsets() []time.Duration {
	out := make([]time.Duration, 0, len(c.AlertTimeDeltas))
	for _, d := range c.AlertTimeDeltas {
		if d > 0 {
			out = append(out, d.Std())
		}
	}
	return out
}

func (c SniperConfig) PreciseWakeupsEnabled() bool {
	return c.PreciseWakeups == nil || *c.PreciseWakeups
}

type ProviderConfig struct {
	BaseURL         string           `yaml:"base_url"`
	LoginPageURL    string           `yaml:"login_page_url"`
	TimeoutMs       int              `yaml:"timeout_ms"`
	Retry           ProviderRetryCfg `yaml:"retry"`
	UserAgent       string           `yaml:"user_agent"`
	QPS             float64          `yaml:"qps"`
	Burst           int              `yaml:"burst"`
	LeaderLookahead Duration         `yaml:"leader_lookahead"`
}

type ProviderRetryCfg struct {
	Count     int `yaml:"count"`
	WaitMs    int `yaml:"wait_ms"`
	MaxWaitMs int `yaml:"max_wait_ms"`
}

func (c ProviderConfig) Timeout() time.Duration {
	if c.TimeoutMs <= 0 {
		return 20 * time.Second
	}
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

func (c ProviderRetryCfg) Wait() time.Duration {
	if c.WaitMs <= 0 {
		return 200 * time.Millisecond
	}
	return time.Duration(c.WaitMs) * time.Millisecond
}

func (c ProviderRetryCfg) MaxWait() time.Duration {
	if c.MaxWaitMs <= 0 {
		return 1200 * time.Millisecond
	}
	return time.Duration(c.MaxWaitMs) * time.Millisecond
}

type LoggingConfig struct {
	Level       string `yaml:"level"`
	LegacyLevel string `yaml:"log_level"`
	Console     *bool  `yaml:"console"`
	File        bool   `yaml:"file"`
	FilePath    string `yaml:"file_path"`
	MaxSizeMB   int    `yaml:"max_size_mb"`
	MaxBackups  int    `yaml:"max_backups"`
	MaxAgeDays  int    `yaml:"max_age_days"`
}

type NotifyConfig struct {
	Gotify GotifyConfig `yaml:"gotify"`
	Email  EmailConfig  `yaml:"email"`
}

type GotifyConfig struct {
	URL      string `yaml:"url"`
	Token    string `yaml:"token"`
	Priority int    `yaml:"priority"`
}

func (c GotifyConfig) Enabled() bool {
	return strings.TrimSpace(c.URL) != "" && strings.TrimSpace(c.Token) != ""
}

type EmailConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`
	From           string `yaml:"from"`
	To             string `yaml:"to"`
	SSL            *bool  `yaml:"ssl"`
	SummarySeconds *int   `yaml:"summary_seconds"`
}

func (c EmailConfig) SummaryWindow() time.Duration {
	if c.SummarySeconds == nil {
		return 20 * time.Second
	}
	n := *c.SummarySeconds
	if n <= 0 {
		return 0
	}
	if n > 600 {
		n = 600
	}
	return time.Duration(n) * time.Second
}

type StorageConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

type StatusConfig struct {
	Addr         string   `yaml:"addr"`
	AllowOrigins []string `yaml:"allow_origins"`
}

// envOverrides mirrors the SHOPGOODWILL_* variables, which win over the file.
type envOverrides struct {
	AccessToken string `envconfig:"SHOPGOODWILL_ACCESS_TOKEN"`
	Username    string `envconfig:"SHOPGOODWILL_USERNAME"`
	Password    string `envconfig:"SHOPGOODWILL_PASSWORD"`
}

// Load reads a YAML (or JSON) config file, then applies .env and SHOPGOODWILL_*
// environment overrides.
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	_ = godotenv.Load()
	return Parse(b)
}

func Parse(b []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	var env envOverrides
	// no prefix: a prefixed lookup falls back to the bare tag, and USERNAME is too common
	if err := envconfig.Process("", &env); err != nil {
		return fmt.Errorf("env overrides: %w", err)
	}
	// dual-account blocks are explicit by nature; the overrides target the universal account
	if c.Auth.DualAccount() {
		return nil
	}
	if v := strings.TrimSpace(env.AccessToken); v != "" {
		c.Auth.Account.AccessToken = v
	}
	if v := strings.TrimSpace(env.Username); v != "" {
		c.Auth.Account.Username = v
	}
	if env.Password != "" {
		c.Auth.Account.Password = env.Password
	}
	return nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.Auth.AuthType) == "" {
		c.Auth.AuthType = AuthTypeUniversal
	}
	if c.Sniper.RefreshSeconds <= 0 {
		c.Sniper.RefreshSeconds = 300
	}
	if c.Sniper.BidSnipeTimeDelta <= 0 {
		c.Sniper.BidSnipeTimeDelta = Duration(30 * time.Second)
	}
	friends := make([]string, 0, len(c.FriendList))
	for _, f := range c.FriendList {
		if f = strings.TrimSpace(f); f != "" {
			friends = append(friends, f)
		}
	}
	c.FriendList = friends

	if c.Provider.BaseURL == "" {
		c.Provider.BaseURL = "https://buyerapi.shopgoodwill.com/api"
	}
	if c.Provider.LoginPageURL == "" {
		c.Provider.LoginPageURL = "https://shopgoodwill.com/signin"
	}
	if c.Provider.UserAgent == "" {
		// the marketplace refuses default client user agents
		c.Provider.UserAgent = "Mozilla/5.0 (Windows NT 6.1; WOW64; rv:12.0) Gecko/20100101 Firefox/12.0"
	}
	if c.Provider.Retry.Count < 0 {
		c.Provider.Retry.Count = 0
	}
	if c.Provider.QPS <= 0 {
		c.Provider.QPS = 4
	}
	if c.Provider.Burst <= 0 {
		c.Provider.Burst = 4
	}

	if c.Logging.Level == "" {
		c.Logging.Level = c.Logging.LegacyLevel
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.FilePath == "" {
		c.Logging.FilePath = "./data/logs/sniper.log"
	}
	if c.Logging.MaxSizeMB <= 0 {
		c.Logging.MaxSizeMB = 100
	}
	if c.Logging.MaxBackups <= 0 {
		c.Logging.MaxBackups = 7
	}
	if c.Logging.MaxAgeDays <= 0 {
		c.Logging.MaxAgeDays = 30
	}

	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = "./data/sniper.db"
	}

	if c.Notify.Gotify.Priority <= 0 {
		c.Notify.Gotify.Priority = 5
	}
}

func (c Config) validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Auth.AuthType)) {
	case AuthTypeUniversal, AuthTypeCommandBid:
	default:
		return fmt.Errorf("auth_info.auth_type %q is not supported", c.Auth.AuthType)
	}
	if c.Provider.BaseURL == "" {
		return errors.New("provider.base_url is required")
	}
	if c.Notify.Email.Enabled && strings.TrimSpace(c.Notify.Email.To) == "" && strings.TrimSpace(c.Notify.Email.Username) == "" {
		return errors.New("notify.email.to is required when email is enabled")
	}
	return nil
}
