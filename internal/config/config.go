// File: internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for every environment variable override (e.g. SLOTRUNNER_ENGINE_MAX_SESSIONS).
const EnvPrefix = "SLOTRUNNER"

// Config holds the entire application configuration.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Target  TargetConfig  `mapstructure:"target" yaml:"target"`
	Form    FormConfig    `mapstructure:"form" yaml:"form"`
	Session SessionConfig `mapstructure:"session" yaml:"session"`
	Engine  EngineConfig  `mapstructure:"engine" yaml:"engine"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Solver  SolverConfig  `mapstructure:"solver" yaml:"solver"`
	Roster  RosterConfig  `mapstructure:"roster" yaml:"roster"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color names for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// TargetConfig points at the registration form entry point.
type TargetConfig struct {
	// URL may be an absolute URL or a local file path (served via file://).
	URL string `mapstructure:"url" yaml:"url"`
}

// FormConfig maps every form role to its CSS selector.
type FormConfig struct {
	Name            string `mapstructure:"name" yaml:"name"`
	Day             string `mapstructure:"day" yaml:"day"`
	Month           string `mapstructure:"month" yaml:"month"`
	Year            string `mapstructure:"year" yaml:"year"`
	Phone           string `mapstructure:"phone" yaml:"phone"`
	Email           string `mapstructure:"email" yaml:"email"`
	NationalID      string `mapstructure:"national_id" yaml:"national_id"`
	Date            string `mapstructure:"date" yaml:"date"`
	SubSlot         string `mapstructure:"sub_slot" yaml:"sub_slot"`
	Challenge       string `mapstructure:"challenge" yaml:"challenge"`
	ChallengeAnswer string `mapstructure:"challenge_answer" yaml:"challenge_answer"`
	Consent         string `mapstructure:"consent" yaml:"consent"`
	Submit          string `mapstructure:"submit" yaml:"submit"`
	Success         string `mapstructure:"success" yaml:"success"`
}

// ProfileSelectors returns the seven personal-information selectors in roster order.
func (f FormConfig) ProfileSelectors() []string {
	return []string{f.Name, f.Day, f.Month, f.Year, f.Phone, f.Email, f.NationalID}
}

// SlotOrder controls the order in which date slots are attempted.
type SlotOrder string

const (
	SlotOrderSequential SlotOrder = "sequential"
	SlotOrderRandom     SlotOrder = "random"
)

// SubSlotPolicy controls which time-of-day sub-slot is chosen.
type SubSlotPolicy string

const (
	SubSlotFixed  SubSlotPolicy = "fixed"
	SubSlotFirst  SubSlotPolicy = "first"
	SubSlotRandom SubSlotPolicy = "random"
)

// SettleMode controls how the session waits for the sub-slot list after a date is chosen.
type SettleMode string

const (
	SettleWait  SettleMode = "wait"
	SettleDelay SettleMode = "delay"
)

// CleanupPolicy controls whether a session's page is closed when it finishes.
type CleanupPolicy string

const (
	CleanupClose    CleanupPolicy = "close"
	CleanupKeepOpen CleanupPolicy = "keep_open"
)

// SessionConfig tunes the per-profile registration state machine.
type SessionConfig struct {
	NavigationTimeout   time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	ConfirmationTimeout time.Duration `mapstructure:"confirmation_timeout" yaml:"confirmation_timeout"`
	Settle              SettleMode    `mapstructure:"settle" yaml:"settle"`
	SettleDelay         time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
	SettleTimeout       time.Duration `mapstructure:"settle_timeout" yaml:"settle_timeout"`
	SlotOrder           SlotOrder     `mapstructure:"slot_order" yaml:"slot_order"`
	SubSlot             SubSlotPolicy `mapstructure:"sub_slot" yaml:"sub_slot"`
	SubSlotValue        string        `mapstructure:"sub_slot_value" yaml:"sub_slot_value"`
	Cleanup             CleanupPolicy `mapstructure:"cleanup" yaml:"cleanup"`
	SnapshotDir         string        `mapstructure:"snapshot_dir" yaml:"snapshot_dir"`
}

// EngineConfig configures the session worker pool.
type EngineConfig struct {
	// MaxSessions caps concurrently running sessions. 0 runs every profile at once.
	MaxSessions int `mapstructure:"max_sessions" yaml:"max_sessions"`
}

// BrowserConfig holds settings for the shared browser process.
type BrowserConfig struct {
	Headless        bool          `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors bool          `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	DisableCache    bool          `mapstructure:"disable_cache" yaml:"disable_cache"`
	Args            []string      `mapstructure:"args" yaml:"args"`
	ExecPath        string        `mapstructure:"exec_path" yaml:"exec_path"`
	LaunchTimeout   time.Duration `mapstructure:"launch_timeout" yaml:"launch_timeout"`
	ActionTimeout   time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
}

// SolverStrategy names a challenge-solving strategy.
type SolverStrategy string

const (
	StrategyDirect SolverStrategy = "direct"
	StrategyVision SolverStrategy = "vision"
)

// LLMProvider defines the supported vision model providers.
type LLMProvider string

const (
	ProviderGemini LLMProvider = "gemini"
)

// SolverConfig selects and configures the challenge solver.
type SolverConfig struct {
	Strategy SolverStrategy `mapstructure:"strategy" yaml:"strategy"`
	Vision   VisionConfig   `mapstructure:"vision" yaml:"vision"`
}

// VisionConfig configures the external vision model used by the vision strategy.
type VisionConfig struct {
	Provider    LLMProvider   `mapstructure:"provider" yaml:"provider"`
	Model       string        `mapstructure:"model" yaml:"model"`
	APIKey      string        `mapstructure:"api_key" yaml:"-"`
	Endpoint    string        `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout  time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature float32       `mapstructure:"temperature" yaml:"temperature"`
	Prompt      string        `mapstructure:"prompt" yaml:"prompt"`
	MIMEType    string        `mapstructure:"mime_type" yaml:"mime_type"`
	// RateLimit is the maximum number of model calls per second across all sessions. 0 disables it.
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
	Burst     int     `mapstructure:"burst" yaml:"burst"`
}

// IncompletePolicy decides what happens to roster records with missing fields.
type IncompletePolicy string

const (
	IncompleteSubmit IncompletePolicy = "submit"
	IncompleteSkip   IncompletePolicy = "skip"
	IncompleteReject IncompletePolicy = "reject"
)

// RosterConfig locates and interprets the input roster.
type RosterConfig struct {
	Path       string           `mapstructure:"path" yaml:"path"`
	Incomplete IncompletePolicy `mapstructure:"incomplete" yaml:"incomplete"`
}

// DefaultVisionPrompt asks the model for the bare challenge characters.
const DefaultVisionPrompt = "Read the characters in this image exactly. Reply with the characters only, no explanation."

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for every configuration parameter.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "slotrunner")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Form selectors --
	v.SetDefault("form.name", "#txtHoTen")
	v.SetDefault("form.day", "#txtNgaySinh_Ngay")
	v.SetDefault("form.month", "#txtNgaySinh_Thang")
	v.SetDefault("form.year", "#txtNgaySinh_Nam")
	v.SetDefault("form.phone", "#txtSoDienThoai")
	v.SetDefault("form.email", "#txtEmail")
	v.SetDefault("form.national_id", "#txtCCCD")
	v.SetDefault("form.date", "#slNgayBanHang")
	v.SetDefault("form.sub_slot", "#slPhien")
	v.SetDefault("form.challenge", "#dvCaptcha")
	v.SetDefault("form.challenge_answer", "#txtCaptcha")
	v.SetDefault("form.consent", "#ckbDongY")
	v.SetDefault("form.submit", "#btDangKyThamGia")
	v.SetDefault("form.success", "#dvTaoMaQR")

	// -- Session --
	v.SetDefault("session.navigation_timeout", "35s")
	v.SetDefault("session.confirmation_timeout", "10s")
	v.SetDefault("session.settle", string(SettleWait))
	v.SetDefault("session.settle_delay", "200ms")
	v.SetDefault("session.settle_timeout", "10s")
	v.SetDefault("session.slot_order", string(SlotOrderSequential))
	v.SetDefault("session.sub_slot", string(SubSlotFixed))
	v.SetDefault("session.sub_slot_value", "1")
	v.SetDefault("session.cleanup", string(CleanupClose))
	v.SetDefault("session.snapshot_dir", ".")

	// -- Engine --
	v.SetDefault("engine.max_sessions", 8)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.disable_cache", true)
	v.SetDefault("browser.launch_timeout", "30s")
	v.SetDefault("browser.action_timeout", "30s")

	// -- Solver --
	v.SetDefault("solver.strategy", string(StrategyDirect))
	v.SetDefault("solver.vision.provider", string(ProviderGemini))
	v.SetDefault("solver.vision.model", "gemini-2.5-flash")
	v.SetDefault("solver.vision.api_timeout", "30s")
	v.SetDefault("solver.vision.temperature", 0.0)
	v.SetDefault("solver.vision.prompt", DefaultVisionPrompt)
	v.SetDefault("solver.vision.mime_type", "image/png")
	v.SetDefault("solver.vision.rate_limit", 0.0)
	v.SetDefault("solver.vision.burst", 1)

	// -- Roster --
	v.SetDefault("roster.path", "data.txt")
	v.SetDefault("roster.incomplete", string(IncompleteSubmit))
}

// BindEnv wires environment variable overrides into v.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The API key is also accepted under the provider's conventional name.
	_ = v.BindEnv("solver.vision.api_key", EnvPrefix+"_SOLVER_VISION_API_KEY", "GEMINI_API_KEY")
}

// NewConfigFromViper decodes v into a Config. It does not validate: commands
// check only the sections they use.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Target.URL) == "" {
		return fmt.Errorf("target.url is required")
	}
	if c.Engine.MaxSessions < 0 {
		return fmt.Errorf("engine.max_sessions must not be negative")
	}
	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("session configuration invalid: %w", err)
	}
	if err := c.Form.Validate(); err != nil {
		return fmt.Errorf("form configuration invalid: %w", err)
	}
	if err := c.Solver.Validate(); err != nil {
		return fmt.Errorf("solver configuration invalid: %w", err)
	}
	switch c.Roster.Incomplete {
	case IncompleteSubmit, IncompleteSkip, IncompleteReject:
	default:
		return fmt.Errorf("roster.incomplete must be one of submit, skip, reject (got %q)", c.Roster.Incomplete)
	}
	return nil
}

// Validate checks the session timing and policy settings.
func (s *SessionConfig) Validate() error {
	if s.NavigationTimeout <= 0 {
		return fmt.Errorf("navigation_timeout must be a positive duration")
	}
	if s.ConfirmationTimeout <= 0 {
		return fmt.Errorf("confirmation_timeout must be a positive duration")
	}
	switch s.Settle {
	case SettleWait:
		if s.SettleTimeout <= 0 {
			return fmt.Errorf("settle_timeout must be a positive duration when settle is %q", SettleWait)
		}
	case SettleDelay:
		if s.SettleDelay < 0 {
			return fmt.Errorf("settle_delay must not be negative")
		}
	default:
		return fmt.Errorf("settle must be one of wait, delay (got %q)", s.Settle)
	}
	switch s.SlotOrder {
	case SlotOrderSequential, SlotOrderRandom:
	default:
		return fmt.Errorf("slot_order must be one of sequential, random (got %q)", s.SlotOrder)
	}
	switch s.SubSlot {
	case SubSlotFixed:
		if s.SubSlotValue == "" {
			return fmt.Errorf("sub_slot_value is required when sub_slot is %q", SubSlotFixed)
		}
	case SubSlotFirst, SubSlotRandom:
	default:
		return fmt.Errorf("sub_slot must be one of fixed, first, random (got %q)", s.SubSlot)
	}
	switch s.Cleanup {
	case CleanupClose, CleanupKeepOpen:
	default:
		return fmt.Errorf("cleanup must be one of close, keep_open (got %q)", s.Cleanup)
	}
	return nil
}

// Validate checks that every form role has a selector.
func (f *FormConfig) Validate() error {
	roles := map[string]string{
		"name": f.Name, "day": f.Day, "month": f.Month, "year": f.Year,
		"phone": f.Phone, "email": f.Email, "national_id": f.NationalID,
		"date": f.Date, "sub_slot": f.SubSlot, "challenge": f.Challenge,
		"challenge_answer": f.ChallengeAnswer, "consent": f.Consent,
		"submit": f.Submit, "success": f.Success,
	}
	for role, sel := range roles {
		if strings.TrimSpace(sel) == "" {
			return fmt.Errorf("selector for %s is empty", role)
		}
	}
	return nil
}

// Validate checks the solver settings. A vision strategy without credentials is a startup error.
func (s *SolverConfig) Validate() error {
	switch s.Strategy {
	case StrategyDirect:
		return nil
	case StrategyVision:
		if s.Vision.Provider != ProviderGemini {
			return fmt.Errorf("unsupported vision provider %q. Supported: [%s]", s.Vision.Provider, ProviderGemini)
		}
		if s.Vision.APIKey == "" {
			return fmt.Errorf("vision solver requires an API key. Ensure GEMINI_API_KEY or %s_SOLVER_VISION_API_KEY is set", EnvPrefix)
		}
		if s.Vision.Model == "" {
			return fmt.Errorf("vision.model is required")
		}
		if s.Vision.RateLimit < 0 {
			return fmt.Errorf("vision.rate_limit must not be negative")
		}
		return nil
	default:
		return fmt.Errorf("unknown solver strategy %q. Supported: [%s, %s]", s.Strategy, StrategyDirect, StrategyVision)
	}
}

// EntryURL resolves the configured target into a navigable URL.
// Bare paths are turned into absolute file:// URLs; a leading ~ is expanded.
func (t TargetConfig) EntryURL() (string, error) {
	raw := strings.TrimSpace(t.URL)
	if raw == "" {
		return "", fmt.Errorf("target.url is empty")
	}
	if u, err := url.Parse(raw); err == nil && u.Scheme != "" && len(u.Scheme) > 1 {
		return raw, nil
	}
	expanded, err := homedir.Expand(raw)
	if err != nil {
		return "", fmt.Errorf("failed to expand target path %q: %w", raw, err)
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", fmt.Errorf("failed to resolve target path %q: %w", raw, err)
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String(), nil
}
