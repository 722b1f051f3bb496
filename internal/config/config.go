package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// MetricThresholds are the cut points used by one device-class classification
// rule. All values are on the 0-1 scale the headsets report.
type MetricThresholds struct {
	HighAttention     float64 `yaml:"high_attention"`
	ModerateAttention float64 `yaml:"moderate_attention"`
	LowAttention      float64 `yaml:"low_attention"`
	HighEngagement    float64 `yaml:"high_engagement"`
	LowEngagement     float64 `yaml:"low_engagement"`
	HighStress        float64 `yaml:"high_stress"`
	LowStress         float64 `yaml:"low_stress"`
}

// Config is the full configuration surface. Nothing here is hardcoded into
// the state machine; everything arrives from env vars, with an optional
// focusd.yaml for the nested pieces.
type Config struct {
	// Session thresholds
	WarnThreshold    time.Duration `yaml:"-"`
	LongThreshold    time.Duration `yaml:"-"`
	FollowUpInterval time.Duration `yaml:"-"`
	IdleTimeout      time.Duration `yaml:"-"`
	FeedbackCooldown time.Duration `yaml:"-"`

	// Mental command trigger (trained headset action)
	MentalCommandTrigger        string  `yaml:"-"`
	MentalCommandPowerThreshold float64 `yaml:"-"`

	// Per-device-class metric thresholds
	FullThresholds    MetricThresholds `yaml:"-"`
	ReducedThresholds MetricThresholds `yaml:"-"`

	// Context enrichment
	FetchWebContent bool          `yaml:"-"`
	FetchTimeout    time.Duration `yaml:"-"`

	// Router app-name patterns (substring match, lowercased)
	CodeApps     []string `yaml:"-"`
	BrowserApps  []string `yaml:"-"`
	TerminalApps []string `yaml:"-"`
	ReaderApps   []string `yaml:"-"`

	// Delegate agent
	AgentCommand string        `yaml:"-"`
	AgentModel   string        `yaml:"-"`
	AgentTimeout time.Duration `yaml:"-"`

	// Daemon
	ListenAddr         string `yaml:"-"`
	StatePath          string `yaml:"-"`
	RecentSessionLimit int    `yaml:"-"`
}

// fileConfig is the shape of the optional focusd.yaml.
type fileConfig struct {
	Thresholds struct {
		Full    *MetricThresholds `yaml:"full"`
		Reduced *MetricThresholds `yaml:"reduced"`
	} `yaml:"thresholds"`
	Router struct {
		CodeApps     []string `yaml:"code_apps"`
		BrowserApps  []string `yaml:"browser_apps"`
		TerminalApps []string `yaml:"terminal_apps"`
		ReaderApps   []string `yaml:"reader_apps"`
	} `yaml:"router"`
}

// Default returns the baseline configuration. Threshold defaults match the
// original deployment: warn at 2 minutes, long at 3, follow-ups every 90s.
func Default() Config {
	return Config{
		WarnThreshold:    120 * time.Second,
		LongThreshold:    180 * time.Second,
		FollowUpInterval: 90 * time.Second,
		IdleTimeout:      5 * time.Minute,
		FeedbackCooldown: 180 * time.Second,

		MentalCommandTrigger:        "push",
		MentalCommandPowerThreshold: 0.5,

		FullThresholds: MetricThresholds{
			HighAttention:     0.5,
			ModerateAttention: 0.3,
			LowAttention:      0.35,
			HighEngagement:    0.5,
			LowEngagement:     0.35,
			HighStress:        0.5,
			LowStress:         0.5,
		},
		ReducedThresholds: MetricThresholds{
			HighAttention:     0.5,
			ModerateAttention: 0.4,
			LowAttention:      0.4,
			HighStress:        0.5,
			LowStress:         0.5,
		},

		FetchWebContent: true,
		FetchTimeout:    5 * time.Second,

		CodeApps:     []string{"cursor", "code", "vim", "gvim", "sublime", "gedit", "kate", "zed"},
		BrowserApps:  []string{"firefox", "chrome", "chromium", "brave", "edge", "safari"},
		TerminalApps: []string{"terminal", "konsole", "gnome-terminal", "iterm", "alacritty", "kitty"},
		ReaderApps:   []string{"preview", "acrobat", "adobe", "evince", "okular", "zathura", "skim", "foxit"},

		AgentCommand: "claude",
		AgentTimeout: 60 * time.Second,

		ListenAddr:         ":8765",
		StatePath:          "state",
		RecentSessionLimit: 8,
	}
}

// Load builds the configuration from defaults, the optional yaml file, and
// environment variables (env wins). A malformed file or env value is a
// startup failure.
func Load(yamlPath string) (Config, error) {
	cfg := Default()

	if yamlPath != "" {
		if err := cfg.mergeFile(yamlPath); err != nil {
			return cfg, err
		}
	}

	if err := cfg.mergeEnv(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil // file is optional
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	if fc.Thresholds.Full != nil {
		c.FullThresholds = *fc.Thresholds.Full
	}
	if fc.Thresholds.Reduced != nil {
		c.ReducedThresholds = *fc.Thresholds.Reduced
	}
	if len(fc.Router.CodeApps) > 0 {
		c.CodeApps = fc.Router.CodeApps
	}
	if len(fc.Router.BrowserApps) > 0 {
		c.BrowserApps = fc.Router.BrowserApps
	}
	if len(fc.Router.TerminalApps) > 0 {
		c.TerminalApps = fc.Router.TerminalApps
	}
	if len(fc.Router.ReaderApps) > 0 {
		c.ReaderApps = fc.Router.ReaderApps
	}
	return nil
}

func (c *Config) mergeEnv() error {
	var err error
	if err = envSeconds("WARN_THRESHOLD_SEC", &c.WarnThreshold); err != nil {
		return err
	}
	if err = envSeconds("LONG_THRESHOLD_SEC", &c.LongThreshold); err != nil {
		return err
	}
	if err = envSeconds("FOLLOW_UP_INTERVAL_SEC", &c.FollowUpInterval); err != nil {
		return err
	}
	if err = envSeconds("IDLE_TIMEOUT_SEC", &c.IdleTimeout); err != nil {
		return err
	}
	if err = envSeconds("FEEDBACK_COOLDOWN_SEC", &c.FeedbackCooldown); err != nil {
		return err
	}
	if err = envSeconds("AGENT_TIMEOUT_SEC", &c.AgentTimeout); err != nil {
		return err
	}
	if err = envSeconds("FETCH_TIMEOUT_SEC", &c.FetchTimeout); err != nil {
		return err
	}
	if err = envFloat("MENTAL_COMMAND_POWER_THRESHOLD", &c.MentalCommandPowerThreshold); err != nil {
		return err
	}
	if err = envInt("RECENT_SESSION_LIMIT", &c.RecentSessionLimit); err != nil {
		return err
	}

	envString("MENTAL_COMMAND_TRIGGER", &c.MentalCommandTrigger)
	envString("AGENT_COMMAND", &c.AgentCommand)
	envString("AGENT_MODEL", &c.AgentModel)
	envString("LISTEN_ADDR", &c.ListenAddr)
	envString("STATE_PATH", &c.StatePath)
	envBool("FETCH_WEB_CONTENT", &c.FetchWebContent)

	if c.WarnThreshold <= 0 || c.LongThreshold <= 0 {
		return fmt.Errorf("thresholds must be positive (warn=%v long=%v)", c.WarnThreshold, c.LongThreshold)
	}
	if c.LongThreshold < c.WarnThreshold {
		return fmt.Errorf("long threshold %v below warn threshold %v", c.LongThreshold, c.WarnThreshold)
	}
	return nil
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envBool(key string, dst *bool) {
	switch os.Getenv(key) {
	case "1", "true", "yes":
		*dst = true
	case "0", "false", "no":
		*dst = false
	}
}

func envSeconds(key string, dst *time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	sec, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = time.Duration(sec * float64(time.Second))
	return nil
}

func envFloat(key string, dst *float64) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = f
	return nil
}

func envInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}
