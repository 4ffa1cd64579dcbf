package scraper

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/dimchansky/utfbom"
	"gopkg.in/yaml.v3"
)

type SessionConfig struct {
	Dir            string        `yaml:"dir"`
	Headless       bool          `yaml:"headless"`
	SaveSnapshots  bool          `yaml:"save_snapshots"`
	BaseURL        string        `yaml:"base_url"`
	UserAgent      string        `yaml:"user_agent"`
	ViewportWidth  int           `yaml:"viewport_width"`
	ViewportHeight int           `yaml:"viewport_height"`
	LoginWait      time.Duration `yaml:"login_wait"` // how long the CLI waits for a manual login
}

type CheckpointConfig struct {
	Wait          time.Duration `yaml:"wait"`
	Poll          time.Duration `yaml:"poll"`
	MaxChallenges int           `yaml:"max_challenges"`
	ScreenshotDir string        `yaml:"screenshot_dir"`
}

type ProxyConfig struct {
	Endpoints    []string      `yaml:"endpoints"`
	ListURL      string        `yaml:"list_url"`
	CheckURL     string        `yaml:"check_url"`
	CheckTimeout time.Duration `yaml:"check_timeout"`
}

type OutputConfig struct {
	Dir     string `yaml:"dir"`
	Archive string `yaml:"archive"` // sqlite file; empty disables archiving
}

// Config is the whole run configuration.
type Config struct {
	Session    SessionConfig    `yaml:"session"`
	Pacing     PacingProfile    `yaml:"pacing"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
	Limits     Limits           `yaml:"limits"`
	Proxy      ProxyConfig      `yaml:"proxy"`
	Rules      string           `yaml:"rules"` // rule book laid over the embedded one
	Output     OutputConfig     `yaml:"output"`
	Sections   []string         `yaml:"sections"`
}

func DefaultConfig() Config {
	checkpoint := DefaultCheckpointOptions()
	pacing := DefaultPacing()
	return Config{
		Session: SessionConfig{
			Dir:            "session",
			BaseURL:        DefaultBaseURL,
			UserAgent:      UserAgentDefault,
			ViewportWidth:  pacing.ViewportWidth,
			ViewportHeight: pacing.ViewportHeight,
			LoginWait:      10 * time.Minute,
		},
		Pacing: pacing,
		Checkpoint: CheckpointConfig{
			Wait:          checkpoint.Wait,
			Poll:          checkpoint.Poll,
			MaxChallenges: checkpoint.MaxChallenges,
			ScreenshotDir: "screenshots",
		},
		Limits: DefaultLimits(),
		Proxy: ProxyConfig{
			CheckTimeout: 10 * time.Second,
		},
		Output: OutputConfig{
			Dir:     "results",
			Archive: "results/archive.db",
		},
		Sections: AllSections(),
	}
}

func decodeConfig(r io.Reader) (Config, error) {
	var config Config
	decoder := yaml.NewDecoder(utfbom.SkipOnly(r))
	decoder.KnownFields(true)
	if err := decoder.Decode(&config); err != nil && !errors.Is(err, io.EOF) {
		return config, err
	}
	return config, nil
}

func readConfigFile(filename string) (Config, bool, error) {
	f, err := os.Open(filename)
	if errors.Is(err, os.ErrNotExist) {
		return Config{}, false, nil
	}
	if err != nil {
		return Config{}, false, err
	}
	defer f.Close()
	config, err := decodeConfig(f)
	if err != nil {
		return config, true, fmt.Errorf("%v: %w", filename, err)
	}
	return config, true, nil
}

// localName returns the override file for filename: config.yaml -> config.local.yaml.
func localName(filename string) string {
	ext := filepath.Ext(filename)
	return strings.TrimSuffix(filename, ext) + ".local" + ext
}

// LoadConfig reads filename and, if present, its .local override, then fills every
// unset value from DefaultConfig. A missing filename is not an error when it was not
// explicitly required; an empty filename returns the defaults.
func LoadConfig(filename string, required bool) (Config, error) {
	var config Config
	if filename != "" {
		base, found, err := readConfigFile(filename)
		if err != nil {
			return config, err
		}
		if !found && required {
			return config, fmt.Errorf("config file %v: %w", filename, os.ErrNotExist)
		}
		config = base

		local, found, err := readConfigFile(localName(filename))
		if err != nil {
			return config, err
		}
		if found {
			if err := mergo.Merge(&config, local, mergo.WithOverride); err != nil {
				return config, err
			}
		}
	}
	if err := mergo.Merge(&config, DefaultConfig()); err != nil {
		return config, err
	}
	return config, config.Validate()
}

// Validate checks values that would make a run misbehave rather than fail.
func (config Config) Validate() error {
	known := map[string]bool{}
	for _, name := range AllSections() {
		known[name] = true
	}
	for _, name := range config.Sections {
		if !known[name] {
			return fmt.Errorf("unknown section %q (known: %v)", name, strings.Join(AllSections(), ", "))
		}
	}
	for kind, b := range map[string]Bounds{
		"click":            config.Pacing.Click,
		"scroll_step":      config.Pacing.ScrollStep,
		"between_sections": config.Pacing.BetweenSections,
		"hover":            config.Pacing.Hover,
	} {
		if b.Min < 0 || b.Max < b.Min {
			return fmt.Errorf("pacing.%v: invalid bounds %v..%v", kind, b.Min, b.Max)
		}
	}
	if config.Pacing.PresenceMovesMax < config.Pacing.PresenceMovesMin {
		return fmt.Errorf("pacing: presence_moves_max < presence_moves_min")
	}
	if config.Limits.StableRounds < 1 {
		return fmt.Errorf("limits.stable_rounds must be at least 1")
	}
	return nil
}

// LoadRuleBook returns the embedded rule book, with config.Rules laid over it if set.
func (config Config) LoadRuleBook() (*RuleBook, error) {
	if config.Rules == "" {
		return DefaultRules()
	}
	return LoadRules(config.Rules)
}

func (config Config) SessionOptions(proxies EndpointPool) SessionOptions {
	return SessionOptions{
		Dir:               config.Session.Dir,
		Headless:          config.Session.Headless,
		BaseURL:           config.Session.BaseURL,
		UserAgent:         config.Session.UserAgent,
		ViewportWidth:     config.Session.ViewportWidth,
		ViewportHeight:    config.Session.ViewportHeight,
		SaveSnapshots:     config.Session.SaveSnapshots,
		NavigationTimeout: config.Limits.NavigationTimeout,
		Proxies:           proxies,
	}
}

func (config Config) CheckpointOptions() CheckpointOptions {
	return CheckpointOptions{
		Wait:          config.Checkpoint.Wait,
		Poll:          config.Checkpoint.Poll,
		MaxChallenges: config.Checkpoint.MaxChallenges,
		ScreenshotDir: config.Checkpoint.ScreenshotDir,
	}
}

// ProxyPool returns nil when no proxies are configured.
func (config Config) ProxyPool(log Logger) *ProxyPool {
	if len(config.Proxy.Endpoints) == 0 && config.Proxy.ListURL == "" {
		return nil
	}
	return NewProxyPool(ProxyPoolOptions{
		Endpoints:    config.Proxy.Endpoints,
		ListURL:      config.Proxy.ListURL,
		CheckURL:     config.Proxy.CheckURL,
		CheckTimeout: config.Proxy.CheckTimeout,
	}, log)
}
