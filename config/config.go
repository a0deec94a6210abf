// Package config handles reading ~/.config/vesper/config.yaml.
// Every field has a flag override; the file only carries the values
// users want to persist.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration accepts Go duration syntax ("600ms", "1s") in yaml; a
// bare integer is nanoseconds.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	// A bare integer decodes as a string too, so the tag has to pick
	// the branch.
	if value.Tag == "!!int" {
		var n int64
		if err := value.Decode(&n); err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}
		*d = Duration(n)
		return nil
	}
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("invalid duration: %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Config is the top-level structure for config.yaml.
type Config struct {
	Key     KeyConfig    `yaml:"key"`
	Remote  RemoteConfig `yaml:"remote"`
	Copy    bool         `yaml:"copy"`
	Cues    bool         `yaml:"cues"`
	Device  string       `yaml:"device"` // capture device name substring
	LogPath string       `yaml:"log_path"`
}

// KeyConfig tunes the press classifier and the interrupt debounce.
type KeyConfig struct {
	ShortPress     Duration `yaml:"short_press"`
	LongPress      Duration `yaml:"long_press"`
	Cooldown       Duration `yaml:"cooldown"`
	PollInterval   Duration `yaml:"poll_interval"`
	DebounceWindow Duration `yaml:"debounce_window"`
}

// RemoteConfig points at the speech backend.
type RemoteConfig struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
}

func Default() *Config {
	return &Config{
		Key: KeyConfig{
			ShortPress:     Duration(600 * time.Millisecond),
			LongPress:      Duration(time.Second),
			Cooldown:       Duration(100 * time.Millisecond),
			PollInterval:   Duration(50 * time.Millisecond),
			DebounceWindow: Duration(120 * time.Millisecond),
		},
		Remote: RemoteConfig{URL: "ws://127.0.0.1:8790/stream"},
		Copy:   true,
		Cues:   true,
	}
}

// Load reads path on top of the defaults. A missing file is not an
// error; a malformed one is.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// Validate rejects settings the classifier cannot operate with.
func (c *Config) Validate() error {
	k := c.Key
	if k.LongPress <= k.ShortPress {
		return fmt.Errorf("long_press (%s) must exceed short_press (%s)", k.LongPress, k.ShortPress)
	}
	if k.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %s", k.PollInterval)
	}
	if k.Cooldown < 0 {
		return fmt.Errorf("cooldown must not be negative, got %s", k.Cooldown)
	}
	if k.DebounceWindow < 0 {
		return fmt.Errorf("debounce_window must not be negative, got %s", k.DebounceWindow)
	}
	if c.Remote.URL == "" {
		return fmt.Errorf("remote url is required")
	}
	return nil
}
