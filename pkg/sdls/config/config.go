// Package config loads the engine's startup seed material: the fixed key
// ring contents and any SAs provisioned at boot rather than over the EP
// channel. Layout and validation follow
// sdmconfig/internal/config/config.go's pattern of pointer fields for
// optionality plus a strict yaml.v3 decoder.
package config

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/groundlink/sdls/pkg/sdls"
)

// Config is the top-level seed document.
type Config struct {
	Runtime RuntimeConfig `yaml:"runtime"`
	Keys    []KeyEntry    `yaml:"keys"`
	SAs     []SAEntry     `yaml:"security_associations"`
}

// RuntimeConfig holds process-wide tunables.
type RuntimeConfig struct {
	MetricsAddr *string `yaml:"metrics_addr"`
	LogFormat   *string `yaml:"log_format"`
}

// KeyEntry seeds one key ring slot.
type KeyEntry struct {
	KID     *int   `yaml:"kid"`
	HexFile string `yaml:"hex_file"`
	State   string `yaml:"state"`
}

// SAEntry seeds one SA in the None state, ready for Create/Rekey/Start.
type SAEntry struct {
	SPI  *int   `yaml:"spi"`
	EKID *int   `yaml:"ekid"`
	AKID *int   `yaml:"akid"`
	EST  *bool  `yaml:"est"`
	AST  *bool  `yaml:"ast"`
}

// Load reads and validates a seed document at path.
func Load(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}
	cfg.resolvePaths(path)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field presence and range, but does not touch the
// filesystem beyond the key hex files named by Keys.
func (c *Config) Validate() error {
	for i, k := range c.Keys {
		if k.KID == nil {
			return fmt.Errorf("config.keys[%d].kid is required", i)
		}
		if *k.KID < 0 || *k.KID >= sdls.NumKeys {
			return fmt.Errorf("config.keys[%d].kid must be 0..%d", i, sdls.NumKeys-1)
		}
		if strings.TrimSpace(k.HexFile) == "" {
			return fmt.Errorf("config.keys[%d].hex_file is required", i)
		}
		if err := validateReadableFile(k.HexFile, fmt.Sprintf("config.keys[%d].hex_file", i)); err != nil {
			return err
		}
		if _, err := keyStateFromString(k.State); err != nil {
			return fmt.Errorf("config.keys[%d].state: %w", i, err)
		}
	}
	for i, sa := range c.SAs {
		if sa.SPI == nil {
			return fmt.Errorf("config.security_associations[%d].spi is required", i)
		}
		if *sa.SPI < 0 || *sa.SPI >= sdls.NumSA {
			return fmt.Errorf("config.security_associations[%d].spi must be 0..%d", i, sdls.NumSA-1)
		}
	}
	return nil
}

func (c *Config) resolvePaths(configPath string) {
	dir := filepath.Dir(configPath)
	for i := range c.Keys {
		c.Keys[i].HexFile = resolvePath(dir, c.Keys[i].HexFile)
	}
}

func resolvePath(baseDir, path string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" || filepath.IsAbs(trimmed) {
		return trimmed
	}
	return filepath.Clean(filepath.Join(baseDir, trimmed))
}

func validateReadableFile(path string, field string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s must point to a file, got directory", field)
	}
	return nil
}

func keyStateFromString(s string) (sdls.KeyState, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "preactive":
		return sdls.KeyStatePreActive, nil
	case "active":
		return sdls.KeyStateActive, nil
	case "deactivated":
		return sdls.KeyStateDeactivated, nil
	case "destroyed":
		return sdls.KeyStateDestroyed, nil
	default:
		return sdls.KeyStateNone, fmt.Errorf("unknown key state %q", s)
	}
}

// LoadKeySeeds reads every Keys entry's hex file and returns engine-ready
// KeySeeds, grounded on pkg/ntag424/keys.go's LoadAllHexKeys.
func (c *Config) LoadKeySeeds() ([]sdls.KeySeed, error) {
	seeds := make([]sdls.KeySeed, 0, len(c.Keys))
	for _, k := range c.Keys {
		value, err := loadHexKeyFile(k.HexFile)
		if err != nil {
			return nil, fmt.Errorf("kid %d: %w", *k.KID, err)
		}
		state, err := keyStateFromString(k.State)
		if err != nil {
			return nil, err
		}
		seeds = append(seeds, sdls.KeySeed{KID: *k.KID, Value: value, State: state})
	}
	return seeds, nil
}

func loadHexKeyFile(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	hexStr := strings.TrimSpace(string(raw))
	if len(hexStr) != sdls.KeySize*2 {
		return nil, fmt.Errorf("key file must contain %d hex characters, got %d", sdls.KeySize*2, len(hexStr))
	}
	out, err := hex.DecodeString(hexStr)
	if err != nil {
		return nil, fmt.Errorf("key file contains invalid hex: %w", err)
	}
	return out, nil
}
