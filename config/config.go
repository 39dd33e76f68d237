package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config carries the daemon settings read from a TOML file.
type Config struct {
	RPCAddress   string `toml:"RPCAddress"`
	DataDir      string `toml:"DataDir"`
	GenesisFile  string `toml:"GenesisFile"`
	NetworkName  string `toml:"NetworkName"`
	LogFile      string `toml:"LogFile"`
	LogMaxSizeMB int    `toml:"LogMaxSizeMB"`
	// RPCToken guards mutating RPC methods. Leave empty to read it from the
	// GOSSIP_RPC_TOKEN environment variable instead; committing real tokens
	// to config files is discouraged.
	RPCToken string `toml:"RPCToken"`
}

// Default returns the configuration used when no file exists yet.
func Default() Config {
	return Config{
		RPCAddress:   "127.0.0.1:8645",
		DataDir:      "./gossip-data",
		GenesisFile:  "./genesis.json",
		NetworkName:  "gossipnet-local",
		LogMaxSizeMB: 100,
	}
}

// Load reads the config at path, creating it with defaults when missing.
func Load(path string) (Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := Default()
		if err := writeDefault(path, cfg); err != nil {
			return Config{}, err
		}
		return cfg, nil
	}
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config %s: %w", path, err)
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func writeDefault(path string, cfg Config) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create config %s: %w", path, err)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

func applyDefaults(cfg *Config) {
	def := Default()
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = def.RPCAddress
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = def.DataDir
	}
	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = def.NetworkName
	}
	if cfg.LogMaxSizeMB <= 0 {
		cfg.LogMaxSizeMB = def.LogMaxSizeMB
	}
}

// Validate rejects configurations the daemon cannot start with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.RPCAddress) == "" {
		return fmt.Errorf("config: RPCAddress must not be empty")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("config: DataDir must not be empty")
	}
	return nil
}
