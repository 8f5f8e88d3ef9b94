package main

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/nixos/nix-store-veritysetup-generator/internal/escape"
	"github.com/nixos/nix-store-veritysetup-generator/internal/veritysetup"
)

const configFile = "/etc/nix-store-veritysetup-generator.toml"

const (
	escaperCommand = "command"
	escaperBuiltin = "builtin"
)

type generatorConfig struct {
	VeritysetupPath string `toml:"systemd_veritysetup_path"`
	EscapePath      string `toml:"systemd_escape_path"`
	CmdlinePath     string `toml:"cmdline_path"`
	// "command" runs systemd-escape, "builtin" escapes in-process
	Escaper string `toml:"escaper"`
	Debug   bool   `toml:"debug"`
}

func defaultConfig() *generatorConfig {
	return &generatorConfig{
		VeritysetupPath: veritysetup.DefaultVeritysetupPath,
		EscapePath:      escape.DefaultCommand,
		CmdlinePath:     "/proc/cmdline",
		Escaper:         escaperCommand,
	}
}

// parseConfig reads file over the defaults. A missing file is not an error.
func parseConfig(file string) (*generatorConfig, error) {
	config := defaultConfig()

	_, err := toml.DecodeFile(file, config)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("cannot load config file %s: %w", file, err)
	}
	return config, nil
}

// applyEnv overrides the config with the environment. The systemd unit of
// the generator can't pass flags, so paths baked in at build time come from
// here.
func (c *generatorConfig) applyEnv(getenv func(string) string) {
	for name, field := range map[string]*string{
		"SYSTEMD_VERITYSETUP_PATH":      &c.VeritysetupPath,
		"SYSTEMD_ESCAPE_PATH":           &c.EscapePath,
		"NIX_STORE_VERITYSETUP_CMDLINE": &c.CmdlinePath,
		"NIX_STORE_VERITYSETUP_ESCAPER": &c.Escaper,
	} {
		if v := getenv(name); v != "" {
			*field = v
		}
	}
}

func (c *generatorConfig) validate() error {
	switch c.Escaper {
	case escaperCommand, escaperBuiltin:
	default:
		return fmt.Errorf("escaper needs to be %s or %s. Got: %s", escaperCommand, escaperBuiltin, c.Escaper)
	}
	if c.VeritysetupPath == "" {
		return fmt.Errorf("systemd_veritysetup_path must not be empty")
	}
	if c.CmdlinePath == "" {
		return fmt.Errorf("cmdline_path must not be empty")
	}
	return nil
}

func (c *generatorConfig) escaper() escape.Escaper {
	if c.Escaper == escaperBuiltin {
		return escape.Builtin{}
	}
	return escape.Command{Path: c.EscapePath}
}
