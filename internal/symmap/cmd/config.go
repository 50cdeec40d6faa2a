package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Config is the resolve configuration. It is read from symmap.{yaml,json,toml}
// in the working directory or $HOME/.symmap, SYMMAP_* environment variables
// and flags, in increasing order of precedence.
type Config struct {
	Rules     string   `mapstructure:"rules" json:"rules" jsonschema:"title=Rules,description=Path to the XML rule document"`
	Revision  int      `mapstructure:"revision" json:"revision" jsonschema:"title=Revision,description=Binary revision compared against version guards"`
	Deferred  bool     `mapstructure:"deferred" json:"deferred" jsonschema:"title=Deferred,description=Run the deferred pass after the eager pass"`
	Modules   []string `mapstructure:"modules" json:"modules" jsonschema:"title=Modules,description=Module images as Name=path; the first one without a name is Main"`
	Slots     []string `mapstructure:"slots" json:"slots,omitempty" jsonschema:"title=Slots,description=Output slot names rule documents may reference"`
	AutoSlots bool     `mapstructure:"auto_slots" json:"auto_slots" jsonschema:"title=Auto Slots,description=Declare any slot a rule document names"`
	InProcess bool     `mapstructure:"in_process" json:"in_process" jsonschema:"title=In Process,description=Load modules into this process instead of reading them from disk (windows only)"`
	LogLevel  string   `mapstructure:"log_level" json:"log_level" jsonschema:"title=Log Level,enum=debug,enum=info,enum=warn,enum=error,default=info"`
}

// ModuleSpec is one parsed Modules entry.
type ModuleSpec struct {
	Name string
	Path string
}

// ParseModules splits Name=path entries. An entry with no name registers the
// main module; only one such entry is allowed.
func (c *Config) ParseModules() ([]ModuleSpec, error) {
	seen := make(map[string]bool)
	out := make([]ModuleSpec, 0, len(c.Modules))
	for _, entry := range c.Modules {
		name, path, ok := strings.Cut(entry, "=")
		if !ok {
			name, path = "", entry
		}
		name, path = strings.TrimSpace(name), strings.TrimSpace(path)
		if name == "" {
			name = "Main"
		}
		if path == "" {
			return nil, fmt.Errorf("module %q: empty path", name)
		}
		if seen[strings.ToLower(name)] {
			return nil, fmt.Errorf("module %q listed twice", name)
		}
		seen[strings.ToLower(name)] = true
		out = append(out, ModuleSpec{Name: name, Path: path})
	}
	return out, nil
}

// configFlags maps config keys to the resolve flags that override them.
var configFlags = map[string]string{
	"rules":      "rules",
	"revision":   "revision",
	"deferred":   "deferred",
	"modules":    "module",
	"slots":      "slot",
	"auto_slots": "auto-slots",
	"in_process": "in-process",
	"log_level":  "log-level",
}

// LoadConfig reads the configuration for cmd. A missing config file is not an
// error unless --config named one explicitly.
func LoadConfig(cmd *cobra.Command) (*Config, error) {
	v := viper.New()
	v.SetDefault("revision", 0)
	v.SetDefault("log_level", "info")

	if path, _ := cmd.Flags().GetString("config"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("symmap")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.symmap")
	}

	v.SetEnvPrefix("SYMMAP")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	for key, name := range configFlags {
		if f := cmd.Flags().Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}
