package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
)

func newConfigCommand() *cobra.Command {
	c := &cobra.Command{Use: "test"}
	c.Flags().String("config", "", "")
	c.Flags().String("rules", "", "")
	c.Flags().StringSlice("module", nil, "")
	c.Flags().Int("revision", 0, "")
	c.Flags().Bool("auto-slots", false, "")
	return c
}

func TestLoadConfigFile(t *testing.T) {
	t.Setenv("SYMMAP_LOG_LEVEL", "")
	dir := t.TempDir()
	path := filepath.Join(dir, "symmap.yaml")
	yaml := `rules: rules.xml
revision: 7
auto_slots: true
modules:
  - Main=game.exe
  - Engine=engine.dll
slots: [GWorld, GNames]
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	c := newConfigCommand()
	if err := c.Flags().Set("config", path); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(c)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Rules != "rules.xml" || cfg.Revision != 7 || !cfg.AutoSlots {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if len(cfg.Modules) != 2 || len(cfg.Slots) != 2 {
		t.Errorf("modules %v slots %v", cfg.Modules, cfg.Slots)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want default info", cfg.LogLevel)
	}

	// flags win over the file
	if err := c.Flags().Set("revision", "9"); err != nil {
		t.Fatal(err)
	}
	cfg, err = LoadConfig(c)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Revision != 9 {
		t.Errorf("Revision = %d, want flag value 9", cfg.Revision)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	c := newConfigCommand()
	if _, err := LoadConfig(c); err != nil {
		t.Fatalf("no config file should not be an error: %v", err)
	}

	if err := c.Flags().Set("config", filepath.Join(t.TempDir(), "absent.yaml")); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(c); err == nil {
		t.Fatal("an explicit missing config file should fail")
	}
}

func TestParseModules(t *testing.T) {
	cfg := &Config{Modules: []string{"game.exe", "Engine = engine.dll"}}
	mods, err := cfg.ParseModules()
	if err != nil {
		t.Fatal(err)
	}
	want := []ModuleSpec{{"Main", "game.exe"}, {"Engine", "engine.dll"}}
	if len(mods) != len(want) {
		t.Fatalf("got %v", mods)
	}
	for i := range want {
		if mods[i] != want[i] {
			t.Errorf("module %d = %+v, want %+v", i, mods[i], want[i])
		}
	}

	for _, bad := range [][]string{
		{"a.exe", "b.exe"},
		{"Engine=a.dll", "engine=b.dll"},
		{"Engine="},
	} {
		cfg := &Config{Modules: bad}
		if _, err := cfg.ParseModules(); err == nil {
			t.Errorf("ParseModules(%v) succeeded", bad)
		}
	}
}
