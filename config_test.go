package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	dir := t.TempDir()
	wd, _ := os.Getwd()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(wd)

	cfg, err := LoadConfig(defaultConfigPath)
	if err != nil {
		t.Fatalf("missing default config: %v", err)
	}
	if cfg.Printer.HTTPPort != 3030 || cfg.Discovery.Port != 3000 || cfg.Discovery.Timeout != 5*time.Second {
		t.Errorf("defaults = %+v", cfg)
	}
	if _, ok := cfg.PinnedDevice(); ok {
		t.Error("default config pins a printer")
	}
}

func TestLoadConfigMissingExplicit(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("missing explicit config accepted")
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chitu.yaml")
	data := `
environment: production
printer:
  ip: 192.168.1.50
  mainboard_id: ABC123
discovery:
  broadcast: auto
  timeout: 2s
timeouts:
  command: 3s
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Environment != "production" || cfg.Discovery.Broadcast != "auto" || cfg.Discovery.Timeout != 2*time.Second {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Timeouts.Command != 3*time.Second || cfg.Timeouts.Upload != 10*time.Minute {
		t.Errorf("timeouts = %+v", cfg.Timeouts)
	}
	// Unset keys keep their defaults.
	if cfg.Printer.HTTPPort != 3030 || cfg.Discovery.Port != 3000 {
		t.Errorf("ports = %d/%d", cfg.Printer.HTTPPort, cfg.Discovery.Port)
	}

	dev, ok := cfg.PinnedDevice()
	if !ok || dev.IP != "192.168.1.50" || dev.MainboardID != "ABC123" {
		t.Errorf("PinnedDevice = %+v, %v", dev, ok)
	}
}

func TestLoadConfigInvalid(t *testing.T) {
	tests := map[string]string{
		"bad yaml":     "printer: [",
		"bad port":     "printer:\n  http_port: 70000\n",
		"zero timeout": "discovery:\n  timeout: 0s\n",
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "chitu.yaml")
			if err := os.WriteFile(path, []byte(data), 0644); err != nil {
				t.Fatal(err)
			}
			if _, err := LoadConfig(path); err == nil {
				t.Error("invalid config accepted")
			}
		})
	}
}

func TestRootFlagsOverrideConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chitu.yaml")
	if err := os.WriteFile(path, []byte("environment: test\nprinter:\n  ip: 10.0.0.1\n"), 0644); err != nil {
		t.Fatal(err)
	}

	a := &app{}
	root := a.rootCmd()
	if err := root.ParseFlags([]string{"--config", path, "--mainboard-id", "XYZ", "--broadcast", "auto"}); err != nil {
		t.Fatal(err)
	}
	if err := root.PersistentPreRunE(root, nil); err != nil {
		t.Fatal(err)
	}

	if a.cfg.Printer.IP != "10.0.0.1" {
		t.Errorf("ip = %q, config value lost", a.cfg.Printer.IP)
	}
	if a.cfg.Printer.MainboardID != "XYZ" || a.cfg.Discovery.Broadcast != "auto" {
		t.Errorf("flags not applied: %+v", a.cfg)
	}
	if _, ok := a.cfg.PinnedDevice(); !ok {
		t.Error("config plus flag should pin the printer")
	}
	if a.log == nil {
		t.Error("logger not created")
	}

	for _, name := range []string{"discover", "upload", "files", "start", "print", "emulate"} {
		if cmd, _, err := root.Find([]string{name}); err != nil || cmd.Name() != name {
			t.Errorf("subcommand %s missing", name)
		}
	}
}
