package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, data string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(data), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestLoad_Defaults(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Command != "npx" {
		t.Fatalf("command = %q", c.Command)
	}
	wantArgv := []string{"vite", "--host", "0.0.0.0", "--port", "5173"}
	if got := c.Argv(); !reflect.DeepEqual(got, wantArgv) {
		t.Fatalf("Argv = %v want %v", got, wantArgv)
	}
	if c.Restart.MaxRestarts != 3 || c.Restart.StartupDelay != 5*time.Second || c.Restart.CrashDelay != 3*time.Second {
		t.Fatalf("unexpected restart defaults: %+v", c.Restart)
	}
	if !reflect.DeepEqual(c.Ready.Markers, []string{"ready in", "Local:"}) {
		t.Fatalf("markers = %v", c.Ready.Markers)
	}
	if c.Log.File != "server.log" {
		t.Fatalf("log file = %q", c.Log.File)
	}
	env, err := c.ChildEnv()
	if err != nil {
		t.Fatal(err)
	}
	if len(env) != 0 {
		t.Fatalf("child env should be empty by default, got %v", env)
	}
	if c.Metrics.Enabled || c.Metrics.Listen != "" || c.History.DSN != "" {
		t.Fatalf("optional surfaces should be off by default: %+v %+v", c.Metrics, c.History)
	}
}

func TestDefault_MatchesLoad(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(Default(), c) {
		t.Fatalf("Default() differs from Load(\"\")")
	}
}

func TestLoad_TOMLOverrides(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "devsup.toml", `
command = "pnpm"
args = ["exec", "vite"]
port = 3000
env = ["NODE_ENV=test"]

[restart]
max_restarts = 5
startup_delay = "250ms"
crash_delay = "1s"

[ready]
markers = ["listening on"]

[log]
file = "logs/dev.log"
level = "debug"
`)
	c, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Command != "pnpm" || c.Port != 3000 || c.Host != "0.0.0.0" {
		t.Fatalf("unexpected command/port/host: %q %d %q", c.Command, c.Port, c.Host)
	}
	if c.Restart.MaxRestarts != 5 || c.Restart.StartupDelay != 250*time.Millisecond || c.Restart.CrashDelay != time.Second {
		t.Fatalf("unexpected restart: %+v", c.Restart)
	}
	if !reflect.DeepEqual(c.Ready.Markers, []string{"listening on"}) {
		t.Fatalf("markers = %v", c.Ready.Markers)
	}
	if c.Logger().File != "logs/dev.log" || c.Logger().Level != "debug" {
		t.Fatalf("logger = %+v", c.Logger())
	}
	if !reflect.DeepEqual(c.Env, []string{"NODE_ENV=test"}) {
		t.Fatalf("env = %v", c.Env)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DEVSUP_PORT", "4000")
	t.Setenv("DEVSUP_RESTART_MAX_RESTARTS", "7")
	t.Setenv("DEVSUP_METRICS_LISTEN", "127.0.0.1:9100")
	c, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Port != 4000 || c.Restart.MaxRestarts != 7 || c.Metrics.Listen != "127.0.0.1:9100" {
		t.Fatalf("env overrides not applied: port=%d max=%d listen=%q", c.Port, c.Restart.MaxRestarts, c.Metrics.Listen)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"empty command", func(c *Config) { c.Command = " " }, "command is required"},
		{"bad port", func(c *Config) { c.Port = 70000 }, "out of range"},
		{"negative restarts", func(c *Config) { c.Restart.MaxRestarts = -1 }, "max_restarts"},
		{"negative delay", func(c *Config) { c.Restart.CrashDelay = -time.Second }, "delays"},
		{"no markers", func(c *Config) { c.Ready.Markers = nil }, "at least one marker"},
		{"empty marker", func(c *Config) { c.Ready.Markers = []string{"ok", ""} }, "markers[1]"},
		{"bad env", func(c *Config) { c.Env = []string{"NOVALUE"} }, "KEY=VALUE"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := Default()
			tc.mutate(c)
			err := c.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tc.want)
			}
		})
	}
	if err := Default().Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestArgv_OmitsUnsetBindings(t *testing.T) {
	c := &Config{Command: "./server", Args: []string{"serve"}}
	if got := c.Argv(); !reflect.DeepEqual(got, []string{"serve"}) {
		t.Fatalf("Argv = %v", got)
	}
}

func TestChildEnv_FilesThenList(t *testing.T) {
	dir := t.TempDir()
	dotenv := writeFile(t, dir, ".env", "A=1\n#comment\n\nB = two\nNODE_ENV=staging\n")
	c := Default()
	c.EnvFiles = []string{dotenv}
	c.Env = []string{"B=three"}
	got, err := c.ChildEnv()
	if err != nil {
		t.Fatalf("ChildEnv: %v", err)
	}
	want := []string{"A=1", "B=two", "NODE_ENV=staging", "B=three"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ChildEnv = %v want %v", got, want)
	}
}

func TestChildEnv_MissingFile(t *testing.T) {
	c := Default()
	c.EnvFiles = []string{filepath.Join(t.TempDir(), "missing.env")}
	if _, err := c.ChildEnv(); err == nil {
		t.Fatalf("expected error for missing env file")
	}
}
