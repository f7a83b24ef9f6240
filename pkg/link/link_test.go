package link

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/xplshn/ledc/pkg/config"
)

func newConfig(t *testing.T, goos, platform string) *config.Config {
	t.Helper()
	cfg := config.NewConfig()
	cfg.CC, cfg.RuntimeDir = "", ""
	if err := cfg.SetTarget(goos, "amd64", platform); err != nil {
		t.Fatal(err)
	}
	return cfg
}

func TestCommand(t *testing.T) {
	tests := []struct {
		name   string
		goos   string
		setup  func(*config.Config)
		target string
		cc     string
		args   []string
	}{
		{
			name:   "native",
			target: config.PlatformNative,
			cc:     "cc",
			args:   []string{"-no-pie", "-o", "a.out", "-xassembler", "-", "-xnone", "-lruntime", "-pthread", "-ldl", "-lm", "-Wl,--gc-sections"},
		},
		{
			name:   "native stripped with runtime dir",
			target: config.PlatformNative,
			setup: func(cfg *config.Config) {
				cfg.RuntimeDir, cfg.Strip = "/opt/ledc/rt", true
				cfg.LinkerArgs = []string{"-static"}
			},
			cc:   "cc",
			args: []string{"-no-pie", "-o", "a.out", "-xassembler", "-", "-xnone", "-L/opt/ledc/rt", "-lruntime", "-pthread", "-ldl", "-lm", "-Wl,--gc-sections", "-s", "-static"},
		},
		{
			name:   "native macOS",
			goos:   "darwin",
			target: config.PlatformNative,
			setup:  func(cfg *config.Config) { cfg.RuntimeDir = "/opt/ledc/rt" },
			cc:     "cc",
			args:   []string{"-o", "a.out", "-xassembler", "-", "-xnone", "-L/opt/ledc/rt", "-lruntime", "-pthread", "-ldl", "-lm", "-Wl,-dead_strip"},
		},
		{
			name:   "esp8266",
			target: config.PlatformESP8266,
			setup:  func(cfg *config.Config) { cfg.RuntimeDir = "rt/esp" },
			cc:     "xtensa-lx106-elf-gcc",
			args:   []string{"-mlongcalls", "-nostartfiles", "-Wl,-Tlink.x", "-o", "a.out", "-xassembler", "-", "-xnone", "-Lrt/esp", "-lruntime", "-Wl,--gc-sections"},
		},
		{
			name:   "driver override",
			target: config.PlatformESP8266,
			setup:  func(cfg *config.Config) { cfg.CC = "/usr/local/xtensa/bin/gcc" },
			cc:     "/usr/local/xtensa/bin/gcc",
			args:   []string{"-mlongcalls", "-nostartfiles", "-Wl,-Tlink.x", "-o", "a.out", "-xassembler", "-", "-xnone", "-lruntime", "-Wl,--gc-sections"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			goos := tt.goos
			if goos == "" {
				goos = "linux"
			}
			cfg := newConfig(t, goos, tt.target)
			if tt.setup != nil {
				tt.setup(cfg)
			}
			cc, args, err := Command(cfg, "a.out")
			if err != nil {
				t.Fatalf("Command: %v", err)
			}
			if cc != tt.cc {
				t.Errorf("driver = %q, want %q", cc, tt.cc)
			}
			if diff := cmp.Diff(tt.args, args); diff != "" {
				t.Errorf("arguments mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCommandUnknownPlatform(t *testing.T) {
	cfg := config.NewConfig()
	if _, _, err := Command(cfg, "a.out"); err == nil {
		t.Error("unconfigured platform accepted")
	}
}

func TestAssembleAndLinkReportsDriverFailure(t *testing.T) {
	cfg := newConfig(t, "linux", config.PlatformNative)
	cfg.CC = "/nonexistent/ledc-cc"
	var trace bytes.Buffer
	err := AssembleAndLink(context.Background(), cfg, "a.out", strings.NewReader("\tret\n"), &trace)
	if err == nil || !strings.Contains(err.Error(), "/nonexistent/ledc-cc command failed") {
		t.Errorf("got %v, want a driver failure", err)
	}
	if !strings.HasPrefix(trace.String(), "/nonexistent/ledc-cc -no-pie -o a.out") {
		t.Errorf("invocation not traced: %q", trace.String())
	}
}
