package util

import (
	"bytes"
	"strings"
	"testing"

	"github.com/xplshn/ledc/pkg/config"
	"github.com/xplshn/ledc/pkg/token"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := Diagnostics
	Diagnostics = &buf
	t.Cleanup(func() { Diagnostics = prev })
	return &buf
}

func TestWarnIsGated(t *testing.T) {
	buf := capture(t)
	cfg := config.NewConfig()
	tok := token.Token{Line: 2, Column: 3, FileIndex: -1}

	Warn(cfg, config.WarnDiscardedValue, tok, "value of '%s' is discarded", "x + 1")
	if buf.Len() != 0 {
		t.Fatalf("disabled warning printed: %q", buf.String())
	}

	cfg.SetWarning(config.WarnDiscardedValue, true)
	Warn(cfg, config.WarnDiscardedValue, tok, "value of '%s' is discarded", "x + 1")
	out := buf.String()
	for _, want := range []string{"unknown:2:3:", "value of 'x + 1' is discarded", "[-Wdiscarded-value]"} {
		if !strings.Contains(out, want) {
			t.Errorf("warning %q lacks %q", out, want)
		}
	}
}

func TestErrorShowsSourceLine(t *testing.T) {
	buf := capture(t)
	code := -1
	prevExit := exit
	exit = func(c int) { code = c }
	t.Cleanup(func() {
		exit = prevExit
		SetSourceFiles(nil)
	})

	SetSourceFiles([]SourceFileRecord{{Name: "blink.led", Content: []rune("var x = 1;\nx = y + 2;\n")}})
	Error(token.Token{Line: 2, Column: 5, Len: 1}, "undefined symbol '%s'", "y")

	if code != 1 {
		t.Errorf("exit code %d, want 1", code)
	}
	out := buf.String()
	if !strings.Contains(out, "blink.led:2:5:") || !strings.Contains(out, "undefined symbol 'y'") {
		t.Errorf("unexpected error header:\n%s", out)
	}
	if !strings.Contains(out, "  x = y + 2;\n") || !strings.Contains(out, "      \033[32m^") {
		t.Errorf("source line or caret missing:\n%q", out)
	}
}

func TestAlignUp(t *testing.T) {
	tests := []struct{ n, align, want int }{
		{0, 16, 0},
		{1, 16, 16},
		{16, 16, 16},
		{17, 8, 24},
		{5, 0, 5},
	}
	for _, tt := range tests {
		if got := AlignUp(tt.n, tt.align); got != tt.want {
			t.Errorf("AlignUp(%d, %d) = %d, want %d", tt.n, tt.align, got, tt.want)
		}
	}
}
