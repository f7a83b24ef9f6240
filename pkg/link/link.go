// Package link turns emitted assembly into an executable with the platform's C toolchain
package link

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/xplshn/ledc/pkg/config"
)

// Default drivers per platform, overridden by config.Config.CC
const (
	NativeCC  = "cc"
	ESP8266CC = "xtensa-lx106-elf-gcc"
)

// Command returns the driver and arguments that assemble stdin and link it into outFile
func Command(cfg *config.Config, outFile string) (string, []string, error) {
	var cc string
	var args []string

	switch cfg.Platform {
	case config.PlatformNative:
		cc = NativeCC
		// Mach-O output stays position independent
		if !cfg.MachO() {
			args = []string{"-no-pie"}
		}
	case config.PlatformESP8266:
		cc = ESP8266CC
		args = []string{"-mlongcalls", "-nostartfiles", "-Wl,-Tlink.x"}
	default:
		return "", nil, fmt.Errorf("no linker known for platform '%s'", cfg.Platform)
	}
	if cfg.CC != "" {
		cc = cfg.CC
	}

	args = append(args, "-o", outFile, "-xassembler", "-", "-xnone")
	if cfg.RuntimeDir != "" {
		args = append(args, "-L"+cfg.RuntimeDir)
	}
	args = append(args, "-lruntime")
	if cfg.Platform == config.PlatformNative {
		args = append(args, "-pthread", "-ldl", "-lm")
	}
	if cfg.MachO() {
		args = append(args, "-Wl,-dead_strip")
	} else {
		args = append(args, "-Wl,--gc-sections")
	}
	if cfg.Strip {
		args = append(args, "-s")
	}
	args = append(args, cfg.LinkerArgs...)
	return cc, args, nil
}

// AssembleAndLink feeds asm to the C driver. The invocation is echoed to trace when it is not nil
func AssembleAndLink(ctx context.Context, cfg *config.Config, outFile string, asm io.Reader, trace io.Writer) error {
	cc, args, err := Command(cfg, outFile)
	if err != nil {
		return err
	}
	if trace != nil {
		fmt.Fprintf(trace, "%s %s\n", cc, strings.Join(args, " "))
	}

	cmd := exec.CommandContext(ctx, cc, args...)
	cmd.Stdin = asm
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s command failed: %w\nOutput:\n%s", cc, err, string(output))
	}
	return nil
}
