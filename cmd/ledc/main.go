package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/xplshn/ledc/pkg/ast"
	"github.com/xplshn/ledc/pkg/cli"
	"github.com/xplshn/ledc/pkg/codegen"
	"github.com/xplshn/ledc/pkg/config"
	"github.com/xplshn/ledc/pkg/link"
	"github.com/xplshn/ledc/pkg/token"
	"github.com/xplshn/ledc/pkg/util"
)

func main() {
	app := cli.NewApp("ledc")
	app.Synopsis = "[options] <program.json>"
	app.Description = "Code generator for the LED matrix language. Emits Xtensa lx106 assembly for the ESP8266 board and x86-64 assembly for running programs on the host."
	app.Authors = []string{"xplshn"}
	app.Repository = "<https://github.com/xplshn/ledc>"
	app.Since = 2025

	var (
		outFile    string
		target     string
		runtimeDir string
		entry      string
		linkerArgs []string
		asmOnly    bool
		strip      bool
		verbose    bool
	)

	cfg := config.NewConfig()
	cfg.ApplyEnv()

	fs := app.FlagSet
	fs.String(&outFile, "output", "o", "", "Place the output into <file>. '-' writes to stdout.", "file")
	fs.Choice(&target, "target", "t", config.DefaultPlatform(), []string{config.PlatformNative, config.PlatformESP8266}, "Select the target platform.")
	fs.Bool(&asmOnly, "assemble-only", "S", false, "Emit assembly and stop before linking.")
	fs.Bool(&strip, "strip", "s", false, "Strip symbols from the linked executable.")
	fs.String(&runtimeDir, "runtime", "L", cfg.RuntimeDir, "Search <dir> for libruntime and the board linker script.", "dir")
	fs.String(&entry, "entry", "", cfg.EntrySymbol, "Emit the program's main function as <symbol>.", "symbol")
	fs.List(&linkerArgs, "linker-arg", "X", []string{}, "Pass an argument to the linker.", "arg")
	fs.Bool(&verbose, "verbose", "v", false, "Report each compilation step.")

	warningFlags, featureFlags := cfg.SetupFlagGroups(fs)

	app.Action = func(inputFiles []string) error {
		if len(inputFiles) != 1 {
			util.Error(token.Token{FileIndex: -1}, "expected exactly one input program, got %d", len(inputFiles))
		}
		cfg.ApplyFlagGroups(warningFlags, featureFlags)
		if err := cfg.SetTarget(runtime.GOOS, runtime.GOARCH, target); err != nil {
			util.Error(token.Token{FileIndex: -1}, "%v", err)
		}
		cfg.RuntimeDir, cfg.EntrySymbol, cfg.Strip = runtimeDir, entry, strip
		cfg.LinkerArgs = append(cfg.LinkerArgs, linkerArgs...)

		progress := func(format string, args ...interface{}) {
			if verbose {
				fmt.Printf(format+"\n", args...)
			}
		}

		progress("Reading program '%s'...", inputFiles[0])
		prog := readProgram(inputFiles[0])

		progress("Generating %s assembly for '%s'...", cfg.Arch, cfg.Platform)
		asm, err := codegen.Generate(prog.Root, cfg)
		if err != nil {
			var cerr *codegen.Error
			if errors.As(err, &cerr) {
				util.Error(cerr.Tok, "%s", cerr.Message())
			}
			util.Error(token.Token{FileIndex: -1}, "code generation failed: %v", err)
		}

		if asmOnly {
			if outFile == "" {
				outFile = asmName(inputFiles[0])
			}
			progress("Writing assembly to '%s'...", outFile)
			if err := writeOutput(outFile, asm); err != nil {
				util.Error(token.Token{FileIndex: -1}, "%v", err)
			}
			return nil
		}

		if outFile == "" {
			outFile = "a.out"
		}
		progress("Linking to create '%s'...", outFile)
		var trace io.Writer
		if verbose {
			trace = os.Stdout
		}
		if err := link.AssembleAndLink(context.Background(), cfg, outFile, asm, trace); err != nil {
			util.Error(token.Token{FileIndex: -1}, "assembler/linker failed: %v", err)
		}
		progress("Done!")
		return nil
	}

	if err := app.Run(os.Args[1:]); err != nil {
		os.Exit(1)
	}
}

// readProgram decodes the parser's dump and records the source it names for diagnostics
func readProgram(path string) *ast.Program {
	var in io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			util.Error(token.Token{FileIndex: -1}, "could not read file '%s': %v", path, err)
		}
		defer f.Close()
		in = f
	}

	prog, err := ast.Decode(in)
	if err != nil {
		util.Error(token.Token{FileIndex: -1}, "%s: %v", path, err)
	}

	record := util.SourceFileRecord{Name: prog.Source}
	if record.Name == "" {
		record.Name = path
	} else if content, err := os.ReadFile(prog.Source); err == nil {
		record.Content = []rune(string(content))
	}
	util.SetSourceFiles([]util.SourceFileRecord{record})
	return prog
}

func asmName(input string) string {
	if input == "-" {
		return "-"
	}
	return filepath.Base(input[:len(input)-len(filepath.Ext(input))]) + ".s"
}

func writeOutput(path string, asm *bytes.Buffer) error {
	if path == "-" {
		_, err := asm.WriteTo(os.Stdout)
		return err
	}
	if err := os.WriteFile(path, asm.Bytes(), 0o644); err != nil {
		return fmt.Errorf("could not write '%s': %w", path, err)
	}
	return nil
}
