package util

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/xplshn/ledc/pkg/config"
	"github.com/xplshn/ledc/pkg/token"
)

// Diagnostics is where errors and warnings are written
var Diagnostics io.Writer = os.Stderr

// exit is swapped out by tests
var exit = os.Exit

// SourceFileRecord tracks the name and content of a single source file.
type SourceFileRecord struct {
	Name    string
	Content []rune
}

var sourceFiles []SourceFileRecord

// SetSourceFiles stores the source code for all input files for rich error messages
func SetSourceFiles(files []SourceFileRecord) {
	sourceFiles = files
}

// findFileAndLine converts a global token to a file-specific location
func findFileAndLine(tok token.Token) (filename string, line, col int) {
	if tok.FileIndex < 0 || tok.FileIndex >= len(sourceFiles) {
		return "unknown", tok.Line, tok.Column
	}
	return sourceFiles[tok.FileIndex].Name, tok.Line, tok.Column
}

// printErrorLine prints the source line and a caret indicating the error position
func printErrorLine(w io.Writer, tok token.Token) {
	if tok.FileIndex < 0 || tok.FileIndex >= len(sourceFiles) || tok.Line == 0 {
		return
	}

	content := sourceFiles[tok.FileIndex].Content
	lineNum := tok.Line
	lineStart := 0
	for i, r := range content {
		if lineNum <= 1 {
			break
		}
		if r == '\n' {
			lineNum--
			lineStart = i + 1
		}
	}
	if lineNum > 1 {
		return
	}

	lineEnd := len(content)
	for i := lineStart; i < len(content); i++ {
		if content[i] == '\n' {
			lineEnd = i
			break
		}
	}

	fmt.Fprintf(w, "  %s\n", string(content[lineStart:lineEnd]))

	col := tok.Column
	if col < 1 {
		col = 1
	}
	fmt.Fprintf(w, "  %s\033[32m^", strings.Repeat(" ", col-1))
	if tok.Len > 1 {
		fmt.Fprintf(w, "%s", strings.Repeat("~", tok.Len-1))
	}
	fmt.Fprintln(w, "\033[0m")
}

// Report prints a formatted error message without exiting
func Report(tok token.Token, format string, args ...interface{}) {
	filename, line, col := findFileAndLine(tok)
	fmt.Fprintf(Diagnostics, "%s:%d:%d: \033[31merror:\033[0m ", filename, line, col)
	fmt.Fprintf(Diagnostics, format, args...)
	fmt.Fprintln(Diagnostics)
	printErrorLine(Diagnostics, tok)
}

// Error prints a formatted error message and exits the program
func Error(tok token.Token, format string, args ...interface{}) {
	Report(tok, format, args...)
	exit(1)
}

// Warn prints a formatted warning message if the corresponding warning is enabled
func Warn(cfg *config.Config, wt config.Warning, tok token.Token, format string, args ...interface{}) {
	if !cfg.IsWarningEnabled(wt) {
		return
	}
	filename, line, col := findFileAndLine(tok)
	warningName := cfg.Warnings[wt].Name
	fmt.Fprintf(Diagnostics, "%s:%d:%d: \033[33mwarning:\033[0m ", filename, line, col)
	fmt.Fprintf(Diagnostics, format, args...)
	fmt.Fprintf(Diagnostics, " [-W%s]\n", warningName)
	printErrorLine(Diagnostics, tok)
}

// AlignUp rounds n up to the nearest multiple of align
func AlignUp(n, align int) int {
	if align <= 0 {
		return n
	}
	return (n + align - 1) / align * align
}
