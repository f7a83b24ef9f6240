package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/go-cmp/cmp"
)

type Execution struct {
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	ExitCode int           `json:"exitCode"`
	Duration time.Duration `json:"duration"`
	TimedOut bool          `json:"timed_out"`
}

// TargetResult is what one compiler target produced for a program
type TargetResult struct {
	Compile Execution  `json:"compile"`
	AsmHash string     `json:"asm_hash,omitempty"`
	Run     *Execution `json:"run,omitempty"`
}

type Golden struct {
	SourceHash string                   `json:"source_hash"`
	Targets    map[string]*TargetResult `json:"targets"`
}

type FileTestResult struct {
	File    string                   `json:"file"`
	Status  string                   `json:"status"` // PASS, FAIL, SKIP, ERROR
	Message string                   `json:"message,omitempty"`
	Diff    string                   `json:"diff,omitempty"`
	Targets map[string]*TargetResult `json:"targets,omitempty"`
}

type TestSuiteResults map[string]*FileTestResult

var (
	compiler       = flag.String("compiler", "./ledc", "Path to the compiler to test.")
	compilerArgs   = flag.String("compiler-args", "", "Extra arguments for the compiler (space-separated).")
	targets        = flag.String("targets", "native esp8266", "Targets to compile every program for (space-separated).")
	runNative      = flag.Bool("run", false, "Link and run native binaries and compare their output.")
	hostRuntime    = flag.String("runtime", "", "C source of a host runtime to build and link native binaries against (with -run).")
	generateGolden = flag.String("generate-golden", "", "Generate a golden .json file for a given program.")
	testFiles      = flag.String("test-files", "examples/*.json", "Glob pattern(s) for programs to test (space-separated).")
	skipFiles      = flag.String("skip-files", "", "Files to skip (space-separated).")
	outputJSON     = flag.String("output", ".test_results.json", "Output file for the JSON test report.")
	timeout        = flag.Duration("timeout", 5*time.Second, "Timeout for each command execution.")
	jobs           = flag.Int("j", 4, "Number of parallel test jobs.")
	verbose        = flag.Bool("v", false, "Enable verbose logging.")
	jsonDir        = flag.String("dir", "", "Directory to store/read golden JSON files (defaults to the program's dir).")
)

const (
	cRed    = "\x1b[91m"
	cYellow = "\x1b[93m"
	cGreen  = "\x1b[92m"
	cCyan   = "\x1b[96m"
	cBold   = "\x1b[1m"
	cNone   = "\x1b[0m"
)

func main() {
	flag.Parse()
	log.SetFlags(0)

	tempDir, err := os.MkdirTemp("", "gtest-*")
	if err != nil {
		log.Fatalf("%s[ERROR]%s Failed to create temp directory: %v\n", cRed, cNone, err)
	}
	defer os.RemoveAll(tempDir)
	setupInterruptHandler(tempDir)

	if *runNative && *hostRuntime != "" {
		if runtimeDir, err = buildRuntime(tempDir, *hostRuntime); err != nil {
			os.RemoveAll(tempDir)
			log.Fatalf("%s[ERROR]%s %v\n", cRed, cNone, err)
		}
	}

	if *generateGolden != "" {
		handleGenerateGolden(*generateGolden, tempDir)
		return
	}

	if !handleRunTestSuite(tempDir) {
		os.RemoveAll(tempDir)
		os.Exit(1)
	}
}

// runtimeDir holds the libruntime.a built from -runtime, empty when the compiler's own search path is used
var runtimeDir string

// buildRuntime compiles a C host runtime into libruntime.a and returns the directory holding it
func buildRuntime(tempDir, src string) (string, error) {
	dir := filepath.Join(tempDir, "runtime")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	obj := filepath.Join(dir, "runtime.o")
	steps := [][]string{
		{"cc", "-c", "-o", obj, src},
		{"ar", "rcs", filepath.Join(dir, "libruntime.a"), obj},
	}
	for _, step := range steps {
		if res := executeCommand(ctx, step[0], step[1:]...); res.ExitCode != 0 || res.TimedOut {
			return "", fmt.Errorf("building the host runtime: %s failed:\n%s", strings.Join(step, " "), res.Stderr)
		}
	}
	return dir, nil
}

// setupInterruptHandler is used to clean up on CTRL+C
func setupInterruptHandler(tempDir string) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	go func() {
		<-c
		os.RemoveAll(tempDir)
		fmt.Printf("\n%s[INTERRUPT]%s Test run cancelled. Cleaning up...\n", cYellow, cNone)
		os.Exit(1)
	}()
}

func getJSONPath(sourceFile string) string {
	jsonFileName := "." + strings.TrimSuffix(filepath.Base(sourceFile), ".json") + ".golden.json"
	if *jsonDir != "" {
		return filepath.Join(*jsonDir, jsonFileName)
	}
	return filepath.Join(filepath.Dir(sourceFile), jsonFileName)
}

func hashReader(r io.Reader) (string, error) {
	h := xxhash.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum64()), nil
}

// hashFile computes the xxhash of a file's content
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return hashReader(f)
}

func handleGenerateGolden(sourceFile, tempDir string) {
	log.Printf("Generating golden file for %s...\n", sourceFile)

	fileHash, err := hashFile(sourceFile)
	if err != nil {
		log.Fatalf("%s[ERROR]%s Could not hash source file %s: %v\n", cRed, cNone, sourceFile, err)
	}

	golden := Golden{SourceHash: fileHash, Targets: compileAllTargets(sourceFile, tempDir, fileHash)}
	jsonData, err := json.MarshalIndent(golden, "", "  ")
	if err != nil {
		log.Fatalf("%s[ERROR]%s Failed to marshal golden data to JSON: %v\n", cRed, cNone, err)
	}

	goldenFileName := getJSONPath(sourceFile)
	if *jsonDir != "" {
		if err := os.MkdirAll(*jsonDir, 0755); err != nil {
			log.Fatalf("%s[ERROR]%s Failed to create directory %s: %v\n", cRed, cNone, *jsonDir, err)
		}
	}
	if err := os.WriteFile(goldenFileName, jsonData, 0644); err != nil {
		log.Fatalf("%s[ERROR]%s Failed to write golden file %s: %v\n", cRed, cNone, goldenFileName, err)
	}

	log.Printf("%s[SUCCESS]%s Golden file created at %s\n", cGreen, cNone, goldenFileName)
}

func handleRunTestSuite(tempDir string) bool {
	if _, err := exec.LookPath(*compiler); err != nil {
		log.Fatalf("%s[ERROR]%s Compiler '%s' not found: %v\n", cRed, cNone, *compiler, err)
	}

	files, err := expandGlobPatterns(*testFiles)
	if err != nil {
		log.Fatalf("%s[ERROR]%s Invalid glob pattern(s): %v\n", cRed, cNone, err)
	}
	if len(files) == 0 {
		log.Println("No test files found matching the pattern(s).")
		return true
	}

	skipList := make(map[string]bool)
	for _, f := range strings.Fields(*skipFiles) {
		skipList[f] = true
	}

	tasks := make(chan string, len(files))
	resultsChan := make(chan *FileTestResult, len(files))
	var wg sync.WaitGroup

	for i := 0; i < *jobs; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for file := range tasks {
				fileHash, err := hashFile(file)
				if err != nil {
					resultsChan <- &FileTestResult{File: file, Status: "ERROR", Message: "Failed to hash source file"}
					continue
				}
				resultsChan <- testFile(file, tempDir, fileHash)
			}
		}()
	}

	// Feed the tasks channel, skipping files with identical content
	seenHashes := make(map[string]string)
	for _, file := range files {
		if skipList[file] || skipList[filepath.Base(file)] {
			resultsChan <- &FileTestResult{File: file, Status: "SKIP", Message: "Explicitly skipped"}
			continue
		}
		fileHash, err := hashFile(file)
		if err != nil {
			resultsChan <- &FileTestResult{File: file, Status: "ERROR", Message: fmt.Sprintf("Failed to read file for hashing: %v", err)}
			continue
		}
		if originalFile, seen := seenHashes[fileHash]; seen {
			resultsChan <- &FileTestResult{File: file, Status: "SKIP", Message: fmt.Sprintf("Content is identical to %s", originalFile)}
			continue
		}
		seenHashes[fileHash] = file
		tasks <- file
	}
	close(tasks)

	wg.Wait()
	close(resultsChan)

	var allResults []*FileTestResult
	for result := range resultsChan {
		allResults = append(allResults, result)
	}
	sort.Slice(allResults, func(i, j int) bool {
		return allResults[i].File < allResults[j].File
	})

	printSummary(allResults)
	return !hasFailures(writeJSONReport(allResults))
}

func testFile(file, tempDir, fileHash string) *FileTestResult {
	goldenFile := getJSONPath(file)
	goldenData, err := os.ReadFile(goldenFile)
	if errors.Is(err, os.ErrNotExist) {
		return &FileTestResult{File: file, Status: "SKIP", Message: "Cannot test without a corresponding golden file, run with --generate-golden"}
	}
	if err != nil {
		return &FileTestResult{File: file, Status: "ERROR", Message: fmt.Sprintf("Could not read golden file %s: %v", goldenFile, err)}
	}
	var golden Golden
	if err := json.Unmarshal(goldenData, &golden); err != nil {
		return &FileTestResult{File: file, Status: "ERROR", Message: fmt.Sprintf("Could not parse golden file %s: %v", goldenFile, err)}
	}

	results := compileAllTargets(file, tempDir, fileHash)
	result := compareResults(file, &golden, results)
	if golden.SourceHash != fileHash && result.Status == "PASS" {
		result.Message += " (golden file predates the current program)"
	}
	return result
}

func compileAllTargets(file, tempDir, fileHash string) map[string]*TargetResult {
	results := make(map[string]*TargetResult)
	for _, target := range strings.Fields(*targets) {
		results[target] = compileTarget(file, target, tempDir, fileHash)
	}
	return results
}

func compareResults(file string, golden *Golden, got map[string]*TargetResult) *FileTestResult {
	var diffs strings.Builder
	var failed bool

	for _, target := range strings.Fields(*targets) {
		want, ok := golden.Targets[target]
		if !ok {
			failed = true
			fmt.Fprintf(&diffs, "Target '%s' missing in golden file.\n", target)
			continue
		}
		res := got[target]

		if want.Compile.ExitCode != res.Compile.ExitCode {
			failed = true
			fmt.Fprintf(&diffs, "[%s] Compile exit code mismatch:\n  - Golden: %d\n  - Got:    %d\n", target, want.Compile.ExitCode, res.Compile.ExitCode)
		}
		if want.Compile.Stderr != res.Compile.Stderr {
			failed = true
			fmt.Fprintf(&diffs, "[%s] Diagnostics mismatch:\n%s", target, cmp.Diff(want.Compile.Stderr, res.Compile.Stderr))
		}
		// a golden without asm_hash pins diagnostics and output only
		if want.AsmHash != "" && want.AsmHash != res.AsmHash {
			failed = true
			fmt.Fprintf(&diffs, "[%s] Assembly hash mismatch:\n  - Golden: %s\n  - Got:    %s\n", target, want.AsmHash, res.AsmHash)
		}
		if want.Run != nil && res.Run != nil {
			if want.Run.ExitCode != res.Run.ExitCode {
				failed = true
				fmt.Fprintf(&diffs, "[%s] Exit code mismatch:\n  - Golden: %d\n  - Got:    %d\n", target, want.Run.ExitCode, res.Run.ExitCode)
			}
			if want.Run.Stdout != res.Run.Stdout {
				failed = true
				fmt.Fprintf(&diffs, "[%s] STDOUT mismatch:\n%s", target, cmp.Diff(want.Run.Stdout, res.Run.Stdout))
			}
		}
	}

	if failed {
		return &FileTestResult{File: file, Status: "FAIL", Message: "Output does not match the golden file", Diff: diffs.String(), Targets: got}
	}
	return &FileTestResult{File: file, Status: "PASS", Message: "All targets match", Targets: got}
}

// executeCommand runs a command with a timeout and captures its output
func executeCommand(ctx context.Context, command string, args ...string) Execution {
	startTime := time.Now()
	cmd := exec.CommandContext(ctx, command, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	execResult := Execution{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(startTime),
	}

	var exitErr *exec.ExitError
	switch {
	case ctx.Err() == context.DeadlineExceeded:
		execResult.TimedOut = true
		execResult.ExitCode = -1
	case errors.As(err, &exitErr):
		execResult.ExitCode = exitErr.ExitCode()
	case err != nil:
		execResult.ExitCode = -2
		execResult.Stderr += "\nExecution error: " + err.Error()
	}
	return execResult
}

// compileTarget emits assembly for target and, for native programs with --run, links and runs the binary
func compileTarget(sourceFile, target, tempDir, fileHash string) *TargetResult {
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	base := filepath.Join(tempDir, fileHash+"-"+target)
	args := append([]string{"-S", "-t", target, "-o", base + ".s"}, strings.Fields(*compilerArgs)...)
	result := &TargetResult{Compile: executeCommand(ctx, *compiler, append(args, sourceFile)...)}
	if result.Compile.ExitCode != 0 || result.Compile.TimedOut {
		return result
	}

	asmHash, err := hashFile(base + ".s")
	if err != nil {
		result.Compile.Stderr += "\nCould not hash assembly: " + err.Error()
		return result
	}
	result.AsmHash = asmHash
	if *verbose {
		log.Printf("[%s] %s assembly hash %s", sourceFile, target, asmHash)
	}

	if !*runNative || target != "native" {
		return result
	}

	args = []string{"-t", target, "-o", base}
	if runtimeDir != "" {
		args = append(args, "-L", runtimeDir)
	}
	args = append(args, strings.Fields(*compilerArgs)...)
	link := executeCommand(ctx, *compiler, append(args, sourceFile)...)
	if link.ExitCode != 0 || link.TimedOut {
		result.Run = &link
		return result
	}

	runCtx, runCancel := context.WithTimeout(context.Background(), *timeout)
	defer runCancel()
	run := executeCommand(runCtx, base)
	result.Run = &run
	return result
}

func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%6dµs", d.Microseconds())
	}
	return fmt.Sprintf("%6dms", d.Milliseconds())
}

func printSummary(results []*FileTestResult) {
	var passed, failed, skipped, errored int
	var totalCompile time.Duration
	var compiles int

	for _, result := range results {
		fmt.Println("----------------------------------------------------------------------")
		fmt.Printf("Testing %s%s%s...\n", cCyan, result.File, cNone)

		switch result.Status {
		case "PASS":
			passed++
			fmt.Printf("  [%sPASS%s] %s\n", cGreen, cNone, result.Message)
		case "FAIL":
			failed++
			fmt.Printf("  [%sFAIL%s] %s\n", cRed, cNone, result.Message)
			fmt.Println(formatDiff(result.Diff))
		case "SKIP":
			skipped++
			fmt.Printf("  [%sSKIP%s] %s\n", cYellow, cNone, result.Message)
		case "ERROR":
			errored++
			fmt.Printf("  [%sERROR%s] %s\n", cRed, cNone, result.Message)
		}

		names := make([]string, 0, len(result.Targets))
		for name := range result.Targets {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			res := result.Targets[name]
			totalCompile += res.Compile.Duration
			compiles++
			if *verbose {
				fmt.Printf("    %-8s compile: %s  asm: %s\n", name, formatDuration(res.Compile.Duration), res.AsmHash)
			}
		}
	}

	fmt.Println("----------------------------------------------------------------------")
	fmt.Printf("%sTest Summary:%s %s%d Passed%s, %s%d Failed%s, %s%d Skipped%s, %s%d Errored%s, %d Total\n",
		cBold, cNone, cGreen, passed, cNone, cRed, failed, cNone, cYellow, skipped, cNone, cRed, errored, cNone, len(results))
	if compiles > 0 {
		fmt.Printf("Average compile time: %s\n", strings.TrimSpace(formatDuration(totalCompile/time.Duration(compiles))))
	}
}

func formatDiff(diff string) string {
	if diff == "" {
		return ""
	}
	var builder strings.Builder
	builder.WriteString("    --- Diff ---\n")
	for _, line := range strings.Split(diff, "\n") {
		trimmedLine := strings.TrimSpace(line)
		if strings.HasPrefix(trimmedLine, "-") {
			builder.WriteString(cRed)
		} else if strings.HasPrefix(trimmedLine, "+") {
			builder.WriteString(cGreen)
		}
		builder.WriteString("    " + line)
		builder.WriteString(cNone)
		builder.WriteString("\n")
	}
	return builder.String()
}

func writeJSONReport(results []*FileTestResult) TestSuiteResults {
	resultsMap := make(TestSuiteResults, len(results))
	for _, r := range results {
		resultsMap[r.File] = r
	}

	jsonData, err := json.MarshalIndent(resultsMap, "", "  ")
	if err != nil {
		log.Printf("%s[ERROR]%s Failed to marshal results to JSON: %v\n", cRed, cNone, err)
		return resultsMap
	}

	outputFile := *outputJSON
	if *jsonDir != "" {
		if err := os.MkdirAll(*jsonDir, 0755); err != nil {
			log.Printf("%s[ERROR]%s Failed to create dir %s: %v\n", cRed, cNone, *jsonDir, err)
		}
		outputFile = filepath.Join(*jsonDir, *outputJSON)
	}

	if err := os.WriteFile(outputFile, jsonData, 0644); err != nil {
		log.Printf("%s[ERROR]%s Failed to write JSON report to %s: %v\n", cRed, cNone, outputFile, err)
	} else {
		fmt.Printf("Full test report saved to %s\n", outputFile)
	}
	return resultsMap
}

func hasFailures(results TestSuiteResults) bool {
	for _, result := range results {
		if result.Status == "FAIL" || result.Status == "ERROR" {
			return true
		}
	}
	return false
}

func expandGlobPatterns(patterns string) ([]string, error) {
	var allFiles []string
	seen := make(map[string]bool)
	for _, pattern := range strings.Fields(patterns) {
		files, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %s: %w", pattern, err)
		}
		for _, file := range files {
			if strings.HasPrefix(filepath.Base(file), ".") {
				continue
			}
			absFile, err := filepath.Abs(file)
			if err != nil {
				continue
			}
			if !seen[absFile] {
				if info, err := os.Stat(absFile); err == nil && info.Mode().IsRegular() {
					allFiles = append(allFiles, absFile)
					seen[absFile] = true
				}
			}
		}
	}
	return allFiles, nil
}
