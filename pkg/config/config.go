package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/xplshn/ledc/pkg/cli"
	"github.com/xyproto/env/v2"
	"modernc.org/libqbe"
)

type Feature int

const (
	FeatSimulateHardware Feature = iota
	FeatPeephole
	FeatAsmComments
	FeatCount
)

type Warning int

const (
	WarnOverflow Warning = iota
	WarnUnreachableCode
	WarnDiscardedValue
	WarnHostArch
	WarnExtra
	WarnCount
)

type Info struct {
	Name        string
	Enabled     bool
	Description string
}

// Arch is the instruction set a backend emits
type Arch int

const (
	ArchX86_64 Arch = iota
	ArchXtensa
)

func (a Arch) String() string {
	switch a {
	case ArchX86_64:
		return "x86_64"
	case ArchXtensa:
		return "xtensa"
	}
	return fmt.Sprintf("Arch(%d)", int(a))
}

// Platforms accepted by --target. A platform is an architecture plus the runtime built for it
const (
	PlatformNative  = "native"
	PlatformESP8266 = "esp8266"
)

const DefaultEntrySymbol = "user_main"

type Config struct {
	Features       map[Feature]Info
	Warnings       map[Warning]Info
	FeatureMap     map[string]Feature
	WarningMap     map[string]Warning
	Platform       string
	Arch           Arch
	HostABI        string
	WordSize       int
	StackAlignment int
	SymbolPrefix   string
	EntrySymbol    string
	RuntimeDir     string
	CC             string
	LinkerArgs     []string
	Strip          bool
}

func NewConfig() *Config {
	cfg := &Config{
		Features:    make(map[Feature]Info),
		Warnings:    make(map[Warning]Info),
		FeatureMap:  make(map[string]Feature),
		WarningMap:  make(map[string]Warning),
		EntrySymbol: env.Str("LEDC_ENTRY", DefaultEntrySymbol),
		RuntimeDir:  env.Str("LEDC_RUNTIME_DIR"),
		CC:          env.Str("LEDC_CC"),
	}

	features := map[Feature]Info{
		FeatSimulateHardware: {"sim-hw", false, "Route hardware-only primitives to simulated runtime routines on the native target."},
		FeatPeephole:         {"peephole", false, "Drop jumps to the next label and code after unconditional jumps."},
		FeatAsmComments:      {"asm-comments", false, "Annotate the emitted assembly with source positions."},
	}

	warnings := map[Warning]Info{
		WarnOverflow:        {"overflow", true, "Warn when an integer constant does not fit the target word."},
		WarnUnreachableCode: {"unreachable-code", true, "Warn about code that will never be executed."},
		WarnDiscardedValue:  {"discarded-value", false, "Warn about expression statements whose value is computed and dropped."},
		WarnHostArch:        {"host-arch", true, "Warn when the native target does not match the host architecture."},
		WarnExtra:           {"extra", true, "Enable extra miscellaneous warnings."},
	}

	cfg.Features, cfg.Warnings = features, warnings
	for ft, info := range features {
		cfg.FeatureMap[info.Name] = ft
	}
	for wt, info := range warnings {
		cfg.WarningMap[info.Name] = wt
	}

	return cfg
}

// DefaultPlatform is the target used when --target is not given
func DefaultPlatform() string { return env.Str("LEDC_TARGET", PlatformNative) }

// SetTarget configures the compiler for a platform. The host ABI decides symbol naming for the native target
func (c *Config) SetTarget(goos, goarch, platform string) error {
	c.HostABI = libqbe.DefaultTarget(goos, goarch)

	switch platform {
	case PlatformNative, "x86_64", "amd64":
		c.Platform, c.Arch = PlatformNative, ArchX86_64
		c.WordSize, c.StackAlignment = 8, 16
		c.SymbolPrefix = ""
		if strings.HasSuffix(c.HostABI, "_apple") {
			c.SymbolPrefix = "_"
		}
		if goarch != "amd64" && c.IsWarningEnabled(WarnHostArch) {
			fmt.Fprintf(os.Stderr, "ledc: warning: native target is x86-64 but the host is '%s'; the output will not run here [-Whost-arch]\n", goarch)
		}
	case PlatformESP8266, "xtensa", "lx106":
		c.Platform, c.Arch = PlatformESP8266, ArchXtensa
		c.WordSize, c.StackAlignment = 4, 16
		c.SymbolPrefix = ""
	default:
		return fmt.Errorf("unsupported target '%s'. Supported: '%s', '%s'", platform, PlatformNative, PlatformESP8266)
	}
	return nil
}

// MachO reports whether native output must use Mach-O section conventions
func (c *Config) MachO() bool {
	return c.Arch == ArchX86_64 && strings.HasSuffix(c.HostABI, "_apple")
}

func (c *Config) SetFeature(ft Feature, enabled bool) {
	if info, ok := c.Features[ft]; ok {
		info.Enabled = enabled
		c.Features[ft] = info
	}
}

func (c *Config) IsFeatureEnabled(ft Feature) bool { return c.Features[ft].Enabled }

func (c *Config) SetWarning(wt Warning, enabled bool) {
	if info, ok := c.Warnings[wt]; ok {
		info.Enabled = enabled
		c.Warnings[wt] = info
	}
}

func (c *Config) IsWarningEnabled(wt Warning) bool { return c.Warnings[wt].Enabled }

// SetupFlagGroups registers -W<warning> and -F<feature> switches on fs
func (c *Config) SetupFlagGroups(fs *cli.FlagSet) (warnings, features []cli.FlagGroupEntry) {
	warnings = make([]cli.FlagGroupEntry, WarnCount)
	for i := Warning(0); i < WarnCount; i++ {
		info := c.Warnings[i]
		enabled, disabled := info.Enabled, false
		warnings[i] = cli.FlagGroupEntry{Name: info.Name, Prefix: "W", Usage: info.Description, Enabled: &enabled, Disabled: &disabled}
	}
	features = make([]cli.FlagGroupEntry, FeatCount)
	for i := Feature(0); i < FeatCount; i++ {
		info := c.Features[i]
		enabled, disabled := info.Enabled, false
		features[i] = cli.FlagGroupEntry{Name: info.Name, Prefix: "F", Usage: info.Description, Enabled: &enabled, Disabled: &disabled}
	}
	fs.AddFlagGroup("Warning Flags", "Enable or disable specific warnings", "warning flag", "Available Warning Flags:", warnings)
	fs.AddFlagGroup("Feature Flags", "Enable or disable specific features", "feature flag", "Available feature flags:", features)
	return warnings, features
}

// ApplyFlagGroups copies the parsed -W/-F switches back into the configuration
func (c *Config) ApplyFlagGroups(warnings, features []cli.FlagGroupEntry) {
	for i, entry := range warnings {
		if entry.Enabled != nil && *entry.Enabled {
			c.SetWarning(Warning(i), true)
		}
		if entry.Disabled != nil && *entry.Disabled {
			c.SetWarning(Warning(i), false)
		}
	}
	for i, entry := range features {
		if entry.Enabled != nil && *entry.Enabled {
			c.SetFeature(Feature(i), true)
		}
		if entry.Disabled != nil && *entry.Disabled {
			c.SetFeature(Feature(i), false)
		}
	}
}

func (c *Config) applyFlag(flag string) {
	trimmed := strings.TrimPrefix(flag, "-")
	isNo := strings.HasPrefix(trimmed, "Wno-") || strings.HasPrefix(trimmed, "Fno-")
	enable := !isNo

	var name string
	var isWarning bool

	switch {
	case strings.HasPrefix(trimmed, "W"):
		name = strings.TrimPrefix(trimmed, "W")
		if isNo {
			name = strings.TrimPrefix(name, "no-")
		}
		isWarning = true
	case strings.HasPrefix(trimmed, "F"):
		name = strings.TrimPrefix(trimmed, "F")
		if isNo {
			name = strings.TrimPrefix(name, "no-")
		}
	default:
		name = trimmed
		isWarning = true
	}

	if name == "all" && isWarning {
		for i := Warning(0); i < WarnCount; i++ {
			c.SetWarning(i, enable)
		}
		return
	}

	if isWarning {
		if w, ok := c.WarningMap[name]; ok {
			c.SetWarning(w, enable)
		}
	} else {
		if f, ok := c.FeatureMap[name]; ok {
			c.SetFeature(f, enable)
		}
	}
}

// ProcessFlagString applies a space separated list of -W/-F switches, -Wall first
func (c *Config) ProcessFlagString(flagStr string) {
	flags := strings.Fields(flagStr)
	for _, flag := range flags {
		if flag == "-Wall" || flag == "-Wno-all" {
			c.applyFlag(flag)
		}
	}
	for _, flag := range flags {
		if flag != "-Wall" && flag != "-Wno-all" {
			c.applyFlag(flag)
		}
	}
}

// ApplyEnv applies switches from LEDC_FLAGS, e.g. LEDC_FLAGS="-Wall -Fpeephole"
func (c *Config) ApplyEnv() {
	if flags := env.Str("LEDC_FLAGS"); flags != "" {
		c.ProcessFlagString(flags)
	}
}
