// Package cli parses ledc's command line. Switches follow the C compiler
// conventions: -o file, -ofile, --output=file, grouped -W<name>/-Wno-<name>
// toggles, and a trailing list of input programs.
package cli

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/term"
)

const (
	sectionIndent = "    "
	entryIndent   = "        "
)

// Value is the storage behind one flag
type Value interface {
	String() string
	Set(string) error
}

type stringValue struct{ p *string }

func (v stringValue) Set(s string) error {
	*v.p = s
	return nil
}

func (v stringValue) String() string { return *v.p }

type switchValue struct{ p *bool }

func (v switchValue) Set(s string) error {
	on, err := strconv.ParseBool(s)
	if err != nil {
		return fmt.Errorf("invalid boolean value '%s'", s)
	}
	*v.p = on
	return nil
}

func (v switchValue) String() string { return strconv.FormatBool(*v.p) }

type choiceValue struct {
	p       *string
	choices []string
}

func (v choiceValue) Set(s string) error {
	for _, c := range v.choices {
		if s == c {
			*v.p = s
			return nil
		}
	}
	return fmt.Errorf("invalid value '%s', expected one of: %s", s, strings.Join(v.choices, ", "))
}

func (v choiceValue) String() string { return *v.p }

type listValue struct{ p *[]string }

func (v listValue) Set(s string) error {
	*v.p = append(*v.p, s)
	return nil
}

func (v listValue) String() string { return strings.Join(*v.p, ", ") }

// Flag describes one option. Placeholder names the argument in the help page
// and is empty for switches.
type Flag struct {
	Name        string
	Short       string
	Usage       string
	Value       Value
	Default     string
	Placeholder string
}

func (fl *Flag) isSwitch() bool {
	_, ok := fl.Value.(switchValue)
	return ok
}

// spelling renders the flag as it appears in the option table
func (fl *Flag) spelling() string {
	var sb strings.Builder
	if fl.Short != "" {
		fmt.Fprintf(&sb, "-%s, ", fl.Short)
	}
	fmt.Fprintf(&sb, "--%s", fl.Name)
	if !fl.isSwitch() {
		fmt.Fprintf(&sb, " <%s>", fl.Placeholder)
	}
	return sb.String()
}

// FlagGroup is a family of on/off switches sharing a prefix, like -W<warning>
type FlagGroup struct {
	Name        string
	Description string
	Kind        string
	Header      string
	Entries     []FlagGroupEntry
}

// FlagGroupEntry is one member of a group. Enabled is set by -<Prefix><Name> and
// Disabled by -<Prefix>no-<Name>.
type FlagGroupEntry struct {
	Name     string
	Prefix   string
	Usage    string
	Enabled  *bool
	Disabled *bool
}

type FlagSet struct {
	name   string
	flags  map[string]*Flag
	shorts map[string]*Flag
	groups []FlagGroup
	args   []string
}

func NewFlagSet(name string) *FlagSet {
	return &FlagSet{
		name:   name,
		flags:  make(map[string]*Flag),
		shorts: make(map[string]*Flag),
	}
}

// Args returns the positional arguments left after Parse
func (f *FlagSet) Args() []string { return f.args }

func (f *FlagSet) String(p *string, name, short, value, usage, placeholder string) {
	*p = value
	f.Var(stringValue{p}, name, short, usage, value, placeholder)
}

func (f *FlagSet) Bool(p *bool, name, short string, value bool, usage string) {
	*p = value
	f.Var(switchValue{p}, name, short, usage, "", "")
}

// Choice defines a string flag restricted to a fixed set of values
func (f *FlagSet) Choice(p *string, name, short, value string, choices []string, usage string) {
	*p = value
	f.Var(choiceValue{p: p, choices: choices}, name, short, usage, value, strings.Join(choices, "|"))
}

// List defines a repeatable flag; every occurrence appends to p
func (f *FlagSet) List(p *[]string, name, short string, value []string, usage, placeholder string) {
	*p = value
	f.Var(listValue{p}, name, short, usage, "", placeholder)
}

func (f *FlagSet) Var(value Value, name, short, usage, def, placeholder string) {
	if name == "" {
		panic("flag name cannot be empty")
	}
	if _, ok := f.flags[name]; ok {
		panic(fmt.Sprintf("flag redefined: %s", name))
	}
	if placeholder == "" {
		placeholder = "value"
	}
	fl := &Flag{Name: name, Short: short, Usage: usage, Value: value, Default: def, Placeholder: placeholder}
	f.flags[name] = fl
	if short == "" {
		return
	}
	if _, ok := f.shorts[short]; ok {
		panic(fmt.Sprintf("shorthand flag redefined: %s", short))
	}
	f.shorts[short] = fl
}

// AddFlagGroup registers the -<prefix><name> and -<prefix>no-<name> switches of every entry
func (f *FlagSet) AddFlagGroup(name, description, kind, header string, entries []FlagGroupEntry) {
	for _, e := range entries {
		if e.Enabled != nil {
			f.Bool(e.Enabled, e.Prefix+e.Name, "", *e.Enabled, e.Usage)
		}
		if e.Disabled != nil {
			f.Bool(e.Disabled, e.Prefix+"no-"+e.Name, "", *e.Disabled, "Disable '"+e.Name+"'")
		}
	}
	f.groups = append(f.groups, FlagGroup{Name: name, Description: description, Kind: kind, Header: header, Entries: entries})
}

func (f *FlagSet) inGroup(name string) bool {
	for _, g := range f.groups {
		for _, e := range g.Entries {
			if name == e.Prefix+e.Name || name == e.Prefix+"no-"+e.Name {
				return true
			}
		}
	}
	return false
}

// Parse consumes arguments. A lone "-" names standard input and "--" ends option parsing.
func (f *FlagSet) Parse(arguments []string) error {
	f.args = nil
	for i := 0; i < len(arguments); i++ {
		arg := arguments[i]
		if arg == "--" {
			f.args = append(f.args, arguments[i+1:]...)
			return nil
		}
		if len(arg) < 2 || arg[0] != '-' {
			f.args = append(f.args, arg)
			continue
		}

		long := arg[1] == '-'
		body := strings.TrimPrefix(arg[1:], "-")
		name, value, hasValue := strings.Cut(body, "=")
		if name == "" {
			return fmt.Errorf("empty flag name")
		}
		spelled := "-" + name
		if long {
			spelled = "--" + name
		}

		fl := f.flags[name]
		switch {
		case fl == nil && long:
			return fmt.Errorf("unknown flag: %s", spelled)
		case fl == nil:
			// -Ldir, -S
			if fl = f.shorts[body[:1]]; fl == nil {
				return fmt.Errorf("unknown shorthand flag: -%s", body[:1])
			}
			spelled = "-" + body[:1]
			value, hasValue = body[1:], len(body) > 1
			if fl.isSwitch() && hasValue {
				return fmt.Errorf("unknown flag: %s", arg)
			}
		}

		switch {
		case fl.isSwitch() && !hasValue:
			value = "true"
		case !hasValue:
			if i+1 >= len(arguments) {
				return fmt.Errorf("flag needs an argument: %s", spelled)
			}
			i++
			value = arguments[i]
		}
		if err := fl.Value.Set(value); err != nil {
			return fmt.Errorf("%s: %w", spelled, err)
		}
	}
	return nil
}

type App struct {
	Name        string
	Synopsis    string
	Description string
	Authors     []string
	Repository  string
	Since       int
	FlagSet     *FlagSet
	Action      func(args []string) error
	Stdout      io.Writer
	Stderr      io.Writer
}

func NewApp(name string) *App {
	return &App{
		Name:    name,
		FlagSet: NewFlagSet(name),
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
	}
}

// Run parses arguments and hands the positional ones to Action. A parse error
// prints the short usage to Stderr.
func (a *App) Run(arguments []string) error {
	help := false
	a.FlagSet.Bool(&help, "help", "h", false, "Display this information.")

	if err := a.FlagSet.Parse(arguments); err != nil {
		fmt.Fprintf(a.Stderr, "%s: %v\n", a.Name, err)
		a.writeUsage(a.Stderr)
		return err
	}
	if help {
		a.writeHelp(a.Stdout)
		return nil
	}
	if a.Action == nil {
		return nil
	}
	return a.Action(a.FlagSet.Args())
}

func (a *App) synopsis() string {
	if a.Synopsis == "" {
		return "[options] <input>"
	}
	return a.Synopsis
}

func (a *App) options() []*Flag {
	var opts []*Flag
	for name, fl := range a.FlagSet.flags {
		if !a.FlagSet.inGroup(name) {
			opts = append(opts, fl)
		}
	}
	sort.Slice(opts, func(i, j int) bool { return opts[i].Name < opts[j].Name })
	return opts
}

func (a *App) writeUsage(w io.Writer) {
	t := newTable(terminalWidth())
	for _, fl := range a.options() {
		t.flag(fl)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Usage: %s %s\n\n", a.Name, a.synopsis())
	fmt.Fprintf(&sb, "%sOptions\n", sectionIndent)
	t.render(&sb)
	fmt.Fprintf(&sb, "\nRun '%s --help' for the warning and feature flags.\n", a.Name)
	io.WriteString(w, sb.String())
}

func (a *App) writeHelp(w io.Writer) {
	var sb strings.Builder

	year := time.Now().Year()
	years := strconv.Itoa(year)
	if a.Since != 0 && a.Since < year {
		years = fmt.Sprintf("%d-%d", a.Since, year)
	}
	fmt.Fprintf(&sb, "\n%sCopyright (c) %s: %s and contributors\n", sectionIndent, years, strings.Join(a.Authors, ", "))
	if a.Repository != "" {
		fmt.Fprintf(&sb, "%sFor more details refer to %s\n", sectionIndent, a.Repository)
	}
	fmt.Fprintf(&sb, "\n%sSynopsis\n%s%s %s\n", sectionIndent, entryIndent, a.Name, a.synopsis())
	if a.Description != "" {
		fmt.Fprintf(&sb, "\n%sDescription\n", sectionIndent)
		for _, line := range wrapText(a.Description, terminalWidth()-len(entryIndent)) {
			fmt.Fprintf(&sb, "%s%s\n", entryIndent, line)
		}
	}

	// One table keeps the usage column aligned across every section.
	t := newTable(terminalWidth())
	for _, fl := range a.options() {
		t.flag(fl)
	}
	fmt.Fprintf(&sb, "\n%sOptions\n", sectionIndent)
	t.render(&sb)

	groups := append([]FlagGroup(nil), a.FlagSet.groups...)
	sort.Slice(groups, func(i, j int) bool { return groups[i].Name < groups[j].Name })
	for _, g := range groups {
		if len(g.Entries) == 0 {
			continue
		}
		t.reset()
		prefix, kind := g.Entries[0].Prefix, g.Kind
		if kind == "" {
			kind = "flag"
		}
		t.row(fmt.Sprintf("-%s<%s>", prefix, kind), "Enable a specific "+kind, "")
		t.row(fmt.Sprintf("-%sno-<%s>", prefix, kind), "Disable a specific "+kind, "")
		fmt.Fprintf(&sb, "\n%s%s\n", sectionIndent, g.Name)
		t.render(&sb)

		t.reset()
		entries := append([]FlagGroupEntry(nil), g.Entries...)
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
		for _, e := range entries {
			state := "[off]"
			if e.Enabled != nil && *e.Enabled && (e.Disabled == nil || !*e.Disabled) {
				state = "[on]"
			}
			t.row(e.Name, e.Usage, state)
		}
		if g.Header != "" {
			fmt.Fprintf(&sb, "%s%s\n", sectionIndent, g.Header)
		}
		t.render(&sb)
	}
	io.WriteString(w, sb.String())
}

// table lays out option rows as name, wrapped usage and a trailing note.
// Column widths only grow, so sections rendered from the same table line up.
type table struct {
	width      int
	nameWidth  int
	usageWidth int
	rows       [][3]string
}

func newTable(width int) *table { return &table{width: width} }

func (t *table) row(name, usage, note string) {
	t.nameWidth = max(t.nameWidth, len(name))
	t.usageWidth = max(t.usageWidth, len(usage))
	t.rows = append(t.rows, [3]string{name, usage, note})
}

func (t *table) flag(fl *Flag) {
	note := ""
	if fl.Default != "" {
		note = "(default " + fl.Default + ")"
	}
	t.row(fl.spelling(), fl.Usage, note)
}

func (t *table) reset() { t.rows = t.rows[:0] }

func (t *table) render(sb *strings.Builder) {
	for _, r := range t.rows {
		room := t.width - len(entryIndent) - t.nameWidth - 1
		if r[2] != "" {
			room -= len(r[2]) + 2
		}
		room = max(room, 10)
		lines := wrapText(r[1], room)
		if len(lines) == 0 {
			lines = []string{""}
		}
		if r[2] == "" {
			fmt.Fprintf(sb, "%s%-*s %s\n", entryIndent, t.nameWidth, r[0], lines[0])
		} else {
			fmt.Fprintf(sb, "%s%-*s %-*s  %s\n", entryIndent, t.nameWidth, r[0], min(t.usageWidth, room), lines[0], r[2])
		}
		for _, l := range lines[1:] {
			fmt.Fprintf(sb, "%s%*s %s\n", entryIndent, t.nameWidth, "", l)
		}
	}
}

func terminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return 80
	}
	return max(width, 20)
}

// wrapText breaks text at spaces into lines no longer than width, except for
// single words that are longer on their own
func wrapText(text string, width int) []string {
	if width <= 0 {
		return []string{text}
	}
	var lines []string
	var cur strings.Builder
	for _, word := range strings.Fields(text) {
		if cur.Len() > 0 && cur.Len()+1+len(word) > width {
			lines = append(lines, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(word)
	}
	if cur.Len() > 0 {
		lines = append(lines, cur.String())
	}
	return lines
}
