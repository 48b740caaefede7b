package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/funvibe/weave/internal/weaver"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	if handleHelp() {
		return
	}
	if handleHistory() {
		return
	}
	if handleMethod() {
		return
	}
	if handleRun() {
		return
	}

	fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
	usage()
	os.Exit(1)
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: %[1]s <command> [options]

Commands:
  run -e <fragment>      Weave and invoke an inline fragment
  method -f <file>       Weave top-level declarations and call one
  history                Show recorded weave outcomes
  help                   Show this help

Run options:
  -e <fragment>          Statement fragment; must end in "return <expr>, <err>"
  -bind name=value       Bind a runtime value (repeatable; int, float, bool
                         and string literals are recognized)
  -result <type>         Result type of the fragment (default any)
  -import <path>         Extra import for the generated unit (repeatable)
  -show                  Print the generated source before compiling
  -interp                Force the in-process interpreted pipeline
  -v                     Verbose engine logging

Method options:
  -f <file>              File with top-level Go declarations
  -call <name>           Function to invoke after loading (signature
                         func() (any, error))
`, filepath.Base(os.Args[0]))
}

func handleHelp() bool {
	switch os.Args[1] {
	case "help", "-help", "--help", "-h":
		usage()
		return true
	}
	return false
}

// loadEngine builds an engine from weave.yaml (found by walking up from the
// working directory) plus the command line overrides.
func loadEngine(extra ...weaver.Option) (*weaver.Engine, *weaver.Ledger, error) {
	var opts []weaver.Option
	var ledger *weaver.Ledger

	path, err := weaver.FindConfig(".")
	if err != nil {
		return nil, nil, err
	}
	var cfg *weaver.Config
	if path != "" {
		cfg, err = weaver.LoadConfig(path)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, cfg.Options()...)
		if cfg.Ledger != "" {
			ledger, err = weaver.OpenLedger(cfg.Ledger)
			if err != nil {
				return nil, nil, err
			}
			opts = append(opts, weaver.WithLedger(ledger))
		}
	}
	opts = append(opts, weaver.WithSink(&weaver.ConsoleSink{Out: os.Stderr}))
	opts = append(opts, extra...)

	eng, err := weaver.New(opts...)
	if err != nil {
		if ledger != nil {
			ledger.Close()
		}
		return nil, nil, err
	}
	if cfg != nil {
		configDir := filepath.Dir(path)
		for i := range cfg.Deps {
			eng.Workspace().AddReplace(cfg.Deps[i].Module, cfg.Deps[i].ResolveDir(configDir))
		}
	}
	return eng, ledger, nil
}

// parseBindValue turns a command-line literal into a typed value. Plain
// numbers and bools get their natural Go type; everything else stays a
// string, with quotes stripped if present.
func parseBindValue(s string) any {
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

func handleRun() bool {
	if os.Args[1] != "run" {
		return false
	}

	var (
		fragment string
		result   string
		imports  []string
		show     bool
		interp   bool
		verbose  bool
	)
	bindings := make(map[string]any)

	args := os.Args[2:]
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-e":
			i++
			if i >= len(args) {
				fmt.Fprintln(os.Stderr, "-e requires a fragment")
				os.Exit(1)
			}
			fragment = args[i]
		case "-bind":
			i++
			if i >= len(args) {
				fmt.Fprintln(os.Stderr, "-bind requires name=value")
				os.Exit(1)
			}
			name, value, ok := strings.Cut(args[i], "=")
			if !ok || name == "" {
				fmt.Fprintf(os.Stderr, "invalid binding %q, want name=value\n", args[i])
				os.Exit(1)
			}
			bindings[name] = parseBindValue(value)
		case "-result":
			i++
			if i >= len(args) {
				fmt.Fprintln(os.Stderr, "-result requires a type")
				os.Exit(1)
			}
			result = args[i]
		case "-import":
			i++
			if i >= len(args) {
				fmt.Fprintln(os.Stderr, "-import requires a path")
				os.Exit(1)
			}
			imports = append(imports, args[i])
		case "-show":
			show = true
		case "-interp":
			interp = true
		case "-v":
			verbose = true
		default:
			fmt.Fprintf(os.Stderr, "Unknown run option: %s\n", args[i])
			os.Exit(1)
		}
	}

	if fragment == "" {
		fmt.Fprintln(os.Stderr, "Usage: weave run -e <fragment> [-bind name=value ...]")
		os.Exit(1)
	}

	var engOpts []weaver.Option
	if interp {
		engOpts = append(engOpts, weaver.WithInterpreted())
	}
	if verbose {
		log, err := zap.NewDevelopment()
		if err == nil {
			defer log.Sync()
			engOpts = append(engOpts, weaver.WithLogger(log))
		}
	}

	eng, ledger, err := loadEngine(engOpts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
	if ledger != nil {
		defer ledger.Close()
	}

	var inlineOpts []weaver.InlineOption
	if result != "" {
		inlineOpts = append(inlineOpts, weaver.WithResult(result))
	}
	if len(imports) > 0 {
		inlineOpts = append(inlineOpts, weaver.WithImports(imports...))
	}
	if show {
		inlineOpts = append(inlineOpts, weaver.ShowSource())
	}

	callable, err := eng.Inline(fragment, bindings, inlineOpts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}

	out, err := callable.Call()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Runtime error: %s\n", err)
		os.Exit(1)
	}
	if out != nil {
		fmt.Println(out)
	}
	return true
}

func handleMethod() bool {
	if os.Args[1] != "method" {
		return false
	}

	var (
		file    string
		call    string
		imports []string
		show    bool
		interp  bool
	)

	args := os.Args[2:]
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-f":
			i++
			if i >= len(args) {
				fmt.Fprintln(os.Stderr, "-f requires a file")
				os.Exit(1)
			}
			file = args[i]
		case "-call":
			i++
			if i >= len(args) {
				fmt.Fprintln(os.Stderr, "-call requires a function name")
				os.Exit(1)
			}
			call = args[i]
		case "-import":
			i++
			if i >= len(args) {
				fmt.Fprintln(os.Stderr, "-import requires a path")
				os.Exit(1)
			}
			imports = append(imports, args[i])
		case "-show":
			show = true
		case "-interp":
			interp = true
		default:
			fmt.Fprintf(os.Stderr, "Unknown method option: %s\n", args[i])
			os.Exit(1)
		}
	}

	if file == "" || call == "" {
		fmt.Fprintln(os.Stderr, "Usage: weave method -f <file> -call <name>")
		os.Exit(1)
	}

	decls, err := os.ReadFile(file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading %s: %s\n", file, err)
		os.Exit(1)
	}

	var engOpts []weaver.Option
	if interp {
		engOpts = append(engOpts, weaver.WithInterpreted())
	}
	eng, ledger, err := loadEngine(engOpts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
	if ledger != nil {
		defer ledger.Close()
	}

	var methodOpts []weaver.MethodOption
	if len(imports) > 0 {
		methodOpts = append(methodOpts, weaver.MethodImports(imports...))
	}
	if show {
		methodOpts = append(methodOpts, weaver.MethodShowSource())
	}

	mod, err := eng.Method(string(decls), methodOpts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}

	sym, err := mod.Lookup(call)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
	fn, ok := sym.(func() (any, error))
	if !ok {
		fmt.Fprintf(os.Stderr, "Error: %s has type %T, want func() (any, error)\n", call, sym)
		os.Exit(1)
	}
	out, err := fn()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Runtime error: %s\n", err)
		os.Exit(1)
	}
	if out != nil {
		fmt.Println(out)
	}
	return true
}

func handleHistory() bool {
	if os.Args[1] != "history" {
		return false
	}

	limit := 20
	args := os.Args[2:]
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-n":
			i++
			if i >= len(args) {
				fmt.Fprintln(os.Stderr, "-n requires a count")
				os.Exit(1)
			}
			n, err := strconv.Atoi(args[i])
			if err != nil {
				fmt.Fprintf(os.Stderr, "invalid count %q\n", args[i])
				os.Exit(1)
			}
			limit = n
		default:
			fmt.Fprintf(os.Stderr, "Unknown history option: %s\n", args[i])
			os.Exit(1)
		}
	}

	path, err := weaver.FindConfig(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
	if path == "" {
		fmt.Fprintln(os.Stderr, "No weave.yaml found; history needs a configured ledger")
		os.Exit(1)
	}
	cfg, err := weaver.LoadConfig(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
	if cfg.Ledger == "" {
		fmt.Fprintf(os.Stderr, "%s has no ledger configured\n", path)
		os.Exit(1)
	}

	ledger, err := weaver.OpenLedger(cfg.Ledger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
	defer ledger.Close()

	entries, err := ledger.List(limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
	if len(entries) == 0 {
		fmt.Println("No recorded weaves")
		return true
	}
	for _, e := range entries {
		line := fmt.Sprintf("%s  %-18s %-7s %-13s %s",
			e.CreatedAt.Format("2006-01-02 15:04:05"), e.Unit, e.Kind, e.Outcome, e.FragmentHash)
		if e.Outcome != "ok" && e.Detail != "" {
			first, _, _ := strings.Cut(e.Detail, "\n")
			line += "  " + first
		}
		fmt.Println(line)
	}
	return true
}
