package weaver

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// Result is the single outcome type of a compilation attempt. Compilation
// never raises: toolchain failures of every kind — syntax errors in the
// fragment, unresolvable imports, a broken toolchain install — land here as
// diagnostics for the caller to display.
type Result struct {
	Success     bool
	Diagnostics string
}

// Toolchain turns one staged unit workspace into a loadable artifact. The
// engine stages sources and purges stale artifacts before the call; exactly
// one attempt is made per weave request, with no retry.
type Toolchain interface {
	Compile(unitDir, searchPath, outDir string) Result
}

// GoToolchain shells out to the Go toolchain and builds the unit as a
// plugin. Slow (seconds); the engine imposes no timeout — callers who need
// bounded latency wrap the weave call themselves.
type GoToolchain struct {
	// GoBinary is the toolchain executable, "go" by default.
	GoBinary string

	// Verbose mirrors the toolchain invocations to stderr.
	Verbose bool
}

// Compile resolves the unit's module graph and builds the plugin artifact
// into outDir. searchPath, when non-empty, is prepended to GOPATH for module
// resolution.
func (tc *GoToolchain) Compile(unitDir, searchPath, outDir string) Result {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return Result{Diagnostics: fmt.Sprintf("creating output dir: %v", err)}
	}

	if out, err := tc.run(unitDir, searchPath, "mod", "tidy"); err != nil {
		return Result{Diagnostics: "go mod tidy:\n" + out}
	}

	// The workspace dir carries a uuid suffix; the artifact must not.
	artifact := filepath.Join(outDir, unitArtifactName(unitDir))
	out, err := tc.run(unitDir, searchPath, "build", "-buildmode=plugin", "-o", artifact, ".")
	if err != nil {
		return Result{Diagnostics: out}
	}
	return Result{Success: true}
}

func (tc *GoToolchain) run(dir, searchPath string, args ...string) (string, error) {
	bin := tc.GoBinary
	if bin == "" {
		bin = "go"
	}
	cmd := exec.Command(bin, args...)
	cmd.Dir = dir
	env := append(os.Environ(), "GOWORK=off", "CGO_ENABLED=1")
	if searchPath != "" {
		env = append(env, "GOPATH="+goPathValue(searchPath, os.Getenv("GOPATH")))
	}
	cmd.Env = env
	if tc.Verbose {
		fmt.Fprintf(os.Stderr, "[weave] %s %s (in %s)\n", bin, strings.Join(args, " "), dir)
	}
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// goPathValue prepends the search path to the current GOPATH. An unset
// GOPATH stays unset rather than becoming a trailing empty list entry,
// which the toolchain would reject.
func goPathValue(searchPath, current string) string {
	if current == "" {
		return searchPath
	}
	return searchPath + string(os.PathListSeparator) + current
}

// unitArtifactName maps a unit workspace dir back to its artifact file name:
// ".../src/gen42-1a2b3c4d" → "gen42.so".
func unitArtifactName(unitDir string) string {
	base := filepath.Base(unitDir)
	if i := strings.LastIndex(base, "-"); i > 0 {
		base = base[:i]
	}
	return base + ".so"
}

// PluginsSupported reports whether plugin-mode compilation can work at all
// on this platform. Plugins need cgo and are only implemented on a few
// OS/arch pairs; everywhere else the interpreted pipeline is the default.
func PluginsSupported() bool {
	switch runtime.GOOS {
	case "linux", "darwin", "freebsd":
		return true
	}
	return false
}
