package weaver

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config represents the top-level weave.yaml configuration.
type Config struct {
	// Mode selects the pipeline: "plugin" compiles units to shared objects
	// with the Go toolchain, "interp" evaluates them in-process. Empty means
	// auto: plugin where the platform supports it, interp elsewhere.
	Mode string `yaml:"mode,omitempty"`

	// StagingDir overrides the workspace root for generated sources and
	// artifacts. Defaults to <tmp>/weave.
	StagingDir string `yaml:"staging_dir,omitempty"`

	// Toolchain is the go binary to invoke in plugin mode (default "go").
	Toolchain string `yaml:"toolchain,omitempty"`

	// ShowSource displays generated unit source on every request.
	ShowSource bool `yaml:"show_source,omitempty"`

	// Ledger is a path to a SQLite database recording request outcomes.
	// Empty disables the ledger.
	Ledger string `yaml:"ledger,omitempty"`

	// SearchPath is prepended to the toolchain's module search path.
	SearchPath string `yaml:"search_path,omitempty"`

	// Deps lists extra modules fragments may import. Each one becomes a
	// replace directive in the generated units' go.mod.
	Deps []ConfigDep `yaml:"deps,omitempty"`
}

// ConfigDep maps a module path to a local source directory.
type ConfigDep struct {
	// Module is the Go module path fragments import (e.g. "example.com/num").
	Module string `yaml:"module"`

	// Dir is the path to the module's source directory, relative to
	// weave.yaml when not absolute.
	Dir string `yaml:"dir"`
}

// LoadConfig reads and parses a weave.yaml file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	return ParseConfig(data, path)
}

// ParseConfig parses weave.yaml content from bytes.
// The path argument is used only for error messages and for resolving
// relative dep directories.
func ParseConfig(data []byte, path string) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := cfg.validate(path); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FindConfig searches for weave.yaml starting from dir and walking up
// to parent directories, similar to how .gitignore is found.
// Returns the path to the config file and nil error if found,
// or empty string and nil error if not found.
func FindConfig(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving directory: %w", err)
	}

	for {
		candidate := filepath.Join(dir, "weave.yaml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}

		// Also check weave.yml (common alternative)
		candidate = filepath.Join(dir, "weave.yml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached filesystem root
			return "", nil
		}
		dir = parent
	}
}

// validate checks the configuration for semantic errors.
func (c *Config) validate(path string) error {
	switch c.Mode {
	case "", "plugin", "interp":
	default:
		return fmt.Errorf("%s: mode must be \"plugin\" or \"interp\", got %q", path, c.Mode)
	}

	configDir := filepath.Dir(path)
	seen := make(map[string]int)

	for i, dep := range c.Deps {
		if dep.Module == "" {
			return fmt.Errorf("%s: deps[%d]: module is required", path, i)
		}
		if dep.Dir == "" {
			return fmt.Errorf("%s: deps[%d] (%s): dir is required", path, i, dep.Module)
		}
		if prev, ok := seen[dep.Module]; ok {
			return fmt.Errorf("%s: deps[%d]: module %q already declared at deps[%d]", path, i, dep.Module, prev)
		}
		seen[dep.Module] = i

		dir := dep.Dir
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(configDir, dir)
		}
		info, err := os.Stat(dir)
		if err != nil {
			return fmt.Errorf("%s: deps[%d] (%s): dir %q not found: %w", path, i, dep.Module, dep.Dir, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("%s: deps[%d] (%s): dir %q is not a directory", path, i, dep.Module, dep.Dir)
		}
	}

	return nil
}

// ResolveDir returns the dep's source directory as an absolute path.
// configDir is the directory containing weave.yaml.
func (d *ConfigDep) ResolveDir(configDir string) string {
	dir := d.Dir
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(configDir, dir)
	}
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	return dir
}

// Options translates the configuration into engine options. Deps, ledger and
// sink wiring stay with the caller: deps go onto the engine's workspace and
// the ledger needs opening first.
func (c *Config) Options() []Option {
	var opts []Option
	if c.Mode == "interp" {
		opts = append(opts, WithInterpreted())
	}
	if c.Mode == "plugin" {
		// An explicit plugin request overrides the platform auto-detect;
		// unsupported platforms fail at compile or load with a real error.
		opts = append(opts, WithCompiled())
	}
	if c.StagingDir != "" {
		opts = append(opts, WithStagingDir(c.StagingDir))
	}
	if c.Toolchain != "" && c.Mode != "interp" {
		opts = append(opts, WithToolchain(&GoToolchain{GoBinary: c.Toolchain}))
	}
	if c.ShowSource {
		opts = append(opts, ShowSourceByDefault())
	}
	if c.SearchPath != "" {
		opts = append(opts, WithSearchPath(c.SearchPath))
	}
	return opts
}
