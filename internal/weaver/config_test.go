package weaver

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseConfig_ValidMinimal(t *testing.T) {
	yaml := `
mode: interp
staging_dir: /tmp/weave-test
show_source: true
`
	cfg, err := ParseConfig([]byte(yaml), "test.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Mode != "interp" {
		t.Errorf("mode = %q, want interp", cfg.Mode)
	}
	if cfg.StagingDir != "/tmp/weave-test" {
		t.Errorf("staging_dir = %q, want /tmp/weave-test", cfg.StagingDir)
	}
	if !cfg.ShowSource {
		t.Error("expected show_source true")
	}
}

func TestParseConfig_Empty(t *testing.T) {
	cfg, err := ParseConfig([]byte(""), "test.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Mode != "" {
		t.Errorf("mode = %q, want empty (auto)", cfg.Mode)
	}
}

func TestParseConfig_InvalidMode(t *testing.T) {
	_, err := ParseConfig([]byte("mode: jit\n"), "test.yaml")
	if err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

func TestParseConfig_DepValidation(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "num")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		yaml    string
		wantErr bool
	}{
		{
			"valid local dep",
			"deps:\n  - module: example.com/num\n    dir: num\n",
			false,
		},
		{
			"missing module",
			"deps:\n  - dir: num\n",
			true,
		},
		{
			"missing dir",
			"deps:\n  - module: example.com/num\n",
			true,
		},
		{
			"dir not found",
			"deps:\n  - module: example.com/num\n    dir: nope\n",
			true,
		},
		{
			"duplicate module",
			"deps:\n  - module: example.com/num\n    dir: num\n  - module: example.com/num\n    dir: num\n",
			true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.yaml), filepath.Join(dir, "weave.yaml"))
			if tt.wantErr && err == nil {
				t.Error("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestParseConfig_Malformed(t *testing.T) {
	_, err := ParseConfig([]byte(":\n  - not yaml: ["), "test.yaml")
	if err == nil {
		t.Fatal("expected parse error")
	}
}

func TestFindConfig_WalksUp(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b", "c")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	cfgPath := filepath.Join(root, "weave.yaml")
	if err := os.WriteFile(cfgPath, []byte("mode: interp\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	found, err := FindConfig(nested)
	if err != nil {
		t.Fatalf("FindConfig: %v", err)
	}
	if found != cfgPath {
		t.Errorf("found = %q, want %q", found, cfgPath)
	}
}

func TestFindConfig_YmlFallback(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "weave.yml")
	if err := os.WriteFile(cfgPath, []byte(""), 0o644); err != nil {
		t.Fatal(err)
	}

	found, err := FindConfig(dir)
	if err != nil {
		t.Fatalf("FindConfig: %v", err)
	}
	if found != cfgPath {
		t.Errorf("found = %q, want %q", found, cfgPath)
	}
}

func TestFindConfig_NotFound(t *testing.T) {
	found, err := FindConfig(t.TempDir())
	if err != nil {
		t.Fatalf("FindConfig: %v", err)
	}
	if found != "" {
		t.Errorf("found = %q, want empty", found)
	}
}

func TestConfig_Options(t *testing.T) {
	cfg := &Config{Mode: "interp", StagingDir: "/tmp/x", ShowSource: true, SearchPath: "/gopath"}
	opts := cfg.Options()
	if len(opts) != 4 {
		t.Errorf("options = %d, want 4", len(opts))
	}
}

func TestConfig_Options_PluginModeForcesCompiled(t *testing.T) {
	cfg := &Config{Mode: "plugin"}
	eng := &Engine{interp: true}
	for _, opt := range cfg.Options() {
		opt(eng)
	}
	if eng.interp {
		t.Error("plugin mode left the engine interpreted")
	}
}

func TestConfig_Options_InterpModeStaysInterpreted(t *testing.T) {
	cfg := &Config{Mode: "interp"}
	eng := &Engine{}
	for _, opt := range cfg.Options() {
		opt(eng)
	}
	if !eng.interp {
		t.Error("interp mode did not select the interpreted pipeline")
	}
}

func TestConfigDep_ResolveDir(t *testing.T) {
	d := &ConfigDep{Module: "example.com/num", Dir: "num"}
	got := d.ResolveDir("/proj")
	if got != "/proj/num" {
		t.Errorf("ResolveDir = %q, want /proj/num", got)
	}

	d.Dir = "/abs/num"
	if got := d.ResolveDir("/proj"); got != "/abs/num" {
		t.Errorf("ResolveDir = %q, want /abs/num", got)
	}
}
