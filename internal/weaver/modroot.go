package weaver

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/tools/go/packages"
)

// hostModule locates the module path and root directory of this project in
// the running environment, so a generated unit's replace directive can point
// at the same source tree the host was built from. The WEAVE_SOURCE_DIR
// environment variable overrides discovery for installed binaries whose
// source lives somewhere the loader cannot guess.
//
// The result is cached: the answer cannot change within one process.
var hostModule = sync.OnceValues(func() (hostMod, error) {
	if dir := os.Getenv("WEAVE_SOURCE_DIR"); dir != "" {
		return hostMod{Path: hostModulePath, Dir: dir}, nil
	}

	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedModule}
	pkgs, err := packages.Load(cfg, runtimePkg)
	if err != nil {
		return hostMod{}, fmt.Errorf("locating host module: %w", err)
	}
	for _, p := range pkgs {
		if p.Module != nil && p.Module.Dir != "" {
			return hostMod{Path: p.Module.Path, Dir: p.Module.Dir}, nil
		}
	}
	return hostMod{}, fmt.Errorf("host module %s not resolvable; set WEAVE_SOURCE_DIR", hostModulePath)
})

type hostMod struct {
	Path string
	Dir  string
}

// hostModulePath is this module's path, used when discovery is bypassed.
const hostModulePath = "github.com/funvibe/weave"
