package mmal

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// DefaultLibraries are the libmmal pieces loaded by OpenEngine, in load
// order. libmmal_vc_client registers the VideoCore components when loaded.
var DefaultLibraries = []string{
	"libvcos.so",
	"libmmal_core.so",
	"libmmal_util.so",
	"libmmal_vc_client.so",
}

// LibraryConfig says where OpenEngine looks for the engine libraries.
type LibraryConfig struct {
	// Dir is searched before any default location.
	Dir string `mapstructure:"dir"`
	// Libraries overrides DefaultLibraries. Entries may be absolute paths.
	Libraries []string `mapstructure:"libs"`
}

// LoadLibraryConfig reads the library configuration from the environment:
// MMAL_LIB_DIR (or MMAL_SDK_LIB_PATH) and MMAL_LIBS, a comma separated
// library list.
func LoadLibraryConfig() LibraryConfig {
	return loadLibraryConfig(viper.New())
}

func loadLibraryConfig(v *viper.Viper) LibraryConfig {
	v.SetDefault("dir", "")
	v.SetDefault("libs", "")
	_ = v.BindEnv("dir", "MMAL_LIB_DIR", "MMAL_SDK_LIB_PATH")
	_ = v.BindEnv("libs", "MMAL_LIBS")

	cfg := LibraryConfig{Dir: v.GetString("dir")}
	for _, lib := range strings.Split(v.GetString("libs"), ",") {
		if lib = strings.TrimSpace(lib); lib != "" {
			cfg.Libraries = append(cfg.Libraries, lib)
		}
	}
	return cfg
}

func (c LibraryConfig) libraries() []string {
	if len(c.Libraries) > 0 {
		return c.Libraries
	}
	return DefaultLibraries
}

// candidatePaths returns where to look for lib, highest priority first.
func (c LibraryConfig) candidatePaths(lib string) []string {
	if filepath.IsAbs(lib) {
		return []string{lib}
	}

	var paths []string
	if c.Dir != "" {
		paths = append(paths, filepath.Join(c.Dir, lib))
	}

	// Search relative to executable location
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, lib),
			filepath.Join(exeDir, "..", "lib", lib),
		)
	}

	// Search relative to module root (find go.mod from cwd)
	if moduleRoot := findModuleRoot(); moduleRoot != "" {
		paths = append(paths, filepath.Join(moduleRoot, "build", lib))
	}

	// Userland install location, then distro multiarch directories
	paths = append(paths, filepath.Join("/opt/vc/lib", lib))
	switch runtime.GOARCH {
	case "arm64":
		paths = append(paths, filepath.Join("/usr/lib/aarch64-linux-gnu", lib))
	case "arm":
		paths = append(paths, filepath.Join("/usr/lib/arm-linux-gnueabihf", lib))
	}
	paths = append(paths,
		filepath.Join("/usr/local/lib", lib),
		filepath.Join("/usr/lib", lib),
		lib, // let the dynamic loader search
	)
	return paths
}

// findModuleRoot walks up the directory tree from the current working directory
// to find the module root (directory containing go.mod).
func findModuleRoot() string {
	wd, err := os.Getwd()
	if err != nil {
		return ""
	}

	dir := wd
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}
