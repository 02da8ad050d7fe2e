//go:build !linux

package mmal

// OpenEngine is only available on Linux, where libmmal exists.
func OpenEngine(cfg LibraryConfig) (Engine, error) {
	return nil, ErrUnsupportedPlatform
}

// IsAvailable checks if libmmal can be loaded. It never can here.
func IsAvailable() bool { return false }
