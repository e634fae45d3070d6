package cli

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/kelpfield/riggen/pkg/build"
	"github.com/kelpfield/riggen/pkg/cache"
	"github.com/kelpfield/riggen/pkg/layout"
	"github.com/kelpfield/riggen/pkg/scene"
)

// appName is the application name used for directories and display.
const appName = "riggen"

// Environment variables shared with the serve command, so `riggen layout`
// and a running server address the same stored layouts.
const (
	envStore    = "RIGGEN_STORE"
	envMongoURI = "RIGGEN_MONGO_URI"
	envMongoDB  = "RIGGEN_MONGO_DB"
)

// newRunner creates a build runner on a fresh in-memory scene, with the
// file cache and the configured layout store attached. The caller must
// Close the runner to release both.
func newRunner(ctx context.Context, logger *log.Logger, noCache bool) (*build.Runner, error) {
	c, err := newCache(noCache)
	if err != nil {
		return nil, err
	}
	store, err := openLayoutStore(ctx)
	if err != nil {
		c.Close()
		return nil, err
	}
	runner := build.NewRunner(scene.NewMemory(), c, nil, logger)
	runner.Layouts = store
	return runner, nil
}

func newCache(noCache bool) (cache.Cache, error) {
	if noCache {
		return cache.NewNullCache(), nil
	}
	dir, err := cacheDir()
	if err != nil {
		return cache.NewNullCache(), nil
	}
	return cache.NewFileCache(dir)
}

// cacheDir returns the cache directory using XDG standard (~/.cache/riggen/).
func cacheDir() (string, error) {
	if cacheHome := os.Getenv("XDG_CACHE_HOME"); cacheHome != "" {
		return filepath.Join(cacheHome, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", appName), nil
}

// dataDir returns the data directory using XDG standard (~/.local/share/riggen/).
func dataDir() (string, error) {
	if dataHome := os.Getenv("XDG_DATA_HOME"); dataHome != "" {
		return filepath.Join(dataHome, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "share", appName), nil
}

// openLayoutStore resolves the layout store from RIGGEN_STORE: "memory"
// for an in-process store, "mongo" for the database configured through
// RIGGEN_MONGO_URI and RIGGEN_MONGO_DB, empty for the file store in the
// data directory, and any other value for a file store rooted at that
// path.
func openLayoutStore(ctx context.Context) (layout.Store, error) {
	switch sel := os.Getenv(envStore); sel {
	case "memory":
		return layout.NewMemory(), nil
	case "mongo":
		return layout.NewMongoStore(ctx, layout.MongoConfig{
			URI:      os.Getenv(envMongoURI),
			Database: os.Getenv(envMongoDB),
		})
	case "":
		dir, err := dataDir()
		if err != nil {
			return nil, err
		}
		return layout.NewFileStore(filepath.Join(dir, "layouts"))
	default:
		return layout.NewFileStore(sel)
	}
}

// splitFormats parses a comma-separated format string into a slice.
// Empty input returns nil so callers can apply their own default.
func splitFormats(s string) []string {
	var out []string
	for _, f := range strings.Split(s, ",") {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// isTTY reports whether stdin is an interactive terminal. The module
// picker only runs there; piped or redirected input falls through to the
// default manifest.
func isTTY() bool {
	fi, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
