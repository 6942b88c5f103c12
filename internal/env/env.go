// Package env captures details about the ebuild environment (§ ambient
// configuration; a build runs with no config file, only environment
// variables and CLI flags).
package env

import "os"

// CacheDir is the root directory under which per-module intermediate build
// output is written (compiled objects, resource files, archives), unless
// overridden by the --intermediate-dir CLI flag.
var CacheDir = findCacheDir()

func findCacheDir() string {
	if dir := os.Getenv("EBUILD_CACHE_DIR"); dir != "" {
		return dir
	}
	return os.ExpandEnv("$HOME/.cache/ebuild")
}
