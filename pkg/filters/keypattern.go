package filters

import "path/filepath"

// MatchKey reports whether key matches the glob pattern. Patterns use the
// same "*" and "?" wildcards as path/filepath.Match; a malformed pattern
// matches nothing rather than erroring.
func MatchKey(pattern, key string) bool {
	ok, err := filepath.Match(pattern, key)
	return err == nil && ok
}
