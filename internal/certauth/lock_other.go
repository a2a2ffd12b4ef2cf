//go:build !unix

package certauth

// lockDir is a no-op where flock(2) is unavailable; concurrent generation is
// then only deduplicated within one process.
func lockDir(string) (func(), error) {
	return func() {}, nil
}
