//go:build !cmagicdebug

package assert

// That is a no-op in release builds; see assert_debug.go.
func That(cond bool, msg string) {}
