package app

import (
	"os"
	"sync"
	"testing"
)

const testModeEnv = "ODYSSEY_TEST_MODE"

var (
	testModeOnce sync.Once
	testMode     bool
)

// InTestMode reports whether the binaries should skip opening connections.
// It is true inside test binaries or when ODYSSEY_TEST_MODE=1.
func InTestMode() bool {
	testModeOnce.Do(func() {
		testMode = os.Getenv(testModeEnv) == "1" || testing.Testing()
	})
	return testMode
}
