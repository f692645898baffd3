// Package guard forces test mode before any runtime code observes the flag.
// Test packages blank-import it so binaries under test never open real
// network or database connections.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("VAULTGATE_TEST_MODE") == "" {
			_ = os.Setenv("VAULTGATE_TEST_MODE", "1")
		}
	})
}
