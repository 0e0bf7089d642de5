package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("SASSWATCH_TEST_MODE", "1")
		if os.Getenv("AUTH_BCRYPT_COST") == "" {
			_ = os.Setenv("AUTH_BCRYPT_COST", "4")
		}
	})
}

func init() {
	ensureTestMode()
}

func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
