// Package guard switches the binaries into test mode when imported by a
// test, so calling main never dials Redis or binds a port.
package guard

import (
	"os"

	"github.com/deliverly/admin-console/internal/app"
)

func init() {
	if os.Getenv(app.TestModeEnv) == "" {
		_ = os.Setenv(app.TestModeEnv, "1")
	}
	app.RefreshTestMode()
}
