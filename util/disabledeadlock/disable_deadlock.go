// Package disabledeadlock turns go-deadlock detection off unless
// DASHBOARD_DEADLOCK_DETECTION is set. Import it from main packages only.
package disabledeadlock

import (
	"os"

	"github.com/algorand/go-deadlock"
)

// EnableEnv enables deadlock detection when set to any value.
const EnableEnv = "DASHBOARD_DEADLOCK_DETECTION"

func init() {
	deadlock.Opts.Disable = os.Getenv(EnableEnv) == ""
}
