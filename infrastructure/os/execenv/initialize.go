package execenv

import (
	"runtime"

	"github.com/pkg/errors"
)

// desiredFileLimit is the number of open files the databases need to run
// comfortably.
const desiredFileLimit = 4096

// Initialize initializes the execution environment required to run coinchaind
func Initialize() error {
	// Use all processor cores.
	runtime.GOMAXPROCS(runtime.NumCPU())

	// Up some limits.
	err := raiseFileLimit(desiredFileLimit)
	if err != nil {
		return errors.Wrap(err, "failed to set limits")
	}
	return nil
}
