//go:build !linux && !darwin

package execenv

// raiseFileLimit is a no-op on platforms without rlimits.
func raiseFileLimit(uint64) error {
	return nil
}
