//go:build linux || darwin

package execenv

import (
	"golang.org/x/sys/unix"
)

// raiseFileLimit raises the soft limit on open files to want, or to the
// hard limit if that is lower. It never lowers the current soft limit.
func raiseFileLimit(want uint64) error {
	var rLimit unix.Rlimit
	err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rLimit)
	if err != nil {
		return err
	}
	if rLimit.Cur >= want {
		return nil
	}
	rLimit.Cur = want
	if rLimit.Max < want {
		rLimit.Cur = rLimit.Max
	}
	return unix.Setrlimit(unix.RLIMIT_NOFILE, &rLimit)
}
