//go:build linux

package execenv

import (
	"testing"

	"golang.org/x/sys/unix"
)

func TestRaiseFileLimit(t *testing.T) {
	var before unix.Rlimit
	err := unix.Getrlimit(unix.RLIMIT_NOFILE, &before)
	if err != nil {
		t.Fatalf("TestRaiseFileLimit: Getrlimit: %s", err)
	}

	// Asking for less than the current limit never lowers it.
	err = raiseFileLimit(1)
	if err != nil {
		t.Fatalf("TestRaiseFileLimit: raiseFileLimit: %s", err)
	}
	var after unix.Rlimit
	err = unix.Getrlimit(unix.RLIMIT_NOFILE, &after)
	if err != nil {
		t.Fatalf("TestRaiseFileLimit: Getrlimit: %s", err)
	}
	if after.Cur != before.Cur {
		t.Fatalf("TestRaiseFileLimit: soft limit changed from %d to %d", before.Cur, after.Cur)
	}

	err = raiseFileLimit(before.Max)
	if err != nil {
		t.Fatalf("TestRaiseFileLimit: raiseFileLimit to the hard limit: %s", err)
	}
}
