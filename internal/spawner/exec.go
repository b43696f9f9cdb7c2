//go:build linux

package spawner

import (
	"os"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// execEntrypoint replaces the voided child with /entrypoint, argv
// untouched, environment cleared. A failure here can only be reported by
// exit code: the void has already pruned every fd and pivoted root, so
// there is nothing left to log to but whatever stderr the entrypoint's
// environment capabilities chose to keep.
func execEntrypoint(argv []string) int {
	if err := unix.Exec("/entrypoint", argv, nil); err != nil {
		logrus.WithError(err).Error("spawner: exec into entrypoint failed")
		os.Exit(127)
	}
	panic("unreachable")
}
