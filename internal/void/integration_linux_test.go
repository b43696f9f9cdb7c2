//go:build linux

package void

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// TestVoidIsolation exercises scenario 6 of this project's end-to-end seed
// tests: a void with no Procfs capability sees no /proc, and its hostname
// defaults to "void". It requires CAP_SYS_ADMIN (to create namespaces) and
// is skipped unless explicitly opted into with IN_VM=1.
func TestVoidIsolation(t *testing.T) {
	if os.Getenv("IN_VM") != "1" {
		t.Skip("namespace integration test only runs inside a privileged VM")
	}

	b := NewBuilder()
	handle, err := b.Spawn(func() int {
		if _, err := os.Stat("/proc/self"); err == nil {
			return 1 // procfs unexpectedly visible
		}

		var uts unix.Utsname
		if err := unix.Uname(&uts); err != nil {
			return 2
		}
		hostname := string(uts.Nodename[:])
		for i, c := range uts.Nodename {
			if c == 0 {
				hostname = string(uts.Nodename[:i])
				break
			}
		}
		if hostname != "void" {
			return 3
		}
		return 0
	})
	require.NoError(t, err)

	var ws unix.WaitStatus
	_, err = unix.Wait4(handle.Pid, &ws, 0, nil)
	require.NoError(t, err)
	require.True(t, ws.Exited())
	require.Equal(t, 0, ws.ExitStatus())
}
