//go:build linux

package void

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuilderKeepFDBookkeeping(t *testing.T) {
	b := NewBuilder()
	b.KeepFD(5).KeepFD(7)

	_, keep5 := b.keepFDs[5]
	_, keep7 := b.keepFDs[7]
	_, keep6 := b.keepFDs[6]

	require.True(t, keep5)
	require.True(t, keep7)
	require.False(t, keep6)
}

func TestBuilderMountBookkeeping(t *testing.T) {
	b := NewBuilder()
	b.Mount("/etc/hosts", "/etc/hosts")

	require.Equal(t, "/etc/hosts", b.mounts["/etc/hosts"])
	require.False(t, b.userMountedDevNull)
}

func TestBuilderUserDevNullMount(t *testing.T) {
	b := NewBuilder()
	b.Mount("/tmp/my-null", "/dev/null")

	require.True(t, b.userMountedDevNull)
}

func TestBuilderHostnameDefaults(t *testing.T) {
	b := NewBuilder()
	require.Equal(t, "", b.hostname)

	b.SetHostname("myvoid")
	require.Equal(t, "myvoid", b.hostname)
}
