//go:build linux

package void

import (
	"os"
	"strconv"

	"golang.org/x/sys/unix"

	"voidctl/internal/verror"
)

// voidFiles closes every open descriptor at or above 3 except those in
// keepFDs, replaces any of the standard descriptors (0, 1, 2) not kept
// with a fresh /dev/null, and clears FD_CLOEXEC on every kept descriptor
// so it survives the child's eventual exec. Must run after the mount
// namespace is reconstructed, so /dev/null is still reachable.
func (b *Builder) voidFiles() error {
	entries, err := os.ReadDir("/proc/self/fd")
	if err != nil {
		// No procfs inside the void: try every descriptor below the soft
		// RLIMIT_NOFILE instead.
		var lim unix.Rlimit
		if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &lim); err != nil {
			return verror.Syscall("getrlimit(RLIMIT_NOFILE)", err)
		}
		for fd := 3; uint64(fd) < lim.Cur; fd++ {
			if _, keep := b.keepFDs[fd]; !keep {
				_ = unix.Close(fd)
			}
		}
	}

	for _, e := range entries {
		fd, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		if fd < 3 {
			continue
		}
		if _, keep := b.keepFDs[fd]; keep {
			continue
		}
		_ = unix.Close(fd)
	}

	devNullNeeded := false
	for _, std := range []int{unix.Stdin, unix.Stdout, unix.Stderr} {
		if _, keep := b.keepFDs[std]; !keep {
			devNullNeeded = true
			break
		}
	}

	if devNullNeeded {
		null, err := unix.Open("/dev/null", unix.O_RDWR, 0)
		if err != nil {
			return verror.Syscall("open(/dev/null)", err)
		}
		defer unix.Close(null)

		for _, std := range []int{unix.Stdin, unix.Stdout, unix.Stderr} {
			if _, keep := b.keepFDs[std]; keep {
				continue
			}
			if err := unix.Dup2(null, std); err != nil {
				return verror.Syscall("dup2(/dev/null)", err)
			}
		}
	}

	if !b.userMountedDevNull {
		if err := unix.Unmount("/dev/null", unix.MNT_DETACH); err != nil {
			return verror.Syscall("umount2(/dev/null)", err)
		}
	}

	for fd := range b.keepFDs {
		flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0)
		if err != nil {
			return verror.Syscall("fcntl(F_GETFD)", err)
		}
		flags &^= unix.FD_CLOEXEC
		if _, err := unix.FcntlInt(uintptr(fd), unix.F_SETFD, flags); err != nil {
			return verror.Syscall("fcntl(F_SETFD)", err)
		}
	}

	return nil
}
