//go:build linux

// Package clone provides a typed wrapper around the clone3(2) system call,
// invoked directly via golang.org/x/sys/unix rather than through os/exec's
// fork+exec path, so the child can run further Go code (the voiding
// sequence) before ever calling execve.
package clone

import (
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"

	"voidctl/internal/verror"
)

// Flags is the clone3 flag bitmask (CLONE_NEWCGROUP, CLONE_NEWIPC, ...).
type Flags uint64

const (
	NewCgroup Flags = unix.CLONE_NEWCGROUP
	NewIPC    Flags = unix.CLONE_NEWIPC
	NewNet    Flags = unix.CLONE_NEWNET
	NewNS     Flags = unix.CLONE_NEWNS
	NewPID    Flags = unix.CLONE_NEWPID
	NewUser   Flags = unix.CLONE_NEWUSER
	NewUTS    Flags = unix.CLONE_NEWUTS
)

// args mirrors the kernel's struct clone_args (uapi/linux/sched.h) field
// for field: all members are u64 regardless of host word size, per the
// clone3(2) ABI contract.
type args struct {
	flags       uint64
	pidfd       uint64
	childTID    uint64
	parentTID   uint64
	exitSignal  uint64
	stack       uint64
	stackSize   uint64
	tls         uint64
	setTid      uint64
	setTidSize  uint64
	cgroup      uint64
}

// Args configures a Clone3 call. ExitSignal is typically unix.SIGCHLD.
// Cgroup, if non-zero, places the child in that cgroup fd at birth.
type Args struct {
	Flags      Flags
	ExitSignal uint64
	Cgroup     int
}

// Result holds a child pid: the child pid in the parent branch, zero in
// the child branch. Clone3 returns the pid directly and does not produce
// a Result.
type Result struct {
	Pid int
}

// Clone3 invokes clone3(2). It returns (0, nil) in the new child process
// and (childPid, nil) in the calling process. Like fork(2), it is called
// once and returns twice.
//
// Clone3 takes runtime.LockOSThread itself before the syscall. The parent
// branch releases it before returning; the child branch returns with the
// lock still held, since the child inherits a single OS thread and must
// not let the Go scheduler migrate it before it reaches execve, mirroring
// the restriction syscall.forkAndExecInChild observes for plain fork.
func Clone3(a Args) (pid int, err error) {
	runtime.LockOSThread()

	ffi := args{
		flags:      uint64(a.Flags),
		exitSignal: a.ExitSignal,
	}
	if a.Cgroup != 0 {
		ffi.flags |= unix.CLONE_INTO_CGROUP
		ffi.cgroup = uint64(a.Cgroup)
	}

	r1, _, errno := unix.RawSyscall(unix.SYS_CLONE3, uintptr(unsafe.Pointer(&ffi)), unsafe.Sizeof(ffi), 0)
	if errno != 0 {
		runtime.UnlockOSThread()
		return 0, verror.Syscall("clone3", errno)
	}

	if r1 != 0 {
		// Parent branch: this goroutine returns to ordinary scheduling, so
		// release the lock taken above instead of pinning it to this
		// thread for the rest of the process's life.
		runtime.UnlockOSThread()
	}

	return int(r1), nil
}
