//go:build linux

// Package void builds isolated Linux namespace sandboxes ("voids"): a
// clone3'd child that, before running its entry closure, re-maps its
// uid/gid into a fresh user namespace, pivots into a reconstructed root
// built from a declared set of bind-mounts, prunes every file descriptor
// it wasn't told to keep, and sets its own UTS identity.
package void

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"voidctl/internal/clone"
)

// Handle is a process-id handle returned to the parent. The parent holds
// no other state about the child; lifecycle is observed via wait4/waitid.
type Handle struct {
	Pid int
}

func (h Handle) String() string {
	return fmt.Sprintf("Void{Pid:%d}", h.Pid)
}

// Builder accumulates a void's configuration before Spawn clones it.
type Builder struct {
	mounts             map[string]string
	userMountedDevNull bool

	keepFDs map[int]struct{}

	hostname    string
	domainName  string
	remountProc bool
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{
		mounts:  make(map[string]string),
		keepFDs: make(map[int]struct{}),
	}
}

// Mount queues a bind-mount of src (resolved against the pre-pivot root)
// onto dst (resolved against the void's new root).
func (b *Builder) Mount(src, dst string) *Builder {
	if dst == "/dev/null" {
		b.userMountedDevNull = true
	}
	b.mounts[src] = dst
	return b
}

// KeepFD marks fd to survive the file-descriptor pruning step, with
// FD_CLOEXEC cleared so it also survives the child's eventual exec.
func (b *Builder) KeepFD(fd int) *Builder {
	b.keepFDs[fd] = struct{}{}
	return b
}

// SetHostname sets the void's UTS hostname; defaults to "void" if unset.
func (b *Builder) SetHostname(name string) *Builder {
	b.hostname = name
	return b
}

// SetDomainName sets the void's UTS domain name; defaults to "(none)" if
// unset.
func (b *Builder) SetDomainName(name string) *Builder {
	b.domainName = name
	return b
}

// RemountProc requests a fresh procfs mount at /proc inside the void,
// performed after pivot so it reflects the new pid namespace.
func (b *Builder) RemountProc() *Builder {
	b.remountProc = true
	return b
}

// Spawn clones a child in seven fresh namespaces. In the parent, it
// returns a Handle referencing the child's pid. In the child, it runs the
// voiding sequence and then childFn, exiting with childFn's return code;
// a voiding failure is logged and exits nonzero without ever returning to
// the caller.
//
// Resource-move discipline: any *os.File or raw fd captured by childFn is
// owned by the child branch from this call onward. The parent must not
// touch or close those values after calling Spawn — they are considered
// moved, mirroring the "forget the child closure's resources" discipline
// of the system this builder is modelled on.
func (b *Builder) Spawn(childFn func() int) (*Handle, error) {
	uid := unix.Getuid()
	gid := unix.Getgid()

	pid, err := clone.Clone3(clone.Args{
		Flags: clone.NewCgroup | clone.NewIPC | clone.NewNet | clone.NewNS |
			clone.NewPID | clone.NewUser | clone.NewUTS,
		ExitSignal: uint64(unix.SIGCHLD),
	})
	if err != nil {
		return nil, err
	}

	if pid != 0 {
		// parent branch: the child now owns every fd/file referenced from
		// childFn; we never invoke it here.
		return &Handle{Pid: pid}, nil
	}

	// child branch: runs until exit, never returns.
	signal.Ignore(unix.SIGHUP)

	if err := b.void(uid, gid); err != nil {
		logrus.WithError(err).Error("void: error preparing void")
		os.Exit(-1)
	}

	os.Exit(childFn())
	panic("unreachable")
}

// void runs the fixed-order voiding sequence described for this builder:
// user namespace first (to regain capabilities for the mount operations
// that follow), then the mount-namespace pivot, then fd pruning (after
// mounts, so /dev/null is still reachable), then UTS. IPC/net/pid/cgroup
// namespaces require no action beyond their creation at clone3 time.
func (b *Builder) void(uid, gid int) error {
	if err := b.voidUserNamespace(uid, gid); err != nil {
		return err
	}
	if err := b.voidMountNamespace(); err != nil {
		return err
	}
	if err := b.voidFiles(); err != nil {
		return err
	}
	if err := b.voidUTS(); err != nil {
		return err
	}
	return nil
}
