//go:build linux

package spawner

import (
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"voidctl/internal/clone"
	"voidctl/internal/fabric"
	"voidctl/internal/spec"
	"voidctl/internal/verror"
	"voidctl/internal/void"
)

var errNotTCPListener = errors.New("net.Listen(\"tcp\", ...) returned a non-TCP listener")

// Spawner holds everything a Spec's entrypoints need to be dispatched: the
// target binary, any trailing argv the caller supplied on the command
// line, and the fabric of pipes/sockets its channels were realised with.
type Spawner struct {
	Spec         *spec.Specification
	Binary       string
	TrailingArgs []string
	Debug        bool

	Pipes   map[string]*fabric.PipePair
	Sockets map[string]*fabric.SocketPair
}

// Spawn dispatches every entrypoint in the specification according to its
// trigger kind: Startup entrypoints are voided immediately, Pipe and
// FileSocket entrypoints get a supervisor void that forks one worker,
// which builds a fresh nested void per arrival.
func (s *Spawner) Spawn() error {
	for name, entrypoint := range s.Spec.Entrypoints {
		name, entrypoint := name, entrypoint

		switch entrypoint.Trigger.Kind {
		case spec.TriggerStartup:
			if err := s.startupEntrypoint(name, entrypoint); err != nil {
				return err
			}

		case spec.TriggerPipe:
			pipePair, ok := s.Pipes[entrypoint.Trigger.Channel]
			if !ok {
				return &verror.BadPipeError{Name: entrypoint.Trigger.Channel}
			}
			if err := s.superviseTrigger(name, entrypoint, func(builder *void.Builder) error {
				pipe, err := pipePair.TakeRead()
				if err != nil {
					return err
				}
				builder.KeepFD(int(pipe.Fd()))
				return s.pipeTrigger(pipe, name, entrypoint)
			}); err != nil {
				return err
			}

		case spec.TriggerFileSocket:
			socketPair, ok := s.Sockets[entrypoint.Trigger.Channel]
			if !ok {
				return &verror.BadFileSocketError{Name: entrypoint.Trigger.Channel}
			}
			if err := s.superviseTrigger(name, entrypoint, func(builder *void.Builder) error {
				sock, err := socketPair.TakeRead()
				if err != nil {
					return err
				}
				builder.KeepFD(int(sock.Fd()))
				return s.fileSocketTrigger(sock, name, entrypoint)
			}); err != nil {
				return err
			}

		default:
			return verror.ErrBadSpecType
		}
	}

	return nil
}

// startupEntrypoint voids the entrypoint once, immediately, with no
// trigger payload and no supervisor split.
func (s *Spawner) startupEntrypoint(name string, entrypoint spec.Entrypoint) error {
	builder := void.NewBuilder()
	if err := s.prepareEnv(builder, entrypoint.Environment); err != nil {
		return err
	}
	if err := s.mountEntrypoint(builder); err != nil {
		return err
	}

	prepared, err := PrepareAmbient(s, builder, entrypoint.Args)
	if err != nil {
		return err
	}

	_, err = builder.Spawn(func() int {
		argv, err := PrepareVoid(s, name, &TriggerData{Kind: TriggerDataNone}, prepared)
		if err != nil {
			logrus.WithError(err).Error("spawner: preparing void-phase argv")
			return -1
		}
		if s.Debug {
			stopSelf(name)
		}
		return execEntrypoint(argv)
	})
	return err
}

// superviseTrigger builds a supervisor void — a sibling process that owns
// the trigger channel, every environment/mount capability the entrypoint
// declares, and every file-arg/file-socket write-end the entrypoint's
// nested voids will need — then runs runLoop inside it. The supervisor
// itself is never voided again; runLoop is expected to fork one worker via
// forkForTrigger and have that worker build one nested void per arrival.
func (s *Spawner) superviseTrigger(name string, entrypoint spec.Entrypoint, runLoop func(*void.Builder) error) error {
	builder := void.NewBuilder()
	if err := s.prepareEnv(builder, entrypoint.Environment); err != nil {
		return err
	}
	if err := s.mountEntrypoint(builder); err != nil {
		return err
	}
	builder.Mount("/proc", "/proc").RemountProc()
	if err := s.forwardMounts(builder, entrypoint.Environment, entrypoint.Args); err != nil {
		return err
	}
	if err := s.forwardFiles(builder, entrypoint.Args); err != nil {
		return err
	}
	builder.KeepFD(1).KeepFD(2)

	_, err := builder.Spawn(func() int {
		if err := runLoop(builder); err != nil {
			logrus.WithError(err).WithField("entrypoint", name).Error("spawner: trigger supervisor exited with error")
			return -1
		}
		return 0
	})
	return err
}

// mountEntrypoint binds the target binary at /entrypoint inside the void.
// The binary path is canonicalised first (invariant 5): reconstructBindMount
// resolves the source path relative to the void's old root, so a relative
// or symlinked path would not be found there.
func (s *Spawner) mountEntrypoint(builder *void.Builder) error {
	abs, err := filepath.Abs(s.Binary)
	if err != nil {
		return verror.Syscall("filepath.Abs", err)
	}
	canon, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return verror.Syscall("filepath.EvalSymlinks", err)
	}
	builder.Mount(canon, "/entrypoint")
	return nil
}

// mountForwardedEntrypoint binds /entrypoint from the supervisor's own
// mount namespace into a nested void. Unlike mountEntrypoint, this runs
// inside a worker produced by forkForTrigger (a bare clone3 with no
// CLONE_NEWNS), which already shares the supervisor's pivoted mount
// namespace — the only place the original host binary path is visible is
// the supervisor's own /entrypoint bind mount, not s.Binary.
func mountForwardedEntrypoint(builder *void.Builder) {
	builder.Mount("/entrypoint", "/entrypoint")
}

// prepareEnv translates each EnvironmentCapability into the Builder calls
// that realise it.
func (s *Spawner) prepareEnv(builder *void.Builder, environment []spec.EnvironmentCapability) error {
	for _, grant := range environment {
		switch grant.Kind {
		case spec.EnvFilesystem:
			builder.Mount(grant.HostPath, grant.EnvPath)
		case spec.EnvHostname:
			builder.SetHostname(grant.Name)
		case spec.EnvDomainName:
			builder.SetDomainName(grant.Name)
		case spec.EnvProcfs:
			builder.Mount("/proc", "/proc").RemountProc()
		case spec.EnvStdin:
			builder.KeepFD(0)
		case spec.EnvStdout:
			builder.KeepFD(1)
		case spec.EnvStderr:
			builder.KeepFD(2)
		default:
			return verror.ErrBadSpecType
		}
	}
	return nil
}

// forwardMounts re-exposes, inside the supervisor void, every host path a
// nested per-arrival void will need to re-bind-mount: Filesystem
// environment grants and File argument paths, each mounted host_path ->
// host_path (identity) so the nested void's own pivot can reconstruct
// them from the supervisor's root.
func (s *Spawner) forwardMounts(builder *void.Builder, environment []spec.EnvironmentCapability, args []spec.Argument) error {
	for _, grant := range environment {
		if grant.Kind == spec.EnvFilesystem {
			builder.Mount(grant.HostPath, grant.HostPath)
		}
	}
	for _, arg := range args {
		if arg.Kind == spec.ArgFile {
			builder.Mount(arg.Path, arg.Path)
		}
	}
	return nil
}

// forwardFiles keeps alive, in the supervisor, the original (non-
// duplicated) write-end fd of every file-socket argument the entrypoint
// declares, so later per-arrival TakeWrite duplications off that same
// socket remain possible after the supervisor's fd-pruning step.
func (s *Spawner) forwardFiles(builder *void.Builder, args []spec.Argument) error {
	for _, arg := range args {
		if arg.Kind != spec.ArgFileSocket {
			continue
		}
		socketPair, ok := s.Sockets[arg.Channel]
		if !ok {
			return &verror.BadFileSocketError{Name: arg.Channel}
		}
		if ref := socketPair.WriteRef(); ref != nil {
			builder.KeepFD(int(ref.Fd()))
		}
	}
	return nil
}

// forkForTrigger is a bare clone3 with no extra namespace flags — a
// fork(2) equivalent — used by the trigger loops to retain the
// supervisor as pid 1 of its namespace while spawning a worker that waits
// on arrivals and builds nested voids. The parent branch never returns:
// it reaps exactly one child and re-exits with that child's status,
// retrying on EINTR, so the supervisor's own exit code reflects its
// worker's outcome.
func forkForTrigger() error {
	pid, err := clone.Clone3(clone.Args{ExitSignal: uint64(unix.SIGCHLD)})
	if err != nil {
		return err
	}
	if pid == 0 {
		return nil
	}

	for {
		var ws unix.WaitStatus
		_, err := unix.Wait4(pid, &ws, 0, nil)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			os.Exit(-1)
		}
		if ws.Exited() {
			os.Exit(ws.ExitStatus())
		}
		os.Exit(-1)
	}
}

// stopSelf raises SIGSTOP against the calling process. With --debug set,
// every voided entrypoint calls it after voiding and before exec, so a
// debugger can attach.
func stopSelf(name string) {
	logrus.WithField("entrypoint", name).Debug("spawner: worker stopping")
	_ = unix.Kill(unix.Getpid(), unix.SIGSTOP)
}

// pipeTrigger forks a worker via forkForTrigger, then reads arrivals off
// pipe in a loop, building a fresh nested void per non-empty chunk. EOF
// (a zero-byte read) or EINTR ends the loop cleanly; any other read error
// is returned to the supervisor.
func (s *Spawner) pipeTrigger(pipe *os.File, name string, entrypoint spec.Entrypoint) error {
	if err := forkForTrigger(); err != nil {
		return err
	}

	buf := make([]byte, 1024)
	for {
		n, err := pipe.Read(buf)
		if err == io.EOF || errors.Is(err, unix.EINTR) {
			return nil
		}
		if err != nil {
			return verror.Syscall("read", err)
		}
		if n == 0 {
			return nil
		}

		if err := s.voidEntrypoint(name, entrypoint, &TriggerData{
			Kind:      TriggerDataPipe,
			PipeBytes: string(buf[:n]),
		}); err != nil {
			return err
		}
	}
}

// fileSocketTrigger forks a worker via forkForTrigger, then receives
// SCM_RIGHTS messages off sock in a loop, building a fresh nested void
// per message with the descriptors that message carried.
func (s *Spawner) fileSocketTrigger(sock *os.File, name string, entrypoint spec.Entrypoint) error {
	if err := forkForTrigger(); err != nil {
		return err
	}

	fd := int(sock.Fd())
	oob := make([]byte, unix.CmsgSpace(16*4))
	for {
		_, oobn, _, _, err := unix.Recvmsg(fd, nil, oob, 0)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return verror.Syscall("recvmsg", err)
		}

		scms, err := unix.ParseSocketControlMessage(oob[:oobn])
		if err != nil {
			return verror.Syscall("parse_socket_control_message", err)
		}

		var files []*os.File
		for _, scm := range scms {
			fds, err := unix.ParseUnixRights(&scm)
			if err != nil {
				return verror.Syscall("parse_unix_rights", err)
			}
			for _, rfd := range fds {
				files = append(files, os.NewFile(uintptr(rfd), "received-fd"))
			}
		}
		if len(files) == 0 {
			continue
		}

		if err := s.voidEntrypoint(name, entrypoint, &TriggerData{
			Kind:  TriggerDataFileSocket,
			Files: files,
		}); err != nil {
			return err
		}
	}
}

// voidEntrypoint builds one nested void for a single trigger arrival: a
// fresh Builder sourced from the supervisor's own root (the supervisor
// having already forwarded every host path the entrypoint's mounts and
// file args reference), voided and exec'd with the arrival's payload
// folded into argv.
func (s *Spawner) voidEntrypoint(name string, entrypoint spec.Entrypoint, trigger *TriggerData) error {
	builder := void.NewBuilder()
	if err := s.prepareEnv(builder, entrypoint.Environment); err != nil {
		return err
	}
	mountForwardedEntrypoint(builder)
	if err := s.forwardMounts(builder, entrypoint.Environment, entrypoint.Args); err != nil {
		return err
	}

	prepared, err := PrepareAmbient(s, builder, entrypoint.Args)
	if err != nil {
		return err
	}
	for _, f := range trigger.Files {
		builder.KeepFD(int(f.Fd()))
	}

	_, err = builder.Spawn(func() int {
		argv, err := PrepareVoid(s, name, trigger, prepared)
		if err != nil {
			logrus.WithError(err).Error("spawner: preparing void-phase argv")
			return -1
		}
		if s.Debug {
			stopSelf(name)
		}
		return execEntrypoint(argv)
	})
	return err
}
