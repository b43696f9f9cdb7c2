//go:build linux

// Package spawner builds a void per entrypoint and drives Startup/Pipe/
// FileSocket dispatch, including the supervisor-then-forked-worker split
// used for trigger-based respawn.
package spawner

import (
	"net"
	"os"
	"strconv"

	"voidctl/internal/spec"
	"voidctl/internal/verror"
	"voidctl/internal/void"
)

// PreparedArg is one argument specifier after its ambient-authority
// portion has been resolved in the parent: a file already opened, a
// socket already bound, a channel endpoint already taken. The void phase
// only needs to stringify whatever File is attached here.
type PreparedArg struct {
	Kind spec.ArgumentKind
	File *os.File
}

// PrepareAmbient resolves every argument specifier that needs the
// parent's ambient authority: opening files, binding TCP listeners, and
// taking pipe/file-socket endpoints from the fabric. BinaryName,
// Entrypoint, Trigger, and Trailing are left for the void phase. Every
// resolved fd is registered with builder so it survives the void's
// file-descriptor pruning step.
func PrepareAmbient(s *Spawner, builder *void.Builder, args []spec.Argument) ([]PreparedArg, error) {
	prepared := make([]PreparedArg, 0, len(args))

	for _, arg := range args {
		switch arg.Kind {
		case spec.ArgFile:
			f, err := os.Open(arg.Path)
			if err != nil {
				return nil, verror.Syscall("open("+arg.Path+")", err)
			}
			builder.KeepFD(int(f.Fd()))
			prepared = append(prepared, PreparedArg{Kind: spec.ArgFile, File: f})

		case spec.ArgTcpListener:
			ln, err := net.Listen("tcp", arg.Addr)
			if err != nil {
				return nil, verror.Syscall("listen("+arg.Addr+")", err)
			}
			tcpLn, ok := ln.(*net.TCPListener)
			if !ok {
				return nil, verror.Syscall("listen("+arg.Addr+")", errNotTCPListener)
			}
			f, err := tcpLn.File()
			if err != nil {
				return nil, verror.Syscall("tcplistener.File", err)
			}
			_ = ln.Close()
			builder.KeepFD(int(f.Fd()))
			prepared = append(prepared, PreparedArg{Kind: spec.ArgTcpListener, File: f})

		case spec.ArgPipe:
			pipePair, ok := s.Pipes[arg.Channel]
			if !ok {
				return nil, &verror.BadPipeError{Name: arg.Channel}
			}
			var (
				f   *os.File
				err error
			)
			if arg.End == spec.Rx {
				f, err = pipePair.TakeRead()
			} else {
				f, err = pipePair.TakeWrite()
			}
			if err != nil {
				return nil, err
			}
			builder.KeepFD(int(f.Fd()))
			prepared = append(prepared, PreparedArg{Kind: spec.ArgPipe, File: f})

		case spec.ArgFileSocket:
			socketPair, ok := s.Sockets[arg.Channel]
			if !ok {
				return nil, &verror.BadFileSocketError{Name: arg.Channel}
			}
			var (
				f   *os.File
				err error
			)
			if arg.End == spec.Rx {
				f, err = socketPair.TakeRead()
			} else {
				f, err = socketPair.TakeWrite()
			}
			if err != nil {
				return nil, err
			}
			builder.KeepFD(int(f.Fd()))
			prepared = append(prepared, PreparedArg{Kind: spec.ArgFileSocket, File: f})

		case spec.ArgBinaryName, spec.ArgEntrypoint, spec.ArgTrigger, spec.ArgTrailing:
			prepared = append(prepared, PreparedArg{Kind: arg.Kind})

		default:
			return nil, verror.ErrBadSpecType
		}
	}

	return prepared, nil
}

// PrepareVoid completes argument preparation inside the void, after
// voiding: it stringifies fd numbers (CLOEXEC has already been cleared by
// the builder), fills in argv[0] and the entrypoint name, and expands the
// trigger payload and trailing args.
func PrepareVoid(s *Spawner, entrypointName string, trigger *TriggerData, prepared []PreparedArg) ([]string, error) {
	argv := make([]string, 0, len(prepared))

	for _, p := range prepared {
		switch p.Kind {
		case spec.ArgBinaryName:
			argv = append(argv, "/entrypoint")
		case spec.ArgEntrypoint:
			argv = append(argv, entrypointName)
		case spec.ArgFile, spec.ArgPipe, spec.ArgFileSocket, spec.ArgTcpListener:
			argv = append(argv, strconv.Itoa(int(p.File.Fd())))
		case spec.ArgTrigger:
			argv = append(argv, trigger.Args()...)
		case spec.ArgTrailing:
			argv = append(argv, s.TrailingArgs...)
		default:
			return nil, verror.ErrBadSpecType
		}
	}

	return argv, nil
}
