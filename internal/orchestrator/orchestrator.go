//go:build linux

// Package orchestrator wires a loaded specification, its IPC fabric, and
// the spawner together into the orchestrator's top-level run: load, add
// stdout/stderr capabilities if requested, build the fabric, spawn, then
// either return immediately (daemon mode) or reap until no children
// remain.
package orchestrator

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"voidctl/internal/fabric"
	"voidctl/internal/pack"
	"voidctl/internal/spawner"
	"voidctl/internal/spec"
	"voidctl/internal/verror"
)

// RunArgs mirrors the orchestrator's external CLI surface.
type RunArgs struct {
	SpecPath string
	Debug    bool
	Daemon   bool

	Stdout bool
	Stderr bool

	Binary     string
	BinaryArgs []string
}

// Run loads a specification, realises its channels, spawns every
// entrypoint, and either returns immediately (daemon mode) or blocks
// until every spawned process has exited. The returned exit code is the
// first non-zero child exit code observed, or 0 if every child exited
// cleanly.
func Run(args RunArgs) (int, error) {
	specification, err := loadSpecification(args)
	if err != nil {
		return 0, err
	}

	logrus.WithField("entrypoints", len(specification.Entrypoints)).Debug("orchestrator: specification loaded")

	if err := specification.Validate(); err != nil {
		return 0, err
	}

	if args.Stdout {
		logrus.Debug("orchestrator: forwarding stdout")
		addCapability(specification, spec.EnvironmentCapability{Kind: spec.EnvStdout})
	}
	if args.Stderr {
		logrus.Debug("orchestrator: forwarding stderr")
		addCapability(specification, spec.EnvironmentCapability{Kind: spec.EnvStderr})
	}

	pipeNames, socketNames := specification.ChannelNames()

	pipes, err := createPipes(pipeNames)
	if err != nil {
		return 0, err
	}
	sockets, err := createSockets(socketNames)
	if err != nil {
		return 0, err
	}

	s := &spawner.Spawner{
		Spec:         specification,
		Binary:       args.Binary,
		TrailingArgs: args.BinaryArgs,
		Debug:        args.Debug,
		Pipes:        pipes,
		Sockets:      sockets,
	}
	if err := s.Spawn(); err != nil {
		return 0, err
	}

	if args.Daemon {
		return 0, nil
	}

	logrus.Info("orchestrator: spawned successfully, awaiting children exiting...")
	return reap()
}

// loadSpecification reads an external JSON specification if one was
// given, otherwise falls back to the section packed into the target
// binary.
func loadSpecification(args RunArgs) (*spec.Specification, error) {
	if args.SpecPath != "" {
		if filepath.Ext(args.SpecPath) != ".json" {
			return nil, verror.ErrBadSpecType
		}
		f, err := os.Open(args.SpecPath)
		if err != nil {
			return nil, verror.Syscall("open("+args.SpecPath+")", err)
		}
		defer f.Close()

		var specification spec.Specification
		if err := json.NewDecoder(f).Decode(&specification); err != nil {
			return nil, err
		}
		return &specification, nil
	}

	specification, found, err := pack.Extract(args.Binary)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, verror.ErrNoSpecification
	}
	return specification, nil
}

func addCapability(specification *spec.Specification, grant spec.EnvironmentCapability) {
	for name, entrypoint := range specification.Entrypoints {
		entrypoint.Environment = append(entrypoint.Environment, grant)
		specification.Entrypoints[name] = entrypoint
	}
}

func createPipes(names []string) (map[string]*fabric.PipePair, error) {
	pipes := make(map[string]*fabric.PipePair, len(names))
	for _, name := range names {
		logrus.WithField("pipe", name).Info("orchestrator: creating pipe pair")
		p, err := fabric.NewPipePair(name)
		if err != nil {
			return nil, err
		}
		pipes[name] = p
	}
	return pipes, nil
}

func createSockets(names []string) (map[string]*fabric.SocketPair, error) {
	sockets := make(map[string]*fabric.SocketPair, len(names))
	for _, name := range names {
		logrus.WithField("socket", name).Info("orchestrator: creating socket pair")
		sp, err := fabric.NewSocketPair(name)
		if err != nil {
			return nil, err
		}
		sockets[name] = sp
	}
	return sockets, nil
}

// reap loops on wait4(-1, WEXITED) — this module's stand-in for
// waitid(P_ALL, WEXITED) — until ECHILD, tracking the first non-zero exit
// code seen across every reaped child.
func reap() (int, error) {
	exitCode := 0

	for {
		var ws unix.WaitStatus
		pid, err := unix.Wait4(-1, &ws, 0, nil)
		if err == unix.EINTR {
			continue
		}
		if err == unix.ECHILD {
			logrus.Info("orchestrator: all child processes have exited, exiting...")
			return exitCode, nil
		}
		if err != nil {
			return 0, verror.Syscall("wait4", err)
		}

		switch {
		case ws.Exited():
			code := ws.ExitStatus()
			if code != 0 && exitCode == 0 {
				exitCode = code
			}
			logrus.WithField("pid", pid).WithField("code", code).Debug("orchestrator: child exited")
		case ws.Signaled():
			logrus.WithField("pid", pid).WithField("signal", ws.Signal()).Debug("orchestrator: child terminated by signal")
		}
	}
}
