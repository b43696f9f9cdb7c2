//go:build linux

// Package fabric builds the IPC primitives the specification's channels
// are realised with: packet-mode pipes and AF_UNIX datagram socketpairs,
// each with move-once endpoint semantics.
package fabric

import (
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"voidctl/internal/verror"
)

// PipePair is a named packet-mode pipe (O_DIRECT: each write is a
// distinct record). Each endpoint may be taken exactly once.
type PipePair struct {
	name string

	mu    sync.Mutex
	read  *os.File
	write *os.File
}

// NewPipePair creates a fresh pipe2(O_DIRECT) pair under the given name.
func NewPipePair(name string) (*PipePair, error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_DIRECT); err != nil {
		return nil, verror.Syscall("pipe2", err)
	}

	return &PipePair{
		name:  name,
		read:  os.NewFile(uintptr(fds[0]), name+"-read"),
		write: os.NewFile(uintptr(fds[1]), name+"-write"),
	}, nil
}

// TakeRead returns the read endpoint, or BadPipeError if already taken.
func (p *PipePair) TakeRead() (*os.File, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.read == nil {
		return nil, &verror.BadPipeError{Name: p.name}
	}
	f := p.read
	p.read = nil
	return f, nil
}

// TakeWrite returns the write endpoint, or BadPipeError if already taken.
func (p *PipePair) TakeWrite() (*os.File, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.write == nil {
		return nil, &verror.BadPipeError{Name: p.name}
	}
	f := p.write
	p.write = nil
	return f, nil
}

// SocketPair is a named AF_UNIX SOCK_DGRAM socketpair capable of passing
// file descriptors via SCM_RIGHTS. The read endpoint is taken exactly
// once; the write endpoint may be duplicated for multiple writers.
type SocketPair struct {
	name string

	mu    sync.Mutex
	read  *os.File
	write *os.File
}

// NewSocketPair creates a fresh AF_UNIX SOCK_DGRAM socketpair under the
// given name.
func NewSocketPair(name string) (*SocketPair, error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_DGRAM, 0)
	if err != nil {
		return nil, verror.Syscall("socketpair", err)
	}

	return &SocketPair{
		name:  name,
		read:  os.NewFile(uintptr(fds[0]), name+"-read"),
		write: os.NewFile(uintptr(fds[1]), name+"-write"),
	}, nil
}

// TakeRead returns the read endpoint, or BadFileSocketError if already
// taken.
func (s *SocketPair) TakeRead() (*os.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.read == nil {
		return nil, &verror.BadFileSocketError{Name: s.name}
	}
	f := s.read
	s.read = nil
	return f, nil
}

// TakeWrite duplicates the shared write endpoint, so multiple writers can
// each hold their own fd to the same underlying socket.
func (s *SocketPair) TakeWrite() (*os.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.write == nil {
		return nil, &verror.BadFileSocketError{Name: s.name}
	}

	dupFd, err := unix.Dup(int(s.write.Fd()))
	if err != nil {
		return nil, verror.Syscall("dup", err)
	}
	return os.NewFile(uintptr(dupFd), s.name+"-write"), nil
}

// WriteRef returns the non-duplicated, still-owned write endpoint, for
// callers that only need to keep the original fd alive (the supervisor's
// own kept-fd set) without consuming it.
func (s *SocketPair) WriteRef() *os.File {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write
}
