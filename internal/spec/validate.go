package spec

import (
	"voidctl/internal/verror"
)

// PipeNames returns every pipe channel referenced as a reader and as a
// writer across the whole specification, in map-iteration order.
func (s *Specification) PipeNames() (readers, writers []string) {
	for _, ep := range s.Entrypoints {
		if ep.Trigger.Kind == TriggerPipe {
			readers = append(readers, ep.Trigger.Channel)
		}
		for _, arg := range ep.Args {
			if arg.Kind != ArgPipe {
				continue
			}
			if arg.End == Rx {
				readers = append(readers, arg.Channel)
			} else {
				writers = append(writers, arg.Channel)
			}
		}
	}
	return readers, writers
}

// SocketNames returns every file-socket channel referenced as a reader
// and as a writer across the whole specification.
func (s *Specification) SocketNames() (readers, writers []string) {
	for _, ep := range s.Entrypoints {
		if ep.Trigger.Kind == TriggerFileSocket {
			readers = append(readers, ep.Trigger.Channel)
		}
		for _, arg := range ep.Args {
			if arg.Kind != ArgFileSocket {
				continue
			}
			if arg.End == Rx {
				readers = append(readers, arg.Channel)
			} else {
				writers = append(writers, arg.Channel)
			}
		}
	}
	return readers, writers
}

// ChannelNames returns the union of pipe and socket names referenced
// anywhere in the specification, so the IPC fabric can be built up front
// before any void is spawned.
func (s *Specification) ChannelNames() (pipes, sockets []string) {
	pipeReaders, pipeWriters := s.PipeNames()
	socketReaders, socketWriters := s.SocketNames()
	return dedupe(append(pipeReaders, pipeWriters...)), dedupe(append(socketReaders, socketWriters...))
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// Validate enforces the specification's topology invariants:
//  1. every pipe has exactly one reader and exactly one writer
//  2. every file socket has exactly one reader and at least one writer
//  3. a Trigger argument only appears in an entrypoint whose trigger is
//     Pipe or FileSocket
func (s *Specification) Validate() error {
	readers, writers := s.PipeNames()

	readCount := make(map[string]int, len(readers))
	for _, r := range readers {
		readCount[r]++
		if readCount[r] > 1 {
			return &verror.BadPipeError{Name: r}
		}
	}

	writeCount := make(map[string]int, len(writers))
	for _, w := range writers {
		writeCount[w]++
		if writeCount[w] > 1 {
			return &verror.BadPipeError{Name: w}
		}
	}

	for r := range readCount {
		if writeCount[r] != 1 {
			return &verror.BadPipeError{Name: r}
		}
		delete(writeCount, r)
	}
	for w := range writeCount {
		return &verror.BadPipeError{Name: w}
	}

	socketReaders, socketWriters := s.SocketNames()
	socketReadCount := make(map[string]int, len(socketReaders))
	for _, r := range socketReaders {
		socketReadCount[r]++
		if socketReadCount[r] > 1 {
			return &verror.BadFileSocketError{Name: r}
		}
	}
	socketWriteCount := make(map[string]int, len(socketWriters))
	for _, w := range socketWriters {
		socketWriteCount[w]++
	}
	for r := range socketReadCount {
		if socketWriteCount[r] < 1 {
			return &verror.BadFileSocketError{Name: r}
		}
	}
	for w := range socketWriteCount {
		if socketReadCount[w] < 1 {
			return &verror.BadFileSocketError{Name: w}
		}
	}

	for _, ep := range s.Entrypoints {
		for _, arg := range ep.Args {
			if arg.Kind != ArgTrigger {
				continue
			}
			if ep.Trigger.Kind != TriggerPipe && ep.Trigger.Kind != TriggerFileSocket {
				return verror.ErrBadTriggerArgument
			}
		}
	}

	return nil
}
