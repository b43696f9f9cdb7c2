//go:build linux

package spawner

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"voidctl/internal/fabric"
	"voidctl/internal/spec"
	"voidctl/internal/verror"
	"voidctl/internal/void"
)

func TestPrepareAmbientFileArg(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "arg")
	require.NoError(t, err)
	f.Close()

	s := &Spawner{Pipes: map[string]*fabric.PipePair{}, Sockets: map[string]*fabric.SocketPair{}}
	builder := void.NewBuilder()

	prepared, err := PrepareAmbient(s, builder, []spec.Argument{spec.FileArg(f.Name())})
	require.NoError(t, err)
	require.Len(t, prepared, 1)
	require.Equal(t, spec.ArgFile, prepared[0].Kind)
	require.NotNil(t, prepared[0].File)
}

func TestPrepareAmbientPipeArgTakesEndpointOnce(t *testing.T) {
	pipePair, err := fabric.NewPipePair("greeting")
	require.NoError(t, err)

	s := &Spawner{
		Pipes:   map[string]*fabric.PipePair{"greeting": pipePair},
		Sockets: map[string]*fabric.SocketPair{},
	}
	builder := void.NewBuilder()

	_, err = PrepareAmbient(s, builder, []spec.Argument{spec.PipeArg(spec.Rx, "greeting")})
	require.NoError(t, err)

	// taking the same endpoint again must fail: it was already moved out.
	_, err = pipePair.TakeRead()
	require.Error(t, err)
}

func TestPrepareAmbientUnknownChannelIsBadPipe(t *testing.T) {
	s := &Spawner{Pipes: map[string]*fabric.PipePair{}, Sockets: map[string]*fabric.SocketPair{}}
	builder := void.NewBuilder()

	_, err := PrepareAmbient(s, builder, []spec.Argument{spec.PipeArg(spec.Rx, "missing")})
	var badPipe *verror.BadPipeError
	require.ErrorAs(t, err, &badPipe)
}

func TestPrepareVoidArgv(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	s := &Spawner{TrailingArgs: []string{"--flag"}}
	prepared := []PreparedArg{
		{Kind: spec.ArgBinaryName},
		{Kind: spec.ArgEntrypoint},
		{Kind: spec.ArgFile, File: r},
		{Kind: spec.ArgTrigger},
		{Kind: spec.ArgTrailing},
	}

	argv, err := PrepareVoid(s, "handler", &TriggerData{Kind: TriggerDataPipe, PipeBytes: "hi"}, prepared)
	require.NoError(t, err)
	require.Len(t, argv, 5)
	require.Equal(t, "/entrypoint", argv[0])
	require.Equal(t, "handler", argv[1])
	require.Equal(t, "hi", argv[3])
	require.Equal(t, "--flag", argv[4])
}
