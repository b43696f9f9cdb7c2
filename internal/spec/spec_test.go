package spec

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"voidctl/internal/verror"
)

func TestEntrypointDefaults(t *testing.T) {
	var ep Entrypoint
	require.NoError(t, json.Unmarshal([]byte(`{}`), &ep))

	require.Equal(t, TriggerStartup, ep.Trigger.Kind)
	require.Equal(t, []Argument{BinaryNameArg()}, ep.Args)
	require.Empty(t, ep.Environment)
}

func TestTriggerRoundTrip(t *testing.T) {
	cases := []Trigger{
		{Kind: TriggerStartup},
		{Kind: TriggerPipe, Channel: "p"},
		{Kind: TriggerFileSocket, Channel: "s"},
	}

	for _, tc := range cases {
		data, err := json.Marshal(tc)
		require.NoError(t, err)

		var got Trigger
		require.NoError(t, json.Unmarshal(data, &got))
		require.Equal(t, tc, got)
	}
}

func TestArgumentRoundTrip(t *testing.T) {
	cases := []Argument{
		BinaryNameArg(),
		EntrypointArg(),
		TriggerArg(),
		TrailingArg(),
		FileArg("/etc/hosts"),
		PipeArg(Rx, "p"),
		PipeArg(Tx, "p"),
		FileSocketArg(Rx, "s"),
		FileSocketArg(Tx, "s"),
		TcpListenerArg("127.0.0.1:0"),
	}

	for _, tc := range cases {
		data, err := json.Marshal(tc)
		require.NoError(t, err)

		var got Argument
		require.NoError(t, json.Unmarshal(data, &got))
		require.Equal(t, tc, got)
	}
}

func TestEnvironmentCapabilityRoundTrip(t *testing.T) {
	cases := []EnvironmentCapability{
		{Kind: EnvProcfs},
		{Kind: EnvStdin},
		{Kind: EnvStdout},
		{Kind: EnvStderr},
		{Kind: EnvHostname, Name: "void"},
		{Kind: EnvDomainName, Name: "(none)"},
		{Kind: EnvFilesystem, HostPath: "/usr/bin/true", EnvPath: "/entrypoint-helper"},
	}

	for _, tc := range cases {
		data, err := json.Marshal(tc)
		require.NoError(t, err)

		var got EnvironmentCapability
		require.NoError(t, json.Unmarshal(data, &got))
		require.Equal(t, tc, got)
	}
}

func TestSpecificationJSONRoundTrip(t *testing.T) {
	s := Specification{
		Entrypoints: map[string]Entrypoint{
			"main": {
				Trigger: Trigger{Kind: TriggerStartup},
				Args:    []Argument{BinaryNameArg(), EntrypointArg()},
			},
		},
	}

	data, err := json.Marshal(s)
	require.NoError(t, err)

	var got Specification
	require.NoError(t, json.Unmarshal(data, &got))
	require.Equal(t, s, got)
}

// scenario 1 from the end-to-end seed list: a single Startup entrypoint.
func TestValidateHelloStartup(t *testing.T) {
	s := &Specification{
		Entrypoints: map[string]Entrypoint{
			"main": {
				Trigger: Trigger{Kind: TriggerStartup},
				Args:    []Argument{BinaryNameArg(), EntrypointArg()},
			},
		},
	}
	require.NoError(t, s.Validate())
}

// scenario 2: a matched pipe reader/writer pair validates cleanly.
func TestValidatePipeHandoff(t *testing.T) {
	s := &Specification{
		Entrypoints: map[string]Entrypoint{
			"sender": {
				Trigger: Trigger{Kind: TriggerStartup},
				Args:    []Argument{BinaryNameArg(), PipeArg(Tx, "p")},
			},
			"printer": {
				Trigger: Trigger{Kind: TriggerPipe, Channel: "p"},
				Args:    []Argument{BinaryNameArg(), TriggerArg()},
			},
		},
	}
	require.NoError(t, s.Validate())

	readers, writers := s.PipeNames()
	require.ElementsMatch(t, []string{"p"}, readers)
	require.ElementsMatch(t, []string{"p"}, writers)
}

// scenario 5: two readers of the same pipe is a topology error.
func TestValidateDuplicateReaderIsBadPipe(t *testing.T) {
	s := &Specification{
		Entrypoints: map[string]Entrypoint{
			"a": {Args: []Argument{PipeArg(Rx, "x")}},
			"b": {Args: []Argument{PipeArg(Rx, "x")}},
		},
	}

	err := s.Validate()
	require.Error(t, err)

	var badPipe *verror.BadPipeError
	require.True(t, errors.As(err, &badPipe))
	require.Equal(t, "x", badPipe.Name)
}

func TestValidateUnmatchedWriterIsBadPipe(t *testing.T) {
	s := &Specification{
		Entrypoints: map[string]Entrypoint{
			"a": {Args: []Argument{PipeArg(Tx, "x")}},
		},
	}
	var badPipe *verror.BadPipeError
	require.ErrorAs(t, s.Validate(), &badPipe)
}

func TestValidateTriggerArgumentOnStartupIsBad(t *testing.T) {
	s := &Specification{
		Entrypoints: map[string]Entrypoint{
			"main": {
				Trigger: Trigger{Kind: TriggerStartup},
				Args:    []Argument{BinaryNameArg(), TriggerArg()},
			},
		},
	}
	require.ErrorIs(t, s.Validate(), verror.ErrBadTriggerArgument)
}

func TestFileSocketMultipleWritersOK(t *testing.T) {
	s := &Specification{
		Entrypoints: map[string]Entrypoint{
			"producer1": {Args: []Argument{FileSocketArg(Tx, "s")}},
			"producer2": {Args: []Argument{FileSocketArg(Tx, "s")}},
			"consumer": {
				Trigger: Trigger{Kind: TriggerFileSocket, Channel: "s"},
				Args:    []Argument{TriggerArg()},
			},
		},
	}
	require.NoError(t, s.Validate())
}

func TestChannelNames(t *testing.T) {
	s := &Specification{
		Entrypoints: map[string]Entrypoint{
			"sender":  {Args: []Argument{PipeArg(Tx, "p")}},
			"printer": {Trigger: Trigger{Kind: TriggerPipe, Channel: "p"}},
			"prod":    {Args: []Argument{FileSocketArg(Tx, "s")}},
			"cons":    {Trigger: Trigger{Kind: TriggerFileSocket, Channel: "s"}},
		},
	}
	pipes, sockets := s.ChannelNames()
	require.ElementsMatch(t, []string{"p"}, pipes)
	require.ElementsMatch(t, []string{"s"}, sockets)
}
