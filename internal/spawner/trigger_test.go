//go:build linux

package spawner

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTriggerDataArgsStartup(t *testing.T) {
	td := &TriggerData{Kind: TriggerDataNone}
	require.Nil(t, td.Args())
}

func TestTriggerDataArgsPipe(t *testing.T) {
	td := &TriggerData{Kind: TriggerDataPipe, PipeBytes: "arrival"}
	require.Equal(t, []string{"arrival"}, td.Args())
}

func TestTriggerDataArgsFileSocket(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	td := &TriggerData{Kind: TriggerDataFileSocket, Files: []*os.File{r, w}}
	args := td.Args()
	require.Len(t, args, 2)
	require.NotEqual(t, args[0], args[1])
}
