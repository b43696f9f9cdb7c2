//go:build linux

package orchestrator

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"voidctl/internal/spec"
	"voidctl/internal/verror"
)

func TestLoadSpecificationBadExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "spec.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))

	_, err := loadSpecification(RunArgs{SpecPath: path})
	require.ErrorIs(t, err, verror.ErrBadSpecType)
}

func TestLoadSpecificationFromJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "spec.json")
	const body = `{"entrypoints":{"hello":{"trigger":"startup","args":["binary_name"]}}}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	specification, err := loadSpecification(RunArgs{SpecPath: path})
	require.NoError(t, err)
	require.Len(t, specification.Entrypoints, 1)
	require.Equal(t, spec.TriggerStartup, specification.Entrypoints["hello"].Trigger.Kind)
}

func TestAddCapabilityAppliesToEveryEntrypoint(t *testing.T) {
	specification := &spec.Specification{
		Entrypoints: map[string]spec.Entrypoint{
			"a": {Trigger: spec.Trigger{Kind: spec.TriggerStartup}},
			"b": {Trigger: spec.Trigger{Kind: spec.TriggerStartup}},
		},
	}

	addCapability(specification, spec.EnvironmentCapability{Kind: spec.EnvStdout})

	for _, ep := range specification.Entrypoints {
		require.Len(t, ep.Environment, 1)
		require.Equal(t, spec.EnvStdout, ep.Environment[0].Kind)
	}
}

func TestCreatePipesAndSockets(t *testing.T) {
	pipes, err := createPipes([]string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, pipes, 2)

	sockets, err := createSockets([]string{"c"})
	require.NoError(t, err)
	require.Len(t, sockets, 1)
}
