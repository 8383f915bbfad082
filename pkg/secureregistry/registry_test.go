package secureregistry

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitsec/sentinel/pkg/runtime"
	"github.com/fitsec/sentinel/pkg/secmodel"
)

type fakeTool struct {
	name   string
	result any
	err    error
}

func (f fakeTool) Name() string        { return f.name }
func (f fakeTool) Description() string { return "a fake tool" }
func (f fakeTool) Execute(action string, args map[string]any) (any, error) {
	return f.result, f.err
}

func TestRegister_UsesDefaultOmegaMapping(t *testing.T) {
	rt := runtime.New(true, true)
	reg := New(rt, nil)
	reg.Register(fakeTool{name: "read_file", result: "contents"}, nil)

	manifest, ok := rt.Registry.GetManifest("read_file")
	require.True(t, ok, "expected manifest to be registered")
	assert.Equal(t, secmodel.Omega0, manifest.BlastRadius, "default mapping")
}

func TestRegister_OverrideBeatsDefaultMapping(t *testing.T) {
	rt := runtime.New(true, true)
	reg := New(rt, nil)
	omega2 := secmodel.Omega2
	reg.Register(fakeTool{name: "read_file"}, &omega2)

	manifest, _ := rt.Registry.GetManifest("read_file")
	assert.Equal(t, secmodel.Omega2, manifest.BlastRadius, "explicit override")
}

func TestRegister_UnmappedToolDefaultsToOmega1(t *testing.T) {
	rt := runtime.New(true, true)
	reg := New(rt, nil)
	reg.Register(fakeTool{name: "mystery_tool"}, nil)

	manifest, _ := rt.Registry.GetManifest("mystery_tool")
	assert.Equal(t, secmodel.Omega1, manifest.BlastRadius, "conservative default")
}

func TestExecute_SinglePath_RoutesThroughRuntime(t *testing.T) {
	rt := runtime.New(true, true)
	reg := New(rt, nil)
	reg.Register(fakeTool{name: "read_file", result: "hello"}, nil)

	result, err := reg.Execute(context.Background(), "read_file", "read", nil)
	require.NoError(t, err)
	assert.Equal(t, "hello", result)
	assert.Equal(t, 1, rt.Audit.Summary().Total, "single path")
}

func TestExecute_PolicyDenied_RendersConversationalPrefix(t *testing.T) {
	rt := runtime.New(true, true)
	reg := New(rt, nil)
	omega2 := secmodel.Omega2
	reg.Register(fakeTool{name: "exec"}, &omega2)

	_, err := reg.Execute(context.Background(), "exec", "run", nil)
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "[POLICY DENIED]"), "got %v", err)
	assert.Equal(t, 1, rt.Audit.Summary().Denied, "denial audited before the string is built")
}

func TestExecute_NotRegistered(t *testing.T) {
	rt := runtime.New(true, true)
	reg := New(rt, nil)

	_, err := reg.Execute(context.Background(), "ghost", "run", nil)
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "[NOT REGISTERED]"), "got %v", err)
}

func TestNamesAndHas(t *testing.T) {
	rt := runtime.New(true, true)
	reg := New(rt, nil)
	reg.Register(fakeTool{name: "read_file"}, nil)

	assert.True(t, reg.Has("read_file"))
	assert.False(t, reg.Has("ghost"))
	assert.Equal(t, []string{"read_file"}, reg.Names())
}
