package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLog_WritesEventAndErrorMirror(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLogger(dir)
	require.NoError(t, err)
	defer l.Close()

	require.NoError(t, l.Info(CategorySecurity, "decision", "allowed read_file", nil))
	require.NoError(t, l.Error(CategoryGate, "gate_failed", "fpr breach", nil))

	events, err := os.ReadFile(filepath.Join(dir, "events.jsonl"))
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(events), "\n"))

	errs, err := os.ReadFile(filepath.Join(dir, "errors.jsonl"))
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(errs), "\n"))
}

func TestSetMinLevel_FiltersBelowThreshold(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLogger(dir)
	require.NoError(t, err)
	defer l.Close()

	l.SetMinLevel(LevelWarn)
	require.NoError(t, l.Debug(CategorySecurity, "noise", "should be dropped", nil))
	require.NoError(t, l.Warn(CategorySecurity, "heads-up", "should be kept", nil))

	events, err := os.ReadFile(filepath.Join(dir, "events.jsonl"))
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(events), "\n"), "debug should be filtered out")
}
