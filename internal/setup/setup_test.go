package setup

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "ynabot/pkg/logx"
)

func newWizard(input string) (*Wizard, *bytes.Buffer) {
	var out bytes.Buffer
	return New(strings.NewReader(input), &out, logx.Nop()), &out
}

func TestPromptRequiredRetries(t *testing.T) {
	w, out := newWizard("\n\ntoken-123\n")
	v, err := w.promptRequired("token")
	require.NoError(t, err)
	assert.Equal(t, "token-123", v)
	assert.Contains(t, out.String(), "A value is required.")
}

func TestPromptChatID(t *testing.T) {
	w, _ := newWizard("abc\n0\n-100200\n")
	id, err := w.promptChatID()
	require.NoError(t, err)
	assert.Equal(t, int64(-100200), id)
}

func TestPromptIntervalDefault(t *testing.T) {
	w, _ := newWizard("\n")
	d, err := w.promptInterval()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, d)
}

func TestPromptIntervalRejectsTooFast(t *testing.T) {
	w, out := newWizard("5s\n10m\n")
	d, err := w.promptInterval()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, d)
	assert.Contains(t, out.String(), "at least 20s")
}

func TestConfirm(t *testing.T) {
	w, _ := newWizard("y\nno\n\n")
	ok, err := w.confirm("sure")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = w.confirm("sure")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = w.confirm("sure")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRunRefusesToOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("ynab: {}\n"), 0o600))

	w, _ := newWizard("n\n")
	err := w.Run(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exists")

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "ynab: {}\n", string(b))
}
