// SPDX-License-Identifier: AGPL-3.0-or-later

package projection

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAtomicWrite(t *testing.T) {
	tmpDir := t.TempDir()
	target := filepath.Join(tmpDir, "out", "report.json")

	require.NoError(t, AtomicWrite(target, []byte("first")))
	require.NoError(t, AtomicWrite(target, []byte("second")))

	got, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "second", string(got))

	entries, err := os.ReadDir(filepath.Dir(target))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestRenderTable(t *testing.T) {
	got := RenderTable([]string{"Repo", "Status"}, [][]string{{"alpha", "ok"}, {EscapeCell("a|b\nc"), "x"}})
	assert.Equal(t, "| Repo | Status |\n| --- | --- |\n| alpha | ok |\n| a\\|b c | x |\n", got)
}

func TestRenderListAndHeader(t *testing.T) {
	assert.Equal(t, "- one\n- two\n", RenderList([]string{"one", "two"}))
	assert.Equal(t, "## Findings\n\n", RenderHeader(2, "Findings"))
}
