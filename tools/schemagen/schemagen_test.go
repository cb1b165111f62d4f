package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/mozdata/cmd/mozdata/commands"
)

func TestRun_WritesEverySchema(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "schemas")
	require.NoError(t, run(dir))

	for _, name := range commands.OutputNames() {
		data, err := os.ReadFile(filepath.Join(dir, name+".json"))
		require.NoError(t, err)
		assert.Contains(t, string(data), `"$schema"`)
	}
}
