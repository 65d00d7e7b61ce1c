package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/roach88/targeted/internal/config"
)

const (
	testScenariosDir   = "../harness/testdata/scenarios"
	testGoldenDir      = "../harness/testdata/golden"
	printShoutScenario = testScenariosDir + "/print_shout.yaml"
)

// testRootOptions mirrors what the root command's pre-run loads from a
// clean environment.
func testRootOptions(format string) *RootOptions {
	return &RootOptions{
		Format: format,
		Config: config.Config{AffinityChecks: true, LogLevel: "info"},
	}
}

func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(t.Context())
	return buf.String(), err
}

func writeScenario(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}
