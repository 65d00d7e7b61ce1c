package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBenchText(t *testing.T) {
	out, err := execute(t, NewBenchCommand(testRootOptions("text")), "--workers", "2", "--events", "2000", "--keys", "16")
	require.NoError(t, err)
	assert.Contains(t, out, "Relayed 2000 events over 16 keys with 2 workers")
	assert.Contains(t, out, "events/s")
}

func TestBenchJSON(t *testing.T) {
	out, err := execute(t, NewBenchCommand(testRootOptions("json")), "-w", "3", "--events", "500", "--keys", "7")
	require.NoError(t, err)

	var resp struct {
		Status string      `json:"status"`
		Data   BenchReport `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 3, resp.Data.Workers)
	assert.Equal(t, int64(500), resp.Data.Relayed)
}

func TestBenchInvalidFlags(t *testing.T) {
	tests := [][]string{
		{"--workers", "-1"},
		{"--events", "-5"},
		{"--keys", "0"},
	}
	for _, args := range tests {
		t.Run(args[0], func(t *testing.T) {
			_, err := execute(t, NewBenchCommand(testRootOptions("text")), args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
		})
	}
}

func TestBenchRejectsArgs(t *testing.T) {
	_, err := execute(t, NewBenchCommand(testRootOptions("text")), "extra")
	require.Error(t, err)
}
