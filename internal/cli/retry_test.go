package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/s4ledger/anchorsync/internal/queue"
)

func TestRetryRequeuesFailedRecords(t *testing.T) {
	cfgPath, dbPath := writeTestConfig(t, "")

	q, err := queue.Open(dbPath)
	require.NoError(t, err)
	id, err := q.Enqueue(context.Background(), "hash-a", "document", nil, false, queue.DefaultBranch)
	require.NoError(t, err)
	require.NoError(t, q.MarkFailed(context.Background(), id, "endpoint unreachable"))
	require.NoError(t, q.Close())

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text", ConfigPath: cfgPath}
	cmd := NewRetryCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "Re-queued 1")

	q, err = queue.Open(dbPath)
	require.NoError(t, err)
	defer q.Close()
	rec, err := q.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, queue.StatusPending, rec.Status)
}

func TestRetryRespectsAttemptCeiling(t *testing.T) {
	cfgPath, dbPath := writeTestConfig(t, "")

	q, err := queue.Open(dbPath)
	require.NoError(t, err)
	id, err := q.Enqueue(context.Background(), "hash-b", "document", nil, false, queue.DefaultBranch)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, q.MarkFailed(context.Background(), id, "still down"))
	}
	require.NoError(t, q.Close())

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "json", ConfigPath: cfgPath}
	cmd := NewRetryCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--max-attempts", "3"})

	require.NoError(t, cmd.Execute())

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	data, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var result RetryResult
	require.NoError(t, json.Unmarshal(data, &result))
	assert.Equal(t, int64(0), result.Requeued)
	assert.Equal(t, 3, result.MaxAttempts)
}
