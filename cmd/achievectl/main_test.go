package main

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/achievehub/achievehub/jobs"
)

func TestParseIDs(t *testing.T) {
	ids, err := parseIDs(" 1, 2,,3 ")
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2, 3}, ids)

	_, err = parseIDs("1,x")
	require.Error(t, err)
	_, err = parseIDs("0")
	require.Error(t, err)
	_, err = parseIDs("")
	require.Error(t, err)
}

func TestBuildTask(t *testing.T) {
	now := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	task, err := buildTask(triggerRequest{Name: jobs.TaskApprovalBatch, IDs: []int64{4, 5}, AuditorID: 9}, now)
	require.NoError(t, err)
	require.Equal(t, jobs.TaskApprovalBatch, task.Type())
	var payload jobs.BatchApprovePayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	require.Equal(t, int64(9), payload.AuditorID)
	require.Equal(t, now, payload.RequestedAt)

	_, err = buildTask(triggerRequest{Name: jobs.TaskApprovalBatch, IDs: []int64{4}}, now)
	require.ErrorIs(t, err, jobs.ErrEmptyBatch)

	task, err = buildTask(triggerRequest{Name: jobs.TaskStatsRefresh}, now)
	require.NoError(t, err)
	require.Equal(t, jobs.TaskStatsRefresh, task.Type())

	_, err = buildTask(triggerRequest{Name: "unknown"}, now)
	require.Error(t, err)
}

func TestHashPasswordCommand(t *testing.T) {
	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"hash-password", "s3cret-pass"})
	require.NoError(t, cmd.Execute())

	hash := bytes.TrimSpace(out.Bytes())
	require.NoError(t, bcrypt.CompareHashAndPassword(hash, []byte("s3cret-pass")))
}

func TestSessionIssueValidatesFlags(t *testing.T) {
	cmd := rootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"session", "issue", "--user-id", "0"})
	require.ErrorContains(t, cmd.Execute(), "--user-id")

	cmd = rootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"session", "issue", "--user-id", "3", "--role", "ROLE_7"})
	require.ErrorContains(t, cmd.Execute(), "unknown role")
}
