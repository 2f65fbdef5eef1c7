package main

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/urbanflow/rebal/internal/domain/model"
)

func TestApplyQueryFiltersRecords(t *testing.T) {
	key := "metro-bike:vs:abc:1:greedy.v1:1"
	records := []model.DlqRecord{
		{DlqID: 1, ReasonCode: "snapshot_read_error", DedupeKey: &key},
		{DlqID: 2, ReasonCode: "persist_error"},
	}

	result, err := applyQuery(records, "[?reason_code=='persist_error'].dlq_id")
	require.NoError(t, err)
	require.Equal(t, []any{float64(2)}, result)
}

func TestApplyQueryRejectsInvalidExpression(t *testing.T) {
	_, err := applyQuery(map[string]any{}, "[?broken")
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid --query expression")
}

func TestApplyQueryWithoutExpressionReturnsInput(t *testing.T) {
	stats := model.QueueStats{Visible: 3}
	result, err := applyQuery(stats, "")
	require.NoError(t, err)
	require.Equal(t, stats, result)
}

func TestRunStatusLineIncludesNoOpReason(t *testing.T) {
	reason := "no_deficits"
	run := &model.PolicyRun{Status: "completed", NoOp: true, NoOpReason: &reason}
	require.Equal(t, "completed (no-op: no_deficits)", runStatusLine(run))
}

func TestParseRunShowFlagsRequiresRunID(t *testing.T) {
	_, err := parseRunShowFlags([]string{"--moves", "10"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "--run-id is required")
}

func TestParseDLQRequeueFlagsRequiresPositiveID(t *testing.T) {
	_, err := parseDLQRequeueFlags([]string{"--id", "0"})
	require.Error(t, err)

	opts, err := parseDLQRequeueFlags([]string{"--id", "42", "--yes"})
	require.NoError(t, err)
	require.Equal(t, int64(42), opts.DlqID)
	require.True(t, opts.Yes)
}

func TestCacheClearPattern(t *testing.T) {
	require.Equal(t, "rebal:run:*", cacheClearPattern(""))
	require.Equal(t, "rebal:run:metro-bike:*", cacheClearPattern("metro-bike"))
	require.Equal(t, `rebal:run:odd\*id:*`, cacheClearPattern("odd*id"))
}

func TestIsLikelyRemoteHost(t *testing.T) {
	tests := []struct {
		host string
		want bool
	}{
		{"localhost", false},
		{"127.0.0.1", false},
		{"::1", false},
		{"db.internal.local", false},
		{"10.1.2.3", true},
		{"db.prod.example.com", true},
		{"", false},
	}
	for _, tc := range tests {
		require.Equal(t, tc.want, isLikelyRemoteHost(tc.host), "host %q", tc.host)
	}
}
