package timers

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_SnapshotOmitsInternalFields(t *testing.T) {
	reg, clock, _ := newTestRegistry()
	_, _ = reg.Start("dbRead")
	clock.Advance(8 * time.Millisecond)
	_, _ = reg.Stop("dbRead")
	_, _ = reg.Start("cacheRead")

	data, err := json.Marshal(reg)
	require.NoError(t, err)

	var decoded map[string]map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))

	require.Contains(t, decoded, "dbRead")
	assert.Equal(t, "8ms", decoded["dbRead"]["human"])
	assert.EqualValues(t, 8, decoded["dbRead"]["time"])
	assert.EqualValues(t, 1, decoded["dbRead"]["count"])
	assert.EqualValues(t, 8, decoded["dbRead"]["max"])
	assert.Len(t, decoded["dbRead"], 4)

	require.Contains(t, decoded, "cacheRead")
	assert.NotContains(t, decoded["cacheRead"], "start")
	assert.NotContains(t, decoded["cacheRead"], "min")
}

func TestRegistry_LogFormatString(t *testing.T) {
	reg, _, _ := newTestRegistry()
	assert.Equal(t, "", reg.LogFormatString())

	for _, n := range []string{"dbWrite", "cache10", "Cache2", "apiCall"} {
		_, _ = reg.Start(n)
	}

	assert.Equal(t,
		"apiCall: {apiCall.human}, Cache2: {Cache2.human}, cache10: {cache10.human}, dbWrite: {dbWrite.human}",
		reg.LogFormatString())
}

func TestNaturalLess(t *testing.T) {
	tests := []struct {
		a, b string
		less bool
	}{
		{"a", "B", true},
		{"B", "a", false},
		{"db2", "db10", true},
		{"db10", "db2", false},
		{"db", "db1", true},
		{"x007", "x8", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.less, naturalLess(tt.a, tt.b), "%s < %s", tt.a, tt.b)
	}
}

func TestRegistry_LogAll(t *testing.T) {
	reg, clock, logger := newTestRegistry()
	requestStart := clock.Now()

	_, _ = reg.Start("dbRead")
	clock.Advance(40 * time.Millisecond)
	_, _ = reg.Stop("dbRead")
	clock.Advance(2 * time.Millisecond)

	summary := reg.LogAll(logger, "request_done",
		WithRequestStart(requestStart), WithPeakMemory(2048), WithRequestID("req-1"))

	assert.Equal(t, "request_done", summary.Event)
	assert.Equal(t, ChannelSystem, summary.Channel)
	assert.Equal(t, "req-1", summary.RequestID)
	require.NotNil(t, summary.RequestElapsedMs)
	assert.EqualValues(t, 42, *summary.RequestElapsedMs)
	assert.EqualValues(t, 2048, summary.PeakMemory)
	assert.Equal(t, "40ms", summary.Timers["dbRead"].Human)
	assert.Equal(t, "elapsed: {request_elapsed_ms}ms, dbRead: {dbRead.human}", summary.Message)

	infos := logger.byLevel("info")
	require.Len(t, infos, 1)
	assert.Equal(t, summary.Message, infos[0].message)
	assert.Equal(t, "request_done", infos[0].fields[FieldEvent])
	assert.Equal(t, ChannelSystem, infos[0].fields[FieldChannel])

	timers, ok := infos[0].fields[FieldTimers].(map[string]interface{})
	require.True(t, ok)
	assert.EqualValues(t, 42, timers[FieldRequestElapsedMs])
	assert.EqualValues(t, 2048, timers[FieldPeakMemory])
	db, ok := timers["dbRead"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "40ms", db["human"])
}

func TestRegistry_LogAllWithoutRequestStart(t *testing.T) {
	reg, _, logger := newTestRegistry()

	summary := reg.LogAll(logger, "cli")
	assert.Nil(t, summary.RequestElapsedMs)

	timers := logger.byLevel("info")[0].fields[FieldTimers].(map[string]interface{})
	assert.Contains(t, timers, FieldRequestElapsedMs)
	assert.Nil(t, timers[FieldRequestElapsedMs])

	data, err := json.Marshal(summary)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"request_elapsed_ms":null`)
}

func TestRegistry_LogAllNilLogger(t *testing.T) {
	reg := New()
	_, _ = reg.Stop("dbRead")

	summary := reg.LogAll(nil, "quiet")
	assert.Equal(t, 1, summary.Timers["dbRead"].Count)
}
