package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/relstore/internal/value"
)

func TestGoldenScenarios(t *testing.T) {
	for _, name := range []string{"basic_crud", "cross_caller_busy"} {
		t.Run(name, func(t *testing.T) {
			s, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
			require.NoError(t, err)
			require.NoError(t, RunWithGolden(t, s))
		})
	}
}

func TestSnapshot_Format(t *testing.T) {
	result := NewResult()
	result.Trace = append(result.Trace,
		TraceEvent{Seq: 1, Op: OpInsert, Table: "test", Result: value.Integer(1)},
		TraceEvent{Seq: 2, Op: OpBegin, Caller: "alice", Tx: "t1", Error: 14800024},
		TraceEvent{Seq: 3, Op: OpQuerySQL, Result: []value.Row{{"b": value.Blob{1}, "a": value.Null{}}}},
	)

	got, err := Snapshot("fmt", result)
	require.NoError(t, err)
	assert.Equal(t,
		`{"scenario_name":"fmt","trace":[`+
			`{"op":"insert","result":1,"seq":1,"table":"test"},`+
			`{"caller":"alice","error":14800024,"op":"begin","seq":2,"tx":"t1"},`+
			`{"op":"query_sql","result":[{"a":null,"b":[1]}],"seq":3}]}`,
		string(got))
}

func TestSnapshot_EmptyTrace(t *testing.T) {
	got, err := Snapshot("empty", NewResult())
	require.NoError(t, err)
	assert.Equal(t, `{"scenario_name":"empty","trace":[]}`, string(got))
}
