// Package harness runs YAML scenarios against a relstore store.
//
// Each scenario gets a fresh store in a temporary directory. Steps run in
// order; steps grouped under parallel run concurrently, each as its own
// caller. Every step is recorded in a trace that can be compared against
// a golden file.
//
// # Scenario Format
//
//	name: basic_crud
//	description: "Insert and read back a row"
//	config:
//	  busy_timeout: 100ms
//	setup:
//	  - CREATE TABLE test (id INTEGER PRIMARY KEY, name TEXT)
//	steps:
//	  - op: begin
//	    tx: t1
//	    caller: alice
//	    mode: IMMEDIATE
//	  - op: insert
//	    tx: t1
//	    table: test
//	    values: { name: zhangsan }
//	    expect: { value: 1 }
//	  - op: commit
//	    tx: t1
//	  - parallel:
//	      - op: query_sql
//	        caller: bob
//	        sql: SELECT * FROM test
//	        expect: { row_count: 1 }
//	assertions:
//	  - type: final_state
//	    table: test
//	    where: { name: zhangsan }
//	    count: 1
//
// # Values
//
// YAML scalars map to store values the obvious way. A list of integers is
// a blob and null is SQL NULL.
//
// # Deterministic Traces
//
// Trace sequence numbers come from testutil.DeterministicClock and caller
// names come from the scenario, so the same scenario always produces the
// same trace bytes. Parallel groups are recorded in declaration order once
// the whole group finished.
package harness
