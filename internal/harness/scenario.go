package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario is a scripted sequence of store operations with expectations.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Config overrides store settings (journal_mode, busy_timeout,
	// auto_rollback_on_error, ...). Same keys as the config file.
	Config yaml.Node `yaml:"config,omitempty"`

	// Setup holds SQL run through ExecuteSql before the steps.
	// Setup statements must succeed and are not traced.
	Setup []string `yaml:"setup,omitempty"`

	// Steps are executed in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace and state.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is one store operation. Which fields apply depends on Op.
type Step struct {
	Op string `yaml:"op"`

	// Caller names the calling context. Steps bound to a transaction
	// default to the caller that began it.
	Caller string `yaml:"caller,omitempty"`

	// Tx names a transaction. begin creates it; other ops run inside it.
	Tx string `yaml:"tx,omitempty"`

	// Mode is the transaction type for begin.
	Mode string `yaml:"mode,omitempty"`

	// Async runs the op through its Async variant.
	Async bool `yaml:"async,omitempty"`

	Table    string           `yaml:"table,omitempty"`
	Values   map[string]any   `yaml:"values,omitempty"`
	Rows     []map[string]any `yaml:"rows,omitempty"`
	Where    map[string]any   `yaml:"where,omitempty"`
	Columns  []string         `yaml:"columns,omitempty"`
	OrderBy  []string         `yaml:"order_by,omitempty"` // "-col" sorts descending
	Conflict string           `yaml:"conflict,omitempty"`
	SQL      string           `yaml:"sql,omitempty"`
	Args     []any            `yaml:"args,omitempty"`
	Version  int              `yaml:"version,omitempty"`

	// Parallel groups steps that run concurrently. A parallel step has no
	// other fields.
	Parallel []Step `yaml:"parallel,omitempty"`

	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect describes the expected outcome of a step.
type Expect struct {
	// ErrorCode is the expected rdberr code. Zero means success.
	ErrorCode int `yaml:"error_code,omitempty"`

	// RowCount is the expected number of rows of a query.
	RowCount *int `yaml:"row_count,omitempty"`

	// Rows are the expected query rows, in order.
	Rows []map[string]any `yaml:"rows,omitempty"`

	// Value is the expected scalar result (row id, change count, ...).
	Value any `yaml:"value,omitempty"`
}

// Assertion validates the trace or the final store state.
type Assertion struct {
	// Type is one of trace_contains, trace_order, trace_count, final_state.
	Type string `yaml:"type"`

	// Op is the traced operation (trace_contains, trace_count).
	Op string `yaml:"op,omitempty"`

	// Ops is the expected operation order (trace_order).
	Ops []string `yaml:"ops,omitempty"`

	// Table is the table to inspect (trace_contains, final_state).
	Table string `yaml:"table,omitempty"`

	// Where filters rows by equality (final_state).
	Where map[string]any `yaml:"where,omitempty"`

	// Expect holds column values the first matching row must have
	// (final_state). Subset match.
	Expect map[string]any `yaml:"expect,omitempty"`

	// Count is the expected number of occurrences (trace_count) or rows
	// (final_state, when set).
	Count *int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
)

// Step operations.
const (
	OpExecuteSQL  = "execute_sql"
	OpExecute     = "execute"
	OpInsert      = "insert"
	OpBatchInsert = "batch_insert"
	OpUpdate      = "update"
	OpDelete      = "delete"
	OpQuery       = "query"
	OpQuerySQL    = "query_sql"
	OpBegin       = "begin"
	OpCommit      = "commit"
	OpRollback    = "rollback"
	OpVersion     = "version"
	OpSetVersion  = "set_version"
)

// LoadScenario reads and parses a scenario YAML file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML. Unknown fields are rejected so typos
// surface as errors instead of silently skipped checks.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks required fields and per-op arguments.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if len(step.Parallel) > 0 {
			if step.Op != "" {
				return fmt.Errorf("steps[%d]: parallel steps cannot have an op", i)
			}
			for j, sub := range step.Parallel {
				if len(sub.Parallel) > 0 {
					return fmt.Errorf("steps[%d].parallel[%d]: parallel groups cannot nest", i, j)
				}
				if err := validateStep(fmt.Sprintf("steps[%d].parallel[%d]", i, j), sub); err != nil {
					return err
				}
			}
			continue
		}
		if err := validateStep(fmt.Sprintf("steps[%d]", i), step); err != nil {
			return err
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(where string, st Step) error {
	switch st.Op {
	case "":
		return fmt.Errorf("%s: op is required", where)
	case OpExecuteSQL, OpExecute, OpQuerySQL:
		if st.SQL == "" {
			return fmt.Errorf("%s: sql is required for %s", where, st.Op)
		}
	case OpInsert:
		if st.Table == "" || st.Values == nil {
			return fmt.Errorf("%s: table and values are required for insert", where)
		}
	case OpBatchInsert:
		if st.Table == "" || st.Rows == nil {
			return fmt.Errorf("%s: table and rows are required for batch_insert", where)
		}
	case OpUpdate:
		if st.Table == "" || st.Values == nil {
			return fmt.Errorf("%s: table and values are required for update", where)
		}
	case OpDelete, OpQuery:
		if st.Table == "" {
			return fmt.Errorf("%s: table is required for %s", where, st.Op)
		}
	case OpBegin, OpCommit, OpRollback:
		if st.Tx == "" {
			return fmt.Errorf("%s: tx is required for %s", where, st.Op)
		}
	case OpVersion, OpSetVersion:
	default:
		return fmt.Errorf("%s: unknown op %q", where, st.Op)
	}

	switch st.Op {
	case OpExecuteSQL, OpVersion, OpSetVersion:
		if st.Tx != "" {
			return fmt.Errorf("%s: %s does not run inside a transaction", where, st.Op)
		}
	}
	return nil
}

func validateAssertion(index int, a Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertTraceContains:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Ops) == 0 {
			return fmt.Errorf("assertions[%d]: ops list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for trace_count", index)
		}
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 && a.Count == nil {
			return fmt.Errorf("assertions[%d]: expect or count is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
