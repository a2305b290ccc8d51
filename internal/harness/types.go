package harness

// TraceEvent records one executed step.
type TraceEvent struct {
	Seq    int64  `json:"seq"`
	Op     string `json:"op"`
	Caller string `json:"caller,omitempty"`
	Tx     string `json:"tx,omitempty"`
	Table  string `json:"table,omitempty"`
	Result any    `json:"result,omitempty"`
	Error  int    `json:"error,omitempty"` // rdberr code, 0 on success, -1 outside the store
}

// canonical returns the event as a map for value.MarshalCanonical.
func (e TraceEvent) canonical() map[string]any {
	m := map[string]any{
		"seq": e.Seq,
		"op":  e.Op,
	}
	if e.Caller != "" {
		m["caller"] = e.Caller
	}
	if e.Tx != "" {
		m["tx"] = e.Tx
	}
	if e.Table != "" {
		m["table"] = e.Table
	}
	if e.Result != nil {
		m["result"] = e.Result
	}
	if e.Error != 0 {
		m["error"] = e.Error
	}
	return m
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace lists executed steps in order.
	Trace []TraceEvent `json:"trace"`

	// Errors holds one message per failed expectation.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records a failed expectation and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
