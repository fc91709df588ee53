package types

// Event is a structured entry emitted by a contract.
type Event struct {
	Contract string      `json:"contract"`
	Event    string      `json:"event"`
	Data     interface{} `json:"data"`
}

// Logs collects the errors and events of one execution.
type Logs struct {
	Errors []string `json:"errors,omitempty"`
	Events []Event  `json:"events,omitempty"`
}

// Failed reports whether any error was logged.
func (l *Logs) Failed() bool { return len(l.Errors) > 0 }

// Copy returns a shallow copy with independent slices.
func (l Logs) Copy() Logs {
	cpy := Logs{}
	if l.Errors != nil {
		cpy.Errors = append([]string(nil), l.Errors...)
	}
	if l.Events != nil {
		cpy.Events = append([]Event(nil), l.Events...)
	}
	return cpy
}

// ExecutionResult is the single output produced for every transaction.
type ExecutionResult struct {
	ExecutedCodeHash string `json:"executedCodeHash,omitempty"`
	Logs             Logs   `json:"logs"`

	// Contract is the record persisted by a successful deployment.
	Contract *Contract `json:"-"`
}

// ErrorResult returns a result whose only content is one error message.
func ErrorResult(msg string) *ExecutionResult {
	return &ExecutionResult{Logs: Logs{Errors: []string{msg}}}
}
