package graph

import "fmt"

// GraphError covers structural faults: missing nodes, duplicate or blank
// names, out-of-range indices, zero rounds, and cycles.
type GraphError struct {
	Op     string
	Target string
	Index  int
	Reason string
}

func (e *GraphError) Error() string {
	if e.Target == "" {
		return fmt.Sprintf("graph: %s: %s", e.Op, e.Reason)
	}
	return fmt.Sprintf("graph: %s %q[%d]: %s", e.Op, e.Target, e.Index, e.Reason)
}

func errMissingTransaction(name string) error {
	return &GraphError{Op: "lookup", Target: name, Reason: "transaction not found"}
}

func errDuplicateTransaction(name string) error {
	return &GraphError{Op: "add_transaction", Target: name, Reason: "transaction already exists"}
}

func errMissingOutput(name string, idx int) error {
	return &GraphError{Op: "connect", Target: name, Index: idx, Reason: "output index out of range"}
}

func errMissingInput(name string, idx int) error {
	return &GraphError{Op: "connect", Target: name, Index: idx, Reason: "input index out of range"}
}

func errMissingConnection() error {
	return &GraphError{Op: "connect", Reason: "connection not found"}
}

func errCycleDetected() error {
	return &GraphError{Op: "sort", Reason: "cycle detected in transaction graph"}
}

func errMissingTransactionName() error {
	return &GraphError{Op: "validate", Reason: "transaction name must not be empty or blank"}
}

func errMissingConnectionName() error {
	return &GraphError{Op: "validate", Reason: "connection name must not be empty or blank"}
}

func errZeroRounds() error {
	return &GraphError{Op: "validate", Reason: "rounds must be greater than zero"}
}

// ScriptError covers faults building tapscripts or tap-trees.
type ScriptError struct {
	Reason string
	Cause  error
}

func (e *ScriptError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("script: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("script: %s", e.Reason)
}

func (e *ScriptError) Unwrap() error { return e.Cause }

func errEmptyScripts() error {
	return &ScriptError{Reason: "script list must not be empty"}
}

func errTaprootFinalize(cause error) error {
	return &ScriptError{Reason: "tap-tree failed to finalize", Cause: cause}
}

// UnspendableKeyError covers faults deriving the deterministic NUMS
// internal key used to disable the key-path spend of a script-only output.
type UnspendableKeyError struct {
	Reason string
	Cause  error
}

func (e *UnspendableKeyError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("unspendable key: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("unspendable key: %s", e.Reason)
}

func (e *UnspendableKeyError) Unwrap() error { return e.Cause }
