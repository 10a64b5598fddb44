package protocol

import (
	"fmt"

	"github.com/FairgateLabs/bitvmx-protocol-graph/pkg/graph"
)

// ProtocolBuilderError covers type-compatibility and well-formedness faults
// raised by the builder's verbs: incompatible sighash/output pairings,
// incompatible spend modes, and missing or invalid signatures surfaced
// during the sign/verify pass.
type ProtocolBuilderError struct {
	Reason string
	Cause  error
}

func (e *ProtocolBuilderError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("protocol builder: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("protocol builder: %s", e.Reason)
}

func (e *ProtocolBuilderError) Unwrap() error { return e.Cause }

func errIncompatibleSpend(sighash graph.SighashType, output graph.OutputKind) error {
	return &ProtocolBuilderError{
		Reason: fmt.Sprintf("sighash type %v is not compatible with output type %v", sighash, output),
	}
}

func errIncompatibleSpendMode(mode graph.SpendMode, output graph.OutputKind) error {
	return &ProtocolBuilderError{
		Reason: fmt.Sprintf("spend mode %v is not compatible with output type %v", mode, output),
	}
}

func errMissingSignature(tx string, input, leaf int) error {
	return &ProtocolBuilderError{
		Reason: fmt.Sprintf("missing signature for tx %q input %d leaf %d", tx, input, leaf),
	}
}

func errVerificationFailed(tx string, input, leaf int) error {
	return &ProtocolBuilderError{
		Reason: fmt.Sprintf("signature verification failed for tx %q input %d leaf %d", tx, input, leaf),
	}
}
