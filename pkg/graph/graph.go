package graph

import "github.com/btcsuite/btcd/btcutil"

// ConnectionKind tags whether a connection's source output lives inside
// this graph (Internal) or is an already-confirmed on-chain UTXO the
// graph only references (External), per spec §3's Connection descriptor.
type ConnectionKind int

const (
	ConnectionInternal ConnectionKind = iota
	ConnectionExternal
)

// Connection records one funding edge: an output (internal, by
// transaction name and index, or external, by txid/vout) wired to the
// input it funds.
type Connection struct {
	Kind ConnectionKind

	FromTransaction string
	FromOutputIndex int

	ExternalTxid string
	ExternalVout uint32

	ToTransaction string
	ToInputIndex  int
}

// Transaction is one node of the graph: a partially-formed Bitcoin
// transaction described only by its outputs' and inputs' spend
// conditions, plus the fields the two-pass pipeline fills in (§4.4).
type Transaction struct {
	Name    string
	Outputs []OutputType
	Inputs  []InputType

	// Txid is populated by the finalization pass once every output's
	// ScriptPubKey is known, allowing downstream sighashes to reference
	// this transaction's own prevouts.
	Txid string
}

// TransactionGraph is the DAG of pre-signed transactions: nodes are
// Transaction values, edges are Connections from an output to the input
// it funds. Method names follow the original graph module closely:
// AddTransaction, AddTransactionOutput, AddTransactionInput, Connect,
// ConnectWithExternalTransaction, NextTransactions, GetDependencies,
// GetPrevouts, Sort, ContainsTransaction, GetTransactionNames.
type TransactionGraph struct {
	transactions map[string]*Transaction
	order        []string // insertion order, kept for deterministic iteration/serialization
	connections  []Connection
}

// NewTransactionGraph returns an empty graph.
func NewTransactionGraph() *TransactionGraph {
	return &TransactionGraph{
		transactions: make(map[string]*Transaction),
	}
}

// RestoreTransactionGraph rebuilds a graph from already-materialized
// nodes and connections, in insertion order, the way the persistence
// layer's Load path does: nodes' OutputRef pointers and parallel
// hash/signature vectors are taken verbatim rather than recomputed via
// Connect, preserving whatever Build/BuildAndSign had already filled in
// before Save.
func RestoreTransactionGraph(order []string, transactions map[string]*Transaction, connections []Connection) *TransactionGraph {
	return &TransactionGraph{
		transactions: transactions,
		order:        order,
		connections:  connections,
	}
}

// AddTransaction registers a new, empty node. The name must be unique.
func (g *TransactionGraph) AddTransaction(name string) error {
	if _, ok := g.transactions[name]; ok {
		return errDuplicateTransaction(name)
	}
	g.transactions[name] = &Transaction{Name: name}
	g.order = append(g.order, name)
	return nil
}

// GetTransaction returns the named node.
func (g *TransactionGraph) GetTransaction(name string) (*Transaction, error) {
	tx, ok := g.transactions[name]
	if !ok {
		return nil, errMissingTransaction(name)
	}
	return tx, nil
}

// ContainsTransaction reports whether name has been added.
func (g *TransactionGraph) ContainsTransaction(name string) bool {
	_, ok := g.transactions[name]
	return ok
}

// GetTransactionNames returns every node name in insertion order.
func (g *TransactionGraph) GetTransactionNames() []string {
	names := make([]string, len(g.order))
	copy(names, g.order)
	return names
}

// AddTransactionOutput appends out to tx's output list, returning its
// index.
func (g *TransactionGraph) AddTransactionOutput(txName string, out OutputType) (int, error) {
	tx, err := g.GetTransaction(txName)
	if err != nil {
		return 0, err
	}
	tx.Outputs = append(tx.Outputs, out)
	return len(tx.Outputs) - 1, nil
}

// AddTransactionInput appends in to tx's input list, returning its index.
func (g *TransactionGraph) AddTransactionInput(txName string, in InputType) (int, error) {
	tx, err := g.GetTransaction(txName)
	if err != nil {
		return 0, err
	}
	tx.Inputs = append(tx.Inputs, in)
	return len(tx.Inputs) - 1, nil
}

// Connect wires fromTx's output at fromOutputIdx to toTx's input at
// toInputIdx: it copies the funding output's descriptor onto the input
// (so the input locally knows its own prevout and spend conditions) and
// records the edge for dependency/topological-sort purposes.
func (g *TransactionGraph) Connect(fromTx string, fromOutputIdx int, toTx string, toInputIdx int) error {
	from, err := g.GetTransaction(fromTx)
	if err != nil {
		return err
	}
	if fromOutputIdx < 0 || fromOutputIdx >= len(from.Outputs) {
		return errMissingOutput(fromTx, fromOutputIdx)
	}
	to, err := g.GetTransaction(toTx)
	if err != nil {
		return err
	}
	if toInputIdx < 0 || toInputIdx >= len(to.Inputs) {
		return errMissingInput(toTx, toInputIdx)
	}

	output := from.Outputs[fromOutputIdx]
	to.Inputs[toInputIdx].OutputRef = &output
	to.Inputs[toInputIdx].EnsureSlots()

	g.connections = append(g.connections, Connection{
		Kind:            ConnectionInternal,
		FromTransaction: fromTx,
		FromOutputIndex: fromOutputIdx,
		ToTransaction:   toTx,
		ToInputIndex:    toInputIdx,
	})
	return nil
}

// ConnectWithExternalTransaction wires toTx's input at toInputIdx to an
// output that lives outside the graph, identified by txid/vout and
// described by output (normally built with NewExternalUnknownOutput).
func (g *TransactionGraph) ConnectWithExternalTransaction(txid string, vout uint32, output OutputType, toTx string, toInputIdx int) error {
	to, err := g.GetTransaction(toTx)
	if err != nil {
		return err
	}
	if toInputIdx < 0 || toInputIdx >= len(to.Inputs) {
		return errMissingInput(toTx, toInputIdx)
	}

	to.Inputs[toInputIdx].OutputRef = &output
	to.Inputs[toInputIdx].EnsureSlots()

	g.connections = append(g.connections, Connection{
		Kind:          ConnectionExternal,
		ExternalTxid:  txid,
		ExternalVout:  vout,
		ToTransaction: toTx,
		ToInputIndex:  toInputIdx,
	})
	return nil
}

// GetConnection returns the connection funding toTx's input at
// toInputIdx, if any.
func (g *TransactionGraph) GetConnection(toTx string, toInputIdx int) (*Connection, bool) {
	for i := range g.connections {
		c := &g.connections[i]
		if c.ToTransaction == toTx && c.ToInputIndex == toInputIdx {
			return c, true
		}
	}
	return nil, false
}

// NextTransactions returns the names of every transaction with an input
// funded by one of name's outputs, i.e. name's direct successors.
func (g *TransactionGraph) NextTransactions(name string) []string {
	seen := make(map[string]struct{})
	var next []string
	for _, c := range g.connections {
		if c.Kind == ConnectionInternal && c.FromTransaction == name {
			if _, ok := seen[c.ToTransaction]; !ok {
				seen[c.ToTransaction] = struct{}{}
				next = append(next, c.ToTransaction)
			}
		}
	}
	return next
}

// GetDependencies returns the names of every transaction that funds one
// of name's inputs, i.e. name's direct predecessors. External
// connections contribute no dependency, since their funding transaction
// is not part of this graph.
func (g *TransactionGraph) GetDependencies(name string) []string {
	seen := make(map[string]struct{})
	var deps []string
	for _, c := range g.connections {
		if c.Kind == ConnectionInternal && c.ToTransaction == name {
			if _, ok := seen[c.FromTransaction]; !ok {
				seen[c.FromTransaction] = struct{}{}
				deps = append(deps, c.FromTransaction)
			}
		}
	}
	return deps
}

// GetPrevouts returns, for every input of name in order, the OutputType
// it was connected to. An input with no connection yet yields a nil
// entry at that position.
func (g *TransactionGraph) GetPrevouts(name string) ([]*OutputType, error) {
	tx, err := g.GetTransaction(name)
	if err != nil {
		return nil, err
	}
	prevouts := make([]*OutputType, len(tx.Inputs))
	for i := range tx.Inputs {
		prevouts[i] = tx.Inputs[i].OutputRef
	}
	return prevouts, nil
}

// Sort returns the transaction names in topological order (every
// transaction before its successors), via Kahn's algorithm over the
// internal-connection edges. External connections have no in-graph
// source and do not participate in ordering.
func (g *TransactionGraph) Sort() ([]string, error) {
	inDegree := make(map[string]int, len(g.order))
	for _, name := range g.order {
		inDegree[name] = 0
	}
	for _, c := range g.connections {
		if c.Kind == ConnectionInternal {
			inDegree[c.ToTransaction]++
		}
	}

	var queue []string
	for _, name := range g.order {
		if inDegree[name] == 0 {
			queue = append(queue, name)
		}
	}

	sorted := make([]string, 0, len(g.order))
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		sorted = append(sorted, name)

		for _, next := range g.NextTransactions(name) {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if len(sorted) != len(g.order) {
		return nil, errCycleDetected()
	}
	return sorted, nil
}

// SetOutputValue overwrites txName's output at outIdx's value, and
// propagates the change into every already-connected input's OutputRef
// copy, so a fee estimator running before Build sees a consistent value
// everywhere the output is referenced.
func (g *TransactionGraph) SetOutputValue(txName string, outIdx int, value btcutil.Amount) error {
	tx, err := g.GetTransaction(txName)
	if err != nil {
		return err
	}
	if outIdx < 0 || outIdx >= len(tx.Outputs) {
		return errMissingOutput(txName, outIdx)
	}
	tx.Outputs[outIdx].Value = value

	for _, c := range g.connections {
		if c.Kind == ConnectionInternal && c.FromTransaction == txName && c.FromOutputIndex == outIdx {
			to, err := g.GetTransaction(c.ToTransaction)
			if err != nil {
				return err
			}
			if to.Inputs[c.ToInputIndex].OutputRef != nil {
				to.Inputs[c.ToInputIndex].OutputRef.Value = value
			}
		}
	}
	return nil
}

// SetTxid records name's finalized txid, once its transaction has been
// fully built and hashed, for use by descendants resolving their own
// inputs' outpoints. Per §4.4's pass-1 invariant, it should be called
// exactly once per node, in topological order.
func (g *TransactionGraph) SetTxid(name, txid string) error {
	tx, err := g.GetTransaction(name)
	if err != nil {
		return err
	}
	tx.Txid = txid
	return nil
}

// ResolveInputOutpoint returns the txid/vout that funds toTx's input at
// toInputIdx: the external txid/vout directly for an external connection,
// or the source transaction's finalized txid and output index for an
// internal one. It errors if no connection was ever made, or if the
// source transaction's txid has not yet been finalized by SetTxid.
func (g *TransactionGraph) ResolveInputOutpoint(toTx string, toInputIdx int) (string, uint32, error) {
	conn, ok := g.GetConnection(toTx, toInputIdx)
	if !ok {
		return "", 0, errMissingConnection()
	}
	if conn.Kind == ConnectionExternal {
		return conn.ExternalTxid, conn.ExternalVout, nil
	}

	from, err := g.GetTransaction(conn.FromTransaction)
	if err != nil {
		return "", 0, err
	}
	if from.Txid == "" {
		return "", 0, &GraphError{
			Op:     "resolve_outpoint",
			Target: conn.FromTransaction,
			Reason: "txid not yet finalized",
		}
	}
	return from.Txid, uint32(conn.FromOutputIndex), nil
}
