package protocol

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/davecgh/go-spew/spew"

	"github.com/FairgateLabs/bitvmx-protocol-graph/pkg/graph"
	"github.com/FairgateLabs/bitvmx-protocol-graph/pkg/keymanager"
	"github.com/FairgateLabs/bitvmx-protocol-graph/pkg/storage"
)

// --- On-disk shapes (spec §4.8/§9: TaprootSpendInfo is dropped and
// recomputed on load; hashed_messages serialize as raw 32-byte hex). ---

type protocolFile struct {
	Name          string        `json:"name"`
	Transactions  []txFile      `json:"transactions"`
	Connections   []connFile    `json:"connections"`
}

type txFile struct {
	Name    string       `json:"name"`
	Txid    string       `json:"txid,omitempty"`
	Outputs []outputFile `json:"outputs"`
	Inputs  []inputFile  `json:"inputs"`
}

type outputFile struct {
	Kind         graph.OutputKind `json:"kind"`
	Value        int64            `json:"value"`
	ScriptPubKey string           `json:"script_pubkey,omitempty"`
	InternalKey  string           `json:"internal_key,omitempty"`
	Leaves       []leafFile       `json:"leaves,omitempty"`
	PublicKey    string           `json:"public_key,omitempty"`
	Script       *scriptFile      `json:"script,omitempty"`
	CarrierData  string           `json:"carrier_data,omitempty"`
	ExternalTxid string           `json:"external_txid,omitempty"`
	ExternalVout uint32           `json:"external_vout,omitempty"`
}

type leafFile struct {
	Script   scriptFile     `json:"script"`
	SignMode graph.SignMode `json:"sign_mode"`
}

type scriptFile struct {
	Script       string          `json:"script"`
	VerifyingKey string          `json:"verifying_key"`
	Keys         []scriptKeyFile `json:"keys,omitempty"`
}

type scriptKeyFile struct {
	Name            string         `json:"name"`
	KeyType         graph.KeyType  `json:"key_type"`
	KeyPosition     uint32         `json:"key_position"`
	DerivationIndex uint32         `json:"derivation_index"`
}

type inputFile struct {
	OutputRef      *outputFile       `json:"output_ref,omitempty"`
	Sighash        graph.SighashType `json:"sighash"`
	SpendMode      spendModeFile     `json:"spend_mode"`
	Sequence       uint32            `json:"sequence"`
	HashedMessages []string          `json:"hashed_messages,omitempty"`
	Signatures     []signatureFile   `json:"signatures,omitempty"`
	AnnexLen       int               `json:"annex_len,omitempty"`
}

type spendModeFile struct {
	Kind        graph.SpendModeKind `json:"kind"`
	KeyPathSign graph.SignMode      `json:"key_path_sign,omitempty"`
	Leaves      []int               `json:"leaves,omitempty"`
	Leaf        int                 `json:"leaf,omitempty"`
}

type signatureFile struct {
	Present bool   `json:"present"`
	Schnorr string `json:"schnorr,omitempty"`
	ECDSA   string `json:"ecdsa,omitempty"`
}

type connFile struct {
	Kind            graph.ConnectionKind `json:"kind"`
	FromTransaction string               `json:"from_transaction,omitempty"`
	FromOutputIndex int                  `json:"from_output_index,omitempty"`
	ExternalTxid    string               `json:"external_txid,omitempty"`
	ExternalVout    uint32               `json:"external_vout,omitempty"`
	ToTransaction   string               `json:"to_transaction"`
	ToInputIndex    int                  `json:"to_input_index"`
}

// Save serializes the whole graph (nodes, edges, hashes, signatures,
// descriptors) to a single record keyed by p.Name, per §4.8.
func (p *Protocol) Save(backend storage.Backend) error {
	file := protocolFile{Name: p.Name}

	for _, name := range p.Graph.GetTransactionNames() {
		node, err := p.Graph.GetTransaction(name)
		if err != nil {
			return err
		}
		tf := txFile{Name: node.Name, Txid: node.Txid}
		for _, o := range node.Outputs {
			of, err := encodeOutput(&o)
			if err != nil {
				return fmt.Errorf("save: transaction %q: %w", name, err)
			}
			tf.Outputs = append(tf.Outputs, of)
		}
		for _, in := range node.Inputs {
			inf, err := encodeInput(&in)
			if err != nil {
				return fmt.Errorf("save: transaction %q: %w", name, err)
			}
			tf.Inputs = append(tf.Inputs, inf)
		}
		file.Transactions = append(file.Transactions, tf)

		for i := range node.Inputs {
			if conn, ok := p.Graph.GetConnection(name, i); ok {
				file.Connections = append(file.Connections, encodeConnection(conn))
			}
		}
	}

	raw, err := json.Marshal(file)
	if err != nil {
		return fmt.Errorf("save %s: marshal: %w", p.Name, err)
	}
	if err := backend.Write(p.Name, raw); err != nil {
		return fmt.Errorf("save %s: %w", p.Name, err)
	}
	return nil
}

// Load reconstructs a protocol previously written by Save: tap-tree
// spend info is recomputed from the stored (internal_key, leaves) pair
// rather than persisted, per §9.
func Load(name string, backend storage.Backend, km keymanager.KeyManager) (*Protocol, error) {
	raw, ok, err := backend.Read(name)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", name, err)
	}
	if !ok {
		return nil, fmt.Errorf("load %s: no stored protocol with that name", name)
	}

	var file protocolFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("load %s: unmarshal: %w", name, err)
	}

	order := make([]string, 0, len(file.Transactions))
	transactions := make(map[string]*graph.Transaction, len(file.Transactions))
	for _, tf := range file.Transactions {
		node := &graph.Transaction{Name: tf.Name, Txid: tf.Txid}
		for _, of := range tf.Outputs {
			out, err := decodeOutput(of)
			if err != nil {
				return nil, fmt.Errorf("load %s: transaction %q: %w", name, tf.Name, err)
			}
			node.Outputs = append(node.Outputs, out)
		}
		for _, inf := range tf.Inputs {
			in, err := decodeInput(inf)
			if err != nil {
				return nil, fmt.Errorf("load %s: transaction %q: %w", name, tf.Name, err)
			}
			node.Inputs = append(node.Inputs, in)
		}
		order = append(order, tf.Name)
		transactions[tf.Name] = node
	}

	connections := make([]graph.Connection, 0, len(file.Connections))
	for _, cf := range file.Connections {
		connections = append(connections, decodeConnection(cf))
	}

	return &Protocol{
		Name:  file.Name,
		Graph: graph.RestoreTransactionGraph(order, transactions, connections),
		km:    km,
	}, nil
}

func encodeOutput(o *graph.OutputType) (outputFile, error) {
	of := outputFile{
		Kind:         o.Kind(),
		Value:        int64(o.Value),
		ScriptPubKey: hex.EncodeToString(o.ScriptPubKey),
	}
	if o.InternalKey != nil {
		of.InternalKey = hex.EncodeToString(o.InternalKey.SerializeCompressed())
	}
	if o.PublicKey != nil {
		of.PublicKey = hex.EncodeToString(o.PublicKey.SerializeCompressed())
	}
	if o.Script != nil {
		sf, err := encodeScript(o.Script)
		if err != nil {
			return of, err
		}
		of.Script = &sf
	}
	for _, l := range o.Leaves {
		sf, err := encodeScript(l.Script)
		if err != nil {
			return of, err
		}
		of.Leaves = append(of.Leaves, leafFile{Script: sf, SignMode: l.SignMode})
	}
	of.CarrierData = hex.EncodeToString(o.CarrierData)
	of.ExternalTxid = o.ExternalTxid
	of.ExternalVout = o.ExternalVout
	return of, nil
}

func decodeOutput(of outputFile) (graph.OutputType, error) {
	fields := graph.OutputType{
		Value: btcutil.Amount(of.Value),
	}
	var err error
	if fields.ScriptPubKey, err = decodeHex(of.ScriptPubKey); err != nil {
		return graph.OutputType{}, fmt.Errorf("script_pubkey: %w", err)
	}
	if of.InternalKey != "" {
		if fields.InternalKey, err = decodePubKey(of.InternalKey); err != nil {
			return graph.OutputType{}, fmt.Errorf("internal_key: %w", err)
		}
	}
	if of.PublicKey != "" {
		if fields.PublicKey, err = decodePubKey(of.PublicKey); err != nil {
			return graph.OutputType{}, fmt.Errorf("public_key: %w", err)
		}
	}
	if of.Script != nil {
		script, err := decodeScript(*of.Script)
		if err != nil {
			return graph.OutputType{}, fmt.Errorf("script: %w", err)
		}
		fields.Script = script
	}
	for _, lf := range of.Leaves {
		script, err := decodeScript(lf.Script)
		if err != nil {
			return graph.OutputType{}, fmt.Errorf("leaf: %w", err)
		}
		fields.Leaves = append(fields.Leaves, graph.Leaf{Script: script, SignMode: lf.SignMode})
	}
	if fields.CarrierData, err = decodeHex(of.CarrierData); err != nil {
		return graph.OutputType{}, fmt.Errorf("carrier_data: %w", err)
	}
	fields.ExternalTxid = of.ExternalTxid
	fields.ExternalVout = of.ExternalVout

	out := graph.RestoreOutputType(of.Kind, fields)

	// Recompute the tap-tree spend info from (internal_key, leaves)
	// rather than persisting it, per §9.
	if of.Kind == graph.OutputTaproot && len(fields.Leaves) > 0 {
		scripts := make([]*graph.ProtocolScript, len(fields.Leaves))
		for i, l := range fields.Leaves {
			scripts[i] = l.Script
		}
		tree, err := graph.BuildTapTree(fields.InternalKey, scripts)
		if err != nil {
			return graph.OutputType{}, fmt.Errorf("rebuild tap-tree: %w", err)
		}
		out.SpendInfo = tree
	}
	return out, nil
}

func encodeScript(s *graph.ProtocolScript) (scriptFile, error) {
	sf := scriptFile{Script: hex.EncodeToString(s.Script)}
	if s.VerifyingKey != nil {
		sf.VerifyingKey = hex.EncodeToString(s.VerifyingKey.SerializeCompressed())
	}
	for _, k := range s.OrderedKeys() {
		sf.Keys = append(sf.Keys, scriptKeyFile{
			Name:            k.Name,
			KeyType:         k.KeyType,
			KeyPosition:     k.KeyPosition,
			DerivationIndex: k.DerivationIndex,
		})
	}
	return sf, nil
}

func decodeScript(sf scriptFile) (*graph.ProtocolScript, error) {
	scriptBytes, err := decodeHex(sf.Script)
	if err != nil {
		return nil, fmt.Errorf("script: %w", err)
	}
	var verifyingKey *btcec.PublicKey
	if sf.VerifyingKey != "" {
		verifyingKey, err = decodePubKey(sf.VerifyingKey)
		if err != nil {
			return nil, fmt.Errorf("verifying_key: %w", err)
		}
	}
	ps := graph.NewProtocolScript(scriptBytes, verifyingKey)
	for _, k := range sf.Keys {
		if err := ps.AddKey(k.Name, k.DerivationIndex, k.KeyType, k.KeyPosition); err != nil {
			return nil, err
		}
	}
	return ps, nil
}

func encodeInput(in *graph.InputType) (inputFile, error) {
	inf := inputFile{
		Sighash: in.Sighash,
		SpendMode: spendModeFile{
			Kind:        in.SpendMode.Kind(),
			KeyPathSign: in.SpendMode.KeyPathSign,
			Leaf:        in.SpendMode.Leaf,
		},
		Sequence: in.Sequence,
		AnnexLen: in.AnnexLen,
	}
	for l := range in.SpendMode.Leaves {
		inf.SpendMode.Leaves = append(inf.SpendMode.Leaves, l)
	}

	if in.OutputRef != nil {
		of, err := encodeOutput(in.OutputRef)
		if err != nil {
			return inf, err
		}
		inf.OutputRef = &of
	}
	for _, h := range in.HashedMessages {
		if h == nil {
			inf.HashedMessages = append(inf.HashedMessages, "")
			continue
		}
		inf.HashedMessages = append(inf.HashedMessages, hex.EncodeToString(h))
	}
	for _, s := range in.Signatures {
		sf := signatureFile{Present: s.Present}
		if s.Schnorr != nil {
			sf.Schnorr = hex.EncodeToString(s.Schnorr.Serialize())
		}
		if s.ECDSA != nil {
			sf.ECDSA = hex.EncodeToString(s.ECDSA.Serialize())
		}
		inf.Signatures = append(inf.Signatures, sf)
	}
	return inf, nil
}

func decodeInput(inf inputFile) (graph.InputType, error) {
	var leaves map[int]struct{}
	if len(inf.SpendMode.Leaves) > 0 {
		leaves = make(map[int]struct{}, len(inf.SpendMode.Leaves))
		for _, l := range inf.SpendMode.Leaves {
			leaves[l] = struct{}{}
		}
	}
	in := graph.InputType{
		Sighash:   inf.Sighash,
		SpendMode: graph.RestoreSpendMode(inf.SpendMode.Kind, inf.SpendMode.KeyPathSign, leaves, inf.SpendMode.Leaf),
		Sequence:  inf.Sequence,
		AnnexLen:  inf.AnnexLen,
	}
	if inf.OutputRef != nil {
		out, err := decodeOutput(*inf.OutputRef)
		if err != nil {
			return graph.InputType{}, err
		}
		in.OutputRef = &out
	}
	for _, h := range inf.HashedMessages {
		if h == "" {
			in.HashedMessages = append(in.HashedMessages, nil)
			continue
		}
		b, err := decodeHex(h)
		if err != nil {
			return graph.InputType{}, fmt.Errorf("hashed_messages: %w", err)
		}
		in.HashedMessages = append(in.HashedMessages, b)
	}
	for _, sf := range inf.Signatures {
		sig := graph.Signature{Present: sf.Present}
		if sf.Schnorr != "" {
			b, err := decodeHex(sf.Schnorr)
			if err != nil {
				return graph.InputType{}, fmt.Errorf("signatures.schnorr: %w", err)
			}
			sig.Schnorr, err = schnorr.ParseSignature(b)
			if err != nil {
				return graph.InputType{}, fmt.Errorf("signatures.schnorr: %w", err)
			}
		}
		if sf.ECDSA != "" {
			b, err := decodeHex(sf.ECDSA)
			if err != nil {
				return graph.InputType{}, fmt.Errorf("signatures.ecdsa: %w", err)
			}
			sig.ECDSA, err = ecdsa.ParseSignature(b)
			if err != nil {
				return graph.InputType{}, fmt.Errorf("signatures.ecdsa: %w", err)
			}
		}
		in.Signatures = append(in.Signatures, sig)
	}
	return in, nil
}

func encodeConnection(c *graph.Connection) connFile {
	return connFile{
		Kind:            c.Kind,
		FromTransaction: c.FromTransaction,
		FromOutputIndex: c.FromOutputIndex,
		ExternalTxid:    c.ExternalTxid,
		ExternalVout:    c.ExternalVout,
		ToTransaction:   c.ToTransaction,
		ToInputIndex:    c.ToInputIndex,
	}
}

func decodeConnection(cf connFile) graph.Connection {
	return graph.Connection{
		Kind:            cf.Kind,
		FromTransaction: cf.FromTransaction,
		FromOutputIndex: cf.FromOutputIndex,
		ExternalTxid:    cf.ExternalTxid,
		ExternalVout:    cf.ExternalVout,
		ToTransaction:   cf.ToTransaction,
		ToInputIndex:    cf.ToInputIndex,
	}
}

func decodeHex(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	return hex.DecodeString(s)
}

func decodePubKey(s string) (*btcec.PublicKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	return btcec.ParsePubKey(b)
}

// --- Visualization (§4.8) ---

// VisualizeOptions controls Protocol.Visualize's output.
type VisualizeOptions struct {
	// DOT selects Graphviz DOT output; otherwise a plain-text listing.
	DOT bool
	// Debug appends a full spew dump of each node's outputs and inputs
	// below the plain-text listing. Ignored when DOT is set.
	Debug bool
}

// Visualize renders the protocol as a human-readable dependency listing
// or, if opts.DOT is set, as a Graphviz DOT graph.
func (p *Protocol) Visualize(opts VisualizeOptions) string {
	if opts.DOT {
		return p.visualizeDOT()
	}
	return p.visualizeText(opts.Debug)
}

func (p *Protocol) visualizeText(debug bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "protocol %s\n", p.Name)
	for _, name := range p.Graph.GetTransactionNames() {
		node, err := p.Graph.GetTransaction(name)
		if err != nil {
			continue
		}
		fmt.Fprintf(&b, "  %s (outputs=%d inputs=%d txid=%s)\n", node.Name, len(node.Outputs), len(node.Inputs), node.Txid)
		for _, dep := range p.Graph.GetDependencies(name) {
			fmt.Fprintf(&b, "    <- %s\n", dep)
		}
		if debug {
			fmt.Fprintf(&b, "%s\n", spew.Sdump(node.Outputs))
			fmt.Fprintf(&b, "%s\n", spew.Sdump(node.Inputs))
		}
	}
	return b.String()
}

func (p *Protocol) visualizeDOT() string {
	var b strings.Builder
	fmt.Fprintf(&b, "digraph %q {\n", p.Name)
	for _, name := range p.Graph.GetTransactionNames() {
		node, err := p.Graph.GetTransaction(name)
		if err != nil {
			continue
		}
		for i := range node.Inputs {
			conn, ok := p.Graph.GetConnection(name, i)
			if !ok || conn.Kind != graph.ConnectionInternal {
				continue
			}
			fmt.Fprintf(&b, "  %q -> %q [label=\"out %d -> in %d\"];\n", conn.FromTransaction, name, conn.FromOutputIndex, i)
		}
	}
	fmt.Fprintf(&b, "}\n")
	return b.String()
}
