package keymanager

import (
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/musig2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
)

// musig2RoundKey identifies one MuSig2 signing round by (protocolID,
// messageID). The message IDs pkg/protocol passes name the transaction,
// input and branch, so each round belongs to a single transaction.
type musig2RoundKey struct {
	protocolID string
	messageID  string
}

// musig2Round holds the live signing context for one round: the
// participant set is fixed at NewMusig2Session time, nonces and partial
// signatures accumulate as participants call GenerateNonce and (when this
// signer contributes) Sign, until every participant's contribution has
// been combined into a final aggregated signature.
type musig2Round struct {
	ctx     *musig2.Context
	session *musig2.Session
	done    bool
	final   *schnorr.Signature
}

// musig2Sessions is cross-session MuSig2 state keyed by
// (protocol_id, message_id), shared by every call the in-process
// LocalKeyManager makes for a given protocol run.
type musig2Sessions struct {
	mu     sync.Mutex
	rounds map[musig2RoundKey]*musig2Round
}

func newMusig2Sessions() *musig2Sessions {
	return &musig2Sessions{rounds: make(map[musig2RoundKey]*musig2Round)}
}

// context returns (creating if needed) the MuSig2 context for a signer
// whose own key is myPriv, aggregating participants. The aggregated key
// is cached on the Context; callers needing only that key can discard the
// round afterward.
func (s *musig2Sessions) context(myPriv *btcec.PrivateKey, participants []*btcec.PublicKey) (*musig2.Context, error) {
	return musig2.NewContext(myPriv, true, musig2.WithKnownSigners(participants))
}

// round returns (creating if needed) the session for protocolID/messageID
// signing hash under ctx, optionally tweaked (BIP-341 key-path spend of a
// taproot output that also carries script paths).
func (s *musig2Sessions) round(protocolID, messageID string, ctx *musig2.Context, hash [32]byte, tweak *[32]byte) (*musig2Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := musig2RoundKey{protocolID: protocolID, messageID: messageID}
	if r, ok := s.rounds[key]; ok {
		return r, nil
	}

	var opts []musig2.SessionOption
	if tweak != nil {
		opts = append(opts, musig2.WithTweakedContext(*tweak))
	}
	session, err := ctx.NewSession(opts...)
	if err != nil {
		return nil, err
	}

	r := &musig2Round{ctx: ctx, session: session}
	s.rounds[key] = r
	return r, nil
}

// combine folds partialSigs (each delivered out-of-band by the caller's
// own transport) into the round's session and returns the session's final
// aggregated signature, which is nil until every participant's partial
// signature has been combined.
func (s *musig2Sessions) combine(protocolID, messageID string, partialSigs []*musig2.PartialSignature) (*schnorr.Signature, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := musig2RoundKey{protocolID: protocolID, messageID: messageID}
	r, ok := s.rounds[key]
	if !ok {
		return nil, &UnknownSessionError{ProtocolID: protocolID, MessageID: messageID}
	}

	for _, partial := range partialSigs {
		if _, err := r.session.CombineSig(partial); err != nil {
			return nil, err
		}
	}

	final := r.session.FinalSig()
	r.final = final
	r.done = true
	return final, nil
}

// UnknownSessionError is returned when GetAggregatedSignature is called
// for a (protocolID, messageID) pair that never had GenerateNonce called
// first.
type UnknownSessionError struct {
	ProtocolID string
	MessageID  string
}

func (e *UnknownSessionError) Error() string {
	return "musig2: no session for protocol " + e.ProtocolID + " message " + e.MessageID
}
