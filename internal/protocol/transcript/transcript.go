// Package transcript tracks the running hash of a group's commit history.
//
// Each commit folds its framed content and signature into the confirmed
// transcript hash; the commit's confirmation tag then extends it to the
// interim hash that seeds the next epoch's transcript. Signatures over
// group state and the confirmation tag itself both bind to these hashes,
// so two members agree on group history exactly when their hashes match.
package transcript

import (
	"meld/internal/crypto"
	"meld/internal/domain"
	"meld/internal/wire"
)

// Hashes carries the transcript state across epochs.
type Hashes struct {
	Confirmed []byte `json:"confirmed"`
	Interim   []byte `json:"interim"`
}

// New returns the empty transcript of a freshly created group.
func New() Hashes {
	return Hashes{Confirmed: nil, Interim: nil}
}

// AdvanceConfirmed folds a commit into the confirmed hash. The caller
// computes the confirmation tag over the result before calling
// AdvanceInterim.
func (h Hashes) AdvanceConfirmed(wf domain.WireFormat, content domain.FramedContent, signature []byte) Hashes {
	input := wire.ConfirmedTranscriptHashInput(wf, content, signature)
	h.Confirmed = crypto.Hash(append(append([]byte(nil), h.Interim...), input...))
	return h
}

// AdvanceInterim extends the confirmed hash with the commit's confirmation
// tag, producing the hash the next commit chains from.
func (h Hashes) AdvanceInterim(confirmationTag []byte) Hashes {
	input := wire.InterimTranscriptHashInput(confirmationTag)
	h.Interim = crypto.Hash(append(append([]byte(nil), h.Confirmed...), input...))
	return h
}
