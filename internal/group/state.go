package group

import (
	"encoding/json"

	"meld/internal/domain"
)

// EncodeState serializes the full group state for the store. The blob
// contains key material; the store is expected to seal it.
func (g *Group) EncodeState() ([]byte, error) {
	return json.Marshal(g)
}

// DecodeState restores a group from a stored state blob.
func DecodeState(b []byte) (*Group, error) {
	var g Group
	if err := json.Unmarshal(b, &g); err != nil {
		return nil, err
	}
	if g.Proposals == nil {
		g.Proposals = make(map[string]CachedProposal)
	}
	if g.PSKs == nil {
		g.PSKs = make(map[string][]byte)
	}
	return &g, nil
}

// Enqueue appends a decrypted application message to the group's inbox.
// Messages decrypt exactly once; the inbox keeps them, inside the sealed
// group state, until the owner reads them.
func (g *Group) Enqueue(m domain.ReceivedMessage) {
	g.Inbox = append(g.Inbox, m)
}

// DrainInbox returns and clears the queued application messages.
func (g *Group) DrainInbox() []domain.ReceivedMessage {
	out := g.Inbox
	g.Inbox = nil
	return out
}
