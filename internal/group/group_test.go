package group

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"meld/internal/crypto"
	"meld/internal/domain"
	"meld/internal/wire"
)

func newTestIdentity(t *testing.T, name string) domain.Identity {
	t.Helper()
	priv, pub, err := crypto.GenerateEd25519()
	if err != nil {
		t.Fatalf("generate identity: %v", err)
	}
	return domain.Identity{Name: domain.Username(name), EdPub: pub, EdPriv: priv}
}

// addMember has the group's first member add a new one and returns the
// joined group. The commit and welcome round trip the way the delivery
// service would carry them.
func addMember(t *testing.T, g *Group, name string, others ...*Group) *Group {
	t.Helper()
	id := newTestIdentity(t, name)
	kp, kpPriv, err := GenerateKeyPackage(id)
	if err != nil {
		t.Fatalf("generate key package: %v", err)
	}

	prop, err := g.ProposeAdd(kp)
	if err != nil {
		t.Fatalf("propose add: %v", err)
	}
	for _, o := range others {
		if _, err := o.ProcessIncoming(prop); err != nil {
			t.Fatalf("process add proposal: %v", err)
		}
	}

	out, err := g.Commit()
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if out.Welcome == nil {
		t.Fatal("add commit produced no welcome")
	}
	if _, err := g.ApplyPendingCommit(); err != nil {
		t.Fatalf("apply pending commit: %v", err)
	}
	for _, o := range others {
		if _, err := o.ProcessIncoming(out.Commit); err != nil {
			t.Fatalf("process add commit: %v", err)
		}
	}

	joined, err := FromWelcome(id, *out.Welcome, kpPriv)
	if err != nil {
		t.Fatalf("join from welcome: %v", err)
	}
	return joined
}

func requireSameState(t *testing.T, groups ...*Group) {
	t.Helper()
	for _, g := range groups[1:] {
		if g.Epoch() != groups[0].Epoch() {
			t.Fatalf("epoch mismatch: %d vs %d", g.Epoch(), groups[0].Epoch())
		}
		if !bytes.Equal(g.EpochAuthenticator(), groups[0].EpochAuthenticator()) {
			t.Fatal("epoch authenticators diverged")
		}
	}
}

func TestCreateAddJoin(t *testing.T) {
	alice, err := New(newTestIdentity(t, "alice"), nil)
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	if alice.Epoch() != 0 || len(alice.Members()) != 1 {
		t.Fatalf("fresh group: epoch %d, %d members", alice.Epoch(), len(alice.Members()))
	}

	bob := addMember(t, alice, "bob")
	requireSameState(t, alice, bob)

	if alice.Epoch() != 1 {
		t.Fatalf("epoch after add = %d, want 1", alice.Epoch())
	}
	if len(bob.Members()) != 2 {
		t.Fatalf("joiner sees %d members, want 2", len(bob.Members()))
	}
	if bob.OwnIndex() == alice.OwnIndex() {
		t.Fatal("joiner shares a leaf with the creator")
	}
}

func TestEmptyCommitFromEachMember(t *testing.T) {
	alice, _ := New(newTestIdentity(t, "alice"), nil)
	bob := addMember(t, alice, "bob")

	// Bob commits with no proposals; the update path still rotates keys.
	out, err := bob.Commit()
	if err != nil {
		t.Fatalf("empty commit: %v", err)
	}
	if out.Welcome != nil {
		t.Fatal("empty commit produced a welcome")
	}
	if _, err := bob.ApplyPendingCommit(); err != nil {
		t.Fatalf("apply: %v", err)
	}
	pm, err := alice.ProcessIncoming(out.Commit)
	if err != nil {
		t.Fatalf("process empty commit: %v", err)
	}
	if pm.Kind != domain.ProcessedCommit {
		t.Fatalf("processed kind = %d, want commit", pm.Kind)
	}
	requireSameState(t, alice, bob)

	// And back the other way.
	out2, err := alice.Commit()
	if err != nil {
		t.Fatalf("second empty commit: %v", err)
	}
	alice.ApplyPendingCommit()
	if _, err := bob.ProcessIncoming(out2.Commit); err != nil {
		t.Fatalf("process second commit: %v", err)
	}
	requireSameState(t, alice, bob)
}

func TestThreeMemberMessaging(t *testing.T) {
	alice, _ := New(newTestIdentity(t, "alice"), nil)
	bob := addMember(t, alice, "bob")
	carol := addMember(t, alice, "carol", bob)
	requireSameState(t, alice, bob, carol)

	msg, err := alice.EncryptApplicationMessage([]byte("hello group"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	for _, receiver := range []*Group{bob, carol} {
		pm, err := receiver.ProcessIncoming(msg)
		if err != nil {
			t.Fatalf("decrypt: %v", err)
		}
		if pm.Kind != domain.ProcessedApplication {
			t.Fatalf("kind = %d, want application", pm.Kind)
		}
		if string(pm.ApplicationData) != "hello group" {
			t.Fatalf("plaintext = %q", pm.ApplicationData)
		}
		if string(pm.SenderIdentity) != "alice" {
			t.Fatalf("sender = %q, want alice", pm.SenderIdentity)
		}
	}

	reply, err := carol.EncryptApplicationMessage([]byte("hi alice"))
	if err != nil {
		t.Fatalf("encrypt reply: %v", err)
	}
	pm, err := alice.ProcessIncoming(reply)
	if err != nil {
		t.Fatalf("decrypt reply: %v", err)
	}
	if string(pm.ApplicationData) != "hi alice" {
		t.Fatalf("reply plaintext = %q", pm.ApplicationData)
	}
}

func TestOutOfOrderApplicationMessages(t *testing.T) {
	alice, _ := New(newTestIdentity(t, "alice"), nil)
	bob := addMember(t, alice, "bob")

	var msgs []domain.MLSMessage
	for _, text := range []string{"one", "two", "three"} {
		m, err := alice.EncryptApplicationMessage([]byte(text))
		if err != nil {
			t.Fatalf("encrypt %q: %v", text, err)
		}
		msgs = append(msgs, m)
	}

	for _, i := range []int{2, 0, 1} {
		pm, err := bob.ProcessIncoming(msgs[i])
		if err != nil {
			t.Fatalf("out-of-order decrypt %d: %v", i, err)
		}
		want := []string{"one", "two", "three"}[i]
		if string(pm.ApplicationData) != want {
			t.Fatalf("message %d = %q, want %q", i, pm.ApplicationData, want)
		}
	}

	// Replays must fail once the key is consumed.
	if _, err := bob.ProcessIncoming(msgs[0]); err == nil {
		t.Fatal("replayed message decrypted")
	}
}

func TestRemoveMember(t *testing.T) {
	alice, _ := New(newTestIdentity(t, "alice"), nil)
	bob := addMember(t, alice, "bob")
	carol := addMember(t, alice, "carol", bob)

	prop, err := alice.ProposeRemove(carol.OwnIndex())
	if err != nil {
		t.Fatalf("propose remove: %v", err)
	}
	for _, o := range []*Group{bob, carol} {
		if _, err := o.ProcessIncoming(prop); err != nil {
			t.Fatalf("process remove proposal: %v", err)
		}
	}

	out, err := alice.Commit()
	if err != nil {
		t.Fatalf("commit remove: %v", err)
	}
	update, err := alice.ApplyPendingCommit()
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(update.Removed) != 1 || string(update.Removed[0].Identity) != "carol" {
		t.Fatalf("removed = %+v", update.Removed)
	}

	pm, err := bob.ProcessIncoming(out.Commit)
	if err != nil {
		t.Fatalf("bob processes remove: %v", err)
	}
	if len(pm.Update.Removed) != 1 {
		t.Fatalf("bob's update: %+v", pm.Update)
	}
	requireSameState(t, alice, bob)

	// Carol learns she is out and can no longer send.
	cpm, err := carol.ProcessIncoming(out.Commit)
	if err != nil {
		t.Fatalf("carol processes remove: %v", err)
	}
	if cpm.Update.Active {
		t.Fatal("removed member still marked active")
	}
	if _, err := carol.EncryptApplicationMessage([]byte("x")); !errors.Is(err, ErrInactive) {
		t.Fatalf("removed member encrypt: %v, want ErrInactive", err)
	}

	// And cannot read post-removal traffic.
	secret, err := alice.EncryptApplicationMessage([]byte("without carol"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if _, err := carol.ProcessIncoming(secret); err == nil {
		t.Fatal("removed member decrypted new traffic")
	}
	if pm, err := bob.ProcessIncoming(secret); err != nil || string(pm.ApplicationData) != "without carol" {
		t.Fatalf("remaining member decrypt: %v", err)
	}
}

func TestUpdateProposal(t *testing.T) {
	alice, _ := New(newTestIdentity(t, "alice"), nil)
	bob := addMember(t, alice, "bob")

	oldLeaf := *bob.Tree.Leaf(bob.OwnIndex())

	prop, err := bob.ProposeUpdate()
	if err != nil {
		t.Fatalf("propose update: %v", err)
	}
	if _, err := alice.ProcessIncoming(prop); err != nil {
		t.Fatalf("process update proposal: %v", err)
	}

	out, err := alice.Commit()
	if err != nil {
		t.Fatalf("commit update: %v", err)
	}
	alice.ApplyPendingCommit()
	pm, err := bob.ProcessIncoming(out.Commit)
	if err != nil {
		t.Fatalf("bob processes own update commit: %v", err)
	}
	if len(pm.Update.Updated) != 1 {
		t.Fatalf("update summary: %+v", pm.Update)
	}
	requireSameState(t, alice, bob)

	newLeaf := bob.Tree.Leaf(bob.OwnIndex())
	if newLeaf.InitKey == oldLeaf.InitKey {
		t.Fatal("update did not rotate the leaf init key")
	}

	// Messaging still works both ways in the new epoch.
	m, err := bob.EncryptApplicationMessage([]byte("fresh keys"))
	if err != nil {
		t.Fatalf("encrypt after update: %v", err)
	}
	if got, err := alice.ProcessIncoming(m); err != nil || string(got.ApplicationData) != "fresh keys" {
		t.Fatalf("decrypt after update: %v", err)
	}
}

func TestPreSharedKeyCommit(t *testing.T) {
	alice, _ := New(newTestIdentity(t, "alice"), nil)
	bob := addMember(t, alice, "bob")

	pskID := []byte("offline-psk-1")
	psk := bytes.Repeat([]byte{42}, 32)
	alice.RegisterPSK(pskID, psk)
	bob.RegisterPSK(pskID, psk)

	prop, err := alice.ProposePreSharedKey(pskID)
	if err != nil {
		t.Fatalf("propose psk: %v", err)
	}
	if _, err := bob.ProcessIncoming(prop); err != nil {
		t.Fatalf("process psk proposal: %v", err)
	}

	out, err := alice.Commit()
	if err != nil {
		t.Fatalf("commit psk: %v", err)
	}
	alice.ApplyPendingCommit()
	if _, err := bob.ProcessIncoming(out.Commit); err != nil {
		t.Fatalf("bob processes psk commit: %v", err)
	}
	requireSameState(t, alice, bob)
}

func TestCommitValidation(t *testing.T) {
	alice, _ := New(newTestIdentity(t, "alice"), nil)
	bob := addMember(t, alice, "bob")

	// A committer cannot remove itself.
	if _, err := alice.ProposeRemove(alice.OwnIndex()); err != nil {
		t.Fatalf("propose remove self: %v", err)
	}
	if _, err := alice.Commit(); !errors.Is(err, ErrProposalInvalid) {
		t.Fatalf("self-removal commit: %v, want ErrProposalInvalid", err)
	}
	alice.clearEpochCaches()

	// Adding an identity already in the group is rejected.
	dup, _, err := GenerateKeyPackage(newTestIdentity(t, "bob"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := alice.ProposeAdd(dup); err != nil {
		t.Fatalf("propose duplicate add: %v", err)
	}
	if _, err := alice.Commit(); !errors.Is(err, ErrProposalInvalid) {
		t.Fatalf("duplicate add commit: %v, want ErrProposalInvalid", err)
	}
	alice.clearEpochCaches()

	_ = bob
}

func TestWrongEpochAndTampering(t *testing.T) {
	alice, _ := New(newTestIdentity(t, "alice"), nil)
	bob := addMember(t, alice, "bob")

	stale, err := alice.EncryptApplicationMessage([]byte("stale"))
	if err != nil {
		t.Fatal(err)
	}

	// Advance one epoch; the old message no longer parses as current.
	out, _ := bob.Commit()
	bob.ApplyPendingCommit()
	if _, err := alice.ProcessIncoming(out.Commit); err != nil {
		t.Fatalf("process commit: %v", err)
	}
	if _, err := bob.ProcessIncoming(stale); !errors.Is(err, ErrWrongEpoch) {
		t.Fatalf("stale message: %v, want ErrWrongEpoch", err)
	}

	// A flipped ciphertext byte must not decrypt.
	m, err := alice.EncryptApplicationMessage([]byte("intact"))
	if err != nil {
		t.Fatal(err)
	}
	m.PrivateMessage.Ciphertext[0] ^= 0xff
	if _, err := bob.ProcessIncoming(m); err == nil {
		t.Fatal("tampered ciphertext decrypted")
	}
}

func TestTamperedSignatureRejected(t *testing.T) {
	alice, _ := New(newTestIdentity(t, "alice"), nil)
	bob := addMember(t, alice, "bob")

	kp, _, err := GenerateKeyPackage(newTestIdentity(t, "carol"))
	if err != nil {
		t.Fatal(err)
	}
	prop, err := alice.ProposeAdd(kp)
	if err != nil {
		t.Fatalf("propose add: %v", err)
	}

	prop.PublicMessage.Auth.Signature[0] ^= 0xff
	if _, err := bob.ProcessIncoming(prop); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("tampered signature: %v, want ErrBadSignature", err)
	}
}

func TestOutsiderCannotInject(t *testing.T) {
	alice, _ := New(newTestIdentity(t, "alice"), nil)
	bob := addMember(t, alice, "bob")
	eve := newTestIdentity(t, "eve")

	// A proposal claiming alice's leaf but signed with eve's key.
	kp, _, err := GenerateKeyPackage(newTestIdentity(t, "mallory"))
	if err != nil {
		t.Fatal(err)
	}
	content := domain.FramedContent{
		GroupID:     bob.Context.GroupID,
		Epoch:       bob.Context.Epoch,
		Sender:      domain.Sender{Type: domain.SenderTypeMember, LeafIndex: 0},
		ContentType: domain.ContentTypeProposal,
		Proposal: &domain.Proposal{
			Type: domain.ProposalTypeAdd,
			Add:  &domain.AddProposal{KeyPackage: kp},
		},
	}
	tbs := wire.FramedContentTBS(domain.WireFormatPublicMessage, content, bob.Context)
	forged := domain.MLSMessage{
		Version:    domain.MLS10,
		WireFormat: domain.WireFormatPublicMessage,
		PublicMessage: &domain.PublicMessage{
			Content: content,
			Auth: domain.FramedContentAuthData{
				Signature: crypto.SignWithLabel(eve.EdPriv, "FramedContentTBS", tbs),
			},
		},
	}
	if _, err := bob.ProcessIncoming(forged); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("forged proposal: %v, want ErrBadSignature", err)
	}

	// Eve's own group traffic does not land in ours either.
	eveGroup, err := New(eve, nil)
	if err != nil {
		t.Fatal(err)
	}
	stray, err := eveGroup.EncryptApplicationMessage([]byte("hello?"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := bob.ProcessIncoming(stray); !errors.Is(err, ErrWrongGroup) {
		t.Fatalf("stray message: %v, want ErrWrongGroup", err)
	}
}

func TestClearPendingCommit(t *testing.T) {
	alice, _ := New(newTestIdentity(t, "alice"), nil)
	bob := addMember(t, alice, "bob")

	before := alice.Epoch()
	if _, err := alice.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	alice.ClearPendingCommit()
	if alice.Epoch() != before {
		t.Fatal("discarded commit changed the epoch")
	}
	if _, err := alice.ApplyPendingCommit(); !errors.Is(err, ErrNoPendingCommit) {
		t.Fatalf("apply after clear: %v, want ErrNoPendingCommit", err)
	}

	// State still converges through a later commit.
	out, err := alice.Commit()
	if err != nil {
		t.Fatalf("recommit: %v", err)
	}
	alice.ApplyPendingCommit()
	if _, err := bob.ProcessIncoming(out.Commit); err != nil {
		t.Fatalf("process recommit: %v", err)
	}
	requireSameState(t, alice, bob)
}

func TestGroupStateRoundTrip(t *testing.T) {
	alice, _ := New(newTestIdentity(t, "alice"), nil)
	bob := addMember(t, alice, "bob")

	blob, err := json.Marshal(bob)
	if err != nil {
		t.Fatalf("marshal group: %v", err)
	}
	var restored Group
	if err := json.Unmarshal(blob, &restored); err != nil {
		t.Fatalf("unmarshal group: %v", err)
	}
	requireSameState(t, bob, &restored)

	// The restored state participates in new epochs.
	out, err := alice.Commit()
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	alice.ApplyPendingCommit()
	if _, err := restored.ProcessIncoming(out.Commit); err != nil {
		t.Fatalf("restored group processes commit: %v", err)
	}
	requireSameState(t, alice, &restored)
}

func TestExportSecretAgrees(t *testing.T) {
	alice, _ := New(newTestIdentity(t, "alice"), nil)
	bob := addMember(t, alice, "bob")

	a := alice.ExportSecret("app salt", []byte("ctx"), 32)
	b := bob.ExportSecret("app salt", []byte("ctx"), 32)
	if !bytes.Equal(a, b) {
		t.Fatal("exported secrets diverged")
	}
	if bytes.Equal(a, alice.ExportSecret("other", []byte("ctx"), 32)) {
		t.Fatal("exporter ignores the label")
	}
}
