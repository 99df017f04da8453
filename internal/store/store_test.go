package store_test

import (
	"bytes"
	"testing"

	"meld/internal/domain"
	"meld/internal/store"
)

func TestIdentity_SaveLoad_OK(t *testing.T) {
	home := t.TempDir()
	pass := "pass"

	var ids domain.IdentityStore = store.NewIdentityFileStore(home)

	id := domain.Identity{
		Name:   "alice",
		EdPub:  domain.Ed25519Public{3},
		EdPriv: domain.Ed25519Private{4},
	}

	if err := ids.SaveIdentity(pass, id); err != nil {
		t.Fatalf("save identity: %v", err)
	}

	got, err := ids.LoadIdentity(pass)
	if err != nil {
		t.Fatalf("load identity: %v", err)
	}
	if got.Name != id.Name || got.EdPub != id.EdPub {
		t.Fatalf("mismatch after load")
	}
}

func TestIdentity_WrongPassphrase_Fails(t *testing.T) {
	home := t.TempDir()
	var ids domain.IdentityStore = store.NewIdentityFileStore(home)

	if err := ids.SaveIdentity("correct", domain.Identity{Name: "alice"}); err != nil {
		t.Fatalf("save identity: %v", err)
	}
	if _, err := ids.LoadIdentity("wrong"); err == nil {
		t.Fatal("expected error with wrong passphrase")
	}
}

func TestKeyPackage_SaveConsume(t *testing.T) {
	home := t.TempDir()
	pass := "pass"
	kps := store.NewKeyPackageFileStore(home)

	p := domain.KeyPackagePrivate{
		Ref:         domain.KeyPackageRef{1, 2, 3},
		InitPrivate: domain.HPKEPrivateKey{9},
		CreatedUTC:  1700000000,
	}
	if err := kps.SaveKeyPackagePrivate(pass, p); err != nil {
		t.Fatalf("save: %v", err)
	}

	refs, err := kps.ListKeyPackageRefs()
	if err != nil || len(refs) != 1 || refs[0] != p.Ref {
		t.Fatalf("list refs: %v %v", refs, err)
	}

	got, ok, err := kps.ConsumeKeyPackagePrivate(pass, p.Ref)
	if err != nil || !ok {
		t.Fatalf("consume: ok=%v err=%v", ok, err)
	}
	if got.InitPrivate != p.InitPrivate {
		t.Fatal("wrong private half")
	}

	// Consumed means gone.
	if _, ok, _ := kps.ConsumeKeyPackagePrivate(pass, p.Ref); ok {
		t.Fatal("consume returned a deleted key package")
	}
}

func TestGroupStore_StateAndCursor(t *testing.T) {
	home := t.TempDir()
	pass := "pass"
	gs := store.NewGroupFileStore(home)

	id := domain.GroupID{0xaa, 0xbb}
	state := []byte(`{"epoch":3}`)

	if err := gs.SaveGroupState(pass, id, state); err != nil {
		t.Fatalf("save state: %v", err)
	}
	got, ok, err := gs.LoadGroupState(pass, id)
	if err != nil || !ok {
		t.Fatalf("load state: ok=%v err=%v", ok, err)
	}
	if !bytes.Equal(got, state) {
		t.Fatalf("state mismatch: %q", got)
	}

	ids, err := gs.ListGroups()
	if err != nil || len(ids) != 1 || !ids[0].Equal(id) {
		t.Fatalf("list groups: %v %v", ids, err)
	}

	if seq, _ := gs.LoadCursor(id); seq != 0 {
		t.Fatalf("fresh cursor = %d", seq)
	}
	if err := gs.SaveCursor(id, 42); err != nil {
		t.Fatalf("save cursor: %v", err)
	}
	if seq, _ := gs.LoadCursor(id); seq != 42 {
		t.Fatalf("cursor = %d, want 42", seq)
	}

	// Unknown group loads as absent, not as an error.
	if _, ok, err := gs.LoadGroupState(pass, domain.GroupID{0x01}); ok || err != nil {
		t.Fatalf("unknown group: ok=%v err=%v", ok, err)
	}
}
