package identity_test

import (
	"errors"
	"testing"

	"meld/internal/services/identity"
	"meld/internal/store"
)

func TestGenerateRejectsWeakPassphrase(t *testing.T) {
	svc := identity.New(store.NewIdentityFileStore(t.TempDir()))

	weak := []string{
		"short1!A",
		"alllowercase9!",
		"NOLOWERCASE9!",
		"NoDigitsHere!",
		"NoSymbolsHere9",
	}
	for _, p := range weak {
		if _, _, err := svc.GenerateIdentity(p, "alice"); !errors.Is(err, identity.ErrWeakPassphrase) {
			t.Errorf("passphrase %q: err = %v, want ErrWeakPassphrase", p, err)
		}
	}
}

func TestGenerateLoadFingerprint(t *testing.T) {
	svc := identity.New(store.NewIdentityFileStore(t.TempDir()))
	const pass = "Correct Horse Battery 9!"

	id, fp, err := svc.GenerateIdentity(pass, "alice")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if id.Name != "alice" || fp == "" {
		t.Fatalf("unexpected identity %+v fingerprint %q", id, fp)
	}

	loaded, err := svc.LoadIdentity(pass)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.EdPub != id.EdPub {
		t.Fatal("loaded identity differs from generated")
	}

	got, err := svc.FingerprintIdentity(pass)
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	if got != fp {
		t.Fatalf("fingerprint %q, want %q", got, fp)
	}
}
