package message_test

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"meld/internal/delivery"
	"meld/internal/domain"
	"meld/internal/services/groups"
	"meld/internal/services/identity"
	"meld/internal/services/message"
	"meld/internal/store"
)

const testPassphrase = "Correct Horse Battery Staple 9!"

func newStack(t *testing.T) (*groups.Service, *message.Service) {
	t.Helper()
	srv := delivery.NewServer(zerolog.Nop())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	dir := t.TempDir()
	idStore := store.NewIdentityFileStore(dir)
	kpStore := store.NewKeyPackageFileStore(dir)
	groupStore := store.NewGroupFileStore(dir)
	dc := delivery.NewHTTP(ts.URL, nil)

	if _, _, err := identity.New(idStore).GenerateIdentity(testPassphrase, "alice"); err != nil {
		t.Fatalf("generate identity: %v", err)
	}
	gs := groups.New(idStore, kpStore, groupStore, dc)
	return gs, message.New(groupStore, gs, dc)
}

func TestSendUnknownGroup(t *testing.T) {
	_, ms := newStack(t)
	err := ms.SendMessage(context.Background(), testPassphrase, domain.GroupID("nope"), []byte("x"))
	if err != message.ErrGroupNotFound {
		t.Fatalf("err = %v, want ErrGroupNotFound", err)
	}
}

func TestOwnMessagesNotReturned(t *testing.T) {
	gs, ms := newStack(t)
	ctx := context.Background()

	gid, err := gs.CreateGroup(ctx, testPassphrase)
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	if err := ms.SendMessage(ctx, testPassphrase, gid, []byte("note to self")); err != nil {
		t.Fatalf("send: %v", err)
	}

	// Our own traffic echoes back through the queue but is never replayed
	// to us; the sending key was consumed at encrypt time.
	got, err := ms.ReceiveMessages(ctx, testPassphrase, gid)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("received own message back: %v", got)
	}
}
