package groups_test

import (
	"bytes"
	"context"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"meld/internal/delivery"
	"meld/internal/domain"
	"meld/internal/services/groups"
	"meld/internal/services/identity"
	"meld/internal/services/keypackage"
	"meld/internal/services/message"
	"meld/internal/store"
)

const testPassphrase = "Correct Horse Battery Staple 9!"

// client is one user's full service stack backed by its own home directory
// and sharing a single delivery server.
type client struct {
	name     domain.Username
	groups   *groups.Service
	messages *message.Service
	packages *keypackage.Service
}

func newClient(t *testing.T, base string, name domain.Username) *client {
	t.Helper()
	dir := t.TempDir()
	idStore := store.NewIdentityFileStore(dir)
	kpStore := store.NewKeyPackageFileStore(dir)
	groupStore := store.NewGroupFileStore(dir)
	dc := delivery.NewHTTP(base, nil)

	ids := identity.New(idStore)
	if _, _, err := ids.GenerateIdentity(testPassphrase, name); err != nil {
		t.Fatalf("generate identity for %s: %v", name, err)
	}
	gs := groups.New(idStore, kpStore, groupStore, dc)
	return &client{
		name:     name,
		groups:   gs,
		messages: message.New(groupStore, gs, dc),
		packages: keypackage.New(idStore, kpStore, dc),
	}
}

func startDelivery(t *testing.T) string {
	t.Helper()
	srv := delivery.NewServer(zerolog.Nop())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts.URL
}

func publish(t *testing.T, c *client) {
	t.Helper()
	if _, err := c.packages.GenerateAndPublish(context.Background(), testPassphrase, 2); err != nil {
		t.Fatalf("publish key packages for %s: %v", c.name, err)
	}
}

func join(t *testing.T, c *client, want domain.GroupID) {
	t.Helper()
	joined, err := c.groups.JoinFromWelcomes(context.Background(), testPassphrase)
	if err != nil {
		t.Fatalf("%s join: %v", c.name, err)
	}
	if len(joined) != 1 || !joined[0].Equal(want) {
		t.Fatalf("%s joined %v, want [%x]", c.name, joined, want)
	}
}

func TestCreateAddAndMessage(t *testing.T) {
	base := startDelivery(t)
	ctx := context.Background()

	alice := newClient(t, base, "alice")
	bob := newClient(t, base, "bob")
	publish(t, bob)

	gid, err := alice.groups.CreateGroup(ctx, testPassphrase)
	if err != nil {
		t.Fatalf("create group: %v", err)
	}

	update, err := alice.groups.AddMember(ctx, testPassphrase, gid, "bob")
	if err != nil {
		t.Fatalf("add bob: %v", err)
	}
	if len(update.Added) != 1 || !bytes.Equal(update.Added[0].Identity, []byte("bob")) {
		t.Fatalf("unexpected add result: %+v", update)
	}

	join(t, bob, gid)

	roster, err := bob.groups.Roster(testPassphrase, gid)
	if err != nil {
		t.Fatalf("roster: %v", err)
	}
	if len(roster) != 2 {
		t.Fatalf("roster has %d members, want 2", len(roster))
	}

	if err := alice.messages.SendMessage(ctx, testPassphrase, gid, []byte("hello bob")); err != nil {
		t.Fatalf("send: %v", err)
	}
	got, err := bob.messages.ReceiveMessages(ctx, testPassphrase, gid)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if len(got) != 1 || string(got[0].Plaintext) != "hello bob" {
		t.Fatalf("bob received %v", got)
	}
	if !bytes.Equal(got[0].From, []byte("alice")) {
		t.Fatalf("sender = %q, want alice", got[0].From)
	}

	// A second receive returns nothing new.
	again, err := bob.messages.ReceiveMessages(ctx, testPassphrase, gid)
	if err != nil {
		t.Fatalf("second receive: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("second receive returned %d messages", len(again))
	}
}

func TestThreeMembersConverge(t *testing.T) {
	base := startDelivery(t)
	ctx := context.Background()

	alice := newClient(t, base, "alice")
	bob := newClient(t, base, "bob")
	carol := newClient(t, base, "carol")
	publish(t, bob)
	publish(t, carol)

	gid, err := alice.groups.CreateGroup(ctx, testPassphrase)
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	if _, err := alice.groups.AddMember(ctx, testPassphrase, gid, "bob"); err != nil {
		t.Fatalf("add bob: %v", err)
	}
	join(t, bob, gid)
	if _, err := bob.groups.AddMember(ctx, testPassphrase, gid, "carol"); err != nil {
		t.Fatalf("bob adds carol: %v", err)
	}
	join(t, carol, gid)

	// Everyone can message everyone after syncing past both commits.
	if err := carol.messages.SendMessage(ctx, testPassphrase, gid, []byte("hi all")); err != nil {
		t.Fatalf("carol send: %v", err)
	}
	for _, c := range []*client{alice, bob} {
		got, err := c.messages.ReceiveMessages(ctx, testPassphrase, gid)
		if err != nil {
			t.Fatalf("%s receive: %v", c.name, err)
		}
		if len(got) != 1 || string(got[0].Plaintext) != "hi all" {
			t.Fatalf("%s received %v", c.name, got)
		}
	}
}

func TestRemoveMemberLocksOut(t *testing.T) {
	base := startDelivery(t)
	ctx := context.Background()

	alice := newClient(t, base, "alice")
	bob := newClient(t, base, "bob")
	publish(t, bob)

	gid, err := alice.groups.CreateGroup(ctx, testPassphrase)
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	if _, err := alice.groups.AddMember(ctx, testPassphrase, gid, "bob"); err != nil {
		t.Fatalf("add bob: %v", err)
	}
	join(t, bob, gid)

	update, err := alice.groups.RemoveMember(ctx, testPassphrase, gid, "bob")
	if err != nil {
		t.Fatalf("remove bob: %v", err)
	}
	if len(update.Removed) != 1 {
		t.Fatalf("unexpected remove result: %+v", update)
	}

	if err := alice.messages.SendMessage(ctx, testPassphrase, gid, []byte("after removal")); err != nil {
		t.Fatalf("send after removal: %v", err)
	}
	// Bob syncs, sees his own removal, and cannot read the new epoch.
	got, err := bob.messages.ReceiveMessages(ctx, testPassphrase, gid)
	if err != nil {
		t.Fatalf("bob receive: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("removed member decrypted %v", got)
	}

	if _, err := alice.groups.RemoveMember(ctx, testPassphrase, gid, "bob"); err != groups.ErrMemberNotFound {
		t.Fatalf("second removal err = %v, want ErrMemberNotFound", err)
	}
}

func TestUpdateSelfRotatesEpoch(t *testing.T) {
	base := startDelivery(t)
	ctx := context.Background()

	alice := newClient(t, base, "alice")
	bob := newClient(t, base, "bob")
	publish(t, bob)

	gid, err := alice.groups.CreateGroup(ctx, testPassphrase)
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	if _, err := alice.groups.AddMember(ctx, testPassphrase, gid, "bob"); err != nil {
		t.Fatalf("add bob: %v", err)
	}
	join(t, bob, gid)

	before, err := alice.groups.UpdateSelf(ctx, testPassphrase, gid)
	if err != nil {
		t.Fatalf("update self: %v", err)
	}
	if before.Epoch != 2 {
		t.Fatalf("epoch after update = %d, want 2", before.Epoch)
	}

	// Bob follows the empty commit and messaging still works both ways.
	if err := bob.groups.Sync(ctx, testPassphrase, gid); err != nil {
		t.Fatalf("bob sync: %v", err)
	}
	if err := bob.messages.SendMessage(ctx, testPassphrase, gid, []byte("post-rotation")); err != nil {
		t.Fatalf("bob send: %v", err)
	}
	got, err := alice.messages.ReceiveMessages(ctx, testPassphrase, gid)
	if err != nil {
		t.Fatalf("alice receive: %v", err)
	}
	if len(got) != 1 || string(got[0].Plaintext) != "post-rotation" {
		t.Fatalf("alice received %v", got)
	}
}

func TestSyncSkipsUndecodableMessages(t *testing.T) {
	base := startDelivery(t)
	ctx := context.Background()

	alice := newClient(t, base, "alice")
	bob := newClient(t, base, "bob")
	publish(t, bob)

	gid, err := alice.groups.CreateGroup(ctx, testPassphrase)
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	if _, err := alice.groups.AddMember(ctx, testPassphrase, gid, "bob"); err != nil {
		t.Fatalf("add bob: %v", err)
	}
	join(t, bob, gid)

	// Anyone can post to the shared queue; garbage must not wedge readers.
	raw := delivery.NewHTTP(base, nil)
	if _, err := raw.PostGroupMessage(ctx, gid, []byte("not an mls message")); err != nil {
		t.Fatalf("post garbage: %v", err)
	}
	if err := alice.messages.SendMessage(ctx, testPassphrase, gid, []byte("after garbage")); err != nil {
		t.Fatalf("send: %v", err)
	}

	got, err := bob.messages.ReceiveMessages(ctx, testPassphrase, gid)
	if err != nil {
		t.Fatalf("receive past garbage: %v", err)
	}
	if len(got) != 1 || string(got[0].Plaintext) != "after garbage" {
		t.Fatalf("bob received %v", got)
	}

	// The cursor moved past the garbage, so a resync stays clean and empty.
	again, err := bob.messages.ReceiveMessages(ctx, testPassphrase, gid)
	if err != nil {
		t.Fatalf("resync: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("resync returned %d messages", len(again))
	}
}

func TestListGroups(t *testing.T) {
	base := startDelivery(t)
	ctx := context.Background()

	alice := newClient(t, base, "alice")
	g1, err := alice.groups.CreateGroup(ctx, testPassphrase)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	g2, err := alice.groups.CreateGroup(ctx, testPassphrase)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	ids, err := alice.groups.ListGroups()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("listed %d groups, want 2", len(ids))
	}
	seen := map[string]bool{}
	for _, id := range ids {
		seen[string(id)] = true
	}
	if !seen[string(g1)] || !seen[string(g2)] {
		t.Fatalf("listing missing a created group")
	}
}

func TestUnknownGroup(t *testing.T) {
	base := startDelivery(t)
	alice := newClient(t, base, "alice")
	if err := alice.groups.Sync(context.Background(), testPassphrase, domain.GroupID("nope")); err != groups.ErrGroupNotFound {
		t.Fatalf("sync unknown group err = %v, want ErrGroupNotFound", err)
	}
}
