package registry

import (
	"context"
	"errors"
	"testing"
)

func newTestService() *Service {
	cipher := DeriveTokenCipher([]byte("test-broker-private-key-material"))
	return NewService(NewMemoryStore(), cipher)
}

func TestLifecyclePendingToActive(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	hash := HashAuthCode("one-time-code")
	if err := svc.CreatePending(ctx, "T123", "Acme", "xoxb-secret", hash); err != nil {
		t.Fatalf("create pending: %v", err)
	}

	rec, err := svc.Get(ctx, "T123")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Status != StatusPending {
		t.Fatalf("status = %q, want pending", rec.Status)
	}
	if rec.BotToken != "xoxb-secret" {
		t.Fatalf("bot token not transparently decrypted: %q", rec.BotToken)
	}
	if !CheckAuthCode(rec, "one-time-code") {
		t.Fatal("stored auth code hash does not match the code")
	}
	if CheckAuthCode(rec, "wrong-code") {
		t.Fatal("wrong auth code accepted")
	}

	activated, err := svc.Activate(ctx, "T123", "https://tenant.example/hook", "pub", "signpub")
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	if activated == nil {
		t.Fatal("activation of a pending workspace returned nil")
	}
	if activated.Status != StatusActive || activated.ServerURL == "" || activated.ServerPubKey == "" || activated.ServerSigningKey == "" {
		t.Fatalf("active record incomplete: %+v", activated)
	}
	if activated.AuthCodeHash != "" {
		t.Fatal("auth code hash not cleared on activation")
	}
}

func TestActivateMissingWorkspace(t *testing.T) {
	svc := newTestService()
	rec, err := svc.Activate(context.Background(), "T404", "https://x", "pub", "signpub")
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	if rec != nil {
		t.Fatal("activation of an unknown workspace succeeded")
	}
}

func TestActivateAlreadyActive(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	svc.CreatePending(ctx, "T123", "Acme", "tok", HashAuthCode("c"))
	if rec, _ := svc.Activate(ctx, "T123", "https://first", "pub1", "sign1"); rec == nil {
		t.Fatal("first activation failed")
	}

	rec, err := svc.Activate(ctx, "T123", "https://second", "pub2", "sign2")
	if err != nil {
		t.Fatalf("second activate: %v", err)
	}
	if rec != nil {
		t.Fatal("second activation silently re-keyed an active workspace")
	}

	got, _ := svc.Get(ctx, "T123")
	if got.ServerURL != "https://first" {
		t.Fatalf("server_url = %q, first activation did not win", got.ServerURL)
	}
}

func TestDeactivateClearsServerFields(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	svc.CreatePending(ctx, "T123", "Acme", "tok", HashAuthCode("c"))
	svc.Activate(ctx, "T123", "https://tenant.example", "pub", "signpub")

	ok, err := svc.Deactivate(ctx, "T123")
	if err != nil || !ok {
		t.Fatalf("deactivate = (%v, %v), want (true, nil)", ok, err)
	}

	rec, _ := svc.Get(ctx, "T123")
	if rec.Status != StatusInactive {
		t.Fatalf("status = %q, want inactive", rec.Status)
	}
	if rec.ServerURL != "" || rec.ServerPubKey != "" || rec.ServerSigningKey != "" {
		t.Fatalf("server fields survived deactivation: %+v", rec)
	}
}

func TestDeactivateMissingWorkspace(t *testing.T) {
	svc := newTestService()
	ok, err := svc.Deactivate(context.Background(), "T404")
	if err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if ok {
		t.Fatal("deactivation of an unknown workspace reported success")
	}
}

func TestCreatePendingOverwritesExisting(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	svc.CreatePending(ctx, "T123", "Acme", "tok-old", HashAuthCode("old"))
	svc.Activate(ctx, "T123", "https://tenant.example", "pub", "signpub")

	// A fresh OAuth install supersedes the active registration.
	if err := svc.CreatePending(ctx, "T123", "Acme v2", "tok-new", HashAuthCode("new")); err != nil {
		t.Fatalf("create pending over active: %v", err)
	}
	rec, _ := svc.Get(ctx, "T123")
	if rec.Status != StatusPending || rec.BotToken != "tok-new" || rec.TeamName != "Acme v2" {
		t.Fatalf("reinstall did not supersede: %+v", rec)
	}
	if rec.ServerURL != "" {
		t.Fatal("stale server_url carried into fresh pending record")
	}
}

func TestStorePutVersionConflict(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	first := &Record{WorkspaceID: "T1", Status: StatusPending}
	if err := store.Put(ctx, first, 0); err != nil {
		t.Fatalf("initial put: %v", err)
	}

	// Two readers loaded version 1; only the first writer may win.
	a, _ := store.Get(ctx, "T1")
	b, _ := store.Get(ctx, "T1")

	a.Status = StatusActive
	if err := store.Put(ctx, a, a.Version); err != nil {
		t.Fatalf("first conditional put: %v", err)
	}
	b.Status = StatusActive
	if err := store.Put(ctx, b, b.Version); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("second conditional put: err = %v, want ErrVersionConflict", err)
	}
}
