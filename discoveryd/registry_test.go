package discoveryd

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/user/paybeacon/beacon"
)

func testRegistration(token uint32, owner string, ttl time.Duration) Registration {
	now := time.Now()
	return Registration{
		Token:     token,
		Context:   beacon.ContextP2PReceive,
		OwnerID:   owner,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}
}

// TestMemoryRegistry_CreateGetDelete tests the basic lifecycle
func TestMemoryRegistry_CreateGetDelete(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryRegistry()

	reg := testRegistration(0x00010001, "user-alice", time.Minute)
	if err := m.Create(ctx, reg); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := m.Get(ctx, reg.Token)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.OwnerID != "user-alice" {
		t.Errorf("owner = %q", got.OwnerID)
	}

	if err := m.Create(ctx, reg); !errors.Is(err, ErrTokenTaken) {
		t.Errorf("duplicate Create = %v, want ErrTokenTaken", err)
	}

	if err := m.Delete(ctx, reg.Token); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := m.Get(ctx, reg.Token); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete = %v, want ErrNotFound", err)
	}
	if err := m.Delete(ctx, reg.Token); err != nil {
		t.Errorf("repeat Delete = %v, want nil", err)
	}

	t.Logf("✅ Registry lifecycle: create, collide, delete, idempotent delete")
}

// TestMemoryRegistry_Expiry tests that expired records behave as absent
func TestMemoryRegistry_Expiry(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryRegistry()

	reg := testRegistration(0x00010001, "user-alice", 20*time.Millisecond)
	if err := m.Create(ctx, reg); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	time.Sleep(40 * time.Millisecond)

	if _, err := m.Get(ctx, reg.Token); !errors.Is(err, ErrNotFound) {
		t.Errorf("expired Get = %v, want ErrNotFound", err)
	}

	// An expired token is reusable.
	if err := m.Create(ctx, testRegistration(reg.Token, "user-bob", time.Minute)); err != nil {
		t.Errorf("re-Create of expired token = %v", err)
	}

	t.Logf("✅ Expired registrations vanish and free their token")
}

// TestMemoryRegistry_ActiveByContext tests filtered enumeration
func TestMemoryRegistry_ActiveByContext(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryRegistry()

	p2p := testRegistration(0x00000001, "user-alice", time.Minute)
	merchant := testRegistration(0x00000002, "user-bob", time.Minute)
	merchant.Context = beacon.ContextMerchantReceive
	m.Create(ctx, p2p)      //nolint:errcheck
	m.Create(ctx, merchant) //nolint:errcheck

	merchants, err := m.ActiveByContext(ctx, beacon.ContextMerchantReceive)
	if err != nil {
		t.Fatalf("ActiveByContext failed: %v", err)
	}
	if len(merchants) != 1 || merchants[0].OwnerID != "user-bob" {
		t.Errorf("merchant filter returned %+v", merchants)
	}

	all, err := m.ActiveByContext(ctx, "")
	if err != nil {
		t.Fatalf("unfiltered ActiveByContext failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("unfiltered returned %d, want 2", len(all))
	}

	t.Logf("✅ Context filter works, empty filter returns everything")
}

// TestMemoryRegistry_RateWindow tests the fixed-window counter
func TestMemoryRegistry_RateWindow(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryRegistry()

	for want := int64(1); want <= 3; want++ {
		count, _, err := m.IncrementLookup(ctx, "user-carol", 50*time.Millisecond)
		if err != nil {
			t.Fatalf("IncrementLookup failed: %v", err)
		}
		if count != want {
			t.Errorf("count = %d, want %d", count, want)
		}
	}

	// Separate principals count separately.
	if count, _, _ := m.IncrementLookup(ctx, "user-dave", 50*time.Millisecond); count != 1 {
		t.Errorf("other principal count = %d, want 1", count)
	}

	// The window resets after it elapses.
	time.Sleep(70 * time.Millisecond)
	if count, _, _ := m.IncrementLookup(ctx, "user-carol", 50*time.Millisecond); count != 1 {
		t.Errorf("count after window reset = %d, want 1", count)
	}

	t.Logf("✅ Fixed window counts per principal and resets")
}
