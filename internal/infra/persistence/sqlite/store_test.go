package sqlite

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"transplantcore/internal/waitlist"
	"transplantcore/pkg/domain"
)

func openStore(t *testing.T, path string, drawer waitlist.PriorityDrawer) *Store {
	t.Helper()
	store, err := NewStore(path, domain.NewRulesEngine(), drawer)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStorePersistAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.db")
	store := openStore(t, path, waitlist.NewSequenceDrawer(3, 8))
	ctx := context.Background()
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		for _, id := range []string{"P1", "P2"} {
			if _, err := tx.EnqueuePatient(domain.Patient{ID: id, BloodType: domain.BloodAPos, WeightKG: 70}); err != nil {
				return err
			}
		}
		_, err := tx.CreateOrgan(domain.Organ{ID: "O1", BloodType: domain.BloodAPos, WeightGrams: 350})
		return err
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if store.Path() != path {
		t.Fatalf("unexpected path %s", store.Path())
	}

	reloaded := openStore(t, path, nil)
	got := reloaded.ListWaitlist()
	if len(got) != 2 || got[0].Patient.ID != "P2" || got[0].Priority != 8 || got[1].Priority != 3 {
		t.Fatalf("unexpected reloaded waitlist %+v", got)
	}
	if _, ok := reloaded.GetOrgan("O1"); !ok {
		t.Fatalf("expected reloaded organ")
	}
}

func TestSQLiteStoreWritesEveryBucket(t *testing.T) {
	store := openStore(t, filepath.Join(t.TempDir(), "state.db"), nil)
	if _, err := store.RunInTransaction(context.Background(), func(domain.Transaction) error { return nil }); err != nil {
		t.Fatalf("empty transaction: %v", err)
	}
	var count int
	if err := store.DB().QueryRow(`SELECT COUNT(*) FROM state`).Scan(&count); err != nil {
		t.Fatalf("count buckets: %v", err)
	}
	if count != 4 {
		t.Fatalf("expected 4 buckets, got %d", count)
	}
}

func TestSQLiteStoreFailedTransactionNotPersisted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	store := openStore(t, path, nil)
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if _, err := tx.CreateOrgan(domain.Organ{ID: "O1"}); err != nil {
			return err
		}
		_, err := tx.CreateOrgan(domain.Organ{ID: "O1"})
		return err
	})
	if !domain.IsDuplicate(err) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
	if len(openStore(t, path, nil).ListOrgans()) != 0 {
		t.Fatalf("failed transaction must not be persisted")
	}
}

func TestSQLiteStoreWriteFailureRestoresMemory(t *testing.T) {
	store := openStore(t, filepath.Join(t.TempDir(), "state.db"), waitlist.NewSequenceDrawer(4, 7))
	ctx := context.Background()
	enqueue := func(id string) func(domain.Transaction) error {
		return func(tx domain.Transaction) error {
			_, err := tx.EnqueuePatient(domain.Patient{ID: id})
			return err
		}
	}
	if _, err := store.RunInTransaction(ctx, enqueue("P1")); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := store.DB().Exec(`DROP TABLE state`); err != nil {
		t.Fatalf("drop state: %v", err)
	}
	if _, err := store.RunInTransaction(ctx, enqueue("P2")); err == nil {
		t.Fatalf("expected snapshot write to fail")
	}
	got := store.ListWaitlist()
	if len(got) != 1 || got[0].Patient.ID != "P1" || got[0].Priority != 4 {
		t.Fatalf("expected only P1 after failed write, got %+v", got)
	}
	if _, ok := store.GetPatient("P2"); ok {
		t.Fatalf("P2 should not be registered after failed write")
	}
}

func TestSQLiteStoreLoadInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	store := openStore(t, path, nil)
	if _, err := store.DB().Exec(`INSERT INTO state(bucket,payload) VALUES('waitlist', '{not json')`); err != nil {
		t.Fatalf("seed invalid payload: %v", err)
	}
	_, err := NewStore(path, domain.NewRulesEngine(), nil)
	if err == nil || !strings.Contains(err.Error(), "decode waitlist") {
		t.Fatalf("expected decode error, got %v", err)
	}
}

func TestSQLiteStoreLoadRejectsUnorderedWaitlist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	store := openStore(t, path, nil)
	payload := `[{"patient":{"id":"A"},"priority":1},{"patient":{"id":"B"},"priority":9}]`
	if _, err := store.DB().Exec(`INSERT INTO state(bucket,payload) VALUES('waitlist', ?)`, payload); err != nil {
		t.Fatalf("seed payload: %v", err)
	}
	if _, err := NewStore(path, domain.NewRulesEngine(), nil); err == nil {
		t.Fatalf("expected unordered waitlist to be rejected")
	}
}
