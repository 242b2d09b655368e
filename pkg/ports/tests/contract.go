package tests

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/atelierlabs/concierge/pkg/domain"
	"github.com/atelierlabs/concierge/pkg/ports"
)

// RunStateStoreContract is a reusable suite verifying that an adapter
// complies with ports.StateStore, including the compare-and-swap semantics
// every deployment relies on for lost-update prevention.
func RunStateStoreContract(t *testing.T, store ports.StateStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("Load_NotFound", func(t *testing.T) {
		_, err := store.Load(ctx, "contract-missing")
		if err != domain.ErrSessionNotFound {
			t.Fatalf("expected ErrSessionNotFound, got %v", err)
		}
	})

	t.Run("Save_Create_And_Load", func(t *testing.T) {
		state := domain.NewWorkflowState()
		if err := store.Save(ctx, "contract-a", state, 0); err != nil {
			t.Fatalf("create failed: %v", err)
		}
		if state.Version != 1 {
			t.Errorf("expected version 1 after create, got %d", state.Version)
		}

		loaded, err := store.Load(ctx, "contract-a")
		if err != nil {
			t.Fatalf("load failed: %v", err)
		}
		if loaded.Version != 1 || loaded.Stage != domain.StageNoData {
			t.Errorf("unexpected state: version=%d stage=%s", loaded.Version, loaded.Stage)
		}
	})

	t.Run("Save_Create_Conflict_When_Exists", func(t *testing.T) {
		if err := store.Save(ctx, "contract-a", domain.NewWorkflowState(), 0); err != domain.ErrVersionConflict {
			t.Fatalf("expected ErrVersionConflict creating over existing session, got %v", err)
		}
	})

	t.Run("Save_CAS_Advances_Version", func(t *testing.T) {
		state, err := store.Load(ctx, "contract-a")
		if err != nil {
			t.Fatalf("load failed: %v", err)
		}
		state.Advance(domain.StageDataReady, "upload")
		if err := store.Save(ctx, "contract-a", state, state.Version); err != nil {
			t.Fatalf("CAS save failed: %v", err)
		}
		if state.Version != 2 {
			t.Errorf("expected version 2, got %d", state.Version)
		}
	})

	t.Run("Save_Stale_Version_Conflicts", func(t *testing.T) {
		state, err := store.Load(ctx, "contract-a")
		if err != nil {
			t.Fatalf("load failed: %v", err)
		}
		if err := store.Save(ctx, "contract-a", state, state.Version-1); err != domain.ErrVersionConflict {
			t.Fatalf("expected ErrVersionConflict on stale version, got %v", err)
		}
	})

	t.Run("Idempotent_ReRead", func(t *testing.T) {
		first, err := store.Load(ctx, "contract-a")
		if err != nil {
			t.Fatalf("load failed: %v", err)
		}
		second, err := store.Load(ctx, "contract-a")
		if err != nil {
			t.Fatalf("load failed: %v", err)
		}
		a, _ := json.Marshal(first)
		b, _ := json.Marshal(second)
		if string(a) != string(b) {
			t.Errorf("two reads without intervening write differ:\n%s\n%s", a, b)
		}
	})

	t.Run("Concurrent_Writers_Exactly_One_Wins", func(t *testing.T) {
		base := domain.NewWorkflowState()
		if err := store.Save(ctx, "contract-race", base, 0); err != nil {
			t.Fatalf("create failed: %v", err)
		}

		const writers = 8
		var wg sync.WaitGroup
		results := make(chan error, writers)

		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				state, err := store.Load(ctx, "contract-race")
				if err != nil {
					results <- err
					return
				}
				state.Advance(domain.StageDataReady, "racing upload")
				results <- store.Save(ctx, "contract-race", state, 1)
			}()
		}
		wg.Wait()
		close(results)

		var wins, conflicts int
		for err := range results {
			switch err {
			case nil:
				wins++
			case domain.ErrVersionConflict:
				conflicts++
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		if wins != 1 {
			t.Errorf("expected exactly one winning write, got %d (conflicts=%d)", wins, conflicts)
		}

		final, err := store.Load(ctx, "contract-race")
		if err != nil {
			t.Fatalf("load failed: %v", err)
		}
		if final.Version != 2 {
			t.Errorf("expected final version 2, got %d", final.Version)
		}
	})

	t.Run("List_Contains_Saved", func(t *testing.T) {
		sessions, err := store.List(ctx)
		if err != nil {
			t.Fatalf("list failed: %v", err)
		}
		found := false
		for _, id := range sessions {
			if id == "contract-a" {
				found = true
			}
		}
		if !found {
			t.Errorf("expected contract-a in session list, got %v", sessions)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := store.Delete(ctx, "contract-a"); err != nil {
			t.Fatalf("delete failed: %v", err)
		}
		if _, err := store.Load(ctx, "contract-a"); err != domain.ErrSessionNotFound {
			t.Fatalf("expected ErrSessionNotFound after delete, got %v", err)
		}
	})
}
