package storage

import (
	"testing"

	"github.com/nabta-labs/leafscope/internal/models"
)

func TestBeginAndSnapshot(t *testing.T) {
	store := New()

	gen := store.Begin("default", models.NewSession("run-1"), nil)
	if gen != 1 {
		t.Errorf("first generation: got %d, want 1", gen)
	}

	snap, ok := store.Snapshot("default")
	if !ok {
		t.Fatal("expected session snapshot")
	}
	if snap.ID != "run-1" || snap.Stage != models.StageUpload {
		t.Errorf("snapshot: %+v", snap)
	}
}

func TestUpdate_StaleGenerationRejected(t *testing.T) {
	store := New()

	oldGen := store.Begin("default", models.NewSession("run-1"), nil)

	// A re-upload supersedes the first run.
	newGen := store.Begin("default", models.NewSession("run-2"), nil)
	if newGen <= oldGen {
		t.Fatalf("generation must increase: %d -> %d", oldGen, newGen)
	}

	// Late-arriving result from the first run must be dropped.
	applied := store.Update("default", oldGen, func(s *models.Session) {
		s.Regions = append(s.Regions, models.RegionRecord{})
	})
	if applied {
		t.Error("stale update was applied")
	}

	snap, _ := store.Snapshot("default")
	if snap.ID != "run-2" || len(snap.Regions) != 0 {
		t.Errorf("newer session polluted by stale run: %+v", snap)
	}

	// The current run still goes through.
	if !store.Update("default", newGen, func(s *models.Session) { s.Stage = models.StageDetect }) {
		t.Error("current-generation update was rejected")
	}
}

func TestBegin_CancelsPreviousRun(t *testing.T) {
	store := New()

	cancelled := false
	store.Begin("default", models.NewSession("run-1"), func() { cancelled = true })
	store.Begin("default", models.NewSession("run-2"), nil)

	if !cancelled {
		t.Error("superseded run's context was not cancelled")
	}
}

func TestReset_DiscardsResults(t *testing.T) {
	store := New()

	gen := store.Begin("default", models.NewSession("run-1"), nil)
	store.Update("default", gen, func(s *models.Session) {
		s.Stage = models.StageDone
		s.Regions = append(s.Regions, models.RegionRecord{})
	})

	store.Reset("default", models.NewSession("run-1-reset"))

	snap, _ := store.Snapshot("default")
	if snap.Stage != models.StageUpload || len(snap.Regions) != 0 {
		t.Errorf("reset did not return slot to initial state: %+v", snap)
	}

	// The old generation is dead after reset.
	if store.Update("default", gen, func(s *models.Session) {}) {
		t.Error("update for pre-reset generation was applied")
	}
}

func TestSnapshot_IsolatedFromMutation(t *testing.T) {
	store := New()

	gen := store.Begin("default", models.NewSession("run-1"), nil)
	store.Update("default", gen, func(s *models.Session) {
		s.Regions = append(s.Regions, models.RegionRecord{Box: models.BoundingBox{X2: 10, Y2: 10}})
	})

	snap, _ := store.Snapshot("default")
	snap.Regions[0].Box.X2 = 999

	fresh, _ := store.Snapshot("default")
	if fresh.Regions[0].Box.X2 != 10 {
		t.Error("snapshot shares region slice with stored session")
	}
}

func TestMutate_MissingSlot(t *testing.T) {
	store := New()

	if store.Mutate("nope", func(s *models.Session) {}) {
		t.Error("Mutate on missing slot should report false")
	}
	if _, ok := store.Snapshot("nope"); ok {
		t.Error("Snapshot on missing slot should report false")
	}
}
