package snapshot

import (
	"path/filepath"
	"testing"

	"github.com/twilight-project/relayer-eisme/internal/materialize"
)

func TestStore_Load_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist.snapshot")
	store := NewStore(path)

	_, _, ok, err := store.Load()
	if err != nil {
		t.Fatalf("expected no error for a missing snapshot file, got %v", err)
	}
	if ok {
		t.Errorf("expected ok=false for a missing snapshot file")
	}
}

func TestStore_SaveThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.snapshot")
	store := NewStore(path)

	state := materialize.Snapshot{
		LatestPrice: 15025000,
		FundingRate: 0.0001,
	}

	if err := store.Save("snapshot-start-1", 42, state); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, offset, ok, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !ok {
		t.Fatalf("expected ok=true after a successful Save")
	}
	if offset != 42 {
		t.Errorf("expected offset 42, got %d", offset)
	}
	if loaded.LatestPrice != state.LatestPrice {
		t.Errorf("expected LatestPrice %d, got %d", state.LatestPrice, loaded.LatestPrice)
	}
	if loaded.FundingRate != state.FundingRate {
		t.Errorf("expected FundingRate %v, got %v", state.FundingRate, loaded.FundingRate)
	}
}
