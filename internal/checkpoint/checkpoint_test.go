package checkpoint_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rohmanhakim/deepcrawl/internal/checkpoint"
	"github.com/rohmanhakim/deepcrawl/internal/strategy"
)

func TestStore_SaveThenLoad_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	store := checkpoint.NewStore(dir)

	snapshot := strategy.Snapshot{
		StrategyTag:  "bfs",
		Visited:      []string{"https://example.com/", "https://example.com/a"},
		Frontier:     []strategy.FrontierEntry{{URL: "https://example.com/b", Depth: 1}},
		Depths:       map[string]int{"https://example.com/a": 1},
		PagesCrawled: 2,
	}

	if err := store.Save(snapshot); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, ok, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !ok {
		t.Fatal("expected checkpoint to exist")
	}
	if got.PagesCrawled != 2 || got.StrategyTag != "bfs" || len(got.Visited) != 2 {
		t.Errorf("Load returned unexpected snapshot: %+v", got)
	}
}

func TestStore_Load_NoCheckpointYet(t *testing.T) {
	store := checkpoint.NewStore(t.TempDir())

	_, ok, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if ok {
		t.Error("expected ok=false when no checkpoint has been saved")
	}
}

func TestStore_Load_CorruptFingerprint(t *testing.T) {
	dir := t.TempDir()
	store := checkpoint.NewStore(dir)

	if err := store.Save(strategy.Snapshot{StrategyTag: "dfs", PagesCrawled: 1}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	path := filepath.Join(dir, "checkpoint.json")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	tampered := []byte(string(data) + " ")
	tampered[len(tampered)-10] = 'x'
	if err := os.WriteFile(path, tampered, 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	_, ok, err := store.Load()
	if err == nil && ok {
		t.Error("expected Load to reject a tampered checkpoint")
	}
}

func TestStore_Clear_RemovesCheckpoint(t *testing.T) {
	dir := t.TempDir()
	store := checkpoint.NewStore(dir)

	if err := store.Save(strategy.Snapshot{StrategyTag: "best_first"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	_, ok, err := store.Load()
	if err != nil {
		t.Fatalf("Load after Clear: %v", err)
	}
	if ok {
		t.Error("expected no checkpoint after Clear")
	}
}

func TestStore_Clear_NoCheckpoint_NoError(t *testing.T) {
	store := checkpoint.NewStore(t.TempDir())
	if err := store.Clear(); err != nil {
		t.Errorf("Clear on empty store should be a no-op, got %v", err)
	}
}
