// Package checkpoint persists and restores a strategy.Snapshot so a crashed
// or interrupted crawl can resume without re-fetching already-visited pages
// (4.H).
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rohmanhakim/deepcrawl/internal/strategy"
	"github.com/rohmanhakim/deepcrawl/pkg/fileutil"
	"github.com/rohmanhakim/deepcrawl/pkg/hashutil"
)

const fileName = "checkpoint.json"

/*
Responsibilities

- Serialize a strategy.Snapshot to durable storage after each checkpoint
  interval
- Guard against a torn write (crash mid-write) by writing to a temp file
  and renaming into place, and by fingerprinting the payload so a partial
  read is detected rather than silently resumed from
- Load the last good snapshot back for Deps.Resume

Checkpointing never blocks the crawl on disk I/O failure: a Save error is
reported to the caller but does not stop traversal, since losing the
ability to resume is recoverable (re-crawl from the seed) while the crawl
itself is not.
*/

// envelope is the on-disk representation: the snapshot plus a fingerprint of
// its own serialized form, computed before the fingerprint field exists so
// the hash covers only the snapshot bytes.
type envelope struct {
	SavedAt  time.Time         `json:"saved_at"`
	Snapshot strategy.Snapshot `json:"snapshot"`
	Hash     string            `json:"hash"`
}

// Store persists snapshots under dir/checkpoint.json.
type Store struct {
	dir string
}

// NewStore returns a Store rooted at dir. dir is created on first Save if it
// does not already exist.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Save writes snapshot to disk, replacing any prior checkpoint atomically.
func (s *Store) Save(snapshot strategy.Snapshot) error {
	if err := fileutil.EnsureDir(s.dir); err != nil {
		return fmt.Errorf("checkpoint: ensure dir: %w", err)
	}

	snapshotBytes, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("checkpoint: marshal snapshot: %w", err)
	}

	hash, err := hashutil.HashBytes(snapshotBytes, hashutil.HashAlgoBLAKE3)
	if err != nil {
		return fmt.Errorf("checkpoint: hash snapshot: %w", err)
	}

	env := envelope{SavedAt: time.Now(), Snapshot: snapshot, Hash: hash}
	envBytes, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return fmt.Errorf("checkpoint: marshal envelope: %w", err)
	}

	target := filepath.Join(s.dir, fileName)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, envBytes, 0644); err != nil {
		return fmt.Errorf("checkpoint: write temp file: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("checkpoint: rename into place: %w", err)
	}
	return nil
}

// Load reads the last saved snapshot. ok is false if no checkpoint exists
// yet; an error is returned only for a checkpoint that exists but is
// corrupt (fingerprint mismatch or malformed JSON) so the caller can decide
// whether to discard it and restart from the seed.
func (s *Store) Load() (snapshot strategy.Snapshot, ok bool, err error) {
	target := filepath.Join(s.dir, fileName)
	data, err := os.ReadFile(target)
	if err != nil {
		if os.IsNotExist(err) {
			return strategy.Snapshot{}, false, nil
		}
		return strategy.Snapshot{}, false, fmt.Errorf("checkpoint: read file: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return strategy.Snapshot{}, false, fmt.Errorf("checkpoint: malformed checkpoint: %w", err)
	}

	snapshotBytes, err := json.Marshal(env.Snapshot)
	if err != nil {
		return strategy.Snapshot{}, false, fmt.Errorf("checkpoint: re-marshal snapshot: %w", err)
	}
	wantHash, err := hashutil.HashBytes(snapshotBytes, hashutil.HashAlgoBLAKE3)
	if err != nil {
		return strategy.Snapshot{}, false, fmt.Errorf("checkpoint: hash snapshot: %w", err)
	}
	if wantHash != env.Hash {
		return strategy.Snapshot{}, false, fmt.Errorf("checkpoint: fingerprint mismatch, checkpoint is corrupt")
	}

	return env.Snapshot, true, nil
}

// Clear removes any saved checkpoint, for a crawl that completed normally
// and has no further use for resume state.
func (s *Store) Clear() error {
	target := filepath.Join(s.dir, fileName)
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("checkpoint: remove file: %w", err)
	}
	return nil
}
