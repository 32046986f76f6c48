// Package backup takes periodic consistent snapshots of the SQLite store.
package backup

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Service snapshots the live database on an interval and prunes old
// snapshots down to a retention count.
type Service struct {
	db        *sql.DB
	dir       string
	interval  time.Duration
	retention int
}

// NewService creates a backup service writing snapshots into dir.
func NewService(db *sql.DB, dir string, interval time.Duration, retention int) *Service {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	if retention <= 0 {
		retention = 7
	}
	return &Service{db: db, dir: dir, interval: interval, retention: retention}
}

// Run takes snapshots until ctx is cancelled. The first snapshot is taken on
// the first tick, not immediately.
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.Snapshot(); err != nil {
				log.Printf("backup: snapshot failed: %v", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Snapshot writes one consistent snapshot and prunes old ones. VACUUM INTO
// produces a consistent point-in-time copy even under WAL mode.
func (s *Service) Snapshot() error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}

	name := fmt.Sprintf("lattice-%s.db", time.Now().UTC().Format("20060102T150405"))
	dest := filepath.Join(s.dir, name)

	if _, err := s.db.Exec(fmt.Sprintf("VACUUM INTO '%s'", dest)); err != nil {
		return fmt.Errorf("failed to snapshot database: %w", err)
	}

	if err := verify(dest); err != nil {
		return fmt.Errorf("snapshot verification failed: %w", err)
	}

	log.Printf("backup: wrote %s", dest)
	return s.prune()
}

// prune deletes the oldest snapshots beyond the retention count.
func (s *Service) prune() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("failed to list backup directory: %w", err)
	}

	var snapshots []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "lattice-") && strings.HasSuffix(e.Name(), ".db") {
			snapshots = append(snapshots, e.Name())
		}
	}
	if len(snapshots) <= s.retention {
		return nil
	}

	// Timestamped names sort chronologically.
	sort.Strings(snapshots)
	for _, name := range snapshots[:len(snapshots)-s.retention] {
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil {
			log.Printf("backup: failed to prune %s: %v", name, err)
		}
	}
	return nil
}

// verify opens a snapshot read-only and runs SQLite's integrity check.
func verify(path string) error {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro", path))
	if err != nil {
		return fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer func() { _ = db.Close() }()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("failed to run integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}
	return nil
}
