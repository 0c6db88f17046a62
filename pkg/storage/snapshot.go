// Package storage persists catalog snapshots as JSON documents and keeps a
// SQLite history of sync runs and record changes.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/w4lkr/shopsync/pkg/catalog"
)

const (
	productsFile   = "products.json"
	categoriesFile = "categories.json"
	metaFile       = "meta.json"
	scheduleFile   = "schedule.json"
	backupsDir     = "backups"

	// maxBackups bounds the timestamped copies kept per snapshot file.
	maxBackups = 10
)

// Snapshot bundles the persisted catalog state: the item and category
// listings plus the metadata of the run that produced them.
type Snapshot struct {
	Items      []catalog.Item
	Categories []catalog.Category
	Meta       catalog.SyncRun
}

// ScheduleState tracks when the scheduler last completed a productive run.
// It lives in its own document so snapshot rewrites never touch it.
type ScheduleState struct {
	LastRun time.Time `json:"last_run"`
}

// Store reads and writes snapshots under a single directory.
type Store struct {
	dir string
}

func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(dir, backupsDir), 0755); err != nil {
		return nil, err
	}
	return &Store{dir: dir}, nil
}

func (s *Store) Dir() string { return s.dir }

// Load reads the current snapshot. A directory without snapshot files
// yields an empty snapshot, not an error.
func (s *Store) Load() (*Snapshot, error) {
	snap := &Snapshot{}
	if err := readJSON(filepath.Join(s.dir, productsFile), &snap.Items); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err := readJSON(filepath.Join(s.dir, categoriesFile), &snap.Categories); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err := readJSON(filepath.Join(s.dir, metaFile), &snap.Meta); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return snap, nil
}

// Save persists the snapshot. The previous documents are backed up first,
// then each one is written to a temporary file and renamed into place so a
// crash never leaves a half-written snapshot behind.
func (s *Store) Save(snap *Snapshot) error {
	if snap.Items == nil {
		snap.Items = []catalog.Item{}
	}
	if snap.Categories == nil {
		snap.Categories = []catalog.Category{}
	}

	for _, name := range []string{productsFile, categoriesFile, metaFile} {
		if err := s.backup(name); err != nil {
			return err
		}
	}

	if err := writeJSON(filepath.Join(s.dir, productsFile), snap.Items); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(s.dir, categoriesFile), snap.Categories); err != nil {
		return err
	}
	return writeJSON(filepath.Join(s.dir, metaFile), snap.Meta)
}

// LoadSchedule returns the scheduler state, zero when none exists yet.
func (s *Store) LoadSchedule() (ScheduleState, error) {
	var st ScheduleState
	if err := readJSON(filepath.Join(s.dir, scheduleFile), &st); err != nil && !os.IsNotExist(err) {
		return ScheduleState{}, err
	}
	return st, nil
}

func (s *Store) SaveSchedule(st ScheduleState) error {
	return writeJSON(filepath.Join(s.dir, scheduleFile), st)
}

// backup copies name into backups/ with a timestamp suffix and prunes old
// copies beyond maxBackups. Missing files are fine; there is nothing to
// back up on the first sync.
func (s *Store) backup(name string) error {
	src := filepath.Join(s.dir, name)
	data, err := os.ReadFile(src)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	now := time.Now().UTC()
	// Nanoseconds keep names unique when syncs land within one second.
	stamp := fmt.Sprintf("%s-%09d", now.Format("20060102-150405"), now.Nanosecond())
	dst := filepath.Join(s.dir, backupsDir, base+"-"+stamp+ext)
	if err := os.WriteFile(dst, data, 0644); err != nil {
		return err
	}
	return s.pruneBackups(base, ext)
}

func (s *Store) pruneBackups(base, ext string) error {
	entries, err := os.ReadDir(filepath.Join(s.dir, backupsDir))
	if err != nil {
		return err
	}
	var names []string
	for _, e := range entries {
		n := e.Name()
		if strings.HasPrefix(n, base+"-") && strings.HasSuffix(n, ext) {
			names = append(names, n)
		}
	}
	if len(names) <= maxBackups {
		return nil
	}
	sort.Strings(names)
	for _, n := range names[:len(names)-maxBackups] {
		if err := os.Remove(filepath.Join(s.dir, backupsDir, n)); err != nil {
			return err
		}
	}
	return nil
}

// Backups lists the backup file names for one snapshot document, oldest
// first.
func (s *Store) Backups(name string) ([]string, error) {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	entries, err := os.ReadDir(filepath.Join(s.dir, backupsDir))
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		n := e.Name()
		if strings.HasPrefix(n, base+"-") && strings.HasSuffix(n, ext) {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names, nil
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
