package persist

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"

	"pkt.systems/pslog"
)

// Document keys, one JSON file each.
const (
	KeyHistory   = "history"
	KeyBookmarks = "bookmarks"
	KeySession   = "session"
	KeySettings  = "settings"
	KeyNotes     = "notes"
)

// Store persists shell documents to disk. Read-modify-write sequences on the
// same key are serialized; different keys proceed independently.
type Store struct {
	dir string
	log pslog.Logger

	mu   sync.Mutex
	keys map[string]*sync.Mutex

	now   func() time.Time
	newID func() string
}

// NewStore constructs a persistent store at the given directory.
func NewStore(dir string) (*Store, error) {
	return NewStoreWithLogger(dir, nil)
}

// NewStoreWithLogger constructs a persistent store with logging.
func NewStoreWithLogger(dir string, logger pslog.Logger) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("state directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	if logger != nil {
		logger = logger.With("state_dir", dir)
	}
	return &Store{
		dir:   dir,
		log:   logger,
		keys:  make(map[string]*sync.Mutex),
		now:   time.Now,
		newID: func() string { return uuid.NewString() },
	}, nil
}

func (s *Store) lockKey(key string) func() {
	s.mu.Lock()
	m := s.keys[key]
	if m == nil {
		m = &sync.Mutex{}
		s.keys[key] = m
	}
	s.mu.Unlock()
	m.Lock()
	return m.Unlock
}

// view reads a document under its key lock.
func (s *Store) view(key string, target any) (bool, error) {
	unlock := s.lockKey(key)
	defer unlock()
	return s.load(key, target)
}

// update runs a read-modify-write cycle on one document.
func (s *Store) update(key string, target any, mutate func(found bool) (bool, error)) error {
	unlock := s.lockKey(key)
	defer unlock()
	found, err := s.load(key, target)
	if err != nil {
		return err
	}
	changed, err := mutate(found)
	if err != nil || !changed {
		return err
	}
	return s.save(key, target)
}

func (s *Store) load(key string, target any) (bool, error) {
	path := s.pathForKey(key)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if s.log != nil {
				s.log.Debug("state load miss", "key", key)
			}
			return false, nil
		}
		if s.log != nil {
			s.log.Warn("state load failed", "key", key, "err", err)
		}
		return false, err
	}
	if err := json.Unmarshal(data, target); err != nil {
		if s.log != nil {
			s.log.Warn("state load failed", "key", key, "err", err)
		}
		return false, err
	}
	if s.log != nil {
		s.log.Trace("state load ok", "key", key, "bytes", len(data))
	}
	return true, nil
}

func (s *Store) save(key string, value any) error {
	path := s.pathForKey(key)
	fail := func(err error) error {
		if s.log != nil {
			s.log.Warn("state save failed", "key", key, "err", err)
		}
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fail(err)
	}
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fail(err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), key+"-*.json")
	if err != nil {
		return fail(err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fail(err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fail(err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fail(err)
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		_ = os.Remove(tmp.Name())
		return fail(err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fail(err)
	}
	if s.log != nil {
		s.log.Trace("state save ok", "key", key, "bytes", len(data))
	}
	return nil
}

func (s *Store) pathForKey(key string) string {
	name := sanitize(key)
	if name == "" {
		name = "unknown"
	}
	return filepath.Join(s.dir, name+".json")
}

func sanitize(value string) string {
	var b strings.Builder
	for _, r := range value {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			continue
		}
		if r == '-' || r == '_' || r == '.' {
			b.WriteRune(r)
			continue
		}
		b.WriteRune('_')
	}
	return b.String()
}
