package preferences

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	toml "github.com/pelletier/go-toml/v2"
	"go.uber.org/zap"

	"github.com/notexe/reminders/internal/stream"
)

const reloadDebounce = 100 * time.Millisecond

// Store keeps preferences in a TOML file and publishes every change,
// including edits made to the file by other processes.
type Store struct {
	path   string
	logger *zap.SugaredLogger
	live   *stream.Subject[Preferences]

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// Open loads the file at path, creating it with defaults if missing, and
// starts watching it for outside edits.
func Open(path string, logger *zap.SugaredLogger) (*Store, error) {
	if path == "" {
		return nil, errors.New("preferences path is empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	s := &Store{path: abs, logger: logger, done: make(chan struct{})}

	prefs, err := s.load()
	if errors.Is(err, os.ErrNotExist) {
		prefs = Default()
		if err := s.write(prefs); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}
	s.live = stream.NewSubject(prefs)

	if err := s.watch(); err != nil {
		return nil, err
	}
	return s, nil
}

// Current returns the latest preferences.
func (s *Store) Current() Preferences {
	p, _ := s.live.Value()
	return p
}

// Watch streams preferences, starting with the current value.
func (s *Store) Watch(ctx context.Context) (<-chan Preferences, error) {
	return s.live.Subscribe(ctx), nil
}

// UpdateFilter persists a new filter.
func (s *Store) UpdateFilter(f Filter) error {
	if _, err := ParseFilter(string(f)); err != nil {
		return err
	}
	return s.update(func(p *Preferences) { p.Filter = f })
}

// UpdateSortOrder persists a new sort order.
func (s *Store) UpdateSortOrder(o SortOrder) error {
	if _, err := ParseSortOrder(string(o)); err != nil {
		return err
	}
	return s.update(func(p *Preferences) { p.SortOrder = o })
}

// Close stops watching the file.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-s.done:
		return nil
	default:
	}
	close(s.done)
	return s.watcher.Close()
}

func (s *Store) update(change func(*Preferences)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.Current()
	change(&p)
	if err := s.write(p); err != nil {
		return err
	}
	s.publishIfChanged(p)
	return nil
}

func (s *Store) publishIfChanged(p Preferences) {
	if cur, ok := s.live.Value(); ok && cur == p {
		return
	}
	s.live.Publish(p)
}

func (s *Store) load() (Preferences, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return Preferences{}, err
	}
	p := Default()
	if err := toml.Unmarshal(data, &p); err != nil {
		return Preferences{}, fmt.Errorf("failed to parse preferences %s: %w", s.path, err)
	}
	return p.normalize(), nil
}

// write replaces the file atomically so watchers never see a half-written
// document.
func (s *Store) write(p Preferences) error {
	data, err := toml.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode preferences: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write preferences: %w", err)
	}
	return os.Rename(tmp, s.path)
}

// watch follows the containing directory, since editors and our own atomic
// writes replace the file rather than writing it in place.
func (s *Store) watch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(s.path)); err != nil {
		w.Close()
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(s.path), err)
	}
	s.watcher = w

	go s.watchLoop(w)
	return nil
}

func (s *Store) watchLoop(w *fsnotify.Watcher) {
	var debounce *time.Timer

	for {
		select {
		case event, ok := <-w.Events:
			if !ok {
				return
			}
			if event.Name != s.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			// Debounce rapid events
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(reloadDebounce, s.reload)

		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			s.logger.Warnw("preferences watcher error", "err", err)

		case <-s.done:
			if debounce != nil {
				debounce.Stop()
			}
			return
		}
	}
}

func (s *Store) reload() {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-s.done:
		return
	default:
	}

	p, err := s.load()
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warnw("failed to reload preferences", "path", s.path, "err", err)
		}
		return
	}
	if cur := s.Current(); cur != p {
		s.logger.Infow("preferences changed on disk", "filter", p.Filter, "sort", p.SortOrder)
	}
	s.publishIfChanged(p)
}
