package reminder

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/notexe/reminders/internal/stream"

	_ "modernc.org/sqlite"
)

// Settle time after the last write seen on disk before the table is re-read.
const outsideWriteDebounce = 100 * time.Millisecond

// Store provides SQLite-backed storage for reminders and publishes the full
// collection after every change, including commits made by other processes
// sharing the database file.
type Store struct {
	db     *sql.DB
	path   string
	logger *zap.SugaredLogger
	live   *stream.Subject[[]Reminder]

	// serializes mutate-then-publish so snapshots go out in commit order
	writeMu     sync.Mutex
	dataVersion int64
	watcher     *fsnotify.Watcher
	done        chan struct{}
	closeOnce   sync.Once
}

// NewStore opens (or creates) the SQLite database at dbPath and
// ensures the reminders table exists. A nil logger discards output.
func NewStore(dbPath string, logger *zap.SugaredLogger) (*Store, error) {
	if dbPath == "" {
		return nil, errors.New("db path is empty")
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	fileBacked := !strings.HasPrefix(dbPath, "file:")
	if fileBacked {
		abs, err := filepath.Abs(dbPath)
		if err == nil {
			dbPath = abs
		}
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", sqliteDSN(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if err := createTable(db); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db, path: dbPath, logger: logger, done: make(chan struct{})}
	if s.dataVersion, err = s.readDataVersion(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	initial, err := s.List(context.Background())
	if err != nil {
		db.Close()
		return nil, err
	}
	s.live = stream.NewSubject(initial)

	if fileBacked {
		if err := s.watch(); err != nil {
			db.Close()
			return nil, err
		}
	}

	return s, nil
}

func createTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS reminders (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			name          TEXT    NOT NULL,
			start_at      TEXT    NOT NULL,
			repeat_amount INTEGER DEFAULT NULL,
			repeat_unit   TEXT    DEFAULT NULL,
			notes         TEXT    NOT NULL DEFAULT '',
			notify        INTEGER NOT NULL DEFAULT 0,
			completed     INTEGER NOT NULL DEFAULT 0
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	return nil
}

// Close stops watching for outside writes and closes the database.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		s.writeMu.Lock()
		close(s.done)
		s.writeMu.Unlock()
		if s.watcher != nil {
			s.watcher.Close()
		}
	})
	return s.db.Close()
}

// Insert stores a new reminder and returns its assigned ID.
func (s *Store) Insert(ctx context.Context, r Reminder) (int64, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	amount, unit := repeatColumns(r.RepeatInterval)

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO reminders (name, start_at, repeat_amount, repeat_unit, notes, notify, completed)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, r.Name, r.StartDateTime.Format(time.RFC3339Nano), amount, unit,
		r.Notes, r.Notify, r.Completed)
	if err != nil {
		return 0, fmt.Errorf("failed to insert reminder: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get inserted ID: %w", err)
	}

	s.publish(ctx)
	return id, nil
}

// Update replaces every column of the reminder with the same ID.
func (s *Store) Update(ctx context.Context, r Reminder) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	amount, unit := repeatColumns(r.RepeatInterval)

	result, err := s.db.ExecContext(ctx, `
		UPDATE reminders
		SET name = ?, start_at = ?, repeat_amount = ?, repeat_unit = ?, notes = ?, notify = ?, completed = ?
		WHERE id = ?
	`, r.Name, r.StartDateTime.Format(time.RFC3339Nano), amount, unit,
		r.Notes, r.Notify, r.Completed, r.ID)
	if err != nil {
		return fmt.Errorf("failed to update reminder: %w", err)
	}

	n, _ := result.RowsAffected()
	if n == 0 {
		return notFound(r.ID)
	}

	s.publish(ctx)
	return nil
}

// Delete removes a reminder by ID.
func (s *Store) Delete(ctx context.Context, r Reminder) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	result, err := s.db.ExecContext(ctx, `DELETE FROM reminders WHERE id = ?`, r.ID)
	if err != nil {
		return fmt.Errorf("failed to delete reminder: %w", err)
	}

	n, _ := result.RowsAffected()
	if n == 0 {
		return notFound(r.ID)
	}

	s.publish(ctx)
	return nil
}

// Get returns a single reminder by ID.
func (s *Store) Get(ctx context.Context, id int64) (Reminder, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, start_at, repeat_amount, repeat_unit, notes, notify, completed
		FROM reminders WHERE id = ?
	`, id)

	r, err := scanReminder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Reminder{}, notFound(id)
		}
		return Reminder{}, fmt.Errorf("failed to get reminder: %w", err)
	}
	return r, nil
}

// List returns all reminders in insertion order.
func (s *Store) List(ctx context.Context) ([]Reminder, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, start_at, repeat_amount, repeat_unit, notes, notify, completed
		FROM reminders ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list reminders: %w", err)
	}
	defer rows.Close()

	reminders := []Reminder{}
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reminder: %w", err)
		}
		reminders = append(reminders, r)
	}
	return reminders, rows.Err()
}

// Watch streams the collection, starting with the current snapshot.
func (s *Store) Watch(ctx context.Context) (<-chan []Reminder, error) {
	return s.live.Subscribe(ctx), nil
}

// publish re-reads the table after a mutation. The mutation itself already
// succeeded, so a failed re-read leaves subscribers on the previous snapshot
// until the next change. Callers hold writeMu.
func (s *Store) publish(ctx context.Context) {
	all, err := s.List(context.WithoutCancel(ctx))
	if err != nil {
		s.logger.Warnw("failed to re-read reminders after change", "err", err)
		return
	}
	s.live.Publish(all)
}

// readDataVersion returns SQLite's data_version for our connection. It moves
// only when another connection commits, so our own writes leave it alone.
func (s *Store) readDataVersion(ctx context.Context) (int64, error) {
	var v int64
	if err := s.db.QueryRowContext(ctx, "PRAGMA data_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("failed to read data version: %w", err)
	}
	return v, nil
}

// watch follows the database directory. Commits from other processes land in
// the -wal file, checkpoints in the main file.
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
			if event.Name != s.path && event.Name != s.path+"-wal" {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(outsideWriteDebounce, s.refresh)

		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			s.logger.Warnw("database watcher error", "path", s.path, "err", err)

		case <-s.done:
			if debounce != nil {
				debounce.Stop()
			}
			return
		}
	}
}

// refresh republishes the collection if another connection has committed
// since we last looked.
func (s *Store) refresh() {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	select {
	case <-s.done:
		return
	default:
	}

	ctx := context.Background()
	v, err := s.readDataVersion(ctx)
	if err != nil {
		s.logger.Warnw("failed to check for outside changes", "path", s.path, "err", err)
		return
	}
	if v == s.dataVersion {
		return
	}
	s.dataVersion = v
	s.logger.Debugw("reminders changed by another process", "path", s.path)
	s.publish(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReminder(row rowScanner) (Reminder, error) {
	var (
		r       Reminder
		startAt string
		amount  sql.NullInt64
		unit    sql.NullString
	)

	if err := row.Scan(&r.ID, &r.Name, &startAt, &amount, &unit,
		&r.Notes, &r.Notify, &r.Completed); err != nil {
		return Reminder{}, err
	}

	start, err := time.Parse(time.RFC3339Nano, startAt)
	if err != nil {
		return Reminder{}, fmt.Errorf("reminder %d has malformed start %q: %w", r.ID, startAt, err)
	}
	r.StartDateTime = start

	if amount.Valid && unit.Valid {
		r.RepeatInterval = &RepeatInterval{Amount: int(amount.Int64), Unit: Unit(unit.String)}
	}
	return r, nil
}

func repeatColumns(ri *RepeatInterval) (sql.NullInt64, sql.NullString) {
	if ri == nil {
		return sql.NullInt64{}, sql.NullString{}
	}
	return sql.NullInt64{Int64: int64(ri.Amount), Valid: true},
		sql.NullString{String: string(ri.Unit), Valid: true}
}

func sqliteDSN(path string) string {
	if strings.HasPrefix(path, "file:") {
		return path
	}
	u := url.URL{
		Scheme: "file",
		Path:   path,
	}
	q := u.Query()
	q.Set("mode", "rwc")
	q.Set("_pragma", "busy_timeout(5000)")
	u.RawQuery = q.Encode()
	return u.String()
}
