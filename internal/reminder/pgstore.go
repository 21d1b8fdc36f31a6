package reminder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/notexe/reminders/internal/stream"
)

// pgChangeChannel is the NOTIFY channel the reminders trigger signals on.
const pgChangeChannel = "reminders_changed"

const listenRetryDelay = 2 * time.Second

// PGStore keeps reminders in PostgreSQL. Start times are stored as
// timestamptz, so they keep the instant but come back in UTC.
//
// Every write to the table, from any client, fires a NOTIFY that makes each
// PGStore re-read and republish the collection.
type PGStore struct {
	pool    *pgxpool.Pool
	logger  *zap.SugaredLogger
	live    *stream.Subject[[]Reminder]
	writeMu sync.Mutex

	stopListen context.CancelFunc
	listenDone chan struct{}
	closeOnce  sync.Once
}

// NewPGStore connects to databaseURL and ensures the schema exists. A nil
// logger discards output.
func NewPGStore(ctx context.Context, databaseURL string, logger *zap.SugaredLogger) (*PGStore, error) {
	if databaseURL == "" {
		return nil, errors.New("database url is empty")
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	if err := createPGSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	s := &PGStore{pool: pool, logger: logger, listenDone: make(chan struct{})}
	initial, err := s.List(ctx)
	if err != nil {
		pool.Close()
		return nil, err
	}
	s.live = stream.NewSubject(initial)

	listenCtx, stop := context.WithCancel(context.Background())
	s.stopListen = stop
	go s.listen(listenCtx)

	return s, nil
}

func createPGSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS reminders (
			id            BIGSERIAL PRIMARY KEY,
			name          TEXT        NOT NULL,
			start_at      TIMESTAMPTZ NOT NULL,
			repeat_amount INTEGER,
			repeat_unit   TEXT,
			notes         TEXT        NOT NULL DEFAULT '',
			notify        BOOLEAN     NOT NULL DEFAULT FALSE,
			completed     BOOLEAN     NOT NULL DEFAULT FALSE
		)
	`); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	if _, err := pool.Exec(ctx, `
		CREATE OR REPLACE FUNCTION notify_reminders_changed() RETURNS trigger AS $$
		BEGIN
			PERFORM pg_notify('`+pgChangeChannel+`', '');
			RETURN NULL;
		END;
		$$ LANGUAGE plpgsql
	`); err != nil {
		return fmt.Errorf("failed to create change function: %w", err)
	}

	if _, err := pool.Exec(ctx, `
		DO $$
		BEGIN
			IF NOT EXISTS (SELECT 1 FROM pg_trigger WHERE tgname = 'reminders_changed') THEN
				CREATE TRIGGER reminders_changed
					AFTER INSERT OR UPDATE OR DELETE ON reminders
					FOR EACH STATEMENT EXECUTE FUNCTION notify_reminders_changed();
			END IF;
		END
		$$
	`); err != nil {
		return fmt.Errorf("failed to create change trigger: %w", err)
	}
	return nil
}

// Close stops listening for changes and releases the connection pool.
func (s *PGStore) Close() error {
	s.closeOnce.Do(func() {
		s.stopListen()
		<-s.listenDone
		s.pool.Close()
	})
	return nil
}

func (s *PGStore) Insert(ctx context.Context, r Reminder) (int64, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	amount, unit := pgRepeatColumns(r.RepeatInterval)

	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO reminders (name, start_at, repeat_amount, repeat_unit, notes, notify, completed)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, r.Name, r.StartDateTime, amount, unit, r.Notes, r.Notify, r.Completed).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert reminder: %w", err)
	}

	s.publish(ctx)
	return id, nil
}

func (s *PGStore) Update(ctx context.Context, r Reminder) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	amount, unit := pgRepeatColumns(r.RepeatInterval)

	tag, err := s.pool.Exec(ctx, `
		UPDATE reminders
		SET name = $1, start_at = $2, repeat_amount = $3, repeat_unit = $4, notes = $5, notify = $6, completed = $7
		WHERE id = $8
	`, r.Name, r.StartDateTime, amount, unit, r.Notes, r.Notify, r.Completed, r.ID)
	if err != nil {
		return fmt.Errorf("failed to update reminder: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound(r.ID)
	}

	s.publish(ctx)
	return nil
}

func (s *PGStore) Delete(ctx context.Context, r Reminder) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tag, err := s.pool.Exec(ctx, `DELETE FROM reminders WHERE id = $1`, r.ID)
	if err != nil {
		return fmt.Errorf("failed to delete reminder: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound(r.ID)
	}

	s.publish(ctx)
	return nil
}

func (s *PGStore) Get(ctx context.Context, id int64) (Reminder, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, start_at, repeat_amount, repeat_unit, notes, notify, completed
		FROM reminders WHERE id = $1
	`, id)

	r, err := scanPGReminder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Reminder{}, notFound(id)
		}
		return Reminder{}, fmt.Errorf("failed to get reminder: %w", err)
	}
	return r, nil
}

func (s *PGStore) List(ctx context.Context) ([]Reminder, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, start_at, repeat_amount, repeat_unit, notes, notify, completed
		FROM reminders ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list reminders: %w", err)
	}
	defer rows.Close()

	reminders := []Reminder{}
	for rows.Next() {
		r, err := scanPGReminder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reminder: %w", err)
		}
		reminders = append(reminders, r)
	}
	return reminders, rows.Err()
}

func (s *PGStore) Watch(ctx context.Context) (<-chan []Reminder, error) {
	return s.live.Subscribe(ctx), nil
}

// publish re-reads the table. Callers hold writeMu.
func (s *PGStore) publish(ctx context.Context) {
	all, err := s.List(context.WithoutCancel(ctx))
	if err != nil {
		s.logger.Warnw("failed to re-read reminders after change", "err", err)
		return
	}
	s.live.Publish(all)
}

// listen keeps a dedicated connection in LISTEN mode and reconnects after
// failures until ctx is cancelled.
func (s *PGStore) listen(ctx context.Context) {
	defer close(s.listenDone)

	for {
		err := s.listenOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		s.logger.Warnw("reminder change listener failed, retrying", "err", err, "retry_in", listenRetryDelay)

		select {
		case <-ctx.Done():
			return
		case <-time.After(listenRetryDelay):
		}
	}
}

func (s *PGStore) listenOnce(ctx context.Context) error {
	pooled, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire listener connection: %w", err)
	}
	// A listening connection must not go back to the pool.
	conn := pooled.Hijack()
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+pgChangeChannel); err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	// Catch up on anything committed while no listener was attached.
	s.refresh(ctx)

	for {
		if _, err := conn.WaitForNotification(ctx); err != nil {
			return err
		}
		s.refresh(ctx)
	}
}

func (s *PGStore) refresh(ctx context.Context) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	all, err := s.List(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Warnw("failed to re-read reminders after outside change", "err", err)
		}
		return
	}
	s.live.Publish(all)
}

func scanPGReminder(row pgx.Row) (Reminder, error) {
	var (
		r      Reminder
		start  time.Time
		amount *int32
		unit   *string
	)
	if err := row.Scan(&r.ID, &r.Name, &start, &amount, &unit,
		&r.Notes, &r.Notify, &r.Completed); err != nil {
		return Reminder{}, err
	}
	r.StartDateTime = start.UTC()
	if amount != nil && unit != nil {
		r.RepeatInterval = &RepeatInterval{Amount: int(*amount), Unit: Unit(*unit)}
	}
	return r, nil
}

func pgRepeatColumns(ri *RepeatInterval) (*int32, *string) {
	if ri == nil {
		return nil, nil
	}
	amount := int32(ri.Amount)
	unit := string(ri.Unit)
	return &amount, &unit
}
