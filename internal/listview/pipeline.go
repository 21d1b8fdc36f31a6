package listview

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmhodges/clock"

	"github.com/notexe/reminders/internal/preferences"
	"github.com/notexe/reminders/internal/reminder"
	"github.com/notexe/reminders/internal/stream"
)

// ReminderSource is the live reminder collection.
type ReminderSource interface {
	Watch(ctx context.Context) (<-chan []reminder.Reminder, error)
}

// PreferenceSource is the live display preferences.
type PreferenceSource interface {
	Watch(ctx context.Context) (<-chan preferences.Preferences, error)
}

// Pipeline recomputes the visible list whenever the reminders or the
// preferences change. It keeps no state between subscriptions: every Watch
// starts from the sources' latest values.
type Pipeline struct {
	reminders ReminderSource
	prefs     PreferenceSource
	clk       clock.Clock
}

// NewPipeline builds a pipeline over the two live sources.
func NewPipeline(reminders ReminderSource, prefs PreferenceSource, clk clock.Clock) *Pipeline {
	if clk == nil {
		clk = clock.New()
	}
	return &Pipeline{reminders: reminders, prefs: prefs, clk: clk}
}

// Watch emits one derived list per change of either input, once both have
// produced a value. "now" is read at each recomputation. The channel closes
// when ctx is done.
func (p *Pipeline) Watch(ctx context.Context, query string) (<-chan []reminder.Reminder, error) {
	return p.watch(ctx, query, nil)
}

// WatchWith is Watch with the preferences overridden field by field: a
// non-empty filter or sort order in override wins over the stored one.
func (p *Pipeline) WatchWith(ctx context.Context, query string, override preferences.Preferences) (<-chan []reminder.Reminder, error) {
	return p.watch(ctx, query, &override)
}

// Snapshot returns the first derived list.
func (p *Pipeline) Snapshot(ctx context.Context, query string, override preferences.Preferences) ([]reminder.Reminder, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lists, err := p.WatchWith(ctx, query, override)
	if err != nil {
		return nil, err
	}
	select {
	case list, ok := <-lists:
		if !ok {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, errors.New("reminder list stream closed")
		}
		return list, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Pipeline) watch(ctx context.Context, query string, override *preferences.Preferences) (<-chan []reminder.Reminder, error) {
	items, err := p.reminders.Watch(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to watch reminders: %w", err)
	}
	prefs, err := p.prefs.Watch(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to watch preferences: %w", err)
	}

	return stream.CombineLatest(ctx, items, prefs, func(rs []reminder.Reminder, pr preferences.Preferences) []reminder.Reminder {
		if override != nil {
			if override.Filter != "" {
				pr.Filter = override.Filter
			}
			if override.SortOrder != "" {
				pr.SortOrder = override.SortOrder
			}
		}
		return Derive(rs, pr, query, p.clk.Now())
	}), nil
}
