package notify

import (
	"context"
	"time"
)

// Noop accepts every request and does nothing. Short-lived processes use it,
// leaving schedules to the next resync of the long-running server.
type Noop struct{}

func (Noop) Schedule(context.Context, int64, time.Time) error { return nil }

func (Noop) Cancel(context.Context, int64) error { return nil }

func (Noop) RemoveDisplayed(context.Context, int64) error { return nil }
