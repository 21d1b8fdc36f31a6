// Command remindctl lists and manages reminders from the terminal.
//
// Usage:
//
//	./remindctl list [-filter upcoming] [-sort alpha_az] [-query milk] [-watch]
//	./remindctl add -name "Water plants" -start 2025-01-15T09:00:00+02:00 [-every 1 -unit week]
//	./remindctl done 3      # complete, or move a recurring reminder to its next occurrence
//	./remindctl end 3       # end a recurring series
//	./remindctl rm 3
//	./remindctl filter overdue
//	./remindctl sort latest_first
//
// remindctl does not deliver notifications. A running mcp-reminder picks up
// its changes on the next resync.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jmhodges/clock"
	"github.com/mattn/go-isatty"
	"go.uber.org/zap"

	"github.com/notexe/reminders/internal/config"
	"github.com/notexe/reminders/internal/listview"
	"github.com/notexe/reminders/internal/logging"
	"github.com/notexe/reminders/internal/notify"
	"github.com/notexe/reminders/internal/preferences"
	"github.com/notexe/reminders/internal/reminder"
	"github.com/notexe/reminders/internal/storage"
	"github.com/notexe/reminders/internal/ui"
)

type app struct {
	svc       *reminder.Service
	prefs     *preferences.Store
	pipeline  *listview.Pipeline
	clk       clock.Clock
	formatter *ui.Formatter
}

func main() {
	configPath := flag.String("config", config.GetDefaultConfigPath(), "path to config file")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		fatal("invalid config: %v", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fatal("failed to create logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(ctx, cfg.Database, logger.Named("storage"))
	if err != nil {
		fatal("%v", err)
	}
	defer store.Close()

	prefs, err := preferences.Open(cfg.Preferences.File, logger.Named("preferences"))
	if err != nil {
		fatal("failed to open preferences: %v", err)
	}
	defer prefs.Close()

	a := newApp(store, prefs, logger)

	if err := a.run(ctx, flag.Arg(0), flag.Args()[1:]); err != nil {
		fmt.Fprintln(os.Stderr, a.formatter.FormatError(err))
		os.Exit(1)
	}
}

func newApp(store reminder.Repository, prefs *preferences.Store, logger *zap.SugaredLogger) *app {
	clk := clock.New()
	svc := reminder.NewService(store, notify.Noop{},
		reminder.WithClock(clk),
		reminder.WithLogger(logger.Named("reminder")),
	)
	return &app{
		svc:       svc,
		prefs:     prefs,
		pipeline:  listview.NewPipeline(svc, prefs, clk),
		clk:       clk,
		formatter: ui.NewFormatter(isatty.IsTerminal(os.Stdout.Fd()), nil),
	}
}

func (a *app) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "list", "ls":
		return a.list(ctx, args)
	case "add":
		return a.add(ctx, args)
	case "done":
		return a.withReminder(ctx, args, func(r reminder.Reminder) error {
			if err := a.svc.Complete(ctx, r); err != nil {
				return err
			}
			a.success("Reminder %d done.", r.ID)
			return nil
		})
	case "end":
		return a.withReminder(ctx, args, func(r reminder.Reminder) error {
			if err := a.svc.CompleteSeries(ctx, r); err != nil {
				if errors.Is(err, reminder.ErrWrongKind) {
					return fmt.Errorf("reminder %d is one-time, use done", r.ID)
				}
				return err
			}
			a.success("Reminder %d series ended.", r.ID)
			return nil
		})
	case "rm", "delete":
		return a.withReminder(ctx, args, func(r reminder.Reminder) error {
			if err := a.svc.Delete(ctx, r); err != nil {
				return err
			}
			a.success("Reminder %d deleted.", r.ID)
			return nil
		})
	case "filter":
		if len(args) != 1 {
			return errors.New("usage: remindctl filter upcoming|overdue|completed")
		}
		f, err := preferences.ParseFilter(args[0])
		if err != nil {
			return err
		}
		if err := a.prefs.UpdateFilter(f); err != nil {
			return err
		}
		a.success("Filter set to %s.", f)
		return nil
	case "sort":
		if len(args) != 1 {
			return errors.New("usage: remindctl sort earliest_first|latest_first|alpha_az|alpha_za")
		}
		o, err := preferences.ParseSortOrder(args[0])
		if err != nil {
			return err
		}
		if err := a.prefs.UpdateSortOrder(o); err != nil {
			return err
		}
		a.success("Sort order set to %s.", o)
		return nil
	default:
		return fmt.Errorf("unknown command %q (run remindctl -h)", cmd)
	}
}

func (a *app) list(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	filter := fs.String("filter", "", "upcoming, overdue or completed (default: saved preference)")
	sortOrder := fs.String("sort", "", "earliest_first, latest_first, alpha_az or alpha_za (default: saved preference)")
	query := fs.String("query", "", "only names containing this text")
	watch := fs.Bool("watch", false, "keep redrawing as reminders or preferences change")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var override preferences.Preferences
	if *filter != "" {
		f, err := preferences.ParseFilter(*filter)
		if err != nil {
			return err
		}
		override.Filter = f
	}
	if *sortOrder != "" {
		o, err := preferences.ParseSortOrder(*sortOrder)
		if err != nil {
			return err
		}
		override.SortOrder = o
	}

	if !*watch {
		items, err := a.pipeline.Snapshot(ctx, *query, override)
		if err != nil {
			return err
		}
		fmt.Println(a.frame(items, override, *query))
		return nil
	}

	lists, err := a.pipeline.WatchWith(ctx, *query, override)
	if err != nil {
		return err
	}
	screen := ui.NewScreen(os.Stdout, isatty.IsTerminal(os.Stdout.Fd()))
	for items := range lists {
		screen.Draw(a.frame(items, override, *query))
	}
	return nil
}

func (a *app) frame(items []reminder.Reminder, override preferences.Preferences, query string) string {
	effective := a.prefs.Current()
	if override.Filter != "" {
		effective.Filter = override.Filter
	}
	if override.SortOrder != "" {
		effective.SortOrder = override.SortOrder
	}
	return a.formatter.FormatList(items, effective, query, a.clk.Now())
}

func (a *app) add(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("add", flag.ContinueOnError)
	name := fs.String("name", "", "reminder name")
	start := fs.String("start", "", "start in RFC3339 format")
	in := fs.Duration("in", 0, "start this long from now instead of -start (e.g. 90m)")
	every := fs.Int("every", 0, "repeat every N units")
	unit := fs.String("unit", string(reminder.UnitDay), "repeat unit: day or week")
	notes := fs.String("notes", "", "optional notes")
	silent := fs.Bool("silent", false, "do not notify")
	if err := fs.Parse(args); err != nil {
		return err
	}

	now := a.clk.Now()
	r := reminder.Reminder{
		Name:   *name,
		Notes:  *notes,
		Notify: !*silent,
	}

	switch {
	case *in > 0:
		r.StartDateTime = now.Add(*in).Truncate(time.Minute)
	case *start != "":
		t, err := time.Parse(time.RFC3339, *start)
		if err != nil {
			return fmt.Errorf("invalid -start: %w", err)
		}
		r.StartDateTime = t
	}

	if *every != 0 {
		u, err := reminder.ParseUnit(*unit)
		if err != nil {
			return err
		}
		r.RepeatInterval = &reminder.RepeatInterval{Amount: *every, Unit: u}
	}

	if err := r.ValidateNew(now); err != nil {
		return err
	}

	added, err := a.svc.Add(ctx, r)
	if err != nil {
		return err
	}
	a.success("Reminder %d added.", added.ID)
	return nil
}

func (a *app) withReminder(ctx context.Context, args []string, fn func(reminder.Reminder) error) error {
	if len(args) != 1 {
		return errors.New("expected exactly one reminder id")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return fmt.Errorf("invalid reminder id %q", args[0])
	}
	r, err := a.svc.Get(ctx, id)
	if err != nil {
		return err
	}
	return fn(r)
}

func (a *app) success(format string, args ...any) {
	fmt.Println(a.formatter.FormatSuccess(fmt.Sprintf(format, args...)))
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

func usage() {
	fmt.Fprintln(os.Stderr, `remindctl - manage reminders from the terminal

USAGE:
    remindctl [-config path] <command> [args]

COMMANDS:
    list [-filter f] [-sort o] [-query q] [-watch]   Show the reminder list
    add -name n (-start t | -in d) [-every N -unit day|week] [-notes s] [-silent]
    done <id>      Complete a reminder; recurring ones move to the next occurrence
    end <id>       End a recurring series
    rm <id>        Delete a reminder
    filter <f>     Save the default filter (upcoming, overdue, completed)
    sort <o>       Save the default sort order (earliest_first, latest_first, alpha_az, alpha_za)`)
}
