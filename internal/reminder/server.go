package reminder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmhodges/clock"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/notexe/reminders/internal/preferences"
	"github.com/notexe/reminders/internal/worker"
)

const (
	serverName    = "reminder"
	serverVersion = "2.0.0"
)

// Lister produces the derived list for one request.
type Lister interface {
	Snapshot(ctx context.Context, query string, override preferences.Preferences) ([]Reminder, error)
}

// PreferenceStore is the persisted filter and sort order.
type PreferenceStore interface {
	Current() preferences.Preferences
	UpdateFilter(f preferences.Filter) error
	UpdateSortOrder(o preferences.SortOrder) error
}

// Server is the MCP server for reminder management.
type Server struct {
	mcpServer *server.MCPServer
	svc       *Service
	lister    Lister
	prefs     PreferenceStore
	queue     *worker.Queue
	clk       clock.Clock
}

// NewServer exposes the use-cases as MCP tools. Completions and deletions
// are handed to queue so they finish even if the client goes away.
func NewServer(svc *Service, lister Lister, prefs PreferenceStore, queue *worker.Queue, clk clock.Clock) *Server {
	if clk == nil {
		clk = clock.New()
	}
	s := &Server{
		svc:    svc,
		lister: lister,
		prefs:  prefs,
		queue:  queue,
		clk:    clk,
	}

	s.mcpServer = server.NewMCPServer(
		serverName,
		serverVersion,
		server.WithToolCapabilities(false),
	)

	s.registerTools()
	return s
}

// MCPServer returns the underlying MCP server for serving.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) registerTools() {
	// add_reminder
	s.mcpServer.AddTool(
		mcp.NewTool("add_reminder",
			mcp.WithDescription("Add a new reminder. The start must be in the future. Set repeat_amount to make it recurring."),
			mcp.WithString("name", mcp.Required(), mcp.Description("Reminder name (max 100 characters)")),
			mcp.WithString("start", mcp.Required(), mcp.Description("Start date and time in RFC3339 format (e.g. 2025-01-15T09:00:00+02:00)")),
			mcp.WithNumber("repeat_amount", mcp.Description("Repeat every N units (at most 1000); omit or 0 for a one-time reminder")),
			mcp.WithString("repeat_unit", mcp.Description("Repeat unit: day or week (default: day)")),
			mcp.WithString("notes", mcp.Description("Optional notes")),
			mcp.WithBoolean("notify", mcp.Description("Send a notification at the start time (default: true)")),
		),
		s.handleAddReminder,
	)

	// update_reminder
	s.mcpServer.AddTool(
		mcp.NewTool("update_reminder",
			mcp.WithDescription("Update a reminder's fields. Only the given fields change."),
			mcp.WithNumber("id", mcp.Required(), mcp.Description("Reminder ID")),
			mcp.WithString("name", mcp.Description("New name")),
			mcp.WithString("start", mcp.Description("New start in RFC3339 format")),
			mcp.WithNumber("repeat_amount", mcp.Description("New repeat amount; 0 makes the reminder one-time")),
			mcp.WithString("repeat_unit", mcp.Description("New repeat unit: day or week")),
			mcp.WithString("notes", mcp.Description("New notes")),
			mcp.WithBoolean("notify", mcp.Description("Enable or disable the notification")),
		),
		s.handleUpdateReminder,
	)

	// get_reminder
	s.mcpServer.AddTool(
		mcp.NewTool("get_reminder",
			mcp.WithDescription("Get one reminder by ID"),
			mcp.WithNumber("id", mcp.Required(), mcp.Description("Reminder ID")),
		),
		s.handleGetReminder,
	)

	// list_reminders
	s.mcpServer.AddTool(
		mcp.NewTool("list_reminders",
			mcp.WithDescription("List reminders filtered, sorted and searched. Filter and sort default to the saved preferences."),
			mcp.WithString("filter", mcp.Description("upcoming, overdue or completed")),
			mcp.WithString("sort", mcp.Description("earliest_first, latest_first, alpha_az or alpha_za")),
			mcp.WithString("query", mcp.Description("Case-insensitive text the name must contain")),
		),
		s.handleListReminders,
	)

	// complete_reminder
	s.mcpServer.AddTool(
		mcp.NewTool("complete_reminder",
			mcp.WithDescription("Mark a reminder done. One-time reminders are completed; recurring ones move to their next occurrence."),
			mcp.WithNumber("id", mcp.Required(), mcp.Description("Reminder ID")),
		),
		s.handleCompleteReminder,
	)

	// complete_series
	s.mcpServer.AddTool(
		mcp.NewTool("complete_series",
			mcp.WithDescription("End a recurring reminder for good"),
			mcp.WithNumber("id", mcp.Required(), mcp.Description("Reminder ID")),
		),
		s.handleCompleteSeries,
	)

	// delete_reminder
	s.mcpServer.AddTool(
		mcp.NewTool("delete_reminder",
			mcp.WithDescription("Delete a reminder permanently"),
			mcp.WithNumber("id", mcp.Required(), mcp.Description("Reminder ID")),
		),
		s.handleDeleteReminder,
	)

	// set_filter
	s.mcpServer.AddTool(
		mcp.NewTool("set_filter",
			mcp.WithDescription("Save the default list filter"),
			mcp.WithString("filter", mcp.Required(), mcp.Description("upcoming, overdue or completed")),
		),
		s.handleSetFilter,
	)

	// set_sort_order
	s.mcpServer.AddTool(
		mcp.NewTool("set_sort_order",
			mcp.WithDescription("Save the default list sort order"),
			mcp.WithString("sort", mcp.Required(), mcp.Description("earliest_first, latest_first, alpha_az or alpha_za")),
		),
		s.handleSetSortOrder,
	)
}

func (s *Server) handleAddReminder(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	start, err := parseStart(req.GetString("start", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	r := Reminder{
		Name:          req.GetString("name", ""),
		StartDateTime: start,
		Notes:         req.GetString("notes", ""),
		Notify:        req.GetBool("notify", true),
	}

	if amount := int(req.GetFloat("repeat_amount", 0)); amount != 0 {
		unit, err := ParseUnit(req.GetString("repeat_unit", string(UnitDay)))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		r.RepeatInterval = &RepeatInterval{Amount: amount, Unit: unit}
	}

	if err := r.ValidateNew(s.clk.Now()); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	added, err := s.svc.Add(ctx, r)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to add reminder: %v", err)), nil
	}

	return jsonResult(added), nil
}

func (s *Server) handleUpdateReminder(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	current, errResult := s.lookup(ctx, req)
	if errResult != nil {
		return errResult, nil
	}

	args := req.GetArguments()
	var changes []Change

	if _, ok := args["name"]; ok {
		changes = append(changes, WithName(req.GetString("name", "")))
	}
	if v := req.GetString("start", ""); v != "" {
		start, err := parseStart(v)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		changes = append(changes, WithStart(start))
	}
	if _, ok := args["notes"]; ok {
		changes = append(changes, WithNotes(req.GetString("notes", "")))
	}
	if _, ok := args["notify"]; ok {
		changes = append(changes, WithNotify(req.GetBool("notify", current.Notify)))
	}

	_, amountSet := args["repeat_amount"]
	unitStr := req.GetString("repeat_unit", "")
	if amountSet || unitStr != "" {
		repeat, err := mergeRepeat(current.RepeatInterval, amountSet, int(req.GetFloat("repeat_amount", 0)), unitStr)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		changes = append(changes, WithRepeat(repeat))
	}

	updated := current.With(changes...)
	if err := updated.Validate(); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := s.svc.Update(ctx, updated); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to update reminder: %v", err)), nil
	}

	return jsonResult(updated), nil
}

func (s *Server) handleGetReminder(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r, errResult := s.lookup(ctx, req)
	if errResult != nil {
		return errResult, nil
	}
	return jsonResult(r), nil
}

func (s *Server) handleListReminders(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var override preferences.Preferences

	if v := req.GetString("filter", ""); v != "" {
		f, err := preferences.ParseFilter(v)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		override.Filter = f
	}
	if v := req.GetString("sort", ""); v != "" {
		o, err := preferences.ParseSortOrder(v)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		override.SortOrder = o
	}

	reminders, err := s.lister.Snapshot(ctx, req.GetString("query", ""), override)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list reminders: %v", err)), nil
	}

	if len(reminders) == 0 {
		return mcp.NewToolResultText("No reminders found."), nil
	}

	return jsonResult(reminders), nil
}

func (s *Server) handleCompleteReminder(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r, errResult := s.lookup(ctx, req)
	if errResult != nil {
		return errResult, nil
	}

	err := s.detached(ctx, "complete_reminder", func(ctx context.Context) error {
		return s.svc.Complete(ctx, r)
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to complete reminder: %v", err)), nil
	}

	if r.IsRepeating() {
		advanced, err := s.svc.Get(ctx, r.ID)
		if err != nil {
			return mcp.NewToolResultText(fmt.Sprintf("Reminder %d done.", r.ID)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Reminder %d done, next occurrence %s.",
			r.ID, advanced.StartDateTime.Format(time.RFC3339))), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Reminder %d marked as completed.", r.ID)), nil
}

func (s *Server) handleCompleteSeries(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r, errResult := s.lookup(ctx, req)
	if errResult != nil {
		return errResult, nil
	}

	err := s.detached(ctx, "complete_series", func(ctx context.Context) error {
		return s.svc.CompleteSeries(ctx, r)
	})
	if errors.Is(err, ErrWrongKind) {
		return mcp.NewToolResultError(fmt.Sprintf("reminder %d is one-time, use complete_reminder", r.ID)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to end reminder series: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Reminder %d series ended.", r.ID)), nil
}

func (s *Server) handleDeleteReminder(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r, errResult := s.lookup(ctx, req)
	if errResult != nil {
		return errResult, nil
	}

	err := s.detached(ctx, "delete_reminder", func(ctx context.Context) error {
		return s.svc.Delete(ctx, r)
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to delete reminder: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Reminder %d deleted.", r.ID)), nil
}

func (s *Server) handleSetFilter(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	f, err := preferences.ParseFilter(req.GetString("filter", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.prefs.UpdateFilter(f); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to save filter: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Filter set to %s.", f)), nil
}

func (s *Server) handleSetSortOrder(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	o, err := preferences.ParseSortOrder(req.GetString("sort", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.prefs.UpdateSortOrder(o); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to save sort order: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Sort order set to %s.", o)), nil
}

// lookup resolves the id argument to the stored reminder. A non-nil result
// is the error to hand back to the client.
func (s *Server) lookup(ctx context.Context, req mcp.CallToolRequest) (Reminder, *mcp.CallToolResult) {
	idFloat := req.GetFloat("id", -1)
	if idFloat <= 0 {
		return Reminder{}, mcp.NewToolResultError("id is required and must be a positive number")
	}
	id := int64(idFloat)

	r, err := s.svc.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Reminder{}, mcp.NewToolResultError(fmt.Sprintf("reminder %d not found", id))
	}
	if err != nil {
		return Reminder{}, mcp.NewToolResultError(fmt.Sprintf("failed to get reminder: %v", err))
	}
	return r, nil
}

// detached runs task on the worker queue and waits for it unless the request
// is cancelled first, in which case the task still runs to completion.
func (s *Server) detached(ctx context.Context, name string, task worker.Task) error {
	select {
	case err := <-s.queue.Submit(name, task):
		return err
	case <-ctx.Done():
		return fmt.Errorf("request cancelled, %s continues in background: %w", name, ctx.Err())
	}
}

func parseStart(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, &ValidationError{Field: "start", Reason: "is required"}
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, &ValidationError{Field: "start", Reason: fmt.Sprintf("%v (use RFC3339, e.g. 2025-01-15T09:00:00Z)", err)}
	}
	return t, nil
}

// mergeRepeat applies a partial repeat edit to the current interval. An
// explicit amount of 0 clears it.
func mergeRepeat(current *RepeatInterval, amountSet bool, amount int, unitStr string) (*RepeatInterval, error) {
	if amountSet && amount == 0 {
		return nil, nil
	}

	merged := RepeatInterval{Amount: 1, Unit: UnitDay}
	if current != nil {
		merged = *current
	}
	if amountSet {
		merged.Amount = amount
	}
	if unitStr != "" {
		unit, err := ParseUnit(unitStr)
		if err != nil {
			return nil, err
		}
		merged.Unit = unit
	}
	return &merged, nil
}

func jsonResult(v any) *mcp.CallToolResult {
	output, _ := json.MarshalIndent(v, "", "  ")
	return mcp.NewToolResultText(string(output))
}
