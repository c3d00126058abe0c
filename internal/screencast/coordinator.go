package screencast

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/bryanchriswhite/portalcast/internal/capture"
	"github.com/bryanchriswhite/portalcast/internal/cast"
	"github.com/bryanchriswhite/portalcast/internal/display"
	"github.com/bryanchriswhite/portalcast/internal/logger"
	"github.com/bryanchriswhite/portalcast/internal/selector"
	"github.com/bryanchriswhite/portalcast/internal/session"
)

// Deps are the collaborators a Coordinator drives.
type Deps struct {
	Sessions  *session.Registry
	Casts     *cast.Registry
	Outputs   display.Enumerator
	Selector  selector.Selector
	Workers   WorkerStarter
	Publisher Publisher
}

// Coordinator implements the create/select/start/close protocol.
//
// Each registry has its own lock and neither is held across a call into
// Outputs, Selector, Workers or Publisher, so a user sitting in the region
// picker for one session never delays another session.
//
// Every method returns a Response for protocol outcomes; the error is
// non-nil only for backend failures.
type Coordinator struct {
	sessions  *session.Registry
	casts     *cast.Registry
	outputs   display.Enumerator
	selector  selector.Selector
	workers   WorkerStarter
	publisher Publisher
	events    eventHub
}

// New creates a coordinator. Registries are created when not supplied.
func New(deps Deps) *Coordinator {
	if deps.Sessions == nil {
		deps.Sessions = session.NewRegistry()
	}
	if deps.Casts == nil {
		deps.Casts = cast.NewRegistry()
	}
	return &Coordinator{
		sessions:  deps.Sessions,
		casts:     deps.Casts,
		outputs:   deps.Outputs,
		selector:  deps.Selector,
		workers:   deps.Workers,
		publisher: deps.Publisher,
	}
}

// CreateSession registers a new screencast session and publishes it.
func (c *Coordinator) CreateSession(ctx context.Context, req CreateRequest) (Response, CreateResult, error) {
	log := logger.WithSession("screencast", req.SessionHandle)
	log.Info().
		Str("request", req.RequestHandle).
		Str("app_id", req.AppID).
		Msg("CreateSession")

	release, err := c.publisher.PublishRequest(req.RequestHandle, func() {})
	if err != nil {
		return ResponseOther, CreateResult{}, fmt.Errorf("failed to publish request %s: %w", req.RequestHandle, err)
	}
	defer release()

	s := session.New(req.SessionHandle, session.SessionTypeScreenCast)
	s.AppID = req.AppID
	if err := c.sessions.Insert(s); err != nil {
		log.Warn().Err(err).Msg("Refusing to create session")
		return ResponseOther, CreateResult{}, nil
	}

	handle := req.SessionHandle
	if err := c.publisher.PublishSession(handle, func() { c.CloseSession(handle) }); err != nil {
		c.sessions.Remove(handle)
		return ResponseOther, CreateResult{}, fmt.Errorf("failed to publish session %s: %w", handle, err)
	}

	c.events.notify(Event{Type: EventCreated, Handle: handle, AppID: req.AppID})
	return ResponseSuccess, CreateResult{HandleToken: handle}, nil
}

// SelectSources stores the client's capture preferences on its session.
// A session that is already gone yields ResponseOther.
func (c *Coordinator) SelectSources(ctx context.Context, req SelectRequest) (Response, error) {
	log := logger.WithSession("screencast", req.SessionHandle)

	release, err := c.publisher.PublishRequest(req.RequestHandle, func() {})
	if err != nil {
		return ResponseOther, fmt.Errorf("failed to publish request %s: %w", req.RequestHandle, err)
	}
	defer release()

	updated, err := c.sessions.Update(req.SessionHandle, func(s *session.Session) {
		s.Apply(req.Preferences)
	})
	if errors.Is(err, session.ErrNotFound) {
		log.Warn().Msg("SelectSources for a session that was never created or is already closed")
		return ResponseOther, nil
	}
	if err != nil {
		return ResponseOther, err
	}

	log.Info().
		Stringer("types", updated.SourceTypes).
		Stringer("cursor_mode", updated.CursorMode).
		Bool("multiple", updated.Multiple).
		Stringer("persist_mode", updated.PersistMode).
		Msg("Sources selected")

	c.events.notify(Event{Type: EventSourcesSelected, Handle: req.SessionHandle, AppID: updated.AppID})
	return ResponseSuccess, nil
}

// Start returns the session's stream, starting a capture worker on the
// output the user picks if none is running yet.
func (c *Coordinator) Start(ctx context.Context, req StartRequest) (Response, StartResult, error) {
	handle := req.SessionHandle
	log := logger.WithSession("screencast", handle)

	if b, ok := c.casts.Find(handle); ok {
		log.Debug().Uint32("node_id", b.NodeID()).Msg("Start on a running cast, reusing stream")
		return ResponseSuccess, c.startResult(b), nil
	}

	s, ok := c.sessions.Find(handle)
	if !ok {
		log.Warn().Msg("Start for a session that was never created or is already closed")
		return ResponseOther, StartResult{}, nil
	}
	if s.Type != session.SessionTypeScreenCast {
		log.Warn().Stringer("type", s.Type).Msg("Start on a session that is not a screencast")
		return ResponseOther, StartResult{}, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	release, err := c.publisher.PublishRequest(req.RequestHandle, cancel)
	if err != nil {
		return ResponseOther, StartResult{}, fmt.Errorf("failed to publish request %s: %w", req.RequestHandle, err)
	}
	defer release()

	outputs, err := c.outputs.ListOutputs(ctx)
	if err != nil {
		return ResponseOther, StartResult{}, fmt.Errorf("failed to enumerate outputs: %w", err)
	}

	region, err := c.selector.SelectRegion(ctx, selector.KindScreen)
	if err != nil {
		return ResponseOther, StartResult{}, fmt.Errorf("region selection failed: %w", err)
	}
	if region == nil {
		log.Info().Msg("User cancelled the selection")
		return ResponseCancelled, StartResult{}, nil
	}

	out, ok := display.Match(outputs, region.Position)
	if !ok {
		log.Warn().
			Int("x", region.Position.X).
			Int("y", region.Position.Y).
			Int("outputs", len(outputs)).
			Msg("Selection does not start at any output origin")
		return ResponseOther, StartResult{}, nil
	}

	worker, err := c.workers.Start(ctx, capture.Params{
		ShowCursor: s.CursorMode.ShowCursor(),
		Width:      out.Width,
		Height:     out.Height,
		Output:     out,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return ResponseCancelled, StartResult{}, nil
		}
		return ResponseOther, StartResult{}, fmt.Errorf("cannot start pipewire stream: %w", err)
	}

	current, inserted := c.casts.Bind(cast.Binding{Handle: handle, Worker: worker, Output: out})
	if !inserted {
		// A concurrent Start bound first while we were in the picker.
		log.Info().Uint32("node_id", current.NodeID()).Msg("Lost start race, keeping the existing stream")
		if err := worker.Stop(); err != nil {
			log.Warn().Err(err).Msg("Failed to stop surplus capture worker")
		}
		return ResponseSuccess, c.startResult(current), nil
	}

	// CloseSession removes the session before the binding, so a session that
	// vanished while we were selecting is visible here.
	if _, ok := c.sessions.Find(handle); !ok {
		log.Info().Msg("Session closed during Start, releasing stream")
		c.casts.Remove(handle)
		return ResponseOther, StartResult{}, nil
	}

	c.events.notify(Event{Type: EventStarted, Handle: handle, AppID: s.AppID, NodeID: current.NodeID()})
	return ResponseSuccess, c.startResult(current), nil
}

// CloseSession tears a session down: the session entry goes first, then the
// binding (stopping its worker), then the published object. Safe to call
// more than once.
func (c *Coordinator) CloseSession(handle string) bool {
	s, hadSession := c.sessions.Remove(handle)
	b, hadCast := c.casts.Remove(handle)
	c.publisher.UnpublishSession(handle)

	if !hadSession && !hadCast {
		return false
	}

	ev := Event{Type: EventClosed, Handle: handle, AppID: s.AppID}
	if hadCast {
		ev.NodeID = b.NodeID()
	}
	logger.WithSession("screencast", handle).Info().Bool("had_cast", hadCast).Msg("Session closed")
	c.events.notify(ev)
	return true
}

// Shutdown closes every live session and stops every worker.
func (c *Coordinator) Shutdown() {
	for _, s := range c.sessions.List() {
		c.CloseSession(s.Handle)
	}
	// Bindings can only outlive their session on a Start that lost a race
	// with close; sweep them too.
	if n := c.casts.RemoveAll(); n > 0 {
		logger.WithComponent("screencast").Warn().Int("count", n).Msg("Stopped orphaned casts")
	}
}

// Sessions returns a snapshot of live sessions.
func (c *Coordinator) Sessions() []session.Session {
	return c.sessions.List()
}

// Casts returns a snapshot of live bindings.
func (c *Coordinator) Casts() []cast.Binding {
	return c.casts.List()
}

// Outputs enumerates the current outputs.
func (c *Coordinator) Outputs(ctx context.Context) ([]display.Output, error) {
	return c.outputs.ListOutputs(ctx)
}

// Subscribe returns a channel of lifecycle events.
func (c *Coordinator) Subscribe() chan Event {
	return c.events.subscribe()
}

// Unsubscribe stops delivery to ch and closes it.
func (c *Coordinator) Unsubscribe(ch chan Event) {
	c.events.unsubscribe(ch)
}

func (c *Coordinator) startResult(b cast.Binding) StartResult {
	res := StartResult{
		Streams: []Stream{{
			NodeID:     b.NodeID(),
			Position:   b.Output.Position,
			Size:       image.Pt(b.Output.Width, b.Output.Height),
			SourceType: session.SourceMonitor,
		}},
	}
	if s, ok := c.sessions.Find(b.Handle); ok {
		res.PersistMode = s.PersistMode
		if s.PersistMode != session.PersistNone {
			res.RestoreToken = s.RestoreToken
		}
	}
	return res
}
