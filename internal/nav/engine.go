// Package nav provides the navigation session engine: a three-phase state
// machine (Idle, Recording, Replaying) that mediates between the path
// recorder, the relocalization protocol, the route store, and the sensor
// layer. The engine is the single source of truth for the session phase.
package nav

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/retrace/retrace/internal/rebuild"
	"github.com/retrace/retrace/internal/recorder"
	"github.com/retrace/retrace/internal/reloc"
	"github.com/retrace/retrace/internal/render"
	"github.com/retrace/retrace/internal/route"
	"github.com/retrace/retrace/internal/sensor"
	"github.com/retrace/retrace/pkg/geo"
)

// Engine errors. Recorder and route-store sentinels pass through unchanged.
var (
	// ErrSensorNotReady indicates a command that requires sensor readiness
	// arrived before tracking normalized.
	ErrSensorNotReady = errors.New("sensor not ready")
	// ErrInvalidEventKind indicates an unrecognized event kind.
	ErrInvalidEventKind = errors.New("invalid event kind")
)

// PhaseKind discriminates the session phase union.
type PhaseKind string

// Session phases.
const (
	PhaseIdle      PhaseKind = "idle"
	PhaseRecording PhaseKind = "recording"
	PhaseReplaying PhaseKind = "replaying"
)

// Phase is the authoritative session phase. RouteName is set only while
// replaying.
type Phase struct {
	Kind      PhaseKind
	RouteName string
}

// Listener receives presentation-facing engine events. The angle in
// LiveReadout is degrees; everything inside the engine stays radians.
type Listener interface {
	PhaseChanged(p Phase)
	Status(text string)
	LiveReadout(distanceMeters, angleDegrees float64)
}

// NopListener discards all events.
type NopListener struct{}

func (NopListener) PhaseChanged(Phase)          {}
func (NopListener) Status(string)               {}
func (NopListener) LiveReadout(float64, float64) {}

// replaySession is the transient state of one replay request. It is
// destroyed once the route has been displayed or the replay stopped.
type replaySession struct {
	route   *route.Route
	request *reloc.Request
}

// Engine is the navigation session state machine. All state mutation is
// serialized behind one mutex: commands and sensor callbacks may arrive from
// any goroutine, and async completions re-enter through methods that check
// session identity so stale results are discarded rather than applied.
type Engine struct {
	mu sync.Mutex

	logger   zerolog.Logger
	sensors  sensor.Layer
	renderer render.Renderer
	recorder *recorder.Recorder
	routes   *route.Service
	listener Listener

	phase       Phase
	session     *recorder.Session
	pendingSave *recorder.Session
	replay      *replaySession
	sensorReady bool
}

// Config holds configuration for the engine.
type Config struct {
	Sensors  sensor.Layer
	Renderer render.Renderer
	Routes   *route.Service
	Logger   zerolog.Logger

	// Listener receives presentation events; nil installs NopListener.
	Listener Listener
}

// New creates an engine in the Idle phase.
func New(cfg Config) *Engine {
	listener := cfg.Listener
	if listener == nil {
		listener = NopListener{}
	}

	return &Engine{
		logger:   cfg.Logger,
		sensors:  cfg.Sensors,
		renderer: cfg.Renderer,
		recorder: recorder.New(recorder.Config{
			Sensors:  cfg.Sensors,
			Renderer: cfg.Renderer,
			Logger:   cfg.Logger,
		}),
		routes:   cfg.Routes,
		listener: listener,
		phase:    Phase{Kind: PhaseIdle},
	}
}

// Phase returns the current session phase.
func (e *Engine) Phase() Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase
}

// SensorReady returns the current readiness flag.
func (e *Engine) SensorReady() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sensorReady
}

// setPhase mutates the phase and notifies the listener. Callers hold e.mu.
func (e *Engine) setPhase(p Phase) {
	e.phase = p
	e.logger.Info().
		Str("phase", string(p.Kind)).
		Str("route_name", p.RouteName).
		Msg("phase changed")
	e.listener.PhaseChanged(p)
}

// StartRecording opens a recording session. Fails with ErrSensorNotReady
// before tracking has normalized and with recorder.ErrNotTracking when the
// sensor has no current pose.
func (e *Engine) StartRecording(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.phase.Kind != PhaseIdle {
		return nil // command from a control that should have been disabled
	}
	if !e.sensorReady {
		return ErrSensorNotReady
	}

	s, err := e.recorder.Begin(ctx)
	if err != nil {
		return err
	}

	e.session = s
	e.setPhase(Phase{Kind: PhaseRecording})
	e.listener.Status("recording started")
	return nil
}

// MarkTurn commits the leg since the last turn. Outside Recording it is a
// silent no-op. The boolean reports whether a move item was committed; a
// too-short leg only refreshes the readout.
func (e *Engine) MarkTurn() (recorder.Measurement, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.phase.Kind != PhaseRecording || e.session == nil {
		return recorder.Measurement{}, false
	}

	pose, ok := e.sensors.CurrentPose()
	if !ok {
		e.listener.Status("no pose available")
		return recorder.Measurement{}, false
	}

	m, committed := e.recorder.MarkTurn(e.session, pose)
	if !committed {
		e.listener.Status("too short, keep walking")
	}
	e.listener.LiveReadout(m.Distance, geo.Degrees(m.Angle))
	return m, committed
}

// AddEvent appends an event marker to the open session. Outside Recording it
// is a silent no-op.
func (e *Engine) AddEvent(kind route.EventKind) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !route.ValidEventKind(kind) {
		return ErrInvalidEventKind
	}
	if e.phase.Kind != PhaseRecording || e.session == nil {
		return nil
	}

	// The item records regardless; only the live marker needs a pose.
	var at *geo.Vec3
	if pose, ok := e.sensors.CurrentPose(); ok {
		at = &pose.Position
	}
	e.recorder.AddEvent(e.session, kind, at)
	return nil
}

// SaveRoute finalizes the open session and persists it. The snapshot capture
// and the route write happen asynchronously; the phase leaves Recording
// immediately, which also guards against a second save for the same session.
// Fails synchronously with recorder.ErrNothingRecorded when nothing was
// captured, leaving the phase in Recording.
func (e *Engine) SaveRoute(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.phase.Kind != PhaseRecording || e.session == nil {
		return nil
	}

	pose, ok := e.sensors.CurrentPose()
	if !ok {
		// No residual leg can be measured; finalize against the last turn.
		pose = e.session.LastTurnPose
	}

	// The save outlives the command that triggered it: keep the caller's
	// values but drop its cancellation, otherwise an HTTP request context
	// cancels the snapshot capture and the route write mid-flight.
	saveCtx := context.WithoutCancel(ctx)

	done, err := e.recorder.FinalizeForSave(saveCtx, e.session, pose)
	if err != nil {
		return err
	}

	s := e.session
	e.session = nil
	e.pendingSave = s
	e.setPhase(Phase{Kind: PhaseIdle})
	e.listener.Status("saving route")

	go e.completeSave(saveCtx, s, done)
	return nil
}

// completeSave applies a finalized recording once snapshot capture settles.
// Completions for sessions that are no longer pending are discarded.
func (e *Engine) completeSave(ctx context.Context, s *recorder.Session, done <-chan recorder.Finalized) {
	fin, ok := <-done
	if !ok {
		return
	}

	e.mu.Lock()
	if e.pendingSave != s {
		e.mu.Unlock()
		e.logger.Debug().
			Str("session_id", s.ID).
			Msg("discarding save completion for stale session")
		return
	}
	e.pendingSave = nil
	e.mu.Unlock()

	rt, err := e.routes.Save(ctx, route.SaveInput{
		Items:        fin.Items,
		StartHeading: fin.StartHeading,
		Snapshot:     fin.Snapshot,
		AnchorKey:    fin.AnchorKey,
	})

	e.mu.Lock()
	defer e.mu.Unlock()

	if err != nil {
		e.logger.Error().Err(err).
			Str("session_id", s.ID).
			Msg("route save failed")
		// Hard failure: give the session back so the user can retry,
		// unless the engine has already moved on.
		if e.phase.Kind == PhaseIdle && e.session == nil {
			e.session = s
			e.setPhase(Phase{Kind: PhaseRecording})
		}
		e.listener.Status("save failed: " + err.Error())
		return
	}

	e.renderer.Clear()
	e.listener.Status("saved " + rt.Name)
}

// CancelRecording discards the open session. Always succeeds; outside
// Recording it is a silent no-op.
func (e *Engine) CancelRecording() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.phase.Kind != PhaseRecording || e.session == nil {
		return
	}

	e.recorder.Cancel(e.session)
	e.session = nil
	e.setPhase(Phase{Kind: PhaseIdle})
	e.listener.Status("recording cancelled")
}

// StartReplay begins replaying a saved route. The relocalization protocol
// resolves the replay start pose: routes with an environment snapshot wait
// for the tracker to relocalize, everything else is placed in front of the
// live pose.
func (e *Engine) StartReplay(ctx context.Context, routeID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.phase.Kind != PhaseIdle {
		return nil
	}

	rt, err := e.routes.Get(ctx, routeID)
	if err != nil {
		return err
	}

	blob, err := e.routes.Snapshot(ctx, rt)
	if err != nil {
		e.logger.Warn().Err(err).
			Str("route_id", rt.ID).
			Msg("snapshot fetch failed, replaying with fallback placement")
		blob = nil
	}

	req := reloc.New(reloc.Config{Sensors: e.sensors, Logger: e.logger})
	e.replay = &replaySession{route: rt, request: req}
	e.setPhase(Phase{Kind: PhaseReplaying, RouteName: rt.Name})

	if blob != nil {
		e.listener.Status("re-establishing reference, move the sensor")
	}

	if start, ok := req.Begin(ctx, rt, blob); ok {
		e.displayReplay(start)
	}
	return nil
}

// StopReplay discards the replay session and clears the displayed path.
// Outside Replaying it is a silent no-op.
func (e *Engine) StopReplay() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.phase.Kind != PhaseReplaying {
		return
	}

	e.replay = nil
	e.renderer.Clear()
	e.setPhase(Phase{Kind: PhaseIdle})
	e.listener.Status("replay stopped")
}

// OnPoseTick feeds a per-frame pose sample into the engine. While recording
// it refreshes the live readout; while replaying it retries a deferred
// fallback placement. Never mutates the authoritative item sequence.
func (e *Engine) OnPoseTick(pose geo.Pose) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.phase.Kind {
	case PhaseRecording:
		if e.session == nil {
			return
		}
		m := e.recorder.Readout(e.session, pose)
		e.listener.LiveReadout(m.Distance, geo.Degrees(m.Angle))

	case PhaseReplaying:
		if e.replay == nil || e.replay.request == nil {
			return
		}
		if start, ok := e.replay.request.OnPoseAvailable(); ok {
			e.displayReplay(start)
		}
	}
}

// OnTrackingQualityChanged feeds a tracking-quality change into the engine.
// Readiness follows quality; the phase never changes here.
func (e *Engine) OnTrackingQualityChanged(q sensor.Quality) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ready := q.Normal()
	if ready != e.sensorReady {
		e.sensorReady = ready
		e.logger.Info().
			Str("state", string(q.State)).
			Str("reason", q.Reason).
			Msg("sensor readiness changed")
		if e.phase.Kind == PhaseIdle {
			if ready {
				e.listener.Status("ready to record")
			} else {
				e.listener.Status("waiting for tracking")
			}
		}
	}

	if e.phase.Kind == PhaseReplaying && e.replay != nil && e.replay.request != nil {
		if start, ok := e.replay.request.OnTrackingQuality(q); ok {
			e.displayReplay(start)
		}
	}
}

// displayReplay reconstructs the route from the resolved start and emits the
// full set of draw commands. Runs exactly once per replay request; the
// relocalization request is dropped afterwards. Callers hold e.mu.
func (e *Engine) displayReplay(start reloc.Start) {
	rt := e.replay.route
	waypoints := rebuild.Reconstruct(rt.Items, start.Position, start.Heading)

	e.renderer.MarkerAt(render.MarkerStart, start.Position)
	prev := start.Position
	var lastMove *geo.Vec3
	for _, wp := range waypoints {
		if wp.Item.IsMove() {
			e.renderer.Ribbon(prev, wp.Position, render.ColorReplay)
			e.renderer.MarkerAt(render.MarkerTurn, wp.Position)
			prev = wp.Position
			p := wp.Position
			lastMove = &p
		} else {
			e.renderer.EventMarkerAt(string(wp.Item.Kind), wp.Position)
		}
	}
	if lastMove != nil {
		e.renderer.MarkerAt(render.MarkerGoal, *lastMove)
	}

	// Relocalization is complete; a fresh replay request is required to
	// re-run it.
	e.replay.request = nil

	if start.Fallback {
		e.listener.Status("showing " + rt.Name + " near your position")
	} else {
		e.listener.Status("showing " + rt.Name + " at its original location")
	}
}
