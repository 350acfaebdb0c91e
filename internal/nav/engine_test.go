package nav

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/retrace/retrace/internal/render"
	"github.com/retrace/retrace/internal/route"
	"github.com/retrace/retrace/internal/sensor"
	"github.com/retrace/retrace/internal/snapshot"
	"github.com/retrace/retrace/pkg/geo"
)

// spyListener records engine events for assertions.
type spyListener struct {
	mu       sync.Mutex
	phases   []Phase
	statuses []string
	readouts int
}

func (l *spyListener) PhaseChanged(p Phase) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.phases = append(l.phases, p)
}

func (l *spyListener) Status(text string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.statuses = append(l.statuses, text)
}

func (l *spyListener) LiveReadout(float64, float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.readouts++
}

func (l *spyListener) lastStatus() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.statuses) == 0 {
		return ""
	}
	return l.statuses[len(l.statuses)-1]
}

func (l *spyListener) sawStatus(text string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, s := range l.statuses {
		if s == text {
			return true
		}
	}
	return false
}

// waitSaveOutcome blocks until the asynchronous save reports a terminal
// status, either "saved <name>" or "save failed: <err>".
func (l *spyListener) waitSaveOutcome(t *testing.T) string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		l.mu.Lock()
		for _, s := range l.statuses {
			if strings.HasPrefix(s, "saved ") || strings.HasPrefix(s, "save failed") {
				l.mu.Unlock()
				return s
			}
		}
		l.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timed out waiting for a save outcome")
	return ""
}

type fixture struct {
	engine   *Engine
	sim      *sensor.Sim
	spy      *render.Recorder
	listener *spyListener
	routes   *route.Service
	blobs    *snapshot.MemoryStore
}

func newFixture() *fixture {
	sim := sensor.NewSim()
	spy := &render.Recorder{}
	listener := &spyListener{}
	blobs := snapshot.NewMemoryStore()
	routes := route.NewService(route.ServiceConfig{
		Repository: route.NewInMemoryRepository(),
		Snapshots:  blobs,
		Logger:     zerolog.Nop(),
	})

	engine := New(Config{
		Sensors:  sim,
		Renderer: spy,
		Routes:   routes,
		Logger:   zerolog.Nop(),
		Listener: listener,
	})

	return &fixture{engine: engine, sim: sim, spy: spy, listener: listener, routes: routes, blobs: blobs}
}

// ready brings the fixture to a recordable state: normal tracking and a pose
// at the origin facing -Z.
func (f *fixture) ready() {
	f.engine.OnTrackingQualityChanged(sensor.Quality{State: sensor.TrackingNormal})
	f.sim.SetPose(geo.PoseAt(geo.Vec3{}, 0))
}

func (f *fixture) waitIdleSaveSettled(t *testing.T) {
	t.Helper()
	f.listener.waitSaveOutcome(t)
}

// ctxStrictRepository fails the way a network-backed repository would once
// the caller's context is cancelled.
type ctxStrictRepository struct {
	inner route.Repository
}

func (r *ctxStrictRepository) Create(ctx context.Context, rt *route.Route) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.inner.Create(ctx, rt)
}

func (r *ctxStrictRepository) Get(ctx context.Context, id string) (*route.Route, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.inner.Get(ctx, id)
}

func (r *ctxStrictRepository) List(ctx context.Context) ([]route.Summary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.inner.List(ctx)
}

func (r *ctxStrictRepository) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.inner.Delete(ctx, id)
}

// ctxStrictSensors rejects snapshot captures under a cancelled context, the
// way a tracker bridge doing real I/O would.
type ctxStrictSensors struct {
	*sensor.Sim
}

func (s *ctxStrictSensors) CaptureSnapshot(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.Sim.CaptureSnapshot(ctx)
}

func TestStartRecording_SensorNotReady(t *testing.T) {
	f := newFixture()
	f.sim.SetPose(geo.PoseAt(geo.Vec3{}, 0))

	err := f.engine.StartRecording(context.Background())
	if !errors.Is(err, ErrSensorNotReady) {
		t.Errorf("expected ErrSensorNotReady, got %v", err)
	}
	if f.engine.Phase().Kind != PhaseIdle {
		t.Errorf("phase must stay Idle, got %q", f.engine.Phase().Kind)
	}
}

func TestStartRecording_TransitionsToRecording(t *testing.T) {
	f := newFixture()
	f.ready()

	if err := f.engine.StartRecording(context.Background()); err != nil {
		t.Fatalf("failed to start recording: %v", err)
	}
	if f.engine.Phase().Kind != PhaseRecording {
		t.Errorf("expected Recording, got %q", f.engine.Phase().Kind)
	}
	if !f.listener.sawStatus("recording started") {
		t.Error("expected a recording-started status")
	}
}

func TestMarkTurn_OutsideRecordingIsSilent(t *testing.T) {
	f := newFixture()
	f.ready()

	if _, committed := f.engine.MarkTurn(); committed {
		t.Error("mark turn in Idle must not commit")
	}
	if f.engine.Phase().Kind != PhaseIdle {
		t.Errorf("phase must stay Idle, got %q", f.engine.Phase().Kind)
	}
}

func TestMarkTurn_TooShortKeepsRecording(t *testing.T) {
	f := newFixture()
	f.ready()
	if err := f.engine.StartRecording(context.Background()); err != nil {
		t.Fatalf("failed to start recording: %v", err)
	}

	f.sim.SetPose(geo.PoseAt(geo.Vec3{Z: -0.01}, 0))
	if _, committed := f.engine.MarkTurn(); committed {
		t.Error("short leg must not commit")
	}
	if f.listener.lastStatus() != "too short, keep walking" {
		t.Errorf("expected short-leg status, got %q", f.listener.lastStatus())
	}
}

func TestAddEvent_InvalidKind(t *testing.T) {
	f := newFixture()
	f.ready()

	if err := f.engine.AddEvent("escalator"); !errors.Is(err, ErrInvalidEventKind) {
		t.Errorf("expected ErrInvalidEventKind, got %v", err)
	}
}

func TestSaveRoute_NothingRecordedStaysRecording(t *testing.T) {
	f := newFixture()
	f.ready()
	if err := f.engine.StartRecording(context.Background()); err != nil {
		t.Fatalf("failed to start recording: %v", err)
	}

	err := f.engine.SaveRoute(context.Background())
	if err == nil {
		t.Fatal("expected an error for an empty save")
	}
	if f.engine.Phase().Kind != PhaseRecording {
		t.Errorf("empty save must stay Recording, got %q", f.engine.Phase().Kind)
	}
}

func TestSaveRoute_Full(t *testing.T) {
	f := newFixture()
	f.ready()
	f.sim.SetSnapshot([]byte("worldmap"))

	ctx := context.Background()
	if err := f.engine.StartRecording(ctx); err != nil {
		t.Fatalf("failed to start recording: %v", err)
	}

	f.sim.SetPose(geo.PoseAt(geo.Vec3{Z: -2}, 0))
	if _, committed := f.engine.MarkTurn(); !committed {
		t.Fatal("expected turn to commit")
	}
	if err := f.engine.AddEvent(route.EventDoor); err != nil {
		t.Fatalf("failed to add event: %v", err)
	}

	if err := f.engine.SaveRoute(ctx); err != nil {
		t.Fatalf("failed to save route: %v", err)
	}
	if f.engine.Phase().Kind != PhaseIdle {
		t.Errorf("phase must leave Recording immediately, got %q", f.engine.Phase().Kind)
	}

	f.waitIdleSaveSettled(t)

	summaries, err := f.routes.List(ctx)
	if err != nil {
		t.Fatalf("failed to list routes: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("expected 1 saved route, got %d", len(summaries))
	}
	if summaries[0].MoveCount != 1 || summaries[0].EventCount != 1 {
		t.Errorf("unexpected counts %+v", summaries[0])
	}
	if f.blobs.Len() != 1 {
		t.Errorf("expected the environment snapshot to be stored, got %d blobs", f.blobs.Len())
	}
}

func TestSaveRoute_OutlivesCallerContext(t *testing.T) {
	sim := sensor.NewSim()
	spy := &render.Recorder{}
	listener := &spyListener{}
	blobs := snapshot.NewMemoryStore()
	routes := route.NewService(route.ServiceConfig{
		Repository: &ctxStrictRepository{inner: route.NewInMemoryRepository()},
		Snapshots:  blobs,
		Logger:     zerolog.Nop(),
	})
	engine := New(Config{
		Sensors:  &ctxStrictSensors{Sim: sim},
		Renderer: spy,
		Routes:   routes,
		Logger:   zerolog.Nop(),
		Listener: listener,
	})

	engine.OnTrackingQualityChanged(sensor.Quality{State: sensor.TrackingNormal})
	sim.SetPose(geo.PoseAt(geo.Vec3{}, 0))
	sim.SetSnapshot([]byte("worldmap"))

	ctx, cancel := context.WithCancel(context.Background())
	if err := engine.StartRecording(ctx); err != nil {
		t.Fatalf("failed to start recording: %v", err)
	}
	sim.SetPose(geo.PoseAt(geo.Vec3{Z: -2}, 0))
	if _, committed := engine.MarkTurn(); !committed {
		t.Fatal("expected turn to commit")
	}

	if err := engine.SaveRoute(ctx); err != nil {
		t.Fatalf("failed to save route: %v", err)
	}
	// An HTTP caller's context dies as soon as the handler responds; the
	// snapshot capture and the route write must not die with it.
	cancel()

	outcome := listener.waitSaveOutcome(t)
	if !strings.HasPrefix(outcome, "saved ") {
		t.Fatalf("expected the save to succeed, got %q", outcome)
	}

	summaries, err := routes.List(context.Background())
	if err != nil {
		t.Fatalf("failed to list routes: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("expected 1 saved route, got %d", len(summaries))
	}
	if blobs.Len() != 1 {
		t.Errorf("expected the environment snapshot to be stored, got %d blobs", blobs.Len())
	}
}

func TestAddEvent_WithoutPoseStillRecords(t *testing.T) {
	f := newFixture()
	f.ready()
	if err := f.engine.StartRecording(context.Background()); err != nil {
		t.Fatalf("failed to start recording: %v", err)
	}

	f.sim.ClearPose()
	if err := f.engine.AddEvent(route.EventDoor); err != nil {
		t.Fatalf("failed to add event: %v", err)
	}

	f.engine.mu.Lock()
	items := len(f.engine.session.Items)
	f.engine.mu.Unlock()
	if items != 1 {
		t.Fatalf("expected the event item to record without a pose, got %d items", items)
	}
	if len(f.spy.EventMarkers) != 0 {
		t.Errorf("event without a pose must not draw a marker, got %+v", f.spy.EventMarkers)
	}
}

func TestCancelRecording_DiscardsSession(t *testing.T) {
	f := newFixture()
	f.ready()
	ctx := context.Background()
	if err := f.engine.StartRecording(ctx); err != nil {
		t.Fatalf("failed to start recording: %v", err)
	}

	f.sim.SetPose(geo.PoseAt(geo.Vec3{Z: -2}, 0))
	f.engine.MarkTurn()
	f.engine.CancelRecording()

	if f.engine.Phase().Kind != PhaseIdle {
		t.Errorf("expected Idle after cancel, got %q", f.engine.Phase().Kind)
	}
	if f.spy.Clears == 0 {
		t.Error("cancel must clear the renderer")
	}

	summaries, err := f.routes.List(ctx)
	if err != nil {
		t.Fatalf("failed to list routes: %v", err)
	}
	if len(summaries) != 0 {
		t.Errorf("cancelled session must not persist anything, got %d routes", len(summaries))
	}
}

func TestStartReplay_FallbackDisplaysImmediately(t *testing.T) {
	f := newFixture()
	f.ready()
	ctx := context.Background()

	rt, err := f.routes.Save(ctx, route.SaveInput{
		Items: []route.Item{route.Move(1, 0), route.Move(1, 0)},
	})
	if err != nil {
		t.Fatalf("failed to seed route: %v", err)
	}

	if err := f.engine.StartReplay(ctx, rt.ID); err != nil {
		t.Fatalf("failed to start replay: %v", err)
	}

	phase := f.engine.Phase()
	if phase.Kind != PhaseReplaying || phase.RouteName != rt.Name {
		t.Errorf("unexpected phase %+v", phase)
	}

	// Snapshot-less route with a live pose: drawn in one call, start plus
	// two turn markers plus goal.
	if len(f.spy.Markers) != 4 {
		t.Fatalf("expected 4 markers, got %+v", f.spy.Markers)
	}
	if len(f.spy.Ribbons) != 2 {
		t.Errorf("expected 2 ribbons, got %d", len(f.spy.Ribbons))
	}
	if !f.listener.sawStatus("showing " + rt.Name + " near your position") {
		t.Error("expected the fallback-placement status")
	}
}

func TestStartReplay_WithSnapshotWaitsForTracking(t *testing.T) {
	f := newFixture()
	f.ready()
	ctx := context.Background()

	// Record through the engine so a real anchor lands in the tracker map.
	f.sim.SetSnapshot([]byte("worldmap"))
	if err := f.engine.StartRecording(ctx); err != nil {
		t.Fatalf("failed to start recording: %v", err)
	}
	f.sim.SetPose(geo.PoseAt(geo.Vec3{Z: -2}, 0))
	if _, committed := f.engine.MarkTurn(); !committed {
		t.Fatal("expected turn to commit")
	}
	if err := f.engine.SaveRoute(ctx); err != nil {
		t.Fatalf("failed to save route: %v", err)
	}
	f.waitIdleSaveSettled(t)

	summaries, err := f.routes.List(ctx)
	if err != nil || len(summaries) != 1 {
		t.Fatalf("expected 1 saved route, got %d (err %v)", len(summaries), err)
	}

	markersBefore := len(f.spy.Markers)
	if err := f.engine.StartReplay(ctx, summaries[0].ID); err != nil {
		t.Fatalf("failed to start replay: %v", err)
	}

	// Nothing drawn until tracking normalizes again.
	if len(f.spy.Markers) != markersBefore {
		t.Error("route must not be drawn before relocalization resolves")
	}
	if !f.listener.sawStatus("re-establishing reference, move the sensor") {
		t.Error("expected the relocalization prompt")
	}

	f.engine.OnTrackingQualityChanged(sensor.Quality{State: sensor.TrackingNormal})
	if len(f.spy.Markers) == markersBefore {
		t.Error("expected the route to be drawn after tracking normalized")
	}
	if !f.listener.sawStatus("showing "+summaries[0].Name+" at its original location") {
		t.Error("expected the anchored-placement status")
	}
}

func TestStartReplay_UnknownRoute(t *testing.T) {
	f := newFixture()
	f.ready()

	err := f.engine.StartReplay(context.Background(), "rte_missing")
	if !errors.Is(err, route.ErrRouteNotFound) {
		t.Errorf("expected ErrRouteNotFound, got %v", err)
	}
	if f.engine.Phase().Kind != PhaseIdle {
		t.Errorf("phase must stay Idle, got %q", f.engine.Phase().Kind)
	}
}

func TestStopReplay(t *testing.T) {
	f := newFixture()
	f.ready()
	ctx := context.Background()

	rt, err := f.routes.Save(ctx, route.SaveInput{Items: []route.Item{route.Move(1, 0)}})
	if err != nil {
		t.Fatalf("failed to seed route: %v", err)
	}
	if err := f.engine.StartReplay(ctx, rt.ID); err != nil {
		t.Fatalf("failed to start replay: %v", err)
	}

	clearsBefore := f.spy.Clears
	f.engine.StopReplay()
	if f.engine.Phase().Kind != PhaseIdle {
		t.Errorf("expected Idle after stop, got %q", f.engine.Phase().Kind)
	}
	if f.spy.Clears != clearsBefore+1 {
		t.Error("stop must clear the displayed path")
	}
}

func TestOnPoseTick_RecordingEmitsReadout(t *testing.T) {
	f := newFixture()
	f.ready()
	if err := f.engine.StartRecording(context.Background()); err != nil {
		t.Fatalf("failed to start recording: %v", err)
	}

	before := f.listener.readouts
	f.engine.OnPoseTick(geo.PoseAt(geo.Vec3{Z: -0.5}, 0))
	if f.listener.readouts != before+1 {
		t.Error("expected a live readout per pose tick")
	}
}

func TestOnPoseTick_ResolvesDeferredFallback(t *testing.T) {
	f := newFixture()
	f.engine.OnTrackingQualityChanged(sensor.Quality{State: sensor.TrackingNormal})
	ctx := context.Background()

	rt, err := f.routes.Save(ctx, route.SaveInput{Items: []route.Item{route.Move(1, 0)}})
	if err != nil {
		t.Fatalf("failed to seed route: %v", err)
	}

	// No live pose yet: the fallback placement is deferred.
	if err := f.engine.StartReplay(ctx, rt.ID); err != nil {
		t.Fatalf("failed to start replay: %v", err)
	}
	if len(f.spy.Markers) != 0 {
		t.Fatal("route must not be drawn without a live pose")
	}

	f.sim.SetPose(geo.PoseAt(geo.Vec3{}, 0))
	f.engine.OnPoseTick(geo.PoseAt(geo.Vec3{}, 0))
	if len(f.spy.Markers) == 0 {
		t.Error("expected the route to be drawn once a pose arrived")
	}
}

func TestOnTrackingQualityChanged_TogglesReadiness(t *testing.T) {
	f := newFixture()

	if f.engine.SensorReady() {
		t.Fatal("engine must start not ready")
	}
	f.engine.OnTrackingQualityChanged(sensor.Quality{State: sensor.TrackingNormal})
	if !f.engine.SensorReady() {
		t.Error("expected readiness after normal quality")
	}
	if !f.listener.sawStatus("ready to record") {
		t.Error("expected the ready status")
	}

	f.engine.OnTrackingQualityChanged(sensor.Quality{State: sensor.TrackingLimited, Reason: "low light"})
	if f.engine.SensorReady() {
		t.Error("expected readiness to drop on limited quality")
	}
}
