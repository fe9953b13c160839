package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aegisstack/aegis-fusion/internal/broadcast"
	"github.com/aegisstack/aegis-fusion/internal/config"
	"github.com/aegisstack/aegis-fusion/internal/engine"
	"github.com/aegisstack/aegis-fusion/internal/geo"
	"github.com/aegisstack/aegis-fusion/internal/models"
	"github.com/aegisstack/aegis-fusion/internal/patterns"
	"github.com/aegisstack/aegis-fusion/internal/repo"
)

// fakeStore is an in-memory Store double.
type fakeStore struct {
	mu      sync.Mutex
	threats map[int64]*models.ThreatDetection
	units   map[string]*models.FriendlyUnit
	sitreps map[int64]*models.Sitrep
	nextID  int64
	failAll bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		threats: map[int64]*models.ThreatDetection{},
		units:   map[string]*models.FriendlyUnit{},
		sitreps: map[int64]*models.Sitrep{},
	}
}

var errStoreDown = errors.New("store down")

func (f *fakeStore) CreateThreat(_ context.Context, t *models.ThreatDetection) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return errStoreDown
	}
	f.nextID++
	t.ID = f.nextID
	cp := *t
	f.threats[t.ID] = &cp
	return nil
}

func (f *fakeStore) GetThreat(_ context.Context, id int64) (*models.ThreatDetection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.threats[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (f *fakeStore) ListActiveThreats(_ context.Context, _ *geo.Bounds) ([]models.ThreatDetection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return nil, errStoreDown
	}
	var out []models.ThreatDetection
	for _, t := range f.threats {
		if t.Active {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (f *fakeStore) ListThreatsSince(_ context.Context, since time.Time, _ *geo.Bounds) ([]models.ThreatDetection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ThreatDetection
	for _, t := range f.threats {
		if !t.DetectedAt.Before(since) {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (f *fakeStore) VerifyThreat(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.threats[id]
	if !ok {
		return repo.ErrNotFound
	}
	t.Verified = true
	return nil
}

func (f *fakeStore) DeactivateThreat(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.threats[id]
	if !ok {
		return repo.ErrNotFound
	}
	t.Active = false
	return nil
}

func (f *fakeStore) UpsertUnit(_ context.Context, u *models.FriendlyUnit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *u
	f.units[u.UnitID] = &cp
	return nil
}

func (f *fakeStore) GetUnit(_ context.Context, unitID string) (*models.FriendlyUnit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.units[unitID]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeStore) ListActiveUnits(_ context.Context, _ *geo.Bounds) ([]models.FriendlyUnit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.FriendlyUnit
	for _, u := range f.units {
		if u.Active {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateUnitPosition(_ context.Context, unitID string, pos geo.Point, altitude, heading, speed *float64, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.units[unitID]
	if !ok {
		return repo.ErrNotFound
	}
	u.Position = pos
	if altitude != nil {
		u.Altitude = altitude
	}
	if heading != nil {
		u.HeadingDeg = heading
	}
	if speed != nil {
		u.SpeedMS = speed
	}
	u.LastContact = at
	return nil
}

func (f *fakeStore) DeactivateUnit(_ context.Context, unitID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.units[unitID]
	if !ok {
		return repo.ErrNotFound
	}
	u.Active = false
	return nil
}

func (f *fakeStore) CreateSitrep(_ context.Context, r *models.Sitrep) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	r.ID = f.nextID
	cp := *r
	f.sitreps[r.ID] = &cp
	return nil
}

func (f *fakeStore) GetSitrep(_ context.Context, id int64) (*models.Sitrep, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.sitreps[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *fakeStore) ListActiveSitreps(_ context.Context, limit int) ([]models.Sitrep, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Sitrep
	for _, r := range f.sitreps {
		if r.Active && len(out) < limit {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeStore) DeactivateSitrep(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.sitreps[id]
	if !ok {
		return repo.ErrNotFound
	}
	r.Active = false
	return nil
}

// fakeAnalyzer returns canned detections.
type fakeAnalyzer struct {
	detections []models.ThreatDetection
	err        error
}

func (f *fakeAnalyzer) AnalyzeImage(context.Context, []byte, *geo.Point) ([]models.ThreatDetection, error) {
	return f.detections, f.err
}

func (f *fakeAnalyzer) AnalyzeText(context.Context, string, *geo.Point) ([]models.ThreatDetection, error) {
	return f.detections, f.err
}

// recordingSink captures published events.
type recordingSink struct {
	mu     sync.Mutex
	events []struct {
		channel string
		event   broadcast.Event
	}
}

func (r *recordingSink) Publish(channel string, event broadcast.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, struct {
		channel string
		event   broadcast.Event
	}{channel, event})
}

func (r *recordingSink) byChannel(channel string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.channel == channel {
			n++
		}
	}
	return n
}

func newTestService(store *fakeStore, analyzer Analyzer, sink broadcast.Sink) *TacticalService {
	return NewTacticalService(Deps{
		Store:     store,
		Analyzer:  analyzer,
		Pipeline:  engine.NewPipeline(engine.NewCorrelator(nil), engine.NewAssessor(nil), engine.NewRecommender(nil), nil),
		Monitor:   engine.NewProximityMonitor(nil),
		Optimizer: engine.NewDeploymentOptimizer(nil),
		Miner:     patterns.NewMiner(nil),
		Predictor: patterns.NewPredictor(nil),
		Sink:      sink,
		Fusion: config.FusionConfig{
			CorrelationRadiusKm: 0.5,
			TimeWindowHours:     1.0,
			ProximityThresholdM: 1000,
			HistoricalDays:      7,
			HorizonHours:        24,
		},
		CacheTTL: 30 * time.Second,
	})
}

func seedUnit(t *testing.T, s *TacticalService, id string, lat, lon float64) {
	t.Helper()
	err := s.RegisterUnit(context.Background(), &models.FriendlyUnit{
		UnitID:   id,
		Name:     "Unit " + id,
		Position: geo.Point{Lat: lat, Lon: lon},
		Status:   models.StatusGreen,
	})
	if err != nil {
		t.Fatalf("RegisterUnit %s: %v", id, err)
	}
}

func TestTacticalPictureEndToEnd(t *testing.T) {
	store := newFakeStore()
	sink := &recordingSink{}
	svc := newTestService(store, &fakeAnalyzer{}, sink)
	ctx := context.Background()

	err := svc.ReportThreat(ctx, &models.ThreatDetection{
		Type:       models.ThreatArtillery,
		Level:      models.LevelHigh,
		Confidence: 0.8,
		Position:   geo.Point{Lat: 34.0522, Lon: -118.2437},
		Source:     models.SourceDrone,
	})
	if err != nil {
		t.Fatalf("ReportThreat: %v", err)
	}
	seedUnit(t, svc, "alpha", 34.0560, -118.2437)

	picture, err := svc.TacticalPicture(ctx, nil)
	if err != nil {
		t.Fatalf("TacticalPicture: %v", err)
	}
	if picture.Threats.Total != 1 || picture.FriendlyForces.Total != 1 {
		t.Errorf("picture = %+v", picture)
	}
	if picture.Assessment.UnitsAtRisk != 1 {
		t.Errorf("units at risk = %d, want 1", picture.Assessment.UnitsAtRisk)
	}
	if sink.byChannel(broadcast.ChannelTactical) != 1 {
		t.Error("expected a tactical_update broadcast")
	}
	if sink.byChannel(broadcast.ChannelThreats) != 1 {
		t.Error("expected a threat_update broadcast")
	}
	if svc.PictureLatencyP95() <= 0 {
		t.Error("latency tracker should have a sample")
	}
}

func TestReportThreatRejectsBadPosition(t *testing.T) {
	svc := newTestService(newFakeStore(), &fakeAnalyzer{}, &recordingSink{})
	err := svc.ReportThreat(context.Background(), &models.ThreatDetection{
		Position: geo.Point{Lat: 95, Lon: 0},
	})
	if !errors.Is(err, geo.ErrInvalidCoordinate) {
		t.Fatalf("err = %v, want ErrInvalidCoordinate", err)
	}
}

func TestAnalyzePersistsDetections(t *testing.T) {
	store := newFakeStore()
	analyzer := &fakeAnalyzer{detections: []models.ThreatDetection{
		{
			Type:       models.ThreatVehicle,
			Level:      models.LevelMedium,
			Confidence: 0.6,
			Position:   geo.Point{Lat: 34.05, Lon: -118.24},
			Source:     models.SourceManual,
			DetectedAt: time.Now().UTC(),
			Active:     true,
		},
	}}
	sink := &recordingSink{}
	svc := newTestService(store, analyzer, sink)

	dets, err := svc.AnalyzeText(context.Background(), "vehicle at grid", nil)
	if err != nil {
		t.Fatalf("AnalyzeText: %v", err)
	}
	if len(dets) != 1 || dets[0].ID == 0 {
		t.Errorf("detections = %+v, want one with assigned id", dets)
	}
	if sink.byChannel(broadcast.ChannelThreats) != 1 {
		t.Error("expected a threat_update broadcast")
	}
}

func TestAnalyzeBackendFailure(t *testing.T) {
	svc := newTestService(newFakeStore(), &fakeAnalyzer{err: errors.New("backend down")}, &recordingSink{})
	if _, err := svc.AnalyzeImage(context.Background(), []byte{1}, nil); err == nil {
		t.Fatal("expected analyzer error")
	}
}

func TestProximityAlertsDefaultThreshold(t *testing.T) {
	store := newFakeStore()
	sink := &recordingSink{}
	svc := newTestService(store, &fakeAnalyzer{}, sink)

	seedUnit(t, svc, "alpha", 34.0522, -118.2437)
	seedUnit(t, svc, "bravo", 34.0560, -118.2437) // ~420m apart

	alerts, err := svc.ProximityAlerts(context.Background(), 0)
	if err != nil {
		t.Fatalf("ProximityAlerts: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("alerts = %d, want 1 at default 1000m threshold", len(alerts))
	}
	if sink.byChannel(broadcast.ChannelTracking) < 1 {
		t.Error("expected a tracking broadcast for the alerts")
	}
}

func TestOptimizeDeploymentAvailabilityFilter(t *testing.T) {
	svc := newTestService(newFakeStore(), &fakeAnalyzer{}, &recordingSink{})
	seedUnit(t, svc, "alpha", 34.06, -118.24)
	seedUnit(t, svc, "bravo", 34.10, -118.24)

	recs, err := svc.OptimizeDeployment(context.Background(),
		geo.Point{Lat: 34.05, Lon: -118.24}, []string{"bravo"})
	if err != nil {
		t.Fatalf("OptimizeDeployment: %v", err)
	}
	if len(recs) != 1 || recs[0].UnitID != "bravo" {
		t.Errorf("recs = %+v, want bravo only", recs)
	}

	// Empty availability list means every active unit is a candidate.
	recs, err = svc.OptimizeDeployment(context.Background(),
		geo.Point{Lat: 34.05, Lon: -118.24}, nil)
	if err != nil {
		t.Fatalf("OptimizeDeployment: %v", err)
	}
	if len(recs) != 2 {
		t.Errorf("recs = %d, want 2", len(recs))
	}
}

func TestUpdateUnitPositionUnknownUnit(t *testing.T) {
	svc := newTestService(newFakeStore(), &fakeAnalyzer{}, &recordingSink{})
	err := svc.UpdateUnitPosition(context.Background(), "ghost",
		geo.Point{Lat: 34, Lon: -118}, nil, nil, nil)
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestPredictThreatsFromHistory(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeAnalyzer{}, &recordingSink{})
	ctx := context.Background()

	// A recurring cluster of four detections at the same spot.
	for i := 0; i < 4; i++ {
		err := svc.ReportThreat(ctx, &models.ThreatDetection{
			Type:       models.ThreatIED,
			Level:      models.LevelHigh,
			Confidence: 0.7,
			Position:   geo.Point{Lat: 34.0522, Lon: -118.2437},
			Source:     models.SourceSensor,
		})
		if err != nil {
			t.Fatalf("ReportThreat: %v", err)
		}
	}

	preds, err := svc.PredictThreats(ctx, 7, 24, nil)
	if err != nil {
		t.Fatalf("PredictThreats: %v", err)
	}
	if len(preds) != 1 {
		t.Fatalf("predictions = %d, want 1", len(preds))
	}
	if preds[0].Type != models.ThreatIED {
		t.Errorf("prediction = %+v", preds[0])
	}
}

func TestSitrepLifecycle(t *testing.T) {
	store := newFakeStore()
	sink := &recordingSink{}
	svc := newTestService(store, &fakeAnalyzer{}, sink)
	ctx := context.Background()

	r := &models.Sitrep{Title: "Contact", Situation: "Taking fire", Source: "manual"}
	if err := svc.SubmitSitrep(ctx, r); err != nil {
		t.Fatalf("SubmitSitrep: %v", err)
	}
	if r.ID == 0 || r.Priority != models.PriorityRoutine {
		t.Errorf("sitrep = %+v", r)
	}

	listed, err := svc.Sitreps(ctx, 0)
	if err != nil {
		t.Fatalf("Sitreps: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("sitreps = %d, want 1", len(listed))
	}

	if err := svc.DeactivateSitrep(ctx, r.ID); err != nil {
		t.Fatalf("DeactivateSitrep: %v", err)
	}
	listed, _ = svc.Sitreps(ctx, 0)
	if len(listed) != 0 {
		t.Errorf("sitreps after deactivate = %d, want 0", len(listed))
	}
	if sink.byChannel(broadcast.ChannelSitrep) != 2 {
		t.Errorf("sitrep broadcasts = %d, want 2", sink.byChannel(broadcast.ChannelSitrep))
	}
}

func TestTacticalPictureStoreFailure(t *testing.T) {
	store := newFakeStore()
	store.failAll = true
	svc := newTestService(store, &fakeAnalyzer{}, &recordingSink{})
	if _, err := svc.TacticalPicture(context.Background(), nil); err == nil {
		t.Fatal("expected store failure to surface")
	}
}
