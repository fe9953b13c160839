// Package services hosts the tactical service facade: the single entry
// point HTTP handlers and the MQTT consumer call into. It owns the wiring
// between the store, the computation engines, the analyzer and the
// broadcast hub.
package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/aegisstack/aegis-fusion/internal/broadcast"
	"github.com/aegisstack/aegis-fusion/internal/cache"
	"github.com/aegisstack/aegis-fusion/internal/config"
	"github.com/aegisstack/aegis-fusion/internal/engine"
	"github.com/aegisstack/aegis-fusion/internal/geo"
	"github.com/aegisstack/aegis-fusion/internal/metrics"
	"github.com/aegisstack/aegis-fusion/internal/models"
	"github.com/aegisstack/aegis-fusion/internal/patterns"
	"github.com/aegisstack/aegis-fusion/internal/utils"
)

// pictureCacheKey holds the latest unbounded tactical picture.
const pictureCacheKey = "tactical:picture"

// Store is the persistence surface the service needs.
type Store interface {
	CreateThreat(ctx context.Context, t *models.ThreatDetection) error
	GetThreat(ctx context.Context, id int64) (*models.ThreatDetection, error)
	ListActiveThreats(ctx context.Context, bounds *geo.Bounds) ([]models.ThreatDetection, error)
	ListThreatsSince(ctx context.Context, since time.Time, bounds *geo.Bounds) ([]models.ThreatDetection, error)
	VerifyThreat(ctx context.Context, id int64) error
	DeactivateThreat(ctx context.Context, id int64) error

	UpsertUnit(ctx context.Context, u *models.FriendlyUnit) error
	GetUnit(ctx context.Context, unitID string) (*models.FriendlyUnit, error)
	ListActiveUnits(ctx context.Context, bounds *geo.Bounds) ([]models.FriendlyUnit, error)
	UpdateUnitPosition(ctx context.Context, unitID string, pos geo.Point, altitude, heading, speed *float64, at time.Time) error
	DeactivateUnit(ctx context.Context, unitID string) error

	CreateSitrep(ctx context.Context, r *models.Sitrep) error
	GetSitrep(ctx context.Context, id int64) (*models.Sitrep, error)
	ListActiveSitreps(ctx context.Context, limit int) ([]models.Sitrep, error)
	DeactivateSitrep(ctx context.Context, id int64) error
}

// Analyzer is the AI analysis surface the service needs.
type Analyzer interface {
	AnalyzeImage(ctx context.Context, image []byte, position *geo.Point) ([]models.ThreatDetection, error)
	AnalyzeText(ctx context.Context, text string, position *geo.Point) ([]models.ThreatDetection, error)
}

// Deps collects the collaborators for NewTacticalService.
type Deps struct {
	Store     Store
	Analyzer  Analyzer
	Pipeline  *engine.Pipeline
	Monitor   *engine.ProximityMonitor
	Optimizer *engine.DeploymentOptimizer
	Miner     *patterns.Miner
	Predictor *patterns.Predictor
	Sink      broadcast.Sink
	Cache     cache.Provider
	Metrics   *metrics.Metrics
	Fusion    config.FusionConfig
	CacheTTL  time.Duration
	Logger    *slog.Logger
}

// TacticalService coordinates persistence, computation and broadcast.
type TacticalService struct {
	store     Store
	analyzer  Analyzer
	pipeline  *engine.Pipeline
	monitor   *engine.ProximityMonitor
	optimizer *engine.DeploymentOptimizer
	miner     *patterns.Miner
	predictor *patterns.Predictor
	sink      broadcast.Sink
	cache     cache.Provider
	metrics   *metrics.Metrics
	fusion    config.FusionConfig
	cacheTTL  time.Duration
	latency   *utils.LatencyTracker
	logger    *slog.Logger
}

// NewTacticalService wires the facade. Sink and Cache may be the noop
// implementations; Metrics may be nil in tests.
func NewTacticalService(deps Deps) *TacticalService {
	sink := deps.Sink
	if sink == nil {
		sink = broadcast.NoopSink{}
	}
	cp := deps.Cache
	if cp == nil {
		cp = cache.NewNoopProvider()
	}
	return &TacticalService{
		store:     deps.Store,
		analyzer:  deps.Analyzer,
		pipeline:  deps.Pipeline,
		monitor:   deps.Monitor,
		optimizer: deps.Optimizer,
		miner:     deps.Miner,
		predictor: deps.Predictor,
		sink:      sink,
		cache:     cp,
		metrics:   deps.Metrics,
		fusion:    deps.Fusion,
		cacheTTL:  deps.CacheTTL,
		latency:   utils.NewLatencyTracker(512),
		logger:    deps.Logger,
	}
}

// PictureLatencyP95 reports the rolling p95 of picture assembly.
func (s *TacticalService) PictureLatencyP95() time.Duration {
	return s.latency.Percentile(95)
}

// TacticalPicture assembles the full fused picture for an optional area of
// interest. Unbounded pictures are served from cache when fresh.
func (s *TacticalService) TacticalPicture(ctx context.Context, bounds *geo.Bounds) (*models.TacticalPicture, error) {
	const op = "TacticalService.TacticalPicture"

	if bounds == nil {
		if data, err := s.cache.Get(ctx, pictureCacheKey); err == nil {
			var cached models.TacticalPicture
			if err := json.Unmarshal(data, &cached); err == nil {
				return &cached, nil
			}
		}
	}

	start := time.Now()
	threats, err := s.store.ListActiveThreats(ctx, bounds)
	if err != nil {
		return nil, utils.NewAppError(op, "load active threats", err)
	}
	units, err := s.store.ListActiveUnits(ctx, bounds)
	if err != nil {
		return nil, utils.NewAppError(op, "load active units", err)
	}

	picture, err := s.pipeline.BuildPicture(threats, units, bounds,
		s.fusion.CorrelationRadiusKm, s.fusion.TimeWindowHours)
	if err != nil {
		return nil, utils.NewAppError(op, "build tactical picture", err)
	}

	s.latency.Observe(time.Since(start))
	if s.metrics != nil {
		s.metrics.FusionRuns.Inc()
		s.metrics.FusedThreats.Set(float64(picture.Threats.Total))
		s.metrics.UnitsAtRisk.Set(float64(picture.Assessment.UnitsAtRisk))
		s.metrics.PictureBuildSeconds.Observe(time.Since(start).Seconds())
	}

	if bounds == nil {
		if data, err := json.Marshal(picture); err == nil {
			_ = s.cache.Set(ctx, pictureCacheKey, data, s.cacheTTL)
		}
	}
	s.publish(broadcast.ChannelTactical, broadcast.EventTacticalUpdate, picture)
	return picture, nil
}

// FusedThreats runs correlation over the current active detections without
// the assessment stages.
func (s *TacticalService) FusedThreats(ctx context.Context, bounds *geo.Bounds) ([]models.FusedThreat, error) {
	const op = "TacticalService.FusedThreats"
	picture, err := s.TacticalPicture(ctx, bounds)
	if err != nil {
		return nil, utils.NewAppError(op, "fuse threats", err)
	}
	return picture.Threats.Data, nil
}

// ReportThreat validates and persists a manual or sensor detection, then
// notifies threat subscribers.
func (s *TacticalService) ReportThreat(ctx context.Context, det *models.ThreatDetection) error {
	const op = "TacticalService.ReportThreat"
	if err := det.Position.Validate(); err != nil {
		return utils.NewAppError(op, "invalid position", err)
	}
	if det.DetectedAt.IsZero() {
		det.DetectedAt = time.Now().UTC()
	}
	if !det.Type.Valid() {
		det.Type = models.ThreatUnknown
	}
	if !det.Level.Valid() {
		det.Level = models.LevelMedium
	}
	if !det.Source.Valid() {
		det.Source = models.SourceManual
	}
	det.Active = true

	if err := s.store.CreateThreat(ctx, det); err != nil {
		return utils.NewAppError(op, "persist threat", err)
	}
	s.invalidatePicture(ctx)
	s.publish(broadcast.ChannelThreats, broadcast.EventThreatUpdate, det)
	return nil
}

// Threat fetches one detection.
func (s *TacticalService) Threat(ctx context.Context, id int64) (*models.ThreatDetection, error) {
	return s.store.GetThreat(ctx, id)
}

// VerifyThreat marks a detection human-confirmed and notifies subscribers.
func (s *TacticalService) VerifyThreat(ctx context.Context, id int64) error {
	const op = "TacticalService.VerifyThreat"
	if err := s.store.VerifyThreat(ctx, id); err != nil {
		return utils.NewAppError(op, "verify threat", err)
	}
	s.invalidatePicture(ctx)
	s.publish(broadcast.ChannelThreats, broadcast.EventThreatUpdate, map[string]any{"id": id, "verified": true})
	return nil
}

// DeactivateThreat soft-deletes a detection and notifies subscribers.
func (s *TacticalService) DeactivateThreat(ctx context.Context, id int64) error {
	const op = "TacticalService.DeactivateThreat"
	if err := s.store.DeactivateThreat(ctx, id); err != nil {
		return utils.NewAppError(op, "deactivate threat", err)
	}
	s.invalidatePicture(ctx)
	s.publish(broadcast.ChannelThreats, broadcast.EventThreatUpdate, map[string]any{"id": id, "active": false})
	return nil
}

// AnalyzeImage runs imagery through the AI analyzer and persists every
// resulting detection.
func (s *TacticalService) AnalyzeImage(ctx context.Context, image []byte, position *geo.Point) ([]models.ThreatDetection, error) {
	return s.runAnalysis(ctx, func(ctx context.Context) ([]models.ThreatDetection, error) {
		return s.analyzer.AnalyzeImage(ctx, image, position)
	})
}

// AnalyzeText runs free text through the AI analyzer and persists every
// resulting detection.
func (s *TacticalService) AnalyzeText(ctx context.Context, text string, position *geo.Point) ([]models.ThreatDetection, error) {
	return s.runAnalysis(ctx, func(ctx context.Context) ([]models.ThreatDetection, error) {
		return s.analyzer.AnalyzeText(ctx, text, position)
	})
}

func (s *TacticalService) runAnalysis(ctx context.Context, analyze func(context.Context) ([]models.ThreatDetection, error)) ([]models.ThreatDetection, error) {
	const op = "TacticalService.Analyze"
	start := time.Now()
	detections, err := analyze(ctx)
	if s.metrics != nil {
		s.metrics.AnalysisSeconds.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return nil, utils.NewAppError(op, "analyze input", err)
	}

	for i := range detections {
		if err := s.store.CreateThreat(ctx, &detections[i]); err != nil {
			return nil, utils.NewAppError(op, "persist analyzed threat", err)
		}
		s.publish(broadcast.ChannelThreats, broadcast.EventThreatUpdate, &detections[i])
	}
	if len(detections) > 0 {
		s.invalidatePicture(ctx)
	}
	return detections, nil
}

// CheckAreaSafety verifies an area is clear of friendly forces before fires
// or maneuver.
func (s *TacticalService) CheckAreaSafety(ctx context.Context, center geo.Point, radiusMeters float64) (*models.AreaSafetyResult, error) {
	const op = "TacticalService.CheckAreaSafety"
	units, err := s.store.ListActiveUnits(ctx, nil)
	if err != nil {
		return nil, utils.NewAppError(op, "load active units", err)
	}
	result, err := s.monitor.CheckAreaSafety(center, radiusMeters, units)
	if err != nil {
		return nil, utils.NewAppError(op, "check area safety", err)
	}
	return result, nil
}

// ProximityAlerts scans the current laydown for blue-on-blue separation
// violations.
func (s *TacticalService) ProximityAlerts(ctx context.Context, thresholdMeters float64) ([]models.ProximityAlert, error) {
	const op = "TacticalService.ProximityAlerts"
	if thresholdMeters <= 0 {
		thresholdMeters = s.fusion.ProximityThresholdM
	}
	units, err := s.store.ListActiveUnits(ctx, nil)
	if err != nil {
		return nil, utils.NewAppError(op, "load active units", err)
	}
	alerts, err := s.monitor.DetectProximityAlerts(units, thresholdMeters)
	if err != nil {
		return nil, utils.NewAppError(op, "detect proximity alerts", err)
	}
	if s.metrics != nil {
		s.metrics.ProximityAlerts.Add(float64(len(alerts)))
	}
	if len(alerts) > 0 {
		s.publish(broadcast.ChannelTracking, broadcast.EventTrackingUpdate, alerts)
	}
	return alerts, nil
}

// OptimizeDeployment ranks units for an objective. unitIDs, when non-empty,
// restricts the candidate pool to the named units.
func (s *TacticalService) OptimizeDeployment(ctx context.Context, objective geo.Point, unitIDs []string) ([]models.DeploymentRecommendation, error) {
	const op = "TacticalService.OptimizeDeployment"
	units, err := s.store.ListActiveUnits(ctx, nil)
	if err != nil {
		return nil, utils.NewAppError(op, "load active units", err)
	}
	if len(unitIDs) > 0 {
		allowed := make(map[string]bool, len(unitIDs))
		for _, id := range unitIDs {
			allowed[id] = true
		}
		filtered := units[:0]
		for _, u := range units {
			if allowed[u.UnitID] {
				filtered = append(filtered, u)
			}
		}
		units = filtered
	}

	recs, err := s.optimizer.Optimize(units, objective)
	if err != nil {
		return nil, utils.NewAppError(op, "optimize deployment", err)
	}
	return recs, nil
}

// RegisterUnit creates or refreshes a friendly unit.
func (s *TacticalService) RegisterUnit(ctx context.Context, u *models.FriendlyUnit) error {
	const op = "TacticalService.RegisterUnit"
	if err := u.Position.Validate(); err != nil {
		return utils.NewAppError(op, "invalid position", err)
	}
	if !u.Status.Valid() {
		u.Status = models.StatusGreen
	}
	if u.LastContact.IsZero() {
		u.LastContact = time.Now().UTC()
	}
	u.Active = true
	if err := s.store.UpsertUnit(ctx, u); err != nil {
		return utils.NewAppError(op, "persist unit", err)
	}
	s.publish(broadcast.ChannelTracking, broadcast.EventTrackingUpdate, u)
	return nil
}

// UpdateUnitPosition applies a position report from the API or the MQTT
// feed and notifies tracking subscribers.
func (s *TacticalService) UpdateUnitPosition(ctx context.Context, unitID string, pos geo.Point, altitude, heading, speed *float64) error {
	const op = "TacticalService.UpdateUnitPosition"
	if err := pos.Validate(); err != nil {
		return utils.NewAppError(op, "invalid position", err)
	}
	now := time.Now().UTC()
	if err := s.store.UpdateUnitPosition(ctx, unitID, pos, altitude, heading, speed, now); err != nil {
		return utils.NewAppError(op, "persist position", err)
	}
	s.publish(broadcast.ChannelTracking, broadcast.EventTrackingUpdate, map[string]any{
		"unit_id": unitID, "position": pos, "last_contact": now,
	})
	return nil
}

// Unit fetches one friendly unit.
func (s *TacticalService) Unit(ctx context.Context, unitID string) (*models.FriendlyUnit, error) {
	return s.store.GetUnit(ctx, unitID)
}

// Units lists the active friendly units.
func (s *TacticalService) Units(ctx context.Context, bounds *geo.Bounds) ([]models.FriendlyUnit, error) {
	return s.store.ListActiveUnits(ctx, bounds)
}

// DeactivateUnit soft-deletes a unit and notifies tracking subscribers.
func (s *TacticalService) DeactivateUnit(ctx context.Context, unitID string) error {
	const op = "TacticalService.DeactivateUnit"
	if err := s.store.DeactivateUnit(ctx, unitID); err != nil {
		return utils.NewAppError(op, "deactivate unit", err)
	}
	s.publish(broadcast.ChannelTracking, broadcast.EventTrackingUpdate, map[string]any{
		"unit_id": unitID, "active": false,
	})
	return nil
}

// Patterns mines the recent threat history for spatial, temporal and
// escalation patterns.
func (s *TacticalService) Patterns(ctx context.Context, days int, bounds *geo.Bounds) ([]patterns.Pattern, error) {
	const op = "TacticalService.Patterns"
	if days <= 0 {
		days = s.fusion.HistoricalDays
	}
	since := time.Now().UTC().AddDate(0, 0, -days)
	history, err := s.store.ListThreatsSince(ctx, since, bounds)
	if err != nil {
		return nil, utils.NewAppError(op, "load threat history", err)
	}
	mined, err := s.miner.Mine(history)
	if err != nil {
		return nil, utils.NewAppError(op, "mine patterns", err)
	}
	return mined, nil
}

// PredictThreats projects mined patterns over the configured horizon.
func (s *TacticalService) PredictThreats(ctx context.Context, days, horizonHours int, bounds *geo.Bounds) ([]models.PredictedThreat, error) {
	const op = "TacticalService.PredictThreats"
	if horizonHours <= 0 {
		horizonHours = s.fusion.HorizonHours
	}
	mined, err := s.Patterns(ctx, days, bounds)
	if err != nil {
		return nil, utils.NewAppError(op, "predict threats", err)
	}
	return s.predictor.Predict(mined, horizonHours), nil
}

// SubmitSitrep persists a situation report and notifies subscribers.
func (s *TacticalService) SubmitSitrep(ctx context.Context, r *models.Sitrep) error {
	const op = "TacticalService.SubmitSitrep"
	now := time.Now().UTC()
	if r.ReportTime.IsZero() {
		r.ReportTime = now
	}
	if r.Priority == "" {
		r.Priority = models.PriorityRoutine
	}
	r.Active = true
	r.CreatedAt = now
	r.UpdatedAt = now
	if err := s.store.CreateSitrep(ctx, r); err != nil {
		return utils.NewAppError(op, "persist sitrep", err)
	}
	s.publish(broadcast.ChannelSitrep, broadcast.EventSitrepUpdate, r)
	return nil
}

// Sitrep fetches one situation report.
func (s *TacticalService) Sitrep(ctx context.Context, id int64) (*models.Sitrep, error) {
	return s.store.GetSitrep(ctx, id)
}

// Sitreps lists active reports, newest first.
func (s *TacticalService) Sitreps(ctx context.Context, limit int) ([]models.Sitrep, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.ListActiveSitreps(ctx, limit)
}

// DeactivateSitrep soft-deletes a report.
func (s *TacticalService) DeactivateSitrep(ctx context.Context, id int64) error {
	const op = "TacticalService.DeactivateSitrep"
	if err := s.store.DeactivateSitrep(ctx, id); err != nil {
		return utils.NewAppError(op, "deactivate sitrep", err)
	}
	s.publish(broadcast.ChannelSitrep, broadcast.EventSitrepUpdate, map[string]any{"id": id, "active": false})
	return nil
}

func (s *TacticalService) publish(channel, eventType string, data any) {
	s.sink.Publish(channel, broadcast.Event{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
	if s.metrics != nil {
		s.metrics.BroadcastEvents.WithLabelValues(channel).Inc()
	}
}

func (s *TacticalService) invalidatePicture(ctx context.Context) {
	_ = s.cache.Delete(ctx, pictureCacheKey)
}
