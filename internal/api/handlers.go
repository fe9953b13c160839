package api

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/aegisstack/aegis-fusion/internal/geo"
	"github.com/aegisstack/aegis-fusion/internal/models"
	"github.com/aegisstack/aegis-fusion/internal/utils"
)

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil && s.logger != nil {
		s.logger.Error("encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()
	if appErr, ok := utils.AsAppError(err); ok {
		msg = appErr.Msg
		if appErr.Err != nil {
			// Preserve the domain cause for 4xx responses.
			if status != http.StatusInternalServerError {
				msg = fmt.Sprintf("%s: %v", appErr.Msg, appErr.Err)
			}
		}
	}
	if status == http.StatusInternalServerError {
		if s.logger != nil {
			s.logger.Error("request failed", "error", err)
		}
		msg = "internal error"
	}
	s.writeJSON(w, status, errorResponse{Error: msg})
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

// parseBounds reads an optional north/south/east/west quad from the query.
// Either all four are present or none.
func parseBounds(r *http.Request) (*geo.Bounds, error) {
	q := r.URL.Query()
	raw := [4]string{q.Get("north"), q.Get("south"), q.Get("east"), q.Get("west")}
	present := 0
	for _, v := range raw {
		if v != "" {
			present++
		}
	}
	if present == 0 {
		return nil, nil
	}
	if present != 4 {
		return nil, fmt.Errorf("bounds require north, south, east and west: %w", geo.ErrInvalidBounds)
	}

	var vals [4]float64
	for i, v := range raw {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("parse bounds: %w", geo.ErrInvalidBounds)
		}
		vals[i] = f
	}
	b := &geo.Bounds{North: vals[0], South: vals[1], East: vals[2], West: vals[3]}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q", r.PathValue("id"))
	}
	return id, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"service":     "aegis-fusion",
		"picture_p95": s.svc.PictureLatencyP95().Seconds(),
	})
}

func (s *Server) handleTacticalPicture(w http.ResponseWriter, r *http.Request) {
	bounds, err := parseBounds(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	picture, err := s.svc.TacticalPicture(r.Context(), bounds)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, picture)
}

func (s *Server) handleFusedThreats(w http.ResponseWriter, r *http.Request) {
	bounds, err := parseBounds(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	fused, err := s.svc.FusedThreats(r.Context(), bounds)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"threats": fused, "count": len(fused)})
}

type reportThreatRequest struct {
	Type          models.ThreatType   `json:"threat_type"`
	Level         models.ThreatLevel  `json:"threat_level"`
	Confidence    float64             `json:"confidence"`
	Latitude      float64             `json:"latitude"`
	Longitude     float64             `json:"longitude"`
	GridReference string              `json:"grid_reference,omitempty"`
	Description   string              `json:"description,omitempty"`
	Source        models.ThreatSource `json:"source,omitempty"`
	DetectedAt    string              `json:"detected_at,omitempty"`
}

func (s *Server) handleReportThreat(w http.ResponseWriter, r *http.Request) {
	var req reportThreatRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	det := models.ThreatDetection{
		Type:          req.Type,
		Level:         req.Level,
		Confidence:    req.Confidence,
		Position:      geo.Point{Lat: req.Latitude, Lon: req.Longitude},
		GridReference: req.GridReference,
		Description:   req.Description,
		Source:        req.Source,
	}
	if req.DetectedAt != "" {
		at, err := utils.ParseRFC3339(req.DetectedAt)
		if err != nil {
			s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		det.DetectedAt = at
	}

	if err := s.svc.ReportThreat(r.Context(), &det); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, det)
}

func (s *Server) handleGetThreat(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	det, err := s.svc.Threat(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, det)
}

func (s *Server) handleVerifyThreat(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if err := s.svc.VerifyThreat(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"id": id, "verified": true})
}

func (s *Server) handleDeleteThreat(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if err := s.svc.DeactivateThreat(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type analyzeImageRequest struct {
	Image     string   `json:"image"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

type analyzeTextRequest struct {
	Text      string   `json:"text"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

func anchor(lat, lon *float64) *geo.Point {
	if lat == nil || lon == nil {
		return nil
	}
	return &geo.Point{Lat: *lat, Lon: *lon}
}

func (s *Server) handleAnalyzeImage(w http.ResponseWriter, r *http.Request) {
	var req analyzeImageRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	image, err := base64.StdEncoding.DecodeString(req.Image)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "image must be base64 encoded"})
		return
	}
	dets, err := s.svc.AnalyzeImage(r.Context(), image, anchor(req.Latitude, req.Longitude))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"detections": dets, "count": len(dets)})
}

func (s *Server) handleAnalyzeText(w http.ResponseWriter, r *http.Request) {
	var req analyzeTextRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if req.Text == "" {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "text is required"})
		return
	}
	dets, err := s.svc.AnalyzeText(r.Context(), req.Text, anchor(req.Latitude, req.Longitude))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"detections": dets, "count": len(dets)})
}

type areaSafetyRequest struct {
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	RadiusMeters float64 `json:"radius_meters"`
}

func (s *Server) handleAreaSafety(w http.ResponseWriter, r *http.Request) {
	var req areaSafetyRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if req.RadiusMeters <= 0 {
		req.RadiusMeters = 2000
	}
	result, err := s.svc.CheckAreaSafety(r.Context(), geo.Point{Lat: req.Latitude, Lon: req.Longitude}, req.RadiusMeters)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

type deploymentRequest struct {
	Objective struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"objective"`
	UnitIDs []string `json:"unit_ids,omitempty"`
}

func (s *Server) handleDeployment(w http.ResponseWriter, r *http.Request) {
	var req deploymentRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	objective := geo.Point{Lat: req.Objective.Latitude, Lon: req.Objective.Longitude}
	recs, err := s.svc.OptimizeDeployment(r.Context(), objective, req.UnitIDs)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"recommendations": recs, "count": len(recs)})
}

func (s *Server) handlePatterns(w http.ResponseWriter, r *http.Request) {
	bounds, err := parseBounds(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	days, _ := strconv.Atoi(r.URL.Query().Get("days"))
	mined, err := s.svc.Patterns(r.Context(), days, bounds)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"patterns": mined, "count": len(mined)})
}

func (s *Server) handlePredictions(w http.ResponseWriter, r *http.Request) {
	bounds, err := parseBounds(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	days, _ := strconv.Atoi(r.URL.Query().Get("days"))
	horizon, _ := strconv.Atoi(r.URL.Query().Get("horizon_hours"))
	preds, err := s.svc.PredictThreats(r.Context(), days, horizon, bounds)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"predictions": preds, "count": len(preds)})
}

func (s *Server) handleListUnits(w http.ResponseWriter, r *http.Request) {
	bounds, err := parseBounds(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	units, err := s.svc.Units(r.Context(), bounds)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"units": units, "count": len(units)})
}

type registerUnitRequest struct {
	UnitID         string            `json:"unit_id"`
	Name           string            `json:"unit_name"`
	Type           models.UnitType   `json:"unit_type,omitempty"`
	Callsign       string            `json:"callsign,omitempty"`
	Latitude       float64           `json:"latitude"`
	Longitude      float64           `json:"longitude"`
	Altitude       *float64          `json:"altitude,omitempty"`
	Heading        *float64          `json:"heading,omitempty"`
	Speed          *float64          `json:"speed,omitempty"`
	Status         models.UnitStatus `json:"status,omitempty"`
	PersonnelCount *int              `json:"personnel_count,omitempty"`
}

func (s *Server) handleRegisterUnit(w http.ResponseWriter, r *http.Request) {
	var req registerUnitRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if req.UnitID == "" {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unit_id is required"})
		return
	}
	u := models.FriendlyUnit{
		UnitID:         req.UnitID,
		Name:           req.Name,
		Type:           req.Type,
		Callsign:       req.Callsign,
		Position:       geo.Point{Lat: req.Latitude, Lon: req.Longitude},
		Altitude:       req.Altitude,
		HeadingDeg:     req.Heading,
		SpeedMS:        req.Speed,
		Status:         req.Status,
		PersonnelCount: req.PersonnelCount,
	}
	if err := s.svc.RegisterUnit(r.Context(), &u); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, u)
}

func (s *Server) handleGetUnit(w http.ResponseWriter, r *http.Request) {
	u, err := s.svc.Unit(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, u)
}

type positionUpdateRequest struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Altitude  *float64 `json:"altitude,omitempty"`
	Heading   *float64 `json:"heading,omitempty"`
	Speed     *float64 `json:"speed,omitempty"`
}

func (s *Server) handleUpdatePosition(w http.ResponseWriter, r *http.Request) {
	var req positionUpdateRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	unitID := r.PathValue("id")
	pos := geo.Point{Lat: req.Latitude, Lon: req.Longitude}
	if err := s.svc.UpdateUnitPosition(r.Context(), unitID, pos, req.Altitude, req.Heading, req.Speed); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"unit_id": unitID, "position": pos, "updated": time.Now().UTC(),
	})
}

func (s *Server) handleDeleteUnit(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeactivateUnit(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleProximityAlerts(w http.ResponseWriter, r *http.Request) {
	threshold, err := parseOptionalFloat(r, "threshold_meters")
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	alerts, err := s.svc.ProximityAlerts(r.Context(), threshold)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts, "count": len(alerts)})
}

func parseOptionalFloat(r *http.Request, key string) (float64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", key, raw)
	}
	return v, nil
}

type sitrepRequest struct {
	Title      string   `json:"title"`
	ReportTime string   `json:"report_time,omitempty"`
	Location   string   `json:"location,omitempty"`
	Latitude   *float64 `json:"latitude,omitempty"`
	Longitude  *float64 `json:"longitude,omitempty"`
	Unit       string   `json:"unit,omitempty"`
	Reporter   string   `json:"reporter,omitempty"`

	Situation      string `json:"situation,omitempty"`
	Mission        string `json:"mission,omitempty"`
	Execution      string `json:"execution,omitempty"`
	AdminLogistics string `json:"admin_logistics,omitempty"`
	CommandSignal  string `json:"command_signal,omitempty"`

	Source   string                `json:"source,omitempty"`
	Priority models.SitrepPriority `json:"priority,omitempty"`
}

func (s *Server) handleCreateSitrep(w http.ResponseWriter, r *http.Request) {
	var req sitrepRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if req.Title == "" {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "title is required"})
		return
	}
	sitrep := models.Sitrep{
		Title:          req.Title,
		Location:       req.Location,
		Latitude:       req.Latitude,
		Longitude:      req.Longitude,
		Unit:           req.Unit,
		Reporter:       req.Reporter,
		Situation:      req.Situation,
		Mission:        req.Mission,
		Execution:      req.Execution,
		AdminLogistics: req.AdminLogistics,
		CommandSignal:  req.CommandSignal,
		Source:         req.Source,
		Priority:       req.Priority,
	}
	if req.ReportTime != "" {
		at, err := utils.ParseRFC3339(req.ReportTime)
		if err != nil {
			s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		sitrep.ReportTime = at
	}
	if err := s.svc.SubmitSitrep(r.Context(), &sitrep); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, sitrep)
}

func (s *Server) handleListSitreps(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	sitreps, err := s.svc.Sitreps(r.Context(), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"sitreps": sitreps, "count": len(sitreps)})
}

func (s *Server) handleGetSitrep(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	sitrep, err := s.svc.Sitrep(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sitrep)
}

func (s *Server) handleDeleteSitrep(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if err := s.svc.DeactivateSitrep(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
