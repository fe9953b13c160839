package repo

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/aegisstack/aegis-fusion/internal/cache"
	"github.com/aegisstack/aegis-fusion/internal/geo"
	"github.com/aegisstack/aegis-fusion/internal/models"
)

// Analyzer calls the generative AI analysis backend to turn imagery or
// free text into candidate threat detections. Responses are cached by
// payload digest since analysis calls are slow and identical inputs are
// common during re-polling.
type Analyzer struct {
	baseURL   string
	imagePath string
	textPath  string
	client    *http.Client
	cache     cache.Provider
	cacheTTL  time.Duration
	logger    *slog.Logger
}

// NewAnalyzer creates an Analyzer. cacheProvider may be a NoopProvider when
// caching is disabled.
func NewAnalyzer(baseURL, imagePath, textPath string, timeout time.Duration, cacheProvider cache.Provider, cacheTTL time.Duration, logger *slog.Logger) *Analyzer {
	return &Analyzer{
		baseURL:   baseURL,
		imagePath: imagePath,
		textPath:  textPath,
		client:    &http.Client{Timeout: timeout},
		cache:     cacheProvider,
		cacheTTL:  cacheTTL,
		logger:    logger,
	}
}

type analyzeImageRequest struct {
	Image    string     `json:"image"`
	Position *geo.Point `json:"position,omitempty"`
}

type analyzeTextRequest struct {
	Text     string     `json:"text"`
	Position *geo.Point `json:"position,omitempty"`
}

type analyzeResponse struct {
	Detections []candidateDetection `json:"detections"`
}

type candidateDetection struct {
	Type        models.ThreatType   `json:"threat_type"`
	Level       models.ThreatLevel  `json:"threat_level"`
	Confidence  float64             `json:"confidence"`
	Latitude    *float64            `json:"latitude,omitempty"`
	Longitude   *float64            `json:"longitude,omitempty"`
	Description string              `json:"description,omitempty"`
	Source      models.ThreatSource `json:"source,omitempty"`
}

// AnalyzeImage submits image bytes for analysis. position, when non-nil,
// anchors detections that come back without coordinates of their own.
func (a *Analyzer) AnalyzeImage(ctx context.Context, image []byte, position *geo.Point) ([]models.ThreatDetection, error) {
	req := analyzeImageRequest{
		Image:    base64.StdEncoding.EncodeToString(image),
		Position: position,
	}
	return a.analyze(ctx, a.imagePath, "image:"+digest(image), req, position)
}

// AnalyzeText submits free text (radio transcripts, field reports) for
// analysis.
func (a *Analyzer) AnalyzeText(ctx context.Context, text string, position *geo.Point) ([]models.ThreatDetection, error) {
	req := analyzeTextRequest{Text: text, Position: position}
	return a.analyze(ctx, a.textPath, "text:"+digest([]byte(text)), req, position)
}

func (a *Analyzer) analyze(ctx context.Context, path, cacheKey string, payload any, position *geo.Point) ([]models.ThreatDetection, error) {
	cacheKey = "analysis:" + cacheKey
	if data, err := a.cache.Get(ctx, cacheKey); err == nil {
		var cached []models.ThreatDetection
		if err := json.Unmarshal(data, &cached); err == nil {
			return cached, nil
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode analyze request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build analyze request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call analyzer: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("analyzer returned %d: %s", resp.StatusCode, msg)
	}

	var parsed analyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode analyzer response: %w", err)
	}

	detections := a.toDetections(parsed.Detections, position)
	if data, err := json.Marshal(detections); err == nil {
		_ = a.cache.Set(ctx, cacheKey, data, a.cacheTTL)
	}
	if a.logger != nil {
		a.logger.Debug("analysis complete", "path", path, "detections", len(detections))
	}
	return detections, nil
}

// toDetections normalizes candidates: missing fields fall back to defaults
// rather than failing, since analyzer output is best effort.
func (a *Analyzer) toDetections(candidates []candidateDetection, position *geo.Point) []models.ThreatDetection {
	now := time.Now().UTC()
	out := make([]models.ThreatDetection, 0, len(candidates))
	for _, c := range candidates {
		det := models.ThreatDetection{
			Type:        c.Type,
			Level:       c.Level,
			Confidence:  c.Confidence,
			Description: c.Description,
			Source:      c.Source,
			DetectedAt:  now,
			Active:      true,
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
		switch {
		case c.Latitude != nil && c.Longitude != nil:
			det.Position = geo.Point{Lat: *c.Latitude, Lon: *c.Longitude}
		case position != nil:
			det.Position = *position
		default:
			continue // nothing to anchor the detection to
		}
		out = append(out, det)
	}
	return out
}

func digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
