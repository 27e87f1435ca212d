// Package damage is the client for the vehicle damage classifier service.
//
// The classifier detects damaged parts in accident photos and estimates a
// severity for each detection. Its model internals live in a separate service;
// this package only speaks its JSON contract.
package damage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/deepakparameswar/csflow/graph/tool"
)

// Severity buckets reported by the classifier.
const (
	SeverityMinor    = "Minor"
	SeverityModerate = "Moderate"
	SeveritySevere   = "Severe"
)

// ErrNoAnalysis is returned when the classifier answers without any analysis
// for the submitted image.
var ErrNoAnalysis = errors.New("classifier returned no analysis")

// Classifier assesses damage in one image.
type Classifier interface {
	Assess(ctx context.Context, req Request) (Assessment, error)
}

// Request identifies the image to analyse.
type Request struct {
	SessionID   string
	ImageURL    string
	Description string
}

// Detection is one damaged region.
type Detection struct {
	Label      string  `json:"label"`
	Severity   string  `json:"severity"`
	Confidence float64 `json:"confidence"`
}

// Assessment is the classifier verdict for one image.
type Assessment struct {
	SessionID       string      `json:"session_id"`
	Image           string      `json:"image"`
	AnnotatedOutput string      `json:"annotated_output,omitempty"`
	Damages         []Detection `json:"damages"`
}

// Worst returns the highest severity among the detections, or "" if none.
func (a Assessment) Worst() string {
	rank := map[string]int{SeverityMinor: 1, SeverityModerate: 2, SeveritySevere: 3}
	worst := ""
	for _, d := range a.Damages {
		if rank[d.Severity] > rank[worst] {
			worst = d.Severity
		}
	}
	return worst
}

type analysis struct {
	Image           string      `json:"image"`
	AnnotatedOutput string      `json:"annotated_output"`
	Damages         []Detection `json:"damages"`
	Error           string      `json:"error"`
}

type response struct {
	SessionID string     `json:"session_id"`
	Analysis  []analysis `json:"analysis"`
}

// HTTPClassifier calls the classifier service over HTTP.
type HTTPClassifier struct {
	endpoint *tool.HTTPTool
}

// NewHTTPClassifier returns a classifier posting to url.
func NewHTTPClassifier(url string, opts ...tool.HTTPOption) *HTTPClassifier {
	return &HTTPClassifier{
		endpoint: tool.NewHTTPTool("damage_classifier", "Detect vehicle damage in images", url, nil, opts...),
	}
}

// Assess implements Classifier.
func (c *HTTPClassifier) Assess(ctx context.Context, req Request) (Assessment, error) {
	if req.ImageURL == "" {
		return Assessment{}, errors.New("image URL is required")
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = "session-less"
	}

	raw, err := c.endpoint.Call(ctx, map[string]interface{}{
		"session_id":  sessionID,
		"images":      []string{req.ImageURL},
		"description": req.Description,
	})
	if err != nil {
		return Assessment{}, fmt.Errorf("damage classifier: %w", err)
	}

	// The tool hands back a generic object; re-decode it into the typed contract.
	data, err := json.Marshal(raw)
	if err != nil {
		return Assessment{}, fmt.Errorf("damage classifier: %w", err)
	}
	var resp response
	if err := json.Unmarshal(data, &resp); err != nil {
		return Assessment{}, fmt.Errorf("damage classifier: decode: %w", err)
	}
	if len(resp.Analysis) == 0 {
		return Assessment{}, ErrNoAnalysis
	}

	first := resp.Analysis[0]
	if first.Error != "" {
		return Assessment{}, fmt.Errorf("damage classifier: %s: %s", first.Image, first.Error)
	}
	return Assessment{
		SessionID:       resp.SessionID,
		Image:           first.Image,
		AnnotatedOutput: first.AnnotatedOutput,
		Damages:         first.Damages,
	}, nil
}
