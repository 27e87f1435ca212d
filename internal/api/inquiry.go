package api

import (
	"net/http"
	"strings"

	"github.com/deepakparameswar/csflow/graph"
	"github.com/deepakparameswar/csflow/internal/inquiry"
	"github.com/deepakparameswar/csflow/pkg/errx"
)

// InquiryRequest starts an inquiry run. RunID is generated when empty.
type InquiryRequest struct {
	RunID    string `json:"runID"`
	Question string `json:"question"`
}

// InquiryOutcome is the customer-facing view of an inquiry run.
type InquiryOutcome struct {
	Status            string             `json:"status"`
	Step              int                `json:"step"`
	Answer            string             `json:"answer,omitempty"`
	Resolution        inquiry.Resolution `json:"resolution,omitempty"`
	Type              inquiry.QueryType  `json:"type,omitempty"`
	MissingProperties []string           `json:"missingProperties,omitempty"`
	Revisions         int                `json:"revisions"`
	Sources           []string           `json:"sources,omitempty"`
}

// RunResponse wraps the outcome of any run call.
type RunResponse[O any] struct {
	Status  string `json:"status"`
	RunID   string `json:"runID"`
	Outcome O      `json:"outcome"`
}

func inquiryOutcome(out graph.Outcome[inquiry.State]) InquiryOutcome {
	s := out.State
	var sources []string
	for _, d := range s.Documents {
		if id := d.Metadata["id"]; id != "" {
			sources = append(sources, id)
		}
	}
	return InquiryOutcome{
		Status:            string(out.Status),
		Step:              out.Step,
		Answer:            s.Answer(),
		Resolution:        s.Resolution,
		Type:              s.Type,
		MissingProperties: s.MissingProperties,
		Revisions:         s.Revisions,
		Sources:           sources,
	}
}

// StartInquiry runs the inquiry graph for a customer question.
func (h *Handler) StartInquiry(w http.ResponseWriter, r *http.Request) {
	var req InquiryRequest
	if err := decode(r, &req); err != nil {
		RespondError(w, h.logger, err)
		return
	}
	question := strings.TrimSpace(req.Question)
	if question == "" {
		RespondError(w, h.logger, errx.BadRequest("question is required"))
		return
	}
	runID := req.RunID
	if runID == "" {
		runID = h.newID()
	}

	h.logger.Info().Str("run_id", runID).Msg("inquiry started")
	out, err := h.inquiry.Run(r.Context(), runID, inquiry.State{Question: question})
	if err != nil {
		RespondError(w, h.logger, err)
		return
	}
	RespondJSON(w, http.StatusOK, RunResponse[InquiryOutcome]{Status: "success", RunID: runID, Outcome: inquiryOutcome(out)})
}

// ResumeInquiry continues an inquiry run that stopped on a failed step.
func (h *Handler) ResumeInquiry(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("runID")
	out, err := h.inquiry.Resume(r.Context(), runID)
	if err != nil {
		RespondError(w, h.logger, err)
		return
	}
	RespondJSON(w, http.StatusOK, RunResponse[InquiryOutcome]{Status: "success", RunID: runID, Outcome: inquiryOutcome(out)})
}
