package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/deepakparameswar/csflow/graph"
	"github.com/deepakparameswar/csflow/graph/emit"
	"github.com/deepakparameswar/csflow/internal/sop"
	"github.com/deepakparameswar/csflow/pkg/errx"
)

// SOPRequest starts a procedure run for one customer.
type SOPRequest struct {
	RunID              string `json:"runID"`
	OperatingProcedure string `json:"operatingProcedure"`
	UserID             string `json:"userID"`
	ImageURL           string `json:"imageURL,omitempty"`
}

// ApprovalRequest answers a pending tool call. Approved is required.
type ApprovalRequest struct {
	Approved *bool  `json:"approved"`
	Feedback string `json:"feedback,omitempty"`
}

// PendingTool names the gate a run halted at and the call awaiting approval.
type PendingTool struct {
	Node     string       `json:"node"`
	ToolCall sop.ToolCall `json:"toolCall"`
}

// SOPOutcome is the view of an SOP run.
type SOPOutcome struct {
	Status      string           `json:"status"`
	Step        int              `json:"step"`
	Pending     *PendingTool     `json:"pending,omitempty"`
	ToolResults []sop.ToolResult `json:"toolResults,omitempty"`
	Reply       string           `json:"reply,omitempty"`
}

// ApprovalResponse adds the executed result and whether another tool waits.
type ApprovalResponse struct {
	RunResponse[SOPOutcome]
	PreviousToolResult *sop.ToolResult `json:"previousToolResult"`
	HasNextTool        bool            `json:"hasNextTool"`
}

func sopOutcome(out graph.Outcome[sop.State]) SOPOutcome {
	o := SOPOutcome{
		Status:      string(out.Status),
		Step:        out.Step,
		ToolResults: out.State.ToolResults,
		Reply:       out.State.Reply(),
	}
	if call, ok := out.State.PendingCall(); ok && out.Pending() {
		o.Pending = &PendingTool{Node: out.NodeID, ToolCall: call}
	}
	return o
}

// StartSOP runs the SOP graph until it proposes its first tool call.
func (h *Handler) StartSOP(w http.ResponseWriter, r *http.Request) {
	var req SOPRequest
	if err := decode(r, &req); err != nil {
		RespondError(w, h.logger, err)
		return
	}
	req.OperatingProcedure = strings.TrimSpace(req.OperatingProcedure)
	req.UserID = strings.TrimSpace(req.UserID)
	if req.OperatingProcedure == "" || req.UserID == "" {
		RespondError(w, h.logger, errx.BadRequest("operatingProcedure and userID are required"))
		return
	}
	if req.RunID == "" {
		req.RunID = h.newID()
	}

	h.logger.Info().Str("run_id", req.RunID).Str("user_id", req.UserID).Msg("sop run started")
	out, err := h.sop.Run(r.Context(), req.RunID, sop.State{
		OperatingProcedure: req.OperatingProcedure,
		UserID:             req.UserID,
		ImageURL:           strings.TrimSpace(req.ImageURL),
	})
	if err != nil {
		RespondError(w, h.logger, err)
		return
	}
	RespondJSON(w, http.StatusOK, RunResponse[SOPOutcome]{Status: "success", RunID: req.RunID, Outcome: sopOutcome(out)})
}

// ApproveSOP executes the pending tool call, or cancels the run when the
// call is rejected.
func (h *Handler) ApproveSOP(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("runID")
	var req ApprovalRequest
	if err := decode(r, &req); err != nil {
		RespondError(w, h.logger, err)
		return
	}
	if req.Approved == nil {
		RespondError(w, h.logger, errx.BadRequest("approved is required"))
		return
	}

	var (
		out graph.Outcome[sop.State]
		err error
	)
	if *req.Approved {
		out, err = h.sop.Resume(r.Context(), runID)
	} else {
		out, err = h.sop.Cancel(r.Context(), runID)
	}
	if err != nil {
		RespondError(w, h.logger, err)
		return
	}

	h.logger.Info().Str("run_id", runID).Bool("approved", *req.Approved).Str("feedback", req.Feedback).Msg("tool call reviewed")
	if h.events != nil && req.Feedback != "" {
		h.events.Emit(emit.Event{
			RunID: runID,
			Step:  out.Step,
			Msg:   "approval feedback",
			Meta:  map[string]interface{}{"graph": sop.GraphName, "approved": *req.Approved, "feedback": req.Feedback},
			Time:  time.Now(),
		})
	}

	resp := ApprovalResponse{
		RunResponse: RunResponse[SOPOutcome]{Status: "success", RunID: runID, Outcome: sopOutcome(out)},
		HasNextTool: out.Pending(),
	}
	if *req.Approved {
		if res, ok := out.State.LastResult(); ok {
			resp.PreviousToolResult = &res
		}
	}
	RespondJSON(w, http.StatusOK, resp)
}
