package api

import (
	"context"
	"net/http"

	"github.com/deepakparameswar/csflow/graph/emit"
	"github.com/deepakparameswar/csflow/internal/inquiry"
	"github.com/deepakparameswar/csflow/internal/sop"
	"github.com/deepakparameswar/csflow/pkg/errx"
)

// runAccess is the graph-independent part of an engine.
type runAccess struct {
	inspect func(ctx context.Context, runID string) (any, error)
	remove  func(ctx context.Context, runID string) error
}

func (h *Handler) runs(graphName string) (runAccess, error) {
	switch graphName {
	case inquiry.GraphName:
		return runAccess{
			inspect: func(ctx context.Context, id string) (any, error) { return h.inquiry.Inspect(ctx, id) },
			remove:  h.inquiry.Delete,
		}, nil
	case sop.GraphName:
		return runAccess{
			inspect: func(ctx context.Context, id string) (any, error) { return h.sop.Inspect(ctx, id) },
			remove:  h.sop.Delete,
		}, nil
	}
	return runAccess{}, errx.NotFound("unknown graph %q", graphName)
}

// GetRun returns a run's checkpoint.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	access, err := h.runs(r.PathValue("graph"))
	if err != nil {
		RespondError(w, h.logger, err)
		return
	}
	cp, err := access.inspect(r.Context(), r.PathValue("runID"))
	if err != nil {
		RespondError(w, h.logger, err)
		return
	}
	RespondJSON(w, http.StatusOK, cp)
}

// DeleteRun removes a run's checkpoint and its buffered events.
func (h *Handler) DeleteRun(w http.ResponseWriter, r *http.Request) {
	access, err := h.runs(r.PathValue("graph"))
	if err != nil {
		RespondError(w, h.logger, err)
		return
	}
	runID := r.PathValue("runID")
	if err := access.remove(r.Context(), runID); err != nil {
		RespondError(w, h.logger, err)
		return
	}
	if h.events != nil {
		h.events.Clear(runID)
	}
	w.WriteHeader(http.StatusNoContent)
}

// RunEvents returns the buffered timeline of a run, optionally filtered by
// the node and msg query parameters.
func (h *Handler) RunEvents(w http.ResponseWriter, r *http.Request) {
	graphName := r.PathValue("graph")
	if _, err := h.runs(graphName); err != nil {
		RespondError(w, h.logger, err)
		return
	}
	if h.events == nil {
		RespondError(w, h.logger, errx.NotFound("event history is not enabled"))
		return
	}

	runID := r.PathValue("runID")
	q := r.URL.Query()
	history := h.events.GetHistoryWithFilter(runID, emit.HistoryFilter{
		NodeID: q.Get("node"),
		Msg:    q.Get("msg"),
	})

	events := make([]emit.Event, 0, len(history))
	for _, e := range history {
		if g, _ := e.Meta["graph"].(string); g == graphName {
			events = append(events, e)
		}
	}
	RespondJSON(w, http.StatusOK, map[string]any{"runID": runID, "events": events})
}
