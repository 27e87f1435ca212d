package errx

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/deepakparameswar/csflow/graph"
)

// FromEngine maps an engine error to an AppError:
//
//	ErrRunNotFound                                  404
//	ErrRunAlreadyComplete, ErrRunConflict           409
//	EngineError GRAPH_MISMATCH                      409
//	*graph.NodeExecutionError                       502
//	RoutingError, GraphDefinitionError, EngineError 500
//
// An AppError passes through unchanged. Nil maps to nil.
func FromEngine(err error) *AppError {
	if err == nil {
		return nil
	}

	var app *AppError
	if errors.As(err, &app) {
		return app
	}

	var (
		nodeErr   *graph.NodeExecutionError
		engineErr *graph.EngineError
	)
	switch {
	case errors.Is(err, graph.ErrRunNotFound):
		return New(err, http.StatusNotFound, "run not found")
	case errors.Is(err, graph.ErrRunAlreadyComplete):
		return New(err, http.StatusConflict, "run already complete")
	case errors.Is(err, graph.ErrRunConflict):
		return New(err, http.StatusConflict, "run is being modified by another request")
	case errors.As(err, &engineErr) && engineErr.Code == "GRAPH_MISMATCH":
		return New(err, http.StatusConflict, "run id belongs to another graph")
	case errors.As(err, &nodeErr):
		return New(err, http.StatusBadGateway, fmt.Sprintf("step %s failed; resume the run to retry", nodeErr.NodeID))
	default:
		return New(err, http.StatusInternalServerError, SystemErrorMessage)
	}
}
