package api

import (
	"net/http"

	"github.com/deepakparameswar/csflow/pkg/errx"
)

// GetPayment returns the policy payment of a user.
func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userID")
	p, ok := h.dir.Payment(userID)
	if !ok {
		RespondError(w, h.logger, errx.NotFound("no payment for user %s", userID))
		return
	}
	RespondJSON(w, http.StatusOK, p)
}

// GetTransaction returns the transaction documents of a user.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userID")
	t, ok := h.dir.Transaction(userID)
	if !ok {
		RespondError(w, h.logger, errx.NotFound("no transaction for user %s", userID))
		return
	}
	RespondJSON(w, http.StatusOK, t)
}

// ListIssues returns the open customer issues.
func (h *Handler) ListIssues(w http.ResponseWriter, _ *http.Request) {
	RespondJSON(w, http.StatusOK, h.dir.Issues)
}
