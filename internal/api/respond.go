package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/deepakparameswar/csflow/pkg/errx"
)

const maxBodyBytes = 1 << 20

// RespondJSON writes data as a JSON response with the given status.
func RespondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// RespondError maps err to a status and writes {"error": message}. Server
// side failures are logged with the underlying cause.
func RespondError(w http.ResponseWriter, logger zerolog.Logger, err error) {
	app := errx.FromEngine(err)
	if app.Status >= http.StatusInternalServerError {
		logger.Error().Err(err).Int("status", app.Status).Msg("request failed")
	}
	RespondJSON(w, app.Status, map[string]string{"error": app.Message})
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return errx.BadRequest("invalid request body: %v", err)
	}
	return nil
}
