package server

import (
	"encoding/json"
	"net/http"

	"openhowl/core/apperr"
	"openhowl/logger"
)

type errorBody struct {
	Error struct {
		Kind    apperr.Kind `json:"kind"`
		Message string      `json:"message"`
	} `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("[HTTP] failed to write response", logger.ErrorField(err))
	}
}

// writeError maps err to its kind's status and the error payload.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status := kind.Status()

	var body errorBody
	body.Error.Kind = kind
	body.Error.Message = apperr.MessageOf(err)

	if status >= http.StatusInternalServerError {
		logger.Error("[HTTP] request failed",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.String("kind", string(kind)),
			logger.ErrorField(err))
	} else {
		logger.Debug("[HTTP] request rejected",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.String("kind", string(kind)),
			logger.ErrorField(err))
	}
	writeJSON(w, status, body)
}
