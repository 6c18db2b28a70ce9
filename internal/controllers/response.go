package controllers

import (
	"errors"
	"net/http"

	json "github.com/goccy/go-json"

	"tokcache/internal/services"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	gson, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	writeRaw(w, status, gson)
}

func writeRaw(w http.ResponseWriter, status int, gson []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(gson)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// statusFor maps a service error onto the response status and the message
// shown to the caller.
func statusFor(err error) (int, string) {
	var pe *services.ProviderError
	var we *services.WriteError

	switch {
	case errors.Is(err, services.ErrEmptyOwnerKey),
		errors.Is(err, services.ErrInvalidHashtag),
		errors.Is(err, services.ErrInvalidUsername):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, services.ErrAccountNotLinked):
		return http.StatusConflict, err.Error()
	case errors.Is(err, services.ErrProviderTimeout):
		return http.StatusGatewayTimeout, "provider did not answer in time"
	case errors.As(err, &pe):
		return http.StatusBadGateway, "provider request failed"
	case errors.As(err, &we):
		return http.StatusInternalServerError, "unable to store fetched records"
	default:
		return http.StatusInternalServerError, "Internal Server Error"
	}
}
