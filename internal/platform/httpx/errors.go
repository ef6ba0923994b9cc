package httpx

import (
	"errors"
	"net/http"

	"github.com/deliverly/admin-console/internal/apiclient"
)

// Sentinel errors for the console layer.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrBadRequest   = errors.New("bad request")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
)

// RespondError maps console and API errors to RFC7807 responses.
func RespondError(w http.ResponseWriter, err error) {
	var apiErr *apiclient.Error
	if errors.As(err, &apiErr) {
		WriteProblem(w, problemFor(apiErr))
		return
	}
	switch {
	case errors.Is(err, ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrBadRequest):
		Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
	case errors.Is(err, ErrConflict):
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrUnauthorized):
		Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func problemFor(e *apiclient.Error) ProblemDetail {
	p := ProblemDetail{Detail: e.Message, Kind: string(e.Kind)}
	switch e.Kind {
	case apiclient.KindValidation:
		p.Status, p.Title = http.StatusUnprocessableEntity, "Validation Failed"
		p.FieldErrors = e.FieldErrors
	case apiclient.KindUnauthorized:
		p.Status, p.Title = http.StatusUnauthorized, "Unauthorized"
	case apiclient.KindNetwork:
		p.Status, p.Title = http.StatusBadGateway, "Upstream Unreachable"
	default:
		p.Status, p.Title = http.StatusBadGateway, "Upstream Error"
	}
	return p
}
