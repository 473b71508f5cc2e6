package tenders

import (
	"net/http"

	"github.com/go-chi/render"

	"github.com/kilianp07/tendering/core/tender"
)

// HTTPError is the body of every failed request.
type HTTPError struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var statuses = map[string]int{
	"tender_not_found":       http.StatusNotFound,
	"bid_not_found":          http.StatusNotFound,
	"validation":             http.StatusBadRequest,
	"tender_already_decided": http.StatusConflict,
	"tender_closed":          http.StatusConflict,
	"duplicate_active_bid":   http.StatusConflict,
	"invalid_transition":     http.StatusConflict,
	"carrier_not_eligible":   http.StatusForbidden,
	"no_eligible_carriers":   http.StatusUnprocessableEntity,
	"no_enabled_rules":       http.StatusUnprocessableEntity,
}

// statusFor maps engine errors to an HTTP status and their stable code.
func statusFor(err error) (int, string) {
	code := tender.ErrorCode(err)
	if status, ok := statuses[code]; ok {
		return status, code
	}
	return http.StatusInternalServerError, "internal"
}

func (h *handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Errorf("%s %s: %v", r.Method, r.URL.Path, err)
	} else {
		h.log.Debugw("request refused", map[string]any{"method": r.Method, "path": r.URL.Path, "code": code, "error": err.Error()})
	}
	render.Status(r, status)
	render.JSON(w, r, HTTPError{Error: err.Error(), Code: code})
}
