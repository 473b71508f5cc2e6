package tenders

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"github.com/kilianp07/tendering/core/logger"
	"github.com/kilianp07/tendering/core/model"
	"github.com/kilianp07/tendering/core/tender"
	"github.com/kilianp07/tendering/pkg/export"
)

var validate = validator.New()

type handler struct {
	svc Service
	log logger.Logger
}

// CreateRequest is a planning request. Durations are Go duration strings
// such as "2h" or "90m".
type CreateRequest struct {
	model.TenderSpec
	ResponseWindow string `json:"response_window,omitempty"`
}

// CreateResponse returns the id of a new tender.
type CreateResponse struct {
	ID string `json:"id"`
}

// BidRequest is a carrier submission.
type BidRequest struct {
	model.BidPayload
	CarrierID string `json:"carrier_id" validate:"required"`
	ValidFor  string `json:"valid_for,omitempty"`
}

// CancelRequest carries the cancellation reason.
type CancelRequest struct {
	Reason string `json:"reason"`
}

// RulesRequest replaces the rule set of a tender.
type RulesRequest struct {
	Rules []model.SelectionRule `json:"rules" validate:"dive"`
}

// decode reads a JSON body strictly and runs struct validation. Every failure
// wraps tender.ErrValidation.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: malformed body: %v", tender.ErrValidation, err)
	}
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", tender.ErrValidation, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %v", tender.ErrValidation, err)
	}
	return nil
}

func parseDuration(field, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", tender.ErrValidation, field, err)
	}
	return d, nil
}

func (h *handler) ping(w http.ResponseWriter, r *http.Request) {
	render.PlainText(w, r, "ok")
}

func (h *handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	window, err := parseDuration("response_window", req.ResponseWindow)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	spec := req.TenderSpec
	spec.ResponseWindow = window
	id, err := h.svc.Create(spec)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, CreateResponse{ID: id})
}

func (h *handler) list(w http.ResponseWriter, r *http.Request) {
	out := h.svc.List()
	if status := r.URL.Query().Get("status"); status != "" {
		filtered := out[:0]
		for _, t := range out {
			if string(t.Status()) == status {
				filtered = append(filtered, t)
			}
		}
		out = filtered
	}
	render.JSON(w, r, out)
}

func (h *handler) get(w http.ResponseWriter, r *http.Request) {
	t, err := h.svc.Get(chi.URLParam(r, "tenderId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	render.JSON(w, r, t)
}

func (h *handler) send(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "tenderId")
	if err := h.svc.Send(id); err != nil {
		h.fail(w, r, err)
		return
	}
	h.get(w, r)
}

func (h *handler) cancel(w http.ResponseWriter, r *http.Request) {
	var req CancelRequest
	if r.ContentLength > 0 {
		if err := decode(r, &req); err != nil {
			h.fail(w, r, err)
			return
		}
	}
	if err := h.svc.CancelTender(chi.URLParam(r, "tenderId"), req.Reason); err != nil {
		h.fail(w, r, err)
		return
	}
	h.get(w, r)
}

func (h *handler) decide(w http.ResponseWriter, r *http.Request) {
	var d tender.Decision
	if err := decode(r, &d); err != nil {
		h.fail(w, r, err)
		return
	}
	t, err := h.svc.ManualDecision(chi.URLParam(r, "tenderId"), d)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	render.JSON(w, r, t)
}

func (h *handler) reevaluate(w http.ResponseWriter, r *http.Request) {
	var req RulesRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	ranking, err := h.svc.Reevaluate(chi.URLParam(r, "tenderId"), req.Rules)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if r.URL.Query().Get("format") == string(export.FormatCSV) {
		w.Header().Set("Content-Type", "text/csv")
		if err := export.WriteCSV(w, ranking); err != nil {
			h.log.Errorf("write ranking csv: %v", err)
		}
		return
	}
	render.JSON(w, r, ranking)
}

func (h *handler) ranking(w http.ResponseWriter, r *http.Request) {
	ranking, err := h.svc.Ranking(chi.URLParam(r, "tenderId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if r.URL.Query().Get("format") == string(export.FormatCSV) {
		w.Header().Set("Content-Type", "text/csv")
		if err := export.WriteCSV(w, ranking); err != nil {
			h.log.Errorf("write ranking csv: %v", err)
		}
		return
	}
	render.JSON(w, r, ranking)
}

func (h *handler) decisions(w http.ResponseWriter, r *http.Request) {
	recs, err := h.svc.Decisions(r.Context(), chi.URLParam(r, "tenderId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	render.JSON(w, r, recs)
}

func (h *handler) bids(w http.ResponseWriter, r *http.Request) {
	bids, err := h.svc.Bids(chi.URLParam(r, "tenderId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	render.JSON(w, r, bids)
}

func (h *handler) submitBid(w http.ResponseWriter, r *http.Request) {
	var req BidRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	validFor, err := parseDuration("valid_for", req.ValidFor)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	p := req.BidPayload
	p.ValidFor = validFor
	bid, err := h.svc.SubmitBid(chi.URLParam(r, "tenderId"), req.CarrierID, p)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, bid)
}

func (h *handler) withdrawBid(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.WithdrawBid(chi.URLParam(r, "tenderId"), chi.URLParam(r, "carrierId")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
