package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"kartoteka/internal/availability"
	"kartoteka/internal/booking"
	"kartoteka/internal/model"
	"kartoteka/internal/slots"
)

// AvailabilityRequest is the body of POST /api/availability.
type AvailabilityRequest struct {
	TenantID   int64    `json:"tenant_id"`
	Date       string   `json:"date"` // Format: YYYY-MM-DD
	ServiceIDs []int64  `json:"service_ids"`
	Options    []string `json:"options,omitempty"` // "field::option"
}

// AvailabilityResponse is the answer of POST /api/availability.
type AvailabilityResponse struct {
	Date            string                  `json:"date"`
	DurationMinutes int                     `json:"duration_minutes"`
	RequiredSlots   int                     `json:"required_slots"`
	Offers          []availability.Offer    `json:"offers"`
	Grid            []availability.BaseCell `json:"grid"`
}

// ReservationRequest is the body of POST /api/reservations.
type ReservationRequest struct {
	TenantID   int64          `json:"tenant_id"`
	Date       string         `json:"date"`
	WorkerID   int64          `json:"worker_id"`
	Start      string         `json:"start"` // Format: HH:MM
	ServiceIDs []int64        `json:"service_ids"`
	Options    []string       `json:"options,omitempty"`
	Client     booking.Client `json:"client"`
}

// ReservationResponse is the answer of POST /api/reservations.
type ReservationResponse struct {
	ReservationID   int64  `json:"reservation_id"`
	Reference       string `json:"reference"`
	DurationMinutes int    `json:"duration_minutes"`
	Note            string `json:"note,omitempty"`
}

// LedgerEntry is one expanded occurrence.
type LedgerEntry struct {
	ID            int64               `json:"id"`
	Title         string              `json:"title"`
	Amount        decimal.Decimal     `json:"amount"`
	Date          string              `json:"date"`
	RecurringType model.RecurringType `json:"recurring_type"`
}

// LedgerResponse is the answer of GET /api/ledger.
type LedgerResponse struct {
	From    string          `json:"from"`
	To      string          `json:"to"`
	Total   decimal.Decimal `json:"total"`
	Entries []LedgerEntry   `json:"entries"`
}

// handleAvailability returns offers and the base grid for a date.
// POST /api/availability
func (s *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed; use POST")
		return
	}

	var req AvailabilityRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.TenantID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "tenant_id is required")
		return
	}

	res, err := s.availability.Query(r.Context(), availability.Query{
		TenantID:   req.TenantID,
		Date:       req.Date,
		ServiceIDs: req.ServiceIDs,
		OptionKeys: req.Options,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	resp := AvailabilityResponse{
		Date:            slots.FormatDate(res.Date),
		DurationMinutes: res.Demand.DurationMinutes,
		RequiredSlots:   res.Demand.RequiredSlots,
		Offers:          res.Offers,
		Grid:            res.Grid,
	}
	if resp.Offers == nil {
		resp.Offers = []availability.Offer{}
	}
	if resp.Grid == nil {
		resp.Grid = []availability.BaseCell{}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleReservations admits a reservation.
// POST /api/reservations
func (s *HTTPServer) handleReservations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed; use POST")
		return
	}

	var req ReservationRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.TenantID <= 0 || req.WorkerID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "tenant_id and worker_id are required")
		return
	}

	res, err := s.booking.Admit(r.Context(), booking.Request{
		TenantID:   req.TenantID,
		Date:       req.Date,
		WorkerID:   req.WorkerID,
		Start:      req.Start,
		ServiceIDs: req.ServiceIDs,
		OptionKeys: req.Options,
		Client:     req.Client,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, ReservationResponse{
		ReservationID:   res.ID,
		Reference:       res.Reference,
		DurationMinutes: res.DurationMinutes,
		Note:            res.Note,
	})
}

// handleLedger returns the expanded ledger of a window, newest first.
// GET /api/ledger?tenant_id=1&from=YYYY-MM-DD&to=YYYY-MM-DD
func (s *HTTPServer) handleLedger(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed; use GET")
		return
	}

	tenantID, ok := tenantParam(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	from, to, err := s.ledger.ParseRange(q.Get("from"), q.Get("to"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	win, err := s.ledger.Window(r.Context(), tenantID, from, to)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	resp := LedgerResponse{
		From:    slots.FormatDate(win.From),
		To:      slots.FormatDate(win.To),
		Total:   win.Total,
		Entries: make([]LedgerEntry, 0, len(win.Entries)),
	}
	for _, e := range win.Entries {
		resp.Entries = append(resp.Entries, LedgerEntry{
			ID:            e.ID,
			Title:         e.Title,
			Amount:        e.Amount,
			Date:          slots.FormatDate(e.Date),
			RecurringType: e.RecurringType,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleLedgerExport streams the month's ledger as xlsx.
// GET /api/ledger/export?tenant_id=1&month=YYYY-MM
func (s *HTTPServer) handleLedgerExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed; use GET")
		return
	}

	tenantID, ok := tenantParam(w, r)
	if !ok {
		return
	}
	month := r.URL.Query().Get("month")

	var buf bytes.Buffer
	if err := s.ledger.ExportMonth(r.Context(), tenantID, month, &buf); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeXLSX(w, "ledger-"+month+".xlsx", &buf)
}

// handleAuditExport streams the tenant's stored tables as xlsx.
// GET /api/audit/export?tenant_id=1
func (s *HTTPServer) handleAuditExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed; use GET")
		return
	}
	tenantID, ok := tenantParam(w, r)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := s.auditor.ExportAudit(r.Context(), tenantID, &buf); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeXLSX(w, fmt.Sprintf("audit-%d.xlsx", tenantID), &buf)
}

// handleSlots returns the daily grid.
// GET /api/slots
func (s *HTTPServer) handleSlots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed; use GET")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"slots":        slots.Grid(),
		"step_minutes": slots.StepMinutes,
	})
}

func writeXLSX(w http.ResponseWriter, filename string, buf *bytes.Buffer) {
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return false
	}
	return true
}

func tenantParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.URL.Query().Get("tenant_id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "tenant_id is required")
		return 0, false
	}
	return id, true
}
