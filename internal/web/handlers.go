package web

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/infbuy/internal/domain"
	"github.com/vadiminshakov/infbuy/internal/services/tracker"
	"github.com/vadiminshakov/infbuy/internal/storage"
	"go.uber.org/zap"
)

const dateLayout = "2006-01-02"

type transactionBody struct {
	Type     domain.TxType   `json:"type"`
	Quantity decimal.Decimal `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Fee      decimal.Decimal `json:"fee"`
	Date     string          `json:"date"`
	Memo     string          `json:"memo"`
}

type settleBody struct {
	Date string `json:"date"`
}

type splitBody struct {
	Ratio decimal.Decimal `json:"ratio"`
	Date  string          `json:"date"`
}

type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListPositions(w http.ResponseWriter, r *http.Request) {
	ps, err := s.tracker.GetPositions(r.Context())
	if err != nil {
		s.respondError(w, err)
		return
	}
	if ps == nil {
		ps = []*domain.Position{}
	}
	respondJSON(w, http.StatusOK, ps)
}

func (s *Server) handleCreatePosition(w http.ResponseWriter, r *http.Request) {
	var req tracker.NewPositionRequest
	if err := decode(r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	p, err := s.tracker.CreatePosition(r.Context(), req)
	if err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, p)
}

func (s *Server) handleGetPosition(w http.ResponseWriter, r *http.Request) {
	snap, err := s.tracker.Load(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

func (s *Server) handleDeletePosition(w http.ResponseWriter, r *http.Request) {
	if err := s.tracker.DeletePosition(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGuidance(w http.ResponseWriter, r *http.Request) {
	report, err := s.tracker.Guidance(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	snap, err := s.tracker.Load(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.respondError(w, err)
		return
	}
	c, err := s.charts.Build(r.Context(), snap.Position, snap.Transactions)
	if err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := s.tracker.Transactions(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.respondError(w, err)
		return
	}
	if txs == nil {
		txs = []domain.Transaction{}
	}
	respondJSON(w, http.StatusOK, txs)
}

func (s *Server) handleAddTransaction(w http.ResponseWriter, r *http.Request) {
	var body transactionBody
	if err := decode(r, &body); err != nil {
		s.respondError(w, err)
		return
	}
	date, err := parseDate(body.Date)
	if err != nil {
		s.respondError(w, err)
		return
	}

	res, err := s.tracker.AddTransaction(r.Context(), mux.Vars(r)["id"], tracker.NewTransactionRequest{
		Type:     body.Type,
		Quantity: body.Quantity,
		Price:    body.Price,
		Fee:      body.Fee,
		Date:     date,
		Memo:     body.Memo,
	})
	if err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, res)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	snap, err := s.tracker.DeleteTransaction(r.Context(), vars["id"], vars["txID"])
	if err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

func (s *Server) handleSettle(w http.ResponseWriter, r *http.Request) {
	var body settleBody
	if r.ContentLength != 0 {
		if err := decode(r, &body); err != nil {
			s.respondError(w, err)
			return
		}
	}
	// an empty date settles today
	date, err := parseOptionalDate(body.Date)
	if err != nil {
		s.respondError(w, err)
		return
	}
	p, err := s.tracker.Settle(r.Context(), mux.Vars(r)["id"], date)
	if err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (s *Server) handleSplit(w http.ResponseWriter, r *http.Request) {
	var body splitBody
	if err := decode(r, &body); err != nil {
		s.respondError(w, err)
		return
	}
	date, err := parseDate(body.Date)
	if err != nil {
		s.respondError(w, err)
		return
	}
	snap, err := s.tracker.Split(r.Context(), mux.Vars(r)["id"], body.Ratio, date)
	if err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Wrapf(domain.ErrInvalidInput, "decode body: %v", err)
	}
	return nil
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errors.Wrap(domain.ErrInvalidInput, "date is required")
	}
	return parseOptionalDate(s)
}

func parseOptionalDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	d, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, errors.Wrapf(domain.ErrInvalidInput, "date %q is not YYYY-MM-DD", s)
	}
	return d, nil
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrPositionSettled), errors.Is(err, domain.ErrNotSettleable):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondError(w http.ResponseWriter, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		s.l.Error("request failed", zap.Error(err))
	}
	respondJSON(w, status, errorBody{Error: err.Error()})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
