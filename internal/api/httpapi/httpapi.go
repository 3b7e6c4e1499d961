// Package httpapi is a thin chi-based transport for the payment engine's
// command/query surface (spec §4.7, §6). It performs routing and request
// decoding only; every business decision is made by paymentsvc.Service.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/yieldrails/engine/internal/domain/money"
	"github.com/yieldrails/engine/internal/domain/payment"
	"github.com/yieldrails/engine/internal/engine/paymentsvc"
	"github.com/yieldrails/engine/internal/enginerr"
	"github.com/yieldrails/engine/internal/logger"
)

// Server wires paymentsvc.Service behind an HTTP router.
type Server struct {
	svc *paymentsvc.Service
	log *logger.Logger
}

// New builds the HTTP handler for the engine's command/query surface.
func New(svc *paymentsvc.Service, log *logger.Logger) http.Handler {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	s := &Server{svc: svc, log: log}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequest)

	r.Get("/healthz", s.handleHealthz)
	r.Route("/payments", func(pr chi.Router) {
		pr.Post("/", s.handleCreatePayment)
		pr.Get("/", s.handleListPayments)
		pr.Route("/{paymentID}", func(sr chi.Router) {
			sr.Get("/", s.handleGetPayment)
			sr.Post("/release", s.handleReleasePayment)
			sr.Post("/cancel", s.handleCancelPayment)
		})
	})
	r.Get("/strategies/{strategyID}/health", s.handleStrategyHealth)

	return r
}

func (s *Server) logRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.WithField("method", r.Method).WithField("path", r.URL.Path).
			WithField("duration_ms", time.Since(start).Milliseconds()).Info("request handled")
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type createPaymentRequest struct {
	User             string `json:"user"`
	Merchant         string `json:"merchant"`
	Principal        string `json:"principal"`
	Currency         string `json:"currency"`
	SourceChain      string `json:"sourceChain"`
	DestinationChain string `json:"destinationChain"`
	StrategyID       string `json:"strategyId"`
	ClientToken      string `json:"clientToken"`
}

func (s *Server) handleCreatePayment(w http.ResponseWriter, r *http.Request) {
	var req createPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, enginerr.New(enginerr.CodeInvalidParameters, "malformed request body"))
		return
	}
	principal, err := money.FromDecimalString(req.Principal)
	if err != nil {
		writeError(w, enginerr.New(enginerr.CodeInvalidParameters, "invalid principal: %v", err))
		return
	}
	id, err := s.svc.CreatePayment(r.Context(), paymentsvc.CreatePaymentInput{
		User:             req.User,
		Merchant:         req.Merchant,
		Principal:        principal,
		Currency:         req.Currency,
		SourceChain:      req.SourceChain,
		DestinationChain: req.DestinationChain,
		StrategyID:       req.StrategyID,
		ClientToken:      req.ClientToken,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"paymentId": id})
}

func (s *Server) handleGetPayment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "paymentID")
	view, err := s.svc.GetPayment(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type releaseRequest struct {
	Caller      string `json:"caller"`
	ClientToken string `json:"clientToken"`
}

func (s *Server) handleReleasePayment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "paymentID")
	var req releaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, enginerr.New(enginerr.CodeInvalidParameters, "malformed request body"))
		return
	}
	if err := s.svc.ReleasePayment(r.Context(), id, req.Caller, req.ClientToken); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleCancelPayment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "paymentID")
	var req releaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, enginerr.New(enginerr.CodeInvalidParameters, "malformed request body"))
		return
	}
	if err := s.svc.CancelPayment(r.Context(), id, req.Caller, req.ClientToken); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleListPayments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := paymentsvc.ListFilter{
		User:     q.Get("user"),
		Merchant: q.Get("merchant"),
		State:    payment.State(q.Get("state")),
	}
	pageSize := 50
	if n, err := strconv.Atoi(q.Get("pageSize")); err == nil && n > 0 {
		pageSize = n
	}
	page, err := s.svc.ListPayments(r.Context(), filter, q.Get("cursor"), pageSize)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleStrategyHealth(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "strategyID")
	snap, err := s.svc.GetStrategyHealth(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

var errorStatus = map[enginerr.Code]int{
	enginerr.CodeInvalidParameters:    http.StatusBadRequest,
	enginerr.CodeComplianceRejected:   http.StatusForbidden,
	enginerr.CodeDuplicate:            http.StatusConflict,
	enginerr.CodeInvalidTransition:    http.StatusConflict,
	enginerr.CodeUnauthorized:         http.StatusForbidden,
	enginerr.CodeAdapterUnavailable:   http.StatusServiceUnavailable,
	enginerr.CodeStrategyNotFound:     http.StatusNotFound,
	enginerr.CodeBridgeTimeout:        http.StatusGatewayTimeout,
	enginerr.CodeDoubleSpendSuspected: http.StatusConflict,
	enginerr.CodeOverloaded:           http.StatusTooManyRequests,
	enginerr.CodeInternal:             http.StatusInternalServerError,
}

func writeError(w http.ResponseWriter, err error) {
	code := enginerr.CodeOf(err)
	status, ok := errorStatus[code]
	if !ok {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, map[string]string{"code": string(code), "message": err.Error()})
}
