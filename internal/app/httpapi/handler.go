// Package httpapi exposes the ledger, escrow and project services over REST.
package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	app "github.com/workmesh/workledger/internal/app"
	"github.com/workmesh/workledger/internal/app/auth"
	"github.com/workmesh/workledger/internal/app/domain/project"
	"github.com/workmesh/workledger/internal/app/metrics"
	"github.com/workmesh/workledger/internal/app/services/escrow"
	"github.com/workmesh/workledger/internal/app/services/projects"
	"github.com/workmesh/workledger/internal/app/system"
	apperr "github.com/workmesh/workledger/internal/errors"
	"github.com/workmesh/workledger/pkg/logger"
)

// Options tunes the HTTP layer.
type Options struct {
	AuditLimit int
	AuditFile  string
}

type handler struct {
	app   *app.Application
	audit *auditLog
	log   *logger.Logger
}

// NewHandler returns a router exposing the core REST API. Authentication is
// expected to run in front of it; handlers read the actor from the request
// context.
func NewHandler(application *app.Application, opts Options, log *logger.Logger) (http.Handler, error) {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	sink, err := newFileAuditSink(opts.AuditFile)
	if err != nil {
		return nil, err
	}
	h := &handler{
		app:   application,
		audit: newAuditLog(opts.AuditLimit, sink),
		log:   log,
	}

	r := mux.NewRouter()
	r.Use(h.auditMiddleware)

	r.HandleFunc("/health", h.health).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/accounts/me", h.myAccount).Methods(http.MethodGet)
	r.HandleFunc("/accounts/me/entries", h.myEntries).Methods(http.MethodGet)
	r.HandleFunc("/accounts/me/credit", h.credit).Methods(http.MethodPost)
	r.HandleFunc("/accounts/me/debit", h.debit).Methods(http.MethodPost)
	r.HandleFunc("/accounts/{id}", h.getAccount).Methods(http.MethodGet)

	r.HandleFunc("/transactions/hold", h.hold).Methods(http.MethodPost)
	r.HandleFunc("/transactions/{id}", h.getTransaction).Methods(http.MethodGet)
	r.HandleFunc("/transactions/{id}/release", h.release).Methods(http.MethodPost)
	r.HandleFunc("/transactions/{id}/refund", h.refund).Methods(http.MethodPost)

	r.HandleFunc("/projects", h.createProject).Methods(http.MethodPost)
	r.HandleFunc("/projects", h.listProjects).Methods(http.MethodGet)
	r.HandleFunc("/projects/{id}", h.getProject).Methods(http.MethodGet)
	r.HandleFunc("/projects/{id}", h.deleteProject).Methods(http.MethodDelete)
	r.HandleFunc("/projects/{id}/open", h.openProject).Methods(http.MethodPost)
	r.HandleFunc("/projects/{id}/cancel", h.cancelProject).Methods(http.MethodPost)
	r.HandleFunc("/projects/{id}/bids", h.submitBid).Methods(http.MethodPost)
	r.HandleFunc("/projects/{id}/bids/{bidder}/accept", h.acceptBid).Methods(http.MethodPost)
	r.HandleFunc("/projects/{id}/milestones/{milestone}/advance", h.advanceMilestone).Methods(http.MethodPost)
	r.HandleFunc("/projects/{id}/confirm", h.confirmCompletion).Methods(http.MethodPost)
	r.HandleFunc("/projects/{id}/health", h.projectHealth).Methods(http.MethodGet)
	r.HandleFunc("/projects/{id}/transactions", h.projectTransactions).Methods(http.MethodGet)

	r.HandleFunc("/audit", h.auditEntries).Methods(http.MethodGet)
	r.HandleFunc("/ws", h.websocket).Methods(http.MethodGet)

	return r, nil
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, system.Snapshot())
}

func (h *handler) myAccount(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	acct, err := h.app.Ledger.EnsureAccount(r.Context(), actor.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

func (h *handler) myEntries(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	acct, err := h.app.Ledger.EnsureAccount(r.Context(), actor.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	entries, err := h.app.Ledger.ListEntries(r.Context(), acct.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

type amountPayload struct {
	Amount int64  `json:"amount"`
	Reason string `json:"reason,omitempty"`
}

func (h *handler) credit(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var payload amountPayload
	if err := decodeJSON(r.Body, &payload); err != nil {
		h.writeError(w, r, apperr.Validation("invalid request body: %v", err))
		return
	}
	acct, err := h.app.Ledger.Credit(r.Context(), actor.ID, payload.Amount, payload.Reason)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

func (h *handler) debit(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var payload amountPayload
	if err := decodeJSON(r.Body, &payload); err != nil {
		h.writeError(w, r, apperr.Validation("invalid request body: %v", err))
		return
	}
	acct, err := h.app.Ledger.Debit(r.Context(), actor.ID, payload.Amount, payload.Reason)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

func (h *handler) getAccount(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	acct, err := h.app.Ledger.GetAccount(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if acct.OwnerID != actor.ID && !actor.Admin() {
		h.writeError(w, r, apperr.Forbidden("account belongs to another owner"))
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

func (h *handler) hold(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req escrow.HoldRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		h.writeError(w, r, apperr.Validation("invalid request body: %v", err))
		return
	}
	if req.PayerID == "" {
		req.PayerID = actor.ID
	}
	tx, err := h.app.Escrow.HoldFunds(r.Context(), actor, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

func (h *handler) getTransaction(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	tx, err := h.app.Escrow.GetTransaction(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if tx.PayerID != actor.ID && tx.PayeeID != actor.ID && !actor.Admin() {
		h.writeError(w, r, apperr.Forbidden("transaction belongs to other parties"))
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (h *handler) release(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	tx, err := h.app.Escrow.ReleaseFunds(r.Context(), actor, mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (h *handler) refund(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	tx, err := h.app.Escrow.RefundFunds(r.Context(), actor, mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (h *handler) createProject(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req projects.CreateRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		h.writeError(w, r, apperr.Validation("invalid request body: %v", err))
		return
	}
	p, err := h.app.Projects.CreateProject(r.Context(), actor, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *handler) listProjects(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	owner := r.URL.Query().Get("owner")
	if owner == "" || owner == "me" {
		owner = actor.ID
	}
	if owner != actor.ID && !actor.Admin() {
		h.writeError(w, r, apperr.Forbidden("cannot list another owner's projects"))
		return
	}
	list, err := h.app.Projects.ListByOwner(r.Context(), owner)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handler) getProject(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireActor(w, r); !ok {
		return
	}
	p, err := h.app.Projects.GetProject(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handler) deleteProject(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	if err := h.app.Projects.DeleteProject(r.Context(), actor, mux.Vars(r)["id"]); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) openProject(w http.ResponseWriter, r *http.Request) {
	h.projectTransition(w, r, h.app.Projects.OpenProject)
}

func (h *handler) cancelProject(w http.ResponseWriter, r *http.Request) {
	h.projectTransition(w, r, h.app.Projects.CancelProject)
}

func (h *handler) projectTransition(w http.ResponseWriter, r *http.Request, op func(context.Context, auth.Actor, string) (project.Project, error)) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	p, err := op(r.Context(), actor, mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handler) submitBid(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req projects.BidRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		h.writeError(w, r, apperr.Validation("invalid request body: %v", err))
		return
	}
	p, err := h.app.Projects.SubmitBid(r.Context(), actor, mux.Vars(r)["id"], req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *handler) acceptBid(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	p, err := h.app.Projects.AcceptBid(r.Context(), actor, vars["id"], vars["bidder"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handler) advanceMilestone(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var payload struct {
		To string `json:"to"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		h.writeError(w, r, apperr.Validation("invalid request body: %v", err))
		return
	}
	vars := mux.Vars(r)
	p, err := h.app.Projects.AdvanceMilestone(r.Context(), actor, vars["id"], vars["milestone"], project.MilestoneStatus(payload.To))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handler) confirmCompletion(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	p, err := h.app.Projects.ConfirmCompletion(r.Context(), actor, mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handler) projectHealth(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireActor(w, r); !ok {
		return
	}
	score, err := h.app.Projects.HealthScore(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"health_score": score})
}

func (h *handler) projectTransactions(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireActor(w, r); !ok {
		return
	}
	txs, err := h.app.Escrow.ListByProject(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

func (h *handler) auditEntries(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	if !actor.Admin() {
		h.writeError(w, r, apperr.Forbidden("audit log requires admin role"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	writeJSON(w, http.StatusOK, h.audit.listLimit(limit))
}

func (h *handler) websocket(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	h.app.Hub.ServeHTTP(w, r, actor.ID)
}

// auditMiddleware records every mutating request.
func (h *handler) auditMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		actor := auth.ActorFrom(r.Context())
		h.audit.add(auditEntry{
			Time:       time.Now().UTC(),
			User:       actor.ID,
			Role:       string(actor.Role),
			Path:       r.URL.Path,
			Method:     r.Method,
			Status:     rec.status,
			Target:     auditTarget(r),
			RemoteAddr: r.RemoteAddr,
			UserAgent:  r.UserAgent(),
		})
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func requireActor(w http.ResponseWriter, r *http.Request) (auth.Actor, bool) {
	actor := auth.ActorFrom(r.Context())
	if actor.ID == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{
			"code":  string(apperr.CodeUnauthorized),
			"error": "authentication required",
		})
		return auth.Actor{}, false
	}
	return actor, true
}

func (h *handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.log.WithContext(r.Context()).WithError(err).Error("request failed")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"code":  string(apperr.CodeOf(err)),
		"error": err.Error(),
	})
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
