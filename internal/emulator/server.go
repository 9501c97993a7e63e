package emulator

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"fintrack/internal/log"
	"fintrack/internal/remote"
)

// Handler serves the ledger API on top of a Store.
type Handler struct {
	store   *Store
	token   string
	logger  *log.Logger
	limiter *RateLimiter
}

// NewHandler creates a Handler. An empty token disables authentication.
func NewHandler(s *Store, token string, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Discard()
	}
	return &Handler{store: s, token: token, logger: logger.WithComponent(log.ComponentEmulator)}
}

// WithRateLimit throttles authenticated routes with rl.
func (h *Handler) WithRateLimit(rl *RateLimiter) *Handler {
	h.limiter = rl
	return h
}

// Router wires every route behind the logging and recovery middleware.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(log.Middleware(h.logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Group(func(r chi.Router) {
		r.Use(h.auth)
		if h.limiter != nil {
			r.Use(h.limiter.Middleware)
		}

		r.Route("/accounts", func(r chi.Router) {
			r.Get("/", h.listAccounts)
			r.Post("/", h.createAccount)
			r.Put("/{id}", h.updateAccount)
		})

		r.Route("/transactions", func(r chi.Router) {
			r.Post("/", h.createTransaction)
			r.Get("/account/{accountID}/period", h.listTransactions)
			r.Put("/{id}", h.updateTransaction)
			r.Delete("/{id}", h.deleteTransaction)
		})

		r.Get("/categories", h.listCategories)
	})

	return r
}

// auth validates the bearer token.
func (h *Handler) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.token == "" {
			next.ServeHTTP(w, r)
			return
		}
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeJSONError(w, http.StatusUnauthorized, "Missing Authorization header")
			return
		}
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			writeJSONError(w, http.StatusUnauthorized, "Invalid Authorization header format")
			return
		}
		if parts[1] != h.token {
			writeJSONError(w, http.StatusUnauthorized, "Invalid token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.store.ListAccounts()
	if err != nil {
		h.fail(w, r, err, "Failed to list accounts")
		return
	}
	writeJSON(w, http.StatusOK, accounts)
}

func (h *Handler) createAccount(w http.ResponseWriter, r *http.Request) {
	var req remote.AccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Failed to parse request body")
		return
	}
	acct, err := h.store.CreateAccount(req)
	if err != nil {
		h.fail(w, r, err, "Failed to create account")
		return
	}
	writeJSON(w, http.StatusCreated, acct)
}

func (h *Handler) updateAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req remote.AccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Failed to parse request body")
		return
	}
	acct, err := h.store.UpdateAccount(id, req)
	if err != nil {
		h.fail(w, r, err, "Failed to update account")
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

func (h *Handler) listTransactions(w http.ResponseWriter, r *http.Request) {
	accountID, ok := pathID(w, r, "accountID")
	if !ok {
		return
	}
	q := r.URL.Query()
	from, err := time.Parse(remote.DateLayout, q.Get("startDate"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid startDate")
		return
	}
	to, err := time.Parse(remote.DateLayout, q.Get("endDate"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid endDate")
		return
	}
	if to.Before(from) {
		writeJSONError(w, http.StatusBadRequest, "endDate before startDate")
		return
	}

	// endDate covers the whole day
	txs, err := h.store.ListTransactions(accountID, from, to.Add(24*time.Hour-time.Nanosecond))
	if err != nil {
		h.fail(w, r, err, "Failed to list transactions")
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

func (h *Handler) createTransaction(w http.ResponseWriter, r *http.Request) {
	var req remote.TransactionDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Failed to parse request body")
		return
	}
	t, replayed, err := h.store.CreateTransaction(req, r.Header.Get(remote.IdempotencyHeader))
	if err != nil {
		h.fail(w, r, err, "Failed to create transaction")
		return
	}
	if replayed {
		h.logger.InfoContext(r.Context(), "Create replayed, record replaced", log.FieldTransactionID, t.ID)
		writeJSON(w, http.StatusOK, t)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (h *Handler) updateTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req remote.TransactionDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Failed to parse request body")
		return
	}
	req.ID = id
	t, err := h.store.UpdateTransaction(req)
	if err != nil {
		h.fail(w, r, err, "Failed to update transaction")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handler) deleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.store.DeleteTransaction(id); err != nil {
		h.fail(w, r, err, "Failed to delete transaction")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.store.ListCategories()
	if err != nil {
		h.fail(w, r, err, "Failed to list categories")
		return
	}
	writeJSON(w, http.StatusOK, cats)
}

// fail maps store errors onto status codes.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error, msg string) {
	switch {
	case errors.Is(err, ErrNotFound):
		writeJSONError(w, http.StatusNotFound, "Not found")
	case errors.Is(err, ErrInvalid):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.ErrorContext(r.Context(), msg, log.FieldError, err)
		writeJSONError(w, http.StatusInternalServerError, msg)
	}
}

func pathID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		writeJSONError(w, http.StatusBadRequest, "Invalid "+param)
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeJSONError writes a JSON error response.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, remote.ErrorBody{Error: msg})
}
