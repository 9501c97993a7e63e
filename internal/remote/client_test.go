package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"fintrack/internal/core"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(Config{BaseURL: srv.URL, Token: "secret", Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNew_InvalidURL(t *testing.T) {
	for _, raw := range []string{"", "localhost:8080", "://bad"} {
		_, err := New(Config{BaseURL: raw})
		var re *Error
		if !errors.As(err, &re) || re.Kind != InvalidURL {
			t.Errorf("New(%q) error = %v, want InvalidURL", raw, err)
		}
	}
}

func TestStatusClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      any
		wantKind  Kind
		wantClass core.ErrorClass
	}{
		{"unauthorized", http.StatusUnauthorized, nil, Unauthorized, core.ClassAuth},
		{"forbidden", http.StatusForbidden, nil, Unauthorized, core.ClassAuth},
		{"not found", http.StatusNotFound, nil, NotFound, core.ClassValidation},
		{"server error", http.StatusInternalServerError, ErrorBody{Error: "boom"}, ServerError, core.ClassServer},
		{"bad gateway", http.StatusBadGateway, nil, ServerError, core.ClassServer},
		{"validation message", http.StatusUnprocessableEntity, ErrorBody{Error: "amount must be positive"}, Custom, core.ClassValidation},
		{"teapot", http.StatusTeapot, nil, UnexpectedStatus, core.ClassServer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if tt.body == nil {
					w.WriteHeader(tt.status)
					return
				}
				writeJSON(w, tt.status, tt.body)
			})

			_, err := c.ListCategories(context.Background())
			var re *Error
			if !errors.As(err, &re) {
				t.Fatalf("expected *Error, got %v", err)
			}
			if re.Kind != tt.wantKind {
				t.Errorf("Kind = %v, want %v", re.Kind, tt.wantKind)
			}
			if re.Status != tt.status {
				t.Errorf("Status = %d, want %d", re.Status, tt.status)
			}
			if got := core.ClassOf(err); got != tt.wantClass {
				t.Errorf("ClassOf() = %v, want %v", got, tt.wantClass)
			}
		})
	}
}

func TestCustomErrorMessage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, ErrorBody{Error: "unknown category"})
	})
	_, err := c.CreateTransaction(context.Background(), core.Transaction{ID: 1, Amount: "1"})
	var re *Error
	if !errors.As(err, &re) || re.Message != "unknown category" {
		t.Fatalf("error = %v, want Custom with message", err)
	}
}

func TestDecodingError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": "not-a-number"`))
	})
	_, err := c.ListAccounts(context.Background())
	if got := core.ClassOf(err); got != core.ClassDecoding {
		t.Fatalf("ClassOf() = %v (%v), want decoding", got, err)
	}
}

func TestBadBalanceIsDecodingError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []AccountDTO{{ID: 1, Balance: "lots"}})
	})
	_, err := c.ListAccounts(context.Background())
	if got := core.ClassOf(err); got != core.ClassDecoding {
		t.Fatalf("ClassOf() = %v, want decoding", got)
	}
}

func TestNoResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c, err := New(Config{BaseURL: url, Timeout: 2 * time.Second})
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.ListAccounts(context.Background())
	if !core.IsConnectivity(err) {
		t.Fatalf("expected connectivity error, got %v", err)
	}
}

func TestCallerCancellation(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := c.ListCategories(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if core.IsConnectivity(err) {
		t.Error("caller cancellation must not be classified as connectivity")
	}
}

func TestAlreadyCanceledContext(t *testing.T) {
	called := false
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) { called = true })
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.ListAccounts(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if called {
		t.Error("no request should be sent with a canceled context")
	}
}

func TestListTransactionsRequest(t *testing.T) {
	var gotPath, gotStart, gotEnd, gotAuth string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotStart = r.URL.Query().Get("startDate")
		gotEnd = r.URL.Query().Get("endDate")
		gotAuth = r.Header.Get("Authorization")
		writeJSON(w, http.StatusOK, []TransactionDTO{{ID: 3, AccountID: 7, CategoryID: 1, Amount: "4.20"}})
	})

	p, _ := core.NewPeriod(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC))
	txs, err := c.ListTransactions(context.Background(), 7, p)
	if err != nil {
		t.Fatalf("ListTransactions() error = %v", err)
	}
	if gotPath != "/transactions/account/7/period" {
		t.Errorf("path = %q", gotPath)
	}
	if gotStart != "2024-03-01" || gotEnd != "2024-03-31" {
		t.Errorf("period query = %s..%s", gotStart, gotEnd)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("Authorization = %q, want bearer token", gotAuth)
	}
	if len(txs) != 1 || !txs[0].IsSynced || txs[0].Amount != "4.20" {
		t.Errorf("transactions = %+v", txs)
	}
}

func TestCreateTransactionSendsClientKey(t *testing.T) {
	var (
		keys []string
		ids  []int64
	)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		keys = append(keys, r.Header.Get(IdempotencyHeader))
		var in TransactionDTO
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		ids = append(ids, in.ID)
		in.ID = 42
		writeJSON(w, http.StatusCreated, in)
	})

	tx := core.Transaction{ID: -3, AccountID: 1, CategoryID: 2, Amount: "10.00", TransactionDate: time.Now().UTC(), ClientKey: NewClientKey()}
	for i := 0; i < 2; i++ {
		got, err := c.CreateTransaction(context.Background(), tx)
		if err != nil {
			t.Fatalf("CreateTransaction() error = %v", err)
		}
		if got.ID != 42 {
			t.Errorf("ID = %d, want the server-assigned 42", got.ID)
		}
	}
	if keys[0] != tx.ClientKey || keys[1] != tx.ClientKey {
		t.Errorf("idempotency keys = %v, want %q on every attempt", keys, tx.ClientKey)
	}
	if ids[0] != 0 || ids[1] != 0 {
		t.Errorf("sent ids = %v, local placeholder ids must not reach the server", ids)
	}
	if NewClientKey() == NewClientKey() {
		t.Error("client keys collide")
	}

	tx.ClientKey = ""
	tx.ID = 7
	if _, err := c.CreateTransaction(context.Background(), tx); err != nil {
		t.Fatalf("CreateTransaction() error = %v", err)
	}
	if keys[2] != "" || ids[2] != 7 {
		t.Errorf("keyless create sent key %q id %d", keys[2], ids[2])
	}
}

func TestDeleteTransactionNoContent(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Path != "/transactions/9" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	if err := c.DeleteTransaction(context.Background(), 9); err != nil {
		t.Fatalf("DeleteTransaction() error = %v", err)
	}
}

func TestIsNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNotFound) })
	err := c.DeleteTransaction(context.Background(), 1)
	if !IsNotFound(err) {
		t.Fatalf("IsNotFound(%v) = false", err)
	}
	if IsNotFound(errors.New("other")) {
		t.Error("IsNotFound on plain error")
	}
}

func TestBaseURLWithPathPrefix(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		writeJSON(w, http.StatusOK, []CategoryDTO{})
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL + "/api/v1/"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.ListCategories(context.Background()); err != nil {
		t.Fatal(err)
	}
	if gotPath != "/api/v1/categories" {
		t.Errorf("path = %q", gotPath)
	}
}
