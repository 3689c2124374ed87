package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/model"
	"main/internal/queue"
	"main/internal/store"
)

func newTestMux(t *testing.T) (*http.ServeMux, store.OrderStore, *queue.Queue) {
	t.Helper()
	st := store.NewMemory()
	q := queue.New(queue.Config{})
	t.Cleanup(q.Close)
	return NewMux(NewIntake(st, q), nil), st, q
}

func postExecute(t *testing.T, mux *http.ServeMux, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/orders/execute", strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestExecuteAcceptsMarketOrder(t *testing.T) {
	mux, st, q := newTestMux(t)

	rec := postExecute(t, mux, `{"orderType":"market","tokenIn":"SOL","tokenOut":"USDC","amount":"1.5"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp["orderId"])

	order, err := st.GetByID(t.Context(), resp["orderId"])
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, order.Status)
	assert.Equal(t, "SOL", order.TokenIn)
	assert.True(t, order.AmountIn.Equal(decimalFromString(t, "1.5")))

	job, ok := q.Next(t.Context())
	require.True(t, ok)
	assert.Equal(t, resp["orderId"], job.OrderID)
	assert.Equal(t, 1, job.Attempt)
}

func TestExecuteRejectsBadRequests(t *testing.T) {
	for name, body := range map[string]string{
		"limit order":     `{"orderType":"limit","tokenIn":"SOL","tokenOut":"USDC","amount":"1"}`,
		"missing token":   `{"orderType":"market","tokenIn":"","tokenOut":"USDC","amount":"1"}`,
		"zero amount":     `{"orderType":"market","tokenIn":"SOL","tokenOut":"USDC","amount":"0"}`,
		"negative amount": `{"orderType":"market","tokenIn":"SOL","tokenOut":"USDC","amount":"-2"}`,
		"malformed json":  `{"orderType":`,
	} {
		t.Run(name, func(t *testing.T) {
			mux, _, _ := newTestMux(t)
			rec := postExecute(t, mux, body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var resp map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp["error"])
		})
	}
}

func TestGetOrderReturnsCurrentState(t *testing.T) {
	mux, st, _ := newTestMux(t)

	order := &model.Order{
		ID:       "o-get",
		Kind:     model.KindMarket,
		TokenIn:  "SOL",
		TokenOut: "USDC",
		AmountIn: decimalFromString(t, "2"),
		Status:   model.StatusSubmitted,
	}
	require.NoError(t, st.Create(t.Context(), order))

	req := httptest.NewRequest(http.MethodGet, "/api/orders/o-get", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var got model.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, model.StatusSubmitted, got.Status)
	assert.Equal(t, "o-get", got.ID)
}

func decimalFromString(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func TestRecoverReenqueuesUnfinishedOrders(t *testing.T) {
	st := store.NewMemory()
	q := queue.New(queue.Config{})
	t.Cleanup(q.Close)
	intake := NewIntake(st, q)

	for id, status := range map[string]model.Status{
		"stranded-pending":   model.StatusPending,
		"stranded-submitted": model.StatusSubmitted,
		"done":               model.StatusConfirmed,
		"dead":               model.StatusFailed,
	} {
		order := &model.Order{
			ID:       id,
			Kind:     model.KindMarket,
			TokenIn:  "SOL",
			TokenOut: "USDC",
			AmountIn: decimalFromString(t, "1"),
			Status:   model.StatusPending,
		}
		require.NoError(t, st.Create(t.Context(), order))
		if status != model.StatusPending {
			require.NoError(t, st.UpdateFields(t.Context(), id, store.Fields{Status: &status}))
		}
	}

	recovered, err := intake.Recover(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 2, recovered)

	seen := map[string]bool{}
	for range recovered {
		job, ok := q.Next(t.Context())
		require.True(t, ok)
		seen[job.OrderID] = true
		assert.Equal(t, 1, job.Attempt, "recovered jobs start a fresh attempt budget")
	}
	assert.True(t, seen["stranded-pending"])
	assert.True(t, seen["stranded-submitted"])
}

func TestGetOrderNotFound(t *testing.T) {
	mux, _, _ := newTestMux(t)

	req := httptest.NewRequest(http.MethodGet, "/api/orders/missing", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
