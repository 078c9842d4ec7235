package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/rebalancer/internal/domain"
	"github.com/aristath/rebalancer/internal/modules/portfolio"
	"github.com/aristath/rebalancer/internal/modules/strategies"
	"github.com/aristath/rebalancer/internal/modules/universe"
	testingpkg "github.com/aristath/rebalancer/internal/testing"
)

func setupRouter(t *testing.T) *chi.Mux {
	t.Helper()
	db := testingpkg.NewPortfolioDB(t).Conn()
	log := zerolog.Nop()

	svc := strategies.NewService(
		db,
		strategies.NewRepository(db, log),
		portfolio.NewHoldingRepository(db, log),
		universe.NewSecurityRepository(db, log),
		domain.SystemClock{},
		nil,
		log,
	)

	router := chi.NewRouter()
	router.Route("/api", func(r chi.Router) {
		NewHandler(svc, log).RegisterRoutes(r)
	})
	return router
}

func request(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

const createBody = `{
	"user_id": 5,
	"name": "Balanced",
	"total_funds": 10000,
	"portfolio_allocations": [
		{"portfolio_id": 1, "percentage": 100, "stock_allocations": {"10": 60, "11": 40}}
	]
}`

func TestStrategyCRUD(t *testing.T) {
	router := setupRouter(t)

	w := request(t, router, http.MethodPost, "/api/strategies", createBody)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created struct {
		Data struct {
			ID          int64  `json:"id"`
			Name        string `json:"name"`
			CreatedAt   string `json:"created_at"`
			Allocations []struct {
				StockAllocations map[string]float64 `json:"stock_allocations"`
			} `json:"portfolio_allocations"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&created))
	assert.Equal(t, "Balanced", created.Data.Name)
	assert.NotEmpty(t, created.Data.CreatedAt)
	assert.Equal(t, 60.0, created.Data.Allocations[0].StockAllocations["10"])

	w = request(t, router, http.MethodGet, "/api/strategies?user_id=5", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Balanced")

	w = request(t, router, http.MethodGet, "/api/strategies?user_id=6", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"data":[]`)

	w = request(t, router, http.MethodPut, "/api/strategies/1", `{"name": "Renamed"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Renamed")

	w = request(t, router, http.MethodPost, "/api/strategies/1/revalue", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = request(t, router, http.MethodDelete, "/api/strategies/1", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = request(t, router, http.MethodGet, "/api/strategies/1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStrategyErrors(t *testing.T) {
	router := setupRouter(t)

	cases := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"malformed body", http.MethodPost, "/api/strategies", "{", http.StatusBadRequest},
		{"missing owner", http.MethodPost, "/api/strategies", `{"name":"x","total_funds":1}`, http.StatusBadRequest},
		{"bad percentages", http.MethodPost, "/api/strategies",
			`{"user_id":1,"name":"x","total_funds":1,"portfolio_allocations":[{"portfolio_id":1,"percentage":90,"stock_allocations":{"1":100}}]}`,
			http.StatusUnprocessableEntity},
		{"empty name", http.MethodPost, "/api/strategies",
			`{"user_id":1,"name":"","total_funds":1,"portfolio_allocations":[{"portfolio_id":1,"percentage":100,"stock_allocations":{"1":100}}]}`,
			http.StatusUnprocessableEntity},
		{"bad id", http.MethodGet, "/api/strategies/abc", "", http.StatusBadRequest},
		{"bad user", http.MethodGet, "/api/strategies?user_id=x", "", http.StatusBadRequest},
		{"unknown", http.MethodPut, "/api/strategies/77", `{"name":"x"}`, http.StatusNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := request(t, router, tc.method, tc.path, tc.body)
			assert.Equal(t, tc.status, w.Code, w.Body.String())

			var body map[string]interface{}
			require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
			assert.Contains(t, body, "error")
		})
	}
}
