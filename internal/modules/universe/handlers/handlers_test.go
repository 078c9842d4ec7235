package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/rebalancer/internal/modules/universe"
	testingpkg "github.com/aristath/rebalancer/internal/testing"
)

func setupRouter(t *testing.T) (*chi.Mux, *universe.SecurityRepository) {
	t.Helper()
	db := testingpkg.NewPortfolioDB(t)
	repo := universe.NewSecurityRepository(db.Conn(), zerolog.Nop())

	router := chi.NewRouter()
	router.Route("/api", func(r chi.Router) {
		NewHandler(repo, zerolog.Nop()).RegisterRoutes(r)
	})
	return router, repo
}

func TestHandleUpsertAndGetSecurity(t *testing.T) {
	router, _ := setupRouter(t)

	body := []byte(`{"id": 3, "symbol": "ETEL", "name": "Telecom Egypt", "current_price": 25.4}`)
	req := httptest.NewRequest(http.MethodPut, "/api/securities/", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/securities/3", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var response struct {
		Data     map[string]interface{} `json:"data"`
		Metadata map[string]interface{} `json:"metadata"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "ETEL", response.Data["symbol"])
	assert.Equal(t, 25.4, response.Data["current_price"])
	assert.Contains(t, response.Metadata, "timestamp")
}

func TestHandleGetSecurity_NotFound(t *testing.T) {
	router, _ := setupRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/securities/404", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/securities/abc", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleUpdatePrice(t *testing.T) {
	router, repo := setupRouter(t)
	price := 10.0
	require.NoError(t, repo.Upsert(context.Background(), universe.Security{ID: 1, Symbol: "AAA", CurrentPrice: &price}))

	tests := []struct {
		name   string
		path   string
		body   string
		status int
	}{
		{"valid", "/api/securities/1/price", `{"price": 12.5}`, http.StatusOK},
		{"non-positive", "/api/securities/1/price", `{"price": 0}`, http.StatusUnprocessableEntity},
		{"unknown security", "/api/securities/2/price", `{"price": 3}`, http.StatusNotFound},
		{"bad body", "/api/securities/1/price", `{`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPut, tt.path, bytes.NewReader([]byte(tt.body)))
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}
