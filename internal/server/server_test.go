// Criticus - Multi-Provider Ratings Aggregation for Media Libraries
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/criticus

package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomtom215/criticus/internal/batch"
	"github.com/tomtom215/criticus/internal/cache"
	"github.com/tomtom215/criticus/internal/config"
	"github.com/tomtom215/criticus/internal/models"
)

func testServer(t *testing.T, health func() error) (*Server, *batch.ReportStore) {
	t.Helper()
	store, err := cache.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	reports := batch.NewReportStore(store.Bucket(cache.AggregateCache))
	cfg := config.ServerConfig{Host: "127.0.0.1", Port: 3858, Timeout: 5 * time.Second}
	return New(cfg, reports, health), reports
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthEndpoints(t *testing.T) {
	srv, _ := testServer(t, nil)
	router := srv.Router()

	assert.Equal(t, http.StatusOK, get(t, router, "/healthz").Code)
	assert.Equal(t, http.StatusOK, get(t, router, "/readyz").Code)
}

func TestReadyReflectsHealthCheck(t *testing.T) {
	srv, _ := testServer(t, func() error { return errors.New("library unreachable") })
	rec := get(t, srv.Router(), "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "library unreachable")
}

func TestMetricsExposed(t *testing.T) {
	srv, _ := testServer(t, nil)
	rec := get(t, srv.Router(), "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestReportEndpoints(t *testing.T) {
	srv, reports := testServer(t, nil)
	router := srv.Router()

	assert.Equal(t, http.StatusNotFound, get(t, router, "/api/v1/reports/latest").Code)

	stats := models.NewBatchStats("run-1", "multi_source", models.KindMovie, 10)
	stats.Updated = 7
	require.NoError(t, reports.Save(stats))

	rec := get(t, router, "/api/v1/reports/latest")
	require.Equal(t, http.StatusOK, rec.Code)

	var got models.BatchStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, 7, got.Updated)

	assert.Equal(t, http.StatusOK, get(t, router, "/api/v1/reports/run-1").Code)
	assert.Equal(t, http.StatusNotFound, get(t, router, "/api/v1/reports/nope").Code)
}
