package echoapi_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestServer_home(t *testing.T) {
	app := newTestApp(t)
	rec := app.serve(httpTest{path: "/"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Welcome to Cadence Academy API!", rec.Body.String())

	rec = app.serve(httpTest{path: "/api/unknown"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"detail": "Not Found"}`, rec.Body.String())
}

func TestServer_metrics(t *testing.T) {
	app := newTestApp(t)
	app.serve(httpTest{path: "/api/subjects"}) // 401

	rec := app.serve(httpTest{path: "/metrics"})
	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `http_requests_total{code="401",method="GET",route="/api/subjects"} 1`)
	assert.Contains(t, body, "http_request_duration_seconds_bucket")
	assert.Contains(t, body, "go_goroutines")
}
