package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	var stdout, stderr bytes.Buffer
	code := Run([]string{"sentinel", "-url", srv.URL, "health"}, &stdout, &stderr)

	assert.Zero(t, code)
	assert.Contains(t, stdout.String(), `"status": "ok"`)
}

func TestRegisterCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/register-vault", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"owner_id":"alice.test","watched":true}`))
	}))
	defer srv.Close()

	var stdout, stderr bytes.Buffer
	code := Run([]string{"sentinel", "-url", srv.URL, "-token", "tok", "register", "alice.test"}, &stdout, &stderr)

	assert.Zero(t, code)
	assert.Contains(t, stdout.String(), "alice.test")
}

func TestErrorStatusIsNonZero(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"title":"Not Found"}`))
	}))
	defer srv.Close()

	var stdout, stderr bytes.Buffer
	code := Run([]string{"sentinel", "-url", srv.URL, "vault", "ghost.test"}, &stdout, &stderr)

	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "404")
}

func TestUsageOnBadArgs(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, 2, Run([]string{"sentinel"}, &stdout, &stderr))
	assert.Equal(t, 2, Run([]string{"sentinel", "frobnicate"}, &stdout, &stderr))
	assert.Equal(t, 2, Run([]string{"sentinel", "register"}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "Usage")
}
