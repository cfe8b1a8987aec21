package monitor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterApplication(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/dmon/v1/overlord/application/bp-1", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(Config{}, nil)
	address := strings.TrimPrefix(server.URL, "http://")

	require.NoError(t, client.RegisterApplication(context.Background(), address, "bp-1"))
	require.NoError(t, client.RegisterApplication(context.Background(), server.URL+"/", "bp-1"))
}

func TestRegisterApplication_NonOK(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte("already registered"))
	}))
	defer server.Close()

	client := NewClient(Config{}, nil)
	err := client.RegisterApplication(context.Background(), server.URL, "bp-1")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 201")
	assert.Contains(t, err.Error(), "already registered")
}

func TestRegisterApplication_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	addr := server.URL
	server.Close()

	err := NewClient(Config{}, nil).RegisterApplication(context.Background(), addr, "bp-1")
	assert.Error(t, err)
}
