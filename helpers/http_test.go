package helpers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFetchJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.Write([]byte(`{"value": 42}`))
	}))
	defer server.Close()

	var body struct {
		Value int `json:"value"`
	}
	err := FetchJSON(context.Background(), server.URL, &body)
	assert.NoError(t, err)
	assert.Equal(t, 42, body.Value)
}

func TestFetchJSONAuthSendsBearerToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	var body []struct{}
	err := FetchJSONAuth(context.Background(), server.URL, "secret-token", &body)
	assert.NoError(t, err)
}

func TestFetchJSONNonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	var body map[string]any
	err := FetchJSON(context.Background(), server.URL, &body)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestFetchJSONMalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"value":`))
	}))
	defer server.Close()

	var body map[string]any
	err := FetchJSON(context.Background(), server.URL, &body)
	assert.Error(t, err)
}
