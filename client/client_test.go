package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BaSui01/structgen/internal/retry"
	"github.com/BaSui01/structgen/structured"
	"github.com/BaSui01/structgen/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleState() structured.Context {
	return structured.Context{
		{Name: "hp", Value: structured.Int(10), Type: structured.TypeNumber, Description: "hit points"},
		{Name: "location", Value: structured.String("tavern"), Type: structured.TypeString},
	}
}

func TestGenerateStructured_Success(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/generate_structured", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "k", r.Header.Get("X-API-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"success":true,"message":"Generation completed","result":{"event_description":"x","context_changes":{}}}`)
	}))
	defer srv.Close()

	c := New(srv.URL+"/", WithAPIKey("k"))
	resp, err := c.GenerateStructured(context.Background(),
		BuildEventRequest("You are a narrator.", sampleState(), "open the door", InputAction, nil))
	require.NoError(t, err)

	assert.True(t, resp.Success)
	require.NotNil(t, resp.Result)
	desc, _ := resp.Result.Get("event_description")
	assert.Equal(t, "x", desc.Text())

	assert.Equal(t, "open the door", got["user_input"])
	assert.Contains(t, got["prompt"], "as a result of the player's action")
	schema := got["schema"].(map[string]any)
	assert.Contains(t, schema, "event_description")
	assert.Contains(t, schema, "context_changes")
}

func TestGenerateStructured_TypedFailureIsNotError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"success":false,"message":"Failed to parse JSON from response","error_code":"INVALID_JSON","fix_suggestion":"Return JSON"}`)
	}))
	defer srv.Close()

	resp, err := New(srv.URL).GenerateStructured(context.Background(),
		BuildEventRequest("p", nil, "look", InputQuestion, nil))
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, types.ErrInvalidJSON, resp.ErrorCode)
	assert.Nil(t, resp.Result)
}

func TestGenerateStructured_Errors(t *testing.T) {
	t.Run("non 2xx", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, strings.Repeat("e", 1000))
		}))
		defer srv.Close()

		_, err := New(srv.URL).GenerateStructured(context.Background(), BuildEventRequest("p", nil, "x", InputAction, nil))
		var se *StatusError
		require.True(t, errors.As(err, &se))
		assert.Equal(t, http.StatusBadRequest, se.StatusCode)
		assert.Len(t, se.Body, maxErrorBody)
	})

	t.Run("undecodable body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, "<html>")
		}))
		defer srv.Close()

		_, err := New(srv.URL).GenerateStructured(context.Background(), BuildEventRequest("p", nil, "x", InputAction, nil))
		assert.ErrorContains(t, err, "decode response")
	})

	t.Run("timeout", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		}))
		defer srv.Close()

		_, err := New(srv.URL, WithTimeout(50*time.Millisecond)).
			GenerateStructured(context.Background(), BuildEventRequest("p", nil, "x", InputAction, nil))
		assert.ErrorContains(t, err, "structgen call failed")
	})
}

func TestHealthCheck(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		_, _ = io.WriteString(w, `{"status":"healthy"}`)
	}))
	defer healthy.Close()
	assert.True(t, New(healthy.URL).HealthCheck(context.Background()))

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer failing.Close()
	assert.False(t, New(failing.URL).HealthCheck(context.Background()))

	assert.False(t, New("http://127.0.0.1:1").HealthCheck(context.Background()))
}

func TestGenerateStructured_RetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, `{"success":true,"message":"Generation completed","result":{}}`)
	}))
	defer srv.Close()

	c := New(srv.URL, WithRetry(retry.Policy{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}))
	resp, err := c.GenerateStructured(context.Background(), BuildEventRequest("p", nil, "x", InputAction, nil))

	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.EqualValues(t, 3, calls.Load())
}

func TestGenerateStructured_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := New(srv.URL, WithRetry(retry.Policy{MaxRetries: 3, InitialDelay: time.Millisecond}))
	_, err := c.GenerateStructured(context.Background(), BuildEventRequest("p", nil, "x", InputAction, nil))

	assert.Error(t, err)
	assert.EqualValues(t, 1, calls.Load())
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, isRetryable(errors.New("connection reset")))
	assert.True(t, isRetryable(&StatusError{StatusCode: http.StatusTooManyRequests}))
	assert.True(t, isRetryable(&StatusError{StatusCode: http.StatusGatewayTimeout}))
	assert.False(t, isRetryable(&StatusError{StatusCode: http.StatusInternalServerError}))
	assert.False(t, isRetryable(&StatusError{StatusCode: http.StatusUnauthorized}))
	assert.False(t, isRetryable(context.Canceled))
}
