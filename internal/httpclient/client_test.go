package httpclient

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Status string `json:"status"`
}

func TestClient_GetJSON(t *testing.T) {
	t.Run("decodes body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodGet, r.Method)
			assert.Equal(t, "application/json", r.Header.Get(HeaderAccept))
			assert.Contains(t, r.Header.Get(HeaderUserAgent), "larvawatch")
			w.Write([]byte(`{"status":"ok"}`))
		}))
		defer server.Close()

		var out payload
		require.NoError(t, NewWithDefaults().GetJSON(context.Background(), server.URL, &out))
		assert.Equal(t, "ok", out.Status)
	})

	t.Run("non-2xx becomes StatusError", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "down for maintenance", http.StatusInternalServerError)
		}))
		defer server.Close()

		err := NewWithDefaults().GetJSON(context.Background(), server.URL, &payload{})
		var statusErr *StatusError
		require.ErrorAs(t, err, &statusErr)
		assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
		assert.Equal(t, "down for maintenance", statusErr.Body)
	})

	t.Run("invalid json", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`not json`))
		}))
		defer server.Close()

		err := NewWithDefaults().GetJSON(context.Background(), server.URL, &payload{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "decoding GET")
	})
}

func TestClient_DeleteJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.Write([]byte(`{"status":"deleted"}`))
	}))
	defer server.Close()

	var out payload
	require.NoError(t, NewWithDefaults().DeleteJSON(context.Background(), server.URL, &out))
	assert.Equal(t, "deleted", out.Status)
}

func TestClient_Decompression(t *testing.T) {
	t.Run("brotli", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Contains(t, r.Header.Get(HeaderAcceptEncoding), "br")
			w.Header().Set(HeaderContentEncoding, EncodingBrotli)
			bw := brotli.NewWriter(w)
			bw.Write([]byte(`{"status":"brotli"}`))
			bw.Close()
		}))
		defer server.Close()

		var out payload
		require.NoError(t, NewWithDefaults().GetJSON(context.Background(), server.URL, &out))
		assert.Equal(t, "brotli", out.Status)
	})

	t.Run("gzip", func(t *testing.T) {
		var buf bytes.Buffer
		gw := gzip.NewWriter(&buf)
		gw.Write([]byte(`{"status":"gzip"}`))
		gw.Close()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set(HeaderContentEncoding, EncodingGzip)
			w.Write(buf.Bytes())
		}))
		defer server.Close()

		var out payload
		require.NoError(t, NewWithDefaults().GetJSON(context.Background(), server.URL, &out))
		assert.Equal(t, "gzip", out.Status)
	})
}

func TestClient_Retries(t *testing.T) {
	t.Run("retries retryable status", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.Write([]byte(`{"status":"ok"}`))
		}))
		defer server.Close()

		cfg := DefaultConfig()
		cfg.RetryAttempts = 3
		cfg.RetryDelay = time.Millisecond
		var out payload
		require.NoError(t, New(cfg).GetJSON(context.Background(), server.URL, &out))
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("zero attempts returns status once", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		err := NewWithDefaults().GetJSON(context.Background(), server.URL, &payload{})
		var statusErr *StatusError
		require.ErrorAs(t, err, &statusErr)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("transport error without retries is returned as is", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		url := server.URL
		server.Close()

		err := NewWithDefaults().GetJSON(context.Background(), url, &payload{})
		require.Error(t, err)
		assert.False(t, errors.Is(err, ErrMaxRetries))
	})
}

func TestClient_MaxResponseSize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"` + strings.Repeat("x", 256) + `"}`))
	}))
	defer server.Close()

	cfg := DefaultConfig()
	cfg.MaxResponseSize = 64
	err := New(cfg).GetJSON(context.Background(), server.URL, &payload{})
	require.ErrorIs(t, err, ErrResponseTooLarge)
}

func TestClient_MaxResponseSizeAllowsBodyAtLimit(t *testing.T) {
	body := `{"status":"ok"}`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	defer server.Close()

	cfg := DefaultConfig()
	cfg.MaxResponseSize = int64(len(body))
	var out payload
	require.NoError(t, New(cfg).GetJSON(context.Background(), server.URL, &out))
	assert.Equal(t, "ok", out.Status)
}

func TestLimitedReader(t *testing.T) {
	t.Run("never returns bytes past the limit", func(t *testing.T) {
		r := newLimitedReader(io.NopCloser(strings.NewReader(strings.Repeat("x", 100))), 10)
		got, err := io.ReadAll(r)
		require.ErrorIs(t, err, ErrResponseTooLarge)
		assert.Len(t, got, 10)

		n, err := r.Read(make([]byte, 8))
		assert.Zero(t, n)
		assert.ErrorIs(t, err, ErrResponseTooLarge)
	})

	t.Run("body at the limit reads to EOF", func(t *testing.T) {
		r := newLimitedReader(io.NopCloser(strings.NewReader("0123456789")), 10)
		got, err := io.ReadAll(r)
		require.NoError(t, err)
		assert.Equal(t, "0123456789", string(got))
	})

	t.Run("small reads are cut at the boundary", func(t *testing.T) {
		r := newLimitedReader(io.NopCloser(strings.NewReader("abcdefgh")), 5)
		buf := make([]byte, 3)

		n, err := r.Read(buf)
		require.NoError(t, err)
		assert.Equal(t, "abc", string(buf[:n]))

		n, err = r.Read(buf)
		assert.ErrorIs(t, err, ErrResponseTooLarge)
		assert.Equal(t, "de", string(buf[:n]))
	})
}

func TestClient_WithRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"status":"deleted"}`))
	}))
	defer server.Close()

	base := NewWithDefaults()

	var out payload
	require.NoError(t, base.WithRetries(2, time.Millisecond).DeleteJSON(context.Background(), server.URL, &out))
	assert.Equal(t, "deleted", out.Status)
	assert.Equal(t, int32(2), calls.Load())

	// the original client is unchanged
	calls.Store(0)
	var statusErr *StatusError
	require.ErrorAs(t, base.DeleteJSON(context.Background(), server.URL, &out), &statusErr)
	assert.Equal(t, int32(1), calls.Load())
}
