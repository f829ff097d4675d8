package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mostafa-M-Abla/car-advisor-chatbot/internal/politeness"
)

func testController() *politeness.Controller {
	return politeness.NewController(politeness.Config{
		BackoffBase: time.Millisecond,
	})
}

func TestFetch_Success(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte(`<html><body><h1>Catalog</h1></body></html>`))
	}))
	defer srv.Close()

	c := NewClient(testController(), Options{})
	doc, err := c.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "Catalog", doc.Find("h1").Text())
	assert.Equal(t, DefaultUserAgent, gotUA)
}

func TestFetch_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`<html><body>ok</body></html>`))
	}))
	defer srv.Close()

	var attemptErrs atomic.Int32
	c := NewClient(testController(), Options{
		OnAttemptError: func(string, error) { attemptErrs.Add(1) },
	})

	doc, err := c.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "ok", doc.Find("body").Text())
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, int32(2), attemptErrs.Load())
}

func TestFetch_ExhaustsRetryBudget(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	var attemptErrs atomic.Int32
	c := NewClient(testController(), Options{
		OnAttemptError: func(string, error) { attemptErrs.Add(1) },
	})

	_, err := c.Fetch(context.Background(), srv.URL)
	require.Error(t, err)

	var fe *Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, srv.URL, fe.URL)
	assert.Equal(t, int32(DefaultMaxAttempts), calls.Load())
	// Every failed attempt is observed, not just the final one.
	assert.Equal(t, int32(DefaultMaxAttempts), attemptErrs.Load())
}

func TestFetch_NonSuccessStatusCarriesCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(testController(), Options{MaxAttempts: 1})
	_, err := c.Fetch(context.Background(), srv.URL)
	require.Error(t, err)

	var fe *Error
	require.ErrorAs(t, err, &fe)
	var inner *Error
	require.ErrorAs(t, fe.Cause, &inner)
	assert.Equal(t, http.StatusNotFound, inner.StatusCode)
}

func TestFetch_CancelledBeforeRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html></html>"))
	}))
	defer srv.Close()

	pol := politeness.NewController(politeness.Config{
		MinDelay:    time.Minute,
		MaxDelay:    time.Minute,
		BackoffBase: time.Millisecond,
	})
	c := NewClient(pol, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Fetch(ctx, srv.URL)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFetch_ConnectionRefused(t *testing.T) {
	c := NewClient(testController(), Options{MaxAttempts: 2})
	_, err := c.Fetch(context.Background(), "http://127.0.0.1:1/unreachable")
	require.Error(t, err)

	var fe *Error
	assert.ErrorAs(t, err, &fe)
}
