package kv

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeREST is a minimal Upstash-style server backed by a map.
type fakeREST struct {
	mu       sync.Mutex
	data     map[string]string
	commands [][]string
	token    string
}

func newFakeREST(t *testing.T) (*fakeREST, *httptest.Server) {
	t.Helper()
	f := &fakeREST{data: map[string]string{}, token: "secret"}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeREST) serve(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bearer "+f.token {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"Unauthorized"}`))
		return
	}
	var args []string
	if err := json.NewDecoder(r.Body).Decode(&args); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"bad request"}`))
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, args)

	var result any
	switch strings.ToUpper(args[0]) {
	case "GET":
		if v, ok := f.data[args[1]]; ok {
			result = v
		}
	case "SET":
		nx := len(args) > 3 && args[3] == "NX"
		if _, exists := f.data[args[1]]; nx && exists {
			break
		}
		f.data[args[1]] = args[2]
		result = "OK"
	case "DEL":
		delete(f.data, args[1])
		result = 1
	case "INCR":
		n, err := strconv.ParseInt(f.data[args[1]], 10, 64)
		if err != nil && f.data[args[1]] != "" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"ERR value is not an integer"}`))
			return
		}
		n++
		f.data[args[1]] = strconv.FormatInt(n, 10)
		result = n
	case "DECR":
		n, _ := strconv.ParseInt(f.data[args[1]], 10, 64)
		n--
		f.data[args[1]] = strconv.FormatInt(n, 10)
		result = n
	case "GETDEL":
		if v, ok := f.data[args[1]]; ok {
			result = v
			delete(f.data, args[1])
		}
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"result": result})
}

func TestNewREST_Validation(t *testing.T) {
	_, err := NewREST(RESTConfig{Token: "t"})
	assert.Error(t, err)
	_, err = NewREST(RESTConfig{URL: "http://x"})
	assert.Error(t, err)
}

func TestREST_Commands(t *testing.T) {
	ctx := context.Background()
	f, srv := newFakeREST(t)
	c, err := NewREST(RESTConfig{URL: srv.URL, Token: "secret"})
	require.NoError(t, err)

	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, c.Set(ctx, "k", "v", 90*time.Second))
	v, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)

	ok, err := c.SetNX(ctx, "k", "other", time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	v, err = c.GetDel(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)
	_, err = c.GetDel(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)

	n, err := c.Incr(ctx, "counter", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = c.Incr(ctx, "counter", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	n, err = c.Decr(ctx, "counter")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, c.Delete(ctx, "counter"))

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Contains(t, f.commands, []string{"SET", "k", "v", "PX", "90000"})
	assert.Contains(t, f.commands, []string{"SET", "counter", "0", "NX", "PX", "3600000"})
}

func TestREST_Unauthorized(t *testing.T) {
	_, srv := newFakeREST(t)
	c, err := NewREST(RESTConfig{URL: srv.URL, Token: "wrong"})
	require.NoError(t, err)

	_, err = c.Get(context.Background(), "k")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnavailable)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestREST_CommandError(t *testing.T) {
	f, srv := newFakeREST(t)
	c, err := NewREST(RESTConfig{URL: srv.URL, Token: "secret"})
	require.NoError(t, err)

	f.data["k"] = "abc"
	_, err = c.Incr(context.Background(), "k", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not an integer")
}

func TestREST_ServerErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	c, err := NewREST(RESTConfig{URL: srv.URL, Token: "secret"})
	require.NoError(t, err)

	_, err = c.Get(context.Background(), "k")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestREST_TimeoutIsUnavailable(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	c, err := NewREST(RESTConfig{URL: srv.URL, Token: "secret", Timeout: 50 * time.Millisecond})
	require.NoError(t, err)

	_, err = c.Get(context.Background(), "k")
	assert.ErrorIs(t, err, ErrUnavailable)
}
