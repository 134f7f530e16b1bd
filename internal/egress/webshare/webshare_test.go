package webshare

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func staticToken(tok string) TokenFunc {
	return func(context.Context) (string, error) { return tok, nil }
}

func TestListIdentitiesFiltersAndPages(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/proxy/list/", r.URL.Path)
		assert.Equal(t, "Token tok-1", r.Header.Get("Authorization"))
		assert.Equal(t, "direct", r.URL.Query().Get("mode"))
		assert.Equal(t, "BG", r.URL.Query().Get("country_code__in"))
		assert.Equal(t, "100", r.URL.Query().Get("page_size"))

		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("page") {
		case "1":
			fmt.Fprintf(w, `{"count":3,"next":"%s/proxy/list/?page=2","results":[
				{"username":"u1","password":"p1","proxy_address":"1.1.1.1","port":8000,"valid":true,"country_code":"BG"},
				{"username":"u2","password":"p2","proxy_address":"2.2.2.2","port":8000,"valid":false,"country_code":"BG"}]}`,
				"http://"+r.Host)
		default:
			fmt.Fprint(w, `{"count":3,"next":null,"results":[
				{"username":"u3","password":"p3","proxy_address":"3.3.3.3","port":9000,"valid":true,"country_code":"RO"},
				{"username":"u4","password":"p4","proxy_address":"4.4.4.4","port":9001,"valid":true,"country_code":"bg"}]}`)
		}
	}))
	defer server.Close()

	c := New(Config{BaseURL: server.URL}, staticToken("tok-1"), zap.NewNop())
	ids, err := c.ListIdentities(context.Background(), "bg")
	require.NoError(t, err)
	require.Len(t, ids, 2)
	assert.Equal(t, "http://u1:p1@1.1.1.1:8000", ids[0].URL.String())
	assert.Equal(t, "4.4.4.4:9001", ids[1].URL.Host)
	assert.Equal(t, "BG", ids[1].Country)
	assert.Equal(t, int32(2), calls.Load())
}

func TestListIdentitiesErrors(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	c := New(Config{BaseURL: server.URL}, staticToken("bad"), nil)
	_, err := c.ListIdentities(context.Background(), "BG")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")

	noToken := New(Config{BaseURL: server.URL}, func(context.Context) (string, error) {
		return "", errors.New("secret missing")
	}, nil)
	_, err = noToken.ListIdentities(context.Background(), "BG")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "secret missing")
}

func TestListIdentitiesWarnsWhenPageLimitReached(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"count":5000,"next":"%s/proxy/list/?page=next","results":[
			{"username":"u","password":"p","proxy_address":"1.1.1.1","port":8000,"valid":true,"country_code":"BG"}]}`,
			"http://"+r.Host)
	}))
	defer server.Close()

	core, logs := observer.New(zapcore.InfoLevel)
	c := New(Config{BaseURL: server.URL}, staticToken("tok"), zap.New(core))
	ids, err := c.ListIdentities(context.Background(), "BG")
	require.NoError(t, err)
	assert.Len(t, ids, maxPages)
	assert.Equal(t, int32(maxPages), calls.Load())

	warned := logs.FilterMessage("webshare proxy list truncated at page limit").All()
	require.Len(t, warned, 1)
	assert.Equal(t, zapcore.WarnLevel, warned[0].Level)
	assert.Equal(t, int64(maxPages), warned[0].ContextMap()["pages"])

	listed := logs.FilterMessage("webshare proxies listed").All()
	require.Len(t, listed, 1)
	assert.Equal(t, int64(maxPages), listed[0].ContextMap()["pages"])
}

func TestListIdentitiesCountsPagesOnNormalEnd(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"count":0,"next":null,"results":[]}`)
	}))
	defer server.Close()

	core, logs := observer.New(zapcore.InfoLevel)
	c := New(Config{BaseURL: server.URL}, staticToken("tok"), zap.New(core))
	_, err := c.ListIdentities(context.Background(), "BG")
	require.NoError(t, err)

	assert.Empty(t, logs.FilterMessage("webshare proxy list truncated at page limit").All())
	listed := logs.FilterMessage("webshare proxies listed").All()
	require.Len(t, listed, 1)
	assert.Equal(t, int64(1), listed[0].ContextMap()["pages"])
}
