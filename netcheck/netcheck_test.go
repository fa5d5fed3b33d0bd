package netcheck

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckDNS(t *testing.T) {
	checker := New()

	res := checker.CheckDNS(context.Background(), "localhost")
	assert.True(t, res.OK)
	assert.NotEmpty(t, res.Detail)

	res = checker.CheckDNS(context.Background(), "no-such-host.invalid")
	assert.False(t, res.OK)
}

func TestCheckTCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	port := ln.Addr().(*net.TCPAddr).Port
	checker := New(WithTimeout(2 * time.Second))

	res := checker.CheckTCP(context.Background(), "127.0.0.1", port)
	assert.True(t, res.OK)
}

func TestCheckTCPRefused(t *testing.T) {
	// 占用端口后关闭，确保该端口无人监听
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	checker := New(WithTimeout(2 * time.Second))
	res := checker.CheckTCP(context.Background(), "127.0.0.1", port)
	assert.False(t, res.OK)
	assert.NotEmpty(t, res.Detail)
}

func TestCheckHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/boom" {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	checker := New()
	assert.True(t, checker.CheckHTTP(context.Background(), srv.URL).OK)
	assert.False(t, checker.CheckHTTP(context.Background(), srv.URL+"/boom").OK)
}

func TestCheckConsoleHealth(t *testing.T) {
	// 只有不带 /nacos 前缀的端点存在，探测应回退到第二个路径
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/console/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	checker := New()
	res := checker.CheckConsoleHealth(context.Background(), srv.URL)
	assert.True(t, res.OK)
	assert.Equal(t, "/v1/console/health", res.Detail)
}

func TestPreflight(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)

	checker := New(WithTimeout(2 * time.Second))
	report := checker.Preflight(context.Background(), u.Hostname(), port, srv.URL, 0)

	assert.True(t, report.OK())
	assert.Len(t, report.Results, 3)
}
