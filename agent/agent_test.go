package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/beacon/metrics"
	"github.com/ceyewan/beacon/naming"
	"github.com/ceyewan/beacon/xerrors"
)

// fakeClient naming.Client 的测试替身
//
// beatErrs 按顺序逐次返回，用尽后心跳成功。
type fakeClient struct {
	mu          sync.Mutex
	registers   int
	deregisters int
	beats       int
	beatErrs    []error
	registerErr error
	light       bool
	deregErr    error
}

func (f *fakeClient) ListInstances(ctx context.Context, serviceName string, query *naming.Query) (*naming.Snapshot, error) {
	return &naming.Snapshot{Name: serviceName}, nil
}

func (f *fakeClient) GetService(ctx context.Context, serviceName, groupName string) (*naming.ServiceDetail, error) {
	return &naming.ServiceDetail{Name: serviceName}, nil
}

func (f *fakeClient) Register(ctx context.Context, reg *naming.Registration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registers++
	return f.registerErr
}

func (f *fakeClient) Deregister(ctx context.Context, dereg *naming.Deregistration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deregisters++
	return f.deregErr
}

func (f *fakeClient) SendBeat(ctx context.Context, beat *naming.Beat) (*naming.BeatResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.beats++
	if len(f.beatErrs) > 0 {
		err := f.beatErrs[0]
		f.beatErrs = f.beatErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &naming.BeatResult{
		ClientBeatInterval: 5 * time.Second,
		LightBeatEnabled:   f.light,
	}, nil
}

func (f *fakeClient) snapshot() (registers, beats, deregisters int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.registers, f.beats, f.deregisters
}

func notFoundErr() error {
	return xerrors.WithCode(&naming.ServerError{Status: http.StatusNotFound}, naming.CodeNotFound)
}

func newTestAgent(t *testing.T, client naming.Client, mutate func(*Config), opts ...Option) *Agent {
	t.Helper()

	cfg := &Config{
		ServiceName:           "demo",
		Ip:                    "10.0.0.7",
		Port:                  8080,
		HeartbeatInterval:     10 * time.Millisecond,
		InitialReconnectDelay: 10 * time.Millisecond,
	}
	if mutate != nil {
		mutate(cfg)
	}

	a, err := New(client, cfg, opts...)
	require.NoError(t, err)
	return a
}

func TestNewValidation(t *testing.T) {
	client := &fakeClient{}

	_, err := New(nil, &Config{ServiceName: "demo", Ip: "10.0.0.7", Port: 8080})
	assert.Error(t, err)

	_, err = New(client, nil)
	assert.Error(t, err)

	_, err = New(client, &Config{ServiceName: "demo", Ip: "10.0.0.7", Port: 0})
	assert.Error(t, err)

	a, err := New(client, &Config{ServiceName: "demo", Ip: "10.0.0.7", Port: 8080})
	require.NoError(t, err)
	assert.Equal(t, 1.0, a.cfg.Weight)
	assert.Equal(t, 5*time.Second, a.cfg.HeartbeatInterval)
	assert.Equal(t, 3, a.cfg.FailureThreshold)
	assert.NotEmpty(t, a.Stats().SessionID)
}

func TestRunLifecycle(t *testing.T) {
	client := &fakeClient{light: true}
	a := newTestAgent(t, client, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool {
		_, beats, _ := client.snapshot()
		return beats >= 2
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	registers, beats, deregisters := client.snapshot()
	assert.Equal(t, 1, registers)
	assert.GreaterOrEqual(t, beats, 2)
	assert.Equal(t, 1, deregisters)

	stats := a.Stats()
	assert.GreaterOrEqual(t, stats.BeatSuccess, uint64(2))
	assert.False(t, stats.Connected) // 注销后视为断开
}

// TestReRegisterOnExpiredInstance 心跳报 not_found 时立即重新注册
func TestReRegisterOnExpiredInstance(t *testing.T) {
	client := &fakeClient{light: true, beatErrs: []error{notFoundErr()}}
	a := newTestAgent(t, client, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool {
		registers, _, _ := client.snapshot()
		return registers >= 2
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	assert.GreaterOrEqual(t, a.Stats().Reconnects, uint64(1))
}

// TestReRegisterAfterFailureThreshold 连续失败达到阈值后重新注册
func TestReRegisterAfterFailureThreshold(t *testing.T) {
	transportErr := xerrors.Wrap(naming.ErrTransport, "connection refused")
	client := &fakeClient{
		light:    true,
		beatErrs: []error{transportErr, transportErr},
	}
	a := newTestAgent(t, client, func(cfg *Config) {
		cfg.FailureThreshold = 2
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool {
		registers, _, _ := client.snapshot()
		return registers >= 2
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	stats := a.Stats()
	assert.GreaterOrEqual(t, stats.BeatFailure, uint64(2))
}

// TestDeregisterNotFoundIsIdempotent 注销遇 not_found 按成功处理
func TestDeregisterNotFoundIsIdempotent(t *testing.T) {
	client := &fakeClient{light: true, deregErr: notFoundErr()}
	a := newTestAgent(t, client, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool {
		_, beats, _ := client.snapshot()
		return beats >= 1
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.False(t, a.Stats().Connected)
}

func TestRegisterBackoff(t *testing.T) {
	client := &fakeClient{registerErr: xerrors.Wrap(naming.ErrTransport, "connection refused")}
	a := newTestAgent(t, client, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := a.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	registers, _, _ := client.snapshot()
	assert.GreaterOrEqual(t, registers, 2)
}

func TestHealthEndpoints(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	client := &fakeClient{light: true}
	a := newTestAgent(t, client, nil, WithMetrics(m), WithGatherer(reg))

	srv := httptest.NewServer(a.router())
	defer srv.Close()

	// 尚未注册，健康检查应报降级
	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	a.setConnected(true)
	a.recordBeat(nil)

	resp, err = http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var health map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "UP", health["status"])
	assert.Equal(t, "demo", health["service"])

	resp, err = http.Get(srv.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	var stats Stats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, a.Stats().SessionID, stats.SessionID)
	assert.Equal(t, uint64(1), stats.BeatSuccess)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
