package naming

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ceyewan/beacon/clog"
	"github.com/ceyewan/beacon/metrics"
	"github.com/ceyewan/beacon/xerrors"
)

// loginResponse 登录接口的响应体
type loginResponse struct {
	AccessToken string `json:"accessToken"`
	TokenTTL    int64  `json:"tokenTtl"` // 秒
	GlobalAdmin bool   `json:"globalAdmin"`
}

// tokenSource 管理登录换取的 accessToken
//
// Token 缓存是客户端唯一的跨调用共享状态，读取-刷新-写入全程持锁，
// 保证单实例被并发使用时不会重复登录。
type tokenSource struct {
	cfg     *Config
	httpc   *http.Client
	logger  clog.Logger
	metrics *metrics.Metrics

	mu          sync.Mutex
	cachedToken string
	expires     time.Time
}

// token 返回缓存的 Token，过期或未缓存时重新登录
func (t *tokenSource) token(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cachedToken != "" && time.Now().Before(t.expires) {
		return t.cachedToken, nil
	}
	return t.loginLocked(ctx)
}

// invalidate 清空缓存的 Token，下次请求会重新登录
func (t *tokenSource) invalidate() {
	t.mu.Lock()
	t.cachedToken = ""
	t.mu.Unlock()
}

// loginLocked 执行登录调用，调用方必须持有 t.mu
func (t *tokenSource) loginLocked(ctx context.Context) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	form := url.Values{}
	form.Set("username", t.cfg.Username)
	form.Set("password", t.cfg.Password)

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost,
		t.cfg.ServerAddr+loginPath, strings.NewReader(form.Encode()))
	if err != nil {
		return "", xerrors.Wrap(err, "build login request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", userAgent)

	resp, err := t.httpc.Do(req)
	if err != nil {
		t.observeRefresh(err)
		return "", classifyTransport(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.observeRefresh(err)
		return "", classifyTransport(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := newServerError(resp.StatusCode, string(data))
		t.observeRefresh(err)
		t.logger.Error("login failed",
			clog.Int("status", resp.StatusCode),
			clog.Error(err))
		return "", err
	}

	var lr loginResponse
	if err := json.Unmarshal(data, &lr); err != nil {
		t.observeRefresh(err)
		return "", decodeError(err)
	}
	if lr.AccessToken == "" {
		err := xerrors.Wrap(ErrDecode, "login response missing accessToken")
		t.observeRefresh(err)
		return "", err
	}

	ttl := t.cfg.TokenTTL
	if lr.TokenTTL > 0 {
		ttl = time.Duration(lr.TokenTTL) * time.Second
	}

	// 按 90% TTL 提前失效，避免边界上带着将过期的 Token 发请求
	t.cachedToken = lr.AccessToken
	t.expires = time.Now().Add(ttl * 9 / 10)
	t.observeRefresh(nil)

	t.logger.Debug("token refreshed",
		clog.String("username", t.cfg.Username),
		clog.Duration("ttl", ttl))

	return t.cachedToken, nil
}

func (t *tokenSource) observeRefresh(err error) {
	if t.metrics == nil {
		return
	}
	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = metrics.OutcomeError
	}
	t.metrics.TokenRefreshTotal.WithLabelValues(outcome).Inc()
}
