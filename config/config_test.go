package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validWallet = "0x52908400098527886E0F7030069857D2E4169EE7"

func setValidEnv(t *testing.T) {
	t.Helper()
	t.Setenv("NACOS_SERVER", "nacos.example.com:8848")
	t.Setenv("SERVICE_NAME", "demo-service")
	t.Setenv("PUBLIC_IP", "203.0.113.10")
	t.Setenv("PORT", "11434")
	t.Setenv("WALLET_ADDRESS", validWallet)
}

func TestLoad(t *testing.T) {
	setValidEnv(t)
	t.Setenv("HEARTBEAT_INTERVAL", "7")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "demo-service", cfg.ServiceName)
	assert.Equal(t, "DEFAULT_GROUP", cfg.Group)
	assert.Equal(t, 11434, cfg.Port)
	assert.Equal(t, 7*time.Second, cfg.Heartbeat())
	assert.Equal(t, 8*time.Second, cfg.Timeout())
	assert.Equal(t, "203.0.113.10", cfg.Node) // NODE 回退为 PUBLIC_IP
	assert.Equal(t, validWallet, cfg.Metadata()["walletAddress"])
}

func TestLoadValidationFailures(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "missing server", env: map[string]string{"NACOS_SERVER": ""}},
		{name: "missing service name", env: map[string]string{"SERVICE_NAME": ""}},
		{name: "bad service name", env: map[string]string{"SERVICE_NAME": "demo service!"}},
		{name: "missing public ip", env: map[string]string{"PUBLIC_IP": ""}},
		{name: "bad public ip", env: map[string]string{"PUBLIC_IP": "999.1.2.3"}},
		{name: "bad port", env: map[string]string{"PORT": "70000"}},
		{name: "bad wallet", env: map[string]string{"WALLET_ADDRESS": "0x123"}},
		{name: "lone username", env: map[string]string{"NACOS_USERNAME": "nacos"}},
		{name: "bad heartbeat", env: map[string]string{"HEARTBEAT_INTERVAL": "0"}},
		{name: "bad log level", env: map[string]string{"LOG_LEVEL": "loud"}},
		{name: "bad server entry", env: map[string]string{"NACOS_SERVER": "ftp://x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setValidEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := Load()
			assert.ErrorIs(t, err, ErrValidation)
			assert.Nil(t, cfg)
		})
	}
}

func TestServers(t *testing.T) {
	cfg := &AgentConfig{NacosServer: "a.example.com:8848, b.example.com , "}
	assert.Equal(t, []string{"a.example.com:8848", "b.example.com"}, cfg.Servers())
	assert.Equal(t, "a.example.com:8848", cfg.PrimaryServer())
}

func TestSplitServer(t *testing.T) {
	tests := []struct {
		in   string
		host string
		port int
	}{
		{in: "nacos.example.com:8848", host: "nacos.example.com", port: 8848},
		{in: "http://nacos.example.com", host: "nacos.example.com", port: 80},
		{in: "https://nacos.example.com", host: "nacos.example.com", port: 443},
		{in: "https://nacos.example.com:8443", host: "nacos.example.com", port: 8443},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			host, port, err := SplitServer(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.host, host)
			assert.Equal(t, tt.port, port)
		})
	}

	_, _, err := SplitServer("ftp://nope")
	assert.Error(t, err)
}

func TestLogConfig(t *testing.T) {
	cfg := &AgentConfig{LogLevel: "debug", LogFile: "/tmp/agent.log"}
	lc := cfg.LogConfig()
	assert.Equal(t, "debug", lc.Level)
	assert.Equal(t, "/tmp/agent.log", lc.Output)

	cfg.LogFile = ""
	assert.Equal(t, "stdout", cfg.LogConfig().Output)
}
