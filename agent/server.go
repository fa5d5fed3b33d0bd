package agent

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// router 构建健康服务的路由
//
// /health 返回探活状态；/status 返回运行统计；/metrics 暴露
// Prometheus 指标。
func (a *Agent) router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		stats := a.Stats()
		status := "UP"
		code := http.StatusOK
		if !stats.Connected {
			status = "DEGRADED"
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"status":    status,
			"service":   a.cfg.ServiceName,
			"connected": stats.Connected,
		})
	})

	r.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, a.Stats())
	})

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(
		a.opts.gatherer,
		promhttp.HandlerOpts{},
	)))

	return r
}
