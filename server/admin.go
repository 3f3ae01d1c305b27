package server

import (
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
)

// PlayerView 管理接口输出的玩家位置
type PlayerView struct {
	ID string `json:"id"`
	X  int    `json:"x"`
	Y  int    `json:"y"`
}

type adminConfig struct {
	EchoToSender *bool `json:"echoToSender,omitempty"`
}

// NewAdminRouter 管理与监控接口；ws 非空时同时挂载 WebSocket 接入点 /ws
//
//	GET  /healthz
//	GET  /metrics
//	GET  /players
//	GET  /admin/config
//	POST /admin/config  以 JSON 载荷更新部分字段
func NewAdminRouter(h *Hub, ws http.Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	r.GET("/metrics", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"sessions": h.SessionCount(),
			"metrics":  h.Metrics().Snapshot(),
		})
	})
	r.GET("/players", func(c *gin.Context) {
		players := h.Players()
		out := make([]PlayerView, 0, len(players))
		for id, pos := range players {
			out = append(out, PlayerView{ID: string(id), X: pos.X, Y: pos.Y})
		}
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
		c.JSON(http.StatusOK, out)
	})

	admin := r.Group("/admin")
	{
		admin.GET("/config", func(c *gin.Context) {
			echo := h.EchoToSender()
			c.JSON(http.StatusOK, adminConfig{EchoToSender: &echo})
		})
		admin.POST("/config", func(c *gin.Context) {
			var body adminConfig
			if err := c.ShouldBindJSON(&body); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
				return
			}
			if body.EchoToSender != nil {
				h.SetEchoToSender(*body.EchoToSender)
			}
			h.log.Infof("config updated: echoToSender=%v", h.EchoToSender())
			c.JSON(http.StatusOK, gin.H{"ok": true})
		})
	}

	if ws != nil {
		r.GET("/ws", gin.WrapH(ws))
	}
	return r
}
