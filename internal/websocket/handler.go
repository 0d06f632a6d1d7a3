package websocket

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	gorillaWS "github.com/gorilla/websocket"

	"github.com/HSPiira/timeline-sub000/internal/auth"
)

var upgrader = gorillaWS.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// 在生产环境中应该检查 Origin
		return true
	},
}

// WebSocketHandler WebSocket 处理器
// 路由形如 /ws/subjects/:id,token 经 query 参数传入
func WebSocketHandler(hub *Hub, validator *auth.TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 1. 从 query 参数获取 token
		token := c.Query("token")
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}

		// 2. 验证 token
		claims, err := validator.ValidateToken(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		// 3. 获取订阅的主体 ID
		subjectID := c.Param("id")
		if subjectID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "subject id required"})
			return
		}

		// 4. 升级连接
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to upgrade connection"})
			return
		}

		// 5. 创建客户端
		client := NewClient(
			uuid.New().String(),
			claims.Subject,
			claims.TenantID,
			subjectID,
			hub,
			conn,
		)

		// 6. 注册客户端
		hub.Register <- client

		// 7. 启动 readPump 和 writePump
		go client.ReadPump()
		go client.WritePump()
	}
}
