package handler

import (
	"auto-advisor-go/internal/service"
	"auto-advisor-go/pkg/log"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var (
	upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true // 允许所有来源
		},
	}
)

// TurnRequest 是一轮对话的请求体；sessionId 为空时新建会话。
type TurnRequest struct {
	SessionID string `json:"sessionId"`
	Text      string `json:"text"`
}

// ChatHandler 负责处理对话轮次，支持 REST 与 WebSocket 两种接入。
type ChatHandler struct {
	chatService service.ChatService
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(chatService service.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

// Turn 处理一次 REST 对话轮次。
func (h *ChatHandler) Turn(c *gin.Context) {
	var req TurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond(c, http.StatusBadRequest, "请求体格式错误", nil)
		return
	}

	resp, err := h.chatService.ProcessTurn(c.Request.Context(), currentUser(c), req.SessionID, req.Text)
	if err != nil {
		log.Warnf("处理对话轮次失败: %v", err)
		respond(c, statusFor(err), err.Error(), nil)
		return
	}
	respond(c, http.StatusOK, "success", resp)
}

// Handle 处理一个传入的 WebSocket 连接，每条文本消息是一个 TurnRequest。
func (h *ChatHandler) Handle(c *gin.Context) {
	userID := currentUser(c)
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()

	log.Infof("WebSocket 连接已建立，用户: %s", userID)
	sessionID := c.Query("sessionId")

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			log.Warnf("从 WebSocket 读取消息失败: %v", err)
			break
		}

		var req TurnRequest
		if len(message) > 0 && message[0] == '{' {
			if err := json.Unmarshal(message, &req); err != nil {
				writeEvent(conn, gin.H{"type": "error", "message": "消息格式错误"})
				continue
			}
		} else {
			// 纯文本消息沿用当前连接的会话
			req.Text = string(message)
		}
		if req.SessionID == "" {
			req.SessionID = sessionID
		}

		resp, err := h.chatService.ProcessTurn(c.Request.Context(), userID, req.SessionID, req.Text)
		if err != nil {
			log.Errorf("处理 WebSocket 对话轮次失败: %v", err)
			writeEvent(conn, gin.H{"type": "error", "message": err.Error(), "status": statusFor(err)})
			continue
		}
		sessionID = resp.SessionID

		writeEvent(conn, gin.H{"type": "turn", "data": resp})
		writeEvent(conn, gin.H{
			"type":      "completion",
			"status":    "finished",
			"sessionId": resp.SessionID,
			"timestamp": time.Now().UnixMilli(),
		})
	}
}

func writeEvent(conn *websocket.Conn, event gin.H) {
	b, err := json.Marshal(event)
	if err != nil {
		log.Errorf("序列化 WebSocket 消息失败: %v", err)
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		log.Warnf("写入 WebSocket 消息失败: %v", err)
	}
}
