package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Healthz 存活探针。
func Healthz(c *gin.Context) {
	respond(c, http.StatusOK, "ok", gin.H{"time": time.Now().Format(time.RFC3339)})
}
