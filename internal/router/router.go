package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/supportops/zendesk-sync/internal/handler"
)

func New(webhook *handler.WebhookHandler) http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/health", handler.Health)
	r.GET("/ready", handler.Ready)

	r.POST("/webhooks/zendesk", webhook.Receive)

	return r
}
