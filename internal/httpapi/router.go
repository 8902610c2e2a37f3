package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/gopherchat/gopherchat/internal/chat"
	"github.com/gopherchat/gopherchat/internal/common"
	"github.com/gopherchat/gopherchat/internal/config"
	"github.com/gopherchat/gopherchat/internal/httpapi/handlers"
	"github.com/gopherchat/gopherchat/internal/httpapi/middleware"
	"github.com/gopherchat/gopherchat/internal/store/rabbitmq"
)

func NewRouter(db *gorm.DB, cfg config.Config, states chat.StateStore, rabbit *rabbitmq.Publisher) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestID())

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	h := handlers.NewHandler(db, cfg, states, rabbit)

	r.GET("/ping", h.Ping)

	r.POST("/register", h.Register)
	r.POST("/login", h.Login)

	authGroup := r.Group("/")
	authGroup.Use(middleware.AuthRequired(cfg.JWTSecret))
	authGroup.GET("/logout", h.Logout)
	authGroup.GET("/me", h.Me)

	authGroup.GET("/chats", h.ListChats)
	authGroup.GET("/chat/:chat_id", h.ViewChat)
	authGroup.POST("/chat/:chat_id", h.SendMessage)
	authGroup.POST("/start_chat", h.StartChat)
	authGroup.POST("/delete_chat", h.DeleteChat)

	authGroup.POST("/chat/messages/async", h.SendMessageAsync)
	authGroup.GET("/chat/jobs/:job_id", h.GetChatJob)

	authGroup.GET("/quote", h.GetQuote)

	return r
}
