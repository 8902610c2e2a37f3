package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/gopherchat/gopherchat/internal/chat"
	"github.com/gopherchat/gopherchat/internal/common"
	"github.com/gopherchat/gopherchat/internal/httpapi/middleware"
	"github.com/gopherchat/gopherchat/internal/logger"
)

func userIDFromContext(c *gin.Context) (uint64, bool) {
	v, ok := c.Get(middleware.UserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint64)
	return id, ok
}

func sessionIDFromContext(c *gin.Context) (string, bool) {
	sid := c.GetString(middleware.SessionIDKey)
	return sid, sid != ""
}

// failFromErr maps the error taxonomy onto the response envelope.
func failFromErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, common.ErrValidation):
		common.Fail(c, http.StatusBadRequest, 10002, err.Error())
	case errors.Is(err, common.ErrUnauthorized):
		common.Fail(c, http.StatusForbidden, 40301, "chat does not belong to you")
	case errors.Is(err, common.ErrNotFound):
		common.Fail(c, http.StatusNotFound, 40404, "not found")
	case errors.Is(err, common.ErrUpstream):
		common.Fail(c, http.StatusBadGateway, 50201, "assistant unavailable, please retry")
	case errors.Is(err, common.ErrStoreWrite):
		common.Fail(c, http.StatusInternalServerError, 50002, "storage failure, please retry")
	default:
		logger.Log.WithError(err).Error("unhandled request error")
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
	}
}

func chatIDParam(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("chat_id"), 10, 64)
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10004, "invalid chat id")
		return 0, false
	}
	return id, true
}

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, gin.H{"pong": true})
}

func (h *Handler) ListChats(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	chats, err := h.ChatSvc.ListChats(c.Request.Context(), uid)
	if err != nil {
		failFromErr(c, err)
		return
	}
	common.OK(c, gin.H{"chats": chats})
}

// ViewChat is the page-load path: it selects the chat for this session and
// reconciles the conversation buffer against stored history.
func (h *Handler) ViewChat(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	sid, ok := sessionIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	chatID, ok := chatIDParam(c)
	if !ok {
		return
	}

	view, err := h.ChatSvc.ViewChat(c.Request.Context(), uid, sid, chatID)
	if err != nil {
		failFromErr(c, err)
		return
	}
	common.OK(c, view)
}

type sendMessageReq struct {
	Message string `json:"message" binding:"required"`
}

func (h *Handler) SendMessage(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	sid, ok := sessionIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	chatID, ok := chatIDParam(c)
	if !ok {
		return
	}

	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	view, err := h.ChatSvc.SendMessage(c.Request.Context(), uid, sid, chatID, req.Message)
	if err != nil {
		failFromErr(c, err)
		return
	}
	common.OK(c, view)
}

func (h *Handler) StartChat(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	sid, ok := sessionIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	created, err := h.ChatSvc.StartChat(c.Request.Context(), uid, sid)
	if err != nil {
		failFromErr(c, err)
		return
	}
	common.OK(c, gin.H{"chat_id": created.ID, "name": created.Name})
}

type deleteChatReq struct {
	ChatID uint64 `json:"chat_id" binding:"required"`
}

func (h *Handler) DeleteChat(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	sid, ok := sessionIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req deleteChatReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	next, err := h.ChatSvc.DeleteChat(c.Request.Context(), uid, sid, req.ChatID)
	if err != nil {
		failFromErr(c, err)
		return
	}
	common.OK(c, gin.H{"active_chat_id": next})
}

type sendMessageAsyncReq struct {
	ChatID  uint64 `json:"chat_id" binding:"required"`
	Message string `json:"message" binding:"required"`
}

// SendMessageAsync persists the user message immediately and queues the
// inference. The reply lands in the store; the session's next reconcile
// pulls it into the buffer.
func (h *Handler) SendMessageAsync(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req sendMessageAsyncReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	if err := h.ChatSvc.InsertUserMessage(c.Request.Context(), uid, req.ChatID, req.Message); err != nil {
		failFromErr(c, err)
		return
	}

	jobID, err := common.NewULID()
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	job := &chat.Job{
		ID:     jobID,
		UserID: uid,
		ChatID: req.ChatID,
		Prompt: req.Message,
		Status: chat.JobQueued,
	}
	if err := h.ChatSvc.CreateJob(c.Request.Context(), job); err != nil {
		failFromErr(c, err)
		return
	}

	if err := h.Rabbit.PublishJob(c.Request.Context(), job.ID); err != nil {
		logger.Log.WithError(err).WithField("job_id", job.ID).Error("publish job failed")
		common.Fail(c, http.StatusInternalServerError, 50003, "enqueue failed")
		return
	}

	common.OK(c, gin.H{"job_id": job.ID})
}

func (h *Handler) GetChatJob(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	jobID := c.Param("job_id")
	if jobID == "" {
		common.Fail(c, http.StatusBadRequest, 10005, "job_id required")
		return
	}

	j, err := h.ChatSvc.GetJob(c.Request.Context(), jobID)
	if err != nil {
		failFromErr(c, err)
		return
	}
	if j.UserID != uid {
		// hide existence
		common.Fail(c, http.StatusNotFound, 40404, "not found")
		return
	}

	common.OK(c, gin.H{
		"job": gin.H{
			"id":                j.ID,
			"chat_id":           j.ChatID,
			"status":            j.Status,
			"result_message_id": j.ResultMessageID,
			"error":             j.Error,
			"created_at":        j.CreatedAt,
			"updated_at":        j.UpdatedAt,
		},
	})
}
