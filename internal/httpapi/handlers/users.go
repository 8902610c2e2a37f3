package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/gopherchat/gopherchat/internal/auth"
	"github.com/gopherchat/gopherchat/internal/common"
	"github.com/gopherchat/gopherchat/internal/email"
	"github.com/gopherchat/gopherchat/internal/httpapi/middleware"
	"github.com/gopherchat/gopherchat/internal/logger"
	"github.com/gopherchat/gopherchat/internal/models"
	"github.com/gopherchat/gopherchat/internal/validation"
)

const tokenTTL = 24 * time.Hour

type registerReq struct {
	Username     string `json:"username"`
	Email        string `json:"email"`
	Password     string `json:"password"`
	Confirmation string `json:"confirmation"`
}

func (h *Handler) Register(c *gin.Context) {
	var req registerReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	if err := validation.ValidateRegisterRequest(req.Username, req.Email, req.Password, req.Confirmation); err != nil {
		common.Fail(c, http.StatusBadRequest, 10002, err.Error())
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20002, "failed to hash password")
		return
	}

	user := models.User{
		Username:     req.Username,
		PasswordHash: hash,
	}
	if req.Email != "" {
		user.Email = &req.Email
	}
	if err := h.DB.Create(&user).Error; err != nil {
		common.Fail(c, http.StatusBadRequest, 10003, "username or account already exists")
		return
	}

	token, sid, err := h.issueToken(user.ID)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20003, "failed to sign token")
		return
	}

	if user.Email != nil {
		go func(to, uname string) {
			subject := "Welcome to GopherChat — Your account is ready"
			body := "Hello,\n\n" +
				"Welcome to GopherChat. Your account has been successfully created.\n\n" +
				"Username: " + uname + "\n\n" +
				"If you did not request this account, please contact our support immediately.\n\n" +
				"Best regards,\n" +
				"GopherChat\n"
			if err := email.SendText(h.SMTPSetting, to, subject, body); err != nil {
				logger.Log.WithError(err).Warn("welcome email failed")
			}
		}(*user.Email, user.Username)
	}

	common.OK(c, gin.H{
		"id":       user.ID,
		"username": user.Username,
		"token":    token,
		"sid":      sid,
	})
}

type loginReq struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) Login(c *gin.Context) {
	var req loginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if err := validation.ValidateLoginRequest(req.Username, req.Password); err != nil {
		common.Fail(c, http.StatusBadRequest, 10002, err.Error())
		return
	}

	var user models.User
	if err := h.DB.Where("username = ?", req.Username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusUnauthorized, 40102, "invalid username or password")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}
	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		common.Fail(c, http.StatusUnauthorized, 40102, "invalid username or password")
		return
	}

	token, sid, err := h.issueToken(user.ID)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20003, "failed to sign token")
		return
	}

	common.OK(c, gin.H{
		"id":       user.ID,
		"username": user.Username,
		"token":    token,
		"sid":      sid,
	})
}

// Logout drops the session's conversation state. The token itself simply
// expires; there is no server-side token blacklist.
func (h *Handler) Logout(c *gin.Context) {
	sid := c.GetString(middleware.SessionIDKey)
	if sid != "" {
		if err := h.ChatSvc.ClearSession(c.Request.Context(), sid); err != nil {
			logger.Log.WithError(err).Warn("clear session state failed")
		}
	}
	common.OK(c, nil)
}

func (h *Handler) Me(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var user models.User
	if err := h.DB.First(&user, uid).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40401, "user not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}

	common.OK(c, gin.H{
		"id":         user.ID,
		"username":   user.Username,
		"email":      user.Email,
		"created_at": user.CreatedAt,
	})
}

// issueToken mints a fresh browser session id and a JWT carrying it.
func (h *Handler) issueToken(userID uint64) (token, sid string, err error) {
	sid, err = common.NewULID()
	if err != nil {
		return "", "", err
	}
	token, err = auth.SignJWT(userID, sid, h.Cfg.JWTSecret, tokenTTL)
	if err != nil {
		return "", "", err
	}
	return token, sid, nil
}
