package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gopherchat/gopherchat/internal/common"
	"github.com/gopherchat/gopherchat/internal/quote"
)

func (h *Handler) GetQuote(c *gin.Context) {
	symbol := c.Query("symbol")
	if symbol == "" {
		common.Fail(c, http.StatusBadRequest, 10006, "symbol required")
		return
	}

	q, err := h.Quotes.Lookup(c.Request.Context(), symbol)
	if err != nil {
		if errors.Is(err, quote.ErrUnavailable) {
			common.Fail(c, http.StatusNotFound, 40405, "quote not available")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	common.OK(c, q)
}
