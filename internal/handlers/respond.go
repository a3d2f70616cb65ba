// Package handlers implements the HTTP console API over the sync coordinator.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/pandeptwidyaop/macrosync/internal/services"
)

// respondOutcome maps a coordinator outcome to a status code by its kind.
func respondOutcome(c *gin.Context, out services.Outcome, extra ...gin.H) {
	body := gin.H{"ok": out.OK, "kind": out.Kind, "message": out.Message}
	for _, h := range extra {
		for k, v := range h {
			body[k] = v
		}
	}
	c.JSON(outcomeStatus(out), body)
}

func outcomeStatus(out services.Outcome) int {
	if out.OK {
		return http.StatusOK
	}
	switch out.Kind {
	case services.KindRefused:
		return http.StatusForbidden
	case services.KindRejected:
		return http.StatusBadRequest
	case services.KindEncode:
		return http.StatusInternalServerError
	default:
		// transport and decode failures both come from the device
		return http.StatusBadGateway
	}
}

func paramIndex(c *gin.Context, name string) (int, bool) {
	i, err := strconv.Atoi(c.Param(name))
	if err != nil || i < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return i, true
}

func pagination(c *gin.Context) (int, int) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit < 0 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
