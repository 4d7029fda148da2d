package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/classroster/roster-api/internal/service"
	appErrors "github.com/classroster/roster-api/pkg/errors"
	"github.com/classroster/roster-api/pkg/response"
)

// ActivityHandler exposes the instructor's activity feed.
type ActivityHandler struct {
	activity *service.ActivityService
}

// NewActivityHandler constructs ActivityHandler.
func NewActivityHandler(activity *service.ActivityService) *ActivityHandler {
	return &ActivityHandler{activity: activity}
}

// List godoc
// @Summary List recent activity
// @Tags Activity
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /activity [get]
func (h *ActivityHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	entries, err := h.activity.List(c.Request.Context(), claims.TeacherID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}
