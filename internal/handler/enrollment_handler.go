package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/classroster/roster-api/internal/dto"
	"github.com/classroster/roster-api/internal/models"
	"github.com/classroster/roster-api/internal/service"
	appErrors "github.com/classroster/roster-api/pkg/errors"
	"github.com/classroster/roster-api/pkg/response"
)

// EnrollmentHandler exposes roster record endpoints, including the
// batch class-list import.
type EnrollmentHandler struct {
	enrollments *service.EnrollmentService
	imports     *service.ImportService
}

// NewEnrollmentHandler constructs EnrollmentHandler.
func NewEnrollmentHandler(enrollments *service.EnrollmentService, imports *service.ImportService) *EnrollmentHandler {
	return &EnrollmentHandler{enrollments: enrollments, imports: imports}
}

// Import godoc
// @Summary Import a class list
// @Description Reconcile a batch of submitted student rows against the instructor's roster
// @Tags Enrollments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.ImportRequest true "Class list payload"
// @Success 200 {object} dto.ImportResult
// @Failure 400 {object} response.Envelope
// @Failure 422 {object} dto.ImportResult
// @Router /students/import [post]
func (h *EnrollmentHandler) Import(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.ImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid import payload"))
		return
	}

	result, err := h.imports.ImportBatch(c.Request.Context(), claims.TeacherID, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	status := http.StatusOK
	if !result.Success {
		status = appErrors.ErrBatchAborted.Status
	}
	c.JSON(status, result)
}

// Create godoc
// @Summary Add one student to a course
// @Description Manually enroll a single student in one of the instructor's courses
// @Tags Enrollments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.CreateEnrollmentRequest true "Student payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /students [post]
func (h *EnrollmentHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.CreateEnrollmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid student payload"))
		return
	}

	record, err := h.enrollments.Create(c.Request.Context(), claims.TeacherID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusCreated, record, "student added successfully")
}

// List godoc
// @Summary List roster records
// @Tags Enrollments
// @Produce json
// @Security BearerAuth
// @Param search query string false "Search by name or student id"
// @Param course query string false "Filter by course code"
// @Param deleted query string false "Tombstone filter: include or only"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Param sort query string false "Sort column"
// @Param order query string false "Sort order"
// @Success 200 {object} response.Envelope
// @Router /students [get]
func (h *EnrollmentHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var filter models.EnrollmentFilter
	filter.Search = strings.TrimSpace(c.Query("search"))
	filter.CourseCode = strings.TrimSpace(c.Query("course"))
	switch c.Query("deleted") {
	case "include":
		filter.IncludeDeleted = true
	case "only":
		filter.OnlyDeleted = true
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "15")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	records, pagination, err := h.enrollments.List(c.Request.Context(), claims.TeacherID, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, pagination)
}

// Get godoc
// @Summary Get roster record
// @Tags Enrollments
// @Produce json
// @Security BearerAuth
// @Param id path string true "Record ID"
// @Param deleted query bool false "Include soft deleted records"
// @Success 200 {object} response.Envelope
// @Router /students/{id} [get]
func (h *EnrollmentHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	includeDeleted := c.Query("deleted") == "true"
	record, err := h.enrollments.Get(c.Request.Context(), claims.TeacherID, c.Param("id"), includeDeleted)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// Update godoc
// @Summary Update roster record
// @Tags Enrollments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Record ID"
// @Param payload body service.UpdateEnrollmentRequest true "Record payload"
// @Success 200 {object} response.Envelope
// @Router /students/{id} [put]
func (h *EnrollmentHandler) Update(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.UpdateEnrollmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	record, err := h.enrollments.Update(c.Request.Context(), claims.TeacherID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// Delete godoc
// @Summary Soft delete roster record
// @Description Mark the record removed while keeping its tombstone
// @Tags Enrollments
// @Produce json
// @Security BearerAuth
// @Param id path string true "Record ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id} [delete]
func (h *EnrollmentHandler) Delete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	record, err := h.enrollments.SoftDelete(c.Request.Context(), claims.TeacherID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusOK, record, "student removed from roster")
}

// Restore godoc
// @Summary Restore a soft deleted record
// @Tags Enrollments
// @Produce json
// @Security BearerAuth
// @Param id path string true "Record ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/restore [post]
func (h *EnrollmentHandler) Restore(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	record, err := h.enrollments.Restore(c.Request.Context(), claims.TeacherID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusOK, record, "student restored to roster")
}

// ForceDelete godoc
// @Summary Permanently delete a record
// @Description Remove the record entirely, including its tombstone
// @Tags Enrollments
// @Produce json
// @Security BearerAuth
// @Param id path string true "Record ID"
// @Success 204 {object} response.Envelope
// @Router /students/{id}/force [delete]
func (h *EnrollmentHandler) ForceDelete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if _, err := h.enrollments.ForceDelete(c.Request.Context(), claims.TeacherID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
