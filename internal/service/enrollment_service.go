package service

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/classroster/roster-api/internal/models"
	"github.com/classroster/roster-api/internal/repository"
	appErrors "github.com/classroster/roster-api/pkg/errors"
)

type enrollmentRepo interface {
	List(ctx context.Context, ownerID int64, filter models.EnrollmentFilter) ([]models.EnrollmentRecord, int, error)
	FindByID(ctx context.Context, ownerID int64, id string, includeDeleted bool) (*models.EnrollmentRecord, error)
	FindByStudentAndCourse(ctx context.Context, ownerID, studentID int64, courseCode string) (*models.EnrollmentRecord, error)
	FindOtherOwner(ctx context.Context, excludeOwnerID, studentID int64, courseCode string) (*models.EnrollmentOwnership, error)
	ExistsActive(ctx context.Context, ownerID, studentID int64, courseCode, excludeID string) (bool, error)
	Insert(ctx context.Context, record *models.EnrollmentRecord) error
	Update(ctx context.Context, record *models.EnrollmentRecord) error
	SoftDelete(ctx context.Context, ownerID int64, id string) (bool, error)
	Restore(ctx context.Context, ownerID int64, id string) (bool, error)
	ForceDelete(ctx context.Context, ownerID int64, id string) (bool, error)
}

type enrollmentCourseReader interface {
	FindByCodeAndOwner(ctx context.Context, courseCode string, ownerID int64) (*models.Course, error)
}

// CreateEnrollmentRequest carries one manually added student.
type CreateEnrollmentRequest struct {
	StudentID  int64  `json:"student_id" validate:"required,gt=0"`
	FirstName  string `json:"first_name" validate:"required,max=255"`
	LastName   string `json:"last_name" validate:"required,max=255"`
	Program    string `json:"program" validate:"required,max=255"`
	CourseCode string `json:"enrolled_course" validate:"required,max=255"`
}

// UpdateEnrollmentRequest carries the editable fields of a record.
type UpdateEnrollmentRequest struct {
	StudentID int64  `json:"student_id" validate:"required,gt=0"`
	FirstName string `json:"first_name" validate:"required,max=255"`
	LastName  string `json:"last_name" validate:"required,max=255"`
	Program   string `json:"program" validate:"required,max=255"`
}

// EnrollmentService covers single-record roster operations: list/search,
// update, soft delete, restore and permanent removal. Every call is
// scoped to the acting instructor.
type EnrollmentService struct {
	repo      enrollmentRepo
	courses   enrollmentCourseReader
	activity  activityRecorder
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(repo enrollmentRepo, courses enrollmentCourseReader, activity activityRecorder, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{repo: repo, courses: courses, activity: activity, cache: cache, validator: validate, logger: logger}
}

// Create adds a single student to one of the instructor's existing
// courses. The row passes through the same duplicate policy as an
// imported row: the instructor's own tombstone is revived in place, an
// active record or another instructor's claim blocks the add.
func (s *EnrollmentService) Create(ctx context.Context, ownerID int64, req CreateEnrollmentRequest) (*models.EnrollmentRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}

	course, err := s.courses.FindByCodeAndOwner(ctx, req.CourseCode, ownerID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if course == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
	}

	own, err := s.repo.FindByStudentAndCourse(ctx, ownerID, req.StudentID, req.CourseCode)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing enrollment")
	}
	other, err := s.repo.FindOtherOwner(ctx, ownerID, req.StudentID, req.CourseCode)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check competing enrollment")
	}

	class := ClassifyRow(own, other)
	switch class.Outcome {
	case RowOutcomeDuplicate:
		return nil, appErrors.Clone(appErrors.ErrConflict, class.Reason)
	case RowOutcomeRestorable:
		record := class.Existing
		record.StudentID = req.StudentID
		record.FirstName = req.FirstName
		record.LastName = req.LastName
		record.Program = req.Program
		if _, err := s.repo.Restore(ctx, ownerID, record.ID); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to restore enrollment")
		}
		record.DeletedAt = nil
		if err := s.repo.Update(ctx, record); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update enrollment")
		}
		s.record(ctx, ownerID, models.ActivityActionCreated, record,
			fmt.Sprintf("%s was added to %s", record.FullName(), record.CourseCode))
		s.invalidateCourseCache(ctx, ownerID)
		return s.Get(ctx, ownerID, record.ID, false)
	}

	record := &models.EnrollmentRecord{
		StudentID:    req.StudentID,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Program:      req.Program,
		CourseCode:   course.CourseCode,
		InstructorID: ownerID,
	}
	if err := s.repo.Insert(ctx, record); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "student was enrolled concurrently by another request")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}

	s.record(ctx, ownerID, models.ActivityActionCreated, record,
		fmt.Sprintf("%s was added to %s", record.FullName(), record.CourseCode))
	s.invalidateCourseCache(ctx, ownerID)
	return record, nil
}

// List returns the instructor's records with pagination metadata.
func (s *EnrollmentService) List(ctx context.Context, ownerID int64, filter models.EnrollmentFilter) ([]models.EnrollmentRecord, *models.Pagination, error) {
	records, total, err := s.repo.List(ctx, ownerID, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 15
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return records, pagination, nil
}

// Get loads one record, optionally including soft-deleted ones.
func (s *EnrollmentService) Get(ctx context.Context, ownerID int64, id string, includeDeleted bool) (*models.EnrollmentRecord, error) {
	record, err := s.repo.FindByID(ctx, ownerID, id, includeDeleted)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if record == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}
	return record, nil
}

// Update overwrites the editable fields of an active record, guarding the
// active-uniqueness key.
func (s *EnrollmentService) Update(ctx context.Context, ownerID int64, id string, req UpdateEnrollmentRequest) (*models.EnrollmentRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}

	record, err := s.Get(ctx, ownerID, id, false)
	if err != nil {
		return nil, err
	}

	if req.StudentID != record.StudentID {
		exists, err := s.repo.ExistsActive(ctx, ownerID, req.StudentID, record.CourseCode, record.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate student id")
		}
		if exists {
			return nil, appErrors.Clone(appErrors.ErrConflict, "another active record holds this student id for the course")
		}
	}

	record.StudentID = req.StudentID
	record.FirstName = req.FirstName
	record.LastName = req.LastName
	record.Program = req.Program

	if err := s.repo.Update(ctx, record); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update enrollment")
	}

	s.record(ctx, ownerID, models.ActivityActionUpdated, record,
		fmt.Sprintf("%s's record in %s was updated", record.FullName(), record.CourseCode))
	s.invalidateCourseCache(ctx, ownerID)
	return record, nil
}

// SoftDelete marks an active record as removed while retaining the row.
func (s *EnrollmentService) SoftDelete(ctx context.Context, ownerID int64, id string) (*models.EnrollmentRecord, error) {
	record, err := s.Get(ctx, ownerID, id, false)
	if err != nil {
		return nil, err
	}

	done, err := s.repo.SoftDelete(ctx, ownerID, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to remove enrollment")
	}
	if !done {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}

	s.record(ctx, ownerID, models.ActivityActionRemoved, record,
		fmt.Sprintf("%s was removed from %s", record.FullName(), record.CourseCode))
	s.invalidateCourseCache(ctx, ownerID)
	return s.Get(ctx, ownerID, id, true)
}

// Restore revives a soft-deleted record. Purged records cannot be
// restored; they no longer exist.
func (s *EnrollmentService) Restore(ctx context.Context, ownerID int64, id string) (*models.EnrollmentRecord, error) {
	record, err := s.repo.FindByID(ctx, ownerID, id, true)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if record == nil || record.State() != models.RecordStateSoftDeleted {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "deleted student not found")
	}

	exists, err := s.repo.ExistsActive(ctx, ownerID, record.StudentID, record.CourseCode, record.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate restore")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "an active record already holds this student for the course")
	}

	done, err := s.repo.Restore(ctx, ownerID, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to restore enrollment")
	}
	if !done {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "deleted student not found")
	}

	s.record(ctx, ownerID, models.ActivityActionRestored, record,
		fmt.Sprintf("%s was restored to %s", record.FullName(), record.CourseCode))
	s.invalidateCourseCache(ctx, ownerID)
	return s.Get(ctx, ownerID, id, false)
}

// ForceDelete permanently erases a record, soft-deleted or not.
func (s *EnrollmentService) ForceDelete(ctx context.Context, ownerID int64, id string) (*models.EnrollmentRecord, error) {
	record, err := s.repo.FindByID(ctx, ownerID, id, true)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if record == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}

	done, err := s.repo.ForceDelete(ctx, ownerID, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to permanently delete enrollment")
	}
	if !done {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}

	s.record(ctx, ownerID, models.ActivityActionPurged, record,
		fmt.Sprintf("%s's record in %s was permanently deleted", record.FullName(), record.CourseCode))
	s.invalidateCourseCache(ctx, ownerID)
	return record, nil
}

func (s *EnrollmentService) record(ctx context.Context, ownerID int64, action string, rec *models.EnrollmentRecord, description string) {
	if s.activity == nil {
		return
	}
	s.activity.Record(ctx, ownerID, models.ActivityEntityStudent, action, rec.ID, rec.FullName(), description)
}

func (s *EnrollmentService) invalidateCourseCache(ctx context.Context, ownerID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, courseCachePattern(ownerID)); err != nil {
		s.logger.Warn("course cache invalidation failed", zap.Int64("teacher_id", ownerID), zap.Error(err))
	}
}
