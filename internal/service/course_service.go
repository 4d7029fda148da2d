package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/classroster/roster-api/internal/models"
	appErrors "github.com/classroster/roster-api/pkg/errors"
)

type courseRepo interface {
	ListByOwner(ctx context.Context, ownerID int64) ([]models.Course, error)
	FindByCodeAndOwner(ctx context.Context, courseCode string, ownerID int64) (*models.Course, error)
	DeleteTx(ctx context.Context, tx *sqlx.Tx, courseCode string, ownerID int64) (bool, error)
}

type rosterReader interface {
	ListByCourse(ctx context.Context, ownerID int64, courseCode string) ([]models.EnrollmentRecord, error)
	DeleteByCourseTx(ctx context.Context, tx *sqlx.Tx, ownerID int64, courseCode string) (int64, error)
}

type instructorReader interface {
	FindByID(ctx context.Context, teacherID int64) (*models.Instructor, error)
}

func courseCacheKey(ownerID int64, suffix string) string {
	return fmt.Sprintf("courses:%d:%s", ownerID, suffix)
}

func courseCachePattern(ownerID int64) string {
	return fmt.Sprintf("courses:%d:*", ownerID)
}

// CourseService serves the course registry: listing an instructor's
// sections, section details with the roster, and cascading deletion.
type CourseService struct {
	db          txProvider
	courses     courseRepo
	enrollments rosterReader
	instructors instructorReader
	activity    activityRecorder
	cache       *CacheService
	logger      *zap.Logger
}

// NewCourseService constructs CourseService.
func NewCourseService(db txProvider, courses courseRepo, enrollments rosterReader, instructors instructorReader, activity activityRecorder, cache *CacheService, logger *zap.Logger) *CourseService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseService{db: db, courses: courses, enrollments: enrollments, instructors: instructors, activity: activity, cache: cache, logger: logger}
}

// ListByOwner returns the instructor's sections, served from cache when
// possible.
func (s *CourseService) ListByOwner(ctx context.Context, ownerID int64) ([]models.Course, error) {
	key := courseCacheKey(ownerID, "list")
	if s.cache != nil {
		var cached []models.Course
		if hit, _ := s.cache.Get(ctx, key, &cached); hit {
			return cached, nil
		}
	}

	courses, err := s.courses.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}

	if s.cache != nil {
		_ = s.cache.Set(ctx, key, courses, 0)
	}
	return courses, nil
}

// GetDetails loads one section with its roster; soft-deleted students are
// included and flagged so the caller can show historical membership.
func (s *CourseService) GetDetails(ctx context.Context, ownerID int64, courseCode string) (*models.CourseDetail, error) {
	key := courseCacheKey(ownerID, "detail:"+courseCode)
	if s.cache != nil {
		var cached models.CourseDetail
		if hit, _ := s.cache.Get(ctx, key, &cached); hit {
			return &cached, nil
		}
	}

	course, err := s.courses.FindByCodeAndOwner(ctx, courseCode, ownerID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if course == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found or you do not have access to it")
	}

	students, err := s.enrollments.ListByCourse(ctx, ownerID, courseCode)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course roster")
	}

	enrolled := 0
	for _, st := range students {
		if st.State() == models.RecordStateActive {
			enrolled++
		}
	}

	instructorName := ""
	if instructor, err := s.instructors.FindByID(ctx, ownerID); err == nil && instructor != nil {
		instructorName = instructor.FullName()
	}

	detail := &models.CourseDetail{
		Course:         *course,
		InstructorName: instructorName,
		EnrolledCount:  enrolled,
		TotalStudents:  len(students),
		Students:       students,
	}

	if s.cache != nil {
		_ = s.cache.Set(ctx, key, detail, 0)
	}
	return detail, nil
}

// Delete removes the instructor's section and every enrollment record they
// hold for it, in one transaction.
func (s *CourseService) Delete(ctx context.Context, ownerID int64, courseCode string) (int64, error) {
	course, err := s.courses.FindByCodeAndOwner(ctx, courseCode, ownerID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if course == nil {
		return 0, appErrors.Clone(appErrors.ErrNotFound, "course not found or you do not have permission to delete it")
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to start deletion")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	removed, err := s.enrollments.DeleteByCourseTx(ctx, tx, ownerID, courseCode)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete course roster")
	}
	if _, err := s.courses.DeleteTx(ctx, tx, courseCode, ownerID); err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete course")
	}
	if err := tx.Commit(); err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit deletion")
	}
	committed = true

	if s.activity != nil {
		s.activity.Record(ctx, ownerID, models.ActivityEntityCourse, models.ActivityActionRemoved, course.CourseCode, course.CourseName,
			fmt.Sprintf("Course %s - %s was deleted together with %d enrollment records", course.CourseCode, course.CourseName, removed))
	}
	if s.cache != nil {
		_ = s.cache.Invalidate(ctx, courseCachePattern(ownerID))
	}
	return removed, nil
}

// notFound unifies sql.ErrNoRows checks for callers using raw repo reads.
func notFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
