package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classroster/roster-api/internal/dto"
	"github.com/classroster/roster-api/internal/models"
)

func newImportTxMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func enrollmentKey(studentID int64, courseCode string) string {
	return fmt.Sprintf("%d:%s", studentID, courseCode)
}

type fakeImportEnrollmentRepo struct {
	own       map[string]*models.EnrollmentRecord
	other     map[string]*models.EnrollmentOwnership
	insertErr map[string]error
	inserted  []models.EnrollmentRecord
	restored  []models.EnrollmentRecord
}

func (f *fakeImportEnrollmentRepo) FindForOwnerTx(ctx context.Context, tx *sqlx.Tx, ownerID, studentID int64, courseCode string) (*models.EnrollmentRecord, error) {
	return f.own[enrollmentKey(studentID, courseCode)], nil
}

func (f *fakeImportEnrollmentRepo) FindOtherOwnerTx(ctx context.Context, tx *sqlx.Tx, excludeOwnerID, studentID int64, courseCode string) (*models.EnrollmentOwnership, error) {
	return f.other[enrollmentKey(studentID, courseCode)], nil
}

func (f *fakeImportEnrollmentRepo) InsertTx(ctx context.Context, tx *sqlx.Tx, record *models.EnrollmentRecord) error {
	if err := f.insertErr[enrollmentKey(record.StudentID, record.CourseCode)]; err != nil {
		return err
	}
	f.inserted = append(f.inserted, *record)
	return nil
}

func (f *fakeImportEnrollmentRepo) RestoreTx(ctx context.Context, tx *sqlx.Tx, record *models.EnrollmentRecord) error {
	f.restored = append(f.restored, *record)
	return nil
}

type fakeImportCourseRepo struct {
	existing map[string]*models.Course
	created  []models.Course
	updated  []models.Course
}

func (f *fakeImportCourseRepo) FindByCodeAndOwnerTx(ctx context.Context, tx *sqlx.Tx, courseCode string, ownerID int64) (*models.Course, error) {
	return f.existing[courseCode], nil
}

func (f *fakeImportCourseRepo) CreateTx(ctx context.Context, tx *sqlx.Tx, course *models.Course) error {
	f.created = append(f.created, *course)
	return nil
}

func (f *fakeImportCourseRepo) UpdateDetailsTx(ctx context.Context, tx *sqlx.Tx, course *models.Course) error {
	f.updated = append(f.updated, *course)
	return nil
}

type recordedActivity struct {
	entityType string
	action     string
	entityID   string
}

type fakeActivityRecorder struct {
	entries []recordedActivity
}

func (f *fakeActivityRecorder) Record(ctx context.Context, teacherID int64, entityType, action, entityID, entityName, description string) {
	f.entries = append(f.entries, recordedActivity{entityType: entityType, action: action, entityID: entityID})
}

func newImportFixture(t *testing.T, enrollments *fakeImportEnrollmentRepo, courses *fakeImportCourseRepo) (*ImportService, sqlmock.Sqlmock, *fakeActivityRecorder, func()) {
	db, mock, cleanup := newImportTxMock(t)
	if enrollments.own == nil {
		enrollments.own = map[string]*models.EnrollmentRecord{}
	}
	if enrollments.other == nil {
		enrollments.other = map[string]*models.EnrollmentOwnership{}
	}
	if courses.existing == nil {
		courses.existing = map[string]*models.Course{}
	}
	activity := &fakeActivityRecorder{}
	svc := NewImportService(db, enrollments, courses, activity, nil, nil, nil, nil)
	return svc, mock, activity, cleanup
}

func importRow(studentID int64, course string) dto.RowInput {
	return dto.RowInput{
		StudentID:  studentID,
		FirstName:  "First",
		LastName:   fmt.Sprintf("Last%d", studentID),
		Program:    "Computer Science",
		CourseCode: course,
	}
}

func TestImportBatchCreatesCourseAndInsertsRows(t *testing.T) {
	enrollments := &fakeImportEnrollmentRepo{}
	courses := &fakeImportCourseRepo{}
	svc, mock, activity, cleanup := newImportFixture(t, enrollments, courses)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectCommit()

	result, err := svc.ImportBatch(context.Background(), 7, dto.ImportRequest{
		Students: []dto.RowInput{importRow(1001, "CS101"), importRow(1002, "CS101")},
	})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 2, result.Summary.TotalProcessed)
	assert.Equal(t, 2, result.Summary.Successful)
	assert.Equal(t, 0, result.Summary.Duplicates)
	assert.Equal(t, 0, result.Summary.Errors)
	assert.True(t, result.Summary.CourseCreated)
	assert.Contains(t, result.Message, "2 students imported successfully")
	assert.Contains(t, result.Message, "Course 'CS101' was created automatically")

	require.Len(t, courses.created, 1)
	assert.Equal(t, "CS101", courses.created[0].CourseCode)
	assert.Equal(t, int64(7), courses.created[0].InstructorID)
	assert.Len(t, enrollments.inserted, 2)

	require.Len(t, activity.entries, 2)
	assert.Equal(t, models.ActivityEntityRoster, activity.entries[0].entityType)
	assert.Equal(t, models.ActivityActionImported, activity.entries[0].action)
	assert.Equal(t, models.ActivityEntityCourse, activity.entries[1].entityType)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestImportBatchCoursePlaceholdersWhenInfoMissing(t *testing.T) {
	enrollments := &fakeImportEnrollmentRepo{}
	courses := &fakeImportCourseRepo{}
	svc, mock, _, cleanup := newImportFixture(t, enrollments, courses)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectCommit()

	_, err := svc.ImportBatch(context.Background(), 7, dto.ImportRequest{
		Students: []dto.RowInput{importRow(1001, "CS101")},
	})
	require.NoError(t, err)

	require.Len(t, courses.created, 1)
	assert.Equal(t, "CS101", courses.created[0].CourseName)
	assert.Equal(t, models.PlaceholderValue, courses.created[0].Schedule)
	assert.Equal(t, models.PlaceholderValue, courses.created[0].Location)
}

func TestImportBatchRealValuesRefreshExistingCourse(t *testing.T) {
	enrollments := &fakeImportEnrollmentRepo{}
	courses := &fakeImportCourseRepo{
		existing: map[string]*models.Course{
			"CS101": {CourseCode: "CS101", CourseName: "Intro CS", Schedule: models.PlaceholderValue, Location: models.PlaceholderValue},
		},
	}
	svc, mock, _, cleanup := newImportFixture(t, enrollments, courses)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectCommit()

	result, err := svc.ImportBatch(context.Background(), 7, dto.ImportRequest{
		Students:   []dto.RowInput{importRow(1001, "CS101")},
		CourseInfo: dto.CourseInfo{Schedule: "MWF 9:00", Location: "Bldg A"},
	})
	require.NoError(t, err)

	assert.False(t, result.Summary.CourseCreated)
	require.Len(t, courses.updated, 1)
	assert.Equal(t, "MWF 9:00", courses.updated[0].Schedule)
	assert.Equal(t, "Bldg A", courses.updated[0].Location)
}

func TestImportBatchPlaceholdersNeverClobberRealValues(t *testing.T) {
	enrollments := &fakeImportEnrollmentRepo{}
	courses := &fakeImportCourseRepo{
		existing: map[string]*models.Course{
			"CS101": {CourseCode: "CS101", CourseName: "Intro CS", Schedule: "MWF 9:00", Location: "Bldg A"},
		},
	}
	svc, mock, _, cleanup := newImportFixture(t, enrollments, courses)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectCommit()

	_, err := svc.ImportBatch(context.Background(), 7, dto.ImportRequest{
		Students:   []dto.RowInput{importRow(1001, "CS101")},
		CourseInfo: dto.CourseInfo{Schedule: models.PlaceholderValue, Location: ""},
	})
	require.NoError(t, err)

	assert.Empty(t, courses.updated)
}

func TestImportBatchRestoresOwnSoftDeletedRecord(t *testing.T) {
	deleted := time.Now().UTC().Add(-24 * time.Hour)
	created := time.Now().UTC().Add(-48 * time.Hour)
	enrollments := &fakeImportEnrollmentRepo{
		own: map[string]*models.EnrollmentRecord{
			enrollmentKey(1001, "CS101"): {ID: "rec-1", StudentID: 1001, CourseCode: "CS101", CreatedAt: created, DeletedAt: &deleted},
		},
	}
	courses := &fakeImportCourseRepo{
		existing: map[string]*models.Course{"CS101": {CourseCode: "CS101"}},
	}
	svc, mock, _, cleanup := newImportFixture(t, enrollments, courses)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectCommit()

	result, err := svc.ImportBatch(context.Background(), 7, dto.ImportRequest{
		Students: []dto.RowInput{importRow(1001, "CS101")},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Summary.Successful)
	assert.Empty(t, enrollments.inserted)
	require.Len(t, enrollments.restored, 1)
	assert.Equal(t, "rec-1", enrollments.restored[0].ID)
	assert.Equal(t, created, enrollments.restored[0].CreatedAt)
}

func TestImportBatchAbortsWhenNoRowImportable(t *testing.T) {
	enrollments := &fakeImportEnrollmentRepo{
		own: map[string]*models.EnrollmentRecord{
			enrollmentKey(1001, "CS101"): {ID: "rec-1", StudentID: 1001, CourseCode: "CS101"},
		},
	}
	courses := &fakeImportCourseRepo{}
	svc, mock, activity, cleanup := newImportFixture(t, enrollments, courses)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectRollback()

	result, err := svc.ImportBatch(context.Background(), 7, dto.ImportRequest{
		Students: []dto.RowInput{
			importRow(1001, "CS101"),
			{StudentID: 1002}, // missing required fields
		},
	})
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "none of the 2 submitted rows")
	assert.Equal(t, 2, result.Summary.TotalProcessed)
	assert.Equal(t, 0, result.Summary.Successful)
	assert.Equal(t, 1, result.Summary.Duplicates)
	assert.Equal(t, 1, result.Summary.Errors)
	assert.False(t, result.Summary.CourseCreated)

	// No mutation of any kind before the abort decision.
	assert.Empty(t, courses.created)
	assert.Empty(t, enrollments.inserted)
	assert.Empty(t, activity.entries)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestImportBatchAbortsBelowHalfYield(t *testing.T) {
	enrollments := &fakeImportEnrollmentRepo{own: map[string]*models.EnrollmentRecord{}}
	for i := int64(1); i <= 6; i++ {
		key := enrollmentKey(1000+i, "CS101")
		enrollments.own[key] = &models.EnrollmentRecord{ID: fmt.Sprintf("rec-%d", i), StudentID: 1000 + i, CourseCode: "CS101"}
	}
	courses := &fakeImportCourseRepo{}
	svc, mock, _, cleanup := newImportFixture(t, enrollments, courses)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectRollback()

	var rows []dto.RowInput
	for i := int64(1); i <= 10; i++ {
		rows = append(rows, importRow(1000+i, "CS101"))
	}

	result, err := svc.ImportBatch(context.Background(), 7, dto.ImportRequest{Students: rows})
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "only 4 of 10 rows are importable")
	assert.Empty(t, courses.created)
	assert.Empty(t, enrollments.inserted)
}

func TestImportBatchProceedsAtExactlyHalfYield(t *testing.T) {
	enrollments := &fakeImportEnrollmentRepo{own: map[string]*models.EnrollmentRecord{}}
	for i := int64(1); i <= 5; i++ {
		key := enrollmentKey(1000+i, "CS101")
		enrollments.own[key] = &models.EnrollmentRecord{ID: fmt.Sprintf("rec-%d", i), StudentID: 1000 + i, CourseCode: "CS101"}
	}
	courses := &fakeImportCourseRepo{}
	svc, mock, _, cleanup := newImportFixture(t, enrollments, courses)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectCommit()

	var rows []dto.RowInput
	for i := int64(1); i <= 10; i++ {
		rows = append(rows, importRow(1000+i, "CS101"))
	}

	result, err := svc.ImportBatch(context.Background(), 7, dto.ImportRequest{Students: rows})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 5, result.Summary.Successful)
	assert.Equal(t, 5, result.Summary.Duplicates)
}

func TestImportBatchBlocksRowsOwnedByOtherInstructor(t *testing.T) {
	enrollments := &fakeImportEnrollmentRepo{
		other: map[string]*models.EnrollmentOwnership{
			enrollmentKey(1001, "CS101"): {OwnerName: "Dr. Reyes"},
		},
	}
	courses := &fakeImportCourseRepo{}
	svc, mock, _, cleanup := newImportFixture(t, enrollments, courses)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectCommit()

	result, err := svc.ImportBatch(context.Background(), 7, dto.ImportRequest{
		Students: []dto.RowInput{importRow(1001, "CS101"), importRow(1002, "CS101")},
	})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 1, result.Summary.Successful)
	require.Len(t, result.Duplicates, 1)
	assert.Equal(t, 1, result.Duplicates[0].Row)
	assert.Equal(t, int64(1001), result.Duplicates[0].StudentID)
	assert.Equal(t, "Dr. Reyes", result.Duplicates[0].Owner)
	assert.Contains(t, result.Duplicates[0].Reason, "cannot enroll with multiple instructors")
}

func TestImportBatchReportsOriginalRowIndexes(t *testing.T) {
	enrollments := &fakeImportEnrollmentRepo{
		own: map[string]*models.EnrollmentRecord{
			enrollmentKey(1002, "CS101"): {ID: "rec-2", StudentID: 1002, CourseCode: "CS101"},
		},
	}
	courses := &fakeImportCourseRepo{}
	svc, mock, _, cleanup := newImportFixture(t, enrollments, courses)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectCommit()

	result, err := svc.ImportBatch(context.Background(), 7, dto.ImportRequest{
		Students: []dto.RowInput{
			importRow(1001, "CS101"),
			importRow(1002, "CS101"), // duplicate, row 2
			{StudentID: 1003},        // invalid, row 3
			importRow(1004, "CS101"),
		},
	})
	require.NoError(t, err)

	require.Len(t, result.Duplicates, 1)
	assert.Equal(t, 2, result.Duplicates[0].Row)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, 3, result.Errors[0].Row)
	assert.Equal(t, int64(1003), result.Errors[0].StudentID)
}

func TestImportBatchDowngradesUniqueViolationToRowError(t *testing.T) {
	enrollments := &fakeImportEnrollmentRepo{
		insertErr: map[string]error{
			enrollmentKey(1002, "CS101"): &pq.Error{Code: "23505"},
		},
	}
	courses := &fakeImportCourseRepo{}
	svc, mock, _, cleanup := newImportFixture(t, enrollments, courses)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectCommit()

	result, err := svc.ImportBatch(context.Background(), 7, dto.ImportRequest{
		Students: []dto.RowInput{
			importRow(1001, "CS101"),
			importRow(1002, "CS101"),
			importRow(1003, "CS101"),
		},
	})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 2, result.Summary.Successful)
	assert.Equal(t, 1, result.Summary.Errors)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, 2, result.Errors[0].Row)
	assert.Contains(t, result.Errors[0].Error, "enrolled concurrently")

	// The rest of the batch still commits.
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestImportBatchRejectsEmptyPayload(t *testing.T) {
	enrollments := &fakeImportEnrollmentRepo{}
	courses := &fakeImportCourseRepo{}
	svc, _, _, cleanup := newImportFixture(t, enrollments, courses)
	defer cleanup()

	result, err := svc.ImportBatch(context.Background(), 7, dto.ImportRequest{})
	require.Error(t, err)
	assert.Nil(t, result)
}

func TestImportBatchSingleCourseCreatedOncePerCode(t *testing.T) {
	enrollments := &fakeImportEnrollmentRepo{}
	courses := &fakeImportCourseRepo{}
	svc, mock, _, cleanup := newImportFixture(t, enrollments, courses)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectCommit()

	result, err := svc.ImportBatch(context.Background(), 7, dto.ImportRequest{
		Students: []dto.RowInput{
			importRow(1001, "CS101"),
			importRow(1002, "CS101"),
			importRow(1003, "CS102"),
		},
	})
	require.NoError(t, err)

	assert.True(t, result.Summary.CourseCreated)
	assert.Len(t, courses.created, 2)
}
