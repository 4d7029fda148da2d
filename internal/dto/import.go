package dto

// RowInput is one parsed class-list row submitted for import. The frontend
// parses the CSV; the API receives the row array plus optional course
// metadata taken from the file header.
type RowInput struct {
	StudentID  int64  `json:"student_id" validate:"required,gt=0"`
	FirstName  string `json:"first_name" validate:"required,max=255"`
	LastName   string `json:"last_name" validate:"required,max=255"`
	Program    string `json:"program" validate:"required,max=255"`
	CourseCode string `json:"enrolled_course" validate:"required,max=255"`
}

// CourseInfo carries optional course metadata supplied with the batch.
type CourseInfo struct {
	CourseName string `json:"course_name" validate:"omitempty,max=255"`
	Schedule   string `json:"schedule" validate:"omitempty,max=255"`
	Location   string `json:"location" validate:"omitempty,max=255"`
}

// ImportRequest is the payload accepted by the import endpoint.
type ImportRequest struct {
	Students   []RowInput `json:"students" validate:"required,min=1"`
	CourseInfo CourseInfo `json:"course_info"`
}

// ErrorEntry reports a row that could not be imported. Row is 1-based and
// refers to the original submission order so callers can map feedback back
// to spreadsheet lines.
type ErrorEntry struct {
	Row       int    `json:"row"`
	StudentID int64  `json:"student_id"`
	Error     string `json:"error"`
}

// DuplicateEntry reports a row rejected by the duplicate policy.
type DuplicateEntry struct {
	Row       int    `json:"row"`
	StudentID int64  `json:"student_id"`
	Name      string `json:"name"`
	Owner     string `json:"current_owner,omitempty"`
	Reason    string `json:"reason"`
}

// ImportSummary aggregates batch counters.
type ImportSummary struct {
	TotalProcessed int  `json:"total_processed"`
	Successful     int  `json:"successful"`
	Errors         int  `json:"errors"`
	Duplicates     int  `json:"duplicates"`
	CourseCreated  bool `json:"course_created"`
}

// ImportResult is the structured outcome returned for every batch,
// successful or aborted.
type ImportResult struct {
	Success    bool             `json:"success"`
	Message    string           `json:"message"`
	Summary    ImportSummary    `json:"summary"`
	Errors     []ErrorEntry     `json:"errors,omitempty"`
	Duplicates []DuplicateEntry `json:"duplicates,omitempty"`
}
