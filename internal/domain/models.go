package domain

import "time"

// QuestionType distinguishes single-correct from multi-correct questions.
type QuestionType string

const (
	// QuestionSingle accepts exactly one selected option.
	QuestionSingle QuestionType = "MULTIPLE_CHOICE"
	// QuestionMulti requires the selected set to equal the correct set.
	QuestionMulti QuestionType = "MULTIPLE_ANSWER"
)

// Valid reports whether t is a known question type.
func (t QuestionType) Valid() bool {
	return t == QuestionSingle || t == QuestionMulti
}

// Category is the closed set of quiz categories.
type Category string

const (
	CategoryGeneralKnowledge Category = "General Knowledge"
	CategoryProgramming      Category = "Programming"
	CategoryMathematics      Category = "Mathematics"
	CategoryScience          Category = "Science"
	CategoryLanguage         Category = "Language"
	CategoryHistory          Category = "History"
	CategoryArt              Category = "Art"
	CategoryBusiness         Category = "Business"
	CategoryDataScience      Category = "Data Science"
)

// Categories lists every accepted category in display order.
var Categories = []Category{
	CategoryGeneralKnowledge,
	CategoryProgramming,
	CategoryMathematics,
	CategoryScience,
	CategoryLanguage,
	CategoryHistory,
	CategoryArt,
	CategoryBusiness,
	CategoryDataScience,
}

// Valid reports whether c belongs to Categories.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Question is owned by a Quiz. CorrectOptions holds option values, not indices.
type Question struct {
	ID             string       `json:"id" bson:"id"`
	Text           string       `json:"text" bson:"text"`
	Type           QuestionType `json:"type" bson:"type"`
	Options        []string     `json:"options" bson:"options"`
	CorrectOptions []string     `json:"correctOptions,omitempty" bson:"correctOptions"`
	Explanation    string       `json:"explanation,omitempty" bson:"explanation,omitempty"`
}

// QuizStats is maintained incrementally after each submitted attempt.
type QuizStats struct {
	TotalAttempts int     `json:"totalAttempts" bson:"totalAttempts"`
	PassCount     int     `json:"passCount" bson:"passCount"`
	AverageScore  float64 `json:"averageScore" bson:"averageScore"`
}

// Record folds one scored attempt into the running statistics.
func (s QuizStats) Record(score int, passed bool) QuizStats {
	total := s.TotalAttempts + 1
	next := QuizStats{
		TotalAttempts: total,
		PassCount:     s.PassCount,
		AverageScore:  (s.AverageScore*float64(s.TotalAttempts) + float64(score)) / float64(total),
	}
	if passed {
		next.PassCount++
	}
	return next
}

// Quiz is an authored set of questions. Draft quizzes have Published=false.
type Quiz struct {
	ID           string     `json:"id" bson:"_id"`
	Title        string     `json:"title" bson:"title"`
	Description  string     `json:"description" bson:"description"`
	Category     Category   `json:"category" bson:"category"`
	TimeLimit    int        `json:"timeLimit" bson:"timeLimit"` // minutes, 0 means unlimited
	PassingScore int        `json:"passingScore" bson:"passingScore"`
	Published    bool       `json:"published" bson:"published"`
	CreatedBy    string     `json:"createdBy" bson:"createdBy"`
	CreatedAt    time.Time  `json:"createdAt" bson:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt" bson:"updatedAt"`
	Questions    []Question `json:"questions" bson:"questions"`
	Stats        QuizStats  `json:"stats" bson:"stats"`
}

// TimeLimitSeconds returns the limit in seconds, 0 when unlimited.
func (q Quiz) TimeLimitSeconds() int {
	if q.TimeLimit <= 0 {
		return 0
	}
	return q.TimeLimit * 60
}

// Question looks up a question by ID.
func (q Quiz) Question(id string) (Question, bool) {
	for _, question := range q.Questions {
		if question.ID == id {
			return question, true
		}
	}
	return Question{}, false
}

// Redacted returns a copy without correct answers or explanations.
func (q Quiz) Redacted() Quiz {
	out := q
	out.Questions = make([]Question, len(q.Questions))
	for i, question := range q.Questions {
		question.CorrectOptions = nil
		question.Explanation = ""
		out.Questions[i] = question
	}
	return out
}

// QuizSpec carries the author-controlled fields of a quiz.
type QuizSpec struct {
	Title        string     `json:"title" validate:"required,max=200"`
	Description  string     `json:"description" validate:"max=2000"`
	Category     Category   `json:"category" validate:"required"`
	TimeLimit    int        `json:"timeLimit" validate:"gte=0"`
	PassingScore int        `json:"passingScore" validate:"gte=0,lte=100"`
	Questions    []Question `json:"questions"`
}

// QuestionResponse is one answered question within an attempt.
type QuestionResponse struct {
	QuestionID      string   `json:"questionId" bson:"questionId"`
	SelectedOptions []string `json:"selectedOptions" bson:"selectedOptions"`
	Correct         bool     `json:"correct" bson:"correct"`
}

// QuizAttempt is created in progress and completed exactly once.
type QuizAttempt struct {
	ID          string             `json:"id" bson:"_id"`
	QuizID      string             `json:"quizId" bson:"quizId"`
	UserID      string             `json:"userId" bson:"userId"`
	StartedAt   time.Time          `json:"startedAt" bson:"startedAt"`
	CompletedAt *time.Time         `json:"completedAt,omitempty" bson:"completedAt,omitempty"`
	Completed   bool               `json:"completed" bson:"completed"`
	Score       int                `json:"score" bson:"score"`
	Passed      bool               `json:"passed" bson:"passed"`
	TimeSpent   int                `json:"timeSpent" bson:"timeSpent"` // seconds
	Responses   []QuestionResponse `json:"responses" bson:"responses"`
}

// ReportStatus is the moderation state of a report.
type ReportStatus string

const (
	ReportPending  ReportStatus = "PENDING"
	ReportApproved ReportStatus = "APPROVED"
	ReportRejected ReportStatus = "REJECTED"
)

// Valid reports whether s is a known report status.
func (s ReportStatus) Valid() bool {
	switch s {
	case ReportPending, ReportApproved, ReportRejected:
		return true
	}
	return false
}

// Decision is an admin verdict on a pending report.
type Decision string

const (
	DecisionApprove Decision = "APPROVE"
	DecisionReject  Decision = "REJECT"
)

// Status maps a decision to the terminal report status it produces.
func (d Decision) Status() (ReportStatus, bool) {
	switch d {
	case DecisionApprove:
		return ReportApproved, true
	case DecisionReject:
		return ReportRejected, true
	}
	return "", false
}

// Report is a user complaint about a post.
type Report struct {
	ID           string       `json:"id" bson:"_id"`
	PostID       string       `json:"postId" bson:"postId"`
	ReportedBy   string       `json:"reportedBy" bson:"reportedBy"`
	Reason       string       `json:"reason" bson:"reason"`
	Description  string       `json:"description" bson:"description"`
	ReportedAt   time.Time    `json:"reportedAt" bson:"reportedAt"`
	Status       ReportStatus `json:"status" bson:"status"`
	AdminComment string       `json:"adminComment,omitempty" bson:"adminComment,omitempty"`
	ReviewedAt   *time.Time   `json:"reviewedAt,omitempty" bson:"reviewedAt,omitempty"`
	ReviewedBy   string       `json:"reviewedBy,omitempty" bson:"reviewedBy,omitempty"`
}

// Resolution is the terminal state written onto a pending report.
type Resolution struct {
	Status       ReportStatus
	AdminComment string
	ReviewedAt   time.Time
	ReviewedBy   string
}

// PostStatus is the visibility of a post.
type PostStatus string

const (
	PostActive  PostStatus = "ACTIVE"
	PostRemoved PostStatus = "REMOVED"
)

// Post is the subset of a social post the moderation workflow touches.
type Post struct {
	ID          string     `json:"id" bson:"_id"`
	UserID      string     `json:"userId" bson:"userId"`
	Title       string     `json:"title" bson:"title"`
	Status      PostStatus `json:"status" bson:"status"`
	ReportCount int        `json:"reportCount" bson:"reportCount"`
}
