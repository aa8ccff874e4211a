package classroom

import (
	"strings"
	"time"

	"github.com/trezcool/masomo-web/core"
	"github.com/trezcool/masomo-web/core/user"
)

// DisplayTimeLayout is how timestamps are shown on dashboards.
const DisplayTimeLayout = "Jan 2, 2006 15:04"

// MemberRole is the role of a User inside a Class. It is not the portal user.Role.
type MemberRole string

const (
	MemberOwner   MemberRole = "owner"
	MemberTeacher MemberRole = "teacher"
	MemberStudent MemberRole = "student"
)

var memberRoleRank = map[MemberRole]int{MemberOwner: 0, MemberTeacher: 1, MemberStudent: 2}

// Actor is the authenticated user on whose behalf the classes API is called.
type Actor struct {
	Token string
	User  user.User
}

type (
	Member struct {
		UserID   string     `json:"user_id"`
		Name     string     `json:"name"`
		Email    string     `json:"email"`
		Role     MemberRole `json:"role"`
		JoinedAt time.Time  `json:"joined_at"`
	}

	Class struct {
		ID          string    `json:"id"`
		Name        string    `json:"name"`
		Description string    `json:"description"`
		Subject     string    `json:"subject"`
		JoinCode    string    `json:"join_code,omitempty"`
		OwnerID     string    `json:"owner_id"`
		OwnerName   string    `json:"owner_name"`
		MemberCount int       `json:"member_count"`
		Members     []Member  `json:"members,omitempty"`
		CreatedAt   time.Time `json:"created_at"`
	}

	// NewClass is the class creation form.
	NewClass struct {
		Name        string `json:"name" form:"name" validate:"required,notblank,max=100"`
		Subject     string `json:"subject" form:"subject" validate:"max=50"`
		Description string `json:"description" form:"description" validate:"max=500"`
	}

	// JoinRequest is the form a student submits to join a class.
	JoinRequest struct {
		JoinCode string `json:"join_code" form:"join_code" validate:"required,len=6,alphanum"`
	}

	// Invitation sends a class join code by email.
	Invitation struct {
		Emails  []string `json:"emails" form:"emails" validate:"required,min=1,max=50,dive,required,email"`
		Message string   `json:"message" form:"message" validate:"max=500"`
	}
)

func (nc *NewClass) Clean() {
	nc.Name = core.CleanString(nc.Name)
	nc.Subject = core.CleanString(nc.Subject)
	nc.Description = core.CleanString(nc.Description)
}

func (jr *JoinRequest) Clean() {
	jr.JoinCode = strings.ToUpper(strings.ReplaceAll(core.CleanString(jr.JoinCode), "-", ""))
}

// Clean lowers, trims and dedupes the emails. Comma separated entries are split.
func (inv *Invitation) Clean() {
	seen := make(map[string]struct{}, len(inv.Emails))
	emails := make([]string, 0, len(inv.Emails))
	for _, entry := range inv.Emails {
		for _, email := range strings.Split(entry, ",") {
			email = core.CleanString(email, true /* lower */)
			if email == "" {
				continue
			}
			if _, dup := seen[email]; dup {
				continue
			}
			seen[email] = struct{}{}
			emails = append(emails, email)
		}
	}
	inv.Emails = emails
	inv.Message = core.CleanString(inv.Message)
}

// Exams

type QuestionKind string

const (
	QuestionChoice QuestionKind = "choice"
	QuestionText   QuestionKind = "text"
)

type ExamStatus string

const (
	ExamScheduled ExamStatus = "scheduled"
	ExamOpen      ExamStatus = "open"
	ExamClosed    ExamStatus = "closed"
)

type (
	Question struct {
		Prompt  string       `json:"prompt" validate:"required,notblank,max=1000"`
		Kind    QuestionKind `json:"kind" validate:"required,oneof=choice text"`
		Options []string     `json:"options,omitempty" validate:"omitempty,max=10,dive,required,max=200"`
		Answer  string       `json:"answer,omitempty" validate:"max=1000"`
		Points  int          `json:"points" validate:"min=1,max=100"`
	}

	// NewExam is the exam creation form.
	NewExam struct {
		ClassID         string     `json:"class_id" validate:"required"`
		Title           string     `json:"title" validate:"required,notblank,max=200"`
		Description     string     `json:"description" validate:"max=2000"`
		StartsAt        time.Time  `json:"starts_at" validate:"required"`
		DurationMinutes int        `json:"duration_minutes" validate:"min=5,max=600"`
		Questions       []Question `json:"questions" validate:"required,min=1,max=100,dive"`
	}

	Exam struct {
		ID              string     `json:"id"`
		ClassID         string     `json:"class_id"`
		ClassName       string     `json:"class_name"`
		Title           string     `json:"title"`
		Description     string     `json:"description"`
		StartsAt        time.Time  `json:"starts_at"`
		DurationMinutes int        `json:"duration_minutes"`
		QuestionCount   int        `json:"question_count"`
		TotalPoints     int        `json:"total_points"`
		Status          ExamStatus `json:"status"`
	}
)

func (ne *NewExam) Clean() {
	ne.ClassID = core.CleanString(ne.ClassID)
	ne.Title = core.CleanString(ne.Title)
	ne.Description = core.CleanString(ne.Description)
	ne.StartsAt = ne.StartsAt.UTC()
	for i := range ne.Questions {
		q := &ne.Questions[i]
		q.Prompt = core.CleanString(q.Prompt)
		q.Kind = QuestionKind(core.CleanString(string(q.Kind), true /* lower */))
		q.Answer = core.CleanString(q.Answer)
		for j := range q.Options {
			q.Options[j] = core.CleanString(q.Options[j])
		}
		if q.Kind == QuestionText {
			q.Options = nil
		}
	}
}

// TotalPoints sums the points of every question.
func (ne *NewExam) TotalPoints() int {
	var total int
	for _, q := range ne.Questions {
		total += q.Points
	}
	return total
}

// Dashboards, as returned by the classes API

type (
	AdminStats struct {
		TotalUsers  int            `json:"total_users"`
		ActiveUsers int            `json:"active_users"`
		UsersByRole map[string]int `json:"users_by_role"`
		Classes     int            `json:"classes"`
		Exams       int            `json:"exams"`
	}

	ExamProgress struct {
		ExamID    string    `json:"exam_id"`
		Title     string    `json:"title"`
		ClassName string    `json:"class_name"`
		StartsAt  time.Time `json:"starts_at"`
		Submitted int       `json:"submitted"`
		Expected  int       `json:"expected"`
	}

	TeacherStats struct {
		Classes  int            `json:"classes"`
		Students int            `json:"students"`
		Exams    []ExamProgress `json:"exams"`
	}

	Score struct {
		ExamID   string    `json:"exam_id"`
		Title    string    `json:"title"`
		Score    float64   `json:"score"`
		MaxScore float64   `json:"max_score"`
		TakenAt  time.Time `json:"taken_at"`
	}

	StudentStats struct {
		Classes       int     `json:"classes"`
		UpcomingExams []Exam  `json:"upcoming_exams"`
		Scores        []Score `json:"scores"`
	}
)

// Dashboards, as shown

type (
	RoleShare struct {
		Role    user.Role `json:"role"`
		Label   string    `json:"label"`
		Count   int       `json:"count"`
		Percent float64   `json:"percent"`
	}

	AdminDashboard struct {
		TotalUsers    int         `json:"total_users"`
		ActiveUsers   int         `json:"active_users"`
		ActivePercent float64     `json:"active_percent"`
		Roles         []RoleShare `json:"roles"`
		Classes       int         `json:"classes"`
		Exams         int         `json:"exams"`
		RecentClasses []ClassCard `json:"recent_classes"`
	}

	ClassCard struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		Subject     string `json:"subject"`
		Owner       string `json:"owner"`
		MemberCount int    `json:"member_count"`
		CreatedAt   string `json:"created_at"`
	}

	ExamCard struct {
		ID             string  `json:"id"`
		Title          string  `json:"title"`
		ClassName      string  `json:"class_name"`
		StartsAt       string  `json:"starts_at"`
		Submitted      int     `json:"submitted"`
		Expected       int     `json:"expected"`
		CompletionRate float64 `json:"completion_rate"`
	}

	TeacherDashboard struct {
		Classes           int        `json:"classes"`
		Students          int        `json:"students"`
		Exams             []ExamCard `json:"exams"`
		AverageCompletion float64    `json:"average_completion"`
	}

	ScoreCard struct {
		Title   string  `json:"title"`
		Percent float64 `json:"percent"`
		TakenAt string  `json:"taken_at"`
	}

	StudentDashboard struct {
		Classes       int         `json:"classes"`
		UpcomingExams []ExamCard  `json:"upcoming_exams"`
		Scores        []ScoreCard `json:"scores"`
		AverageScore  float64     `json:"average_score"`
	}
)
