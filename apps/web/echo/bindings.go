package echoweb

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-web/core"
	"github.com/trezcool/masomo-web/core/classroom"
)

const (
	datetimeLocalLayout = "2006-01-02T15:04"
	maxFormQuestions    = 100
)

// examForm is the HTML rendition of classroom.NewExam. Times are entered in UTC.
type examForm struct {
	ClassID         string
	Title           string
	Description     string
	StartsAt        time.Time
	DurationMinutes int
	Questions       []classroom.Question
	AddQuestion     bool
}

// StartsAtInput formats StartsAt for a datetime-local input.
func (f examForm) StartsAtInput() string {
	if f.StartsAt.IsZero() {
		return ""
	}
	return f.StartsAt.UTC().Format(datetimeLocalLayout)
}

func newExamForm() examForm {
	return examForm{
		DurationMinutes: 60,
		Questions:       []classroom.Question{blankQuestion()},
	}
}

func blankQuestion() classroom.Question {
	return classroom.Question{Kind: classroom.QuestionChoice, Points: 1}
}

func (f examForm) NewExam() classroom.NewExam {
	return classroom.NewExam{
		ClassID:         f.ClassID,
		Title:           f.Title,
		Description:     f.Description,
		StartsAt:        f.StartsAt,
		DurationMinutes: f.DurationMinutes,
		Questions:       append([]classroom.Question(nil), f.Questions...),
	}
}

// bindExamForm reads an examForm from the posted form values.
// Questions are named "questions[i].field"; options are one per line.
func bindExamForm(ctx echo.Context) (examForm, error) {
	values, err := ctx.FormParams()
	if err != nil {
		return examForm{}, errors.Wrap(err, "parsing exam form")
	}

	f := examForm{
		ClassID:     values.Get("class_id"),
		Title:       values.Get("title"),
		Description: values.Get("description"),
		AddQuestion: values.Get("action") == "add_question",
	}
	var fldErrs []core.FieldError

	if s := strings.TrimSpace(values.Get("starts_at")); s != "" {
		if f.StartsAt, err = time.ParseInLocation(datetimeLocalLayout, s, time.UTC); err != nil {
			fldErrs = append(fldErrs, core.FieldError{Field: "starts_at", Error: "invalid date"})
		}
	}
	if s := strings.TrimSpace(values.Get("duration_minutes")); s != "" {
		if f.DurationMinutes, err = strconv.Atoi(s); err != nil {
			fldErrs = append(fldErrs, core.FieldError{Field: "duration_minutes", Error: "must be a number"})
		}
	}

	for i := 0; i < maxFormQuestions; i++ {
		q, ok, qErrs := bindQuestion(values, i)
		if !ok {
			break
		}
		f.Questions = append(f.Questions, q)
		fldErrs = append(fldErrs, qErrs...)
	}
	if f.AddQuestion && len(f.Questions) < maxFormQuestions {
		f.Questions = append(f.Questions, blankQuestion())
	}

	if len(fldErrs) > 0 {
		return f, core.NewValidationError(errors.New("invalid exam form"), fldErrs...)
	}
	return f, nil
}

func bindQuestion(values url.Values, i int) (classroom.Question, bool, []core.FieldError) {
	prefix := "questions[" + strconv.Itoa(i) + "]."
	if _, ok := values[prefix+"prompt"]; !ok {
		return classroom.Question{}, false, nil
	}

	q := classroom.Question{
		Prompt: values.Get(prefix + "prompt"),
		Kind:   classroom.QuestionKind(values.Get(prefix + "kind")),
		Answer: values.Get(prefix + "answer"),
	}
	for _, opt := range strings.Split(values.Get(prefix+"options"), "\n") {
		if opt = strings.TrimSpace(opt); opt != "" {
			q.Options = append(q.Options, opt)
		}
	}

	var fldErrs []core.FieldError
	if s := strings.TrimSpace(values.Get(prefix + "points")); s != "" {
		var err error
		if q.Points, err = strconv.Atoi(s); err != nil {
			fldErrs = append(fldErrs, core.FieldError{Field: prefix + "points", Error: "must be a number"})
		}
	}
	return q, true, fldErrs
}

// bindInvitation reads the invitation form; emails are separated by new lines or commas.
func bindInvitation(ctx echo.Context) classroom.Invitation {
	return classroom.Invitation{
		Emails:  strings.Split(ctx.FormValue("emails"), "\n"),
		Message: ctx.FormValue("message"),
	}
}
