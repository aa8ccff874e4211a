package echoweb

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/masomo-web/core"
	"github.com/trezcool/masomo-web/core/classroom"
)

func newFormContext(form url.Values) echo.Context {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	return echo.New().NewContext(req, httptest.NewRecorder())
}

func TestBindExamForm(t *testing.T) {
	tests := []struct {
		name       string
		form       url.Values
		want       examForm
		wantFields []string
	}{
		{
			name: "full form",
			form: url.Values{
				"class_id":             {"c1"},
				"title":                {"Quiz"},
				"starts_at":            {"2030-05-04T10:30"},
				"duration_minutes":     {"45"},
				"questions[0].prompt":  {"Capital of DRC?"},
				"questions[0].kind":    {"choice"},
				"questions[0].options": {"Kinshasa\r\n\nGoma\n"},
				"questions[0].answer":  {"Kinshasa"},
				"questions[0].points":  {"3"},
				"questions[1].prompt":  {"Explain"},
				"questions[1].kind":    {"text"},
			},
			want: examForm{
				ClassID:         "c1",
				Title:           "Quiz",
				StartsAt:        time.Date(2030, time.May, 4, 10, 30, 0, 0, time.UTC),
				DurationMinutes: 45,
				Questions: []classroom.Question{
					{Prompt: "Capital of DRC?", Kind: classroom.QuestionChoice, Options: []string{"Kinshasa", "Goma"}, Answer: "Kinshasa", Points: 3},
					{Prompt: "Explain", Kind: classroom.QuestionText},
				},
			},
		},
		{
			name: "add question",
			form: url.Values{"action": {"add_question"}, "questions[0].prompt": {"Q1"}, "questions[0].kind": {"text"}},
			want: examForm{
				AddQuestion: true,
				Questions:   []classroom.Question{{Prompt: "Q1", Kind: classroom.QuestionText}, blankQuestion()},
			},
		},
		{
			name: "questions stop at the first gap",
			form: url.Values{"questions[0].prompt": {"Q1"}, "questions[2].prompt": {"Q3"}},
			want: examForm{Questions: []classroom.Question{{Prompt: "Q1"}}},
		},
		{
			name:       "bad numbers and date",
			form:       url.Values{"starts_at": {"5 May"}, "duration_minutes": {"an hour"}, "questions[0].prompt": {"Q1"}, "questions[0].points": {"x"}},
			want:       examForm{Questions: []classroom.Question{{Prompt: "Q1"}}},
			wantFields: []string{"starts_at", "duration_minutes", "questions[0].points"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := bindExamForm(newFormContext(tt.form))
			if len(tt.wantFields) == 0 {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
				return
			}
			vErr, ok := errors.Cause(err).(*core.ValidationError)
			require.True(t, ok, "want a validation error, got %v", err)
			for _, fld := range tt.wantFields {
				assert.Contains(t, vErr.FieldsMap(), fld)
			}
			assert.Equal(t, tt.want.Questions, got.Questions, "the form is kept for redisplay")
		})
	}
}

func TestExamForm_StartsAtInput(t *testing.T) {
	assert.Empty(t, examForm{}.StartsAtInput())

	loc := time.FixedZone("CAT", 2*60*60)
	f := examForm{StartsAt: time.Date(2030, time.May, 4, 12, 30, 0, 0, loc)}
	assert.Equal(t, "2030-05-04T10:30", f.StartsAtInput())
}

func TestBindInvitation(t *testing.T) {
	inv := bindInvitation(newFormContext(url.Values{"emails": {"a@school.cd\nb@school.cd, c@school.cd"}, "message": {"hi"}}))
	assert.Equal(t, []string{"a@school.cd", "b@school.cd, c@school.cd"}, inv.Emails)
	assert.Equal(t, "hi", inv.Message)

	inv.Clean()
	assert.Equal(t, []string{"a@school.cd", "b@school.cd", "c@school.cd"}, inv.Emails)
}
