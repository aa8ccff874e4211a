package classroom

import (
	"strconv"
	"strings"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/trezcool/masomo-web/core"
)

var (
	NowFunc = time.Now // mockable

	questionMaxSim   = .9
	questionDupTag   = "questiondup"
	questionDupText  = "this question is too similar to another question of the exam"
	choiceOptsTag    = "choiceopts"
	choiceOptsText   = "a choice question needs at least 2 options"
	choiceAnswerTag  = "choiceanswer"
	choiceAnswerText = "the answer must be one of the options"
	futureTag        = "future"
	futureText       = "this date must be in the future"
)

// InitValidators registers the classroom validations on `validate`.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	validate.RegisterStructValidation(examStructValidation, NewExam{})
	validate.RegisterStructValidation(questionStructValidation, Question{})

	core.RegisterCustomTranslation(validate, translator, questionDupTag, questionDupText)
	core.RegisterCustomTranslation(validate, translator, choiceOptsTag, choiceOptsText)
	core.RegisterCustomTranslation(validate, translator, choiceAnswerTag, choiceAnswerText)
	core.RegisterCustomTranslation(validate, translator, futureTag, futureText)
}

func (nc *NewClass) Validate(validate *validator.Validate, translator ut.Translator) error {
	nc.Clean()
	return validateStruct(validate, translator, nc)
}

func (jr *JoinRequest) Validate(validate *validator.Validate, translator ut.Translator) error {
	jr.Clean()
	return validateStruct(validate, translator, jr)
}

func (inv *Invitation) Validate(validate *validator.Validate, translator ut.Translator) error {
	inv.Clean()
	return validateStruct(validate, translator, inv)
}

func (ne *NewExam) Validate(validate *validator.Validate, translator ut.Translator) error {
	ne.Clean()
	return validateStruct(validate, translator, ne)
}

func validateStruct(validate *validator.Validate, translator ut.Translator, s interface{}) error {
	if err := validate.Struct(s); err != nil {
		if vErrs, ok := err.(validator.ValidationErrors); ok {
			return core.TranslateValidationErrors(vErrs, translator)
		}
		return err
	}
	return nil
}

// examStructValidation checks that an exam starts in the future and has no near-duplicate questions.
func examStructValidation(sl validator.StructLevel) {
	exam := sl.Current().Interface().(NewExam)

	if !exam.StartsAt.IsZero() && !exam.StartsAt.After(NowFunc()) {
		sl.ReportError(exam.StartsAt, "starts_at", "StartsAt", futureTag, "")
	}

	prompts := make([][]string, len(exam.Questions))
	for i, q := range exam.Questions {
		prompts[i] = strings.Split(strings.ToLower(q.Prompt), "")
	}
	for i := 1; i < len(prompts); i++ {
		for j := 0; j < i; j++ {
			if similarity(prompts[i], prompts[j]) >= questionMaxSim {
				sl.ReportError(exam.Questions[i].Prompt, "questions["+strconv.Itoa(i)+"].prompt", "Prompt", questionDupTag, "")
				break
			}
		}
	}
}

// questionStructValidation checks the options and answer of choice questions.
func questionStructValidation(sl validator.StructLevel) {
	q := sl.Current().Interface().(Question)
	if q.Kind != QuestionChoice {
		return
	}
	if len(q.Options) < 2 {
		sl.ReportError(q.Options, "options", "Options", choiceOptsTag, "")
		return
	}
	if q.Answer == "" {
		return
	}
	for _, opt := range q.Options {
		if opt == q.Answer {
			return
		}
	}
	sl.ReportError(q.Answer, "answer", "Answer", choiceAnswerTag, "")
}

func similarity(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	m := difflib.NewMatcher(a, b)
	if m.QuickRatio() < questionMaxSim {
		return m.QuickRatio()
	}
	return m.Ratio()
}
