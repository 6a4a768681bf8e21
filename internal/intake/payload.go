package intake

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-intake/internal/quiz"
)

// ErrMalformed is returned for a request body that does not match the
// payload schema.
var ErrMalformed = eris.New("intake: malformed payload")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Contact holds the contact fields both forms share.
type Contact struct {
	FullName string `json:"fullName" validate:"max=200"`
	Phone    string `json:"phone" validate:"max=64"`
	Email    string `json:"email" validate:"max=254"`
}

// PopupPayload is the body of the popup contact form.
type PopupPayload struct {
	Contact
	Category        string `json:"category" validate:"max=200"`
	Source          string `json:"source" validate:"max=200"`
	Landing         string `json:"landing" validate:"max=64"`
	TrackingCookies string `json:"trackingCookies" validate:"max=16384"`
}

// QuizPayload is the body of a completed quiz: contact fields plus answers
// under numeric keys "0".."31".
type QuizPayload struct {
	Contact
	ContactMethod   string `json:"contactMethod" validate:"max=200"`
	Landing         string `json:"landing" validate:"max=64"`
	TrackingCookies string `json:"trackingCookies" validate:"max=16384"`

	Answers quiz.Answers `json:"-" validate:"max=32,dive,keys,min=0,max=31,endkeys,max=1000"`
}

// UnmarshalJSON decodes the named fields and collects numeric keys as
// answers.
func (p *QuizPayload) UnmarshalJSON(data []byte) error {
	type named QuizPayload
	var fields named
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	answers, err := quiz.ParseAnswers(raw)
	if err != nil {
		return err
	}

	*p = QuizPayload(fields)
	p.Answers = answers
	return nil
}

// ContactMethodAnswer returns the preferred contact method, from the quiz
// step that asks for it or the explicit field.
func (p QuizPayload) ContactMethodAnswer() string {
	if v := p.Answers.Get(quiz.ContactMethodStep); v != "" {
		return v
	}
	return p.ContactMethod
}

// decodePayload reads a JSON object from r into v and validates it. Every
// failure wraps ErrMalformed.
func decodePayload(w http.ResponseWriter, r *http.Request, maxBytes int64, v any) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBytes))
	if err != nil {
		return eris.Wrapf(ErrMalformed, "intake: read body: %s", err)
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 || body[0] != '{' {
		return eris.Wrap(ErrMalformed, "intake: body is not a JSON object")
	}
	if err := json.Unmarshal(body, v); err != nil {
		return eris.Wrapf(ErrMalformed, "intake: decode: %s", err)
	}
	if err := validate.Struct(v); err != nil {
		return eris.Wrapf(ErrMalformed, "intake: validate: %s", err)
	}
	return nil
}
