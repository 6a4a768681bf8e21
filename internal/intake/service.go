// Package intake turns landing page form submissions into CRM leads and
// chat notifications.
package intake

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/lead-intake/internal/attribution"
	"github.com/sells-group/lead-intake/internal/leadtag"
	"github.com/sells-group/lead-intake/internal/notify"
	"github.com/sells-group/lead-intake/internal/quiz"
	"github.com/sells-group/lead-intake/pkg/amocrm"
)

// Submission outcomes, as counted by a Recorder.
const (
	OutcomeSynced      = "synced"
	OutcomeCRMDisabled = "crm_disabled"
	OutcomeSyncFailed  = "sync_failed"
	OutcomeMalformed   = "malformed"
)

const defaultPhoneRegion = "AE"

// Notifier starts a best-effort notification. notify.Dispatcher satisfies it.
type Notifier interface {
	Dispatch(ctx context.Context, s notify.Summary) *notify.Task
}

// Recorder counts submissions. metrics.Metrics satisfies it.
type Recorder interface {
	RecordSubmission(form, outcome string)
	RecordCRMSync(success bool)
}

type nopRecorder struct{}

func (nopRecorder) RecordSubmission(string, string) {}
func (nopRecorder) RecordCRMSync(bool)              {}

// Option configures a Service.
type Option func(*Service)

// WithCatalog sets the quiz step titles used in notes.
func WithCatalog(catalog quiz.Catalog) Option {
	return func(s *Service) {
		if catalog.Default != nil || len(catalog.Landings) > 0 {
			s.catalog = catalog
		}
	}
}

// WithPhoneRegion sets the region assumed for phones without a country code.
func WithPhoneRegion(region string) Option {
	return func(s *Service) {
		if region = strings.ToUpper(strings.TrimSpace(region)); region != "" {
			s.region = region
		}
	}
}

// WithRecorder sets the submission counter.
func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithIDGenerator sets the submission id source (for testing).
func WithIDGenerator(gen func() string) Option {
	return func(s *Service) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// Service orchestrates one submission: attribution, tag, notification and
// CRM sync.
type Service struct {
	crm      amocrm.Client
	notifier Notifier
	recorder Recorder
	catalog  quiz.Catalog
	region   string
	newID    func() string
}

// NewService creates a Service. A nil crm disables CRM sync; a nil notifier
// disables notifications.
func NewService(crm amocrm.Client, notifier Notifier, opts ...Option) *Service {
	s := &Service{
		crm:      crm,
		notifier: notifier,
		recorder: nopRecorder{},
		catalog:  quiz.DefaultCatalog(),
		region:   defaultPhoneRegion,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Result is how a submission ended.
type Result struct {
	SubmissionID string
	Tag          leadtag.Tag
	// Synced is true when the CRM accepted the lead and its note, or when
	// CRM sync is disabled.
	Synced     bool
	CRMEnabled bool
	LeadID     int64
	Err        error
}

// submission is a normalized form submission, ready for the integrations.
type submission struct {
	id       string
	form     notify.Form
	name     string
	phone    string
	email    string
	category string
	leadName string
	tag      leadtag.Tag
	details  []string
	origin   Origin
}

// SubmitQuiz processes a completed quiz.
func (s *Service) SubmitQuiz(ctx context.Context, p QuizPayload, origin Origin) Result {
	name := displayName(p.FullName)
	tag := leadtag.Resolve(leadtag.Input{
		Referrer: origin.Attribution.Referrer,
		Landing:  p.Landing,
	})

	details := []string{"Quiz answers:"}
	if lines := p.Answers.Lines(s.catalog.For(string(tag))); len(lines) > 0 {
		details = append(details, lines...)
	} else {
		details = append(details, "-")
	}
	if p.Answers.Get(quiz.ContactMethodStep) == "" && strings.TrimSpace(p.ContactMethod) != "" {
		details = append(details, "Contact method: "+strings.TrimSpace(p.ContactMethod))
	}

	return s.submit(ctx, submission{
		form:     notify.FormQuiz,
		name:     name,
		phone:    p.Phone,
		email:    p.Email,
		leadName: "Quiz Lead - " + name,
		tag:      tag,
		details:  details,
		origin:   origin,
	})
}

// SubmitPopup processes a popup form.
func (s *Service) SubmitPopup(ctx context.Context, p PopupPayload, origin Origin) Result {
	name := displayName(p.FullName)
	category := strings.TrimSpace(p.Category)
	source := strings.TrimSpace(p.Source)

	tag := leadtag.Resolve(leadtag.Input{
		Referrer: origin.Attribution.Referrer,
		Landing:  p.Landing,
		Source:   source,
		Category: category,
	})

	leadName := "Popup - " + name
	if category != "" {
		leadName = category + " - " + name
	}

	details := []string{"Popup form:"}
	if category != "" {
		details = append(details, "Category: "+category)
	}
	if source != "" {
		details = append(details, "Source: "+source)
	}

	return s.submit(ctx, submission{
		form:     notify.FormPopup,
		name:     name,
		phone:    p.Phone,
		email:    p.Email,
		category: category,
		leadName: leadName,
		tag:      tag,
		details:  details,
		origin:   origin,
	})
}

func (s *Service) submit(ctx context.Context, sub submission) Result {
	sub.id = s.newID()
	sub.phone = normalizePhone(sub.phone, s.region)
	sub.email = strings.TrimSpace(sub.email)

	tracking := attribution.Extract(sub.origin.Attribution)
	tag := sub.tag

	log := zap.L().With(
		zap.String("submission_id", sub.id),
		zap.String("form", string(sub.form)),
		zap.String("tag", string(tag)),
	)

	if s.notifier != nil {
		s.notifier.Dispatch(ctx, notify.Summary{
			SubmissionID: sub.id,
			Form:         sub.form,
			FullName:     sub.name,
			Phone:        sub.phone,
			Email:        sub.email,
			Category:     sub.category,
			Tag:          string(tag),
		})
	}

	res := Result{SubmissionID: sub.id, Tag: tag, Synced: true}
	if s.crm == nil || !s.crm.IsConfigured() {
		s.recorder.RecordSubmission(string(sub.form), OutcomeCRMDisabled)
		log.Info("intake: submission received, crm sync disabled",
			zap.Int("tracking_keys", len(tracking)),
		)
		return res
	}
	res.CRMEnabled = true

	lead := amocrm.Lead{
		Name: sub.leadName,
		Contact: amocrm.Contact{
			FullName: sub.name,
			Phone:    sub.phone,
			Email:    sub.email,
		},
		Tracking: trackingValues(tracking, sub.origin.Attribution),
		Tags:     []string{string(tag), formTag(sub.form)},
		Note:     s.note(sub, tag),
	}

	created, err := s.crm.SubmitLead(ctx, lead)
	if created != nil {
		res.LeadID = created.LeadID
	}
	s.recorder.RecordCRMSync(err == nil)
	if err != nil {
		res.Synced = false
		res.Err = err
		s.recorder.RecordSubmission(string(sub.form), OutcomeSyncFailed)
		log.Error("intake: crm sync failed", zap.Int64("lead_id", res.LeadID), zap.Error(err))
		return res
	}

	s.recorder.RecordSubmission(string(sub.form), OutcomeSynced)
	log.Info("intake: submission synced",
		zap.Int64("lead_id", res.LeadID),
		zap.Int("tracking_fields", created.TrackingFields),
	)
	return res
}

// trackingValues adds the raw cookie string to the extracted attribution.
func trackingValues(data attribution.Data, src attribution.Source) map[string]string {
	values := data.Strings()
	if raw := attribution.RawCookies(src); raw != "" {
		values[amocrm.TrackingCookies] = raw
	}
	return values
}

func formTag(form notify.Form) string {
	if form == notify.FormQuiz {
		return "Quiz"
	}
	return "Popup"
}

// note renders the CRM note: form details, then the request context.
func (s *Service) note(sub submission, tag leadtag.Tag) string {
	lines := append([]string(nil), sub.details...)
	lines = append(lines,
		"",
		"Tag: "+string(tag),
		"Submission: "+sub.id,
	)
	if ctxNote := strings.TrimSpace(sub.origin.ContextNote); ctxNote != "" {
		lines = append(lines, "", ctxNote)
	}
	return strings.Join(lines, "\n")
}
