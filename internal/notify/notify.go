// Package notify pushes a short lead summary to the sales chat. Delivery is
// best effort: it runs detached from the submitting request and its failures
// are logged and reported to a hook, never returned.
package notify

import (
	"context"
	"fmt"
	"html"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const (
	defaultTimeout = 10 * time.Second
	defaultSiteURL = "https://promo.metrika.ae/arab"
)

// Result is the coarse outcome of one notification.
type Result string

// Notification results.
const (
	ResultSent    Result = "sent"
	ResultFailed  Result = "failed"
	ResultSkipped Result = "skipped"
)

// Form identifies which landing form produced a lead.
type Form string

// Landing forms.
const (
	FormQuiz  Form = "quiz"
	FormPopup Form = "popup"
)

// Sender delivers HTML text to the chat. pkg/telegram.Client satisfies it.
type Sender interface {
	IsConfigured() bool
	SendHTML(ctx context.Context, text string) error
}

// Summary is the part of a submission worth a chat message.
type Summary struct {
	SubmissionID string
	Form         Form
	FullName     string
	Phone        string
	Email        string
	Category     string
	Tag          string
}

// Outcome reports how a dispatch ended.
type Outcome struct {
	SubmissionID string
	Result       Result
	Err          error
	Duration     time.Duration
}

// Hook observes every dispatch outcome.
type Hook func(Outcome)

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithSiteURL sets the landing link appended to every message.
func WithSiteURL(u string) Option {
	return func(d *Dispatcher) {
		if u = strings.TrimSpace(u); u != "" {
			d.siteURL = u
		}
	}
}

// WithTimeout bounds a single delivery attempt.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// WithHook registers an observer for dispatch outcomes.
func WithHook(h Hook) Option {
	return func(d *Dispatcher) {
		d.hook = h
	}
}

// Dispatcher runs notifications in the background.
type Dispatcher struct {
	sender  Sender
	siteURL string
	timeout time.Duration
	hook    Hook

	wg sync.WaitGroup
}

// New creates a Dispatcher. A nil or unconfigured sender makes every
// dispatch a no-op with outcome "skipped".
func New(sender Sender, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		sender:  sender,
		siteURL: defaultSiteURL,
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Task is a running dispatch. Callers normally drop it.
type Task struct {
	done    chan struct{}
	outcome Outcome
}

// Wait blocks until the dispatch ends and returns its outcome.
func (t *Task) Wait() Outcome {
	<-t.done
	return t.outcome
}

// Dispatch starts delivering s and returns immediately. Cancellation of ctx
// does not stop the delivery; only the dispatcher's own timeout does.
func (d *Dispatcher) Dispatch(ctx context.Context, s Summary) *Task {
	task := &Task{done: make(chan struct{})}

	if d.sender == nil || !d.sender.IsConfigured() {
		task.outcome = Outcome{SubmissionID: s.SubmissionID, Result: ResultSkipped}
		close(task.done)
		d.report(task.outcome)
		return task
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer cancel()

		task.outcome = d.deliver(ctx, s)
		close(task.done)
		d.report(task.outcome)
	}()
	return task
}

func (d *Dispatcher) deliver(ctx context.Context, s Summary) (out Outcome) {
	start := time.Now()
	out = Outcome{SubmissionID: s.SubmissionID, Result: ResultSent}

	defer func() {
		if r := recover(); r != nil {
			out.Result = ResultFailed
			out.Err = eris.Errorf("notify: panic: %v", r)
		}
		out.Duration = time.Since(start)
		if out.Err != nil {
			zap.L().Warn("notify: telegram notification failed",
				zap.String("submission_id", s.SubmissionID),
				zap.String("form", string(s.Form)),
				zap.Error(out.Err),
			)
		}
	}()

	if err := d.sender.SendHTML(ctx, FormatMessage(s, d.siteURL)); err != nil {
		out.Result = ResultFailed
		out.Err = err
	}
	return out
}

func (d *Dispatcher) report(out Outcome) {
	if d.hook == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("notify: hook panicked", zap.Any("panic", r))
		}
	}()
	d.hook(out)
}

// Wait blocks until every started dispatch finishes or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return eris.Wrap(ctx.Err(), "notify: drain")
	}
}

// FormatMessage renders the chat message for s. User-supplied text is
// HTML-escaped.
func FormatMessage(s Summary, siteURL string) string {
	label := "Попап"
	if s.Form == FormQuiz {
		label = "Квиз"
	}

	lines := []string{
		fmt.Sprintf("📥 <b>Новая заявка (%s)</b>", label),
		"",
		"Имя: " + html.EscapeString(s.FullName),
		"Телефон: " + html.EscapeString(s.Phone),
	}
	if email := strings.TrimSpace(s.Email); email != "" {
		lines = append(lines, "Email: "+html.EscapeString(email))
	}
	if category := strings.TrimSpace(s.Category); s.Form == FormPopup && category != "" {
		lines = append(lines, "Категория: "+html.EscapeString(category))
	}
	if tag := strings.TrimSpace(s.Tag); tag != "" {
		lines = append(lines, "Тег: "+html.EscapeString(tag))
	}
	if siteURL != "" {
		lines = append(lines, "🔗 "+html.EscapeString(siteURL))
	}
	return strings.Join(lines, "\n")
}
