package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	configured bool
	err        error
	panicMsg   string
	block      chan struct{}

	mu    sync.Mutex
	texts []string
	ctxs  []context.Context
}

func (f *fakeSender) IsConfigured() bool { return f.configured }

func (f *fakeSender) SendHTML(ctx context.Context, text string) error {
	f.mu.Lock()
	f.texts = append(f.texts, text)
	f.ctxs = append(f.ctxs, ctx)
	f.mu.Unlock()

	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	return f.err
}

func (f *fakeSender) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

type hookRecorder struct {
	mu       sync.Mutex
	outcomes []Outcome
}

func (h *hookRecorder) hook(o Outcome) {
	h.mu.Lock()
	h.outcomes = append(h.outcomes, o)
	h.mu.Unlock()
}

func (h *hookRecorder) results() []Result {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []Result
	for _, o := range h.outcomes {
		out = append(out, o.Result)
	}
	return out
}

func TestDispatch_Sent(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{configured: true}
	rec := &hookRecorder{}
	d := New(sender, WithHook(rec.hook), WithSiteURL("https://example.com/arab"))

	out := d.Dispatch(context.Background(), Summary{
		SubmissionID: "sub-1",
		Form:         FormPopup,
		FullName:     "Ali Hassan",
		Phone:        "+971501234567",
		Category:     "Apartments",
		Tag:          "Arab",
	}).Wait()

	assert.Equal(t, ResultSent, out.Result)
	assert.NoError(t, out.Err)
	assert.Equal(t, "sub-1", out.SubmissionID)

	texts := sender.sent()
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "Ali Hassan")
	assert.Contains(t, texts[0], "Категория: Apartments")
	assert.Contains(t, texts[0], "https://example.com/arab")

	require.NoError(t, d.Wait(context.Background()))
	assert.Equal(t, []Result{ResultSent}, rec.results())
}

func TestDispatch_FailureIsSwallowed(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{configured: true, err: errors.New("telegram: send message: Bad Request")}
	rec := &hookRecorder{}
	d := New(sender, WithHook(rec.hook))

	out := d.Dispatch(context.Background(), Summary{Form: FormQuiz}).Wait()
	assert.Equal(t, ResultFailed, out.Result)
	require.Error(t, out.Err)
	assert.Contains(t, out.Err.Error(), "Bad Request")

	require.NoError(t, d.Wait(context.Background()))
	assert.Equal(t, []Result{ResultFailed}, rec.results())
}

func TestDispatch_PanicIsContained(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{configured: true, panicMsg: "boom"}
	d := New(sender)

	out := d.Dispatch(context.Background(), Summary{Form: FormQuiz}).Wait()
	assert.Equal(t, ResultFailed, out.Result)
	require.Error(t, out.Err)
	assert.Contains(t, out.Err.Error(), "boom")
}

func TestDispatch_Unconfigured(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{configured: false}
	rec := &hookRecorder{}
	d := New(sender, WithHook(rec.hook))

	out := d.Dispatch(context.Background(), Summary{Form: FormQuiz}).Wait()
	assert.Equal(t, ResultSkipped, out.Result)
	assert.Empty(t, sender.sent())
	assert.Equal(t, []Result{ResultSkipped}, rec.results())

	// A nil sender behaves the same way.
	out = New(nil).Dispatch(context.Background(), Summary{}).Wait()
	assert.Equal(t, ResultSkipped, out.Result)
}

func TestDispatch_DetachedFromCallerContext(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{configured: true, block: make(chan struct{})}
	d := New(sender)

	ctx, cancel := context.WithCancel(context.Background())
	task := d.Dispatch(ctx, Summary{Form: FormPopup})
	cancel()

	select {
	case <-task.done:
		t.Fatal("dispatch ended with the caller's context")
	case <-time.After(30 * time.Millisecond):
	}

	close(sender.block)
	assert.Equal(t, ResultSent, task.Wait().Result)
}

func TestDispatch_Timeout(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{configured: true, block: make(chan struct{})}
	d := New(sender, WithTimeout(20*time.Millisecond))

	out := d.Dispatch(context.Background(), Summary{Form: FormPopup}).Wait()
	assert.Equal(t, ResultFailed, out.Result)
	assert.ErrorIs(t, out.Err, context.DeadlineExceeded)
}

func TestDispatcherWait_Deadline(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{configured: true, block: make(chan struct{})}
	d := New(sender, WithTimeout(time.Minute))
	d.Dispatch(context.Background(), Summary{Form: FormQuiz})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := d.Wait(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notify: drain")

	close(sender.block)
	require.NoError(t, d.Wait(context.Background()))
}

func TestHookPanicIsContained(t *testing.T) {
	t.Parallel()

	d := New(&fakeSender{configured: true}, WithHook(func(Outcome) { panic("hook") }))
	out := d.Dispatch(context.Background(), Summary{}).Wait()
	assert.Equal(t, ResultSent, out.Result)
	require.NoError(t, d.Wait(context.Background()))
}

func TestFormatMessage(t *testing.T) {
	t.Parallel()

	t.Run("popup", func(t *testing.T) {
		msg := FormatMessage(Summary{
			Form:     FormPopup,
			FullName: "<script>alert(1)</script>",
			Phone:    "+971 50 & co",
			Category: "Villas FR",
			Tag:      "France",
		}, "https://promo.metrika.ae/arab")

		assert.Equal(t, "📥 <b>Новая заявка (Попап)</b>\n"+
			"\n"+
			"Имя: &lt;script&gt;alert(1)&lt;/script&gt;\n"+
			"Телефон: +971 50 &amp; co\n"+
			"Категория: Villas FR\n"+
			"Тег: France\n"+
			"🔗 https://promo.metrika.ae/arab", msg)
	})

	t.Run("quiz omits category", func(t *testing.T) {
		msg := FormatMessage(Summary{
			Form:     FormQuiz,
			FullName: "Ali",
			Phone:    "Not provided",
			Email:    "ali@example.com",
			Category: "ignored",
		}, "")

		assert.Contains(t, msg, "(Квиз)")
		assert.Contains(t, msg, "Email: ali@example.com")
		assert.NotContains(t, msg, "Категория")
		assert.NotContains(t, msg, "🔗")
	})
}
