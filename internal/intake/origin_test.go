package intake

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-intake/internal/quiz"
)

func TestRequestContextNote(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodPost, "/api/submit-lead", nil)
	req.Header.Set("Referer", "https://promo.metrika.ae/arab?utm_source=google")
	req.Header.Set("User-Agent", "Mozilla/5.0")
	req.Header.Set("X-Real-IP", "203.0.113.7")
	req.Header.Set("Cookie", "_ym_uid=123; long="+strings.Repeat("x", 200))

	note := RequestContextNote(req)
	assert.Equal(t, "Request context:\n"+
		"Referer: https://promo.metrika.ae/arab?utm_source=google\n"+
		"User-Agent: Mozilla/5.0\n"+
		"X-Forwarded-For: -\n"+
		"X-Real-IP: 203.0.113.7\n"+
		"Cookies:\n"+
		"_ym_uid=123\n"+
		"long="+strings.Repeat("x", 180)+"...", note)
}

func TestRequestContextNote_Empty(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	note := RequestContextNote(req)
	assert.Contains(t, note, "Referer: -\n")
	assert.Contains(t, note, "User-Agent: -\n")
	assert.True(t, strings.HasSuffix(note, "Cookies:\n-"))
}

func TestOriginFromRequest(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Referer", "https://example.com/villas/fr")
	req.Header.Set("Cookie", "a=1")

	origin := OriginFromRequest(req, "b=2")
	assert.Equal(t, "https://example.com/villas/fr", origin.Attribution.Referrer)
	assert.Equal(t, "a=1", origin.Attribution.CookieHeader)
	assert.Equal(t, "b=2", origin.Attribution.CookieOverride)
	assert.Contains(t, origin.ContextNote, "a=1")
}

func TestNormalizePhone(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw, region, want string
	}{
		{"+971501234567", "AE", "+971501234567"},
		{" 050 123 4567 ", "AE", "+971501234567"},
		{"+33 6 12 34 56 78", "AE", "+33612345678"},
		{"12345", "AE", "12345"},
		{"call me", "AE", "call me"},
		{"", "AE", "Not provided"},
		{"   ", "AE", "Not provided"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizePhone(tt.raw, tt.region), tt.raw)
	}
}

func TestDisplayName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Ali Hassan", displayName("  Ali   Hassan "))
	assert.Equal(t, "Unknown", displayName(""))
	assert.Equal(t, "Unknown", displayName("\t"))
}

func TestQuizPayload_UnmarshalJSON(t *testing.T) {
	t.Parallel()

	var p QuizPayload
	require.NoError(t, json.Unmarshal([]byte(`{
		"fullName": "Sara",
		"phone": "+971501234567",
		"email": "sara@example.com",
		"trackingCookies": "a=1",
		"contactMethod": "Email",
		"0": "Studio",
		"3": "Ready"
	}`), &p))

	assert.Equal(t, "Sara", p.FullName)
	assert.Equal(t, "sara@example.com", p.Email)
	assert.Equal(t, "a=1", p.TrackingCookies)
	assert.Equal(t, quiz.Answers{0: "Studio", 3: "Ready"}, p.Answers)
	assert.Equal(t, "Email", p.ContactMethodAnswer())

	p.Answers[quiz.ContactMethodStep] = "WhatsApp"
	assert.Equal(t, "WhatsApp", p.ContactMethodAnswer())
}

func TestDecodePayload_Validation(t *testing.T) {
	t.Parallel()

	decode := func(body string, v any) error {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		return decodePayload(httptest.NewRecorder(), req, defaultMaxBodyBytes, v)
	}

	var popup PopupPayload
	require.NoError(t, decode(`{"fullName":"Ali","category":"Apartments","source":"popup","landing":"arab"}`, &popup))
	assert.Equal(t, "arab", popup.Landing)

	err := decode(`{"email":"`+strings.Repeat("e", 255)+`"}`, &PopupPayload{})
	require.Error(t, err)
	assert.ErrorContains(t, err, "malformed payload")

	answers := make([]string, 0, quiz.MaxStep+1)
	for i := 0; i <= quiz.MaxStep; i++ {
		answers = append(answers, `"`+strconv.Itoa(i)+`":"a"`)
	}
	var full QuizPayload
	require.NoError(t, decode(`{`+strings.Join(answers, ",")+`}`, &full))
	assert.Len(t, full.Answers, quiz.MaxStep+1)
}
