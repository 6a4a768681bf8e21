package intake

import (
	"net/http"
	"strings"

	"github.com/nyaruka/phonenumbers"

	"github.com/sells-group/lead-intake/internal/attribution"
)

const (
	// maxCookieNoteValue caps each cookie value listed in a lead note.
	maxCookieNoteValue = 180

	unknownName      = "Unknown"
	phoneNotProvided = "Not provided"
)

// Origin is what a submission carries besides its payload: attribution
// material and a description of the request for the CRM note.
type Origin struct {
	Attribution attribution.Source
	ContextNote string
}

// OriginFromRequest captures the origin of r. A non-blank cookieOverride
// (the page's document.cookie) replaces the Cookie header for attribution.
func OriginFromRequest(r *http.Request, cookieOverride string) Origin {
	return Origin{
		Attribution: attribution.SourceFromRequest(r, cookieOverride),
		ContextNote: RequestContextNote(r),
	}
}

// RequestContextNote describes r for support staff reading the lead in the
// CRM: selected headers and every cookie, one per line.
func RequestContextNote(r *http.Request) string {
	header := func(name string) string {
		if v := strings.TrimSpace(r.Header.Get(name)); v != "" {
			return v
		}
		return "-"
	}

	lines := []string{
		"Request context:",
		"Referer: " + header("Referer"),
		"User-Agent: " + header("User-Agent"),
		"X-Forwarded-For: " + header("X-Forwarded-For"),
		"X-Real-IP: " + header("X-Real-IP"),
		"Cookies:",
	}

	cookies := r.Cookies()
	if len(cookies) == 0 {
		lines = append(lines, "-")
	}
	for _, c := range cookies {
		lines = append(lines, c.Name+"="+truncate(c.Value, maxCookieNoteValue))
	}
	return strings.Join(lines, "\n")
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "..."
}

// normalizePhone returns a valid number in E.164 form; anything else is
// returned trimmed, as typed. A blank phone becomes the placeholder.
func normalizePhone(raw, region string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return phoneNotProvided
	}
	num, err := phonenumbers.Parse(raw, region)
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return raw
	}
	return phonenumbers.Format(num, phonenumbers.E164)
}

// displayName trims name, falling back to the placeholder.
func displayName(name string) string {
	if name = strings.Join(strings.Fields(name), " "); name != "" {
		return name
	}
	return unknownName
}
