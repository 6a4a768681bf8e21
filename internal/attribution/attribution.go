// Package attribution extracts marketing attribution signals (UTM tags, ad
// click ids, analytics ids) from an inbound request's referrer and cookies.
package attribution

import (
	"net/http"
	"net/url"
	"strings"
)

// Key names one attribution signal.
type Key string

// Attribution keys. The set is closed; Extract never produces anything else.
const (
	UTMSource        Key = "utm_source"
	UTMMedium        Key = "utm_medium"
	UTMCampaign      Key = "utm_campaign"
	UTMContent       Key = "utm_content"
	UTMTerm          Key = "utm_term"
	UTMReferrer      Key = "utm_referrer"
	Roistat          Key = "roistat"
	Referrer         Key = "referrer"
	OpenstatService  Key = "openstat_service"
	OpenstatCampaign Key = "openstat_campaign"
	OpenstatAd       Key = "openstat_ad"
	OpenstatSource   Key = "openstat_source"
	From             Key = "from"
	GClientID        Key = "gclientid"
	YMUID            Key = "_ym_uid"
	YMCounter        Key = "_ym_counter"
	YCLID            Key = "yclid"
	GCLID            Key = "gclid"
	FBCLID           Key = "fbclid"
)

// Keys lists every attribution key in a stable order.
var Keys = []Key{
	UTMSource, UTMMedium, UTMCampaign, UTMContent, UTMTerm, UTMReferrer,
	Roistat, Referrer,
	OpenstatService, OpenstatCampaign, OpenstatAd, OpenstatSource,
	From, GClientID, YMUID, YMCounter, YCLID, GCLID, FBCLID,
}

// Data maps resolved keys to values. Unresolved keys are absent.
type Data map[Key]string

// Get returns the value for k and whether it was resolved.
func (d Data) Get(k Key) (string, bool) {
	v, ok := d[k]
	return v, ok
}

// Strings returns a copy keyed by plain strings, ready for the CRM layer.
func (d Data) Strings() map[string]string {
	out := make(map[string]string, len(d))
	for k, v := range d {
		out[string(k)] = v
	}
	return out
}

// Source is the raw request material attribution is extracted from.
type Source struct {
	// Referrer is the Referer header of the submission request.
	Referrer string
	// CookieHeader is the Cookie header of the submission request.
	CookieHeader string
	// CookieOverride is a client supplied document.cookie string. When
	// non-blank it replaces CookieHeader.
	CookieOverride string
}

// FromRequest builds a Source from r and extracts attribution from it.
func FromRequest(r *http.Request, cookieOverride string) Data {
	return Extract(SourceFromRequest(r, cookieOverride))
}

// SourceFromRequest collects the headers Extract needs from r.
func SourceFromRequest(r *http.Request, cookieOverride string) Source {
	return Source{
		Referrer:       r.Header.Get("Referer"),
		CookieHeader:   strings.Join(r.Header.Values("Cookie"), "; "),
		CookieOverride: cookieOverride,
	}
}

// RawCookies returns the cookie string Extract reads from.
func RawCookies(src Source) string {
	if strings.TrimSpace(src.CookieOverride) != "" {
		return strings.TrimSpace(src.CookieOverride)
	}
	return strings.TrimSpace(src.CookieHeader)
}

// standardKeys resolve from a same-named query parameter, then cookie.
var standardKeys = []Key{
	UTMSource, UTMMedium, UTMCampaign, UTMContent, UTMTerm, UTMReferrer,
	Roistat, From, YMUID, YMCounter, YCLID,
}

// Extract resolves every attribution key from src. It never fails: anything
// malformed simply leaves the affected keys absent.
func Extract(src Source) Data {
	query := referrerQuery(src.Referrer)
	cookies := parseCookies(RawCookies(src))

	explicit := func(k Key) string {
		return firstClean(query.get(string(k)), cookies.get(string(k)))
	}

	data := Data{}
	set := func(k Key, v string) {
		if v = clean(v); v != "" {
			data[k] = v
		}
	}

	for _, k := range standardKeys {
		set(k, explicit(k))
	}

	set(Referrer, firstClean(explicit(Referrer), sanitizeReferrer(src.Referrer)))

	token := firstClean(query.raw("openstat"), cookies.raw("_openstat"), cookies.raw("openstat"))
	parts := splitOpenstat(token)
	for i, k := range []Key{OpenstatService, OpenstatCampaign, OpenstatAd, OpenstatSource} {
		set(k, firstClean(explicit(k), parts[i]))
	}

	set(GClientID, firstClean(explicit(GClientID), clientIDFromGA(cookies.get("_ga"))))
	set(GCLID, firstClean(explicit(GCLID),
		lastSegment(cookies.get("_gcl_aw")),
		lastSegment(cookies.get("_gcl_dc")),
	))
	set(FBCLID, firstClean(explicit(FBCLID), lastSegment(cookies.get("_fbc"))))

	return data
}

// referrerQuery parses the query string of the referrer URL.
func referrerQuery(referrer string) queryValues {
	referrer = strings.TrimSpace(referrer)
	if referrer == "" {
		return queryValues{}
	}
	u, err := url.Parse(referrer)
	if err != nil {
		return queryValues{}
	}
	return parseQuery(u.RawQuery)
}

// sanitizeReferrer keeps scheme, host and path of an absolute referrer.
func sanitizeReferrer(referrer string) string {
	u, err := url.Parse(strings.TrimSpace(referrer))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host + u.Path
}

// clientIDFromGA turns GA1.2.<id>.<ts> into <id>.<ts>.
func clientIDFromGA(ga string) string {
	parts := strings.Split(strings.TrimSpace(ga), ".")
	if len(parts) < 4 {
		return ""
	}
	return strings.Join(parts[len(parts)-2:], ".")
}

// lastSegment returns the trailing dot-separated segment of v.
func lastSegment(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	return v[strings.LastIndex(v, ".")+1:]
}

// clean trims v and maps the "-" placeholder to empty.
func clean(v string) string {
	v = strings.TrimSpace(v)
	if v == "-" {
		return ""
	}
	return v
}

func firstClean(values ...string) string {
	for _, v := range values {
		if c := clean(v); c != "" {
			return c
		}
	}
	return ""
}
