package attribution

import (
	"net/url"
	"strings"
)

// cookieJar is a leniently parsed cookie string. The first occurrence of a
// name wins.
type cookieJar map[string]string

// parseCookies splits a Cookie header or document.cookie string. Pairs
// without a name are skipped instead of failing the whole string.
func parseCookies(header string) cookieJar {
	jar := cookieJar{}
	for _, pair := range strings.Split(header, ";") {
		name, value, _ := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, seen := jar[name]; seen {
			continue
		}
		jar[name] = strings.Trim(strings.TrimSpace(value), `"`)
	}
	return jar
}

// raw returns the cookie value as sent.
func (j cookieJar) raw(name string) string {
	return j[name]
}

// get returns the cookie value URL-decoded once, or as sent when it is not
// valid percent-encoding.
func (j cookieJar) get(name string) string {
	v, ok := j[name]
	if !ok {
		return ""
	}
	if decoded, err := url.QueryUnescape(v); err == nil {
		return decoded
	}
	return v
}

// queryValues is a leniently parsed query string holding raw values. Unlike
// url.ParseQuery it keeps pairs containing ';', which openstat tokens do.
type queryValues map[string]string

func parseQuery(rawQuery string) queryValues {
	q := queryValues{}
	for _, pair := range strings.Split(rawQuery, "&") {
		name, value, _ := strings.Cut(pair, "=")
		if decoded, err := url.QueryUnescape(name); err == nil {
			name = decoded
		}
		if name == "" {
			continue
		}
		if _, seen := q[name]; seen {
			continue
		}
		q[name] = value
	}
	return q
}

// raw returns the parameter value as it appeared in the URL.
func (q queryValues) raw(name string) string {
	return q[name]
}

// get returns the parameter value URL-decoded once.
func (q queryValues) get(name string) string {
	v := q[name]
	if decoded, err := url.QueryUnescape(v); err == nil {
		return decoded
	}
	return v
}
