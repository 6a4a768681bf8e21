package amocrm

import (
	"regexp"
	"strings"
)

var schemePrefix = regexp.MustCompile(`(?i)^https?://`)

// NormalizeBaseURL turns a configured account identifier into an https
// origin. It accepts "company", "company.amocrm.ru", "company.kommo.com" or a
// full URL; a value without a dot is a bare subdomain of defaultDomain.
func NormalizeBaseURL(raw, defaultDomain string) string {
	host := strings.TrimSpace(raw)
	host = schemePrefix.ReplaceAllString(host, "")
	host = strings.TrimRight(host, "/")
	if host == "" {
		return ""
	}
	if !strings.Contains(host, ".") {
		if defaultDomain == "" {
			defaultDomain = "amocrm.ru"
		}
		host = host + "." + defaultDomain
	}
	return "https://" + host
}
