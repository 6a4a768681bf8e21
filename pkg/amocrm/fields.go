package amocrm

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const (
	// fieldsPageSize is the largest page amoCRM serves for custom fields.
	fieldsPageSize = 250
	// maxFieldPages guards against a server that never returns a short page.
	maxFieldPages = 40
	// maxCookiesLength caps the raw cookie string sent as a tracking field.
	maxCookiesLength = 8000
)

// TrackingCookies is the tracking key carrying the raw cookie string.
const TrackingCookies = "cookies"

// CustomField is a lead-level custom field definition.
type CustomField struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Code string `json:"code,omitempty"`
	Type string `json:"type,omitempty"`
}

type customFieldsResponse struct {
	Embedded struct {
		CustomFields []CustomField `json:"custom_fields"`
	} `json:"_embedded"`
}

// trackingField lists where a tracking key may live in an account: first by
// field code, then by normalized field name.
type trackingField struct {
	key   string
	codes []string
	names []string
}

// trackingFields is ordered; when two keys resolve to the same field the
// earlier key wins.
var trackingFields = []trackingField{
	{key: "utm_source", codes: []string{"UTM_SOURCE"}, names: []string{"utm_source", "utm source"}},
	{key: "utm_medium", codes: []string{"UTM_MEDIUM"}, names: []string{"utm_medium", "utm medium"}},
	{key: "utm_campaign", codes: []string{"UTM_CAMPAIGN"}, names: []string{"utm_campaign", "utm campaign"}},
	{key: "utm_content", codes: []string{"UTM_CONTENT"}, names: []string{"utm_content", "utm content"}},
	{key: "utm_term", codes: []string{"UTM_TERM"}, names: []string{"utm_term", "utm term"}},
	{key: "utm_referrer", codes: []string{"UTM_REFERRER"}, names: []string{"utm_referrer", "utm referrer"}},
	{key: "roistat", codes: []string{"ROISTAT"}, names: []string{"roistat", "roistat visit"}},
	{key: "referrer", codes: []string{"REFERRER", "REFERER"}, names: []string{"referrer", "referer"}},
	{key: "openstat_service", codes: []string{"OPENSTAT_SERVICE"}, names: []string{"openstat_service", "openstat service"}},
	{key: "openstat_campaign", codes: []string{"OPENSTAT_CAMPAIGN"}, names: []string{"openstat_campaign", "openstat campaign"}},
	{key: "openstat_ad", codes: []string{"OPENSTAT_AD"}, names: []string{"openstat_ad", "openstat ad"}},
	{key: "openstat_source", codes: []string{"OPENSTAT_SOURCE"}, names: []string{"openstat_source", "openstat source"}},
	{key: "from", codes: []string{"FROM"}, names: []string{"from"}},
	{key: "gclientid", codes: []string{"GCLIENTID", "GA_CLIENT_ID"}, names: []string{"gclientid", "google client id", "ga client id"}},
	{key: "_ym_uid", codes: []string{"_YM_UID", "YM_UID"}, names: []string{"_ym_uid", "ym_uid", "yandex metrika uid"}},
	{key: "_ym_counter", codes: []string{"_YM_COUNTER", "YM_COUNTER"}, names: []string{"_ym_counter", "ym_counter", "yandex metrika counter"}},
	{key: "yclid", codes: []string{"YCLID"}, names: []string{"yclid"}},
	{key: "gclid", codes: []string{"GCLID"}, names: []string{"gclid"}},
	{key: "fbclid", codes: []string{"FBCLID"}, names: []string{"fbclid"}},
	{key: TrackingCookies, codes: []string{"COOKIES", "COOKIE"}, names: []string{"cookies", "cookie"}},
}

// TrackingKeys returns every tracking key the client can map, in priority order.
func TrackingKeys() []string {
	keys := make([]string, len(trackingFields))
	for i, tf := range trackingFields {
		keys[i] = tf.key
	}
	return keys
}

// FieldMatch is the field a tracking key resolves to.
type FieldMatch struct {
	Key   string
	Field CustomField
}

// MatchTrackingFields reports which account field each tracking key maps to.
// Keys without a field are omitted; a field is claimed by one key only.
func MatchTrackingFields(fields []CustomField) []FieldMatch {
	used := make(map[int64]bool)
	var matches []FieldMatch
	for _, tf := range trackingFields {
		field, ok := findField(fields, tf)
		if !ok || used[field.ID] {
			continue
		}
		used[field.ID] = true
		matches = append(matches, FieldMatch{Key: tf.key, Field: field})
	}
	return matches
}

// normalizeFieldName trims, case-folds and joins inner whitespace with '_'.
func normalizeFieldName(s string) string {
	return strings.Join(strings.Fields(fold(s)), "_")
}

func findField(fields []CustomField, tf trackingField) (CustomField, bool) {
	for _, code := range tf.codes {
		for _, f := range fields {
			if f.Code != "" && strings.EqualFold(strings.TrimSpace(f.Code), code) {
				return f, true
			}
		}
	}
	for _, name := range tf.names {
		want := normalizeFieldName(name)
		for _, f := range fields {
			if normalizeFieldName(f.Name) == want {
				return f, true
			}
		}
	}
	return CustomField{}, false
}

func (c *httpClient) LeadCustomFields(ctx context.Context) ([]CustomField, error) {
	if !c.IsConfigured() {
		return nil, eris.Wrap(ErrNotConfigured, "amocrm: lead custom fields")
	}
	return c.fields.Get(ctx, c.baseURL())
}

// fetchCustomFields walks the paginated field list until a short page.
func (c *httpClient) fetchCustomFields(ctx context.Context, baseURL string) ([]CustomField, error) {
	var all []CustomField
	for page := 1; page <= maxFieldPages; page++ {
		var resp customFieldsResponse
		path := fmt.Sprintf("/api/v4/leads/custom_fields?limit=%d&page=%d", fieldsPageSize, page)
		found, err := c.getJSON(ctx, baseURL, path, &resp)
		if err != nil {
			return nil, eris.Wrap(err, "amocrm: fetch custom fields")
		}
		if !found {
			break
		}
		all = append(all, resp.Embedded.CustomFields...)
		if len(resp.Embedded.CustomFields) < fieldsPageSize {
			break
		}
	}
	return all, nil
}

// trackingValues resolves tracking values into lead field values. Nothing
// here fails the submission: unknown keys and a failed field fetch are
// logged and dropped.
func (c *httpClient) trackingValues(ctx context.Context, tracking map[string]string) []customFieldValue {
	if len(tracking) == 0 {
		return nil
	}

	fields, err := c.LeadCustomFields(ctx)
	if err != nil {
		zap.L().Warn("amocrm: custom fields unavailable, sending lead without tracking fields", zap.Error(err))
		return nil
	}

	used := make(map[int64]bool)
	var values []customFieldValue
	for _, tf := range trackingFields {
		value := strings.TrimSpace(tracking[tf.key])
		if value == "" {
			continue
		}
		field, ok := findField(fields, tf)
		if !ok {
			zap.L().Warn("amocrm: no custom field for tracking key", zap.String("key", tf.key))
			continue
		}
		if used[field.ID] {
			zap.L().Debug("amocrm: custom field already used",
				zap.String("key", tf.key),
				zap.Int64("field_id", field.ID),
			)
			continue
		}
		used[field.ID] = true

		if tf.key == TrackingCookies {
			value = truncateRunes(value, maxCookiesLength, "")
		}
		values = append(values, customFieldValue{
			FieldID: field.ID,
			Values:  []fieldValue{{Value: value}},
		})
	}
	return values
}

// truncateRunes cuts s to limit runes and appends marker when it had to cut.
func truncateRunes(s string, limit int, marker string) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + marker
}
