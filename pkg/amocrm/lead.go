package amocrm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const (
	// maxNoteLength is the longest note text sent before truncation.
	maxNoteLength = 12000
	noteTruncated = "\n…[truncated]"

	unknownName = "Unknown"
)

// Lead is a lead to create, with its single contact.
type Lead struct {
	Name    string
	Contact Contact
	// Tracking maps tracking keys (see TrackingKeys) to values.
	Tracking map[string]string
	Tags     []string
	// Note is attached to the created lead when non-blank.
	Note string
}

// Contact is the person behind a lead.
type Contact struct {
	FullName string
	Phone    string
	Email    string
}

// SubmitResult describes a created lead.
type SubmitResult struct {
	// LeadID is zero when the create response carried no id and no note
	// was requested.
	LeadID         int64
	TrackingFields int
	NoteAdded      bool
}

type fieldValue struct {
	Value    string `json:"value"`
	EnumCode string `json:"enum_code,omitempty"`
}

type customFieldValue struct {
	FieldID   int64        `json:"field_id,omitempty"`
	FieldCode string       `json:"field_code,omitempty"`
	Values    []fieldValue `json:"values"`
}

type tagRef struct {
	Name string `json:"name"`
}

type complexContact struct {
	Name               string             `json:"name"`
	FirstName          string             `json:"first_name"`
	LastName           string             `json:"last_name"`
	CustomFieldsValues []customFieldValue `json:"custom_fields_values,omitempty"`
}

type complexLead struct {
	Name               string             `json:"name"`
	PipelineID         int64              `json:"pipeline_id"`
	StatusID           int64              `json:"status_id"`
	CustomFieldsValues []customFieldValue `json:"custom_fields_values,omitempty"`
	TagsToAdd          []tagRef           `json:"tags_to_add,omitempty"`
	Embedded           struct {
		Contacts []complexContact `json:"contacts"`
	} `json:"_embedded"`
}

type noteParams struct {
	Text string `json:"text"`
}

type note struct {
	NoteType string     `json:"note_type"`
	Params   noteParams `json:"params"`
}

func (c *httpClient) SubmitLead(ctx context.Context, lead Lead) (*SubmitResult, error) {
	if !c.IsConfigured() {
		return nil, eris.Wrap(ErrNotConfigured, "amocrm: submit lead")
	}
	baseURL := c.baseURL()

	tax, err := c.ResolveTaxonomy(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "amocrm: submit lead")
	}

	payload := buildComplexLead(lead, tax, c.trackingValues(ctx, lead.Tracking))

	body, status, err := c.do(ctx, http.MethodPost, baseURL, "/api/v4/leads/complex", []complexLead{payload})
	if err != nil {
		return nil, eris.Wrap(err, "amocrm: create lead")
	}
	if !successful(status) {
		return nil, eris.Wrap(newAPIError(http.MethodPost, "/api/v4/leads/complex", status, body), "amocrm: create lead")
	}

	result := &SubmitResult{TrackingFields: len(payload.CustomFieldsValues)}
	leadID, found := extractLeadID(body)
	if found {
		result.LeadID = leadID
	}

	text := strings.TrimSpace(lead.Note)
	if text == "" {
		return result, nil
	}
	if !found {
		return result, eris.Wrap(ErrLeadIDNotFound, "amocrm: add note")
	}
	if err := c.addNote(ctx, baseURL, leadID, text); err != nil {
		return result, err
	}
	result.NoteAdded = true

	zap.L().Debug("amocrm: lead created",
		zap.Int64("lead_id", leadID),
		zap.Int("tracking_fields", result.TrackingFields),
	)
	return result, nil
}

func buildComplexLead(lead Lead, tax Taxonomy, tracking []customFieldValue) complexLead {
	first, last := SplitFullName(lead.Contact.FullName)
	contactName := strings.TrimSpace(lead.Contact.FullName)
	if contactName == "" {
		contactName = unknownName
	}

	var contactFields []customFieldValue
	if phone := strings.TrimSpace(lead.Contact.Phone); phone != "" {
		contactFields = append(contactFields, customFieldValue{
			FieldCode: "PHONE",
			Values:    []fieldValue{{Value: phone, EnumCode: "MOB"}},
		})
	}
	if email := strings.TrimSpace(lead.Contact.Email); email != "" {
		contactFields = append(contactFields, customFieldValue{
			FieldCode: "EMAIL",
			Values:    []fieldValue{{Value: email, EnumCode: "WORK"}},
		})
	}

	out := complexLead{
		Name:               lead.Name,
		PipelineID:         tax.PipelineID,
		StatusID:           tax.StatusID,
		CustomFieldsValues: tracking,
		TagsToAdd:          normalizeTags(lead.Tags),
	}
	out.Embedded.Contacts = []complexContact{{
		Name:               contactName,
		FirstName:          first,
		LastName:           last,
		CustomFieldsValues: contactFields,
	}}
	return out
}

// SplitFullName returns the first whitespace-delimited token as the first
// name and the rest as the last name. A blank name yields "Unknown".
func SplitFullName(fullName string) (first, last string) {
	parts := strings.Fields(fullName)
	if len(parts) == 0 {
		return unknownName, ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}

// normalizeTags trims, drops empty and de-duplicates tags, keeping order.
func normalizeTags(tags []string) []tagRef {
	seen := make(map[string]bool, len(tags))
	var out []tagRef
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, tagRef{Name: t})
	}
	return out
}

// extractLeadID finds the created lead id in a complex create response. It
// checks a top-level id, then _embedded.leads, then leads; an array response
// is searched element by element.
func extractLeadID(body []byte) (int64, bool) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return 0, false
	}
	return leadIDFrom(v)
}

func leadIDFrom(v any) (int64, bool) {
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			if id, ok := leadIDFrom(item); ok {
				return id, true
			}
		}
	case map[string]any:
		if id, ok := numericID(t["id"]); ok {
			return id, true
		}
		if embedded, ok := t["_embedded"].(map[string]any); ok {
			if id, ok := firstIDIn(embedded["leads"]); ok {
				return id, true
			}
		}
		if id, ok := firstIDIn(t["leads"]); ok {
			return id, true
		}
	}
	return 0, false
}

func firstIDIn(v any) (int64, bool) {
	list, ok := v.([]any)
	if !ok {
		return 0, false
	}
	for _, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if id, ok := numericID(obj["id"]); ok {
			return id, true
		}
	}
	return 0, false
}

func numericID(v any) (int64, bool) {
	n, ok := v.(json.Number)
	if !ok {
		return 0, false
	}
	id, err := n.Int64()
	if err != nil {
		return 0, false
	}
	return id, true
}

// addNote attaches a common note to the lead.
func (c *httpClient) addNote(ctx context.Context, baseURL string, leadID int64, text string) error {
	text = truncateRunes(text, maxNoteLength, noteTruncated)
	path := fmt.Sprintf("/api/v4/leads/%d/notes", leadID)

	body, status, err := c.do(ctx, http.MethodPost, baseURL, path, []note{{
		NoteType: "common",
		Params:   noteParams{Text: text},
	}})
	if err != nil {
		return eris.Wrap(err, "amocrm: add note")
	}
	if !successful(status) {
		return eris.Wrap(newAPIError(http.MethodPost, path, status, body), "amocrm: add note")
	}
	return nil
}
