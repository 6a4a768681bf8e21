// Package quiz models the landing quiz: its step labels and the answers a
// visitor submits, keyed by step index.
package quiz

import (
	_ "embed"
	"encoding/json"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

const (
	// MaxStep is the highest step index accepted from a client.
	MaxStep = 31
	// MaxAnswerLength caps a single answer, in characters.
	MaxAnswerLength = 1000
	// ContactMethodStep asks how the visitor wants to be contacted.
	ContactMethodStep = 5
)

// ErrInvalidAnswer is returned for an answer key or value that cannot be
// accepted.
var ErrInvalidAnswer = eris.New("quiz: invalid answer")

//go:embed labels.yaml
var embeddedLabels []byte

// Labels maps a step index to its human-readable title.
type Labels map[int]string

// Catalog holds the step titles of every landing's quiz. Landings ask
// different questions under the same step indexes, so titles are chosen
// by the lead tag the submission resolved to.
type Catalog struct {
	// Default labels any landing without its own set.
	Default Labels
	// Landings is keyed by lower-cased lead tag.
	Landings map[string]Labels
}

// For returns the labels of the landing tagged tag, or the default set.
func (c Catalog) For(tag string) Labels {
	if labels, ok := c.Landings[strings.ToLower(strings.TrimSpace(tag))]; ok {
		return labels
	}
	return c.Default
}

type stepsDoc struct {
	Steps map[int]string `yaml:"steps"`
}

// LoadCatalog parses a labels document: default steps under quiz.steps and
// per-landing steps under quiz.landings.<tag>.steps.
func LoadCatalog(data []byte) (Catalog, error) {
	var wrapper struct {
		Quiz struct {
			Steps    map[int]string      `yaml:"steps"`
			Landings map[string]stepsDoc `yaml:"landings"`
		} `yaml:"quiz"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return Catalog{}, eris.Wrap(err, "quiz: parse labels")
	}

	def, err := toLabels(wrapper.Quiz.Steps)
	if err != nil {
		return Catalog{}, err
	}
	catalog := Catalog{Default: def, Landings: make(map[string]Labels, len(wrapper.Quiz.Landings))}
	for tag, doc := range wrapper.Quiz.Landings {
		labels, err := toLabels(doc.Steps)
		if err != nil {
			return Catalog{}, eris.Wrapf(err, "quiz: landing %q", tag)
		}
		catalog.Landings[strings.ToLower(strings.TrimSpace(tag))] = labels
	}
	return catalog, nil
}

func toLabels(steps map[int]string) (Labels, error) {
	labels := make(Labels, len(steps))
	for step, title := range steps {
		if step < 0 || step > MaxStep {
			return nil, eris.Errorf("quiz: label for step %d out of range 0..%d", step, MaxStep)
		}
		if title = strings.TrimSpace(title); title != "" {
			labels[step] = title
		}
	}
	return labels, nil
}

// LoadCatalogFile reads a labels document from path.
func LoadCatalogFile(path string) (Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, eris.Wrapf(err, "quiz: read labels %s", path)
	}
	return LoadCatalog(data)
}

// DefaultCatalog returns the labels compiled into the binary.
func DefaultCatalog() Catalog {
	catalog, err := LoadCatalog(embeddedLabels)
	if err != nil {
		panic(err)
	}
	return catalog
}

// Label returns the title of step, or "Step N" when it has none.
func (l Labels) Label(step int) string {
	if title, ok := l[step]; ok {
		return title
	}
	return "Step " + strconv.Itoa(step)
}

// Answers maps a step index to the visitor's answer.
type Answers map[int]string

// ParseAnswers picks the numeric keys out of a decoded JSON object. Other
// keys are ignored. A value is a string or an array of strings (joined with
// ", "); null and blank values are dropped.
func ParseAnswers(fields map[string]json.RawMessage) (Answers, error) {
	answers := make(Answers)
	for key, raw := range fields {
		if !numericKey(key) {
			continue
		}
		step, err := strconv.Atoi(key)
		if err != nil || step < 0 || step > MaxStep {
			return nil, eris.Wrapf(ErrInvalidAnswer, "quiz: step %s out of range 0..%d", key, MaxStep)
		}

		value, err := decodeAnswer(raw)
		if err != nil {
			return nil, eris.Wrapf(ErrInvalidAnswer, "quiz: step %d: %s", step, err)
		}
		if value != "" {
			answers[step] = value
		}
	}
	return answers, nil
}

// numericKey reports whether key is an optionally negative decimal integer.
func numericKey(key string) bool {
	digits := strings.TrimPrefix(key, "-")
	if digits == "" {
		return false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func decodeAnswer(raw json.RawMessage) (string, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return "", nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s), nil
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return "", eris.New("want a string or an array of strings")
	}
	parts := make([]string, 0, len(list))
	for _, item := range list {
		if item = strings.TrimSpace(item); item != "" {
			parts = append(parts, item)
		}
	}
	return strings.Join(parts, ", "), nil
}

// Get returns the answer for step, or "".
func (a Answers) Get(step int) string {
	return a[step]
}

// Steps returns the answered step indexes in ascending order.
func (a Answers) Steps() []int {
	steps := make([]int, 0, len(a))
	for step := range a {
		steps = append(steps, step)
	}
	sort.Ints(steps)
	return steps
}

// Lines renders "label: answer" lines in step order.
func (a Answers) Lines(labels Labels) []string {
	lines := make([]string, 0, len(a))
	for _, step := range a.Steps() {
		lines = append(lines, labels.Label(step)+": "+a[step])
	}
	return lines
}
