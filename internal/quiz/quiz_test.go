package quiz

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeObject(t *testing.T, body string) map[string]json.RawMessage {
	t.Helper()
	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(body), &fields))
	return fields
}

func TestDefaultCatalog(t *testing.T) {
	t.Parallel()

	catalog := DefaultCatalog()
	labels := catalog.Default
	assert.Len(t, labels, 6)
	assert.Equal(t, "ما هو الغرض من الشراء؟", labels.Label(1))
	assert.Contains(t, labels, ContactMethodStep)
	assert.Equal(t, "Step 6", labels.Label(6))

	france := catalog.For("France")
	assert.Len(t, france, 6)
	assert.Equal(t, "Quel type de bien immobilier vous intéresse ?", france.Label(0))
	assert.Equal(t, "Date de livraison du projet ?", france.Label(4))

	assert.Equal(t, labels, catalog.For("Arab"))
	assert.Equal(t, labels, catalog.For(""))
}

func TestLoadCatalog(t *testing.T) {
	t.Parallel()

	catalog, err := LoadCatalog([]byte("quiz:\n  steps:\n    0: \" Bedrooms \"\n    3: ''\n" +
		"  landings:\n    France:\n      steps:\n        0: Type de bien\n"))
	require.NoError(t, err)
	assert.Equal(t, Labels{0: "Bedrooms"}, catalog.Default)
	assert.Equal(t, "Step 3", catalog.Default.Label(3))
	assert.Equal(t, Labels{0: "Type de bien"}, catalog.For("france"))
	assert.Equal(t, Labels{0: "Type de bien"}, catalog.For(" FRANCE "))
}

func TestLoadCatalog_Errors(t *testing.T) {
	t.Parallel()

	_, err := LoadCatalog([]byte("quiz: [unclosed"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quiz: parse labels")

	_, err = LoadCatalog([]byte("quiz:\n  steps:\n    40: Too far\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")

	_, err = LoadCatalog([]byte("quiz:\n  landings:\n    france:\n      steps:\n        -1: Before\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `landing "france"`)
}

func TestLoadCatalogFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "labels.yaml")
	require.NoError(t, os.WriteFile(path, []byte("quiz:\n  steps:\n    2: Budget\n"), 0o600))

	catalog, err := LoadCatalogFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Budget", catalog.Default.Label(2))
	assert.Equal(t, "Budget", catalog.For("France").Label(2))

	_, err = LoadCatalogFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quiz: read labels")
}

func TestParseAnswers(t *testing.T) {
	t.Parallel()

	answers, err := ParseAnswers(decodeObject(t, `{
		"fullName": "Ali",
		"phone": "+971501234567",
		"0": " 2 bedrooms ",
		"2": ["Cash", " ", "Installments"],
		"3": null,
		"4": "   ",
		"5": "WhatsApp"
	}`))
	require.NoError(t, err)
	assert.Equal(t, Answers{0: "2 bedrooms", 2: "Cash, Installments", 5: "WhatsApp"}, answers)
	assert.Equal(t, "WhatsApp", answers.Get(ContactMethodStep))
	assert.Equal(t, "", answers.Get(1))
}

func TestParseAnswers_Invalid(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"step too high":    `{"32": "x"}`,
		"negative step":    `{"-1": "x"}`,
		"number value":     `{"0": 5}`,
		"object value":     `{"1": {"a": "b"}}`,
		"mixed array":      `{"2": ["a", 1]}`,
		"boolean value":    `{"3": true}`,
		"huge step number": `{"99999999999999999999999": "x"}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseAnswers(decodeObject(t, body))
			require.Error(t, err)
			assert.True(t, eris.Is(err, ErrInvalidAnswer))
		})
	}
}

func TestAnswersLines(t *testing.T) {
	t.Parallel()

	answers := Answers{5: "Phone call", 0: "Studio", 12: "Extra"}
	labels := Labels{0: "Bedrooms", 5: "Contact method"}

	assert.Equal(t, []int{0, 5, 12}, answers.Steps())
	assert.Equal(t, []string{
		"Bedrooms: Studio",
		"Contact method: Phone call",
		"Step 12: Extra",
	}, answers.Lines(labels))
	assert.Empty(t, Answers{}.Lines(labels))
}
