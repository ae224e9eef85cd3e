package text_test

import (
	"testing"

	"github.com/book-expert/tts-helper/internal/text"
	"github.com/stretchr/testify/assert"
)

func TestFixLigatures(t *testing.T) {
	t.Parallel()

	cleaner := text.NewCleaner()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "ffi from bang", input: "tra!c", expected: "traffic"},
		{name: "fi from registered", input: "de®ne", expected: "define"},
		{name: "fi from trademark", input: "con™g", expected: "config"},
		{name: "ff from euro", input: "o€er", expected: "offer"},
		{name: "fl from not sign", input: "re¬ect", expected: "reflect"},
		{name: "ffl from bang", input: "ba!fle", expected: "baffle"},
		{name: "ffl from euro", input: "wa€le", expected: "waffle"},
		{name: "unicode ligatures", input: "ﬁnal ﬂow ﬀ ﬃce ﬄ", expected: "final flow ff ffice ffl"},
		{name: "case insensitive", input: "TRA!C", expected: "TRAffiC"},
		{name: "real exclamation kept", input: "Hello!", expected: "Hello!"},
		{name: "exclamation before space kept", input: "Stop! Go", expected: "Stop! Go"},
		{name: "symbol between digits kept", input: "5€3", expected: "5€3"},
		{name: "no suspects", input: "plain text", expected: "plain text"},
		{name: "empty", input: "", expected: ""},
		{name: "whitespace only", input: "  \n", expected: "  \n"},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, testCase.expected, cleaner.FixLigatures(testCase.input))
		})
	}
}

func TestHasLigatureIssues(t *testing.T) {
	t.Parallel()

	cleaner := text.NewCleaner()

	assert.True(t, cleaner.HasLigatureIssues("tra!c"))
	assert.True(t, cleaner.HasLigatureIssues("ﬁ"))
	assert.False(t, cleaner.HasLigatureIssues("nothing to see"))
}

func TestClean(t *testing.T) {
	t.Parallel()

	cleaner := text.NewCleaner()

	input := "The ﬁrst—and “best”\r\n  o€er…  it’s  inter\u00adnational"

	assert.Equal(t, `The first - and "best" offer... it's international`, cleaner.Clean(input))
}

func TestNormalizeWhitespace(t *testing.T) {
	t.Parallel()

	cleaner := text.NewCleaner()

	assert.Equal(t, "a b c", cleaner.NormalizeWhitespace("  a\tb\n\nc  "))
}
