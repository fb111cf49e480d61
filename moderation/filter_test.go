package moderation

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFilter_Censor(t *testing.T) {
	req := require.New(t)
	filter, err := NewFilter([]string{"badword", "idiot"}, '*')
	req.NoError(err)

	tests := []struct {
		description string
		input       string
		want        string
		hit         bool
	}{
		{"Should censor a plain match", "you badword", "you *******", true},
		{"Should censor despite case", "you BadWord", "you *******", true},
		{"Should censor leet speak", "1d10t", "*****", true},
		{"Should leave clean text alone", "have a nice day", "have a nice day", false},
		{"Should keep punctuation outside the match", "idiot!", "*****!", true},
	}

	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			got, hit := filter.Censor(tt.input)
			req.Equal(tt.want, got)
			req.Equal(tt.hit, hit)
		})
	}
}

func TestFilter_EmptyWordList(t *testing.T) {
	req := require.New(t)
	filter, err := NewFilter(nil, '*')
	req.NoError(err)

	got, hit := filter.Censor("anything goes")

	req.Equal("anything goes", got)
	req.False(hit)
}

func TestLang(t *testing.T) {
	req := require.New(t)

	req.Equal("en", Lang("The quick brown fox jumps over the lazy dog"))
	req.Equal("fr", Lang("Bonjour, comment allez-vous aujourd'hui ?"))
}

func TestLoadWords(t *testing.T) {
	req := require.New(t)
	path := filepath.Join(t.TempDir(), "words.txt")
	req.NoError(os.WriteFile(path, []byte("badword\n\n# comment\n idiot \n"), 0o600))

	words, err := LoadWords(path)

	req.NoError(err)
	req.Equal([]string{"badword", "idiot"}, words)

	// Empty path disables censoring
	words, err = LoadWords("")
	req.NoError(err)
	req.Empty(words)
}
