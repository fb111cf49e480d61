package moderation

import (
	"os"
	"strings"

	"github.com/samber/lo"
)

// LoadWords reads the censored word list, one word per line. Blank
// lines and '#' comments are skipped. A missing path yields an empty
// list, which disables censoring.
func LoadWords(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	lines := strings.Split(string(raw), "\n")
	words := lo.FilterMap(lines, func(line string, _ int) (string, bool) {
		word := strings.TrimSpace(line)
		if word == "" || strings.HasPrefix(word, "#") {
			return "", false
		}
		return word, true
	})
	return words, nil
}
