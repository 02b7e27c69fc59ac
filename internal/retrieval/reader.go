package retrieval

import (
	"fmt"
	"os"
	"strings"
	"unicode/utf8"
)

// ReadLines splits extracted text into chunks: one per line, trimmed, empty
// lines dropped.
func ReadLines(text string) []string {
	chunks := make([]string, 0)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		chunks = append(chunks, line)
	}
	return chunks
}

func ReadFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read chunk file: %w", err)
	}
	return ReadLines(string(data)), nil
}

// textLen measures chunk length in characters.
func textLen(s string) int {
	return utf8.RuneCountInString(s)
}
