package neural

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Charset maps recognizer class indices to characters. Index 0 is the CTC
// blank; class i (i >= 1) is Charset[i-1].
type Charset []string

// LoadCharset reads a charset file from disk.
func LoadCharset(path string) (Charset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open charset: %w", err)
	}
	defer f.Close()

	return ReadCharset(f)
}

// ReadCharset parses one character per line. Empty lines are ignored and a
// space class is appended after the listed characters.
func ReadCharset(r io.Reader) (Charset, error) {
	var charset Charset
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		charset = append(charset, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read charset: %w", err)
	}
	if len(charset) == 0 {
		return nil, fmt.Errorf("charset is empty")
	}
	return append(charset, " "), nil
}

// Classes is the number of recognizer output classes, blank included.
func (c Charset) Classes() int {
	return len(c) + 1
}
