package coupling

import (
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"
)

var t0 = time.Date(2013, 11, 8, 12, 0, 0, 0, time.UTC)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("cannot read %s: %v", path, err)
	}
	return string(b)
}

// parseList returns the entries of a text boundaryData list: the lines
// between "(" and ")" with their parentheses removed.
func parseList(t *testing.T, text string) [][]float64 {
	t.Helper()
	lines := strings.Split(text, "\n")
	begin := -1
	for i, l := range lines {
		if l == "(" {
			begin = i + 1
			break
		}
	}
	if begin < 0 {
		t.Fatalf("no list in %q", text)
	}
	var out [][]float64
	for _, l := range lines[begin:] {
		if l == ")" {
			return out
		}
		var row []float64
		for _, s := range strings.Fields(strings.Trim(l, "()")) {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				t.Fatalf("bad value %q in line %q", s, l)
			}
			row = append(row, v)
		}
		out = append(out, row)
	}
	t.Fatalf("unterminated list in %q", text)
	return nil
}
