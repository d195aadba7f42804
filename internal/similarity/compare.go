package similarity

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// Contains reports whether answer appears verbatim (case-sensitive) in completion.
func Contains(completion, answer string) bool {
	return strings.Contains(completion, answer)
}

// DiffOp marks a diff segment: "-" only in the answer, "+" only in the completion,
// empty when shared.
type DiffOp string

const (
	DiffEqual  DiffOp = ""
	DiffDelete DiffOp = "-"
	DiffInsert DiffOp = "+"
)

// DiffSegment is a run of characters sharing one DiffOp.
type DiffSegment struct {
	Text string `json:"text"`
	Op   DiffOp `json:"op"`
}

// CharDiff computes a character-level diff from answer to completion with
// adjacent segments of the same kind merged.
func CharDiff(answer, completion string) []DiffSegment {
	a := splitRunes(answer)
	b := splitRunes(completion)

	segments := make([]DiffSegment, 0)
	push := func(text string, op DiffOp) {
		if text == "" {
			return
		}
		if n := len(segments); n > 0 && segments[n-1].Op == op {
			segments[n-1].Text += text
			return
		}
		segments = append(segments, DiffSegment{Text: text, Op: op})
	}

	matcher := difflib.NewMatcher(a, b)
	for _, op := range matcher.GetOpCodes() {
		switch op.Tag {
		case 'e':
			push(strings.Join(a[op.I1:op.I2], ""), DiffEqual)
		case 'd':
			push(strings.Join(a[op.I1:op.I2], ""), DiffDelete)
		case 'i':
			push(strings.Join(b[op.J1:op.J2], ""), DiffInsert)
		case 'r':
			push(strings.Join(a[op.I1:op.I2], ""), DiffDelete)
			push(strings.Join(b[op.J1:op.J2], ""), DiffInsert)
		}
	}
	return segments
}

func splitRunes(text string) []string {
	out := make([]string, 0, len(text))
	for _, r := range text {
		out = append(out, string(r))
	}
	return out
}
