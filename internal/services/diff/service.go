// Package diff renders line-oriented diffs between configuration snapshots.
package diff

import (
	"strings"

	"github.com/fgeck/gofleet-homelab/internal/models"
	"github.com/pmezard/go-difflib/difflib"
	godiff "github.com/sourcegraph/go-diff/diff"
)

// Default labels used for the unified diff headers.
const (
	DefaultFromLabel = "BEFORE"
	DefaultToLabel   = "AFTER"
)

// Service defines the interface for diff operations.
type Service interface {
	Diff(before, after string) []string
	DiffLabeled(before, after, from, to string) []string
	Stat(lines []string) models.DiffStat
}

// Impl implements the diff Service interface. It holds no state besides the
// number of context lines and is safe for concurrent use.
type Impl struct {
	context int
}

// New creates a new diff service. Non-positive context falls back to 3 lines.
func New(context int) *Impl {
	if context <= 0 {
		context = 3
	}
	return &Impl{context: context}
}

// Diff compares two snapshots with the default BEFORE/AFTER labels.
func (s *Impl) Diff(before, after string) []string {
	return s.DiffLabeled(before, after, DefaultFromLabel, DefaultToLabel)
}

// DiffLabeled returns the unified diff of before and after, one output line per
// element. Identical inputs yield an empty slice.
func (s *Impl) DiffLabeled(before, after, from, to string) []string {
	a := splitLines(before)
	b := splitLines(after)
	if equal(a, b) {
		return []string{}
	}

	ud := difflib.UnifiedDiff{
		A:        a,
		B:        b,
		FromFile: from,
		ToFile:   to,
		Context:  s.context,
	}

	text, err := difflib.GetUnifiedDiffString(ud)
	if err != nil || text == "" {
		// only a failing writer makes difflib error, and ours is a buffer
		return []string{}
	}

	return strings.Split(strings.TrimSuffix(text, "\n"), "\n")
}

// Stat counts added, changed and deleted lines of a rendered diff.
func (s *Impl) Stat(lines []string) models.DiffStat {
	if len(lines) == 0 {
		return models.DiffStat{}
	}

	fd, err := godiff.ParseFileDiff([]byte(strings.Join(lines, "\n") + "\n"))
	if err != nil {
		return countPrefixes(lines)
	}

	st := fd.Stat()
	return models.DiffStat{
		Added:   int(st.Added),
		Changed: int(st.Changed),
		Deleted: int(st.Deleted),
	}
}

// countPrefixes is the fallback when the diff cannot be parsed as a file diff.
func countPrefixes(lines []string) models.DiffStat {
	var st models.DiffStat
	for _, line := range lines {
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
		case strings.HasPrefix(line, "+"):
			st.Added++
		case strings.HasPrefix(line, "-"):
			st.Deleted++
		}
	}
	return st
}

// splitLines normalises CRLF output from network devices and returns lines
// terminated by "\n" as difflib expects.
func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.TrimSuffix(s, "\n")
	if s == "" {
		return nil
	}
	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] += "\n"
	}
	return lines
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
