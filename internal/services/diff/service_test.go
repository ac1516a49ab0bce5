package diff

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const runningConfig = `hostname core-sw1
interface Gi0/1
 description uplink
 no shutdown
interface Gi0/2
 shutdown
`

func TestDiff_IdenticalInputsAreEmpty(t *testing.T) {
	svc := New(3)

	for _, s := range []string{"", "one line", runningConfig, "a\r\nb\r\n"} {
		assert.Empty(t, svc.Diff(s, s), "input %q", s)
	}
}

func TestDiff_ChangedLine(t *testing.T) {
	svc := New(3)
	after := strings.Replace(runningConfig, "interface Gi0/2\n shutdown", "interface Gi0/2\n no shutdown", 1)

	lines := svc.Diff(runningConfig, after)

	require.NotEmpty(t, lines)
	assert.Equal(t, "--- BEFORE", lines[0])
	assert.Equal(t, "+++ AFTER", lines[1])
	assert.True(t, strings.HasPrefix(lines[2], "@@"))
	assert.Contains(t, lines, "- shutdown")
	assert.Contains(t, lines, "+ no shutdown")
}

func TestDiff_AddedAndRemovedLines(t *testing.T) {
	svc := New(0)

	lines := svc.Diff("a\nb\nc\n", "a\nc\nd\n")

	assert.Contains(t, lines, "-b")
	assert.Contains(t, lines, "+d")
	assert.Contains(t, lines, " a")
	assert.Contains(t, lines, " c")
}

func TestDiff_KeepsUnchangedLineOrder(t *testing.T) {
	svc := New(10)

	lines := svc.Diff("one\ntwo\nthree\nfour\n", "one\ntwo\nTHREE\nfour\n")

	var context []string
	for _, l := range lines {
		if strings.HasPrefix(l, " ") {
			context = append(context, strings.TrimPrefix(l, " "))
		}
	}
	assert.Equal(t, []string{"one", "two", "four"}, context)
}

func TestDiff_IsDeterministic(t *testing.T) {
	svc := New(3)
	after := runningConfig + "ntp server 10.0.0.1\n"

	assert.Equal(t, svc.Diff(runningConfig, after), svc.Diff(runningConfig, after))
}

func TestDiff_TrailingNewlineIsIgnored(t *testing.T) {
	svc := New(3)

	assert.Empty(t, svc.Diff("a\nb", "a\nb\n"))
	assert.Empty(t, svc.Diff("a\r\nb\r\n", "a\nb\n"))
}

func TestDiffLabeled_UsesLabels(t *testing.T) {
	svc := New(3)

	lines := svc.DiffLabeled("x\n", "y\n", "10.0.0.1 BEFORE", "10.0.0.1 AFTER")

	require.GreaterOrEqual(t, len(lines), 2)
	assert.Equal(t, "--- 10.0.0.1 BEFORE", lines[0])
	assert.Equal(t, "+++ 10.0.0.1 AFTER", lines[1])
}

func TestDiff_FromEmpty(t *testing.T) {
	svc := New(3)

	lines := svc.Diff("", "new\n")

	assert.Contains(t, lines, "+new")
}

func TestStat(t *testing.T) {
	svc := New(3)

	assert.Zero(t, svc.Stat(nil))

	lines := svc.Diff("a\nb\nc\n", "a\nc\nd\ne\n")
	st := svc.Stat(lines)
	// every changed line pairs one removal with one addition
	assert.Equal(t, 2, st.Added+st.Changed)
	assert.Equal(t, 1, st.Deleted+st.Changed)
}

func TestCountPrefixes(t *testing.T) {
	st := countPrefixes([]string{"--- BEFORE", "+++ AFTER", "@@ -1 +1 @@", "-a", "+b", "+c", " d"})

	assert.Equal(t, 2, st.Added)
	assert.Equal(t, 1, st.Deleted)
}
