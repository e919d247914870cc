package fswatch

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterChainAcceptsWhenNoFilters(t *testing.T) {
	var chain FilterChain
	assert.True(t, chain.Accept("/anything"))
}

func TestFilterChainFirstMatchWins(t *testing.T) {
	var chain FilterChain

	exclude, err := NewFilter(`\.log$`, Exclude, true, false)
	require.NoError(t, err)
	include, err := NewFilter(`important\.log$`, Include, true, false)
	require.NoError(t, err)

	// Insertion order matters: include first means it wins for the
	// important file even though the broader exclude would also match.
	chain.Add(include)
	chain.Add(exclude)

	assert.True(t, chain.Accept("/var/log/important.log"))
	assert.False(t, chain.Accept("/var/log/other.log"))
	assert.True(t, chain.Accept("/var/log/other.txt"))
}

func TestFilterCaseSensitivity(t *testing.T) {
	caseSensitive, err := NewFilter("FOO", Include, true, false)
	require.NoError(t, err)
	assert.False(t, caseSensitive.matches("foo.txt"))

	caseInsensitive, err := NewFilter("FOO", Include, false, false)
	require.NoError(t, err)
	assert.True(t, caseInsensitive.matches("foo.txt"))
}

func TestNewFilterInvalidRegex(t *testing.T) {
	_, err := NewFilter("(unterminated", Include, true, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidRegex)
}

func TestReadFiltersFromFile(t *testing.T) {
	input := `
# a comment line, skipped

+i foo
-e bar
not a valid line
`
	var chain FilterChain
	var malformed []string
	err := ReadFiltersFromFile(strings.NewReader(input), &chain, func(line int, text string) {
		malformed = append(malformed, text)
	})
	require.NoError(t, err)

	assert.Equal(t, 2, chain.Len())
	require.Len(t, malformed, 1)
	assert.Equal(t, "not a valid line", malformed[0])

	assert.True(t, chain.Accept("FOO"))
	assert.False(t, chain.Accept("bar"))
}

func TestTrimTrailingUnescapedSpaces(t *testing.T) {
	cases := []struct {
		in, out string
	}{
		{"foo", "foo"},
		{"foo   ", "foo"},
		{`foo\ `, "foo "},
		{`foo\\ `, `foo\\`},
		{`foo\\\ `, `foo\\ `},
	}
	for _, c := range cases {
		assert.Equal(t, c.out, trimTrailingUnescapedSpaces(c.in), "input=%q", c.in)
	}
}

func TestEventTypeFilterPermitsAllWhenEmpty(t *testing.T) {
	var filter EventTypeFilter
	assert.True(t, filter.Permits(Flags(Created)))
}

func TestEventTypeFilterRestricts(t *testing.T) {
	var filter EventTypeFilter
	filter.Add(Created)
	filter.Add(Removed)

	assert.True(t, filter.Permits(Flags(Created)))
	assert.True(t, filter.Permits(Flags(Created)|Flags(IsFile)))
	assert.False(t, filter.Permits(Flags(Updated)))
}
