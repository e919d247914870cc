package fswatch

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

// FilterKind distinguishes an include filter from an exclude filter.
type FilterKind int

const (
	// Include means a path matching the filter's pattern is accepted.
	Include FilterKind = iota
	// Exclude means a path matching the filter's pattern is rejected.
	Exclude
)

// ErrInvalidRegex indicates that a filter's pattern failed to compile.
var ErrInvalidRegex = errors.New("invalid filter regular expression")

// Filter is a single path filter: a regular expression, a kind (include or
// exclude), and the case/dialect options it was compiled with.
type Filter struct {
	// Pattern is the uncompiled regular expression text, retained for
	// diagnostics and for round-tripping through ReadFiltersFromFile.
	Pattern string
	// Kind is Include or Exclude.
	Kind FilterKind
	// CaseSensitive controls whether Pattern is matched case-sensitively.
	// The libfswatch default (and this port's) is true.
	CaseSensitive bool
	// Extended records whether the filter was declared with the "extended"
	// dialect flag. Go's regexp package has a single RE2 syntax rather than
	// POSIX basic/extended variants, so this does not change match
	// semantics; it only records the 'e' flag that ReadFiltersFromFile
	// parsed.
	Extended bool

	compiled *regexp.Regexp
}

// NewFilter compiles pattern into a Filter. Compilation failure wraps
// ErrInvalidRegex.
func NewFilter(pattern string, kind FilterKind, caseSensitive, extended bool) (Filter, error) {
	expr := pattern
	if !caseSensitive {
		expr = "(?i)" + expr
	}
	compiled, err := regexp.Compile(expr)
	if err != nil {
		return Filter{}, errors.Wrapf(ErrInvalidRegex, "%q: %s", pattern, err)
	}
	return Filter{
		Pattern:       pattern,
		Kind:          kind,
		CaseSensitive: caseSensitive,
		Extended:      extended,
		compiled:      compiled,
	}, nil
}

// matches reports whether path matches the filter's compiled pattern.
func (f Filter) matches(path string) bool {
	return f.compiled.MatchString(path)
}

// FilterChain is an ordered sequence of Filters applied to candidate paths.
// The zero value is an empty chain that accepts everything.
type FilterChain struct {
	filters []Filter
}

// Add appends filter to the chain, in insertion order.
func (c *FilterChain) Add(filter Filter) {
	c.filters = append(c.filters, filter)
}

// Accept iterates filters in insertion order; the first filter whose
// pattern matches path decides the outcome (Include accepts, Exclude
// rejects). If no filter matches, the path is accepted.
func (c *FilterChain) Accept(path string) bool {
	for _, f := range c.filters {
		if f.matches(path) {
			return f.Kind == Include
		}
	}
	return true
}

// Len reports the number of filters currently in the chain.
func (c *FilterChain) Len() int {
	return len(c.filters)
}

// filterLinePattern matches a single non-blank, non-comment filter-file
// line: a leading '+' or '-' kind marker, zero or more dialect letters
// ('e' for extended, 'i' for case-insensitive), a single separating space,
// and the pattern text.
var filterLinePattern = regexp.MustCompile(`^([+-])([ei]*) (.+)$`)

// FilterFileErrorHandler is invoked for each malformed line encountered by
// ReadFiltersFromFile. The offending line (1-based) and its raw text are
// supplied. The malformed line is always skipped regardless of what the
// handler does.
type FilterFileErrorHandler func(line int, text string)

// ReadFiltersFromFile parses the libfswatch filter-file grammar from r,
// appending each successfully parsed line as a Filter onto chain. A blank
// line or a line whose first non-space rune is '#' is a comment and is
// silently skipped. Any other line must match filterLinePattern; a line
// that doesn't is reported to onError (if non-nil) and skipped.
func ReadFiltersFromFile(r io.Reader, chain *FilterChain, onError FilterFileErrorHandler) error {
	scanner := bufio.NewScanner(r)
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := scanner.Text()

		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}

		match := filterLinePattern.FindStringSubmatch(line)
		if match == nil {
			if onError != nil {
				onError(lineNumber, line)
			}
			continue
		}

		kind := Include
		if match[1] == "-" {
			kind = Exclude
		}

		var extended, caseInsensitive bool
		for _, r := range match[2] {
			switch r {
			case 'e':
				extended = true
			case 'i':
				caseInsensitive = true
			}
		}

		pattern := trimTrailingUnescapedSpaces(match[3])

		filter, err := NewFilter(pattern, kind, !caseInsensitive, extended)
		if err != nil {
			if onError != nil {
				onError(lineNumber, line)
			}
			continue
		}
		chain.Add(filter)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading filter file: %w", err)
	}
	return nil
}

// trimTrailingUnescapedSpaces strips trailing space characters from s,
// except a trailing space preceded by an odd number of consecutive
// backslashes, which is considered escaped and is kept (with one backslash
// consumed as the escape).
func trimTrailingUnescapedSpaces(s string) string {
	for {
		if !strings.HasSuffix(s, " ") {
			return s
		}
		backslashes := 0
		for i := len(s) - 2; i >= 0 && s[i] == '\\'; i-- {
			backslashes++
		}
		if backslashes%2 == 1 {
			// The trailing space is escaped: drop the escaping backslash,
			// keep the space, and stop trimming.
			return s[:len(s)-2] + " "
		}
		s = s[:len(s)-1]
	}
}

// EventTypeFilter restricts delivered events to those whose flags intersect
// a permitted set. If no event-type filters are configured, every event is
// permitted.
type EventTypeFilter struct {
	permitted Flags
	any       bool
}

// Add appends flag to the set of permitted event types.
func (f *EventTypeFilter) Add(flag Flag) {
	f.permitted |= Flags(flag)
	f.any = true
}

// Permits reports whether flags should be delivered given the configured
// permitted set: true if no filters were added, or if flags intersects the
// permitted set.
func (f *EventTypeFilter) Permits(flags Flags) bool {
	if !f.any {
		return true
	}
	return flags.Intersects(f.permitted)
}
