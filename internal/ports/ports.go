// Package ports implements parsing of port specifications into normalized
// port sets. A specification is a comma-separated list of tokens, each either
// a single decimal port ("443") or an inclusive range ("3000-5000").
package ports

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/steeric1/qapper/internal/errors"
)

// MaxPort is the highest valid TCP port number.
const MaxPort = 65535

// Range represents an inclusive span of port numbers. A bare port p is the
// degenerate range {p, p}.
type Range struct {
	Start uint16
	End   uint16
}

// Contains reports whether the range covers the given port.
func (r Range) Contains(port uint16) bool {
	return port >= r.Start && port <= r.End
}

// String renders the range in specification syntax.
func (r Range) String() string {
	if r.Start == r.End {
		return strconv.Itoa(int(r.Start))
	}
	return fmt.Sprintf("%d-%d", r.Start, r.End)
}

// Set is a normalized, deduplicated, ascending sequence of port numbers.
// Every value is in [1, MaxPort] and appears exactly once.
type Set []uint16

// Parse parses a comma-separated port specification into a Set. Overlapping
// and duplicate tokens merge; the result contains each covered port once, in
// ascending order regardless of input order.
func Parse(spec string) (Set, error) {
	if strings.TrimSpace(spec) == "" {
		return nil, errors.NewParseError(errors.CodeInvalidPortToken,
			"empty port specification", spec)
	}

	seen := make(map[uint16]struct{})
	for _, token := range strings.Split(spec, ",") {
		r, err := parseToken(strings.TrimSpace(token))
		if err != nil {
			return nil, err
		}
		for p := int(r.Start); p <= int(r.End); p++ {
			seen[uint16(p)] = struct{}{}
		}
	}

	set := make(Set, 0, len(seen))
	for p := range seen {
		set = append(set, p)
	}
	sort.Slice(set, func(i, j int) bool { return set[i] < set[j] })
	return set, nil
}

// parseToken parses a single token into a Range, validating bounds and
// range ordering.
func parseToken(token string) (Range, error) {
	if token == "" {
		return Range{}, errors.NewParseError(errors.CodeInvalidPortToken,
			"empty token in port specification", token)
	}

	if low, high, ok := strings.Cut(token, "-"); ok {
		start, err := parsePort(low, token)
		if err != nil {
			return Range{}, err
		}
		end, err := parsePort(high, token)
		if err != nil {
			return Range{}, err
		}
		if start > end {
			return Range{}, errors.NewParseError(errors.CodeInvalidRange,
				"range lower bound exceeds upper bound", token)
		}
		return Range{Start: start, End: end}, nil
	}

	port, err := parsePort(token, token)
	if err != nil {
		return Range{}, err
	}
	return Range{Start: port, End: port}, nil
}

// parsePort parses one decimal port value, reporting the enclosing token on
// failure.
func parsePort(value, token string) (uint16, error) {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, errors.WrapParseError(errors.CodeInvalidPortToken,
			"not a valid port number", token, err)
	}
	if n < 1 || n > MaxPort {
		return 0, errors.NewParseError(errors.CodePortOutOfBounds,
			fmt.Sprintf("port %d outside [1, %d]", n, MaxPort), token)
	}
	return uint16(n), nil
}

// Contains reports whether the set includes the given port.
func (s Set) Contains(port uint16) bool {
	i := sort.Search(len(s), func(i int) bool { return s[i] >= port })
	return i < len(s) && s[i] == port
}

// Ranges compresses the set back into the minimal sequence of inclusive
// ranges covering exactly its members.
func (s Set) Ranges() []Range {
	if len(s) == 0 {
		return nil
	}

	ranges := make([]Range, 0, len(s))
	current := Range{Start: s[0], End: s[0]}
	for _, p := range s[1:] {
		if p == current.End+1 {
			current.End = p
			continue
		}
		ranges = append(ranges, current)
		current = Range{Start: p, End: p}
	}
	return append(ranges, current)
}

// String renders the set in range-compressed specification syntax, e.g.
// "20-22,80". An empty set renders as "none".
func (s Set) String() string {
	if len(s) == 0 {
		return "none"
	}

	parts := make([]string, 0, len(s))
	for _, r := range s.Ranges() {
		parts = append(parts, r.String())
	}
	return strings.Join(parts, ",")
}
