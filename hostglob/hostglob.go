// Slurm node lists, as printed by sacct (NodeList) and carried in sonar job records, compress sets
// of host names with bracketed ranges: "della-r1c[1-3,7],della-l01g4".  There are three operations
// here:
//
// - We can *split* a node list into its individual patterns
// - We can *expand* a pattern into a set of concrete host names
// - We can *compress* a set of concrete host names into a node list
//
// The following grammar pertains to all of these:
//
//   node-list       ::= pattern ("," pattern)*
//   pattern         ::= pattern-element ("." pattern-element)*
//   pattern-element ::= fragment+
//   fragment        ::= literal | range
//   literal         ::= <longest nonempty string of characters not containing "[" or "," or ".">
//   range           ::= "[" range-elt ("," range-elt)* "]"
//   range-elt       ::= number | number "-" number
//   number          ::= <nonempty string of 0..9, to be interpreted as decimal>
//
// The following restrictions apply:
//
// - In a range A-B, A must be no greater than B or the pattern is invalid
// - Leading zeroes are significant: "c[08-10]" is "c08", "c09", "c10"
// - The expansion of the result of compression of a set of hostnames H must yield exactly
//   the set H
// - Compression does not have a unique result and is not required to be optimal, but it is
//   independent of the order of its input

package hostglob

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// SplitNodeList returns the individual patterns of a node list.  It requires a bit of logic
// because each pattern may contain a range that contains a comma.

func SplitNodeList(s string) ([]string, error) {
	patterns := make([]string, 0)
	if s == "" {
		return patterns, nil
	}
	insideBrackets := false
	start := -1
	for ix, c := range s {
		switch {
		case c == '[':
			if insideBrackets {
				return nil, errors.New("Illegal node list: nested brackets")
			}
			insideBrackets = true
		case c == ']':
			if !insideBrackets {
				return nil, errors.New("Illegal node list: unmatched end bracket")
			}
			insideBrackets = false
		case c == ',' && !insideBrackets:
			if start == -1 {
				return nil, errors.New("Illegal node list: empty host name")
			}
			patterns = append(patterns, s[start:ix])
			start = -1
			continue
		}
		if start == -1 {
			start = ix
		}
	}
	if insideBrackets {
		return nil, errors.New("Illegal node list: missing end bracket")
	}
	if start == -1 {
		return nil, errors.New("Illegal node list: empty host name")
	}
	return append(patterns, s[start:]), nil
}

// ExpandNodeList splits and expands a node list, keeping the order of the list.  Slurm's special
// values "None assigned" and "(null)" expand to nothing.

func ExpandNodeList(s string) ([]string, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "None assigned" || s == "(null)" {
		return []string{}, nil
	}
	patterns, err := SplitNodeList(s)
	if err != nil {
		return nil, err
	}
	hosts := make([]string, 0, len(patterns))
	for _, p := range patterns {
		xs, err := ExpandPattern(p)
		if err != nil {
			return nil, fmt.Errorf("Bad node list %q\n%w", s, err)
		}
		hosts = append(hosts, xs...)
	}
	return hosts, nil
}

// ExpandPattern expands a single pattern into concrete host names.

func ExpandPattern(s string) ([]string, error) {
	before, after, hasTail := strings.Cut(s, ".")
	heads, err := expandElement(before)
	if err != nil {
		return nil, err
	}
	if !hasTail {
		return heads, nil
	}
	tails, err := ExpandPattern(after)
	if err != nil {
		return nil, err
	}
	expansions := make([]string, 0, len(heads)*len(tails))
	for _, h := range heads {
		for _, t := range tails {
			expansions = append(expansions, h+"."+t)
		}
	}
	return expansions, nil
}

var errNoMoreFragments = errors.New("No more fragments")

func expandElement(s string) ([]string, error) {
	r := strings.NewReader(s)
	expansions := []string{""}
	for {
		fragment, err := parseFragment(r)
		if err == errNoMoreFragments {
			break
		}
		if err != nil {
			return nil, err
		}
		next := make([]string, 0, len(expansions)*len(fragment))
		for _, e := range expansions {
			for _, f := range fragment {
				next = append(next, e+f)
			}
		}
		expansions = next
	}
	if len(expansions) == 1 && expansions[0] == "" {
		return nil, errors.New("Empty element")
	}
	return expansions, nil
}

// A fragment is returned as the list of strings it stands for.

func parseFragment(r *strings.Reader) ([]string, error) {
	switch c := getc(r); c {
	case 0:
		return nil, errNoMoreFragments
	case '[':
		var xs []string
		for {
			lo, err := readNumber(r)
			if err != nil {
				return nil, err
			}
			if eatc(r, '-') {
				hi, err := readNumber(r)
				if err != nil {
					return nil, err
				}
				xs, err = appendRange(xs, lo, hi)
				if err != nil {
					return nil, err
				}
			} else {
				xs = append(xs, lo)
			}
			if eatc(r, ']') {
				return xs, nil
			}
			if !eatc(r, ',') {
				return nil, errors.New("Unexpected character in range")
			}
		}
	case ',', '.', ']':
		return nil, fmt.Errorf("Unexpected '%c'", c)
	default:
		var literal strings.Builder
		literal.WriteRune(c)
		for {
			c := getc(r)
			if c == 0 || c == '[' || c == ',' || c == '.' || c == ']' {
				ungetc(r, c)
				break
			}
			literal.WriteRune(c)
		}
		return []string{literal.String()}, nil
	}
}

func appendRange(xs []string, lo, hi string) ([]string, error) {
	l, err := strconv.Atoi(lo)
	if err != nil {
		return nil, err
	}
	h, err := strconv.Atoi(hi)
	if err != nil {
		return nil, err
	}
	if l > h {
		return nil, errors.New("Bad range")
	}
	width := 0
	if len(lo) > 1 && lo[0] == '0' {
		width = len(lo)
	}
	for n := l; n <= h; n++ {
		xs = append(xs, fmt.Sprintf("%0*d", width, n))
	}
	return xs, nil
}

func readNumber(r io.RuneScanner) (string, error) {
	var cs strings.Builder
	for {
		c := getc(r)
		if c < '0' || c > '9' {
			ungetc(r, c)
			break
		}
		cs.WriteRune(c)
	}
	if cs.Len() == 0 {
		return "", errors.New("Expected number")
	}
	return cs.String(), nil
}

func eatc(r io.RuneScanner, x rune) bool {
	c := getc(r)
	if c == x {
		return true
	}
	ungetc(r, c)
	return false
}

func getc(r io.RuneScanner) rune {
	c, _, err := r.ReadRune()
	if err == io.EOF {
		return 0
	}
	return c
}

func ungetc(r io.RuneScanner, c rune) {
	if c != 0 {
		r.UnreadRune()
	}
}

// CompressHostnames returns a sorted node list for the host names.  For host names of the form
// `a.b.c...` we will not try to compress anything in the `b.c...` portion, and within the `a`
// portions we will try to compress only the rightmost digit strings of equal width.

var withDigitsRe = regexp.MustCompile(`^(.*?)(\d+)(\D*)$`)

func CompressHostnames(hosts []string) string {
	type key struct {
		prefix, suffix, domain string
		width                  int
	}
	groups := make(map[key][]int)
	var plain []string
	for _, h := range hosts {
		first, domain, _ := strings.Cut(h, ".")
		ms := withDigitsRe.FindStringSubmatch(first)
		if ms == nil {
			plain = append(plain, h)
			continue
		}
		n, err := strconv.Atoi(ms[2])
		if err != nil {
			plain = append(plain, h)
			continue
		}
		width := 0
		if len(ms[2]) > 1 && ms[2][0] == '0' {
			width = len(ms[2])
		}
		k := key{ms[1], ms[3], domain, width}
		if !slices.Contains(groups[k], n) {
			groups[k] = append(groups[k], n)
		}
	}

	result := slices.Clone(plain)
	for k, ns := range groups {
		s := k.prefix + compressRange(ns, k.width) + k.suffix
		if k.domain != "" {
			s += "." + k.domain
		}
		result = append(result, s)
	}
	slices.Sort(result)
	return strings.Join(slices.Compact(result), ",")
}

func compressRange(xs []int, width int) string {
	slices.Sort(xs)
	if len(xs) == 1 {
		return fmt.Sprintf("%0*d", width, xs[0])
	}
	var s strings.Builder
	for i := 0; i < len(xs); {
		first := xs[i]
		prev := first
		i++
		for i < len(xs) && xs[i] == prev+1 {
			prev = xs[i]
			i++
		}
		if s.Len() > 0 {
			s.WriteByte(',')
		}
		if first != prev {
			fmt.Fprintf(&s, "%0*d-%0*d", width, first, width, prev)
		} else {
			fmt.Fprintf(&s, "%0*d", width, first)
		}
	}
	return "[" + s.String() + "]"
}
