// Package version orders package version strings.
//
// A version has the form VERSION[_REVISION][,EPOCH]. Epochs are compared
// first, then the dot separated components of VERSION, then the revision.
// Each component is an optional number, an optional letter run and an
// optional trailing number ("1", "0b3", "rc2"); digit runs compare
// numerically, so 1.2 < 1.10, and a missing component equals 0, so
// 1.2 == 1.2.0. The special words alpha, beta, pre and rc order as their
// first letter, and "pl" (patch level) orders like no letter at all.
package version

import (
	"strconv"
	"strings"
)

// Compare returns -1, 0 or 1 when a is older than, equal to or newer than b.
func Compare(a, b string) int {
	va, ea, ra := split(a)
	vb, eb, rb := split(b)

	if c := cmpInt(ea, eb); c != 0 {
		return c
	}
	if !strings.EqualFold(va, vb) {
		if c := compareVersion(va, vb); c != 0 {
			return c
		}
	}
	return cmpInt(ra, rb)
}

// Less reports whether a is older than b.
func Less(a, b string) bool {
	return Compare(a, b) < 0
}

// split separates the epoch and the port revision from a version string.
func split(v string) (version string, epoch, revision int64) {
	version = v
	if i := strings.LastIndexByte(version, ','); i >= 0 {
		epoch = parseInt(version[i+1:])
		version = version[:i]
	}
	if i := strings.LastIndexByte(version, '_'); i >= 0 {
		revision = parseInt(version[i+1:])
		version = version[:i]
	}
	return version, epoch, revision
}

func parseInt(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

type component struct {
	n  int64
	a  int64
	pl int64
}

var stages = []struct {
	name  string
	value int64
}{
	{"alpha", 'a' - 'a' + 1},
	{"beta", 'b' - 'a' + 1},
	{"pre", 'p' - 'a' + 1},
	{"rc", 'r' - 'a' + 1},
	{"pl", 0},
}

func compareVersion(a, b string) int {
	for a != "" || b != "" {
		var ca, cb component
		blockA := a == "" || a[0] == '+'
		blockB := b == "" || b[0] == '+'
		if !blockA {
			ca, a = nextComponent(a)
		}
		if !blockB {
			cb, b = nextComponent(b)
		}

		if blockA && blockB {
			// both sides stopped at a '+': skip it and keep comparing
			if a != "" {
				a = a[1:]
			}
			if b != "" {
				b = b[1:]
			}
			continue
		}

		if c := cmpInt(ca.n, cb.n); c != 0 {
			return c
		}
		if c := cmpInt(ca.a, cb.a); c != 0 {
			return c
		}
		if c := cmpInt(ca.pl, cb.pl); c != 0 {
			return c
		}
	}
	return 0
}

// nextComponent parses one component and skips the separators that follow it.
func nextComponent(s string) (component, string) {
	c := component{n: -1}

	digits := leading(s, isDigit)
	if digits != "" {
		c.n = parseInt(digits)
		s = s[len(digits):]
	}

	if letters := leading(s, isAlpha); letters != "" {
		c.a = letterValue(letters)
		s = s[len(letters):]
		if pl := leading(s, isDigit); pl != "" {
			c.pl = parseInt(pl)
			s = s[len(pl):]
		}
	}

	for s != "" && !isDigit(s[0]) && !isAlpha(s[0]) && s[0] != '+' {
		s = s[1:]
	}
	return c, s
}

func letterValue(word string) int64 {
	lower := strings.ToLower(word)
	for _, st := range stages {
		if lower == st.name {
			return st.value
		}
	}
	return int64(lower[0]-'a') + 1
}

func leading(s string, pred func(byte) bool) string {
	i := 0
	for i < len(s) && pred(s[i]) {
		i++
	}
	return s[:i]
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isAlpha(c byte) bool { return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }

func cmpInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
