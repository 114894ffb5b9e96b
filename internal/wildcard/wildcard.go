// Package wildcard implements the case-insensitive glob matcher used for
// pattern rules and URL allow lists. Supported metacharacters are '*'
// (any run of characters, including none) and '?' (exactly one character).
package wildcard

// Match reports whether str matches the glob pattern mask, ignoring case.
// An empty mask only matches an empty string. The match is anchored at both
// ends; callers wanting substring semantics wrap the pattern in '*'.
func Match(str, mask string) bool {
	s, m := []rune(str), []rune(mask)
	si, mi := 0, 0

	// Consume the literal prefix before the first '*'.
	for si < len(s) && mi < len(m) && m[mi] != '*' {
		if !runeEq(m[mi], s[si]) && m[mi] != '?' {
			return false
		}
		mi++
		si++
	}

	// Backtracking positions for the most recent '*'.
	star, mark := -1, -1

	for si < len(s) {
		switch {
		case mi < len(m) && m[mi] == '*':
			mi++
			if mi == len(m) {
				return true
			}
			star = mi
			mark = si + 1
		case mi < len(m) && (runeEq(m[mi], s[si]) || m[mi] == '?'):
			mi++
			si++
		default:
			if star == -1 {
				return false
			}
			mi = star
			si = mark
			mark++
		}
	}

	for mi < len(m) && m[mi] == '*' {
		mi++
	}
	return mi == len(m)
}

// ContainsPattern wraps pattern in implicit leading and trailing wildcards,
// matching the way message patterns are applied to OCR output lines.
func ContainsPattern(line, pattern string) bool {
	if line == "" || pattern == "" {
		return false
	}
	return Match(line, "*"+pattern+"*")
}

func runeEq(a, b rune) bool {
	return lower(a) == lower(b)
}

func lower(r rune) rune {
	if r >= 'A' && r <= 'Z' {
		return r + ('a' - 'A')
	}
	return r
}
