package policy

import "strings"

// matchGlob reports whether name matches pattern under spec.md §4.8's glob
// rules: '.' is literal, '*' matches any sequence (including empty), '?'
// matches exactly one rune, and the match is full-string anchored.
func matchGlob(pattern, name string) bool {
	return matchGlobRunes([]rune(pattern), []rune(name))
}

func matchGlobRunes(pattern, name []rune) bool {
	for len(pattern) > 0 {
		switch pattern[0] {
		case '*':
			// Collapse consecutive '*' and try every split point.
			for len(pattern) > 0 && pattern[0] == '*' {
				pattern = pattern[1:]
			}
			if len(pattern) == 0 {
				return true
			}
			for i := 0; i <= len(name); i++ {
				if matchGlobRunes(pattern, name[i:]) {
					return true
				}
			}
			return false
		case '?':
			if len(name) == 0 {
				return false
			}
			pattern = pattern[1:]
			name = name[1:]
		default:
			if len(name) == 0 || name[0] != pattern[0] {
				return false
			}
			pattern = pattern[1:]
			name = name[1:]
		}
	}
	return len(name) == 0
}

// anyGlobMatches reports whether name matches any of patterns.
func anyGlobMatches(patterns []string, name string) bool {
	for _, p := range patterns {
		if matchGlob(p, name) {
			return true
		}
	}
	return false
}

// containsCaseInsensitiveSubstring reports whether any of needles occurs as
// a case-insensitive substring of haystack (§4.8 step 6: requireApprovalFor
// matches a finding's category by substring, not glob).
func containsCaseInsensitiveSubstring(needles []string, haystack string) bool {
	lower := strings.ToLower(haystack)
	for _, n := range needles {
		if n == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(n)) {
			return true
		}
	}
	return false
}
