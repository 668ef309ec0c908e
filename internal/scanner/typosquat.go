package scanner

import "github.com/mcpshield/mcpshield/internal/models"

// popularNames is a curated sample of high-download npm/pypi packages,
// typosquats of which are a common supply-chain attack vector.
var popularNames = []string{
	"express", "react", "lodash", "axios", "chalk", "request", "commander",
	"debug", "moment", "async", "webpack", "babel", "jquery", "vue",
	"typescript", "eslint", "prettier", "mocha", "jest", "next",
	"numpy", "requests", "flask", "django", "pandas", "pytest", "boto3",
	"pyyaml", "click", "setuptools",
}

// CheckTyposquat reports a finding when name is a near-miss of a popular
// package name at Levenshtein distance 1 or 2, per spec.md §4.7 step 1.
func CheckTyposquat(name string) *models.Finding {
	best := -1
	var match string
	for _, candidate := range popularNames {
		if candidate == name {
			return nil
		}
		d := levenshtein(name, candidate)
		if best == -1 || d < best {
			best = d
			match = candidate
		}
	}

	switch best {
	case 1:
		return &models.Finding{
			RuleID:   "TYPOSQUAT_CANDIDATE",
			Severity: models.SeverityHigh,
			Category: "typosquat",
			Message:  "package name is one edit away from popular package " + match,
			Details:  map[string]interface{}{"candidate": match, "distance": best},
		}
	case 2:
		return &models.Finding{
			RuleID:   "TYPOSQUAT_CANDIDATE",
			Severity: models.SeverityMedium,
			Category: "typosquat",
			Message:  "package name is two edits away from popular package " + match,
			Details:  map[string]interface{}{"candidate": match, "distance": best},
		}
	default:
		return nil
	}
}

// levenshtein computes the edit distance between a and b.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	la, lb := len(ra), len(rb)

	prev := make([]int, lb+1)
	curr := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}

	for i := 1; i <= la; i++ {
		curr[0] = i
		for j := 1; j <= lb; j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}

	return prev[lb]
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}
