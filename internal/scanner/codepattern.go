package scanner

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/mcpshield/mcpshield/internal/models"
)

var codeFileSuffixes = []string{".js", ".ts", ".mjs", ".cjs"}

type codeRule struct {
	ruleID   string
	pattern  *regexp.Regexp
	severity models.Severity
	weight   int
}

// codeRules is applied to every eligible source file; severity/weight per
// hit follows spec.md §4.7 step 5.
var codeRules = []codeRule{
	{"CODE_EVAL_USAGE", regexp.MustCompile(`\beval\s*\(`), models.SeverityCritical, 25},
	{"CODE_DYNAMIC_FUNCTION_CONSTRUCTOR", regexp.MustCompile(`new\s+Function\s*\(`), models.SeverityCritical, 25},
	{"CODE_SHELL_EXEC", regexp.MustCompile(`\bexecSync?\s*\(`), models.SeverityHigh, 15},
	{"CODE_PROCESS_SPAWN", regexp.MustCompile(`\bspawnSync?\s*\(|\bforkSync?\s*\(`), models.SeverityHigh, 15},
	{"CODE_CHILD_PROCESS_IMPORT", regexp.MustCompile(`require\(\s*['"]child_process['"]\s*\)|from\s+['"]child_process['"]`), models.SeverityHigh, 15},
	{"CODE_HARDCODED_URL", regexp.MustCompile(`https?://[a-zA-Z0-9.\-]+`), models.SeverityMedium, 8},
	{"CODE_BASE64_DECODE", regexp.MustCompile(`Buffer\.from\([^)]*,\s*['"]base64['"]\)|atob\s*\(`), models.SeverityLow, 3},
	{"CODE_ENV_ACCESS", regexp.MustCompile(`process\.env(\.\w+|\[)`), models.SeverityInfo, 1},
}

// scanCodePatterns walks every eligible source file under root, skipping
// node_modules and dotfiles, applying codeRules and emitting one finding
// per (ruleId, file) with the match count, per spec.md §4.7 step 5.
func scanCodePatterns(root string) ([]models.Finding, int, error) {
	var files []string
	weight := 0

	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		if info.IsDir() {
			if info.Name() == "node_modules" || (strings.HasPrefix(info.Name(), ".") && rel != ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(filepath.Base(path), ".") {
			return nil
		}
		if !hasCodeSuffix(path) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	sort.Strings(files)

	var findings []models.Finding
	for _, path := range files {
		rel, err := filepath.Rel(root, path)
		if err != nil {
			rel = path
		}
		contents, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		text := string(contents)

		for _, rule := range codeRules {
			matches := rule.pattern.FindAllStringIndex(text, -1)
			if len(matches) == 0 {
				continue
			}
			findings = append(findings, models.Finding{
				RuleID:   rule.ruleID,
				Severity: rule.severity,
				Category: "code-pattern",
				Message:  rel,
				Details:  map[string]interface{}{"file": rel, "matches": len(matches)},
			})
			weight += rule.weight
		}
	}

	return findings, weight, nil
}

func hasCodeSuffix(path string) bool {
	for _, suffix := range codeFileSuffixes {
		if strings.HasSuffix(path, suffix) {
			return true
		}
	}
	return false
}
