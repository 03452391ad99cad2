// Package marker extracts KEY: value lines from invocation output.
//
// A marker is a line of the form
//
//	KEY: value
//
// where KEY belongs to a fixed vocabulary. Keys are matched case-sensitively
// and values are treated as opaque trimmed strings. When a key appears more
// than once in one text, the last occurrence wins.
package marker

import (
	"regexp"
	"sort"
	"strings"
)

// Vocabulary keys recognized by default. Value shapes (paths, counts,
// yes/no, pass/fail) are conventions of the agents that emit them.
const (
	TestsFile            = "TESTS_FILE"
	PlanFile             = "PLAN_FILE"
	Branch               = "BRANCH"
	BaseCommit           = "BASE_COMMIT"
	ReportFile           = "REPORT_FILE"
	ArchitectureMap      = "ARCHITECTURE_MAP"
	StyleSystem          = "STYLE_SYSTEM"
	TailwindConfig       = "TAILWIND_CONFIG"
	BugfinderReport      = "BUGFINDER_REPORT"
	CriticalIssues       = "CRITICAL_ISSUES"
	HighPriority         = "HIGH_PRIORITY"
	BugfixerReport       = "BUGFIXER_REPORT"
	IssuesFixed          = "ISSUES_FIXED"
	IssuesSkipped        = "ISSUES_SKIPPED"
	AllCriticalFixed     = "ALL_CRITICAL_FIXED"
	SecurityIssues       = "SECURITY_ISSUES"
	TypeErrors           = "TYPE_ERRORS"
	ErrorHandlingIssues  = "ERROR_HANDLING_ISSUES"
	LintErrors           = "LINT_ERRORS"
	CodebaseContext      = "CODEBASE_CONTEXT"
	DocumentationAdded   = "DOCUMENTATION_ADDED"
	FilesDocumented      = "FILES_DOCUMENTED"
	InfraConfig          = "INFRA_CONFIG"
	ComplianceReport     = "COMPLIANCE_REPORT"
	ComplianceValidation = "COMPLIANCE_VALIDATION"
	StructureReport      = "STRUCTURE_REPORT"
	StructureValidation  = "STRUCTURE_VALIDATION"
)

// DefaultVocabulary returns a fresh copy of the built-in key set.
func DefaultVocabulary() []string {
	return []string{
		TestsFile, PlanFile, Branch, BaseCommit, ReportFile,
		ArchitectureMap, StyleSystem, TailwindConfig,
		BugfinderReport, CriticalIssues, HighPriority,
		BugfixerReport, IssuesFixed, IssuesSkipped, AllCriticalFixed,
		SecurityIssues, TypeErrors, ErrorHandlingIssues, LintErrors,
		CodebaseContext, DocumentationAdded, FilesDocumented, InfraConfig,
		ComplianceReport, ComplianceValidation,
		StructureReport, StructureValidation,
	}
}

// Extractor matches lines against a compiled vocabulary. It is safe for
// concurrent use.
type Extractor struct {
	keys    []string
	pattern *regexp.Regexp
}

// NewExtractor compiles an extractor for keys. Blank and duplicate keys are
// ignored. An empty vocabulary extracts nothing.
func NewExtractor(keys []string) *Extractor {
	seen := make(map[string]bool, len(keys))
	var clean []string
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		clean = append(clean, k)
	}
	sort.Strings(clean)

	e := &Extractor{keys: clean}
	if len(clean) == 0 {
		return e
	}

	// Longest keys first so a key that prefixes another cannot shadow it.
	alts := append([]string(nil), clean...)
	sort.SliceStable(alts, func(i, j int) bool { return len(alts[i]) > len(alts[j]) })
	for i, k := range alts {
		alts[i] = regexp.QuoteMeta(k)
	}
	e.pattern = regexp.MustCompile(`^\s*(` + strings.Join(alts, "|") + `)\s*:\s*(.+)$`)
	return e
}

// Keys returns the sorted vocabulary.
func (e *Extractor) Keys() []string {
	return append([]string(nil), e.keys...)
}

// Extract returns the markers found in text. Keys without a match are
// absent. Values keep any colons after the first delimiter.
func (e *Extractor) Extract(text string) map[string]string {
	found := make(map[string]string)
	if e.pattern == nil || text == "" {
		return found
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSuffix(line, "\r")
		m := e.pattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		value := strings.TrimSpace(m[2])
		if value == "" {
			continue
		}
		found[m[1]] = value
	}
	return found
}

// Extract is a convenience for one-off extraction with an ad hoc vocabulary.
func Extract(text string, keys []string) map[string]string {
	return NewExtractor(keys).Extract(text)
}
