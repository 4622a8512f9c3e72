// Package selfprotect decides whether a tracked repository represents this
// system itself and therefore must never be deactivated by the surrounding
// automation. Detection is an ordered list of pure predicates over
// normalized strings; the first match wins and no match means not protected.
package selfprotect

import (
	"path/filepath"
	"strings"
)

// Result is the detection outcome. Reason is empty when not protected.
type Result struct {
	Protected bool
	Reason    string
}

// Name fragments that identify the system when they appear anywhere in the
// lowercased repository identifier.
var nameFragments = []string{
	"kiss-smart-batch-installer",
	"kiss smart batch installer",
	"smart-batch-installer",
	"ksbi-state",
}

// Code-name fragments that only count when combined with an operation word.
var codeNameFragments = []string{
	"kiss",
	"ksbi",
}

// Operation words required alongside a code-name fragment.
var operationWords = []string{
	"installer",
	"batch",
}

// Exact identifiers known to be the system itself.
var exactSelfIDs = []string{
	"kissplugins/KISS-Smart-Batch-Installer",
	"kiss-smart-batch-installer",
}

// rule is one predicate in the ordered evaluation chain.
type rule struct {
	reason string
	match  func(d *Detector, identifier, pluginFile string) bool
}

var rules = []rule{
	{reason: "path_match", match: (*Detector).matchOwnPath},
	{reason: "name_fragment", match: (*Detector).matchNameFragment},
	{reason: "keyword_combination", match: (*Detector).matchKeywordCombination},
	{reason: "exact_match", match: (*Detector).matchExactID},
}

// Detector evaluates the rule chain. selfDir is the directory the running
// system is installed in; empty disables the path rule.
type Detector struct {
	selfDir string
}

// New creates a Detector anchored at the system's own install directory.
func New(selfDir string) *Detector {
	return &Detector{selfDir: filepath.Clean(selfDir)}
}

// Detect evaluates the rules in order, stopping at the first match.
// pluginFile is the installed plugin file path when known, otherwise empty.
func (d *Detector) Detect(identifier, pluginFile string) Result {
	for _, r := range rules {
		if r.match(d, identifier, pluginFile) {
			return Result{Protected: true, Reason: r.reason}
		}
	}
	return Result{}
}

func (d *Detector) matchOwnPath(_, pluginFile string) bool {
	if pluginFile == "" || d.selfDir == "" || d.selfDir == "." {
		return false
	}
	return filepath.Clean(filepath.Dir(pluginFile)) == d.selfDir
}

func (d *Detector) matchNameFragment(identifier, _ string) bool {
	lowered := strings.ToLower(identifier)
	for _, fragment := range nameFragments {
		if strings.Contains(lowered, fragment) {
			return true
		}
	}
	return false
}

func (d *Detector) matchKeywordCombination(identifier, _ string) bool {
	lowered := strings.ToLower(identifier)
	hasCodeName := false
	for _, fragment := range codeNameFragments {
		if strings.Contains(lowered, fragment) {
			hasCodeName = true
			break
		}
	}
	if !hasCodeName {
		return false
	}
	for _, word := range operationWords {
		if strings.Contains(lowered, word) {
			return true
		}
	}
	return false
}

func (d *Detector) matchExactID(identifier, _ string) bool {
	lowered := strings.ToLower(identifier)
	for _, id := range exactSelfIDs {
		if identifier == id || lowered == strings.ToLower(id) {
			return true
		}
	}
	return false
}
