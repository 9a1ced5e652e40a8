package fingerprint

import (
	"path/filepath"
	"strings"
)

// Filter decides whether a relative path participates in a directory
// fingerprint (and, for watchers, in copy-back operations).
type Filter interface {
	Accept(rel string) bool
}

// AcceptAll admits every regular file.
type AcceptAll struct{}

func (AcceptAll) Accept(string) bool { return true }

// ExtensionFilter admits files whose extension is in the allowlist.
// Extensions are matched case-insensitively and include the leading dot.
type ExtensionFilter struct {
	allowed map[string]struct{}
}

// NewExtensionFilter builds a filter from extensions like ".md", ".json".
func NewExtensionFilter(exts ...string) ExtensionFilter {
	allowed := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		allowed[strings.ToLower(e)] = struct{}{}
	}
	return ExtensionFilter{allowed: allowed}
}

func (f ExtensionFilter) Accept(rel string) bool {
	_, ok := f.allowed[strings.ToLower(filepath.Ext(rel))]
	return ok
}

// ContentExtensions is the allowlist used when watching the raw content
// working copy: text and metadata formats the authors edit by hand.
func ContentExtensions() ExtensionFilter {
	return NewExtensionFilter(".md", ".markdown", ".json", ".yaml", ".yml", ".txt", ".csv")
}
