// Package filterlist turns raw filter-list text into element selectors and
// manages the locally stored copy of the list.
package filterlist

import "strings"

// CosmeticPrefix marks a cosmetic (element hiding) rule in a filter list.
const CosmeticPrefix = "##"

// Compile returns the element selectors contained in raw filter-list text.
// Only lines starting with CosmeticPrefix are kept; the prefix is stripped and
// the remainder trimmed. Order is preserved and nothing is deduplicated or
// validated. Lines that are blank after trimming are kept as well, since the
// document query engine rejects them on its own.
func Compile(raw string) []string {
	if raw == "" {
		return nil
	}

	var selectors []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if !strings.HasPrefix(line, CosmeticPrefix) {
			continue
		}
		selectors = append(selectors, strings.TrimSpace(line[len(CosmeticPrefix):]))
	}
	return selectors
}
