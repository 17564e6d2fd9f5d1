package domain

import "strings"

// NormalizeTag strips whitespace and a leading "@" from a raw tag name.
func NormalizeTag(raw string) string {
	return strings.TrimPrefix(strings.TrimSpace(raw), "@")
}

// UnionTags merges tag lists keeping first-seen order and dropping
// duplicates and empty names.
func UnionTags(lists ...[]string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, list := range lists {
		for _, tag := range list {
			tag = NormalizeTag(tag)
			if tag == "" {
				continue
			}
			if _, ok := seen[tag]; ok {
				continue
			}
			seen[tag] = struct{}{}
			out = append(out, tag)
		}
	}
	return out
}
