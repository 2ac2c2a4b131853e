package crawler

import (
	"net/url"
	"strings"
)

// sourceBlocklist holds image sources that are decoration rather than strips.
// An entry matches either the raw src attribute or the path of the src URL.
type sourceBlocklist struct {
	entries map[string]struct{}
}

func newSourceBlocklist(patterns []string) *sourceBlocklist {
	bl := &sourceBlocklist{entries: make(map[string]struct{})}
	for _, raw := range patterns {
		value := strings.TrimSpace(raw)
		if value == "" {
			continue
		}
		bl.entries[value] = struct{}{}
	}
	if len(bl.entries) == 0 {
		return nil
	}
	return bl
}

func (b *sourceBlocklist) IsBlocked(src string) bool {
	if b == nil {
		return false
	}
	if _, ok := b.entries[src]; ok {
		return true
	}
	u, err := url.Parse(src)
	if err != nil || u.Path == src {
		return false
	}
	_, ok := b.entries[u.Path]
	return ok
}
