package crawler

import "sync"

// visitTracker records page URLs already fetched during one year's walk so a
// month linked twice, or linking back to the landing page, is fetched once.
type visitTracker struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func newVisitTracker() *visitTracker {
	return &visitTracker{seen: make(map[string]struct{})}
}

// MarkIfNew stores the URL if it has not been seen before and returns true.
func (t *visitTracker) MarkIfNew(rawURL string) bool {
	if rawURL == "" {
		return false
	}
	key, err := NormalizeURL(rawURL)
	if err != nil {
		key = rawURL
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.seen[key]; ok {
		return false
	}
	t.seen[key] = struct{}{}
	return true
}
