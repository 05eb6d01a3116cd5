package dedup

// SeenSet tracks fingerprints from a bounded window of persisted links plus those
// admitted during the current pass.
//
// A fingerprint owned by a persisted URL only admits that exact URL again, so a
// rediscovered link is refreshed while a near-duplicate with a different query is skipped.
// Fingerprints older than the loaded window are unknown and may be inserted again.
type SeenSet struct {
	history map[string]string
	pass    map[string]struct{}
}

// NewSeenSet builds a set from recently persisted canonical URLs.
func NewSeenSet(recentURLs []string) *SeenSet {
	s := &SeenSet{
		history: make(map[string]string, len(recentURLs)),
		pass:    make(map[string]struct{}),
	}
	for _, u := range recentURLs {
		c, err := Canonicalize(u)
		if err != nil {
			continue
		}
		fp := Fingerprint(c)
		if _, ok := s.history[fp]; !ok {
			s.history[fp] = c
		}
	}
	return s
}

// Admit reports whether the canonical URL may be persisted and marks its fingerprint seen.
func (s *SeenSet) Admit(canonical string) bool {
	fp := Fingerprint(canonical)
	if _, ok := s.pass[fp]; ok {
		return false
	}
	s.pass[fp] = struct{}{}
	if owner, ok := s.history[fp]; ok && owner != canonical {
		return false
	}
	return true
}

// Len returns the number of fingerprints known to the set.
func (s *SeenSet) Len() int {
	n := len(s.history)
	for fp := range s.pass {
		if _, ok := s.history[fp]; !ok {
			n++
		}
	}
	return n
}
