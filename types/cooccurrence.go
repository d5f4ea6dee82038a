package types

// PairKey is the canonicalised unordered pair key (min(a,b), max(a,b))
// used by CoOccurrenceMatrix (§3, §4.5).
type PairKey struct {
	A, B string
}

// CanonPair returns the canonical (lexicographically ordered) key for an
// unordered pair, so get_score(a,b) == get_score(b,a) (§8 invariant 6).
func CanonPair(a, b string) PairKey {
	if a <= b {
		return PairKey{A: a, B: b}
	}
	return PairKey{A: b, B: a}
}

// CoOccurrenceEntry is one accumulated pair record.
type CoOccurrenceEntry struct {
	Key         PairKey
	Count       float64
	ContextWeight map[string]float64
	FirstSeenMs int64
	LastSeenMs  int64
}
