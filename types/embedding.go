package types

// Embedding is a dense, fixed-dimension float vector. Stored embeddings are
// L2-normalised to within 1e-4 of unit length (§3 invariant 1); callers
// that build one by hand should run it through vectormath.Normalize
// before it crosses a cache boundary.
type Embedding struct {
	Vector    []float64
	Dim       int
	Version   int
	CreatedAt int64
	UpdatedAt int64
	// Provenance describes how the vector was produced, e.g. "audio",
	// "genre", "collaborative", "jitter-fallback".
	Provenance string
}

// Clone returns a copy with its own backing array.
func (e Embedding) Clone() Embedding {
	cp := e
	cp.Vector = append([]float64(nil), e.Vector...)
	return cp
}

// IsZero reports whether the embedding carries no vector data.
func (e Embedding) IsZero() bool { return len(e.Vector) == 0 }
