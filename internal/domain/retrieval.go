package domain

// ProvenanceEntry records one chunk's contribution to an assembled context, so
// every generated answer can cite which documents it was grounded on.
type ProvenanceEntry struct {
	DocHash    string
	Filename   string
	DocType    DocType
	ChunkIndex int
	Score      float64
	Truncated  bool
	Marker     string // set on synthetic entries such as "no relevant policy found"
}

// Assembly is the outcome of retrieval plus context-window budgeting: the
// bounded context string to feed the generation prompt, and the provenance of
// every included chunk.
type Assembly struct {
	Context    string
	Provenance []ProvenanceEntry
	// NoRelevantContext is set when the corpus is empty or nothing cleared
	// the similarity threshold. Distinct from a populated-but-low-confidence
	// result; callers decide whether it is fatal.
	NoRelevantContext bool
}

// ChunksUsed counts the real (non-marker) provenance entries.
func (a *Assembly) ChunksUsed() int {
	n := 0
	for _, p := range a.Provenance {
		if p.Marker == "" {
			n++
		}
	}
	return n
}

// DocumentsUsed returns the distinct document hashes that contributed, in
// first-contribution order.
func (a *Assembly) DocumentsUsed() []string {
	seen := make(map[string]bool, len(a.Provenance))
	var hashes []string
	for _, p := range a.Provenance {
		if p.Marker != "" || seen[p.DocHash] {
			continue
		}
		seen[p.DocHash] = true
		hashes = append(hashes, p.DocHash)
	}
	return hashes
}
