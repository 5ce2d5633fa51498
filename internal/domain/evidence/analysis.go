package evidence

// Tag is one categorical classification of a unit.
type Tag struct {
	Category   string   `json:"category"`
	Confidence float64  `json:"confidence"`
	Keywords   []string `json:"keywords,omitempty"`
}

// AnalysisResult holds per-unit tagging and embedding output.
type AnalysisResult struct {
	Tags                []Tag     `json:"tags"`
	Embedding           []float32 `json:"-"`
	IsFallbackEmbedding bool      `json:"is_fallback_embedding"`
}

// Categories returns the tag categories in order.
func (a AnalysisResult) Categories() []string {
	out := make([]string, 0, len(a.Tags))
	for _, t := range a.Tags {
		out = append(out, t.Category)
	}
	return out
}

// MaxConfidence is the strongest tag confidence, 0 when untagged.
func (a AnalysisResult) MaxConfidence() float64 {
	var m float64
	for _, t := range a.Tags {
		if t.Confidence > m {
			m = t.Confidence
		}
	}
	return m
}

// Person is an individual identified in the evidence.
type Person struct {
	Name     string `json:"name"`
	Mentions int    `json:"mentions"`
	AsSender bool   `json:"as_sender"`
}

// Relationship is a directed co-occurrence between two persons.
type Relationship struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Count int    `json:"count"`
}
