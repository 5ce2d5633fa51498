// Package analysis holds the per-unit enrichment capabilities the pipeline
// fans out to: keyword tagging, person extraction, summarisation and
// embedding.
package analysis

import (
	"regexp"
	"sort"
	"strings"

	"github.com/yungbote/evidence-backend/internal/domain/evidence"
)

const (
	CategoryThreat                 = "threat"
	CategoryHarassment             = "harassment"
	CategoryFinancial              = "financial"
	CategoryCustody                = "custody"
	CategorySubstance              = "substance"
	CategoryViolence               = "violence"
	CategoryLocation               = "location"
	CategoryLegalProcess           = "legal_process"
	CategoryCommunicationBreakdown = "communication_breakdown"
)

// DefaultKeywords is the built-in lexicon. Multi-word entries match as
// phrases.
var DefaultKeywords = map[string][]string{
	CategoryThreat: {
		"kill you", "hurt you", "you will regret", "you'll regret", "watch your back", "destroy you",
		"make you pay", "i will find you", "threat", "or else",
	},
	CategoryHarassment: {
		"stop contacting", "leave me alone", "stop calling", "stop texting", "harass", "stalk",
		"blocked", "keep messaging", "showing up",
	},
	CategoryFinancial: {
		"money", "pay", "payment", "child support", "alimony", "bank", "account", "rent", "debt",
		"owe", "transfer", "$",
	},
	CategoryCustody: {
		"custody", "visitation", "pick up the kids", "pickup", "drop off", "parenting plan",
		"the kids", "school", "weekend with",
	},
	CategorySubstance: {
		"drunk", "alcohol", "drinking", "high", "weed", "cocaine", "pills", "rehab", "sober",
	},
	CategoryViolence: {
		"hit", "punch", "slap", "push", "shove", "choke", "bruise", "injury", "assault", "weapon", "gun",
	},
	CategoryLocation: {
		"address", "where you live", "outside your", "at your house", "location", "parked",
		"i'm here", "near your",
	},
	CategoryLegalProcess: {
		"lawyer", "attorney", "court", "judge", "hearing", "restraining order", "protective order",
		"subpoena", "police", "filed",
	},
	CategoryCommunicationBreakdown: {
		"not speaking", "won't answer", "ignoring", "no response", "never replied", "refuse to talk",
		"don't contact", "stop talking",
	},
}

var wordBoundary = regexp.MustCompile(`[^\p{L}\p{N}$']+`)

// Tagger is a keyword classifier. Confidence rises with the number of
// distinct keywords matched: 0.5 for one, 1.0 at three or more.
type Tagger struct {
	keywords map[string][]string
	order    []string
}

func NewTagger(keywords map[string][]string) *Tagger {
	if len(keywords) == 0 {
		keywords = DefaultKeywords
	}
	t := &Tagger{keywords: map[string][]string{}}
	for cat, kws := range keywords {
		norm := make([]string, 0, len(kws))
		for _, k := range kws {
			if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
				norm = append(norm, k)
			}
		}
		t.keywords[cat] = norm
		t.order = append(t.order, cat)
	}
	sort.Strings(t.order)
	return t
}

// Tag classifies one unit's content. Tags are returned in category order.
func (t *Tagger) Tag(content string) []evidence.Tag {
	text := " " + strings.Join(wordBoundary.Split(strings.ToLower(content), -1), " ") + " "
	var out []evidence.Tag
	for _, cat := range t.order {
		var matched []string
		for _, kw := range t.keywords[cat] {
			if containsPhrase(text, kw) {
				matched = append(matched, kw)
			}
		}
		if len(matched) == 0 {
			continue
		}
		out = append(out, evidence.Tag{
			Category:   cat,
			Confidence: confidence(len(matched)),
			Keywords:   matched,
		})
	}
	return out
}

func containsPhrase(text, kw string) bool {
	if kw == "$" {
		return strings.Contains(text, "$")
	}
	phrase := strings.Join(wordBoundary.Split(kw, -1), " ")
	return strings.Contains(text, " "+strings.TrimSpace(phrase)+" ")
}

func confidence(n int) float64 {
	switch {
	case n <= 0:
		return 0
	case n >= 3:
		return 1
	default:
		return 0.5 + 0.25*float64(n-1)
	}
}

// UnionCategories returns the distinct categories across results in first
// seen order.
func UnionCategories(results []evidence.AnalysisResult) []string {
	seen := map[string]bool{}
	var out []string
	for _, r := range results {
		for _, c := range r.Categories() {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	return out
}
