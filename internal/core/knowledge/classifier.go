package knowledge

import (
	"regexp"
	"sort"
	"strings"
)

// CategoryGeneral always passes filtering and is attached to every query.
const CategoryGeneral = "general"

// Classification is the result of the pre-retrieval heuristic: which chunk
// categories look relevant and how many chunks to fetch.
type Classification struct {
	Categories []string
	ChunkLimit int
}

// Classifier decides retrieval categories for a free-text message.
// Heuristic prefilter, not a guarantee: under-fetching is acceptable,
// over-fetching only costs a few extra chunks. Pluggable so a model-based
// classifier can replace the keyword one without touching callers.
type Classifier interface {
	Categorize(message string) Classification
}

// KeywordClassifier matches fixed keyword patterns per category.
type KeywordClassifier struct {
	patterns map[string]*regexp.Regexp
}

var questionPattern = regexp.MustCompile(`(?i)^(how|what|when|where|why|who|can|do|does|is|are|apakah|bagaimana|berapa|kapan|dimana)\b`)

var comparisonPattern = regexp.MustCompile(`(?i)\b(vs|versus|compare|difference|better|dibanding|perbedaan|atau)\b`)

func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{
		patterns: map[string]*regexp.Regexp{
			"product": regexp.MustCompile(`(?i)\b(price|product|item|stock|buy|order|harga|produk|barang|stok|beli|pesan)\b`),
			"service": regexp.MustCompile(`(?i)\b(service|schedule|hours|open|close|appointment|layanan|jadwal|jam|buka|tutup)\b`),
			"policy":  regexp.MustCompile(`(?i)\b(policy|refund|return|warranty|terms|shipping|kebijakan|garansi|pengembalian|pengiriman)\b`),
			"faq":     regexp.MustCompile(`(?i)\b(faq|help|how to|cara|bantuan)\b`),
		},
	}
}

func (c *KeywordClassifier) Categorize(message string) Classification {
	trimmed := strings.TrimSpace(message)

	var matched []string
	for category, pattern := range c.patterns {
		if pattern.MatchString(trimmed) {
			matched = append(matched, category)
		}
	}

	// Questions with no matched category still deserve the FAQ pool.
	if len(matched) == 0 && looksLikeQuestion(trimmed) {
		matched = append(matched, "faq")
	}

	limit := 1
	if len(trimmed) > 100 || comparisonPattern.MatchString(trimmed) {
		limit = 2
	}
	if len(matched) >= 2 {
		limit = 3
	}

	return Classification{
		Categories: append([]string{CategoryGeneral}, sorted(matched)...),
		ChunkLimit: limit,
	}
}

func looksLikeQuestion(message string) bool {
	return strings.Contains(message, "?") || questionPattern.MatchString(message)
}

func sorted(values []string) []string {
	out := append([]string(nil), values...)
	sort.Strings(out)
	return out
}
