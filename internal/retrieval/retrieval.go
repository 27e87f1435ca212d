// Package retrieval provides similarity search over the support knowledge base.
package retrieval

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"
	"sync"
	"unicode"
)

// Categories used as search filters.
const (
	CategoryIssueSOP  = "life_issue_sop"
	CategoryLifeQuery = "life-query"
)

// DefaultK is the number of documents the inquiry graph retrieves.
const DefaultK = 3

// Document is a retrieved passage. Treat it as immutable.
type Document struct {
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Category returns Metadata["category"].
func (d Document) Category() string {
	return d.Metadata["category"]
}

// Retriever finds documents similar to a query.
type Retriever interface {
	// Search returns at most k documents ordered by decreasing relevance.
	// A non-empty filter restricts results to that category.
	Search(ctx context.Context, query string, k int, filter string) ([]Document, error)
}

// Index is an in-memory TF-IDF index with cosine ranking.
//
// It is safe for concurrent use; Add may be called while searches run.
type Index struct {
	mu   sync.RWMutex
	docs []indexed
	df   map[string]int
}

type indexed struct {
	doc Document
	tf  map[string]float64
}

// NewIndex returns an index holding docs.
func NewIndex(docs ...Document) *Index {
	idx := &Index{df: make(map[string]int)}
	idx.Add(docs...)
	return idx
}

// Add indexes docs.
func (x *Index) Add(docs ...Document) {
	x.mu.Lock()
	defer x.mu.Unlock()

	for _, d := range docs {
		tf := termFrequencies(d.Content)
		for term := range tf {
			x.df[term]++
		}
		x.docs = append(x.docs, indexed{doc: d, tf: tf})
	}
}

// Len returns the number of indexed documents.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.docs)
}

// Search implements Retriever. Documents sharing no term with the query are
// never returned.
func (x *Index) Search(ctx context.Context, query string, k int, filter string) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, errors.New("k must be positive")
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	n := float64(len(x.docs))
	idf := func(term string) float64 {
		return math.Log(1+n/float64(1+x.df[term])) + 1
	}
	q := weigh(termFrequencies(query), idf)

	type hit struct {
		pos   int
		score float64
	}
	var hits []hit
	for i, d := range x.docs {
		if filter != "" && d.doc.Category() != filter {
			continue
		}
		if s := cosine(q, weigh(d.tf, idf)); s > 0 {
			hits = append(hits, hit{pos: i, score: s})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })

	if len(hits) > k {
		hits = hits[:k]
	}
	out := make([]Document, 0, len(hits))
	for _, h := range hits {
		out = append(out, x.docs[h.pos].doc)
	}
	return out, nil
}

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true, "be": true,
	"by": true, "can": true, "do": true, "for": true, "from": true, "has": true, "how": true,
	"i": true, "if": true, "in": true, "is": true, "it": true, "my": true, "of": true,
	"on": true, "or": true, "the": true, "this": true, "to": true, "was": true, "what": true,
	"with": true, "you": true, "your": true,
}

func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if !stopwords[f] {
			out = append(out, f)
		}
	}
	return out
}

func termFrequencies(s string) map[string]float64 {
	tf := make(map[string]float64)
	for _, t := range tokenize(s) {
		tf[t]++
	}
	return tf
}

func weigh(tf map[string]float64, idf func(string) float64) map[string]float64 {
	w := make(map[string]float64, len(tf))
	for t, f := range tf {
		w[t] = (1 + math.Log(f)) * idf(t)
	}
	return w
}

func cosine(a, b map[string]float64) float64 {
	if len(a) > len(b) {
		a, b = b, a
	}
	var dot float64
	for t, wa := range a {
		dot += wa * b[t]
	}
	if dot == 0 {
		return 0
	}
	return dot / (norm(a) * norm(b))
}

func norm(v map[string]float64) float64 {
	var sum float64
	for _, w := range v {
		sum += w * w
	}
	return math.Sqrt(sum)
}
