// Package enrich implements the four enrichment worker-pool stages (C6):
// ingest, annotate, cluster, and reports. Each stage is a pure function of
// its queue's payload plus the persistence/cache/vector-store adapters —
// idempotent on replay, so an at-least-once redelivery never double-counts.
package enrich

import (
	"hash/fnv"
	"sort"
	"strings"

	"github.com/wisbric/feedbackapi/internal/store"
)

// SentimentModel scores a feedback body's sentiment. The annotate stage
// treats the model as a pure function identified by a declared version
// tag, never as something this package trains or tunes.
type SentimentModel interface {
	Version() string
	Score(body string) (class store.SentimentClass, confidence float64)
}

// ToxicityModel scores a feedback body's toxicity in [0,1].
type ToxicityModel interface {
	Version() string
	Score(body string) float64
}

// EmbeddingModel computes a fixed-width embedding vector for a feedback body.
type EmbeddingModel interface {
	Version() string
	Dimensions() int
	Embed(body string) []float32
}

// lexiconSentimentModel is the default SentimentModel: a small polarity
// word list, scored by net polarity over token count. It exists so the
// annotate stage is exercisable without a real ML dependency; production
// deployments are expected to supply a model-backed implementation behind
// the same interface.
type lexiconSentimentModel struct{}

// NewLexiconSentimentModel creates the default sentiment scorer.
func NewLexiconSentimentModel() SentimentModel { return lexiconSentimentModel{} }

func (lexiconSentimentModel) Version() string { return "lexicon-v1" }

var positiveWords = map[string]struct{}{
	"great": {}, "good": {}, "love": {}, "excellent": {}, "amazing": {},
	"helpful": {}, "fast": {}, "easy": {}, "happy": {}, "best": {},
}

var negativeWords = map[string]struct{}{
	"bad": {}, "terrible": {}, "hate": {}, "slow": {}, "broken": {},
	"awful": {}, "worst": {}, "confusing": {}, "disappointed": {}, "crash": {},
}

func (lexiconSentimentModel) Score(body string) (store.SentimentClass, float64) {
	tokens := tokenize(body)
	if len(tokens) == 0 {
		return store.SentimentNeutral, 0.5
	}

	var pos, neg int
	for _, tok := range tokens {
		if _, ok := positiveWords[tok]; ok {
			pos++
		}
		if _, ok := negativeWords[tok]; ok {
			neg++
		}
	}

	net := pos - neg
	hits := pos + neg
	switch {
	case net > 0:
		return store.SentimentPositive, confidenceFrom(hits, len(tokens))
	case net < 0:
		return store.SentimentNegative, confidenceFrom(hits, len(tokens))
	default:
		return store.SentimentNeutral, 0.5
	}
}

func confidenceFrom(hits, total int) float64 {
	if total == 0 {
		return 0.5
	}
	conf := 0.5 + float64(hits)/float64(total)*0.5
	if conf > 0.99 {
		conf = 0.99
	}
	return conf
}

// lexiconToxicityModel is the default ToxicityModel: a small slur/profanity
// marker list scored by density over token count.
type lexiconToxicityModel struct{}

// NewLexiconToxicityModel creates the default toxicity scorer.
func NewLexiconToxicityModel() ToxicityModel { return lexiconToxicityModel{} }

func (lexiconToxicityModel) Version() string { return "lexicon-toxicity-v1" }

var toxicMarkers = map[string]struct{}{
	"idiot": {}, "stupid": {}, "garbage": {}, "trash": {}, "scam": {}, "shut": {},
}

func (lexiconToxicityModel) Score(body string) float64 {
	tokens := tokenize(body)
	if len(tokens) == 0 {
		return 0
	}
	var hits int
	for _, tok := range tokens {
		if _, ok := toxicMarkers[tok]; ok {
			hits++
		}
	}
	score := float64(hits) / float64(len(tokens)) * 4
	if score > 1 {
		score = 1
	}
	return score
}

// hashingEmbeddingModel is the default EmbeddingModel: a feature-hashed
// bag-of-words into a fixed-width float32 vector, deterministic and
// dependency-free so the cluster stage is exercisable without an external
// embedding service.
type hashingEmbeddingModel struct {
	dims int
}

// NewHashingEmbeddingModel creates the default embedding model at the given
// vector width.
func NewHashingEmbeddingModel(dims int) EmbeddingModel {
	return hashingEmbeddingModel{dims: dims}
}

func (m hashingEmbeddingModel) Version() string  { return "feature-hash-v1" }
func (m hashingEmbeddingModel) Dimensions() int  { return m.dims }

func (m hashingEmbeddingModel) Embed(body string) []float32 {
	vec := make([]float32, m.dims)
	for _, tok := range tokenize(body) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(tok))
		idx := int(h.Sum32()) % m.dims
		if idx < 0 {
			idx += m.dims
		}
		vec[idx]++
	}
	normalize(vec)
	return vec
}

func normalize(vec []float32) {
	var sumSq float64
	for _, v := range vec {
		sumSq += float64(v) * float64(v)
	}
	if sumSq == 0 {
		return
	}
	norm := float32(1 / sqrt(sumSq))
	for i := range vec {
		vec[i] *= norm
	}
}

func sqrt(v float64) float64 {
	if v == 0 {
		return 0
	}
	x := v
	for i := 0; i < 20; i++ {
		x = 0.5 * (x + v/x)
	}
	return x
}

func tokenize(body string) []string {
	fields := strings.FieldsFunc(strings.ToLower(body), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
	return fields
}

// topKeywords returns the n most frequent tokens across bodies, used by the
// cluster stage to synthesise a label for a newly spawned topic.
func topKeywords(bodies []string, n int) []string {
	counts := make(map[string]int)
	for _, b := range bodies {
		for _, tok := range tokenize(b) {
			if len(tok) < 3 {
				continue
			}
			counts[tok]++
		}
	}

	type kv struct {
		word  string
		count int
	}
	kvs := make([]kv, 0, len(counts))
	for w, c := range counts {
		kvs = append(kvs, kv{w, c})
	}
	sort.Slice(kvs, func(i, j int) bool {
		if kvs[i].count != kvs[j].count {
			return kvs[i].count > kvs[j].count
		}
		return kvs[i].word < kvs[j].word
	})

	out := make([]string, 0, n)
	for i := 0; i < len(kvs) && i < n; i++ {
		out = append(out, kvs[i].word)
	}
	return out
}
