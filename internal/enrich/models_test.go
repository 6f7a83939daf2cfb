package enrich

import (
	"testing"

	"github.com/wisbric/feedbackapi/internal/store"
)

func TestLexiconSentimentModel_Score(t *testing.T) {
	m := NewLexiconSentimentModel()

	class, conf := m.Score("This product is great and amazing, I love it")
	if class != store.SentimentPositive {
		t.Errorf("class = %v, want positive", class)
	}
	if conf <= 0.5 {
		t.Errorf("confidence = %v, want > 0.5", conf)
	}

	class, _ = m.Score("This is terrible and broken, I hate it")
	if class != store.SentimentNegative {
		t.Errorf("class = %v, want negative", class)
	}

	class, conf = m.Score("The package arrived on Tuesday")
	if class != store.SentimentNeutral {
		t.Errorf("class = %v, want neutral", class)
	}
	if conf != 0.5 {
		t.Errorf("neutral confidence = %v, want 0.5", conf)
	}
}

func TestLexiconToxicityModel_Score(t *testing.T) {
	m := NewLexiconToxicityModel()

	if got := m.Score("this is garbage and trash, stupid product"); got <= 0 {
		t.Errorf("toxic score = %v, want > 0", got)
	}
	if got := m.Score("the delivery was on time and accurate"); got != 0 {
		t.Errorf("clean score = %v, want 0", got)
	}
}

func TestHashingEmbeddingModel_Deterministic(t *testing.T) {
	m := NewHashingEmbeddingModel(32)
	a := m.Embed("great product fast shipping")
	b := m.Embed("great product fast shipping")

	if len(a) != 32 {
		t.Fatalf("dimensions = %d, want 32", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("embedding not deterministic at index %d: %v != %v", i, a[i], b[i])
		}
	}
}

func TestTopKeywords_OrdersByFrequency(t *testing.T) {
	bodies := []string{
		"shipping was slow shipping shipping",
		"shipping delay again",
		"great product",
	}
	got := topKeywords(bodies, 2)
	if len(got) != 2 || got[0] != "shipping" {
		t.Errorf("topKeywords = %v, want [shipping, ...]", got)
	}
}

func TestCosineSimilarityVec(t *testing.T) {
	if s := cosineSimilarityVec([]float32{1, 0}, []float32{1, 0}); s < 0.99 {
		t.Errorf("identical vectors similarity = %v, want ~1", s)
	}
	if s := cosineSimilarityVec([]float32{1, 0}, []float32{0, 1}); s > 0.01 {
		t.Errorf("orthogonal vectors similarity = %v, want ~0", s)
	}
	if s := cosineSimilarityVec(nil, []float32{1}); s != 0 {
		t.Errorf("mismatched lengths similarity = %v, want 0", s)
	}
}

func TestNearestCentroid_RespectsThreshold(t *testing.T) {
	centroids := map[int64][]float32{
		1: {1, 0},
		2: {0, 1},
	}

	id, ok := nearestCentroid([]float32{0.9, 0.1}, centroids, 0.8)
	if !ok || id != 1 {
		t.Errorf("nearestCentroid = (%d, %v), want (1, true)", id, ok)
	}

	_, ok = nearestCentroid([]float32{0.5, 0.5}, centroids, 0.95)
	if ok {
		t.Errorf("expected no match above threshold 0.95")
	}
}
