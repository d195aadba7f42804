package similarity

import (
	"fmt"
	"math"
	"slices"
)

// Vector is a sparse, L2-normalised TF-IDF vector keyed by vocabulary index.
type Vector map[int]float64

// Vectorizer holds the vocabulary and smoothed inverse document frequencies
// learned from a corpus.
type Vectorizer struct {
	vocab map[string]int
	idf   []float64
}

// Fit learns vocabulary and idf = ln((1+n)/(1+df)) + 1 over docs.
func Fit(docs []string) *Vectorizer {
	v := &Vectorizer{vocab: make(map[string]int)}
	docFreq := make([]int, 0)

	for _, doc := range docs {
		seen := make(map[int]bool)
		for _, token := range Tokenize(doc) {
			idx, ok := v.vocab[token]
			if !ok {
				idx = len(v.vocab)
				v.vocab[token] = idx
				docFreq = append(docFreq, 0)
			}
			if !seen[idx] {
				seen[idx] = true
				docFreq[idx]++
			}
		}
	}

	n := float64(len(docs))
	v.idf = make([]float64, len(docFreq))
	for idx, df := range docFreq {
		v.idf[idx] = math.Log((1+n)/(1+float64(df))) + 1
	}
	return v
}

// VocabularySize reports how many distinct terms were learned.
func (v *Vectorizer) VocabularySize() int {
	return len(v.vocab)
}

// Transform maps doc to its TF-IDF vector. Terms outside the vocabulary are ignored.
func (v *Vectorizer) Transform(doc string) Vector {
	counts := make(map[int]float64)
	for _, token := range Tokenize(doc) {
		if idx, ok := v.vocab[token]; ok {
			counts[idx]++
		}
	}

	var norm float64
	for idx, tf := range counts {
		weight := tf * v.idf[idx]
		counts[idx] = weight
		norm += weight * weight
	}
	if norm == 0 {
		return Vector{}
	}
	norm = math.Sqrt(norm)
	for idx := range counts {
		counts[idx] /= norm
	}
	return Vector(counts)
}

// Cosine returns the cosine similarity of two normalised vectors, clamped to [0,1].
func Cosine(a, b Vector) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	if len(b) < len(a) {
		a, b = b, a
	}
	var dot float64
	for idx, weight := range a {
		dot += weight * b[idx]
	}
	return clamp01(dot)
}

// PairwiseCosine fits one vectorizer over answers followed by completions and
// scores each answer against the completion at the same position.
func PairwiseCosine(answers, completions []string) ([]float64, error) {
	if len(answers) != len(completions) {
		return nil, fmt.Errorf("similarity: %d answers but %d completions", len(answers), len(completions))
	}

	corpus := make([]string, 0, len(answers)*2)
	corpus = append(corpus, answers...)
	corpus = append(corpus, completions...)
	vectorizer := Fit(corpus)

	scores := make([]float64, len(answers))
	for i := range answers {
		answerTerms, completionTerms := Tokenize(answers[i]), Tokenize(completions[i])
		if len(answerTerms) == 0 && len(completionTerms) == 0 {
			// Neither side has a word token; fall back to exact comparison.
			if Normalize(answers[i]) == Normalize(completions[i]) {
				scores[i] = 1
			}
			continue
		}
		// Equal term multisets give identical vectors; skip the float dot product.
		if sameTerms(answerTerms, completionTerms) {
			scores[i] = 1
			continue
		}
		scores[i] = Cosine(vectorizer.Transform(answers[i]), vectorizer.Transform(completions[i]))
	}
	return scores, nil
}

// Mean returns the arithmetic mean of scores; ok is false for an empty slice.
func Mean(scores []float64) (mean float64, ok bool) {
	if len(scores) == 0 {
		return 0, false
	}
	var sum float64
	for _, score := range scores {
		sum += score
	}
	return sum / float64(len(scores)), true
}

func sameTerms(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	a, b = slices.Clone(a), slices.Clone(b)
	slices.Sort(a)
	slices.Sort(b)
	return slices.Equal(a, b)
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
