package embedding

import (
	"errors"
	"fmt"
	"math"

	"github.com/datar-psa/goanchor/api"
)

// ErrNoDistributions is returned when averaging an empty list of distributions
var ErrNoDistributions = errors.New("no distributions to average")

// MaxEntropy is the entropy of the uniform distribution over the rating levels
var MaxEntropy = math.Log2(api.NumLevels)

// CosineSimilarity computes the cosine similarity between two vectors.
// Returns a value between -1 and 1, where 1 means identical direction.
// A zero vector has similarity 0 with anything.
func CosineSimilarity(a, b api.Vector) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d != %d", api.ErrDimensionMismatch, len(a), len(b))
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0, nil
	}

	sim := dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
	return math.Max(-1, math.Min(1, sim)), nil
}

// SimilarityToDistribution converts the similarities between an answer and the
// five level statements of one anchor set into a probability distribution.
//
// Similarities are scaled by 1/temperature and passed through a softmax shifted by
// the maximum scaled value. epsilon is added to every exponentiated term before
// normalizing, so no level ends up with zero probability.
func SimilarityToDistribution(sims [api.NumLevels]float64, temperature, epsilon float64) (api.Distribution, error) {
	var dist api.Distribution

	if !(temperature > 0) || math.IsInf(temperature, 0) {
		return dist, fmt.Errorf("%w: %v", api.ErrInvalidTemperature, temperature)
	}
	if !(epsilon >= 0) || math.IsInf(epsilon, 0) {
		return dist, fmt.Errorf("%w: %v", api.ErrInvalidEpsilon, epsilon)
	}

	var scaled [api.NumLevels]float64
	maxScaled := math.Inf(-1)
	for i, s := range sims {
		scaled[i] = s / temperature
		if scaled[i] > maxScaled {
			maxScaled = scaled[i]
		}
	}

	var sum float64
	for i := range scaled {
		dist[i] = math.Exp(scaled[i]-maxScaled) + epsilon
		sum += dist[i]
	}
	for i := range dist {
		dist[i] /= sum
	}

	return normalize(dist), nil
}

// ExpectedScore returns the probability-weighted mean level of d, in [1, 5]
func ExpectedScore(d api.Distribution) float64 {
	var score float64
	for i, p := range d {
		score += float64(api.Levels[i]) * p
	}
	return math.Max(1, math.Min(api.NumLevels, score))
}

// Entropy returns the base-2 Shannon entropy of d, in [0, log2(5)].
// Zero probabilities contribute nothing.
func Entropy(d api.Distribution) float64 {
	var h float64
	for _, p := range d {
		if p > 0 {
			h -= p * math.Log2(p)
		}
	}
	return math.Max(0, math.Min(MaxEntropy, h))
}

// Average returns the element-wise mean of ds, each distribution weighted equally
func Average(ds []api.Distribution) (api.Distribution, error) {
	var avg api.Distribution
	if len(ds) == 0 {
		return avg, ErrNoDistributions
	}

	for _, d := range ds {
		for i, p := range d {
			avg[i] += p
		}
	}
	n := float64(len(ds))
	for i := range avg {
		avg[i] /= n
	}

	return normalize(avg), nil
}

// normalize rescales d to sum to 1, absorbing floating point drift
func normalize(d api.Distribution) api.Distribution {
	var sum float64
	for _, p := range d {
		sum += p
	}
	if sum == 0 {
		return d
	}
	for i := range d {
		d[i] /= sum
	}
	return d
}
