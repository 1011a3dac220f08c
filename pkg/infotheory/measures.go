// Package infotheory compares the original sentence with the chain outputs
// through word distributions: entropy, mutual information, divergences,
// the information bottleneck of the intermediate stages and transfer entropy
// between stages.
package infotheory

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Unit selects the symbols an entropy is measured over.
type Unit string

const (
	UnitChar Unit = "char"
	UnitWord Unit = "word"
)

const (
	probFloor = 1e-10
	smoothing = 0.01
)

// Entropy is the Shannon entropy of one text in bits.
type Entropy struct {
	TextName       string  `json:"text_name"`
	Shannon        float64 `json:"shannon_entropy"`
	Char           float64 `json:"char_entropy"`
	Word           float64 `json:"word_entropy"`
	Normalized     float64 `json:"normalized_entropy"`
	Redundancy     float64 `json:"redundancy"`
	Interpretation string  `json:"interpretation"`
}

// MutualInformation is the information shared by two texts.
type MutualInformation struct {
	Text1Name       string  `json:"text1_name"`
	Text2Name       string  `json:"text2_name"`
	MI              float64 `json:"mutual_information"`
	NormalizedMI    float64 `json:"normalized_mi"`
	EntropyText1    float64 `json:"entropy_text1"`
	EntropyText2    float64 `json:"entropy_text2"`
	JointEntropy    float64 `json:"joint_entropy"`
	InformationLoss float64 `json:"information_loss"`
	Interpretation  string  `json:"interpretation"`
}

// Divergence compares the smoothed word distributions of two texts, in nats.
type Divergence struct {
	SourceName     string  `json:"source_name"`
	TargetName     string  `json:"target_name"`
	KL             float64 `json:"kl_divergence"`
	ReverseKL      float64 `json:"reverse_kl"`
	JensenShannon  float64 `json:"jensen_shannon"`
	TotalVariation float64 `json:"total_variation"`
	Interpretation string  `json:"interpretation"`
}

// Bottleneck scores the chain as a compression of the original.
type Bottleneck struct {
	CompressionRate    float64 `json:"compression_rate"`
	RelevancePreserved float64 `json:"relevance_preserved"`
	Quality            float64 `json:"bottleneck_quality"`
	OptimalBeta        float64 `json:"optimal_beta"`
	Interpretation     string  `json:"interpretation"`
}

// Transfer is the approximate transfer entropy from one agent to the next.
type Transfer struct {
	SourceAgent       string  `json:"source_agent"`
	TargetAgent       string  `json:"target_agent"`
	TransferEntropy   float64 `json:"transfer_entropy"`
	EffectiveTransfer float64 `json:"effective_transfer"`
	CausalStrength    string  `json:"causal_strength"`
	Interpretation    string  `json:"interpretation"`
}

func words(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

func counts[T comparable](symbols []T) map[T]int {
	c := make(map[T]int, len(symbols))
	for _, s := range symbols {
		c[s]++
	}
	return c
}

func shannon[T comparable](c map[T]int) float64 {
	total := 0
	for _, n := range c {
		total += n
	}
	if total == 0 {
		return 0
	}
	h := 0.0
	for _, n := range c {
		p := float64(n) / float64(total)
		h -= p * math.Log2(p+probFloor)
	}
	return h
}

// CalculateEntropy measures text over characters or words. Normalized entropy
// divides by the entropy of a uniform distribution over the same symbols.
func CalculateEntropy(text string, unit Unit) Entropy {
	chars := counts([]rune(strings.ToLower(text)))
	ws := counts(words(text))

	result := Entropy{
		TextName: "text_" + string(unit),
		Char:     shannon(chars),
		Word:     shannon(ws),
	}
	distinct := len(ws)
	result.Shannon = result.Word
	if unit == UnitChar {
		distinct = len(chars)
		result.Shannon = result.Char
	}
	if maxEntropy := log2Count(distinct); maxEntropy > 0 {
		result.Normalized = result.Shannon / maxEntropy
	}
	result.Redundancy = 1 - result.Normalized

	switch {
	case result.Normalized > 0.9:
		result.Interpretation = "High entropy: rich, diverse content with low redundancy"
	case result.Normalized > 0.7:
		result.Interpretation = "Moderate entropy: balanced information density"
	case result.Normalized > 0.5:
		result.Interpretation = "Low-moderate entropy: some patterns/repetition present"
	default:
		result.Interpretation = "Low entropy: highly structured or repetitive content"
	}
	return result
}

func log2Count(n int) float64 {
	if n <= 1 {
		return 0
	}
	return math.Log2(float64(n))
}

// vocabulary returns the sorted union of the word types of both texts.
func vocabulary(a, b map[string]int) []string {
	vocab := make([]string, 0, len(a)+len(b))
	for w := range a {
		vocab = append(vocab, w)
	}
	for w := range b {
		if _, ok := a[w]; !ok {
			vocab = append(vocab, w)
		}
	}
	sort.Strings(vocab)
	return vocab
}

func clippedEntropy(c map[string]int, vocab []string) float64 {
	total := 0
	for _, n := range c {
		total += n
	}
	h := 0.0
	for _, w := range vocab {
		p := probFloor
		if total > 0 {
			p = math.Min(math.Max(float64(c[w])/float64(total), probFloor), 1)
		}
		h -= p * math.Log2(p)
	}
	return h
}

// CalculateMutualInformation estimates I(X;Y) between two texts. Without an
// alignment the joint entropy is approximated from the share of common word
// types: H(X,Y) = H(X) + H(Y)·(1 − overlap).
func CalculateMutualInformation(text1, text2, name1, name2 string) MutualInformation {
	c1, c2 := counts(words(text1)), counts(words(text2))
	vocab := vocabulary(c1, c2)

	hx := clippedEntropy(c1, vocab)
	hy := clippedEntropy(c2, vocab)

	overlapRatio := 0.0
	if len(vocab) > 0 {
		common := 0
		for w := range c1 {
			if _, ok := c2[w]; ok {
				common++
			}
		}
		overlapRatio = float64(common) / float64(len(vocab))
	}

	hxy := hx + hy*(1-overlapRatio)
	mi := math.Max(0, hx+hy-hxy)

	normalizer := 1.0
	if hx > 0 && hy > 0 {
		normalizer = math.Sqrt(hx * hy)
	}
	nmi := math.Min(1, mi/normalizer)

	result := MutualInformation{
		Text1Name:       name1,
		Text2Name:       name2,
		MI:              mi,
		NormalizedMI:    nmi,
		EntropyText1:    hx,
		EntropyText2:    hy,
		JointEntropy:    hxy,
		InformationLoss: hx - mi,
	}
	switch {
	case nmi > 0.8:
		result.Interpretation = "Excellent preservation: most original information retained"
	case nmi > 0.6:
		result.Interpretation = "Good preservation: majority of information preserved"
	case nmi > 0.4:
		result.Interpretation = "Moderate preservation: significant information loss"
	default:
		result.Interpretation = "Poor preservation: substantial information loss occurred"
	}
	return result
}

func smoothed(c map[string]int, vocab []string) []float64 {
	total := 0
	for _, n := range c {
		total += n
	}
	denom := float64(total) + smoothing*float64(len(vocab))
	p := make([]float64, len(vocab))
	sum := 0.0
	for i, w := range vocab {
		p[i] = (float64(c[w]) + smoothing) / denom
		sum += p[i]
	}
	for i := range p {
		p[i] /= sum
	}
	return p
}

func relEntropy(p, q []float64) float64 {
	d := 0.0
	for i := range p {
		if p[i] > 0 {
			d += p[i] * math.Log(p[i]/q[i])
		}
	}
	return d
}

// CalculateDivergence compares additively smoothed word distributions with
// KL in both directions, Jensen-Shannon and total variation distance.
func CalculateDivergence(text1, text2, name1, name2 string) Divergence {
	c1, c2 := counts(words(text1)), counts(words(text2))
	vocab := vocabulary(c1, c2)
	result := Divergence{SourceName: name1, TargetName: name2}
	if len(vocab) > 0 {
		p, q := smoothed(c1, vocab), smoothed(c2, vocab)
		m := make([]float64, len(p))
		for i := range p {
			m[i] = (p[i] + q[i]) / 2
			result.TotalVariation += math.Abs(p[i]-q[i]) / 2
		}
		result.KL = relEntropy(p, q)
		result.ReverseKL = relEntropy(q, p)
		result.JensenShannon = (relEntropy(p, m) + relEntropy(q, m)) / 2
	}

	switch js := result.JensenShannon / math.Ln2; {
	case js < 0.1:
		result.Interpretation = "Minimal divergence: distributions nearly identical"
	case js < 0.3:
		result.Interpretation = "Low divergence: minor distributional differences"
	case js < 0.5:
		result.Interpretation = "Moderate divergence: noticeable distribution shift"
	default:
		result.Interpretation = "High divergence: significant distributional change"
	}
	return result
}

// maxBeta caps the trade-off parameter when nothing was compressed.
const maxBeta = 100

// CalculateBottleneck treats the intermediates as the compressed
// representation of original and final as the prediction target.
func CalculateBottleneck(original string, intermediates []string, final string) Bottleneck {
	relevanceMI := CalculateMutualInformation(original, final, "original", "final").MI
	hx := CalculateEntropy(original, UnitWord).Shannon

	var compression, relevance float64
	if hx > 0 {
		sum := 0.0
		for i, text := range intermediates {
			sum += CalculateMutualInformation(original, text, "original", fmt.Sprintf("intermediate_%d", i)).MI
		}
		avg := 0.0
		if len(intermediates) > 0 {
			avg = sum / float64(len(intermediates))
		}
		compression = clamp01(1 - avg/hx)
		relevance = clamp01(relevanceMI / hx)
	}

	result := Bottleneck{
		CompressionRate:    compression,
		RelevancePreserved: relevance,
		Quality:            relevance * (1 - compression*0.5),
		OptimalBeta:        maxBeta,
	}
	if compression > 0 {
		result.OptimalBeta = math.Min(relevance/compression, maxBeta)
	}
	switch {
	case result.Quality > 0.8:
		result.Interpretation = "Excellent bottleneck: optimal compression with high relevance"
	case result.Quality > 0.6:
		result.Interpretation = "Good bottleneck: reasonable compression-relevance trade-off"
	case result.Quality > 0.4:
		result.Interpretation = "Moderate bottleneck: room for optimization"
	default:
		result.Interpretation = "Poor bottleneck: excessive compression or low relevance"
	}
	return result
}

// CalculateTransfer approximates TE(source→target) over aligned series of
// outputs as I(Y_t; X_t−1) − ½·I(Y_t; Y_t−1), averaged over t and normalized
// by the mean word entropy of the source.
func CalculateTransfer(source, target []string, sourceName, targetName string) Transfer {
	result := Transfer{SourceAgent: sourceName, TargetAgent: targetName}
	n := min(len(source), len(target))
	if n < 2 {
		result.CausalStrength = "insufficient_data"
		result.Interpretation = "Need at least 2 time points for transfer entropy"
		return result
	}

	sum := 0.0
	for t := 1; t < n; t++ {
		fromSource := CalculateMutualInformation(target[t], source[t-1], "", "").MI
		fromSelf := CalculateMutualInformation(target[t], target[t-1], "", "").MI
		sum += math.Max(0, fromSource-0.5*fromSelf)
	}
	result.TransferEntropy = sum / float64(n-1)

	sourceEntropy := 0.0
	for _, text := range source {
		sourceEntropy += CalculateEntropy(text, UnitWord).Shannon
	}
	sourceEntropy /= float64(len(source))
	if sourceEntropy > 0 {
		result.EffectiveTransfer = math.Min(1, result.TransferEntropy/sourceEntropy)
	}

	switch e := result.EffectiveTransfer; {
	case e > 0.6:
		result.CausalStrength = "strong"
		result.Interpretation = fmt.Sprintf("Strong causal flow from %s to %s", sourceName, targetName)
	case e > 0.3:
		result.CausalStrength = "moderate"
		result.Interpretation = fmt.Sprintf("Moderate causal influence from %s to %s", sourceName, targetName)
	case e > 0.1:
		result.CausalStrength = "weak"
		result.Interpretation = "Weak causal relationship detected"
	default:
		result.CausalStrength = "negligible"
		result.Interpretation = "No significant causal flow detected"
	}
	return result
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
