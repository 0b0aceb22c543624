// Package similarity computes pairwise similarity between entities of the
// same type, combining weighted name, identifier, contact and platform
// signals into a single score in [0,1].
package similarity

import (
	"math"
	"sort"
	"strings"

	"osint-resolver/pkg/types"
)

// Signal weights. Platform carries more weight for social profiles, where
// it is half of the identity.
const (
	weightName            = 0.30
	weightIdentifier      = 0.25
	weightContact         = 0.25
	weightPlatform        = 0.10
	weightPlatformProfile = 0.20
)

// Text similarity blend weights.
const (
	blendTokenOverlap = 0.3
	blendEditDistance = 0.4
	blendCosine       = 0.3
)

// handleContainmentScore is the short-circuit score when one handle
// contains the other.
const handleContainmentScore = 0.8

// platformSynonyms maps known platform aliases to a canonical name.
var platformSynonyms = map[string]string{
	"x":       "twitter",
	"twitter": "twitter",
	"ig":      "instagram",
	"insta":   "instagram",
	"fb":      "facebook",
	"gh":      "github",
	"in":      "linkedin",
	"yt":      "youtube",
}

// Scorer computes pairwise similarity scores, memoizing results in a
// run-owned pair cache.
type Scorer struct {
	cache *PairCache
}

// NewScorer creates a scorer backed by the given cache. A nil cache
// disables memoization.
func NewScorer(cache *PairCache) *Scorer {
	return &Scorer{cache: cache}
}

// Score returns the similarity of two entities in [0,1]. It is symmetric
// and defined only for entities of the same type; entities of different
// types score 0. A signal absent on either side contributes nothing
// rather than counting as a penalty.
func (s *Scorer) Score(a, b *types.Entity) float64 {
	if a.Type != b.Type {
		return 0
	}
	if a.ID == b.ID {
		return 1.0
	}

	if s.cache != nil {
		if score, ok := s.cache.Get(a.ID, b.ID); ok {
			return score
		}
	}

	score := s.compute(a, b)

	if s.cache != nil {
		s.cache.Put(a.ID, b.ID, score)
	}
	return score
}

// compute evaluates every signal with evidence on both sides and returns
// the weighted mean over the signals that produced a positive score.
// Including zero-valued signals in the denominator would let one
// disagreeing field suppress an otherwise strong identity match; negative
// evidence is the conflict detector's job, not the scorer's.
func (s *Scorer) compute(a, b *types.Entity) float64 {
	var weighted, weightSum float64

	add := func(score, weight float64) {
		if score > 0 {
			weighted += score * weight
			weightSum += weight
		}
	}

	if nameA, nameB := nameValue(a), nameValue(b); nameA != "" && nameB != "" {
		add(TextSimilarity(nameA, nameB), weightName)
	}

	if idA, idB := identifierValue(a), identifierValue(b); idA != "" && idB != "" {
		add(HandleSimilarity(idA, idB), weightIdentifier)
	}

	if contact := contactSimilarity(a, b); contact >= 0 {
		add(contact, weightContact)
	}

	if platA, platB := a.Attr(types.AttrPlatform), b.Attr(types.AttrPlatform); platA != "" && platB != "" {
		w := weightPlatform
		if a.Type == types.EntityTypeSocialProfile {
			w = weightPlatformProfile
		}
		add(PlatformSimilarity(platA, platB), w)
	}

	if weightSum == 0 {
		return 0
	}
	return clamp01(weighted / weightSum)
}

// nameValue returns the textual name signal for an entity. Social
// profiles use their display name (the username is the identifier
// signal); bare usernames have no separate name signal.
func nameValue(e *types.Entity) string {
	switch e.Type {
	case types.EntityTypeSocialProfile:
		return e.Attr(types.AttrName)
	case types.EntityTypeUsername:
		return ""
	default:
		return e.Principal()
	}
}

// identifierValue returns the username/handle signal for an entity.
func identifierValue(e *types.Entity) string {
	if v := e.Attr(types.AttrUsername); v != "" {
		return v
	}
	return e.Attr(types.AttrHandle)
}

// TextSimilarity blends token-set overlap, edit-distance similarity and
// term-frequency cosine similarity. Exact matches short-circuit to 1.
func TextSimilarity(text1, text2 string) float64 {
	t1 := strings.ToLower(strings.TrimSpace(text1))
	t2 := strings.ToLower(strings.TrimSpace(text2))
	if t1 == "" || t2 == "" {
		return 0
	}
	if t1 == t2 {
		return 1.0
	}

	blend := blendTokenOverlap*jaccardSimilarity(t1, t2) +
		blendEditDistance*editSimilarity(t1, t2) +
		blendCosine*cosineSimilarity(t1, t2)
	return clamp01(blend)
}

// HandleSimilarity compares two usernames/handles. Containment between
// the two short-circuits to 0.8, otherwise it falls back to text
// similarity.
func HandleSimilarity(handle1, handle2 string) float64 {
	h1 := strings.ToLower(strings.TrimSpace(handle1))
	h2 := strings.ToLower(strings.TrimSpace(handle2))
	if h1 == "" || h2 == "" {
		return 0
	}
	if h1 == h2 {
		return 1.0
	}
	if strings.Contains(h1, h2) || strings.Contains(h2, h1) {
		return handleContainmentScore
	}
	return TextSimilarity(h1, h2)
}

// contactSimilarity compares email and phone fields. It returns -1 when
// neither side shares a contact field (signal absent), otherwise the best
// match among the shared fields.
func contactSimilarity(a, b *types.Entity) float64 {
	present := false
	best := 0.0

	if emailA, emailB := a.Attr(types.AttrEmail), b.Attr(types.AttrEmail); emailA != "" && emailB != "" {
		present = true
		best = math.Max(best, EmailSimilarity(emailA, emailB))
	}
	if phoneA, phoneB := a.Attr(types.AttrPhone), b.Attr(types.AttrPhone); phoneA != "" && phoneB != "" {
		present = true
		best = math.Max(best, PhoneSimilarity(phoneA, phoneB))
	}

	if !present {
		return -1
	}
	return best
}

// EmailSimilarity compares two normalized email addresses: exact match
// scores 1.0, a shared domain 0.9, anything else 0.
func EmailSimilarity(email1, email2 string) float64 {
	e1 := strings.ToLower(strings.TrimSpace(email1))
	e2 := strings.ToLower(strings.TrimSpace(email2))
	if e1 == "" || e2 == "" {
		return 0
	}
	if e1 == e2 {
		return 1.0
	}
	if d1, d2 := emailDomain(e1), emailDomain(e2); d1 != "" && d1 == d2 {
		return 0.9
	}
	return 0
}

// PhoneSimilarity compares two digits-only phone numbers: exact match
// scores 1.0, matching trailing 7 digits 0.8, anything else 0.
func PhoneSimilarity(phone1, phone2 string) float64 {
	p1 := digitsOnly(phone1)
	p2 := digitsOnly(phone2)
	if p1 == "" || p2 == "" {
		return 0
	}
	if p1 == p2 {
		return 1.0
	}
	if len(p1) >= 7 && len(p2) >= 7 && p1[len(p1)-7:] == p2[len(p2)-7:] {
		return 0.8
	}
	return 0
}

// PlatformSimilarity compares two platform names case-insensitively:
// exact match scores 1.0, a known synonym pair 0.9, anything else 0.
func PlatformSimilarity(platform1, platform2 string) float64 {
	p1 := strings.ToLower(strings.TrimSpace(platform1))
	p2 := strings.ToLower(strings.TrimSpace(platform2))
	if p1 == "" || p2 == "" {
		return 0
	}
	if p1 == p2 {
		return 1.0
	}
	c1, ok1 := platformSynonyms[p1]
	c2, ok2 := platformSynonyms[p2]
	if !ok1 {
		c1 = p1
	}
	if !ok2 {
		c2 = p2
	}
	if c1 == c2 {
		return 0.9
	}
	return 0
}

// jaccardSimilarity computes token-set overlap over whitespace-split
// lowercase tokens.
func jaccardSimilarity(text1, text2 string) float64 {
	set1 := tokenSet(text1)
	set2 := tokenSet(text2)
	if len(set1) == 0 || len(set2) == 0 {
		return 0
	}

	intersection := 0
	for token := range set1 {
		if set2[token] {
			intersection++
		}
	}
	union := len(set1) + len(set2) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// editSimilarity converts Levenshtein distance into a similarity:
// 1 - distance/maxLen.
func editSimilarity(text1, text2 string) float64 {
	maxLen := len([]rune(text1))
	if l2 := len([]rune(text2)); l2 > maxLen {
		maxLen = l2
	}
	if maxLen == 0 {
		return 0
	}
	return 1.0 - float64(levenshtein(text1, text2))/float64(maxLen)
}

// levenshtein computes the classic edit distance between two strings.
func levenshtein(text1, text2 string) int {
	r1 := []rune(text1)
	r2 := []rune(text2)

	if len(r1) == 0 {
		return len(r2)
	}
	if len(r2) == 0 {
		return len(r1)
	}

	prev := make([]int, len(r2)+1)
	curr := make([]int, len(r2)+1)
	for j := 0; j <= len(r2); j++ {
		prev[j] = j
	}

	for i := 1; i <= len(r1); i++ {
		curr[0] = i
		for j := 1; j <= len(r2); j++ {
			cost := 1
			if r1[i-1] == r2[j-1] {
				cost = 0
			}
			curr[j] = minInt(curr[j-1]+1, minInt(prev[j]+1, prev[j-1]+cost))
		}
		prev, curr = curr, prev
	}

	return prev[len(r2)]
}

// cosineSimilarity computes term-frequency cosine similarity over
// whitespace-split tokens.
func cosineSimilarity(text1, text2 string) float64 {
	freq1 := termFrequencies(text1)
	freq2 := termFrequencies(text2)
	if len(freq1) == 0 || len(freq2) == 0 {
		return 0
	}

	terms := make([]string, 0, len(freq1))
	for term := range freq1 {
		terms = append(terms, term)
	}
	sort.Strings(terms)

	var dot float64
	for _, term := range terms {
		if count2, ok := freq2[term]; ok {
			dot += float64(freq1[term]) * float64(count2)
		}
	}
	if dot == 0 {
		return 0
	}

	var norm1, norm2 float64
	for _, count := range freq1 {
		norm1 += float64(count) * float64(count)
	}
	for _, count := range freq2 {
		norm2 += float64(count) * float64(count)
	}
	return dot / (math.Sqrt(norm1) * math.Sqrt(norm2))
}

func tokenSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, token := range strings.Fields(text) {
		set[token] = true
	}
	return set
}

func termFrequencies(text string) map[string]int {
	freq := make(map[string]int)
	for _, token := range strings.Fields(text) {
		freq[token]++
	}
	return freq
}

func emailDomain(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return ""
	}
	return email[at+1:]
}

func digitsOnly(phone string) string {
	var sb strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
