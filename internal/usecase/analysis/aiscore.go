package analysis

import (
	"regexp"
	"strings"

	"x-intel/internal/domain"
)

var sentenceRe = regexp.MustCompile(`[.!?]+`)

// BuildAIContentScores оценивает вероятность ИИ-авторства текста каждого
// поста: лексическое разнообразие, повторяющиеся биграммы, формальные
// маркеры и монотонность длины предложений.
func BuildAIContentScores(posts []domain.Post, collectionNotes []string) []domain.AIContentScore {
	if len(posts) == 0 {
		return nil
	}

	scores := make([]domain.AIContentScore, 0, len(posts))
	for _, post := range posts {
		normalized := NormalizeText(post.Text)
		words := splitWords(normalized)
		wordCount := len(words)

		uniqueRatio := 1.0
		if wordCount > 0 {
			unique := make(map[string]bool, wordCount)
			for _, word := range words {
				unique[word] = true
			}
			uniqueRatio = float64(len(unique)) / float64(wordCount)
		}
		repetition := repeatedBigramRatio(words)

		markerHits := 0
		lowered := strings.ToLower(post.Text)
		for _, marker := range formalMarkers {
			if strings.Contains(lowered, marker) {
				markerHits++
			}
		}

		var sentenceLengths []int
		for _, segment := range sentenceRe.Split(post.Text, -1) {
			if strings.TrimSpace(segment) == "" {
				continue
			}
			sentenceLengths = append(sentenceLengths, len(strings.Fields(segment)))
		}
		sentenceStd := stdDev(sentenceLengths)

		probability := 0.08
		switch {
		case uniqueRatio < 0.45:
			probability += 0.25
		case uniqueRatio < 0.55:
			probability += 0.15
		}
		switch {
		case repetition > 0.22:
			probability += 0.25
		case repetition > 0.12:
			probability += 0.1
		}
		switch {
		case markerHits >= 2:
			probability += 0.2
		case markerHits == 1:
			probability += 0.1
		}
		if wordCount >= 80 && sentenceStd < 4.5 {
			probability += 0.15
		}

		imageProbability := 0.0
		provenance := []string{"X API does not expose original file provenance/C2PA metadata."}
		if len(post.MediaURLs) > 0 {
			imageProbability = 0.2
			provenance = append(provenance, "Media URLs are present, but original binaries were not downloaded in this pass.")
		}
		for i, note := range collectionNotes {
			if i >= 2 {
				break
			}
			provenance = append(provenance, note)
		}

		confidence := domain.ConfidenceLow
		if wordCount >= 40 {
			confidence = domain.ConfidenceMedium
		}

		scores = append(scores, domain.AIContentScore{
			TweetID:            post.TweetID,
			AITextProbability:  round3(clampProbability(probability)),
			AIImageProbability: round3(imageProbability),
			ProvenanceNotes:    provenance,
			Confidence:         confidence,
		})
	}
	return scores
}

// FallbackAIScore возвращается, когда постов в окне не нашлось.
func FallbackAIScore(collectionNotes []string) domain.AIContentScore {
	notes := []string{"No posts were collected in the selected window; AI content scoring is unavailable."}
	for i, note := range collectionNotes {
		if i >= 2 {
			break
		}
		notes = append(notes, note)
	}
	return domain.AIContentScore{
		TweetID:            "unavailable",
		AITextProbability:  0.0,
		AIImageProbability: 0.0,
		ProvenanceNotes:    notes,
		Confidence:         domain.ConfidenceLow,
	}
}

func splitWords(normalized string) []string {
	if normalized == "" {
		return nil
	}
	return strings.Fields(normalized)
}
