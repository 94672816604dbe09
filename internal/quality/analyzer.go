// Package quality scores training examples. All functions are pure and
// deterministic given the same text.
package quality

import (
	"strings"
	"unicode"
)

var fillerWords = map[string]struct{}{
	"the": {}, "and": {}, "or": {}, "but": {}, "in": {}, "on": {},
	"at": {}, "to": {}, "for": {}, "of": {}, "with": {}, "by": {},
}

// Score estimates how useful a prompt/completion pair is as training
// data. Four signal groups each contribute a fixed fraction: length
// appropriateness, language structure, content structure, and
// vocabulary diversity. The result is clamped to [0, 1].
func Score(prompt, completion string) float64 {
	words := strings.Fields(completion)
	if len(words) == 0 {
		// Nothing to measure. Neutral default rather than zero so an
		// empty-but-stored record does not poison quality ordering.
		return 0.5
	}

	score := 0.0

	// Length appropriateness.
	promptLen := len(strings.Fields(prompt))
	if promptLen >= 5 && promptLen <= 50 {
		score += 0.10
	}
	if len(words) >= 50 && len(words) <= 1000 {
		score += 0.15
	}

	// Language structure.
	if countSentences(completion) >= 2 {
		score += 0.10
	}
	if strings.Contains(completion, ".") && strings.Contains(completion, ",") {
		score += 0.10
	}

	// Content structure.
	trimmed := strings.TrimSpace(completion)
	if strings.HasSuffix(trimmed, ".") || strings.HasSuffix(trimmed, "!") || strings.HasSuffix(trimmed, "?") {
		score += 0.10
	}
	if len(strings.Split(completion, "\n\n")) >= 2 {
		score += 0.10
	}
	if !strings.HasPrefix(trimmed, strings.TrimSpace(prompt)) {
		score += 0.05
	}

	// Vocabulary diversity, with a penalty for filler-heavy text.
	unique := make(map[string]struct{}, len(words))
	fillers := 0
	for _, w := range words {
		lw := strings.ToLower(w)
		unique[lw] = struct{}{}
		if _, ok := fillerWords[lw]; ok {
			fillers++
		}
	}
	if float64(len(unique))/float64(len(words)) > 0.6 {
		score += 0.15
	}
	if float64(fillers)/float64(len(words)) < 0.3 {
		score += 0.10
	}

	if score > 1.0 {
		return 1.0
	}
	return score
}

// Readability computes the Flesch reading-ease score of text, clamped
// to [0, 100]. Texts with no sentences or words score a neutral 50.
func Readability(text string) float64 {
	words := strings.Fields(text)
	sentences := countSentences(text)
	if len(words) == 0 || sentences == 0 {
		return 50.0
	}

	syllables := 0
	for _, w := range words {
		syllables += countSyllables(w)
	}

	score := 206.835 - 1.015*(float64(len(words))/float64(sentences)) - 84.6*(float64(syllables)/float64(len(words)))
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// WordCount counts whitespace-separated words.
func WordCount(text string) int {
	return len(strings.Fields(text))
}

func countSentences(text string) int {
	count := 0
	for _, r := range text {
		if r == '.' || r == '!' || r == '?' {
			count++
		}
	}
	return count
}

// countSyllables estimates syllables as vowel groups, with the silent-e
// correction. Short words count as one syllable.
func countSyllables(word string) int {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) {
			return unicode.ToLower(r)
		}
		return -1
	}, word)

	if len(cleaned) <= 3 {
		return 1
	}

	isVowel := func(r byte) bool {
		return strings.IndexByte("aeiouy", r) >= 0
	}

	count := 0
	prevVowel := false
	for i := 0; i < len(cleaned); i++ {
		v := isVowel(cleaned[i])
		if v && !prevVowel {
			count++
		}
		prevVowel = v
	}

	if strings.HasSuffix(cleaned, "e") {
		count--
	}
	if count < 1 {
		return 1
	}
	return count
}
