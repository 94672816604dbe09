package quality

import (
	"strings"
	"testing"
)

func TestScore_EmptyCompletion_NeutralDefault(t *testing.T) {
	if got := Score("a prompt", ""); got != 0.5 {
		t.Fatalf("expected 0.5 for empty completion, got %v", got)
	}
	if got := Score("a prompt", "   \n  "); got != 0.5 {
		t.Fatalf("expected 0.5 for whitespace completion, got %v", got)
	}
}

func TestScore_WellFormedExample_ScoresHigh(t *testing.T) {
	prompt := "Write an introduction chapter about healthy meal planning for busy parents"
	var b strings.Builder
	b.WriteString("Meal planning changes how a family eats. It removes the nightly question of what to cook, and it keeps the pantry stocked with ingredients that actually get used.\n\n")
	b.WriteString("Start with three dinners you already know well. Write them down, list their ingredients, and shop once for all three. Rotate them for two weeks before adding a fourth. ")
	b.WriteString("Most families discover that variety matters less than they feared, and the saved time each evening becomes the habit's own reward. Planning works when it stays simple.")
	completion := b.String()

	got := Score(prompt, completion)
	if got < 0.8 {
		t.Fatalf("expected a high score for a well-formed example, got %v", got)
	}
	if got > 1.0 {
		t.Fatalf("score must be clamped to 1.0, got %v", got)
	}
}

func TestScore_LowQualityText_ScoresLow(t *testing.T) {
	// Short, one repeated word, no punctuation, echoes the prompt.
	got := Score("spam", "spam spam spam spam spam")
	if got >= 0.5 {
		t.Fatalf("expected a low score for repetitive text, got %v", got)
	}
}

func TestScore_PromptEchoPenalty(t *testing.T) {
	prompt := "Once upon a time"
	body := "there lived a careful, patient baker. The baker rose early. Flour, water, and salt were enough."

	echoed := Score(prompt, prompt+" "+body)
	fresh := Score(prompt, body)
	if fresh <= echoed {
		t.Fatalf("completion echoing the prompt should score lower: fresh=%v echoed=%v", fresh, echoed)
	}
}

func TestReadability_EmptyText_Neutral(t *testing.T) {
	if got := Readability(""); got != 50.0 {
		t.Fatalf("expected 50 for empty text, got %v", got)
	}
	// Words but no sentence terminators.
	if got := Readability("no punctuation here at all"); got != 50.0 {
		t.Fatalf("expected 50 for text without sentences, got %v", got)
	}
}

func TestReadability_ClampedRange(t *testing.T) {
	samples := []string{
		"The cat sat. The dog ran. We all saw it.",
		"Notwithstanding the considerable multidimensional heterogeneity characterizing contemporary organizational infrastructures, interdisciplinary collaboration methodologies necessitate comprehensive reconceptualization.",
		"Go. Run. Hide. Wait. Now.",
	}
	for _, text := range samples {
		got := Readability(text)
		if got < 0 || got > 100 {
			t.Fatalf("readability out of range for %q: %v", text, got)
		}
	}
}

func TestReadability_SimplerTextReadsEasier(t *testing.T) {
	simple := Readability("The cat sat on the mat. The dog ran to the door. We saw them go.")
	dense := Readability("Comprehensive organizational restructuring necessitates interdisciplinary collaboration. Multidimensional heterogeneity characterizes contemporary infrastructures.")
	if simple <= dense {
		t.Fatalf("simple text should read easier: simple=%v dense=%v", simple, dense)
	}
}

func TestCountSyllables(t *testing.T) {
	cases := []struct {
		word string
		want int
	}{
		{"cat", 1},   // short word
		{"the", 1},   // short word
		{"hello", 2}, // hel-lo
		{"make", 1},  // silent e
		{"beautiful", 3},
		{"rhythm", 1}, // no vowel groups beyond y
		{"", 1},
	}
	for _, tc := range cases {
		if got := countSyllables(tc.word); got != tc.want {
			t.Errorf("countSyllables(%q) = %d, want %d", tc.word, got, tc.want)
		}
	}
}

func TestWordCount(t *testing.T) {
	if got := WordCount("  one two\nthree  "); got != 3 {
		t.Fatalf("expected 3 words, got %d", got)
	}
	if got := WordCount(""); got != 0 {
		t.Fatalf("expected 0 words, got %d", got)
	}
}
