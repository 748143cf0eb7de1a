package services

import (
	"strings"
	"testing"
)

func TestBuildWakeScriptPrompt_IncludesGoalAndContext(t *testing.T) {
	contextMap := map[string]string{
		"weather":         "4°C, clear sky",
		"day_of_week":     "Wednesday",
		"calendar_events": "09:30 standup; 14:00 dentist",
	}

	prompt := buildWakeScriptPrompt("finish the report draft", "energetic", contextMap)

	if !strings.Contains(prompt, "---TODAY'S GOAL---\nfinish the report draft\n---END---") {
		t.Fatalf("goal block missing or malformed:\n%s", prompt)
	}
	if !strings.Contains(prompt, "Tone: High energy.") {
		t.Fatalf("expected energetic tone line")
	}
	if !strings.Contains(prompt, "Weather right now: 4°C, clear sky") {
		t.Fatalf("weather context missing")
	}
	if !strings.Contains(prompt, "On today's calendar: 09:30 standup; 14:00 dentist") {
		t.Fatalf("calendar context missing")
	}
	if !strings.Contains(prompt, "Weave the context in naturally") {
		t.Fatalf("context instruction missing when context is present")
	}
	if !strings.Contains(prompt, "DO NOT use markdown") {
		t.Fatalf("output rules missing")
	}
}

func TestBuildWakeScriptPrompt_ContextOrderIsStable(t *testing.T) {
	contextMap := map[string]string{
		"note":    "flight at noon",
		"weather": "rain",
	}

	prompt := buildWakeScriptPrompt("travel day", "calm", contextMap)

	weatherIdx := strings.Index(prompt, "Weather right now:")
	noteIdx := strings.Index(prompt, "Personal note:")
	if weatherIdx < 0 || noteIdx < 0 {
		t.Fatalf("expected both context lines:\n%s", prompt)
	}
	if weatherIdx > noteIdx {
		t.Fatalf("weather must come before the note")
	}
}

func TestBuildWakeScriptPrompt_EmptyContextOmitsSection(t *testing.T) {
	prompt := buildWakeScriptPrompt("just wake up", "gentle", map[string]string{})

	if strings.Contains(prompt, "Weave the context in naturally") {
		t.Fatalf("context instruction must be omitted without context")
	}
	if strings.Contains(prompt, "Weather right now") {
		t.Fatalf("no context lines expected")
	}
}

func TestBuildWakeScriptPrompt_UnknownToneFallsBack(t *testing.T) {
	prompt := buildWakeScriptPrompt("anything", "grumpy", nil)

	if !strings.Contains(prompt, "Tone: Warm and encouraging.") {
		t.Fatalf("unknown tone must fall back to the default direction")
	}
}

func TestSanitizeScript(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "clean text passes through",
			in:   "Good morning. Time to move.",
			want: "Good morning. Time to move.",
		},
		{
			name: "code fence stripped",
			in:   "```text\nRise and shine.\n```",
			want: "Rise and shine.",
		},
		{
			name: "markdown emphasis stripped",
			in:   "Today is **your** day. *Go.*",
			want: "Today is your day. Go.",
		},
		{
			name: "surrounding whitespace trimmed",
			in:   "  \n Up you get. \n ",
			want: "Up you get.",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := sanitizeScript(tc.in); got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestLanguageCodeFor(t *testing.T) {
	cases := []struct {
		voiceID string
		want    string
	}{
		{"en-US-Neural2-F", "en-US"},
		{"en-GB-News-K", "en-GB"},
		{"de-DE-Neural2-B", "de-DE"},
		{"bogus", "en-US"},
		{"", "en-US"},
	}

	for _, tc := range cases {
		if got := languageCodeFor(tc.voiceID); got != tc.want {
			t.Fatalf("languageCodeFor(%q) = %q, want %q", tc.voiceID, got, tc.want)
		}
	}
}
