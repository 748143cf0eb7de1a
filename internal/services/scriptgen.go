package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// ScriptService turns a wake-up intent into a short spoken monologue
// using Gemini.
type ScriptService struct {
	client   *genai.Client
	model    *genai.GenerativeModel
	rateChan chan struct{} // Token bucket
	logger   *log.Logger
}

func NewScriptService(apiKey, modelName string, concurrentReqs int, logger *log.Logger) (*ScriptService, error) {
	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	// Wake-up scripts should sound alive, not like a report.
	model.SetTemperature(0.9)
	model.SetTopP(0.95)

	// Token bucket for rate limiting
	rateChan := make(chan struct{}, concurrentReqs)
	for i := 0; i < concurrentReqs; i++ {
		rateChan <- struct{}{}
	}

	return &ScriptService{
		client:   client,
		model:    model,
		rateChan: rateChan,
		logger:   logger,
	}, nil
}

func (s *ScriptService) Close() {
	s.client.Close()
}

// acquireRate blocks until a rate slot is available
func (s *ScriptService) acquireRate(ctx context.Context) error {
	select {
	case <-s.rateChan:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Minute):
		return fmt.Errorf("timeout waiting for Gemini rate slot")
	}
}

func (s *ScriptService) releaseRate() {
	s.rateChan <- struct{}{}
}

// Generate produces the spoken script for one wake-up.
func (s *ScriptService) Generate(ctx context.Context, goal, tone string, contextMap map[string]string) (string, error) {
	if err := s.acquireRate(ctx); err != nil {
		return "", err
	}
	defer s.releaseRate()

	prompt := buildWakeScriptPrompt(goal, tone, contextMap)

	resp, err := s.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("Gemini API error: %w", err)
	}

	script := sanitizeScript(extractText(resp))
	if script == "" {
		return "", fmt.Errorf("Gemini returned empty script")
	}

	s.logger.Debug("script generated", "tone", tone, "words", len(strings.Fields(script)))
	return script, nil
}

// Context lines appear in a fixed order so the same intent always
// produces the same prompt.
var promptContextOrder = []string{
	"weather", "time_of_day", "day_of_week", "calendar_events", "location", "note",
}

var promptContextLabels = map[string]string{
	"weather":         "Weather right now",
	"time_of_day":     "Time of day",
	"day_of_week":     "Day",
	"calendar_events": "On today's calendar",
	"location":        "Location",
	"note":            "Personal note",
}

func buildWakeScriptPrompt(goal, tone string, contextMap map[string]string) string {
	var b strings.Builder

	// Layer 1: role
	b.WriteString("You are a personal wake-up coach. Write a monologue to be spoken aloud to one person the moment their alarm goes off.\n\n")

	// Layer 2: tone
	switch tone {
	case "energetic":
		b.WriteString("Tone: High energy. Short punchy sentences, rising momentum, get the blood moving.\n\n")
	case "calm":
		b.WriteString("Tone: Calm and steady. Slow unhurried sentences, no exclamations, ease them awake.\n\n")
	case "motivational":
		b.WriteString("Tone: Motivational. Speak like a coach before a match, confident and direct.\n\n")
	case "gentle":
		b.WriteString("Tone: Gentle and warm. Soft encouragement, like a friend waking you kindly.\n\n")
	default:
		b.WriteString("Tone: Warm and encouraging.\n\n")
	}

	// Layer 3: length
	b.WriteString("Length: Between 160 and 240 words, roughly 60 to 90 seconds spoken at a natural pace.\n\n")

	// Layer 4: context
	wroteContext := false
	for _, key := range promptContextOrder {
		if v := contextMap[key]; v != "" {
			b.WriteString(fmt.Sprintf("%s: %s\n", promptContextLabels[key], v))
			wroteContext = true
		}
	}
	if wroteContext {
		b.WriteString("Weave the context in naturally; never read it back as a list.\n\n")
	}

	// Layer 5: output rules
	b.WriteString("Rules: Speak in second person, present tense. Plain spoken text only; DO NOT use markdown, asterisks, stage directions, emojis, or SSML tags. Mention their goal early. End with a clear cue to get out of bed.\n\n")

	// Layer 6: goal
	b.WriteString("---TODAY'S GOAL---\n")
	b.WriteString(goal)
	b.WriteString("\n---END---\n")

	return b.String()
}

// sanitizeScript strips formatting the model sneaks in despite the
// rules; the text goes straight to speech synthesis.
func sanitizeScript(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```text")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.ReplaceAll(text, "**", "")
	text = strings.ReplaceAll(text, "*", "")
	text = strings.ReplaceAll(text, "#", "")
	return strings.TrimSpace(text)
}

func extractText(resp *genai.GenerateContentResponse) string {
	var text strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content != nil {
			for _, part := range cand.Content.Parts {
				if t, ok := part.(genai.Text); ok {
					text.WriteString(string(t))
				}
			}
		}
	}
	return text.String()
}
