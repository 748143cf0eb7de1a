package models

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

// Playback pacing used to estimate spoken length from a script.
const SpokenWordsPerMinute = 175

// ContentTTL is how long generated wake content stays usable. Older
// content must be regenerated before it can be armed again.
const ContentTTL = 7 * 24 * time.Hour

var ErrContentExpired = errors.New("generated content has expired")

// GeneratedContent is an immutable record of one successful script +
// speech synthesis run. Replace it, never mutate it.
type GeneratedContent struct {
	Script            string        `json:"script"`
	AudioPath         string        `json:"audio_path,omitempty"`
	VoiceID           string        `json:"voice_id"`
	Tone              string        `json:"tone"`
	GeneratedAt       time.Time     `json:"generated_at"`
	WordCount         int           `json:"word_count"`
	CharCount         int           `json:"char_count"`
	SpokenDuration    time.Duration `json:"spoken_duration"`
	ScriptModel       string        `json:"script_model,omitempty"`
	TTSModel          string        `json:"tts_model,omitempty"`
	GenerationLatency time.Duration `json:"generation_latency,omitempty"`
}

func NewGeneratedContent(script, voiceID, tone string, generatedAt time.Time) *GeneratedContent {
	words := len(strings.Fields(script))
	seconds := float64(words) / (float64(SpokenWordsPerMinute) / 60.0)
	return &GeneratedContent{
		Script:         script,
		VoiceID:        voiceID,
		Tone:           tone,
		GeneratedAt:    generatedAt,
		WordCount:      words,
		CharCount:      utf8.RuneCountInString(script),
		SpokenDuration: time.Duration(seconds * float64(time.Second)),
	}
}

func (c *GeneratedContent) IsExpired(now time.Time) bool {
	return now.Sub(c.GeneratedAt) > ContentTTL
}

// Usable reports whether content can back a wake payload right now.
func (c *GeneratedContent) Usable(now time.Time) bool {
	return c != nil && c.AudioPath != "" && !c.IsExpired(now)
}
