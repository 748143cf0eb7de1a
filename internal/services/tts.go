package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	texttospeech "google.golang.org/api/texttospeech/v1"
	"google.golang.org/api/option"
)

// SpeechService converts generated scripts to MP3 audio with the Google
// Cloud Text-to-Speech API.
type SpeechService struct {
	tts          *texttospeech.Service
	defaultVoice string
	speakingRate float64
	logger       *log.Logger
}

func NewSpeechService(ctx context.Context, apiKey, defaultVoice string, logger *log.Logger) (*SpeechService, error) {
	svc, err := texttospeech.NewService(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Text-to-Speech client: %w", err)
	}

	return &SpeechService{
		tts:          svc,
		defaultVoice: defaultVoice,
		speakingRate: 1.0,
		logger:       logger,
	}, nil
}

// Synthesize renders the script with the requested voice. An empty
// voiceID falls back to the service default.
func (s *SpeechService) Synthesize(ctx context.Context, script, voiceID string) ([]byte, error) {
	if voiceID == "" {
		voiceID = s.defaultVoice
	}

	req := &texttospeech.SynthesizeSpeechRequest{
		Input: &texttospeech.SynthesisInput{Text: script},
		Voice: &texttospeech.VoiceSelectionParams{
			LanguageCode: languageCodeFor(voiceID),
			Name:         voiceID,
		},
		AudioConfig: &texttospeech.AudioConfig{
			AudioEncoding: "MP3",
			SpeakingRate:  s.speakingRate,
		},
	}

	resp, err := s.tts.Text.Synthesize(req).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("Text-to-Speech API error: %w", err)
	}

	audio, err := base64.StdEncoding.DecodeString(resp.AudioContent)
	if err != nil {
		return nil, fmt.Errorf("failed to decode audio content: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("Text-to-Speech returned empty audio")
	}

	s.logger.Debug("speech synthesized", "voice", voiceID, "bytes", len(audio))
	return audio, nil
}

// languageCodeFor derives the BCP-47 language from a full voice name,
// "en-US-Neural2-F" -> "en-US".
func languageCodeFor(voiceID string) string {
	parts := strings.SplitN(voiceID, "-", 3)
	if len(parts) >= 2 {
		return parts[0] + "-" + parts[1]
	}
	return "en-US"
}
