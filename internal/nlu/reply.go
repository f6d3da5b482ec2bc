package nlu

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"

	"carevox/internal/session"
)

const (
	// FallbackBackendError is said when the backend answered with an error
	// status.
	FallbackBackendError = "I'm having trouble thinking right now. Can we try again in a moment?"
	// FallbackTransportError is said when the request could not be made.
	FallbackTransportError = "I apologize, but I'm experiencing a technical issue. Let's try again."

	HistoryWindow = 10
)

const systemPrompt = `
You are a health assistant for older adults named CareVox. Your primary goal is to help older adults manage their health conditions, particularly diabetes, medication adherence, and healthy lifestyle.

Important guidelines:
1. Use clear, simple language appropriate for older adults (avoid jargon)
2. Be patient and use shorter sentences with one idea per sentence
3. Provide specific, actionable advice
4. Always maintain a warm, respectful tone
5. Focus on positive reinforcement and encouragement
6. Keep responses concise, no more than 3-4 short sentences at a time
7. Recognize possible emergency situations and advise appropriate action
8. For non-emergency medical questions, remind users to consult healthcare professionals
9. Always check understanding before moving to a new topic
10. Don't rush the conversation

When asked about health data, analyze trends and provide gentle observations.
`

const responseFormat = `
Response Guidelines:
1. Break information into small, digestible chunks
2. Use simple language with clear transitions between topics
3. Keep responses under 150 words total
4. Talk about one thing at a time
5. Ask one simple question at a time, if appropriate
`

type ReplierConfig struct {
	Model       string
	Temperature float64
	MaxTokens   int64
	TopP        float64
}

func DefaultReplierConfig() ReplierConfig {
	return ReplierConfig{
		Model:       "llama3-70b-8192",
		Temperature: 0.6,
		MaxTokens:   350,
		TopP:        0.9,
	}
}

// Replier answers utterances that matched no command, using an
// OpenAI-compatible chat completion backend.
type Replier struct {
	client openai.Client
	cfg    ReplierConfig
	now    func() time.Time
}

func NewReplier(client openai.Client, cfg ReplierConfig) *Replier {
	if cfg.Model == "" {
		cfg.Model = DefaultReplierConfig().Model
	}
	return &Replier{client: client, cfg: cfg, now: time.Now}
}

// Complete never fails: backend problems are logged and turned into a fixed
// apology the caller can speak.
func (r *Replier) Complete(ctx context.Context, profileSummary string, history []session.Entry, utterance string) string {
	out, err := r.complete(ctx, profileSummary, history, utterance)
	if err == nil {
		return out
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		log.Error("Reply backend returned an error", "status", apiErr.StatusCode, "err", err)
		return FallbackBackendError
	}
	log.Error("Reply backend unavailable", "err", err)
	return FallbackTransportError
}

func (r *Replier) complete(ctx context.Context, profileSummary string, history []session.Entry, utterance string) (string, error) {
	profileCtx := fmt.Sprintf("%s\nCurrent date and time: %s\n",
		strings.TrimSpace(profileSummary), r.now().Format("Monday, January 02, 2006, 15:04"))

	msgs := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(systemPrompt),
		openai.SystemMessage(profileCtx),
	}
	if len(history) > HistoryWindow {
		history = history[len(history)-HistoryWindow:]
	}
	for _, e := range history {
		switch e.Role {
		case session.RoleUser:
			msgs = append(msgs, openai.UserMessage(e.Content))
		case session.RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(e.Content))
		}
	}
	msgs = append(msgs,
		openai.UserMessage(utterance),
		openai.SystemMessage(responseFormat),
	)

	resp, err := r.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages:    msgs,
		Model:       openai.ChatModel(r.cfg.Model),
		Temperature: openai.Float(r.cfg.Temperature),
		MaxTokens:   openai.Int(r.cfg.MaxTokens),
		TopP:        openai.Float(r.cfg.TopP),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("empty message content")
	}

	log.Debug("Reply ready", "chars", len(content))
	return content, nil
}
