package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"live-quiz-service/internal/domain"
)

const defaultTimeout = 60 * time.Second

// Config points the client at an OpenAI-compatible chat completions API.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Client turns source text into multiple-choice questions.
type Client struct {
	http    *http.Client
	baseURL string
	apiKey  string
	model   string
	log     *slog.Logger
}

func New(cfg Config, log *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		http:    &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		log:     log,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Stream      bool          `json:"stream"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
}

type generatedQuiz struct {
	Questions []domain.Question `json:"questions"`
}

const systemPrompt = `You are an expert quiz writer. Write multiple-choice questions that help students learn the given text.
Each question has exactly 4 options and exactly one correct answer. Keep questions clear and concise.
Reply with JSON only, no explanations, in this exact shape:
{"questions":[{"questionText":"...","options":["...","...","...","..."],"correctAnswerIndex":0}]}`

// Generate asks the model for count questions about sourceText. It only
// checks the shape of the reply; callers validate the questions themselves.
func (c *Client) Generate(ctx context.Context, sourceText string, count int) ([]domain.Question, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: fmt.Sprintf("Write %d questions.\n---\n%s\n---", count, sourceText)},
		},
		Temperature: 0.4,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" && c.apiKey != "none" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrGeneratorUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", domain.ErrGeneratorUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		c.log.Warn("generator returned error status", "status", resp.StatusCode, "body", truncate(string(raw), 200))
		return nil, fmt.Errorf("%w: status %d", domain.ErrGeneratorUnavailable, resp.StatusCode)
	}

	var chat chatResponse
	if err := json.Unmarshal(raw, &chat); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", domain.ErrMalformedOutput, err)
	}
	if len(chat.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices", domain.ErrMalformedOutput)
	}
	choice := chat.Choices[0]
	if choice.FinishReason == "content_filter" {
		return nil, domain.ErrContentFiltered
	}

	var quiz generatedQuiz
	if err := json.Unmarshal([]byte(stripFences(choice.Message.Content)), &quiz); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedOutput, err)
	}
	if len(quiz.Questions) == 0 {
		return nil, fmt.Errorf("%w: no questions", domain.ErrMalformedOutput)
	}
	return quiz.Questions, nil
}

// stripFences removes markdown code fences models like to wrap JSON in.
func stripFences(s string) string {
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
