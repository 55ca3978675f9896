package processors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"kado/config"
	"kado/core"
)

// Extractor turns one transcript window into failure events. A window
// whose extraction cannot be salvaged yields an empty list, not an
// error; errors are reserved for the collaborator itself failing.
type Extractor interface {
	Extract(window []core.Segment) ([]core.FailureEvent, error)
}

const extractSystemPrompt = `You are a QA analysis assistant. You are given a window of timestamped transcript segments from a narrated screen recording. The narrator is describing what they see on screen and may mention bugs, errors, or unexpected behavior.

Your job: identify any software failure events described in this transcript window.

For each failure, output a JSON object with these exact fields:
- timestamp_seconds (float): the start time of the segment where the failure is described
- title (string): a short title summarizing the failure (max 10 words)
- expected (string): what should have happened
- actual (string): what actually happened
- evidence (string): exact quote(s) from the transcript that support this failure
- confidence (float 0-1): how confident you are this is a real software failure

Rules:
- Output ONLY a JSON array of failure objects. No markdown, no explanation.
- If no failures are found, output an empty array: []
- The evidence field MUST contain actual text from the provided transcript segments.
- Do not invent failures not supported by the transcript.
- A failure is a software bug, UI issue, or unexpected behavior - NOT user confusion or feature requests.`

const extractRepairPrompt = `Your previous response was not valid JSON. Please output ONLY a valid JSON array of failure event objects (or [] if none). No markdown fences, no explanation, just the raw JSON array.`

// formatWindow renders a window one segment per line with its time
// bounds, e.g. "[8.5s - 13.0s] When I click the pay button...".
func formatWindow(window []core.Segment) string {
	lines := make([]string, 0, len(window))
	for _, seg := range window {
		lines = append(lines, fmt.Sprintf("[%.1fs - %.1fs] %s", seg.Start, seg.End, seg.Text))
	}
	return strings.Join(lines, "\n")
}

// rawFailure mirrors FailureEvent with pointer fields so that a reply
// missing a required field is caught instead of defaulting to zero.
type rawFailure struct {
	TimestampSeconds *float64 `json:"timestamp_seconds"`
	Title            *string  `json:"title"`
	Expected         *string  `json:"expected"`
	Actual           *string  `json:"actual"`
	Evidence         *string  `json:"evidence"`
	Confidence       *float64 `json:"confidence"`
}

// parseFailures decodes a model reply into failure events. A leading
// code-fence wrapper is stripped before decoding; anything that is not
// a JSON array of well-formed failure objects is a parse failure.
func parseFailures(text string) ([]core.FailureEvent, error) {
	cleaned := strings.TrimSpace(text)
	if strings.HasPrefix(cleaned, "```") {
		lines := strings.Split(cleaned, "\n")
		kept := make([]string, 0, len(lines))
		for _, line := range lines {
			if strings.HasPrefix(strings.TrimSpace(line), "```") {
				continue
			}
			kept = append(kept, line)
		}
		cleaned = strings.TrimSpace(strings.Join(kept, "\n"))
	}

	var items []rawFailure
	if err := json.Unmarshal([]byte(cleaned), &items); err != nil {
		return nil, fmt.Errorf("expected a JSON array: %v", err)
	}
	if items == nil {
		return nil, errors.New("expected a JSON array")
	}

	events := make([]core.FailureEvent, 0, len(items))
	for i, it := range items {
		if it.TimestampSeconds == nil || it.Title == nil || it.Expected == nil ||
			it.Actual == nil || it.Evidence == nil || it.Confidence == nil {
			return nil, fmt.Errorf("failure object %d is missing required fields", i)
		}
		if *it.Confidence < 0 || *it.Confidence > 1 {
			return nil, fmt.Errorf("failure object %d has confidence outside [0,1]", i)
		}
		events = append(events, core.FailureEvent{
			TimestampSeconds: *it.TimestampSeconds,
			Title:            *it.Title,
			Expected:         *it.Expected,
			Actual:           *it.Actual,
			Evidence:         *it.Evidence,
			Confidence:       *it.Confidence,
		})
	}
	return events, nil
}

// chatClient is the slice of the OpenAI client the extractor needs.
type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// LLMExtractor extracts failures through a chat completion against any
// OpenAI-compatible endpoint (OpenAI, Gemini, Ollama).
type LLMExtractor struct {
	cli   chatClient
	model string
}

func (e LLMExtractor) Extract(window []core.Segment) ([]core.FailureEvent, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: extractSystemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: formatWindow(window)},
	}

	// Two attempts: the original request, then one repair exchange.
	temperatures := []float32{0.1, 0.0}
	for attempt := 0; attempt < 2; attempt++ {
		resp, err := e.cli.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       e.model,
			Messages:    messages,
			MaxTokens:   2000,
			Temperature: temperatures[attempt],
		})
		if err != nil {
			return nil, fmt.Errorf("extraction API failed: %v", err)
		}
		if len(resp.Choices) == 0 {
			return nil, fmt.Errorf("no response choices from extraction API")
		}
		reply := resp.Choices[0].Message.Content

		events, perr := parseFailures(reply)
		if perr == nil {
			return events, nil
		}
		log.Printf("Extraction reply did not parse (attempt %d): %v", attempt+1, perr)
		messages = append(messages,
			openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: reply},
			openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: extractRepairPrompt},
		)
	}

	// Both attempts failed to parse; this window's signal is dropped.
	return []core.FailureEvent{}, nil
}

// MockExtractor derives one deterministic failure per window from
// simple text-pattern checks. Fast, no API keys required.
type MockExtractor struct{}

func (MockExtractor) Extract(window []core.Segment) ([]core.FailureEvent, error) {
	if len(window) == 0 {
		return []core.FailureEvent{}, nil
	}

	mid := window[len(window)/2]

	texts := make([]string, 0, len(window))
	for _, seg := range window {
		texts = append(texts, seg.Text)
	}
	fullText := strings.Join(texts, " ")
	lower := strings.ToLower(fullText)

	var expected, actual string
	switch {
	case strings.Contains(lower, "doesn't") || strings.Contains(lower, "does not"):
		expected = "Feature should work as intended"
		actual = "Feature is not working"
	case strings.Contains(lower, "error") || strings.Contains(lower, "bug"):
		expected = "No errors should occur"
		actual = "Error or bug encountered"
	case strings.Contains(lower, "broken") || strings.Contains(lower, "crash"):
		expected = "Application should remain stable"
		actual = "Application is broken or crashed"
	default:
		expected = "Expected behavior"
		actual = "Unexpected behavior observed"
	}

	evidence := fullText
	if len(evidence) > 100 {
		evidence = strings.TrimSpace(evidence[:100]) + "..."
	}

	return []core.FailureEvent{{
		TimestampSeconds: mid.Start,
		Title:            fmt.Sprintf("Issue detected at %.1fs", mid.Start),
		Expected:         expected,
		Actual:           actual,
		Evidence:         evidence,
		Confidence:       0.6,
	}}, nil
}

// FixtureExtractor returns canned failures whose timestamps fall
// inside the window's time span.
type FixtureExtractor struct {
	Dir string
}

func (f FixtureExtractor) Extract(window []core.Segment) ([]core.FailureEvent, error) {
	if len(window) == 0 {
		return []core.FailureEvent{}, nil
	}

	data, err := os.ReadFile(filepath.Join(f.Dir, "failures.json"))
	if err != nil {
		return nil, fmt.Errorf("read failures fixture: %v", err)
	}
	var all []core.FailureEvent
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, fmt.Errorf("parse failures fixture: %v", err)
	}

	windowStart := window[0].Start
	windowEnd := window[0].End
	for _, seg := range window {
		if seg.Start < windowStart {
			windowStart = seg.Start
		}
		if seg.End > windowEnd {
			windowEnd = seg.End
		}
	}

	matched := make([]core.FailureEvent, 0)
	for _, ev := range all {
		if ev.TimestampSeconds >= windowStart && ev.TimestampSeconds <= windowEnd {
			matched = append(matched, ev)
		}
	}
	return matched, nil
}

// PickExtractor selects the extraction provider from the config.
func PickExtractor(cfg *config.Config) (Extractor, error) {
	if cfg.MockMode {
		return FixtureExtractor{Dir: cfg.FixturesDir}, nil
	}

	switch cfg.ExtractProvider {
	case "mock":
		return MockExtractor{}, nil
	case "fixtures":
		return FixtureExtractor{Dir: cfg.FixturesDir}, nil
	case "gemini":
		if cfg.GeminiAPIKey == "" {
			return nil, config.NotConfiguredError{Variable: "GEMINI_API_KEY"}
		}
		clientConfig := openai.DefaultConfig(cfg.GeminiAPIKey)
		clientConfig.BaseURL = cfg.GeminiBaseURL
		return LLMExtractor{cli: openai.NewClientWithConfig(clientConfig), model: cfg.GeminiModel}, nil
	case "ollama":
		if cfg.OllamaHost == "" {
			return nil, config.NotConfiguredError{Variable: "OLLAMA_HOST"}
		}
		clientConfig := openai.DefaultConfig("ollama")
		clientConfig.BaseURL = cfg.OllamaHost
		return LLMExtractor{cli: openai.NewClientWithConfig(clientConfig), model: cfg.OllamaModel}, nil
	case "openai":
		if !cfg.HasValidAPI() {
			return nil, config.NotConfiguredError{Variable: "OPENAI_API_KEY"}
		}
		return LLMExtractor{cli: openaiClient(cfg), model: cfg.ChatModel}, nil
	default:
		return nil, fmt.Errorf("unknown EXTRACT_PROVIDER: %s", cfg.ExtractProvider)
	}
}

// openaiClient builds a client for the configured OpenAI-compatible API.
func openaiClient(cfg *config.Config) *openai.Client {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return openai.NewClientWithConfig(clientConfig)
}
