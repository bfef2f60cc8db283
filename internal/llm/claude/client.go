// Package claude implements triage.Suggester on the Anthropic Messages API.
package claude

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/linnemanlabs/pulse/internal/signal"
	"github.com/linnemanlabs/pulse/internal/triage"
)

const (
	tracerName = "github.com/linnemanlabs/pulse/internal/llm/claude"

	// suggestTool is the single tool the model is forced to call.
	suggestTool = "suggest_classification"

	defaultModel     = "claude-sonnet-4-5"
	defaultMaxTokens = 512
	defaultTimeout   = 30 * time.Second
)

const systemPrompt = `You help triage operational requests for a small organisation.
Given a request's title and description, propose its category, urgency, how
confident you are in the proposal (0-100) and, only if something looks wrong
(unusual supplier, missing paperwork, safety issue), a short flag reason.
Leave the flag reason empty when nothing needs review. Always answer by
calling the suggest_classification tool.`

// Options configures a Client.
type Options struct {
	Model     string
	MaxTokens int64
	Timeout   time.Duration

	// BaseURL overrides the API endpoint. Empty uses the SDK default.
	BaseURL string
}

// Client proposes classification inputs for new signals.
type Client struct {
	api       anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

var _ triage.Suggester = (*Client)(nil)

// New creates a new Claude suggester with the given API key.
func New(apiKey string, opts Options) *Client {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = defaultMaxTokens
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Model == "" {
		opts.Model = defaultModel
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithRequestTimeout(opts.Timeout),
		option.WithMaxRetries(1),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}

	return &Client{
		api:       anthropic.NewClient(reqOpts...),
		model:     anthropic.Model(opts.Model),
		maxTokens: opts.MaxTokens,
	}
}

// Suggest asks the model for a type, urgency, confidence and flag reason
// for s. Only the signal's free text and a few context fields are sent.
func (c *Client) Suggest(ctx context.Context, s *signal.Signal) (*triage.Suggestion, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "claude.suggest")
	defer span.End()
	span.SetAttributes(attribute.String("gen_ai.request.model", string(c.model)))

	msg, err := c.api.Messages.New(ctx, buildParams(c.model, c.maxTokens, s))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("claude messages: %w", err)
	}

	span.SetAttributes(
		attribute.Int64("gen_ai.usage.input_tokens", msg.Usage.InputTokens),
		attribute.Int64("gen_ai.usage.output_tokens", msg.Usage.OutputTokens),
		attribute.String("gen_ai.response.stop_reason", string(msg.StopReason)),
	)

	sug, err := parseResponse(msg)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return sug, nil
}

func buildParams(model anthropic.Model, maxTokens int64, s *signal.Signal) anthropic.MessageNewParams {
	return anthropic.MessageNewParams{
		Model:     model,
		MaxTokens: maxTokens,
		System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(describe(s))),
		},
		Tools: []anthropic.ToolUnionParam{{OfTool: &anthropic.ToolParam{
			Name:        suggestTool,
			Description: anthropic.String("Record the proposed classification inputs for the request."),
			InputSchema: suggestSchema(),
		}}},
		ToolChoice: anthropic.ToolChoiceUnionParam{
			OfTool: &anthropic.ToolChoiceToolParam{Name: suggestTool},
		},
	}
}

func suggestSchema() anthropic.ToolInputSchemaParam {
	types := make([]string, len(signal.Types))
	for i, t := range signal.Types {
		types[i] = string(t)
	}
	return anthropic.ToolInputSchemaParam{
		Properties: map[string]any{
			"signal_type": map[string]any{
				"type": "string",
				"enum": types,
			},
			"urgency": map[string]any{
				"type": "string",
				"enum": []string{string(signal.UrgencyNormal), string(signal.UrgencyUrgent), string(signal.UrgencyCritical)},
			},
			"confidence": map[string]any{
				"type":    "number",
				"minimum": 0,
				"maximum": 100,
			},
			"flag_reason": map[string]any{
				"type": "string",
			},
		},
		Required: []string{"signal_type", "urgency", "confidence"},
	}
}

// describe renders the user message. Fields already set by the submitter
// are included so the model does not contradict them.
func describe(s *signal.Signal) string {
	var b strings.Builder
	line := func(k, v string) {
		if v = strings.TrimSpace(v); v != "" {
			fmt.Fprintf(&b, "%s: %s\n", k, v)
		}
	}
	line("Title", s.Title)
	line("Description", s.Description)
	line("Type", string(s.Type))
	line("Urgency", string(s.Urgency))
	line("Location", s.Location)
	if s.HasAmount() {
		fmt.Fprintf(&b, "Amount: %.2f\n", s.EffectiveAmount())
	}
	return b.String()
}

type toolInput struct {
	SignalType string   `json:"signal_type"`
	Urgency    string   `json:"urgency"`
	Confidence *float64 `json:"confidence"`
	FlagReason string   `json:"flag_reason"`
}

// parseResponse extracts the suggestion from the first matching tool_use
// block. Values are passed through lower-cased; the caller validates them.
func parseResponse(msg *anthropic.Message) (*triage.Suggestion, error) {
	for _, block := range msg.Content {
		if block.Type != "tool_use" || block.Name != suggestTool {
			continue
		}
		var in toolInput
		if err := json.Unmarshal(block.Input, &in); err != nil {
			return nil, fmt.Errorf("decode %s input: %w", suggestTool, err)
		}
		return &triage.Suggestion{
			Type:       signal.Type(strings.ToLower(strings.TrimSpace(in.SignalType))),
			Urgency:    signal.Urgency(strings.ToLower(strings.TrimSpace(in.Urgency))),
			Confidence: in.Confidence,
			FlagReason: strings.TrimSpace(in.FlagReason),
		}, nil
	}
	return nil, fmt.Errorf("no %s call in response (stop reason %q)", suggestTool, msg.StopReason)
}
