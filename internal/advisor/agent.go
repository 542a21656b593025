// Package advisor produces optional LLM commentary on the portfolio.
// When unconfigured (the default) a deterministic fallback answers.
package advisor

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/schema"

	"broker-gateway/internal/portfolio"
)

type Config struct {
	Enabled    bool   `yaml:"enabled"`
	Model      string `yaml:"model"`
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	ByAzure    bool   `yaml:"by_azure"`
	APIVersion string `yaml:"api_version"`
	TimeoutMs  int    `yaml:"timeout_ms"`
}

type Input struct {
	Summary  portfolio.Summary `json:"summary"`
	AsOf     string            `json:"as_of"`
	Question string            `json:"question,omitempty"`
}

type Insight struct {
	Stance     string   `json:"stance"`
	OneLiner   string   `json:"one_liner"`
	Notes      []string `json:"notes"`
	Risks      []string `json:"risks"`
	Confidence float64  `json:"confidence"`
}

type Agent struct {
	enabled        bool
	model          *openai.ChatModel
	modelName      string
	disabledReason string
}

func New(cfg Config) *Agent {
	if !cfg.Enabled {
		return &Agent{enabled: false, disabledReason: "disabled by config"}
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.Model == "" {
		cfg.Model = os.Getenv("OPENAI_MODEL")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = os.Getenv("OPENAI_BASE_URL")
	}
	if cfg.APIKey == "" || cfg.Model == "" {
		log.Printf("advisor disabled: missing api key or model")
		return &Agent{enabled: false, disabledReason: "api_key or model missing"}
	}

	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	model, err := openai.NewChatModel(context.Background(), &openai.ChatModelConfig{
		APIKey:     cfg.APIKey,
		Model:      cfg.Model,
		BaseURL:    cfg.BaseURL,
		ByAzure:    cfg.ByAzure,
		APIVersion: cfg.APIVersion,
		Timeout:    timeout,
	})
	if err != nil {
		log.Printf("advisor init error: %v", err)
		return &Agent{enabled: false, disabledReason: "init failed"}
	}

	return &Agent{enabled: true, model: model, modelName: cfg.Model}
}

// Enabled reports whether a live model backs this agent.
func (a *Agent) Enabled() bool {
	return a != nil && a.enabled && a.model != nil
}

func (a *Agent) Evaluate(ctx context.Context, in Input) (Insight, error) {
	if a == nil || !a.enabled || a.model == nil {
		return FallbackInsight(in), nil
	}

	payload, err := encodeInput(in)
	if err != nil {
		log.Printf("advisor input error: %v", err)
		return FallbackInsight(in), err
	}

	system := `You are a portfolio review assistant. Output ONLY valid JSON.
Rules:
- Comment on concentration, day move and overall P&L. No buy/sell calls, no return predictions.
- Must include keys: stance (bullish/bearish/neutral), one_liner, notes (1-3 strings), risks (1-3 strings), confidence (0.0-1.0).
- No extra text.`

	messages := []*schema.Message{
		schema.SystemMessage(system),
		schema.UserMessage(fmt.Sprintf("Input: %s", payload)),
	}

	resp, err := a.model.Generate(ctx, messages)
	if err != nil {
		log.Printf("advisor llm error: %v", err)
		return FallbackInsight(in), err
	}

	insight, err := parseInsight(strings.TrimSpace(resp.Content))
	if err != nil {
		return FallbackInsight(in), err
	}
	return sanitize(insight), nil
}

// encodeInput rejects inputs json cannot represent, such as non-finite
// floats in the summary.
func encodeInput(in Input) (string, error) {
	b, err := json.Marshal(in)
	if err != nil {
		return "", fmt.Errorf("encode advisor input: %w", err)
	}
	return string(b), nil
}

func FallbackInsight(in Input) Insight {
	stance := "neutral"
	oneLiner := "No positions to review."
	if len(in.Summary.Holdings) > 0 {
		oneLiner = fmt.Sprintf("%d holdings, total value %.2f, day P&L %.2f.",
			len(in.Summary.Holdings), in.Summary.TotalValue, in.Summary.DayPnL)
		if in.Summary.DayPnL > 0 {
			stance = "bullish"
		} else if in.Summary.DayPnL < 0 {
			stance = "bearish"
		}
	}
	return Insight{
		Stance:     stance,
		OneLiner:   oneLiner,
		Notes:      []string{"advisor not configured, heuristic summary only"},
		Risks:      []string{},
		Confidence: 0.2,
	}
}

func parseInsight(text string) (Insight, error) {
	var out Insight
	if err := json.Unmarshal([]byte(text), &out); err == nil {
		return out, nil
	}
	jsonStr := extractFirstJSONObject(text)
	if jsonStr == "" {
		return Insight{}, fmt.Errorf("no json object found")
	}
	if err := json.Unmarshal([]byte(jsonStr), &out); err != nil {
		return Insight{}, fmt.Errorf("parse insight: %w", err)
	}
	return out, nil
}

func extractFirstJSONObject(s string) string {
	start := strings.Index(s, "{")
	if start == -1 {
		return ""
	}
	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

func sanitize(in Insight) Insight {
	switch in.Stance {
	case "bullish", "bearish", "neutral":
	default:
		in.Stance = "neutral"
	}
	if in.OneLiner == "" {
		in.OneLiner = "No summary produced."
	}
	if in.Confidence < 0 {
		in.Confidence = 0
	}
	if in.Confidence > 1 {
		in.Confidence = 1
	}
	in.Notes = trimList(in.Notes, 3)
	in.Risks = trimList(in.Risks, 3)
	return in
}

func trimList(in []string, n int) []string {
	out := make([]string, 0, n)
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		out = append(out, s)
		if len(out) == n {
			break
		}
	}
	return out
}
