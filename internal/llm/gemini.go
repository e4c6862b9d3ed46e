package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/councild/councild/internal/config"
	"github.com/councild/councild/internal/httpkit"

	"log/slog"
)

const (
	geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

	// geminiTimeout caps a single generation call. Council turns are
	// long-form, so this is generous compared to ordinary API calls.
	geminiTimeout = 120 * time.Second

	maxErrorBody = 2048
)

// Gemini calls the Google Generative Language API.
type Gemini struct {
	apiKey string
	model  string
	base   string
	client *http.Client
	log    *slog.Logger
}

// NewGemini builds a client for the given model. A nil logger falls
// back to slog.Default.
func NewGemini(apiKey, model string, log *slog.Logger) *Gemini {
	if log == nil {
		log = slog.Default()
	}
	return &Gemini{
		apiKey: apiKey,
		model:  model,
		base:   geminiBaseURL,
		client: httpkit.NewClient(httpkit.WithTimeout(geminiTimeout)),
		log:    log,
	}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent  `json:"system_instruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
}

// Generate sends one generateContent call and returns the first
// candidate's text.
func (g *Gemini) Generate(ctx context.Context, req Request) (string, error) {
	body := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: req.Prompt}}}},
	}
	if req.System != "" {
		body.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.System}}}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encoding gemini request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		g.base, url.PathEscape(g.model), url.QueryEscape(g.apiKey))

	g.log.Log(ctx, config.LevelTrace, "gemini request",
		"model", g.model,
		"prompt_bytes", len(req.Prompt),
		"system_bytes", len(req.System))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("building gemini request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := g.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("calling gemini: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := httpkit.ReadErrorBody(resp.Body, maxErrorBody)
		return "", fmt.Errorf("gemini returned %d: %s", resp.StatusCode, msg)
	}

	var out geminiResponse
	err = json.NewDecoder(resp.Body).Decode(&out)
	httpkit.DrainAndClose(resp.Body, maxErrorBody)
	if err != nil {
		return "", fmt.Errorf("decoding gemini response: %w", err)
	}

	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini returned no candidates")
	}

	var sb strings.Builder
	for _, p := range out.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	text := sb.String()

	g.log.Log(ctx, config.LevelTrace, "gemini response",
		"model", g.model,
		"response_bytes", len(text),
		"finish_reason", out.Candidates[0].FinishReason,
		"elapsed", time.Since(start).Round(time.Millisecond))

	return text, nil
}
