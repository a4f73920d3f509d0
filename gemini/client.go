// Package gemini implements linguistic lyric analysis against the Gemini
// generateContent API, with an offline fallback when no key is configured.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/dgnsrekt/singlingo/player"
)

// DefaultBaseURL is the public Gemini API endpoint.
const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// DefaultOfflineDelay approximates a round trip so offline mode feels like
// a real analysis pass in the UI.
const DefaultOfflineDelay = 800 * time.Millisecond

// defaultModels are tried in order, stable first.
var defaultModels = []string{
	"gemini-2.0-flash",
	"gemini-1.5-flash",
	"gemini-1.5-flash-latest",
	"gemini-1.0-pro",
}

// Config configures a Client. An empty APIKey puts the client in offline
// mode: Analyze returns an empty result after a simulated delay instead of
// calling out.
type Config struct {
	APIKey       string
	BaseURL      string
	Models       []string
	OfflineDelay time.Duration
	// RequestsPerMinute bounds the request rate. Zero means 15, the free
	// tier quota.
	RequestsPerMinute int
}

// Client talks to the Gemini API for per-line pronunciation analysis and
// translation. It implements player.Analyzer.
type Client struct {
	cfg        Config
	limiter    *rate.Limiter
	httpClient *http.Client
}

// New creates a Client.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if len(cfg.Models) == 0 {
		cfg.Models = defaultModels
	}
	if cfg.OfflineDelay <= 0 {
		cfg.OfflineDelay = DefaultOfflineDelay
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 15
	}
	return &Client{
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60), 1),
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// Offline reports whether the client runs without an API key.
func (c *Client) Offline() bool {
	return c.cfg.APIKey == ""
}

// generateRequest is the generateContent request body.
type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type content struct {
	Role  string `json:"role"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	ResponseMIMEType string         `json:"responseMimeType"`
	ResponseSchema   map[string]any `json:"responseSchema"`
	Temperature      float64        `json:"temperature"`
}

// generateResponse is the slice of the generateContent response we need.
type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// analysisPayload is the strict JSON document the model is asked to emit.
// The field shapes mirror player.Analysis so it decodes directly.
type analysisPayload struct {
	Links       []player.Link `json:"links"`
	Stress      []player.Mark `json:"stress"`
	Elisions    []player.Mark `json:"elisions"`
	Explanation string        `json:"explanation"`
	Translation string        `json:"translation"`
}

// Analyze analyzes one lyric line. In offline mode it returns a valid
// empty analysis after a simulated delay, so callers mark the line done
// instead of retrying forever.
func (c *Client) Analyze(ctx context.Context, text string) (*player.Analysis, string, error) {
	if c.Offline() {
		select {
		case <-time.After(c.cfg.OfflineDelay):
		case <-ctx.Done():
			return nil, "", ctx.Err()
		}
		return &player.Analysis{
			Links:       []player.Link{},
			Stress:      []player.Mark{},
			Elisions:    []player.Mark{},
			Explanation: "Offline Mode: Analysis unavailable for new content.",
		}, "", nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, "", err
	}

	body, err := json.Marshal(generateRequest{
		Contents: []content{{
			Role:  "user",
			Parts: []part{{Text: buildPrompt(text)}},
		}},
		GenerationConfig: generationConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema:   responseSchema,
			Temperature:      0.2,
		},
	})
	if err != nil {
		return nil, "", fmt.Errorf("marshal: %w", err)
	}

	var lastErr error
	for _, model := range c.cfg.Models {
		payload, err := c.generate(ctx, model, body)
		if err != nil {
			if ctx.Err() != nil {
				return nil, "", err
			}
			log.Warn("model failed, trying next", "model", model, "err", err)
			lastErr = err
			continue
		}
		return &player.Analysis{
			Links:       payload.Links,
			Stress:      payload.Stress,
			Elisions:    payload.Elisions,
			Explanation: payload.Explanation,
		}, payload.Translation, nil
	}
	return nil, "", fmt.Errorf("all models failed: %w", lastErr)
}

func (c *Client) generate(ctx context.Context, model string, body []byte) (*analysisPayload, error) {
	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.cfg.BaseURL, model, c.cfg.APIKey)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gemini request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("gemini status %d: %s", resp.StatusCode, string(raw))
	}

	var result generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("empty response")
	}

	var payload analysisPayload
	text := result.Candidates[0].Content.Parts[0].Text
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return nil, fmt.Errorf("decode analysis: %w", err)
	}
	return &payload, nil
}

func buildPrompt(text string) string {
	return fmt.Sprintf(`Analyze the following English lyric line for pronunciation for a Chinese speaker.

Identify:
1. Linking (Liaison): Where one word flows into the next.
2. Stress: The primary stressed letter/vowel in key words.
3. Elision: Letters that are silent or barely pronounced (swallowed).
4. Translation: Provide a Chinese translation (Simplified Chinese ONLY). Do NOT include Pinyin.

Lyric Line: %q

Return ONLY the JSON matching the schema.`, text)
}

// responseSchema constrains the model to the analysisPayload shape.
var responseSchema = map[string]any{
	"type": "OBJECT",
	"properties": map[string]any{
		"links": map[string]any{
			"type": "ARRAY",
			"items": map[string]any{
				"type": "OBJECT",
				"properties": map[string]any{
					"fromWordIndex": map[string]any{"type": "INTEGER"},
					"toWordIndex":   map[string]any{"type": "INTEGER"},
					"type": map[string]any{
						"type": "STRING",
						"enum": []string{
							string(player.LinkConsonantVowel),
							string(player.LinkConsonantConsonant),
							string(player.LinkVowelVowel),
							string(player.LinkVowelConsonant),
						},
					},
				},
				"required": []string{"fromWordIndex", "toWordIndex", "type"},
			},
		},
		"stress":   markSchema,
		"elisions": markSchema,
		"explanation": map[string]any{"type": "STRING"},
		"translation": map[string]any{
			"type":        "STRING",
			"description": "A natural, context-aware Chinese (Simplified) translation of the lyric line. Do NOT include Pinyin.",
		},
	},
	"required": []string{"links", "stress", "elisions", "explanation", "translation"},
}

var markSchema = map[string]any{
	"type": "ARRAY",
	"items": map[string]any{
		"type": "OBJECT",
		"properties": map[string]any{
			"wordIndex": map[string]any{"type": "INTEGER"},
			"charIndex": map[string]any{"type": "INTEGER"},
		},
		"required": []string{"wordIndex", "charIndex"},
	},
}
