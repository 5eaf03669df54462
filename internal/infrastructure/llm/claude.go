// Package llm scores bulletin items through the Anthropic messages API.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/kremserw/mitteilungsblattscraper/internal/ports"
)

const (
	defaultEndpoint = "https://api.anthropic.com/v1/messages"
	apiVersion      = "2023-06-01"

	maxItemContentRunes = 50000
	maxPDFContentRunes  = 20000
	maxPDFTextRunes     = 30000
	maxShortTitleRunes  = 200
)

// ClaudeAnalyzer implements relevance scoring with a Claude model.
type ClaudeAnalyzer struct {
	apiKey   string
	model    string
	endpoint string
	client   *http.Client
	logger   *slog.Logger
}

var _ ports.RelevanceAnalyzer = (*ClaudeAnalyzer)(nil)

// NewClaudeAnalyzer builds a client for the given model. An empty endpoint
// selects the public API.
func NewClaudeAnalyzer(apiKey, model, endpoint string, logger *slog.Logger) *ClaudeAnalyzer {
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	return &ClaudeAnalyzer{
		apiKey:   apiKey,
		model:    model,
		endpoint: endpoint,
		client:   &http.Client{Timeout: 120 * time.Second},
		logger:   logger,
	}
}

type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	Messages  []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// AnalyzeItem scores one item against the reader's role description. It never
// fails: API errors produce a zero score with the error as explanation so a
// single bad item cannot halt an edition run.
func (a *ClaudeAnalyzer) AnalyzeItem(ctx context.Context, content, roleDescription, title, category string) (float64, string, string) {
	prompt := scoringPrompt(truncateRunes(content, maxItemContentRunes), roleDescription, title, category)

	text, err := a.complete(ctx, prompt, 1024)
	if err != nil {
		a.logger.Error("item analysis failed", "error", err)
		return 0, fmt.Sprintf("Error during analysis: %v", err), ""
	}

	score, explanation, shortTitle := parseScoringResponse(text)
	return score, explanation, shortTitle
}

// AnalyzeWithPDF produces a free-text assessment of an item together with
// extracted attachment text. Failures are reported inline in the result.
func (a *ClaudeAnalyzer) AnalyzeWithPDF(ctx context.Context, content, pdfText, roleDescription, title, category string) string {
	prompt := pdfPrompt(truncateRunes(content, maxPDFContentRunes),
		truncateRunes(pdfText, maxPDFTextRunes), roleDescription, title, category)

	text, err := a.complete(ctx, prompt, 2048)
	if err != nil {
		a.logger.Error("pdf analysis failed", "error", err)
		return fmt.Sprintf("Error during analysis: %v", err)
	}
	return strings.TrimSpace(text)
}

func (a *ClaudeAnalyzer) complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	body, err := json.Marshal(messagesRequest{
		Model:     a.model,
		MaxTokens: maxTokens,
		Messages:  []message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", a.apiKey)
	req.Header.Set("anthropic-version", apiVersion)

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call api: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var parsed messagesResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if parsed.Error != nil {
			return "", fmt.Errorf("api error %d: %s", resp.StatusCode, parsed.Error.Message)
		}
		return "", fmt.Errorf("api error %d", resp.StatusCode)
	}

	var text strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("empty completion")
	}
	return text.String(), nil
}

func scoringPrompt(content, roleDescription, title, category string) string {
	var b strings.Builder
	b.WriteString("You evaluate announcements from a university bulletin for a specific reader.\n\n")
	fmt.Fprintf(&b, "Reader profile:\n%s\n\n", roleDescription)
	fmt.Fprintf(&b, "Announcement title: %s\n", title)
	if category != "" {
		fmt.Fprintf(&b, "Category: %s\n", category)
	}
	fmt.Fprintf(&b, "\nAnnouncement content:\n%s\n\n", content)
	b.WriteString(`Rate how relevant this announcement is for the reader on a scale of 0-100:
- 0-20: not relevant at all
- 21-40: marginally relevant, general interest at most
- 41-60: somewhat relevant, worth skimming
- 61-80: relevant, the reader should read this
- 81-100: highly relevant, directly affects the reader

Respond in exactly this format:
SCORE: <number 0-100>
SHORT_TITLE: <concise title, at most 10 words>
SUMMARY: <2-3 sentence summary of the announcement>
RELEVANCE: <1-2 sentences on why this matters or not for the reader>
KEY_POINTS: <bullet points of concrete dates, deadlines or actions, or "none">`)
	return b.String()
}

func pdfPrompt(content, pdfText, roleDescription, title, category string) string {
	var b strings.Builder
	b.WriteString("You evaluate an announcement from a university bulletin together with its attached documents.\n\n")
	fmt.Fprintf(&b, "Reader profile:\n%s\n\n", roleDescription)
	fmt.Fprintf(&b, "Announcement title: %s\n", title)
	if category != "" {
		fmt.Fprintf(&b, "Category: %s\n", category)
	}
	fmt.Fprintf(&b, "\nAnnouncement content:\n%s\n\n", content)
	fmt.Fprintf(&b, "Extracted attachment text:\n%s\n\n", pdfText)
	b.WriteString("Give a brief analysis for the reader: what the documents contain, " +
		"what is new relative to the announcement itself, and any concrete dates, " +
		"deadlines or required actions. Keep it under 300 words.")
	return b.String()
}

var (
	scoreExpr      = regexp.MustCompile(`(?m)^SCORE:\s*(\d+(?:\.\d+)?)`)
	shortTitleExpr = regexp.MustCompile(`(?m)^SHORT_TITLE:\s*(.+)$`)
	summaryExpr    = regexp.MustCompile(`(?ms)^SUMMARY:\s*(.+?)(?:^[A-Z_]+:|\z)`)
	relevanceExpr  = regexp.MustCompile(`(?ms)^RELEVANCE:\s*(.+?)(?:^[A-Z_]+:|\z)`)
	keyPointsExpr  = regexp.MustCompile(`(?ms)^KEY_POINTS:\s*(.+?)(?:^[A-Z_]+:|\z)`)
	// Older prompt revisions used a single EXPLANATION field.
	explanationExpr = regexp.MustCompile(`(?ms)^EXPLANATION:\s*(.+?)(?:^[A-Z_]+:|\z)`)
)

func parseScoringResponse(text string) (float64, string, string) {
	var score float64
	if m := scoreExpr.FindStringSubmatch(text); m != nil {
		if parsed, err := strconv.ParseFloat(m[1], 64); err == nil {
			score = clampScore(parsed)
		}
	}

	var shortTitle string
	if m := shortTitleExpr.FindStringSubmatch(text); m != nil {
		shortTitle = truncateRunes(strings.TrimSpace(m[1]), maxShortTitleRunes)
	}

	var parts []string
	if m := summaryExpr.FindStringSubmatch(text); m != nil {
		if v := strings.TrimSpace(m[1]); v != "" {
			parts = append(parts, "Summary: "+v)
		}
	}
	if m := relevanceExpr.FindStringSubmatch(text); m != nil {
		if v := strings.TrimSpace(m[1]); v != "" {
			parts = append(parts, "Relevance: "+v)
		}
	}
	if m := keyPointsExpr.FindStringSubmatch(text); m != nil {
		if v := strings.TrimSpace(m[1]); v != "" && !isEmptyKeyPoints(v) {
			parts = append(parts, "Key points: "+v)
		}
	}

	explanation := strings.Join(parts, "\n\n")
	if explanation == "" {
		if m := explanationExpr.FindStringSubmatch(text); m != nil {
			explanation = strings.TrimSpace(m[1])
		}
	}
	if explanation == "" {
		explanation = strings.TrimSpace(text)
	}

	return score, explanation, shortTitle
}

func isEmptyKeyPoints(v string) bool {
	switch strings.ToLower(strings.TrimSpace(strings.TrimLeft(v, "-* "))) {
	case "none", "n/a", "":
		return true
	}
	return false
}

func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
