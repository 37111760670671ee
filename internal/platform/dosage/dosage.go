// Package dosage suggests prescription quantity and duration. It asks a
// generative-text HTTP endpoint for a structured answer and falls back to a
// local heuristic on any failure, so callers never see an error from this
// dependency.
package dosage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Request describes the medicine and indication to dose.
type Request struct {
	Medicine   string `json:"medicine"`
	Indication string `json:"indication"`
	AgeYears   int    `json:"age_years,omitempty"`
	WeightKG   float64 `json:"weight_kg,omitempty"`
}

// Suggestion is the computed answer. Source records whether the remote API
// or the local heuristic produced it.
type Suggestion struct {
	Quantity int    `json:"quantity"`
	Duration string `json:"duration"`
	Source   string `json:"source"`
}

const (
	SourceAPI       = "api"
	SourceHeuristic = "heuristic"
)

// Client calls the remote dosage API.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
	logger   zerolog.Logger
}

func NewClient(endpoint, apiKey string, logger zerolog.Logger) *Client {
	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		http:     &http.Client{Timeout: 10 * time.Second},
		logger:   logger,
	}
}

// Suggest never fails: a remote error of any kind silently degrades to the
// heuristic answer.
func (c *Client) Suggest(ctx context.Context, req Request) Suggestion {
	if c.endpoint != "" {
		if s, err := c.ask(ctx, req); err == nil {
			return s
		} else {
			c.logger.Debug().Err(err).Str("medicine", req.Medicine).Msg("dosage api unavailable, using heuristic")
		}
	}
	return Heuristic(req)
}

type apiRequest struct {
	Prompt string `json:"prompt"`
}

type apiResponse struct {
	Text string `json:"text"`
}

// jsonObjectPattern extracts the first JSON object from free-form model output.
var jsonObjectPattern = regexp.MustCompile(`\{[^{}]*\}`)

func (c *Client) ask(ctx context.Context, req Request) (Suggestion, error) {
	prompt := fmt.Sprintf(
		"Suggest a dispense quantity and treatment duration for the medicine %q with indication %q."+
			" Answer only with a JSON object {\"quantity\": <int>, \"duration\": \"<text>\"}.",
		req.Medicine, req.Indication)

	body, err := json.Marshal(apiRequest{Prompt: prompt})
	if err != nil {
		return Suggestion{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Suggestion{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return Suggestion{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Suggestion{}, fmt.Errorf("dosage api returned status %d", resp.StatusCode)
	}

	var apiResp apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return Suggestion{}, fmt.Errorf("decode dosage response: %w", err)
	}

	raw := jsonObjectPattern.FindString(apiResp.Text)
	if raw == "" {
		return Suggestion{}, fmt.Errorf("no JSON object in dosage response")
	}

	var s Suggestion
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return Suggestion{}, fmt.Errorf("unmarshal dosage object: %w", err)
	}
	if s.Quantity <= 0 || s.Duration == "" {
		return Suggestion{}, fmt.Errorf("incomplete dosage object: %+v", s)
	}
	s.Source = SourceAPI
	return s, nil
}

var (
	everyHoursPattern = regexp.MustCompile(`(?i)(?:every|cada)\s+(\d+)\s*(?:hours?|horas?|h\b)`)
	perDayPattern     = regexp.MustCompile(`(?i)(\d+)\s*(?:times?|veces)\s*(?:a|per|al)?\s*(?:day|d[ií]a)`)
	forDaysPattern    = regexp.MustCompile(`(?i)(?:for|por|durante)\s+(\d+)\s*(?:days?|d[ií]as?)`)
)

// Heuristic computes a conservative answer from the indication text alone.
// It mirrors the regex fallback the original system used when the AI
// endpoint was unreachable.
func Heuristic(req Request) Suggestion {
	text := req.Medicine + " " + req.Indication

	dosesPerDay := 1
	if m := everyHoursPattern.FindStringSubmatch(text); m != nil {
		if hours, err := strconv.Atoi(m[1]); err == nil && hours > 0 && hours <= 24 {
			dosesPerDay = 24 / hours
			if dosesPerDay < 1 {
				dosesPerDay = 1
			}
		}
	} else if m := perDayPattern.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			dosesPerDay = n
		}
	}

	days := 7
	if m := forDaysPattern.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			days = n
		}
	}

	duration := fmt.Sprintf("%d days", days)
	if strings.Contains(strings.ToLower(req.Indication), "día") || strings.Contains(strings.ToLower(req.Indication), "dias") {
		duration = fmt.Sprintf("%d días", days)
	}

	return Suggestion{
		Quantity: dosesPerDay * days,
		Duration: duration,
		Source:   SourceHeuristic,
	}
}
