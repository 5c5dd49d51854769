// Package translate produces target-language text for normalized chapter
// prose while preserving paragraph structure and domain terminology.
package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Request carries one unit of content translation with its grounding
// context.
type Request struct {
	Text          string
	NovelTitle    string
	ChapterNumber int
}

// Translator converts source-language text to target-language text.
type Translator interface {
	Translate(ctx context.Context, req Request) (string, error)
	TranslateTitle(ctx context.Context, title string) (string, error)
	TranslateSynopsis(ctx context.Context, synopsis string) (string, error)
}

const (
	defaultChunkSize  = 4000
	contentMaxTokens  = 4096
	shortMaxTokens    = 512
	requestTimeout    = 120 * time.Second
	maxRetriesPerCall = 4
)

// Client calls a chat-completions style endpoint. All calls within a
// process share one rate limiter so concurrent callers stay under the
// provider's requests-per-minute ceiling together.
type Client struct {
	APIURL     string
	APIKey     string
	Model      string
	ChunkSize  int
	HTTPClient *http.Client

	limiter *rate.Limiter
	log     *zap.SugaredLogger
}

// NewClient builds a Client. rateDelay is the minimum spacing between
// API calls.
func NewClient(apiURL, apiKey, model string, chunkSize int, rateDelay time.Duration, log *zap.SugaredLogger) *Client {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	if rateDelay <= 0 {
		rateDelay = time.Second
	}
	return &Client{
		APIURL:     apiURL,
		APIKey:     apiKey,
		Model:      model,
		ChunkSize:  chunkSize,
		HTTPClient: &http.Client{Timeout: requestTimeout},
		limiter:    rate.NewLimiter(rate.Every(rateDelay), 1),
		log:        log,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Translate chunks the text at paragraph boundaries, translates each
// chunk sequentially, and reassembles the output in order. If any chunk
// fails after retries the whole translation fails — partial translations
// are discarded, never returned.
func (c *Client) Translate(ctx context.Context, req Request) (string, error) {
	chunks := Chunk(req.Text, c.ChunkSize)
	if len(chunks) == 0 {
		return "", fmt.Errorf("nothing to translate")
	}
	c.log.Debugw("translating chapter", "chapter", req.ChapterNumber, "chunks", len(chunks))

	translated := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		out, err := c.complete(ctx, systemPrompt, chunkPrompt(req.NovelTitle, req.ChapterNumber, chunk), contentMaxTokens)
		if err != nil {
			return "", fmt.Errorf("translating chunk %d/%d: %w", i+1, len(chunks), err)
		}
		translated = append(translated, out)
	}

	return Reassemble(translated), nil
}

// TranslateTitle translates a short title with a smaller token budget and
// no chunking.
func (c *Client) TranslateTitle(ctx context.Context, title string) (string, error) {
	return c.complete(ctx, titleSystemPrompt, title, shortMaxTokens)
}

// TranslateSynopsis translates a synopsis with no chunking.
func (c *Client) TranslateSynopsis(ctx context.Context, synopsis string) (string, error) {
	return c.complete(ctx, synopsisSystemPrompt, synopsis, contentMaxTokens)
}

// complete performs one rate-limited, retried API call. Network failures
// and 5xx responses are retried with exponential backoff; 4xx responses
// are permanent.
func (c *Client) complete(ctx context.Context, system, user string, maxTokens int) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: 0.3,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshalling request: %w", err)
	}

	var result string
	operation := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.APIURL, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("creating request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.APIKey)

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			return fmt.Errorf("calling translation API: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("reading response: %w", err)
		}

		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return backoff.Permanent(fmt.Errorf("translation API returned %d: %s", resp.StatusCode, respBody))
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("translation API returned %d", resp.StatusCode)
		}

		var parsed chatResponse
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			return backoff.Permanent(fmt.Errorf("parsing response: %w", err))
		}
		if parsed.Error != nil {
			return backoff.Permanent(fmt.Errorf("translation API error (%s): %s", parsed.Error.Type, parsed.Error.Message))
		}
		if len(parsed.Choices) == 0 {
			return fmt.Errorf("empty choices in response")
		}

		result = parsed.Choices[0].Message.Content
		return nil
	}

	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxRetriesPerCall),
		ctx,
	)
	if err := backoff.Retry(operation, bo); err != nil {
		return "", err
	}

	return result, nil
}
