// Package qdrant is the optional secondary vector sink. It chunks
// document text into overlapping windows, embeds each chunk
// deterministically and upserts points over the Qdrant REST API.
// Failures here are downgraded to warnings by the orchestrator; this
// index is best-effort, the local vector index is the durable one.
package qdrant

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/pamin/idms/internal/core/domain"
	"github.com/pamin/idms/internal/infrastructure/chunking"
	"github.com/pamin/idms/internal/infrastructure/vectorindex"
)

const vectorSize = vectorindex.DefaultDims

type Client struct {
	baseURL    string
	collection string
	apiKey     string
	httpClient *http.Client
	splitter   *chunking.Splitter
	limiter    *rate.Limiter

	ensureMu sync.Mutex
	ensured  bool
}

func New(baseURL, collection, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		splitter:   chunking.NewSplitter(1000, 100),
		// Upserts are bursty during batch runs; cap the push rate so a
		// large inbox cannot saturate the endpoint.
		limiter: rate.NewLimiter(rate.Limit(10), 20),
	}
}

type point struct {
	ID      uint64         `json:"id"`
	Vector  []float64      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

// IndexDocument upserts one point per chunk, keyed by a stable hash of
// doc_id:chunk_index so re-runs overwrite rather than duplicate.
func (c *Client) IndexDocument(ctx context.Context, docID, content string, rec domain.MetadataRecord) error {
	chunks := c.splitter.Split(content)
	if len(chunks) == 0 {
		return nil
	}

	if err := c.ensureCollection(ctx); err != nil {
		return err
	}

	points := make([]point, 0, len(chunks))
	for i, chunk := range chunks {
		points = append(points, point{
			ID:     pointID(docID, i),
			Vector: vectorindex.Embed(chunk, vectorSize),
			Payload: map[string]any{
				"doc_id":      docID,
				"chunk_index": i,
				"chunk_text":  chunk,
				"category":    rec.Category,
				"entity":      rec.Entity,
				"status":      string(rec.Status),
			},
		})
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	body, err := json.Marshal(map[string]any{"points": points})
	if err != nil {
		return fmt.Errorf("marshal upsert body: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s/points?wait=true", c.baseURL, c.collection)
	resp, err := c.do(ctx, http.MethodPut, url, body)
	if err != nil {
		return fmt.Errorf("qdrant upsert request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant upsert status: %s", resp.Status)
	}
	return nil
}

// pointID folds doc_id:index into a stable uint64.
func pointID(docID string, chunkIndex int) uint64 {
	digest := sha256.Sum256([]byte(docID + ":" + strconv.Itoa(chunkIndex)))
	id, _ := strconv.ParseUint(hex.EncodeToString(digest[:8]), 16, 64)
	return id
}

func (c *Client) ensureCollection(ctx context.Context) error {
	c.ensureMu.Lock()
	done := c.ensured
	c.ensureMu.Unlock()
	if done {
		return nil
	}

	url := fmt.Sprintf("%s/collections/%s", c.baseURL, c.collection)

	resp, err := c.do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("qdrant collection probe: %w", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		c.markEnsured()
		return nil
	}

	body, err := json.Marshal(map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": "Cosine",
		},
	})
	if err != nil {
		return fmt.Errorf("marshal create collection body: %w", err)
	}

	resp, err = c.do(ctx, http.MethodPut, url, body)
	if err != nil {
		return fmt.Errorf("qdrant create collection: %w", err)
	}
	defer resp.Body.Close()

	// 409 means another writer created it first.
	if resp.StatusCode == http.StatusConflict {
		c.markEnsured()
		return nil
	}
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		if msg := strings.TrimSpace(string(raw)); msg != "" {
			return fmt.Errorf("qdrant create collection status: %s: %s", resp.Status, msg)
		}
		return fmt.Errorf("qdrant create collection status: %s", resp.Status)
	}
	c.markEnsured()
	return nil
}

func (c *Client) markEnsured() {
	c.ensureMu.Lock()
	c.ensured = true
	c.ensureMu.Unlock()
}

func (c *Client) do(ctx context.Context, method, url string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
	}
	return c.httpClient.Do(req)
}
