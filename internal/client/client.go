// Package client is a typed HTTP client for the TrustGraph API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Aaditya1273/TrustGraphV7/internal/aggregate"
	"github.com/Aaditya1273/TrustGraphV7/internal/ledger"
	"github.com/Aaditya1273/TrustGraphV7/internal/ranking"
	"github.com/Aaditya1273/TrustGraphV7/internal/stake"
	"github.com/Aaditya1273/TrustGraphV7/internal/store"
	"github.com/Aaditya1273/TrustGraphV7/internal/trust"
)

const apiPrefix = "/api/v1"

// APIError is a non-2xx response.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("trustgraph %s %s: %d %s", e.Method, e.Path, e.StatusCode, e.Message)
}

// BatchResult is the response of a batch publish.
type BatchResult struct {
	Published int                    `json:"published"`
	Failed    int                    `json:"failed"`
	Results   []ledger.PublishResult `json:"results"`
}

// StakeInfo mirrors the stake lookup response.
type StakeInfo struct {
	Issuer              string  `json:"issuer"`
	Stake               float64 `json:"stake"`
	Weight              float64 `json:"weight"`
	CanPublishHighTrust bool    `json:"can_publish_high_trust"`
}

type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewHTTPClient targets baseURL. token is sent as a bearer token and is only
// needed for admin routes.
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *HTTPClient) doReq(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+apiPrefix+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		var e struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &APIError{Method: method, Path: path, StatusCode: resp.StatusCode, Message: msg}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *HTTPClient) PublishAtom(ctx context.Context, rec trust.Record) (*trust.Record, error) {
	var out trust.Record
	if err := c.doReq(ctx, http.MethodPost, "/atoms", rec, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) PublishBatch(ctx context.Context, recs []trust.Record) (*BatchResult, error) {
	var out BatchResult
	if err := c.doReq(ctx, http.MethodPost, "/atoms/batch", map[string]interface{}{"atoms": recs}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetAtom returns the stored record, including superseded_by when set.
func (c *HTTPClient) GetAtom(ctx context.Context, id string) (map[string]interface{}, error) {
	var out map[string]interface{}
	if err := c.doReq(ctx, http.MethodGet, "/atoms/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) GetAsset(ctx context.Context, id string) (map[string]interface{}, error) {
	var out map[string]interface{}
	if err := c.doReq(ctx, http.MethodGet, "/atoms/"+url.PathEscape(id)+"/asset", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) Reputation(ctx context.Context, target string) (*aggregate.Summary, error) {
	var out aggregate.Summary
	if err := c.doReq(ctx, http.MethodGet, "/reputation/"+url.PathEscape(target), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ReputationDimensions returns the flat filtered summary.
func (c *HTTPClient) ReputationDimensions(ctx context.Context, target string, dims []string) (map[string]interface{}, error) {
	path := "/reputation/" + url.PathEscape(target) + "?dimensions=" + url.QueryEscape(strings.Join(dims, ","))
	var out map[string]interface{}
	if err := c.doReq(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) CheckThreshold(ctx context.Context, target, dimension string, threshold float64) (*aggregate.ThresholdResult, error) {
	in := map[string]interface{}{"target": target, "dimension": dimension, "threshold": threshold}
	var out aggregate.ThresholdResult
	if err := c.doReq(ctx, http.MethodPost, "/reputation/threshold", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) TopN(ctx context.Context, n int) ([]ranking.NodeScore, error) {
	var out []ranking.NodeScore
	if err := c.doReq(ctx, http.MethodGet, "/ranking/top?n="+strconv.Itoa(n), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) RankingStats(ctx context.Context) (*ranking.Stats, error) {
	var out ranking.Stats
	if err := c.doReq(ctx, http.MethodGet, "/ranking/stats", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) Stake(ctx context.Context, issuer string) (*StakeInfo, error) {
	var out StakeInfo
	if err := c.doReq(ctx, http.MethodGet, "/stakes/"+url.PathEscape(issuer), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) StakeStats(ctx context.Context) (*stake.Stats, error) {
	var out stake.Stats
	if err := c.doReq(ctx, http.MethodGet, "/stakes", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) StakeHistory(ctx context.Context, issuer string, limit int) ([]*store.StakeEvent, error) {
	var out []*store.StakeEvent
	path := "/stakes/" + url.PathEscape(issuer) + "/history?limit=" + strconv.Itoa(limit)
	if err := c.doReq(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) Stakers(ctx context.Context) ([]stake.Entry, error) {
	var out []stake.Entry
	if err := c.doReq(ctx, http.MethodGet, "/stakers", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) RegisterStake(ctx context.Context, issuer string, amount float64) (*stake.Entry, error) {
	var out stake.Entry
	in := map[string]interface{}{"issuer": issuer, "amount": amount}
	if err := c.doReq(ctx, http.MethodPost, "/stakes", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) Slash(ctx context.Context, issuer string, fraction float64, reason string) (*stake.SlashResult, error) {
	var out stake.SlashResult
	in := map[string]interface{}{"fraction": fraction, "reason": reason}
	if err := c.doReq(ctx, http.MethodPost, "/stakes/"+url.PathEscape(issuer)+"/slash", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) Dispute(ctx context.Context, issuer string, fraudulent bool, reason string) (*stake.SlashResult, error) {
	var out stake.SlashResult
	in := map[string]interface{}{"fraudulent": fraudulent, "reason": reason}
	if err := c.doReq(ctx, http.MethodPost, "/stakes/"+url.PathEscape(issuer)+"/dispute", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Stats returns the admin overview as a generic document.
func (c *HTTPClient) Stats(ctx context.Context) (map[string]interface{}, error) {
	var out map[string]interface{}
	if err := c.doReq(ctx, http.MethodGet, "/stats", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
