// Package analysisclient synchronizes a tracking session with the remote analysis service.
// Frames are admitted into a rate-limited buffer, and uploaded in batches by a single-flight
// flush. Each successful upload returns the server's latest interpretation of the session.
package analysisclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cyclopcam/formtrack/pkg/analysis"
	"github.com/cyclopcam/formtrack/pkg/www"
	"github.com/cyclopcam/logs"
)

// Header that carries the API key
const APIKeyHeader = "x-api-key"

// SessionParams describes the video that a remote session will analyze
type SessionParams struct {
	Domain           string `json:"domain"`
	Activity         string `json:"activity"`
	Inference        string `json:"inference"` // Always "local", because we run the pose model on the device
	ResolutionWidth  int    `json:"resolutionWidth"`
	ResolutionHeight int    `json:"resolutionHeight"`
}

// Patcher uploads a batch of frames and returns the resulting analysis.
// Client is the real implementation.
type Patcher interface {
	PatchAnalysis(ctx context.Context, sessionID string, frames []analysis.FrameRecord) (analysis.Analysis, error)
}

// Client talks to the remote analysis service
type Client struct {
	log        logs.Log
	serverURL  string
	apiKey     string
	httpClient *http.Client
}

func NewClient(log logs.Log, serverURL, apiKey string) *Client {
	return &Client{
		log:       log,
		serverURL: strings.TrimRight(serverURL, "/"),
		apiKey:    apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// CreateSession creates a new remote session, and returns its ID
func (c *Client) CreateSession(ctx context.Context, params SessionParams) (string, error) {
	params.Inference = "local"
	req, err := www.NewJSONRequest(ctx, "POST", c.serverURL+"/videos", &params)
	if err != nil {
		return "", err
	}
	req.Header.Set(APIKeyHeader, c.apiKey)
	resp := struct {
		ID string `json:"id"`
	}{}
	if err := www.FetchJSON(c.httpClient, req, &resp); err != nil {
		return "", fmt.Errorf("Failed to create analysis session: %w", err)
	}
	if resp.ID == "" {
		return "", fmt.Errorf("Analysis server returned no session ID")
	}
	c.log.Infof("Created analysis session %v (%v/%v)", resp.ID, params.Domain, params.Activity)
	return resp.ID, nil
}

// PatchAnalysis uploads frames to the session, and returns the server's analysis of
// everything uploaded so far.
func (c *Client) PatchAnalysis(ctx context.Context, sessionID string, frames []analysis.FrameRecord) (analysis.Analysis, error) {
	body, err := analysis.EncodeFrames(frames)
	if err != nil {
		return analysis.Analysis{}, err
	}
	req, err := www.NewRawJSONRequest(ctx, "PATCH", c.serverURL+"/videos/"+url.PathEscape(sessionID)+"/j2p", body)
	if err != nil {
		return analysis.Analysis{}, err
	}
	req.Header.Set(APIKeyHeader, c.apiKey)
	respBody, err := www.ReadAll(c.httpClient, req)
	if err != nil {
		return analysis.Analysis{}, fmt.Errorf("Failed to upload %v frames: %w", len(frames), err)
	}
	return analysis.ParseAnalysis(respBody), nil
}
