package prover

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/allsmog/zkcp-go/pkg/api"
	"github.com/allsmog/zkcp-go/pkg/auth"
	"github.com/allsmog/zkcp-go/pkg/crypto/group"
	"github.com/fxamacker/cbor/v2"
)

// APIError is a non-2xx reply from the gateway
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// Unwrap maps the status back to the service error it stands for
func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusConflict:
		return auth.ErrIdentityAlreadyRegistered
	case http.StatusUnauthorized:
		return auth.ErrVerificationFailed
	case http.StatusNotFound:
		if e.Message == auth.ErrChallengeNotFound.Error() {
			return auth.ErrChallengeNotFound
		}
		return auth.ErrIdentityNotFound
	default:
		return nil
	}
}

// Client talks to a zkcp gateway
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	CBOR       bool // Use the CBOR wire format instead of JSON
}

// NewClient creates a client for the gateway at baseURL
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Params fetches the group the gateway operates in
func (c *Client) Params(ctx context.Context) (*group.Params, error) {
	var resp api.ParamsResponse
	if err := c.do(ctx, http.MethodGet, "/params", nil, &resp); err != nil {
		return nil, err
	}

	return group.New(resp.Name, resp.G.Big(), resp.H.Big(), resp.Modulus.Big(), resp.Order.Big())
}

// Register submits the prover's credential
func (c *Client) Register(ctx context.Context, p *Prover) error {
	v1, v2, err := p.Credential()
	if err != nil {
		return err
	}

	req := api.RegisterRequest{
		Identity: p.Identity(),
		V1:       api.NewInt(v1),
		V2:       api.NewInt(v2),
	}
	var resp api.RegisterResponse
	return c.do(ctx, http.MethodPost, "/register", req, &resp)
}

// Login runs commit, challenge and response, returning the session token
func (c *Client) Login(ctx context.Context, p *Prover) (string, error) {
	r1, r2, err := p.Commit()
	if err != nil {
		return "", err
	}

	challenge, err := c.Challenge(ctx, p.Identity(), r1, r2)
	if err != nil {
		return "", err
	}

	s, err := p.Respond(challenge.C.Big())
	if err != nil {
		return "", err
	}

	return c.Verify(ctx, challenge.ChallengeID, s)
}

// Challenge submits a commitment and returns the issued challenge
func (c *Client) Challenge(ctx context.Context, identity string, r1, r2 *big.Int) (*api.ChallengeResponse, error) {
	req := api.ChallengeRequest{
		Identity: identity,
		R1:       api.NewInt(r1),
		R2:       api.NewInt(r2),
	}

	var resp api.ChallengeResponse
	if err := c.do(ctx, http.MethodPost, "/auth/challenge", req, &resp); err != nil {
		return nil, err
	}
	if resp.C.Big() == nil {
		return nil, errors.New("server returned no challenge")
	}
	return &resp, nil
}

// Verify submits the response s and returns the session token
func (c *Client) Verify(ctx context.Context, challengeID string, s *big.Int) (string, error) {
	req := api.VerifyRequest{
		ChallengeID: challengeID,
		S:           api.NewInt(s),
	}

	var resp api.VerifyResponse
	if err := c.do(ctx, http.MethodPost, "/auth/verify", req, &resp); err != nil {
		return "", err
	}
	return resp.SessionToken, nil
}

// Stats fetches the gateway's record counts
func (c *Client) Stats(ctx context.Context) (*auth.Stats, error) {
	var stats auth.Stats
	if err := c.do(ctx, http.MethodGet, "/admin/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	contentType := api.ContentTypeJSON
	marshal := json.Marshal
	unmarshal := json.Unmarshal
	if c.CBOR {
		contentType = api.ContentTypeCBOR
		marshal = cbor.Marshal
		unmarshal = cbor.Unmarshal
	}

	var body io.Reader
	if in != nil {
		data, err := marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", contentType)
	if in != nil {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp api.ErrorResponse
		if err := unmarshal(data, &errResp); err != nil || errResp.Error == "" {
			errResp.Error = strings.TrimSpace(string(data))
		}
		return &APIError{Status: resp.StatusCode, Message: errResp.Error}
	}

	if err := unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
