package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"meld/internal/domain"
)

// HTTPClient talks to a delivery service over HTTP.
type HTTPClient struct {
	Base string
	HTTP *http.Client
}

// NewHTTP returns a client for the delivery service at base. A nil client
// falls back to http.DefaultClient.
func NewHTTP(base string, client *http.Client) *HTTPClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPClient{Base: base, HTTP: client}
}

var _ domain.DeliveryClient = (*HTTPClient)(nil)

// PublishKeyPackages uploads wire-encoded key packages for others to claim.
func (c *HTTPClient) PublishKeyPackages(ctx context.Context, user domain.Username, packages [][]byte) error {
	return c.post(ctx, "/keypackages/"+url.PathEscape(user.String()), struct {
		Packages [][]byte `json:"packages"`
	}{Packages: packages}, nil)
}

// ClaimKeyPackage removes and returns one of the user's published packages.
func (c *HTTPClient) ClaimKeyPackage(ctx context.Context, user domain.Username) ([]byte, error) {
	var out struct {
		Package []byte `json:"package"`
	}
	if err := c.post(ctx, "/keypackages/"+url.PathEscape(user.String())+"/claim", nil, &out); err != nil {
		return nil, err
	}
	return out.Package, nil
}

// PostGroupMessage appends a message to the group's sequence and returns
// the sequence number it was assigned.
func (c *HTTPClient) PostGroupMessage(ctx context.Context, id domain.GroupID, message []byte) (uint64, error) {
	var out struct {
		Seq uint64 `json:"seq"`
	}
	err := c.post(ctx, "/groups/"+id.String()+"/messages", struct {
		Message []byte `json:"message"`
	}{Message: message}, &out)
	return out.Seq, err
}

// FetchGroupMessages returns the group's messages with sequence numbers
// greater than after.
func (c *HTTPClient) FetchGroupMessages(ctx context.Context, id domain.GroupID, after uint64) ([]domain.SequencedMessage, error) {
	var out []domain.SequencedMessage
	path := "/groups/" + id.String() + "/messages?after=" + strconv.FormatUint(after, 10)
	if err := c.getJSON(ctx, path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// PostWelcome queues a welcome for the user.
func (c *HTTPClient) PostWelcome(ctx context.Context, user domain.Username, welcome []byte) error {
	return c.post(ctx, "/welcomes/"+url.PathEscape(user.String()), struct {
		Welcome []byte `json:"welcome"`
	}{Welcome: welcome}, nil)
}

// FetchWelcomes returns the user's queued welcomes, oldest first.
func (c *HTTPClient) FetchWelcomes(ctx context.Context, user domain.Username) ([][]byte, error) {
	var out [][]byte
	if err := c.getJSON(ctx, "/welcomes/"+url.PathEscape(user.String()), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AckWelcomes drops the user's oldest count welcomes.
func (c *HTTPClient) AckWelcomes(ctx context.Context, user domain.Username, count int) error {
	return c.post(ctx, "/welcomes/"+url.PathEscape(user.String())+"/ack", struct {
		Count int `json:"count"`
	}{Count: count}, nil)
}

func (c *HTTPClient) post(ctx context.Context, path string, in any, out any) error {
	buf := new(bytes.Buffer)
	if in != nil {
		if err := json.NewEncoder(buf).Encode(in); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Base+path, buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("delivery post %s: %s", path, resp.Status)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *HTTPClient) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Base+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("delivery get %s: %s", path, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
