/*
Package httptransport is the default discovery transport: a registry client
speaking JSON over HTTP with the usual /apps resource layout.

	POST   {base}/apps/{app}                 register
	DELETE {base}/apps/{app}/{id}            cancel
	PUT    {base}/apps/{app}/{id}?status=UP  heartbeat
	GET    {base}/apps                       all applications
	GET    {base}/apps/{app}                 one application
*/
package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	serr "github.com/next-trace/scg-stream-verifier/contract/errors"
	"github.com/next-trace/scg-stream-verifier/contract/discovery"
)

// StatusError carries an unexpected registry response status.
type StatusError struct {
	Method string
	Path   string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.Path, e.Code)
}

// Factories creates HTTP registry clients sharing one *http.Client.
type Factories struct {
	HTTP *http.Client
}

var _ discovery.TransportClientFactories = (*Factories)(nil)

// NewFactories returns factories backed by a pooled client using DefaultClientConfig.
func NewFactories() *Factories {
	return &Factories{HTTP: NewHTTPClient(DefaultClientConfig())}
}

func (f *Factories) NewRegistryClient(serviceURL string) (discovery.RegistryClient, error) {
	u, err := url.Parse(serviceURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("registry url %q: %w", serviceURL, errors.Join(serr.ErrTransportNotConfigured, err))
	}

	hc := f.HTTP
	if hc == nil {
		hc = NewHTTPClient(DefaultClientConfig())
	}

	return &Client{base: strings.TrimRight(u.String(), "/"), http: hc}, nil
}

// Client is a registry client over HTTP.
type Client struct {
	base string
	http *http.Client
}

var _ discovery.RegistryClient = (*Client)(nil)

type instanceDoc struct {
	Instance discovery.InstanceInfo `json:"instance"`
}

type applicationDoc struct {
	Application discovery.Application `json:"application"`
}

type applicationsDoc struct {
	Applications struct {
		Application []discovery.Application `json:"application"`
	} `json:"applications"`
}

// Register announces info; an empty InstanceID gets a random one. The
// registered info is returned.
func (c *Client) Register(ctx context.Context, info discovery.InstanceInfo) (discovery.InstanceInfo, error) {
	if info.InstanceID == "" {
		info.InstanceID = uuid.NewString()
	}

	if info.Status == "" {
		info.Status = discovery.StatusUp
	}

	info.LastUpdated = time.Now().UTC()

	body, err := json.Marshal(instanceDoc{Instance: info})
	if err != nil {
		return discovery.InstanceInfo{}, fmt.Errorf("register %s: %w", info.App, err)
	}

	if err = c.do(ctx, http.MethodPost, c.appPath(info.App), body, nil, http.StatusNoContent, http.StatusOK); err != nil {
		return discovery.InstanceInfo{}, err
	}

	return info, nil
}

func (c *Client) Cancel(ctx context.Context, app, instanceID string) error {
	return c.do(ctx, http.MethodDelete, c.appPath(app)+"/"+url.PathEscape(instanceID), nil, nil, http.StatusOK)
}

func (c *Client) SendHeartBeat(ctx context.Context, app, instanceID string, status discovery.InstanceStatus) error {
	p := c.appPath(app) + "/" + url.PathEscape(instanceID)
	if status != "" {
		p += "?status=" + url.QueryEscape(string(status))
	}

	return c.do(ctx, http.MethodPut, p, nil, nil, http.StatusOK)
}

func (c *Client) GetApplications(ctx context.Context) ([]discovery.Application, error) {
	var doc applicationsDoc
	if err := c.do(ctx, http.MethodGet, "/apps", nil, &doc, http.StatusOK); err != nil {
		return nil, err
	}

	return doc.Applications.Application, nil
}

func (c *Client) GetApplication(ctx context.Context, app string) (discovery.Application, error) {
	var doc applicationDoc
	if err := c.do(ctx, http.MethodGet, c.appPath(app), nil, &doc, http.StatusOK); err != nil {
		return discovery.Application{}, err
	}

	return doc.Application, nil
}

// Close releases idle connections.
func (c *Client) Close() { c.http.CloseIdleConnections() }

func (c *Client) appPath(app string) string { return "/apps/" + url.PathEscape(strings.ToUpper(app)) }

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any, want ...int) error {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		return fmt.Errorf("%s %s: %w", method, path, errors.Join(serr.ErrRegistryRequestFailed, err))
	}
	defer resp.Body.Close()

	ok := false
	for _, code := range want {
		if resp.StatusCode == code {
			ok = true
			break
		}
	}

	if !ok {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("registry: %w", errors.Join(serr.ErrRegistryRequestFailed,
			&StatusError{Method: method, Path: path, Code: resp.StatusCode}))
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err = json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s decode: %w", method, path, errors.Join(serr.ErrRegistryRequestFailed, err))
	}

	return nil
}
