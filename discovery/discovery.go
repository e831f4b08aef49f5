/*
Package discovery wires registry transports into a discovery client.

NewHTTPDiscoveryClientOptionalArgs returns optional arguments with the default
HTTP transport installed; Client uses them to register, renew and refresh.
*/
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	contract "github.com/next-trace/scg-stream-verifier/contract/discovery"
	serr "github.com/next-trace/scg-stream-verifier/contract/errors"
	"github.com/next-trace/scg-stream-verifier/discovery/httptransport"
)

// NewHTTPDiscoveryClientOptionalArgs returns optional arguments whose
// transport factories are the default HTTP implementation. Nothing else is set.
func NewHTTPDiscoveryClientOptionalArgs() *contract.OptionalArgs {
	args := &contract.OptionalArgs{}
	args.SetTransportClientFactories(httptransport.NewFactories())

	return args
}

// Client keeps one instance registered and caches the registry view.
type Client struct {
	args     *contract.OptionalArgs
	registry contract.RegistryClient
	logger   *slog.Logger

	mu     sync.Mutex
	info   contract.InstanceInfo
	status contract.InstanceStatus
	apps   []contract.Application
}

// NewClient builds a client for serviceURL. Nil args default to the HTTP transport.
func NewClient(serviceURL string, info contract.InstanceInfo, args *contract.OptionalArgs, logger *slog.Logger) (*Client, error) {
	if args == nil {
		args = NewHTTPDiscoveryClientOptionalArgs()
	}

	if logger == nil {
		logger = slog.Default()
	}

	f := args.TransportClientFactories()
	if f == nil {
		return nil, fmt.Errorf("discovery client: %w", serr.ErrTransportNotConfigured)
	}

	rc, err := f.NewRegistryClient(serviceURL)
	if err != nil {
		return nil, fmt.Errorf("discovery client: %w", err)
	}

	return &Client{args: args, registry: rc, logger: logger, info: info}, nil
}

// Instance returns the instance as last registered.
func (c *Client) Instance() contract.InstanceInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.info
}

func (c *Client) Register(ctx context.Context) error {
	c.mu.Lock()
	info := c.info
	c.mu.Unlock()

	reg, err := c.registry.Register(ctx, info)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.info = reg
	c.status = reg.Status
	c.mu.Unlock()

	c.logger.InfoContext(ctx, "instance registered", "app", reg.App, "instance_id", reg.InstanceID)
	c.args.Notify(contract.Event{Kind: contract.EventRegistered, InstanceID: reg.InstanceID, Status: reg.Status, At: time.Now()})

	return nil
}

// Renew sends a heartbeat carrying the health-check status, or UP without a callback.
func (c *Client) Renew(ctx context.Context) error {
	status := contract.StatusUp
	if cb := c.args.HealthCheckCallback(); cb != nil {
		status = cb(ctx)
	}

	c.mu.Lock()
	info := c.info
	c.mu.Unlock()

	// The registry only learns the new status once the heartbeat lands.
	if err := c.registry.SendHeartBeat(ctx, info.App, info.InstanceID, status); err != nil {
		c.logger.WarnContext(ctx, "registry heartbeat failed", "instance_id", info.InstanceID, "err", err)
		return err
	}

	c.mu.Lock()
	changed := c.status != status
	c.status = status
	c.mu.Unlock()

	if changed {
		c.logger.InfoContext(ctx, "instance status changed", "instance_id", info.InstanceID, "status", status)
		c.args.Notify(contract.Event{Kind: contract.EventStatusChanged, InstanceID: info.InstanceID, Status: status, At: time.Now()})
	}

	return nil
}

// Refresh replaces the cached application view.
func (c *Client) Refresh(ctx context.Context) error {
	apps, err := c.registry.GetApplications(ctx)
	if err != nil {
		c.logger.WarnContext(ctx, "registry refresh failed", "err", err)
		return err
	}

	c.mu.Lock()
	c.apps = apps
	id := c.info.InstanceID
	c.mu.Unlock()

	c.args.Notify(contract.Event{Kind: contract.EventCacheRefreshed, InstanceID: id, At: time.Now()})

	return nil
}

// Applications returns the cached view from the last Refresh.
func (c *Client) Applications() []contract.Application {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]contract.Application(nil), c.apps...)
}

// Shutdown cancels the registration and releases the transport.
func (c *Client) Shutdown(ctx context.Context) error {
	defer c.registry.Close()

	info := c.Instance()
	if info.InstanceID == "" {
		return nil
	}

	if err := c.registry.Cancel(ctx, info.App, info.InstanceID); err != nil {
		return err
	}

	c.args.Notify(contract.Event{Kind: contract.EventCanceled, InstanceID: info.InstanceID, At: time.Now()})

	return nil
}
