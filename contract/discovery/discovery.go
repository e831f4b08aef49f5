package discovery

import (
	"context"
	"time"
)

// InstanceStatus is the registry-visible state of an instance.
type InstanceStatus string

const (
	StatusUp           InstanceStatus = "UP"
	StatusDown         InstanceStatus = "DOWN"
	StatusStarting     InstanceStatus = "STARTING"
	StatusOutOfService InstanceStatus = "OUT_OF_SERVICE"
	StatusUnknown      InstanceStatus = "UNKNOWN"
)

// InstanceInfo describes one registered instance.
type InstanceInfo struct {
	InstanceID  string            `json:"instanceId"`
	App         string            `json:"app"`
	HostName    string            `json:"hostName,omitempty"`
	IPAddr      string            `json:"ipAddr,omitempty"`
	Port        int               `json:"port,omitempty"`
	Status      InstanceStatus    `json:"status"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	LastUpdated time.Time         `json:"lastUpdatedTimestamp,omitzero"`
}

// Application groups the instances registered under one name.
type Application struct {
	Name      string         `json:"name"`
	Instances []InstanceInfo `json:"instance"`
}

// RegistryClient talks to a discovery registry.
type RegistryClient interface {
	Register(ctx context.Context, info InstanceInfo) (InstanceInfo, error)
	Cancel(ctx context.Context, app, instanceID string) error
	SendHeartBeat(ctx context.Context, app, instanceID string, status InstanceStatus) error
	GetApplications(ctx context.Context) ([]Application, error)
	GetApplication(ctx context.Context, app string) (Application, error)
	Close()
}

// TransportClientFactories builds registry clients for a service URL.
type TransportClientFactories interface {
	NewRegistryClient(serviceURL string) (RegistryClient, error)
}
