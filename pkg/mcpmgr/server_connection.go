package mcpmgr

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultToolDescription is reported for tools that omit a description.
const DefaultToolDescription = "No description available"

// ToolDescriptor is the catalog view of one tool.
type ToolDescriptor struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// HealthSnapshot is a point-in-time view of one server. A fresh snapshot is
// computed on every poll.
type HealthSnapshot struct {
	ServerName  string           `json:"name"`
	DisplayName string           `json:"displayName"`
	Healthy     bool             `json:"healthy"`
	Tools       []ToolDescriptor `json:"tools"`
	Protocol    Protocol         `json:"protocol"`
	Endpoint    string           `json:"endpoint,omitempty"`
	Error       string           `json:"error,omitempty"`
	CheckedAt   time.Time        `json:"checkedAt"`
}

// ServerConnection owns the identity of one remote server and produces
// clients for it: long-lived ones for tool invocation and short-lived ones for
// health polling.
type ServerConnection struct {
	desc    ServerDescriptor
	factory ClientFactory
	opts    ConnectionOptions
	logger  *slog.Logger
}

// NewServerConnection binds a descriptor to a client factory.
func NewServerConnection(desc ServerDescriptor, factory ClientFactory, opts *ConnectionOptions) *ServerConnection {
	options := opts.normalized()
	return &ServerConnection{
		desc:    desc,
		factory: factory,
		opts:    options,
		logger:  options.Logger.With("server", desc.Name, "protocol", desc.Protocol.DisplayName()),
	}
}

// Descriptor returns the server identity.
func (s *ServerConnection) Descriptor() ServerDescriptor { return s.desc }

// Name is the configured server name.
func (s *ServerConnection) Name() string { return s.desc.Name }

// CreateClient establishes a long-lived client suitable for tool invocation.
func (s *ServerConnection) CreateClient(ctx context.Context) (*Client, error) {
	return s.factory.CreateClientWithFallback(ctx, s.desc.BaseURL, s.desc.Protocol, s.opts.ConnectTimeout, s.opts.RequestTimeout)
}

// CreateHealthCheckClient returns a short-lived client, or nil when the server
// cannot be reached at any endpoint form.
func (s *ServerConnection) CreateHealthCheckClient(ctx context.Context) *Client {
	client, err := s.factory.CreateHealthCheckClient(ctx, s.desc.BaseURL, s.desc.Protocol)
	if err != nil {
		s.logger.Debug("health check connect failed", "error", err)
		return nil
	}
	return client
}

// NewToolProvider connects a long-lived client and captures its tool list.
func (s *ServerConnection) NewToolProvider(ctx context.Context) (ToolCallbackProvider, error) {
	client, err := s.CreateClient(ctx)
	if err != nil {
		return nil, err
	}
	provider, err := NewClientToolProvider(ctx, s.desc.Name, client)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return provider, nil
}

// HealthSnapshot connects, lists tools, and disconnects. Every failure,
// including a panic in the transport, is reported as an unhealthy snapshot.
func (s *ServerConnection) HealthSnapshot(ctx context.Context) (snap HealthSnapshot) {
	snap = s.unhealthy(nil)
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("health check panicked", "panic", r)
			snap = s.unhealthy(fmt.Errorf("mcpmgr: health check panicked: %v", r))
		}
	}()

	client := s.CreateHealthCheckClient(ctx)
	if client == nil {
		snap.Error = "unreachable"
		return snap
	}
	defer func() {
		if err := client.Close(); err != nil {
			s.logger.Debug("closing health check client", "error", err)
		}
	}()

	display := client.ServerName()
	if display == "" {
		display = s.desc.Name
	}
	tools, err := client.ListTools(ctx)
	if err != nil {
		s.logger.Debug("health check tool listing failed", "error", err)
		return s.unhealthy(err)
	}
	descriptors := make([]ToolDescriptor, 0, len(tools))
	for _, tool := range tools {
		desc := tool.Description
		if desc == "" {
			desc = DefaultToolDescription
		}
		descriptors = append(descriptors, ToolDescriptor{Name: tool.Name, Description: desc})
	}
	return HealthSnapshot{
		ServerName:  s.desc.Name,
		DisplayName: display,
		Healthy:     true,
		Tools:       descriptors,
		Protocol:    s.desc.Protocol,
		Endpoint:    client.Endpoint(),
		CheckedAt:   time.Now(),
	}
}

func (s *ServerConnection) unhealthy(err error) HealthSnapshot {
	snap := HealthSnapshot{
		ServerName:  s.desc.Name,
		DisplayName: s.desc.Name,
		Tools:       []ToolDescriptor{},
		Protocol:    s.desc.Protocol,
		CheckedAt:   time.Now(),
	}
	if err != nil {
		snap.Error = err.Error()
	}
	return snap
}
