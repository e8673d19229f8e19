package mcpmgr

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
)

// ServerDescriptor is the immutable identity of one remote MCP server.
type ServerDescriptor struct {
	Name     string
	BaseURL  string
	Protocol Protocol
}

// String renders the descriptor for logs.
func (d ServerDescriptor) String() string {
	return fmt.Sprintf("%s (%s, %s)", d.Name, d.BaseURL, d.Protocol.DisplayName())
}

// DiscoveredService is what a discovery source reports for one server before
// a protocol has been chosen.
type DiscoveredService struct {
	Name         string
	BaseURL      string
	ProtocolTags []string
}

// ResolveDescriptors converts discovered services into descriptors, selecting
// a protocol for each. Services without a name, a usable URL, or a supported
// protocol tag are logged and skipped. When two services share a name the
// first one wins.
func ResolveDescriptors(services []DiscoveredService, logger *slog.Logger) []ServerDescriptor {
	if logger == nil {
		logger = slog.Default()
	}
	out := make([]ServerDescriptor, 0, len(services))
	seen := make(map[string]struct{}, len(services))
	for _, svc := range services {
		name := strings.TrimSpace(svc.Name)
		if name == "" {
			logger.Warn("skipping discovered service without a name", "url", svc.BaseURL)
			continue
		}
		if _, dup := seen[name]; dup {
			logger.Warn("skipping duplicate discovered service", "server", name, "url", svc.BaseURL)
			continue
		}
		if err := validateBaseURL(svc.BaseURL); err != nil {
			logger.Warn("skipping discovered service", "server", name, "error", err)
			continue
		}
		protocol, err := SelectProtocol(svc.ProtocolTags)
		if err != nil {
			logger.Warn("skipping discovered service", "server", name, "error", err)
			continue
		}
		seen[name] = struct{}{}
		out = append(out, ServerDescriptor{
			Name:     name,
			BaseURL:  strings.TrimSpace(svc.BaseURL),
			Protocol: protocol,
		})
	}
	return out
}

func validateBaseURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("mcpmgr: base url missing")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("mcpmgr: invalid base url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("mcpmgr: unsupported scheme in %q", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("mcpmgr: base url %q has no host", raw)
	}
	return nil
}
