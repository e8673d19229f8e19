// Package discovery reads the list of remote MCP servers from a YAML file.
//
//	services:
//	  - name: weather
//	    url: https://weather.example.com
//	    protocols: [sse, streamable]
//
// Environment variables (${VAR}) are expanded before parsing so credentials
// and hosts can be injected per deployment.
package discovery

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/vikashloomba/mcp-toolmesh-go/pkg/mcpmgr"
)

// File is the on-disk discovery document.
type File struct {
	Services []Service `yaml:"services"`
}

// Service is one discovered server. Protocol is accepted as a shorthand for a
// single-element Protocols list.
type Service struct {
	Name      string   `yaml:"name"`
	URL       string   `yaml:"url"`
	Protocol  string   `yaml:"protocol,omitempty"`
	Protocols []string `yaml:"protocols,omitempty"`
}

// Tags returns every protocol tag declared for the service.
func (s Service) Tags() []string {
	tags := append([]string(nil), s.Protocols...)
	if s.Protocol != "" {
		tags = append(tags, s.Protocol)
	}
	return tags
}

// LoadFile reads and parses path.
func LoadFile(path string) ([]mcpmgr.DiscoveredService, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("discovery: read %s: %w", path, err)
	}
	services, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("discovery: %s: %w", path, err)
	}
	return services, nil
}

// Parse decodes a discovery document from r.
func Parse(r io.Reader) ([]mcpmgr.DiscoveredService, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	expanded := os.ExpandEnv(string(raw))
	var doc File
	if err := yaml.Unmarshal([]byte(expanded), &doc); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	out := make([]mcpmgr.DiscoveredService, 0, len(doc.Services))
	for _, svc := range doc.Services {
		out = append(out, mcpmgr.DiscoveredService{
			Name:         svc.Name,
			BaseURL:      svc.URL,
			ProtocolTags: svc.Tags(),
		})
	}
	return out, nil
}
