package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"strings"
	"time"

	"github.com/vikashloomba/mcp-toolmesh-go/pkg/mcpmgr"
)

func main() {
	name := flag.String("name", "example", "server name")
	url := flag.String("url", "http://localhost:8080", "server base URL")
	protocols := flag.String("protocols", "streamable,sse", "comma separated protocol tags")
	flag.Parse()

	descriptors := mcpmgr.ResolveDescriptors([]mcpmgr.DiscoveredService{{
		Name:         *name,
		BaseURL:      *url,
		ProtocolTags: strings.Split(*protocols, ","),
	}}, nil)
	if len(descriptors) == 0 {
		log.Fatalf("no usable server description for %s", *url)
	}

	factory := mcpmgr.NewTransportFactory(&mcpmgr.FactoryOptions{ClientName: "health-example"})
	conn := mcpmgr.NewServerConnection(descriptors[0], factory, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	snap := conn.HealthSnapshot(ctx)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		log.Fatalf("encode snapshot: %v", err)
	}
	if !snap.Healthy {
		os.Exit(1)
	}
}
