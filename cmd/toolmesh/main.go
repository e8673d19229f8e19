// Command toolmesh fronts every MCP server listed in a discovery file with a
// single Streamable MCP endpoint and reports their health on /status.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/vikashloomba/mcp-toolmesh-go/pkg/discovery"
	mcpgateway "github.com/vikashloomba/mcp-toolmesh-go/pkg/mcp-gateway"
	"github.com/vikashloomba/mcp-toolmesh-go/pkg/mcpmgr"
	"github.com/vikashloomba/mcp-toolmesh-go/pkg/toolcache"
)

func main() {
	envFile := flag.String("env-file", "", "optional .env file to load before reading the environment")
	flag.Parse()

	if err := run(*envFile); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "toolmesh: %v\n", err)
		os.Exit(1)
	}
}

func run(envFile string) error {
	cfg, err := loadConfig(envFile)
	if err != nil {
		return err
	}
	logger, err := newLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	services, err := discovery.LoadFile(cfg.DiscoveryFile)
	if err != nil {
		return err
	}
	descriptors := mcpmgr.ResolveDescriptors(services, logger)
	if len(descriptors) == 0 {
		logger.Warn("no usable mcp servers discovered", "file", cfg.DiscoveryFile)
	}

	factory := mcpmgr.NewTransportFactory(&mcpmgr.FactoryOptions{
		ClientName: cfg.ClientName,
		LogJSONRPC: cfg.LogJSONRPC,
		Logger:     logger,
	})
	connOpts := &mcpmgr.ConnectionOptions{
		ConnectTimeout: cfg.ConnectTimeout,
		RequestTimeout: cfg.RequestTimeout,
		Logger:         logger,
	}
	sources := make([]toolcache.ProviderSource, 0, len(descriptors))
	checkers := make([]mcpgateway.HealthChecker, 0, len(descriptors))
	for _, desc := range descriptors {
		conn := mcpmgr.NewServerConnection(desc, factory, connOpts)
		sources = append(sources, conn)
		checkers = append(checkers, conn)
		logger.Info("mcp server configured", "server", desc.Name, "url", desc.BaseURL, "protocol", desc.Protocol.DisplayName())
	}

	cache := toolcache.NewCache(sources, &toolcache.Options{Logger: logger})
	defer cache.Close()
	monitor := mcpgateway.NewHealthMonitor(checkers, cfg.HealthInterval, logger)

	gateway, err := mcpgateway.NewGateway(cache, monitor, &mcpgateway.Options{
		Addr:           cfg.Addr,
		AllowedOrigins: cfg.CORSOrigins,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	factory.OnToolListChanged(func(_ context.Context, event mcpmgr.ToolListChangedEvent) {
		gateway.HandleToolsChanged(toolcache.ToolsChangedEvent{Source: event.Endpoint})
	})
	// A server that comes back after being unreachable was skipped by the
	// last rebuild.
	monitor.OnRecovered(func(snap mcpmgr.HealthSnapshot) {
		gateway.HandleToolsChanged(toolcache.ToolsChangedEvent{Source: snap.ServerName})
	})
	go monitor.Run(ctx)

	opts := gateway.Options()
	logger.Info("toolmesh serving", "addr", opts.Addr, "path", opts.Path, "status", opts.StatusPath, "tools", gateway.ToolCount())
	return gateway.ListenAndServe(ctx)
}
