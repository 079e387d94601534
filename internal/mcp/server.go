package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/fyrsmithlabs/enforcer/internal/logging"
	"github.com/fyrsmithlabs/enforcer/internal/telemetry"
	"github.com/fyrsmithlabs/enforcer/pkg/enforcer"
)

// CheckFunc runs one check. enforcer.Check is the default.
type CheckFunc func(ctx context.Context, opts enforcer.Options) (*enforcer.Result, error)

// Server is the MCP server.
type Server struct {
	mcp       *mcp.Server
	root      string
	check     CheckFunc
	metrics   *Metrics
	logger    *logging.Logger
	telemetry *telemetry.Telemetry
}

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "enforcer").
	Name string

	// Version is the server version (default: "dev").
	Version string

	// Root is the run root used when a call does not name one.
	Root string

	Logger    *logging.Logger
	Telemetry *telemetry.Telemetry

	// Check replaces enforcer.Check.
	Check CheckFunc
}

// DefaultConfig returns the defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "enforcer",
		Version: "dev",
		Root:    ".",
		Logger:  logging.NewNop(),
		Check:   enforcer.Check,
	}
}

// NewServer creates the server and registers its tools.
func NewServer(cfg *Config) (*Server, error) {
	def := DefaultConfig()
	if cfg == nil {
		cfg = def
	}
	if cfg.Name == "" {
		cfg.Name = def.Name
	}
	if cfg.Version == "" {
		cfg.Version = def.Version
	}
	if cfg.Root == "" {
		cfg.Root = def.Root
	}
	if cfg.Logger == nil {
		cfg.Logger = def.Logger
	}
	if cfg.Check == nil {
		cfg.Check = def.Check
	}

	s := &Server{
		mcp: mcp.NewServer(&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		}, nil),
		root:      cfg.Root,
		check:     cfg.Check,
		metrics:   NewMetrics(cfg.Telemetry.Meter(instrumentationName), cfg.Logger),
		logger:    cfg.Logger,
		telemetry: cfg.Telemetry,
	}
	s.registerTools()
	return s, nil
}

// Run serves on the stdio transport until ctx is done or the client
// disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info(ctx, "starting MCP server on stdio transport")
	if err := s.mcp.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}
