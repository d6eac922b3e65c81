package mcp

import (
	"log/slog"

	"github.com/ka2n/litrev/log"
	"github.com/mark3labs/mcp-go/server"
)

// Version is reported to MCP clients during initialization.
var Version = "dev"

// Server represents the MCP server for litrev
type Server struct {
	server   *server.MCPServer
	services *Services
}

// NewServer creates a server exposing the tools backed by services.
func NewServer(services *Services) *Server {
	s := server.NewMCPServer("litrev", Version, server.WithLogging())
	s.AddTools(InitTools(services)...)

	return &Server{
		server:   s,
		services: services,
	}
}

// Run serves MCP over stdio until stdin closes.
func (s *Server) Run() error {
	defer s.services.Close()
	return server.ServeStdio(s.server,
		server.WithErrorLogger(slog.NewLogLogger(log.Logger.Handler(), slog.LevelError)),
	)
}
