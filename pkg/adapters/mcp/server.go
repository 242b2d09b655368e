// Package mcp exposes the conversation core as a Model Context Protocol
// server, so agent hosts can drive sessions over stdio or SSE.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"golang.org/x/sync/errgroup"

	"github.com/atelierlabs/concierge/pkg/domain"
	"github.com/atelierlabs/concierge/pkg/ports"
	"github.com/atelierlabs/concierge/pkg/registry"
	"github.com/atelierlabs/concierge/pkg/router"
)

// Conversation is the message-handling core the server fronts.
type Conversation interface {
	HandleMessage(ctx context.Context, sessionID, text string) domain.Reply
}

// Server wraps the router and exposes it as an MCP server.
type Server struct {
	conv      Conversation
	store     ports.StateStore
	catalog   *registry.Registry
	mcpServer *server.MCPServer
	logger    *slog.Logger
}

// NewServer builds the MCP server with its tools and resources registered.
func NewServer(conv Conversation, store ports.StateStore, catalog *registry.Registry, version string) *Server {
	s := &Server{
		conv:      conv,
		store:     store,
		catalog:   catalog,
		mcpServer: server.NewMCPServer("concierge-mcp", version),
		logger:    slog.Default(),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE starts the server on the given port using SSE and shuts down
// gracefully when the context is cancelled.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", sseServer.SSEHandler())
	mux.Handle("/message", sseServer.MessageHandler())

	httpServer := &http.Server{Addr: addr, Handler: mux}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("MCP server listening (SSE)", "address", addr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (s *Server) registerTools() {
	// TOOL: send_message
	sendTool := mcp.NewTool("send_message",
		mcp.WithDescription("Send one user message to a session and get the structured reply."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session identifier")),
		mcp.WithString("text", mcp.Required(), mcp.Description("The user's message")),
		mcp.WithOutputSchema[domain.Reply](),
	)
	s.mcpServer.AddTool(sendTool, mcp.NewStructuredToolHandler(s.handleSendMessage))

	// TOOL: get_session
	s.mcpServer.AddTool(mcp.NewTool("get_session",
		mcp.WithDescription("Inspect a session's workflow stage, version and transition history."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session identifier")),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sessionID, err := request.RequireString("session_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		state, err := s.store.Load(ctx, sessionID)
		if err != nil {
			if errors.Is(err, domain.ErrSessionNotFound) {
				return mcp.NewToolResultError(fmt.Sprintf("unknown session %q", sessionID)), nil
			}
			return mcp.NewToolResultError(fmt.Sprintf("load failed: %v", err)), nil
		}
		jsonBytes, _ := json.Marshal(state)
		return mcp.NewToolResultText(string(jsonBytes)), nil
	})

	// TOOL: list_tools
	s.mcpServer.AddTool(mcp.NewTool("list_tools",
		mcp.WithDescription("List the catalog of actions the assistant can run, with their stage preconditions."),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		jsonBytes, _ := json.Marshal(catalogView(s.catalog))
		return mcp.NewToolResultText(string(jsonBytes)), nil
	})
}

func (s *Server) handleSendMessage(ctx context.Context, request mcp.CallToolRequest, args map[string]any) (domain.Reply, error) {
	sessionID, _ := args["session_id"].(string)
	text, _ := args["text"].(string)
	if sessionID == "" {
		return domain.Reply{}, fmt.Errorf("session_id is required")
	}

	clean, err := router.SanitizeInput(text)
	if err != nil {
		s.logger.Warn("mcp message rejected", "session_id", sessionID, "error", err, "size", len(text))
		return domain.Reply{}, fmt.Errorf("input rejected: %w", err)
	}

	return s.conv.HandleMessage(ctx, sessionID, clean), nil
}

func (s *Server) registerResources() {
	// EXPOSE: concierge://catalog
	s.mcpServer.AddResource(mcp.NewResource("concierge://catalog", "Action Catalog",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		jsonBytes, err := json.Marshal(catalogView(s.catalog))
		if err != nil {
			return nil, fmt.Errorf("marshal catalog: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      "concierge://catalog",
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}

type catalogEntry struct {
	ID           string   `json:"id"`
	Description  string   `json:"description"`
	Args         []string `json:"args,omitempty"`
	Precondition string   `json:"precondition"`
	Sandboxed    bool     `json:"sandboxed,omitempty"`
}

func catalogView(catalog *registry.Registry) []catalogEntry {
	specs := catalog.All()
	out := make([]catalogEntry, 0, len(specs))
	for _, spec := range specs {
		out = append(out, catalogEntry{
			ID:           spec.ID,
			Description:  spec.Description,
			Args:         spec.Args.Names(),
			Precondition: string(spec.Precondition),
			Sandboxed:    spec.Sandboxed,
		})
	}
	return out
}
