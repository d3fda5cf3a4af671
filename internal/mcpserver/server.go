// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes geotracker tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/geotracker/internal/location"
	"github.com/starford/geotracker/internal/models"
	"github.com/starford/geotracker/internal/trackservice"
)

const formatURI = "geotracker://csv-format"

// Server wraps the MCP server with geotracker tools.
type Server struct {
	mcp *server.MCPServer
	svc *trackservice.Service
}

// New creates a new MCP server with all geotracker tools registered.
func New(svc *trackservice.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"geotracker",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_tracks",
		mcp.WithDescription("List all tracks with their file name, colour, visibility and current flag."),
	), s.listTracks)

	s.mcp.AddTool(mcp.NewTool("create_track",
		mcp.WithDescription("Create a new track and make it the current recording target."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Track name; whitespace becomes _ in the file name")),
		mcp.WithString("color", mcp.Description("#AARRGGBB, #RRGGBB or a palette name (Red, Green, Blue, Orange, Purple)")),
	), s.createTrack)

	s.mcp.AddTool(mcp.NewTool("delete_track",
		mcp.WithDescription("Delete a track and its file."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Track name")),
	), s.deleteTrack)

	s.mcp.AddTool(mcp.NewTool("select_track",
		mcp.WithDescription("Make a track the current recording target."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Track name")),
	), s.selectTrack)

	s.mcp.AddTool(mcp.NewTool("read_track",
		mcp.WithDescription("Read every recorded point of a track as JSON."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Track name")),
	), s.readTrack)

	s.mcp.AddTool(mcp.NewTool("push_sample",
		mcp.WithDescription("Feed a location fix to the recorder. In continuous mode it is written to the current track."),
		mcp.WithNumber("lat", mcp.Required(), mcp.Description("Latitude in decimal degrees")),
		mcp.WithNumber("lon", mcp.Required(), mcp.Description("Longitude in decimal degrees")),
		mcp.WithString("time", mcp.Description("RFC 3339 fix time; defaults to now")),
	), s.pushSample)

	s.mcp.AddTool(mcp.NewTool("save_point",
		mcp.WithDescription("Save the latest location fix to the current track."),
	), s.savePoint)

	s.mcp.AddTool(mcp.NewTool("set_mode",
		mcp.WithDescription("Switch between manual and continuous recording."),
		mcp.WithBoolean("continuous", mcp.Required(), mcp.Description("true for continuous recording")),
	), s.setMode)

	s.mcp.AddTool(mcp.NewTool("get_scene",
		mcp.WithDescription("Return the map scene: polylines, markers and camera for the visible tracks."),
	), s.getScene)

	s.mcp.AddTool(mcp.NewTool("get_csv_format",
		mcp.WithDescription("Returns the track CSV file format. "+
			"Call this before interpreting exported track files."),
	), s.getCSVFormat)

	// Resource: CSV format contract.
	s.mcp.AddResource(
		mcp.NewResource(formatURI, "Track File Format",
			mcp.WithResourceDescription("CSV layout of geotracker track files."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

func (s *Server) listTracks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tracks, err := s.svc.ListTracks(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(tracks), nil
}

func (s *Server) createTrack(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	info, err := s.svc.CreateTrack(ctx, name, req.GetString("color", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s (%s)", info.Name, info.Filename)), nil
}

func (s *Server) deleteTrack(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.svc.DeleteTrack(ctx, name); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("deleted: %s", name)), nil
}

func (s *Server) selectTrack(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if _, err := s.svc.SelectTrack(ctx, name); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("current: %s", name)), nil
}

func (s *Server) readTrack(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	pts, err := s.svc.Points(ctx, name)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(pts), nil
}

func (s *Server) pushSample(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	lat, err := req.RequireFloat("lat")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	lon, err := req.RequireFloat("lon")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	smp := location.Sample{Lat: lat, Lon: lon}
	if raw := req.GetString("time", ""); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid time: %v", err)), nil
		}
		smp.Time = ts
	}
	delivered, err := s.svc.PushSample(ctx, smp)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !delivered {
		return mcp.NewToolResultText("throttled"), nil
	}
	return mcp.NewToolResultText(s.svc.Status(ctx).Label), nil
}

func (s *Server) savePoint(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := s.svc.SavePoint(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res), nil
}

func (s *Server) setMode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	continuous, err := req.RequireBool("continuous")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	m, err := s.svc.SetMode(ctx, models.Mode{Continuous: continuous})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if m.Continuous {
		return mcp.NewToolResultText("mode: continuous"), nil
	}
	return mcp.NewToolResultText("mode: manual"), nil
}

func (s *Server) getScene(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.svc.Scene(ctx)), nil
}

func (s *Server) getCSVFormat(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(CSVFormatContract), nil
}

func (s *Server) readFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      formatURI,
			MIMEType: "text/markdown",
			Text:     CSVFormatContract,
		},
	}, nil
}
