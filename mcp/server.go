// Package mcp provides the MCP (Model Context Protocol) server for dnnmodeler.
//
// The server exposes one editing session: every graph gesture the shell
// offers is available as a tool, and the graph and catalog are readable as
// resources.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Benny93/dnnmodeler-go/internal/embeddings"
	"github.com/Benny93/dnnmodeler-go/internal/graph"
	"github.com/Benny93/dnnmodeler-go/internal/session"
)

const (
	serverName    = "dnnmodeler"
	serverVersion = "0.1.0"

	defaultSearchLimit = 10
)

// Server represents the MCP server.
type Server struct {
	session *session.Session
	server  *mcp.Server
}

// Tool represents an MCP tool.
type Tool struct {
	Name        string
	Description string
	InputSchema *jsonschema.Schema
}

// Resource represents an MCP resource.
type Resource struct {
	URI         string
	Name        string
	Description string
	MimeType    string
}

// NewServer creates a new MCP server over sess.
func NewServer(sess *session.Session) *Server {
	s := &Server{
		session: sess,
	}

	s.server = mcp.NewServer(&mcp.Implementation{
		Name:    serverName,
		Version: serverVersion,
	}, nil)

	s.registerTools()
	s.registerResources()

	return s
}

func objectSchema(props map[string]*jsonschema.Schema, required ...string) *jsonschema.Schema {
	if props == nil {
		props = map[string]*jsonschema.Schema{}
	}
	return &jsonschema.Schema{Type: "object", Properties: props, Required: required}
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []Tool {
	return []Tool{
		{
			Name:        "dnn_list_blocks",
			Description: "List the block types offered by the catalog with their parameter defaults.",
			InputSchema: objectSchema(nil),
		},
		{
			Name:        "dnn_search_blocks",
			Description: "Rank catalog blocks against a free-text query such as \"downsample images\" or \"attention\".",
			InputSchema: objectSchema(map[string]*jsonschema.Schema{
				"query": {Type: "string", Description: "Free-text description of the wanted block"},
				"limit": {Type: "integer", Description: "Maximum number of matches (default 10)"},
			}, "query"),
		},
		{
			Name:        "dnn_add_block",
			Description: "Place a catalog block on the canvas. Accepts a block name or type; returns the new node id.",
			InputSchema: objectSchema(map[string]*jsonschema.Schema{
				"block": {Type: "string", Description: "Block name (e.g. Conv2d) or type tag"},
			}, "block"),
		},
		{
			Name:        "dnn_delete_node",
			Description: "Delete a block node and every connection touching it. The input and output layers cannot be deleted.",
			InputSchema: objectSchema(map[string]*jsonschema.Schema{
				"node": {Type: "string", Description: "Node id"},
			}, "node"),
		},
		{
			Name:        "dnn_connect",
			Description: "Connect the output of one node to the input of another.",
			InputSchema: objectSchema(map[string]*jsonschema.Schema{
				"source": {Type: "string", Description: "Source node id"},
				"target": {Type: "string", Description: "Target node id"},
			}, "source", "target"),
		},
		{
			Name:        "dnn_delete_edge",
			Description: "Delete a connection by edge id (SOURCE-TARGET).",
			InputSchema: objectSchema(map[string]*jsonschema.Schema{
				"edge": {Type: "string", Description: "Edge id"},
			}, "edge"),
		},
		{
			Name:        "dnn_set_parameter",
			Description: "Set a raw parameter value on a node. Values such as \"64\" or \"(3,3)\" are coerced when the model is submitted.",
			InputSchema: objectSchema(map[string]*jsonschema.Schema{
				"node":      {Type: "string", Description: "Node id"},
				"parameter": {Type: "string", Description: "Parameter name, e.g. shape or out_channels"},
				"value":     {Types: []string{"string", "number", "integer", "boolean", "array"}, Description: "Raw value as typed by a user, or a JSON number or array"},
			}, "node", "parameter", "value"),
		},
		{
			Name:        "dnn_move_node",
			Description: "Move a node on the canvas. Does not affect compatibility.",
			InputSchema: objectSchema(map[string]*jsonschema.Schema{
				"node": {Type: "string", Description: "Node id"},
				"x":    {Type: "number", Description: "Horizontal position"},
				"y":    {Type: "number", Description: "Vertical position"},
			}, "node", "x", "y"),
		},
		{
			Name:        "dnn_select",
			Description: "Select exactly the given nodes and edges. An empty list clears the selection.",
			InputSchema: objectSchema(map[string]*jsonschema.Schema{
				"ids": {
					Type:        "array",
					Items:       &jsonschema.Schema{Type: "string"},
					Description: "Node and edge ids to select",
				},
			}),
		},
		{
			Name:        "dnn_status",
			Description: "Show nodes, connections, compatibility annotations and build readiness.",
			InputSchema: objectSchema(nil),
		},
		{
			Name:        "dnn_build",
			Description: "Submit the graph to the model builder. Fails unless the graph is ready to build.",
			InputSchema: objectSchema(nil),
		},
	}
}

// ListResources returns all registered resources.
func (s *Server) ListResources() []Resource {
	return []Resource{
		{
			URI:         "dnn://graph",
			Name:        "Model Graph",
			Description: "Nodes, connections and readiness of the current graph",
			MimeType:    "text/plain",
		},
		{
			URI:         "dnn://graph.json",
			Name:        "Model Graph (JSON)",
			Description: "Versioned snapshot of the current graph",
			MimeType:    "application/json",
		},
		{
			URI:         "dnn://catalog",
			Name:        "Block Catalog",
			Description: "Block types available for placement",
			MimeType:    "text/plain",
		},
	}
}

// CallTool executes a tool with the given arguments. Tools that change the
// graph refresh the compatibility map before returning.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	var (
		out string
		err error
	)
	switch name {
	case "dnn_list_blocks":
		return s.handleListBlocks(), nil
	case "dnn_search_blocks":
		return s.handleSearchBlocks(args)
	case "dnn_add_block":
		out, err = s.handleAddBlock(args)
	case "dnn_delete_node":
		out, err = s.handleDeleteNode(args)
	case "dnn_connect":
		out, err = s.handleConnect(args)
	case "dnn_delete_edge":
		out, err = s.handleDeleteEdge(args)
	case "dnn_set_parameter":
		out, err = s.handleSetParameter(args)
	case "dnn_move_node":
		return s.handleMoveNode(args)
	case "dnn_select":
		return s.handleSelect(args)
	case "dnn_status":
		return s.handleStatus(ctx), nil
	case "dnn_build":
		return s.handleBuild(ctx)
	default:
		return "", fmt.Errorf("unknown tool: %s", name)
	}
	if err != nil {
		return "", err
	}
	return s.afterMutation(ctx, out), nil
}

// ReadResource reads a resource by URI.
func (s *Server) ReadResource(ctx context.Context, uri string) (string, error) {
	switch uri {
	case "dnn://graph":
		_ = s.session.Refresh(ctx)
		return renderGraph(s.session.Status()), nil
	case "dnn://graph.json":
		data, err := json.Marshal(s.session.Store().Snapshot())
		if err != nil {
			return "", fmt.Errorf("encoding graph: %w", err)
		}
		return string(data), nil
	case "dnn://catalog":
		return s.handleListBlocks(), nil
	default:
		return "", fmt.Errorf("unknown resource: %s", uri)
	}
}

func (s *Server) mimeType(uri string) string {
	for _, r := range s.ListResources() {
		if r.URI == uri {
			return r.MimeType
		}
	}
	return "text/plain"
}

// Serve runs the server on an SDK transport instead of the line loop.
func (s *Server) Serve(ctx context.Context, t mcp.Transport) error {
	return s.server.Run(ctx, t)
}

// ServeStdio serves newline-delimited JSON-RPC on in and out through the
// SDK. With both nil it uses the process's stdin and stdout.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	if in == nil && out == nil {
		return s.Serve(ctx, &mcp.StdioTransport{})
	}
	if in == nil || out == nil {
		return fmt.Errorf("stdin and stdout must both be set or both be nil")
	}
	// Closing the reader is what unblocks the session on cancellation.
	rc, ok := in.(io.ReadCloser)
	if !ok {
		rc = io.NopCloser(in)
	}
	return s.Serve(ctx, &mcp.IOTransport{Reader: rc, Writer: nopWriteCloser{out}})
}

// nopWriteCloser leaves the caller's writer open when a session ends.
type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// Run serves the line loop on stdin and stdout without the SDK session
// layer. Requests are handled one at a time, in order.
func (s *Server) Run(ctx context.Context, stdin io.Reader, stdout io.Writer) error {
	if stdin == nil || stdout == nil {
		return fmt.Errorf("stdin and stdout must not be nil")
	}

	reader := bufio.NewReader(stdin)
	// MCP stdio framing is one compact JSON message per line.
	encoder := json.NewEncoder(stdout)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line, err := reader.ReadBytes('\n')
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		var req map[string]any
		if err := json.Unmarshal(line, &req); err != nil {
			continue
		}
		// Notifications carry no id and get no reply.
		if _, ok := req["id"]; !ok {
			continue
		}

		resp := s.handleRequest(ctx, req)
		if err := encoder.Encode(resp); err != nil {
			return err
		}
	}
}

func (s *Server) handleRequest(ctx context.Context, req map[string]any) map[string]any {
	method, _ := req["method"].(string)
	id := req["id"]

	switch method {
	case "initialize":
		return s.handleInitialize(id)
	case "ping":
		return result(id, map[string]any{})
	case "tools/list":
		return s.handleToolsList(id)
	case "tools/call":
		return s.handleToolsCall(ctx, id, req)
	case "resources/list":
		return s.handleResourcesList(id)
	case "resources/read":
		return s.handleResourcesRead(ctx, id, req)
	default:
		return errorResponse(id, -32601, "Method not found: "+method)
	}
}

func (s *Server) handleInitialize(id any) map[string]any {
	return result(id, map[string]any{
		"protocolVersion": "2024-11-05",
		"serverInfo": map[string]any{
			"name":    serverName,
			"version": serverVersion,
		},
		"capabilities": map[string]any{
			"tools": map[string]any{
				"listChanged": false,
			},
			"resources": map[string]any{
				"listChanged": false,
			},
		},
	})
}

func (s *Server) handleToolsList(id any) map[string]any {
	tools := s.ListTools()
	toolList := make([]map[string]any, len(tools))
	for i, tool := range tools {
		schema, _ := json.Marshal(tool.InputSchema)
		var schemaMap map[string]any
		_ = json.Unmarshal(schema, &schemaMap)

		toolList[i] = map[string]any{
			"name":        tool.Name,
			"description": tool.Description,
			"inputSchema": schemaMap,
		}
	}

	return result(id, map[string]any{"tools": toolList})
}

func (s *Server) handleToolsCall(ctx context.Context, id any, req map[string]any) map[string]any {
	params, _ := req["params"].(map[string]any)
	if params == nil {
		return errorResponse(id, -32602, "Invalid params")
	}

	name, _ := params["name"].(string)
	args, _ := params["arguments"].(map[string]any)

	text, err := s.CallTool(ctx, name, args)
	if err != nil {
		return result(id, map[string]any{
			"content": []map[string]any{{"type": "text", "text": err.Error()}},
			"isError": true,
		})
	}

	return result(id, map[string]any{
		"content": []map[string]any{{"type": "text", "text": text}},
	})
}

func (s *Server) handleResourcesList(id any) map[string]any {
	resources := s.ListResources()
	resourceList := make([]map[string]any, len(resources))
	for i, res := range resources {
		resourceList[i] = map[string]any{
			"uri":         res.URI,
			"name":        res.Name,
			"description": res.Description,
			"mimeType":    res.MimeType,
		}
	}

	return result(id, map[string]any{"resources": resourceList})
}

func (s *Server) handleResourcesRead(ctx context.Context, id any, req map[string]any) map[string]any {
	params, _ := req["params"].(map[string]any)
	if params == nil {
		return errorResponse(id, -32602, "Invalid params")
	}

	uri, _ := params["uri"].(string)

	content, err := s.ReadResource(ctx, uri)
	if err != nil {
		return errorResponse(id, -32002, err.Error())
	}

	return result(id, map[string]any{
		"contents": []map[string]any{
			{
				"uri":      uri,
				"mimeType": s.mimeType(uri),
				"text":     content,
			},
		},
	})
}

// Tool Handlers

func (s *Server) handleListBlocks() string {
	var sb strings.Builder
	session.WriteBlocks(&sb, s.session.Catalog().Blocks())
	return sb.String()
}

func (s *Server) handleSearchBlocks(args map[string]any) (string, error) {
	query, err := stringArg(args, "query")
	if err != nil {
		return "", err
	}
	limit := defaultSearchLimit
	if v, ok := args["limit"].(float64); ok && v > 0 {
		limit = int(v)
	}

	idx := embeddings.NewIndex(s.session.Catalog().Blocks())
	var sb strings.Builder
	session.WriteMatches(&sb, idx.Search(query, limit))
	return sb.String(), nil
}

func (s *Server) handleAddBlock(args map[string]any) (string, error) {
	query, err := stringArg(args, "block")
	if err != nil {
		return "", err
	}
	def, err := s.session.Catalog().Find(query)
	if err != nil {
		return "", err
	}
	n := s.session.Store().AddBlockNode(def)
	return fmt.Sprintf("Added %s as node %s", n.Label, n.ID), nil
}

func (s *Server) handleDeleteNode(args map[string]any) (string, error) {
	id, err := stringArg(args, "node")
	if err != nil {
		return "", err
	}
	removed, err := s.session.Store().DeleteNode(id)
	if err != nil {
		return "", err
	}
	if !removed {
		return "", fmt.Errorf("node %q: %w", id, graph.ErrNodeNotFound)
	}
	return "Deleted node " + id, nil
}

func (s *Server) handleConnect(args map[string]any) (string, error) {
	source, err := stringArg(args, "source")
	if err != nil {
		return "", err
	}
	target, err := stringArg(args, "target")
	if err != nil {
		return "", err
	}
	e, err := s.session.Store().Connect(source, target)
	if err != nil {
		return "", err
	}
	return "Connected " + e.ID, nil
}

func (s *Server) handleDeleteEdge(args map[string]any) (string, error) {
	id, err := stringArg(args, "edge")
	if err != nil {
		return "", err
	}
	if !s.session.Store().DeleteEdge(id) {
		return "", fmt.Errorf("no connection %q", id)
	}
	return "Deleted connection " + id, nil
}

func (s *Server) handleSetParameter(args map[string]any) (string, error) {
	id, err := stringArg(args, "node")
	if err != nil {
		return "", err
	}
	name, err := stringArg(args, "parameter")
	if err != nil {
		return "", err
	}
	raw, ok := args["value"]
	if !ok || raw == nil {
		return "", fmt.Errorf("missing argument %q", "value")
	}
	value := jsonValue(raw)
	if err := s.session.Store().SetParameter(id, name, value); err != nil {
		return "", err
	}
	if str, ok := value.(string); ok {
		return fmt.Sprintf("Set %s.%s = %q", id, name, str), nil
	}
	return fmt.Sprintf("Set %s.%s = %v", id, name, value), nil
}

// jsonValue keeps decoded JSON values as they are, except that whole
// numbers become ints so arrays resolve like typed tuples.
func jsonValue(v any) any {
	switch t := v.(type) {
	case float64:
		if t == math.Trunc(t) && math.Abs(t) <= math.MaxInt32 {
			return int(t)
		}
		return t
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = jsonValue(e)
		}
		return out
	default:
		return v
	}
}

func (s *Server) handleMoveNode(args map[string]any) (string, error) {
	id, err := stringArg(args, "node")
	if err != nil {
		return "", err
	}
	x, xok := args["x"].(float64)
	y, yok := args["y"].(float64)
	if !xok || !yok {
		return "", fmt.Errorf("x and y must be numbers")
	}
	if err := s.session.Store().MoveNode(id, graph.Position{X: x, Y: y}); err != nil {
		return "", err
	}
	return fmt.Sprintf("Moved %s to (%g, %g)", id, x, y), nil
}

func (s *Server) handleSelect(args map[string]any) (string, error) {
	raw, _ := args["ids"].([]any)
	ids := make([]string, 0, len(raw))
	for _, v := range raw {
		if id, ok := v.(string); ok {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		ids = append(ids, "none")
	}
	if err := s.session.Store().Select(ids...); err != nil {
		return "", err
	}
	if ids[0] == "none" {
		return "Selection cleared", nil
	}
	return "Selected " + strings.Join(ids, ", "), nil
}

func (s *Server) handleStatus(ctx context.Context) string {
	_ = s.session.Refresh(ctx)
	return renderGraph(s.session.Status())
}

func (s *Server) handleBuild(ctx context.Context) (string, error) {
	res, err := s.session.Build(ctx)
	if err != nil {
		return "", err
	}
	if res.Summary == "" {
		return "Build succeeded", nil
	}
	return "Build succeeded\n\n" + res.Summary, nil
}

// afterMutation refreshes compatibility for the new graph version and
// reports the readiness line next to the tool's own message.
func (s *Server) afterMutation(ctx context.Context, msg string) string {
	var sb strings.Builder
	sb.WriteString(msg)
	sb.WriteString("\n")
	if err := s.session.Refresh(ctx); err != nil {
		fmt.Fprintf(&sb, "Compatibility unavailable: %v\n", err)
		return sb.String()
	}
	st := s.session.Status()
	if st.Ready() {
		sb.WriteString("Ready to build\n")
	} else {
		fmt.Fprintf(&sb, "Not ready: %s\n", strings.Join(st.Reasons(), "; "))
	}
	return sb.String()
}

func renderGraph(st session.Status) string {
	var sb strings.Builder
	sb.WriteString("## Nodes\n\n")
	session.WriteNodes(&sb, st)
	sb.WriteString("\n## Connections\n\n")
	session.WriteEdges(&sb, st)
	sb.WriteString("\n## Status\n\n")
	session.WriteStatus(&sb, st)
	return sb.String()
}

// Helper functions

func stringArg(args map[string]any, key string) (string, error) {
	v, _ := args[key].(string)
	if strings.TrimSpace(v) == "" {
		return "", fmt.Errorf("missing argument %q", key)
	}
	return v, nil
}

func result(id any, body map[string]any) map[string]any {
	return map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"result":  body,
	}
}

func errorResponse(id any, code int, message string) map[string]any {
	return map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	}
}

// registerTools registers every tool with the SDK server so Serve answers
// the same calls as Run.
func (s *Server) registerTools() {
	for _, tool := range s.ListTools() {
		name := tool.Name
		s.server.AddTool(&mcp.Tool{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: tool.InputSchema,
		}, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := map[string]any{}
			if raw := req.Params.Arguments; len(raw) > 0 {
				if err := json.Unmarshal(raw, &args); err != nil {
					return nil, fmt.Errorf("decoding arguments: %w", err)
				}
			}
			text, err := s.CallTool(ctx, name, args)
			if err != nil {
				return &mcp.CallToolResult{
					Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
					IsError: true,
				}, nil
			}
			return &mcp.CallToolResult{
				Content: []mcp.Content{&mcp.TextContent{Text: text}},
			}, nil
		})
	}
}

// registerResources registers every resource with the SDK server.
func (s *Server) registerResources() {
	for _, res := range s.ListResources() {
		s.server.AddResource(&mcp.Resource{
			URI:         res.URI,
			Name:        res.Name,
			Description: res.Description,
			MIMEType:    res.MimeType,
		}, func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
			text, err := s.ReadResource(ctx, req.Params.URI)
			if err != nil {
				return nil, err
			}
			return &mcp.ReadResourceResult{
				Contents: []*mcp.ResourceContents{{
					URI:      req.Params.URI,
					MIMEType: s.mimeType(req.Params.URI),
					Text:     text,
				}},
			}, nil
		})
	}
}
