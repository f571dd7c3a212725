// Package gateway presents a single logical tool catalog to the agent loop,
// even though the tools physically live behind separate MCP connections. It
// owns connection bootstrap, tool-name collision resolution, and the routing
// table from catalog name to backend tool.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"checkin/pkg/logx"
)

// ErrToolNotFound is returned by CallTool for names absent from the routing
// table.
var ErrToolNotFound = errors.New("tool not found")

// toolCallTimeout bounds one outbound backend tool call.
const toolCallTimeout = 55 * time.Second

// Dialer establishes an MCP session for one configured connection. It is a
// variable so tests can swap in in-memory transports.
type Dialer func(ctx context.Context, cfg ConnectionConfig) (*mcp.ClientSession, error)

// ToolInfo describes one catalog entry.
type ToolInfo struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// ToolSchema is a chat-model function-call schema entry.
type ToolSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters"`
}

// ContentItem is one entry of a tool result envelope.
type ContentItem struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Envelope is the normalized tool invocation result: the text content is
// conventionally a JSON-serialized domain payload the caller re-parses.
type Envelope struct {
	Content []ContentItem `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

// Text concatenates the envelope's text content.
func (e *Envelope) Text() string {
	var out string
	for _, item := range e.Content {
		out += item.Text
	}
	return out
}

type route struct {
	conn         *connection
	originalName string
}

// connection wraps one backend MCP session with an in-flight connect guard so
// concurrent first calls await the same bootstrap instead of racing duplicate
// connections.
type connection struct {
	cfg ConnectionConfig

	mu       sync.Mutex
	session  *mcp.ClientSession
	err      error
	inflight chan struct{}
}

// Gateway resolves logical tool names to backend connections.
type Gateway struct {
	cfg    *Config
	dial   Dialer
	logger *logx.Logger

	conns []*connection

	mu      sync.RWMutex
	routes  map[string]route
	catalog []ToolInfo
}

// New creates a gateway for the given catalog config. A nil dialer uses the
// streamable-HTTP transport.
func New(cfg *Config, dial Dialer) *Gateway {
	if dial == nil {
		dial = httpDialer
	}
	g := &Gateway{
		cfg:    cfg,
		dial:   dial,
		logger: logx.NewLogger("gateway"),
	}
	for i := range cfg.Connections {
		g.conns = append(g.conns, &connection{cfg: cfg.Connections[i]})
	}
	return g
}

func httpDialer(ctx context.Context, cfg ConnectionConfig) (*mcp.ClientSession, error) {
	client := mcp.NewClient(&mcp.Implementation{Name: "checkin-gateway", Version: "1.0.0"}, nil)
	transport := &mcp.StreamableClientTransport{
		Endpoint:   cfg.Endpoint,
		HTTPClient: &http.Client{Timeout: toolCallTimeout},
	}
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s at %s: %w", cfg.Name, cfg.Endpoint, err)
	}
	return session, nil
}

// ensure returns the connection's session, sharing one in-flight connect
// between concurrent callers.
func (c *connection) ensure(ctx context.Context, dial Dialer) (*mcp.ClientSession, error) {
	c.mu.Lock()
	if c.session != nil {
		session := c.session
		c.mu.Unlock()
		return session, nil
	}
	if c.inflight != nil {
		ch := c.inflight
		c.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return nil, fmt.Errorf("connect to %s cancelled: %w", c.cfg.Name, ctx.Err())
		}
		c.mu.Lock()
		session, err := c.session, c.err
		c.mu.Unlock()
		if session == nil && err == nil {
			err = fmt.Errorf("connect to %s failed", c.cfg.Name)
		}
		return session, err
	}

	ch := make(chan struct{})
	c.inflight = ch
	c.mu.Unlock()

	session, err := dial(ctx, c.cfg)

	c.mu.Lock()
	c.session, c.err = session, err
	c.inflight = nil
	close(ch)
	c.mu.Unlock()
	return session, err
}

func (c *connection) close() {
	c.mu.Lock()
	session := c.session
	c.session = nil
	c.err = nil
	c.mu.Unlock()
	if session != nil {
		_ = session.Close()
	}
}

// ListTools queries every connection, applies the collision strategy, and
// rebuilds the routing table wholesale. Not safe to run concurrently with
// itself; callers must not assume routes are stable across a concurrent
// ListTools.
func (g *Gateway) ListTools(ctx context.Context) ([]ToolInfo, error) {
	routes := make(map[string]route)
	var catalog []ToolInfo

	for _, conn := range g.conns {
		session, err := conn.ensure(ctx, g.dial)
		if err != nil {
			return nil, err
		}
		listed, err := session.ListTools(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to list tools on %s: %w", conn.cfg.Name, err)
		}
		for _, tool := range listed.Tools {
			name := tool.Name
			if _, taken := routes[name]; taken {
				switch g.cfg.Collision {
				case CollisionSkip:
					g.logger.Warn("skipping duplicate tool %q from %s", name, conn.cfg.Name)
					continue
				case CollisionError:
					return nil, fmt.Errorf("tool name collision on %q between connections", name)
				default: // CollisionNamespace
					name = conn.cfg.Namespace + g.cfg.Separator + name
					if _, stillTaken := routes[name]; stillTaken {
						return nil, fmt.Errorf("tool name collision on %q even after namespacing", name)
					}
				}
			}
			routes[name] = route{conn: conn, originalName: tool.Name}
			catalog = append(catalog, ToolInfo{
				Name:        name,
				Description: tool.Description,
				InputSchema: schemaToMap(tool.InputSchema),
			})
		}
	}

	g.mu.Lock()
	g.routes = routes
	g.catalog = catalog
	g.mu.Unlock()

	g.logger.Info("tool catalog rebuilt: %d tools across %d connections", len(catalog), len(g.conns))
	return catalog, nil
}

// CallTool resolves the routing table (building it lazily on first use) and
// forwards the call to the owning connection's tool.
func (g *Gateway) CallTool(ctx context.Context, name string, args map[string]any) (*Envelope, error) {
	g.mu.RLock()
	initialized := g.routes != nil
	r, ok := g.routes[name]
	g.mu.RUnlock()

	if !initialized {
		if _, err := g.ListTools(ctx); err != nil {
			return nil, err
		}
		g.mu.RLock()
		r, ok = g.routes[name]
		g.mu.RUnlock()
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}

	session, err := r.conn.ensure(ctx, g.dial)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, toolCallTimeout)
	defer cancel()

	if args == nil {
		args = map[string]any{}
	}
	result, err := session.CallTool(callCtx, &mcp.CallToolParams{
		Name:      r.originalName,
		Arguments: args,
	})
	if err != nil {
		return nil, fmt.Errorf("tool %s failed on %s: %w", name, r.conn.cfg.Name, err)
	}

	env := &Envelope{IsError: result.IsError}
	for _, content := range result.Content {
		if text, ok := content.(*mcp.TextContent); ok {
			env.Content = append(env.Content, ContentItem{Type: "text", Text: text.Text})
		}
	}
	return env, nil
}

// ChatModelTools maps the catalog into chat-model function-call schema form,
// coercing every input schema into a strict JSON object schema so the model
// cannot pass arbitrary extra fields.
func (g *Gateway) ChatModelTools(ctx context.Context) ([]ToolSchema, error) {
	g.mu.RLock()
	catalog := g.catalog
	g.mu.RUnlock()

	if catalog == nil {
		var err error
		catalog, err = g.ListTools(ctx)
		if err != nil {
			return nil, err
		}
	}

	schemas := make([]ToolSchema, 0, len(catalog))
	for _, tool := range catalog {
		schemas = append(schemas, ToolSchema{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  StrictObjectSchema(tool.InputSchema),
		})
	}
	return schemas, nil
}

// Close tears down every backend session.
func (g *Gateway) Close() {
	for _, conn := range g.conns {
		conn.close()
	}
}

// StrictObjectSchema coerces a declared input schema into a strict JSON
// object schema: missing type defaults to object, properties is always
// present, and additionalProperties is pinned to false.
func StrictObjectSchema(in map[string]any) map[string]any {
	out := make(map[string]any, len(in)+3)
	for k, v := range in {
		out[k] = v
	}
	if _, ok := out["type"]; !ok {
		out["type"] = "object"
	}
	if _, ok := out["properties"]; !ok {
		out["properties"] = map[string]any{}
	}
	out["additionalProperties"] = false
	return out
}

// schemaToMap flattens the SDK's schema representation to a plain map.
func schemaToMap(schema any) map[string]any {
	if schema == nil {
		return map[string]any{}
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{}
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]any{}
	}
	return out
}
