package gateway

import (
	"context"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoServer exposes one tool that reports which server answered.
func echoServer(name, toolName string) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: name, Version: "1.0.0"}, nil)
	mcp.AddTool(server, &mcp.Tool{Name: toolName, Description: "test tool"},
		func(_ context.Context, _ *mcp.CallToolRequest, in map[string]any) (*mcp.CallToolResult, any, error) {
			return nil, map[string]any{"from": name, "args": in}, nil
		})
	return server
}

// memoryDialer connects each configured connection to its in-process server.
func memoryDialer(servers map[string]*mcp.Server) Dialer {
	return func(ctx context.Context, cfg ConnectionConfig) (*mcp.ClientSession, error) {
		clientTransport, serverTransport := mcp.NewInMemoryTransports()
		if _, err := servers[cfg.Name].Connect(ctx, serverTransport, nil); err != nil {
			return nil, err
		}
		client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "0.0.1"}, nil)
		return client.Connect(ctx, clientTransport, nil)
	}
}

func twoConnConfig(collision CollisionStrategy) *Config {
	cfg := &Config{
		Collision: collision,
		Connections: []ConnectionConfig{
			{Name: "alpha", Endpoint: "memory://alpha"},
			{Name: "beta", Endpoint: "memory://beta"},
		},
	}
	cfg.applyDefaults()
	return cfg
}

func TestListToolsNamespaceCollision(t *testing.T) {
	servers := map[string]*mcp.Server{
		"alpha": echoServer("alpha", "echo"),
		"beta":  echoServer("beta", "echo"),
	}
	g := New(twoConnConfig(CollisionNamespace), memoryDialer(servers))
	defer g.Close()

	catalog, err := g.ListTools(context.Background())
	require.NoError(t, err)
	require.Len(t, catalog, 2)
	assert.Equal(t, "echo", catalog[0].Name)
	assert.Equal(t, "beta::echo", catalog[1].Name)

	// The namespaced name routes to the second connection's tool.
	env, err := g.CallTool(context.Background(), "beta::echo", map[string]any{"k": "v"})
	require.NoError(t, err)
	assert.Contains(t, env.Text(), `"from":"beta"`)

	env, err = g.CallTool(context.Background(), "echo", nil)
	require.NoError(t, err)
	assert.Contains(t, env.Text(), `"from":"alpha"`)
}

func TestListToolsSkipCollision(t *testing.T) {
	servers := map[string]*mcp.Server{
		"alpha": echoServer("alpha", "echo"),
		"beta":  echoServer("beta", "echo"),
	}
	g := New(twoConnConfig(CollisionSkip), memoryDialer(servers))
	defer g.Close()

	catalog, err := g.ListTools(context.Background())
	require.NoError(t, err)
	require.Len(t, catalog, 1)
	assert.Equal(t, "echo", catalog[0].Name)
}

func TestListToolsErrorCollision(t *testing.T) {
	servers := map[string]*mcp.Server{
		"alpha": echoServer("alpha", "echo"),
		"beta":  echoServer("beta", "echo"),
	}
	g := New(twoConnConfig(CollisionError), memoryDialer(servers))
	defer g.Close()

	_, err := g.ListTools(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "collision")
}

func TestCallToolUnknown(t *testing.T) {
	servers := map[string]*mcp.Server{
		"alpha": echoServer("alpha", "echo"),
		"beta":  echoServer("beta", "other"),
	}
	g := New(twoConnConfig(CollisionNamespace), memoryDialer(servers))
	defer g.Close()

	_, err := g.CallTool(context.Background(), "missing", nil)
	require.ErrorIs(t, err, ErrToolNotFound)
}

func TestChatModelToolsStrictSchemas(t *testing.T) {
	servers := map[string]*mcp.Server{
		"alpha": echoServer("alpha", "echo"),
		"beta":  echoServer("beta", "other"),
	}
	g := New(twoConnConfig(CollisionNamespace), memoryDialer(servers))
	defer g.Close()

	schemas, err := g.ChatModelTools(context.Background())
	require.NoError(t, err)
	require.Len(t, schemas, 2)
	for _, schema := range schemas {
		assert.Equal(t, "object", schema.Parameters["type"])
		assert.Equal(t, false, schema.Parameters["additionalProperties"])
		assert.NotNil(t, schema.Parameters["properties"])
	}
}

func TestStrictObjectSchema(t *testing.T) {
	out := StrictObjectSchema(map[string]any{})
	assert.Equal(t, "object", out["type"])
	assert.Equal(t, false, out["additionalProperties"])
	assert.NotNil(t, out["properties"])

	in := map[string]any{"type": "object", "properties": map[string]any{"a": map[string]any{"type": "string"}}}
	out = StrictObjectSchema(in)
	assert.Equal(t, in["properties"], out["properties"])
}

func TestLoadConfigValidation(t *testing.T) {
	cfg := &Config{}
	require.Error(t, cfg.validate())

	cfg = &Config{Connections: []ConnectionConfig{{Name: "a", Endpoint: "x"}, {Name: "a", Endpoint: "y"}}}
	require.Error(t, cfg.validate())

	cfg = &Config{Connections: []ConnectionConfig{{Name: "a", Endpoint: "x"}}, Collision: "bogus"}
	require.Error(t, cfg.validate())

	cfg = &Config{Connections: []ConnectionConfig{{Name: "a", Endpoint: "x"}}}
	require.NoError(t, cfg.validate())
	cfg.applyDefaults()
	assert.Equal(t, CollisionNamespace, cfg.Collision)
	assert.Equal(t, DefaultSeparator, cfg.Separator)
	assert.Equal(t, "a", cfg.Connections[0].Namespace)
}
