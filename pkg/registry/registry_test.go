package registry_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/dukex/orchestra/pkg/models"
	"github.com/dukex/orchestra/pkg/protocol"
	"github.com/dukex/orchestra/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubComponent struct {
	configured map[string]any
	err        error
}

func (s *stubComponent) Configure(config map[string]any) error {
	s.configured = config

	return s.err
}

func (s *stubComponent) CanActivate(_ context.Context, invocation protocol.Invocation, emitter protocol.Emitter) {
	emitter.Success(invocation.Context)
}

func (s *stubComponent) Run(_ context.Context, invocation protocol.Invocation, emitter protocol.Emitter) {
	emitter.Success(invocation.Context)
}

func newRegistry() *registry.Registry {
	return registry.NewRegistry(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRegistry_Get(t *testing.T) {
	reg := newRegistry()
	shared := &stubComponent{}

	reg.Register(protocol.ComponentDefinition{Actor: "test", Domain: "shared"}, shared)

	runtime, found, err := reg.Get("test:shared", map[string]any{"a": 1})
	require.NoError(t, err)
	require.True(t, found)
	assert.Same(t, shared, runtime)
	assert.Nil(t, shared.configured)

	_, found, err = reg.Get("test:missing", nil)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRegistry_FactoryCreatesFreshRuntimes(t *testing.T) {
	reg := newRegistry()

	reg.RegisterFactory(protocol.ComponentDefinition{Actor: "test", Domain: "fresh"}, protocol.FactoryFunc(func() protocol.ComponentRuntime {
		return &stubComponent{}
	}))

	first, _, err := reg.Get("test:fresh", nil)
	require.NoError(t, err)

	second, _, err := reg.Get("test:fresh", nil)
	require.NoError(t, err)

	assert.NotSame(t, first, second)
}

func TestRegistry_SingletonKeepsConfigAcrossLookups(t *testing.T) {
	reg := newRegistry()
	shared := &stubComponent{configured: map[string]any{"node": "boot"}}

	reg.Register(protocol.ComponentDefinition{Actor: "test", Domain: "shared"}, shared)

	first, _, err := reg.Get("test:shared", map[string]any{"node": "A"})
	require.NoError(t, err)

	_, _, err = reg.Get("test:shared", map[string]any{"node": "B"})
	require.NoError(t, err)

	stub, ok := first.(*stubComponent)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"node": "boot"}, stub.configured)
}

func TestRegistry_FactoryConfiguresEachRuntime(t *testing.T) {
	reg := newRegistry()

	reg.RegisterFactory(protocol.ComponentDefinition{Actor: "test", Domain: "fresh"}, protocol.FactoryFunc(func() protocol.ComponentRuntime {
		return &stubComponent{}
	}))

	first, _, err := reg.Get("test:fresh", map[string]any{"node": "A"})
	require.NoError(t, err)

	second, _, err := reg.Get("test:fresh", map[string]any{"node": "B"})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"node": "A"}, first.(*stubComponent).configured)
	assert.Equal(t, map[string]any{"node": "B"}, second.(*stubComponent).configured)
}

func TestRegistry_ConfigureError(t *testing.T) {
	reg := newRegistry()
	reg.RegisterFactory(protocol.ComponentDefinition{Actor: "test", Domain: "broken"}, protocol.FactoryFunc(func() protocol.ComponentRuntime {
		return &stubComponent{err: errors.New("bad")}
	}))

	_, found, err := reg.Get("test:broken", nil)
	assert.True(t, found)
	require.ErrorIs(t, err, protocol.ErrInvalidConfiguration)
	assert.Contains(t, err.Error(), "bad")
}

func TestRegistry_SchemaValidation(t *testing.T) {
	reg := newRegistry()
	reg.Register(protocol.ComponentDefinition{
		Actor:  "test",
		Domain: "schema",
		Schema: map[string]any{
			"type":     "object",
			"required": []any{"message"},
			"properties": map[string]any{
				"message": map[string]any{"type": "string"},
			},
		},
	}, &stubComponent{})

	tests := []struct {
		name    string
		config  map[string]any
		wantErr bool
	}{
		{"valid", map[string]any{"message": "hi"}, false},
		{"missing required", map[string]any{}, true},
		{"nil config", nil, true},
		{"wrong type", map[string]any{"message": 3}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := reg.Get("test:schema", tt.config)
			if tt.wantErr {
				require.ErrorIs(t, err, protocol.ErrInvalidConfiguration)
				assert.Equal(t, protocol.KindInvalidConfiguration, protocol.KindOf(err))

				return
			}

			require.NoError(t, err)
		})
	}
}

func TestRegistry_Lookups(t *testing.T) {
	reg := newRegistry()
	reg.Register(protocol.ComponentDefinition{Actor: "core", Domain: "join"}, &stubComponent{})
	reg.Register(protocol.ComponentDefinition{Actor: "core", Domain: "fork", NodeTypes: []models.NodeType{models.NodeTypeDecision}}, &stubComponent{})
	reg.Register(protocol.ComponentDefinition{Actor: "acme", Domain: "fork"}, &stubComponent{})

	keys := func(defs []protocol.ComponentDefinition) []string {
		out := make([]string, 0, len(defs))
		for _, d := range defs {
			out = append(out, d.Key())
		}

		return out
	}

	assert.Equal(t, []string{"acme:fork", "core:fork", "core:join"}, keys(reg.Definitions()))
	assert.Equal(t, []string{"core:fork", "core:join"}, keys(reg.FindByActor("core")))
	_, found := reg.FindByActorAndDomain("acme", "join")
	assert.False(t, found)
	assert.Empty(t, reg.FindByActor("nobody"))

	def, ok := reg.FindByActorAndDomain("core", "fork")
	require.True(t, ok)
	assert.True(t, def.Supports(models.NodeTypeDecision))
	assert.False(t, def.Supports(models.NodeTypeTask))
}

func TestRegistry_LoadPluginsEmptyDir(t *testing.T) {
	reg := newRegistry()

	require.NoError(t, reg.LoadPlugins(t.TempDir()))
	assert.Empty(t, reg.Definitions())
}
