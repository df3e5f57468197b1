// Package registry keeps the components the runtime engine can run.
package registry

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"plugin"
	"slices"
	"strings"
	"sync"

	"github.com/dukex/orchestra/pkg/protocol"
	"github.com/xeipuuv/gojsonschema"
)

// PluginSymbol is the symbol a component plugin exports.
const PluginSymbol = "Component"

// Plugin is what a component plugin exports under PluginSymbol.
type Plugin interface {
	protocol.ComponentFactory
	Definition() protocol.ComponentDefinition
}

type entry struct {
	definition protocol.ComponentDefinition
	factory    protocol.ComponentFactory
	// singleton is handed out as is, never configured per node.
	singleton protocol.ComponentRuntime
}

type Registry struct {
	logger  *slog.Logger
	mu      sync.RWMutex
	entries map[string]entry
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:  log.With("module", "registry"),
		entries: make(map[string]entry),
	}
}

// Register adds a stateless runtime shared by every node that uses it. Get returns it
// without calling Configure, so it must read its settings from the invocation config.
func (r *Registry) Register(definition protocol.ComponentDefinition, runtime protocol.ComponentRuntime) {
	r.add(entry{definition: definition, singleton: runtime})
}

// RegisterFactory adds a component built fresh and configured for every lookup. A later
// registration under the same key replaces the earlier one.
func (r *Registry) RegisterFactory(definition protocol.ComponentDefinition, factory protocol.ComponentFactory) {
	r.add(entry{definition: definition, factory: factory})
}

func (r *Registry) add(e entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := e.definition.Key()
	if _, exists := r.entries[key]; exists {
		r.logger.Warn("Replacing registered component", "component", key)
	}

	r.entries[key] = e
}

// RegisterPlugin adds a component that describes itself.
func (r *Registry) RegisterPlugin(component Plugin) {
	r.RegisterFactory(component.Definition(), component)
}

// Get returns the runtime for key. Factory components are created and configured with
// config; singletons are returned as registered. In both cases config is first validated
// against the schema. The boolean is false when no component is registered under key.
func (r *Registry) Get(key string, config map[string]any) (protocol.ComponentRuntime, bool, error) {
	r.mu.RLock()
	e, ok := r.entries[key]
	r.mu.RUnlock()

	if !ok {
		return nil, false, nil
	}

	err := validateConfig(e.definition, config)
	if err != nil {
		return nil, true, err
	}

	if e.singleton != nil {
		return e.singleton, true, nil
	}

	runtime := e.factory.Create()

	err = runtime.Configure(config)
	if err != nil {
		return nil, true, protocol.Errorf(protocol.ErrInvalidConfiguration, "component %s: %v", key, err)
	}

	return runtime, true, nil
}

func (r *Registry) Definition(key string) (protocol.ComponentDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[key]

	return e.definition, ok
}

func (r *Registry) FindByActor(actor string) []protocol.ComponentDefinition {
	return r.filter(func(d protocol.ComponentDefinition) bool {
		return d.Actor == actor
	})
}

func (r *Registry) FindByActorAndDomain(actor, domain string) (protocol.ComponentDefinition, bool) {
	return r.Definition(actor + ":" + domain)
}

// Definitions lists every registered component ordered by key.
func (r *Registry) Definitions() []protocol.ComponentDefinition {
	return r.filter(func(protocol.ComponentDefinition) bool {
		return true
	})
}

func (r *Registry) filter(keep func(protocol.ComponentDefinition) bool) []protocol.ComponentDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	definitions := make([]protocol.ComponentDefinition, 0, len(r.entries))
	for _, e := range r.entries {
		if keep(e.definition) {
			definitions = append(definitions, e.definition)
		}
	}

	slices.SortFunc(definitions, func(a, b protocol.ComponentDefinition) int {
		return strings.Compare(a.Key(), b.Key())
	})

	return definitions
}

// LoadPlugins opens every shared object below pluginsPath/components and registers the
// components they export.
func (r *Registry) LoadPlugins(pluginsPath string) error {
	rootPath := pluginsPath + "/components"

	pluginPathList, err := fs.Glob(os.DirFS(rootPath), "*.so")
	if err != nil {
		return err
	}

	l := r.logger.With(slog.String("path", rootPath))
	l.Info("Loading plugins", "count", len(pluginPathList))

	for _, p := range pluginPathList {
		plg, err := plugin.Open(rootPath + "/" + p)
		if err != nil {
			return fmt.Errorf("failed to open plugin %s: %w", p, err)
		}

		symbol, err := plg.Lookup(PluginSymbol)
		if err != nil {
			return fmt.Errorf("plugin %s does not export %s: %w", p, PluginSymbol, err)
		}

		component, ok := symbol.(Plugin)
		if !ok {
			return fmt.Errorf("plugin %s exports %s with unexpected type %T", p, PluginSymbol, symbol)
		}

		r.RegisterPlugin(component)
		l.Info("Loaded component plugin", "plugin", p, "component", component.Definition().Key())
	}

	return nil
}

func validateConfig(definition protocol.ComponentDefinition, config map[string]any) error {
	if len(definition.Schema) == 0 {
		return nil
	}

	if config == nil {
		config = map[string]any{}
	}

	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(definition.Schema), gojsonschema.NewGoLoader(config))
	if err != nil {
		return protocol.Errorf(protocol.ErrInvalidConfiguration, "component %s: invalid schema: %v", definition.Key(), err)
	}

	if !result.Valid() {
		messages := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			messages = append(messages, e.String())
		}

		return protocol.Errorf(protocol.ErrInvalidConfiguration, "component %s: %s", definition.Key(), strings.Join(messages, "; "))
	}

	return nil
}
