package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Kind classifies a tool's operation — drives permission-policy decisions.
type Kind string

const (
	KindRead        Kind = "read"        // read_file, list_dir, ...
	KindEdit        Kind = "edit"        // write_file, apply_patch, ...
	KindExecute     Kind = "execute"     // shell, run, ...
	KindDelete      Kind = "delete"      // delete operations
	KindSearch      Kind = "search"      // content_search, find_files, ...
	KindFetch       Kind = "fetch"       // network fetch
	KindThink       Kind = "think"       // pure reasoning, no side effect
	KindCommunicate Kind = "communicate" // ask_user, notify, ...
)

// MutatorKinds require user confirmation under AskMode.
var MutatorKinds = map[Kind]bool{
	KindEdit:    true,
	KindDelete:  true,
	KindExecute: true,
}

// SafeKinds are auto-allowed even under AskMode.
var SafeKinds = map[Kind]bool{
	KindRead:   true,
	KindSearch: true,
	KindThink:  true,
}

// Tool is the abstraction every callable tool implementation satisfies.
type Tool interface {
	Name() string
	// Version identifies this implementation; "" means unversioned / only
	// version. Descriptors are keyed by "name:version" when Version != "".
	Version() string
	Description() string
	Kind() Kind
	// Schema returns the input_schema (JSON-schema-like: properties,
	// required[], types).
	Schema() map[string]interface{}
	Execute(ctx context.Context, args map[string]interface{}) (*Result, error)
}

// Result is a tool's raw execution result, produced per dispatch.
type Result struct {
	Output   string
	Success  bool
	Metadata map[string]interface{}
	Error    string
}

// MarshalJSON serializes a tool result.
func (r *Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"output":   r.Output,
		"success":  r.Success,
		"metadata": r.Metadata,
		"error":    r.Error,
	})
}

// Definition is a ToolDescriptor: everything the Controller and Dispatcher
// need without touching the concrete Tool implementation. input_schema is
// compiled once into a *jsonschema.Schema at Register time.
type Definition struct {
	Name        string                 `json:"name"`
	Version     string                 `json:"version,omitempty"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`

	compiled *jsonschema.Schema
}

// Validate checks args against the compiled input schema. A Definition
// with no compiled schema (e.g. empty Parameters) always validates.
func (d *Definition) Validate(args map[string]interface{}) error {
	if d.compiled == nil {
		return nil
	}
	return d.compiled.Validate(args)
}

// key returns the registry lookup key for this descriptor.
func (d *Definition) key() string {
	if d.Version == "" {
		return d.Name
	}
	return d.Name + ":" + d.Version
}

// Registry is a read-only-during-a-run dictionary of tool descriptors
// keyed by name, or name:version when a tool declares a version.
type Registry interface {
	Register(tool Tool) error
	Unregister(name string) error
	// Get resolves a tool by "name" or "name:version". Unversioned lookups
	// resolve to any registered version of that name.
	Get(name string) (Tool, bool)
	// Descriptor resolves the compiled descriptor the same way Get resolves
	// the Tool, for dispatcher-side schema validation.
	Descriptor(name string) (*Definition, bool)
	List() []Definition
	Has(name string) bool
}

// InMemoryRegistry is a mutex-guarded in-memory Registry.
type InMemoryRegistry struct {
	mu    sync.RWMutex
	tools map[string]Tool       // keyed by bare name
	defs  map[string]*Definition // keyed by bare name and name:version
}

// NewInMemoryRegistry creates an empty registry.
func NewInMemoryRegistry() *InMemoryRegistry {
	return &InMemoryRegistry{
		tools: make(map[string]Tool),
		defs:  make(map[string]*Definition),
	}
}

// compileSchema compiles a tool's raw Schema() map into a *jsonschema.Schema.
// Per Design Note "replace dynamic model factory with a statically typed
// validator compiled once per descriptor" — compiled once here, never again.
func compileSchema(name string, raw map[string]interface{}) (*jsonschema.Schema, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	doc, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("marshal schema for %s: %w", name, err)
	}
	var decoded interface{}
	if err := json.Unmarshal(doc, &decoded); err != nil {
		return nil, fmt.Errorf("decode schema for %s: %w", name, err)
	}
	c := jsonschema.NewCompiler()
	resource := "mem://tools/" + name + ".json"
	if err := c.AddResource(resource, decoded); err != nil {
		return nil, fmt.Errorf("add schema resource for %s: %w", name, err)
	}
	schema, err := c.Compile(resource)
	if err != nil {
		return nil, fmt.Errorf("compile schema for %s: %w", name, err)
	}
	return schema, nil
}

// Register adds a tool, compiling its input schema once.
func (r *InMemoryRegistry) Register(tool Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := tool.Name()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %s already registered", name)
	}

	schema := tool.Schema()
	compiled, err := compileSchema(name, schema)
	if err != nil {
		return err
	}

	def := &Definition{
		Name:        name,
		Version:     tool.Version(),
		Description: tool.Description(),
		Parameters:  schema,
		compiled:    compiled,
	}

	r.tools[name] = tool
	r.defs[name] = def
	if def.Version != "" {
		r.defs[def.key()] = def
	}
	return nil
}

// Unregister removes a tool by bare name.
func (r *InMemoryRegistry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	def, exists := r.defs[name]
	if !exists {
		return fmt.Errorf("tool %s not found", name)
	}

	delete(r.tools, name)
	delete(r.defs, name)
	if def.Version != "" {
		delete(r.defs, def.key())
	}
	return nil
}

// Get resolves "name" or "name:version" to a Tool.
func (r *InMemoryRegistry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if def, ok := r.defs[name]; ok {
		t := r.tools[def.Name]
		return t, t != nil
	}
	return nil, false
}

// Descriptor resolves "name" or "name:version" to its compiled Definition.
func (r *InMemoryRegistry) Descriptor(name string) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[name]
	return def, ok
}

// List returns every registered descriptor, one per bare tool name.
func (r *InMemoryRegistry) List() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]Definition, 0, len(r.tools))
	for name := range r.tools {
		defs = append(defs, *r.defs[name])
	}
	return defs
}

// Has reports whether a bare name or name:version is registered.
func (r *InMemoryRegistry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.defs[name]
	return exists
}

// ExecutionContext describes where a tool call physically runs.
type ExecutionContext int

const (
	ExecContextGateway ExecutionContext = iota
	ExecContextSandbox
	ExecContextRemote
)

func (c ExecutionContext) String() string {
	switch c {
	case ExecContextGateway:
		return "gateway"
	case ExecContextSandbox:
		return "sandbox"
	case ExecContextRemote:
		return "remote"
	default:
		return "unknown"
	}
}

// Executor is the low-level tool-invocation abstraction.
type Executor interface {
	Execute(ctx context.Context, tool Tool, args map[string]interface{}) (*Result, error)
	SetContext(execCtx ExecutionContext)
}

// Policy is a tool allow/deny configuration.
type Policy struct {
	Profile     string
	AllowList   []string
	DenyList    []string
	AskMode     bool
	MaxExecTime int
}

// IsAllowed reports whether toolName passes the deny/allow lists.
func (p *Policy) IsAllowed(toolName string) bool {
	for _, denied := range p.DenyList {
		if denied == toolName {
			return false
		}
	}
	if len(p.AllowList) == 0 {
		return true
	}
	for _, allowed := range p.AllowList {
		if allowed == toolName {
			return true
		}
	}
	return false
}

// NeedsConfirmation reports whether a tool of the given Kind needs
// confirmation under AskMode.
func (p *Policy) NeedsConfirmation(kind Kind) bool {
	if !p.AskMode {
		return false
	}
	if SafeKinds[kind] {
		return false
	}
	return MutatorKinds[kind]
}

// PolicyEnforcer applies a Policy to a Registry.
type PolicyEnforcer struct {
	policy   *Policy
	registry Registry
}

// NewPolicyEnforcer creates a policy enforcer over a registry.
func NewPolicyEnforcer(policy *Policy, registry Registry) *PolicyEnforcer {
	return &PolicyEnforcer{policy: policy, registry: registry}
}

// FilteredList returns descriptors the policy allows.
func (e *PolicyEnforcer) FilteredList() []Definition {
	all := e.registry.List()
	filtered := make([]Definition, 0, len(all))
	for _, def := range all {
		if e.policy.IsAllowed(def.Name) {
			filtered = append(filtered, def)
		}
	}
	return filtered
}

// CanExecute reports whether the policy allows toolName.
func (e *PolicyEnforcer) CanExecute(toolName string) bool {
	return e.policy.IsAllowed(toolName)
}

// NeedsApproval reports whether the policy requires confirmation at all.
func (e *PolicyEnforcer) NeedsApproval() bool {
	return e.policy.AskMode
}
