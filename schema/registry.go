package schema

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"go.uber.org/multierr"

	"github.com/polyorm/polyorm/utils"
)

var (
	// ErrBrokenRegistry a type registration is inconsistent; this is a
	// configuration error that must stop startup, never retried per request
	ErrBrokenRegistry = errors.New("broken type registry")
	// ErrUnknownDiscriminator a stored class name matches no registered type
	ErrUnknownDiscriminator = errors.New("unknown discriminator")
)

func brokenf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrBrokenRegistry, fmt.Sprintf(format, args...))
}

func validIdentifier(name string) bool {
	return utils.IsValidIdentifier(name)
}

// TypeRegistration declares one level of a type hierarchy.
type TypeRegistration struct {
	// Key is the stable discriminator, usually "namespace.TypeName"
	Key string
	// Parent is the key of the supertype; empty means the root type
	Parent string
	// Table defaults to the namer's table name for Key
	Table   string
	Columns []*Column
	// New returns a zero instance; nil declares an abstract type
	New func() interface{}
}

// ModuleLoader registers the types of a namespace on first demand
type ModuleLoader func(r *Registry) error

type registeredType struct {
	TypeRegistration
	table *Table

	once sync.Once
	desc *Descriptor
	err  error
}

// Registry maps type keys to descriptors and factories. Descriptors are built
// once on first use, safely under concurrent access, and never change after.
type Registry struct {
	namer   Namer
	rootKey string

	mu     sync.RWMutex
	types  map[string]*registeredType
	byType map[reflect.Type]string

	loaderMu sync.Mutex
	loaders  map[string]ModuleLoader
	loaded   map[string]bool
}

// NewRegistry creates a registry whose hierarchies all descend from root
func NewRegistry(namer Namer, root TypeRegistration) (*Registry, error) {
	if namer == nil {
		namer = NamingStrategy{}
	}
	if root.Parent != "" {
		return nil, brokenf("root type %q can't have a parent", root.Key)
	}

	r := &Registry{
		namer:   namer,
		rootKey: root.Key,
		types:   map[string]*registeredType{},
		byType:  map[reflect.Type]string{},
		loaders: map[string]ModuleLoader{},
		loaded:  map[string]bool{},
	}
	if err := r.Register(root); err != nil {
		return nil, err
	}
	return r, nil
}

// Namer returns the naming strategy of the registry
func (r *Registry) Namer() Namer {
	return r.namer
}

// RootKey is the key of the root persistent type
func (r *Registry) RootKey() string {
	return r.rootKey
}

// Register adds a type. All errors wrap ErrBrokenRegistry.
func (r *Registry) Register(reg TypeRegistration) error {
	if reg.Key == "" {
		return brokenf("type key is required")
	}

	if reg.Key != r.rootKey && reg.Parent == "" {
		reg.Parent = r.rootKey
	}
	if reg.Parent == reg.Key {
		return brokenf("type %q can't be its own parent", reg.Key)
	}

	if reg.Table == "" {
		reg.Table = r.namer.TableName(reg.Key)
	}
	if !validIdentifier(reg.Table) {
		return brokenf("type %q: invalid table name %q", reg.Key, reg.Table)
	}

	rt := &registeredType{TypeRegistration: reg, table: &Table{Name: reg.Table, Columns: reg.Columns}}

	var modelType reflect.Type
	if reg.New != nil {
		instance := reg.New()
		if instance == nil {
			return brokenf("type %q: factory returned nil", reg.Key)
		}
		modelType = reflect.TypeOf(instance)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.types[reg.Key]; ok {
		return brokenf("type %q is already registered", reg.Key)
	}
	if modelType != nil {
		if key, ok := r.byType[modelType]; ok {
			return brokenf("type %q: %v is already registered as %q", reg.Key, modelType, key)
		}
	}

	if err := rt.table.bind(r.namer); err != nil {
		return err
	}

	r.types[reg.Key] = rt
	if modelType != nil {
		r.byType[modelType] = reg.Key
	}
	return nil
}

// MustRegister is Register for startup code; it panics on a broken registration
func (r *Registry) MustRegister(regs ...TypeRegistration) {
	for _, reg := range regs {
		if err := r.Register(reg); err != nil {
			panic(err)
		}
	}
}

func (r *Registry) lookup(key string) (*registeredType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rt, ok := r.types[key]
	return rt, ok
}

// Descriptor returns the descriptor for key, building it and its ancestors on first use
func (r *Registry) Descriptor(key string) (*Descriptor, error) {
	rt, ok := r.lookup(key)
	if !ok {
		return nil, brokenf("type %q is not registered", key)
	}

	rt.once.Do(func() {
		rt.desc, rt.err = r.build(rt)
	})
	return rt.desc, rt.err
}

// MustDescriptor panics when the descriptor can't be built
func (r *Registry) MustDescriptor(key string) *Descriptor {
	d, err := r.Descriptor(key)
	if err != nil {
		panic(err)
	}
	return d
}

// DescriptorOf returns the descriptor of obj's registered type
func (r *Registry) DescriptorOf(obj interface{}) (*Descriptor, error) {
	key, ok := r.KeyOf(obj)
	if !ok {
		return nil, brokenf("%T is not registered", obj)
	}
	return r.Descriptor(key)
}

// KeyOf returns the key registered for obj's dynamic type
func (r *Registry) KeyOf(obj interface{}) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	key, ok := r.byType[reflect.TypeOf(obj)]
	return key, ok
}

func (r *Registry) build(rt *registeredType) (*Descriptor, error) {
	var (
		chain  []*registeredType
		seen   = map[string]bool{}
		tables = map[string]string{}
	)

	// check the whole ancestry before recursing, a cycle would otherwise deadlock on once
	for cur := rt; ; {
		if seen[cur.Key] {
			return nil, brokenf("type %q: inheritance cycle through %q", rt.Key, cur.Key)
		}
		seen[cur.Key] = true

		if other, ok := tables[cur.table.Name]; ok {
			return nil, brokenf("type %q: table %v used by both %q and %q", rt.Key, cur.table.Name, other, cur.Key)
		}
		tables[cur.table.Name] = cur.Key

		chain = append(chain, cur)
		if cur.Key == r.rootKey {
			break
		}

		parent, ok := r.lookup(cur.Parent)
		if !ok {
			return nil, brokenf("type %q: ancestor %q is not registered", rt.Key, cur.Parent)
		}
		cur = parent
	}

	if rt.Key != r.rootKey {
		if _, err := r.Descriptor(rt.Parent); err != nil {
			return nil, err
		}
	}

	levels := make([]*Table, len(chain))
	for i, t := range chain {
		levels[len(chain)-1-i] = t.table
	}

	if rt.New != nil {
		instance := rt.New()
		for _, table := range levels {
			for _, column := range table.Columns {
				if !column.Accepts(instance) {
					return nil, brokenf("type %q: %T can't bind column %v of table %v", rt.Key, instance, column.Name, table.Name)
				}
			}
		}
	}

	return newDescriptor(rt.Key, levels, rt.New), nil
}

// Validate builds every descriptor, reporting all broken registrations at once
func (r *Registry) Validate() (err error) {
	for _, key := range r.Keys() {
		if _, e := r.Descriptor(key); e != nil {
			err = multierr.Append(err, e)
		}
	}
	return err
}

// Keys lists registered type keys in sorted order
func (r *Registry) Keys() []string {
	r.mu.RLock()
	keys := make([]string, 0, len(r.types))
	for key := range r.types {
		keys = append(keys, key)
	}
	r.mu.RUnlock()

	sort.Strings(keys)
	return keys
}

// IsA reports whether key is ancestor or a subtype of it
func (r *Registry) IsA(key, ancestor string) bool {
	for cur := key; cur != ""; {
		if cur == ancestor {
			return true
		}
		rt, ok := r.lookup(cur)
		if !ok || cur == r.rootKey {
			return false
		}
		cur = rt.Parent
	}
	return false
}

// New instantiates the concrete type registered under key
func (r *Registry) New(key string) (interface{}, error) {
	rt, ok := r.lookup(key)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDiscriminator, key)
	}
	if rt.New == nil {
		return nil, fmt.Errorf("%w: %q is abstract", ErrUnknownDiscriminator, key)
	}
	return rt.New(), nil
}

// RegisterModuleLoader installs a loader for discriminators in namespace prefix
func (r *Registry) RegisterModuleLoader(prefix string, loader ModuleLoader) {
	r.loaderMu.Lock()
	defer r.loaderMu.Unlock()
	r.loaders[prefix] = loader
}

// Resolve maps a stored discriminator to a registered key: the exact key
// first, then a unique registered type with the same unqualified name, then
// the module loader guessed from the discriminator's namespace.
func (r *Registry) Resolve(discriminator string) (string, error) {
	if _, ok := r.lookup(discriminator); ok {
		return discriminator, nil
	}

	if key, ok := r.scan(discriminator); ok {
		return key, nil
	}

	if r.loadModule(discriminator) {
		if _, ok := r.lookup(discriminator); ok {
			return discriminator, nil
		}
		if key, ok := r.scan(discriminator); ok {
			return key, nil
		}
	}

	return "", fmt.Errorf("%w: %q", ErrUnknownDiscriminator, discriminator)
}

func (r *Registry) scan(discriminator string) (string, bool) {
	_, name := utils.SplitQualified(discriminator)
	if name == "" {
		return "", false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var found []string
	for key := range r.types {
		if _, n := utils.SplitQualified(key); n == name {
			found = append(found, key)
		}
	}
	if len(found) == 1 {
		return found[0], true
	}
	return "", false
}

// loadModule runs the loader with the longest prefix matching the namespace, once
func (r *Registry) loadModule(discriminator string) bool {
	namespace, _ := utils.SplitQualified(discriminator)
	if namespace == "" {
		return false
	}

	r.loaderMu.Lock()
	defer r.loaderMu.Unlock()

	var best string
	for prefix := range r.loaders {
		if (namespace == prefix || strings.HasPrefix(namespace, prefix+".")) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best == "" || r.loaded[best] {
		return false
	}

	// a failed load is not retried; the discriminator stays unresolvable
	r.loaded[best] = true
	return r.loaders[best](r) == nil
}
