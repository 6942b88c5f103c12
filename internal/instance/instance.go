// Package instance implements module instancing (C5, §4.5): resolving a
// ModuleReference to a frozen module.Module, applying option binding and
// output transformers, and caching identical instancings.
package instance

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/xerrors"

	"github.com/yldrefruz/ebuild/internal/loader"
	"github.com/yldrefruz/ebuild/internal/module"
	"github.com/yldrefruz/ebuild/internal/option"
	"github.com/yldrefruz/ebuild/internal/platform"
	"github.com/yldrefruz/ebuild/internal/registry"
)

// Transformer mutates a module's attributes to yield a variant (§3,
// "Output transformer"), e.g. turning a library module into its shared
// variant.
type Transformer func(*module.Module) error

// UnknownTransformer is returned when a reference names a transformer tag
// with no matching registered hook (§4.5 step 5).
type UnknownTransformer struct {
	Tag string
}

func (e *UnknownTransformer) Error() string {
	return xerrors.Errorf("unknown output transformer %q", e.Tag).Error()
}

// Context carries the per-build configuration instancing needs (§4.5 step
// 3, "ModuleContext"): it is built once by the CLI layer and threaded down
// explicitly, never read from package-level flags (SPEC_FULL.md §A.3).
type Context struct {
	Loader         loader.Loader
	Transformers   *registry.Registry[Transformer]
	HostPlatform   platform.Platform
	TargetPlatform platform.Platform
	ToolchainHint  string
	Watching       bool
}

// Handle is the result of instancing: a frozen module plus its computed
// variant-id (§4.5, "Result: a (module, variant-id) handle").
type Handle struct {
	Module    *module.Module
	VariantID string
}

// cacheKey identifies a (canonical-path, option-map, transformer) tuple so
// identical references share one instance (§4.5, "cached by...").
type cacheKey string

func makeCacheKey(path string, options map[string]string, transformer string) cacheKey {
	keys := make([]string, 0, len(options))
	for k := range options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(path)
	b.WriteByte('|')
	b.WriteString(transformer)
	b.WriteByte('|')
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(options[k])
		b.WriteByte(';')
	}
	return cacheKey(b.String())
}

// Cache deduplicates instancing across identical references. Guarded by a
// mutex during instancing, matching §5 ("Module cache: guarded by a mutex
// during instancing; concurrent references to the same (path, options,
// transformer) deduplicate").
type Cache struct {
	mu    sync.Mutex
	byKey map[cacheKey]*Handle
}

// NewCache returns an empty instancing cache.
func NewCache() *Cache {
	return &Cache{byKey: make(map[cacheKey]*Handle)}
}

// Instance resolves ref into a frozen (module, variant-id) handle,
// following §4.5 steps 1–7. optionHolder, if non-nil, is the pointer to a
// module-specific options struct that option.Describe/Bind operate on; it
// may be nil for modules with no custom options.
func (c *Cache) Instance(ctx *Context, ref module.Reference, optionHolder any) (*Handle, error) {
	abs, err := filepath.Abs(ref.Path)
	if err != nil {
		return nil, xerrors.Errorf("resolve path %q: %w", ref.Path, err)
	}
	abs = filepath.Clean(abs)

	key := makeCacheKey(abs, ref.Options, ref.Transformer)

	c.mu.Lock()
	defer c.mu.Unlock()
	if h, ok := c.byKey[key]; ok {
		return h, nil
	}

	raws, err := ctx.Loader.Load(abs)
	if err != nil {
		return nil, err
	}
	var raw *loader.RawModule
	if len(raws) == 1 {
		raw = &raws[0]
	} else {
		// §4.5 step 2: "If multiple, the reference must name one" — by
		// matching the options map's "module" key, the same convention the
		// teacher uses for split packages.
		name := ref.Options["module"]
		for i := range raws {
			if raws[i].Name == name {
				raw = &raws[i]
				break
			}
		}
		if raw == nil {
			return nil, xerrors.Errorf("%s declares %d modules; reference must select one via options[\"module\"]", abs, len(raws))
		}
	}

	m, err := build(raw, abs)
	if err != nil {
		return nil, err
	}

	descs, bound, err := bindOptions(optionHolder, raw.Options, ref.Options)
	if err != nil {
		return nil, err
	}
	_ = descs

	if ref.Transformer != "" {
		tr, terr := ctx.Transformers.Get(ref.Transformer)
		if terr != nil {
			return nil, &UnknownTransformer{Tag: ref.Transformer}
		}
		if err := tr(m); err != nil {
			return nil, xerrors.Errorf("transformer %q: %w", ref.Transformer, err)
		}
	}

	if err := m.Freeze(); err != nil {
		return nil, err
	}

	h := &Handle{Module: m, VariantID: option.VariantID(bound)}
	c.byKey[key] = h
	return h, nil
}

// bindOptions resolves a module's option bindings. When the caller supplies
// a Go options struct (optionHolder), binding goes through reflection over
// its `ebuild:"..."` tags (option.Describe/Bind), for Go-native module
// definitions. Otherwise it falls back to
// the declarative path driven by the module descriptor's own Options list
// (option.DescribeDeclared/BindDeclared) — the "equivalent declarative
// mechanism" §4.4 allows for modules loaded with no backing Go struct, such
// as every module the YAML loader produces.
func bindOptions(holder any, specs []loader.OptionSpec, raw map[string]string) ([]option.Descriptor, []option.Bound, error) {
	if holder != nil {
		descs, err := option.Describe(holder)
		if err != nil {
			return nil, nil, err
		}
		bound, err := option.Bind(holder, descs, raw)
		if err != nil {
			return nil, nil, err
		}
		return descs, bound, nil
	}
	if len(specs) == 0 {
		return nil, nil, nil
	}
	declared := make([]option.Spec, len(specs))
	for i, s := range specs {
		declared[i] = option.Spec{
			Name:                s.Name,
			Description:         s.Description,
			Required:            s.Required,
			ChangesResultBinary: s.ChangesResultBinary,
			Default:             s.Default,
			HasDefault:          s.Default != "",
		}
	}
	descs, err := option.DescribeDeclared(declared)
	if err != nil {
		return nil, nil, err
	}
	bound, err := option.BindDeclared(descs, raw)
	if err != nil {
		return nil, nil, err
	}
	return descs, bound, nil
}

// build translates a loader.RawModule into a module.Module (§4.5 step 3-4
// worth of attribute population, ahead of option binding/transformers).
func build(raw *loader.RawModule, definitionPath string) (*module.Module, error) {
	m := module.New()
	m.DefinitionPath = definitionPath
	m.SetName(raw.Name)

	t, err := parseType(raw.Type)
	if err != nil {
		return nil, err
	}
	m.SetType(t)

	for _, s := range raw.Sources {
		m.AddSource(s)
	}
	m.SetResourceScript(raw.ResourceScript)

	for _, v := range raw.Includes.Public {
		m.Includes.AddPublic(v)
	}
	for _, v := range raw.Includes.Private {
		m.Includes.AddPrivate(v)
	}

	for _, d := range raw.Definitions.Public {
		m.Definitions.AddPublic(module.Definition{Name: d.Name, Value: d.Value})
	}
	for _, d := range raw.Definitions.Private {
		m.Definitions.AddPrivate(module.Definition{Name: d.Name, Value: d.Value})
	}

	for _, v := range raw.Libraries.Public {
		m.Libraries.AddPublic(v)
	}
	for _, v := range raw.Libraries.Private {
		m.Libraries.AddPrivate(v)
	}

	for _, v := range raw.CompilerOptions.Public {
		m.CompilerOptions.AddPublic(v)
	}
	for _, v := range raw.CompilerOptions.Private {
		m.CompilerOptions.AddPrivate(v)
	}

	for _, v := range raw.LinkerOptions.Public {
		m.LinkerOptions.AddPublic(v)
	}
	for _, v := range raw.LinkerOptions.Private {
		m.LinkerOptions.AddPrivate(v)
	}

	for _, d := range raw.Dependencies.Public {
		m.Dependencies.AddPublic(module.Reference{Path: d.Path, Options: d.Options, Transformer: d.Transformer})
	}
	for _, d := range raw.Dependencies.Private {
		m.Dependencies.AddPrivate(module.Reference{Path: d.Path, Options: d.Options, Transformer: d.Transformer})
	}

	m.CppStandard = raw.CppStandard
	m.CStandard = raw.CStandard
	m.Optimization = parseOptimization(raw.Optimization)
	m.CPUExtension = raw.CPUExtension
	m.EnableExceptions = raw.EnableExceptions
	m.EnableRTTI = raw.EnableRTTI
	m.EnableFastFP = raw.EnableFastFP
	m.IsDebug = raw.IsDebug
	m.EnableDebugSymbols = raw.EnableDebugSymbols

	return m, nil
}

func parseType(s string) (module.Type, error) {
	switch s {
	case "StaticLibrary":
		return module.TypeStaticLibrary, nil
	case "SharedLibrary":
		return module.TypeSharedLibrary, nil
	case "Executable":
		return module.TypeExecutable, nil
	case "ExecutableWindowed":
		return module.TypeExecutableWindowed, nil
	default:
		return module.TypeUnknown, &module.InvalidModule{Reason: fmt.Sprintf("unknown module type %q", s)}
	}
}

func parseOptimization(s string) module.Optimization {
	switch strings.ToLower(s) {
	case "size":
		return module.OptimizationSize
	case "max", "o3":
		return module.OptimizationMax
	case "none", "o0":
		return module.OptimizationNone
	default:
		return module.OptimizationSpeed
	}
}
