// Package orchestrate implements the compile/link orchestrator (C8, §4.8):
// planning per-node compile/link tasks, scheduling them on a worker pool
// with a leaf-first topological order, and applying the failure/skip
// policy, grounded on the teacher's internal/batch.go scheduler (worker
// pool draining a ready-queue channel into more ready work).
package orchestrate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"

	"github.com/yldrefruz/ebuild/internal/driver"
	"github.com/yldrefruz/ebuild/internal/graph"
	"github.com/yldrefruz/ebuild/internal/module"
	"github.com/yldrefruz/ebuild/internal/platform"
	"github.com/yldrefruz/ebuild/internal/process"
	"github.com/yldrefruz/ebuild/internal/toolchain"
	"github.com/yldrefruz/ebuild/internal/trace"
)

// State is a task's position in its lifecycle (§4.8, "State machine per
// task"). Terminal transitions are final.
type State int

const (
	Planned State = iota
	Running
	Succeeded
	Failed
	Cancelled
	Skipped
)

func (s State) String() string {
	switch s {
	case Planned:
		return "Planned"
	case Running:
		return "Running"
	case Succeeded:
		return "Succeeded"
	case Failed:
		return "Failed"
	case Cancelled:
		return "Cancelled"
	case Skipped:
		return "Skipped"
	default:
		return "Unknown"
	}
}

func (s State) terminal() bool { return s != Planned && s != Running }

// CompileTask is one planned compile step, fully resolved ahead of
// execution (§4.8, "Planning").
type CompileTask struct {
	Node     *graph.Node
	Settings driver.CompilerSettings
	State    State
	Result   process.Result
	Err      error
}

// ResourceTask is a planned resource-compile step, present only on
// ExecutableWindowed modules whose toolchain offers a resource compiler.
type ResourceTask struct {
	Node     *graph.Node
	Settings driver.ResourceSettings
	State    State
	Result   process.Result
	Err      error
}

// SourcePreparer is an optional per-module setup phase the orchestrator
// runs once a graph is built but before any of that module's compiles are
// dispatched (§9, "prepareSources() phase"): modules whose sources require
// an async side effect before they exist on disk — a download, an
// extraction — implement it. Modules with nothing to prepare simply have
// no SourcePreparer attached.
type SourcePreparer interface {
	PrepareSources(ctx context.Context) error
}

// SetupTask records the outcome of a module's source-preparation phase,
// present only when an Orchestrator.SourcePreparerFor resolver is
// configured and returns a non-nil SourcePreparer for that module.
type SetupTask struct {
	Node  *graph.Node
	State State
	Err   error
}

// SetupFailure is returned when a module's SourcePreparer fails (§7,
// "SetupFailure"). Surfacing follows the same local-recovery policy as
// CompileFailure: the module's own compile/resource/link tasks are never
// run, every dependent is skipped, unrelated modules still build.
type SetupFailure struct {
	Module string
	Err    error
}

func (e *SetupFailure) Error() string {
	return xerrors.Errorf("prepare sources for %s: %w", e.Module, e.Err).Error()
}

func (e *SetupFailure) Unwrap() error { return e.Err }

// LinkTask is one planned link (or archive) step.
type LinkTask struct {
	Node     *graph.Node
	Settings driver.LinkerSettings
	State    State
	Result   process.Result
	Err      error
}

// Unit groups every task belonging to one graph node (§4.8): its compiles,
// optional resource compile, and its link.
type Unit struct {
	Node      *graph.Node
	Toolchain toolchain.Toolchain
	Setup     *SetupTask
	Compiles  []*CompileTask
	Resource  *ResourceTask
	Link      *LinkTask

	compileRemaining int
	depLinksPending  map[graph.NodeKey]bool
	dependents       []*Unit
	failed           bool
}

// Plan is the full planned build: one Unit per graph node, plus the
// intermediate directory each module's objects are written under.
type Plan struct {
	Units          map[graph.NodeKey]*Unit
	// OrderedUnits lists the same keys as Units in the graph's
	// source-declaration walk order (graph.Graph.Order), so callers that
	// must emit deterministic per-unit output (§6, compile_commands.json)
	// range over this instead of the map.
	OrderedUnits    []graph.NodeKey
	IntermediateDir string
}

// Planner derives a Plan from a resolved, propagated graph.Graph (§4.8
// step 1, "Planning").
type Planner struct {
	Selector       toolchain.Selector
	TargetPlatform platform.Platform
	CLIToolchain   string // --toolchain override, empty if unset
	ToolchainHint  func(*module.Module) string
	IntermediateDir string
	Clean           bool
}

// Plan derives one CompileTask per source and one LinkTask per node for
// every node reachable from g.Root.
func (p Planner) Plan(g *graph.Graph) (*Plan, error) {
	plan := &Plan{
		Units:           make(map[graph.NodeKey]*Unit),
		OrderedUnits:    append([]graph.NodeKey(nil), g.Order...),
		IntermediateDir: p.IntermediateDir,
	}

	for _, key := range g.Order {
		n := g.Nodes[key]
		hint := ""
		if p.ToolchainHint != nil {
			hint = p.ToolchainHint(n.Module)
		}
		tc, err := p.Selector.Select(n.Module, hint, p.CLIToolchain, p.TargetPlatform)
		if err != nil {
			return nil, err
		}

		outDir := filepath.Join(p.IntermediateDir, n.Module.Name, key.VariantID)
		if p.Clean {
			if err := os.RemoveAll(outDir); err != nil {
				return nil, xerrors.Errorf("clean %s: %w", outDir, err)
			}
		}
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return nil, xerrors.Errorf("mkdir %s: %w", outDir, err)
		}

		u := &Unit{Node: n, Toolchain: tc, depLinksPending: make(map[graph.NodeKey]bool)}

		defs := effectiveDefinitions(n, p.TargetPlatform)
		includes := n.EffectiveIncludes()

		var objects []string
		for _, src := range n.Module.Sources {
			obj := filepath.Join(outDir, objectName(src))
			objects = append(objects, obj)
			u.Compiles = append(u.Compiles, &CompileTask{
				Node: n,
				Settings: driver.CompilerSettings{
					SourcePath:         src,
					OutputPath:         obj,
					Architecture:       p.TargetPlatform.Architecture,
					ModuleType:         n.Module.Type.String(),
					CPUExtension:       n.Module.CPUExtension,
					EnableExceptions:   n.Module.EnableExceptions,
					EnableRTTI:         n.Module.EnableRTTI,
					EnableFastFP:       n.Module.EnableFastFP,
					EnableDebugSymbols: n.Module.EnableDebugSymbols,
					CStandard:          n.Module.CStandard,
					CppStandard:        n.Module.CppStandard,
					Optimization:       optimizationString(n.Module.Optimization),
					Definitions:        defs,
					Includes:           includes,
					PlatformFlags:      p.TargetPlatform.CompilerFlags,
					ExtraFlags:         n.EffectiveCompilerOptions(),
				},
			})
		}

		if n.Module.Type == module.TypeExecutableWindowed && tc.ResourceCompiler != nil && n.Module.ResourceScript != "" {
			res := filepath.Join(outDir, n.Module.Name+".res")
			u.Resource = &ResourceTask{
				Node: n,
				Settings: driver.ResourceSettings{
					SourcePath:  n.Module.ResourceScript,
					OutputPath:  res,
					Includes:    includes,
					Definitions: defs,
				},
			}
			objects = append(objects, res)
		}

		libPaths, libs := splitLibraries(n.EffectiveLibraries())
		u.Link = &LinkTask{
			Node: n,
			Settings: driver.LinkerSettings{
				Kind:            toolchain.LinkKindFor(n.Module.Type),
				OutputPath:      filepath.Join(outDir, outputName(n.Module)),
				ObjectPaths:     objects,
				LibraryPaths:    libPaths,
				Libraries:       libs,
				LinkerFlags:     n.EffectiveLinkerOptions(),
				EnableDebugInfo: n.Module.EnableDebugSymbols,
			},
		}

		u.compileRemaining = len(u.Compiles)
		plan.Units[key] = u
	}

	// Wire dependency bookkeeping now that every Unit exists.
	for _, key := range g.Order {
		n := g.Nodes[key]
		u := plan.Units[key]
		seen := make(map[graph.NodeKey]bool)
		for _, e := range n.Edges {
			if seen[e.To.Key] {
				continue
			}
			seen[e.To.Key] = true
			u.depLinksPending[e.To.Key] = true
			dep := plan.Units[e.To.Key]
			dep.dependents = append(dep.dependents, u)
		}
	}

	return plan, nil
}

func objectName(source string) string {
	base := filepath.Base(source)
	ext := filepath.Ext(base)
	return base[:len(base)-len(ext)] + ".o"
}

func outputName(m *module.Module) string {
	switch m.Type {
	case module.TypeStaticLibrary:
		return "lib" + m.Name + ".a"
	case module.TypeSharedLibrary:
		return "lib" + m.Name + ".so"
	default:
		return m.Name
	}
}

func optimizationString(o module.Optimization) string {
	switch o {
	case module.OptimizationNone:
		return "none"
	case module.OptimizationSize:
		return "size"
	case module.OptimizationMax:
		return "max"
	default:
		return "speed"
	}
}

func effectiveDefinitions(n *graph.Node, p platform.Platform) []driver.Definition {
	var out []driver.Definition
	for _, d := range p.Definitions {
		out = append(out, driver.Definition{Name: d.Name, Value: d.Value})
	}
	for _, d := range n.EffectiveDefinitions() {
		out = append(out, driver.Definition{Name: d.Name, Value: d.Value})
	}
	return out
}

// splitLibraries separates library search paths from library inputs. An
// absolute entry with no file extension is taken to be a directory and
// becomes a search path; every other entry (a bare library name, or an
// absolute path to a library file, which the linker driver passes through
// as a full path) is a library input. Relative directories are never
// treated as search paths.
func splitLibraries(libs []string) (paths, names []string) {
	for _, l := range libs {
		if filepath.IsAbs(l) && filepath.Ext(l) == "" {
			paths = append(paths, l)
			continue
		}
		names = append(names, l)
	}
	return paths, names
}

// Result is the outcome of Run: a failure in any task fails the whole
// build (§4.8, "Overall build exit is failure if any task failed").
type Result struct {
	Failed    bool
	Cancelled bool
}

// CompileFailure is a non-zero exit (or spawn error) from a compile or
// resource-compile task (§7, "CompileFailure"). Dependents are skipped,
// siblings continue.
type CompileFailure struct {
	Module   string
	Source   string
	ExitCode int
	Err      error
}

func (e *CompileFailure) Error() string {
	if e.Err != nil {
		return xerrors.Errorf("compile %s (module %s): exit %d: %w", e.Source, e.Module, e.ExitCode, e.Err).Error()
	}
	return fmt.Sprintf("compile %s (module %s): exit %d", e.Source, e.Module, e.ExitCode)
}

func (e *CompileFailure) Unwrap() error { return e.Err }

// LinkFailure is a non-zero exit (or spawn error) from a link or archive
// task (§7, "LinkFailure"). Same surfacing policy as CompileFailure.
type LinkFailure struct {
	Module   string
	Output   string
	ExitCode int
	Err      error
}

func (e *LinkFailure) Error() string {
	if e.Err != nil {
		return xerrors.Errorf("link %s (module %s): exit %d: %w", e.Output, e.Module, e.ExitCode, e.Err).Error()
	}
	return fmt.Sprintf("link %s (module %s): exit %d", e.Output, e.Module, e.ExitCode)
}

func (e *LinkFailure) Unwrap() error { return e.Err }

// Orchestrator executes a Plan on a worker pool (§4.8, §5).
type Orchestrator struct {
	Runner process.Runner
	Jobs   int // 0 means runtime.NumCPU()
	Logger func(string)
	// SourcePreparerFor, if non-nil, returns the SourcePreparer attached to
	// m, or nil if m has none. The default runs no setup phase at all.
	SourcePreparerFor func(m *module.Module) SourcePreparer
}

// Run executes every task in plan on a pool of o.Jobs workers, honoring
// ctx cancellation (§5, "Cancellation semantics") and the skip-dependents
// failure policy (§4.8 step 5). Compile tasks are dispatched across the
// worker pool; once a unit's compiles (and optional resource step) finish,
// its link/archive step runs inline on whichever worker finished last,
// then recursively unblocks dependents whose own compiles already
// finished — the same "ready queue drains into more ready work" shape as
// the teacher's batch.go scheduler, minus its textproto-specific plumbing.
func (o *Orchestrator) Run(ctx context.Context, plan *Plan) (*Result, error) {
	jobs := o.Jobs
	if jobs <= 0 {
		jobs = runtime.NumCPU()
	}

	var mu sync.Mutex
	result := &Result{}

	type dispatch struct {
		unit *Unit
		task *CompileTask
	}
	ready := make(chan dispatch, len(plan.Units)*4+1)
	var pending sync.WaitGroup

	markSkippedRecursively := func(u *Unit) {
		var visit func(*Unit)
		visited := make(map[*Unit]bool)
		visit = func(x *Unit) {
			if visited[x] {
				return
			}
			visited[x] = true
			mu.Lock()
			for _, ct := range x.Compiles {
				// A compile already Running finishes and records its own
				// outcome; only compiles not yet started are skipped.
				if ct.State == Planned {
					ct.State = Skipped
				}
			}
			if x.Resource != nil && !x.Resource.State.terminal() {
				x.Resource.State = Skipped
			}
			if !x.Link.State.terminal() {
				x.Link.State = Skipped
			}
			x.failed = true
			mu.Unlock()
			for _, d := range x.dependents {
				visit(d)
			}
		}
		// Mark u's own still-pending tasks Skipped too (its Link never ran if
		// u failed before afterCompiles started it), then cascade to every
		// dependent transitively.
		visit(u)
	}

	// Setup phase (§9, "prepareSources()"): run before any compile is
	// dispatched, in source-declaration order, so a module whose sources
	// never materialize fails before its (or its dependents') tasks are
	// ever queued.
	if o.SourcePreparerFor != nil {
		units := plan.OrderedUnits
		if units == nil {
			for key := range plan.Units {
				units = append(units, key)
			}
		}
		for _, key := range units {
			u := plan.Units[key]
			prep := o.SourcePreparerFor(u.Node.Module)
			if prep == nil {
				continue
			}
			u.Setup = &SetupTask{Node: u.Node, State: Running}
			if err := prep.PrepareSources(ctx); err != nil {
				u.Setup.State = Failed
				u.Setup.Err = &SetupFailure{Module: u.Node.Module.Name, Err: err}
				o.failUnit(u, result, markSkippedRecursively)
				continue
			}
			u.Setup.State = Succeeded
		}
	}

	eg, ctx := errgroup.WithContext(ctx)

	for _, u := range plan.Units {
		u := u
		if len(u.Compiles) == 0 {
			pending.Add(1)
			go func() {
				defer pending.Done()
				o.afterCompiles(ctx, u, 0, &mu, result, markSkippedRecursively)
			}()
			continue
		}
		for _, ct := range u.Compiles {
			ct.State = Planned
			pending.Add(1)
			ready <- dispatch{unit: u, task: ct}
		}
	}

	for i := 0; i < jobs; i++ {
		worker := i
		eg.Go(func() error {
			for {
				var d dispatch
				var ok bool
				select {
				case d, ok = <-ready:
				case <-ctx.Done():
					return nil
				}
				if !ok {
					return nil
				}
				o.runCompile(ctx, d.unit, d.task, worker, &mu, result, markSkippedRecursively)
				pending.Done()
			}
		})
	}

	go func() {
		pending.Wait()
		close(ready)
	}()

	if err := eg.Wait(); err != nil {
		return result, err
	}
	if ctx.Err() != nil {
		result.Cancelled = true
	}
	return result, nil
}

func (o *Orchestrator) log(format string, args ...interface{}) {
	if o.Logger == nil {
		return
	}
	o.Logger(fmt.Sprintf(format, args...))
}

func (o *Orchestrator) runCompile(ctx context.Context, u *Unit, task *CompileTask, worker int, mu *sync.Mutex, result *Result, markSkipped func(*Unit)) {
	mu.Lock()
	if u.failed {
		task.State = Skipped
		mu.Unlock()
		return
	}
	task.State = Running
	mu.Unlock()

	argv, err := u.Toolchain.Compiler.Argv(task.Settings)
	if err != nil {
		mu.Lock()
		task.State = Failed
		task.Err = err
		mu.Unlock()
		o.failUnit(u, result, markSkipped)
		return
	}
	o.log("compiling %s", task.Settings.SourcePath)
	ev := trace.Event(task.Settings.SourcePath, worker)
	res, runErr := o.Runner.Run(ctx, process.Invocation{Path: argv[0], Argv: argv[1:]})
	ev.Done()
	mu.Lock()
	task.Result = res
	if runErr != nil || res.ExitCode != 0 {
		task.State = Failed
		task.Err = &CompileFailure{Module: u.Node.Module.Name, Source: task.Settings.SourcePath, ExitCode: res.ExitCode, Err: runErr}
		mu.Unlock()
		o.failUnit(u, result, markSkipped)
		return
	}
	task.State = Succeeded
	u.compileRemaining--
	remaining := u.compileRemaining
	mu.Unlock()

	if remaining == 0 {
		o.afterCompiles(ctx, u, worker, mu, result, markSkipped)
	}
}

// afterCompiles runs once a unit's compile tasks have all finished: the
// resource-compile step (if any), then the link/archive step.
func (o *Orchestrator) afterCompiles(ctx context.Context, u *Unit, worker int, mu *sync.Mutex, result *Result, markSkipped func(*Unit)) {
	mu.Lock()
	failed := u.failed
	mu.Unlock()
	if failed {
		return
	}
	if u.Resource != nil {
		if !o.runResource(ctx, u, worker, mu, result, markSkipped) {
			return
		}
	}
	o.maybeStartLink(ctx, u, worker, mu, result, markSkipped)
}

func (o *Orchestrator) runResource(ctx context.Context, u *Unit, worker int, mu *sync.Mutex, result *Result, markSkipped func(*Unit)) bool {
	u.Resource.State = Running
	argv, err := u.Toolchain.ResourceCompiler.Argv(u.Resource.Settings)
	if err != nil {
		mu.Lock()
		u.Resource.State = Failed
		u.Resource.Err = err
		mu.Unlock()
		o.failUnit(u, result, markSkipped)
		return false
	}
	ev := trace.Event(u.Resource.Settings.SourcePath, worker)
	res, runErr := o.Runner.Run(ctx, process.Invocation{Path: argv[0], Argv: argv[1:]})
	ev.Done()
	mu.Lock()
	u.Resource.Result = res
	if runErr != nil || res.ExitCode != 0 {
		u.Resource.State = Failed
		u.Resource.Err = &CompileFailure{Module: u.Node.Module.Name, Source: u.Resource.Settings.SourcePath, ExitCode: res.ExitCode, Err: runErr}
		mu.Unlock()
		o.failUnit(u, result, markSkipped)
		return false
	}
	u.Resource.State = Succeeded
	mu.Unlock()
	return true
}

func (o *Orchestrator) failUnit(u *Unit, result *Result, markSkipped func(*Unit)) {
	result.Failed = true
	u.failed = true
	markSkipped(u)
}

// maybeStartLink runs u's link task on the calling worker once every dependency module's
// link task has succeeded and u's own compiles (and resource step) are
// done (§4.8 step 2, "a module's link task runs after its own compiles and
// after all its dependencies' link tasks complete").
func (o *Orchestrator) maybeStartLink(ctx context.Context, u *Unit, worker int, mu *sync.Mutex, result *Result, markSkipped func(*Unit)) {
	mu.Lock()
	ready := len(u.depLinksPending) == 0 && u.Link.State == Planned
	mu.Unlock()
	if !ready {
		return
	}
	o.runLinkNow(ctx, u, worker, mu, result, markSkipped)
}

func (o *Orchestrator) runLinkNow(ctx context.Context, u *Unit, worker int, mu *sync.Mutex, result *Result, markSkipped func(*Unit)) {
	mu.Lock()
	if u.Link.State != Planned {
		mu.Unlock()
		return
	}
	u.Link.State = Running
	mu.Unlock()

	argv, err := u.Toolchain.Linker.Argv(u.Link.Settings)
	if err != nil {
		mu.Lock()
		u.Link.State = Failed
		u.Link.Err = err
		mu.Unlock()
		o.failUnit(u, result, markSkipped)
		return
	}
	o.log("linking %s", u.Link.Settings.OutputPath)
	ev := trace.Event(u.Link.Settings.OutputPath, worker)
	res, runErr := o.Runner.Run(ctx, process.Invocation{Path: argv[0], Argv: argv[1:]})
	ev.Done()
	mu.Lock()
	u.Link.Result = res
	if runErr != nil || res.ExitCode != 0 {
		u.Link.State = Failed
		u.Link.Err = &LinkFailure{Module: u.Node.Module.Name, Output: u.Link.Settings.OutputPath, ExitCode: res.ExitCode, Err: runErr}
		mu.Unlock()
		o.failUnit(u, result, markSkipped)
		return
	}
	u.Link.State = Succeeded
	dependents := append([]*Unit(nil), u.dependents...)
	mu.Unlock()

	for _, d := range dependents {
		mu.Lock()
		delete(d.depLinksPending, u.Node.Key)
		readyNow := len(d.depLinksPending) == 0 && d.Link.State == Planned && d.compileRemaining == 0 && !d.failed
		mu.Unlock()
		if readyNow {
			o.runLinkNow(ctx, d, worker, mu, result, markSkipped)
		}
	}
}
