// Command ebuild drives the module-graph build pipeline: load a root
// module definition, instance its dependency graph, plan compile/link
// tasks, and run them on a worker pool, following the teacher's
// cmd/distri verb-dispatch shape (distri.go's verbs map).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"strings"

	"golang.org/x/xerrors"

	ebuild "github.com/yldrefruz/ebuild"
	"github.com/yldrefruz/ebuild/internal/driver/gcc"
	"github.com/yldrefruz/ebuild/internal/driver/msvc"
	"github.com/yldrefruz/ebuild/internal/env"
	"github.com/yldrefruz/ebuild/internal/generate"
	"github.com/yldrefruz/ebuild/internal/graph"
	"github.com/yldrefruz/ebuild/internal/instance"
	"github.com/yldrefruz/ebuild/internal/loader"
	"github.com/yldrefruz/ebuild/internal/logging"
	"github.com/yldrefruz/ebuild/internal/module"
	"github.com/yldrefruz/ebuild/internal/orchestrate"
	"github.com/yldrefruz/ebuild/internal/platform"
	"github.com/yldrefruz/ebuild/internal/process"
	"github.com/yldrefruz/ebuild/internal/registry"
	"github.com/yldrefruz/ebuild/internal/toolchain"
	"github.com/yldrefruz/ebuild/internal/trace"
)

var (
	cpuprofile = flag.String("cpuprofile", "", "path to store a CPU profile at")
	ctracefile = flag.String("ctracefile", "", "path to store a Chrome trace event file (chrome://tracing) of compile/link tasks at")
	debug      = flag.Bool("debug", false, "enable debug mode: format error messages with additional detail")
)

// usageError marks an argument-validation failure (bad flags, wrong
// positional-argument count, unknown verb/subverb) as distinct from a
// build/check failure, so main() can map it to exit code 2 rather than 1
// ("0 ok; 1 build failure; 2 usage").
type usageError struct{ msg string }

func (e *usageError) Error() string { return e.msg }

func usagef(format string, a ...any) error {
	return &usageError{msg: fmt.Sprintf(format, a...)}
}

// optionFlags accumulates repeated -option k=v occurrences into a
// map[string]string suitable for module.Reference.Options.
type optionFlags map[string]string

func (o optionFlags) String() string {
	if o == nil {
		return ""
	}
	parts := make([]string, 0, len(o))
	for k, v := range o {
		parts = append(parts, k+"="+v)
	}
	return strings.Join(parts, ",")
}

func (o optionFlags) Set(s string) error {
	k, v, ok := strings.Cut(s, "=")
	if !ok {
		return usagef("-option %q: want k=v", s)
	}
	o[k] = v
	return nil
}

// environment is the process-wide bootstrap state every verb shares:
// frozen registries plus the module loader.
type environment struct {
	platforms  *registry.Registry[platform.Platform]
	toolchains *registry.Registry[toolchain.Toolchain]
	loader     loader.Loader
}

func bootstrap() (*environment, error) {
	platforms := registry.New[platform.Platform]()
	for _, p := range platform.Builtins() {
		if err := platforms.Register(p.Name, p); err != nil {
			return nil, err
		}
	}
	platforms.Freeze()

	toolchains := registry.New[toolchain.Toolchain]()
	for _, tc := range toolchain.Builtins(
		gcc.Compiler{}, gcc.Linker{},
		msvc.Compiler{}, msvc.Linker{}, msvc.ResourceCompiler{},
	) {
		if err := toolchains.Register(tc.Name, tc); err != nil {
			return nil, err
		}
	}
	toolchains.Freeze()

	return &environment{platforms: platforms, toolchains: toolchains, loader: loader.YAMLLoader{}}, nil
}

func (e *environment) resolvePlatform(name string) (platform.Platform, error) {
	if name == "" {
		name = "Unix"
	}
	return e.platforms.Get(name)
}

func buildGraph(e *environment, rootPath, targetPlatformName, toolchainOverride string, options map[string]string, watching bool) (*graph.Graph, platform.Platform, error) {
	hostPlatform, err := e.resolvePlatform("Unix")
	if err != nil {
		return nil, platform.Platform{}, err
	}
	targetPlatform, err := e.resolvePlatform(targetPlatformName)
	if err != nil {
		return nil, platform.Platform{}, err
	}

	ctx := &instance.Context{
		Loader:         e.loader,
		Transformers:   registry.New[instance.Transformer](),
		HostPlatform:   hostPlatform,
		TargetPlatform: targetPlatform,
		ToolchainHint:  toolchainOverride,
		Watching:       watching,
	}
	b := &graph.Builder{InstanceCtx: ctx, Cache: instance.NewCache()}
	g, cycles, err := b.Build(module.Reference{Path: rootPath, Options: options}, graph.ModeBuild)
	if err != nil {
		return nil, targetPlatform, err
	}
	if len(cycles) > 0 {
		return nil, targetPlatform, xerrors.Errorf("%d circular dependency chain(s) detected", len(cycles))
	}
	g.Propagate()
	return g, targetPlatform, nil
}

func cmdBuild(ctx context.Context, e *environment, args []string) error {
	fs := flag.NewFlagSet("build", flag.ContinueOnError)
	options := optionFlags{}
	var (
		targetName   = fs.String("target", "Unix", "target platform name (Unix | Win32)")
		toolchain_   = fs.String("toolchain", "", "override toolchain name for every module in the graph")
		intermediate = fs.String("intermediate-dir", env.CacheDir, "directory to write compiled objects and archives under")
		jobs         = fs.Int("jobs", runtime.NumCPU(), "maximum number of concurrent compiles")
		clean        = fs.Bool("clean", false, "remove each module's intermediate directory before building")
		watch        = fs.Bool("watch", false, "mark the instancing context as watching (passthrough metadata; no watcher is run)")
	)
	fs.Var(options, "option", "module option as k=v; may be repeated")
	if err := fs.Parse(args); err != nil {
		return usagef("%v", err)
	}
	if fs.NArg() != 1 {
		return usagef("usage: ebuild build <module-path> [--debug] [--clean] [--jobs N] [--target platform] [--toolchain name] [--option k=v]*")
	}
	modulePath := fs.Arg(0)

	g, targetPlatform, err := buildGraph(e, modulePath, *targetName, *toolchain_, options, *watch)
	if err != nil {
		return err
	}

	planner := orchestrate.Planner{
		Selector:        toolchain.Selector{Registry: e.toolchains},
		TargetPlatform:  targetPlatform,
		CLIToolchain:    *toolchain_,
		IntermediateDir: *intermediate,
		Clean:           *clean,
	}
	plan, err := planner.Plan(g)
	if err != nil {
		return err
	}

	logger := logging.Default()
	o := &orchestrate.Orchestrator{Runner: &process.Exec{}, Jobs: *jobs, Logger: logger.Func()}
	result, err := o.Run(ctx, plan)
	if err != nil {
		return err
	}
	if result.Cancelled {
		return xerrors.Errorf("build cancelled")
	}
	if result.Failed {
		return xerrors.Errorf("build failed")
	}
	return nil
}

func cmdCheck(ctx context.Context, e *environment, args []string) error {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return usagef("%v", err)
	}
	if fs.NArg() < 1 || fs.Arg(0) != "circular-dependency" {
		return usagef("usage: ebuild check circular-dependency <module-path>")
	}
	rest := fs.Args()[1:]
	if len(rest) != 1 {
		return usagef("usage: ebuild check circular-dependency <module-path>")
	}
	modulePath := rest[0]

	hostPlatform, err := e.resolvePlatform("Unix")
	if err != nil {
		return err
	}
	targetPlatform, err := e.resolvePlatform("Unix")
	if err != nil {
		return err
	}
	ictx := &instance.Context{
		Loader:         e.loader,
		Transformers:   registry.New[instance.Transformer](),
		HostPlatform:   hostPlatform,
		TargetPlatform: targetPlatform,
	}
	b := &graph.Builder{InstanceCtx: ictx, Cache: instance.NewCache()}
	_, cycles, err := b.Build(module.Reference{Path: modulePath}, graph.ModeCheck)
	if err != nil {
		return err
	}
	if len(cycles) == 0 {
		fmt.Println("no circular dependencies")
		return nil
	}
	for _, c := range cycles {
		fmt.Println(c.Error())
	}
	return xerrors.Errorf("%d circular dependency chain(s) detected", len(cycles))
}

func cmdGenerate(ctx context.Context, e *environment, args []string) error {
	fs := flag.NewFlagSet("generate", flag.ContinueOnError)
	options := optionFlags{}
	var (
		targetName   = fs.String("target", "Unix", "target platform name (Unix | Win32)")
		intermediate = fs.String("intermediate-dir", env.CacheDir, "directory to write compiled objects and archives under")
	)
	fs.Var(options, "option", "module option as k=v; may be repeated")
	if err := fs.Parse(args); err != nil {
		return usagef("%v", err)
	}
	if fs.NArg() < 1 || fs.Arg(0) != "compile_commands.json" {
		return usagef("usage: ebuild generate compile_commands.json <module-path> [--target …] [--option …]")
	}
	rest := fs.Args()[1:]
	if len(rest) != 1 {
		return usagef("usage: ebuild generate compile_commands.json <module-path> [--target …] [--option …]")
	}
	modulePath := rest[0]

	g, targetPlatform, err := buildGraph(e, modulePath, *targetName, "", options, false)
	if err != nil {
		return err
	}
	planner := orchestrate.Planner{
		Selector:        toolchain.Selector{Registry: e.toolchains},
		TargetPlatform:  targetPlatform,
		IntermediateDir: *intermediate,
	}
	plan, err := planner.Plan(g)
	if err != nil {
		return err
	}
	entries, err := generate.CompileCommandsJSON(plan)
	if err != nil {
		return err
	}
	out := filepath.Join(filepath.Dir(modulePath), "compile_commands.json")
	return generate.WriteCompileCommandsJSON(out, entries)
}

func cmdProperty(ctx context.Context, e *environment, args []string) error {
	fs := flag.NewFlagSet("property", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return usagef("%v", err)
	}
	if fs.NArg() != 2 {
		return usagef("usage: ebuild property <module-path> <property-name>")
	}
	modulePath, name := fs.Arg(0), fs.Arg(1)

	g, _, err := buildGraph(e, modulePath, "Unix", "", nil, false)
	if err != nil {
		return err
	}
	root := g.Root
	var values []string
	switch name {
	case "includes":
		values = root.EffectiveIncludes()
	case "definitions":
		for _, d := range root.EffectiveDefinitions() {
			values = append(values, d.Name+"="+d.Value)
		}
	case "libraries":
		values = root.EffectiveLibraries()
	default:
		return usagef("unknown property %q", name)
	}
	for _, v := range values {
		fmt.Println(v)
	}
	return nil
}

func run() error {
	flag.Parse()

	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			return err
		}
		pprof.StartCPUProfile(f)
		defer pprof.StopCPUProfile()
	}

	if *ctracefile != "" {
		f, err := os.Create(*ctracefile)
		if err != nil {
			return err
		}
		defer f.Close()
		trace.Sink(f)
	}

	e, err := bootstrap()
	if err != nil {
		return err
	}

	type cmd struct {
		fn func(ctx context.Context, e *environment, args []string) error
	}
	verbs := map[string]cmd{
		"build":    {cmdBuild},
		"check":    {cmdCheck},
		"generate": {cmdGenerate},
		"property": {cmdProperty},
	}

	args := flag.Args()
	verb := "build"
	if len(args) > 0 {
		verb, args = args[0], args[1:]
	}

	v, ok := verbs[verb]
	if !ok {
		return usagef("unknown command %q; syntax: ebuild <build|check|generate|property> [options]", verb)
	}

	ctx, canc := ebuild.InterruptibleContext()
	defer canc()
	if err := v.fn(ctx, e, args); err != nil {
		var ue *usageError
		if xerrors.As(err, &ue) {
			return ue
		}
		if *debug {
			return xerrors.Errorf("%s: %+v", verb, err)
		}
		return fmt.Errorf("%s: %v", verb, err)
	}
	return ebuild.RunAtExit()
}

func main() {
	err := run()
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, err)
	var ue *usageError
	if xerrors.As(err, &ue) {
		os.Exit(2)
	}
	os.Exit(1)
}
