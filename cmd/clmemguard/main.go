// SPDX-License-Identifier: Apache-2.0
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"clmemguard/internal/addrspace"
	"clmemguard/internal/demo"
	"clmemguard/internal/diag"
	"clmemguard/internal/ir"
	"clmemguard/internal/pass"
	"clmemguard/internal/pass/bodymove"
	"clmemguard/internal/pass/bounds"
	"clmemguard/internal/pass/builtin"
	"clmemguard/internal/pass/callsite"
	"clmemguard/internal/pass/checkinject"
	"clmemguard/internal/pass/consolidate"
	"clmemguard/internal/pass/kernelwrap"
	"clmemguard/internal/pass/safety"
	"clmemguard/internal/pass/signature"
)

// config is the optional --config override file (SPEC_FULL.md §2.2):
// address-space renumbering and unsafe built-in list extension, both
// layered on top of the compiled-in defaults rather than replacing
// them.
type config struct {
	AddrSpaceOverrides map[string]int `yaml:"addr_space_overrides"`
	UnsafeBuiltins     []string       `yaml:"unsafe_builtins"`
}

func loadConfig(path string) (config, error) {
	var cfg config
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %q: %w", path, err)
	}
	return cfg, nil
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("clmemguard", flag.ContinueOnError)
	allowUnsafe := fs.Bool("allow-unsafe-exceptions", false, "tolerate missing bounds and unresolved externals instead of aborting")
	addrConv := fs.String("addrspace", "spir", "address-space numbering convention: spir or nvptx")
	configPath := fs.String("config", "", "YAML file overriding address-space numbers and the unsafe built-in list")
	entryFns := fs.String("entry-functions", "", "comma-separated list of functions to keep their original argument shape under permissive mode")
	noColor := fs.Bool("no-color", false, "disable colored diagnostic output")
	verbose := fs.Bool("v", false, "print the IR after every phase transition")

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: clmemguard [flags] <demo-module>\n\ndemo modules: %s\n\nflags:\n", strings.Join(demo.Names, ", "))
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return 1
	}
	moduleName := fs.Arg(0)

	if *noColor || !term.IsTerminal(int(os.Stdout.Fd())) {
		color.NoColor = true
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		color.Red("clmemguard: %s", err)
		return 1
	}

	conv := addrspace.Convention(*addrConv)
	if conv != addrspace.SPIR && conv != addrspace.NVPTX {
		color.Red("clmemguard: unknown --addrspace %q (want spir or nvptx)", *addrConv)
		return 1
	}
	addrTable := addrspace.New(conv)
	for class, number := range cfg.AddrSpaceOverrides {
		addrTable.Override(addrspace.Class(class), number)
	}

	mod, err := demo.Build(moduleName, addrTable)
	if err != nil {
		color.Red("clmemguard: %s", err)
		return 1
	}

	opts := pass.Options{
		AllowUnsafeExceptions: *allowUnsafe,
		EntryFunctions:        parseNameSet(*entryFns),
		AddrTable:             addrTable,
	}
	reporter := &diag.Reporter{Verbose: *verbose}
	ctx := pass.NewContext(opts, reporter)

	pipeline := pass.NewPipeline(os.Stdout, *verbose,
		consolidate.Consolidator{},
		signature.Rewriter{},
		bodymove.Mover{},
		kernelwrap.Builder{},
		bounds.Analyzer{},
		safety.Prover{},
		checkinject.Injector{},
		callsite.Rewriter{ExtraUnsafe: cfg.UnsafeBuiltins},
		builtin.Retargeter{ExtraUnsafe: cfg.UnsafeBuiltins},
	)

	color.Cyan("clmemguard: running %s", moduleName)
	if *verbose {
		fmt.Fprintf(os.Stdout, "  - initial IR (phase %s)\n", mod.Phase)
		fmt.Println(ir.Print(mod))
	}
	if err := pipeline.Run(ctx, mod); err != nil {
		color.Red("clmemguard: pass failed: %s", err)
		return 1
	}
	mod.Advance(ir.PhaseDone)
	if *verbose {
		fmt.Fprintf(os.Stdout, "    done (module now %s)\n", mod.Phase)
		fmt.Println(ir.Print(mod))
	}

	kernelNames := make([]string, len(mod.Kernels()))
	for i, k := range mod.Kernels() {
		kernelNames[i] = k.Name
	}
	color.Green("clmemguard: %s reached phase %s (kernels: %s)", mod.Name, mod.Phase, strings.Join(kernelNames, ", "))
	return 0
}

func parseNameSet(csv string) map[string]bool {
	if csv == "" {
		return nil
	}
	set := map[string]bool{}
	for _, name := range strings.Split(csv, ",") {
		if name = strings.TrimSpace(name); name != "" {
			set[name] = true
		}
	}
	return set
}
