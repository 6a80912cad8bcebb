// graphdump compiles the functions of a program description and prints their
// graphs.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v2"

	"github.com/bnb-chain/midtier/core/compiler"
	"github.com/bnb-chain/midtier/core/feedback"
)

var (
	configFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "TOML pipeline configuration file",
	}
	functionFlag = &cli.StringFlag{
		Name:    "function",
		Aliases: []string{"f"},
		Usage:   "compile only this function (default: all)",
	}
	formatFlag = &cli.StringFlag{
		Name:  "format",
		Usage: "output format: text, table, dot or svg",
		Value: "text",
	}
	outFlag = &cli.StringFlag{
		Name:    "out",
		Aliases: []string{"o"},
		Usage:   "output file (default: stdout)",
	}
	noInlineFlag = &cli.BoolFlag{
		Name:  "no-inline",
		Usage: "disable inlining",
	}
	noAllocFlag = &cli.BoolFlag{
		Name:  "no-alloc",
		Usage: "omit register locations from text dumps",
	}
	bestEffortFlag = &cli.BoolFlag{
		Name:  "best-effort",
		Usage: "print partial graphs of functions with unsupported bytecodes",
	}
	verbosityFlag = &cli.IntFlag{
		Name:  "verbosity",
		Usage: "log level: 0=silent, 1=error, 2=warn, 3=info, 4=debug, 5=trace",
		Value: 2,
	}
	dumpConfigFlag = &cli.BoolFlag{
		Name:  "dumpconfig",
		Usage: "print the effective configuration and exit",
	}
)

func main() {
	app := &cli.App{
		Name:      "graphdump",
		Usage:     "build and register-allocate graphs for a program description",
		ArgsUsage: "<program.toml>",
		Flags: []cli.Flag{
			configFlag,
			functionFlag,
			formatFlag,
			outFlag,
			noInlineFlag,
			noAllocFlag,
			bestEffortFlag,
			verbosityFlag,
			dumpConfigFlag,
		},
		Before: setupLogging,
		Action: dump,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "graphdump: %v\n", err)
		os.Exit(1)
	}
}

func setupLogging(ctx *cli.Context) error {
	var (
		output   = io.Writer(os.Stderr)
		useColor = (isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())) && os.Getenv("TERM") != "dumb"
	)
	if useColor {
		output = colorable.NewColorableStderr()
	}
	level := log.FromLegacyLevel(ctx.Int(verbosityFlag.Name))
	log.SetDefault(log.NewLogger(log.NewTerminalHandlerWithLevel(output, level, useColor)))
	if level <= log.LevelDebug {
		compiler.EnableDebugLogs(true)
	}
	return nil
}

func loadConfig(ctx *cli.Context) (compiler.Config, error) {
	cfg := compiler.DefaultConfig
	if file := ctx.String(configFlag.Name); file != "" {
		if err := compiler.LoadConfig(file, &cfg); err != nil {
			return cfg, err
		}
	}
	if ctx.Bool(noInlineFlag.Name) {
		cfg.Inlining = false
	}
	return cfg, nil
}

func dump(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	if ctx.Bool(dumpConfigFlag.Name) {
		out, err := compiler.EncodeTOML(cfg)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(out)
		return err
	}
	if ctx.NArg() != 1 {
		return fmt.Errorf("expected one program file, got %d arguments", ctx.NArg())
	}
	prog, err := compiler.LoadProgram(ctx.Args().First())
	if err != nil {
		return err
	}
	fns := prog.Functions
	if name := ctx.String(functionFlag.Name); name != "" {
		fn, ok := prog.Function(name)
		if !ok {
			return fmt.Errorf("no function %q in %s", name, ctx.Args().First())
		}
		fns = []*feedback.JSFunction{fn}
	}
	render, ok := renderers[ctx.String(formatFlag.Name)]
	if !ok {
		return fmt.Errorf("unknown format %q (use text, table, dot or svg)", ctx.String(formatFlag.Name))
	}

	compiler.SetBestEffort(ctx.Bool(bestEffortFlag.Name))
	c, err := compiler.New(cfg, prog.Broker)
	if err != nil {
		return err
	}
	defer c.Close()

	log.Info("Compiling program", "functions", len(fns), "workers", cfg.Workers, "inlining", cfg.Inlining)
	outcomes := c.CompileBatch(context.Background(), fns)

	w := io.Writer(os.Stdout)
	if file := ctx.String(outFlag.Name); file != "" {
		f, err := os.Create(file)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	opts := renderOptions{allocation: !ctx.Bool(noAllocFlag.Name), color: w == io.Writer(os.Stdout)}
	if err := render(w, fns, outcomes, opts); err != nil {
		return err
	}
	failed := 0
	for i, o := range outcomes {
		if o.Err != nil {
			log.Error("Compilation failed", "fn", fns[i].Name(), "err", o.Err)
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d functions failed", failed, len(fns))
	}
	return nil
}
