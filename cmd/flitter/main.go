// Command flitter is the engine's development harness: it runs and
// disassembles a built-in demonstration program so the evaluator, compiler
// and VM can be exercised and timed without a rendering host attached.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/jonathonfletcher/flitter/ast"
	"github.com/jonathonfletcher/flitter/compiler"
	"github.com/jonathonfletcher/flitter/model"
	"github.com/jonathonfletcher/flitter/program"
	"github.com/jonathonfletcher/flitter/vm"
)

var (
	verbose  bool
	simplify bool
	frames   int
)

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	root := &cobra.Command{
		Use:   "flitter",
		Short: "Flitter language engine harness",
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	root.PersistentFlags().BoolVar(&simplify, "simplify", true, "partially evaluate before compiling")

	demo := &cobra.Command{
		Use:   "demo",
		Short: "Run the demonstration program and print the resulting graph",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(log)
		},
	}
	demo.Flags().IntVarP(&frames, "frames", "n", 1, "number of frames to evaluate")

	dis := &cobra.Command{
		Use:   "dis",
		Short: "Disassemble the demonstration program",
		RunE: func(cmd *cobra.Command, args []string) error {
			prog, err := buildDemo()
			if err != nil {
				return err
			}
			program.Disassemble(os.Stdout, prog)
			return nil
		},
	}

	bench := &cobra.Command{
		Use:   "bench",
		Short: "Time repeated frame evaluations of the demonstration program",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBench(log)
		},
	}
	bench.Flags().IntVarP(&frames, "frames", "n", 1000, "number of frames to evaluate")

	root.AddCommand(demo, dis, bench)
	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

// demoProgram builds a frame-varying scene: a ring of dots whose radius
// pulses with the beat variable supplied per frame.
func demoProgram() *ast.Top {
	dot := &ast.Attributes{
		Node: &ast.Literal{Value: model.NewNodeVector(model.NewNode("dot"))},
		Bindings: []ast.Binding{
			{Name: "angle", Expr: &ast.Divide{Left: &ast.Name{Name: "i"}, Right: ast.NumberLiteral(12)}},
			{Name: "radius", Expr: &ast.Add{
				Left:  ast.NumberLiteral(100),
				Right: &ast.Multiply{Left: ast.NumberLiteral(20), Right: &ast.Name{Name: "beat"}},
			}},
		},
	}
	ring := &ast.Append{
		Node: &ast.Attributes{
			Node:     &ast.Literal{Value: model.NewNodeVector(model.NewNode("group", "ring"))},
			Bindings: []ast.Binding{{Name: "size", Expr: &ast.Literal{Value: model.NewFloats([]float64{640, 480})}}},
		},
		Children: &ast.For{
			Names:  []string{"i"},
			Source: &ast.Range{Stop: ast.NumberLiteral(12)},
			Body:   dot,
		},
	}
	return &ast.Top{Body: []ast.Expression{
		&ast.Let{Bindings: []ast.PolyBinding{{Names: []string{"speed"}, Expr: ast.NumberLiteral(2)}}},
		&ast.Pragma{Name: "fps", Expr: ast.NumberLiteral(60)},
		ring,
	}}
}

func buildDemo() (*program.Program, error) {
	top := demoProgram()
	if simplify {
		simplified, report := ast.Simplify(top, &ast.SimplifyOptions{Dynamic: []string{"beat"}})
		for _, msg := range report.Errors {
			fmt.Fprintln(os.Stderr, "simplify:", msg)
		}
		top = simplified.(*ast.Top)
	}
	prog, err := compiler.Compile(top)
	if err != nil {
		return nil, err
	}
	prog.SetPath("demo.fl")
	return prog, nil
}

func runDemo(log zerolog.Logger) error {
	prog, err := buildDemo()
	if err != nil {
		return err
	}
	machine := newMachine(log)
	state := model.NewStateDict()
	var ctx *model.Context
	for frame := 0; frame < frames; frame++ {
		ctx, err = machine.Run(prog, state, frameVariables(frame))
		if err != nil {
			return err
		}
	}
	fmt.Print(ctx.Graph.Repr())
	for _, msg := range ctx.Errors() {
		log.Warn().Msg(msg)
	}
	return nil
}

func runBench(log zerolog.Logger) error {
	prog, err := buildDemo()
	if err != nil {
		return err
	}
	machine := vm.New()
	state := model.NewStateDict()
	started := time.Now()
	for frame := 0; frame < frames; frame++ {
		if _, err := machine.Run(prog, state, frameVariables(frame)); err != nil {
			return err
		}
	}
	elapsed := time.Since(started)
	log.Info().
		Int("frames", frames).
		Dur("elapsed", elapsed).
		Float64("fps", float64(frames)/elapsed.Seconds()).
		Msg("bench complete")
	return nil
}

func frameVariables(frame int) map[string]model.Vector {
	return map[string]model.Vector{
		"beat": model.NewFloat(float64(frame) / 30),
	}
}

func newMachine(log zerolog.Logger) *vm.Machine {
	if verbose {
		return vm.New(vm.WithTracer(&vm.LogTracer{Logger: log.Level(zerolog.TraceLevel)}))
	}
	return vm.New()
}
