// Package builtins provides the host functions and constants available to
// every Flitter program. Static entries are pure and safe for constant
// folding by the partial evaluator; dynamic entries consume the live run
// Context and are never folded.
package builtins

import (
	"math"
	"strings"

	"github.com/jonathonfletcher/flitter/model"
)

// Static maps names to pure values: constants and foldable functions.
var Static = map[string]model.Vector{}

// Dynamic maps names to context-consuming functions.
var Dynamic = map[string]model.Vector{}

func static(name string, params []string, fn func(args []model.Vector) (model.Vector, error)) {
	Static[name] = model.BuiltinVector(&model.Builtin{Name: name, Params: params, Fn: fn})
}

func dynamic(name string, fn func(ctx *model.Context, kwargs map[string]model.Vector, args []model.Vector) (model.Vector, error)) {
	Dynamic[name] = model.ContextBuiltinVector(&model.ContextBuiltin{Name: name, Fn: fn})
}

// unary registers a function applying op to every element of its argument.
// Non-numeric arguments yield null.
func unary(name string, op func(float64) float64) {
	static(name, []string{"xs"}, func(args []model.Vector) (model.Vector, error) {
		if len(args) != 1 || !args[0].IsNumeric() {
			return model.Null, nil
		}
		xs := args[0].Numbers()
		out := make([]float64, len(xs))
		for i, x := range xs {
			out[i] = op(x)
		}
		return model.NewFloats(out), nil
	})
}

func scalarArg(args []model.Vector, i int, fallback float64) float64 {
	if i < len(args) {
		if x, ok := args[i].AsFloat(); ok {
			return x
		}
	}
	return fallback
}

const tau = 2 * math.Pi

func init() {
	Static["null"] = model.Null
	Static["true"] = model.True
	Static["false"] = model.False
	Static["inf"] = model.NewFloat(math.Inf(1))
	Static["nan"] = model.NewFloat(math.NaN())
	Static["pi"] = model.NewFloat(math.Pi)
	Static["tau"] = model.NewFloat(tau)

	unary("sqrt", math.Sqrt)
	unary("exp", math.Exp)
	unary("log", math.Log)
	unary("log2", math.Log2)
	unary("log10", math.Log10)
	unary("abs", math.Abs)
	unary("round", math.Round)
	unary("ceil", math.Ceil)
	unary("floor", math.Floor)
	unary("fract", func(x float64) float64 { return x - math.Floor(x) })
	unary("sign", func(x float64) float64 {
		switch {
		case x > 0:
			return 1
		case x < 0:
			return -1
		}
		return 0
	})

	// Angles are measured in turns throughout, matching the rest of the
	// engine's waveform conventions.
	unary("sin", func(x float64) float64 { return math.Sin(x * tau) })
	unary("cos", func(x float64) float64 { return math.Cos(x * tau) })
	unary("tan", func(x float64) float64 { return math.Tan(x * tau) })
	unary("asin", func(x float64) float64 { return math.Asin(x) / tau })
	unary("acos", func(x float64) float64 { return math.Acos(x) / tau })

	static("hypot", []string{"xs"}, func(args []model.Vector) (model.Vector, error) {
		total := 0.0
		for _, arg := range args {
			if !arg.IsNumeric() {
				return model.Null, nil
			}
			for _, x := range arg.Numbers() {
				total += x * x
			}
		}
		return model.NewFloat(math.Sqrt(total)), nil
	})

	static("angle", []string{"x", "y"}, func(args []model.Vector) (model.Vector, error) {
		var x, y float64
		switch {
		case len(args) == 1 && args[0].IsNumeric() && args[0].Len() == 2:
			x, y = args[0].Numbers()[0], args[0].Numbers()[1]
		case len(args) == 2:
			ok1, ok2 := false, false
			x, ok1 = args[0].AsFloat()
			y, ok2 = args[1].AsFloat()
			if !ok1 || !ok2 {
				return model.Null, nil
			}
		default:
			return model.Null, nil
		}
		return model.NewFloat(math.Atan2(y, x) / tau), nil
	})

	static("length", []string{"xs"}, func(args []model.Vector) (model.Vector, error) {
		if len(args) != 1 {
			return model.Null, nil
		}
		return model.NewInt(args[0].Len()), nil
	})

	static("sum", []string{"xs"}, func(args []model.Vector) (model.Vector, error) {
		total := 0.0
		for _, arg := range args {
			if !arg.IsNumeric() {
				return model.Null, nil
			}
			for _, x := range arg.Numbers() {
				total += x
			}
		}
		return model.NewFloat(total), nil
	})

	static("product", []string{"xs"}, func(args []model.Vector) (model.Vector, error) {
		total := 1.0
		for _, arg := range args {
			if !arg.IsNumeric() {
				return model.Null, nil
			}
			for _, x := range arg.Numbers() {
				total *= x
			}
		}
		return model.NewFloat(total), nil
	})

	static("min", []string{"xs"}, minMax(-1))
	static("max", []string{"xs"}, minMax(1))

	static("mean", []string{"xs"}, func(args []model.Vector) (model.Vector, error) {
		total, count := 0.0, 0
		for _, arg := range args {
			if !arg.IsNumeric() {
				return model.Null, nil
			}
			for _, x := range arg.Numbers() {
				total += x
				count++
			}
		}
		if count == 0 {
			return model.Null, nil
		}
		return model.NewFloat(total / float64(count)), nil
	})

	static("clamp", []string{"xs", "lo", "hi"}, func(args []model.Vector) (model.Vector, error) {
		if len(args) < 1 || !args[0].IsNumeric() {
			return model.Null, nil
		}
		lo := scalarArg(args, 1, 0)
		hi := scalarArg(args, 2, 1)
		xs := args[0].Numbers()
		out := make([]float64, len(xs))
		for i, x := range xs {
			out[i] = math.Min(math.Max(x, lo), hi)
		}
		return model.NewFloats(out), nil
	})

	static("lerp", []string{"t", "a", "b"}, func(args []model.Vector) (model.Vector, error) {
		if len(args) != 3 {
			return model.Null, nil
		}
		t, a, b := args[0], args[1], args[2]
		return b.Sub(a).MulAdd(t, a), nil
	})

	static("str", []string{"xs"}, func(args []model.Vector) (model.Vector, error) {
		if len(args) != 1 {
			return model.Null, nil
		}
		return model.NewString(args[0].AsString()), nil
	})

	static("split", []string{"text", "separator"}, func(args []model.Vector) (model.Vector, error) {
		if len(args) < 1 {
			return model.Null, nil
		}
		text := args[0].AsString()
		separator := "\n"
		if len(args) > 1 {
			separator = args[1].AsString()
		}
		parts := strings.Split(strings.TrimSuffix(text, separator), separator)
		objs := make([]model.Object, len(parts))
		for i, part := range parts {
			objs[i] = part
		}
		return model.NewObjects(objs), nil
	})

	static("ord", []string{"text"}, func(args []model.Vector) (model.Vector, error) {
		if len(args) != 1 {
			return model.Null, nil
		}
		runes := []rune(args[0].AsString())
		out := make([]float64, len(runes))
		for i, r := range runes {
			out[i] = float64(r)
		}
		return model.NewFloats(out), nil
	})

	static("chr", []string{"codes"}, func(args []model.Vector) (model.Vector, error) {
		if len(args) != 1 || !args[0].IsNumeric() {
			return model.Null, nil
		}
		var b strings.Builder
		for _, x := range args[0].Numbers() {
			b.WriteRune(rune(int(x)))
		}
		return model.NewString(b.String()), nil
	})

	dynamic("debug", func(ctx *model.Context, kwargs map[string]model.Vector, args []model.Vector) (model.Vector, error) {
		value := model.Compose(args)
		ctx.AddLog(value.Repr())
		return value, nil
	})
}

func minMax(direction int) func(args []model.Vector) (model.Vector, error) {
	return func(args []model.Vector) (model.Vector, error) {
		best := math.NaN()
		seen := false
		for _, arg := range args {
			if !arg.IsNumeric() {
				return model.Null, nil
			}
			for _, x := range arg.Numbers() {
				if !seen || (direction > 0 && x > best) || (direction < 0 && x < best) {
					best = x
					seen = true
				}
			}
		}
		if !seen {
			return model.Null, nil
		}
		return model.NewFloat(best), nil
	}
}
