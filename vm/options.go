package vm

import (
	"github.com/rs/zerolog"

	"github.com/jonathonfletcher/flitter/program"
)

// Option configures a Machine.
type Option func(*Machine)

// WithLoader installs the source loader used by import statements.
func WithLoader(loader SourceLoader) Option {
	return func(m *Machine) {
		m.loader = loader
	}
}

// Tracer receives a callback before every instruction executes. Tracing is
// a debugging aid installed explicitly by the host; with no tracer the VM
// produces no output of its own.
type Tracer interface {
	OnStep(pc int, instr program.Instruction, stackDepth int)
}

// WithTracer installs an instruction tracer.
func WithTracer(tracer Tracer) Option {
	return func(m *Machine) {
		m.tracer = tracer
	}
}

// LogTracer traces instructions to a zerolog logger at trace level.
type LogTracer struct {
	Logger zerolog.Logger
}

func (t *LogTracer) OnStep(pc int, instr program.Instruction, stackDepth int) {
	t.Logger.Trace().
		Int("pc", pc).
		Str("instr", instr.String()).
		Int("stack", stackDepth).
		Send()
}
