package model

import (
	"github.com/hashicorp/go-multierror"
)

// RootKind is the kind of the implicit root node every run emits into.
const RootKind = "root"

// Context is the per-run accumulator: the global bindings a program
// produced, the scene graph it emitted, its pragmas, and the errors and
// logs recorded along the way. Imported modules run in child contexts that
// share everything except Variables and Path; the Parent chain is used to
// detect circular imports.
type Context struct {
	State     *StateDict
	Variables map[string]Vector
	Graph     *Node
	Pragmas   map[string]Vector
	Path      string
	Parent    *Context

	errors map[string]struct{}
	logs   map[string]struct{}
	// shared with child contexts so module errors surface on the root run
	errorList *[]string
	logList   *[]string
}

// NewContext returns a fresh context with an empty root graph. A nil state
// is replaced with an empty StateDict.
func NewContext(state *StateDict) *Context {
	if state == nil {
		state = NewStateDict()
	}
	return &Context{
		State:     state,
		Variables: make(map[string]Vector),
		Graph:     NewNode(RootKind),
		Pragmas:   make(map[string]Vector),
		errors:    make(map[string]struct{}),
		logs:      make(map[string]struct{}),
		errorList: new([]string),
		logList:   new([]string),
	}
}

// Child returns a context for executing an imported module: state, graph,
// pragmas, errors and logs are shared, variables are fresh, and the parent
// pointer records the import chain.
func (c *Context) Child(path string) *Context {
	return &Context{
		State:     c.State,
		Variables: make(map[string]Vector),
		Graph:     c.Graph,
		Pragmas:   c.Pragmas,
		Path:      path,
		Parent:    c,
		errors:    c.errors,
		logs:      c.logs,
		errorList: c.errorList,
		logList:   c.logList,
	}
}

// InImportChain reports whether path is already being executed somewhere up
// the parent chain, indicating a circular import.
func (c *Context) InImportChain(path string) bool {
	for ctx := c; ctx != nil; ctx = ctx.Parent {
		if ctx.Path == path {
			return true
		}
	}
	return false
}

// AddError records an error message; duplicates are ignored.
func (c *Context) AddError(msg string) {
	if _, ok := c.errors[msg]; ok {
		return
	}
	c.errors[msg] = struct{}{}
	*c.errorList = append(*c.errorList, msg)
}

// HasErrors reports whether any error was recorded.
func (c *Context) HasErrors() bool {
	return len(c.errors) > 0
}

// Errors returns the recorded error messages in first-seen order.
func (c *Context) Errors() []string {
	return *c.errorList
}

// Err aggregates the recorded errors into a single error value, nil when
// the run was clean.
func (c *Context) Err() error {
	if len(*c.errorList) == 0 {
		return nil
	}
	var result *multierror.Error
	for _, msg := range *c.errorList {
		result = multierror.Append(result, &RunError{Message: msg})
	}
	return result.ErrorOrNil()
}

// AddLog records a log line; duplicates are ignored.
func (c *Context) AddLog(msg string) {
	if _, ok := c.logs[msg]; ok {
		return
	}
	c.logs[msg] = struct{}{}
	*c.logList = append(*c.logList, msg)
}

// Logs returns the recorded log lines in first-seen order.
func (c *Context) Logs() []string {
	return *c.logList
}

// RunError is a single error recorded during a run.
type RunError struct {
	Message string
}

func (e *RunError) Error() string {
	return e.Message
}
