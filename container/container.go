// Package container holds the dispatch table of corgi-rpc: every function a
// server can invoke, keyed by name.
//
// Functions are registered once at startup, before serving begins:
//
//	c := container.New().
//		Register(container.Func2("add",
//			container.P("a", container.TagInt32), container.P("b", container.TagInt32),
//			container.TagInt32, add))
//
// After that the container is only read, so lookups from concurrent dispatch
// goroutines need no locking.
package container

import (
	"context"
	"errors"
	"sort"

	"corgi-rpc/codec"
)

// ErrArgumentCount reports a call whose argument count differs from the
// function's declared parameters.
var ErrArgumentCount = errors.New("container: argument count does not match parameters")

// TypeTag names the type of a parameter or return value. Tags are compared
// structurally; they carry no runtime type identity.
type TypeTag string

const (
	TagNone    TypeTag = ""
	TagBool    TypeTag = "bool"
	TagInt32   TypeTag = "i32"
	TagInt64   TypeTag = "i64"
	TagUint32  TypeTag = "u32"
	TagUint64  TypeTag = "u64"
	TagFloat32 TypeTag = "f32"
	TagFloat64 TypeTag = "f64"
	TagString  TypeTag = "string"
	TagBytes   TypeTag = "bytes"
)

// Param describes one formal argument.
type Param struct {
	Name string
	Type TypeTag
}

// P is shorthand for a Param literal.
func P(name string, tag TypeTag) Param {
	return Param{Name: name, Type: tag}
}

// Handler decodes the argument buffers with c, runs the function and returns
// the encoded result. A Handler is shared by every dispatch goroutine and may
// be invoked concurrently.
type Handler func(ctx context.Context, args [][]byte, c codec.Codec) ([]byte, error)

// RpcFunction is the registrable descriptor of one invocable function.
type RpcFunction struct {
	Name       string
	Params     []Param
	ReturnType TypeTag // TagNone when the function returns nothing
	Handler    Handler
}

// HasReturn reports whether the function declares a return value.
func (f *RpcFunction) HasReturn() bool {
	return f.ReturnType != TagNone
}

// CheckArity returns ErrArgumentCount unless n matches the parameter count.
func (f *RpcFunction) CheckArity(n int) error {
	if n != len(f.Params) {
		return &ArityError{Function: f.Name, Want: len(f.Params), Got: n}
	}
	return nil
}

// Container maps function names to descriptors.
type Container struct {
	functions map[string]*RpcFunction
}

func New() *Container {
	return &Container{functions: make(map[string]*RpcFunction)}
}

// Register adds fn unless a function with the same name is already present;
// the first registration wins and later ones are silently ignored.
// Register must not be called once the container is serving.
func (c *Container) Register(fn *RpcFunction) *Container {
	if fn == nil || fn.Handler == nil {
		return c
	}
	if _, ok := c.functions[fn.Name]; !ok {
		c.functions[fn.Name] = fn
	}
	return c
}

// Find looks up a function by name.
func (c *Container) Find(name string) (*RpcFunction, bool) {
	fn, ok := c.functions[name]
	return fn, ok
}

// Names returns the registered function names in sorted order.
func (c *Container) Names() []string {
	names := make([]string, 0, len(c.functions))
	for name := range c.functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *Container) Len() int {
	return len(c.functions)
}
