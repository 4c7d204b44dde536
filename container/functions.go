package container

import (
	"context"
	"fmt"

	"corgi-rpc/codec"
)

// ArityError is returned when a call carries the wrong number of arguments.
// It matches ErrArgumentCount with errors.Is.
type ArityError struct {
	Function string
	Want     int
	Got      int
}

func (e *ArityError) Error() string {
	return fmt.Sprintf("container: %s takes %d arguments, got %d", e.Function, e.Want, e.Got)
}

func (e *ArityError) Is(target error) bool {
	return target == ErrArgumentCount
}

func decodeArg[T any](c codec.Codec, fn string, i int, data []byte) (T, error) {
	var v T
	if err := c.Decode(data, &v); err != nil {
		return v, fmt.Errorf("%s argument %d: %w", fn, i, err)
	}
	return v, nil
}

func newFunction(name string, params []Param, ret TypeTag, h Handler) *RpcFunction {
	return &RpcFunction{Name: name, Params: params, ReturnType: ret, Handler: h}
}

func encodeResult[R any](c codec.Codec, fn string, r R, err error) ([]byte, error) {
	if err != nil {
		return nil, err
	}
	data, err := c.Encode(r)
	if err != nil {
		return nil, fmt.Errorf("%s result: %w", fn, err)
	}
	return data, nil
}

// Func0 registers fn() R.
func Func0[R any](name string, ret TypeTag, fn func(context.Context) (R, error)) *RpcFunction {
	f := newFunction(name, nil, ret, nil)
	f.Handler = func(ctx context.Context, args [][]byte, c codec.Codec) ([]byte, error) {
		if err := f.CheckArity(len(args)); err != nil {
			return nil, err
		}
		r, err := fn(ctx)
		return encodeResult(c, name, r, err)
	}
	return f
}

// Func1 registers fn(a) R.
func Func1[A, R any](name string, pa Param, ret TypeTag, fn func(context.Context, A) (R, error)) *RpcFunction {
	f := newFunction(name, []Param{pa}, ret, nil)
	f.Handler = func(ctx context.Context, args [][]byte, c codec.Codec) ([]byte, error) {
		if err := f.CheckArity(len(args)); err != nil {
			return nil, err
		}
		a, err := decodeArg[A](c, name, 0, args[0])
		if err != nil {
			return nil, err
		}
		r, err := fn(ctx, a)
		return encodeResult(c, name, r, err)
	}
	return f
}

// Func2 registers fn(a, b) R.
func Func2[A, B, R any](name string, pa, pb Param, ret TypeTag, fn func(context.Context, A, B) (R, error)) *RpcFunction {
	f := newFunction(name, []Param{pa, pb}, ret, nil)
	f.Handler = func(ctx context.Context, args [][]byte, c codec.Codec) ([]byte, error) {
		if err := f.CheckArity(len(args)); err != nil {
			return nil, err
		}
		a, err := decodeArg[A](c, name, 0, args[0])
		if err != nil {
			return nil, err
		}
		b, err := decodeArg[B](c, name, 1, args[1])
		if err != nil {
			return nil, err
		}
		r, err := fn(ctx, a, b)
		return encodeResult(c, name, r, err)
	}
	return f
}

// Func3 registers fn(a, b, d) R.
func Func3[A, B, D, R any](name string, pa, pb, pd Param, ret TypeTag, fn func(context.Context, A, B, D) (R, error)) *RpcFunction {
	f := newFunction(name, []Param{pa, pb, pd}, ret, nil)
	f.Handler = func(ctx context.Context, args [][]byte, c codec.Codec) ([]byte, error) {
		if err := f.CheckArity(len(args)); err != nil {
			return nil, err
		}
		a, err := decodeArg[A](c, name, 0, args[0])
		if err != nil {
			return nil, err
		}
		b, err := decodeArg[B](c, name, 1, args[1])
		if err != nil {
			return nil, err
		}
		d, err := decodeArg[D](c, name, 2, args[2])
		if err != nil {
			return nil, err
		}
		r, err := fn(ctx, a, b, d)
		return encodeResult(c, name, r, err)
	}
	return f
}

// Proc0 registers fn() with no return value; the result buffer is empty.
func Proc0(name string, fn func(context.Context) error) *RpcFunction {
	f := newFunction(name, nil, TagNone, nil)
	f.Handler = func(ctx context.Context, args [][]byte, c codec.Codec) ([]byte, error) {
		if err := f.CheckArity(len(args)); err != nil {
			return nil, err
		}
		return []byte{}, fn(ctx)
	}
	return f
}

// Proc1 registers fn(a) with no return value.
func Proc1[A any](name string, pa Param, fn func(context.Context, A) error) *RpcFunction {
	f := newFunction(name, []Param{pa}, TagNone, nil)
	f.Handler = func(ctx context.Context, args [][]byte, c codec.Codec) ([]byte, error) {
		if err := f.CheckArity(len(args)); err != nil {
			return nil, err
		}
		a, err := decodeArg[A](c, name, 0, args[0])
		if err != nil {
			return nil, err
		}
		return []byte{}, fn(ctx, a)
	}
	return f
}

// Proc2 registers fn(a, b) with no return value.
func Proc2[A, B any](name string, pa, pb Param, fn func(context.Context, A, B) error) *RpcFunction {
	f := newFunction(name, []Param{pa, pb}, TagNone, nil)
	f.Handler = func(ctx context.Context, args [][]byte, c codec.Codec) ([]byte, error) {
		if err := f.CheckArity(len(args)); err != nil {
			return nil, err
		}
		a, err := decodeArg[A](c, name, 0, args[0])
		if err != nil {
			return nil, err
		}
		b, err := decodeArg[B](c, name, 1, args[1])
		if err != nil {
			return nil, err
		}
		return []byte{}, fn(ctx, a, b)
	}
	return f
}
