package main

import (
	"context"
	"errors"
	"strings"
	"time"

	"corgi-rpc/codec"
	"corgi-rpc/container"

	"google.golang.org/protobuf/types/known/wrapperspb"
)

var errDivideByZero = errors.New("division by zero")

// demoFunctions builds the functions this binary serves. Protobuf callers get
// the same arithmetic over wrapper messages since plain scalars are not
// messages.
func demoFunctions(t codec.CodecType) *container.Container {
	c := container.New().
		Register(container.Func0("time", container.TagInt64, func(context.Context) (int64, error) {
			return time.Now().UnixMilli(), nil
		}))

	if t == codec.CodecTypeProto {
		return c.
			Register(container.Func2("add", container.P("a", "Int64Value"), container.P("b", "Int64Value"), "Int64Value",
				func(_ context.Context, a, b *wrapperspb.Int64Value) (*wrapperspb.Int64Value, error) {
					return wrapperspb.Int64(a.GetValue() + b.GetValue()), nil
				})).
			Register(container.Func1("upper", container.P("s", "StringValue"), "StringValue",
				func(_ context.Context, s *wrapperspb.StringValue) (*wrapperspb.StringValue, error) {
					return wrapperspb.String(strings.ToUpper(s.GetValue())), nil
				})).
			Register(container.Proc0("ping", func(context.Context) error { return nil }))
	}

	return c.
		Register(container.Func2("add", container.P("a", container.TagInt64), container.P("b", container.TagInt64), container.TagInt64,
			func(_ context.Context, a, b int64) (int64, error) { return a + b, nil })).
		Register(container.Func2("divide", container.P("a", container.TagInt64), container.P("b", container.TagInt64), container.TagInt64,
			func(_ context.Context, a, b int64) (int64, error) {
				if b == 0 {
					return 0, errDivideByZero
				}
				return a / b, nil
			})).
		Register(container.Func1("upper", container.P("s", container.TagString), container.TagString,
			func(_ context.Context, s string) (string, error) { return strings.ToUpper(s), nil })).
		Register(container.Func1("echo", container.P("data", container.TagBytes), container.TagBytes,
			func(_ context.Context, data []byte) ([]byte, error) { return data, nil })).
		Register(container.Proc0("ping", func(context.Context) error { return nil }))
}
