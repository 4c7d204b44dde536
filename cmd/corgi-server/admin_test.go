package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"corgi-rpc/codec"
	"corgi-rpc/server"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func TestAdminRouter(t *testing.T) {
	reg := prometheus.NewRegistry()
	server.NewMetrics(reg).CallsCompleted.Inc()
	router := adminRouter(demoFunctions(codec.CodecTypeJSON), reg)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "corgi_server_calls_completed_total 1")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/functions", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var infos []functionInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &infos))
	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.Name
	}
	assert.Equal(t, []string{"add", "divide", "echo", "ping", "time", "upper"}, names)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/functions/add", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var add functionInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &add))
	assert.Equal(t, "i64", add.Returns)
	assert.Len(t, add.Params, 2)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/functions/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDemoFunctions(t *testing.T) {
	ctx := context.Background()
	cdc := &codec.JSONCodec{}
	fn, ok := demoFunctions(codec.CodecTypeJSON).Find("divide")
	require.True(t, ok)

	_, err := fn.Handler(ctx, [][]byte{[]byte("1"), []byte("0")}, cdc)
	assert.ErrorIs(t, err, errDivideByZero)

	out, err := fn.Handler(ctx, [][]byte{[]byte("9"), []byte("3")}, cdc)
	require.NoError(t, err)
	assert.Equal(t, "3", string(out))
}

func TestDemoFunctionsProto(t *testing.T) {
	cdc := &codec.ProtoCodec{}
	fn, ok := demoFunctions(codec.CodecTypeProto).Find("upper")
	require.True(t, ok)

	arg, err := cdc.Encode(wrapperspb.String("corgi"))
	require.NoError(t, err)
	out, err := fn.Handler(context.Background(), [][]byte{arg}, cdc)
	require.NoError(t, err)

	var got *wrapperspb.StringValue
	require.NoError(t, cdc.Decode(out, &got))
	assert.Equal(t, "CORGI", got.GetValue())
}
