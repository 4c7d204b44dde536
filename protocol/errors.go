package protocol

import "errors"

// Codec-level failures. Each one aborts the datagram or call that produced it
// and never touches reassembly state of other calls.
var (
	ErrDecode               = errors.New("protocol: malformed or truncated bytes")
	ErrEncode               = errors.New("protocol: serialization failure")
	ErrChunkHeaderSize      = errors.New("protocol: buffer shorter than chunk header or declared payload")
	ErrMaxFunctionName      = errors.New("protocol: function name exceeds 65535 bytes")
	ErrMaxArguments         = errors.New("protocol: more than 16 arguments")
	ErrMaxArgumentSize      = errors.New("protocol: argument exceeds 16 MiB")
	ErrTrailingGarbageBytes = errors.New("protocol: trailing bytes after last argument")
)

// Reassembly failures.
var (
	ErrEmptyCall            = errors.New("protocol: chunk declares zero total chunks")
	ErrChunkIndexOutOfRange = errors.New("protocol: chunk index outside declared total")
	ErrChunkTotalMismatch   = errors.New("protocol: chunk total differs from earlier chunks of the call")
	ErrTooManyChunks        = errors.New("protocol: payload needs more than 65535 chunks")
	ErrNoPendingCall        = errors.New("protocol: no completed call for call id")
)
