package abc

import "errors"

// Format violations. These describe defects in the input module, not runtime
// conditions; callers wrap them with the offending index or position.
var (
	ErrUnexpectedEOF   = errors.New("abc: unexpected end of data")
	ErrVersionTooOld   = errors.New("abc: unsupported version")
	ErrIndexOutOfRange = errors.New("abc: index out of range")
	ErrMalformed       = errors.New("abc: malformed data")
	ErrBadNameKind     = errors.New("abc: invalid multiname kind")
	ErrBadTraitKind    = errors.New("abc: invalid trait kind")
	ErrTypeNameArity   = errors.New("abc: parametrized name must have exactly one parameter")
	ErrBadOpcode       = errors.New("abc: unknown opcode")
)
