package vm

import (
	"errors"
	"fmt"
	goruntime "runtime"
	"strings"
)

// Programming errors. These indicate misuse of the runtime rather than a
// condition bytecode can observe.
var (
	ErrScriptReentry = errors.New("vm: script executed more than once")
	ErrSlotCollision = errors.New("vm: slot number already assigned")
	ErrNoSuchClass   = errors.New("vm: class not found")
)

// ErrorKind names the built-in error class a runtime error is raised as.
type ErrorKind string

const (
	KindError          ErrorKind = "Error"
	KindTypeError      ErrorKind = "TypeError"
	KindReferenceError ErrorKind = "ReferenceError"
	KindArgumentError  ErrorKind = "ArgumentError"
	KindRangeError     ErrorKind = "RangeError"
	KindVerifyError    ErrorKind = "VerifyError"
	KindSecurityError  ErrorKind = "SecurityError"
	KindURIError       ErrorKind = "URIError"
	KindEvalError      ErrorKind = "EvalError"
)

// Error codes raised by the runtime.
const (
	CodeNotImplemented      = 1001
	CodeCallOfNonFunction   = 1006
	CodeConstructNonCtor    = 1007
	CodeConvertNullToObject = 1009
	CodeConvertUndefined    = 1010
	CodeClassNotFound       = 1014
	CodeStackOverflow       = 1023
	CodeSlotOutOfRange      = 1026
	CodeCheckTypeFailed     = 1034
	CodeCannotAssignMethod  = 1037
	CodeNotAClass           = 1041
	CodeWriteSealed         = 1056
	CodeWrongArgumentCount  = 1063
	CodeUndefinedVar        = 1065
	CodeReadSealed          = 1069
	CodeConstWrite          = 1074
	CodeWriteOnly           = 1077
	CodeIllegalNamespace    = 1098
	CodeCannotExtendFinal   = 1103
	CodeScopeOverflow       = 1107
	CodeNotAConstructor     = 1115
	CodeIndexOutOfRange     = 1125
	CodeNotParameterized    = 1127
	CodeMemoryRange         = 1506
)

type errorTemplate struct {
	kind    ErrorKind
	message string
}

var errorTemplates = map[int]errorTemplate{
	CodeNotImplemented:      {KindError, "The method %1 is not implemented."},
	CodeCallOfNonFunction:   {KindTypeError, "%1 is not a function."},
	CodeConstructNonCtor:    {KindTypeError, "Instantiation attempted on a non-constructor."},
	CodeConvertNullToObject: {KindTypeError, "Cannot access a property or method of a null object reference."},
	CodeConvertUndefined:    {KindTypeError, "A term is undefined and has no properties."},
	CodeClassNotFound:       {KindVerifyError, "Class %1 could not be found."},
	CodeStackOverflow:       {KindError, "Stack overflow occurred."},
	CodeSlotOutOfRange:      {KindVerifyError, "Slot %1 exceeds the slot count."},
	CodeCheckTypeFailed:     {KindTypeError, "Type Coercion failed: cannot convert %1 to %2."},
	CodeCannotAssignMethod:  {KindReferenceError, "Cannot assign to a method %1 on %2."},
	CodeWriteSealed:         {KindReferenceError, "Cannot create property %1 on %2."},
	CodeWrongArgumentCount:  {KindArgumentError, "Argument count mismatch on %1. Expected %2, got %3."},
	CodeUndefinedVar:        {KindReferenceError, "Variable %1 is not defined."},
	CodeReadSealed:          {KindReferenceError, "Property %1 not found on %2 and there is no default value."},
	CodeConstWrite:          {KindReferenceError, "Illegal write to read-only property %1 on %2."},
	CodeWriteOnly:           {KindReferenceError, "Illegal read of write-only property %1 on %2."},
	CodeNotAConstructor:     {KindTypeError, "%1 is not a constructor."},
	CodeIndexOutOfRange:     {KindRangeError, "The index %1 is out of range %2."},
	CodeScopeOverflow:       {KindVerifyError, "Scope stack overflow occurred."},
	CodeCannotExtendFinal:   {KindVerifyError, "Class %1 cannot extend final base class."},
	CodeIllegalNamespace:    {KindTypeError, "Illegal namespace value %1."},
	CodeNotParameterized:    {KindTypeError, "Type application attempted on a non-parameterized type."},
	CodeNotAClass:           {KindTypeError, "The right-hand side of operator must be a class."},
	CodeMemoryRange:         {KindRangeError, "The specified range is invalid."},
}

// Error is a runtime error in Go form. Values thrown by bytecode that are
// not error objects surface as an Error of kind KindError with the thrown
// value's string form as the message.
type Error struct {
	Kind    ErrorKind
	Code    int
	Message string

	// Value is the thrown language value, if any.
	Value Value
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s: Error #%d: %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NewError formats the template for code with args substituted for %1, %2...
func NewError(code int, args ...any) *Error {
	tmpl, ok := errorTemplates[code]
	if !ok {
		tmpl = errorTemplate{KindError, "Error #%1"}
		args = append([]any{code}, args...)
	}
	msg := tmpl.message
	for i, a := range args {
		msg = strings.ReplaceAll(msg, fmt.Sprintf("%%%d", i+1), fmt.Sprint(a))
	}
	return &Error{Kind: tmpl.kind, Code: code, Message: msg}
}

// Throw carries a thrown language value through Go panics. Exception tables
// of running methods recover it; public entry points convert it to an
// error.
type Throw struct {
	Value Value
}

func (t *Throw) Error() string { return "uncaught exception: " + ToString(t.Value) }

// Catch converts a recovered panic payload into an error. Payloads that are
// not runtime throws are re-panicked.
func (rt *Runtime) Catch(r any) error {
	switch x := r.(type) {
	case nil:
		return nil
	case *Throw:
		return rt.errorFromValue(x.Value)
	case *Error:
		return x
	case error:
		if _, ok := x.(goruntime.Error); !ok {
			return x
		}
	}
	panic(r)
}

// errorFromValue converts a thrown language value to an *Error.
func (rt *Runtime) errorFromValue(v Value) *Error {
	if o, ok := v.(*ScriptObject); ok {
		if kind, ok := rt.errorKindOf(o); ok {
			code := ToInt32(o.GetPublic("errorID"))
			return &Error{Kind: kind, Code: int(code), Message: ToString(o.GetPublic("message")), Value: v}
		}
	}
	return &Error{Kind: KindError, Message: ToString(v), Value: v}
}

// recoverTo is deferred by public entry points.
func (rt *Runtime) recoverTo(err *error) {
	if r := recover(); r != nil {
		*err = rt.Catch(r)
	}
}
