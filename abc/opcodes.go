package abc

import "fmt"

// Opcode is a single bytecode instruction tag.
type Opcode byte

// Control and stack
const (
	OpBkpt          Opcode = 0x01
	OpNop           Opcode = 0x02
	OpThrow         Opcode = 0x03
	OpGetSuper      Opcode = 0x04
	OpSetSuper      Opcode = 0x05
	OpDxns          Opcode = 0x06
	OpDxnsLate      Opcode = 0x07
	OpKill          Opcode = 0x08
	OpLabel         Opcode = 0x09
	OpIfNlt         Opcode = 0x0C
	OpIfNle         Opcode = 0x0D
	OpIfNgt         Opcode = 0x0E
	OpIfNge         Opcode = 0x0F
	OpJump          Opcode = 0x10
	OpIfTrue        Opcode = 0x11
	OpIfFalse       Opcode = 0x12
	OpIfEq          Opcode = 0x13
	OpIfNe          Opcode = 0x14
	OpIfLt          Opcode = 0x15
	OpIfLe          Opcode = 0x16
	OpIfGt          Opcode = 0x17
	OpIfGe          Opcode = 0x18
	OpIfStrictEq    Opcode = 0x19
	OpIfStrictNe    Opcode = 0x1A
	OpLookupSwitch  Opcode = 0x1B
	OpPushWith      Opcode = 0x1C
	OpPopScope      Opcode = 0x1D
	OpNextName      Opcode = 0x1E
	OpHasNext       Opcode = 0x1F
	OpPushNull      Opcode = 0x20
	OpPushUndefined Opcode = 0x21
	OpNextValue     Opcode = 0x23
	OpPushByte      Opcode = 0x24
	OpPushShort     Opcode = 0x25
	OpPushTrue      Opcode = 0x26
	OpPushFalse     Opcode = 0x27
	OpPushNaN       Opcode = 0x28
	OpPop           Opcode = 0x29
	OpDup           Opcode = 0x2A
	OpSwap          Opcode = 0x2B
	OpPushString    Opcode = 0x2C
	OpPushInt       Opcode = 0x2D
	OpPushUint      Opcode = 0x2E
	OpPushDouble    Opcode = 0x2F
	OpPushScope     Opcode = 0x30
	OpPushNamespace Opcode = 0x31
	OpHasNext2      Opcode = 0x32
)

// Domain memory
const (
	OpLi8  Opcode = 0x35
	OpLi16 Opcode = 0x36
	OpLi32 Opcode = 0x37
	OpLf32 Opcode = 0x38
	OpLf64 Opcode = 0x39
	OpSi8  Opcode = 0x3A
	OpSi16 Opcode = 0x3B
	OpSi32 Opcode = 0x3C
	OpSf32 Opcode = 0x3D
	OpSf64 Opcode = 0x3E
)

// Calls, construction and returns
const (
	OpNewFunction    Opcode = 0x40
	OpCall           Opcode = 0x41
	OpConstruct      Opcode = 0x42
	OpCallMethod     Opcode = 0x43
	OpCallStatic     Opcode = 0x44
	OpCallSuper      Opcode = 0x45
	OpCallProperty   Opcode = 0x46
	OpReturnVoid     Opcode = 0x47
	OpReturnValue    Opcode = 0x48
	OpConstructSuper Opcode = 0x49
	OpConstructProp  Opcode = 0x4A
	OpCallPropLex    Opcode = 0x4C
	OpCallSuperVoid  Opcode = 0x4E
	OpCallPropVoid   Opcode = 0x4F
	OpSxi1           Opcode = 0x50
	OpSxi8           Opcode = 0x51
	OpSxi16          Opcode = 0x52
	OpApplyType      Opcode = 0x53
	OpNewObject      Opcode = 0x55
	OpNewArray       Opcode = 0x56
	OpNewActivation  Opcode = 0x57
	OpNewClass       Opcode = 0x58
	OpGetDescendants Opcode = 0x59
	OpNewCatch       Opcode = 0x5A
)

// Properties, scopes, locals and slots
const (
	OpFindPropStrict  Opcode = 0x5D
	OpFindProperty    Opcode = 0x5E
	OpFindDef         Opcode = 0x5F
	OpGetLex          Opcode = 0x60
	OpSetProperty     Opcode = 0x61
	OpGetLocal        Opcode = 0x62
	OpSetLocal        Opcode = 0x63
	OpGetGlobalScope  Opcode = 0x64
	OpGetScopeObject  Opcode = 0x65
	OpGetProperty     Opcode = 0x66
	OpGetOuterScope   Opcode = 0x67
	OpInitProperty    Opcode = 0x68
	OpDeleteProperty  Opcode = 0x6A
	OpGetSlot         Opcode = 0x6C
	OpSetSlot         Opcode = 0x6D
	OpGetGlobalSlot   Opcode = 0x6E
	OpSetGlobalSlot   Opcode = 0x6F
	OpGetLocal0       Opcode = 0xD0
	OpGetLocal1       Opcode = 0xD1
	OpGetLocal2       Opcode = 0xD2
	OpGetLocal3       Opcode = 0xD3
	OpSetLocal0       Opcode = 0xD4
	OpSetLocal1       Opcode = 0xD5
	OpSetLocal2       Opcode = 0xD6
	OpSetLocal3       Opcode = 0xD7
	OpIncLocal        Opcode = 0x92
	OpDecLocal        Opcode = 0x94
	OpIncLocalI       Opcode = 0xC2
	OpDecLocalI       Opcode = 0xC3
)

// Conversions and type tests
const (
	OpConvertS    Opcode = 0x70
	OpEscXElem    Opcode = 0x71
	OpEscXAttr    Opcode = 0x72
	OpConvertI    Opcode = 0x73
	OpConvertU    Opcode = 0x74
	OpConvertD    Opcode = 0x75
	OpConvertB    Opcode = 0x76
	OpConvertO    Opcode = 0x77
	OpCheckFilter Opcode = 0x78
	OpCoerce      Opcode = 0x80
	OpCoerceB     Opcode = 0x81
	OpCoerceA     Opcode = 0x82
	OpCoerceI     Opcode = 0x83
	OpCoerceD     Opcode = 0x84
	OpCoerceS     Opcode = 0x85
	OpAsType      Opcode = 0x86
	OpAsTypeLate  Opcode = 0x87
	OpCoerceU     Opcode = 0x88
	OpCoerceO     Opcode = 0x89
	OpTypeOf      Opcode = 0x95
	OpInstanceOf  Opcode = 0xB1
	OpIsType      Opcode = 0xB2
	OpIsTypeLate  Opcode = 0xB3
	OpIn          Opcode = 0xB4
)

// Arithmetic, bitwise and comparison
const (
	OpNegate        Opcode = 0x90
	OpIncrement     Opcode = 0x91
	OpDecrement     Opcode = 0x93
	OpNot           Opcode = 0x96
	OpBitNot        Opcode = 0x97
	OpAdd           Opcode = 0xA0
	OpSubtract      Opcode = 0xA1
	OpMultiply      Opcode = 0xA2
	OpDivide        Opcode = 0xA3
	OpModulo        Opcode = 0xA4
	OpLShift        Opcode = 0xA5
	OpRShift        Opcode = 0xA6
	OpURShift       Opcode = 0xA7
	OpBitAnd        Opcode = 0xA8
	OpBitOr         Opcode = 0xA9
	OpBitXor        Opcode = 0xAA
	OpEquals        Opcode = 0xAB
	OpStrictEquals  Opcode = 0xAC
	OpLessThan      Opcode = 0xAD
	OpLessEquals    Opcode = 0xAE
	OpGreaterThan   Opcode = 0xAF
	OpGreaterEquals Opcode = 0xB0
	OpIncrementI    Opcode = 0xC0
	OpDecrementI    Opcode = 0xC1
	OpNegateI       Opcode = 0xC4
	OpAddI          Opcode = 0xC5
	OpSubtractI     Opcode = 0xC6
	OpMultiplyI     Opcode = 0xC7
)

// Debugging
const (
	OpDebug     Opcode = 0xEF
	OpDebugLine Opcode = 0xF0
	OpDebugFile Opcode = 0xF1
	OpBkptLine  Opcode = 0xF2
	OpTimestamp Opcode = 0xF3
)

// OperandFormat describes how an opcode's operands are encoded.
type OperandFormat uint8

const (
	FmtNone      OperandFormat = iota
	FmtU8                      // one raw byte
	FmtS8                      // one raw byte, sign-extended (pushbyte)
	FmtU30                     // one variable-length index or count
	FmtU30U30                  // two variable-length values
	FmtS24                     // one signed 24-bit branch offset
	FmtName                    // multiname index
	FmtNameArgc                // multiname index, argument count
	FmtSwitch                  // default s24, case count u30, count+1 s24 offsets
	FmtDebug                   // u8, u30, u8, u30
)

// Stack effect flags for operand counts that depend on operands.
const (
	PopsArgc      = 1 << iota // pops an additional argc values
	PopsArgcPairs             // pops an additional 2*argc values
	PopsName                  // pops runtime multiname parts
	Terminal                  // control never falls through
	Branches                  // has explicit branch targets
)

// OpcodeInfo holds metadata about an opcode.
type OpcodeInfo struct {
	Name       string
	Format     OperandFormat
	Pops       int // fixed operand-stack pops
	Pushes     int
	ScopeDelta int
	Flags      int
}

var opcodeTable = map[Opcode]OpcodeInfo{
	OpBkpt:          {"bkpt", FmtNone, 0, 0, 0, 0},
	OpNop:           {"nop", FmtNone, 0, 0, 0, 0},
	OpThrow:         {"throw", FmtNone, 1, 0, 0, Terminal},
	OpGetSuper:      {"getsuper", FmtName, 1, 1, 0, PopsName},
	OpSetSuper:      {"setsuper", FmtName, 2, 0, 0, PopsName},
	OpDxns:          {"dxns", FmtU30, 0, 0, 0, 0},
	OpDxnsLate:      {"dxnslate", FmtNone, 1, 0, 0, 0},
	OpKill:          {"kill", FmtU30, 0, 0, 0, 0},
	OpLabel:         {"label", FmtNone, 0, 0, 0, 0},
	OpIfNlt:         {"ifnlt", FmtS24, 2, 0, 0, Branches},
	OpIfNle:         {"ifnle", FmtS24, 2, 0, 0, Branches},
	OpIfNgt:         {"ifngt", FmtS24, 2, 0, 0, Branches},
	OpIfNge:         {"ifnge", FmtS24, 2, 0, 0, Branches},
	OpJump:          {"jump", FmtS24, 0, 0, 0, Branches | Terminal},
	OpIfTrue:        {"iftrue", FmtS24, 1, 0, 0, Branches},
	OpIfFalse:       {"iffalse", FmtS24, 1, 0, 0, Branches},
	OpIfEq:          {"ifeq", FmtS24, 2, 0, 0, Branches},
	OpIfNe:          {"ifne", FmtS24, 2, 0, 0, Branches},
	OpIfLt:          {"iflt", FmtS24, 2, 0, 0, Branches},
	OpIfLe:          {"ifle", FmtS24, 2, 0, 0, Branches},
	OpIfGt:          {"ifgt", FmtS24, 2, 0, 0, Branches},
	OpIfGe:          {"ifge", FmtS24, 2, 0, 0, Branches},
	OpIfStrictEq:    {"ifstricteq", FmtS24, 2, 0, 0, Branches},
	OpIfStrictNe:    {"ifstrictne", FmtS24, 2, 0, 0, Branches},
	OpLookupSwitch:  {"lookupswitch", FmtSwitch, 1, 0, 0, Branches | Terminal},
	OpPushWith:      {"pushwith", FmtNone, 1, 0, 1, 0},
	OpPopScope:      {"popscope", FmtNone, 0, 0, -1, 0},
	OpNextName:      {"nextname", FmtNone, 2, 1, 0, 0},
	OpHasNext:       {"hasnext", FmtNone, 2, 1, 0, 0},
	OpPushNull:      {"pushnull", FmtNone, 0, 1, 0, 0},
	OpPushUndefined: {"pushundefined", FmtNone, 0, 1, 0, 0},
	OpNextValue:     {"nextvalue", FmtNone, 2, 1, 0, 0},
	OpPushByte:      {"pushbyte", FmtS8, 0, 1, 0, 0},
	OpPushShort:     {"pushshort", FmtU30, 0, 1, 0, 0},
	OpPushTrue:      {"pushtrue", FmtNone, 0, 1, 0, 0},
	OpPushFalse:     {"pushfalse", FmtNone, 0, 1, 0, 0},
	OpPushNaN:       {"pushnan", FmtNone, 0, 1, 0, 0},
	OpPop:           {"pop", FmtNone, 1, 0, 0, 0},
	OpDup:           {"dup", FmtNone, 1, 2, 0, 0},
	OpSwap:          {"swap", FmtNone, 2, 2, 0, 0},
	OpPushString:    {"pushstring", FmtU30, 0, 1, 0, 0},
	OpPushInt:       {"pushint", FmtU30, 0, 1, 0, 0},
	OpPushUint:      {"pushuint", FmtU30, 0, 1, 0, 0},
	OpPushDouble:    {"pushdouble", FmtU30, 0, 1, 0, 0},
	OpPushScope:     {"pushscope", FmtNone, 1, 0, 1, 0},
	OpPushNamespace: {"pushnamespace", FmtU30, 0, 1, 0, 0},
	OpHasNext2:      {"hasnext2", FmtU30U30, 0, 1, 0, 0},

	OpLi8:  {"li8", FmtNone, 1, 1, 0, 0},
	OpLi16: {"li16", FmtNone, 1, 1, 0, 0},
	OpLi32: {"li32", FmtNone, 1, 1, 0, 0},
	OpLf32: {"lf32", FmtNone, 1, 1, 0, 0},
	OpLf64: {"lf64", FmtNone, 1, 1, 0, 0},
	OpSi8:  {"si8", FmtNone, 2, 0, 0, 0},
	OpSi16: {"si16", FmtNone, 2, 0, 0, 0},
	OpSi32: {"si32", FmtNone, 2, 0, 0, 0},
	OpSf32: {"sf32", FmtNone, 2, 0, 0, 0},
	OpSf64: {"sf64", FmtNone, 2, 0, 0, 0},

	OpNewFunction:    {"newfunction", FmtU30, 0, 1, 0, 0},
	OpCall:           {"call", FmtU30, 2, 1, 0, PopsArgc},
	OpConstruct:      {"construct", FmtU30, 1, 1, 0, PopsArgc},
	OpCallMethod:     {"callmethod", FmtU30U30, 1, 1, 0, PopsArgc},
	OpCallStatic:     {"callstatic", FmtU30U30, 1, 1, 0, PopsArgc},
	OpCallSuper:      {"callsuper", FmtNameArgc, 1, 1, 0, PopsArgc | PopsName},
	OpCallProperty:   {"callproperty", FmtNameArgc, 1, 1, 0, PopsArgc | PopsName},
	OpReturnVoid:     {"returnvoid", FmtNone, 0, 0, 0, Terminal},
	OpReturnValue:    {"returnvalue", FmtNone, 1, 0, 0, Terminal},
	OpConstructSuper: {"constructsuper", FmtU30, 1, 0, 0, PopsArgc},
	OpConstructProp:  {"constructprop", FmtNameArgc, 1, 1, 0, PopsArgc | PopsName},
	OpCallPropLex:    {"callproplex", FmtNameArgc, 1, 1, 0, PopsArgc | PopsName},
	OpCallSuperVoid:  {"callsupervoid", FmtNameArgc, 1, 0, 0, PopsArgc | PopsName},
	OpCallPropVoid:   {"callpropvoid", FmtNameArgc, 1, 0, 0, PopsArgc | PopsName},
	OpSxi1:           {"sxi1", FmtNone, 1, 1, 0, 0},
	OpSxi8:           {"sxi8", FmtNone, 1, 1, 0, 0},
	OpSxi16:          {"sxi16", FmtNone, 1, 1, 0, 0},
	OpApplyType:      {"applytype", FmtU30, 1, 1, 0, PopsArgc},
	OpNewObject:      {"newobject", FmtU30, 0, 1, 0, PopsArgcPairs},
	OpNewArray:       {"newarray", FmtU30, 0, 1, 0, PopsArgc},
	OpNewActivation:  {"newactivation", FmtNone, 0, 1, 0, 0},
	OpNewClass:       {"newclass", FmtU30, 1, 1, 0, 0},
	OpGetDescendants: {"getdescendants", FmtName, 1, 1, 0, PopsName},
	OpNewCatch:       {"newcatch", FmtU30, 0, 1, 0, 0},

	OpFindPropStrict: {"findpropstrict", FmtName, 0, 1, 0, PopsName},
	OpFindProperty:   {"findproperty", FmtName, 0, 1, 0, PopsName},
	OpFindDef:        {"finddef", FmtName, 0, 1, 0, 0},
	OpGetLex:         {"getlex", FmtName, 0, 1, 0, 0},
	OpSetProperty:    {"setproperty", FmtName, 2, 0, 0, PopsName},
	OpGetLocal:       {"getlocal", FmtU30, 0, 1, 0, 0},
	OpSetLocal:       {"setlocal", FmtU30, 1, 0, 0, 0},
	OpGetGlobalScope: {"getglobalscope", FmtNone, 0, 1, 0, 0},
	OpGetScopeObject: {"getscopeobject", FmtU8, 0, 1, 0, 0},
	OpGetProperty:    {"getproperty", FmtName, 1, 1, 0, PopsName},
	OpGetOuterScope:  {"getouterscope", FmtU30, 0, 1, 0, 0},
	OpInitProperty:   {"initproperty", FmtName, 2, 0, 0, PopsName},
	OpDeleteProperty: {"deleteproperty", FmtName, 1, 1, 0, PopsName},
	OpGetSlot:        {"getslot", FmtU30, 1, 1, 0, 0},
	OpSetSlot:        {"setslot", FmtU30, 2, 0, 0, 0},
	OpGetGlobalSlot:  {"getglobalslot", FmtU30, 0, 1, 0, 0},
	OpSetGlobalSlot:  {"setglobalslot", FmtU30, 1, 0, 0, 0},
	OpGetLocal0:      {"getlocal0", FmtNone, 0, 1, 0, 0},
	OpGetLocal1:      {"getlocal1", FmtNone, 0, 1, 0, 0},
	OpGetLocal2:      {"getlocal2", FmtNone, 0, 1, 0, 0},
	OpGetLocal3:      {"getlocal3", FmtNone, 0, 1, 0, 0},
	OpSetLocal0:      {"setlocal0", FmtNone, 1, 0, 0, 0},
	OpSetLocal1:      {"setlocal1", FmtNone, 1, 0, 0, 0},
	OpSetLocal2:      {"setlocal2", FmtNone, 1, 0, 0, 0},
	OpSetLocal3:      {"setlocal3", FmtNone, 1, 0, 0, 0},
	OpIncLocal:       {"inclocal", FmtU30, 0, 0, 0, 0},
	OpDecLocal:       {"declocal", FmtU30, 0, 0, 0, 0},
	OpIncLocalI:      {"inclocal_i", FmtU30, 0, 0, 0, 0},
	OpDecLocalI:      {"declocal_i", FmtU30, 0, 0, 0, 0},

	OpConvertS:    {"convert_s", FmtNone, 1, 1, 0, 0},
	OpEscXElem:    {"esc_xelem", FmtNone, 1, 1, 0, 0},
	OpEscXAttr:    {"esc_xattr", FmtNone, 1, 1, 0, 0},
	OpConvertI:    {"convert_i", FmtNone, 1, 1, 0, 0},
	OpConvertU:    {"convert_u", FmtNone, 1, 1, 0, 0},
	OpConvertD:    {"convert_d", FmtNone, 1, 1, 0, 0},
	OpConvertB:    {"convert_b", FmtNone, 1, 1, 0, 0},
	OpConvertO:    {"convert_o", FmtNone, 1, 1, 0, 0},
	OpCheckFilter: {"checkfilter", FmtNone, 1, 1, 0, 0},
	OpCoerce:      {"coerce", FmtName, 1, 1, 0, 0},
	OpCoerceB:     {"coerce_b", FmtNone, 1, 1, 0, 0},
	OpCoerceA:     {"coerce_a", FmtNone, 1, 1, 0, 0},
	OpCoerceI:     {"coerce_i", FmtNone, 1, 1, 0, 0},
	OpCoerceD:     {"coerce_d", FmtNone, 1, 1, 0, 0},
	OpCoerceS:     {"coerce_s", FmtNone, 1, 1, 0, 0},
	OpAsType:      {"astype", FmtName, 1, 1, 0, 0},
	OpAsTypeLate:  {"astypelate", FmtNone, 2, 1, 0, 0},
	OpCoerceU:     {"coerce_u", FmtNone, 1, 1, 0, 0},
	OpCoerceO:     {"coerce_o", FmtNone, 1, 1, 0, 0},
	OpTypeOf:      {"typeof", FmtNone, 1, 1, 0, 0},
	OpInstanceOf:  {"instanceof", FmtNone, 2, 1, 0, 0},
	OpIsType:      {"istype", FmtName, 1, 1, 0, 0},
	OpIsTypeLate:  {"istypelate", FmtNone, 2, 1, 0, 0},
	OpIn:          {"in", FmtNone, 2, 1, 0, 0},

	OpNegate:        {"negate", FmtNone, 1, 1, 0, 0},
	OpIncrement:     {"increment", FmtNone, 1, 1, 0, 0},
	OpDecrement:     {"decrement", FmtNone, 1, 1, 0, 0},
	OpNot:           {"not", FmtNone, 1, 1, 0, 0},
	OpBitNot:        {"bitnot", FmtNone, 1, 1, 0, 0},
	OpAdd:           {"add", FmtNone, 2, 1, 0, 0},
	OpSubtract:      {"subtract", FmtNone, 2, 1, 0, 0},
	OpMultiply:      {"multiply", FmtNone, 2, 1, 0, 0},
	OpDivide:        {"divide", FmtNone, 2, 1, 0, 0},
	OpModulo:        {"modulo", FmtNone, 2, 1, 0, 0},
	OpLShift:        {"lshift", FmtNone, 2, 1, 0, 0},
	OpRShift:        {"rshift", FmtNone, 2, 1, 0, 0},
	OpURShift:       {"urshift", FmtNone, 2, 1, 0, 0},
	OpBitAnd:        {"bitand", FmtNone, 2, 1, 0, 0},
	OpBitOr:         {"bitor", FmtNone, 2, 1, 0, 0},
	OpBitXor:        {"bitxor", FmtNone, 2, 1, 0, 0},
	OpEquals:        {"equals", FmtNone, 2, 1, 0, 0},
	OpStrictEquals:  {"strictequals", FmtNone, 2, 1, 0, 0},
	OpLessThan:      {"lessthan", FmtNone, 2, 1, 0, 0},
	OpLessEquals:    {"lessequals", FmtNone, 2, 1, 0, 0},
	OpGreaterThan:   {"greaterthan", FmtNone, 2, 1, 0, 0},
	OpGreaterEquals: {"greaterequals", FmtNone, 2, 1, 0, 0},
	OpIncrementI:    {"increment_i", FmtNone, 1, 1, 0, 0},
	OpDecrementI:    {"decrement_i", FmtNone, 1, 1, 0, 0},
	OpNegateI:       {"negate_i", FmtNone, 1, 1, 0, 0},
	OpAddI:          {"add_i", FmtNone, 2, 1, 0, 0},
	OpSubtractI:     {"subtract_i", FmtNone, 2, 1, 0, 0},
	OpMultiplyI:     {"multiply_i", FmtNone, 2, 1, 0, 0},

	OpDebug:     {"debug", FmtDebug, 0, 0, 0, 0},
	OpDebugLine: {"debugline", FmtU30, 0, 0, 0, 0},
	OpDebugFile: {"debugfile", FmtU30, 0, 0, 0, 0},
	OpBkptLine:  {"bkptline", FmtU30, 0, 0, 0, 0},
	OpTimestamp: {"timestamp", FmtNone, 0, 0, 0, 0},
}

// Info returns the metadata for an opcode and whether the opcode is known.
func (op Opcode) Info() (OpcodeInfo, bool) {
	info, ok := opcodeTable[op]
	return info, ok
}

// Known reports whether the opcode is defined.
func (op Opcode) Known() bool {
	_, ok := opcodeTable[op]
	return ok
}

// Name returns the mnemonic for an opcode.
func (op Opcode) Name() string {
	if info, ok := opcodeTable[op]; ok {
		return info.Name
	}
	return fmt.Sprintf("op_%02x", byte(op))
}

func (op Opcode) String() string { return op.Name() }
