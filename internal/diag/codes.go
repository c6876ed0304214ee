package diag

import (
	"fmt"
)

// Code identifies a diagnostic class. Ranges are reserved per phase:
// 1xxx input/artifact, 2xxx layout, 3xxx lowering, 4xxx validation.
type Code uint16

const (
	UnknownCode Code = 0

	// Input and artifact decoding.
	InInfo             Code = 1000
	InLoadFileError    Code = 1001
	InBadMagic         Code = 1002
	InSchemaMismatch   Code = 1003
	InCorruptArtifact  Code = 1004
	InUnknownNode      Code = 1005
	InUnknownType      Code = 1006
	InDuplicateFunc    Code = 1007
	InMissingEntryFile Code = 1008

	// Layout resolution.
	LayInfo             Code = 2000
	LayRecursiveUnsized Code = 2001
	LayUnknownVariant   Code = 2002

	// Lowering.
	LowInfo              Code = 3000
	LowInternal          Code = 3001
	LowTypeMismatch      Code = 3002
	LowUndeclaredVariant Code = 3003
	LowUnboundName       Code = 3004
	LowUnresolvedMethod  Code = 3005
	LowBreakOutsideLoop  Code = 3006
	LowRaiseReturnType   Code = 3007
	LowGuardNotBool      Code = 3008
	LowLoopCondition     Code = 3009
	LowOrPatternBinding  Code = 3010

	// IR validation.
	ValInfo               Code = 4000
	ValUnterminatedBlock  Code = 4001
	ValBadBlockTarget     Code = 4002
	ValBadLocalRef        Code = 4003
	ValReturnArity        Code = 4004
	ValMergeNotDominated  Code = 4005
	ValUnknownRuntimeCall Code = 4006
)

func (c Code) String() string {
	return fmt.Sprintf("K%04d", uint16(c))
}
