package ast

import (
	"koan/internal/source"
)

// PatternKind enumerates match-pattern kinds.
type PatternKind uint8

const (
	// PatLiteral matches a literal value by equality.
	PatLiteral PatternKind = iota
	// PatWildcard matches anything, binds nothing.
	PatWildcard
	// PatBind matches anything and binds the scrutinee to a name.
	PatBind
	// PatVariant matches an enum variant, optionally binding its payload.
	PatVariant
	// PatRange matches an integer interval.
	PatRange
	// PatOr matches when any alternative matches. Alternatives must not
	// introduce bindings.
	PatOr
)

func (k PatternKind) String() string {
	switch k {
	case PatLiteral:
		return "Literal"
	case PatWildcard:
		return "Wildcard"
	case PatBind:
		return "Bind"
	case PatVariant:
		return "Variant"
	case PatRange:
		return "Range"
	case PatOr:
		return "Or"
	default:
		return "Unknown"
	}
}

// Pattern represents one pattern inside a match arm.
type Pattern struct {
	Kind PatternKind
	Span source.Span
	Data PatternData
}

// PatternData is the interface for pattern-specific data.
type PatternData interface {
	patternData()
}

// LiteralPattern holds data for PatLiteral.
type LiteralPattern struct {
	Lit LiteralData
}

func (LiteralPattern) patternData() {}

// WildcardPattern holds data for PatWildcard.
type WildcardPattern struct{}

func (WildcardPattern) patternData() {}

// BindPattern holds data for PatBind.
type BindPattern struct {
	Name string
}

func (BindPattern) patternData() {}

// VariantPattern holds data for PatVariant. Binding is the payload
// binding name, "" when the variant is matched without extracting.
type VariantPattern struct {
	EnumName string // "" when inferred from the scrutinee type
	Variant  string
	Binding  string
}

func (VariantPattern) patternData() {}

// RangePattern holds data for PatRange.
type RangePattern struct {
	Lo        int64
	Hi        int64
	Inclusive bool
}

func (RangePattern) patternData() {}

// OrPattern holds data for PatOr.
type OrPattern struct {
	Alts []*Pattern
}

func (OrPattern) patternData() {}

// Arm is one arm of a match expression: a pattern, an optional bool
// guard evaluated with the pattern's bindings in scope, and the body.
type Arm struct {
	Pattern *Pattern
	Guard   *Expr // nil if none
	Body    *Expr
	Span    source.Span
}
