package highlight

import (
	"github.com/walteh/semhl/pkg/lsp/protocol"
	"github.com/walteh/semhl/pkg/position"
	"github.com/walteh/semhl/pkg/rainbow"
	"github.com/walteh/semhl/pkg/theme"
)

// RainbowTokenType is a token class eligible for rainbow coloring.
type RainbowTokenType int

const (
	RainbowParameter RainbowTokenType = iota
	RainbowVariable
	RainbowProperty
)

// RainbowConfig controls whether, and for which token classes, identifier
// colors override theme syntax styles.
type RainbowConfig struct {
	Enabled    bool
	TokenTypes []RainbowTokenType
}

// Stylizer maps one semantic token to at most one display style. It is built
// once per conversion pass from the server's legend; legend lookups are
// prepared here instead of being re-derived per token.
type Stylizer struct {
	tokenTypes        []string
	modifierMask      map[string]uint32
	rainbowEnabled    bool
	rainbowTokenTypes []RainbowTokenType
}

// NewStylizer prepares legend lookup tables. Modifier bit i corresponds to
// legend.TokenModifiers[i].
func NewStylizer(legend *protocol.SemanticTokensLegend, cfg RainbowConfig) *Stylizer {
	modifierMask := make(map[string]uint32, len(legend.TokenModifiers))
	for i, modifier := range legend.TokenModifiers {
		modifierMask[modifier] = 1 << uint32(i)
	}
	return &Stylizer{
		tokenTypes:        legend.TokenTypes,
		modifierMask:      modifierMask,
		rainbowEnabled:    cfg.Enabled,
		rainbowTokenTypes: cfg.TokenTypes,
	}
}

// TokenType resolves a wire token-type index to its legend name. An index
// outside the legend yields false, never an error.
func (s *Stylizer) TokenType(tokenType uint32) (string, bool) {
	if int(tokenType) >= len(s.tokenTypes) {
		return "", false
	}
	return s.tokenTypes[tokenType], true
}

// HasModifier reports whether the modifier bitset carries the named
// modifier. Unknown modifier names are simply absent.
func (s *Stylizer) HasModifier(tokenModifiers uint32, modifier string) bool {
	mask, ok := s.modifierMask[modifier]
	if !ok {
		return false
	}
	return tokenModifiers&mask != 0
}

func (s *Stylizer) applyRainbow(
	snapshot *position.Snapshot,
	rng position.Range,
	cache *rainbow.ColorCache,
	syntaxTheme *theme.SyntaxTheme,
) (theme.Style, bool) {
	if cache == nil || syntaxTheme == nil {
		return theme.Style{}, false
	}
	identifier := snapshot.TextForRange(rng.Start, rng.End)
	style := cache.GetOrInsert(identifier, syntaxTheme)
	if !style.HasColor() {
		return theme.Style{}, false
	}
	return style, true
}

// Convert maps a token's (type, modifiers) pair to a display style.
//
// Rainbow takes precedence: when enabled and the token matches an eligible
// class, the identifier's cached color wins even over an explicit theme
// entry for that class. Otherwise the pair is mapped through an ordered
// fallback chain of theme lookup keys and the first entry with an explicit
// color wins. A token of a known class whose chain resolves no color gets an
// empty style (ok=true), preserving underlying lexical highlighting; a token
// of an unknown class gets no style at all (ok=false).
func (s *Stylizer) Convert(
	syntaxTheme *theme.SyntaxTheme,
	tokenType uint32,
	modifiers uint32,
	snapshot *position.Snapshot,
	rng position.Range,
	cache *rainbow.ColorCache,
) (theme.Style, bool) {
	name, ok := s.TokenType(tokenType)
	if !ok {
		return theme.Style{}, false
	}
	hasModifier := func(modifier string) bool {
		return s.HasModifier(modifiers, modifier)
	}

	if s.rainbowEnabled && cache != nil && syntaxTheme != nil {
		shouldApply := false
		for _, rainbowType := range s.rainbowTokenTypes {
			switch rainbowType {
			case RainbowParameter:
				shouldApply = name == protocol.TokenTypeParameter
			case RainbowVariable:
				// Built-ins and constants keep their theme styles even when
				// variables are rainbow-colored.
				shouldApply = name == protocol.TokenTypeVariable &&
					!hasModifier(protocol.ModifierDefaultLibrary) &&
					!hasModifier(protocol.ModifierConstant)
			case RainbowProperty:
				shouldApply = name == protocol.TokenTypeProperty
			}
			if shouldApply {
				break
			}
		}
		if shouldApply {
			if style, ok := s.applyRainbow(snapshot, rng, cache, syntaxTheme); ok {
				return style, true
			}
		}
	}

	isDefinition := hasModifier(protocol.ModifierDeclaration) || hasModifier(protocol.ModifierDefinition)

	var choices []string
	switch {
	// Types
	case name == protocol.TokenTypeNamespace:
		choices = []string{"namespace", "module", "type"}
	case name == protocol.TokenTypeClass:
		choices = []string{"type.class.definition", "type.definition", "type.class", "class", "type"}
	case name == protocol.TokenTypeEnum && isDefinition:
		choices = []string{"type.enum.definition", "type.definition", "type.enum", "enum", "type"}
	case name == protocol.TokenTypeEnum:
		choices = []string{"type.enum", "enum", "type"}
	case name == protocol.TokenTypeInterface && isDefinition:
		choices = []string{"type.interface.definition", "type.definition", "type.interface", "interface", "type"}
	case name == protocol.TokenTypeInterface:
		choices = []string{"type.interface", "interface", "type"}
	case name == protocol.TokenTypeStruct && isDefinition:
		choices = []string{"type.struct.definition", "type.definition", "type.struct", "struct", "type"}
	case name == protocol.TokenTypeStruct:
		choices = []string{"type.struct", "struct", "type"}
	case name == protocol.TokenTypeTypeParameter && isDefinition:
		choices = []string{"type.parameter.definition", "type.definition", "type.parameter", "type"}
	case name == protocol.TokenTypeTypeParameter:
		choices = []string{"type.parameter", "type"}
	case name == protocol.TokenTypeType && isDefinition:
		choices = []string{"type.definition", "type"}
	case name == protocol.TokenTypeType:
		choices = []string{"type"}

	// References
	case name == protocol.TokenTypeParameter:
		choices = []string{"parameter"}
	case name == protocol.TokenTypeVariable &&
		hasModifier(protocol.ModifierDefaultLibrary) && hasModifier(protocol.ModifierConstant):
		choices = []string{"constant.builtin", "constant"}
	case name == protocol.TokenTypeVariable && hasModifier(protocol.ModifierDefaultLibrary):
		choices = []string{"variable.builtin", "variable"}
	case name == protocol.TokenTypeVariable && hasModifier(protocol.ModifierConstant):
		choices = []string{"constant"}
	case name == protocol.TokenTypeVariable:
		choices = []string{"variable"}
	case name == "const":
		choices = []string{"const", "constant", "variable"}
	case name == protocol.TokenTypeProperty:
		choices = []string{"property"}
	case name == protocol.TokenTypeEnumMember:
		choices = []string{"type.enum.member", "type.enum", "variant"}
	case name == protocol.TokenTypeDecorator:
		choices = []string{"function.decorator", "function.annotation"}

	// Declarations in the docs, but in practice also references
	case name == protocol.TokenTypeFunction && hasModifier(protocol.ModifierDefaultLibrary):
		choices = []string{"function.builtin", "function"}
	case name == protocol.TokenTypeFunction:
		choices = []string{"function"}
	case name == protocol.TokenTypeMethod && hasModifier(protocol.ModifierDefaultLibrary):
		choices = []string{"function.builtin", "function.method", "function"}
	case name == protocol.TokenTypeMethod:
		choices = []string{"function.method", "function"}
	case name == protocol.TokenTypeMacro:
		choices = []string{"function.macro", "function"}
	case name == "label":
		choices = []string{"label"}

	// Tokens
	case name == protocol.TokenTypeComment && hasModifier(protocol.ModifierDocumentation):
		choices = []string{"comment.documentation", "comment.doc", "comment"}
	case name == protocol.TokenTypeComment:
		choices = []string{"comment"}
	case name == protocol.TokenTypeString:
		choices = []string{"string"}
	case name == protocol.TokenTypeKeyword:
		choices = []string{"keyword"}
	case name == protocol.TokenTypeNumber:
		choices = []string{"number"}
	case name == protocol.TokenTypeRegexp:
		choices = []string{"string.regexp", "string"}
	case name == protocol.TokenTypeOperator:
		choices = []string{"operator"}

	// In the LSP spec, but not the VS Code docs.
	case name == protocol.TokenTypeModifier:
		choices = []string{"keyword.modifier"}

	// C#. Part of the LSP spec, but not used elsewhere.
	case name == protocol.TokenTypeEvent:
		choices = []string{"type.event", "type"}

	// Rust.
	case name == "lifetime":
		choices = []string{"symbol", "type.parameter", "type"}

	default:
		return theme.Style{}, false
	}

	if syntaxTheme != nil {
		for _, choice := range choices {
			if style, ok := syntaxTheme.Get(choice); ok && style.HasColor() {
				return style, true
			}
		}
	}

	// No color in the theme: an empty style keeps lexical highlighting
	// underneath instead of suppressing it.
	return theme.Style{}, true
}
