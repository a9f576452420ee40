package protocol

// SemanticTokens is the payload of a textDocument/semanticTokens/full or
// /range response.
//
// Data is the flat delta encoding: each token is five consecutive values,
//
//	data[5*i]   - deltaLine: line, relative to the previous token
//	data[5*i+1] - deltaStart: start character, relative to the previous token
//	              (relative to 0 or the previous token's start if same line)
//	data[5*i+2] - length: length of the token
//	data[5*i+3] - tokenType: index into SemanticTokensLegend.TokenTypes
//	data[5*i+4] - tokenModifiers: bitset over SemanticTokensLegend.TokenModifiers
//
// See https://microsoft.github.io/language-server-protocol/specifications/lsp/3.17/specification/
type SemanticTokens struct {
	// ResultID is an opaque server-issued identifier enabling delta requests.
	ResultID string   `json:"resultId,omitempty"`
	Data     []uint32 `json:"data"`
}

// SemanticTokensEdit is a single splice in a semanticTokens/full/delta
// response. Start and DeleteCount are expressed in flat array elements,
// not in tokens.
type SemanticTokensEdit struct {
	Start       uint32   `json:"start"`
	DeleteCount uint32   `json:"deleteCount"`
	Data        []uint32 `json:"data,omitempty"`
}

// SemanticTokensDelta is the payload of a semanticTokens/full/delta response.
type SemanticTokensDelta struct {
	ResultID string               `json:"resultId,omitempty"`
	Edits    []SemanticTokensEdit `json:"edits"`
}

// SemanticTokensLegend maps the integer token types and modifier bits of the
// wire format back to their names. Modifier bit i corresponds to
// TokenModifiers[i].
type SemanticTokensLegend struct {
	TokenTypes     []string `json:"tokenTypes"`
	TokenModifiers []string `json:"tokenModifiers"`
}

// Standard semantic token types, as registered in the LSP 3.17 specification.
const (
	TokenTypeNamespace     = "namespace"
	TokenTypeType          = "type"
	TokenTypeClass         = "class"
	TokenTypeEnum          = "enum"
	TokenTypeInterface     = "interface"
	TokenTypeStruct        = "struct"
	TokenTypeTypeParameter = "typeParameter"
	TokenTypeParameter     = "parameter"
	TokenTypeVariable      = "variable"
	TokenTypeProperty      = "property"
	TokenTypeEnumMember    = "enumMember"
	TokenTypeEvent         = "event"
	TokenTypeFunction      = "function"
	TokenTypeMethod        = "method"
	TokenTypeMacro         = "macro"
	TokenTypeKeyword       = "keyword"
	TokenTypeModifier      = "modifier"
	TokenTypeComment       = "comment"
	TokenTypeString        = "string"
	TokenTypeNumber        = "number"
	TokenTypeRegexp        = "regexp"
	TokenTypeOperator      = "operator"
	TokenTypeDecorator     = "decorator"
)

// Standard semantic token modifiers.
const (
	ModifierDeclaration    = "declaration"
	ModifierDefinition     = "definition"
	ModifierReadonly       = "readonly"
	ModifierStatic         = "static"
	ModifierDeprecated     = "deprecated"
	ModifierAbstract       = "abstract"
	ModifierAsync          = "async"
	ModifierModification   = "modification"
	ModifierDocumentation  = "documentation"
	ModifierDefaultLibrary = "defaultLibrary"
	ModifierConstant       = "constant"
)
