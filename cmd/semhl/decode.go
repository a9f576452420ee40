package main

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/semhl/pkg/lsp/protocol"
	"github.com/walteh/semhl/pkg/semtok"
)

// tokenDump is the JSON shape produced by dumping a semanticTokens/full
// response together with the server's legend.
type tokenDump struct {
	Legend protocol.SemanticTokensLegend `json:"legend"`
	Tokens protocol.SemanticTokens       `json:"tokens"`
}

// NewDecodeCommand decodes a delta-encoded token dump into absolute
// positions with legend names resolved.
func NewDecodeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decode <dump.json>",
		Short: "Decode a semantic token dump into absolute positions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDecode(cmd, afero.NewOsFs(), args[0])
		},
	}
	return cmd
}

func runDecode(cmd *cobra.Command, fs afero.Fs, path string) error {
	logger := zerolog.Ctx(cmd.Context())

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return errors.Errorf("reading token dump: %w", err)
	}

	var dump tokenDump
	if err := json.Unmarshal(data, &dump); err != nil {
		return errors.Errorf("decoding token dump: %w", err)
	}

	tokens := semtok.FromFull(dump.Tokens.Data)
	logger.Debug().
		Int("tokens", tokens.Len()).
		Str("result_id", dump.Tokens.ResultID).
		Msg("decoded token dump")

	for it := tokens.Iter(); ; {
		token, ok := it.Next()
		if !ok {
			break
		}

		name := fmt.Sprintf("#%d", token.Type)
		if int(token.Type) < len(dump.Legend.TokenTypes) {
			name = dump.Legend.TokenTypes[token.Type]
		}

		var modifiers []string
		for i, modifier := range dump.Legend.TokenModifiers {
			if token.Modifiers&(1<<uint32(i)) != 0 {
				modifiers = append(modifiers, modifier)
			}
		}

		cmd.Printf("%d:%d\tlen=%d\t%s\t%v\n", token.Line, token.Start, token.Length, name, modifiers)
	}

	return nil
}
