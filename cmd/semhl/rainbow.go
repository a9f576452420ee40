package main

import (
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/semhl/pkg/rainbow"
	"github.com/walteh/semhl/pkg/theme"
)

// NewRainbowCommand shows the deterministic color each identifier would
// receive from the rainbow cache.
func NewRainbowCommand() *cobra.Command {
	var (
		themePath string
		useHSL    bool
	)

	cmd := &cobra.Command{
		Use:   "rainbow <identifier>...",
		Short: "Show deterministic rainbow color assignment for identifiers",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			syntaxTheme := theme.New(nil, nil)
			if themePath != "" {
				loaded, err := theme.Load(afero.NewOsFs(), themePath)
				if err != nil {
					return errors.Errorf("loading theme: %w", err)
				}
				syntaxTheme = loaded
			}

			mode := rainbow.ThemePalette
			if useHSL {
				mode = rainbow.DynamicHSL
			}
			cache := rainbow.NewColorCache(mode)

			for _, identifier := range args {
				style := cache.GetOrInsert(identifier, syntaxTheme)
				hex := "(none)"
				if style.HasColor() {
					hex = style.Color.Hex()
				}
				cmd.Printf("%s\t%s\t%#016x\n", identifier, hex, rainbow.HashIdentifier(identifier))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&themePath, "theme", "", "YAML theme file providing the rainbow palette")
	cmd.Flags().BoolVar(&useHSL, "hsl", false, "derive hues directly instead of using the theme palette")

	return cmd
}
