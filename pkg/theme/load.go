package theme

import (
	"github.com/lucasb-eyer/go-colorful"
	"github.com/spf13/afero"
	"gitlab.com/tozd/go/errors"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// themeFile is the on-disk YAML shape:
//
//	name: catppuccin-mocha
//	styles:
//	  variable: "#cdd6f4"
//	  type.class.definition: "#f9e2af"
//	rainbow:
//	  - "#f38ba8"
//	  - "#fab387"
type themeFile struct {
	Name    string            `yaml:"name"`
	Styles  map[string]string `yaml:"styles"`
	Rainbow []string          `yaml:"rainbow"`
}

// Load reads a YAML theme file. Every invalid color in the file is reported,
// not just the first one.
func Load(fs afero.Fs, path string) (*SyntaxTheme, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errors.Errorf("reading theme file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML theme data.
func Parse(data []byte) (*SyntaxTheme, error) {
	var file themeFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.Errorf("decoding theme yaml: %w", err)
	}

	var invalid error
	styles := make(map[string]Style, len(file.Styles))
	for key, hex := range file.Styles {
		color, err := colorful.Hex(hex)
		if err != nil {
			invalid = multierr.Append(invalid, errors.Errorf("style %q: %w", key, err))
			continue
		}
		styles[key] = WithColor(color)
	}

	rainbow := make([]Style, 0, len(file.Rainbow))
	for i, hex := range file.Rainbow {
		color, err := colorful.Hex(hex)
		if err != nil {
			invalid = multierr.Append(invalid, errors.Errorf("rainbow slot %d: %w", i, err))
			continue
		}
		rainbow = append(rainbow, WithColor(color))
	}

	if invalid != nil {
		return nil, errors.Errorf("theme has invalid colors: %w", invalid)
	}
	return New(styles, rainbow), nil
}
