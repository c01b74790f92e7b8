package volume

import (
	"strings"
	"unicode"
)

// DisplayWidth is the fixed number of characters a device shows per entity.
const DisplayWidth = 4

// NameOptions controls display name derivation.
type NameOptions struct {
	// Overrides maps a binary to the label shown instead of the entity name.
	Overrides  map[string]string
	Capitalize bool
}

// DisplayName derives the fixed-width, comma-free label for e.
func DisplayName(e Entity, opts NameOptions) string {
	name := e.Name()
	if b := e.Binary(); b != "" {
		if label, ok := opts.Overrides[b]; ok {
			name = label
		}
	}

	short := []rune(name)
	if len(short) > DisplayWidth {
		short = short[:DisplayWidth]
	}
	if opts.Capitalize {
		short = capitalize(short)
	}

	out := strings.ReplaceAll(string(short), ",", "")
	if n := len([]rune(out)); n < DisplayWidth {
		out += strings.Repeat(" ", DisplayWidth-n)
	}
	return out
}

// capitalize upper-cases the first rune and lower-cases the rest.
func capitalize(r []rune) []rune {
	out := make([]rune, len(r))
	for i, c := range r {
		if i == 0 {
			out[i] = unicode.ToUpper(c)
		} else {
			out[i] = unicode.ToLower(c)
		}
	}
	return out
}
