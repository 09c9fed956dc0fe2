package dom

import (
	"strings"

	"github.com/aymerick/douceur/parser"

	perrors "github.com/conneroisu/perfguard/internal/errors"
)

type declaration struct {
	property  string
	value     string
	important bool
}

// parseInlineStyle parses a style attribute into ordered declarations.
// Property names are lower-cased; later duplicates replace earlier ones.
// A style that does not parse is reported as an element error so callers
// leave the attribute as it is.
func parseInlineStyle(style string) ([]declaration, error) {
	style = strings.TrimSpace(style)
	if style == "" {
		return nil, nil
	}
	// The last declaration only gets its value once a terminator is seen.
	if !strings.HasSuffix(style, ";") {
		style += ";"
	}
	parsed, err := parser.ParseDeclarations(style)
	if err != nil {
		return nil, perrors.NewElementError(perrors.ErrCodeParse, "malformed inline style", err)
	}
	decls := make([]declaration, 0, len(parsed))
	for _, d := range parsed {
		prop := NormalizeName(d.Property)
		if prop == "" {
			continue
		}
		decls = upsertDeclaration(decls, declaration{property: prop, value: d.Value, important: d.Important})
	}
	return decls, nil
}

func upsertDeclaration(decls []declaration, decl declaration) []declaration {
	for i := range decls {
		if decls[i].property == decl.property {
			decls[i] = decl
			return decls
		}
	}
	return append(decls, decl)
}

func removeDeclaration(decls []declaration, prop string) []declaration {
	kept := decls[:0]
	for _, d := range decls {
		if d.property != prop {
			kept = append(kept, d)
		}
	}
	return kept
}

func renderInlineStyle(decls []declaration) string {
	parts := make([]string, 0, len(decls))
	for _, d := range decls {
		part := d.property + ": " + d.value
		if d.important {
			part += " !important"
		}
		parts = append(parts, part)
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, "; ") + ";"
}

// NormalizeName returns an attribute or CSS property name the way the
// document stores it.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// StyleProperty returns the inline value of property on a style attribute
// value, without any !important suffix.
func StyleProperty(style, property string) (string, bool) {
	decls, err := parseInlineStyle(style)
	if err != nil {
		return "", false
	}
	property = NormalizeName(property)
	for _, d := range decls {
		if d.property == property {
			return d.value, true
		}
	}
	return "", false
}
