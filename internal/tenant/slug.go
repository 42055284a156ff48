package tenant

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	collectionPrefix = "org_"

	// maxSlugLength is in bytes, cut on a rune boundary.
	maxSlugLength = 100
)

// CollectionName derives the tenant collection name for an organization name.
// Letters and digits of every script are kept; those that fold to plain ASCII
// (accented Latin, full width forms) are folded. Every run of other characters
// becomes a single underscore and the result is prefixed with org_.
//
//	"Acme Co"        -> org_acme_co
//	"  Café-Crème! " -> org_cafe_creme
//	"Ωμέγα Ltd"      -> org_ωμέγα_ltd
func CollectionName(organizationName string) (string, error) {
	fold := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))

	var b strings.Builder
	separate := false
	inScriptWord := false

	for _, r := range strings.ToLower(norm.NFKC.String(organizationName)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsNumber(r):
			if separate && b.Len() > 0 {
				b.WriteByte('_')
			}
			separate = false

			if ascii, ok := asciiFold(fold, r); ok {
				b.WriteString(ascii)
				inScriptWord = false
				continue
			}
			b.WriteRune(r)
			inScriptWord = true
		case unicode.IsMark(r):
			// vowel signs and viramas belong to the letter before them
			if inScriptWord {
				b.WriteRune(r)
			}
		default:
			separate = true
			inScriptWord = false
		}
	}

	slug := b.String()
	if len(slug) > maxSlugLength {
		cut := maxSlugLength
		for cut > 0 && !utf8.RuneStart(slug[cut]) {
			cut--
		}
		slug = strings.TrimRight(slug[:cut], "_")
	}

	if slug == "" {
		return "", fmt.Errorf("%w: organization_name must contain at least one letter or digit", ErrValidation)
	}

	return collectionPrefix + slug, nil
}

// asciiFold strips combining marks from r and reports whether what remains is
// lower case ASCII letters and digits.
func asciiFold(fold transform.Transformer, r rune) (string, bool) {
	if r < utf8.RuneSelf {
		return string(r), ('a' <= r && r <= 'z') || ('0' <= r && r <= '9')
	}

	folded, _, err := transform.String(fold, string(r))
	if err != nil || folded == "" {
		return "", false
	}
	folded = strings.ToLower(folded)
	for i := 0; i < len(folded); i++ {
		c := folded[i]
		if !('a' <= c && c <= 'z') && !('0' <= c && c <= '9') {
			return "", false
		}
	}
	return folded, true
}
