// Package naming builds canonical archive filenames of the form
// YYYY-MM-DD_<DocType>_<Entity>_<Detail>.<ext>.
package naming

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

// Generator is deterministic given its inputs; Now is injectable so
// the default date is testable.
type Generator struct {
	Now func() time.Time
}

func New() *Generator {
	return &Generator{Now: time.Now}
}

// Generate sanitizes each part by replacing internal spaces with
// hyphens and capitalizes the document type's first letter. It makes
// no uniqueness guarantee; collisions are the archiver's problem.
func (g *Generator) Generate(docType, entity, detail, extension string, date *time.Time) string {
	day := g.Now()
	if date != nil {
		day = *date
	}

	return fmt.Sprintf("%s_%s_%s_%s.%s",
		day.Format("2006-01-02"),
		capitalize(hyphenate(docType)),
		hyphenate(entity),
		hyphenate(detail),
		extension,
	)
}

func hyphenate(s string) string {
	return strings.ReplaceAll(s, " ", "-")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
