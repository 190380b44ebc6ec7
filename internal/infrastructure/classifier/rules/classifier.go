// Package rules implements the pattern-table document classifier.
// Entity matches in the header window (first 20% of the text) score
// higher than body matches; document types are scored by how many of
// their signals appear anywhere in the body.
package rules

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"

	"github.com/pamin/idms/internal/core/domain"
)

// Scoring holds the tuned heuristics as configurable constants. Their
// values are domain-calibrated, not derived.
type Scoring struct {
	HeaderFraction         float64
	HeaderEntityConfidence float64
	BodyEntityConfidence   float64
	TypeBase               float64
	TypeStep               float64
	TypeMaxMatches         int
	GenericTypeConfidence  float64
	InvoicePenalty         float64
}

func DefaultScoring() Scoring {
	return Scoring{
		HeaderFraction:         0.2,
		HeaderEntityConfidence: 0.98,
		BodyEntityConfidence:   0.70,
		TypeBase:               0.4,
		TypeStep:               0.15,
		TypeMaxMatches:         3,
		GenericTypeConfidence:  0.1,
		InvoicePenalty:         0.5,
	}
}

type compiledEntity struct {
	name     string
	patterns []*regexp.Regexp
}

type compiledType struct {
	name    string
	signals []*regexp.Regexp
	raw     []string
}

// Classifier evaluates the rule tables in declaration order.
type Classifier struct {
	scoring       Scoring
	entities      []compiledEntity
	docTypes      []compiledType
	invoiceChecks []*regexp.Regexp
	taxonomy      []TaxonomyRule
}

func NewClassifier(rs Ruleset, scoring Scoring) (*Classifier, error) {
	c := &Classifier{scoring: scoring, taxonomy: rs.Taxonomy}

	for _, e := range rs.Entities {
		ce := compiledEntity{name: e.Name}
		for _, p := range e.Patterns {
			re, err := compileInsensitive(p)
			if err != nil {
				return nil, fmt.Errorf("entity %q: %w", e.Name, err)
			}
			ce.patterns = append(ce.patterns, re)
		}
		c.entities = append(c.entities, ce)
	}

	for _, t := range rs.DocTypes {
		ct := compiledType{name: t.Name, raw: t.Signals}
		for _, s := range t.Signals {
			re, err := compileInsensitive(s)
			if err != nil {
				return nil, fmt.Errorf("doc type %q: %w", t.Name, err)
			}
			ct.signals = append(ct.signals, re)
		}
		c.docTypes = append(c.docTypes, ct)
	}

	for _, s := range rs.InvoiceChecks {
		re, err := compileInsensitive(s)
		if err != nil {
			return nil, fmt.Errorf("invoice check: %w", err)
		}
		c.invoiceChecks = append(c.invoiceChecks, re)
	}
	return c, nil
}

func compileInsensitive(pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile(`(?i)` + pattern)
	if err != nil {
		return nil, fmt.Errorf("compile pattern %q: %w", pattern, err)
	}
	return re, nil
}

func (c *Classifier) Classify(_ context.Context, text string) (domain.Classification, error) {
	if text == "" {
		return domain.Classification{}, domain.WrapError(domain.ErrClassification, "classify", errors.New("no content provided"))
	}

	entity, entityConf := c.detectEntity(text)
	docType, typeConf, signals := c.detectType(text)

	confidence := (entityConf + typeConf) / 2

	// Demote documents that merely look invoice-shaped but carry none
	// of the stricter invoice keywords.
	if docType == "Invoice" && !anyMatch(c.invoiceChecks, text) {
		confidence *= c.scoring.InvoicePenalty
		docType = domain.DocTypeUnclassified
	}

	return domain.Classification{
		Entity:           entity,
		EntityConfidence: entityConf,
		DocType:          docType,
		TypeConfidence:   typeConf,
		Confidence:       round2(confidence),
		Category:         c.category(docType),
		Signals:          signals,
	}, nil
}

// detectEntity checks the header window first; a header hit carries a
// higher confidence than one found only in the body.
func (c *Classifier) detectEntity(text string) (string, float64) {
	// The window is a fraction of characters, not bytes, so multibyte
	// runes never shift the boundary or get split by it.
	runes := []rune(text)
	headerLimit := int(float64(len(runes)) * c.scoring.HeaderFraction)
	header := string(runes[:headerLimit])

	for _, e := range c.entities {
		for _, re := range e.patterns {
			if re.MatchString(header) {
				return e.name, c.scoring.HeaderEntityConfidence
			}
		}
	}
	for _, e := range c.entities {
		for _, re := range e.patterns {
			if re.MatchString(text) {
				return e.name, c.scoring.BodyEntityConfidence
			}
		}
	}
	return domain.EntityUnknown, 0.0
}

// detectType scores each candidate type by matched signal count,
// capped at TypeMaxMatches. A strictly higher score is required to
// displace an earlier type, so table order resolves ties.
func (c *Classifier) detectType(text string) (string, float64, []string) {
	docType := domain.DocTypeGeneric
	typeConf := c.scoring.GenericTypeConfidence

	var signals []string
	for _, t := range c.docTypes {
		matches := 0
		for i, re := range t.signals {
			if re.MatchString(text) {
				matches++
				signals = append(signals, t.raw[i])
			}
		}
		if matches == 0 {
			continue
		}
		capped := matches
		if capped > c.scoring.TypeMaxMatches {
			capped = c.scoring.TypeMaxMatches
		}
		score := c.scoring.TypeBase + float64(capped)*c.scoring.TypeStep
		if score > typeConf {
			docType = t.name
			typeConf = score
		}
	}
	return docType, typeConf, signals
}

func (c *Classifier) category(docType string) string {
	for _, t := range c.taxonomy {
		if t.DocType == docType {
			return t.Category
		}
	}
	return domain.CategoryUnsorted
}

func anyMatch(res []*regexp.Regexp, text string) bool {
	for _, re := range res {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
