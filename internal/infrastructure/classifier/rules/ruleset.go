package rules

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// EntityRule maps a known counterparty to the patterns that identify
// it. Rules are held in slices, not maps: declaration order breaks
// ties and must stay stable across runs.
type EntityRule struct {
	Name     string   `yaml:"name"`
	Patterns []string `yaml:"patterns"`
}

// TypeRule lists the high-value signals for one document type. Any
// single match is already a strong indicator.
type TypeRule struct {
	Name    string   `yaml:"name"`
	Signals []string `yaml:"signals"`
}

// TaxonomyRule maps a detected document type to its archive category.
type TaxonomyRule struct {
	DocType  string `yaml:"doc_type"`
	Category string `yaml:"category"`
}

// Ruleset is the complete pattern configuration for the classifier.
type Ruleset struct {
	Entities      []EntityRule   `yaml:"entities"`
	DocTypes      []TypeRule     `yaml:"doc_types"`
	InvoiceChecks []string       `yaml:"invoice_checks"`
	Taxonomy      []TaxonomyRule `yaml:"taxonomy"`
}

// DefaultRuleset is the built-in table. A YAML file loaded with
// LoadRuleset replaces it wholesale.
func DefaultRuleset() Ruleset {
	return Ruleset{
		Entities: []EntityRule{
			{Name: "Toyota Financial Services", Patterns: []string{`Toyota Financial Services`, `Toyota Finance`, `Toyota Financial`}},
			{Name: "Amex", Patterns: []string{`American Express`, `Amex`, `Onboarding Docs`}},
			{Name: "Nandos", Patterns: []string{`Nandos`, `Nando's`}},
			{Name: "National Parking Enforcement Providers", Patterns: []string{`National Parking Enforcement`, `NPE`}},
			{Name: "HireRight", Patterns: []string{`HireRight`, `Background check`}},
			{Name: "Queens Road Opticians", Patterns: []string{`Queens Road Opticians`, `optician`}},
			{Name: "Metropolitan University", Patterns: []string{`Metropolitan University`, `Degree`, `Computing and Statistics`}},
		},
		DocTypes: []TypeRule{
			{Name: "FinanceAgreementCompletion", Signals: []string{
				`Agreement number`, `Registration number`, `Your agreement is complete`,
				`settlement`, `finance completion`, `completion letter`,
			}},
			{Name: "Invoice", Signals: []string{`VAT total`, `Invoice number`, `Tax Invoice`}},
			{Name: "Certificate", Signals: []string{`Degree`, `Certificate`, `Honours`, `Computing and Statistics`, `conferred`}},
			{Name: "MedicalLetter", Signals: []string{`Optician`, `Eye examination`, `Queens Road`}},
		},
		InvoiceChecks: []string{`VAT`, `Invoice number`, `Line items`},
		Taxonomy: []TaxonomyRule{
			{DocType: "FinanceAgreementCompletion", Category: "05-financial"},
			{DocType: "Invoice", Category: "05-financial"},
			{DocType: "Certificate", Category: "03-credentials"},
			{DocType: "MedicalLetter", Category: "01-medical"},
			{DocType: "Document", Category: "00-uncategorized"},
		},
	}
}

// LoadRuleset reads a YAML rule file. Missing path returns the
// defaults so deployments without a rule file keep working.
func LoadRuleset(path string) (Ruleset, error) {
	if path == "" {
		return DefaultRuleset(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultRuleset(), nil
		}
		return Ruleset{}, fmt.Errorf("read ruleset: %w", err)
	}

	var rs Ruleset
	if err := yaml.Unmarshal(raw, &rs); err != nil {
		return Ruleset{}, fmt.Errorf("parse ruleset yaml: %w", err)
	}
	if len(rs.Entities) == 0 && len(rs.DocTypes) == 0 {
		return Ruleset{}, fmt.Errorf("ruleset %s declares no entities or doc types", path)
	}
	return rs, nil
}
