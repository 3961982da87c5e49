package app

import (
	"fmt"
	"strings"

	"whatsapp-campaign-launcher/internal/domain"
)

// ValidateInput is the operator's column selection for a pre-flight check.
type ValidateInput struct {
	PhoneColumn string
	NameColumn  string
	Mappings    []domain.VariableMapping
}

// ValidationResult is advisory; launch does not depend on it.
type ValidationResult struct {
	Valid           bool     `json:"valid"`
	Errors          []string `json:"errors"`
	TotalRecipients int      `json:"total_recipients"`
}

// Validate runs every structural check against the staged rows and collects
// all failures. A nil import short-circuits with a single error.
func Validate(imp *domain.StagedImport, in ValidateInput) ValidationResult {
	if imp == nil || len(imp.Rows) == 0 {
		return ValidationResult{
			Valid:  false,
			Errors: []string{"No CSV uploaded, please upload a CSV first"},
		}
	}

	first := imp.Rows[0]
	has := imp.HasHeader

	errs := []string{}
	if !has(in.PhoneColumn) {
		errs = append(errs, fmt.Sprintf("Phone column '%s' not found in CSV", in.PhoneColumn))
	}
	if in.NameColumn != "" && !has(in.NameColumn) {
		errs = append(errs, fmt.Sprintf("Name column '%s' not found in CSV", in.NameColumn))
	}
	for _, m := range in.Mappings {
		if !has(m.Column) {
			errs = append(errs, fmt.Sprintf("Mapped column '%s' not found in CSV", m.Column))
		}
	}

	sample := strings.TrimSpace(first[in.PhoneColumn])
	if !domain.PlausiblePhone(sample) {
		errs = append(errs, fmt.Sprintf("Sample phone '%s' looks invalid", sample))
	}

	return ValidationResult{
		Valid:           len(errs) == 0,
		Errors:          errs,
		TotalRecipients: len(imp.Rows),
	}
}
