package validation

import (
	"marketcore/pkg/contracts/domain"
)

// NewReport merges validator output into one report: schema and type
// issues first, then consistency issues, each in the order produced.
// executed names the categories that ran to completion.
func NewReport(mode domain.ValidationMode, executed []domain.Category, schemaIssues, consistencyIssues []domain.ValidationIssue) *domain.ValidationReport {
	issues := make([]domain.ValidationIssue, 0, len(schemaIssues)+len(consistencyIssues))
	issues = append(issues, schemaIssues...)
	issues = append(issues, consistencyIssues...)
	return domain.NewValidationReport(mode, executed, issues)
}
