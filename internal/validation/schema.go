package validation

import (
	"fmt"

	"marketcore/pkg/contracts/domain"
)

// ValidateSchema checks required-column presence and column types against
// schema. Only column metadata is read.
func ValidateSchema(t *domain.NormalizedTable, schema domain.Schema) []domain.ValidationIssue {
	var issues []domain.ValidationIssue
	for _, spec := range schema.Columns {
		col, ok := spec.Resolve(t)
		if !ok {
			if spec.Required {
				issues = append(issues, domain.ValidationIssue{
					Severity: domain.SeverityError,
					Category: domain.CategorySchema,
					Column:   spec.Name,
					Message:  fmt.Sprintf("required column %q is missing", spec.Name),
				})
			}
			continue
		}
		if issue, bad := checkType(t.Columns()[col].Name, t.ColumnType(col), spec.Type); bad {
			issues = append(issues, issue)
		}
	}
	return issues
}

// checkType compares an inferred column type with the declared one.
// Integer data in a float column widens without loss and is only noted.
func checkType(name string, got, want domain.ColumnType) (domain.ValidationIssue, bool) {
	if want == "" || got == want {
		return domain.ValidationIssue{}, false
	}
	issue := domain.ValidationIssue{
		Severity: domain.SeverityError,
		Category: domain.CategoryType,
		Column:   name,
		Message:  fmt.Sprintf("column %q is %s, expected %s", name, got, want),
	}
	if got == domain.TypeInteger && want == domain.TypeFloat {
		issue.Severity = domain.SeverityWarning
		issue.Message = fmt.Sprintf("column %q holds integers, widened to %s", name, want)
	}
	return issue, true
}
