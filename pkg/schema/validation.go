package schema

import "fmt"

// ValidationSeverity indicates whether an issue is an error or warning.
type ValidationSeverity string

const (
	SeverityError   ValidationSeverity = "error"
	SeverityWarning ValidationSeverity = "warning"
)

// ValidationIssue is a single problem found in a workflow document. Path
// points at the offending element (e.g. "steps[2].conditions[0]"); StepID is
// set when the issue is scoped to a specific step, so hosts can surface it
// next to that step without parsing the path.
type ValidationIssue struct {
	Path     string             `json:"path"`
	StepID   string             `json:"step_id,omitempty"`
	Code     string             `json:"code"`
	Message  string             `json:"message"`
	Severity ValidationSeverity `json:"severity"`
}

func (i ValidationIssue) String() string {
	if i.Path == "" {
		return fmt.Sprintf("%s: %s", i.Code, i.Message)
	}
	return fmt.Sprintf("%s: %s: %s", i.Path, i.Code, i.Message)
}

// ValidationResult aggregates all issues from the validation pipeline.
type ValidationResult struct {
	Errors   []ValidationIssue `json:"errors,omitempty"`
	Warnings []ValidationIssue `json:"warnings,omitempty"`
}

// Valid returns true if there are no errors (warnings are acceptable).
func (r *ValidationResult) Valid() bool {
	return len(r.Errors) == 0
}

// Add routes an issue to the errors or warnings list by its severity.
// An issue with no severity set counts as an error.
func (r *ValidationResult) Add(issue ValidationIssue) {
	if issue.Severity == SeverityWarning {
		r.Warnings = append(r.Warnings, issue)
		return
	}
	issue.Severity = SeverityError
	r.Errors = append(r.Errors, issue)
}

// AddError appends an error-severity issue.
func (r *ValidationResult) AddError(path, code, message string) {
	r.Add(ValidationIssue{Path: path, Code: code, Message: message, Severity: SeverityError})
}

// AddWarning appends a warning-severity issue.
func (r *ValidationResult) AddWarning(path, code, message string) {
	r.Add(ValidationIssue{Path: path, Code: code, Message: message, Severity: SeverityWarning})
}

// AddStepError appends an error-severity issue scoped to a step.
func (r *ValidationResult) AddStepError(stepID, path, code, message string) {
	r.Add(ValidationIssue{StepID: stepID, Path: path, Code: code, Message: message, Severity: SeverityError})
}

// AddStepWarning appends a warning-severity issue scoped to a step.
func (r *ValidationResult) AddStepWarning(stepID, path, code, message string) {
	r.Add(ValidationIssue{StepID: stepID, Path: path, Code: code, Message: message, Severity: SeverityWarning})
}

// Merge combines another ValidationResult into this one.
func (r *ValidationResult) Merge(other *ValidationResult) {
	if other == nil {
		return
	}
	r.Errors = append(r.Errors, other.Errors...)
	r.Warnings = append(r.Warnings, other.Warnings...)
}

// Codes returns the distinct issue codes among the errors, in first-seen order.
func (r *ValidationResult) Codes() []string {
	seen := make(map[string]bool, len(r.Errors))
	var codes []string
	for _, issue := range r.Errors {
		if !seen[issue.Code] {
			seen[issue.Code] = true
			codes = append(codes, issue.Code)
		}
	}
	return codes
}

// ToError converts the result to a FlowError if invalid, nil if valid. The
// error message is the first issue's rendering; the full issue lists and the
// distinct error codes ride along as details.
func (r *ValidationResult) ToError() error {
	if r.Valid() {
		return nil
	}

	msg := r.Errors[0].String()
	if len(r.Errors) > 1 {
		msg = fmt.Sprintf("%s (and %d more errors)", msg, len(r.Errors)-1)
	}

	return NewError(ErrCodeValidation, msg).
		WithDetails(map[string]any{
			"codes":    r.Codes(),
			"errors":   r.Errors,
			"warnings": r.Warnings,
		})
}
