package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/uow/internal/compiler"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool                       `json:"valid"`
	Entities int                        `json:"entities,omitempty"`
	Cycles   []compiler.CycleWarning    `json:"cycles,omitempty"`
	Errors   []compiler.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <model-dir>",
		Short: "Validate a CUE model",
		Long: `Validate the CUE entity model in a directory.

Checks entity and field declarations, inheritance and association
targets, and reports reference cycles between hierarchies. A cycle with a
nullable reference is broken at flush time and only warned about; a cycle
with no nullable reference cannot be flushed and fails validation.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	result, loadErrors := compiler.LoadDir(dir)
	if result == nil {
		var loadErr *compiler.LoadError
		if errors.As(loadErrors[0], &loadErr) {
			return outputValidateError(formatter, loadErr.Code, loadErr.Message)
		}
		return outputValidateError(formatter, compiler.ErrCodeGeneric, loadErrors[0].Error())
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", result.FileCount, dir)

	errs := validationErrors(loadErrors)
	for _, c := range result.Cycles {
		if c.Unresolvable {
			errs = append(errs, compiler.ValidationError{
				Field:   "cycle",
				Message: c.Message,
				Code:    compiler.ErrUnresolvableCycle,
			})
		}
	}
	if len(errs) > 0 {
		return outputValidationErrors(formatter, errs)
	}

	return outputValidateSuccess(formatter, ValidationResult{
		Valid:    true,
		Entities: len(result.Spec.Entities),
		Cycles:   result.Cycles,
	})
}

// validationErrors converts LoadDir errors into validation errors.
func validationErrors(errs []error) []compiler.ValidationError {
	out := make([]compiler.ValidationError, 0, len(errs))
	for _, err := range errs {
		var ve compiler.ValidationError
		var le *compiler.LoadError
		switch {
		case errors.As(err, &ve):
			out = append(out, ve)
		case errors.As(err, &le):
			line := 0
			if le.Pos.IsValid() {
				line = le.Pos.Line()
			}
			out = append(out, compiler.ValidationError{Field: "load", Message: le.Message, Code: le.Code, Line: line})
		default:
			out = append(out, compiler.ValidationError{Field: "load", Message: err.Error(), Code: compiler.ErrCodeGeneric})
		}
	}
	return out
}

func outputValidateSuccess(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.JSON() {
		return formatter.Success(result)
	}

	w := formatter.Writer
	for _, c := range result.Cycles {
		fmt.Fprintf(w, "⚠ %s\n", c.Message)
	}
	fmt.Fprintf(w, "✓ Model valid (%d entities)\n", result.Entities)
	return nil
}

// outputValidateError outputs an error that stopped loading. It is a
// command error (exit code 2).
func outputValidateError(formatter *OutputFormatter, code, message string) error {
	_ = formatter.Error(code, message, nil)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs every validation error. Validation
// failures exit with code 1.
func outputValidationErrors(formatter *OutputFormatter, errs []compiler.ValidationError) error {
	exitErr := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))

	if formatter.JSON() {
		if err := formatter.Failure(errs[0].Code, errs[0].Message, ValidationResult{Errors: errs}); err != nil {
			return err
		}
		return exitErr
	}

	w := formatter.Writer
	fmt.Fprintln(w, "✗ Validation failed")
	fmt.Fprintln(w)
	for _, err := range errs {
		if err.Line > 0 {
			fmt.Fprintf(w, "line %d\n", err.Line)
		}
		fmt.Fprintf(w, "  %s: %s: %s\n\n", err.Code, err.Field, err.Message)
	}
	return exitErr
}
