package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestIntegrityError(t *testing.T) {
	tests := []struct {
		name       string
		category   ErrorCategory
		code       ErrorCode
		message    string
		cause      error
		expectCode int
		expectMsg  string
	}{
		{
			name:       "file error",
			category:   CategoryFile,
			code:       CodeFileNotFound,
			message:    "file not found",
			cause:      errors.New("no such file"),
			expectCode: 2,
			expectMsg:  "file not found: no such file",
		},
		{
			name:       "parse error",
			category:   CategoryParse,
			code:       CodeInvalidData,
			message:    "invalid data",
			expectCode: 3,
			expectMsg:  "invalid data",
		},
		{
			name:       "validation error",
			category:   CategoryValidation,
			code:       CodeMalformedInput,
			message:    "bad description",
			expectCode: 3,
			expectMsg:  "bad description",
		},
		{
			name:       "configuration error",
			category:   CategoryConfiguration,
			code:       CodeInvalidConfig,
			message:    "invalid config",
			cause:      errors.New("workers must be positive"),
			expectCode: 4,
			expectMsg:  "invalid config: workers must be positive",
		},
		{
			name:       "integrity error",
			category:   CategoryIntegrity,
			code:       CodeDeduplicationFailed,
			message:    "dedup failed",
			expectCode: 5,
			expectMsg:  "dedup failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err *IntegrityError
			if tt.cause != nil {
				err = Wrap(tt.cause, tt.category, tt.code, tt.message)
			} else {
				err = New(tt.category, tt.code, tt.message)
			}

			if err.Category != tt.category {
				t.Errorf("expected category %s, got %s", tt.category, err.Category)
			}
			if err.Code != tt.code {
				t.Errorf("expected code %s, got %s", tt.code, err.Code)
			}
			if err.GetExitCode() != tt.expectCode {
				t.Errorf("expected exit code %d, got %d", tt.expectCode, err.GetExitCode())
			}
			if err.Error() != tt.expectMsg {
				t.Errorf("expected error string %q, got %q", tt.expectMsg, err.Error())
			}
			if tt.cause != nil && err.Unwrap() != tt.cause {
				t.Errorf("expected to unwrap to %v, got %v", tt.cause, err.Unwrap())
			}
			if len(err.StackTrace) == 0 {
				t.Error("expected a captured stack trace")
			}
		})
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(nil, CategoryFile, CodeFileNotFound, "x") != nil {
		t.Error("expected Wrap(nil) to return nil")
	}
	if WrapIfNeeded(nil, CategoryFile, CodeFileNotFound, "x") != nil {
		t.Error("expected WrapIfNeeded(nil) to return nil")
	}
}

func TestIntegrityErrorWithContext(t *testing.T) {
	err := New(CategoryValidation, CodeMalformedInput, "test error").
		WithContext("row", 7).
		WithSuggestion("fix upstream")

	if err.Context["row"] != 7 {
		t.Errorf("expected row context 7, got %v", err.Context["row"])
	}

	expected := "test error (suggestion: fix upstream)"
	if err.Error() != expected {
		t.Errorf("expected error string %q, got %q", expected, err.Error())
	}
}

func TestSpecificErrorConstructors(t *testing.T) {
	t.Run("FileError", func(t *testing.T) {
		err := FileError(CodeFilePermission, "/tmp/tx.csv", errors.New("denied"))
		if err.Category != CategoryFile {
			t.Errorf("expected file category, got %s", err.Category)
		}
		if err.Context["file_path"] != "/tmp/tx.csv" {
			t.Errorf("expected file_path context, got %v", err.Context["file_path"])
		}
	})

	t.Run("ParseError", func(t *testing.T) {
		err := ParseError(CodeInvalidData, "tx.csv", 4, "amount", "abc", nil)
		if err.Category != CategoryParse {
			t.Errorf("expected parse category, got %s", err.Category)
		}
		if err.Context["line"] != 4 || err.Context["column"] != "amount" {
			t.Errorf("unexpected context: %v", err.Context)
		}
	})

	t.Run("ValidationError", func(t *testing.T) {
		err := ValidationError(CodeMalformedInput, "description", "row 3", nil)
		if err.Category != CategoryValidation || err.Code != CodeMalformedInput {
			t.Errorf("unexpected category/code: %s/%s", err.Category, err.Code)
		}
		if err.Suggestion == "" {
			t.Error("expected a suggestion")
		}
	})

	t.Run("IntegrityFailure", func(t *testing.T) {
		err := IntegrityFailure(CodeBalanceFailed, "balance_reconstruction", errors.New("boom"))
		if err.GetExitCode() != 5 {
			t.Errorf("expected exit code 5, got %d", err.GetExitCode())
		}
		if err.Context["stage"] != "balance_reconstruction" {
			t.Errorf("expected stage context, got %v", err.Context["stage"])
		}
	})

	t.Run("InternalError", func(t *testing.T) {
		err := InternalError(CodeCancelled, "pipeline", nil)
		if err.Category != CategoryInternal {
			t.Errorf("expected internal category, got %s", err.Category)
		}
	})
}

func TestAsIntegrityError(t *testing.T) {
	inner := ValidationError(CodeMissingField, "user_id", "", nil)
	wrapped := fmt.Errorf("loading: %w", inner)

	got, ok := AsIntegrityError(wrapped)
	if !ok {
		t.Fatal("expected to find IntegrityError in chain")
	}
	if got != inner {
		t.Error("expected the original error instance")
	}

	if _, ok := AsIntegrityError(errors.New("plain")); ok {
		t.Error("plain error should not be an IntegrityError")
	}

	if WrapIfNeeded(wrapped, CategoryInternal, CodeUnexpectedError, "x") != inner {
		t.Error("WrapIfNeeded should return the existing IntegrityError")
	}
}
