package domain

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestIsInvalidTransition(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "sentinel",
			err:  ErrInvalidTransition,
			want: true,
		},
		{
			name: "typed transition error",
			err:  &TransitionError{OrderID: "oc-1", From: StatusSent, To: StatusPending, HasCurrent: true},
			want: true,
		},
		{
			name: "wrapped typed error",
			err:  fmt.Errorf("change status: %w", &TransitionError{OrderID: "oc-1", To: StatusSent}),
			want: true,
		},
		{
			name: "other error",
			err:  ErrOrderNotFound,
			want: false,
		},
		{
			name: "nil error",
			err:  nil,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsInvalidTransition(tt.err); got != tt.want {
				t.Errorf("IsInvalidTransition() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTransitionError_Message(t *testing.T) {
	tests := []struct {
		name string
		err  *TransitionError
		want string
	}{
		{
			name: "no current status",
			err:  &TransitionError{OrderID: "oc-1", To: StatusSent},
			want: "has no active status",
		},
		{
			name: "terminal status",
			err:  &TransitionError{OrderID: "oc-1", From: StatusCanceled, To: StatusSent, HasCurrent: true},
			want: `is "Cancelada", a terminal status`,
		},
		{
			name: "illegal pair",
			err:  &TransitionError{OrderID: "oc-1", From: StatusSent, To: StatusPending, HasCurrent: true},
			want: `from "Enviada" to "Pendiente"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if msg := tt.err.Error(); !strings.Contains(msg, tt.want) {
				t.Fatalf("message %q does not contain %q", msg, tt.want)
			}
		})
	}
}

func TestRetirementError(t *testing.T) {
	defaultErr := &RetirementError{SupplierID: "prov-1", Reason: ErrDefaultSupplierInUse, ArticleID: "art-1"}
	if !errors.Is(defaultErr, ErrDefaultSupplierInUse) {
		t.Fatal("expected default supplier reason to unwrap")
	}
	if !IsRetirementRefused(defaultErr) {
		t.Fatal("expected retirement to be refused")
	}
	if !strings.Contains(defaultErr.Error(), "art-1") {
		t.Fatalf("message should name the article: %q", defaultErr.Error())
	}

	openErr := &RetirementError{SupplierID: "prov-1", Reason: ErrOpenOrderExists, OrderID: "oc-7"}
	if !errors.Is(openErr, ErrOpenOrderExists) {
		t.Fatal("expected open order reason to unwrap")
	}
	if !strings.Contains(openErr.Error(), "oc-7") {
		t.Fatalf("message should name the order: %q", openErr.Error())
	}

	if IsRetirementRefused(ErrSupplierNotFound) {
		t.Fatal("not found is not a refusal")
	}
}

func TestFinalizationError_PartialSuccess(t *testing.T) {
	err := fmt.Errorf("transition: %w", &FinalizationError{OrderID: "oc-1", Err: ErrArticleNotFound})

	if !IsPartialSuccess(err) {
		t.Fatal("expected partial success")
	}
	if !errors.Is(err, ErrArticleNotFound) {
		t.Fatal("expected cause to unwrap")
	}
	if IsPartialSuccess(ErrArticleNotFound) {
		t.Fatal("plain error is not a partial success")
	}
}

func TestStoreError(t *testing.T) {
	cause := errors.New("connection refused")
	err := StoreError("select order", cause)

	if !IsStoreUnavailable(err) {
		t.Fatal("expected store unavailable")
	}
	if !errors.Is(err, cause) {
		t.Fatal("expected cause to be preserved")
	}
	if !strings.HasPrefix(err.Error(), "select order: ") {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{err: nil, want: ""},
		{err: &TransitionError{OrderID: "oc-1", From: StatusSent, To: StatusPending, HasCurrent: true}, want: CodeInvalidTransition},
		{err: &RetirementError{SupplierID: "p", Reason: ErrDefaultSupplierInUse}, want: CodeDefaultSupplierInUse},
		{err: &RetirementError{SupplierID: "p", Reason: ErrOpenOrderExists}, want: CodeOpenOrderExists},
		{err: fmt.Errorf("replace: %w", ErrStatusConflict), want: CodeStatusConflict},
		{err: ErrActiveStatusExists, want: CodeStatusConflict},
		{err: ErrSupplierRetired, want: CodeSupplierRetired},
		{err: &FinalizationError{OrderID: "oc-1", Err: ErrIncompleteOrderData}, want: CodeIncompleteOrderData},
		{err: &FinalizationError{OrderID: "oc-1", Err: ErrArticleNotFound}, want: CodeArticleNotFound},
		{err: ErrOrderNotFound, want: CodeNotFound},
		{err: ErrSupplierNotFound, want: CodeNotFound},
		{err: StoreError("get", errors.New("dial tcp")), want: CodeStoreUnavailable},
		{err: errors.New("boom"), want: CodeInternal},
	}

	for _, tt := range tests {
		if got := ErrorCode(tt.err); got != tt.want {
			t.Errorf("ErrorCode(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
