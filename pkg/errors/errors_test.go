package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		retryable bool
		detailsOK bool
		class     Class
	}{
		{code: CodeValidation, status: http.StatusBadRequest, detailsOK: true, class: ClassValidation},
		{code: CodeInvalidAddress, status: http.StatusUnprocessableEntity, detailsOK: true, class: ClassValidation},
		{code: CodeInvalidShippingMethod, status: http.StatusUnprocessableEntity, class: ClassValidation},
		{code: CodeEmptyCart, status: http.StatusUnprocessableEntity, class: ClassValidation},
		{code: CodeProductNotInCart, status: http.StatusNotFound, class: ClassValidation},
		{code: CodeInsufficientStock, status: http.StatusConflict, detailsOK: true, class: ClassConflict},
		{code: CodeOutOfStock, status: http.StatusConflict, detailsOK: true, class: ClassConflict},
		{code: CodeRateLimit, status: http.StatusTooManyRequests, retryable: true, detailsOK: true, class: ClassConflict},
		{code: CodeStateConflict, status: http.StatusUnprocessableEntity, detailsOK: true, class: ClassConflict},
		{code: CodeIntegrity, status: http.StatusInternalServerError, class: ClassIntegrity},
		{code: CodeTimeout, status: http.StatusServiceUnavailable, retryable: true, class: ClassInfrastructure},
		{code: CodeInternal, status: http.StatusInternalServerError, retryable: true, class: ClassInfrastructure},
		{code: CodeDependency, status: http.StatusServiceUnavailable, retryable: true, detailsOK: true, class: ClassInfrastructure},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
		if meta.Class != tt.class {
			t.Fatalf("code %s expected class %s got %s", tt.code, tt.class, meta.Class)
		}
		if meta.PublicMessage == "" {
			t.Fatalf("code %s has no public message", tt.code)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestErrorConstructors(t *testing.T) {
	base := New(CodeValidation, "quantity must be positive")
	if base.Code() != CodeValidation {
		t.Fatalf("expected validation code, got %s", base.Code())
	}
	if base.Details() != nil {
		t.Fatalf("details should be nil by default")
	}

	base.WithDetails(map[string]any{"field": "quantity"})
	if base.Details() == nil {
		t.Fatalf("details should be preserved")
	}

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeDependency, cause, "load cart")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if wrapped.Error() != "DEPENDENCY_ERROR: load cart" {
		t.Fatalf("unexpected error string %q", wrapped.Error())
	}
}

func TestIsCodeFollowsWrappedChain(t *testing.T) {
	err := fmt.Errorf("place order: %w", New(CodeOutOfStock, "out of stock"))
	if !IsCode(err, CodeOutOfStock) {
		t.Fatalf("expected OUT_OF_STOCK in chain")
	}
	if IsCode(err, CodeInsufficientStock) {
		t.Fatalf("unexpected code match")
	}
	if CodeOf(stdErrors.New("plain")) != CodeInternal {
		t.Fatalf("untyped errors should map to internal")
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should return nil")
	}
}

func TestDumpCollectsChain(t *testing.T) {
	err := fmt.Errorf("outer: %w", Wrap(CodeIntegrity, stdErrors.New("check violation"), "decrement stock"))
	d := Dump(err)
	if d.Code != CodeIntegrity {
		t.Fatalf("expected integrity code, got %s", d.Code)
	}
	if len(d.Chain) != 3 {
		t.Fatalf("expected 3 chain entries, got %d: %v", len(d.Chain), d.Chain)
	}
}

func TestDumpFieldsOmitChainForClientErrors(t *testing.T) {
	d := Dump(New(CodeValidation, "bad quantity"))
	if _, ok := d.Fields(false)["error_chain"]; ok {
		t.Fatal("client error fields should not carry the chain")
	}
	if _, ok := d.Fields(true)["error_chain"]; !ok {
		t.Fatal("server error fields should carry the chain")
	}
	if d.PG != nil {
		t.Fatal("expected no postgres detail")
	}
}
