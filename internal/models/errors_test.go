package models

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorTaxonomy(t *testing.T) {
	nf := fmt.Errorf("load: %w", NewNotFound("session", "s1"))
	if !errors.Is(nf, ErrNotFound) {
		t.Error("NotFoundError should match ErrNotFound")
	}
	if nf.Error() != "load: session not found: s1" {
		t.Errorf("message: %q", nf.Error())
	}

	dim := &DimensionError{Expected: 4, Got: 3}
	if !errors.Is(dim, ErrDimensionMismatch) {
		t.Error("DimensionError should match ErrDimensionMismatch")
	}

	cause := errors.New("timeout")
	ce := fmt.Errorf("score: %w", NewCollaboratorError("llm", "chat", cause))
	if !IsCollaboratorError(ce) {
		t.Error("expected collaborator error")
	}
	if !errors.Is(ce, cause) {
		t.Error("collaborator error should unwrap to cause")
	}
	if IsCollaboratorError(nf) {
		t.Error("not-found is not a collaborator error")
	}
}
