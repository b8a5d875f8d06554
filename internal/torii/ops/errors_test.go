package ops

import (
	"errors"
	"fmt"
	"io"
	"testing"
)

func TestErrorClassification(t *testing.T) {
	transient := Transient("tracker read", io.ErrUnexpectedEOF)
	permanent := Permanent("tracker write", errors.New("400 bad request"))
	notFound := &NotFoundError{Target: "PROJ-404"}

	if !IsTransient(transient) || IsTransient(permanent) || IsTransient(notFound) {
		t.Error("IsTransient misclassified")
	}
	if !IsPermanent(permanent) || IsPermanent(transient) {
		t.Error("IsPermanent misclassified")
	}
	if !IsNotFound(notFound) || IsNotFound(transient) {
		t.Error("IsNotFound misclassified")
	}
}

func TestClassificationSurvivesWrapping(t *testing.T) {
	base := Transient("tracker read", io.ErrUnexpectedEOF)
	wrapped := fmt.Errorf("execute request abc: %w", base)

	if !IsTransient(wrapped) {
		t.Error("wrapping lost the transient classification")
	}
	if !errors.Is(wrapped, io.ErrUnexpectedEOF) {
		t.Error("Unwrap chain broken")
	}
}
