package main

import (
	"errors"
	"testing"
)

func TestFailWrapsCodeAndError(t *testing.T) {
	err := fail(4, errors.New("checksum mismatch"))
	var ec *exitCode
	if !errors.As(err, &ec) {
		t.Fatal("expected fail to return an *exitCode")
	}
	if ec.code != 4 {
		t.Errorf("code = %d, want 4", ec.code)
	}
	if ec.Error() != "checksum mismatch" {
		t.Errorf("Error() = %q", ec.Error())
	}
}

func TestExitCodeErrorFallsBackToGenericMessage(t *testing.T) {
	ec := &exitCode{code: 2}
	if ec.Error() != "exit 2" {
		t.Errorf("Error() = %q, want %q", ec.Error(), "exit 2")
	}
}

func TestPrintOutcomePrefersRenderOverSummary(t *testing.T) {
	called := false
	out := outcome{ResultSummary: "should not print", Render: func() { called = true }}
	printOutcome(out)
	if !called {
		t.Fatal("expected Render to be invoked")
	}
}
