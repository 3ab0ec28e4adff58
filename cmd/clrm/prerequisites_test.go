package main

import (
	"context"
	"testing"
)

func TestVerifyPrerequisitesUnknownCheck(t *testing.T) {
	if err := verifyPrerequisites(context.Background(), "does-not-exist"); err == nil {
		t.Fatal("expected an error for an unrecognized check ID")
	}
}

func TestVerifyPrerequisitesNoChecksPasses(t *testing.T) {
	if err := verifyPrerequisites(context.Background()); err != nil {
		t.Fatalf("expected no error with no checks requested, got %v", err)
	}
}
