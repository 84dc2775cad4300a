// TribeWatch - Conquest and Building Notifications for Game Worlds
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tribewatch

package validation

import (
	"strings"
	"testing"
)

func TestGetValidator_Singleton(t *testing.T) {
	v1 := GetValidator()
	v2 := GetValidator()

	if v1 == nil {
		t.Fatal("GetValidator() should not return nil")
	}
	if v1 != v2 {
		t.Error("GetValidator() should return the same singleton instance")
	}
}

type subscriptionInput struct {
	World        string `validate:"required,world"`
	Kind         string `validate:"required,tracker"`
	Sink         string `validate:"omitempty,sink"`
	MinMagnitude int64  `validate:"gte=0"`
}

func TestValidateStruct_CustomTags(t *testing.T) {
	tests := []struct {
		name    string
		input   subscriptionInput
		wantTag string
	}{
		{"valid", subscriptionInput{World: "nl101", Kind: "conquer"}, ""},
		{"valid speed world", subscriptionInput{World: "nlp8", Kind: "tower", Sink: "discord"}, ""},
		{"missing world", subscriptionInput{Kind: "conquer"}, "required"},
		{"bad world", subscriptionInput{World: "NL 101", Kind: "conquer"}, "world"},
		{"bad kind", subscriptionInput{World: "nl101", Kind: "farm"}, "tracker"},
		{"bad sink", subscriptionInput{World: "nl101", Kind: "wall", Sink: "email"}, "sink"},
		{"negative floor", subscriptionInput{World: "nl101", Kind: "od", MinMagnitude: -1}, "gte"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStruct(&tt.input)
			if tt.wantTag == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected %s error", tt.wantTag)
			}
			if got := err.Errors()[0].Tag(); got != tt.wantTag {
				t.Errorf("tag = %q, want %q", got, tt.wantTag)
			}
		})
	}
}

func TestToAPIError(t *testing.T) {
	err := ValidateStruct(&subscriptionInput{})
	if err == nil {
		t.Fatal("expected validation error")
	}

	apiErr := err.ToAPIError()
	if apiErr.Code != "VALIDATION_ERROR" {
		t.Errorf("Code = %q, want VALIDATION_ERROR", apiErr.Code)
	}
	if _, ok := apiErr.Details["fields"]; !ok {
		t.Errorf("expected fields detail for multiple errors, got %v", apiErr.Details)
	}
	if !strings.Contains(apiErr.Message, "World is required") {
		t.Errorf("Message = %q", apiErr.Message)
	}
}
