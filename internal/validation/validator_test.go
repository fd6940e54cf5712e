// IPDRLens - IP Data Record Enrichment and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ipdrlens

package validation

import (
	"strings"
	"testing"
)

type sampleRequest struct {
	SourceIP      string   `json:"source_ip" validate:"omitempty,ip"`
	Contamination *float64 `json:"contamination" validate:"omitempty,gt=0,lte=0.5"`
	Limit         int      `json:"limit" validate:"min=0,max=10000"`
	Mode          string   `json:"mode" validate:"omitempty,oneof=auto fixed"`
	FileName      string   `json:"file_name" validate:"required,max=8"`
}

func ptr(f float64) *float64 { return &f }

func TestValidateStruct(t *testing.T) {
	tests := []struct {
		name      string
		req       sampleRequest
		wantField string
		wantMsg   string
	}{
		{"valid", sampleRequest{FileName: "a.csv", SourceIP: "10.0.0.1", Contamination: ptr(0.1)}, "", ""},
		{"bad ip", sampleRequest{FileName: "a.csv", SourceIP: "10.0.0"}, "source_ip", "valid IP"},
		{"contamination too high", sampleRequest{FileName: "a.csv", Contamination: ptr(0.9)}, "contamination", "less than or equal to 0.5"},
		{"contamination zero", sampleRequest{FileName: "a.csv", Contamination: ptr(0)}, "contamination", "greater than 0"},
		{"limit", sampleRequest{FileName: "a.csv", Limit: 20000}, "limit", "at most 10000"},
		{"oneof", sampleRequest{FileName: "a.csv", Mode: "magic"}, "mode", "one of: auto fixed"},
		{"required", sampleRequest{}, "file_name", "is required"},
		{"string max", sampleRequest{FileName: "very-long-name.csv"}, "file_name", "8 characters"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStruct(&tt.req)
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("ValidateStruct() = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatal("ValidateStruct() = nil, want error")
			}
			if got := err.Fields[0].Field; got != tt.wantField {
				t.Errorf("Field = %q, want %q", got, tt.wantField)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("Error() = %q, want substring %q", err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestToAPIError(t *testing.T) {
	err := ValidateStruct(&sampleRequest{SourceIP: "nope"})
	if err == nil {
		t.Fatal("expected validation error")
	}
	apiErr := err.ToAPIError()
	if apiErr.Code != "VALIDATION_ERROR" {
		t.Errorf("Code = %q, want VALIDATION_ERROR", apiErr.Code)
	}
	fields, ok := apiErr.Details["fields"].([]map[string]interface{})
	if !ok || len(fields) != 2 {
		t.Fatalf("Details[fields] = %v, want two entries", apiErr.Details["fields"])
	}

	single := ValidateStruct(&sampleRequest{FileName: "x", SourceIP: "nope"}).ToAPIError()
	if single.Details["field"] != "source_ip" {
		t.Errorf("Details[field] = %v, want source_ip", single.Details["field"])
	}
}

func TestGetValidatorSingleton(t *testing.T) {
	if GetValidator() != GetValidator() {
		t.Error("GetValidator() should return the same instance")
	}
}
