// IPDRLens - IP Data Record Enrichment and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ipdrlens

package query

import (
	"reflect"
	"testing"
	"time"
)

func TestWhereBuilder_Empty(t *testing.T) {
	wb := NewWhereBuilder()
	clause, args := wb.Build()
	if clause != "1=1" {
		t.Errorf("Build() clause = %q, want 1=1", clause)
	}
	if len(args) != 0 {
		t.Errorf("Build() args = %v, want empty", args)
	}
}

func TestWhereBuilder_Combined(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 31, 23, 59, 59, 0, time.UTC)

	wb := NewWhereBuilder().
		AddEquals("user_id", "user1").
		AddEquals("source_ip", "").
		AddContainsFold("destination_domain", "Google").
		AddTimeRange("start_time", &start, &end)

	clause, args := wb.BuildWithPrefix()
	wantClause := `WHERE user_id = ? AND destination_domain ILIKE ? ESCAPE '\' AND start_time >= ? AND start_time <= ?`
	if clause != wantClause {
		t.Errorf("clause = %q\nwant     %q", clause, wantClause)
	}
	wantArgs := []interface{}{"user1", "%Google%", start, end}
	if !reflect.DeepEqual(args, wantArgs) {
		t.Errorf("args = %v, want %v", args, wantArgs)
	}
}

func TestEscapeLike(t *testing.T) {
	tests := []struct{ in, want string }{
		{"plain", "plain"},
		{"50%", `50\%`},
		{"a_b", `a\_b`},
		{`c:\x`, `c:\\x`},
	}
	for _, tt := range tests {
		if got := EscapeLike(tt.in); got != tt.want {
			t.Errorf("EscapeLike(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPaginate(t *testing.T) {
	tests := []struct {
		name          string
		limit, offset int
		wantSQL       string
		wantArgs      int
	}{
		{"none", 0, 0, "SELECT 1", 0},
		{"limit", 10, 0, "SELECT 1 LIMIT ?", 1},
		{"both", 10, 20, "SELECT 1 LIMIT ? OFFSET ?", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args := Paginate("SELECT 1", tt.limit, tt.offset)
			if sql != tt.wantSQL {
				t.Errorf("sql = %q, want %q", sql, tt.wantSQL)
			}
			if len(args) != tt.wantArgs {
				t.Errorf("len(args) = %d, want %d", len(args), tt.wantArgs)
			}
		})
	}
}
