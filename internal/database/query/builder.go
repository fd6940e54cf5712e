// IPDRLens - IP Data Record Enrichment and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ipdrlens

// Package query builds parameterized SQL fragments for the record store.
package query

import (
	"strings"
	"time"
)

// WhereBuilder constructs SQL WHERE clauses with parameterized arguments.
// Column names are trusted input; values are always bound.
//
//	wb := query.NewWhereBuilder()
//	wb.AddEquals("r.user_id", "user1").AddTimeRange("r.start_time", from, to)
//	where, args := wb.BuildWithPrefix()
//	// WHERE r.user_id = ? AND r.start_time >= ? AND r.start_time <= ?
type WhereBuilder struct {
	clauses []string
	args    []interface{}
}

// NewWhereBuilder creates a new WhereBuilder instance.
func NewWhereBuilder() *WhereBuilder {
	return &WhereBuilder{}
}

// AddClause adds a raw condition with its arguments.
func (wb *WhereBuilder) AddClause(clause string, args ...interface{}) *WhereBuilder {
	wb.clauses = append(wb.clauses, clause)
	wb.args = append(wb.args, args...)
	return wb
}

// AddEquals adds "column = ?". An empty value is skipped.
func (wb *WhereBuilder) AddEquals(column, value string) *WhereBuilder {
	if value == "" {
		return wb
	}
	return wb.AddClause(column+" = ?", value)
}

// AddContainsFold adds a case-insensitive substring match. LIKE wildcards
// in value match literally.
func (wb *WhereBuilder) AddContainsFold(column, value string) *WhereBuilder {
	if value == "" {
		return wb
	}
	return wb.AddClause(column+` ILIKE ? ESCAPE '\'`, "%"+EscapeLike(value)+"%")
}

// AddTimeRange adds inclusive bounds on column. Nil bounds are skipped.
func (wb *WhereBuilder) AddTimeRange(column string, start, end *time.Time) *WhereBuilder {
	if start != nil {
		wb.AddClause(column+" >= ?", *start)
	}
	if end != nil {
		wb.AddClause(column+" <= ?", *end)
	}
	return wb
}

// Build joins the clauses with AND. It returns "1=1" when empty.
func (wb *WhereBuilder) Build() (string, []interface{}) {
	if len(wb.clauses) == 0 {
		return "1=1", []interface{}{}
	}
	return strings.Join(wb.clauses, " AND "), wb.args
}

// BuildWithPrefix returns the clause with a "WHERE " prefix.
func (wb *WhereBuilder) BuildWithPrefix() (string, []interface{}) {
	whereClause, args := wb.Build()
	return "WHERE " + whereClause, args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// EscapeLike escapes LIKE wildcards with a backslash.
func EscapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// Paginate appends LIMIT and OFFSET. Non-positive values are omitted.
func Paginate(sql string, limit, offset int) (string, []interface{}) {
	var args []interface{}
	if limit > 0 {
		sql += " LIMIT ?"
		args = append(args, limit)
	}
	if offset > 0 {
		sql += " OFFSET ?"
		args = append(args, offset)
	}
	return sql, args
}
