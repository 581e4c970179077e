package models

import (
	"strings"
	"time"
)

// LogicalOp joins two adjacent conditions of a saved filter.
type LogicalOp string

const (
	OpAnd LogicalOp = "AND"
	OpOr  LogicalOp = "OR"
)

func (o LogicalOp) IsValid() bool {
	return o == OpAnd || o == OpOr
}

// ParseLogicalOp is lenient about case; anything unrecognised reads as AND.
func ParseLogicalOp(raw string) LogicalOp {
	if strings.EqualFold(strings.TrimSpace(raw), string(OpOr)) {
		return OpOr
	}
	return OpAnd
}

// FilterCondition is one column/operator/value triple. Value holds a string,
// a number, a date (string or time.Time), a two-element list for "between",
// or nil while the condition is still being edited.
type FilterCondition struct {
	Column   string `json:"column"`
	Operator string `json:"operator"`
	Value    any    `json:"value"`
}

type SortDirection struct {
	Column    string `json:"column"`
	Direction string `json:"direction"`
	Priority  int    `json:"priority"`
}

type SavedFilter struct {
	ID             int64             `json:"id"`
	UserID         int64             `json:"userId"`
	TableID        string            `json:"tableId"`
	Name           string            `json:"name"`
	Conditions     []FilterCondition `json:"conditions"`
	Operators      []LogicalOp       `json:"operators"`
	SortDirections []SortDirection   `json:"sortDirections"`
	GroupID        *int64            `json:"groupId"`
	Order          int               `json:"order"`
	IsStandard     bool              `json:"isStandard"`
	CreatedAt      time.Time         `json:"createdAt"`
	UpdatedAt      time.Time         `json:"updatedAt"`
}

func (f SavedFilter) Grouped() bool {
	return f.GroupID != nil && *f.GroupID > 0
}

type FilterGroup struct {
	ID        int64         `json:"id"`
	UserID    int64         `json:"userId"`
	TableID   string        `json:"tableId"`
	Name      string        `json:"name"`
	Order     int           `json:"order"`
	Filters   []SavedFilter `json:"filters"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// FilterInput is the create payload for a saved filter.
type FilterInput struct {
	TableID        string            `json:"tableId"`
	Name           string            `json:"name"`
	Conditions     []FilterCondition `json:"conditions"`
	Operators      []LogicalOp       `json:"operators"`
	SortDirections []SortDirection   `json:"sortDirections,omitempty"`
	IsStandard     bool              `json:"isStandard,omitempty"`
}

// FilterPatch carries the fields to change; nil means untouched.
type FilterPatch struct {
	Name           *string            `json:"name,omitempty"`
	Conditions     *[]FilterCondition `json:"conditions,omitempty"`
	Operators      *[]LogicalOp       `json:"operators,omitempty"`
	SortDirections *[]SortDirection   `json:"sortDirections,omitempty"`
}
