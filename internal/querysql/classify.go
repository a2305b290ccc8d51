package querysql

import (
	"strings"
	"unicode"
)

// StatementType is the coarse kind of a SQL statement, decided by its
// leading keyword.
type StatementType int

const (
	StatementSelect StatementType = iota + 1
	StatementUpdate
	StatementInsert
	StatementAttach
	StatementDetach
	StatementBegin
	StatementCommit
	StatementRollback
	StatementPragma
	StatementDDL
	StatementOther
	StatementError
)

var statementNames = map[StatementType]string{
	StatementSelect:   "SELECT",
	StatementUpdate:   "UPDATE",
	StatementInsert:   "INSERT",
	StatementAttach:   "ATTACH",
	StatementDetach:   "DETACH",
	StatementBegin:    "BEGIN",
	StatementCommit:   "COMMIT",
	StatementRollback: "ROLLBACK",
	StatementPragma:   "PRAGMA",
	StatementDDL:      "DDL",
	StatementOther:    "OTHER",
	StatementError:    "ERROR",
}

func (t StatementType) String() string {
	if name, ok := statementNames[t]; ok {
		return name
	}
	return "UNKNOWN"
}

// prefixes maps the first three letters (upper case) to a type.
// DELETE and REPLACE report as UPDATE: both return a change count.
var prefixes = map[string]StatementType{
	"ALT": StatementDDL,
	"ATT": StatementAttach,
	"BEG": StatementBegin,
	"COM": StatementCommit,
	"CRE": StatementDDL,
	"DEL": StatementUpdate,
	"DET": StatementDetach,
	"DRO": StatementDDL,
	"END": StatementCommit,
	"INS": StatementInsert,
	"PRA": StatementPragma,
	"REP": StatementUpdate,
	"ROL": StatementRollback,
	"SAV": StatementBegin,
	"SEL": StatementSelect,
	"UPD": StatementUpdate,
}

// Classify returns the statement type of sql.
func Classify(sql string) StatementType {
	trimmed := strings.TrimLeftFunc(sql, unicode.IsSpace)
	if len(trimmed) < 3 {
		return StatementError
	}
	if t, ok := prefixes[strings.ToUpper(trimmed[:3])]; ok {
		return t
	}
	return StatementOther
}

// IsWrite reports whether statements of this type modify the database.
func (t StatementType) IsWrite() bool {
	switch t {
	case StatementUpdate, StatementInsert, StatementDDL, StatementPragma, StatementOther:
		return true
	default:
		return false
	}
}
