package querysql

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		sql  string
		want StatementType
	}{
		{"CREATE TABLE t (id INTEGER)", StatementDDL},
		{"  drop table t", StatementDDL},
		{"ALTER TABLE t ADD COLUMN x", StatementDDL},
		{"INSERT INTO t VALUES (1)", StatementInsert},
		{"update t set a = 1", StatementUpdate},
		{"DELETE FROM t", StatementUpdate},
		{"REPLACE INTO t VALUES (1)", StatementUpdate},
		{"SELECT * FROM t", StatementSelect},
		{"PRAGMA user_version", StatementPragma},
		{"ATTACH DATABASE 'x' AS y", StatementAttach},
		{"DETACH DATABASE y", StatementDetach},
		{"BEGIN TRANSACTION", StatementBegin},
		{"SAVEPOINT s1", StatementBegin},
		{"COMMIT", StatementCommit},
		{"END", StatementCommit},
		{"ROLLBACK", StatementRollback},
		{"VACUUM", StatementOther},
		{"WITH x AS (SELECT 1) SELECT * FROM x", StatementOther},
		{"  ab", StatementError},
		{"", StatementError},
	}

	for _, tt := range tests {
		t.Run(tt.sql, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.sql))
		})
	}
}

func TestStatementType_IsWrite(t *testing.T) {
	assert.True(t, StatementInsert.IsWrite())
	assert.True(t, StatementDDL.IsWrite())
	assert.False(t, StatementSelect.IsWrite())
	assert.False(t, StatementBegin.IsWrite())
	assert.Equal(t, "PRAGMA", StatementPragma.String())
}
