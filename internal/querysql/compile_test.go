package querysql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/relstore/internal/predicates"
	"github.com/roach88/relstore/internal/rdberr"
)

func TestCompile_Empty(t *testing.T) {
	where, params, err := Compile(predicates.New("test"))
	require.NoError(t, err)
	assert.Equal(t, "", where)
	assert.Empty(t, params)
}

func TestCompile_Nil(t *testing.T) {
	_, _, err := Compile(nil)
	assert.Equal(t, rdberr.CodeInvalidArgs, rdberr.CodeOf(err))
}

func TestCompile_Conditions(t *testing.T) {
	tests := []struct {
		name       string
		build      func(p *predicates.Predicates) *predicates.Predicates
		wantSQL    string
		wantParams []any
	}{
		{
			name:       "equal",
			build:      func(p *predicates.Predicates) *predicates.Predicates { return p.EqualTo("name", "zhangsan") },
			wantSQL:    "name = ?",
			wantParams: []any{"zhangsan"},
		},
		{
			name: "implicit and",
			build: func(p *predicates.Predicates) *predicates.Predicates {
				return p.EqualTo("name", "lisi").GreaterThanOrEqualTo("age", 18)
			},
			wantSQL:    "name = ? AND age >= ?",
			wantParams: []any{"lisi", int64(18)},
		},
		{
			name: "or",
			build: func(p *predicates.Predicates) *predicates.Predicates {
				return p.EqualTo("a", 1).Or().NotEqualTo("b", 2)
			},
			wantSQL:    "a = ? OR b <> ?",
			wantParams: []any{int64(1), int64(2)},
		},
		{
			name: "wrap",
			build: func(p *predicates.Predicates) *predicates.Predicates {
				return p.EqualTo("a", 1).BeginWrap().LessThan("b", 2).Or().GreaterThan("c", 3).EndWrap().IsNull("d")
			},
			wantSQL:    "a = ? AND (b < ? OR c > ?) AND d IS NULL",
			wantParams: []any{int64(1), int64(2), int64(3)},
		},
		{
			name: "between and not between",
			build: func(p *predicates.Predicates) *predicates.Predicates {
				return p.Between("age", 10, 20).NotBetween("salary", 1.5, 2.5)
			},
			wantSQL:    "age BETWEEN ? AND ? AND salary NOT BETWEEN ? AND ?",
			wantParams: []any{int64(10), int64(20), 1.5, 2.5},
		},
		{
			name: "in and not in",
			build: func(p *predicates.Predicates) *predicates.Predicates {
				return p.In("id", 1, 2, 3).NotIn("name", "x")
			},
			wantSQL:    "id IN (?, ?, ?) AND name NOT IN (?)",
			wantParams: []any{int64(1), int64(2), int64(3), "x"},
		},
		{
			name: "patterns",
			build: func(p *predicates.Predicates) *predicates.Predicates {
				return p.Like("name", "zh%").Glob("name", "*san").IsNotNull("blobType")
			},
			wantSQL:    "name LIKE ? AND name GLOB ? AND blobType IS NOT NULL",
			wantParams: []any{"zh%", "*san"},
		},
		{
			name:       "bool binds as integer",
			build:      func(p *predicates.Predicates) *predicates.Predicates { return p.EqualTo("flag", true) },
			wantSQL:    "flag = ?",
			wantParams: []any{int64(1)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, params, err := Compile(tt.build(predicates.New("test")))
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, sql)
			assert.Equal(t, tt.wantParams, params)
		})
	}
}

func TestCompile_DanglingOr(t *testing.T) {
	_, _, err := Compile(predicates.New("test").Or().EqualTo("a", 1))
	assert.Equal(t, rdberr.CodeInvalidArgs, rdberr.CodeOf(err))

	_, _, err = Compile(predicates.New("test").EqualTo("a", 1).Or())
	assert.Equal(t, rdberr.CodeInvalidArgs, rdberr.CodeOf(err))
}

func TestCompile_ValuesNeverInterpolated(t *testing.T) {
	sql, params, err := Compile(predicates.New("test").EqualTo("name", "'; DROP TABLE test; --"))
	require.NoError(t, err)
	assert.NotContains(t, sql, "DROP")
	assert.Equal(t, []any{"'; DROP TABLE test; --"}, params)
}

func TestBuildQuery(t *testing.T) {
	p := predicates.New("test").EqualTo("name", "zhangsan").OrderByDesc("age").OrderByAsc("id").LimitAs(2).OffsetAs(1)

	sql, params, err := BuildQuery(p, []string{"id", "name"})
	require.NoError(t, err)
	assert.Equal(t, "SELECT id, name FROM test WHERE name = ? ORDER BY age DESC, id ASC LIMIT 2 OFFSET 1", sql)
	assert.Equal(t, []any{"zhangsan"}, params)
}

func TestBuildQuery_AllColumnsDistinctGroup(t *testing.T) {
	sql, _, err := BuildQuery(predicates.New("test").Distinct().GroupBy("name"), nil)
	require.NoError(t, err)
	assert.Equal(t, "SELECT DISTINCT * FROM test GROUP BY name", sql)
}

func TestBuildQuery_OffsetWithoutLimit(t *testing.T) {
	sql, _, err := BuildQuery(predicates.New("test").OffsetAs(3), nil)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM test LIMIT -1 OFFSET 3", sql)
}

func TestBuildQuery_BadColumn(t *testing.T) {
	_, _, err := BuildQuery(predicates.New("test"), []string{"id; --"})
	assert.Equal(t, rdberr.CodeInvalidArgs, rdberr.CodeOf(err))
}
