// Package predicates provides the declarative condition builder used by
// store queries, updates and deletes.
//
// A Predicates value is bound to one table and accumulates conditions in
// call order. Consecutive conditions are joined with AND unless Or() is
// called between them; BeginWrap/EndWrap group conditions in parentheses.
//
//	p := predicates.New("test").
//	    EqualTo("name", "zhangsan").
//	    Or().
//	    BeginWrap().GreaterThan("age", 18).LessThan("age", 30).EndWrap().
//	    OrderByAsc("id")
//
// Compilation to SQL lives in internal/querysql. Builder methods never
// return errors; the first invalid argument is latched and reported by Err.
package predicates
