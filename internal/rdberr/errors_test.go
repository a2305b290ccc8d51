package rdberr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
)

func TestMessages(t *testing.T) {
	assert.Equal(t, "Parameter error. The tableName must be not empty", InvalidArgs("tableName", "not empty").Message)
	assert.Equal(t, "Parameter error. Need 1 parameter(s)!", ParamCount(1).Message)
	assert.Equal(t, "401: Parameter error. Need 2 parameter(s)!", ParamCount(2).Error())
	assert.Equal(t, CodeNotSystemApp, NotSystemApp().Code)
}

func TestFromSQLite(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"busy", sqlite3.Error{Code: sqlite3.ErrBusy}, CodeBusy},
		{"locked", sqlite3.Error{Code: sqlite3.ErrLocked}, CodeBusy},
		{"constraint", sqlite3.Error{Code: sqlite3.ErrConstraint}, CodeInnerError},
		{"not a db", sqlite3.Error{Code: sqlite3.ErrNotADB}, CodeInvalidFile},
		{"wrapped busy", fmt.Errorf("exec: %w", sqlite3.Error{Code: sqlite3.ErrBusy}), CodeBusy},
		{"plain", errors.New("boom"), CodeInnerError},
		{"coded passthrough", AlreadyClosed(), CodeAlreadyClosed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CodeOf(FromSQLite(tt.err)))
		})
	}

	assert.NoError(t, FromSQLite(nil))
}

func TestHelpers(t *testing.T) {
	wrapped := fmt.Errorf("commit: %w", Busy(nil))
	assert.True(t, IsBusy(wrapped))
	assert.False(t, IsClosed(wrapped))
	assert.True(t, IsClosed(AlreadyClosed()))
	assert.False(t, Is(nil, CodeBusy))
	assert.Equal(t, Code(0), CodeOf(errors.New("x")))

	constraint := FromSQLite(sqlite3.Error{Code: sqlite3.ErrConstraint})
	assert.True(t, IsConstraint(constraint))
}
