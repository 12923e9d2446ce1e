package store

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"testing"

	"github.com/shopmindai/shopmindai/services/messaging-core/internal/apperr"
	"github.com/stretchr/testify/assert"
)

func TestIsNoRows(t *testing.T) {
	assert.True(t, isNoRows(sql.ErrNoRows))
	assert.False(t, isNoRows(errors.New("boom")))
	assert.False(t, isNoRows(nil))
}

func TestRequireRowsAffected(t *testing.T) {
	err := requireRowsAffected(driver.RowsAffected(1), "not found")
	assert.NoError(t, err)

	err = requireRowsAffected(driver.RowsAffected(0), "widget not found")
	require := assert.New(t)
	require.Error(err)
	require.Equal(apperr.KindNotFound, apperr.KindOf(err))
}
