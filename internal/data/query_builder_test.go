package data

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_QueryBuilder(t *testing.T) {
	t.Run("Test AddCondition", func(t *testing.T) {
		qb := NewQueryBuilder("SELECT * FROM payments")

		qb.AddCondition("uetr = ?", "97ed4827e31c4f2e82cbde4a58d27e1c")
		actual, params := qb.Build()

		expectedQuery := "SELECT * FROM payments WHERE 1=1 AND uetr = ?"

		assert.Equal(t, expectedQuery, actual)
		assert.Equal(t, []interface{}{"97ed4827e31c4f2e82cbde4a58d27e1c"}, params)
	})

	t.Run("Test AddCondition multiple params", func(t *testing.T) {
		qb := NewQueryBuilder("SELECT * FROM payments")

		qb.AddCondition("(end_to_end_id ILIKE ? OR debtor_name ILIKE ? OR creditor_name ILIKE ?)", "E2E-1", "Thandi", "Acme")
		actual, params := qb.Build()

		expectedQuery := "SELECT * FROM payments WHERE 1=1 AND (end_to_end_id ILIKE ? OR debtor_name ILIKE ? OR creditor_name ILIKE ?)"

		assert.Equal(t, expectedQuery, actual)
		assert.Equal(t, []interface{}{"E2E-1", "Thandi", "Acme"}, params)
	})

	t.Run("Test AddSorting", func(t *testing.T) {
		qb := NewQueryBuilder("SELECT * FROM payments p")

		qb.AddSorting(SortFieldCreatedAt, SortOrderDESC, "p")
		actual, _ := qb.Build()

		expectedQuery := "SELECT * FROM payments p ORDER BY p.created_at DESC"
		assert.Equal(t, expectedQuery, actual)
	})

	t.Run("Test AddPagination", func(t *testing.T) {
		qb := NewQueryBuilder("SELECT * FROM payments p")

		qb.AddPagination(2, 20)
		actual, params := qb.Build()

		expectedQuery := "SELECT * FROM payments p LIMIT ? OFFSET ?"
		assert.Equal(t, expectedQuery, actual)
		assert.Equal(t, []interface{}{20, 20}, params)
	})

	t.Run("Test Full query", func(t *testing.T) {
		qb := NewQueryBuilder("SELECT * FROM payments p")
		qb.AddCondition("status = ?", InitiatedPaymentStatus)
		qb.AddSorting(SortFieldCreatedAt, SortOrderDESC, "p")
		qb.AddPagination(2, 20)
		actual, params := qb.Build()

		expectedQuery := "SELECT * FROM payments p WHERE 1=1 AND status = ? ORDER BY p.created_at DESC LIMIT ? OFFSET ?"
		assert.Equal(t, expectedQuery, actual)
		assert.Equal(t, []interface{}{InitiatedPaymentStatus, 20, 20}, params)
	})
}

func Test_BuildSetClause(t *testing.T) {
	type patch struct {
		Status    string `db:"status"`
		Rail      string `db:"rail"`
		Attempts  int    `db:"attempts"`
		Untracked string
	}

	t.Run("skips zero-value and untagged fields", func(t *testing.T) {
		clause, params := BuildSetClause(patch{Status: "ROUTED", Attempts: 2, Untracked: "x"})
		assert.Equal(t, "status = ?, attempts = ?", clause)
		assert.Equal(t, []interface{}{"ROUTED", 2}, params)
	})

	t.Run("returns empty for a non-struct", func(t *testing.T) {
		clause, params := BuildSetClause("not a struct")
		assert.Empty(t, clause)
		assert.Nil(t, params)
	})
}
