package sqlite_test

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/attendance-ledger/domain"
	"github.com/warp/attendance-ledger/store/sqlite"
	"github.com/warp/attendance-ledger/store/storetest"
)

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) domain.TxStore {
		s, err := sqlite.New(":memory:")
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestNew_ReopensExistingFile(t *testing.T) {
	// GIVEN: a database file with a tenant
	path := filepath.Join(t.TempDir(), "ledger.db")
	s, err := sqlite.New(path)
	require.NoError(t, err)
	require.NoError(t, s.SaveTenant(t.Context(), domain.NewTenant("t1", "Acme")))
	require.NoError(t, s.Close())

	// WHEN: it is opened again
	reopened, err := sqlite.New(path)
	require.NoError(t, err)
	defer reopened.Close()

	// THEN: migrations are idempotent and data survives
	tenant, err := reopened.GetTenant(t.Context(), "t1")
	require.NoError(t, err)
	assert.Equal(t, "Acme", tenant.Name)
	assert.NoError(t, reopened.Ping(t.Context()))
}

// corrupt runs raw SQL against a database file behind the store's back.
func corrupt(t *testing.T, path, stmt string) {
	t.Helper()
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()
	_, err = db.Exec(stmt)
	require.NoError(t, err)
}

func TestScan_CorruptColumnsAreErrors(t *testing.T) {
	// GIVEN: a stored balance with one transaction
	path := filepath.Join(t.TempDir(), "ledger.db")
	s, err := sqlite.New(path)
	require.NoError(t, err)
	b := domain.LeaveBalance{
		ID: "b1", TenantID: "t1", EmployeeID: "e1", LeaveTypeID: "lt-annual", PolicyYear: 2025,
		Entitled: domain.DaysFromInt(12), Used: domain.ZeroDays(), Pending: domain.ZeroDays(),
		CarriedOver: domain.ZeroDays(), Adjustment: domain.ZeroDays(),
		LastCalculatedAt:   time.Date(2025, 3, 20, 9, 0, 0, 0, time.UTC),
		CalculationDetails: map[string]string{"base_quota": "12.00"},
	}
	b.Recompute()
	require.NoError(t, s.CreateBalance(t.Context(), b))
	require.NoError(t, s.AppendTransaction(t.Context(), domain.LeaveTransaction{
		ID: "tx1", TenantID: "t1", BalanceID: "b1", EmployeeID: "e1", LeaveTypeID: "lt-annual",
		Type: domain.TxCredit, Days: domain.DaysFromInt(12), Reason: domain.ReasonAnnualEntitlement,
		Metadata: map[string]string{"year": "2025"}, CreatedAt: b.LastCalculatedAt,
	}))
	require.NoError(t, s.Close())

	reopen := func() *sqlite.Store {
		s, err := sqlite.New(path)
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		return s
	}

	// WHEN: a decimal column is not a number
	corrupt(t, path, `UPDATE leave_balances SET used = 'abc' WHERE id = 'b1'`)

	// THEN: reads fail instead of yielding zero
	_, err = reopen().GetBalance(t.Context(), "b1")
	assert.ErrorContains(t, err, "used")

	// WHEN: the details are not JSON
	corrupt(t, path, `UPDATE leave_balances SET used = '0.00', calculation_details = '{broken' WHERE id = 'b1'`)
	_, err = reopen().FindBalance(t.Context(), b.Key())
	assert.ErrorContains(t, err, "calculation_details")

	// AND: the same holds for transaction days and metadata
	corrupt(t, path, `UPDATE leave_transactions SET days = '' WHERE id = 'tx1'`)
	_, err = reopen().ListTransactions(t.Context(), "b1")
	assert.ErrorContains(t, err, "days")

	corrupt(t, path, `UPDATE leave_transactions SET days = '12.00', metadata_json = '[1' WHERE id = 'tx1'`)
	_, err = reopen().ListTransactions(t.Context(), "b1")
	assert.ErrorContains(t, err, "metadata_json")
}
