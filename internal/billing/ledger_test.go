package billing

import (
    "context"
    "database/sql"
    "testing"
    "time"

    sqlmock "github.com/DATA-DOG/go-sqlmock"
    "github.com/kargodata/recherche-orchestrator/internal/models"
    "github.com/stretchr/testify/require"
)

func TestLedger_DebitWithinBalanceSucceeds(t *testing.T) {
    db, mock, err := sqlmock.New()
    require.NoError(t, err)
    defer db.Close()

    mock.ExpectBegin()
    tx, err := db.Begin()
    require.NoError(t, err)

    now := time.Now()
    mock.ExpectQuery(`SELECT id, partner_id, balance_cents, warning_threshold_cents, credit_limit_cents,\s*suspended, suspended_reason, warning_sent_at, created_at, updated_at\s*FROM billing_accounts WHERE id = \? FOR UPDATE`).
        WithArgs("acct-1").
        WillReturnRows(sqlmock.NewRows([]string{
            "id", "partner_id", "balance_cents", "warning_threshold_cents", "credit_limit_cents",
            "suspended", "suspended_reason", "warning_sent_at", "created_at", "updated_at",
        }).AddRow("acct-1", "partner-1", int64(5000), int64(1000), int64(0), false, "", nil, now, now))

    mock.ExpectExec(`INSERT INTO credit_transactions`).WillReturnResult(sqlmock.NewResult(1, 1))
    mock.ExpectExec(`UPDATE billing_accounts SET balance_cents`).WillReturnResult(sqlmock.NewResult(0, 1))

    ledger := NewLedger(tx)
    res, err := ledger.Debit(context.Background(), "acct-1", 300, "order", "order-1", "worker", "order settlement")
    require.NoError(t, err)
    require.Equal(t, int64(4700), res.NewBalanceCents)
    require.NoError(t, mock.ExpectationsWereMet())
}

func TestLedger_DebitRejectsBeyondCreditLimit(t *testing.T) {
    db, mock, err := sqlmock.New()
    require.NoError(t, err)
    defer db.Close()

    mock.ExpectBegin()
    tx, err := db.Begin()
    require.NoError(t, err)

    now := time.Now()
    mock.ExpectQuery(`SELECT id, partner_id, balance_cents`).
        WithArgs("acct-1").
        WillReturnRows(sqlmock.NewRows([]string{
            "id", "partner_id", "balance_cents", "warning_threshold_cents", "credit_limit_cents",
            "suspended", "suspended_reason", "warning_sent_at", "created_at", "updated_at",
        }).AddRow("acct-1", "partner-1", int64(100), int64(1000), int64(0), false, "", nil, now, now))

    ledger := NewLedger(tx)
    _, err = ledger.Debit(context.Background(), "acct-1", 300, "order", "order-1", "worker", "order settlement")
    require.Error(t, err)
}

func TestEnsureAccountForPartner_ReturnsExistingAccount(t *testing.T) {
    db, mock, err := sqlmock.New()
    require.NoError(t, err)
    defer db.Close()

    mock.ExpectBegin()
    tx, err := db.Begin()
    require.NoError(t, err)

    mock.ExpectQuery(`SELECT id FROM billing_accounts WHERE partner_id = \?`).
        WithArgs("partner-1").
        WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("acct-1"))

    ledger := NewLedger(tx)
    accountID, err := ledger.EnsureAccountForPartner(context.Background(), "partner-1")
    require.NoError(t, err)
    require.Equal(t, "acct-1", accountID)
    require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureAccountForPartner_CreatesZeroBalanceAccountWhenMissing(t *testing.T) {
    db, mock, err := sqlmock.New()
    require.NoError(t, err)
    defer db.Close()

    mock.ExpectBegin()
    tx, err := db.Begin()
    require.NoError(t, err)

    mock.ExpectQuery(`SELECT id FROM billing_accounts WHERE partner_id = \?`).
        WithArgs("partner-2").
        WillReturnError(sql.ErrNoRows)
    mock.ExpectExec(`INSERT INTO billing_accounts`).
        WillReturnResult(sqlmock.NewResult(1, 1))

    ledger := NewLedger(tx)
    accountID, err := ledger.EnsureAccountForPartner(context.Background(), "partner-2")
    require.NoError(t, err)
    require.NotEmpty(t, accountID)
    require.NoError(t, mock.ExpectationsWereMet())
}

func TestCostCents_MatchesRateCardDefaults(t *testing.T) {
    rateCard := models.DefaultRateCard()
    require.Equal(t, int64(50), CostCents(models.TierStandard, 0, rateCard))
    require.Equal(t, int64(55), CostCents(models.TierStandard, 1, rateCard))
    require.Equal(t, int64(62), CostCents(models.TierPremium, 1, rateCard))
    require.Equal(t, int64(68), CostCents(models.TierKomplett, 1, rateCard))
}
