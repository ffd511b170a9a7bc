package billing

import (
    "context"
    "database/sql"
    "time"

    "github.com/google/uuid"
    "github.com/kargodata/recherche-orchestrator/internal/models"
    "github.com/kargodata/recherche-orchestrator/pkg/errors"
    "github.com/kargodata/recherche-orchestrator/pkg/logger"
)

// warningDedupeWindow bounds how often a repeated low-balance warning is
// recorded for the same account; see maybeWarn.
const warningDedupeWindow = 24 * time.Hour

// Ledger implements the prepaid credit account contract: debit, credit,
// and the append-only transaction log invariant balance_after_cents must
// satisfy across concurrent callers.
type Ledger struct {
    tx *sql.Tx
}

func NewLedger(tx *sql.Tx) *Ledger {
    return &Ledger{tx: tx}
}

// Result is returned by Debit/Credit.
type Result struct {
    NewBalanceCents int64
    TransactionID   string
}

// EnsureAccountForPartner returns the billing account id for a partner,
// creating a zero-balance account on first use.
func (l *Ledger) EnsureAccountForPartner(ctx context.Context, partnerID string) (string, error) {
    var accountID string
    err := l.tx.QueryRowContext(ctx, `SELECT id FROM billing_accounts WHERE partner_id = ?`, partnerID).Scan(&accountID)
    if err == nil {
        return accountID, nil
    }
    if err != sql.ErrNoRows {
        return "", errors.Wrap(err, errors.ErrDatabase, "failed to look up billing account")
    }

    accountID = uuid.New().String()
    _, err = l.tx.ExecContext(ctx, `
        INSERT INTO billing_accounts (id, partner_id, balance_cents, warning_threshold_cents, credit_limit_cents)
        VALUES (?, ?, 0, 1000, 0)`, accountID, partnerID)
    if err != nil {
        return "", errors.Wrap(err, errors.ErrDatabase, "failed to create billing account")
    }
    return accountID, nil
}

// lockAccount reads the account row FOR UPDATE, serializing concurrent
// debit/credit calls against the same account within the surrounding
// transaction's isolation level.
func (l *Ledger) lockAccount(ctx context.Context, accountID string) (*models.BillingAccount, error) {
    var a models.BillingAccount
    err := l.tx.QueryRowContext(ctx, `
        SELECT id, partner_id, balance_cents, warning_threshold_cents, credit_limit_cents,
               suspended, suspended_reason, warning_sent_at, created_at, updated_at
        FROM billing_accounts WHERE id = ? FOR UPDATE`, accountID).Scan(
        &a.ID, &a.PartnerID, &a.BalanceCents, &a.WarningThresholdCents, &a.CreditLimitCents,
        &a.Suspended, &a.SuspendedReason, &a.WarningSentAt, &a.CreatedAt, &a.UpdatedAt,
    )
    if err == sql.ErrNoRows {
        return nil, errors.New(errors.ErrOrderNotFound, "billing account not found")
    }
    if err != nil {
        return nil, errors.Wrap(err, errors.ErrDatabase, "failed to lock billing account")
    }
    return &a, nil
}

// Debit charges amountCents against the account. It fails if the account
// is suspended, and fails with ErrInsufficientFunds if the resulting
// balance would fall below -credit_limit_cents.
func (l *Ledger) Debit(ctx context.Context, accountID string, amountCents int64, refType, refID, actor, description string) (Result, error) {
    account, err := l.lockAccount(ctx, accountID)
    if err != nil {
        return Result{}, err
    }
    if account.Suspended {
        return Result{}, errors.New(errors.ErrAccountSuspended, "billing account is suspended")
    }

    newBalance := account.BalanceCents - amountCents
    if newBalance < -account.CreditLimitCents {
        return Result{}, errors.New(errors.ErrInsufficientFunds, "debit would exceed credit limit")
    }

    txnID, err := l.appendAndUpdate(ctx, account, models.TransactionDebit, amountCents, newBalance, refType, refID, actor, description)
    if err != nil {
        return Result{}, err
    }

    if newBalance < account.WarningThresholdCents {
        l.maybeWarn(ctx, account, newBalance)
    }

    return Result{NewBalanceCents: newBalance, TransactionID: txnID}, nil
}

// Credit always succeeds, recording a CREDIT row.
func (l *Ledger) Credit(ctx context.Context, accountID string, amountCents int64, refType, refID, actor, description string) (Result, error) {
    account, err := l.lockAccount(ctx, accountID)
    if err != nil {
        return Result{}, err
    }

    newBalance := account.BalanceCents + amountCents
    txnID, err := l.appendAndUpdate(ctx, account, models.TransactionCredit, amountCents, newBalance, refType, refID, actor, description)
    if err != nil {
        return Result{}, err
    }
    return Result{NewBalanceCents: newBalance, TransactionID: txnID}, nil
}

func (l *Ledger) appendAndUpdate(ctx context.Context, account *models.BillingAccount, txType models.TransactionType, amountCents, newBalance int64, refType, refID, actor, description string) (string, error) {
    txnID := uuid.New().String()

    _, err := l.tx.ExecContext(ctx, `
        INSERT INTO credit_transactions (id, billing_account_id, type, amount_cents, balance_after_cents, description, reference_type, reference_id, actor)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
        txnID, account.ID, txType, amountCents, newBalance, description, refType, refID, actor,
    )
    if err != nil {
        return "", errors.Wrap(err, errors.ErrDatabase, "failed to append credit transaction")
    }

    _, err = l.tx.ExecContext(ctx, `
        UPDATE billing_accounts SET balance_cents = ?, updated_at = NOW() WHERE id = ?`,
        newBalance, account.ID,
    )
    if err != nil {
        return "", errors.Wrap(err, errors.ErrDatabase, "failed to update billing account balance")
    }

    return txnID, nil
}

// maybeWarn sets warning_sent_at when the balance has crossed below the
// warning threshold and no warning has fired within the dedupe window.
// Delivery of the warning itself is out of scope here.
func (l *Ledger) maybeWarn(ctx context.Context, account *models.BillingAccount, newBalance int64) {
    if account.WarningSentAt != nil && time.Since(*account.WarningSentAt) < warningDedupeWindow {
        return
    }

    _, err := l.tx.ExecContext(ctx, `
        UPDATE billing_accounts SET warning_sent_at = NOW() WHERE id = ?`, account.ID)
    if err != nil {
        logger.WithContext(ctx).WithError(err).Warn("Failed to record low-balance warning timestamp")
        return
    }
    logger.WithContext(ctx).WithField("account_id", account.ID).WithField("balance_cents", newBalance).
        Warn("Billing account balance below warning threshold")
}
