package wallet

import (
	"context"
	"errors"
	"fmt"

	"party-request-go/internal/apperrors"
	"party-request-go/internal/models"
	"party-request-go/internal/reconcile"
	"party-request-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type destinationInput struct {
	AccountNumber string `validate:"required,numeric,len=10"`
	BankCode      string `validate:"required,numeric,min=3,max=6"`
}

// VerifyDestination resolves the holder of a bank account. A different
// account or bank invalidates the previous verification first.
func (e *Engine) VerifyDestination(ctx context.Context, accountNumber, bankCode string) (*models.AccountVerification, error) {
	if err := e.validate.Struct(destinationInput{AccountNumber: accountNumber, BankCode: bankCode}); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeValidation, err, "invalid destination account")
	}
	session, err := e.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer e.mu.Unlock()

	if v := e.verification; v != nil && (v.AccountNumber != accountNumber || v.BankCode != bankCode) {
		e.verification = nil
		if err := e.cache.Delete(ctx, session.UserId, store.KeyVerification); err != nil {
			zap.L().Warn("Failed to drop stale verification", zap.Error(err))
		}
		delete(e.revisions, store.KeyVerification)
	}

	verification, err := e.remote.VerifyAccount(ctx, accountNumber, bankCode)
	if err != nil {
		if code, ok := apperrors.CodeOf(err); ok && (code == apperrors.CodeValidation || code == apperrors.CodeNotFound) {
			return nil, apperrors.Wrap(apperrors.CodeVerificationRequired, err, "account could not be verified")
		}
		return nil, err
	}
	verification.VerifiedAt = e.now().UTC()
	e.verification = verification

	rev, err := store.WriteThrough(ctx, e.cache, session.UserId, store.KeyVerification, *verification, store.SourceServer, e.revisions[store.KeyVerification])
	if err != nil {
		zap.L().Warn("Failed to cache account verification", zap.Error(err))
	} else {
		e.revisions[store.KeyVerification] = rev
	}
	e.rememberPaymentMethod(ctx, session.UserId, verification)

	zap.L().Info("Destination account verified",
		zap.String("user_id", session.UserId),
		zap.String("bank_code", bankCode),
		zap.String("account_name", verification.AccountName))
	copied := *verification
	return &copied, nil
}

func (e *Engine) rememberPaymentMethod(ctx context.Context, userId string, v *models.AccountVerification) {
	methods, _, err := store.GetJSON[[]models.PaymentMethod](ctx, e.cache, userId, store.KeyPaymentMethods)
	if err != nil && !errors.Is(err, store.ErrCacheMiss) {
		zap.L().Warn("Failed to read payment methods", zap.Error(err))
		return
	}
	method := models.PaymentMethod{AccountNumber: v.AccountNumber, BankCode: v.BankCode, AccountName: v.AccountName}
	methods = reconcile.Upsert(methods, method, func(m models.PaymentMethod) string {
		return m.BankCode + "/" + m.AccountNumber
	})
	if _, err := store.PutJSON(ctx, e.cache, userId, store.KeyPaymentMethods, methods, store.SourceLocal, 0); err != nil {
		zap.L().Warn("Failed to cache payment methods", zap.Error(err))
	}
}

// Verification returns the current destination verification, if any.
func (e *Engine) Verification(ctx context.Context) (*models.AccountVerification, error) {
	if _, err := e.lock(ctx); err != nil {
		return nil, err
	}
	defer e.mu.Unlock()
	if e.verification == nil {
		return nil, nil
	}
	copied := *e.verification
	return &copied, nil
}

// Withdraw reserves amount, records a processing withdrawal and submits the
// transfer. The withdrawal stays processing until a reconciliation pass sees
// it settle. A transfer lost to a network failure is left processing; any
// other rejection fails the withdrawal and releases the reservation.
func (e *Engine) Withdraw(ctx context.Context, amount decimal.Decimal, accountNumber, bankCode string) (*models.Transaction, error) {
	if err := checkAmount(amount); err != nil {
		return nil, err
	}
	session, err := e.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer e.mu.Unlock()

	if amount.GreaterThan(e.wallet.Value.Balance) {
		return nil, apperrors.Newf(apperrors.CodeInsufficientFunds,
			"withdrawal of %s exceeds balance %s", amount, e.wallet.Value.Balance)
	}
	v := e.verification
	if v == nil || v.AccountNumber != accountNumber || v.BankCode != bankCode {
		return nil, apperrors.New(apperrors.CodeVerificationRequired, "verify the destination account before withdrawing")
	}

	tx := e.newTransaction(models.KindWithdrawal, amount.Neg(), fmt.Sprintf("Transfer to %s", v.AccountName), models.StatusProcessing)
	tx.Reference = uuid.NewString()
	e.applyLocked(ctx, func(w *models.Wallet) {
		w.Balance = w.Balance.Sub(amount)
		w.Transactions = append(w.Transactions, tx)
	})
	gen := e.generation.Load()

	result, err := e.remote.TransferOut(ctx, session.Role, models.TransferParams{
		Amount:        amount,
		AccountNumber: accountNumber,
		BankCode:      bankCode,
		AccountName:   v.AccountName,
		Reference:     tx.Reference,
	})
	if e.generation.Load() != gen {
		return nil, ErrSessionChanged
	}
	if err != nil {
		if apperrors.CanFallBackToCache(err) {
			zap.L().Warn("Transfer outcome unknown, leaving withdrawal processing",
				zap.String("reference", tx.Reference),
				zap.Error(err))
			return &tx, fmt.Errorf("withdrawal %s left processing: %w", tx.Reference, err)
		}
		if _, _, settleErr := e.settleLocked(ctx, tx.Reference, models.StatusFailed); settleErr != nil {
			zap.L().Error("Failed to release withdrawal reservation", zap.String("reference", tx.Reference), zap.Error(settleErr))
		}
		return nil, err
	}

	if result.Status == models.StatusCompleted || result.Status == models.StatusFailed {
		settled, _, err := e.settleLocked(ctx, tx.Reference, result.Status)
		if err != nil {
			return nil, err
		}
		tx = settled
	}

	zap.L().Info("Withdrawal submitted",
		zap.String("user_id", session.UserId),
		zap.String("reference", tx.Reference),
		zap.String("amount", amount.String()),
		zap.String("status", string(tx.Status)))
	return &tx, nil
}

// ConfirmWithdrawal settles a processing withdrawal as completed, or as
// failed with its reservation credited back.
func (e *Engine) ConfirmWithdrawal(ctx context.Context, reference string, status models.TransactionStatus) (*models.Transaction, error) {
	if status != models.StatusCompleted && status != models.StatusFailed {
		return nil, apperrors.Newf(apperrors.CodeValidation, "withdrawal cannot settle as %q", status)
	}
	if _, err := e.lock(ctx); err != nil {
		return nil, err
	}
	defer e.mu.Unlock()

	tx, _, err := e.settleLocked(ctx, reference, status)
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

func (e *Engine) settleLocked(ctx context.Context, reference string, status models.TransactionStatus) (models.Transaction, bool, error) {
	i := indexOfReference(e.wallet.Value.Transactions, reference)
	if i < 0 {
		return models.Transaction{}, false, apperrors.Newf(apperrors.CodeNotFound, "withdrawal %s not found", reference)
	}
	tx := e.wallet.Value.Transactions[i]
	if tx.Status == status {
		return tx, false, nil
	}
	if !reserved(tx) {
		return tx, false, apperrors.Newf(apperrors.CodeConflict, "withdrawal %s already %s", reference, tx.Status)
	}

	e.applyLocked(ctx, func(w *models.Wallet) {
		w.Transactions[i].Status = status
		if status == models.StatusFailed {
			w.Balance = w.Balance.Add(tx.Amount.Abs())
		}
	})
	zap.L().Info("Withdrawal settled",
		zap.String("reference", reference),
		zap.String("status", string(status)))
	return e.wallet.Value.Transactions[i], true, nil
}

// ReconcileWithdrawals settles every processing withdrawal the server
// reports as completed or failed. It returns how many were settled.
func (e *Engine) ReconcileWithdrawals(ctx context.Context) (int, error) {
	session, err := e.lock(ctx)
	if err != nil {
		return 0, err
	}
	defer e.mu.Unlock()

	var open []string
	for _, tx := range e.wallet.Value.Transactions {
		if reserved(tx) && tx.Reference != "" {
			open = append(open, tx.Reference)
		}
	}
	if len(open) == 0 {
		return 0, nil
	}

	gen := e.generation.Load()
	history, err := e.remote.TransactionHistory(ctx, session.Role)
	if err != nil {
		return 0, fmt.Errorf("unable to reconcile withdrawals: %w", err)
	}
	if e.generation.Load() != gen {
		return 0, ErrSessionChanged
	}

	settled := 0
	for _, reference := range open {
		j := indexOfReference(history, reference)
		if j < 0 {
			continue
		}
		status := history[j].Status
		if status != models.StatusCompleted && status != models.StatusFailed {
			continue
		}
		_, changed, err := e.settleLocked(ctx, reference, status)
		if err != nil {
			zap.L().Warn("Failed to settle withdrawal", zap.String("reference", reference), zap.Error(err))
			continue
		}
		if changed {
			settled++
		}
	}
	return settled, nil
}

// ListBanks returns the backend's bank list, or the configured fallback
// when the backend is unreachable.
func (e *Engine) ListBanks(ctx context.Context) ([]models.Bank, error) {
	banks, err := e.remote.ListBanks(ctx)
	if err == nil {
		return banks, nil
	}
	if apperrors.CanFallBackToCache(err) && len(e.banks) > 0 {
		zap.L().Warn("Bank list unavailable, using fallback list", zap.Int("banks", len(e.banks)), zap.Error(err))
		return append([]models.Bank(nil), e.banks...), nil
	}
	return nil, err
}
