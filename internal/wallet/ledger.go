package wallet

import (
	"strings"

	"party-request-go/internal/apperrors"
	"party-request-go/internal/models"

	"github.com/shopspring/decimal"
)

const localIdPrefix = "local-"

// Fold returns the balance a ledger implies. Completed entries count at their
// signed amount; open withdrawals are reserved and count once.
func Fold(txs []models.Transaction) decimal.Decimal {
	total := decimal.Zero
	for _, tx := range txs {
		if tx.Status == models.StatusCompleted || reserved(tx) {
			total = total.Add(tx.Amount)
		}
	}
	return total
}

func reserved(tx models.Transaction) bool {
	return tx.Kind == models.KindWithdrawal &&
		(tx.Status == models.StatusPending || tx.Status == models.StatusProcessing)
}

func isLocal(tx models.Transaction) bool {
	return strings.HasPrefix(tx.Id, localIdPrefix)
}

// ledgerKey matches a local entry with its server copy: withdrawals carry
// the reference we generated, everything else only its id.
func ledgerKey(tx models.Transaction) string {
	if tx.Reference != "" && tx.Kind == models.KindWithdrawal {
		return "ref:" + tx.Reference
	}
	return tx.Id
}

// checkAmount accepts positive whole Naira only.
func checkAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return apperrors.Newf(apperrors.CodeValidation, "amount must be positive, got %s", amount)
	}
	if !amount.IsInteger() {
		return apperrors.Newf(apperrors.CodeValidation, "amount must be whole Naira, got %s", amount)
	}
	return nil
}

func indexOf(txs []models.Transaction, id string) int {
	for i := range txs {
		if txs[i].Id == id {
			return i
		}
	}
	return -1
}

func indexOfReference(txs []models.Transaction, reference string) int {
	for i := range txs {
		if txs[i].Kind == models.KindWithdrawal && (txs[i].Reference == reference || txs[i].Id == reference) {
			return i
		}
	}
	return -1
}

func cloneWallet(w models.Wallet) models.Wallet {
	w.Transactions = append([]models.Transaction(nil), w.Transactions...)
	w.Unconfirmed = append([]models.Transaction(nil), w.Unconfirmed...)
	return w
}
