package wallet_test

import (
	"context"
	"testing"
	"time"

	"party-request-go/internal/models"
	"party-request-go/internal/store"
	"party-request-go/internal/wallet"

	"pgregory.net/rapid"
)

// The balance never goes negative, a rejected call leaves it untouched and
// it always equals the fold of the ledger.
func TestBalanceInvariants(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		remote := &stubRemote{}
		sessions := &stubSessions{session: session("dj-1", models.RoleDJ)}
		e, err := wallet.NewEngine(remote, store.NewMemory("partyq"), sessions, models.WalletConfig{UnconfirmedGrace: time.Minute})
		if err != nil {
			t.Fatalf("new engine: %v", err)
		}
		if _, err := e.VerifyDestination(ctx, "0123456789", "058"); err != nil {
			t.Fatalf("verify: %v", err)
		}

		var references []string
		steps := rapid.IntRange(1, 40).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			before := balanceOf(t, e)
			amount := naira(int64(rapid.IntRange(1, 2000).Draw(t, "amount")))
			op := rapid.SampledFrom([]string{"fund", "withdraw", "pay", "refund", "receive", "settle"}).Draw(t, "op")

			var opErr error
			switch op {
			case "fund":
				_, opErr = e.Fund(ctx, amount)
			case "withdraw":
				var tx *models.Transaction
				tx, opErr = e.Withdraw(ctx, amount, "0123456789", "058")
				if opErr == nil {
					references = append(references, tx.Reference)
				}
			case "pay":
				_, opErr = e.PayForItem(ctx, amount, "Song request")
			case "refund":
				_, opErr = e.IssueRefund(ctx, amount, "Refund")
			case "receive":
				_, opErr = e.ReceivePayment(ctx, amount, "Song played")
			case "settle":
				if len(references) == 0 {
					continue
				}
				idx := rapid.IntRange(0, len(references)-1).Draw(t, "withdrawal")
				status := rapid.SampledFrom([]models.TransactionStatus{models.StatusCompleted, models.StatusFailed}).Draw(t, "status")
				_, opErr = e.ConfirmWithdrawal(ctx, references[idx], status)
			}

			after := balanceOf(t, e)
			if after.IsNegative() {
				t.Fatalf("balance went negative after %s %s: %s", op, amount, after)
			}
			debit := op == "withdraw" || op == "pay" || op == "refund"
			if debit && amount.GreaterThan(before) {
				if opErr == nil {
					t.Fatalf("%s of %s accepted with balance %s", op, amount, before)
				}
			}
			if opErr != nil && op != "settle" && !after.Equal(before) {
				t.Fatalf("rejected %s changed balance from %s to %s", op, before, after)
			}
			if err := e.Reconcile(ctx); err != nil {
				t.Fatalf("ledger out of balance after %s: %v", op, err)
			}
		}
	})
}
