/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"context"
	"flag"
	"fmt"

	"party-request-go/internal/apperrors"
	"party-request-go/internal/common"
	"party-request-go/internal/config"
	"party-request-go/internal/models"
	"party-request-go/internal/wallet"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type walletRequest struct {
	fund     decimal.Decimal
	withdraw decimal.Decimal
	account  string
	bank     string
	verify   bool
	banks    bool
	limit    int
}

func parseAmount(raw, name string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s amount: %w", name, err)
	}
	if !amount.IsPositive() || !amount.IsInteger() {
		return decimal.Zero, fmt.Errorf("%s amount must be a positive whole number of Naira", name)
	}
	return amount, nil
}

func parseAndValidateFlags() (*walletRequest, error) {
	fundFlag := flag.String("fund", "", "Record a wallet funding of this amount")
	withdrawFlag := flag.String("withdraw", "", "Withdraw this amount to the verified account")
	accountFlag := flag.String("account", "", "Destination account number (10 digits)")
	bankFlag := flag.String("bank", "", "Destination bank code")
	verifyFlag := flag.Bool("verify", false, "Verify --account at --bank")
	banksFlag := flag.Bool("banks", false, "List supported banks")
	limitFlag := flag.Int("limit", 20, "Number of transactions to show")
	flag.Parse()

	fund, err := parseAmount(*fundFlag, "fund")
	if err != nil {
		return nil, err
	}
	withdraw, err := parseAmount(*withdrawFlag, "withdraw")
	if err != nil {
		return nil, err
	}
	req := &walletRequest{
		fund:     fund,
		withdraw: withdraw,
		account:  *accountFlag,
		bank:     *bankFlag,
		verify:   *verifyFlag,
		banks:    *banksFlag,
		limit:    *limitFlag,
	}
	if (req.verify || req.withdraw.IsPositive()) && (req.account == "" || req.bank == "") {
		return nil, fmt.Errorf("--account and --bank are required to verify or withdraw")
	}
	return req, nil
}

func printTransaction(tx models.Transaction, isLast bool) {
	symbol := common.BoxPrefix(isLast)
	fmt.Printf("%s %-12s %-10s %12s  %s  %s\n",
		symbol,
		tx.Kind,
		tx.Status,
		common.FormatNaira(tx.Amount),
		common.FormatTime(tx.Timestamp),
		tx.Description)
}

func printWallet(view *wallet.View, limit int) {
	common.PrintHeader("WALLET", common.DefaultWidth)
	fmt.Printf("Balance: %s (%s)\n", common.FormatNaira(view.Wallet.Balance), view.Source)

	txs := view.Wallet.Transactions
	if limit > 0 && len(txs) > limit {
		txs = txs[len(txs)-limit:]
	}
	if len(txs) > 0 {
		fmt.Printf("\n┌─ Transactions (%d of %d)\n", len(txs), len(view.Wallet.Transactions))
		common.PrintBoxSeparator(78)
		for i := len(txs) - 1; i >= 0; i-- {
			printTransaction(txs[i], i == 0)
		}
	}
	if len(view.Wallet.Unconfirmed) > 0 {
		fmt.Printf("\n┌─ Awaiting confirmation (%d)\n", len(view.Wallet.Unconfirmed))
		common.PrintBoxSeparator(78)
		for i, tx := range view.Wallet.Unconfirmed {
			printTransaction(tx, i == len(view.Wallet.Unconfirmed)-1)
		}
	}
}

func main() {
	ctx := context.Background()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	req, err := parseAndValidateFlags()
	if err != nil {
		logger.Fatal("Invalid arguments", zap.Error(err))
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	if _, err := services.RequireSession(ctx); err != nil {
		logger.Fatal("No active session", zap.Error(err))
	}

	if req.banks {
		banks, err := services.Wallet.ListBanks(ctx)
		if err != nil {
			logger.Fatal("Failed to list banks", zap.Error(err))
		}
		common.PrintHeader("BANKS", common.DefaultWidth)
		for i, bank := range banks {
			fmt.Printf("%s %-8s %s\n", common.BoxPrefix(i == len(banks)-1), bank.Code, bank.Name)
		}
		return
	}

	if req.fund.IsPositive() {
		tx, err := services.Wallet.Fund(ctx, req.fund)
		if err != nil {
			logger.Fatal("Funding failed", zap.Error(err))
		}
		fmt.Printf("Funded %s, pending confirmation (%s)\n", common.FormatNaira(tx.Amount), common.ShortId(tx.Id))
	}

	if req.verify {
		verification, err := services.Wallet.VerifyDestination(ctx, req.account, req.bank)
		if err != nil {
			logger.Fatal("Account verification failed", zap.Error(err))
		}
		fmt.Printf("Verified %s (%s at %s)\n", verification.AccountName, verification.AccountNumber, verification.BankCode)
	}

	if req.withdraw.IsPositive() {
		tx, err := services.Wallet.Withdraw(ctx, req.withdraw, req.account, req.bank)
		switch {
		case err == nil:
			fmt.Printf("Withdrawal of %s is %s (reference %s)\n", common.FormatNaira(req.withdraw), tx.Status, tx.Reference)
		case tx != nil && apperrors.CanFallBackToCache(err):
			fmt.Printf("Withdrawal of %s sent but not confirmed, it stays %s until the next sync (reference %s)\n",
				common.FormatNaira(req.withdraw), tx.Status, tx.Reference)
		default:
			logger.Fatal("Withdrawal failed", zap.Error(err))
		}
	}

	view, err := services.Wallet.Refresh(ctx)
	if err != nil {
		logger.Fatal("Failed to load wallet", zap.Error(err))
	}
	printWallet(view, req.limit)

	logger.Info("Wallet report completed",
		zap.String("balance", view.Wallet.Balance.String()),
		zap.Int("transactions", len(view.Wallet.Transactions)),
		zap.String("source", string(view.Source)))
}
