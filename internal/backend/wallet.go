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

package backend

import (
	"context"
	"fmt"

	"party-request-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func (c *Client) Balance(ctx context.Context, role models.Role) (decimal.Decimal, error) {
	env, err := c.call(ctx, EndpointBalance, role, map[string]string{})
	if err != nil {
		return decimal.Zero, fmt.Errorf("unable to fetch balance: %w", err)
	}
	balance, err := normalizeBalance(env)
	if err != nil {
		return decimal.Zero, fmt.Errorf("unable to read balance: %w", err)
	}
	return balance, nil
}

func (c *Client) TransactionHistory(ctx context.Context, role models.Role) ([]models.Transaction, error) {
	env, err := c.call(ctx, EndpointHistory, role, map[string]string{})
	if err != nil {
		return nil, fmt.Errorf("unable to fetch transaction history: %w", err)
	}
	txs, err := normalizeTransactions(env)
	if err != nil {
		return nil, fmt.Errorf("unable to read transaction history: %w", err)
	}
	return txs, nil
}

func (c *Client) TransferOut(ctx context.Context, role models.Role, params models.TransferParams) (*models.TransferResult, error) {
	zap.L().Info("Submitting withdrawal",
		zap.String("amount", params.Amount.String()),
		zap.String("bank_code", params.BankCode),
		zap.String("reference", params.Reference))

	body := map[string]string{
		"amount":         params.Amount.String(),
		"account_number": params.AccountNumber,
		"bank_code":      params.BankCode,
		"account_name":   params.AccountName,
		"reference":      params.Reference,
	}
	env, err := c.call(ctx, EndpointTransferOut, role, body)
	if err != nil {
		zap.L().Error("Failed to submit withdrawal",
			zap.String("reference", params.Reference),
			zap.Error(err))
		return nil, fmt.Errorf("unable to submit withdrawal: %w", err)
	}
	return normalizeTransfer(env, params.Reference)
}

func (c *Client) VerifyAccount(ctx context.Context, accountNumber, bankCode string) (*models.AccountVerification, error) {
	body := map[string]string{
		"account_number": accountNumber,
		"bank_code":      bankCode,
	}
	env, err := c.call(ctx, EndpointVerifyAccount, models.RoleAttendee, body)
	if err != nil {
		return nil, fmt.Errorf("unable to verify account: %w", err)
	}
	return normalizeVerification(env, accountNumber, bankCode)
}

func (c *Client) ListBanks(ctx context.Context) ([]models.Bank, error) {
	env, err := c.call(ctx, EndpointListBanks, models.RoleAttendee, map[string]string{})
	if err != nil {
		return nil, fmt.Errorf("unable to list banks: %w", err)
	}
	return normalizeBanks(env)
}
