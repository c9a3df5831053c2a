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

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionKind classifies a wallet ledger entry
type TransactionKind string

const (
	KindDeposit     TransactionKind = "deposit"
	KindWithdrawal  TransactionKind = "withdrawal"
	KindPayment     TransactionKind = "payment"
	KindSongPayment TransactionKind = "songPayment"
	KindRefund      TransactionKind = "refund"
)

// Sign returns the default direction of the kind: +1 credits, -1 debits.
func (k TransactionKind) Sign() int {
	switch k {
	case KindWithdrawal, KindPayment:
		return -1
	default:
		return 1
	}
}

// TransactionStatus is the settlement state of a ledger entry
type TransactionStatus string

const (
	StatusCompleted  TransactionStatus = "completed"
	StatusPending    TransactionStatus = "pending"
	StatusProcessing TransactionStatus = "processing"
	StatusFailed     TransactionStatus = "failed"
)

// Transaction represents one wallet ledger entry. Amount is signed: credits
// are positive and debits negative.
type Transaction struct {
	Id          string            `json:"id"`
	Amount      decimal.Decimal   `json:"amount"`
	Kind        TransactionKind   `json:"kind"`
	Description string            `json:"description"`
	Timestamp   time.Time         `json:"timestamp"`
	Status      TransactionStatus `json:"status"`
	Reference   string            `json:"reference,omitempty"`
	// Placeholder marks a local credit that stands in for a server-side
	// settlement and must never be trusted as final.
	Placeholder bool `json:"placeholder,omitempty"`
}

// Wallet is a user's balance and ledger
type Wallet struct {
	UserId       string          `json:"user_id"`
	Balance      decimal.Decimal `json:"balance"`
	Transactions []Transaction   `json:"transactions"`
	// Unconfirmed holds local entries not yet visible server-side; they are
	// shown to the user but not folded into Balance.
	Unconfirmed []Transaction `json:"unconfirmed,omitempty"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// Bank is a withdrawal destination institution
type Bank struct {
	Name string `json:"name" yaml:"name"`
	Code string `json:"code" yaml:"code"`
}

// AccountVerification is the result of resolving a destination account
type AccountVerification struct {
	AccountNumber string    `json:"account_number"`
	BankCode      string    `json:"bank_code"`
	AccountName   string    `json:"account_name"`
	VerifiedAt    time.Time `json:"verified_at"`
}

// PaymentMethod is a saved withdrawal destination
type PaymentMethod struct {
	AccountNumber string `json:"account_number"`
	BankCode      string `json:"bank_code"`
	AccountName   string `json:"account_name"`
}

// TransferParams contains a withdrawal request sent to the backend
type TransferParams struct {
	Amount        decimal.Decimal
	AccountNumber string
	BankCode      string
	AccountName   string
	Reference     string
}

// TransferResult is the canonical response to a withdrawal request
type TransferResult struct {
	Reference string
	Status    TransactionStatus
	Message   string
}
