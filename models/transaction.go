package models

import (
	"time"
)

// Direction is the sign of a journal entry
type Direction string

const (
	DirectionEarn  Direction = "EARN"
	DirectionSpend Direction = "SPEND"
)

// Transaction is an immutable journal entry recording one balance change
type Transaction struct {
	ID        int64          `db:"id"`
	WalletID  int64          `db:"wallet_id"`
	Amount    int64          `db:"amount"`
	Direction Direction      `db:"direction"`
	Reason    Reason         `db:"reason"`
	Metadata  map[string]any `db:"metadata"`
	CreatedAt time.Time      `db:"created_at"`
}

// SignedAmount returns the amount with the sign of its direction
func (t *Transaction) SignedAmount() int64 {
	if t.Direction == DirectionSpend {
		return -t.Amount
	}
	return t.Amount
}
