package domain

import "github.com/shopspring/decimal"

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "PENDING"
	TransactionStatusCompleted TransactionStatus = "COMPLETED"
	TransactionStatusFailed    TransactionStatus = "FAILED"
	TransactionStatusCancelled TransactionStatus = "CANCELLED"
	TransactionStatusTimeout   TransactionStatus = "TIMEOUT"
)

// IsTerminal reports whether the backend will change the status again.
func (s TransactionStatus) IsTerminal() bool {
	switch s {
	case TransactionStatusCompleted, TransactionStatusFailed,
		TransactionStatusCancelled, TransactionStatusTimeout:
		return true
	default:
		return false
	}
}

// String representation (for logging)
func (s TransactionStatus) String() string {
	return string(s)
}

// Transaction is an M-Pesa STK push attempt. Only the backend mutates it.
type Transaction struct {
	ID                int64             `json:"id"`
	OrderID           int64             `json:"order_id"`
	Phone             string            `json:"phone_number"`
	Amount            decimal.Decimal   `json:"amount"`
	Status            TransactionStatus `json:"status"`
	ReceiptNumber     string            `json:"mpesa_receipt_number,omitempty"`
	ResultDescription string            `json:"result_description,omitempty"`
}
