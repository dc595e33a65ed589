package domain

const (
	CurrencyNGN = "NGN"

	DirectionDebit  = "debit"
	DirectionCredit = "credit"

	TxTypeFunding        = "funding"
	TxTypePayment        = "payment"
	TxTypeWithdrawal     = "withdrawal"
	TxTypeOpeningBalance = "opening_balance"

	TxStatusPending    = "pending"
	TxStatusSuccessful = "successful"
	TxStatusFailed     = "failed"

	AccountStatusActive = "ACTIVE"

	PlanFree = "free"
	PlanPaid = "paid"
)

// Reference prefixes for generated correlation keys.
const (
	RefPrefixWallet   = "WAL"
	RefPrefixTransfer = "TRF"
)
