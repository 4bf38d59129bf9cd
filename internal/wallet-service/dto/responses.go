package dto

type WalletResponse struct {
	UserID       string `json:"userId"`
	WalletID     string `json:"walletId"`
	BalanceMinor int64  `json:"balance_minor"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
