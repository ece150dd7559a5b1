package constant

// Remote payments service routes.
const (
	PathLogin        = "/api/auth/login"
	PathRegister     = "/api/auth/register/user"
	PathTransactions = "/api/wallet/transactions"
	PathBalance      = "/api/wallet/balance"
	PathDeposit      = "/api/wallet/deposit"
	PathWithdraw     = "/api/wallet/withdraw"
	PathPay          = "/api/wallet/pay"
	PathTransfer     = "/api/wallet/transfer"
)

// Provisional record ids carry this prefix until the server assigns one.
const LocalIDPrefix = "local-"

// MerchantCodeSeparator splits a merchant QR payload into id and display name.
const MerchantCodeSeparator = "|"

// SnapshotKeyPrefix namespaces persisted ledger snapshots in redis.
const SnapshotKeyPrefix = "wallet:ledger:"
