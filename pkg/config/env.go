package config

const (
	EnvPrefix = "YIELDVAULT"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv   = "YIELDVAULT_APP_ENV"
	EnvPort     = "YIELDVAULT_APP_PORT"
	EnvLogLevel = "YIELDVAULT_LOG_LEVEL"

	EnvDBDSN  = "YIELDVAULT_DB_DSN"
	EnvDBHost = "YIELDVAULT_DB_HOST"
	EnvDBUser = "YIELDVAULT_DB_USER"
	EnvDBName = "YIELDVAULT_DB_NAME"

	EnvRedisURL = "YIELDVAULT_REDIS_URL"

	EnvJWTSecret  = "YIELDVAULT_JWT_SECRET"
	EnvJWTIssuer  = "YIELDVAULT_JWT_ISSUER"
	EnvJWTExpMins = "YIELDVAULT_JWT_EXPIRATION_MINUTES"

	EnvLedgerDailyRate   = "YIELDVAULT_LEDGER_DAILY_RATE"
	EnvLedgerLockMonths  = "YIELDVAULT_LEDGER_LOCK_MONTHS"
	EnvLedgerMinWithdraw = "YIELDVAULT_LEDGER_MIN_WITHDRAWAL"

	EnvChainRPCURL    = "YIELDVAULT_CHAIN_RPC_URL"
	EnvChainID        = "YIELDVAULT_CHAIN_ID"
	EnvChainTreasury  = "YIELDVAULT_CHAIN_TREASURY_ADDRESS"
	EnvChainHotWallet = "YIELDVAULT_CHAIN_HOT_WALLET_KEY"
	EnvChainTokens    = "YIELDVAULT_CHAIN_TOKENS"

	EnvPriceFeedBaseURL = "YIELDVAULT_PRICEFEED_BASE_URL"

	EnvGCPProjectID      = "YIELDVAULT_GCP_PROJECT_ID"
	EnvPubSubLedgerTopic = "YIELDVAULT_PUBSUB_LEDGER_TOPIC"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
