package config

import (
	"fmt"
	"net/netip"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Ledger       LedgerConfig
	Chain        ChainConfig
	PriceFeed    PriceFeedConfig
	Cron         CronConfig
	RateLimit    RateLimitConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Ledger.validate(); err != nil {
		return nil, err
	}
	if _, err := cfg.RateLimit.TrustedProxyPrefixes(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"YIELDVAULT_APP_ENV" required:"true"`
	Port         string   `envconfig:"YIELDVAULT_APP_PORT" default:"8080"`
	LogLevel     string   `envconfig:"YIELDVAULT_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"YIELDVAULT_LOG_WARN_STACK" default:"false"`
	CORSOrigins  []string `envconfig:"YIELDVAULT_CORS_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"YIELDVAULT_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"YIELDVAULT_DB_DSN"`
	Driver string `envconfig:"YIELDVAULT_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"YIELDVAULT_DB_HOST"`
	LegacyPort     int    `envconfig:"YIELDVAULT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"YIELDVAULT_DB_USER"`
	LegacyPassword string `envconfig:"YIELDVAULT_DB_PASSWORD"`
	LegacyName     string `envconfig:"YIELDVAULT_DB_NAME"`
	LegacySSLMode  string `envconfig:"YIELDVAULT_DB_SSLMODE" default:"disable"`

	MaxOpenConns        int           `envconfig:"YIELDVAULT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns        int           `envconfig:"YIELDVAULT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime     time.Duration `envconfig:"YIELDVAULT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime     time.Duration `envconfig:"YIELDVAULT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SerializableRetries int           `envconfig:"YIELDVAULT_DB_SERIALIZABLE_RETRIES" default:"3"`
}

type RedisConfig struct {
	URL          string        `envconfig:"YIELDVAULT_REDIS_URL" required:"true"`
	Address      string        `envconfig:"YIELDVAULT_REDIS_ADDR"`
	Password     string        `envconfig:"YIELDVAULT_REDIS_PASSWORD"`
	DB           int           `envconfig:"YIELDVAULT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"YIELDVAULT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"YIELDVAULT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"YIELDVAULT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"YIELDVAULT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"YIELDVAULT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig describes the tokens issued by the identity provider in front of the ledger.
type JWTConfig struct {
	Secret            string `envconfig:"YIELDVAULT_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"YIELDVAULT_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"YIELDVAULT_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"YIELDVAULT_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"YIELDVAULT_AUTO_MIGRATE" default:"false"`
}

// LedgerConfig holds the money rules. Rates are fractions (0.005 == 0.5%).
type LedgerConfig struct {
	DailyRate         decimal.Decimal `envconfig:"YIELDVAULT_LEDGER_DAILY_RATE" default:"0.005"`
	L1CommissionRate  decimal.Decimal `envconfig:"YIELDVAULT_LEDGER_L1_RATE" default:"0.03"`
	L2CommissionRate  decimal.Decimal `envconfig:"YIELDVAULT_LEDGER_L2_RATE" default:"0.01"`
	WithdrawalFeeRate decimal.Decimal `envconfig:"YIELDVAULT_LEDGER_WITHDRAWAL_FEE_RATE" default:"0.10"`
	MinWithdrawal     decimal.Decimal `envconfig:"YIELDVAULT_LEDGER_MIN_WITHDRAWAL" default:"10"`
	LockMonths        int             `envconfig:"YIELDVAULT_LEDGER_LOCK_MONTHS" default:"4"`
	BusinessTimeZone  string          `envconfig:"YIELDVAULT_LEDGER_TIME_ZONE" default:"UTC"`
	BroadcastTimeout  time.Duration   `envconfig:"YIELDVAULT_LEDGER_BROADCAST_TIMEOUT" default:"45s"`
}

// Location resolves BusinessTimeZone, falling back to UTC.
func (l LedgerConfig) Location() *time.Location {
	loc, err := time.LoadLocation(strings.TrimSpace(l.BusinessTimeZone))
	if err != nil || l.BusinessTimeZone == "" {
		return time.UTC
	}
	return loc
}

func (l LedgerConfig) validate() error {
	for name, rate := range map[string]decimal.Decimal{
		"daily rate":          l.DailyRate,
		"level 1 rate":        l.L1CommissionRate,
		"level 2 rate":        l.L2CommissionRate,
		"withdrawal fee rate": l.WithdrawalFeeRate,
	} {
		if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
			return fmt.Errorf("ledger %s must be in [0, 1), got %s", name, rate)
		}
	}
	if l.LockMonths < 0 {
		return fmt.Errorf("ledger lock months must not be negative")
	}
	if l.MinWithdrawal.IsNegative() {
		return fmt.Errorf("ledger minimum withdrawal must not be negative")
	}
	if _, err := time.LoadLocation(l.BusinessTimeZone); err != nil {
		return fmt.Errorf("ledger time zone: %w", err)
	}
	return nil
}

// ChainConfig wires the EVM node used for deposit verification and payouts.
type ChainConfig struct {
	RPCURL           string        `envconfig:"YIELDVAULT_CHAIN_RPC_URL"`
	ChainID          int64         `envconfig:"YIELDVAULT_CHAIN_ID" default:"56"`
	TreasuryAddress  string        `envconfig:"YIELDVAULT_CHAIN_TREASURY_ADDRESS"`
	HotWalletKey     string        `envconfig:"YIELDVAULT_CHAIN_HOT_WALLET_KEY"`
	MinConfirmations uint64        `envconfig:"YIELDVAULT_CHAIN_MIN_CONFIRMATIONS" default:"3"`
	GasLimitBuffer   uint64        `envconfig:"YIELDVAULT_CHAIN_GAS_LIMIT_BUFFER" default:"10000"`
	RPCTimeout       time.Duration `envconfig:"YIELDVAULT_CHAIN_RPC_TIMEOUT" default:"20s"`
	// Tokens is a comma separated list of SYMBOL:contract:decimals:priceID.
	Tokens []string `envconfig:"YIELDVAULT_CHAIN_TOKENS"`
}

// Token describes one supported ERC-20 asset.
type Token struct {
	Symbol   string
	Contract string
	Decimals int32
	PriceID  string
}

// ParsedTokens decodes Tokens into a symbol-keyed map.
func (c ChainConfig) ParsedTokens() (map[string]Token, error) {
	out := make(map[string]Token, len(c.Tokens))
	for _, raw := range c.Tokens {
		parts := strings.Split(strings.TrimSpace(raw), ":")
		if len(parts) != 4 {
			return nil, fmt.Errorf("invalid token spec %q: want SYMBOL:contract:decimals:priceID", raw)
		}
		decimals, err := strconv.ParseInt(parts[2], 10, 32)
		if err != nil || decimals < 0 || decimals > 36 {
			return nil, fmt.Errorf("invalid token decimals in %q", raw)
		}
		symbol := strings.ToUpper(strings.TrimSpace(parts[0]))
		if symbol == "" {
			return nil, fmt.Errorf("invalid token spec %q: empty symbol", raw)
		}
		out[symbol] = Token{
			Symbol:   symbol,
			Contract: strings.TrimSpace(parts[1]),
			Decimals: int32(decimals),
			PriceID:  strings.TrimSpace(parts[3]),
		}
	}
	return out, nil
}

type PriceFeedConfig struct {
	BaseURL    string        `envconfig:"YIELDVAULT_PRICEFEED_BASE_URL" default:"https://api.coingecko.com/api/v3"`
	APIKey     string        `envconfig:"YIELDVAULT_PRICEFEED_API_KEY"`
	Currency   string        `envconfig:"YIELDVAULT_PRICEFEED_CURRENCY" default:"usd"`
	Timeout    time.Duration `envconfig:"YIELDVAULT_PRICEFEED_TIMEOUT" default:"10s"`
	RetryCount int           `envconfig:"YIELDVAULT_PRICEFEED_RETRY_COUNT" default:"2"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"YIELDVAULT_CRON_INTERVAL" default:"24h"`
	LockTTL  time.Duration `envconfig:"YIELDVAULT_CRON_LOCK_TTL" default:"23h"`
}

// RateLimitConfig drives the redis fixed-window limiter shared by all API instances.
type RateLimitConfig struct {
	Window          time.Duration `envconfig:"YIELDVAULT_RATE_LIMIT_WINDOW" default:"1m"`
	DefaultLimit    int64         `envconfig:"YIELDVAULT_RATE_LIMIT_DEFAULT" default:"120"`
	WithdrawalLimit int64         `envconfig:"YIELDVAULT_RATE_LIMIT_WITHDRAWALS" default:"5"`
	DepositLimit    int64         `envconfig:"YIELDVAULT_RATE_LIMIT_DEPOSITS" default:"10"`
	TrustedProxies  []string      `envconfig:"YIELDVAULT_TRUSTED_PROXIES"`
}

// TrustedProxyPrefixes parses TrustedProxies. Entries are CIDRs or single
// addresses. Forwarding headers are only honoured from these peers.
func (c RateLimitConfig) TrustedProxyPrefixes() ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(c.TrustedProxies))
	for _, raw := range c.TrustedProxies {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if strings.Contains(raw, "/") {
			prefix, err := netip.ParsePrefix(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid trusted proxy %q: %w", raw, err)
			}
			prefixes = append(prefixes, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", raw, err)
		}
		prefixes = append(prefixes, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
	}
	return prefixes, nil
}

type GCPConfig struct {
	ProjectID string `envconfig:"YIELDVAULT_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	LedgerTopic string `envconfig:"YIELDVAULT_PUBSUB_LEDGER_TOPIC" default:"yv-ledger-events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"YIELDVAULT_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"YIELDVAULT_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"YIELDVAULT_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"YIELDVAULT_OUTBOX_RETENTION_DAYS" default:"90"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
