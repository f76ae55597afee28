package marketdata

// Schema creates the point-in-time market data tables read by Repository
var Schema = []string{
	`CREATE SCHEMA IF NOT EXISTS data`,
	`CREATE TABLE IF NOT EXISTS data.sessions (
		session_date DATE PRIMARY KEY
	)`,
	`CREATE TABLE IF NOT EXISTS data.securities (
		sid               BIGINT PRIMARY KEY,
		symbol            TEXT NOT NULL,
		security_type     TEXT,
		primary_share_sid BIGINT,
		listed_date       DATE NOT NULL,
		delisted_date     DATE
	)`,
	`CREATE TABLE IF NOT EXISTS data.daily_prices (
		sid        BIGINT NOT NULL REFERENCES data.securities (sid),
		trade_date DATE NOT NULL,
		open       DOUBLE PRECISION,
		high       DOUBLE PRECISION,
		low        DOUBLE PRECISION,
		close      DOUBLE PRECISION,
		volume     DOUBLE PRECISION,
		PRIMARY KEY (sid, trade_date)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_daily_prices_date ON data.daily_prices (trade_date)`,
	`CREATE TABLE IF NOT EXISTS data.fundamentals (
		sid         BIGINT NOT NULL REFERENCES data.securities (sid),
		dimension   TEXT NOT NULL,
		report_date DATE NOT NULL,
		marketcap   DOUBLE PRECISION,
		revenue     DOUBLE PRECISION,
		netinc      DOUBLE PRECISION,
		equity      DOUBLE PRECISION,
		PRIMARY KEY (sid, dimension, report_date)
	)`,
}

// SQL columns per dataset column name. Only these names reach a query.
var (
	priceColumns = map[string]string{
		"open":   "open",
		"high":   "high",
		"low":    "low",
		"close":  "close",
		"volume": "volume",
	}
	fundamentalColumns = map[string]string{
		"MARKETCAP": "marketcap",
		"REVENUE":   "revenue",
		"NETINC":    "netinc",
		"EQUITY":    "equity",
	}
	referenceColumns = map[string]string{
		"usstock_SecurityType2":   "security_type",
		"usstock_PrimaryShareSid": "primary_share_sid::text",
	}
)
