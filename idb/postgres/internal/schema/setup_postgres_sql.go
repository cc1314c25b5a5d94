package schema

// SetupPostgresSql creates the reporting tables read by the API. In
// production they are populated by the ETL jobs; tests use it to create an
// empty reporting database.
const SetupPostgresSql = `
CREATE TABLE IF NOT EXISTS pnl_client_summary (
  client_id bigint PRIMARY KEY,
  client_name text,
  primary_server text,
  countries text[],
  currencies text[],
  account_count integer NOT NULL DEFAULT 0,
  account_list bigint[],
  total_balance_usd numeric(20,2) DEFAULT 0,
  total_credit_usd numeric(20,2) DEFAULT 0,
  total_floating_pnl_usd numeric(20,2) DEFAULT 0,
  total_equity_usd numeric(20,2) DEFAULT 0,
  total_closed_profit_usd numeric(20,2) DEFAULT 0,
  total_commission_usd numeric(20,2) DEFAULT 0,
  total_deposit_usd numeric(20,2) DEFAULT 0,
  total_withdrawal_usd numeric(20,2) DEFAULT 0,
  net_deposit_usd numeric(20,2) DEFAULT 0,
  total_volume_lots numeric(20,2) DEFAULT 0,
  total_overnight_volume_lots numeric(20,2) DEFAULT 0,
  overnight_volume_ratio numeric(10,4) DEFAULT 0,
  total_closed_count integer DEFAULT 0,
  total_overnight_count integer DEFAULT 0,
  closed_sell_volume_lots numeric(20,2) DEFAULT 0,
  closed_sell_count integer DEFAULT 0,
  closed_sell_profit_usd numeric(20,2) DEFAULT 0,
  closed_sell_swap_usd numeric(20,2) DEFAULT 0,
  closed_buy_volume_lots numeric(20,2) DEFAULT 0,
  closed_buy_count integer DEFAULT 0,
  closed_buy_profit_usd numeric(20,2) DEFAULT 0,
  closed_buy_swap_usd numeric(20,2) DEFAULT 0,
  zipcode text,
  is_enabled integer NOT NULL DEFAULT 1,
  last_updated timestamp without time zone NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS pnl_client_summary_account_list ON pnl_client_summary USING gin (account_list);

CREATE TABLE IF NOT EXISTS pnl_client_accounts (
  client_id bigint NOT NULL,
  login bigint NOT NULL,
  server text NOT NULL,
  currency text,
  user_name text,
  user_group text,
  country text,
  balance_usd numeric(20,2) DEFAULT 0,
  credit_usd numeric(20,2) DEFAULT 0,
  floating_pnl_usd numeric(20,2) DEFAULT 0,
  equity_usd numeric(20,2) DEFAULT 0,
  closed_profit_usd numeric(20,2) DEFAULT 0,
  commission_usd numeric(20,2) DEFAULT 0,
  deposit_usd numeric(20,2) DEFAULT 0,
  withdrawal_usd numeric(20,2) DEFAULT 0,
  volume_lots numeric(20,2) DEFAULT 0,
  last_updated timestamp without time zone NOT NULL DEFAULT now(),
  PRIMARY KEY (login, server)
);

CREATE INDEX IF NOT EXISTS pnl_client_accounts_client ON pnl_client_accounts (client_id);

CREATE TABLE IF NOT EXISTS pnl_summary (
  login bigint NOT NULL,
  symbol text NOT NULL,
  user_group text,
  user_name text,
  country text,
  balance numeric(20,2) DEFAULT 0,
  total_closed_trades integer DEFAULT 0,
  buy_trades_count integer DEFAULT 0,
  sell_trades_count integer DEFAULT 0,
  total_closed_volume numeric(20,2) DEFAULT 0,
  buy_closed_volume numeric(20,2) DEFAULT 0,
  sell_closed_volume numeric(20,2) DEFAULT 0,
  total_closed_pnl numeric(20,2) DEFAULT 0,
  floating_pnl numeric(20,2) DEFAULT 0,
  last_updated timestamp without time zone NOT NULL DEFAULT now(),
  PRIMARY KEY (login, symbol)
);

CREATE TABLE IF NOT EXISTS swapfree_zipcode_changes (
  id bigserial PRIMARY KEY,
  client_id bigint NOT NULL,
  zipcode_before text,
  zipcode_after text,
  change_reason text,
  change_time timestamptz NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS swapfree_zipcode_changes_time ON swapfree_zipcode_changes (change_time);

CREATE TABLE IF NOT EXISTS swapfree_exclusions (
  id bigserial PRIMARY KEY,
  client_id bigint NOT NULL,
  reason_code text,
  added_by text,
  added_at timestamptz DEFAULT now(),
  expires_at timestamptz,
  is_active boolean NOT NULL DEFAULT true
);
`
