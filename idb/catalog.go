package idb

import "github.com/fxdesk/dashboard-api/filter"

// ClientSummarySortFields is the allow-list of sortable summary columns.
var ClientSummarySortFields = map[string]bool{
	"client_id":                   true,
	"client_name":                 true,
	"primary_server":              true,
	"account_count":               true,
	"total_balance_usd":           true,
	"total_credit_usd":            true,
	"total_floating_pnl_usd":      true,
	"total_equity_usd":            true,
	"total_closed_profit_usd":     true,
	"total_commission_usd":        true,
	"total_deposit_usd":           true,
	"total_withdrawal_usd":        true,
	"net_deposit_usd":             true,
	"total_volume_lots":           true,
	"total_overnight_volume_lots": true,
	"overnight_volume_ratio":      true,
	"total_closed_count":          true,
	"total_overnight_count":       true,
	"closed_sell_volume_lots":     true,
	"closed_sell_count":           true,
	"closed_sell_profit_usd":      true,
	"closed_buy_volume_lots":      true,
	"closed_buy_count":            true,
	"closed_buy_profit_usd":       true,
	"last_updated":                true,
}

// ClientSummaryFields are the filterable columns of the client summary.
var ClientSummaryFields = filter.Catalog{
	"client_id":                   {Column: "client_id", Kind: filter.Number},
	"client_name":                 {Column: "client_name", Kind: filter.Text},
	"primary_server":              {Column: "primary_server", Kind: filter.Text},
	"countries":                   {Column: "array_to_string(countries, ',')", Kind: filter.Text},
	"currencies":                  {Column: "array_to_string(currencies, ',')", Kind: filter.Text},
	"account_count":               {Column: "account_count", Kind: filter.Number},
	"total_balance_usd":           {Column: "total_balance_usd", Kind: filter.Number},
	"total_credit_usd":            {Column: "total_credit_usd", Kind: filter.Number},
	"total_floating_pnl_usd":      {Column: "total_floating_pnl_usd", Kind: filter.Number},
	"total_equity_usd":            {Column: "total_equity_usd", Kind: filter.Number},
	"total_closed_profit_usd":     {Column: "total_closed_profit_usd", Kind: filter.Number},
	"total_commission_usd":        {Column: "total_commission_usd", Kind: filter.Number},
	"total_deposit_usd":           {Column: "total_deposit_usd", Kind: filter.Number},
	"total_withdrawal_usd":        {Column: "total_withdrawal_usd", Kind: filter.Number},
	"net_deposit_usd":             {Column: "net_deposit_usd", Kind: filter.Number},
	"total_volume_lots":           {Column: "total_volume_lots", Kind: filter.Number},
	"total_overnight_volume_lots": {Column: "total_overnight_volume_lots", Kind: filter.Number},
	"overnight_volume_ratio":      {Column: "overnight_volume_ratio", Kind: filter.Number},
	"total_closed_count":          {Column: "total_closed_count", Kind: filter.Number},
	"total_overnight_count":       {Column: "total_overnight_count", Kind: filter.Number},
	"closed_sell_volume_lots":     {Column: "closed_sell_volume_lots", Kind: filter.Number},
	"closed_sell_count":           {Column: "closed_sell_count", Kind: filter.Number},
	"closed_sell_profit_usd":      {Column: "closed_sell_profit_usd", Kind: filter.Number},
	"closed_buy_volume_lots":      {Column: "closed_buy_volume_lots", Kind: filter.Number},
	"closed_buy_count":            {Column: "closed_buy_count", Kind: filter.Number},
	"closed_buy_profit_usd":       {Column: "closed_buy_profit_usd", Kind: filter.Number},
	"last_updated":                {Column: "last_updated", Kind: filter.Date},
}
