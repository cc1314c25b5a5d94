package backoffice

import (
	"context"
	"fmt"
)

// Platform schemas OpenPositions can read.
const (
	SourceLive  = "mt4_live"
	SourceLive2 = "mt4_live2"
)

// OpenPosition is the open exposure on one symbol.
type OpenPosition struct {
	Symbol      string  `db:"symbol" json:"symbol"`
	VolumeBuy   float64 `db:"volume_buy" json:"volume_buy"`
	VolumeSell  float64 `db:"volume_sell" json:"volume_sell"`
	ProfitBuy   float64 `db:"profit_buy" json:"profit_buy"`
	ProfitSell  float64 `db:"profit_sell" json:"profit_sell"`
	ProfitTotal float64 `db:"profit_total" json:"profit_total"`
}

// sourceSchema maps a requested source onto a schema, anything unknown
// reads the primary live server.
func sourceSchema(source string) string {
	if source == SourceLive2 {
		return SourceLive2
	}
	return SourceLive
}

// OpenPositions lists today's open positions per symbol.
func (s *Service) OpenPositions(ctx context.Context, source string) ([]OpenPosition, error) {
	rows, err := s.store.OpenPositions(ctx, sourceSchema(source))
	if err != nil {
		return nil, fmt.Errorf("open positions: %w", err)
	}
	if rows == nil {
		rows = []OpenPosition{}
	}
	return rows, nil
}
