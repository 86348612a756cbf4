// Package report exports trade candidates to an xlsx workbook.
package report

import (
	"context"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"csgo-arbitrage/internal/models"
	"csgo-arbitrage/internal/store"
)

const SheetName = "Candidates"

var header = []any{
	"Item", "Buff Goods ID", "Timestamp (UTC)", "Action",
	"Buff Ask", "Steam Bid", "Adj Steam Bid", "PnL Now", "Spread %",
	"Hold Days", "P(PnL>0)", "E[PnL]", "VaR95", "Risk Score", "Exec Prob",
}

type Reader interface {
	ListItems(ctx context.Context) ([]models.Item, error)
	LatestCandidates(ctx context.Context, filter store.CandidateFilter) ([]models.TradeCandidate, error)
}

// Row is a candidate joined with its item.
type Row struct {
	Item      models.Item
	Candidate models.TradeCandidate
}

// Collect joins the latest candidate per item with the catalog.
func Collect(ctx context.Context, r Reader, filter store.CandidateFilter) ([]Row, error) {
	items, err := r.ListItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	byID := make(map[uint]models.Item, len(items))
	for _, it := range items {
		byID[it.ItemID] = it
	}

	cands, err := r.LatestCandidates(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("latest candidates: %w", err)
	}
	rows := make([]Row, 0, len(cands))
	for _, c := range cands {
		it, ok := byID[c.ItemID]
		if !ok {
			it = models.Item{ItemID: c.ItemID, MarketHashName: fmt.Sprintf("item #%d", c.ItemID)}
		}
		rows = append(rows, Row{Item: it, Candidate: c})
	}
	return rows, nil
}

// Write renders rows as a single-sheet workbook.
func Write(w io.Writer, rows []Row) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return err
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	last, _ := excelize.CoordinatesToCellName(len(header), 1)
	if err := f.SetCellStyle(SheetName, "A1", last, bold); err != nil {
		return err
	}
	if err := f.SetColWidth(SheetName, "A", "A", 42); err != nil {
		return err
	}
	if err := f.SetPanes(SheetName, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return err
	}

	for i, r := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		c := r.Candidate
		var goodsID any = ""
		if r.Item.BuffGoodsID != nil {
			goodsID = *r.Item.BuffGoodsID
		}
		values := []any{
			r.Item.MarketHashName, goodsID, c.Timestamp.UTC().Format("2006-01-02 15:04:05"), string(c.RecommendedAction),
			c.BuffAsk, c.SteamBid, c.AdjSteamBid, c.PnLNow, c.SpreadPct * 100,
			c.HoldDays, c.ProbPositiveAfterHold, c.ExpectedPnLAfterHold, c.VaR95, c.RiskScore, c.ExecutionProb,
		}
		if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
			return err
		}
	}
	_, err = f.WriteTo(w)
	return err
}
