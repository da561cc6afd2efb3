// Package recovery reconciles local persisted state against the venue
// on startup: pull open orders and non-zero positions, upsert them into
// the store, and report (never silently fix) anything the two sides
// disagree on.
package recovery

import (
	"time"

	"bybitengine/execution"
	"bybitengine/journal"
	"bybitengine/persistence"
)

// Report summarizes one reconciliation pass for a symbol.
type Report struct {
	Symbol             string
	VenueOrders        int
	VenuePositions     int
	LocalOnlyOrders    []string // order IDs present locally but not on the venue
	VenueOnlyOrders    []string // order IDs present on the venue but never tracked locally
	LocalOnlyPositions bool
	VenueOnlyPositions bool
}

// HasDiscrepancies reports whether anything disagreed.
func (r Report) HasDiscrepancies() bool {
	return len(r.LocalOnlyOrders) > 0 || len(r.VenueOnlyOrders) > 0 || r.LocalOnlyPositions || r.VenueOnlyPositions
}

// Reconcile pulls venue state for symbol, upserts it into store, and
// diffs it against what the store already had. Discrepancies are
// reported to j as debug events, never auto-corrected: a human (or a
// supervising system) decides what a mismatch means.
func Reconcile(symbol string, gw execution.Gateway, store *persistence.Store, j *journal.Journal) (Report, error) {
	report := Report{Symbol: symbol}
	now := time.Now()

	localOrdersBefore, err := store.OpenOrders(symbol)
	if err != nil {
		return report, err
	}
	localByID := make(map[string]bool, len(localOrdersBefore))
	for _, o := range localOrdersBefore {
		localByID[o.OrderID] = true
	}

	venueOrders, err := gw.GetOpenOrders(symbol)
	if err != nil {
		return report, err
	}
	report.VenueOrders = len(venueOrders)
	venueByID := make(map[string]bool, len(venueOrders))
	for _, o := range venueOrders {
		venueByID[o.OrderID] = true
		if err := store.UpsertOrder(persistence.OrderRecord{
			OrderID:   o.OrderID,
			Symbol:    o.Symbol,
			Side:      string(o.Side),
			Qty:       o.Qty,
			Status:    string(o.Status),
			CreatedAt: o.CreatedAt,
			UpdatedAt: now,
		}); err != nil {
			return report, err
		}
	}

	for id := range localByID {
		if !venueByID[id] {
			report.LocalOnlyOrders = append(report.LocalOnlyOrders, id)
		}
	}
	for id := range venueByID {
		if !localByID[id] {
			report.VenueOnlyOrders = append(report.VenueOnlyOrders, id)
		}
	}

	localPositionsBefore, err := store.Positions()
	if err != nil {
		return report, err
	}
	hadLocalPosition := false
	for _, p := range localPositionsBefore {
		if p.Symbol == symbol {
			hadLocalPosition = true
		}
	}

	venuePosition, hasVenuePosition, err := gw.GetPosition(symbol)
	if err != nil {
		return report, err
	}
	if hasVenuePosition && !venuePosition.IsFlat() {
		report.VenuePositions = 1
		if err := store.UpsertPosition(persistence.PositionRecord{
			Symbol:     venuePosition.Symbol,
			Side:       string(venuePosition.Side),
			Qty:        venuePosition.Qty,
			EntryPrice: venuePosition.EntryPrice,
			UpdatedAt:  now,
			OpenedAt:   now,
		}); err != nil {
			return report, err
		}
	} else {
		hasVenuePosition = false
	}

	report.LocalOnlyPositions = hadLocalPosition && !hasVenuePosition
	report.VenueOnlyPositions = hasVenuePosition && !hadLocalPosition

	if j != nil && report.HasDiscrepancies() {
		j.Write(journal.Event{
			Kind:    journal.Debug,
			Symbol:  symbol,
			Reasons: []string{"state_recovery_discrepancy"},
			Values: map[string]float64{
				"local_only_orders":    float64(len(report.LocalOnlyOrders)),
				"venue_only_orders":    float64(len(report.VenueOnlyOrders)),
				"local_only_positions": boolFloat(report.LocalOnlyPositions),
				"venue_only_positions": boolFloat(report.VenueOnlyPositions),
			},
		})
	}

	return report, nil
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
