package recovery

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"bybitengine/execution"
	"bybitengine/journal"
	"bybitengine/persistence"
)

func tempStore(t *testing.T) *persistence.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "recovery.db")
	s, err := persistence.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestReconcileUpsertsVenueOrdersIntoStore(t *testing.T) {
	store := tempStore(t)
	gw := execution.NewPaper(decimal.NewFromFloat(10000))
	gw.UpdatePrice("BTCUSDT", decimal.NewFromFloat(50000))

	_, err := gw.PlaceOrder(execution.OrderRequest{Symbol: "BTCUSDT", Side: execution.Buy, Type: execution.Limit, Qty: decimal.NewFromFloat(0.1), Price: decimal.NewFromFloat(49000)})
	require.NoError(t, err)

	report, err := Reconcile("BTCUSDT", gw, store, nil)
	require.NoError(t, err)
	require.Equal(t, 1, report.VenueOrders)

	open, err := store.OpenOrders("BTCUSDT")
	require.NoError(t, err)
	require.Len(t, open, 1)
}

func TestReconcileReportsLocalOnlyOrderAsDiscrepancy(t *testing.T) {
	store := tempStore(t)
	gw := execution.NewPaper(decimal.NewFromFloat(10000))

	now := time.Now()
	require.NoError(t, store.UpsertOrder(persistence.OrderRecord{
		OrderID: "ghost-1", Symbol: "BTCUSDT", Side: "Buy",
		Qty: decimal.NewFromFloat(0.1), Status: "New", CreatedAt: now, UpdatedAt: now,
	}))

	report, err := Reconcile("BTCUSDT", gw, store, nil)
	require.NoError(t, err)
	require.Contains(t, report.LocalOnlyOrders, "ghost-1")
	require.True(t, report.HasDiscrepancies())
}

func TestReconcileWritesJournalEventOnDiscrepancy(t *testing.T) {
	store := tempStore(t)
	gw := execution.NewPaper(decimal.NewFromFloat(10000))
	sink := journal.NewMemorySink(0)
	j := journal.New(sink)

	now := time.Now()
	require.NoError(t, store.UpsertOrder(persistence.OrderRecord{
		OrderID: "ghost-1", Symbol: "BTCUSDT", Side: "Buy",
		Qty: decimal.NewFromFloat(0.1), Status: "New", CreatedAt: now, UpdatedAt: now,
	}))

	_, err := Reconcile("BTCUSDT", gw, store, j)
	require.NoError(t, err)

	events := sink.Events()
	require.Len(t, events, 1)
	require.Equal(t, journal.Debug, events[0].Kind)
}

func TestReconcileNoDiscrepancyWritesNoJournalEvent(t *testing.T) {
	store := tempStore(t)
	gw := execution.NewPaper(decimal.NewFromFloat(10000))
	sink := journal.NewMemorySink(0)
	j := journal.New(sink)

	_, err := Reconcile("BTCUSDT", gw, store, j)
	require.NoError(t, err)
	require.Len(t, sink.Events(), 0)
}
