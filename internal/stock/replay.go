package stock

import (
	"fmt"

	"stockroom/backend/internal/domain"
)

// Replay folds a stock history from zero using the ledger's clamping rule.
func Replay(history []domain.StockEvent) int {
	stock := 0
	for _, event := range history {
		stock += event.Quantity
		if stock < 0 {
			stock = 0
		}
	}
	return stock
}

// Verify checks that item's history chains previous/new stock correctly and
// replays to its CurrentStock.
func Verify(item domain.InventoryItem) error {
	running := 0
	for i, event := range item.StockHistory {
		if event.PreviousStock != running {
			return fmt.Errorf("item %s event %d: previous stock %d, expected %d", item.ItemID, i, event.PreviousStock, running)
		}
		running += event.Quantity
		if running < 0 {
			running = 0
		}
		if event.NewStock != running {
			return fmt.Errorf("item %s event %d: new stock %d, expected %d", item.ItemID, i, event.NewStock, running)
		}
	}
	if running != item.CurrentStock {
		return fmt.Errorf("item %s: history replays to %d, stored %d", item.ItemID, running, item.CurrentStock)
	}
	return nil
}
