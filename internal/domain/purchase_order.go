package domain

import "github.com/shopspring/decimal"

type PurchaseOrderStatus string

const (
	POStatusPending            PurchaseOrderStatus = "Pending"
	POStatusPartiallyDelivered PurchaseOrderStatus = "Partially Delivered"
	POStatusCompleted          PurchaseOrderStatus = "Completed"
	POStatusCancelled          PurchaseOrderStatus = "Cancelled"
)

func (s PurchaseOrderStatus) Valid() bool {
	switch s {
	case POStatusPending, POStatusPartiallyDelivered, POStatusCompleted, POStatusCancelled:
		return true
	default:
		return false
	}
}

type PurchaseOrderEvent string

const (
	PurchaseOrderReceive PurchaseOrderEvent = "receive"
	PurchaseOrderCancel  PurchaseOrderEvent = "cancel"
)

// Next is the single transition function for purchase orders. For a receive
// event the lines must already carry the updated received quantities.
func (s PurchaseOrderStatus) Next(event PurchaseOrderEvent, lines []PurchaseOrderLine) (PurchaseOrderStatus, error) {
	switch event {
	case PurchaseOrderReceive:
		if s == POStatusCancelled {
			return s, &TransitionError{Entity: "purchase order", From: string(s), Event: string(event)}
		}
		return receiptStatus(s, lines), nil
	case PurchaseOrderCancel:
		if s == POStatusCancelled {
			return s, &TransitionError{Entity: "purchase order", From: string(s), Event: string(event)}
		}
		return POStatusCancelled, nil
	default:
		return s, &TransitionError{Entity: "purchase order", From: string(s), Event: string(event)}
	}
}

func receiptStatus(current PurchaseOrderStatus, lines []PurchaseOrderLine) PurchaseOrderStatus {
	if len(lines) == 0 {
		return current
	}
	complete, touched := 0, 0
	for _, line := range lines {
		if line.ReceivedQty >= line.OrderedQty {
			complete++
		}
		if line.ReceivedQty > 0 {
			touched++
		}
	}
	switch {
	case complete == len(lines):
		return POStatusCompleted
	case touched > 0:
		return POStatusPartiallyDelivered
	default:
		return current
	}
}

func (l PurchaseOrderLine) Remaining() int {
	if l.ReceivedQty >= l.OrderedQty {
		return 0
	}
	return l.OrderedQty - l.ReceivedQty
}

// Accept raises the received quantity by requested, capped at the ordered
// quantity, and returns how much was actually taken. Non-positive requests
// are ignored.
func (l *PurchaseOrderLine) Accept(requested int) int {
	if requested <= 0 {
		return 0
	}
	next := l.ReceivedQty + requested
	if next > l.OrderedQty {
		next = l.OrderedQty
	}
	accepted := next - l.ReceivedQty
	l.ReceivedQty = next
	return accepted
}

func PurchaseOrderTotal(lines []PurchaseOrderLine) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.PurchasePrice.Mul(decimal.NewFromInt(int64(line.OrderedQty))))
	}
	return total
}
