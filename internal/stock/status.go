package stock

import (
	"time"

	"stockroom/backend/internal/domain"
)

// DeriveStatus maps stock level, restock threshold and expiration to a status
// label. First match wins: expired, out of stock, at or below a quarter of the
// threshold, at or below a third, otherwise well stocked. Threshold fractions
// are compared as reals so 6 of 20 is Low-stock (6 <= 6.67) and 5 of 20 is
// Critical (5 <= 5).
func DeriveStatus(currentStock int, restockThreshold int, expirationDate *time.Time, now time.Time) domain.ItemStatus {
	if expirationDate != nil && expirationDate.Before(now) {
		return domain.ItemStatusExpired
	}
	if currentStock <= 0 {
		return domain.ItemStatusOutOfStock
	}
	stock := float64(currentStock)
	threshold := float64(restockThreshold)
	if stock <= threshold/4 {
		return domain.ItemStatusCritical
	}
	if stock <= threshold/3 {
		return domain.ItemStatusLowStock
	}
	return domain.ItemStatusWellStocked
}
