// Package customer keeps the denormalised per-phone order aggregates.
package customer

import (
	"strings"
	"time"

	"checkout-service/internal/models"
)

// Details are the customer fields captured on an order
type Details struct {
	Phone   string
	Name    string
	Email   string
	Address string
}

// Plan decides how a new order of amount touches the customer aggregate.
// existing is the row read before the order, or nil for a first order.
func Plan(existing *models.Customer, d Details, amount int64, at time.Time) models.CustomerLedgerEntry {
	entry := models.CustomerLedgerEntry{
		Phone:       NormalizePhone(d.Phone),
		Name:        strings.TrimSpace(d.Name),
		Email:       strings.TrimSpace(d.Email),
		Address:     strings.TrimSpace(d.Address),
		OrderAmount: amount,
		OrderedAt:   at,
	}

	if existing == nil {
		entry.IsNew = true
		entry.HistoryAction = models.HistoryCreated
		return entry
	}

	// An order without an email keeps the one on file.
	if entry.Email == "" {
		entry.Email = existing.Email
	}
	entry.HistoryAction = models.HistoryUpdated
	return entry
}

// Apply returns the aggregate as it will look after entry is written
func Apply(existing *models.Customer, entry models.CustomerLedgerEntry) models.Customer {
	var c models.Customer
	if existing != nil && !entry.IsNew {
		c = *existing
	}
	c.Phone = entry.Phone
	c.Name = entry.Name
	c.Email = entry.Email
	c.Address = entry.Address
	c.TotalOrders++
	c.TotalSpent += entry.OrderAmount
	if c.LastOrderAt == nil || entry.OrderedAt.After(*c.LastOrderAt) {
		at := entry.OrderedAt
		c.LastOrderAt = &at
	}
	return c
}

// Recompute derives the aggregate from a customer's live orders
func Recompute(c models.Customer, orders []models.Order) models.Customer {
	c.TotalOrders = 0
	c.TotalSpent = 0
	c.LastOrderAt = nil
	for _, o := range orders {
		if o.DeletedAt != nil {
			continue
		}
		c.TotalOrders++
		c.TotalSpent += o.TotalAmount
		if c.LastOrderAt == nil || o.CreatedAt.After(*c.LastOrderAt) {
			at := o.CreatedAt
			c.LastOrderAt = &at
		}
	}
	return c
}

// NormalizePhone strips spaces and dashes so one customer maps to one row
func NormalizePhone(phone string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')':
			return -1
		}
		return r
	}, strings.TrimSpace(phone))
}
