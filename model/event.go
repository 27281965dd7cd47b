package model

import (
	"time"
)

type EventState string

const (
	EventDraft     EventState = "DRAFT"
	EventOnSale    EventState = "ON_SALE"
	EventSoldOut   EventState = "SOLD_OUT"
	EventCancelled EventState = "CANCELLED"
)

type Category string

const (
	CategoryStandard Category = "standard"
	CategoryPremium  Category = "premium"
	CategoryVIP      Category = "vip"
)

// Event is an authoritative event record. TotalSupply is fixed at creation,
// IssuedCount only ever grows, ReservedCount tracks in-flight purchase holds
// and is never exposed through the query facade.
type Event struct {
	ID            uint64     `json:"event_id"`
	Name          string     `json:"name"`
	Venue         string     `json:"venue"`
	Description   string     `json:"description"`
	ScheduledAt   time.Time  `json:"scheduled_at"`
	TotalSupply   uint64     `json:"total_supply"`
	IssuedCount   uint64     `json:"issued_count"`
	ReservedCount uint64     `json:"-"`
	MaxPrice      uint64     `json:"max_price"`
	Category      Category   `json:"category"`
	Encrypted     bool       `json:"encrypted"`
	Transferable  bool       `json:"transferable"`
	State         EventState `json:"state"`
	CreatedAt     time.Time  `json:"created_at"`
}

// EventSpec carries the caller supplied fields for event creation.
// SeatLabels is optional; when present it must hold exactly TotalSupply
// distinct labels, assigned to ticket slots in order.
type EventSpec struct {
	Name         string    `json:"name"`
	Venue        string    `json:"venue"`
	Description  string    `json:"description"`
	ScheduledAt  time.Time `json:"scheduled_at"`
	TotalSupply  uint64    `json:"total_supply"`
	MaxPrice     uint64    `json:"max_price"`
	Category     Category  `json:"category"`
	Encrypted    bool      `json:"encrypted"`
	Transferable bool      `json:"transferable"`
	SeatLabels   []string  `json:"seat_labels,omitempty"`
}

// EventView is the read projection served by the query facade.
type EventView struct {
	ID           uint64     `json:"event_id"`
	Name         string     `json:"name"`
	Venue        string     `json:"venue"`
	Description  string     `json:"description"`
	ScheduledAt  time.Time  `json:"scheduled_at"`
	TotalSupply  uint64     `json:"total_supply"`
	IssuedCount  uint64     `json:"issued_count"`
	MaxPrice     uint64     `json:"max_price"`
	Category     Category   `json:"category"`
	Transferable bool       `json:"transferable"`
	State        EventState `json:"state"`
}

func (e *Event) View() *EventView {
	return &EventView{
		ID:           e.ID,
		Name:         e.Name,
		Venue:        e.Venue,
		Description:  e.Description,
		ScheduledAt:  e.ScheduledAt,
		TotalSupply:  e.TotalSupply,
		IssuedCount:  e.IssuedCount,
		MaxPrice:     e.MaxPrice,
		Category:     e.Category,
		Transferable: e.Transferable,
		State:        e.State,
	}
}

func ValidCategory(c Category) bool {
	switch c {
	case CategoryStandard, CategoryPremium, CategoryVIP:
		return true
	}
	return false
}
