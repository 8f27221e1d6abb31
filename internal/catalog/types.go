package catalog

import "github.com/noah-isme/backend-dansa/internal/pricing"

// Kind tags the course variant. Studio and online courses share the same
// base fields in the upstream schema; sessions are single bookable classes.
type Kind string

const (
	KindStudio  Kind = "studio"
	KindOnline  Kind = "online"
	KindSession Kind = "session"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindStudio, KindOnline, KindSession:
		return true
	}
	return false
}

// Course is the shared base of every bookable unit, with a payload per kind.
// Exactly one of Studio, Online or Session is set, matching Kind.
type Course struct {
	ID          string        `json:"id"`
	Kind        Kind          `json:"kind"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Price       pricing.Money `json:"price"`
	TasterPrice pricing.Money `json:"tasterPrice,omitempty"`
	HasTaster   bool          `json:"hasTasterClasses"`
	Spaces      int           `json:"spaces"`
	Thumbnail   string        `json:"thumbnail,omitempty"`

	Studio  *StudioInfo  `json:"studio,omitempty"`
	Online  *OnlineInfo  `json:"online,omitempty"`
	Session *SessionInfo `json:"session,omitempty"`
}

// StudioInfo carries the fields only in-person courses have.
type StudioInfo struct {
	Location      string        `json:"location"`
	Address       string        `json:"address,omitempty"`
	DepositPrice  pricing.Money `json:"depositPrice,omitempty"`
	AcceptDeposit bool          `json:"acceptDeposit"`
	Weeks         int           `json:"weeks,omitempty"`
}

// OnlineInfo carries the fields only on-demand courses have.
type OnlineInfo struct {
	VideoCount int `json:"videoCount,omitempty"`
	AccessDays int `json:"accessDays,omitempty"`
}

// SessionInfo carries per-class scheduling for single sessions.
type SessionInfo struct {
	CourseID string `json:"courseId,omitempty"`
	StartsAt string `json:"startsAt,omitempty"`
	EndsAt   string `json:"endsAt,omitempty"`
}

// ResolveRequest describes the unit a basket wants to add.
type ResolveRequest struct {
	ItemID     string
	Kind       Kind
	Taster     bool
	PayDeposit bool
}

// ResolvedItem is the authoritative pricing answer for one basket line.
// Price is what is charged now; FullPrice is the undiscounted course price,
// used to derive the pay-later remainder for deposit bookings.
type ResolvedItem struct {
	ItemID    string
	Kind      Kind
	Name      string
	Price     pricing.Money
	FullPrice pricing.Money
	Discount  pricing.Money
	Taster    bool
	Deposit   bool
}

// PromoQuote is the validated value of a promo code for a basket snapshot.
type PromoQuote struct {
	Code     string
	Discount pricing.Money
}
