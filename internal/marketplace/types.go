// Package marketplace describes the entities the admin console manages and
// the actions an admin can take on them.
package marketplace

import "time"

// Entity is implemented by every managed record.
type Entity interface {
	EntityID() string
}

// Status values shared by several resources.
const (
	StatusPending   = "Pending"
	StatusApproved  = "Approved"
	StatusRejected  = "Rejected"
	StatusSuspended = "Suspended"
	StatusActive    = "Active"
	StatusCancelled = "Cancelled"
	StatusResolved  = "Resolved"
	StatusOpen      = "Open"
)

// Vendor is a restaurant or shop selling through the marketplace.
type Vendor struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Category  string    `json:"category"`
	ZoneID    string    `json:"zoneId"`
	Status    string    `json:"status"`
	Rating    float64   `json:"rating"`
	CreatedAt time.Time `json:"createdAt"`
}

func (v Vendor) EntityID() string { return v.ID }

// Rider delivers orders.
type Rider struct {
	ID          string    `json:"id"`
	FirstName   string    `json:"firstName"`
	LastName    string    `json:"lastName"`
	Phone       string    `json:"phone"`
	VehicleType string    `json:"vehicleType"`
	ZoneID      string    `json:"zoneId"`
	Status      string    `json:"status"`
	StrikeCount int       `json:"strikeCount"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (r Rider) EntityID() string { return r.ID }

// FullName joins first and last name.
func (r Rider) FullName() string {
	return joinName(r.FirstName, r.LastName)
}

// User is a customer account.
type User struct {
	ID          string    `json:"id"`
	FirstName   string    `json:"firstName"`
	LastName    string    `json:"lastName"`
	Email       string    `json:"email"`
	Phone       string    `json:"phone"`
	Status      string    `json:"status"`
	OrdersCount int       `json:"ordersCount"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (u User) EntityID() string { return u.ID }

// Deduction is money withheld from a rider's earnings.
type Deduction struct {
	ID        string    `json:"id"`
	RiderID   string    `json:"riderId"`
	RiderName string    `json:"riderName"`
	Amount    float64   `json:"amount"`
	Category  string    `json:"category"`
	Reason    string    `json:"reason"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

func (d Deduction) EntityID() string { return d.ID }

// Strike is a disciplinary mark against a rider.
type Strike struct {
	ID        string    `json:"id"`
	RiderID   string    `json:"riderId"`
	RiderName string    `json:"riderName"`
	Severity  string    `json:"severity"`
	Reason    string    `json:"reason"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

func (s Strike) EntityID() string { return s.ID }

// FeatureRequest is product feedback raised by vendors, riders or staff.
type FeatureRequest struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	RequestedBy string    `json:"requestedBy"`
	Priority    string    `json:"priority"`
	Status      string    `json:"status"`
	Votes       int       `json:"votes"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (f FeatureRequest) EntityID() string { return f.ID }

// Transaction is a wallet ledger entry.
type Transaction struct {
	ID        string    `json:"id"`
	Reference string    `json:"reference"`
	WalletID  string    `json:"walletId"`
	OwnerType string    `json:"ownerType"`
	OwnerID   string    `json:"ownerId"`
	Type      string    `json:"type"`
	Amount    float64   `json:"amount"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

func (t Transaction) EntityID() string { return t.ID }

// Wallet holds the balance of a vendor, rider or user.
type Wallet struct {
	ID        string    `json:"id"`
	OwnerType string    `json:"ownerType"`
	OwnerID   string    `json:"ownerId"`
	OwnerName string    `json:"ownerName"`
	Balance   float64   `json:"balance"`
	Currency  string    `json:"currency"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (w Wallet) EntityID() string { return w.ID }

func joinName(first, last string) string {
	switch {
	case first == "":
		return last
	case last == "":
		return first
	}
	return first + " " + last
}
