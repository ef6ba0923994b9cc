package marketplace

import "github.com/deliverly/admin-console/internal/mutation"

// ApproveForm approves a vendor or rider application.
type ApproveForm struct {
	mutation.Attribution
	Reason     string `json:"reason" validate:"required,max=500"`
	ZoneID     string `json:"zoneId" validate:"required"`
	NotifyUser bool   `json:"notifyUser"`
}

// ReasonForm backs reject, reactivate and cancel actions.
type ReasonForm struct {
	mutation.Attribution
	Reason     string `json:"reason" validate:"required,min=3,max=500"`
	NotifyUser bool   `json:"notifyUser"`
}

// SuspendForm suspends an account, optionally for a fixed number of days.
type SuspendForm struct {
	mutation.Attribution
	Reason       string `json:"reason" validate:"required,min=3,max=500"`
	DurationDays int    `json:"durationDays,omitempty" validate:"min=0,max=365"`
	NotifyUser   bool   `json:"notifyUser"`
}

// SendInstructionForm sends a message to a vendor, rider or user.
type SendInstructionForm struct {
	mutation.Attribution
	Subject string `json:"subject" validate:"required,max=120"`
	Message string `json:"message" validate:"required,max=2000"`
	Channel string `json:"channel" validate:"required,oneof=email sms push"`
}

// DeductionFields are the inputs of a deduction raised from a rider row.
type DeductionFields struct {
	mutation.Attribution
	Amount   float64 `json:"amount" validate:"gt=0"`
	Category string  `json:"category" validate:"required,oneof=damage late-delivery cash-shortage equipment other"`
	Reason   string  `json:"reason" validate:"required,max=500"`
}

// CreateDeductionForm raises a deduction from the deductions listing.
type CreateDeductionForm struct {
	DeductionFields
	RiderID string `json:"riderId" validate:"required"`
}

// StrikeFields are the inputs of a strike raised from a rider row.
type StrikeFields struct {
	mutation.Attribution
	Severity string `json:"severity" validate:"required,oneof=minor major critical"`
	Reason   string `json:"reason" validate:"required,max=500"`
}

// CreateStrikeForm raises a strike from the strikes listing.
type CreateStrikeForm struct {
	StrikeFields
	RiderID string `json:"riderId" validate:"required"`
}

// ResolveForm closes a strike or feature request.
type ResolveForm struct {
	mutation.Attribution
	Resolution string `json:"resolution" validate:"required,max=1000"`
	NotifyUser bool   `json:"notifyUser"`
}

// FundWalletForm credits a wallet.
type FundWalletForm struct {
	mutation.Attribution
	Amount    float64 `json:"amount" validate:"gt=0,max=10000000"`
	Reference string  `json:"reference" validate:"required,max=64"`
	Note      string  `json:"note,omitempty" validate:"max=500"`
}

// VendorForm edits a vendor profile. Empty fields are left unchanged.
type VendorForm struct {
	mutation.Attribution
	Name     string `json:"name,omitempty" validate:"omitempty,max=120"`
	Email    string `json:"email,omitempty" validate:"omitempty,email"`
	Phone    string `json:"phone,omitempty" validate:"omitempty,max=20"`
	Category string `json:"category,omitempty" validate:"omitempty,max=60"`
	ZoneID   string `json:"zoneId,omitempty"`
}

// RiderForm edits a rider profile. Empty fields are left unchanged.
type RiderForm struct {
	mutation.Attribution
	Phone       string `json:"phone,omitempty" validate:"omitempty,max=20"`
	VehicleType string `json:"vehicleType,omitempty" validate:"omitempty,oneof=bicycle motorcycle car"`
	ZoneID      string `json:"zoneId,omitempty"`
}

// FeatureRequestForm creates a feature request.
type FeatureRequestForm struct {
	mutation.Attribution
	Title       string `json:"title" validate:"required,max=160"`
	Description string `json:"description" validate:"required,max=4000"`
	Priority    string `json:"priority" validate:"required,oneof=low medium high"`
}

// FeatureRequestUpdateForm triages a feature request.
type FeatureRequestUpdateForm struct {
	mutation.Attribution
	Priority string `json:"priority,omitempty" validate:"omitempty,oneof=low medium high"`
	Status   string `json:"status,omitempty" validate:"omitempty,oneof=Open Planned InProgress Declined"`
}
