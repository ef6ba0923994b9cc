package marketplace

import (
	"github.com/deliverly/admin-console/internal/filters"
	"github.com/deliverly/admin-console/internal/modal"
)

// Resource names, also used as console route segments.
const (
	Vendors         = "vendors"
	Riders          = "riders"
	Users           = "users"
	Deductions      = "deductions"
	Strikes         = "strikes"
	FeatureRequests = "feature-requests"
	Transactions    = "transactions"
	Wallets         = "wallets"
)

// Column is one exported field, addressed by its JSON name.
type Column struct {
	Header string
	Field  string
}

// Money reports whether the column holds a naira amount.
func (c Column) Money() bool {
	return c.Field == "amount" || c.Field == "balance"
}

// Definition is the static description of a managed resource.
type Definition struct {
	Name    string
	Title   string
	Path    string
	Filters []string
	// Search is the filter key fed by the debounced search box.
	Search   string
	Defaults filters.State
	Columns  []Column
	// BulkActions lists actions accepted by the bulk endpoint.
	BulkActions []string
}

// AllowsFilter reports whether key is forwarded to the list endpoint.
func (d Definition) AllowsFilter(key string) bool {
	for _, f := range d.Filters {
		if f == key {
			return true
		}
	}
	return false
}

// AllowsBulk reports whether action can run in bulk.
func (d Definition) AllowsBulk(action string) bool {
	for _, a := range d.BulkActions {
		if a == action {
			return true
		}
	}
	return false
}

// Resource bundles a definition with the modals of its rows.
type Resource[T Entity] struct {
	Definition
	Modals []modal.Descriptor[T]
}

// DefaultFilters is the initial listing state of every resource.
func DefaultFilters(sortBy string) filters.State {
	return filters.State{Page: 1, PageSize: 10, SortBy: sortBy, SortOrder: filters.SortDesc}
}

// VendorResource describes vendors.
func VendorResource() Resource[Vendor] {
	return Resource[Vendor]{
		Definition: Definition{
			Name: Vendors, Title: "Vendors", Path: "/admin/vendors",
			Filters:  []string{"status", "zoneId", "category", "search", "createdFrom", "createdTo"},
			Search:   "search",
			Defaults: DefaultFilters("createdAt"),
			Columns: []Column{
				{"ID", "id"}, {"Name", "name"}, {"Email", "email"}, {"Phone", "phone"},
				{"Category", "category"}, {"Zone", "zoneId"}, {"Status", "status"}, {"Created", "createdAt"},
			},
			BulkActions: []string{"approve", "reject", "suspend"},
		},
		Modals: vendorModals(),
	}
}

// RiderResource describes riders.
func RiderResource() Resource[Rider] {
	return Resource[Rider]{
		Definition: Definition{
			Name: Riders, Title: "Riders", Path: "/admin/riders",
			Filters:  []string{"status", "zoneId", "vehicleType", "search", "createdFrom", "createdTo"},
			Search:   "search",
			Defaults: DefaultFilters("createdAt"),
			Columns: []Column{
				{"ID", "id"}, {"First name", "firstName"}, {"Last name", "lastName"}, {"Phone", "phone"},
				{"Vehicle", "vehicleType"}, {"Zone", "zoneId"}, {"Status", "status"}, {"Strikes", "strikeCount"},
			},
			BulkActions: []string{"approve", "reject", "suspend"},
		},
		Modals: riderModals(),
	}
}

// UserResource describes customer accounts.
func UserResource() Resource[User] {
	return Resource[User]{
		Definition: Definition{
			Name: Users, Title: "Users", Path: "/admin/users",
			Filters:  []string{"status", "search", "createdFrom", "createdTo"},
			Search:   "search",
			Defaults: DefaultFilters("createdAt"),
			Columns: []Column{
				{"ID", "id"}, {"First name", "firstName"}, {"Last name", "lastName"}, {"Email", "email"},
				{"Phone", "phone"}, {"Status", "status"}, {"Orders", "ordersCount"},
			},
			BulkActions: []string{"suspend", "reactivate"},
		},
		Modals: userModals(),
	}
}

// DeductionResource describes rider deductions.
func DeductionResource() Resource[Deduction] {
	return Resource[Deduction]{
		Definition: Definition{
			Name: Deductions, Title: "Deductions", Path: "/admin/deductions",
			Filters:  []string{"status", "riderId", "category", "search", "createdFrom", "createdTo"},
			Search:   "search",
			Defaults: DefaultFilters("createdAt"),
			Columns: []Column{
				{"ID", "id"}, {"Rider", "riderName"}, {"Amount", "amount"}, {"Category", "category"},
				{"Reason", "reason"}, {"Status", "status"}, {"Created", "createdAt"},
			},
			BulkActions: []string{"cancel"},
		},
		Modals: deductionModals(),
	}
}

// StrikeResource describes rider strikes.
func StrikeResource() Resource[Strike] {
	return Resource[Strike]{
		Definition: Definition{
			Name: Strikes, Title: "Strikes", Path: "/admin/strikes",
			Filters:  []string{"status", "severity", "riderId", "search"},
			Search:   "search",
			Defaults: DefaultFilters("createdAt"),
			Columns: []Column{
				{"ID", "id"}, {"Rider", "riderName"}, {"Severity", "severity"},
				{"Reason", "reason"}, {"Status", "status"}, {"Created", "createdAt"},
			},
			BulkActions: []string{"resolve", "cancel"},
		},
		Modals: strikeModals(),
	}
}

// FeatureRequestResource describes feature requests.
func FeatureRequestResource() Resource[FeatureRequest] {
	return Resource[FeatureRequest]{
		Definition: Definition{
			Name: FeatureRequests, Title: "Feature requests", Path: "/admin/feature-requests",
			Filters:  []string{"status", "priority", "search"},
			Search:   "search",
			Defaults: DefaultFilters("createdAt"),
			Columns: []Column{
				{"ID", "id"}, {"Title", "title"}, {"Requested by", "requestedBy"}, {"Priority", "priority"},
				{"Status", "status"}, {"Votes", "votes"}, {"Created", "createdAt"},
			},
		},
		Modals: featureRequestModals(),
	}
}

// TransactionResource describes wallet transactions. It is read-only.
func TransactionResource() Resource[Transaction] {
	return Resource[Transaction]{
		Definition: Definition{
			Name: Transactions, Title: "Transactions", Path: "/admin/transactions",
			Filters:  []string{"type", "status", "walletId", "ownerType", "search", "createdFrom", "createdTo"},
			Search:   "search",
			Defaults: DefaultFilters("createdAt"),
			Columns: []Column{
				{"ID", "id"}, {"Reference", "reference"}, {"Wallet", "walletId"}, {"Type", "type"},
				{"Amount", "amount"}, {"Status", "status"}, {"Created", "createdAt"},
			},
		},
	}
}

// WalletResource describes wallets.
func WalletResource() Resource[Wallet] {
	return Resource[Wallet]{
		Definition: Definition{
			Name: Wallets, Title: "Wallets", Path: "/admin/wallets",
			Filters:  []string{"ownerType", "status", "search"},
			Search:   "search",
			Defaults: DefaultFilters("updatedAt"),
			Columns: []Column{
				{"ID", "id"}, {"Owner", "ownerName"}, {"Owner type", "ownerType"},
				{"Balance", "balance"}, {"Currency", "currency"}, {"Status", "status"},
			},
		},
		Modals: walletModals(),
	}
}

// Definitions lists every resource in navigation order.
func Definitions() []Definition {
	return []Definition{
		VendorResource().Definition,
		RiderResource().Definition,
		UserResource().Definition,
		DeductionResource().Definition,
		StrikeResource().Definition,
		FeatureRequestResource().Definition,
		TransactionResource().Definition,
		WalletResource().Definition,
	}
}
