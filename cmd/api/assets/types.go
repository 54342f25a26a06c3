package assets

import (
	"time"

	"github.com/google/uuid"
)

// AssetCategory is the kind of hardware being tracked.
type AssetCategory string

const (
	CategoryLaptop    AssetCategory = "Laptop"
	CategoryPhone     AssetCategory = "Phone"
	CategoryMonitor   AssetCategory = "Monitor"
	CategoryKeyboard  AssetCategory = "Keyboard"
	CategoryMouse     AssetCategory = "Mouse"
	CategoryAccessory AssetCategory = "Accessory"
)

// ValidCategory reports whether c is one of the fixed hardware categories.
func ValidCategory(c AssetCategory) bool {
	switch c {
	case CategoryLaptop, CategoryPhone, CategoryMonitor, CategoryKeyboard, CategoryMouse, CategoryAccessory:
		return true
	}
	return false
}

// Asset represents one physical hardware item.
type Asset struct {
	ID           uuid.UUID     `json:"id" db:"id"`
	AssetTag     string        `json:"asset_tag" db:"asset_tag"`
	Name         string        `json:"name" db:"name"`
	Manufacturer *string       `json:"manufacturer" db:"manufacturer"`
	Category     AssetCategory `json:"category" db:"category"`

	Status   AssetStatus `json:"status" db:"status"`
	Location Location    `json:"location" db:"location"`

	AssignedToEmployeeID *uuid.UUID `json:"assigned_to_employee_id" db:"assigned_to_employee_id"`

	// Lifecycle dates; each is meaningful only once the asset has passed
	// through the corresponding status.
	PurchaseDate         *time.Time `json:"purchase_date" db:"purchase_date"`
	WarrantyEndDate      *time.Time `json:"warranty_end_date" db:"warranty_end_date"`
	DeploymentSetupDate  *time.Time `json:"deployment_setup_date" db:"deployment_setup_date"`
	ToBeDeployedDate     *time.Time `json:"to_be_deployed_date" db:"to_be_deployed_date"`
	FirstInUseDate       *time.Time `json:"first_in_use_date" db:"first_in_use_date"`
	UserInUseDate        *time.Time `json:"user_in_use_date" db:"user_in_use_date"`
	ReportedToRepairDate *time.Time `json:"reported_to_repair_date" db:"reported_to_repair_date"`
	UnderRepairDate      *time.Time `json:"under_repair_date" db:"under_repair_date"`
	RepairedDate         *time.Time `json:"repaired_date" db:"repaired_date"`
	RetiredDate          *time.Time `json:"retired_date" db:"retired_date"`

	// Version increments on every write; concurrent writers lose with a
	// conflict instead of overwriting each other.
	Version   int       `json:"version" db:"version"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`

	// Joined fields (not stored on the assets row)
	AssignedTo *AssetEmployee `json:"assigned_to,omitempty"`
}

// AssetEmployee is the slice of an employee record the asset views need.
type AssetEmployee struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	JobStatus      string    `json:"job_status"`
	WorkStyle      string    `json:"work_style"`
	CurrentAddress *string   `json:"current_address,omitempty"`
	HomeAddress    *string   `json:"home_address,omitempty"`
}

// HistoryEntry is one immutable audit record of a lifecycle change.
type HistoryEntry struct {
	ID         uuid.UUID   `json:"id" db:"id"`
	AssetID    uuid.UUID   `json:"asset_id" db:"asset_id"`
	Status     AssetStatus `json:"status" db:"status"`
	Location   Location    `json:"location" db:"location"`
	ChangedBy  string      `json:"changed_by" db:"changed_by"`
	EmployeeID *uuid.UUID  `json:"employee_id" db:"employee_id"`
	Note       *string     `json:"note" db:"note"`
	CreatedAt  time.Time   `json:"created_at" db:"created_at"`
}

// CreateAssetRequest is the JSON body for creating an asset. Date fields are
// accepted as strings and normalized by the service.
type CreateAssetRequest struct {
	AssetTag             string        `json:"asset_tag" binding:"required"`
	Name                 string        `json:"name" binding:"required"`
	Manufacturer         *string       `json:"manufacturer"`
	Category             AssetCategory `json:"category" binding:"required"`
	Status               AssetStatus   `json:"status"`
	AssignedToEmployeeID *string       `json:"assigned_to_employee_id"`
	PurchaseDate         *string       `json:"purchase_date"`
	WarrantyEndDate      *string       `json:"warranty_end_date"`
	DeploymentSetupDate  *string       `json:"deployment_setup_date"`
	UnderRepairDate      *string       `json:"under_repair_date"`
	RepairedDate         *string       `json:"repaired_date"`
	RetiredDate          *string       `json:"retired_date"`
	Note                 *string       `json:"note"`
}

// UpdateAssetRequest is the JSON body for updating an asset, optionally
// requesting a status transition. Nil fields are left untouched.
type UpdateAssetRequest struct {
	Name         *string        `json:"name"`
	Manufacturer *string        `json:"manufacturer"`
	Category     *AssetCategory `json:"category"`
	Status       *AssetStatus   `json:"status"`

	// Assignment: distinguish "not sent" (nil) from "clear" (empty string).
	AssignedToEmployeeID *string `json:"assigned_to_employee_id"`

	PurchaseDate        *string `json:"purchase_date"`
	WarrantyEndDate     *string `json:"warranty_end_date"`
	DeploymentSetupDate *string `json:"deployment_setup_date"`
	UnderRepairDate     *string `json:"under_repair_date"`
	RepairedDate        *string `json:"repaired_date"`
	RetiredDate         *string `json:"retired_date"`

	Note *string `json:"note"`

	// Version the caller read before editing; the write fails with a conflict
	// when the row has moved on.
	Version *int `json:"version"`
}

// AssetSearchFilters represents filters for listing assets.
type AssetSearchFilters struct {
	Query      string   `form:"q"`
	Status     []string `form:"status"`
	Category   *string  `form:"category"`
	AssignedTo *string  `form:"assigned_to"`
	Page       int      `form:"page"`
	Limit      int      `form:"limit"`
	SortBy     string   `form:"sort_by"`
	SortOrder  string   `form:"sort_order"`
}

// AssetListResponse is a paginated list of assets.
type AssetListResponse struct {
	Assets []Asset `json:"assets"`
	Total  int     `json:"total"`
	Page   int     `json:"page"`
	Limit  int     `json:"limit"`
	Pages  int     `json:"pages"`
}
