package assets

// AssetStatus represents the lifecycle stage of a hardware asset.
type AssetStatus string

const (
	StatusSetup        AssetStatus = "Setup"
	StatusToBeDeployed AssetStatus = "ToBeDeployed"
	StatusInUse        AssetStatus = "InUse"
	StatusToBeRepaired AssetStatus = "ToBeRepaired"
	StatusUnderRepair  AssetStatus = "UnderRepair"
	StatusRepaired     AssetStatus = "Repaired"
	StatusRetired      AssetStatus = "Retired"
)

// Location represents the physical placement implied by a status.
type Location string

const (
	LocationSetupShelf       Location = "SetupShelf"
	LocationDeploymentShelf  Location = "DeploymentShelf"
	LocationStorage          Location = "Storage"
	LocationDamagedShelf     Location = "DamagedShelf"
	LocationUnderRepairShelf Location = "UnderRepairShelf"
	LocationRepairedShelf    Location = "RepairedShelf"
	LocationRetiredShelf     Location = "RetiredShelf"
)

// AllStatuses lists every lifecycle status. Used for rule-table totality checks
// and for populating status choices.
var AllStatuses = []AssetStatus{
	StatusSetup, StatusToBeDeployed, StatusInUse, StatusToBeRepaired,
	StatusUnderRepair, StatusRepaired, StatusRetired,
}

// Valid reports whether s is a known lifecycle status.
func (s AssetStatus) Valid() bool {
	_, ok := RuleFor(s)
	return ok
}

// AutoField names a date column stamped with the transition time when the
// target status is entered. The stamp always wins over caller-supplied values.
type AutoField string

const (
	AutoToBeDeployedDate     AutoField = "toBeDeployedDate"
	AutoUserInUseDate        AutoField = "userInUseDate"
	AutoReportedToRepairDate AutoField = "reportedToRepairDate"
)

// StatusRule defines everything entering a status entails: which statuses it
// may be entered from, the shelf the asset moves to, which fields the caller
// must supply, which date fields are stamped automatically, whether a note is
// mandatory, and whether the assigned employee is cleared.
type StatusRule struct {
	AllowedFrom    []AssetStatus
	Location       Location
	RequiredFields []string
	AutoFields     []AutoField
	RequiresNote   bool
	UnassignsUser  bool
}

// RuleFor returns the transition rule for a status. The switch is intentionally
// exhaustive over the status enum; a status without a rule is a programming
// error surfaced by the false return.
func RuleFor(s AssetStatus) (StatusRule, bool) {
	switch s {
	case StatusSetup:
		return StatusRule{
			AllowedFrom:    []AssetStatus{StatusInUse, StatusToBeDeployed, StatusRepaired, StatusRetired},
			Location:       LocationSetupShelf,
			RequiredFields: []string{"deploymentSetupDate"},
			RequiresNote:   true,
		}, true
	case StatusToBeDeployed:
		return StatusRule{
			AllowedFrom: []AssetStatus{StatusInUse, StatusRepaired, StatusSetup, StatusRetired},
			Location:    LocationDeploymentShelf,
			AutoFields:  []AutoField{AutoToBeDeployedDate},
		}, true
	case StatusInUse:
		return StatusRule{
			AllowedFrom:    []AssetStatus{StatusToBeDeployed, StatusSetup},
			Location:       LocationStorage,
			RequiredFields: []string{"assignedToEmployeeId"},
			AutoFields:     []AutoField{AutoUserInUseDate},
		}, true
	case StatusToBeRepaired:
		return StatusRule{
			AllowedFrom:   []AssetStatus{StatusInUse, StatusToBeDeployed, StatusSetup, StatusUnderRepair, StatusRepaired, StatusRetired},
			Location:      LocationDamagedShelf,
			AutoFields:    []AutoField{AutoReportedToRepairDate},
			RequiresNote:  true,
			UnassignsUser: true,
		}, true
	case StatusUnderRepair:
		// Repair is a strict two-step pipeline: report, under repair, repaired.
		return StatusRule{
			AllowedFrom:    []AssetStatus{StatusToBeRepaired},
			Location:       LocationUnderRepairShelf,
			RequiredFields: []string{"underRepairDate"},
			RequiresNote:   true,
		}, true
	case StatusRepaired:
		return StatusRule{
			AllowedFrom:    []AssetStatus{StatusUnderRepair},
			Location:       LocationRepairedShelf,
			RequiredFields: []string{"repairedDate"},
			RequiresNote:   true,
		}, true
	case StatusRetired:
		return StatusRule{
			AllowedFrom:    []AssetStatus{StatusInUse, StatusSetup, StatusToBeDeployed, StatusUnderRepair, StatusRepaired},
			Location:       LocationRetiredShelf,
			RequiredFields: []string{"retiredDate"},
			RequiresNote:   true,
			UnassignsUser:  true,
		}, true
	}
	return StatusRule{}, false
}

// CanTransition reports whether an asset may move from one status to another.
// A same-status update is always legal; it edits fields without re-running
// transition side effects.
func CanTransition(from, to AssetStatus) bool {
	if from == to {
		return true
	}
	rule, ok := RuleFor(to)
	if !ok {
		return false
	}
	for _, s := range rule.AllowedFrom {
		if s == from {
			return true
		}
	}
	return false
}

// AllowedTargets returns the statuses reachable from the given status,
// excluding the status itself. Used to populate status choices in forms.
func AllowedTargets(from AssetStatus) []AssetStatus {
	var out []AssetStatus
	for _, to := range AllStatuses {
		if to != from && CanTransition(from, to) {
			out = append(out, to)
		}
	}
	return out
}
