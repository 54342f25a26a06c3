package assets

import "testing"

func TestEveryStatusHasARule(t *testing.T) {
	for _, s := range AllStatuses {
		if _, ok := RuleFor(s); !ok {
			t.Errorf("status %s has no rule", s)
		}
	}
	if _, ok := RuleFor(AssetStatus("Bogus")); ok {
		t.Error("unknown status should have no rule")
	}
}

func TestSameStatusAlwaysAllowed(t *testing.T) {
	for _, s := range AllStatuses {
		if !CanTransition(s, s) {
			t.Errorf("same-status update %s -> %s should be allowed", s, s)
		}
	}
}

func TestTransitionMatrix(t *testing.T) {
	allowed := map[AssetStatus][]AssetStatus{
		StatusSetup:        {StatusInUse, StatusToBeDeployed, StatusRepaired, StatusRetired},
		StatusToBeDeployed: {StatusInUse, StatusRepaired, StatusSetup, StatusRetired},
		StatusInUse:        {StatusToBeDeployed, StatusSetup},
		StatusToBeRepaired: {StatusInUse, StatusToBeDeployed, StatusSetup, StatusUnderRepair, StatusRepaired, StatusRetired},
		StatusUnderRepair:  {StatusToBeRepaired},
		StatusRepaired:     {StatusUnderRepair},
		StatusRetired:      {StatusInUse, StatusSetup, StatusToBeDeployed, StatusUnderRepair, StatusRepaired},
	}
	for _, to := range AllStatuses {
		set := map[AssetStatus]bool{}
		for _, from := range allowed[to] {
			set[from] = true
		}
		for _, from := range AllStatuses {
			if from == to {
				continue
			}
			got := CanTransition(from, to)
			if got != set[from] {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", from, to, got, set[from])
			}
		}
	}
}

func TestRepairPipelineIsStrict(t *testing.T) {
	// UnderRepair only from ToBeRepaired, Repaired only from UnderRepair.
	if CanTransition(StatusInUse, StatusUnderRepair) {
		t.Error("InUse -> UnderRepair must be rejected")
	}
	if CanTransition(StatusToBeRepaired, StatusRepaired) {
		t.Error("ToBeRepaired -> Repaired must go through UnderRepair")
	}
	if !CanTransition(StatusToBeRepaired, StatusUnderRepair) {
		t.Error("ToBeRepaired -> UnderRepair must be allowed")
	}
	if !CanTransition(StatusUnderRepair, StatusRepaired) {
		t.Error("UnderRepair -> Repaired must be allowed")
	}
}

func TestRuleSideEffects(t *testing.T) {
	cases := []struct {
		status       AssetStatus
		location     Location
		requiresNote bool
		unassigns    bool
		auto         []AutoField
		required     []string
	}{
		{StatusSetup, LocationSetupShelf, true, false, nil, []string{"deploymentSetupDate"}},
		{StatusToBeDeployed, LocationDeploymentShelf, false, false, []AutoField{AutoToBeDeployedDate}, nil},
		{StatusInUse, LocationStorage, false, false, []AutoField{AutoUserInUseDate}, []string{"assignedToEmployeeId"}},
		{StatusToBeRepaired, LocationDamagedShelf, true, true, []AutoField{AutoReportedToRepairDate}, nil},
		{StatusUnderRepair, LocationUnderRepairShelf, true, false, nil, []string{"underRepairDate"}},
		{StatusRepaired, LocationRepairedShelf, true, false, nil, []string{"repairedDate"}},
		{StatusRetired, LocationRetiredShelf, true, true, nil, []string{"retiredDate"}},
	}
	for _, tc := range cases {
		rule, ok := RuleFor(tc.status)
		if !ok {
			t.Fatalf("no rule for %s", tc.status)
		}
		if rule.Location != tc.location {
			t.Errorf("%s: location = %s, want %s", tc.status, rule.Location, tc.location)
		}
		if rule.RequiresNote != tc.requiresNote {
			t.Errorf("%s: requiresNote = %v, want %v", tc.status, rule.RequiresNote, tc.requiresNote)
		}
		if rule.UnassignsUser != tc.unassigns {
			t.Errorf("%s: unassignsUser = %v, want %v", tc.status, rule.UnassignsUser, tc.unassigns)
		}
		if len(rule.AutoFields) != len(tc.auto) {
			t.Errorf("%s: autoFields = %v, want %v", tc.status, rule.AutoFields, tc.auto)
		}
		if len(rule.RequiredFields) != len(tc.required) {
			t.Errorf("%s: requiredFields = %v, want %v", tc.status, rule.RequiredFields, tc.required)
		}
	}
}

func TestAllowedTargetsExcludesSelf(t *testing.T) {
	for _, from := range AllStatuses {
		for _, to := range AllowedTargets(from) {
			if to == from {
				t.Errorf("AllowedTargets(%s) contains the status itself", from)
			}
			if !CanTransition(from, to) {
				t.Errorf("AllowedTargets(%s) contains illegal target %s", from, to)
			}
		}
	}
}

func TestAllowedTargetsFromRetired(t *testing.T) {
	got := AllowedTargets(StatusRetired)
	want := map[AssetStatus]bool{StatusSetup: true, StatusToBeDeployed: true, StatusToBeRepaired: true}
	if len(got) != len(want) {
		t.Fatalf("AllowedTargets(Retired) = %v, want %v targets", got, len(want))
	}
	for _, s := range got {
		if !want[s] {
			t.Errorf("unexpected target %s from Retired", s)
		}
	}
}
