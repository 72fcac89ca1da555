package authz

import (
	"strings"
	"testing"
	"time"

	"github.com/J41RO/MeStore-sub006/internal/db/models"
)

func TestPermissionHasConditions(t *testing.T) {
	tests := []struct {
		name string
		perm models.Permission
		want bool
	}{
		{"bare permission", models.Permission{}, false},
		{"requires MFA", models.Permission{RequiresMFA: true}, true},
		{"requires approval", models.Permission{RequiresApproval: true}, true},
		{"time window", models.Permission{Conditions: models.ConditionSet{
			TimeWindow: &models.TimeWindow{Start: "09:00", End: "17:00"},
		}}, true},
		{"ip allowlist", models.Permission{Conditions: models.ConditionSet{
			IPAllowlist: []string{"10.0.0.1"},
		}}, true},
		{"department allowlist", models.Permission{Conditions: models.ConditionSet{
			DepartmentAllowlist: []string{"dept-sales"},
		}}, true},
		{"attribute expr", models.Permission{Conditions: models.ConditionSet{
			AttributeExpr: `region == "us-east"`,
		}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := permissionHasConditions(&tt.perm); got != tt.want {
				t.Errorf("permissionHasConditions() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEvaluateConditionsMFAAndApproval(t *testing.T) {
	now := time.Now()
	perm := &models.Permission{RequiresMFA: true, RequiresApproval: true}

	if ok, reason := evaluateConditions(perm, &CheckContext{}, now); ok {
		t.Fatal("expected MFA failure")
	} else if !strings.Contains(reason, "multi-factor") {
		t.Errorf("reason = %q, want MFA mention", reason)
	}

	if ok, reason := evaluateConditions(perm, &CheckContext{MFAVerified: true}, now); ok {
		t.Fatal("expected approval failure")
	} else if !strings.Contains(reason, "approval") {
		t.Errorf("reason = %q, want approval mention", reason)
	}

	if ok, _ := evaluateConditions(perm, &CheckContext{MFAVerified: true, ApprovalRef: "CHG-1042"}, now); !ok {
		t.Fatal("expected pass with MFA and approval reference")
	}
}

func TestEvaluateConditionsTimeWindow(t *testing.T) {
	// A Wednesday at 14:30 UTC.
	wednesday := time.Date(2026, 3, 4, 14, 30, 0, 0, time.UTC)
	if wednesday.Weekday() != time.Wednesday {
		t.Fatal("fixture date is not a Wednesday")
	}

	tests := []struct {
		name   string
		window models.TimeWindow
		at     time.Time
		want   bool
	}{
		{"inside window", models.TimeWindow{Start: "09:00", End: "17:00"}, wednesday, true},
		{"before window", models.TimeWindow{Start: "15:00", End: "17:00"}, wednesday, false},
		{"after window", models.TimeWindow{Start: "09:00", End: "12:00"}, wednesday, false},
		{"boundary start", models.TimeWindow{Start: "14:30", End: "17:00"}, wednesday, true},
		{"boundary end", models.TimeWindow{Start: "09:00", End: "14:30"}, wednesday, true},
		{"midnight wrap inside late", models.TimeWindow{Start: "22:00", End: "06:00"},
			time.Date(2026, 3, 4, 23, 30, 0, 0, time.UTC), true},
		{"midnight wrap inside early", models.TimeWindow{Start: "22:00", End: "06:00"},
			time.Date(2026, 3, 4, 5, 0, 0, 0, time.UTC), true},
		{"midnight wrap outside", models.TimeWindow{Start: "22:00", End: "06:00"}, wednesday, false},
		{"permitted day", models.TimeWindow{Start: "09:00", End: "17:00", Days: []string{"mon", "wed"}}, wednesday, true},
		{"excluded day", models.TimeWindow{Start: "09:00", End: "17:00", Days: []string{"sat", "sun"}}, wednesday, false},
		{"malformed start fails closed", models.TimeWindow{Start: "9am", End: "17:00"}, wednesday, false},
		{"malformed end fails closed", models.TimeWindow{Start: "09:00", End: "late"}, wednesday, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			perm := &models.Permission{Conditions: models.ConditionSet{TimeWindow: &tt.window}}
			got, reason := evaluateConditions(perm, &CheckContext{}, tt.at)
			if got != tt.want {
				t.Errorf("evaluateConditions() = %v (%q), want %v", got, reason, tt.want)
			}
		})
	}
}

func TestEvaluateConditionsIPAllowlist(t *testing.T) {
	perm := &models.Permission{Conditions: models.ConditionSet{
		IPAllowlist: []string{"10.20.30.40", "192.168.0.0/16", "2001:db8::/32"},
	}}
	now := time.Now()

	tests := []struct {
		name    string
		address string
		want    bool
	}{
		{"exact match", "10.20.30.40", true},
		{"inside CIDR", "192.168.7.9", true},
		{"ipv6 inside CIDR", "2001:db8::1", true},
		{"outside", "203.0.113.5", false},
		{"empty address fails closed", "", false},
		{"garbage address fails closed", "not-an-ip", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := evaluateConditions(perm, &CheckContext{IPAddress: tt.address}, now)
			if got != tt.want {
				t.Errorf("evaluateConditions(%q) = %v, want %v", tt.address, got, tt.want)
			}
		})
	}
}

func TestEvaluateConditionsDepartmentAllowlist(t *testing.T) {
	perm := &models.Permission{Conditions: models.ConditionSet{
		DepartmentAllowlist: []string{"dept-sales", "dept-finance"},
	}}
	now := time.Now()

	if ok, _ := evaluateConditions(perm, &CheckContext{DepartmentID: "dept-sales"}, now); !ok {
		t.Error("expected allowlisted department to pass")
	}
	if ok, _ := evaluateConditions(perm, &CheckContext{DepartmentID: "dept-hr"}, now); ok {
		t.Error("expected foreign department to fail")
	}
	if ok, _ := evaluateConditions(perm, &CheckContext{}, now); ok {
		t.Error("expected missing department to fail closed")
	}
}

func TestEvaluateConditionsAttributeExpr(t *testing.T) {
	perm := &models.Permission{Conditions: models.ConditionSet{
		AttributeExpr: `region == "us-east" and channel != "api"`,
	}}
	now := time.Now()

	pass := &CheckContext{Attributes: map[string]any{"region": "us-east", "channel": "web"}}
	if ok, _ := evaluateConditions(perm, pass, now); !ok {
		t.Error("expected matching attributes to pass")
	}

	fail := &CheckContext{Attributes: map[string]any{"region": "eu-west", "channel": "web"}}
	if ok, reason := evaluateConditions(perm, fail, now); ok {
		t.Error("expected mismatched attributes to fail")
	} else if !strings.Contains(reason, "attribute") {
		t.Errorf("reason = %q, want attribute mention", reason)
	}

	// No attributes at all fails closed.
	if ok, _ := evaluateConditions(perm, &CheckContext{}, now); ok {
		t.Error("expected missing attributes to fail closed")
	}
}

func TestEvaluateConditionsAllDimensionsTogether(t *testing.T) {
	perm := &models.Permission{
		RequiresMFA: true,
		Conditions: models.ConditionSet{
			TimeWindow:          &models.TimeWindow{Start: "09:00", End: "17:00"},
			IPAllowlist:         []string{"10.0.0.0/8"},
			DepartmentAllowlist: []string{"dept-sales"},
			AttributeExpr:       `order_total <= 500`,
		},
	}
	at := time.Date(2026, 3, 4, 11, 0, 0, 0, time.UTC)
	cctx := &CheckContext{
		MFAVerified:  true,
		IPAddress:    "10.1.2.3",
		DepartmentID: "dept-sales",
		Attributes:   map[string]any{"order_total": 250},
	}

	if ok, reason := evaluateConditions(perm, cctx, at); !ok {
		t.Fatalf("expected all conditions to pass, got %q", reason)
	}

	// Each dimension alone can sink the check.
	cctx.IPAddress = "203.0.113.5"
	if ok, _ := evaluateConditions(perm, cctx, at); ok {
		t.Error("expected IP failure to sink the check")
	}
}
