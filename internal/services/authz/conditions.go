package authz

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/J41RO/MeStore-sub006/internal/access"
	"github.com/J41RO/MeStore-sub006/internal/db/models"
)

// permissionHasConditions reports whether a catalog row carries any
// requirement that can only be judged against request context.
func permissionHasConditions(p *models.Permission) bool {
	return p.RequiresMFA || p.RequiresApproval || !p.Conditions.Empty()
}

// evaluateConditions checks a conditioned permission against the request
// context. Returns ok and, when not ok, which condition failed. Every
// malformed condition value fails closed.
//
// Callers gate on permissionHasConditions and a non-nil context; this
// function assumes both.
func evaluateConditions(p *models.Permission, checkCtx *CheckContext, now time.Time) (bool, string) {
	if p.RequiresMFA && !checkCtx.MFAVerified {
		return false, "multi-factor attestation required"
	}

	if p.RequiresApproval && checkCtx.ApprovalRef == "" {
		return false, "approval reference required"
	}

	cond := p.Conditions

	if cond.TimeWindow != nil {
		if ok, reason := withinTimeWindow(cond.TimeWindow, now); !ok {
			return false, reason
		}
	}

	if len(cond.IPAllowlist) > 0 {
		if ok, reason := ipAllowed(cond.IPAllowlist, checkCtx.IPAddress); !ok {
			return false, reason
		}
	}

	if len(cond.DepartmentAllowlist) > 0 {
		if !departmentAllowed(cond.DepartmentAllowlist, checkCtx.DepartmentID) {
			return false, fmt.Sprintf("department %q not in allowlist", checkCtx.DepartmentID)
		}
	}

	if cond.AttributeExpr != "" {
		if !access.EvaluateAttributeExpr(cond.AttributeExpr, checkCtx.Attributes) {
			return false, "attribute expression not satisfied"
		}
	}

	return true, ""
}

// withinTimeWindow checks the wall clock against a window. A window whose
// end precedes its start spans midnight: 22:00-06:00 allows 23:30 and
// 05:00 but not 12:00.
func withinTimeWindow(w *models.TimeWindow, now time.Time) (bool, string) {
	if len(w.Days) > 0 {
		day := strings.ToUpper(now.Weekday().String()[:3])
		found := false
		for _, d := range w.Days {
			if strings.ToUpper(d) == day {
				found = true
				break
			}
		}
		if !found {
			return false, fmt.Sprintf("outside permitted days (%s)", strings.Join(w.Days, ","))
		}
	}

	start, err := minuteOfDay(w.Start)
	if err != nil {
		return false, fmt.Sprintf("malformed time window start %q", w.Start)
	}
	end, err := minuteOfDay(w.End)
	if err != nil {
		return false, fmt.Sprintf("malformed time window end %q", w.End)
	}

	minute := now.Hour()*60 + now.Minute()
	var inside bool
	if start <= end {
		inside = minute >= start && minute <= end
	} else {
		inside = minute >= start || minute <= end
	}
	if !inside {
		return false, fmt.Sprintf("outside permitted hours (%s-%s)", w.Start, w.End)
	}
	return true, ""
}

// minuteOfDay parses "HH:MM" into minutes since midnight.
func minuteOfDay(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

// ipAllowed checks an address against allowlist entries, each either a
// literal address or a CIDR block.
func ipAllowed(allowlist []string, address string) (bool, string) {
	ip := net.ParseIP(address)
	if ip == nil {
		return false, fmt.Sprintf("caller address %q not parseable", address)
	}

	for _, entry := range allowlist {
		if strings.Contains(entry, "/") {
			_, cidr, err := net.ParseCIDR(entry)
			if err != nil {
				continue
			}
			if cidr.Contains(ip) {
				return true, ""
			}
			continue
		}
		if allowed := net.ParseIP(entry); allowed != nil && allowed.Equal(ip) {
			return true, ""
		}
	}

	return false, fmt.Sprintf("caller address %s not in allowlist", address)
}

func departmentAllowed(allowlist []string, departmentID string) bool {
	if departmentID == "" {
		return false
	}
	for _, d := range allowlist {
		if d == departmentID {
			return true
		}
	}
	return false
}
