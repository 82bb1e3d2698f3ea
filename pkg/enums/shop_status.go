package enums

import "fmt"

// ShopStatus is the lifecycle state of a shop account.
type ShopStatus string

const (
	ShopStatusPending  ShopStatus = "pending"
	ShopStatusApproved ShopStatus = "approved"
	ShopStatusRejected ShopStatus = "rejected"
	ShopStatusFrozen   ShopStatus = "frozen"
)

var validShopStatuses = []ShopStatus{
	ShopStatusPending,
	ShopStatusApproved,
	ShopStatusRejected,
	ShopStatusFrozen,
}

// String implements fmt.Stringer.
func (s ShopStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known shop status.
func (s ShopStatus) IsValid() bool {
	for _, candidate := range validShopStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseShopStatus converts raw input into ShopStatus.
func ParseShopStatus(value string) (ShopStatus, error) {
	for _, candidate := range validShopStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid shop status %q", value)
}

// NormalizeShopStatus maps unknown or empty input to approved, the status
// admin-created shops receive when none is requested.
func NormalizeShopStatus(value string) ShopStatus {
	if status, err := ParseShopStatus(value); err == nil {
		return status
	}
	return ShopStatusApproved
}

// ShopTransition is an admin action on a shop's status.
type ShopTransition string

const (
	ShopTransitionApprove  ShopTransition = "approve"
	ShopTransitionReject   ShopTransition = "reject"
	ShopTransitionFreeze   ShopTransition = "freeze"
	ShopTransitionUnfreeze ShopTransition = "unfreeze"
)

var validShopTransitions = []ShopTransition{
	ShopTransitionApprove,
	ShopTransitionReject,
	ShopTransitionFreeze,
	ShopTransitionUnfreeze,
}

// String implements fmt.Stringer.
func (t ShopTransition) String() string {
	return string(t)
}

// IsValid reports whether the value is a known transition.
func (t ShopTransition) IsValid() bool {
	for _, candidate := range validShopTransitions {
		if candidate == t {
			return true
		}
	}
	return false
}

// Apply returns the status a shop moves to. The target depends only on the
// action, so a stored status this build does not know is overwritten like
// any other. Only an unknown action is rejected.
func (t ShopTransition) Apply(_ ShopStatus) (ShopStatus, error) {
	switch t {
	case ShopTransitionApprove:
		return ShopStatusApproved, nil
	case ShopTransitionReject:
		return ShopStatusRejected, nil
	case ShopTransitionFreeze:
		return ShopStatusFrozen, nil
	case ShopTransitionUnfreeze:
		return ShopStatusApproved, nil
	default:
		return "", fmt.Errorf("invalid shop transition %q", t)
	}
}
