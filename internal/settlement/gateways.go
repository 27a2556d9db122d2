package settlement

import "strings"

// Gateway is a payment option published by the gateway configuration service.
type Gateway struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	IsActive bool   `json:"isActive"`
}

// ClassOf maps a gateway id to its eligibility class.
func ClassOf(id string) Class {
	switch Method(strings.ToLower(strings.TrimSpace(id))) {
	case MethodCOD:
		return ClassDeferred
	case MethodCoins:
		return ClassCoinOnly
	}
	return ClassPrepaid
}

// AvailableGateways keeps the active gateways whose class d permits.
func AvailableGateways(gateways []Gateway, d Decision) []Gateway {
	out := make([]Gateway, 0, len(gateways))
	for _, g := range gateways {
		if !g.IsActive {
			continue
		}
		if d.Eligible(ClassOf(g.ID)) {
			out = append(out, g)
		}
	}
	return out
}
