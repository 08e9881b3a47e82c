package classify

import (
	"strings"
)

// UnitPolicy resolves a meter's unit and commodity. The meaning of hint
// depends on the source system.
type UnitPolicy interface {
	Resolve(hint, description string) (unit, commodity string, err error)
}

// NameBased is used by sources that expose a semantic quantity name, e.g.
// "Real Energy Into the Load". The unit is inferred from the name.
type NameBased struct{}

func (NameBased) Resolve(quantityName, _ string) (string, string, error) {
	unit := UnitFromQuantityName(quantityName)
	switch unit {
	case "kW", "kWh":
		return unit, Electricity, nil
	}
	return "", "", &Error{Kind: UnresolvedCommodity, Detail: "quantity " + quantityName + " maps to unit " + unit}
}

// UnitFromQuantityName maps a quantity name to kW, kWh or unknown.
func UnitFromQuantityName(name string) string {
	name = strings.ToLower(name)
	switch {
	case strings.Contains(name, "power"):
		return "kW"
	case strings.Contains(name, "energy"):
		return "kWh"
	default:
		return "unknown"
	}
}

// HintBased is used by sources where the operator supplies the unit in the
// request file. The unit is reported exactly as supplied.
type HintBased struct{}

var commodityByUnit = map[string]string{
	"kw":    Electricity,
	"kwh":   Electricity,
	"cu ft": Gas,
	"btu":   Gas,
	"gal":   Water,
}

func (HintBased) Resolve(unit, description string) (string, string, error) {
	u := strings.ToLower(strings.TrimSpace(unit))
	if c, ok := commodityByUnit[u]; ok {
		return unit, c, nil
	}
	// Unlabelled BTU meters only carry the unit in their point name.
	if u == "unknown" && strings.Contains(strings.ToLower(description), "btu") {
		return unit, Gas, nil
	}
	return "", "", &Error{Kind: UnresolvedCommodity, Detail: "no commodity for unit " + unit}
}
