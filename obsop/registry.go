package obsop

import "fmt"

// ByTag resolves a config-file operator tag (an OBS_OPERATORS or
// NATURE_H_FUNCTIONS entry) into an Operator. "Surface" and "Sum" are
// self-contained and resolve directly; "SatelliteColumn" cannot be
// built from a tag alone (it needs per-footprint averaging-kernel
// geometry that lives outside the operator tag system) and is
// reported as an error here rather than constructed with zero-value
// footprints.
func ByTag(tag string) (Operator, error) {
	switch tag {
	case "Surface":
		return SurfaceOperator{}, nil
	case "Sum":
		return SumOperator{}, nil
	case "SatelliteColumn":
		return nil, &OperatorError{Operator: tag, Reason: "SatelliteColumn cannot be resolved from a tag alone; construct a SatelliteColumnOperator with its footprints directly"}
	default:
		return nil, &OperatorError{Operator: tag, Reason: "unknown operator tag"}
	}
}

// OperatorsFor resolves one operator tag per species, returning a map
// keyed by species (the same key Assembler.ObsSpace and obs.Collection
// use) rather than by tag.
func OperatorsFor(species, tags []string) (map[string]Operator, error) {
	if len(species) != len(tags) {
		return nil, fmt.Errorf("obsop: OperatorsFor: %d species but %d tags", len(species), len(tags))
	}
	out := make(map[string]Operator, len(species))
	for i, sp := range species {
		op, err := ByTag(tags[i])
		if err != nil {
			return nil, err
		}
		out[sp] = op
	}
	return out, nil
}
