package fieldstore

import "math/rand"

// Randomize perturbs every loaded concentration field multiplicatively,
// used to build the initial ensemble spread before the first
// assimilation cycle: each element is scaled by 1 + bias + U(-p, p).
func (f *FieldStore) Randomize(rng *rand.Rand, perturbation, bias float64) {
	for _, arr := range f.conc {
		for i, v := range arr.Elements {
			noise := bias + (rng.Float64()*2-1)*perturbation
			arr.Elements[i] = v * (1 + noise)
		}
	}
}
