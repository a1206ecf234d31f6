package assim

import (
	"fmt"
	"strconv"
)

// ObsErrorFormatError reports an OBS_ERROR_MATRICES entry that cannot
// be used where only a relative-error scalar is meaningful.
type ObsErrorFormatError struct {
	Entry  string
	Reason string
}

func (e *ObsErrorFormatError) Error() string {
	return fmt.Sprintf("assim: OBS_ERROR_MATRICES entry %q: %s", e.Entry, e.Reason)
}

// RelativeErrors parses every OBS_ERROR_MATRICES entry as a
// relative-error fraction. A dense-covariance-file path (the other
// documented shape of this field) cannot synthesize a per-cell nature
// observation error this way; SynthesizeObservations only supports the
// scalar form, since simulated-nature truth is generated independently
// at every cell rather than read from a file with its own covariance
// structure.
func RelativeErrors(entries []string) ([]float64, error) {
	out := make([]float64, len(entries))
	for i, e := range entries {
		v, err := strconv.ParseFloat(e, 64)
		if err != nil {
			return nil, &ObsErrorFormatError{Entry: e, Reason: "not a relative-error scalar (dense covariance files are not supported for nature-truth synthesis)"}
		}
		out[i] = v
	}
	return out, nil
}
