package sweep

import (
	"fmt"
	"math"
	"regexp"
	"strconv"

	"github.com/banshee-data/paramstudy/internal/studyerr"
)

// DefaultIDScale keeps two decimals of each parameter, matching mesh names
// such as mesh_d004_H03.su2.
const DefaultIDScale = 100

// IDScheme builds case ids of the form <P><a><S><b>, for example
// d004_H03, from rounded parameter magnitudes. The scheme alone is not
// injective (signs are dropped, close values round together); Generate
// checks every id it produces against the tuples seen so far.
type IDScheme struct {
	Scale           float64
	PrimaryPrefix   string
	SecondaryPrefix string
	PrimaryWidth    int
	SecondaryWidth  int
}

// DefaultIDScheme returns the d%03d_H%02d scheme at two-decimal precision.
func DefaultIDScheme() IDScheme {
	return IDScheme{
		Scale:           DefaultIDScale,
		PrimaryPrefix:   "d",
		SecondaryPrefix: "_H",
		PrimaryWidth:    3,
		SecondaryWidth:  2,
	}
}

// Format renders the id for the parameter pair (a, b).
func (s IDScheme) Format(a, b float64) (string, error) {
	if s.Scale <= 0 || math.IsNaN(s.Scale) || math.IsInf(s.Scale, 0) {
		return "", studyerr.Parameterf("id_scale", "must be a positive finite number, got %g", s.Scale)
	}
	ia, err := s.scaled(a)
	if err != nil {
		return "", err
	}
	ib, err := s.scaled(b)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%0*d%s%0*d", s.PrimaryPrefix, s.PrimaryWidth, ia, s.SecondaryPrefix, s.SecondaryWidth, ib), nil
}

// Parse inverts Format, returning the parameter magnitudes. Signs are not
// recoverable from an id.
func (s IDScheme) Parse(id string) (a, b float64, err error) {
	re, err := regexp.Compile("^" + regexp.QuoteMeta(s.PrimaryPrefix) + `(\d+)` + regexp.QuoteMeta(s.SecondaryPrefix) + `(\d+)$`)
	if err != nil {
		return 0, 0, fmt.Errorf("compile id pattern: %w", err)
	}
	m := re.FindStringSubmatch(id)
	if m == nil {
		return 0, 0, fmt.Errorf("case id %q does not match %s<n>%s<n>", id, s.PrimaryPrefix, s.SecondaryPrefix)
	}
	ia, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("case id %q: %w", id, err)
	}
	ib, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("case id %q: %w", id, err)
	}
	return float64(ia) / s.Scale, float64(ib) / s.Scale, nil
}

func (s IDScheme) scaled(v float64) (int64, error) {
	x := math.Round(math.Abs(v) * s.Scale)
	if math.IsNaN(x) || x > math.MaxInt32 {
		return 0, studyerr.Parameterf("case_id", "value %g cannot be encoded at scale %g", v, s.Scale)
	}
	return int64(x), nil
}

var validID = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// ValidateID rejects ids that cannot be used as a single path component.
// Case ids name directories and files, so separators and dot-dot are out.
func ValidateID(id string) error {
	if id == "" {
		return studyerr.Parameterf("case_id", "must not be empty")
	}
	if len(id) > 128 {
		return studyerr.Parameterf("case_id", "%q is longer than 128 characters", id)
	}
	if !validID.MatchString(id) {
		return studyerr.Parameterf("case_id", "%q may only contain letters, digits, '.', '_' and '-'", id)
	}
	return nil
}
