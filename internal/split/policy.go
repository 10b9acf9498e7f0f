package split

import (
	"math"
	"math/rand/v2"
	"slices"
	"strings"

	"github.com/tphakala/corpusprep/internal/errors"
)

// Policy decides how many members of a group go to the training subset
type Policy string

const (
	// Truncate puts floor(n*ratio) members in train
	Truncate Policy = "truncate"
	// GuaranteeNonEmptyValidation sizes validation first, as
	// max(1, floor(n*(1-ratio))), and puts the rest in train, so validation
	// always gets at least one member
	GuaranteeNonEmptyValidation Policy = "guarantee-validation"
)

// ParsePolicy converts a configuration value into a Policy
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case Truncate, GuaranteeNonEmptyValidation:
		return p, nil
	}
	return "", errors.Newf("invalid split policy %q: must be %s or %s", s, Truncate, GuaranteeNonEmptyValidation).
		Component("split").
		Category(errors.CategoryValidation).
		Build()
}

// DefaultMinMembers is the smallest group the policy can split into two
// meaningful subsets
func (p Policy) DefaultMinMembers() int {
	if p == GuaranteeNonEmptyValidation {
		return 2
	}
	return 1
}

// SmallGroupPolicy decides what happens to groups below the minimum size
type SmallGroupPolicy string

const (
	// SmallGroupSkip leaves small groups out of the split
	SmallGroupSkip SmallGroupPolicy = "skip"
	// SmallGroupKeep splits small groups with the regular policy anyway
	SmallGroupKeep SmallGroupPolicy = "keep"
)

// ParseSmallGroupPolicy converts a configuration value into a SmallGroupPolicy
func ParseSmallGroupPolicy(s string) (SmallGroupPolicy, error) {
	switch p := SmallGroupPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case SmallGroupSkip, SmallGroupKeep:
		return p, nil
	}
	return "", errors.Newf("invalid small group policy %q: must be %s or %s", s, SmallGroupSkip, SmallGroupKeep).
		Component("split").
		Category(errors.CategoryValidation).
		Build()
}

// ErrInvalidRatio is returned for a train ratio outside (0, 1)
var ErrInvalidRatio = errors.NewStd("train ratio must be strictly between 0 and 1")

// ValidateRatio checks that ratio lies in the open interval (0, 1)
func ValidateRatio(ratio float64) error {
	if math.IsNaN(ratio) || ratio <= 0 || ratio >= 1 {
		return errors.New(ErrInvalidRatio).
			Component("split").
			Category(errors.CategoryValidation).
			Context("ratio", ratio).
			Build()
	}
	return nil
}

// ratioEpsilon absorbs float error in n*ratio, e.g. 100*0.29
const ratioEpsilon = 1e-9

// TrainSize returns the number of members of an n-member group that go to
// the training subset
func TrainSize(n int, ratio float64, p Policy) int {
	if n <= 0 {
		return 0
	}
	if p == GuaranteeNonEmptyValidation {
		val := max(1, int(math.Floor(float64(n)*(1-ratio)+ratioEpsilon)))
		return min(max(n-val, 0), n)
	}
	k := int(math.Floor(float64(n)*ratio + ratioEpsilon))
	return min(max(k, 0), n)
}

// Partition shuffles members with rng and divides them into train and
// validation. Members are sorted before shuffling so the outcome depends
// only on the member set and the state of rng. Both subsets are returned
// sorted.
func Partition(members []string, ratio float64, p Policy, rng *rand.Rand) (train, val []string) {
	shuffled := slices.Clone(members)
	slices.Sort(shuffled)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	k := TrainSize(len(shuffled), ratio, p)
	train = slices.Clone(shuffled[:k])
	val = slices.Clone(shuffled[k:])
	slices.Sort(train)
	slices.Sort(val)
	return train, val
}
