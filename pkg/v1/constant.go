package v1

// DefaultSamplingRateMs applies to files that omit samplingRateMs.
const DefaultSamplingRateMs uint = 1000

// PatchableFields lists the device fields a PATCH may change.
var PatchableFields = map[string]struct{}{
	"samplingRateMs": {},
}
