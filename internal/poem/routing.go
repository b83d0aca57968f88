package poem

import (
	"strconv"

	"github.com/chronoverse/chronoverse-api/internal/config"
)

// ChooseModel decides which model serves the caller. Single mode always
// uses the primary; ab mode buckets the request id so a given request
// is sticky to its arm; shadow mode serves the primary and leaves the
// secondary to the background lane.
func ChooseModel(exp config.ExperimentConfig, requestID string) string {
	if exp.Mode != config.ModeAB {
		return exp.PrimaryModel
	}

	split := exp.ABSplit
	if split < 0 {
		split = 0
	}
	if split > 100 {
		split = 100
	}

	bucket, ok := bucketOf(requestID)
	if !ok {
		return exp.PrimaryModel
	}
	if bucket < split {
		return exp.SecondaryModel
	}
	return exp.PrimaryModel
}

// bucketOf hashes the last four hex characters of the request id into
// 0..99. Ids are uuid-derived hex, so the tail is uniform; malformed
// ids report !ok and stay on the primary arm.
func bucketOf(requestID string) (int, bool) {
	if len(requestID) < 4 {
		return 0, false
	}
	tail := requestID[len(requestID)-4:]
	n, err := strconv.ParseUint(tail, 16, 32)
	if err != nil {
		return 0, false
	}
	return int(n % 100), true
}
