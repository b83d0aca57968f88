package poem

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/chronoverse/chronoverse-api/internal/config"
)

func TestChooseModelSingleAndShadowServePrimary(t *testing.T) {
	for _, mode := range []string{config.ModeSingle, config.ModeShadow} {
		exp := config.ExperimentConfig{
			Mode:           mode,
			PrimaryModel:   "gpt-5-mini",
			SecondaryModel: "gpt-4o-mini",
			ABSplit:        100,
		}
		assert.Equal(t, "gpt-5-mini", ChooseModel(exp, "cv_00000000ffff"), "mode %s", mode)
	}
}

func TestChooseModelABIsSticky(t *testing.T) {
	exp := config.ExperimentConfig{
		Mode:           config.ModeAB,
		PrimaryModel:   "gpt-5-mini",
		SecondaryModel: "gpt-4o-mini",
		ABSplit:        50,
	}

	first := ChooseModel(exp, "cv_a1b2c3d4e5f6")
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, ChooseModel(exp, "cv_a1b2c3d4e5f6"))
	}
}

func TestChooseModelABSplitBoundaries(t *testing.T) {
	exp := config.ExperimentConfig{
		Mode:           config.ModeAB,
		PrimaryModel:   "primary",
		SecondaryModel: "secondary",
	}

	// 0000 hex -> bucket 0; ffff hex -> 65535 % 100 = 35.
	exp.ABSplit = 0
	assert.Equal(t, "primary", ChooseModel(exp, "cv_00000000c0de"))

	exp.ABSplit = 100
	assert.Equal(t, "secondary", ChooseModel(exp, "cv_00000000c0de"))

	exp.ABSplit = 36
	assert.Equal(t, "secondary", ChooseModel(exp, "cv_00000000ffff"))
	exp.ABSplit = 35
	assert.Equal(t, "primary", ChooseModel(exp, "cv_00000000ffff"))
}

func TestChooseModelABDistribution(t *testing.T) {
	exp := config.ExperimentConfig{
		Mode:           config.ModeAB,
		PrimaryModel:   "primary",
		SecondaryModel: "secondary",
		ABSplit:        30,
	}

	secondary := 0
	const total = 10000
	for i := 0; i < total; i++ {
		id := fmt.Sprintf("cv_%012x", i)
		if ChooseModel(exp, id) == "secondary" {
			secondary++
		}
	}

	share := float64(secondary) / total
	assert.InDelta(t, 0.30, share, 0.03)
}

func TestChooseModelMalformedIDFallsToPrimary(t *testing.T) {
	exp := config.ExperimentConfig{
		Mode:           config.ModeAB,
		PrimaryModel:   "primary",
		SecondaryModel: "secondary",
		ABSplit:        99,
	}

	assert.Equal(t, "secondary", ChooseModel(exp, "cv_000000000001"))
	// Non-hex tails and too-short ids never reach the secondary arm.
	assert.Equal(t, "primary", ChooseModel(exp, "zzzz"))
	assert.Equal(t, "primary", ChooseModel(exp, "ab"))
	assert.Equal(t, "primary", ChooseModel(exp, ""))
}
