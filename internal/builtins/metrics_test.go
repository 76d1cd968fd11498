package builtins

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMinimumPicksLowestWeightedScore(t *testing.T) {
	inputs := []Upstream{
		{Step: "place", Index: "0", Metrics: map[string]float64{"area": 100, "power": 2}},
		{Step: "place", Index: "1", Metrics: map[string]float64{"area": 50, "power": 4}},
	}
	res := Minimum(inputs, Weights{"area": 1})
	require.NotNil(t, res)
	assert.Equal(t, "place1", res.Winner.ID())
}

func TestMaximumPicksHighestWeightedScore(t *testing.T) {
	inputs := []Upstream{
		{Step: "synth", Index: "0", Metrics: map[string]float64{"freq": 500}},
		{Step: "synth", Index: "1", Metrics: map[string]float64{"freq": 900}},
	}
	res := Maximum(inputs, Weights{"freq": 1})
	require.NotNil(t, res)
	assert.Equal(t, "synth1", res.Winner.ID())
}

func TestEligibilityExcludesErroredAndOverGoal(t *testing.T) {
	inputs := []Upstream{
		{Step: "place", Index: "0", Error: true, Metrics: map[string]float64{"area": 10}},
		{Step: "place", Index: "1", Metrics: map[string]float64{"area": 999}, Goals: map[string]float64{"area": 100}},
		{Step: "place", Index: "2", Metrics: map[string]float64{"area": 20}, Goals: map[string]float64{"area": 100}},
	}
	res := Minimum(inputs, Weights{"area": 1})
	require.NotNil(t, res)
	assert.Equal(t, "place2", res.Winner.ID())
}

func TestMinimumReturnsNilWhenNoneEligible(t *testing.T) {
	inputs := []Upstream{
		{Step: "place", Index: "0", Error: true, Metrics: map[string]float64{"area": 10}},
	}
	assert.Nil(t, Minimum(inputs, Weights{"area": 1}))
}

func TestMuxReturnsNoWinner(t *testing.T) {
	inputs := []Upstream{{Step: "place", Index: "0", Metrics: map[string]float64{"area": 10}}}
	res := Mux(inputs, func([]Upstream) Weights { return nil })
	assert.Nil(t, res)
}

func TestJoinAndNopPassThrough(t *testing.T) {
	inputs := []Upstream{{Step: "a", Index: "0"}, {Step: "b", Index: "0"}}
	assert.Equal(t, inputs, Join(inputs))
	assert.Equal(t, inputs[:1], Nop(inputs[:1]))
}
