package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"statsuite/domain/method"
)

func TestParseParams(t *testing.T) {
	params, err := parseParams([]string{"seed=7", " draws = 500", "family=weibull"})
	require.NoError(t, err)
	assert.Equal(t, method.Params{"seed": 7.0, "draws": 500.0, "family": "weibull"}, params)
	assert.Equal(t, 7, params.Int("seed", 0))

	none, err := parseParams(nil)
	require.NoError(t, err)
	assert.Nil(t, none)

	_, err = parseParams([]string{"seed"})
	assert.Error(t, err)
	_, err = parseParams([]string{"=3"})
	assert.Error(t, err)
}

func TestReadFlags_Roles(t *testing.T) {
	rf := readFlags{entity: "player_id", timeCol: "season", covariates: []string{"age"}}
	roles := rf.roles()
	assert.Equal(t, "player_id", roles.Entity)
	assert.Equal(t, "season", roles.Time)
	assert.Equal(t, []string{"age"}, roles.Covariates)
	assert.True(t, (&readFlags{}).roles().IsZero())
}
