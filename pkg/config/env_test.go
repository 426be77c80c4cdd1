package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProductionLike(t *testing.T) {
	for env, want := range map[string]bool{
		"production":  true,
		"STAGING":     true,
		"development": false,
		"test":        false,
		"":            false,
	} {
		assert.Equal(t, want, ProductionLike(env), env)
	}
}
