package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateSteps(t *testing.T) {
	assert.NoError(t, validateSteps(nil))
	assert.NoError(t, validateSteps([]string{"tg_fetch", "render"}))

	err := validateSteps([]string{"render", "tg_fetc"})
	if assert.Error(t, err) {
		assert.Contains(t, err.Error(), `"tg_fetc"`)
	}
}
