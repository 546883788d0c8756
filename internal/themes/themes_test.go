package themes

import (
	"testing"

	"folio/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltin(t *testing.T) {
	c := Builtin()
	list := c.List()
	require.NotEmpty(t, list)

	_, ok := c.Get(DefaultThemeID)
	assert.True(t, ok)

	seenPro := false
	for _, th := range list {
		if th.Plan == models.PlanPro {
			seenPro = true
		} else {
			assert.False(t, seenPro, "free themes must come first")
		}
		assert.NotEmpty(t, th.Palette.Accent, th.ID)
	}
}

func TestCheck(t *testing.T) {
	c := Builtin()

	assert.NoError(t, c.Check("minimal", models.PlanFree))
	assert.NoError(t, c.Check("aurora", models.PlanPro))

	err := c.Check("aurora", models.PlanFree)
	assert.Equal(t, models.CodeForbidden, models.ErrorCode(err))

	err = c.Check("nope", models.PlanPro)
	assert.Equal(t, models.CodeValidation, models.ErrorCode(err))
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse([]byte("themes: [{name: x}]"))
	assert.ErrorContains(t, err, "without id")

	_, err = Parse([]byte("themes: [{id: a}, {id: a}]"))
	assert.ErrorContains(t, err, "duplicate")

	_, err = Parse([]byte("themes: [{id: a, plan: gold}]"))
	assert.ErrorContains(t, err, "unknown plan")

	_, err = Parse([]byte("themes: ["))
	assert.Error(t, err)

	c, err := Parse([]byte("themes: [{id: a}]"))
	require.NoError(t, err)
	th, _ := c.Get("a")
	assert.Equal(t, models.PlanFree, th.Plan)
}
