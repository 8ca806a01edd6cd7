package arena

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoSlotTemplate(id TemplateID) *Template {
	return &Template{
		ID:                id,
		Name:              "t",
		MinPlayersPerSide: 1,
		Slots:             []*MapSlot{{MapID: "first"}, {MapID: "second"}},
	}
}

func TestReserveSlot_DeclarationOrder(t *testing.T) {
	tmpl := twoSlotTemplate(1)

	s, err := tmpl.ReserveSlot()
	require.NoError(t, err)
	assert.Equal(t, "first", s.MapID)

	s2, err := tmpl.ReserveSlot()
	require.NoError(t, err)
	assert.Equal(t, "second", s2.MapID)

	_, err = tmpl.ReserveSlot()
	assert.True(t, errors.Is(err, ErrSlotUnavailable))
	assert.Equal(t, 0, tmpl.FreeSlots())

	s.Release()
	s.Release()
	assert.Equal(t, 1, tmpl.FreeSlots())

	again, err := tmpl.ReserveSlot()
	require.NoError(t, err)
	assert.Same(t, s, again)
}

func TestReserveSlot_ScopedPerTemplate(t *testing.T) {
	a := twoSlotTemplate(1)
	b := twoSlotTemplate(2)
	c, err := NewCatalog(a, b)
	require.NoError(t, err)

	_, err = a.ReserveSlot()
	require.NoError(t, err)
	_, err = a.ReserveSlot()
	require.NoError(t, err)

	assert.Equal(t, 2, b.FreeSlots(), "same map ids in another template do not contend")

	assert.True(t, c.Release(1, "second"))
	assert.False(t, c.Release(1, "nope"))
	assert.False(t, c.Release(7, "first"))
	assert.Equal(t, 1, a.FreeSlots())
}

func TestCatalog_Adopt(t *testing.T) {
	old, err := NewCatalog(twoSlotTemplate(1), twoSlotTemplate(2))
	require.NoError(t, err)
	t1, _ := old.Template(1)
	_, _ = t1.ReserveSlot()
	t2, _ := old.Template(2)
	_, _ = t2.ReserveSlot()

	reloaded := &Template{ID: 1, Name: "t", MinPlayersPerSide: 1, Slots: []*MapSlot{{MapID: "second"}, {MapID: "first"}}}
	next, err := NewCatalog(reloaded)
	require.NoError(t, err)
	next.Adopt(old)

	first, ok := reloaded.Slot("first")
	require.True(t, ok)
	assert.True(t, first.IsReserved())
	second, _ := reloaded.Slot("second")
	assert.False(t, second.IsReserved())

	next.Adopt(nil)
}
