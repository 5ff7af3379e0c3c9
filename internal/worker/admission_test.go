package worker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAdmissionSingleSlot(t *testing.T) {
	a := NewAdmission()

	assert.True(t, a.TrySubmit("t1"))
	assert.False(t, a.TrySubmit("t2"))
	assert.Equal(t, "t1", a.Current())

	a.Clear("t1")
	assert.Equal(t, "", a.Current())
	assert.True(t, a.TrySubmit("t2"))
}

func TestAdmissionClearIgnoresWrongTaskID(t *testing.T) {
	a := NewAdmission()
	a.TrySubmit("t1")

	a.Clear("not-t1")
	assert.Equal(t, "t1", a.Current())
}
