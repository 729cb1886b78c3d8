package runtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAlarmReportLastSeenPerField(t *testing.T) {
	r := &AlarmReport{Items: []AlarmItem{
		{Binary: []byte{1}},
		{U4: []uint32{42}},
		{Binary: []byte{2}},
	}}
	assert.Equal(t, byte(2), r.ALCD())
	assert.Equal(t, uint32(42), r.ALID())
	assert.Equal(t, "", r.ALTX())
}

func TestAlarmReportText(t *testing.T) {
	text := "door open"
	later := "vacuum lost"
	r := &AlarmReport{Items: []AlarmItem{
		{Binary: []byte{0x81}},
		{U4: []uint32{7}},
		{ASCII: &text},
		{ASCII: &later},
	}}
	assert.Equal(t, "vacuum lost", r.ALTX())
	assert.True(t, r.Set())

	empty := &AlarmReport{}
	assert.Equal(t, byte(0), empty.ALCD())
	assert.False(t, empty.Set())
}
