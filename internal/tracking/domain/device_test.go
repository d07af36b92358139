package tracking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReconcilePowerInstruction(t *testing.T) {
	// Confirmed power-down clears the pending instruction.
	assert.Equal(t, InstructionNone, ReconcilePowerInstruction(InstructionTurnOff, PowerOff))

	// A device still reporting on keeps the instruction pending.
	assert.Equal(t, InstructionTurnOff, ReconcilePowerInstruction(InstructionTurnOff, PowerOn))
	assert.Equal(t, InstructionTurnOff, ReconcilePowerInstruction(InstructionTurnOff, ""))

	// No instruction stays no instruction regardless of status.
	assert.Equal(t, InstructionNone, ReconcilePowerInstruction(InstructionNone, PowerOff))
	assert.Equal(t, InstructionNone, ReconcilePowerInstruction(InstructionNone, PowerOn))
}

func TestNormalizePowerStatus(t *testing.T) {
	on := PowerOn
	off := PowerOff
	junk := "rebooting"

	assert.Equal(t, &on, NormalizePowerStatus(&on))
	assert.Equal(t, &off, NormalizePowerStatus(&off))
	assert.Nil(t, NormalizePowerStatus(&junk))
	assert.Nil(t, NormalizePowerStatus(nil))
}

func TestPointValidate(t *testing.T) {
	lat := 50.1
	lon := 14.4
	badLat := 91.0
	badLon := -181.0

	assert.NoError(t, Point{Lat: &lat, Lon: &lon}.Validate())
	assert.ErrorIs(t, Point{Lat: &lat}.Validate(), ErrInvalidPayload)
	assert.ErrorIs(t, Point{Lon: &lon}.Validate(), ErrInvalidPayload)
	assert.ErrorIs(t, Point{Lat: &badLat, Lon: &lon}.Validate(), ErrInvalidPayload)
	assert.ErrorIs(t, Point{Lat: &lat, Lon: &badLon}.Validate(), ErrInvalidPayload)
}
