package store

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/maximewewer/gps-clock/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "settings.bin"))
	require.NoError(t, err)
	return s
}

func readFile(t *testing.T, s *Store) []byte {
	t.Helper()
	b, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	return b
}

func TestLayout(t *testing.T) {
	assert.Equal(t, 21, recordsPerPage)
	assert.Equal(t, 336, Slots)
	assert.Equal(t, int64(0), slotOffset(0))
	assert.Equal(t, int64(240), slotOffset(20))
	assert.Equal(t, int64(256), slotOffset(21))

	// No record straddles a page boundary
	for i := 0; i < Slots; i++ {
		off := slotOffset(i)
		assert.Equal(t, off/PageSize, (off+RecordSize-1)/PageSize, "slot %d", i)
	}
}

func TestOpen_CreatesErasedSector(t *testing.T) {
	s := openTemp(t)

	b := readFile(t, s)
	require.Len(t, b, SectorSize)
	for _, v := range b {
		require.Equal(t, byte(0xFF), v)
	}

	st, found, err := s.Load()
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, clock.Settings{TimeZoneHours: 0, Brightness: 64}, st)
}

func TestOpen_WrongSizeIsErased(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.bin")
	require.NoError(t, os.WriteFile(path, []byte("short"), 0o644))

	s, err := Open(path)
	require.NoError(t, err)

	assert.Len(t, readFile(t, s), SectorSize)
}

func TestSaveLoad_LastRecordWins(t *testing.T) {
	s := openTemp(t)

	require.NoError(t, s.Save(clock.Settings{TimeZoneHours: 1, Brightness: 10}))
	require.NoError(t, s.Save(clock.Settings{TimeZoneHours: -7, Brightness: 127}))

	st, found, err := s.Load()
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, clock.Settings{TimeZoneHours: -7, Brightness: 127}, st)

	b := readFile(t, s)
	assert.Equal(t, uint32(Magic), binary.LittleEndian.Uint32(b[0:4]))
	assert.Equal(t, int32(1), int32(binary.LittleEndian.Uint32(b[4:8])))
	assert.Equal(t, byte(10), b[8])
	assert.Equal(t, []byte{0xFF, 0xFF, 0xFF}, b[9:12])
	assert.Equal(t, int32(-7), int32(binary.LittleEndian.Uint32(b[16:20])))
}

func TestSave_RejectsInvalidSettings(t *testing.T) {
	s := openTemp(t)

	assert.ErrorIs(t, s.Save(clock.Settings{Brightness: 200}), clock.ErrSettings)
	assert.Equal(t, byte(0xFF), readFile(t, s)[0])
}

func TestSave_FullLogErases(t *testing.T) {
	s := openTemp(t)

	for i := 0; i < Slots; i++ {
		require.NoError(t, s.Save(clock.Settings{TimeZoneHours: i%27 - 12, Brightness: 1}))
	}
	b := readFile(t, s)
	last := slotOffset(Slots - 1)
	assert.Equal(t, uint32(Magic), binary.LittleEndian.Uint32(b[last:last+4]))

	require.NoError(t, s.Save(clock.Settings{TimeZoneHours: 3, Brightness: 99}))

	b = readFile(t, s)
	assert.Equal(t, uint32(Magic), binary.LittleEndian.Uint32(b[0:4]))
	assert.Equal(t, byte(0xFF), b[RecordSize])
	st, found, err := s.Load()
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, clock.Settings{TimeZoneHours: 3, Brightness: 99}, st)
}

func TestSave_CorruptSlotErases(t *testing.T) {
	s := openTemp(t)
	require.NoError(t, s.Save(clock.Settings{TimeZoneHours: 2, Brightness: 50}))

	// Half-written record in slot 1
	b := readFile(t, s)
	b[RecordSize] = 0x00
	require.NoError(t, os.WriteFile(s.Path(), b, 0o644))

	st, found, err := s.Load()
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, clock.Settings{TimeZoneHours: 2, Brightness: 50}, st)

	require.NoError(t, s.Save(clock.Settings{TimeZoneHours: 4, Brightness: 60}))

	b = readFile(t, s)
	assert.Equal(t, byte(0xFF), b[RecordSize])
	assert.Equal(t, int32(4), int32(binary.LittleEndian.Uint32(b[4:8])))
}

func TestLoad_SkipsRecordsWithOutOfRangeValues(t *testing.T) {
	s := openTemp(t)
	require.NoError(t, s.Save(clock.Settings{TimeZoneHours: 5, Brightness: 5}))

	b := readFile(t, s)
	bad := encode(clock.Settings{})
	binary.LittleEndian.PutUint32(bad[4:8], uint32(100))
	copy(b[RecordSize:], bad)
	require.NoError(t, os.WriteFile(s.Path(), b, 0o644))

	st, found, err := s.Load()
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, clock.Settings{TimeZoneHours: 5, Brightness: 5}, st)
}

func TestLoad_MissingFile(t *testing.T) {
	s := openTemp(t)
	require.NoError(t, os.Remove(s.Path()))

	st, found, err := s.Load()

	assert.Error(t, err)
	assert.False(t, found)
	assert.Equal(t, clock.DefaultSettings(), st)
}
