// Package store persists clock settings in a file laid out like a single
// flash sector holding an append-only record log.
package store

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/maximewewer/gps-clock/internal/clock"
	"github.com/maximewewer/gps-clock/pkg/logger"
)

// Layout
const (
	SectorSize = 4096
	PageSize   = 256
	RecordSize = 12
	Magic      = 0xddccc2fe

	recordsPerPage = PageSize / RecordSize
	pages          = SectorSize / PageSize
	Slots          = recordsPerPage * pages

	erased = 0xFF
)

var ErrCorrupt = errors.New("store: sector has unexpected size")

// Store is a settings record log backed by one file
type Store struct {
	path string
	mu   sync.Mutex
}

// Open opens the log, creating an erased sector if the file is missing
func Open(path string) (*Store, error) {
	s := &Store{path: path}

	info, err := os.Stat(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("store: create directory for %s: %w", path, err)
		}
		if err := s.erase(); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, fmt.Errorf("store: stat %s: %w", path, err)
	case info.Size() != SectorSize:
		logger.Warnf("store", "Settings file %s has size %d, erasing", path, info.Size())
		if err := s.erase(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Path returns the backing file
func (s *Store) Path() string {
	return s.path
}

func slotOffset(i int) int64 {
	return int64((i/recordsPerPage)*PageSize + (i%recordsPerPage)*RecordSize)
}

func (s *Store) readSector() ([]byte, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", s.path, err)
	}
	defer f.Close()

	buf := make([]byte, SectorSize)
	if _, err := io.ReadFull(f, buf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return buf, nil
}

func (s *Store) erase() error {
	buf := make([]byte, SectorSize)
	for i := range buf {
		buf[i] = erased
	}
	if err := os.WriteFile(s.path, buf, 0o644); err != nil {
		return fmt.Errorf("store: erase %s: %w", s.path, err)
	}
	return nil
}

func (s *Store) writeSlot(i int, rec []byte) error {
	f, err := os.OpenFile(s.path, os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("store: open %s: %w", s.path, err)
	}
	defer f.Close()

	if _, err := f.WriteAt(rec, slotOffset(i)); err != nil {
		return fmt.Errorf("store: write slot %d: %w", i, err)
	}
	return f.Sync()
}

func encode(st clock.Settings) []byte {
	rec := make([]byte, RecordSize)
	binary.LittleEndian.PutUint32(rec[0:4], Magic)
	binary.LittleEndian.PutUint32(rec[4:8], uint32(int32(st.TimeZoneHours)))
	rec[8] = st.Brightness
	rec[9], rec[10], rec[11] = erased, erased, erased
	return rec
}

// decode returns ok=false for anything that is not a valid record
func decode(rec []byte) (clock.Settings, bool) {
	if binary.LittleEndian.Uint32(rec[0:4]) != Magic {
		return clock.Settings{}, false
	}
	st := clock.Settings{
		TimeZoneHours: int(int32(binary.LittleEndian.Uint32(rec[4:8]))),
		Brightness:    rec[8],
	}
	if st.Validate() != nil {
		return clock.Settings{}, false
	}
	return st, true
}

func isErased(rec []byte) bool {
	for _, b := range rec {
		if b != erased {
			return false
		}
	}
	return true
}

// Load returns the last valid record. found is false when the sector holds
// none, in which case st is the firmware default.
func (s *Store) Load() (st clock.Settings, found bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st = clock.DefaultSettings()
	sector, err := s.readSector()
	if err != nil {
		return st, false, err
	}

	n := 0
	for i := 0; i < Slots; i++ {
		off := slotOffset(i)
		if v, ok := decode(sector[off : off+RecordSize]); ok {
			st = v
			n++
		}
	}
	logger.Debugf("store", "Loaded settings from %d record(s)", n)
	return st, n > 0, nil
}

// Save appends a record in the first erased slot. A corrupt slot or a full
// log erases the sector first.
func (s *Store) Save(st clock.Settings) error {
	if err := st.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sector, err := s.readSector()
	if err != nil {
		return err
	}

	slot := -1
	for i := 0; i < Slots; i++ {
		off := slotOffset(i)
		rec := sector[off : off+RecordSize]
		if isErased(rec) {
			slot = i
			break
		}
		if _, ok := decode(rec); !ok {
			logger.Warnf("store", "Invalid record in slot %d, erasing sector", i)
			break
		}
	}

	if slot < 0 {
		if err := s.erase(); err != nil {
			return err
		}
		slot = 0
	}
	return s.writeSlot(slot, encode(st))
}
