package state

import (
	"errors"
	"fmt"
	"os"

	json "github.com/goccy/go-json"

	"tokcache/internal/models"
	"tokcache/internal/providers"
	"tokcache/internal/state/interfaces"
)

type SnapshotStore interface {
	Snapshot() *models.FetchStateSnapshot
	Restore(snap *models.FetchStateSnapshot)
}

type FileManager struct {
	store      SnapshotStore
	compressor interfaces.CompressorInterface
	logger     providers.Logger
}

func NewFileManager(compressor interfaces.CompressorInterface, store SnapshotStore, logger providers.Logger) *FileManager {
	return &FileManager{
		compressor: compressor,
		store:      store,
		logger:     logger,
	}
}

// ProvideFileManager also returns a cleanup that releases the compressor.
func ProvideFileManager(compressor interfaces.CompressorInterface, store SnapshotStore, logger providers.Logger) (*FileManager, func()) {
	fm := NewFileManager(compressor, store, logger)
	return fm, fm.Close
}

func (f *FileManager) SaveToFile(fileName string) error {
	jsonData, err := json.Marshal(f.store.Snapshot())
	if err != nil {
		return err
	}
	data, err := f.compressor.Compress(jsonData)
	if err != nil {
		return err
	}

	tmpFile := fileName + ".tmp"
	file, err := os.Create(tmpFile)
	if err != nil {
		return err
	}

	if _, err = file.Write(data); err != nil {
		file.Close()
		os.Remove(tmpFile)
		return err
	}

	if err = file.Sync(); err != nil {
		file.Close()
		os.Remove(tmpFile)
		return err
	}

	if err = file.Close(); err != nil {
		os.Remove(tmpFile)
		return err
	}

	return os.Rename(tmpFile, fileName)
}

func (f *FileManager) Close() {
	f.compressor.Close()
}

// LoadFromFile restores the snapshot in fileName. A missing file is not an
// error. Plain JSON is accepted too, so a hand-edited state file loads.
func (f *FileManager) LoadFromFile(fileName string) error {
	data, err := os.ReadFile(fileName)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}

	payload, err := f.compressor.Decompress(data)
	if err != nil {
		f.logger.Warnf(providers.TypeApp, "State file %s is not compressed, reading it as plain JSON", fileName)
		payload = data
	}

	var snap models.FetchStateSnapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return fmt.Errorf("decode state file %s: %w", fileName, err)
	}
	if snap.Version > models.FetchStateSnapshotVersion {
		return fmt.Errorf("state file %s has unsupported version %d", fileName, snap.Version)
	}

	f.store.Restore(&snap)
	f.logger.Infof(providers.TypeApp, "Restored %d fetch clocks from %s", len(snap.Clocks), fileName)
	return nil
}
