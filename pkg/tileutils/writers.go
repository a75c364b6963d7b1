package tileutils

import (
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/flightaware/mapcraft-exporter/pkg/logger"

	"github.com/twpayne/go-mbtiles"
)

const (
	mbTilesInsertRetries = 5
	mbTilesBatchSize     = 10
)

// TileWriter abstracts how to write out tiles, allowing for different formats and implementations
type TileWriter interface {
	// New creates a new TileWriter for this type
	New() (TileWriter, func(), error)
	// Write commits a tile with tileData at the Z/X/Y coordinate
	Write(z, x, y int, tileData []byte) error
}

// TileBulkWriter extends the TileWriter interface to include the ability to write out tiles in bulk
type TileBulkWriter interface {
	// BulkWrite commits a slice of tiles
	BulkWrite(data []mbtiles.TileData) error
}

// FileWriter writes tiles out to a directory structure.
// The directories are organized under the Path provided,
// like Path/{z}/{x}/{y}.{Ext}; Ext defaults to mvt.
type FileWriter struct {
	Path string
	Ext  string
}

func (fw *FileWriter) Write(z, x, y int, tileData []byte) error {
	basePath := path.Join(fw.Path, strconv.Itoa(z), strconv.Itoa(x))
	err := os.MkdirAll(basePath, 0755)
	if err != nil {
		return fmt.Errorf("error making directory for output (%s): %w", basePath, err)
	}
	return os.WriteFile(fw.TilePath(z, x, y), tileData, 0644)
}

// TilePath returns the file a tile is written to
func (fw *FileWriter) TilePath(z, x, y int) string {
	ext := strings.TrimPrefix(fw.Ext, ".")
	if ext == "" {
		ext = "mvt"
	}
	return path.Join(fw.Path, strconv.Itoa(z), strconv.Itoa(x), fmt.Sprintf("%d.%s", y, ext))
}

func (fw *FileWriter) New() (TileWriter, func(), error) {
	return fw, func() {}, nil
}

// DummyWriter doesn't write anything. It logs info about the tile to be written.
type DummyWriter struct{}

func (fw *DummyWriter) Write(z, x, y int, tileData []byte) error {
	logger.L().Info("archive_tile", "tile", fmt.Sprintf("%d/%d/%d", z, x, y), "bytes", len(tileData))
	return nil
}

func (fw *DummyWriter) New() (TileWriter, func(), error) {
	return fw, func() {}, nil
}

// MbTilesWriter outputs tiles to a mbtiles file.
//
// Parameters:
//   - Filename: the output file to be written
//   - Writer: an instance of mbtiles.Writer to be used when writing the tiles
type MbTilesWriter struct {
	Filename string
	Writer   *mbtiles.Writer
}

func (w *MbTilesWriter) Write(z, x, y int, tileData []byte) error {
	var err error
	for i := 0; i < mbTilesInsertRetries; i++ {
		err = w.Writer.InsertTile(z, x, y, tileData)
		if err == nil {
			return nil
		}
		logger.L().Warn("mbtiles_insert_retry", "attempt", i, "err", err)
		time.Sleep(time.Duration(100) * time.Millisecond)
	}
	return err
}

func (w *MbTilesWriter) BulkWrite(data []mbtiles.TileData) error {
	var err error
	for i := 0; i < mbTilesInsertRetries; i++ {
		err = w.Writer.BulkInsertTile(data)
		if err == nil {
			return nil
		}
		logger.L().Warn("mbtiles_bulk_insert_retry", "attempt", i, "err", err)
		time.Sleep(time.Duration(100) * time.Millisecond)
	}
	return err
}

func (w *MbTilesWriter) WriteMetadata(name, value string) error {
	return w.Writer.InsertMetadata(name, value)
}

func (w *MbTilesWriter) BulkWriteMetadata(meta MbTilesMetadata) error {
	for name, value := range meta {
		if err := w.WriteMetadata(name, value); err != nil {
			return err
		}
	}
	return nil
}

func (w *MbTilesWriter) New() (TileWriter, func(), error) {
	// sqlite3 relies on you to create the file first
	if err := os.MkdirAll(path.Dir(w.Filename), 0755); err != nil {
		return nil, nil, err
	}
	if _, err := os.Create(w.Filename); err != nil {
		return nil, nil, err
	}
	// create a mbtiles writer, which is a wrapper around sqlite3
	_writer, err := mbtiles.NewWriter(w.Filename)
	if err != nil {
		return nil, nil, fmt.Errorf("error creating writer: %w", err)
	}
	if err := _writer.CreateTiles(); err != nil {
		return nil, nil, fmt.Errorf("error creating tiles table: %w", err)
	}
	if err := _writer.CreateMetadata(); err != nil {
		return nil, nil, fmt.Errorf("error creating metadata table: %w", err)
	}
	// drop the tiles index while inserting, it is rebuilt on close
	if err := _writer.DeleteTileIndex(); err != nil {
		return nil, nil, fmt.Errorf("error deleting tile index: %w", err)
	}
	if err := _writer.SetOptimizations(mbtiles.Optimizations{
		JournalModeMemory: true,
	}); err != nil {
		return nil, nil, fmt.Errorf("error setting optimizations: %w", err)
	}

	w.Writer = _writer
	return w,
		func() {
			w.Writer.CreateTileIndex()
			w.Writer.Close()
		},
		nil
}
