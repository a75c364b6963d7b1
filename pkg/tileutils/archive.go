package tileutils

import (
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/twpayne/go-mbtiles"
)

// Archiver stores raw tile payloads. Writers that support bulk inserts
// receive batches of mbTilesBatchSize tiles.
type Archiver struct {
	Writer     TileWriter
	BulkWriter TileBulkWriter
	Compress   bool
	BatchSize  int
}

// NewArchiver creates the archive for output:
// "-" logs tiles without writing them, a name ending in .mbtiles selects an
// mbtiles file (gzip-compressed tiles), anything else a directory tree with a
// tiles.json descriptor.
func NewArchiver(output string, tj *TileJSON, opts CreateMetadataOptions) (archiver *Archiver, close func(), err error) {
	close = func() {}
	switch {
	case output == "":
		return nil, close, fmt.Errorf("no archive output given")
	case output == "-":
		return &Archiver{Writer: &DummyWriter{}}, close, nil
	case strings.HasSuffix(output, ".mbtiles"):
		mbWriter := &MbTilesWriter{Filename: output}
		writer, closeWriter, err := mbWriter.New()
		if err != nil {
			return nil, close, err
		}
		meta := CreateMetadata(tj, opts)
		if err := mbWriter.BulkWriteMetadata(meta); err != nil {
			closeWriter()
			return nil, close, fmt.Errorf("error writing metadata: %w", err)
		}
		return &Archiver{
			Writer:     writer,
			BulkWriter: mbWriter,
			Compress:   true,
			BatchSize:  mbTilesBatchSize,
		}, closeWriter, nil
	}
	if err := os.MkdirAll(output, 0755); err != nil {
		return nil, close, fmt.Errorf("error making directory for output (%s): %w", output, err)
	}
	fw := &FileWriter{Path: output, Ext: opts.Format.Ext()}
	writer, closeWriter, err := fw.New()
	if err != nil {
		return nil, close, err
	}
	if err := WriteTileJSON(path.Join(output, "tiles.json"), tj); err != nil {
		return nil, close, fmt.Errorf("error writing tilejson: %w", err)
	}
	return &Archiver{Writer: writer}, closeWriter, nil
}

// Store writes every tile. With a bulk writer, full batches are bulk inserted
// and the remainder is written tile by tile.
func (a *Archiver) Store(tiles []mbtiles.TileData) error {
	batchSize := a.BatchSize
	if batchSize <= 0 {
		batchSize = mbTilesBatchSize
	}
	tileCache := make([]mbtiles.TileData, 0, batchSize)
	for _, t := range tiles {
		data := t.Data
		if a.Compress && !IsGzipped(data) {
			compressed, err := Gzip(data)
			if err != nil {
				return fmt.Errorf("error compressing tile (%d, %d, %d): %w", t.Z, t.X, t.Y, err)
			}
			data = compressed
		}
		if a.BulkWriter == nil {
			if err := a.Writer.Write(t.Z, t.X, t.Y, data); err != nil {
				return fmt.Errorf("error writing tile (%d, %d, %d): %w", t.Z, t.X, t.Y, err)
			}
			continue
		}
		tileCache = append(tileCache, mbtiles.TileData{Z: t.Z, X: t.X, Y: t.Y, Data: data})
		if len(tileCache) == batchSize {
			if err := a.BulkWriter.BulkWrite(tileCache); err != nil {
				return fmt.Errorf("error writing tiles: %w", err)
			}
			tileCache = tileCache[:0]
		}
	}
	// a trailing partial batch goes through the single tile writer
	for _, t := range tileCache {
		if err := a.Writer.Write(t.Z, t.X, t.Y, t.Data); err != nil {
			return fmt.Errorf("error writing tile (%d, %d, %d): %w", t.Z, t.X, t.Y, err)
		}
	}
	return nil
}
