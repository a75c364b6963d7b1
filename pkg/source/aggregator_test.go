package source

import (
	"context"
	"errors"
	"testing"

	apperrors "github.com/flightaware/mapcraft-exporter/pkg/errors"
	"github.com/flightaware/mapcraft-exporter/pkg/tileutils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-mbtiles"
)

type fakeFetcher struct {
	batch RawBatch
	err   error
	req   Request
}

func (f *fakeFetcher) Fetch(ctx context.Context, req Request) (RawBatch, error) {
	f.req = req
	return f.batch, f.err
}

type fakeDecoder struct {
	err error
}

func (d fakeDecoder) Decode(batch RawBatch) ([]Tile, error) {
	if d.err != nil {
		return nil, d.err
	}
	tiles := make([]Tile, len(batch))
	for i, raw := range batch {
		tiles[i] = Tile{Coords: raw.Coords}
	}
	return tiles, nil
}

type recordingWriter struct {
	tiles []mbtiles.TileData
	err   error
}

func (w *recordingWriter) New() (tileutils.TileWriter, func(), error) { return w, func() {}, nil }

func (w *recordingWriter) Write(z, x, y int, data []byte) error {
	w.tiles = append(w.tiles, mbtiles.TileData{Z: z, X: x, Y: y, Data: data})
	return w.err
}

var batchOfTwo = RawBatch{
	{Coords: tileutils.TileCoords{Z: 17, X: 2, Y: 1}, Data: []byte("b")},
	{Coords: tileutils.TileCoords{Z: 17, X: 1, Y: 1}, Data: []byte("a")},
}

func TestAggregatorFetch(t *testing.T) {
	fetcher := &fakeFetcher{batch: batchOfTwo}
	writer := &recordingWriter{}
	agg := &Aggregator{
		Fetcher:  fetcher,
		Decoder:  fakeDecoder{},
		Endpoint: "https://example.com",
		Key:      "k",
		Archive:  &tileutils.Archiver{Writer: writer},
	}
	requested := []tileutils.TileCoords{{Z: 17, X: 1, Y: 1}, {Z: 17, X: 2, Y: 1}}
	tiles, err := agg.Fetch(context.Background(), requested, 17)
	require.Nil(t, err)
	require.Len(t, tiles, 2)
	assert.Equal(t, batchOfTwo[0].Coords, tiles[0].Coords)
	assert.Equal(t, batchOfTwo[1].Coords, tiles[1].Coords)

	assert.Equal(t, AllLayerKinds, fetcher.req.Kinds)
	assert.Equal(t, requested, fetcher.req.Tiles)
	assert.Equal(t, 17, fetcher.req.Zoom)
	assert.Len(t, writer.tiles, 2)
}

func TestAggregatorFailures(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name    string
		fetcher Fetcher
		decoder Decoder
	}{
		{"fetch", &fakeFetcher{err: boom}, fakeDecoder{}},
		{"decode", &fakeFetcher{batch: batchOfTwo}, fakeDecoder{err: boom}},
	}
	for _, tt := range tests {
		test := tt
		t.Run(test.name, func(t *testing.T) {
			writer := &recordingWriter{}
			agg := &Aggregator{Fetcher: test.fetcher, Decoder: test.decoder, Archive: &tileutils.Archiver{Writer: writer}}
			tiles, err := agg.Fetch(context.Background(), []tileutils.TileCoords{{Z: 1}}, 1)
			require.NotNil(t, err)
			assert.Nil(t, tiles)
			assert.ErrorIs(t, err, boom)
			assert.Equal(t, apperrors.ErrorTypeFetch, apperrors.GetType(err))
			assert.Empty(t, writer.tiles)
		})
	}
}

func TestAggregatorArchiveErrorDoesNotFailRun(t *testing.T) {
	agg := &Aggregator{
		Fetcher: &fakeFetcher{batch: batchOfTwo},
		Decoder: fakeDecoder{},
		Archive: &tileutils.Archiver{Writer: &recordingWriter{err: errors.New("disk full")}},
	}
	tiles, err := agg.Fetch(context.Background(), nil, 17)
	require.Nil(t, err)
	assert.Len(t, tiles, 2)
}

func TestAggregatorUnconfigured(t *testing.T) {
	_, err := (&Aggregator{}).Fetch(context.Background(), nil, 1)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeFetch))
}
