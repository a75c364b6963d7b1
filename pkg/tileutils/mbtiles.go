package tileutils

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/twpayne/go-mbtiles"
)

type MbTilesMetadata map[string]string

type MbTilesFormat string

const (
	MbTilesFormatPbf  MbTilesFormat = "pbf"
	MbTilesFormatJSON MbTilesFormat = "json"
)

// Ext is the file extension used for tiles of this format in a directory archive
func (f MbTilesFormat) Ext() string {
	if f == MbTilesFormatJSON {
		return "json"
	}
	return "mvt"
}

type CreateMetadataOptions struct {
	Filename string
	Version  string
	Format   MbTilesFormat
}

// CreateMetadata generates the (name,value) metadata pairs for .mbtiles files.
// Since name is required, it falls back to the filename if not provided.
// format is also required, so it falls back to pbf if not provided.
func CreateMetadata(tj *TileJSON, opts CreateMetadataOptions) MbTilesMetadata {
	format := opts.Format
	if string(format) == "" {
		format = MbTilesFormatPbf
	}
	meta := MbTilesMetadata{
		"name":   tj.Name,
		"format": string(format),
		"type":   "overlay",
	}
	if tj.Name == "" && opts.Filename != "" {
		meta["name"] = opts.Filename
	}
	if tj.Description != "" {
		meta["description"] = tj.Description
	}
	if tj.Attribution != "" {
		meta["attribution"] = tj.Attribution
	}
	if tj.Version != "" {
		meta["version"] = tj.Version
	}
	if opts.Version != "" {
		meta["version"] = opts.Version
	}
	if tj.MinZoom != -1 {
		meta["minzoom"] = strconv.Itoa(tj.MinZoom)
	}
	if tj.MaxZoom != -1 {
		meta["maxzoom"] = strconv.Itoa(tj.MaxZoom)
	}
	if tj.Bounds != nil {
		meta["bounds"] = strings.Join(floatToString(tj.Bounds), ",")
	}
	if tj.Center != nil {
		center := ""
		if len(tj.Center) == 2 || len(tj.Center) == 3 {
			center = strings.Join(floatToString(tj.Center[:2]), ",")
		}
		if len(tj.Center) == 3 {
			center += fmt.Sprintf(",%d", int(tj.Center[2]))
		}
		meta["center"] = center
	}

	// the json field is required for vector formats
	metaJSONField := CreateMetadataJSON(tj)
	if metaJSONBytes, err := json.Marshal(metaJSONField); err == nil {
		meta["json"] = string(metaJSONBytes)
	}

	return meta
}

// CreateMetadataJSON generates a mbtiles MetadataJson object based on the TileJSON input
func CreateMetadataJSON(tj *TileJSON) *mbtiles.MetadataJson {
	return &mbtiles.MetadataJson{
		VectorLayers: extractLayersFromTileJSON(tj),
	}
}

func extractLayersFromTileJSON(tj *TileJSON) []mbtiles.MetadataJsonVectorLayer {
	layers := make([]mbtiles.MetadataJsonVectorLayer, 0, len(tj.VectorLayers))
	for _, layer := range tj.VectorLayers {
		l := layer // create local variable copy
		minzoom, maxzoom := l.MinZoom, l.MaxZoom
		if minzoom < 0 {
			minzoom = 0
		}
		if maxzoom < 0 {
			maxzoom = 22
		}
		fields := l.Fields
		if fields == nil {
			fields = map[string]string{}
		}
		layers = append(layers, mbtiles.MetadataJsonVectorLayer{
			ID:      &l.ID,
			Fields:  fields,
			MinZoom: &minzoom,
			MaxZoom: &maxzoom,
		})
	}
	return layers
}
