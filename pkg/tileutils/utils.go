package tileutils

import (
	"fmt"
	"io"

	"github.com/paulmach/orb/encoding/mvt"
)

// DescribeTile writes a one-line summary per layer of an MVT payload
func DescribeTile(w io.Writer, data []byte) error {
	data, err := Gunzip(data)
	if err != nil {
		return err
	}
	layers, err := mvt.Unmarshal(data)
	if err != nil {
		return err
	}
	for _, l := range layers {
		fmt.Fprintf(w, "%s: %d features (extent %d)\n", l.Name, len(l.Features), l.Extent)
	}
	return nil
}

func floatToString(input []float64) []string {
	out := make([]string, len(input))
	for i := range input {
		out[i] = fmt.Sprintf("%f", input[i])
	}
	return out
}
