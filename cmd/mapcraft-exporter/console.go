package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	apperrors "github.com/flightaware/mapcraft-exporter/pkg/errors"
	"github.com/flightaware/mapcraft-exporter/pkg/geo"
	"github.com/flightaware/mapcraft-exporter/pkg/pipeline"
	"github.com/flightaware/mapcraft-exporter/pkg/preview"
	"github.com/flightaware/mapcraft-exporter/pkg/style"
	"github.com/flightaware/mapcraft-exporter/pkg/tileutils"

	"github.com/paulmach/orb"
	"gopkg.in/yaml.v3"
)

const consoleHelp = `commands:
  select <lng,lat> <lng,lat>               select the area between two corners
  tiles <file>                             select the z/x/y tiles listed in file
  road <mainkey> <subkey> <weight|unset>   reassign or unset a road rule
  region <mainkey> <subkey> <blockState|unset> [#color]
                                           reassign or unset a region rule
  show                                     entity counts of the current selection
  rules                                    rule edits made this session, as YAML
  save-rules <file>                        write the rule edits to file
  load-rules <file>                        apply rule edits from file
  preview <file>                           draw the current selection to a PNG
  inspect <file>                           list the layers of a raw MVT tile
  export                                   hand the current selection to the sink
  quit
`

// console reads editing commands line by line. A failing command is
// reported and the session stays usable.
type console struct {
	session *pipeline.Session
	out     io.Writer
	preview string
}

func (c *console) loop(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	fmt.Fprint(c.out, "> ")
	for scanner.Scan() {
		quit, err := c.exec(ctx, scanner.Text())
		if err != nil {
			fmt.Fprintf(c.out, "error (%s): %v\n", apperrors.GetType(err), err)
		}
		if quit || ctx.Err() != nil {
			return nil
		}
		fmt.Fprint(c.out, "> ")
	}
	return scanner.Err()
}

func (c *console) exec(ctx context.Context, line string) (quit bool, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
		return false, nil
	}
	cmd, params := fields[0], fields[1:]
	switch cmd {
	case "quit", "exit":
		return true, nil
	case "help":
		fmt.Fprint(c.out, consoleHelp)
	case "select":
		if len(params) != 2 {
			return false, usage("select <lng,lat> <lng,lat>")
		}
		c1, err := parsePoint(params[0])
		if err != nil {
			return false, err
		}
		c2, err := parsePoint(params[1])
		if err != nil {
			return false, err
		}
		if _, err := c.session.SelectArea(ctx, c1, c2); err != nil {
			return false, err
		}
		c.show()
	case "tiles":
		if len(params) != 1 {
			return false, usage("tiles <file>")
		}
		tiles, err := tileutils.TilesFromFile(params[0])
		if err != nil {
			return false, err
		}
		if _, err := c.session.SelectTiles(ctx, tiles); err != nil {
			return false, err
		}
		c.show()
	case "road", "region":
		return false, c.setRule(style.Domain(cmd), params)
	case "show":
		c.show()
	case "rules":
		return false, yaml.NewEncoder(c.out).Encode(c.session.Rules().Overrides())
	case "save-rules":
		if len(params) != 1 {
			return false, usage("save-rules <file>")
		}
		return false, style.SaveOverrides(params[0], c.session.Rules().Overrides())
	case "load-rules":
		if len(params) != 1 {
			return false, usage("load-rules <file>")
		}
		o, err := style.LoadOverrides(params[0])
		if err != nil {
			return false, err
		}
		_, err = c.session.ApplyOverrides(o)
		return false, err
	case "preview":
		path := c.preview
		if len(params) == 1 {
			path = params[0]
		}
		if path == "" {
			return false, usage("preview <file>")
		}
		snap := c.session.Snapshot()
		if snap.Elements == nil {
			return false, apperrors.SelectionEmpty()
		}
		anchor := snap.Anchor
		if err := preview.SavePNG(path, snap.Elements, previewOptions(&anchor)); err != nil {
			return false, err
		}
		fmt.Fprintf(c.out, "wrote %s\n", path)
	case "inspect":
		if len(params) != 1 {
			return false, usage("inspect <file>")
		}
		data, err := os.ReadFile(params[0])
		if err != nil {
			return false, err
		}
		return false, tileutils.DescribeTile(c.out, data)
	case "export":
		id, err := c.session.Export(ctx)
		if err != nil {
			return false, err
		}
		fmt.Fprintf(c.out, "exported %s\n", id)
	default:
		return false, apperrors.Invalidf("unknown command %q, try help", cmd)
	}
	return false, nil
}

// previewOptions draws in web mercator so the image keeps its ground aspect
func previewOptions(anchor *orb.Point) preview.Options {
	return preview.Options{Anchor: anchor, Labels: true, Projector: geo.WebMercator{}}
}

func usage(s string) error {
	return apperrors.Invalidf("usage: %s", s)
}

// setRule handles "road <main> <sub> <weight|unset>" and
// "region <main> <sub> <blockState|unset> [color]"
func (c *console) setRule(domain style.Domain, params []string) error {
	if len(params) < 3 {
		return usage(string(domain) + " <mainkey> <subkey> <value|unset>")
	}
	mainkey, err := strconv.Atoi(params[0])
	if err != nil {
		return apperrors.Invalidf("invalid mainkey %q", params[0])
	}
	subkey, err := strconv.Atoi(params[1])
	if err != nil {
		return apperrors.Invalidf("invalid subkey %q", params[1])
	}
	var attrs style.Attributes
	if params[2] != "unset" {
		if attrs, err = parseAttributes(domain, params[2:]); err != nil {
			return err
		}
	}
	if _, err := c.session.SetRule(domain, mainkey, subkey, attrs); err != nil {
		return err
	}
	c.show()
	return nil
}

func parseAttributes(domain style.Domain, values []string) (style.Attributes, error) {
	switch domain {
	case style.DomainRoad:
		if len(values) != 1 {
			return nil, usage("road <mainkey> <subkey> <weight>")
		}
		w, err := strconv.Atoi(values[0])
		if err != nil {
			return nil, apperrors.Invalidf("invalid weight %q", values[0])
		}
		return style.RoadStyle{Weight: w}, nil
	case style.DomainRegion:
		if len(values) > 2 {
			return nil, usage("region <mainkey> <subkey> <blockState> [#color]")
		}
		s := style.RegionStyle{BlockState: values[0]}
		if len(values) == 2 {
			if _, err := preview.ParseColor(values[1]); err != nil {
				return nil, apperrors.Invalidf("%v", err)
			}
			s.PreviewColor = values[1]
		}
		return s, nil
	}
	return nil, apperrors.Invalidf("unknown rule domain %q", domain)
}

func (c *console) show() {
	snap := c.session.Snapshot()
	if snap.Elements == nil {
		fmt.Fprintln(c.out, "nothing selected")
		return
	}
	counts := snap.Elements.Counts()
	kinds := make([]string, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	parts := make([]string, 0, len(kinds))
	for _, k := range kinds {
		parts = append(parts, fmt.Sprintf("%s=%d", k, counts[k]))
	}
	fmt.Fprintf(c.out, "gen %d, %d tiles, anchor %.6f,%.6f: %s\n",
		snap.Generation, len(snap.Tiles), snap.Anchor[0], snap.Anchor[1], strings.Join(parts, " "))
}
