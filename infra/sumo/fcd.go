package sumo

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/kilianp07/chargesim/core/model"
	"github.com/kilianp07/chargesim/core/trace"
)

// ReadFCD streams an fcd-output document into b and returns the number of
// vehicle samples read. A missing or unparsable speed counts as stopped.
func ReadFCD(r io.Reader, b *trace.Builder) (int, error) {
	dec := xml.NewDecoder(r)
	var (
		now     float64
		inStep  bool
		samples int
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return samples, nil
		}
		if err != nil {
			return samples, fmt.Errorf("read fcd: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "timestep":
				now, err = strconv.ParseFloat(attr(t, "time"), 64)
				if err != nil {
					return samples, fmt.Errorf("read fcd: timestep time: %w", err)
				}
				inStep = true
			case "vehicle":
				if !inStep {
					continue
				}
				speed, err := strconv.ParseFloat(attr(t, "speed"), 64)
				if err != nil {
					speed = 0
				}
				b.Add(model.TraceSample{Vehicle: attr(t, "id"), Time: now, Lane: attr(t, "lane"), Speed: speed})
				samples++
			}
		case xml.EndElement:
			if t.Name.Local == "timestep" {
				inStep = false
			}
		}
	}
}

func attr(se xml.StartElement, name string) string {
	for _, a := range se.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}
