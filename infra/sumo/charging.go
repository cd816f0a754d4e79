package sumo

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/kilianp07/chargesim/core/model"
)

type chargingEvent struct {
	Station string `xml:"chargingStationId,attr"`
	Vehicle string `xml:"vehicle,attr"`
	Energy  string `xml:"totalEnergyChargedIntoVehicle,attr"`
	Begin   string `xml:"chargingBegin,attr"`
	End     string `xml:"chargingEnd,attr"`
}

// ReadChargingEvents streams the chargingEvent elements of a
// chargingstations-output document. Events whose station id cannot be
// decomposed or whose numbers do not parse are skipped and counted.
func ReadChargingEvents(r io.Reader) (events []model.ChargingEvent, skipped int, err error) {
	dec := xml.NewDecoder(r)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return events, skipped, nil
		}
		if err != nil {
			return nil, skipped, fmt.Errorf("read charging events: %w", err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "chargingEvent" {
			continue
		}
		var raw chargingEvent
		if err := dec.DecodeElement(&raw, &se); err != nil {
			return nil, skipped, fmt.Errorf("read charging events: %w", err)
		}
		ev, err := raw.toModel()
		if err != nil {
			skipped++
			continue
		}
		events = append(events, ev)
	}
}

func (c chargingEvent) toModel() (model.ChargingEvent, error) {
	id, err := model.ParseStationID(c.Station)
	if err != nil {
		return model.ChargingEvent{}, err
	}
	ev := model.ChargingEvent{Station: id, Vehicle: c.Vehicle}
	if ev.Energy, err = strconv.ParseFloat(c.Energy, 64); err != nil {
		return model.ChargingEvent{}, err
	}
	if ev.Begin, err = strconv.ParseFloat(c.Begin, 64); err != nil {
		return model.ChargingEvent{}, err
	}
	if ev.End, err = strconv.ParseFloat(c.End, 64); err != nil {
		return model.ChargingEvent{}, err
	}
	return ev, nil
}
