package export

import (
	"encoding/csv"
	"io"
	"sort"
	"strconv"

	"github.com/kilianp07/chargesim/core/model"
	"github.com/kilianp07/chargesim/core/report"
)

var stationHeader = []string{
	"station_id", "group_id", "sessions", "charged_sessions", "energy_wh",
	"charging_time_s", "utilization", "search_avg_s", "wait_avg_s", "wait_p95_s",
	"queue_avg", "queue_p95",
}

// WriteStationsCSV writes one row per charging point of r, sorted by id.
func WriteStationsCSV(w io.Writer, r *report.Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(stationHeader); err != nil {
		return err
	}
	ids := make([]string, 0, len(r.Stations))
	for id := range r.Stations {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		s := r.Stations[id]
		group := ""
		if sid, err := model.ParseStationID(id); err == nil {
			group = string(sid.Group)
		}
		rec := []string{
			id,
			group,
			strconv.Itoa(s.Sessions),
			strconv.Itoa(s.Charging.Sessions),
			formatFloat(s.Charging.Energy),
			formatFloat(s.Charging.ChargingTime),
			formatFloat(s.Charging.Utilization),
			formatFloat(s.SearchTime.Avg),
			formatFloat(s.WaitTime.Avg),
			formatFloat(s.WaitTime.P95),
			formatFloat(s.QueueLength.Avg),
			formatFloat(s.QueueLength.P95),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
