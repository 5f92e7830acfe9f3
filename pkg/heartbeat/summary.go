package heartbeat

import "math"

// Summary condenses a daily series for display.
type Summary struct {
	// Days is the number of days with at least one device.
	Days int `json:"days"`
	// Average is the rounded mean of devices per reported day.
	Average int64 `json:"average"`
	Peak    int64 `json:"peak"`
	// Latest is the count of the newest day in the series.
	Latest int64 `json:"latest"`
}

// Summarize computes a Summary of a newest-first series.
func Summarize(series []DailyCount) Summary {
	if len(series) == 0 {
		return Summary{}
	}

	var total int64
	s := Summary{Days: len(series), Latest: series[0].Devices}
	for _, day := range series {
		total += day.Devices
		if day.Devices > s.Peak {
			s.Peak = day.Devices
		}
	}
	s.Average = int64(math.Round(float64(total) / float64(len(series))))
	return s
}
