package prompt

import "time"

// TimeInfo carries the current time in the assistant's reference timezone,
// both human-readable and machine-parseable.
type TimeInfo struct {
	HumanShort string `json:"human_short"`
	ISO        string `json:"iso"`
	Zone       string `json:"zone"`
}

// CurrentTime resolves the zone and formats the current moment. Callers
// treat an error as "omit the time block", never as a turn failure.
func CurrentTime(zone string, now func() time.Time) (TimeInfo, error) {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return TimeInfo{}, err
	}
	t := now().In(loc)
	return TimeInfo{
		HumanShort: t.Format("Mon 02 Jan 2006, 15:04"),
		ISO:        t.Format(time.RFC3339),
		Zone:       zone,
	}, nil
}
