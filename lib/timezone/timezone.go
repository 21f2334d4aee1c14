package timezone

import "time"

var Location *time.Location

func init() {
	var err error
	Location, err = time.LoadLocation("Europe/Berlin")
	if err != nil {
		panic(err)
	}
}

// force the clock into the booking site's timezone because the dates
// and times it displays are local wall-clock values and our servers
// are not guaranteed to run in Germany
func Now() time.Time {
	return time.Now().In(Location)
}
