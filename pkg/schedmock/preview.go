package schedmock

import (
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser accepts 5 or 6 field expressions and descriptors (@hourly, @every 5m).
var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// previewCron lists the next n activations of expr after from.
// Expressions the parser rejects give nil; registration never depends on this.
func previewCron(expr string, from time.Time, loc *time.Location, n int) []time.Time {
	if n <= 0 {
		return nil
	}
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return nil
	}
	if loc != nil {
		from = from.In(loc)
	}
	out := make([]time.Time, 0, n)
	t := from
	for i := 0; i < n; i++ {
		t = sched.Next(t)
		if t.IsZero() {
			break
		}
		out = append(out, t)
	}
	return out
}
