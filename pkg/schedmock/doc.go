// Package schedmock is a recording substitute for an agent's scheduler.
//
// A Harness connects agents (see package agent) and plugs a Wrapper into
// each agent core. The agent schedules periodic, cron and one-shot callbacks
// exactly as it would in production; the wrapper stores each call as an
// Event instead of arming a timer. Tests then:
//
//   - list what was scheduled (ScheduledEvents, PeriodicEvents, ...)
//   - wait for a registration with VerifyEventScheduled
//   - fire a stored callback with TriggerScheduledEvent, or in the
//     background with RunScheduledEventAsync
//
// Nothing ever fires on its own. Typed queries return active events only;
// ScheduledEvents also returns cancelled ones.
//
//	h, _ := schedmock.New(config.Default())
//	defer h.Close(ctx)
//	h.Start(ctx, driver, "pubsub")
//	ev := h.PeriodicEvents(driver)[0]
//	res, err := h.TriggerScheduledEvent(ctx, ev)
package schedmock
