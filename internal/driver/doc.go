// Package driver runs reconciliation passes at a fixed cadence.
//
// Each iteration records the start time, runs one pass, and sleeps for the
// remainder of the period. When a pass takes longer than the period the
// driver logs a warning, appends a line to the diagnostic log, records the
// overrun in the journal and starts the next pass at once.
//
// The loop checks an atomic stop flag at the top of every iteration; context
// cancellation additionally cuts the inter-pass sleep short. A pass is never
// interrupted halfway through its decision step. The registered closer (the
// transport connection) is released on every exit path.
//
//	d := driver.New(rec, driver.WithPeriod(200*time.Millisecond), driver.WithCloser(client))
//	d.Start(ctx)
//	...
//	d.Stop()
//	err := d.Wait()
package driver
