// Package programmer runs EEPROM read, write, erase and verify jobs on a
// background worker and reports their progress.
//
// A Session owns the bus of one open adapter. It detects the chip on first
// use (or uses a declared Profile) and caches the result. Every later job
// still passes through Detecting, where it checks that the cached chip
// answers and detects again when it does not. The session runs at most one
// job at a time and moves through the states
//
//	Idle -> Detecting -> Reading | Writing | Erasing -> Verifying -> Idle
//
// Any unrecovered error moves the session to Failed, where it stays until
// Acknowledge is called. Cancel stops the running job at the next page
// boundary; the job then ends with an error matching ErrCancelled and the
// session returns to Idle.
//
// Basic usage:
//
//	h, _ := mgr.Open(ctx, "")
//	sess := programmer.New(h,
//	    programmer.WithProgressCallback(func(p programmer.Progress) {
//	        fmt.Printf("%s %.0f%%\n", p.Phase, p.Percentage)
//	    }),
//	)
//	img, _ := ihex.DecodeFile("eeprom.hex")
//	job, err := sess.Write(img.Image)
//	if err != nil {
//	    return err
//	}
//	res := job.Wait()
package programmer
