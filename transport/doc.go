// Package transport owns the USB connection to a CH341A bridge adapter.
//
// A Manager enumerates adapters through a Backend and hands out Handles.
// A Handle is the exclusive ownership token for one open adapter: every
// command goes through it, and at most one Handle may be open per physical
// adapter at a time.
//
//	mgr := transport.NewManager(usb.NewBackend())
//	defer mgr.Close()
//
//	h, err := mgr.Open(ctx, "") // first adapter found
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer h.Close()
//
//	resp, err := h.SendCommand(ctx, pkt.Data, pkt.ResponseLen())
//
// # Timeouts and Failures
//
// Every transfer is bounded by the handle timeout (default 1s). A timeout is
// reported as ErrTimeout and leaves the Handle usable so the caller can retry.
// Any other transfer failure is reported as ErrIO and tears the Handle down;
// the adapter must be reopened.
//
// Cancelling the context passed to SendCommand never interrupts a transfer
// that has already started. Transfers only observe the handle timeout.
//
// # Backends
//
// The gousb backend in transport/usb talks to real hardware. The backend in
// transport/transporttest simulates a bridge with an attached EEPROM.
package transport
