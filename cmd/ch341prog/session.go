package main

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	"github.com/moffa90/go-ch341prog/i2c"
	"github.com/moffa90/go-ch341prog/journal"
	"github.com/moffa90/go-ch341prog/programmer"
	"github.com/moffa90/go-ch341prog/transport"
)

// app is an open adapter with a session on top of it.
type app struct {
	mgr     *transport.Manager
	handle  *transport.Handle
	sess    *programmer.Session
	journal *journal.Journal

	closeOnce sync.Once
}

// Close releases the journal and the adapter. It is also registered with
// atexit and safe to call more than once.
func (a *app) Close() {
	a.closeOnce.Do(func() {
		if a.journal != nil {
			_ = a.journal.Close()
		}
		_ = a.mgr.Close()
	})
}

// openAdapter opens the selected adapter.
func (o *rootOptions) openAdapter(ctx context.Context) (*transport.Manager, *transport.Handle, error) {
	mgr := transport.NewManager(o.backend(),
		transport.WithTimeout(o.timeout),
		transport.WithLogger(o.logger),
	)
	h, err := mgr.Open(ctx, o.device)
	if err != nil {
		_ = mgr.Close()
		return nil, nil, err
	}
	return mgr, h, nil
}

// openSession opens the adapter, the optional journal and a session.
func (o *rootOptions) openSession(cmd *cobra.Command, extra ...programmer.Option) (*app, error) {
	speed, err := i2c.ParseSpeed(o.speed)
	if err != nil {
		return nil, err
	}
	addr, err := o.parseAddress()
	if err != nil {
		return nil, err
	}
	profile, err := o.profile()
	if err != nil {
		return nil, err
	}

	mgr, h, err := o.openAdapter(cmd.Context())
	if err != nil {
		return nil, err
	}
	a := &app{mgr: mgr, handle: h}
	atexit.Register(a.Close)

	opts := []programmer.Option{
		programmer.WithLogger(o.logger.With("component", "programmer")),
		programmer.WithSpeed(speed),
		programmer.WithRetries(o.retries),
		programmer.WithAddress(addr),
	}
	if profile != nil {
		opts = append(opts, programmer.WithProfile(*profile, addr))
	}
	if !o.quiet {
		opts = append(opts, programmer.WithProgressCallback(progressPrinter(cmd.ErrOrStderr())))
	}
	if o.journal != "" {
		j, err := journal.Open(o.journal, journal.WithLogger(o.logger.With("component", "journal")))
		if err != nil {
			a.Close()
			return nil, err
		}
		a.journal = j
		opts = append(opts, programmer.WithEventSink(j))
	}
	opts = append(opts, extra...)

	a.sess = programmer.New(h, opts...)
	o.logger.Debug("session opened", "session", a.sess.ID(), "adapter", h.Info().ID)
	return a, nil
}

// wait blocks until the job ends. Cancelling ctx asks the session to stop
// at the next page boundary.
func wait(ctx context.Context, sess *programmer.Session, job *programmer.Job) programmer.Result {
	select {
	case <-job.Done():
	case <-ctx.Done():
		sess.Cancel()
	}
	return job.Wait()
}

// progressPrinter renders one status line per phase.
func progressPrinter(w io.Writer) programmer.ProgressCallback {
	var last programmer.Phase
	return func(p programmer.Progress) {
		if last != "" && p.Phase != last {
			fmt.Fprintln(w)
		}
		last = p.Phase
		fmt.Fprintf(w, "\r%-10s %5.1f%% %d/%d bytes", p.Phase, p.Percentage, p.BytesDone, p.BytesTotal)
		if p.BytesDone == p.BytesTotal {
			fmt.Fprintln(w)
			last = ""
		}
	}
}
