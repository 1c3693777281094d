package reactor

import (
	"os"
	"os/signal"
)

// installInterruptHandler wires interrupt delivery to Quit(0). The watcher
// goroutine owns the notification channel; its only action per signal is a
// quit-flag write plus a wake, keeping the signal path allocation-free.
// Called with the loop mutex held, before Init publishes the loop.
func (l *Loop) installInterruptHandler() {
	l.sigCh = make(chan os.Signal, 1)
	l.sigDone = make(chan struct{})
	signal.Notify(l.sigCh, os.Interrupt)
	go func() {
		defer close(l.sigDone)
		for range l.sigCh {
			l.Quit(0)
		}
	}()
}

// stopInterruptHandler detaches from signal delivery and reaps the watcher.
// signal.Stop guarantees no further sends, making the close safe.
func (l *Loop) stopInterruptHandler() {
	if l.sigCh == nil {
		return
	}
	signal.Stop(l.sigCh)
	close(l.sigCh)
	<-l.sigDone
	l.sigCh = nil
	l.sigDone = nil
}
