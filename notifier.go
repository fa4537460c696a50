package identity

import (
	"context"
	"fmt"
	"sync"
)

// Notifier delivers account emails. The interface is synchronous looking,
// implementations decide whether dispatch actually happens inline or on a
// background worker. Failures are the implementation's problem, callers
// never see them.
type Notifier interface {
	NotifyVerification(ctx context.Context, email, token string) error
	NotifyPasswordReset(ctx context.Context, email, token string) error
}

// PrintNotifier writes notifications to stdout, useful for local
// development and tests
type PrintNotifier struct{}

func (PrintNotifier) NotifyVerification(_ context.Context, email, token string) error {
	printEmailNotification(email, "/verify-email/"+token)
	return nil
}

func (PrintNotifier) NotifyPasswordReset(_ context.Context, email, token string) error {
	printEmailNotification(email, "/password-reset/"+token)
	return nil
}

func printEmailNotification(email, link string) {
	fmt.Println("====== SENDING EMAIL NOTIFICATION =======")
	fmt.Printf("to: %s\n", email)
	fmt.Printf("link: %s\n", link)
}

var _ Notifier = (*PrintNotifier)(nil)

type notification struct {
	kind  string
	email string
	token string
}

// AsyncNotifier queues notifications onto a background worker so callers
// never block on delivery. A full queue drops the notification and logs,
// notification failures are logged and never retried inline.
type AsyncNotifier struct {
	delegate Notifier
	queue    chan notification
	logger   Logger
	done     chan struct{}
	stop     sync.Once
}

// NewAsyncNotifier wraps a delegate Notifier with a buffered dispatch
// queue. Call Close to drain and stop the worker.
func NewAsyncNotifier(delegate Notifier, buffer int, logger Logger) *AsyncNotifier {
	if buffer <= 0 {
		buffer = 64
	}
	if logger == nil {
		logger = defLogger{}
	}

	n := &AsyncNotifier{
		delegate: delegate,
		queue:    make(chan notification, buffer),
		logger:   logger,
		done:     make(chan struct{}),
	}

	go n.worker()

	return n
}

func (n *AsyncNotifier) worker() {
	defer close(n.done)
	for msg := range n.queue {
		var err error
		switch msg.kind {
		case PurposeEmailVerification:
			err = n.delegate.NotifyVerification(context.Background(), msg.email, msg.token)
		case PurposePasswordReset:
			err = n.delegate.NotifyPasswordReset(context.Background(), msg.email, msg.token)
		}
		if err != nil {
			n.logger.Error("notification dispatch failed", "kind", msg.kind, "error", err)
		}
	}
}

func (n *AsyncNotifier) enqueue(msg notification) error {
	select {
	case n.queue <- msg:
	default:
		n.logger.Error("notification queue full, dropping", "kind", msg.kind)
	}
	return nil
}

func (n *AsyncNotifier) NotifyVerification(_ context.Context, email, token string) error {
	return n.enqueue(notification{kind: PurposeEmailVerification, email: email, token: token})
}

func (n *AsyncNotifier) NotifyPasswordReset(_ context.Context, email, token string) error {
	return n.enqueue(notification{kind: PurposePasswordReset, email: email, token: token})
}

// Close stops accepting work and waits for the worker to drain
func (n *AsyncNotifier) Close() {
	n.stop.Do(func() {
		close(n.queue)
	})
	<-n.done
}

var _ Notifier = (*AsyncNotifier)(nil)
