package scenario

import (
	"context"
	"time"

	"github.com/unkn0wn-root/cascheck"
)

const (
	headline    = "Breaking news!"
	joinTimeout = 2 * time.Second
)

// runPubSub subscribes on the replica, starts one listener goroutine and
// publishes on the primary. The listener is stopped by unsubscribing and
// closing the subscription, then joined with a timeout.
func runPubSub(ctx context.Context, env *Env, t *T) error {
	channel := env.Key("news")
	sub := env.Replica.Subscribe(ctx, channel)
	defer sub.Close()

	// wait for the subscription confirmation so the publish cannot race it
	if _, err := sub.Receive(ctx); err != nil {
		return cascheck.Classify(cascheck.RoleReplica, "subscribe "+channel, err)
	}

	got := make(chan string, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			msg, err := sub.ReceiveMessage(ctx)
			if err != nil {
				return // unsubscribed, closed or cancelled
			}
			select {
			case got <- msg.Payload:
			default:
			}
		}
	}()

	start := time.Now()
	receivers, err := env.Primary.Publish(ctx, channel, headline).Result()
	if err != nil {
		stop(ctx, sub, channel, done, t)
		return cascheck.Classify(cascheck.RolePrimary, "publish "+channel, err)
	}

	res := cascheck.VerificationResult{
		Op: "subscribe", Key: channel,
		Expected: cascheck.StringValue(headline), Observed: cascheck.NilValue(),
		Polls: 1,
	}
	timer := time.NewTimer(env.PubSubTimeout)
	select {
	case p := <-got:
		res.Observed = cascheck.StringValue(p)
		res.Match = p == headline
	case <-timer.C:
		t.Notef("no message within %s", env.PubSubTimeout)
	case <-ctx.Done():
	}
	timer.Stop()
	res.Elapsed = time.Since(start)

	stop(ctx, sub, channel, done, t)
	if err := ctx.Err(); err != nil {
		return err
	}
	t.Notef("primary reported %d receivers", receivers)
	return t.Expect(res, nil)
}

type subscription interface {
	Unsubscribe(ctx context.Context, channels ...string) error
	Close() error
}

func stop(ctx context.Context, sub subscription, channel string, done <-chan struct{}, t *T) {
	_ = sub.Unsubscribe(context.WithoutCancel(ctx), channel)
	_ = sub.Close()
	select {
	case <-done:
	case <-time.After(joinTimeout):
		t.Notef("listener did not stop within %s", joinTimeout)
	}
}
