package toolcache

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func newRecovering(t *testing.T, source *fakeSource) *RecoveringProvider {
	t.Helper()
	initial, err := source.NewToolProvider(context.Background())
	if err != nil {
		t.Fatalf("initial connect: %v", err)
	}
	return NewRecoveringProvider(source, initial, quietLogger())
}

func TestRecoveringProviderPassesThroughSuccess(t *testing.T) {
	t.Parallel()

	source := newFakeSource("alpha", "echo")
	rp := newRecovering(t, source)
	res, err := rp.ToolCallbacks()[0].Call(context.Background(), nil)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if textOf(res) != "echo" {
		t.Fatalf("unexpected result %q", textOf(res))
	}
	if source.connects.Load() != 1 || rp.Recoveries() != 0 {
		t.Fatalf("no reconnect expected, connects=%d recoveries=%d", source.connects.Load(), rp.Recoveries())
	}
}

func TestRecoveringProviderReconnectsOnceOnSessionLoss(t *testing.T) {
	t.Parallel()

	source := newFakeSource("alpha", "echo")
	rp := newRecovering(t, source)
	first := source.latest()
	first.setErr(errSessionGone)

	res, err := rp.ToolCallbacks()[0].Call(context.Background(), map[string]any{"x": 1})
	if err != nil {
		t.Fatalf("Call after session loss: %v", err)
	}
	if textOf(res) != "echo" {
		t.Fatalf("unexpected result %q", textOf(res))
	}
	if got := source.connects.Load(); got != 2 {
		t.Fatalf("expected exactly one reconnect, connects=%d", got)
	}
	if !first.isClosed() {
		t.Fatalf("superseded provider should be closed")
	}
	if rp.Current() != source.latest() {
		t.Fatalf("current provider was not swapped")
	}
}

func TestRecoveringProviderRetriesOnlyOnce(t *testing.T) {
	t.Parallel()

	source := newFakeSource("alpha", "echo")
	rp := newRecovering(t, source)
	source.latest().setErr(errSessionGone)
	source.setNextErr(errSessionGone)

	_, err := rp.ToolCallbacks()[0].Call(context.Background(), nil)
	var recErr *RecoveryError
	if !errors.As(err, &recErr) {
		t.Fatalf("expected *RecoveryError, got %v", err)
	}
	if !errors.Is(recErr.Original, errSessionGone) {
		t.Fatalf("original error not preserved: %v", recErr.Original)
	}
	if got := source.connects.Load(); got != 2 {
		t.Fatalf("expected a single reconnect, connects=%d", got)
	}
	if got := source.latest().callCount(); got != 1 {
		t.Fatalf("expected one retry on the new session, got %d", got)
	}
}

func TestRecoveringProviderIgnoresOtherFailures(t *testing.T) {
	t.Parallel()

	source := newFakeSource("alpha", "echo")
	rp := newRecovering(t, source)
	boom := errors.New("tool rejected arguments")
	source.latest().setErr(boom)

	_, err := rp.ToolCallbacks()[0].Call(context.Background(), nil)
	if !errors.Is(err, boom) {
		t.Fatalf("expected original error, got %v", err)
	}
	var recErr *RecoveryError
	if errors.As(err, &recErr) {
		t.Fatalf("non session errors must not be wrapped")
	}
	if got := source.connects.Load(); got != 1 {
		t.Fatalf("no reconnect expected, connects=%d", got)
	}
}

func TestRecoveringProviderReconnectFailure(t *testing.T) {
	t.Parallel()

	source := newFakeSource("alpha", "echo")
	rp := newRecovering(t, source)
	source.latest().setErr(errSessionGone)
	source.fail.Store(true)

	_, err := rp.ToolCallbacks()[0].Call(context.Background(), nil)
	var recErr *RecoveryError
	if !errors.As(err, &recErr) {
		t.Fatalf("expected *RecoveryError, got %v", err)
	}
	if recErr.Server != "alpha" || recErr.Tool != "echo" {
		t.Fatalf("unexpected recovery error %+v", recErr)
	}
	if !errors.Is(err, errConnRefused) || !errors.Is(err, errSessionGone) {
		t.Fatalf("recovery error should match both the reconnect and session errors: %v", err)
	}
}

func TestRecoveryErrorUnwrapsBothCauses(t *testing.T) {
	t.Parallel()

	source := newFakeSource("alpha", "echo")
	rp := newRecovering(t, source)
	rejected := errors.New("tool rejected arguments")
	source.latest().setErr(errSessionGone)
	source.setNextErr(rejected)

	_, err := rp.ToolCallbacks()[0].Call(context.Background(), nil)
	if !errors.Is(err, rejected) {
		t.Fatalf("retry failure not reachable through errors.Is: %v", err)
	}
	if !errors.Is(err, errSessionGone) {
		t.Fatalf("session-loss cause not reachable through errors.Is: %v", err)
	}
	if got := (&RecoveryError{Err: rejected}).Unwrap(); len(got) != 1 || got[0] != rejected {
		t.Fatalf("nil causes should be dropped, got %v", got)
	}
}

func TestRecoveringProviderToolMissingAfterReconnect(t *testing.T) {
	t.Parallel()

	source := newFakeSource("alpha", "echo")
	rp := newRecovering(t, source)
	source.latest().setErr(errSessionGone)
	source.tools = []string{"other"}

	_, err := rp.ToolCallbacks()[0].Call(context.Background(), nil)
	if !errors.Is(err, ErrToolMissing) {
		t.Fatalf("expected ErrToolMissing, got %v", err)
	}
}

func TestRecoveringProviderSerializesConcurrentRecovery(t *testing.T) {
	t.Parallel()

	source := newFakeSource("alpha", "echo")
	rp := newRecovering(t, source)
	source.latest().setErr(errSessionGone)
	callbacks := rp.ToolCallbacks()

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := callbacks[0].Call(context.Background(), nil); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent call failed: %v", err)
	}
	if got := source.connects.Load(); got != 2 {
		t.Fatalf("expected one shared reconnect, connects=%d", got)
	}
	if rp.Recoveries() != 1 {
		t.Fatalf("expected one recovery, got %d", rp.Recoveries())
	}
}

func TestRecoveringCallbacksFollowNewGeneration(t *testing.T) {
	t.Parallel()

	source := newFakeSource("alpha", "echo")
	rp := newRecovering(t, source)
	held := rp.ToolCallbacks()[0]

	source.latest().setErr(errSessionGone)
	if _, err := held.Call(context.Background(), nil); err != nil {
		t.Fatalf("first call: %v", err)
	}
	// The first provider is closed now; the held callback must use the new one.
	if _, err := held.Call(context.Background(), nil); err != nil {
		t.Fatalf("call through held callback: %v", err)
	}
	if got := source.connects.Load(); got != 2 {
		t.Fatalf("expected no further reconnects, connects=%d", got)
	}
}
