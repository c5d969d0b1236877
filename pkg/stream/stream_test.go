package stream

import (
	"errors"
	"testing"
	"time"

	"github.com/teslashibe/go-camhub/pkg/frame"
)

func newTestRegistry(t *testing.T) (*Registry, *fakeOpener) {
	t.Helper()
	opener := newFakeOpener()
	r := NewRegistry(WithOpener(opener.Open), WithConfig(testConfig()))
	t.Cleanup(r.StopAll)
	return r, opener
}

func TestStreamDeliversFramesInOrder(t *testing.T) {
	r, opener := newTestRegistry(t)

	c1, err := r.Subscribe(Source{ID: "0"}, "c1")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	dev := opener.device("0")
	for i := 0; i < 3; i++ {
		dev.emit(1)
		f, err := c1.Pull()
		if err != nil {
			t.Fatalf("Pull %d failed: %v", i, err)
		}
		if f.Seq != uint64(i) {
			t.Errorf("expected seq %d, got %d", i, f.Seq)
		}
		if f.Data[0] != byte(i) {
			t.Errorf("expected payload %d, got %d", i, f.Data[0])
		}
	}
}

func TestSingleCaptureWorkerPerCamera(t *testing.T) {
	r, opener := newTestRegistry(t)

	if _, err := r.Subscribe(Source{ID: "0"}, "c1"); err != nil {
		t.Fatalf("Subscribe c1 failed: %v", err)
	}
	if _, err := r.Subscribe(Source{ID: "0"}, "c2"); err != nil {
		t.Fatalf("Subscribe c2 failed: %v", err)
	}

	if got := opener.openCount(); got != 1 {
		t.Errorf("expected 1 device open for two consumers, got %d", got)
	}

	// The double-open guard in the fake proves the stream holds the device.
	if _, err := opener.Open(Source{ID: "0"}, testConfig()); !errors.Is(err, ErrDeviceUnavailable) {
		t.Errorf("expected ErrDeviceUnavailable on double open, got %v", err)
	}
}

func TestDeviceOpenIffConsumersRegistered(t *testing.T) {
	r, opener := newTestRegistry(t)

	if opener.opened("0") {
		t.Fatal("device open before any registration")
	}

	c1, err := r.Subscribe(Source{ID: "0"}, "c1")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if !opener.opened("0") {
		t.Error("device not open with a registered consumer")
	}

	c1.Close()
	if opener.opened("0") {
		t.Error("device still open after last consumer left")
	}
	if got := len(r.List()); got != 0 {
		t.Errorf("expected empty registry after teardown, got %d streams", got)
	}
}

func TestFreshStreamAfterTeardown(t *testing.T) {
	r, opener := newTestRegistry(t)

	c1, err := r.Subscribe(Source{ID: "0"}, "c1")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	opener.device("0").emit(1)
	if _, err := c1.Pull(); err != nil {
		t.Fatalf("Pull failed: %v", err)
	}
	c1.Close()

	// Re-registering the id must build a brand-new stream, not attach to
	// the dead one.
	c2, err := r.Subscribe(Source{ID: "0"}, "c2")
	if err != nil {
		t.Fatalf("Subscribe after teardown failed: %v", err)
	}
	if got := opener.openCount(); got != 2 {
		t.Errorf("expected a second device open, got %d", got)
	}
	opener.device("0").emit(1)
	f, err := c2.Pull()
	if err != nil {
		t.Fatalf("Pull on fresh stream failed: %v", err)
	}
	if f.Seq != 0 {
		t.Errorf("fresh stream should restart sequence at 0, got %d", f.Seq)
	}
}

func TestCopyIsolationAcrossConsumers(t *testing.T) {
	r, opener := newTestRegistry(t)

	c1, err := r.Subscribe(Source{ID: "0"}, "c1")
	if err != nil {
		t.Fatalf("Subscribe c1 failed: %v", err)
	}
	st, err := r.Get("0")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	c2, err := st.Register("c2")
	if err != nil {
		t.Fatalf("Register c2 failed: %v", err)
	}

	opener.device("0").emit(1)
	f1, err := c1.Pull()
	if err != nil {
		t.Fatalf("c1 Pull failed: %v", err)
	}
	f2, err := c2.Pull()
	if err != nil {
		t.Fatalf("c2 Pull failed: %v", err)
	}

	f1.Data[0] = 0xFF
	if f2.Data[0] == 0xFF {
		t.Error("mutating c1's frame changed c2's frame")
	}

	latest, ok := st.Latest()
	if !ok {
		t.Fatal("expected a latest frame")
	}
	if latest.Data[0] == 0xFF {
		t.Error("mutating c1's frame changed the latest-frame slot")
	}
	latest.Data[0] = 0xEE
	again, _ := st.Latest()
	if again.Data[0] == 0xEE {
		t.Error("Latest returned an aliased buffer")
	}
}

func TestSlowConsumerSeesGapsFastConsumerSeesAll(t *testing.T) {
	r, opener := newTestRegistry(t)

	c1, err := r.Subscribe(Source{ID: "0"}, "c1")
	if err != nil {
		t.Fatalf("Subscribe c1 failed: %v", err)
	}
	st, _ := r.Get("0")
	c2, err := st.Register("c2")
	if err != nil {
		t.Fatalf("Register c2 failed: %v", err)
	}

	// c1 keeps up with every frame; c2 never pulls until the end.
	dev := opener.device("0")
	for i := 0; i < 5; i++ {
		dev.emit(1)
		f, err := c1.Pull()
		if err != nil {
			t.Fatalf("c1 Pull %d failed: %v", i, err)
		}
		if f.Seq != uint64(i) {
			t.Errorf("fast consumer: expected seq %d, got %d", i, f.Seq)
		}
	}

	// Fan-out order between consumers is not fixed; wait until the last
	// frame's delivery to c2 evicted its third frame.
	deadline := time.Now().Add(2 * time.Second)
	for c2.Drops() != 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	// With a 2-frame queue and drop-oldest, c2 retains the newest two.
	first, err := c2.Pull()
	if err != nil {
		t.Fatalf("c2 Pull failed: %v", err)
	}
	second, err := c2.Pull()
	if err != nil {
		t.Fatalf("c2 Pull failed: %v", err)
	}
	if first.Seq != 3 || second.Seq != 4 {
		t.Errorf("slow consumer: expected seqs 3,4, got %d,%d", first.Seq, second.Seq)
	}
	if second.Seq <= first.Seq {
		t.Error("slow consumer: sequence not monotonic")
	}
	if c2.Drops() != 3 {
		t.Errorf("expected 3 dropped frames for c2, got %d", c2.Drops())
	}
}

func TestReadFailuresEscalateToError(t *testing.T) {
	r, opener := newTestRegistry(t)

	c1, err := r.Subscribe(Source{ID: "0"}, "c1")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	opener.device("0").failRead(3)

	// The consumer sees a clean end-of-stream, not a crash.
	if _, err := c1.Pull(); !errors.Is(err, ErrEndOfStream) {
		t.Fatalf("expected ErrEndOfStream, got %v", err)
	}

	st, err := r.Get("0")
	if err != nil {
		t.Fatalf("errored stream should linger in the registry: %v", err)
	}
	if st.State() != StateError {
		t.Errorf("expected StateError, got %v", st.State())
	}
	if st.Err() == nil {
		t.Error("expected a stored failure cause")
	}
	if opener.opened("0") {
		t.Error("device still open after stream failure")
	}

	// No registration until an administrative remove.
	if _, err := st.Register("c2"); !errors.Is(err, ErrStreamUnavailable) {
		t.Errorf("expected ErrStreamUnavailable on errored stream, got %v", err)
	}
	if err := r.Remove("0"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, err := r.Subscribe(Source{ID: "0"}, "c2"); err != nil {
		t.Fatalf("Subscribe after Remove failed: %v", err)
	}
}

func TestUnregisterIsIdempotent(t *testing.T) {
	r, opener := newTestRegistry(t)

	if _, err := r.Subscribe(Source{ID: "0"}, "c1"); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	st, err := r.Get("0")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	st.Unregister("c1")
	st.Unregister("c1") // second call is a no-op

	if st.State() != StateStopped {
		t.Errorf("expected StateStopped, got %v", st.State())
	}
	if opener.opened("0") {
		t.Error("device still open after double unregister")
	}
	if opener.openCount() != 1 {
		t.Errorf("expected exactly one open, got %d", opener.openCount())
	}
}

func TestRegisterDuplicateConsumer(t *testing.T) {
	r, _ := newTestRegistry(t)

	if _, err := r.Subscribe(Source{ID: "0"}, "a"); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	st, _ := r.Get("0")
	if _, err := st.Register("a"); !errors.Is(err, ErrDuplicateConsumer) {
		t.Errorf("expected ErrDuplicateConsumer, got %v", err)
	}
}

func TestRegisterGeneratesConsumerID(t *testing.T) {
	r, _ := newTestRegistry(t)

	c, err := r.Subscribe(Source{ID: "0"}, "")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if c.ID() == "" {
		t.Error("expected a generated consumer id")
	}
}

func TestRegisterFuncRunsOffCaptureGoroutine(t *testing.T) {
	r, opener := newTestRegistry(t)

	st, err := r.GetOrCreate(Source{ID: "0"})
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}

	got := make(chan uint64, 4)
	if _, err := st.RegisterFunc("cb", func(f *frame.Frame) {
		got <- f.Seq
	}); err != nil {
		t.Fatalf("RegisterFunc failed: %v", err)
	}

	opener.device("0").emit(2)
	for i := 0; i < 2; i++ {
		select {
		case seq := <-got:
			if seq != uint64(i) {
				t.Errorf("expected seq %d, got %d", i, seq)
			}
		case <-time.After(time.Second):
			t.Fatal("callback not invoked")
		}
	}
}

func TestOpenFailureReturnsDeviceUnavailable(t *testing.T) {
	opener := newFakeOpener()
	opener.failAll = true
	r := NewRegistry(WithOpener(opener.Open), WithConfig(testConfig()))
	t.Cleanup(r.StopAll)

	_, err := r.Subscribe(Source{ID: "0"}, "c1")
	if !errors.Is(err, ErrDeviceUnavailable) {
		t.Fatalf("expected ErrDeviceUnavailable, got %v", err)
	}

	// The failed stream lingers in StateError until removed.
	st, err := r.Get("0")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if st.State() != StateError {
		t.Errorf("expected StateError, got %v", st.State())
	}
}

func TestOpenFailureShutsWaitingConsumers(t *testing.T) {
	opener := newFakeOpener()
	opener.gate = make(chan error)
	r := NewRegistry(WithOpener(opener.Open), WithConfig(testConfig()))
	t.Cleanup(r.StopAll)

	// First registration drives the device open, which blocks on the gate.
	subErr := make(chan error, 1)
	go func() {
		_, err := r.Subscribe(Source{ID: "0"}, "c1")
		subErr <- err
	}()

	// Attach a second consumer while the open is still in flight.
	var c2 *Consumer
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		st, err := r.Get("0")
		if err == nil && st.State() == StateOpening {
			if c2, err = st.Register("c2"); err != nil {
				t.Fatalf("Register during open failed: %v", err)
			}
			break
		}
		time.Sleep(time.Millisecond)
	}
	if c2 == nil {
		t.Fatal("stream never reached the opening state")
	}

	opener.gate <- errors.New("no such device")

	if err := <-subErr; err == nil {
		t.Fatal("expected the driving Subscribe to fail")
	}

	// The consumer admitted during the open must see a prompt
	// end-of-stream, not block forever.
	done := make(chan error, 1)
	go func() {
		_, err := c2.Pull()
		done <- err
	}()
	select {
	case err := <-done:
		if !errors.Is(err, ErrEndOfStream) {
			t.Errorf("expected ErrEndOfStream, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Pull blocked after open failure")
	}

	st, err := r.Get("0")
	if err != nil {
		t.Fatalf("errored stream should linger: %v", err)
	}
	if st.State() != StateError {
		t.Errorf("expected StateError, got %v", st.State())
	}
	if got := st.Status().ConsumerCount; got != 0 {
		t.Errorf("expected no consumers on errored stream, got %d", got)
	}
}

func TestStatusIntrospection(t *testing.T) {
	r, opener := newTestRegistry(t)

	c1, err := r.Subscribe(Source{ID: "cam-a"}, "c1")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	st, _ := r.Get("cam-a")
	if _, err := st.Register("c2"); err != nil {
		t.Fatalf("Register c2 failed: %v", err)
	}

	opener.device("cam-a").emit(1)
	if _, err := c1.Pull(); err != nil {
		t.Fatalf("Pull failed: %v", err)
	}

	status, err := r.Status("cam-a")
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.State != "running" {
		t.Errorf("expected state running, got %s", status.State)
	}
	if status.ConsumerCount != 2 {
		t.Errorf("expected 2 consumers, got %d", status.ConsumerCount)
	}
	ids := map[string]bool{}
	for _, id := range status.ConsumerIDs {
		ids[id] = true
	}
	if !ids["c1"] || !ids["c2"] {
		t.Errorf("expected consumer ids c1 and c2, got %v", status.ConsumerIDs)
	}
	if status.LastFrameSeq != 0 {
		t.Errorf("expected last frame seq 0, got %d", status.LastFrameSeq)
	}

	if _, err := r.Status("nope"); !errors.Is(err, ErrStreamNotFound) {
		t.Errorf("expected ErrStreamNotFound, got %v", err)
	}
}

func TestRemovePropagatesEndOfStream(t *testing.T) {
	r, opener := newTestRegistry(t)

	c1, err := r.Subscribe(Source{ID: "0"}, "c1")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	st, _ := r.Get("0")
	c2, err := st.Register("c2")
	if err != nil {
		t.Fatalf("Register c2 failed: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := c2.Pull()
		done <- err
	}()

	if err := r.Remove("0"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	if _, err := c1.Pull(); !errors.Is(err, ErrEndOfStream) {
		t.Errorf("c1: expected ErrEndOfStream, got %v", err)
	}
	select {
	case err := <-done:
		if !errors.Is(err, ErrEndOfStream) {
			t.Errorf("c2: expected ErrEndOfStream, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("blocked Pull did not return after Remove")
	}
	if opener.opened("0") {
		t.Error("device still open after Remove")
	}
}

func TestStopAll(t *testing.T) {
	r, opener := newTestRegistry(t)

	if _, err := r.Subscribe(Source{ID: "a"}, "c1"); err != nil {
		t.Fatalf("Subscribe a failed: %v", err)
	}
	if _, err := r.Subscribe(Source{ID: "b"}, "c1"); err != nil {
		t.Fatalf("Subscribe b failed: %v", err)
	}

	r.StopAll()

	if opener.opened("a") || opener.opened("b") {
		t.Error("devices still open after StopAll")
	}
	if got := len(r.List()); got != 0 {
		t.Errorf("expected empty registry after StopAll, got %d", got)
	}
}
