package state

import "testing"

func TestStore_StartsIdle(t *testing.T) {
	s := NewStore()
	if got := s.Current(); got.Status != Idle {
		t.Fatalf("initial status = %v, want Idle", got.Status)
	}
}

func TestStore_NotifiesSubscriber(t *testing.T) {
	s := NewStore()
	ch, cancel := s.Subscribe()
	defer cancel()

	s.Set(Capturing)

	snap := <-ch
	if snap.Status != Capturing {
		t.Fatalf("status = %v, want Capturing", snap.Status)
	}
}

func TestStore_KeepsOnlyLatestSnapshot(t *testing.T) {
	s := NewStore()
	ch, cancel := s.Subscribe()
	defer cancel()

	s.Set(Capturing)
	s.Set(Transcribing)
	s.Set(Inserting)

	snap := <-ch
	if snap.Status != Inserting {
		t.Fatalf("status = %v, want latest (Inserting)", snap.Status)
	}
	select {
	case extra := <-ch:
		t.Fatalf("unexpected buffered snapshot %v", extra)
	default:
	}
}

func TestStore_SetError(t *testing.T) {
	s := NewStore()
	s.SetError("microphone unplugged")

	got := s.Current()
	if got.Status != Errored {
		t.Fatalf("status = %v, want Errored", got.Status)
	}
	if got.Reason != "microphone unplugged" {
		t.Fatalf("reason = %q", got.Reason)
	}
}

func TestStore_NoNotificationWithoutChange(t *testing.T) {
	s := NewStore()
	s.Set(Monitoring)

	ch, cancel := s.Subscribe()
	defer cancel()

	s.Set(Monitoring)

	select {
	case snap := <-ch:
		t.Fatalf("unexpected notification %v for unchanged status", snap)
	default:
	}
}

func TestStore_UnsubscribeClosesChannel(t *testing.T) {
	s := NewStore()
	ch, cancel := s.Subscribe()
	cancel()

	if _, ok := <-ch; ok {
		t.Fatal("channel still open after unsubscribe")
	}
	// A second cancel is a no-op.
	cancel()
	s.Set(Capturing)
}
