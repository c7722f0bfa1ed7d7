package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bigkaa/datadispatcher/internal/domain/model"
)

// TestPoller_NotFoundRemovesReplica проверяет, что 404 от locality удаляет реплику.
func TestPoller_NotFoundRemovesReplica(t *testing.T) {
	store := &fakeAvailabilityStore{}
	checker := &fakeChecker{}
	p := NewAvailabilityPoller("TAPE", store, checker, 10, time.Millisecond, time.Second, testLogger())

	p.Submit(map[model.DID]string{did("f1"): "/path/f1"})
	if n := p.RunOnce(context.Background()); n != 1 {
		t.Fatalf("RunOnce = %d, ожидалось 1", n)
	}

	calls := store.snapshot()
	if len(calls) != 1 {
		t.Fatalf("вызовов Store = %d, ожидался 1: %+v", len(calls), calls)
	}
	if calls[0].op != "remove" || calls[0].rse != "TAPE" || calls[0].dids[0] != did("f1") {
		t.Errorf("вызов = %+v, ожидалось удаление ns:f1 на TAPE", calls[0])
	}
	if p.Pending() != 0 {
		t.Errorf("очередь = %d, ожидалась пустая", p.Pending())
	}
}

// TestPoller_Classify проверяет разделение на online, offline и ошибки.
func TestPoller_Classify(t *testing.T) {
	store := &fakeAvailabilityStore{}
	checker := &fakeChecker{
		online: map[string]bool{"/a": true, "/b": false},
		errs:   map[string]error{"/c": errors.New("timeout")},
	}
	p := NewAvailabilityPoller("TAPE", store, checker, 10, time.Millisecond, time.Second, testLogger())

	p.Submit(map[model.DID]string{did("a"): "/a", did("b"): "/b", did("c"): "/c"})
	if n := p.RunOnce(context.Background()); n != 3 {
		t.Fatalf("RunOnce = %d, ожидалось 3", n)
	}

	var online, offline []model.DID
	for _, c := range store.snapshot() {
		switch {
		case c.op == "update" && c.available:
			online = append(online, c.dids...)
		case c.op == "update":
			offline = append(offline, c.dids...)
		default:
			t.Errorf("неожиданный вызов %+v", c)
		}
	}
	if len(online) != 1 || online[0] != did("a") {
		t.Errorf("online = %v", online)
	}
	if len(offline) != 1 || offline[0] != did("b") {
		t.Errorf("offline = %v", offline)
	}
	// Файл с ошибкой проверки не возвращается в очередь
	if p.Pending() != 0 {
		t.Errorf("очередь = %d", p.Pending())
	}
}

// TestPoller_Burst проверяет ограничение размера прохода.
func TestPoller_Burst(t *testing.T) {
	store := &fakeAvailabilityStore{}
	checker := &fakeChecker{online: map[string]bool{"/a": true, "/b": true, "/c": true}}
	p := NewAvailabilityPoller("TAPE", store, checker, 2, time.Millisecond, time.Second, testLogger())

	p.Submit(map[model.DID]string{did("a"): "/a", did("b"): "/b", did("c"): "/c"})

	if n := p.RunOnce(context.Background()); n != 2 {
		t.Errorf("первый проход = %d, ожидалось 2", n)
	}
	if p.Pending() != 1 {
		t.Errorf("очередь = %d, ожидалось 1", p.Pending())
	}
	if n := p.RunOnce(context.Background()); n != 1 {
		t.Errorf("второй проход = %d, ожидалось 1", n)
	}
	if n := p.RunOnce(context.Background()); n != 0 {
		t.Errorf("пустой проход = %d", n)
	}
}

// TestPoller_StartWakesOnSubmit проверяет, что Submit будит простаивающий цикл.
func TestPoller_StartWakesOnSubmit(t *testing.T) {
	store := &fakeAvailabilityStore{}
	checker := &fakeChecker{online: map[string]bool{"/a": true}}
	p := NewAvailabilityPoller("TAPE", store, checker, 10, time.Millisecond, time.Hour, testLogger())

	p.Start(context.Background())
	defer p.Stop()

	p.Submit(map[model.DID]string{did("a"): "/a"})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(store.snapshot()) > 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("Submit не разбудил poller")
}
