package kernel

import (
	"testing"
	"time"
)

func TestMetricsTxCounters(t *testing.T) {
	m := NewMetrics()

	snap := m.Snapshot()
	if snap.TxCommits != 0 {
		t.Errorf("expected 0 initial commits, got %d", snap.TxCommits)
	}

	m.RecordTxCommit(1_000_000)
	m.RecordTxCommit(2_000_000)
	m.RecordTxAbort(false)
	m.RecordTxAbort(true)

	snap = m.Snapshot()
	if snap.TxCommits != 2 {
		t.Errorf("expected 2 commits, got %d", snap.TxCommits)
	}
	if snap.TxAborts != 1 {
		t.Errorf("expected 1 abort, got %d", snap.TxAborts)
	}
	if snap.TxRetries != 1 {
		t.Errorf("expected 1 retry, got %d", snap.TxRetries)
	}
}

func TestMetricsSyscallReplay(t *testing.T) {
	m := NewMetrics()

	m.RecordSyscall(false)
	m.RecordSyscall(false)
	m.RecordSyscall(true)

	snap := m.Snapshot()
	if snap.SyscallRuns != 2 {
		t.Errorf("expected 2 fresh syscall runs, got %d", snap.SyscallRuns)
	}
	if snap.SyscallReplays != 1 {
		t.Errorf("expected 1 replayed syscall, got %d", snap.SyscallReplays)
	}
}

func TestMetricsListOps(t *testing.T) {
	m := NewMetrics()

	m.RecordListOp(false)
	m.RecordListOp(true)
	m.RecordListOp(true)

	snap := m.Snapshot()
	if snap.ListOps != 3 {
		t.Errorf("expected 3 list ops, got %d", snap.ListOps)
	}
	if snap.ListRollForward != 2 {
		t.Errorf("expected 2 roll-forward recoveries, got %d", snap.ListRollForward)
	}
}

func TestMetricsQueueCounters(t *testing.T) {
	m := NewMetrics()

	m.RecordQueueSend(false)
	m.RecordQueueSend(true)
	m.RecordQueueReceive(false)
	m.RecordQueueReceive(true)
	m.RecordQueueReceive(true)

	snap := m.Snapshot()
	if snap.QueueSendOps != 2 || snap.QueueSendFull != 1 {
		t.Errorf("unexpected queue send counts: %+v", snap)
	}
	if snap.QueueRecvOps != 3 || snap.QueueRecvTimeout != 2 {
		t.Errorf("unexpected queue receive counts: %+v", snap)
	}
}

func TestMetricsLatency(t *testing.T) {
	m := NewMetrics()

	m.RecordTxCommit(1_000_000)
	m.RecordTxCommit(2_000_000)

	snap := m.Snapshot()
	expectedAvgNs := uint64(1_500_000)
	if snap.AvgLatencyNs != expectedAvgNs {
		t.Errorf("expected avg latency %d ns, got %d ns", expectedAvgNs, snap.AvgLatencyNs)
	}
}

func TestMetricsUptime(t *testing.T) {
	m := NewMetrics()

	time.Sleep(10 * time.Millisecond)

	snap := m.Snapshot()
	if snap.UptimeNs < 10*1_000_000 {
		t.Errorf("expected uptime >= 10ms, got %d ns", snap.UptimeNs)
	}

	m.Stop()
	time.Sleep(5 * time.Millisecond)

	snap2 := m.Snapshot()
	if snap2.UptimeNs > snap.UptimeNs+2*1_000_000 {
		t.Errorf("uptime increased too much after stop: %d -> %d", snap.UptimeNs, snap2.UptimeNs)
	}
}

func TestMetricsRecoveryTiming(t *testing.T) {
	m := NewMetrics()

	m.RecordKernelRecovery(3 * time.Millisecond)
	m.RecordTaskRecovery(500 * time.Microsecond)

	snap := m.Snapshot()
	if snap.KernelRecoveryNs != (3 * time.Millisecond).Nanoseconds() {
		t.Errorf("expected kernel recovery 3ms, got %d ns", snap.KernelRecoveryNs)
	}
	if snap.TaskRecoveryNs != (500 * time.Microsecond).Nanoseconds() {
		t.Errorf("expected task recovery 500us, got %d ns", snap.TaskRecoveryNs)
	}
}

func TestMetricsReset(t *testing.T) {
	m := NewMetrics()

	m.RecordTxCommit(1_000_000)
	m.RecordListOp(true)
	m.RecordCtxSwitch()

	snap := m.Snapshot()
	if snap.TxCommits == 0 || snap.ListOps == 0 || snap.CtxSwitches == 0 {
		t.Error("expected some activity before reset")
	}

	m.Reset()

	snap = m.Snapshot()
	if snap.TxCommits != 0 || snap.ListOps != 0 || snap.CtxSwitches != 0 {
		t.Errorf("expected all counters zero after reset, got %+v", snap)
	}
}

func TestObserver(t *testing.T) {
	observer := &NoOpObserver{}
	observer.ObserveTxCommit(1_000_000)
	observer.ObserveTxAbort(false)
	observer.ObserveSyscall(true)
	observer.ObserveListOp(false)
	observer.ObserveCtxSwitch()

	m := NewMetrics()
	metricsObserver := NewMetricsObserver(m)

	metricsObserver.ObserveTxCommit(1_000_000)
	metricsObserver.ObserveCtxSwitch()

	snap := m.Snapshot()
	if snap.TxCommits != 1 {
		t.Errorf("expected 1 commit from observer, got %d", snap.TxCommits)
	}
	if snap.CtxSwitches != 1 {
		t.Errorf("expected 1 ctx switch from observer, got %d", snap.CtxSwitches)
	}
}

func TestMetricsHistogram(t *testing.T) {
	m := NewMetrics()

	for i := 0; i < 50; i++ {
		m.RecordTxCommit(500_000) // 500us
	}
	for i := 0; i < 49; i++ {
		m.RecordTxCommit(5_000_000) // 5ms
	}
	m.RecordTxCommit(50_000_000) // 50ms, the single slowest sample

	snap := m.Snapshot()

	if snap.LatencyP50Ns < 100_000 || snap.LatencyP50Ns > 1_000_000 {
		t.Errorf("expected P50 in 100us-1ms range, got %d ns", snap.LatencyP50Ns)
	}
	if snap.LatencyP99Ns < 5_000_000 || snap.LatencyP99Ns > 100_000_000 {
		t.Errorf("expected P99 in 5ms-100ms range, got %d ns", snap.LatencyP99Ns)
	}

	var totalInBuckets uint64
	for _, count := range snap.LatencyHistogram {
		totalInBuckets += count
	}
	if totalInBuckets == 0 {
		t.Error("expected histogram buckets to be populated")
	}
}
