package drift

import (
	"encoding/json"
	"strings"
	"testing"

	"TrustMesh/internal/geometry"
	"TrustMesh/internal/registry"
)

// baselineVector 在前 10 个类别上取 1。
func baselineVector(t *testing.T) geometry.Vector {
	t.Helper()
	scores := make([]float64, geometry.Dimension)
	for i := 0; i < 10; i++ {
		scores[i] = 1
	}
	v, err := geometry.FromSlice(scores)
	if err != nil {
		t.Fatalf("build vector: %v", err)
	}
	return v
}

// mutated 在基线上把 security 分值改为给定值。
func mutated(t *testing.T, score float64) geometry.Vector {
	t.Helper()
	v := baselineVector(t)
	v[0] = score
	return v
}

func newTestDetector(t *testing.T, opts ...Option) (*Detector, *registry.Registry) {
	t.Helper()
	reg, err := registry.New(baselineVector(t), registry.NewMemoryStore())
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	return New(reg, opts...), reg
}

func TestCheckPeerUnchangedGeometry(t *testing.T) {
	d, reg := newTestDetector(t)
	reg.RegisterPeer("peer-a", "A", baselineVector(t))

	// 同一向量两次巡检：哈希未变，永远不判定漂移。
	for i := 0; i < 2; i++ {
		result := d.CheckPeer("peer-a", baselineVector(t))
		if result.Drifted {
			t.Fatalf("unchanged geometry must not drift (round %d): %+v", i, result)
		}
	}
	if status, _ := reg.PeerStatus("peer-a"); status != registry.StatusTrusted {
		t.Fatalf("status must stay trusted, got %s", status)
	}

	stats := d.Stats()
	if stats.Checks != 2 || stats.Drifts != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestCheckPeerDetectsSmallMutation(t *testing.T) {
	d, reg := newTestDetector(t)
	reg.RegisterPeer("peer-a", "A", baselineVector(t))

	// security 从 1.0 降到 0.5, 重合度变化约 0.012, 粗粒度告警带宽
	// (0.15) 察觉不到, 高精度阈值 (0.003) 可以。
	result := d.CheckPeer("peer-a", mutated(t, 0.5))
	if !result.Drifted {
		t.Fatalf("expected drift: %+v", result)
	}
	if !result.Quarantined {
		t.Fatal("first drift must quarantine the peer")
	}
	if !strings.HasPrefix(result.Reason, "Geometry drift detected:") {
		t.Fatalf("unexpected reason: %q", result.Reason)
	}
	if status, _ := reg.PeerStatus("peer-a"); status != registry.StatusQuarantined {
		t.Fatalf("expected quarantined, got %s", status)
	}

	events := d.RecentEvents(0)
	if len(events) != 1 {
		t.Fatalf("expected exactly 1 event, got %d", len(events))
	}
	if !events[0].Quarantined {
		t.Fatal("event must record the quarantine")
	}

	stats := d.Stats()
	if stats.Drifts != 1 || stats.Quarantines != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.PeakDelta <= 0 || stats.CumulativeDelta <= 0 {
		t.Fatalf("delta counters not updated: %+v", stats)
	}
}

func TestCheckPeerHashChangedBelowThreshold(t *testing.T) {
	d, reg := newTestDetector(t)
	reg.RegisterPeer("peer-a", "A", baselineVector(t))

	// 哈希变了但重合度变化远小于阈值: 不算漂移。
	result := d.CheckPeer("peer-a", mutated(t, 0.99))
	if result.Drifted {
		t.Fatalf("delta below threshold must not drift: %+v", result)
	}
	if status, _ := reg.PeerStatus("peer-a"); status != registry.StatusTrusted {
		t.Fatalf("status must stay trusted, got %s", status)
	}
}

func TestCheckPeerAdvancesBaseline(t *testing.T) {
	d, reg := newTestDetector(t)
	reg.RegisterPeer("peer-a", "A", baselineVector(t))

	d.CheckPeer("peer-a", mutated(t, 0.5))
	rec, _ := reg.Peer("peer-a")
	if rec.GeometryHash != geometry.Hash(mutated(t, 0.5)).Hex() {
		t.Fatal("check must advance the stored hash")
	}

	// 同一突变向量再次巡检: 基线已推进, 哈希未变, 不再判定漂移。
	result := d.CheckPeer("peer-a", mutated(t, 0.5))
	if result.Drifted {
		t.Fatalf("repeated observation must not re-drift: %+v", result)
	}
}

func TestCheckPeerQuarantinesOnlyOnce(t *testing.T) {
	d, _ := newTestDetector(t)
	reg := d.reg
	reg.RegisterPeer("peer-a", "A", baselineVector(t))

	first := d.CheckPeer("peer-a", mutated(t, 0.5))
	second := d.CheckPeer("peer-a", mutated(t, 1.0))
	if !first.Quarantined {
		t.Fatal("first drift must quarantine")
	}
	if !second.Drifted {
		t.Fatalf("second mutation must still drift: %+v", second)
	}
	if second.Quarantined {
		t.Fatal("already quarantined peer must not be re-quarantined")
	}

	stats := d.Stats()
	if stats.Quarantines != 1 || stats.Drifts != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if len(d.RecentEvents(0)) != 2 {
		t.Fatal("every drift must leave an event")
	}
}

func TestCheckPeerUnknown(t *testing.T) {
	d, reg := newTestDetector(t)

	result := d.CheckPeer("ghost", baselineVector(t))
	if result.Known || result.Drifted {
		t.Fatalf("unknown peer must be a no-op: %+v", result)
	}
	if stats := reg.Stats(); stats.Total != 0 {
		t.Fatal("unknown peer must not create records")
	}
	if d.Stats().Checks != 0 {
		t.Fatal("unknown peer must not count as a check")
	}
}

func TestEventRingCapacity(t *testing.T) {
	d, reg := newTestDetector(t, WithEventCapacity(5))
	reg.RegisterPeer("peer-a", "A", baselineVector(t))

	// 交替突变, 每轮都改变哈希并产生超阈值变化。
	for i := 0; i < 8; i++ {
		score := 0.5
		if i%2 == 1 {
			score = 1.0
		}
		result := d.CheckPeer("peer-a", mutated(t, score))
		if !result.Drifted {
			t.Fatalf("round %d should drift: %+v", i, result)
		}
	}

	events := d.RecentEvents(0)
	if len(events) != 5 {
		t.Fatalf("ring must cap at 5 events, got %d", len(events))
	}
	// 最新在前。
	if events[0].Timestamp < events[len(events)-1].Timestamp {
		t.Fatal("events must be returned newest first")
	}
	if d.Stats().Drifts != 8 {
		t.Fatalf("counters must survive eviction: %+v", d.Stats())
	}

	if limited := d.RecentEvents(2); len(limited) != 2 {
		t.Fatalf("limit not applied: %d", len(limited))
	}
}

func TestMonitorAllSkipsUnknown(t *testing.T) {
	d, reg := newTestDetector(t)
	reg.RegisterPeer("peer-a", "A", baselineVector(t))

	summary := d.MonitorAll(map[string]geometry.Vector{
		"peer-a": mutated(t, 0.5),
		"ghost":  baselineVector(t),
	})
	if summary.Considered != 1 || summary.Skipped != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if summary.Drifted != 1 || summary.Quarantined != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if stats := reg.Stats(); stats.Total != 1 {
		t.Fatal("sweep must not create records")
	}
}

func TestResetAndExport(t *testing.T) {
	d, reg := newTestDetector(t)
	reg.RegisterPeer("peer-a", "A", baselineVector(t))
	d.CheckPeer("peer-a", mutated(t, 0.5))

	content, err := d.ExportEvents()
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	var events []Event
	if err := json.Unmarshal(content, &events); err != nil {
		t.Fatalf("export not valid json: %v", err)
	}
	if len(events) != 1 || events[0].PeerID != "peer-a" {
		t.Fatalf("unexpected export: %+v", events)
	}

	d.Reset()
	if d.Stats().Checks != 0 {
		t.Fatal("reset must clear counters")
	}
	if len(d.RecentEvents(0)) != 0 {
		t.Fatal("reset must clear events")
	}
}

func TestThresholdOption(t *testing.T) {
	d, _ := newTestDetector(t, WithThreshold(0.05))
	if d.Threshold() != 0.05 {
		t.Fatalf("unexpected threshold: %f", d.Threshold())
	}
	fallback, _ := newTestDetector(t, WithThreshold(-1))
	if fallback.Threshold() != DefaultThreshold {
		t.Fatalf("invalid option must keep default: %f", fallback.Threshold())
	}
}
