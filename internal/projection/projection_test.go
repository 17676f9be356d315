package projection

import (
	"encoding/json"
	"testing"
	"time"

	"voicelink/internal/registry"
	"voicelink/internal/signaling"
)

func TestProjectCall_FieldNamesAreContract(t *testing.T) {
	connectedAt := time.UnixMilli(1700000000000).UTC()
	info := ProjectCall(registry.Call{
		UUID:        "u1",
		Sid:         "CA1",
		From:        "+15550001111",
		To:          "+15550002222",
		State:       registry.CallStateConnected,
		IsMuted:     true,
		ConnectedAt: connectedAt,
	})

	raw, err := json.Marshal(info)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	for _, key := range []string{"uuid", "sid", "from", "to", "state", "isMuted", "isOnHold", "initialConnectedTimestamp"} {
		if _, ok := m[key]; !ok {
			t.Fatalf("missing contract field %q in %s", key, raw)
		}
	}
	if m["state"] != "connected" {
		t.Fatalf("expected state connected, got %v", m["state"])
	}
	if m["initialConnectedTimestamp"] != float64(1700000000000) {
		t.Fatalf("expected unix ms timestamp, got %v", m["initialConnectedTimestamp"])
	}
}

func TestProjectCall_OmitsTimestampBeforeConnected(t *testing.T) {
	raw, _ := json.Marshal(ProjectCall(registry.Call{UUID: "u1", State: registry.CallStateConnecting}))
	var m map[string]any
	_ = json.Unmarshal(raw, &m)
	if _, ok := m["initialConnectedTimestamp"]; ok {
		t.Fatalf("timestamp must be omitted before the first connected transition")
	}
}

func TestProjectInvite_EmptyCustomParametersIsObjectNotNull(t *testing.T) {
	raw, _ := json.Marshal(ProjectInvite(registry.Invite{UUID: "u1", CallSid: "CA1", From: "a", To: "b"}))
	var m map[string]any
	_ = json.Unmarshal(raw, &m)

	params, ok := m["customParameters"].(map[string]any)
	if !ok {
		t.Fatalf("customParameters must serialize as an object, got %v", m["customParameters"])
	}
	if len(params) != 0 {
		t.Fatalf("expected empty object")
	}
	if m["callSid"] != "CA1" {
		t.Fatalf("expected callSid field")
	}
}

func TestProjectStats_MapsIcePairStates(t *testing.T) {
	cases := map[signaling.IceCandidatePairState]string{
		signaling.PairStateFailed:     IcePairStateFailed,
		signaling.PairStateFrozen:     IcePairStateFrozen,
		signaling.PairStateInProgress: IcePairStateInProgress,
		signaling.PairStateSucceeded:  IcePairStateSucceeded,
		signaling.PairStateWaiting:    IcePairStateWaiting,
		"bogus":                       IcePairStateUnknown,
	}

	for in, want := range cases {
		reports := ProjectStats([]signaling.StatsReport{{
			PeerConnectionID:      "pc1",
			IceCandidatePairStats: []signaling.IceCandidatePairStats{{State: in}},
		}})
		if got := reports[0].IceCandidatePairStats[0].State; got != want {
			t.Fatalf("state %q: expected %q, got %q", in, want, got)
		}
	}
}

func TestProjectStats_TrackStatsCarryThrough(t *testing.T) {
	raw := []signaling.StatsReport{{
		PeerConnectionID: "pc1",
		RemoteAudioTrackStats: []signaling.RemoteAudioTrackStats{
			func() signaling.RemoteAudioTrackStats {
				var s signaling.RemoteAudioTrackStats
				s.Codec = "opus"
				s.Mos = 4.2
				s.PacketsReceived = 100
				return s
			}(),
		},
	}}

	reports := ProjectStats(raw)
	if len(reports) != 1 {
		t.Fatalf("expected one report")
	}
	got := reports[0].RemoteAudioTrackStats[0]
	if got.Codec != "opus" || got.Mos != 4.2 || got.PacketsReceived != 100 {
		t.Fatalf("fields lost in mapping: %+v", got)
	}
	if reports[0].LocalAudioTrackStats == nil || reports[0].IceCandidateStats == nil {
		t.Fatalf("empty sections must serialize as arrays, not null")
	}
}
