package projection

import "voicelink/internal/signaling"

// Stats report shapes delivered to the application. Mostly a mechanical
// mirror of the signaling metrics; the only mapping is the ICE candidate
// pair state enumeration, which the contract spells with state* prefixes.

const (
	IcePairStateFailed     = "stateFailed"
	IcePairStateFrozen     = "stateFrozen"
	IcePairStateInProgress = "stateInProgress"
	IcePairStateSucceeded  = "stateSucceeded"
	IcePairStateWaiting    = "stateWaiting"
	IcePairStateUnknown    = "stateUnknown"
)

type StatsReport struct {
	PeerConnectionID      string                  `json:"peerConnectionId"`
	LocalAudioTrackStats  []LocalAudioTrackStats  `json:"localAudioTrackStats"`
	RemoteAudioTrackStats []RemoteAudioTrackStats `json:"remoteAudioTrackStats"`
	IceCandidateStats     []IceCandidateStats     `json:"iceCandidateStats"`
	IceCandidatePairStats []IceCandidatePairStats `json:"iceCandidatePairStats"`
}

type LocalAudioTrackStats struct {
	Codec         string  `json:"codec"`
	PacketsLost   int64   `json:"packetsLost"`
	Ssrc          string  `json:"ssrc"`
	Timestamp     float64 `json:"timestamp"`
	TrackID       string  `json:"trackId"`
	BytesSent     int64   `json:"bytesSent"`
	PacketsSent   int64   `json:"packetsSent"`
	RoundTripTime float64 `json:"roundTripTime"`
	AudioLevel    int     `json:"audioLevel"`
	Jitter        int     `json:"jitter"`
}

type RemoteAudioTrackStats struct {
	Codec           string  `json:"codec"`
	PacketsLost     int64   `json:"packetsLost"`
	Ssrc            string  `json:"ssrc"`
	Timestamp       float64 `json:"timestamp"`
	TrackID         string  `json:"trackId"`
	BytesReceived   int64   `json:"bytesReceived"`
	PacketsReceived int64   `json:"packetsReceived"`
	AudioLevel      int     `json:"audioLevel"`
	Jitter          int     `json:"jitter"`
	Mos             float64 `json:"mos"`
}

type IceCandidateStats struct {
	CandidateType string `json:"candidateType"`
	Deleted       bool   `json:"deleted"`
	IP            string `json:"ip"`
	IsRemote      bool   `json:"isRemote"`
	Port          int    `json:"port"`
	Priority      int64  `json:"priority"`
	Protocol      string `json:"protocol"`
	TransportID   string `json:"transportId"`
	URL           string `json:"url"`
}

type IceCandidatePairStats struct {
	ActiveCandidatePair      bool    `json:"activeCandidatePair"`
	AvailableIncomingBitrate float64 `json:"availableIncomingBitrate"`
	AvailableOutgoingBitrate float64 `json:"availableOutgoingBitrate"`
	BytesReceived            int64   `json:"bytesReceived"`
	BytesSent                int64   `json:"bytesSent"`
	ConsentRequestsReceived  int64   `json:"consentRequestsReceived"`
	ConsentRequestsSent      int64   `json:"consentRequestsSent"`
	ConsentResponsesReceived int64   `json:"consentResponsesReceived"`
	ConsentResponsesSent     int64   `json:"consentResponsesSent"`
	CurrentRoundTripTime     float64 `json:"currentRoundTripTime"`
	LocalCandidateID         string  `json:"localCandidateId"`
	LocalCandidateIP         string  `json:"localCandidateIp"`
	Nominated                bool    `json:"nominated"`
	Priority                 int64   `json:"priority"`
	Readable                 bool    `json:"readable"`
	RelayProtocol            string  `json:"relayProtocol"`
	RemoteCandidateID        string  `json:"remoteCandidateId"`
	RemoteCandidateIP        string  `json:"remoteCandidateIp"`
	RequestsReceived         int64   `json:"requestsReceived"`
	RequestsSent             int64   `json:"requestsSent"`
	ResponsesReceived        int64   `json:"responsesReceived"`
	ResponsesSent            int64   `json:"responsesSent"`
	RetransmissionsReceived  int64   `json:"retransmissionsReceived"`
	RetransmissionsSent      int64   `json:"retransmissionsSent"`
	State                    string  `json:"state"`
	TotalRoundTripTime       float64 `json:"totalRoundTripTime"`
	TransportID              string  `json:"transportId"`
	Writeable                bool    `json:"writeable"`
}

func icePairState(s signaling.IceCandidatePairState) string {
	switch s {
	case signaling.PairStateFailed:
		return IcePairStateFailed
	case signaling.PairStateFrozen:
		return IcePairStateFrozen
	case signaling.PairStateInProgress:
		return IcePairStateInProgress
	case signaling.PairStateSucceeded:
		return IcePairStateSucceeded
	case signaling.PairStateWaiting:
		return IcePairStateWaiting
	default:
		return IcePairStateUnknown
	}
}

// ProjectStats maps raw signaling metrics onto the diagnostic report shape.
func ProjectStats(raw []signaling.StatsReport) []StatsReport {
	out := make([]StatsReport, 0, len(raw))
	for _, r := range raw {
		report := StatsReport{
			PeerConnectionID:      r.PeerConnectionID,
			LocalAudioTrackStats:  make([]LocalAudioTrackStats, 0, len(r.LocalAudioTrackStats)),
			RemoteAudioTrackStats: make([]RemoteAudioTrackStats, 0, len(r.RemoteAudioTrackStats)),
			IceCandidateStats:     make([]IceCandidateStats, 0, len(r.IceCandidateStats)),
			IceCandidatePairStats: make([]IceCandidatePairStats, 0, len(r.IceCandidatePairStats)),
		}

		for _, s := range r.LocalAudioTrackStats {
			report.LocalAudioTrackStats = append(report.LocalAudioTrackStats, LocalAudioTrackStats{
				Codec:         s.Codec,
				PacketsLost:   s.PacketsLost,
				Ssrc:          s.Ssrc,
				Timestamp:     s.Timestamp,
				TrackID:       s.TrackID,
				BytesSent:     s.BytesSent,
				PacketsSent:   s.PacketsSent,
				RoundTripTime: s.RoundTripTime,
				AudioLevel:    s.AudioLevel,
				Jitter:        s.Jitter,
			})
		}
		for _, s := range r.RemoteAudioTrackStats {
			report.RemoteAudioTrackStats = append(report.RemoteAudioTrackStats, RemoteAudioTrackStats{
				Codec:           s.Codec,
				PacketsLost:     s.PacketsLost,
				Ssrc:            s.Ssrc,
				Timestamp:       s.Timestamp,
				TrackID:         s.TrackID,
				BytesReceived:   s.BytesReceived,
				PacketsReceived: s.PacketsReceived,
				AudioLevel:      s.AudioLevel,
				Jitter:          s.Jitter,
				Mos:             s.Mos,
			})
		}
		for _, s := range r.IceCandidateStats {
			report.IceCandidateStats = append(report.IceCandidateStats, IceCandidateStats(s))
		}
		for _, s := range r.IceCandidatePairStats {
			report.IceCandidatePairStats = append(report.IceCandidatePairStats, IceCandidatePairStats{
				ActiveCandidatePair:      s.ActiveCandidatePair,
				AvailableIncomingBitrate: s.AvailableIncomingBitrate,
				AvailableOutgoingBitrate: s.AvailableOutgoingBitrate,
				BytesReceived:            s.BytesReceived,
				BytesSent:                s.BytesSent,
				ConsentRequestsReceived:  s.ConsentRequestsReceived,
				ConsentRequestsSent:      s.ConsentRequestsSent,
				ConsentResponsesReceived: s.ConsentResponsesReceived,
				ConsentResponsesSent:     s.ConsentResponsesSent,
				CurrentRoundTripTime:     s.CurrentRoundTripTime,
				LocalCandidateID:         s.LocalCandidateID,
				LocalCandidateIP:         s.LocalCandidateIP,
				Nominated:                s.Nominated,
				Priority:                 s.Priority,
				Readable:                 s.Readable,
				RelayProtocol:            s.RelayProtocol,
				RemoteCandidateID:        s.RemoteCandidateID,
				RemoteCandidateIP:        s.RemoteCandidateIP,
				RequestsReceived:         s.RequestsReceived,
				RequestsSent:             s.RequestsSent,
				ResponsesReceived:        s.ResponsesReceived,
				ResponsesSent:            s.ResponsesSent,
				RetransmissionsReceived:  s.RetransmissionsReceived,
				RetransmissionsSent:      s.RetransmissionsSent,
				State:                    icePairState(s.State),
				TotalRoundTripTime:       s.TotalRoundTripTime,
				TransportID:              s.TransportID,
				Writeable:                s.Writeable,
			})
		}

		out = append(out, report)
	}
	return out
}
