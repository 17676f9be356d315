package signaling

// Raw per-peer-connection metrics as delivered by the backend. The shapes
// below are a mechanical mirror of the backend stats frames; internal/projection
// maps them onto the wire contract delivered to the application.

type StatsReport struct {
	PeerConnectionID      string                  `json:"peerConnectionId"`
	LocalAudioTrackStats  []LocalAudioTrackStats  `json:"localAudioTrackStats"`
	RemoteAudioTrackStats []RemoteAudioTrackStats `json:"remoteAudioTrackStats"`
	IceCandidateStats     []IceCandidateStats     `json:"iceCandidateStats"`
	IceCandidatePairStats []IceCandidatePairStats `json:"iceCandidatePairStats"`
}

type baseTrackStats struct {
	Codec       string  `json:"codec"`
	PacketsLost int64   `json:"packetsLost"`
	Ssrc        string  `json:"ssrc"`
	Timestamp   float64 `json:"timestamp"`
	TrackID     string  `json:"trackId"`
}

type LocalAudioTrackStats struct {
	baseTrackStats
	BytesSent     int64   `json:"bytesSent"`
	PacketsSent   int64   `json:"packetsSent"`
	RoundTripTime float64 `json:"roundTripTime"`
	AudioLevel    int     `json:"audioLevel"`
	Jitter        int     `json:"jitter"`
}

type RemoteAudioTrackStats struct {
	baseTrackStats
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

// IceCandidatePairState as reported by the backend.
type IceCandidatePairState string

const (
	PairStateFailed     IceCandidatePairState = "failed"
	PairStateFrozen     IceCandidatePairState = "frozen"
	PairStateInProgress IceCandidatePairState = "in-progress"
	PairStateSucceeded  IceCandidatePairState = "succeeded"
	PairStateWaiting    IceCandidatePairState = "waiting"
)

type IceCandidatePairStats struct {
	ActiveCandidatePair      bool                  `json:"activeCandidatePair"`
	AvailableIncomingBitrate float64               `json:"availableIncomingBitrate"`
	AvailableOutgoingBitrate float64               `json:"availableOutgoingBitrate"`
	BytesReceived            int64                 `json:"bytesReceived"`
	BytesSent                int64                 `json:"bytesSent"`
	ConsentRequestsReceived  int64                 `json:"consentRequestsReceived"`
	ConsentRequestsSent      int64                 `json:"consentRequestsSent"`
	ConsentResponsesReceived int64                 `json:"consentResponsesReceived"`
	ConsentResponsesSent     int64                 `json:"consentResponsesSent"`
	CurrentRoundTripTime     float64               `json:"currentRoundTripTime"`
	LocalCandidateID         string                `json:"localCandidateId"`
	LocalCandidateIP         string                `json:"localCandidateIp"`
	Nominated                bool                  `json:"nominated"`
	Priority                 int64                 `json:"priority"`
	Readable                 bool                  `json:"readable"`
	RelayProtocol            string                `json:"relayProtocol"`
	RemoteCandidateID        string                `json:"remoteCandidateId"`
	RemoteCandidateIP        string                `json:"remoteCandidateIp"`
	RequestsReceived         int64                 `json:"requestsReceived"`
	RequestsSent             int64                 `json:"requestsSent"`
	ResponsesReceived        int64                 `json:"responsesReceived"`
	ResponsesSent            int64                 `json:"responsesSent"`
	RetransmissionsReceived  int64                 `json:"retransmissionsReceived"`
	RetransmissionsSent      int64                 `json:"retransmissionsSent"`
	State                    IceCandidatePairState `json:"state"`
	TotalRoundTripTime       float64               `json:"totalRoundTripTime"`
	TransportID              string                `json:"transportId"`
	Writeable                bool                  `json:"writeable"`
}
