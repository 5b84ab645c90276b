package peer

import (
	"fmt"
	"log/slog"

	"github.com/pion/transport/v4/stdnet"
	"github.com/pion/webrtc/v4"

	"github.com/voicelink/voicelink/internal/negotiation"
	"github.com/voicelink/voicelink/internal/signaling"
)

// Config carries the transport knobs for building PeerConnections.
type Config struct {
	ICEServers []webrtc.ICEServer

	// ForceRelay restricts ICE to TURN-relayed candidate pairs.
	ForceRelay bool

	// UDPPortRange constrains the ephemeral ports ICE binds. Zero values
	// leave the OS default in place.
	UDPPortMin uint16
	UDPPortMax uint16

	Logger *slog.Logger
}

// NewAPI builds the shared pion API object. One API serves every session;
// per-session state lives in the PeerConnection.
func NewAPI(cfg Config) (*webrtc.API, error) {
	se := webrtc.SettingEngine{}
	se.LoggerFactory = NewLoggerFactory(cfg.Logger)

	nw, err := stdnet.NewNet()
	if err != nil {
		return nil, fmt.Errorf("create net: %w", err)
	}
	se.SetNet(nw)

	if cfg.UDPPortMin != 0 || cfg.UDPPortMax != 0 {
		if err := se.SetEphemeralUDPPortRange(cfg.UDPPortMin, cfg.UDPPortMax); err != nil {
			return nil, fmt.Errorf("set ephemeral udp port range: %w", err)
		}
	}

	return webrtc.NewAPI(webrtc.WithSettingEngine(se)), nil
}

// NewFactory returns a negotiation.Factory that builds one Connectivity per
// session from a shared API.
func NewFactory(cfg Config) (negotiation.Factory, error) {
	api, err := NewAPI(cfg)
	if err != nil {
		return nil, err
	}
	return func(sink negotiation.Sink) (negotiation.Connectivity, error) {
		return newConnectivity(api, cfg, sink)
	}, nil
}

// connectivity implements negotiation.Connectivity on a pion PeerConnection.
type connectivity struct {
	pc *webrtc.PeerConnection
}

func newConnectivity(api *webrtc.API, cfg Config, sink negotiation.Sink) (*connectivity, error) {
	policy := webrtc.ICETransportPolicyAll
	if cfg.ForceRelay {
		policy = webrtc.ICETransportPolicyRelay
	}

	pc, err := api.NewPeerConnection(webrtc.Configuration{
		ICEServers:         cfg.ICEServers,
		ICETransportPolicy: policy,
	})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	// The first offer must carry an audio section even though the outbound
	// track attaches only once the connection is up.
	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio,
		webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionRecvonly},
	); err != nil {
		pc.Close()
		return nil, fmt.Errorf("add audio transceiver: %w", err)
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		// nil marks the end of gathering; with trickle there is nothing to
		// forward for it.
		if c == nil {
			return
		}
		init := c.ToJSON()
		sink.LocalCandidate(signaling.Candidate{
			Candidate:     init.Candidate,
			SDPMid:        init.SDPMid,
			SDPMLineIndex: init.SDPMLineIndex,
		})
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		sink.ConnectionStateChanged(state.String())
	})

	pc.OnTrack(func(t *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		sink.RemoteTrackArrived(RemoteTrack{t: t})
	})

	return &connectivity{pc: pc}, nil
}

func (c *connectivity) CreateOffer() (signaling.Description, error) {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return signaling.Description{}, fmt.Errorf("create offer: %w", err)
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return signaling.Description{}, fmt.Errorf("set local description: %w", err)
	}
	return fromPionDescription(c.pc.LocalDescription()), nil
}

func (c *connectivity) CreateAnswer(offer signaling.Description) (signaling.Description, error) {
	if err := c.pc.SetRemoteDescription(toPionDescription(offer)); err != nil {
		return signaling.Description{}, fmt.Errorf("set remote description: %w", err)
	}
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return signaling.Description{}, fmt.Errorf("create answer: %w", err)
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return signaling.Description{}, fmt.Errorf("set local description: %w", err)
	}
	return fromPionDescription(c.pc.LocalDescription()), nil
}

func (c *connectivity) SetRemoteDescription(desc signaling.Description) error {
	return c.pc.SetRemoteDescription(toPionDescription(desc))
}

func (c *connectivity) AddCandidate(cand signaling.Candidate) error {
	return c.pc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:     cand.Candidate,
		SDPMid:        cand.SDPMid,
		SDPMLineIndex: cand.SDPMLineIndex,
	})
}

func (c *connectivity) AttachTrack(t negotiation.LocalTrack) error {
	lt, ok := t.(LocalTrack)
	if !ok {
		return fmt.Errorf("track %q is not webrtc-backed", t.ID())
	}
	if _, err := c.pc.AddTrack(lt.pionTrack()); err != nil {
		return fmt.Errorf("add track: %w", err)
	}
	return nil
}

func (c *connectivity) States() negotiation.States {
	s := negotiation.States{
		Connection:            c.pc.ConnectionState().String(),
		ICEConnection:         c.pc.ICEConnectionState().String(),
		ICEGathering:          c.pc.ICEGatheringState().String(),
		Signaling:             c.pc.SignalingState().String(),
		SelectedCandidatePair: negotiation.StateUnavailable,
	}
	if pair := selectedPair(c.pc); pair != "" {
		s.SelectedCandidatePair = pair
	}
	return s
}

func (c *connectivity) Close() error {
	return c.pc.Close()
}

func selectedPair(pc *webrtc.PeerConnection) string {
	sctp := pc.SCTP()
	if sctp == nil {
		return ""
	}
	dtls := sctp.Transport()
	if dtls == nil {
		return ""
	}
	ice := dtls.ICETransport()
	if ice == nil {
		return ""
	}
	pair, err := ice.GetSelectedCandidatePair()
	if err != nil || pair == nil || pair.Local == nil || pair.Remote == nil {
		return ""
	}
	return fmt.Sprintf("%s:%d <-> %s:%d",
		pair.Local.Address, pair.Local.Port,
		pair.Remote.Address, pair.Remote.Port)
}

func toPionDescription(d signaling.Description) webrtc.SessionDescription {
	return webrtc.SessionDescription{Type: webrtc.NewSDPType(d.Type), SDP: d.SDP}
}

func fromPionDescription(d *webrtc.SessionDescription) signaling.Description {
	if d == nil {
		return signaling.Description{}
	}
	return signaling.Description{Type: d.Type.String(), SDP: d.SDP}
}
