package sipdial

import (
	"fmt"
	"time"

	"github.com/pion/sdp/v3"
)

// rtpmaps for the static payload types offered by default
var rtpmaps = map[string]string{
	"0":   "PCMU/8000",
	"8":   "PCMA/8000",
	"101": "telephone-event/8000",
}

// DefaultCodecs are offered when none are configured: PCMU, PCMA and DTMF.
var DefaultCodecs = []string{"0", "8", "101"}

// BuildOffer creates the SDP offer carried by the outdial INVITE.
func BuildOffer(addr string, port int, codecs []string) ([]byte, error) {
	if len(codecs) == 0 {
		codecs = DefaultCodecs
	}

	attrs := make([]sdp.Attribute, 0, len(codecs)+2)
	for _, pt := range codecs {
		if name, ok := rtpmaps[pt]; ok {
			attrs = append(attrs, sdp.Attribute{Key: "rtpmap", Value: pt + " " + name})
		}
		if pt == "101" {
			attrs = append(attrs, sdp.Attribute{Key: "fmtp", Value: "101 0-16"})
		}
	}
	attrs = append(attrs, sdp.Attribute{Key: "ptime", Value: "20"}, sdp.Attribute{Key: "sendrecv"})

	session := uint64(time.Now().Unix())
	desc := &sdp.SessionDescription{
		Origin: sdp.Origin{
			Username:       "outdial",
			SessionID:      session,
			SessionVersion: session,
			NetworkType:    "IN",
			AddressType:    "IP4",
			UnicastAddress: addr,
		},
		SessionName: "Outdial",
		ConnectionInformation: &sdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: "IP4",
			Address:     &sdp.Address{Address: addr},
		},
		TimeDescriptions: []sdp.TimeDescription{{Timing: sdp.Timing{}}},
		MediaDescriptions: []*sdp.MediaDescription{
			{
				MediaName: sdp.MediaName{
					Media:   "audio",
					Port:    sdp.RangedPort{Value: port},
					Protos:  []string{"RTP", "AVP"},
					Formats: codecs,
				},
				Attributes: attrs,
			},
		},
	}

	body, err := desc.Marshal()
	if err != nil {
		return nil, fmt.Errorf("marshal SDP offer: %w", err)
	}
	return body, nil
}

// AnswerEndpoint extracts the remote audio address and port from an SDP answer.
func AnswerEndpoint(body []byte) (string, int, error) {
	var desc sdp.SessionDescription
	if err := desc.Unmarshal(body); err != nil {
		return "", 0, fmt.Errorf("parse SDP answer: %w", err)
	}

	addr := ""
	if desc.ConnectionInformation != nil && desc.ConnectionInformation.Address != nil {
		addr = desc.ConnectionInformation.Address.Address
	}
	for _, md := range desc.MediaDescriptions {
		if md.MediaName.Media != "audio" {
			continue
		}
		if md.ConnectionInformation != nil && md.ConnectionInformation.Address != nil {
			addr = md.ConnectionInformation.Address.Address
		}
		return addr, md.MediaName.Port.Value, nil
	}
	return "", 0, fmt.Errorf("no audio media in SDP answer")
}
