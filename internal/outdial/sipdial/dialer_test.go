package sipdial

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/emiago/sipgo/sip"

	"github.com/sebas/outdial/internal/outdial/host"
)

func testDialer() *Dialer {
	return &Dialer{
		cfg: Config{
			Proxy:     "10.0.0.1:5060",
			Domain:    "pbx.example.com",
			LocalHost: "127.0.0.1",
			LocalPort: 5070,
		},
		calls: make(map[string]*call),
	}
}

func TestBuildINVITE(t *testing.T) {
	d := testDialer()
	req := host.NewOutdialRequest("+15551234", "ep-9", "+14445550000")
	req.Attributes = map[string]string{"campaign": "spring", "agent": "a-1"}

	invite, err := d.buildINVITE(req, "call-1", "tag1", []byte("v=0\r\n"))
	if err != nil {
		t.Fatalf("buildINVITE() error = %v", err)
	}

	if got := invite.Recipient.String(); got != "sip:+15551234@pbx.example.com" {
		t.Errorf("Recipient = %q", got)
	}
	if got := invite.Destination(); got != "10.0.0.1:5060" {
		t.Errorf("Destination() = %q, want proxy", got)
	}

	headers := map[string]string{
		"X-Entry-Point-Id": "ep-9",
		"X-Outbound-Type":  host.OutboundTypeOutdial,
		"X-Media-Type":     host.MediaTypeTelephony,
		"X-Direction":      host.DirectionOutbound,
		"X-Attr-campaign":  "spring",
		"X-Attr-agent":     "a-1",
		"Content-Type":     "application/sdp",
	}
	for name, want := range headers {
		h := invite.GetHeader(name)
		if h == nil {
			t.Errorf("missing header %s", name)
			continue
		}
		if h.Value() != want {
			t.Errorf("%s = %q, want %q", name, h.Value(), want)
		}
	}

	if got := invite.CallID().Value(); got != "call-1" {
		t.Errorf("Call-ID = %q, want call-1", got)
	}
	from := invite.From()
	if from == nil || from.Address.User != "+14445550000" {
		t.Errorf("From = %v, want origin as user", from)
	}
	if tag, _ := from.Params.Get("tag"); tag != "tag1" {
		t.Errorf("From tag = %q, want tag1", tag)
	}
	if string(invite.Body()) != "v=0\r\n" {
		t.Errorf("Body() = %q", invite.Body())
	}
}

func TestBuildINVITEAcceptsSIPURI(t *testing.T) {
	d := testDialer()
	req := host.NewOutdialRequest("sip:bob@other.example.com", "", "")

	invite, err := d.buildINVITE(req, "call-2", "tag2", nil)
	if err != nil {
		t.Fatalf("buildINVITE() error = %v", err)
	}
	if got := invite.Recipient.Host; got != "other.example.com" {
		t.Errorf("Recipient.Host = %q, want other.example.com", got)
	}
	if invite.GetHeader("X-Entry-Point-Id") != nil {
		t.Error("X-Entry-Point-Id set for empty entry point")
	}
}

func TestBuildOffer(t *testing.T) {
	body, err := BuildOffer("192.0.2.10", 40000, nil)
	if err != nil {
		t.Fatalf("BuildOffer() error = %v", err)
	}
	s := string(body)
	for _, want := range []string{
		"c=IN IP4 192.0.2.10",
		"m=audio 40000 RTP/AVP 0 8 101",
		"a=rtpmap:0 PCMU/8000",
		"a=rtpmap:101 telephone-event/8000",
	} {
		if !strings.Contains(s, want) {
			t.Errorf("offer missing %q:\n%s", want, s)
		}
	}

	addr, port, err := AnswerEndpoint(body)
	if err != nil {
		t.Fatalf("AnswerEndpoint() error = %v", err)
	}
	if addr != "192.0.2.10" || port != 40000 {
		t.Errorf("AnswerEndpoint() = %s:%d, want 192.0.2.10:40000", addr, port)
	}
}

func TestAnswerEndpointWithoutAudio(t *testing.T) {
	body := "v=0\r\no=- 1 1 IN IP4 192.0.2.1\r\ns=-\r\nc=IN IP4 192.0.2.1\r\nt=0 0\r\nm=video 5000 RTP/AVP 96\r\n"
	if _, _, err := AnswerEndpoint([]byte(body)); err == nil {
		t.Error("AnswerEndpoint() error = nil, want no audio error")
	}
}

func TestNewRequiresProxy(t *testing.T) {
	if _, err := New(Config{}); !errors.Is(err, ErrNoProxy) {
		t.Errorf("New() error = %v, want ErrNoProxy", err)
	}
}

func TestStatusError(t *testing.T) {
	tests := []struct {
		code      int
		temporary bool
	}{
		{486, true},
		{503, true},
		{404, false},
		{603, false},
	}
	for _, tt := range tests {
		err := fmt.Errorf("dial: %w", &StatusError{Code: tt.code, Reason: "x"})
		if !IsStatus(err, tt.code) {
			t.Errorf("IsStatus(%d) = false", tt.code)
		}
		var se *StatusError
		errors.As(err, &se)
		if se.Temporary() != tt.temporary {
			t.Errorf("StatusError{%d}.Temporary() = %v, want %v", tt.code, se.Temporary(), tt.temporary)
		}
	}
}

func TestHangupUnknownCall(t *testing.T) {
	d := testDialer()
	if err := d.Hangup(t.Context(), "nope"); !errors.Is(err, ErrUnknownCall) {
		t.Errorf("Hangup() error = %v, want ErrUnknownCall", err)
	}
}

func newBYE(callID string) *sip.Request {
	bye := sip.NewRequest(sip.BYE, sip.Uri{Scheme: "sip", User: "outdial", Host: "127.0.0.1", Port: 5070})
	fromParams := sip.NewParams()
	fromParams.Add("tag", "remote1")
	bye.AppendHeader(&sip.FromHeader{Address: sip.Uri{Scheme: "sip", User: "bob", Host: "pbx.example.com"}, Params: fromParams})
	toParams := sip.NewParams()
	toParams.Add("tag", "local1")
	bye.AppendHeader(&sip.ToHeader{Address: sip.Uri{Scheme: "sip", User: "outdial", Host: "127.0.0.1"}, Params: toParams})
	callIDHdr := sip.CallIDHeader(callID)
	bye.AppendHeader(&callIDHdr)
	bye.AppendHeader(&sip.CSeqHeader{SeqNo: 2, MethodName: sip.BYE})
	return bye
}

func TestRemoteHangupEndsKnownCall(t *testing.T) {
	d := testDialer()
	var got []host.ContactEvent
	d.cfg.Events = func(_ context.Context, ev host.ContactEvent) { got = append(got, ev) }
	d.calls["call-7"] = &call{}

	res := d.remoteHangup(newBYE("call-7"))
	if res.StatusCode != sip.StatusOK {
		t.Errorf("StatusCode = %d, want 200", res.StatusCode)
	}
	if _, ok := d.calls["call-7"]; ok {
		t.Error("call still tracked after BYE")
	}
	if len(got) != 1 || got[0].Name != host.EventContactEnded || got[0].Data.InteractionID != "call-7" {
		t.Errorf("events = %+v, want one eAgentContactEnded for call-7", got)
	}
}

func TestRemoteHangupUnknownCall(t *testing.T) {
	d := testDialer()
	var got []host.ContactEvent
	d.cfg.Events = func(_ context.Context, ev host.ContactEvent) { got = append(got, ev) }

	res := d.remoteHangup(newBYE("stale"))
	if res.StatusCode != sip.StatusCallTransactionDoesNotExists {
		t.Errorf("StatusCode = %d, want 481", res.StatusCode)
	}
	if len(got) != 0 {
		t.Errorf("events = %+v, want none", got)
	}
}
