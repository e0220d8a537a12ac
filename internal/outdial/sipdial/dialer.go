// Package sipdial places outdial calls as SIP INVITEs through an outbound proxy.
package sipdial

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/emiago/sipgo"
	"github.com/emiago/sipgo/sip"
	"github.com/google/uuid"

	"github.com/sebas/outdial/internal/outdial/host"
)

// Config holds dialer configuration. Every request is sent to Proxy
// (host:port). Domain is the host part of request URIs and defaults to
// the proxy host.
type Config struct {
	Proxy     string
	Domain    string
	Transport string
	LocalHost string
	LocalPort int
	MediaPort int
	UserAgent string
	Codecs    []string

	// Events, if set, receives eAgentContact when a call is answered and
	// eAgentContactEnded when it ends.
	Events func(ctx context.Context, event host.ContactEvent)
}

type call struct {
	invite *sip.Request
	resp   *sip.Response
}

// Dialer implements host.Dialer over SIP.
type Dialer struct {
	cfg    Config
	ua     *sipgo.UserAgent
	client *sipgo.Client
	server *sipgo.Server

	mu    sync.Mutex
	calls map[string]*call // indexed by Call-ID
}

// New creates a SIP dialer. Call Serve to accept in-dialog requests.
func New(cfg Config) (*Dialer, error) {
	if cfg.Proxy == "" {
		return nil, ErrNoProxy
	}
	if cfg.Transport == "" {
		cfg.Transport = "udp"
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "outdial"
	}
	if cfg.Domain == "" {
		cfg.Domain = proxyHost(cfg.Proxy)
	}
	if cfg.MediaPort == 0 {
		cfg.MediaPort = 40000
	}

	ua, err := sipgo.NewUA(sipgo.WithUserAgent(cfg.UserAgent))
	if err != nil {
		return nil, fmt.Errorf("failed to create user agent: %w", err)
	}
	uas, err := sipgo.NewServer(ua)
	if err != nil {
		ua.Close()
		return nil, fmt.Errorf("failed to create server: %w", err)
	}
	uac, err := sipgo.NewClient(ua)
	if err != nil {
		ua.Close()
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	d := &Dialer{
		cfg:    cfg,
		ua:     ua,
		client: uac,
		server: uas,
		calls:  make(map[string]*call),
	}
	uas.OnBye(d.handleBYE)
	return d, nil
}

// Serve listens for in-dialog requests until ctx is done.
func (d *Dialer) Serve(ctx context.Context) error {
	addr := net.JoinHostPort(d.cfg.LocalHost, strconv.Itoa(d.cfg.LocalPort))
	slog.Info("[SIP] Listening", "transport", d.cfg.Transport, "addr", addr)
	return d.server.ListenAndServe(ctx, d.cfg.Transport, addr)
}

// Close releases the user agent.
func (d *Dialer) Close() error {
	return d.ua.Close()
}

// StartOutdial sends an INVITE for req and waits for the final response.
// The Call-ID becomes the interaction id of the response.
func (d *Dialer) StartOutdial(ctx context.Context, req host.OutdialRequest) (*host.OutdialResponse, error) {
	callID := uuid.New().String()
	localTag := uuid.New().String()[:8]

	offer, err := BuildOffer(d.cfg.LocalHost, d.cfg.MediaPort, d.cfg.Codecs)
	if err != nil {
		return nil, err
	}
	invite, err := d.buildINVITE(req, callID, localTag, offer)
	if err != nil {
		return nil, err
	}

	tx, err := d.client.TransactionRequest(ctx, invite)
	if err != nil {
		return nil, fmt.Errorf("send INVITE: %w", err)
	}
	defer tx.Terminate()

	slog.Info("[SIP] INVITE sent", "call_id", callID, "target", invite.Recipient.String())

	for {
		select {
		case <-ctx.Done():
			if err := d.sendCANCEL(invite); err != nil {
				slog.Warn("[SIP] CANCEL failed", "call_id", callID, "error", err)
			}
			return nil, &StatusError{Code: 487, Reason: "Request Terminated", CallID: callID}

		case resp := <-tx.Responses():
			if resp == nil {
				return nil, ErrNoResponse
			}
			code := int(resp.StatusCode)
			slog.Debug("[SIP] Response received", "call_id", callID, "status", code, "reason", resp.Reason)

			switch {
			case code < 200:
				continue
			case code < 300:
				return d.answered(ctx, invite, resp, callID), nil
			default:
				slog.Info("[SIP] Call rejected", "call_id", callID, "status", code, "reason", resp.Reason)
				return nil, &StatusError{Code: code, Reason: resp.Reason, CallID: callID}
			}

		case <-tx.Done():
			if err := tx.Err(); err != nil {
				return nil, fmt.Errorf("INVITE transaction: %w", err)
			}
			return nil, ErrNoResponse
		}
	}
}

func (d *Dialer) answered(ctx context.Context, invite *sip.Request, resp *sip.Response, callID string) *host.OutdialResponse {
	if err := d.sendACK(invite, resp); err != nil {
		// the call is still up after a lost ACK; the far end retransmits 200
		slog.Error("[SIP] Failed to send ACK", "call_id", callID, "error", err)
	}

	out := &host.OutdialResponse{
		InteractionID: callID,
		StatusCode:    int(resp.StatusCode),
		Reason:        resp.Reason,
		Details:       map[string]string{},
	}
	if to := resp.To(); to != nil {
		if tag, ok := to.Params.Get("tag"); ok {
			out.Details["remote_tag"] = tag
		}
	}
	if contact := resp.Contact(); contact != nil {
		out.Details["remote_contact"] = contact.Address.String()
	}
	if body := resp.Body(); len(body) > 0 {
		if addr, port, err := AnswerEndpoint(body); err == nil {
			out.Details["remote_media"] = net.JoinHostPort(addr, strconv.Itoa(port))
		} else {
			slog.Warn("[SIP] Unreadable SDP answer", "call_id", callID, "error", err)
		}
	}

	d.mu.Lock()
	d.calls[callID] = &call{invite: invite, resp: resp}
	d.mu.Unlock()

	slog.Info("[SIP] Call answered", "call_id", callID, "remote_contact", out.Details["remote_contact"])
	d.emit(ctx, host.EventContact, callID)
	return out
}

// buildINVITE constructs the outdial INVITE. Outdial metadata travels in
// X- headers so the proxy can route on it.
func (d *Dialer) buildINVITE(req host.OutdialRequest, callID, localTag string, body []byte) (*sip.Request, error) {
	target := req.Destination
	if !strings.HasPrefix(target, "sip:") && !strings.HasPrefix(target, "sips:") {
		target = "sip:" + target + "@" + d.cfg.Domain
	}
	var requestURI sip.Uri
	if err := sip.ParseUri(target, &requestURI); err != nil {
		return nil, fmt.Errorf("invalid target URI: %w", err)
	}

	invite := sip.NewRequest(sip.INVITE, requestURI)
	invite.SetDestination(d.cfg.Proxy)

	maxFwd := sip.MaxForwardsHeader(70)
	invite.AppendHeader(&maxFwd)

	fromParams := sip.NewParams()
	fromParams.Add("tag", localTag)
	invite.AppendHeader(&sip.FromHeader{
		Address: sip.Uri{
			Scheme: "sip",
			User:   req.Origin,
			Host:   d.cfg.Domain,
		},
		Params: fromParams,
	})
	invite.AppendHeader(&sip.ToHeader{
		Address: requestURI,
		Params:  sip.NewParams(),
	})

	callIDHdr := sip.CallIDHeader(callID)
	invite.AppendHeader(&callIDHdr)
	invite.AppendHeader(&sip.CSeqHeader{SeqNo: 1, MethodName: sip.INVITE})
	invite.AppendHeader(&sip.ContactHeader{
		Address: sip.Uri{
			Scheme: "sip",
			User:   "outdial",
			Host:   d.cfg.LocalHost,
			Port:   d.cfg.LocalPort,
		},
	})

	if req.EntryPointID != "" {
		invite.AppendHeader(sip.NewHeader("X-Entry-Point-Id", req.EntryPointID))
	}
	invite.AppendHeader(sip.NewHeader("X-Outbound-Type", req.OutboundType))
	invite.AppendHeader(sip.NewHeader("X-Media-Type", req.MediaType))
	invite.AppendHeader(sip.NewHeader("X-Direction", req.Direction))

	keys := make([]string, 0, len(req.Attributes))
	for k := range req.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		invite.AppendHeader(sip.NewHeader("X-Attr-"+k, req.Attributes[k]))
	}

	contentType := sip.ContentTypeHeader("application/sdp")
	invite.AppendHeader(&contentType)
	invite.SetBody(body)

	return invite, nil
}

// sendACK acknowledges a 2xx. The ACK is sent to the remote target from
// the response's Contact, outside the INVITE transaction.
func (d *Dialer) sendACK(invite *sip.Request, resp *sip.Response) error {
	requestURI := invite.Recipient
	if contact := resp.Contact(); contact != nil {
		requestURI = contact.Address
	}

	ack := sip.NewRequest(sip.ACK, requestURI)
	sip.CopyHeaders("From", invite, ack)
	sip.CopyHeaders("Call-ID", invite, ack)
	if to := resp.To(); to != nil {
		ack.AppendHeader(&sip.ToHeader{
			DisplayName: to.DisplayName,
			Address:     to.Address,
			Params:      to.Params,
		})
	}
	if cseq := invite.CSeq(); cseq != nil {
		ack.AppendHeader(&sip.CSeqHeader{SeqNo: cseq.SeqNo, MethodName: sip.ACK})
	}
	maxFwd := sip.MaxForwardsHeader(70)
	ack.AppendHeader(&maxFwd)
	ack.SetDestination(d.cfg.Proxy)

	if err := d.client.WriteRequest(ack); err != nil {
		return fmt.Errorf("write ACK: %w", err)
	}
	return nil
}

// sendCANCEL cancels a pending INVITE.
func (d *Dialer) sendCANCEL(invite *sip.Request) error {
	cancelReq := sip.NewRequest(sip.CANCEL, invite.Recipient)
	sip.CopyHeaders("Via", invite, cancelReq)
	sip.CopyHeaders("From", invite, cancelReq)
	sip.CopyHeaders("To", invite, cancelReq)
	sip.CopyHeaders("Call-ID", invite, cancelReq)
	if cseq := invite.CSeq(); cseq != nil {
		cancelReq.AppendHeader(&sip.CSeqHeader{SeqNo: cseq.SeqNo, MethodName: sip.CANCEL})
	}
	maxFwd := sip.MaxForwardsHeader(70)
	cancelReq.AppendHeader(&maxFwd)
	cancelReq.SetDestination(d.cfg.Proxy)

	// the caller's context is already done
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tx, err := d.client.TransactionRequest(ctx, cancelReq)
	if err != nil {
		return fmt.Errorf("send CANCEL: %w", err)
	}
	defer tx.Terminate()

	select {
	case resp := <-tx.Responses():
		if resp != nil {
			slog.Debug("[SIP] CANCEL response", "status", resp.StatusCode)
		}
	case <-tx.Done():
	case <-ctx.Done():
	}
	slog.Info("[SIP] CANCEL sent", "target", invite.Recipient.String())
	return nil
}

// Hangup sends BYE for an answered call.
func (d *Dialer) Hangup(ctx context.Context, callID string) error {
	d.mu.Lock()
	c, ok := d.calls[callID]
	delete(d.calls, callID)
	d.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCall, callID)
	}

	requestURI := c.invite.Recipient
	if contact := c.resp.Contact(); contact != nil {
		requestURI = contact.Address
	}
	bye := sip.NewRequest(sip.BYE, requestURI)
	sip.CopyHeaders("From", c.invite, bye)
	sip.CopyHeaders("Call-ID", c.invite, bye)
	if to := c.resp.To(); to != nil {
		bye.AppendHeader(&sip.ToHeader{Address: to.Address, Params: to.Params})
	}
	if cseq := c.invite.CSeq(); cseq != nil {
		bye.AppendHeader(&sip.CSeqHeader{SeqNo: cseq.SeqNo + 1, MethodName: sip.BYE})
	}
	maxFwd := sip.MaxForwardsHeader(70)
	bye.AppendHeader(&maxFwd)
	bye.SetDestination(d.cfg.Proxy)

	tx, err := d.client.TransactionRequest(ctx, bye)
	if err != nil {
		return fmt.Errorf("send BYE: %w", err)
	}
	defer tx.Terminate()

	select {
	case resp := <-tx.Responses():
		if resp != nil && resp.StatusCode >= 300 {
			slog.Warn("[SIP] BYE rejected", "call_id", callID, "status", resp.StatusCode)
		}
	case <-tx.Done():
	case <-ctx.Done():
		return ctx.Err()
	}

	slog.Info("[SIP] Call hung up", "call_id", callID)
	d.emit(ctx, host.EventContactEnded, callID)
	return nil
}

// handleBYE ends a call hung up by the far end.
func (d *Dialer) handleBYE(req *sip.Request, tx sip.ServerTransaction) {
	if err := tx.Respond(d.remoteHangup(req)); err != nil {
		slog.Warn("[SIP] Failed to respond to BYE", "error", err)
	}
}

// remoteHangup forgets the call named by a BYE, emits eAgentContactEnded
// for it and returns the response to send: 200 for a known call, 481
// otherwise.
func (d *Dialer) remoteHangup(req *sip.Request) *sip.Response {
	callID := ""
	if h := req.CallID(); h != nil {
		callID = h.Value()
	}

	d.mu.Lock()
	_, known := d.calls[callID]
	delete(d.calls, callID)
	d.mu.Unlock()

	if !known {
		slog.Debug("[SIP] BYE for unknown call", "call_id", callID)
		return sip.NewResponseFromRequest(req, sip.StatusCallTransactionDoesNotExists, "Call/Transaction Does Not Exist", nil)
	}

	slog.Info("[SIP] Remote hangup", "call_id", callID)
	d.emit(context.Background(), host.EventContactEnded, callID)
	return sip.NewResponseFromRequest(req, sip.StatusOK, "OK", nil)
}

func (d *Dialer) emit(ctx context.Context, name host.EventName, callID string) {
	if d.cfg.Events == nil {
		return
	}
	d.cfg.Events(ctx, host.ContactEvent{Name: name, Data: host.EventData{InteractionID: callID}})
}

func proxyHost(proxy string) string {
	h, _, err := net.SplitHostPort(proxy)
	if err != nil {
		return proxy
	}
	return h
}

// IsStatus reports whether err is a SIP final response with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}
