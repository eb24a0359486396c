package kv

import (
	"fmt"

	"github.com/eau2/eau2/codec"
)

// MsgKind discriminates the seven message shapes carried over the wire
// (SPEC_FULL.md §4.6). It is encoded as a uint, matching the grammar's
// `msg := uint <body> "\n"`.
type MsgKind uint64

const (
	KindAck MsgKind = iota
	KindPut
	KindReply
	KindGet
	KindWaitAndGet
	KindRegister
	KindDirectory
)

func (k MsgKind) String() string {
	switch k {
	case KindAck:
		return "Ack"
	case KindPut:
		return "Put"
	case KindReply:
		return "Reply"
	case KindGet:
		return "Get"
	case KindWaitAndGet:
		return "WaitAndGet"
	case KindRegister:
		return "Register"
	case KindDirectory:
		return "Directory"
	default:
		return fmt.Sprintf("MsgKind(%d)", uint64(k))
	}
}

// Message is the sum type of every frame the transport carries. Rather
// than the source's downcast methods (as_put, as_get, ...), each variant
// self-identifies via Kind and callers use a type switch; Store.HandleMessage's
// default branch returns an ErrMalformedMessage error for an unhandled kind.
type Message interface {
	Kind() MsgKind
	Encode(w *codec.Writer)
}

// AckMsg carries no payload; it unblocks a pending remote Put.
type AckMsg struct{}

func (AckMsg) Kind() MsgKind { return KindAck }
func (AckMsg) Encode(w *codec.Writer) {
	w.PutUint(uint64(KindAck))
}

// RegisterMsg announces a node's presence to a peer.
type RegisterMsg struct {
	SenderIP   string
	SenderNode int
}

func (RegisterMsg) Kind() MsgKind { return KindRegister }
func (m RegisterMsg) Encode(w *codec.Writer) {
	w.PutUint(uint64(KindRegister))
	w.PutString(m.SenderIP)
	w.PutUint(uint64(m.SenderNode))
}

// DirectoryMsg is the seed node's authoritative (ip, index) list.
type DirectoryMsg struct {
	IPs     []string
	Indices []int
}

func (DirectoryMsg) Kind() MsgKind { return KindDirectory }
func (m DirectoryMsg) Encode(w *codec.Writer) {
	w.PutUint(uint64(KindDirectory))
	w.OpenSeq(uint64(len(m.IPs)))
	for _, ip := range m.IPs {
		w.PutString(ip)
	}
	w.CloseSeq()
	w.OpenSeq(uint64(len(m.Indices)))
	for _, idx := range m.Indices {
		w.PutUint(uint64(idx))
	}
	w.CloseSeq()
}

// AddClient appends a peer to the directory.
func (m *DirectoryMsg) AddClient(ip string, idx int) {
	m.IPs = append(m.IPs, ip)
	m.Indices = append(m.Indices, idx)
}

// PutMsg asks the home node to store blob under key.
type PutMsg struct {
	Key  Key
	Blob []byte
}

func (PutMsg) Kind() MsgKind { return KindPut }
func (m PutMsg) Encode(w *codec.Writer) {
	w.PutUint(uint64(KindPut))
	m.Key.Encode(w)
	w.PutString(string(m.Blob))
}

// GetMsg asks the home node for the current value at key. Fatal (kind 4)
// at the home node if absent.
type GetMsg struct {
	Key Key
}

func (GetMsg) Kind() MsgKind { return KindGet }
func (m GetMsg) Encode(w *codec.Writer) {
	w.PutUint(uint64(KindGet))
	m.Key.Encode(w)
}

// WaitAndGetMsg asks the home node for the value at key, blocking there
// until it appears.
type WaitAndGetMsg struct {
	Key Key
}

func (WaitAndGetMsg) Kind() MsgKind { return KindWaitAndGet }
func (m WaitAndGetMsg) Encode(w *codec.Writer) {
	w.PutUint(uint64(KindWaitAndGet))
	m.Key.Encode(w)
}

// ReplyMsg carries the result of a Get or WaitAndGet back to the
// requester. Request records which of the two kinds this reply answers.
type ReplyMsg struct {
	Request MsgKind
	Blob    []byte
}

func (ReplyMsg) Kind() MsgKind { return KindReply }
func (m ReplyMsg) Encode(w *codec.Writer) {
	w.PutUint(uint64(KindReply))
	w.PutUint(uint64(m.Request))
	w.PutString(string(m.Blob))
}

// EncodeMessage encodes m followed by the "\n" frame delimiter.
func EncodeMessage(m Message) []byte {
	w := codec.NewWriter()
	m.Encode(w)
	w.PutFrameDelim()
	return w.Bytes()
}

// DecodeMessage decodes a single message from a frame (without its
// trailing "\n", which the transport layer strips during reassembly; see
// codec.ReadFrame).
func DecodeMessage(frame []byte) (Message, error) {
	r := codec.NewReader(frame)
	kindNum, err := r.Uint()
	if err != nil {
		return nil, fmt.Errorf("kv: decoding message kind: %w", err)
	}
	switch MsgKind(kindNum) {
	case KindAck:
		return AckMsg{}, nil
	case KindRegister:
		ip, err := r.String()
		if err != nil {
			return nil, fmt.Errorf("kv: decoding register ip: %w", err)
		}
		idx, err := r.Uint()
		if err != nil {
			return nil, fmt.Errorf("kv: decoding register index: %w", err)
		}
		return RegisterMsg{SenderIP: ip, SenderNode: int(idx)}, nil
	case KindDirectory:
		nIPs, err := r.OpenSeq()
		if err != nil {
			return nil, fmt.Errorf("kv: decoding directory ips: %w", err)
		}
		ips := make([]string, nIPs)
		for i := range ips {
			ips[i], err = r.String()
			if err != nil {
				return nil, fmt.Errorf("kv: decoding directory ip %d: %w", i, err)
			}
		}
		if err := r.CloseSeq(); err != nil {
			return nil, err
		}
		nIdx, err := r.OpenSeq()
		if err != nil {
			return nil, fmt.Errorf("kv: decoding directory indices: %w", err)
		}
		indices := make([]int, nIdx)
		for i := range indices {
			v, err := r.Uint()
			if err != nil {
				return nil, fmt.Errorf("kv: decoding directory index %d: %w", i, err)
			}
			indices[i] = int(v)
		}
		if err := r.CloseSeq(); err != nil {
			return nil, err
		}
		return DirectoryMsg{IPs: ips, Indices: indices}, nil
	case KindPut:
		key, err := DecodeKey(r)
		if err != nil {
			return nil, fmt.Errorf("kv: decoding put key: %w", err)
		}
		blob, err := r.String()
		if err != nil {
			return nil, fmt.Errorf("kv: decoding put blob: %w", err)
		}
		return PutMsg{Key: key, Blob: []byte(blob)}, nil
	case KindGet:
		key, err := DecodeKey(r)
		if err != nil {
			return nil, fmt.Errorf("kv: decoding get key: %w", err)
		}
		return GetMsg{Key: key}, nil
	case KindWaitAndGet:
		key, err := DecodeKey(r)
		if err != nil {
			return nil, fmt.Errorf("kv: decoding wait_and_get key: %w", err)
		}
		return WaitAndGetMsg{Key: key}, nil
	case KindReply:
		reqKind, err := r.Uint()
		if err != nil {
			return nil, fmt.Errorf("kv: decoding reply request kind: %w", err)
		}
		blob, err := r.String()
		if err != nil {
			return nil, fmt.Errorf("kv: decoding reply blob: %w", err)
		}
		return ReplyMsg{Request: MsgKind(reqKind), Blob: []byte(blob)}, nil
	default:
		return nil, fmt.Errorf("kv: %w: unknown message kind %d", ErrMalformedMessage, kindNum)
	}
}
