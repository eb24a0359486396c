package kv

import "testing"

func roundTrip(t *testing.T, m Message) Message {
	t.Helper()
	frame := EncodeMessage(m)
	if frame[len(frame)-1] != '\n' {
		t.Fatalf("encoded message missing frame delimiter: %q", frame)
	}
	got, err := DecodeMessage(frame[:len(frame)-1])
	if err != nil {
		t.Fatalf("DecodeMessage: %v", err)
	}
	return got
}

func TestMessageRoundTrip_Ack(t *testing.T) {
	got := roundTrip(t, AckMsg{})
	if _, ok := got.(AckMsg); !ok {
		t.Fatalf("got %T, want AckMsg", got)
	}
}

func TestMessageRoundTrip_Register(t *testing.T) {
	want := RegisterMsg{SenderIP: "127.0.0.3", SenderNode: 1}
	got, ok := roundTrip(t, want).(RegisterMsg)
	if !ok {
		t.Fatalf("got %T, want RegisterMsg", got)
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestMessageRoundTrip_Directory(t *testing.T) {
	want := DirectoryMsg{}
	want.AddClient("127.0.0.1", 0)
	want.AddClient("127.0.0.2", 1)
	want.AddClient("127.0.0.3", 2)
	want.AddClient("127.0.0.4", 3)

	got, ok := roundTrip(t, want).(DirectoryMsg)
	if !ok {
		t.Fatalf("got %T, want DirectoryMsg", got)
	}
	if len(got.IPs) != 4 || len(got.Indices) != 4 {
		t.Fatalf("got %+v, want 4 clients", got)
	}
	for i := range want.IPs {
		if got.IPs[i] != want.IPs[i] || got.Indices[i] != want.Indices[i] {
			t.Errorf("client %d: got (%s,%d), want (%s,%d)", i, got.IPs[i], got.Indices[i], want.IPs[i], want.Indices[i])
		}
	}
}

func TestMessageRoundTrip_Put(t *testing.T) {
	want := PutMsg{Key: NewKey("k", 2), Blob: []byte("blob-bytes")}
	got, ok := roundTrip(t, want).(PutMsg)
	if !ok {
		t.Fatalf("got %T, want PutMsg", got)
	}
	if !got.Key.Equals(want.Key) || string(got.Blob) != string(want.Blob) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestMessageRoundTrip_Get(t *testing.T) {
	want := GetMsg{Key: NewKey("k", 0)}
	got, ok := roundTrip(t, want).(GetMsg)
	if !ok || !got.Key.Equals(want.Key) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestMessageRoundTrip_WaitAndGet(t *testing.T) {
	want := WaitAndGetMsg{Key: NewKey("k", 0)}
	got, ok := roundTrip(t, want).(WaitAndGetMsg)
	if !ok || !got.Key.Equals(want.Key) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestMessageRoundTrip_Reply(t *testing.T) {
	want := ReplyMsg{Request: KindWaitAndGet, Blob: []byte("payload")}
	got, ok := roundTrip(t, want).(ReplyMsg)
	if !ok {
		t.Fatalf("got %T, want ReplyMsg", got)
	}
	if got.Request != want.Request || string(got.Blob) != string(want.Blob) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestDecodeMessage_UnknownKind(t *testing.T) {
	if _, err := DecodeMessage([]byte("{99}")); err == nil {
		t.Fatal("expected error decoding unknown message kind")
	}
}
