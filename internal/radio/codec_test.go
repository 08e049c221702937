package radio

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/skobkin/meshbridge/internal/domain"
	"github.com/skobkin/meshbridge/internal/link"
	"github.com/skobkin/meshbridge/internal/radioconfig"
	"github.com/skobkin/meshbridge/internal/wire"
)

type sentPacket struct {
	To       uint32
	Channel  uint32
	ID       uint32
	HopLimit uint32
	WantAck  bool
	Priority uint32
	Portnum  uint32
	Payload  []byte
}

func mustCodec(t *testing.T) *MeshtasticCodec {
	t.Helper()
	codec, err := NewMeshtasticCodec()
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}

	return codec
}

func mustField(t *testing.T, b []byte, num wire.Number) wire.Field {
	t.Helper()
	f, ok, err := wire.Find(b, num)
	if err != nil {
		t.Fatalf("find field %d: %v", num, err)
	}
	if !ok {
		t.Fatalf("field %d missing in %x", num, b)
	}

	return f
}

func decodeSentPacket(t *testing.T, frame []byte) sentPacket {
	t.Helper()
	packet := mustField(t, frame, toRadioPacket).Bytes
	out := sentPacket{}
	if err := wire.Range(packet, func(f wire.Field) bool {
		switch f.Num {
		case packetTo:
			out.To = f.Uint32()
		case packetChannel:
			out.Channel = f.Uint32()
		case packetID:
			out.ID = f.Uint32()
		case packetHopLimit:
			out.HopLimit = f.Uint32()
		case packetWantAck:
			out.WantAck = f.Bool()
		case packetPriority:
			out.Priority = f.Uint32()
		case packetDecoded:
			out.Portnum = mustField(t, f.Bytes, dataPortnum).Uint32()
			out.Payload = mustField(t, f.Bytes, dataPayload).Bytes
		}
		return true
	}); err != nil {
		t.Fatalf("decode packet: %v", err)
	}

	return out
}

func TestEncodeWantConfig(t *testing.T) {
	codec := mustCodec(t)
	got := codec.EncodeWantConfig(DumpConfigNonce)
	want := []byte{0x18, 0xad, 0xbd, 0x03}
	if !bytes.Equal(got, want) {
		t.Fatalf("want_config mismatch: got %x want %x", got, want)
	}
}

func TestNextNonceIsOddAndNotDumpNonce(t *testing.T) {
	codec := mustCodec(t)
	for range 256 {
		nonce := codec.NextNonce()
		if nonce&1 == 0 {
			t.Fatalf("nonce %08x is even", nonce)
		}
		if nonce == DumpConfigNonce {
			t.Fatalf("nonce collided with dump nonce")
		}
	}
}

func TestEncodeText(t *testing.T) {
	codec := mustCodec(t)
	encoded, err := codec.EncodeText(0x0000beef, 2, "hello")
	if err != nil {
		t.Fatalf("encode text: %v", err)
	}
	if encoded.PacketID == 0 {
		t.Fatalf("expected non-zero packet id")
	}

	pkt := decodeSentPacket(t, encoded.Payload)
	if pkt.To != 0x0000beef || pkt.Channel != 2 {
		t.Fatalf("unexpected addressing: to=%08x channel=%d", pkt.To, pkt.Channel)
	}
	if pkt.ID != encoded.PacketID {
		t.Fatalf("packet id mismatch: %d vs %d", pkt.ID, encoded.PacketID)
	}
	if pkt.Portnum != portText || string(pkt.Payload) != "hello" {
		t.Fatalf("unexpected data: port=%d payload=%q", pkt.Portnum, pkt.Payload)
	}
	if pkt.HopLimit != 3 || !pkt.WantAck || pkt.Priority != 70 {
		t.Fatalf("unexpected delivery flags: %+v", pkt)
	}
}

func TestEncodeTextLimits(t *testing.T) {
	codec := mustCodec(t)
	if _, err := codec.EncodeText(domain.BroadcastNodeNum, 0, ""); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
	if _, err := codec.EncodeText(domain.BroadcastNodeNum, 0, strings.Repeat("x", link.MaxTextBytes)); err != nil {
		t.Fatalf("max length text rejected: %v", err)
	}
	if _, err := codec.EncodeText(domain.BroadcastNodeNum, 0, strings.Repeat("x", link.MaxTextBytes+1)); !errors.Is(err, link.ErrMessageTooLong) {
		t.Fatalf("expected ErrMessageTooLong, got %v", err)
	}
}

func TestEncodeTextPacketIDsAdvance(t *testing.T) {
	codec := mustCodec(t)
	first, _ := codec.EncodeText(1, 0, "a")
	second, _ := codec.EncodeText(1, 0, "b")
	if first.PacketID == second.PacketID {
		t.Fatalf("expected distinct packet ids, got %d twice", first.PacketID)
	}
}

func TestEncodeAdmin(t *testing.T) {
	codec := mustCodec(t)
	frame := radioconfig.RebootFrame(2)
	encoded := codec.EncodeAdmin(0x12345678, frame)

	pkt := decodeSentPacket(t, encoded.Payload)
	if pkt.To != 0x12345678 || pkt.Channel != 0 {
		t.Fatalf("unexpected addressing: to=%08x channel=%d", pkt.To, pkt.Channel)
	}
	if pkt.Portnum != portAdmin || !bytes.Equal(pkt.Payload, frame.Bytes()) {
		t.Fatalf("unexpected admin data: port=%d payload=%x", pkt.Portnum, pkt.Payload)
	}
	if !pkt.WantAck || pkt.Priority != 0 {
		t.Fatalf("admin packet should want ack without priority: %+v", pkt)
	}
}

func TestEncodeNodeInfo(t *testing.T) {
	codec := mustCodec(t)
	encoded := codec.EncodeNodeInfo(0x0000beef, User{LongName: "Base Station", ShortName: "BS"})

	pkt := decodeSentPacket(t, encoded.Payload)
	if pkt.To != domain.BroadcastNodeNum || pkt.WantAck {
		t.Fatalf("nodeinfo must be an unacknowledged broadcast: %+v", pkt)
	}
	if pkt.Portnum != portNodeInfo {
		t.Fatalf("unexpected portnum %d", pkt.Portnum)
	}
	if got := string(mustField(t, pkt.Payload, userID).Bytes); got != "!0000beef" {
		t.Fatalf("unexpected user id %q", got)
	}
	if got := string(mustField(t, pkt.Payload, userLongName).Bytes); got != "Base Station" {
		t.Fatalf("unexpected long name %q", got)
	}

	bare := codec.EncodeNodeInfo(0x0000beef, User{})
	user := decodeSentPacket(t, bare.Payload).Payload
	if _, ok, _ := wire.Find(user, userLongName); ok {
		t.Fatalf("empty long name should be omitted")
	}
}

func TestDecodeMyInfoAndConfigComplete(t *testing.T) {
	codec := mustCodec(t)
	payload := wire.NewMessage().
		Message(fromRadioMyInfo, wire.NewMessage().Uint(1, 0xcafe)).
		Uint(fromRadioConfigComplete, 0x1235).
		Encoded()

	got, err := codec.DecodeFromRadio(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.MyNodeNum != 0xcafe || got.ConfigCompleteID != 0x1235 {
		t.Fatalf("unexpected decode: %+v", got)
	}
}

func TestDecodeRebooted(t *testing.T) {
	got, err := mustCodec(t).DecodeFromRadio(rebootedFrame())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.Rebooted {
		t.Fatalf("expected rebooted flag")
	}
}

func TestDecodeTextPacket(t *testing.T) {
	got, err := mustCodec(t).DecodeFromRadio(textFrame(0x0a0b0c0d, domain.BroadcastNodeNum, 1, "ping"))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Text == nil {
		t.Fatalf("expected text packet")
	}
	if got.Text.From != 0x0a0b0c0d || got.Text.To != domain.BroadcastNodeNum || got.Text.Channel != 1 || got.Text.Text != "ping" {
		t.Fatalf("unexpected text packet: %+v", *got.Text)
	}
}

func TestDecodeRoutingAckAndNak(t *testing.T) {
	codec := mustCodec(t)

	ack, err := codec.DecodeFromRadio(routingFrame(77, 0))
	if err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	if ack.Routing == nil || ack.Routing.RequestID != 77 || ack.Routing.ErrorReason != 0 {
		t.Fatalf("unexpected ack: %+v", ack.Routing)
	}

	nak, err := codec.DecodeFromRadio(routingFrame(78, 1))
	if err != nil {
		t.Fatalf("decode nak: %v", err)
	}
	if nak.Routing == nil || nak.Routing.ErrorReason != 1 {
		t.Fatalf("unexpected nak: %+v", nak.Routing)
	}
	if RoutingErrorName(nak.Routing.ErrorReason) != "NO_ROUTE" {
		t.Fatalf("unexpected reason name %q", RoutingErrorName(nak.Routing.ErrorReason))
	}
}

func TestDecodeQueueStatus(t *testing.T) {
	got, err := mustCodec(t).DecodeFromRadio(queueStatusFrame(9, 42))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.QueueStatus == nil || got.QueueStatus.Res != 9 || got.QueueStatus.PacketID != 42 {
		t.Fatalf("unexpected queue status: %+v", got.QueueStatus)
	}
}

func TestDecodeConfigDump(t *testing.T) {
	codec := mustCodec(t)
	payload := wire.NewMessage().
		Message(fromRadioConfig, wire.NewMessage().Message(6, wire.NewMessage().Uint(7, 3))).
		Encoded()

	got, err := codec.DecodeFromRadio(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Config == nil || got.Config.Label != "lora" {
		t.Fatalf("unexpected dump: %+v", got.Config)
	}
	if len(got.Config.Fields) != 1 || got.Config.Fields[0].Name != "region" || got.Config.Fields[0].Value != "EU_868" {
		t.Fatalf("unexpected fields: %+v", got.Config.Fields)
	}
}

func TestDecodeLocalNodeInfo(t *testing.T) {
	payload := wire.NewMessage().
		Message(fromRadioNodeInfo, wire.NewMessage().
			Uint(1, 0xbeef).
			Message(2, wire.NewMessage().String(userID, "!0000beef").String(userLongName, "Gate").String(userShortName, "GT"))).
		Encoded()

	got, err := mustCodec(t).DecodeFromRadio(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.NodeInfo == nil || got.NodeInfo.Num != 0xbeef || got.NodeInfo.User == nil {
		t.Fatalf("unexpected node info: %+v", got.NodeInfo)
	}
	if got.NodeInfo.User.LongName != "Gate" || got.NodeInfo.User.ShortName != "GT" {
		t.Fatalf("unexpected user: %+v", *got.NodeInfo.User)
	}
}

func TestDecodeEncryptedPacketIgnored(t *testing.T) {
	payload := wire.NewMessage().
		Message(fromRadioPacket, wire.NewMessage().Fixed32(packetFrom, 1).Bytes(5, []byte{0xde, 0xad})).
		Encoded()

	got, err := mustCodec(t).DecodeFromRadio(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Text != nil || got.Routing != nil {
		t.Fatalf("encrypted packet should not decode: %+v", got)
	}
}

func TestDecodeMalformed(t *testing.T) {
	_, err := mustCodec(t).DecodeFromRadio([]byte{0x12, 0x05, 0x01})
	if !errors.Is(err, wire.ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}
