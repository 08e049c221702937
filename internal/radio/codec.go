package radio

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"sync/atomic"

	"github.com/skobkin/meshbridge/internal/domain"
	"github.com/skobkin/meshbridge/internal/link"
	"github.com/skobkin/meshbridge/internal/radioconfig"
	"github.com/skobkin/meshbridge/internal/wire"
)

// DumpConfigNonce is sent with diagnostic config requests. Readiness nonces
// never take this value so a dump cannot mark the link ready.
const DumpConfigNonce uint32 = 0xDEAD

const (
	toRadioPacket     wire.Number = 1
	toRadioWantConfig wire.Number = 3

	fromRadioPacket         wire.Number = 2
	fromRadioMyInfo         wire.Number = 3
	fromRadioNodeInfo       wire.Number = 4
	fromRadioConfig         wire.Number = 5
	fromRadioConfigComplete wire.Number = 7
	fromRadioRebooted       wire.Number = 8
	fromRadioModuleConfig   wire.Number = 9
	fromRadioChannel        wire.Number = 10
	fromRadioQueueStatus    wire.Number = 11

	packetFrom     wire.Number = 1
	packetTo       wire.Number = 2
	packetChannel  wire.Number = 3
	packetDecoded  wire.Number = 4
	packetID       wire.Number = 6
	packetHopLimit wire.Number = 9
	packetWantAck  wire.Number = 10
	packetPriority wire.Number = 11

	dataPortnum   wire.Number = 1
	dataPayload   wire.Number = 2
	dataRequestID wire.Number = 6

	userID        wire.Number = 1
	userLongName  wire.Number = 2
	userShortName wire.Number = 3
)

const (
	portText     = 1
	portNodeInfo = 4
	portRouting  = 5
	portAdmin    = 6

	defaultHopLimit  = 3
	priorityReliable = 70
)

// TextPacket is an inbound TEXT_MESSAGE_APP packet.
type TextPacket struct {
	From     uint32
	To       uint32
	Channel  uint8
	PacketID uint32
	Text     string
}

// RoutingStatus is a ROUTING_APP reply to one of our packets. ErrorReason 0
// means delivered.
type RoutingStatus struct {
	RequestID   uint32
	From        uint32
	ErrorReason uint32
}

// QueueStatus reports whether the radio accepted a packet into its TX queue.
type QueueStatus struct {
	Res      uint32
	PacketID uint32
}

// ConfigDump is one Config, ModuleConfig or Channel record echoed by the
// radio after a config request.
type ConfigDump struct {
	Label  string
	Fields []radioconfig.FieldValue
}

// User holds the names advertised in a node's user record.
type User struct {
	LongName  string
	ShortName string
}

// DecodedFrame is a parsed FromRadio frame. Only the fields present in the
// frame are set.
type DecodedFrame struct {
	Raw              []byte
	MyNodeNum        uint32
	ConfigCompleteID uint32
	Rebooted         bool
	Text             *TextPacket
	Routing          *RoutingStatus
	QueueStatus      *QueueStatus
	Config           *ConfigDump
	NodeInfo         *NodeInfo
}

// NodeInfo is a node database entry streamed during the config exchange.
type NodeInfo struct {
	Num  uint32
	User *User
}

// EncodedPacket is a ToRadio frame carrying a mesh packet with its id.
type EncodedPacket struct {
	Payload  []byte
	PacketID uint32
}

// Codec translates between transport frames and bridge values.
type Codec interface {
	EncodeWantConfig(nonce uint32) []byte
	EncodeText(to uint32, channel uint8, text string) (EncodedPacket, error)
	EncodeAdmin(to uint32, frame radioconfig.AdminFrame) EncodedPacket
	EncodeNodeInfo(nodeNum uint32, user User) EncodedPacket
	DecodeFromRadio(payload []byte) (DecodedFrame, error)
	NextNonce() uint32
}

// MeshtasticCodec implements Codec for Meshtastic protobuf frames.
type MeshtasticCodec struct {
	packetID atomic.Uint32
}

func NewMeshtasticCodec() (*MeshtasticCodec, error) {
	var seedRaw [4]byte
	if _, err := rand.Read(seedRaw[:]); err != nil {
		return nil, fmt.Errorf("seed meshtastic codec packet id: %w", err)
	}
	c := &MeshtasticCodec{}
	c.packetID.Store(binary.BigEndian.Uint32(seedRaw[:]))

	return c, nil
}

// NextNonce returns a random odd config nonce distinct from DumpConfigNonce.
func (c *MeshtasticCodec) NextNonce() uint32 {
	for {
		var raw [4]byte
		_, _ = rand.Read(raw[:])
		nonce := binary.BigEndian.Uint32(raw[:]) | 1
		if nonce != DumpConfigNonce {
			return nonce
		}
	}
}

func (c *MeshtasticCodec) EncodeWantConfig(nonce uint32) []byte {
	return wire.NewMessage().Uint(toRadioWantConfig, uint64(nonce)).Encoded()
}

func (c *MeshtasticCodec) EncodeText(to uint32, channel uint8, text string) (EncodedPacket, error) {
	if len(text) == 0 {
		return EncodedPacket{}, ErrEmptyMessage
	}
	if len(text) > link.MaxTextBytes {
		return EncodedPacket{}, fmt.Errorf("%w: %d bytes", link.ErrMessageTooLong, len(text))
	}
	data := wire.NewMessage().
		Uint(dataPortnum, portText).
		String(dataPayload, text)

	return c.encodePacket(to, channel, data, true, true), nil
}

// EncodeAdmin addresses an AdminMessage to the local node on channel 0.
func (c *MeshtasticCodec) EncodeAdmin(to uint32, frame radioconfig.AdminFrame) EncodedPacket {
	data := wire.NewMessage().
		Uint(dataPortnum, portAdmin).
		Bytes(dataPayload, frame.Bytes())

	return c.encodePacket(to, 0, data, true, false)
}

// EncodeNodeInfo broadcasts the local user record. Empty names are omitted.
func (c *MeshtasticCodec) EncodeNodeInfo(nodeNum uint32, user User) EncodedPacket {
	u := wire.NewMessage().String(userID, domain.FormatNodeID(nodeNum))
	if user.LongName != "" {
		u.String(userLongName, user.LongName)
	}
	if user.ShortName != "" {
		u.String(userShortName, user.ShortName)
	}
	data := wire.NewMessage().
		Uint(dataPortnum, portNodeInfo).
		Message(dataPayload, u)

	return c.encodePacket(domain.BroadcastNodeNum, 0, data, false, true)
}

func (c *MeshtasticCodec) encodePacket(to uint32, channel uint8, data *wire.Message, wantAck, reliable bool) EncodedPacket {
	id := c.nextNonZeroID()
	packet := wire.NewMessage().
		Fixed32(packetTo, to).
		Uint(packetChannel, uint64(channel)).
		Message(packetDecoded, data).
		Fixed32(packetID, id).
		Uint(packetHopLimit, defaultHopLimit)
	if wantAck {
		packet.Bool(packetWantAck, true)
	}
	if reliable {
		packet.Uint(packetPriority, priorityReliable)
	}

	return EncodedPacket{
		Payload:  wire.NewMessage().Message(toRadioPacket, packet).Encoded(),
		PacketID: id,
	}
}

func (c *MeshtasticCodec) DecodeFromRadio(payload []byte) (DecodedFrame, error) {
	out := DecodedFrame{Raw: payload}
	var inner error
	err := wire.Range(payload, func(f wire.Field) bool {
		switch f.Num {
		case fromRadioPacket:
			inner = decodePacket(f.Bytes, &out)
		case fromRadioMyInfo:
			inner = decodeMyInfo(f.Bytes, &out)
		case fromRadioNodeInfo:
			inner = decodeNodeInfo(f.Bytes, &out)
		case fromRadioConfig:
			inner = decodeDump(f.Bytes, radioconfig.DescribeConfig, &out)
		case fromRadioModuleConfig:
			inner = decodeDump(f.Bytes, radioconfig.DescribeModuleConfig, &out)
		case fromRadioChannel:
			inner = decodeDump(f.Bytes, radioconfig.DescribeChannel, &out)
		case fromRadioConfigComplete:
			out.ConfigCompleteID = f.Uint32()
		case fromRadioRebooted:
			out.Rebooted = f.Bool()
		case fromRadioQueueStatus:
			inner = decodeQueueStatus(f.Bytes, &out)
		}
		return inner == nil
	})
	if err == nil {
		err = inner
	}
	if err != nil {
		return out, fmt.Errorf("decode fromradio: %w", err)
	}

	return out, nil
}

func decodeMyInfo(b []byte, out *DecodedFrame) error {
	f, ok, err := wire.Find(b, 1)
	if err != nil {
		return fmt.Errorf("my_info: %w", err)
	}
	if ok {
		out.MyNodeNum = f.Uint32()
	}

	return nil
}

func decodeNodeInfo(b []byte, out *DecodedFrame) error {
	info := NodeInfo{}
	var userRaw []byte
	err := wire.Range(b, func(f wire.Field) bool {
		switch f.Num {
		case 1:
			info.Num = f.Uint32()
		case 2:
			userRaw = f.Bytes
		}
		return true
	})
	if err != nil {
		return fmt.Errorf("node_info: %w", err)
	}
	if userRaw != nil {
		user := User{}
		err = wire.Range(userRaw, func(f wire.Field) bool {
			switch f.Num {
			case userLongName:
				user.LongName = string(f.Bytes)
			case userShortName:
				user.ShortName = string(f.Bytes)
			}
			return true
		})
		if err != nil {
			return fmt.Errorf("node_info user: %w", err)
		}
		info.User = &user
	}
	out.NodeInfo = &info

	return nil
}

func decodeQueueStatus(b []byte, out *DecodedFrame) error {
	status := QueueStatus{}
	err := wire.Range(b, func(f wire.Field) bool {
		switch f.Num {
		case 1:
			status.Res = f.Uint32()
		case 4:
			status.PacketID = f.Uint32()
		}
		return true
	})
	if err != nil {
		return fmt.Errorf("queue_status: %w", err)
	}
	out.QueueStatus = &status

	return nil
}

func decodeDump(b []byte, describe func([]byte) (string, []radioconfig.FieldValue, error), out *DecodedFrame) error {
	label, fields, err := describe(b)
	if err != nil {
		return err
	}
	out.Config = &ConfigDump{Label: label, Fields: fields}

	return nil
}

func decodePacket(b []byte, out *DecodedFrame) error {
	var (
		from, to, id uint32
		channel      uint8
		decoded      []byte
	)
	err := wire.Range(b, func(f wire.Field) bool {
		switch f.Num {
		case packetFrom:
			from = f.Uint32()
		case packetTo:
			to = f.Uint32()
		case packetChannel:
			channel = uint8(f.Value) // #nosec G115 -- channel indexes are 0..7.
		case packetDecoded:
			decoded = f.Bytes
		case packetID:
			id = f.Uint32()
		}
		return true
	})
	if err != nil {
		return fmt.Errorf("packet: %w", err)
	}
	if decoded == nil {
		// Encrypted packets carry no decoded payload.
		return nil
	}

	var (
		portnum   uint32
		payload   []byte
		requestID uint32
	)
	err = wire.Range(decoded, func(f wire.Field) bool {
		switch f.Num {
		case dataPortnum:
			portnum = f.Uint32()
		case dataPayload:
			payload = f.Bytes
		case dataRequestID:
			requestID = f.Uint32()
		}
		return true
	})
	if err != nil {
		return fmt.Errorf("packet data: %w", err)
	}

	switch portnum {
	case portText:
		if len(payload) == 0 {
			return nil
		}
		out.Text = &TextPacket{From: from, To: to, Channel: channel, PacketID: id, Text: string(payload)}
	case portRouting:
		if requestID == 0 {
			return nil
		}
		status := RoutingStatus{RequestID: requestID, From: from}
		reason, ok, err := wire.Find(payload, 3)
		if err != nil {
			return fmt.Errorf("routing: %w", err)
		}
		if ok {
			status.ErrorReason = reason.Uint32()
		}
		out.Routing = &status
	}

	return nil
}

var routingErrors = map[uint32]string{
	0:  "NONE",
	1:  "NO_ROUTE",
	2:  "GOT_NAK",
	3:  "TIMEOUT",
	4:  "NO_INTERFACE",
	5:  "MAX_RETRANSMIT",
	6:  "NO_CHANNEL",
	7:  "TOO_LARGE",
	8:  "NO_RESPONSE",
	9:  "DUTY_CYCLE_LIMIT",
	32: "BAD_REQUEST",
	33: "NOT_AUTHORIZED",
	34: "PKI_FAILED",
	35: "PKI_UNKNOWN_PUBKEY",
	36: "ADMIN_BAD_SESSION_KEY",
	37: "ADMIN_PUBLIC_KEY_UNAUTHORIZED",
	38: "RATE_LIMIT_EXCEEDED",
}

// RoutingErrorName renders a Routing.Error code for logs and events.
func RoutingErrorName(code uint32) string {
	if name, ok := routingErrors[code]; ok {
		return name
	}

	return fmt.Sprintf("ERROR_%d", code)
}

func (c *MeshtasticCodec) nextNonZeroID() uint32 {
	for {
		id := c.packetID.Add(1)
		if id != 0 {
			return id
		}
	}
}
