package neighborhood

// protocol.go implements the LBN wire protocol's message envelope: a
// discriminated union keyed by correlation id, carrying exactly one of a
// Request or a Response. Bodies are CBOR-encoded so the envelope stays
// self-describing without hand-rolled binary layouts for every message kind.

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ProtocolViolationID is the sentinel message id used on an
// ErrorProtocolViolation response when no inbound request could be
// correlated.
const ProtocolViolationID uint32 = 0x0BADC0DE

// Category discriminates the top-level service area of a message.
type Category string

const (
	CategoryLocalService Category = "LocalService"
)

// Kind discriminates the specific request or response within a Category.
type Kind string

const (
	KindRegisterService                         Kind = "RegisterService"
	KindDeregisterService                       Kind = "DeregisterService"
	KindGetNeighbourNodesByDistanceLocal         Kind = "GetNeighbourNodesByDistanceLocal"
	KindNeighbourhoodChangedNotification         Kind = "NeighbourhoodChangedNotification"
	KindNeighbourhoodChangedNotificationResponse Kind = "NeighbourhoodChangedNotificationResponse"
	KindGetNeighbourNodesByDistanceLocalResponse Kind = "GetNeighbourNodesByDistanceLocalResponse"
	KindRegisterServiceResponse                  Kind = "RegisterServiceResponse"
	KindDeregisterServiceResponse                Kind = "DeregisterServiceResponse"
	KindErrorProtocolViolation                   Kind = "ErrorProtocolViolation"
	KindErrorInternal                            Kind = "ErrorInternal"
)

// Status is carried on every response body; Ok or a specific failure.
type Status string

const (
	StatusOk    Status = "Ok"
	StatusError Status = "Error"
)

// ContactKind discriminates which variant of Contact is populated.
type ContactKind string

const (
	ContactIPv4 ContactKind = "ipv4"
	ContactIPv6 ContactKind = "ipv6"
)

// Contact is the discriminated ipv4|ipv6 contact variant used in NodeProfile.
type Contact struct {
	Kind ContactKind `cbor:"kind"`
	Host string      `cbor:"host"`
	Port int         `cbor:"port"`
}

// NodeProfile identifies a service endpoint on the wire.
type NodeProfile struct {
	NodeID  []byte  `cbor:"node_id"`
	Contact Contact `cbor:"contact"`
}

// Location is a wire-format lat/lon pair in signed integer micro-degrees.
type Location struct {
	Latitude  int64 `cbor:"latitude"`
	Longitude int64 `cbor:"longitude"`
}

// NodeInfo describes one neighbor as reported by the LBN node.
type NodeInfo struct {
	Profile  NodeProfile `cbor:"profile"`
	Location Location    `cbor:"location"`
}

// ChangeKind discriminates the NeighbourhoodChange union.
type ChangeKind string

const (
	ChangeAddedNodeInfo  ChangeKind = "AddedNodeInfo"
	ChangeUpdatedNodeInfo ChangeKind = "UpdatedNodeInfo"
	ChangeRemovedNodeID  ChangeKind = "RemovedNodeId"
)

// NeighbourhoodChange is one entry of a NeighbourhoodChangedNotification's
// change list.
type NeighbourhoodChange struct {
	Kind     ChangeKind `cbor:"kind"`
	NodeInfo *NodeInfo  `cbor:"node_info,omitempty"` // set for Added/Updated
	NodeID   []byte     `cbor:"node_id,omitempty"`   // set for Removed
}

// RegisterServiceBody is the payload of a RegisterService request.
type RegisterServiceBody struct {
	ServiceType string      `cbor:"service_type"` // always "Profile" for this core
	Profile     NodeProfile `cbor:"profile"`
}

// NeighbourhoodChangedNotificationBody is the payload of an inbound
// NeighbourhoodChangedNotification request.
type NeighbourhoodChangedNotificationBody struct {
	Changes []NeighbourhoodChange `cbor:"changes"`
}

// GetNeighbourNodesByDistanceLocalResponseBody is the payload of the
// response to GetNeighbourNodesByDistanceLocal.
type GetNeighbourNodesByDistanceLocalResponseBody struct {
	Status Status     `cbor:"status"`
	Nodes  []NodeInfo `cbor:"nodes"`
}

// StatusResponseBody is the payload of RegisterService/DeregisterService
// and NeighbourhoodChangedNotification responses: just a status.
type StatusResponseBody struct {
	Status Status `cbor:"status"`
}

// Message is the wire envelope. Exactly one of Request/Response is set.
type Message struct {
	ID       uint32      `cbor:"id"`
	Request  *Envelope   `cbor:"request,omitempty"`
	Response *Envelope   `cbor:"response,omitempty"`
}

// Envelope carries the discriminated category/kind pair plus an opaque
// CBOR-encoded body, decoded by the caller once Kind is known.
type Envelope struct {
	Category Category        `cbor:"category"`
	Kind     Kind            `cbor:"kind"`
	Body     cbor.RawMessage `cbor:"body"`
}

// idAllocator hands out monotonically increasing 32-bit correlation ids,
// scoped to one session. A fresh allocator is created per session, which is
// the source's own behavior: correlation only needs to be unique within a
// connection's lifetime, not across reconnects.
type idAllocator struct {
	next uint32
}

func newIDAllocator() *idAllocator {
	return &idAllocator{next: 1}
}

func (a *idAllocator) allocate() uint32 {
	id := a.next
	a.next++
	return id
}

func encodeBody(v any) (cbor.RawMessage, error) {
	b, err := cbor.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode body: %w", err)
	}
	return cbor.RawMessage(b), nil
}

func decodeBody(raw cbor.RawMessage, out any) error {
	if err := cbor.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: decode body: %v", ErrProtocolViolation, err)
	}
	return nil
}

// buildRegisterService builds a RegisterService request message.
func buildRegisterService(id uint32, profile NodeProfile) (*Message, error) {
	body, err := encodeBody(RegisterServiceBody{ServiceType: "Profile", Profile: profile})
	if err != nil {
		return nil, err
	}
	return &Message{ID: id, Request: &Envelope{Category: CategoryLocalService, Kind: KindRegisterService, Body: body}}, nil
}

// buildDeregisterService builds a DeregisterService request message.
func buildDeregisterService(id uint32) (*Message, error) {
	body, err := encodeBody(RegisterServiceBody{ServiceType: "Profile"})
	if err != nil {
		return nil, err
	}
	return &Message{ID: id, Request: &Envelope{Category: CategoryLocalService, Kind: KindDeregisterService, Body: body}}, nil
}

// buildGetNeighbourNodesByDistanceLocal builds the initial sync request.
func buildGetNeighbourNodesByDistanceLocal(id uint32) (*Message, error) {
	body, err := encodeBody(struct{}{})
	if err != nil {
		return nil, err
	}
	return &Message{ID: id, Request: &Envelope{Category: CategoryLocalService, Kind: KindGetNeighbourNodesByDistanceLocal, Body: body}}, nil
}

// buildNeighbourhoodChangedNotificationResponse builds the success response
// to an inbound NeighbourhoodChangedNotification.
func buildNeighbourhoodChangedNotificationResponse(id uint32) (*Message, error) {
	body, err := encodeBody(StatusResponseBody{Status: StatusOk})
	if err != nil {
		return nil, err
	}
	return &Message{ID: id, Response: &Envelope{Category: CategoryLocalService, Kind: KindNeighbourhoodChangedNotificationResponse, Body: body}}, nil
}

// buildErrorInternal builds an ErrorInternal response.
func buildErrorInternal(id uint32) (*Message, error) {
	body, err := encodeBody(StatusResponseBody{Status: StatusError})
	if err != nil {
		return nil, err
	}
	return &Message{ID: id, Response: &Envelope{Category: CategoryLocalService, Kind: KindErrorInternal, Body: body}}, nil
}

// buildErrorProtocolViolation builds an ErrorProtocolViolation response. id
// should be the offending request's id, or ProtocolViolationID when no
// inbound correlation exists.
func buildErrorProtocolViolation(id uint32) (*Message, error) {
	body, err := encodeBody(StatusResponseBody{Status: StatusError})
	if err != nil {
		return nil, err
	}
	return &Message{ID: id, Response: &Envelope{Category: CategoryLocalService, Kind: KindErrorProtocolViolation, Body: body}}, nil
}

// correlates reports whether resp is a valid response to a request sent
// with the given id and category: same id, tagged Response, matching
// category.
func correlates(resp *Message, id uint32, category Category) bool {
	if resp == nil || resp.Response == nil {
		return false
	}
	return resp.ID == id && resp.Response.Category == category
}
