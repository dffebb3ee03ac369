package neighborhood

import (
	"testing"

	"github.com/fxamacker/cbor/v2"
)

func TestMessageRoundTrip(t *testing.T) {
	profile := NodeProfile{
		NodeID:  make([]byte, IdentifierLength),
		Contact: Contact{Kind: ContactIPv4, Host: "10.0.0.5", Port: 4242},
	}
	msg, err := buildRegisterService(7, profile)
	if err != nil {
		t.Fatalf("buildRegisterService: %v", err)
	}

	encoded, err := cbor.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded Message
	if err := cbor.Unmarshal(encoded, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.ID != 7 || decoded.Request == nil || decoded.Response != nil {
		t.Fatalf("envelope shape mismatch: %+v", decoded)
	}
	if decoded.Request.Kind != KindRegisterService {
		t.Fatalf("kind mismatch: %v", decoded.Request.Kind)
	}

	var body RegisterServiceBody
	if err := decodeBody(decoded.Request.Body, &body); err != nil {
		t.Fatalf("decodeBody: %v", err)
	}
	if body.Profile.Contact.Host != "10.0.0.5" || body.Profile.Contact.Port != 4242 {
		t.Fatalf("body mismatch: %+v", body)
	}
}

func TestCorrelates(t *testing.T) {
	resp, err := buildNeighbourhoodChangedNotificationResponse(3)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !correlates(resp, 3, CategoryLocalService) {
		t.Fatal("expected correlation to match")
	}
	if correlates(resp, 4, CategoryLocalService) {
		t.Fatal("expected id mismatch to fail correlation")
	}
	req, err := buildGetNeighbourNodesByDistanceLocal(3)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if correlates(req, 3, CategoryLocalService) {
		t.Fatal("a request should never correlate as a response")
	}
}

func TestIDAllocatorMonotonic(t *testing.T) {
	a := newIDAllocator()
	first := a.allocate()
	second := a.allocate()
	if second != first+1 {
		t.Fatalf("expected monotonic ids, got %d then %d", first, second)
	}
}
