package db

import "github.com/segmentio/ksuid"

// DemoValue is a minimal spatial.Value used by cmd/geotree and the
// end-to-end tests: a ksuid identity plus an opaque payload, standing in
// for whatever record type a real caller would store.
type DemoValue struct {
	ID   ksuid.KSUID
	Data []byte
}

// NewDemoValue allocates a fresh ksuid and wraps payload.
func NewDemoValue(payload []byte) DemoValue {
	return DemoValue{ID: ksuid.New(), Data: payload}
}

func (v DemoValue) RecordID() string { return v.ID.String() }
func (v DemoValue) Payload() []byte  { return v.Data }

// DecodeDemoValue reconstructs a DemoValue from its wire id and payload,
// satisfying spatial.Decoder[DemoValue].
func DecodeDemoValue(id string, payload []byte) (DemoValue, error) {
	parsed, err := ksuid.Parse(id)
	if err != nil {
		return DemoValue{}, err
	}
	return DemoValue{ID: parsed, Data: payload}, nil
}
