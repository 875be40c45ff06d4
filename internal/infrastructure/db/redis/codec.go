package redis

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/carddemo/auth-gateway/internal/core/domain"
)

// Session records are stored as deterministic CBOR: integer-keyed fields,
// sorted map keys, and RFC 3339 timestamps with nanoseconds so a
// read-modify-write never loses precision.
var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	encOptions.Time = cbor.TimeRFC3339Nano
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("redis: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("redis: CBOR decoder initialization failed: " + err.Error())
	}
}

func marshalRecord(rec *domain.SessionRecord) ([]byte, error) {
	if rec.SchemaVersion == 0 {
		rec.SchemaVersion = domain.SessionSchemaVersion
	}
	return encMode.Marshal(rec)
}

func unmarshalRecord(data []byte) (*domain.SessionRecord, error) {
	var rec domain.SessionRecord
	if err := decMode.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode session record: %w", err)
	}
	if rec.SchemaVersion > domain.SessionSchemaVersion {
		return nil, fmt.Errorf("decode session record: unsupported schema version %d", rec.SchemaVersion)
	}
	return &rec, nil
}
