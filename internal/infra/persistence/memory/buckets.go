package memory

import (
	"encoding/json"
	"fmt"
)

// Snapshot bucket names used by the SQL backends' state table.
const (
	BucketPatients    = "patients"
	BucketOrgans      = "organs"
	BucketWaitlist    = "waitlist"
	BucketAllocations = "allocations"
)

// Buckets lists the snapshot buckets in persistence order.
func Buckets() []string {
	return []string{BucketPatients, BucketOrgans, BucketWaitlist, BucketAllocations}
}

// EncodeBucket marshals one bucket of the snapshot.
func (s Snapshot) EncodeBucket(bucket string) ([]byte, error) {
	switch bucket {
	case BucketPatients:
		return json.Marshal(s.Patients)
	case BucketOrgans:
		return json.Marshal(s.Organs)
	case BucketWaitlist:
		return json.Marshal(s.Waitlist)
	case BucketAllocations:
		return json.Marshal(s.Allocations)
	}
	return nil, fmt.Errorf("unknown bucket %q", bucket)
}

// DecodeBucket unmarshals payload into the matching snapshot field. Unknown
// buckets are ignored so older binaries can read newer tables.
func (s *Snapshot) DecodeBucket(bucket string, payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	var target any
	switch bucket {
	case BucketPatients:
		target = &s.Patients
	case BucketOrgans:
		target = &s.Organs
	case BucketWaitlist:
		target = &s.Waitlist
	case BucketAllocations:
		target = &s.Allocations
	default:
		return nil
	}
	if err := json.Unmarshal(payload, target); err != nil {
		return fmt.Errorf("decode %s: %w", bucket, err)
	}
	return nil
}
