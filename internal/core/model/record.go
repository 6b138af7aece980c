package model

// Record is one spatial input object. The extractor understands TextRecord
// (WKT) and BinaryRecord (WKB); any other implementation is rejected.
type Record interface {
	RecordID() string
}

type TextRecord struct {
	ID  string
	WKT string
}

type BinaryRecord struct {
	ID  string
	WKB []byte
}

func (r TextRecord) RecordID() string   { return r.ID }
func (r BinaryRecord) RecordID() string { return r.ID }
