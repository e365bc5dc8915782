package models

// SequenceCounter is a named monotone counter used to mint human-readable
// identifiers. Rows are created on first use and only ever incremented, via
// a single atomic upsert.
type SequenceCounter struct {
	Name  string `gorm:"column:name;primaryKey"`
	Value int64  `gorm:"column:value;not null;default:0"`
}
