package model

// ClassifiedTransfer is an accepted transfer with its decimal-adjusted amount and tags.
type ClassifiedTransfer struct {
	Record          TransferRecord
	FormattedAmount string
	Tags            TagSet
}
