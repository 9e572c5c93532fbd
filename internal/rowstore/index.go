package rowstore

// Indexed is a record that remembers its sheet row.
type Indexed interface {
	Index() int
	SetIndex(int)
}

// AdjustRowIndices shifts every record below a deleted row up by one.
func AdjustRowIndices[T Indexed](records []T, deleted int) {
	for _, r := range records {
		if r.Index() > deleted {
			r.SetIndex(r.Index() - 1)
		}
	}
}

// ShiftAfterBatch applies AdjustRowIndices once per deleted row, highest
// first. The deleted records themselves must already be removed.
func ShiftAfterBatch[T Indexed](records []T, deleted []int) {
	for _, idx := range SortDescending(deleted) {
		AdjustRowIndices(records, idx)
	}
}
