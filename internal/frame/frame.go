// Package frame defines the identity record carried through every pipeline
// stage. A Frame never carries payload data itself (the payload lives in
// the IOResource slot a stage's ticket gives it access to), only the
// bookkeeping fields stages log against.
package frame

// Frame is an opaque identity record: a timestamp and the two indices that
// locate it within its batch. None of these fields affect scheduling; they
// exist purely for observability.
type Frame struct {
	TimeStamp  int64
	BatchIndex int
	ItemIndex  int
}
