package livestore

import "fmt"

// Key families of the live state store. Every mutation of a location key is a
// per-key atomic read-modify-write.
func locationKey(userID, eventDetailID string) string {
	return fmt.Sprintf("location:%s:%s", userID, eventDetailID)
}

func segmentRecordsKey(userID, eventID, eventDetailID string) string {
	return fmt.Sprintf("participantSegmentRecords:%s:%s:%s", userID, eventID, eventDetailID)
}

const (
	locationKeyPattern = "location:*"
	segmentKeyPattern  = "participantSegmentRecords:*"
)
