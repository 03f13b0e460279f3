package shared

const (
	ProjectID = "racepulse-project" // Can be overridden by env var in main if needed

	TopicCheckpointCrossings = "topic-checkpoint-crossings"

	CollectionEvents       = "events"
	CollectionEventDetails = "eventDetails"
	CollectionParticipants = "participants"
	CollectionTrackers     = "trackers"

	// GPX uploads land here so re-materialization never depends on the
	// original upload request.
	CourseBucketPrefix = "courses"
)
