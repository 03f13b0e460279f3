// Package database implements the relational read-model on Firestore. The
// tracking core only ever reads here; event and participant writes belong to
// the registration services.
package database

import (
	"context"
	"errors"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	shared "github.com/racepulse/server/pkg"
	"github.com/racepulse/server/pkg/apperrors"
	"github.com/racepulse/server/pkg/domain/race"
)

// FirestoreAdapter implements shared.ReadModel over the flat collections
// events, eventDetails, participants and trackers.
type FirestoreAdapter struct {
	Client *firestore.Client
}

var _ shared.ReadModel = (*FirestoreAdapter)(nil)

func NewFirestoreAdapter(client *firestore.Client) *FirestoreAdapter {
	return &FirestoreAdapter{Client: client}
}

func (a *FirestoreAdapter) GetEvent(ctx context.Context, eventID string) (*race.Event, error) {
	doc, err := a.Client.Collection(shared.CollectionEvents).Doc(eventID).Get(ctx)
	if err != nil {
		return nil, firestoreErr(err, "event %s", eventID)
	}
	var evt race.Event
	if err := doc.DataTo(&evt); err != nil {
		return nil, apperrors.StoreUnavailable(err, "decode event %s", eventID)
	}
	evt.ID = doc.Ref.ID
	return &evt, nil
}

func (a *FirestoreAdapter) GetEventDetail(ctx context.Context, eventID, eventDetailID string) (*race.EventDetail, error) {
	doc, err := a.Client.Collection(shared.CollectionEventDetails).Doc(eventDetailID).Get(ctx)
	if err != nil {
		return nil, firestoreErr(err, "event detail %s", eventDetailID)
	}
	var detail race.EventDetail
	if err := doc.DataTo(&detail); err != nil {
		return nil, apperrors.StoreUnavailable(err, "decode event detail %s", eventDetailID)
	}
	detail.ID = doc.Ref.ID
	if detail.EventID != eventID {
		return nil, apperrors.NotFound("event detail %s does not belong to event %s", eventDetailID, eventID)
	}
	return &detail, nil
}

func (a *FirestoreAdapter) ListEventDetails(ctx context.Context, eventID string) ([]*race.EventDetail, error) {
	iter := a.Client.Collection(shared.CollectionEventDetails).
		Where("eventId", "==", eventID).
		Documents(ctx)
	defer iter.Stop()

	var details []*race.EventDetail
	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, apperrors.StoreUnavailable(err, "list event details for %s", eventID)
		}
		var detail race.EventDetail
		if err := doc.DataTo(&detail); err != nil {
			return nil, apperrors.StoreUnavailable(err, "decode event detail %s", doc.Ref.ID)
		}
		detail.ID = doc.Ref.ID
		details = append(details, &detail)
	}
	return details, nil
}

func (a *FirestoreAdapter) GetParticipant(ctx context.Context, userID string) (*race.Participant, error) {
	doc, err := a.Client.Collection(shared.CollectionParticipants).Doc(userID).Get(ctx)
	if err != nil {
		return nil, firestoreErr(err, "participant %s", userID)
	}
	var p race.Participant
	if err := doc.DataTo(&p); err != nil {
		return nil, apperrors.StoreUnavailable(err, "decode participant %s", userID)
	}
	p.UserID = doc.Ref.ID
	return &p, nil
}

// trackerDoc is one follow edge: userID watches trackedUserID on a course.
type trackerDoc struct {
	UserID        string `firestore:"userId"`
	EventDetailID string `firestore:"eventDetailId"`
	TrackedUserID string `firestore:"trackedUserId"`
}

func (a *FirestoreAdapter) ListTrackedUserIDs(ctx context.Context, userID, eventDetailID string) ([]string, error) {
	iter := a.Client.Collection(shared.CollectionTrackers).
		Where("userId", "==", userID).
		Where("eventDetailId", "==", eventDetailID).
		Documents(ctx)
	defer iter.Stop()

	var ids []string
	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, apperrors.StoreUnavailable(err, "list trackers for %s", userID)
		}
		var t trackerDoc
		if err := doc.DataTo(&t); err != nil {
			return nil, apperrors.StoreUnavailable(err, "decode tracker %s", doc.Ref.ID)
		}
		if t.TrackedUserID != "" {
			ids = append(ids, t.TrackedUserID)
		}
	}
	return ids, nil
}

func firestoreErr(err error, format string, args ...interface{}) error {
	if status.Code(err) == codes.NotFound {
		return apperrors.NotFound(format, args...)
	}
	return apperrors.StoreUnavailable(err, format, args...)
}
