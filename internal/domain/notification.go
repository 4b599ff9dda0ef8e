// Package domain – notification kinds and template resolution.
//
// Notification kinds form a closed set: each kind has exactly one payload
// type, and rendering is a total function over those types. Adding a kind
// means adding a payload struct, its kind method, and a Render arm; a missing
// arm is a programming error surfaced by panic (and caught by unit tests),
// not a recoverable runtime condition.
package domain

import "fmt"

// NotificationKind identifies one kind of notification the platform emits.
type NotificationKind string

const (
	// KindSubmissionApproved: an event submission passed editorial review.
	KindSubmissionApproved NotificationKind = "submission.approved"
	// KindSubmissionRejected: an event submission was declined.
	KindSubmissionRejected NotificationKind = "submission.rejected"
	// KindEventPublished: a followed artist or venue published a new event.
	KindEventPublished NotificationKind = "event.published"
	// KindArtistInvite: an artist was invited to claim a profile.
	KindArtistInvite NotificationKind = "artist.invite"
	// KindVenueClaimApproved: a venue ownership claim was approved.
	KindVenueClaimApproved NotificationKind = "venue.claim.approved"
)

// NotificationPayload is the sealed union of per-kind payloads. Only the
// payload structs in this file implement it.
type NotificationPayload interface {
	Kind() NotificationKind
}

// SubmissionApprovedPayload accompanies KindSubmissionApproved.
type SubmissionApprovedPayload struct {
	SubmissionID string `json:"submission_id"`
	EventTitle   string `json:"event_title"`
}

// Kind implements NotificationPayload.
func (SubmissionApprovedPayload) Kind() NotificationKind { return KindSubmissionApproved }

// SubmissionRejectedPayload accompanies KindSubmissionRejected.
type SubmissionRejectedPayload struct {
	SubmissionID string `json:"submission_id"`
	EventTitle   string `json:"event_title"`
	Reason       string `json:"reason,omitempty"`
}

// Kind implements NotificationPayload.
func (SubmissionRejectedPayload) Kind() NotificationKind { return KindSubmissionRejected }

// EventPublishedPayload accompanies KindEventPublished.
type EventPublishedPayload struct {
	EventID    string `json:"event_id"`
	EventTitle string `json:"event_title"`
	SourceName string `json:"source_name"` // artist or venue the recipient follows
}

// Kind implements NotificationPayload.
func (EventPublishedPayload) Kind() NotificationKind { return KindEventPublished }

// ArtistInvitePayload accompanies KindArtistInvite.
type ArtistInvitePayload struct {
	InviteID   string `json:"invite_id"`
	ArtistName string `json:"artist_name"`
	InvitedBy  string `json:"invited_by,omitempty"`
}

// Kind implements NotificationPayload.
func (ArtistInvitePayload) Kind() NotificationKind { return KindArtistInvite }

// VenueClaimApprovedPayload accompanies KindVenueClaimApproved.
type VenueClaimApprovedPayload struct {
	VenueID   string `json:"venue_id"`
	VenueName string `json:"venue_name"`
}

// Kind implements NotificationPayload.
func (VenueClaimApprovedPayload) Kind() NotificationKind { return KindVenueClaimApproved }

// NotificationContent is the rendered form of a notification: what lands in
// the in-app inbox and what the default dedupe key looks like for the event.
type NotificationContent struct {
	Title     string
	Body      string
	Href      string
	DedupeKey string
}

// Render resolves a payload to its displayable content and default dedupe
// key. It is total over the declared payload types; an unknown type panics.
func Render(p NotificationPayload) NotificationContent {
	switch v := p.(type) {
	case SubmissionApprovedPayload:
		return NotificationContent{
			Title:     "Your event was approved",
			Body:      fmt.Sprintf("%q passed review and is now live.", v.EventTitle),
			Href:      "/submissions/" + v.SubmissionID,
			DedupeKey: "submission:" + v.SubmissionID + ":approved",
		}
	case SubmissionRejectedPayload:
		body := fmt.Sprintf("%q was not accepted.", v.EventTitle)
		if v.Reason != "" {
			body = fmt.Sprintf("%q was not accepted: %s", v.EventTitle, v.Reason)
		}
		return NotificationContent{
			Title:     "Your event was declined",
			Body:      body,
			Href:      "/submissions/" + v.SubmissionID,
			DedupeKey: "submission:" + v.SubmissionID + ":rejected",
		}
	case EventPublishedPayload:
		return NotificationContent{
			Title:     "New event from " + v.SourceName,
			Body:      fmt.Sprintf("%s just announced %q.", v.SourceName, v.EventTitle),
			Href:      "/events/" + v.EventID,
			DedupeKey: "event:" + v.EventID + ":published",
		}
	case ArtistInvitePayload:
		return NotificationContent{
			Title:     "You have been invited to ArtPulse",
			Body:      fmt.Sprintf("Claim the artist profile for %s.", v.ArtistName),
			Href:      "/invites/" + v.InviteID,
			DedupeKey: "invite:" + v.InviteID + ":created",
		}
	case VenueClaimApprovedPayload:
		return NotificationContent{
			Title:     "Venue claim approved",
			Body:      fmt.Sprintf("You now manage %s.", v.VenueName),
			Href:      "/venues/" + v.VenueID,
			DedupeKey: "venue:" + v.VenueID + ":claim-approved",
		}
	default:
		panic(fmt.Sprintf("domain: unhandled notification payload %T", p))
	}
}
