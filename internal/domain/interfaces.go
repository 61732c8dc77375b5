package domain

import "context"

// PlatformSource answers which sequencing platform each lab declared when
// submitting a given sample. Implementations back onto the submissions table;
// a degraded implementation may answer "N/A" for everything.
type PlatformSource interface {
	// Platforms returns lab name -> declared sequencing platform for one
	// sample of a distribution. Labs with no submission record are absent.
	Platforms(ctx context.Context, distribution, sample string) (map[string]string, error)
}

// OrganizationStore manages participating laboratories.
type OrganizationStore interface {
	GetOrganization(ctx context.Context, name string) (*Organization, error)
	ListOrganizations(ctx context.Context) ([]Organization, error)
	CreateOrganization(ctx context.Context, name string) (*Organization, error)
}

// SubmissionStore records and queries sample submissions.
type SubmissionStore interface {
	RecordSubmission(ctx context.Context, sub *Submission) error
	ListSubmissions(ctx context.Context, distribution string) ([]Submission, error)
}

// NotificationStore manages per-user toolbar notifications.
type NotificationStore interface {
	CreateNotification(ctx context.Context, userEmail, message string) (*Notification, error)
	ActiveNotifications(ctx context.Context, userEmail string) ([]Notification, error)
	DismissNotifications(ctx context.Context, userEmail string) error
}

// Store bundles the persistence surfaces the HTTP layer needs.
type Store interface {
	OrganizationStore
	SubmissionStore
	NotificationStore
	PlatformSource

	Ping(ctx context.Context) error
	Close()
}
