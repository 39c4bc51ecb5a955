package port

import (
	"context"

	"github.com/docsight/docsight/internal/domain"
)

// SourceHost abstracts the source-hosting API (GitHub).
type SourceHost interface {
	// ListRepositories returns the repositories the identity can connect,
	// newest first. Pagination is handled internally.
	ListRepositories(ctx context.Context, identity *domain.Identity) ([]domain.CandidateRepo, error)

	// RegisterWebhook installs a push/PR webhook on the repository and
	// returns the webhook id and shared secret.
	RegisterWebhook(ctx context.Context, identity *domain.Identity, fullName string) (webhookID, secret string, err error)

	// TriggerAnalysis asks the pipeline to run the initial ingestion for a
	// freshly connected repository.
	TriggerAnalysis(ctx context.Context, identity *domain.Identity, fullName string) error
}
