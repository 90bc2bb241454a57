package pipeline

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"mailsift/internal/classifier"
	"mailsift/internal/logger"
	"mailsift/internal/metrics"
	"mailsift/internal/models"
	"mailsift/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrAuth marks a credential rejected by the provider; the whole run
	// fails and the route layer answers 401.
	ErrAuth = errors.New("mailbox authentication failed")

	// ErrList marks a failed inbox listing; the whole run fails (500).
	ErrList = errors.New("mailbox listing failed")
)

// bodyExcerptChars bounds the text handed to the classifier.
const bodyExcerptChars = 2000

// Mailbox is the provider capability the pipeline consumes. Implemented by
// gmail.Client and imapmail.Client.
type Mailbox interface {
	Profile(ctx context.Context) (string, error)
	ListInbox(ctx context.Context, max int) ([]string, error)
	FetchMessage(ctx context.Context, id string) (*models.InboxMessage, error)
	Archive(ctx context.Context, id string) error
}

// Classifier produces a category and summary for one message. It never
// fails; degraded calls return the default result.
type Classifier interface {
	Classify(ctx context.Context, subject, body string, categories []models.Category) classifier.Result
}

// RecordSaver persists a processed batch.
type RecordSaver interface {
	Save(records []models.EmailRecord) error
}

// CategoryLister supplies the configured categories for the prompt.
type CategoryLister interface {
	List() []models.Category
}

// Pipeline runs the list → fetch → decode → classify → archive → persist
// sequence. Messages are handled one at a time, in list order; a failure on
// one message skips that message only.
type Pipeline struct {
	classifier Classifier
	records    RecordSaver
	categories CategoryLister
	batchSize  int
}

func New(cls Classifier, records RecordSaver, categories CategoryLister, batchSize int) *Pipeline {
	return &Pipeline{
		classifier: cls,
		records:    records,
		categories: categories,
		batchSize:  batchSize,
	}
}

// Run processes up to the configured batch of inbox messages and returns the
// resulting records. Only authentication and listing failures are returned as
// errors; everything else degrades per message or is logged.
func (p *Pipeline) Run(ctx context.Context, mbox Mailbox) ([]models.EmailRecord, error) {
	log := logger.L.With(zap.String("run_id", uuid.NewString()))

	address, err := mbox.Profile(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuth, err)
	}
	log.Info("mailbox authenticated", zap.String("address", address))

	ids, err := mbox.ListInbox(ctx, p.batchSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrList, err)
	}
	log.Info("listed inbox", zap.Int("messages", len(ids)))
	if len(ids) == 0 {
		return []models.EmailRecord{}, nil
	}

	categories := p.categories.List()
	results := make([]models.EmailRecord, 0, len(ids))

	for _, id := range ids {
		msg, err := mbox.FetchMessage(ctx, id)
		if err != nil {
			log.Warn("failed to process message, skipping",
				zap.String("id", id), zap.Error(err))
			metrics.EmailProcessedCount.WithLabelValues("skipped").Inc()
			continue
		}

		subject := msg.Subject
		if subject == "" {
			subject = "No Subject"
		}

		text := msg.Body.Text
		if text == "" && msg.Body.HTML != "" {
			text = utils.HTMLToText(msg.Body.HTML)
		}
		if len(text) > bodyExcerptChars {
			cut := bodyExcerptChars
			for cut > 0 && !utf8.RuneStart(text[cut]) {
				cut--
			}
			text = text[:cut]
		}

		verdict := p.classifier.Classify(ctx, subject, text, categories)

		// Archiving is best effort: the record is produced either way.
		if err := mbox.Archive(ctx, id); err != nil {
			log.Warn("failed to archive message",
				zap.String("id", id), zap.Error(err))
			metrics.ArchiveFailures.Inc()
		}

		results = append(results, models.EmailRecord{
			ID:       id,
			Subject:  subject,
			Category: verdict.Category,
			Summary:  verdict.Summary,
		})
		metrics.EmailProcessedCount.WithLabelValues("success").Inc()
	}

	// Persistence failure is logged, not raised: callers still get the
	// in-memory results.
	if err := p.records.Save(results); err != nil {
		log.Error("failed to persist processed records", zap.Error(err))
	}

	return results, nil
}
