package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/chatforge/planledger/domain/entry"
	"github.com/chatforge/planledger/domain/report"
	"github.com/chatforge/planledger/ports"
)

// ReportService builds usage reports: classify the billing context,
// resolve the authoritative entry, read its ledger state and hand it to
// the pure report builder.
type ReportService struct {
	store      ports.EntryStore
	classifier ports.Classifier
	recent     int
	logger     zerolog.Logger
}

// NewReportService creates a new report service. recent bounds the
// expense/credit slices in each summary; <= 0 uses the report package
// default.
func NewReportService(store ports.EntryStore, classifier ports.Classifier, recent int, logger zerolog.Logger) *ReportService {
	return &ReportService{
		store:      store,
		classifier: classifier,
		recent:     recent,
		logger:     logger,
	}
}

// Usage produces the usage summary for a billing context.
// A guild plan viewed without guild-management permission surfaces
// report.ErrForbidden, never a partial report.
func (s *ReportService) Usage(ctx context.Context, bc ports.BillingContext, viewer report.Viewer) (report.Summary, error) {
	classification, err := s.classifier.Classify(ctx, bc)
	if err != nil {
		return report.Summary{}, fmt.Errorf("classify: %w", err)
	}

	user, err := s.loadEntry(ctx, bc.User)
	if err != nil {
		return report.Summary{}, err
	}

	var guild *entry.Entry
	if bc.Guild != nil {
		g, err := s.loadEntry(ctx, *bc.Guild)
		if err != nil {
			return report.Summary{}, err
		}
		guild = &g
	}

	resolved := entry.Resolve(user, guild, classification)

	summary, err := report.Build(resolved, classification, viewer, s.recent)
	if err != nil {
		s.logger.Debug().
			Str("kind", string(resolved.Kind)).
			Str("id", resolved.ID).
			Err(err).
			Msg("report denied")
		return report.Summary{}, err
	}

	return summary, nil
}

// loadEntry fetches an entry, mapping a missing record to an empty entry
// of the right reference: an account that never billed still reports.
func (s *ReportService) loadEntry(ctx context.Context, ref entry.Ref) (entry.Entry, error) {
	e, err := s.store.Get(ctx, ref)
	if errors.Is(err, ports.ErrNotFound) {
		return entry.Entry{Ref: ref}, nil
	}
	if err != nil {
		return entry.Entry{}, fmt.Errorf("get entry: %w", err)
	}
	return e, nil
}
