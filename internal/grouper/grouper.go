package grouper

import (
	"context"

	"logamizer/internal/model"
	"logamizer/internal/parser"
)

// GroupStore is the persistence surface the grouper needs. Upserts must be
// atomic per fingerprint; concurrent jobs hitting the same group serialize in
// the store.
type GroupStore interface {
	UpsertErrorGroup(ctx context.Context, group *model.ErrorGroup) error
	InsertErrorOccurrence(ctx context.Context, occ *model.ErrorOccurrence) error
}

// Grouper folds parsed error occurrences into fingerprinted groups for one
// log file run.
type Grouper struct {
	siteID    string
	logFileID string
	store     GroupStore
	processed int64
}

// New creates a grouper writing through the given store.
func New(siteID, logFileID string, store GroupStore) *Grouper {
	return &Grouper{siteID: siteID, logFileID: logFileID, store: store}
}

// Process fingerprints one occurrence, upserts its group, and persists the
// occurrence row. Each call adds exactly one to the group's count.
func (g *Grouper) Process(ctx context.Context, pe *parser.ParsedError) error {
	fp := Fingerprint(pe.ErrorType, pe.ErrorMessage, pe.FilePath, pe.FunctionName)

	group := &model.ErrorGroup{
		SiteID:       g.siteID,
		Fingerprint:  fp,
		ErrorType:    pe.ErrorType,
		ErrorMessage: pe.ErrorMessage,
		FirstSeen:    pe.Timestamp,
		LastSeen:     pe.Timestamp,
		Status:       model.GroupUnresolved,
	}
	if err := g.store.UpsertErrorGroup(ctx, group); err != nil {
		return err
	}

	occ := &model.ErrorOccurrence{
		GroupFingerprint: fp,
		LogFileID:        g.logFileID,
		Timestamp:        pe.Timestamp,
		ErrorType:        pe.ErrorType,
		ErrorMessage:     pe.ErrorMessage,
		StackTrace:       pe.StackTrace,
		FilePath:         pe.FilePath,
		LineNumber:       pe.LineNumber,
		FunctionName:     pe.FunctionName,
		RequestURL:       pe.RequestURL,
		RequestMethod:    pe.RequestMethod,
		IPAddress:        pe.IPAddress,
		UserAgent:        pe.UserAgent,
		Context:          pe.Context,
	}
	if err := g.store.InsertErrorOccurrence(ctx, occ); err != nil {
		return err
	}

	g.processed++
	return nil
}

// Processed returns how many occurrences were persisted.
func (g *Grouper) Processed() int64 { return g.processed }
