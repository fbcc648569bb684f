package relay

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/nulpointcorp/ai-relay/internal/metrics"
	"github.com/nulpointcorp/ai-relay/internal/store"
	"github.com/nulpointcorp/ai-relay/pkg/apierr"
)

var errStoreDisabled = errors.New("store: persistence disabled")

// Outcome is the result of a persistence attempt.
type Outcome int

const (
	Stored Outcome = iota
	FellBack
)

func (o Outcome) String() string {
	if o == Stored {
		return metrics.StoreStored
	}
	return metrics.StoreFallback
}

// PersistResult always carries a record for the caller. Err is set only when
// Outcome is FellBack.
type PersistResult struct {
	Outcome Outcome
	Record  *store.Record
	Err     error
}

// persist makes one write attempt for the exchange. Any failure, including a
// disabled store, yields FellBack with a synthesized record.
func (s *Service) persist(ctx context.Context, req *assistantRequest, response string, tokens int) PersistResult {
	ex := &store.Exchange{
		ProjectID:  req.ProjectID,
		Message:    req.Message,
		Response:   response,
		TokensUsed: tokens,
	}

	if s.store == nil {
		return s.fallBack(ex, errStoreDisabled)
	}

	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	if s.identity != nil {
		ex.UserID = s.identity.Resolve(ctx, req.Authorization)
	}

	rec, err := s.store.Scope(req.Authorization).Insert(ctx, ex)
	if err != nil {
		return s.fallBack(ex, apierr.Storage(err))
	}
	if rec == nil {
		return s.fallBack(ex, apierr.Storage(errors.New("store returned no record")))
	}

	s.recordStore(Stored)
	return PersistResult{Outcome: Stored, Record: rec}
}

func (s *Service) fallBack(ex *store.Exchange, err error) PersistResult {
	s.recordStore(FellBack)
	return PersistResult{
		Outcome: FellBack,
		Record: &store.Record{
			ID:         uuid.NewString(),
			Response:   ex.Response,
			TokensUsed: ex.TokensUsed,
			CreatedAt:  store.Timestamp(time.Now()),
		},
		Err: err,
	}
}

func (s *Service) recordStore(o Outcome) {
	if s.metrics != nil {
		s.metrics.RecordStoreWrite(s.storeName(), o.String())
	}
}

func (s *Service) storeName() string {
	if s.store == nil {
		return "none"
	}
	return s.store.Name()
}
