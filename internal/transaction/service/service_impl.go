package service

import (
	"context"
	"sort"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/classbill/classbill/internal/clock"
	organizationdomain "github.com/classbill/classbill/internal/organization/domain"
	transactiondomain "github.com/classbill/classbill/internal/transaction/domain"
	"github.com/classbill/classbill/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	clock   clock.Clock
	repo    transactiondomain.Repository
	orgRepo organizationdomain.Repository
}

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Clock   clock.Clock
	Repo    transactiondomain.Repository
	OrgRepo organizationdomain.Repository
}

func NewService(p ServiceParam) transactiondomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("transaction.service"),

		clock:   p.Clock,
		repo:    p.Repo,
		orgRepo: p.OrgRepo,
	}
}

// Record implements domain.Service.
func (s *Service) Record(ctx context.Context, txn transactiondomain.Transaction) (transactiondomain.Transaction, error) {
	txn.ID = strings.TrimSpace(txn.ID)
	if txn.ID == "" {
		return transactiondomain.Transaction{}, transactiondomain.ErrInvalidReference
	}
	switch txn.Status {
	case transactiondomain.StatusPending, transactiondomain.StatusSuccess, transactiondomain.StatusFailed:
	default:
		return transactiondomain.Transaction{}, transactiondomain.ErrInvalidStatus
	}

	existing, err := s.repo.FindByID(ctx, s.db, txn.ID)
	if err != nil {
		return transactiondomain.Transaction{}, err
	}
	if existing != nil {
		return s.amend(ctx, *existing, txn)
	}

	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = s.clock.Now()
	}
	if err := s.repo.Insert(ctx, s.db, &txn); err != nil {
		if db.IsDuplicateKeyErr(err) {
			// Lost an insert race; fall through to the amend path.
			existing, ferr := s.repo.FindByID(ctx, s.db, txn.ID)
			if ferr != nil {
				return transactiondomain.Transaction{}, ferr
			}
			if existing != nil {
				return s.amend(ctx, *existing, txn)
			}
		}
		return transactiondomain.Transaction{}, err
	}
	return txn, nil
}

func (s *Service) amend(ctx context.Context, existing, txn transactiondomain.Transaction) (transactiondomain.Transaction, error) {
	if existing.Status == txn.Status {
		// Same reference, same status: observational no-op.
		return existing, nil
	}

	existing.Status = txn.Status
	existing.GatewayResponse = txn.GatewayResponse
	if txn.CompletedAt != nil {
		existing.CompletedAt = txn.CompletedAt
	} else if txn.Status != transactiondomain.StatusPending {
		now := s.clock.Now()
		existing.CompletedAt = &now
	}

	if err := s.repo.Amend(ctx, s.db, &existing); err != nil {
		return transactiondomain.Transaction{}, err
	}
	return existing, nil
}

// Get implements domain.Service.
func (s *Service) Get(ctx context.Context, reference string) (*transactiondomain.Transaction, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, transactiondomain.ErrInvalidReference
	}
	return s.repo.FindByID(ctx, s.db, reference)
}

// History implements domain.Service. Transactions were historically filed
// under the paying member's id rather than the organization's, so the lookup
// unions every owner key associated with the organization.
func (s *Service) History(ctx context.Context, orgID snowflake.ID) ([]transactiondomain.Transaction, error) {
	if orgID == 0 {
		return nil, organizationdomain.ErrOrganizationNotFound
	}

	keys := []snowflake.ID{orgID}
	members, err := s.orgRepo.ListMembers(ctx, s.db, orgID)
	if err != nil {
		return nil, err
	}
	for _, m := range members {
		keys = append(keys, m.ID)
	}

	txns, err := s.repo.FindByOwnerKeys(ctx, s.db, keys)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(txns))
	out := make([]transactiondomain.Transaction, 0, len(txns))
	for _, txn := range txns {
		if seen[txn.ID] {
			continue
		}
		seen[txn.ID] = true
		out = append(out, txn)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}
