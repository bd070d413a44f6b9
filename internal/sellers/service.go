package sellers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/ticketpay-backend/pkg/db/models"
	"github.com/angelmondragon/ticketpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/ticketpay-backend/pkg/errors"
)

// UpsertInput registers or replaces a seller's payout destination.
type UpsertInput struct {
	UserID           uuid.UUID
	Provider         string
	ProviderSellerID string
	KYCStatus        enums.KYCStatus
	Metadata         json.RawMessage
}

// Service reads and maintains seller payout profiles.
type Service interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (*models.SellerPayoutProfile, error)
	Upsert(ctx context.Context, input UpsertInput) (*models.SellerPayoutProfile, error)
}

type service struct {
	repo Repository
}

// NewService wires the sellers service.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("sellers repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.SellerPayoutProfile, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	profile, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "seller payout profile not found").WithReason("SELLER_NOT_ONBOARDED")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load seller payout profile")
	}
	return profile, nil
}

func (s *service) Upsert(ctx context.Context, input UpsertInput) (*models.SellerPayoutProfile, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	provider := strings.ToLower(strings.TrimSpace(input.Provider))
	if provider == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "provider required")
	}
	sellerID := strings.TrimSpace(input.ProviderSellerID)
	if sellerID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "provider seller id required")
	}
	status := input.KYCStatus
	if status == "" {
		status = enums.KYCStatusPending
	}
	if !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid kyc status")
	}

	profile := &models.SellerPayoutProfile{
		ID:               uuid.New(),
		UserID:           input.UserID,
		Provider:         provider,
		ProviderSellerID: sellerID,
		KYCStatus:        status,
		MetadataJSON:     input.Metadata,
	}
	if err := s.repo.Upsert(ctx, profile); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save seller payout profile")
	}
	return s.GetByUserID(ctx, input.UserID)
}
