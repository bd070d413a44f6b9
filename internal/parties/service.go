package parties

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/ticketpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/ticketpay-backend/pkg/errors"
)

// Listing is the price and ownership data the payment flow trusts.
type Listing struct {
	PartyID     uuid.UUID
	SellerID    uuid.UUID
	Title       string
	Mode        enums.PartyMode
	TicketPrice int64
	Price       int64
}

// Service exposes listing lookups to the payment saga.
type Service interface {
	GetPayableListing(ctx context.Context, partyID uuid.UUID) (*Listing, error)
}

type service struct {
	repo Repository
}

// NewService wires the parties service.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("parties repository required")
	}
	return &service{repo: repo}, nil
}

// GetPayableListing returns the listing only while it can still take payments.
func (s *service) GetPayableListing(ctx context.Context, partyID uuid.UUID) (*Listing, error) {
	if partyID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "party id required")
	}
	party, err := s.repo.FindByID(ctx, partyID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "party not found").WithReason("PARTY_NOT_FOUND")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load party")
	}
	if party.Status != enums.PartyStatusOpen {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "party is not accepting payments").
			WithReason("LISTING_NOT_PAYABLE")
	}
	return &Listing{
		PartyID:     party.ID,
		SellerID:    party.HostUserID,
		Title:       party.Title,
		Mode:        party.Mode,
		TicketPrice: party.TicketPrice,
		Price:       party.Price,
	}, nil
}
