package applications

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/ticketpay-backend/pkg/db"
	"github.com/angelmondragon/ticketpay-backend/pkg/db/models"
	"github.com/angelmondragon/ticketpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/ticketpay-backend/pkg/errors"
)

const maxMessageLen = 500

// CreateInput is the purchase record written after a confirmed charge.
type CreateInput struct {
	ApplicantID uuid.UUID
	PartyID     uuid.UUID
	OrderID     string
	PaymentKey  string
	Amount      int64
	Message     string
}

// Service manages the purchase application created at the end of the payment saga.
type Service interface {
	CreateOrGet(ctx context.Context, input CreateInput) (*models.PartyApplication, bool, error)
	FindByOrderID(ctx context.Context, orderID string) (*models.PartyApplication, error)
	Cancel(ctx context.Context, orderID string) (*models.PartyApplication, error)
}

type service struct {
	repo Repository
	now  func() time.Time
}

// NewService wires the applications service.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("applications repository required")
	}
	return &service{repo: repo, now: time.Now}, nil
}

// CreateOrGet inserts the application for an order once. The bool reports
// whether this call created it.
func (s *service) CreateOrGet(ctx context.Context, input CreateInput) (*models.PartyApplication, bool, error) {
	if err := validateCreate(input); err != nil {
		return nil, false, err
	}

	existing, err := s.FindByOrderID(ctx, input.OrderID)
	if err == nil {
		return existing, false, nil
	}
	if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		return nil, false, err
	}

	application := &models.PartyApplication{
		ID:          uuid.New(),
		PartyID:     input.PartyID,
		ApplicantID: input.ApplicantID,
		OrderID:     input.OrderID,
		PaymentKey:  input.PaymentKey,
		Amount:      input.Amount,
		Status:      enums.ApplicationStatusApplied,
	}
	if msg := strings.TrimSpace(input.Message); msg != "" {
		application.Message = &msg
	}

	if err := s.repo.Create(ctx, application); err != nil {
		if db.IsUniqueViolation(err, "") {
			existing, findErr := s.FindByOrderID(ctx, input.OrderID)
			if findErr != nil {
				return nil, false, findErr
			}
			return existing, false, nil
		}
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create application")
	}
	return application, true, nil
}

func (s *service) FindByOrderID(ctx context.Context, orderID string) (*models.PartyApplication, error) {
	application, err := s.repo.FindByOrderID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "application not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load application")
	}
	return application, nil
}

// Cancel withdraws the application. Canceling twice is a no-op.
func (s *service) Cancel(ctx context.Context, orderID string) (*models.PartyApplication, error) {
	if strings.TrimSpace(orderID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if _, err := s.repo.MarkCanceled(ctx, orderID, s.now().UTC()); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel application")
	}
	return s.FindByOrderID(ctx, orderID)
}

func validateCreate(input CreateInput) error {
	switch {
	case input.ApplicantID == uuid.Nil:
		return pkgerrors.New(pkgerrors.CodeValidation, "applicant id required")
	case input.PartyID == uuid.Nil:
		return pkgerrors.New(pkgerrors.CodeValidation, "party id required")
	case strings.TrimSpace(input.OrderID) == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	case strings.TrimSpace(input.PaymentKey) == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "payment key required")
	case input.Amount <= 0:
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	return ValidateMessage(input.Message)
}

// ValidateMessage checks the free-text note a buyer attaches to a purchase.
func ValidateMessage(message string) error {
	if len(strings.TrimSpace(message)) > maxMessageLen {
		return pkgerrors.New(pkgerrors.CodeValidation, "message too long")
	}
	return nil
}
