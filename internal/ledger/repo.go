package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/ticketpay-backend/pkg/db/models"
	"github.com/angelmondragon/ticketpay-backend/pkg/enums"
)

// Repository manages persistence for payment transactions.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, txn *models.PaymentTransaction) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.PaymentTransaction, error)
	FindByOrderID(ctx context.Context, orderID string) (*models.PaymentTransaction, error)
	FindByPaymentKey(ctx context.Context, paymentKey string) (*models.PaymentTransaction, error)
	FindForUpdate(ctx context.Context, id uuid.UUID) (*models.PaymentTransaction, error)
	FindByOrderIDForUpdate(ctx context.Context, orderID string) (*models.PaymentTransaction, error)
	Save(ctx context.Context, txn *models.PaymentTransaction) error
	ListAwaitingSettlement(ctx context.Context, createdBefore time.Time, limit int) ([]models.PaymentTransaction, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, txn *models.PaymentTransaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.PaymentTransaction, error) {
	return r.first(r.db.WithContext(ctx).Where("id = ?", id))
}

func (r *repository) FindByOrderID(ctx context.Context, orderID string) (*models.PaymentTransaction, error) {
	return r.first(r.db.WithContext(ctx).Where("order_id = ?", orderID))
}

func (r *repository) FindByPaymentKey(ctx context.Context, paymentKey string) (*models.PaymentTransaction, error) {
	return r.first(r.db.WithContext(ctx).Where("gateway_payment_key = ?", paymentKey))
}

func (r *repository) FindForUpdate(ctx context.Context, id uuid.UUID) (*models.PaymentTransaction, error) {
	return r.first(r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id))
}

func (r *repository) FindByOrderIDForUpdate(ctx context.Context, orderID string) (*models.PaymentTransaction, error) {
	return r.first(r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("order_id = ?", orderID))
}

func (r *repository) Save(ctx context.Context, txn *models.PaymentTransaction) error {
	return r.db.WithContext(ctx).Save(txn).Error
}

// ListAwaitingSettlement returns paid transactions past the hold that never
// got a payout row.
func (r *repository) ListAwaitingSettlement(ctx context.Context, createdBefore time.Time, limit int) ([]models.PaymentTransaction, error) {
	var rows []models.PaymentTransaction
	err := r.db.WithContext(ctx).
		Where("payment_status IN ?", []enums.PaymentStatus{enums.PaymentStatusPaid, enums.PaymentStatusPartiallyCanceled}).
		Where("settlement_status = ?", enums.SettlementStatusPending).
		Where("created_at < ?", createdBefore).
		Where("NOT EXISTS (SELECT 1 FROM payout_transactions p WHERE p.payment_transaction_id = payment_transactions.id)").
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) first(query *gorm.DB) (*models.PaymentTransaction, error) {
	var txn models.PaymentTransaction
	if err := query.First(&txn).Error; err != nil {
		return nil, err
	}
	return &txn, nil
}
