package outbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"tokenlock/core/processor"
	"tokenlock/core/types"
	"tokenlock/crypto"
	"tokenlock/native/common"
)

// Status is the delivery state of an outbox transfer.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusForwarded Status = "FORWARDED"
	StatusCancelled Status = "CANCELLED"
)

// ErrUnknownTransfer is returned when acknowledging ids that are not pending.
var ErrUnknownTransfer = errors.New("outbox: transfer not pending")

// Transfer is one ledger instruction awaiting delivery.
type Transfer struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	Serial      int64     `gorm:"uniqueIndex"`
	ReceiptID   uuid.UUID `gorm:"type:uuid;index"`
	Seq         int       `gorm:"not null"`
	Command     string    `gorm:"size:32;index"`
	From        string    `gorm:"size:64;not null"`
	To          string    `gorm:"size:64;not null"`
	Amount      string    `gorm:"size:80;not null"`
	Reason      string    `gorm:"size:32"`
	Status      Status    `gorm:"size:16;index"`
	CommandTime uint64
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ForwardedAt *time.Time
}

// Store persists transfers produced by the processor until the external
// ledger acknowledges them.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// Open connects to the database at dsn and migrates the schema. Postgres
// URLs and keyword DSNs select the postgres driver; anything else is treated
// as a sqlite DSN.
func Open(dsn string) (*Store, error) {
	postgresDSN := isPostgres(dsn)
	dialector := sqlite.Open(dsn)
	if postgresDSN {
		dialector = postgres.Open(dsn)
	}
	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("outbox: open: %w", err)
	}
	if !postgresDSN {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		// sqlite admits one writer; a single connection avoids SQLITE_BUSY.
		sqlDB.SetMaxOpenConns(1)
	}
	return New(db)
}

func isPostgres(dsn string) bool {
	trimmed := strings.TrimSpace(dsn)
	return strings.HasPrefix(trimmed, "postgres://") ||
		strings.HasPrefix(trimmed, "postgresql://") ||
		strings.HasPrefix(trimmed, "host=")
}

// New wraps an existing gorm handle.
func New(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("outbox: db required")
	}
	if err := db.AutoMigrate(&Transfer{}); err != nil {
		return nil, fmt.Errorf("outbox: migrate: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Enqueue records the receipt's transfers as pending.
func (s *Store) Enqueue(ctx context.Context, receipt *processor.Receipt) error {
	if receipt == nil || len(receipt.Transfers) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var last int64
		if err := tx.Model(&Transfer{}).Select("COALESCE(MAX(serial), 0)").Scan(&last).Error; err != nil {
			return err
		}
		rows := make([]Transfer, 0, len(receipt.Transfers))
		for i, t := range receipt.Transfers {
			rows = append(rows, transferRow(receipt, i, t, last+int64(i)+1))
		}
		return tx.Create(&rows).Error
	})
}

func transferRow(receipt *processor.Receipt, seq int, t types.Transfer, serial int64) Transfer {
	return Transfer{
		ID:          uuid.New(),
		Serial:      serial,
		ReceiptID:   receipt.ID,
		Seq:         seq,
		Command:     string(receipt.Command),
		From:        crypto.AccountString(t.From),
		To:          crypto.AccountString(t.To),
		Amount:      common.FormatAmount(t.Amount),
		Reason:      t.Reason,
		Status:      StatusPending,
		CommandTime: receipt.Now,
	}
}

// Cancel withdraws the pending transfers of a receipt whose state change was
// not committed.
func (s *Store) Cancel(ctx context.Context, receiptID uuid.UUID) error {
	return s.db.WithContext(ctx).
		Model(&Transfer{}).
		Where("receipt_id = ? AND status = ?", receiptID, StatusPending).
		Update("status", StatusCancelled).Error
}

// Pending lists up to limit pending transfers in enqueue order.
func (s *Store) Pending(ctx context.Context, limit int) ([]Transfer, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []Transfer
	err := s.db.WithContext(ctx).
		Where("status = ?", StatusPending).
		Order("serial ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// List returns transfers in enqueue order, optionally filtered by status.
// A zero limit returns every match.
func (s *Store) List(ctx context.Context, status Status, limit int) ([]Transfer, error) {
	query := s.db.WithContext(ctx).Order("serial ASC")
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	var rows []Transfer
	err := query.Find(&rows).Error
	return rows, err
}

// CountPending returns the number of transfers awaiting acknowledgement.
func (s *Store) CountPending(ctx context.Context) (int, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&Transfer{}).Where("status = ?", StatusPending).Count(&count).Error
	return int(count), err
}

// MarkForwarded acknowledges delivered transfers. Every id must be pending;
// otherwise nothing is updated.
func (s *Store) MarkForwarded(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	now := s.now().UTC()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Transfer{}).
			Where("id IN ? AND status = ?", ids, StatusPending).
			Updates(map[string]interface{}{"status": StatusForwarded, "forwarded_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != int64(len(ids)) {
			return fmt.Errorf("%w: %d of %d acknowledged", ErrUnknownTransfer, res.RowsAffected, len(ids))
		}
		return nil
	})
}
