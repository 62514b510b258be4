package receipt

import (
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/zombor/komunalka/internal/scanning"
)

// receiptRow is the relational layout of a receipt. Amounts are stored as
// text so they round-trip exactly.
type receiptRow struct {
	ID                uint                `gorm:"primaryKey"`
	ReceiptNumber     string              `gorm:"uniqueIndex;not null"`
	PaymentDateTime   *time.Time          `gorm:"index"`
	TotalAmount       decimal.NullDecimal `gorm:"type:text"`
	TransferredAmount decimal.NullDecimal `gorm:"type:text"`
	Commission        decimal.NullDecimal `gorm:"type:text"`
	ServiceProvider   string
	ServiceType       string
	PayerName         string
	Address           string
	BankTerminal      string
	PaymentStatus     string
	RawFilePath       string
	ExtractedAt       time.Time
}

func (receiptRow) TableName() string {
	return "receipts"
}

func toRow(r *Receipt) *receiptRow {
	return &receiptRow{
		ReceiptNumber:     r.ReceiptNumber,
		PaymentDateTime:   r.PaymentDateTime,
		TotalAmount:       r.TotalAmount,
		TransferredAmount: r.TransferredAmount,
		Commission:        r.Commission,
		ServiceProvider:   r.ServiceProvider,
		ServiceType:       string(r.ServiceType),
		PayerName:         r.PayerName,
		Address:           r.Address,
		BankTerminal:      r.BankTerminal,
		PaymentStatus:     r.PaymentStatus,
		RawFilePath:       r.SourcePath,
		ExtractedAt:       r.ExtractedAt,
	}
}

func (row *receiptRow) toReceipt() *Receipt {
	return &Receipt{
		ReceiptData: scanning.ReceiptData{
			ReceiptNumber:     row.ReceiptNumber,
			PaymentDateTime:   row.PaymentDateTime,
			TotalAmount:       row.TotalAmount,
			TransferredAmount: row.TransferredAmount,
			Commission:        row.Commission,
			ServiceProvider:   row.ServiceProvider,
			ServiceType:       scanning.ServiceType(row.ServiceType),
			PayerName:         row.PayerName,
			Address:           row.Address,
			BankTerminal:      row.BankTerminal,
			SourcePath:        row.RawFilePath,
		},
		PaymentStatus: row.PaymentStatus,
		ExtractedAt:   row.ExtractedAt,
	}
}

// SQLiteDB implements the DB interface on a relational receipts table
type SQLiteDB struct {
	db *gorm.DB
}

// NewSQLiteDB opens (and migrates) the SQLite database at path
func NewSQLiteDB(path string) (*SQLiteDB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}

	if err := db.AutoMigrate(&receiptRow{}); err != nil {
		if sqlDB, dbErr := db.DB(); dbErr == nil {
			sqlDB.Close()
		}
		return nil, fmt.Errorf("migrating receipts table: %w", err)
	}

	return &SQLiteDB{db: db}, nil
}

// SaveReceipt inserts a receipt or replaces the one with the same number
func (s *SQLiteDB) SaveReceipt(receipt *Receipt) error {
	if receipt.ReceiptNumber == "" {
		return fmt.Errorf("receipt number is required")
	}
	row := toRow(receipt)
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "receipt_number"}},
		UpdateAll: true,
	}).Create(row).Error
	if err != nil {
		return fmt.Errorf("saving receipt: %w", err)
	}
	return nil
}

// GetReceipt retrieves a receipt by receipt number
func (s *SQLiteDB) GetReceipt(number string) (*Receipt, error) {
	var row receiptRow
	err := s.db.Where("receipt_number = ?", number).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound(number)
	}
	if err != nil {
		return nil, fmt.Errorf("querying receipt: %w", err)
	}
	return row.toReceipt(), nil
}

// HasReceipt reports whether a receipt number is already stored
func (s *SQLiteDB) HasReceipt(number string) (bool, error) {
	var count int64
	if err := s.db.Model(&receiptRow{}).Where("receipt_number = ?", number).Count(&count).Error; err != nil {
		return false, fmt.Errorf("counting receipts: %w", err)
	}
	return count > 0, nil
}

// ListReceipts returns all receipts in insertion order
func (s *SQLiteDB) ListReceipts() ([]*Receipt, error) {
	var rows []receiptRow
	if err := s.db.Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing receipts: %w", err)
	}

	receipts := make([]*Receipt, 0, len(rows))
	for i := range rows {
		receipts = append(receipts, rows[i].toReceipt())
	}
	return receipts, nil
}

// DeleteReceipt removes a receipt from the database
func (s *SQLiteDB) DeleteReceipt(number string) error {
	result := s.db.Where("receipt_number = ?", number).Delete(&receiptRow{})
	if result.Error != nil {
		return fmt.Errorf("deleting receipt: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return notFound(number)
	}
	return nil
}

// DeleteOlderThan removes receipts paid before cutoff
func (s *SQLiteDB) DeleteOlderThan(cutoff time.Time) (int, error) {
	result := s.db.Where("payment_date_time IS NOT NULL AND payment_date_time < ?", cutoff).Delete(&receiptRow{})
	if result.Error != nil {
		return 0, fmt.Errorf("deleting old receipts: %w", result.Error)
	}
	return int(result.RowsAffected), nil
}

// Close closes the database connection
func (s *SQLiteDB) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
