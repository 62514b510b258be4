package receipt

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const bucketName = "receipts"

// ErrNotFound is returned when no receipt is stored under a receipt number
var ErrNotFound = errors.New("receipt not found")

func notFound(number string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, number)
}

// DB defines the interface for database operations. Receipts are keyed by
// receipt number; saving an existing number replaces the stored record.
type DB interface {
	// SaveReceipt saves a receipt to the database
	SaveReceipt(receipt *Receipt) error

	// GetReceipt retrieves a receipt by receipt number
	GetReceipt(number string) (*Receipt, error)

	// HasReceipt reports whether a receipt number is already stored
	HasReceipt(number string) (bool, error)

	// ListReceipts returns all receipts
	ListReceipts() ([]*Receipt, error)

	// DeleteReceipt removes a receipt from the database
	DeleteReceipt(number string) error

	// DeleteOlderThan removes receipts paid before cutoff and returns how
	// many were removed. Undated receipts are kept.
	DeleteOlderThan(cutoff time.Time) (int, error)

	// Close closes the database connection
	Close() error
}

// BoltDB implements the DB interface using BoltDB
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB creates a new BoltDB instance
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

// SaveReceipt saves a receipt to the database
func (b *BoltDB) SaveReceipt(receipt *Receipt) error {
	if receipt.ReceiptNumber == "" {
		return fmt.Errorf("receipt number is required")
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		data, err := json.Marshal(receipt)
		if err != nil {
			return fmt.Errorf("marshaling receipt: %w", err)
		}
		return bucket.Put([]byte(receipt.ReceiptNumber), data)
	})
}

// GetReceipt retrieves a receipt by receipt number
func (b *BoltDB) GetReceipt(number string) (*Receipt, error) {
	var receipt *Receipt
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		data := bucket.Get([]byte(number))
		if data == nil {
			return notFound(number)
		}
		return json.Unmarshal(data, &receipt)
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// HasReceipt reports whether a receipt number is already stored
func (b *BoltDB) HasReceipt(number string) (bool, error) {
	var found bool
	err := b.db.View(func(tx *bbolt.Tx) error {
		found = tx.Bucket([]byte(bucketName)).Get([]byte(number)) != nil
		return nil
	})
	return found, err
}

// ListReceipts returns all receipts in receipt number order
func (b *BoltDB) ListReceipts() ([]*Receipt, error) {
	receipts := make([]*Receipt, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		return bucket.ForEach(func(k, v []byte) error {
			var receipt Receipt
			if err := json.Unmarshal(v, &receipt); err != nil {
				return fmt.Errorf("unmarshaling receipt %s: %w", k, err)
			}
			receipts = append(receipts, &receipt)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return receipts, nil
}

// DeleteReceipt removes a receipt from the database
func (b *BoltDB) DeleteReceipt(number string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		if bucket.Get([]byte(number)) == nil {
			return notFound(number)
		}
		return bucket.Delete([]byte(number))
	})
}

// DeleteOlderThan removes receipts paid before cutoff
func (b *BoltDB) DeleteOlderThan(cutoff time.Time) (int, error) {
	var deleted int
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))

		// Keys are collected first; deleting while iterating with ForEach is
		// not allowed.
		var stale [][]byte
		err := bucket.ForEach(func(k, v []byte) error {
			var receipt Receipt
			if err := json.Unmarshal(v, &receipt); err != nil {
				return fmt.Errorf("unmarshaling receipt %s: %w", k, err)
			}
			if receipt.PaymentDateTime != nil && receipt.PaymentDateTime.Before(cutoff) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}

		for _, k := range stale {
			if err := bucket.Delete(k); err != nil {
				return fmt.Errorf("deleting receipt %s: %w", k, err)
			}
		}
		deleted = len(stale)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}
