package store

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return sqlx.NewDb(db, "postgres"), mock
}

func TestWithTx(t *testing.T) {
	t.Run("commits on success", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE orders").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := WithTx(context.Background(), db, func(tx *sqlx.Tx) error {
			_, err := tx.ExecContext(context.Background(), "UPDATE orders SET status = 'pending'")
			return err
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("database expectations were not met: %v", err)
		}
	})

	t.Run("rolls back on error", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectBegin()
		mock.ExpectRollback()

		want := errors.New("boom")
		err := WithTx(context.Background(), db, func(tx *sqlx.Tx) error {
			return want
		})
		if !errors.Is(err, want) {
			t.Fatalf("expected %v, got %v", want, err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("database expectations were not met: %v", err)
		}
	})
}

func TestIsUniqueViolation(t *testing.T) {
	violation := &pq.Error{Code: "23505", Constraint: "payments_order_id_key"}

	if !IsUniqueViolation(violation, "") {
		t.Error("expected violation to match any constraint")
	}
	if !IsUniqueViolation(fmt.Errorf("insert: %w", violation), "payments_order_id_key") {
		t.Error("expected wrapped violation to match")
	}
	if IsUniqueViolation(violation, "reviews_user_template_key") {
		t.Error("expected constraint mismatch")
	}
	if IsUniqueViolation(&pq.Error{Code: "23503"}, "") {
		t.Error("expected foreign key violation not to match")
	}
	if IsUniqueViolation(errors.New("plain"), "") {
		t.Error("expected plain error not to match")
	}
}
