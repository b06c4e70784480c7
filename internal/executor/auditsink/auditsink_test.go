package auditsink

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/dexrouter/internal/executor"
	"github.com/sawpanic/dexrouter/internal/venue"
)

func TestRecord_InsertsReceipt(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO audit_receipts").
		WithArgs(venue.Key{1}.String(), venue.KindConstantProductA.String(), venue.Key{2}.String(), venue.Key{3}.String(), uint64(100), uint64(99), "sig123", "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	sink := NewWithDB(sqlx.NewDb(db, "sqlmock"), time.Second)
	err = sink.Record(context.Background(), executor.Receipt{
		VenueKey:   venue.Key{1},
		Kind:       venue.KindConstantProductA,
		InputMint:  venue.Key{2},
		OutputMint: venue.Key{3},
		InAmount:   100,
		OutAmount:  99,
		Signature:  "sig123",
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecord_ErrorNeverPanics(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO audit_receipts").WillReturnError(context.DeadlineExceeded)

	sink := NewWithDB(sqlx.NewDb(db, "sqlmock"), time.Second)
	err = sink.Record(context.Background(), executor.Receipt{VenueKey: venue.Key{9}})
	require.Error(t, err)
}
