package mongo

import (
	"context"
	"os"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"billdesk/backend/internal/domain"
	"billdesk/backend/internal/store"
	"billdesk/backend/internal/store/storetest"
)

func TestRepositoryContract(t *testing.T) {
	uri := os.Getenv("BILLDESK_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("set BILLDESK_TEST_MONGO_URI to run mongo integration test")
	}

	storetest.Run(t, func(t *testing.T) store.Repository {
		ctx := context.Background()
		s, err := New(ctx, uri, "billdesk_test")
		require.NoError(t, err)
		_, err = s.bills.DeleteMany(ctx, bson.D{})
		require.NoError(t, err)
		t.Cleanup(func() {
			_ = s.Close()
		})
		return s
	})
}

func TestAmountFromBSONAcceptsLegacyEncodings(t *testing.T) {
	dec, err := bson.ParseDecimal128("12.50")
	require.NoError(t, err)

	cases := []struct {
		name string
		in   any
		want string
	}{
		{name: "decimal128", in: dec, want: "12.50"},
		{name: "double", in: 7.25, want: "7.25"},
		{name: "int32", in: int32(3), want: "3.00"},
		{name: "int64", in: int64(40), want: "40.00"},
		{name: "string", in: "9.9", want: "9.90"},
		{name: "malformed string", in: "abc", want: "0.00"},
		{name: "missing", in: nil, want: "0.00"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, amountFromBSON(tc.in).Format())
		})
	}
}

func TestDocumentMappingKeepsOptionalLabels(t *testing.T) {
	unit := "pcs"
	blank := "  "
	bill := domain.Bill{
		ID:            "client-1",
		InvoiceNumber: "101",
		CustomerName:  "Acme",
		Items: []domain.BillItem{
			{ID: "1", Description: "Vest", Unit: &unit, Kg: &blank, Price: domain.NewAmount(decimal.RequireFromString("30.5"))},
		},
		Total: domain.ParseAmount("30.5"),
	}

	doc := toDocument(bill)
	doc.ObjectID = bson.NewObjectID()
	back := fromDocument(doc)

	assert.Equal(t, doc.ObjectID.Hex(), back.StoreID)
	require.Len(t, back.Items, 1)
	require.NotNil(t, back.Items[0].Unit)
	assert.Equal(t, "pcs", *back.Items[0].Unit)
	assert.Nil(t, back.Items[0].Kg)
	assert.Equal(t, "30.50", back.Total.Format())
}
