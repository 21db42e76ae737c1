package mongo

import (
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/v2/bson"

	"billdesk/backend/internal/domain"
)

// Field names follow the documents already in the billGenerator database.
type billDocument struct {
	ObjectID      bson.ObjectID  `bson:"_id,omitempty"`
	ID            string         `bson:"id"`
	InvoiceNumber string         `bson:"invoiceNumber"`
	CustomerName  string         `bson:"customerName"`
	Items         []itemDocument `bson:"items"`
	Total         any            `bson:"total"`
	Date          time.Time      `bson:"date"`
	CreatedAt     time.Time      `bson:"createdAt"`
	UpdatedAt     time.Time      `bson:"updatedAt"`
}

type itemDocument struct {
	ID          string  `bson:"id"`
	Description string  `bson:"description"`
	Unit        *string `bson:"unit,omitempty"`
	Kg          *string `bson:"kg,omitempty"`
	Price       any     `bson:"price"`
}

func toDocument(b domain.Bill) billDocument {
	items := make([]itemDocument, 0, len(b.Items))
	for _, item := range b.Items {
		items = append(items, itemDocument{
			ID:          item.ID,
			Description: item.Description,
			Unit:        item.Unit,
			Kg:          item.Kg,
			Price:       toDecimal128(item.Price),
		})
	}
	return billDocument{
		ID:            b.ID,
		InvoiceNumber: b.InvoiceNumber,
		CustomerName:  b.CustomerName,
		Items:         items,
		Total:         toDecimal128(b.Total),
		Date:          b.Date.UTC(),
		CreatedAt:     b.CreatedAt.UTC(),
		UpdatedAt:     b.UpdatedAt.UTC(),
	}
}

func fromDocument(doc billDocument) domain.Bill {
	items := make([]domain.BillItem, 0, len(doc.Items))
	for _, item := range doc.Items {
		items = append(items, domain.BillItem{
			ID:          item.ID,
			Description: item.Description,
			Unit:        domain.NormalizeOptional(item.Unit),
			Kg:          domain.NormalizeOptional(item.Kg),
			Price:       amountFromBSON(item.Price),
		})
	}
	return domain.Bill{
		StoreID:       doc.ObjectID.Hex(),
		ID:            doc.ID,
		InvoiceNumber: doc.InvoiceNumber,
		CustomerName:  doc.CustomerName,
		Items:         items,
		Total:         amountFromBSON(doc.Total),
		Date:          doc.Date.UTC(),
		CreatedAt:     doc.CreatedAt.UTC(),
		UpdatedAt:     doc.UpdatedAt.UTC(),
	}
}

func toDecimal128(a domain.Amount) bson.Decimal128 {
	d, err := bson.ParseDecimal128(a.String())
	if err != nil {
		return bson.NewDecimal128(0, 0)
	}
	return d
}

// amountFromBSON accepts the numeric encodings older documents were written
// with (doubles, ints, strings) as well as Decimal128.
func amountFromBSON(v any) domain.Amount {
	switch n := v.(type) {
	case bson.Decimal128:
		return domain.ParseAmount(n.String())
	case float64:
		return domain.AmountFromFloat(n)
	case int32:
		return domain.NewAmount(decimal.NewFromInt32(n))
	case int64:
		return domain.NewAmount(decimal.NewFromInt(n))
	case string:
		return domain.ParseAmount(n)
	default:
		return domain.Amount{}
	}
}
