package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/hybrid-bistoon/anbar/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection names shared with the legacy deployment
const (
	productsCollection = "barcodes"
	invoicesCollection = "invoices"
	usersCollection    = "users"
)

// MongoStore keeps the catalog and invoices in MongoDB. Invoice lines are
// embedded in the invoice document, as in the records written before the
// SQL backend existed.
type MongoStore struct {
	db      *mongo.Database
	onClose func() error
}

// NewMongoStore wraps db. onClose usually disconnects the client.
func NewMongoStore(db *mongo.Database, onClose func() error) *MongoStore {
	return &MongoStore{db: db, onClose: onClose}
}

func (s *MongoStore) products() *mongo.Collection { return s.db.Collection(productsCollection) }
func (s *MongoStore) invoices() *mongo.Collection { return s.db.Collection(invoicesCollection) }
func (s *MongoStore) users() *mongo.Collection    { return s.db.Collection(usersCollection) }

// Migrate ensures the indexes the queries rely on
func (s *MongoStore) Migrate(ctx context.Context) error {
	if _, err := s.products().Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "code", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "name", Value: 1}}},
	}); err != nil {
		return fmt.Errorf("product indexes: %w", err)
	}
	if _, err := s.invoices().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: -1}},
	}); err != nil {
		return fmt.Errorf("invoice indexes: %w", err)
	}
	if _, err := s.users().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "username", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("user indexes: %w", err)
	}
	return nil
}

func (s *MongoStore) Close() error {
	if s.onClose != nil {
		return s.onClose()
	}
	return nil
}

// ---------------------------------------------------------------------------
// documents
// ---------------------------------------------------------------------------

// productDoc decodes box_num and in_stock loosely: older imports stored
// them as numbers.
type productDoc struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	Code        string             `bson:"code"`
	GeneratedAt time.Time          `bson:"generatedAt"`
	Name        string             `bson:"name,omitempty"`
	Model       string             `bson:"model,omitempty"`
	BoxNum      bson.RawValue      `bson:"box_num,omitempty"`
	SingleNum   int                `bson:"single_num,omitempty"`
	BoxCode     string             `bson:"box_code,omitempty"`
	InStock     bson.RawValue      `bson:"in_stock,omitempty"`
	UpdatedAt   time.Time          `bson:"updatedAt,omitempty"`
}

func (d productDoc) toModel() models.Product {
	p := models.Product{
		Code:        d.Code,
		GeneratedAt: d.GeneratedAt,
		Name:        d.Name,
		Model:       d.Model,
		BoxNum:      rawString(d.BoxNum),
		SingleNum:   d.SingleNum,
		BoxCode:     d.BoxCode,
		UpdatedAt:   d.UpdatedAt,
	}
	if p.SingleNum == 0 {
		p.SingleNum = 1
	}
	switch d.InStock.Type {
	case bson.TypeString:
		p.InStock, _ = json.Marshal(d.InStock.StringValue())
	case bson.TypeInt32, bson.TypeInt64, bson.TypeDouble, bson.TypeDecimal128:
		p.InStock = []byte(rawString(d.InStock))
	}
	return p
}

type lineDoc struct {
	Barcode   string `bson:"barcode"`
	Quantity  int    `bson:"quantity"`
	Collected int    `bson:"collected"`
	Name      string `bson:"name"`
	Model     string `bson:"model"`
	BoxNum    string `bson:"box_num"`
	BoxCode   string `bson:"box_code"`
	SingleNum int    `bson:"single_num,omitempty"`
}

// invoiceDoc reads createdAt raw: legacy documents carry a Jalali string
// there instead of a date.
type invoiceDoc struct {
	ID              primitive.ObjectID `bson:"_id"`
	Name            string             `bson:"name"`
	CreatedAt       bson.RawValue      `bson:"createdAt"`
	LegacyCreatedAt string             `bson:"legacyCreatedAt,omitempty"`
	Status          string             `bson:"status"`
	Items           []lineDoc          `bson:"items"`
	UpdatedAt       time.Time          `bson:"updatedAt,omitempty"`
}

func (d invoiceDoc) toModel() models.Invoice {
	inv := models.Invoice{
		ID:          d.ID.Hex(),
		Name:        d.Name,
		CreatedAtFa: d.LegacyCreatedAt,
		Status:      models.InvoiceStatus(d.Status),
		UpdatedAt:   d.UpdatedAt,
		Items:       make([]models.InvoiceLine, len(d.Items)),
	}
	switch d.CreatedAt.Type {
	case bson.TypeDateTime:
		t := d.CreatedAt.Time().UTC()
		inv.CreatedAt = &t
	case bson.TypeString:
		inv.CreatedAtFa = d.CreatedAt.StringValue()
	}
	if inv.Status == "" {
		inv.Status = models.InvoiceStatusPending
	}
	for i, l := range d.Items {
		inv.Items[i] = models.InvoiceLine{
			InvoiceID: inv.ID,
			Position:  i,
			Barcode:   l.Barcode,
			Quantity:  l.Quantity,
			Collected: l.Collected,
			Name:      l.Name,
			Model:     l.Model,
			BoxNum:    l.BoxNum,
			BoxCode:   l.BoxCode,
			SingleNum: l.SingleNum,
		}
	}
	return inv
}

func rawString(v bson.RawValue) string {
	switch v.Type {
	case bson.TypeString:
		return v.StringValue()
	case bson.TypeInt32:
		return strconv.Itoa(int(v.Int32()))
	case bson.TypeInt64:
		return strconv.FormatInt(v.Int64(), 10)
	case bson.TypeDouble:
		return strconv.FormatFloat(v.Double(), 'f', -1, 64)
	case bson.TypeDecimal128:
		return v.Decimal128().String()
	}
	return ""
}

func objectID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, ErrInvalidID
	}
	return oid, nil
}

// ---------------------------------------------------------------------------
// Products
// ---------------------------------------------------------------------------

func (s *MongoStore) CreateProduct(ctx context.Context, p *models.Product) error {
	doc := bson.M{
		"code":        p.Code,
		"generatedAt": p.GeneratedAt,
		"updatedAt":   time.Now().UTC(),
	}
	for k, v := range mongoFields(ProductFields{
		Name: nonEmpty(p.Name), Model: nonEmpty(p.Model), BoxNum: nonEmpty(p.BoxNum),
		BoxCode: nonEmpty(p.BoxCode), InStock: p.InStock,
	}) {
		doc[k] = v
	}
	if p.SingleNum > 0 {
		doc["single_num"] = p.SingleNum
	}
	if _, err := s.products().InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

func (s *MongoStore) FindProduct(ctx context.Context, code string) (*models.Product, error) {
	var d productDoc
	err := s.products().FindOne(ctx, bson.M{"code": code}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find product %s: %w", code, err)
	}
	p := d.toModel()
	return &p, nil
}

func (s *MongoStore) FindProducts(ctx context.Context, codes []string) ([]models.Product, error) {
	if len(codes) == 0 {
		return nil, nil
	}
	return s.findProducts(ctx, bson.M{"code": bson.M{"$in": uniqueStrings(codes)}}, nil)
}

func (s *MongoStore) findProducts(ctx context.Context, filter any, opts *options.FindOptions) ([]models.Product, error) {
	cur, err := s.products().Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find products: %w", err)
	}
	var docs []productDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode products: %w", err)
	}
	out := make([]models.Product, len(docs))
	for i, d := range docs {
		out[i] = d.toModel()
	}
	return out, nil
}

func (s *MongoStore) UpdateProduct(ctx context.Context, code string, f ProductFields) error {
	if f.Empty() {
		return nil
	}
	res, err := s.products().UpdateOne(ctx, bson.M{"code": code}, bson.M{"$set": mongoFields(f)})
	if err != nil {
		return fmt.Errorf("update product %s: %w", code, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) ApplyProductChanges(ctx context.Context, changes []ProductChange) ([]RowError, error) {
	writes := make([]mongo.WriteModel, 0, len(changes))
	codes := make([]string, 0, len(changes))
	for _, ch := range changes {
		if ch.Fields.Empty() {
			continue
		}
		writes = append(writes, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"code": ch.Code}).
			SetUpdate(bson.M{"$set": mongoFields(ch.Fields)}))
		codes = append(codes, ch.Code)
	}
	if len(writes) == 0 {
		return nil, nil
	}

	_, err := s.products().BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(false))
	if err == nil {
		return nil, nil
	}
	var bwe mongo.BulkWriteException
	if !errors.As(err, &bwe) || len(bwe.WriteErrors) == 0 {
		return nil, fmt.Errorf("bulk update products: %w", err)
	}
	failed := make([]RowError, 0, len(bwe.WriteErrors))
	for _, we := range bwe.WriteErrors {
		code := ""
		if we.Index >= 0 && we.Index < len(codes) {
			code = codes[we.Index]
		}
		failed = append(failed, RowError{Code: code, Error: we.Message})
	}
	return failed, nil
}

func (s *MongoStore) SearchProducts(ctx context.Context, q SearchQuery) ([]models.Product, int64, error) {
	filter := bson.M{}
	switch {
	case q.Code != "":
		filter["code"] = q.Code
	case q.Name != "":
		filter["name"] = primitive.Regex{Pattern: regexp.QuoteMeta(q.Name), Options: "i"}
	}

	total, err := s.products().CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count products: %w", err)
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: filter}},
		{{Key: "$addFields", Value: bson.M{
			"_unnamed": bson.M{"$cond": bson.A{
				bson.M{"$eq": bson.A{bson.M{"$ifNull": bson.A{"$name", ""}}, ""}}, 1, 0,
			}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "_unnamed", Value: 1}, {Key: "name", Value: 1}, {Key: "code", Value: 1}}}},
		{{Key: "$skip", Value: int64(q.Offset)}},
		{{Key: "$limit", Value: int64(q.Limit)}},
	}
	cur, err := s.products().Aggregate(ctx, pipeline)
	if err != nil {
		return nil, 0, fmt.Errorf("search products: %w", err)
	}
	var docs []productDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, 0, fmt.Errorf("decode products: %w", err)
	}
	out := make([]models.Product, len(docs))
	for i, d := range docs {
		out[i] = d.toModel()
	}
	return out, total, nil
}

func (s *MongoStore) FindProductsByName(ctx context.Context, substrings []string, limit int) ([]models.Product, error) {
	if len(substrings) == 0 {
		return nil, nil
	}
	or := make(bson.A, 0, len(substrings))
	for _, sub := range substrings {
		or = append(or, bson.M{"name": primitive.Regex{Pattern: regexp.QuoteMeta(sub)}})
	}
	opts := options.Find().SetSort(bson.D{{Key: "code", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return s.findProducts(ctx, bson.M{"$or": or}, opts)
}

// ---------------------------------------------------------------------------
// Invoices
// ---------------------------------------------------------------------------

func (s *MongoStore) CreateInvoice(ctx context.Context, inv *models.Invoice) error {
	oid := primitive.NewObjectID()
	lines := make([]lineDoc, len(inv.Items))
	for i, it := range inv.Items {
		lines[i] = lineDoc{
			Barcode:   it.Barcode,
			Quantity:  it.Quantity,
			Collected: it.Collected,
			Name:      it.Name,
			Model:     it.Model,
			BoxNum:    it.BoxNum,
			BoxCode:   it.BoxCode,
			SingleNum: it.SingleNum,
		}
	}
	if inv.Status == "" {
		inv.Status = models.InvoiceStatusPending
	}
	now := time.Now().UTC()
	if inv.CreatedAt == nil {
		inv.CreatedAt = &now
	}
	doc := bson.M{
		"_id":       oid,
		"name":      inv.Name,
		"createdAt": *inv.CreatedAt,
		"status":    string(inv.Status),
		"items":     lines,
		"updatedAt": now,
	}
	if inv.CreatedAtFa != "" {
		doc["legacyCreatedAt"] = inv.CreatedAtFa
	}
	if _, err := s.invoices().InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert invoice: %w", err)
	}
	inv.ID = oid.Hex()
	inv.UpdatedAt = now
	for i := range inv.Items {
		inv.Items[i].InvoiceID = inv.ID
		inv.Items[i].Position = i
	}
	return nil
}

func (s *MongoStore) FindInvoice(ctx context.Context, id string) (*models.Invoice, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}
	var d invoiceDoc
	err = s.invoices().FindOne(ctx, bson.M{"_id": oid}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find invoice %s: %w", id, err)
	}
	inv := d.toModel()
	return &inv, nil
}

func (s *MongoStore) ListInvoices(ctx context.Context, f InvoiceFilter) ([]models.Invoice, error) {
	filter := bson.M{}
	if f.Status != "" {
		filter["status"] = string(f.Status)
	}
	if f.From != nil || f.To != nil {
		rng := bson.M{}
		if f.From != nil {
			rng["$gte"] = *f.From
		}
		if f.To != nil {
			rng["$lt"] = *f.To
		}
		filter["createdAt"] = rng
	}
	if f.Serial != "" {
		filter["$expr"] = bson.M{"$regexMatch": bson.M{
			"input":   bson.M{"$toString": "$_id"},
			"regex":   regexp.QuoteMeta(f.Serial),
			"options": "i",
		}}
	}

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	cur, err := s.invoices().Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	var docs []invoiceDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode invoices: %w", err)
	}
	out := make([]models.Invoice, len(docs))
	for i, d := range docs {
		out[i] = d.toModel()
	}
	return out, nil
}

func (s *MongoStore) TransitionInvoice(ctx context.Context, id string, from []models.InvoiceStatus, to models.InvoiceStatus) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	res, err := s.invoices().UpdateOne(ctx,
		bson.M{"_id": oid, "status": bson.M{"$in": statusStrings(from)}},
		bson.M{"$set": bson.M{"status": string(to), "updatedAt": time.Now().UTC()}},
	)
	if err != nil {
		return fmt.Errorf("transition invoice %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		n, err := s.invoices().CountDocuments(ctx, bson.M{"_id": oid})
		if err != nil {
			return fmt.Errorf("check invoice %s: %w", id, err)
		}
		if n == 0 {
			return ErrNotFound
		}
		return ErrConflict
	}
	return nil
}

// IncrementCollected reads the line's quantity once (it never changes after
// creation) and turns the bounds into a range on the current counter, so the
// positional $inc only applies while the guard still holds.
func (s *MongoStore) IncrementCollected(ctx context.Context, id, barcode string, delta int, bounded bool) error {
	inv, err := s.FindInvoice(ctx, id)
	if err != nil {
		return err
	}
	idx := inv.Line(barcode)
	if idx < 0 {
		return ErrConflict
	}
	oid, _ := objectID(id)

	counter := bson.M{"$gte": -delta}
	if bounded {
		counter["$lte"] = inv.Items[idx].Quantity - delta
	}
	filter := bson.M{
		"_id":    oid,
		"status": bson.M{"$in": statusStrings(NonTerminal)},
		"items":  bson.M{"$elemMatch": bson.M{"barcode": barcode, "collected": counter}},
	}
	update := bson.M{
		"$inc": bson.M{"items.$.collected": delta},
		"$set": bson.M{"updatedAt": time.Now().UTC()},
	}
	res, err := s.invoices().UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("increment line %s/%s: %w", id, barcode, err)
	}
	if res.MatchedCount == 0 {
		return ErrConflict
	}
	return nil
}

// ---------------------------------------------------------------------------
// Users
// ---------------------------------------------------------------------------

func (s *MongoStore) CreateUser(ctx context.Context, u *models.UserAuth) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	if u.Role == "" {
		u.Role = models.RolePicker
	}
	if _, err := s.users().InsertOne(ctx, u); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *MongoStore) FindUserByUsername(ctx context.Context, username string) (*models.UserAuth, error) {
	var u models.UserAuth
	err := s.users().FindOne(ctx, bson.M{"username": username}).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &u, nil
}

func (s *MongoStore) TouchLogin(ctx context.Context, id string, at time.Time) error {
	_, err := s.users().UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"lastLogin": at}})
	return err
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func mongoFields(f ProductFields) bson.M {
	m := bson.M{}
	if f.Name != nil {
		m["name"] = *f.Name
	}
	if f.Model != nil {
		m["model"] = *f.Model
	}
	if f.BoxNum != nil {
		m["box_num"] = *f.BoxNum
	}
	if f.BoxCode != nil {
		m["box_code"] = *f.BoxCode
	}
	if f.SingleNum != nil {
		m["single_num"] = *f.SingleNum
	}
	if len(f.InStock) > 0 {
		var v any
		if err := json.Unmarshal(f.InStock, &v); err == nil {
			m["in_stock"] = v
		}
	}
	if len(m) > 0 {
		m["updatedAt"] = time.Now().UTC()
	}
	return m
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
