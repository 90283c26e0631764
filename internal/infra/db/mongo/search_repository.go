package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"pricewatch/internal/domain/pricing"
	"pricewatch/internal/domain/searches"
	"pricewatch/internal/domain/shared/daterange"
)

var ErrDuplicateSearch = errors.New("mongo: search already exists")

// SearchRepository stores one document per search. Every update is a $set on
// its own field group so refresh writes never clobber user edits.
type SearchRepository struct {
	col *mongo.Collection
}

var _ searches.Repository = (*SearchRepository)(nil)

func NewSearchRepository(db *mongo.Database) *SearchRepository {
	return &SearchRepository{col: db.Collection("searches")}
}

// EnsureIndexes creates the listing sort index.
func (r *SearchRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}},
	})
	return err
}

func (r *SearchRepository) Create(ctx context.Context, s *searches.Search) error {
	if _, err := r.col.InsertOne(ctx, newSearchDocument(s)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateSearch
		}
		return err
	}
	return nil
}

func (r *SearchRepository) ByID(ctx context.Context, id searches.SearchID) (*searches.Search, error) {
	var doc searchDocument
	if err := r.col.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		return nil, notFound(err)
	}
	return doc.toAggregate()
}

func (r *SearchRepository) List(ctx context.Context) ([]*searches.Search, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	cur, err := r.col.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	var docs []searchDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]*searches.Search, 0, len(docs))
	for _, doc := range docs {
		s, err := doc.toAggregate()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (r *SearchRepository) UpdateDetails(ctx context.Context, id searches.SearchID, u searches.DetailsUpdate) (*searches.Search, error) {
	return r.findAndSet(ctx, id, bson.M{
		"name":          u.Name,
		"url":           u.URL,
		"cleaning_fee":  u.CleaningFee,
		"checkin_date":  u.CheckinDate.String(),
		"checkout_date": u.CheckoutDate.String(),
		"updated_at":    u.At.UTC(),
	})
}

func (r *SearchRepository) UpdateStatus(ctx context.Context, id searches.SearchID, u searches.StatusUpdate) error {
	set := bson.M{
		"status":     string(u.Status),
		"last_error": u.LastError,
		"updated_at": u.At.UTC(),
	}
	if !u.LastRunAt.IsZero() {
		set["last_run_at"] = u.LastRunAt.UTC()
	}
	return r.set(ctx, id, set)
}

func (r *SearchRepository) UpdatePricing(ctx context.Context, id searches.SearchID, snap pricing.Snapshot) error {
	return r.set(ctx, id, bson.M{"pricing": newPricingDocument(snap)})
}

func (r *SearchRepository) UpdateSchedule(ctx context.Context, id searches.SearchID, schedule searches.Schedule, at time.Time) (*searches.Search, error) {
	return r.findAndSet(ctx, id, bson.M{
		"schedule":   newScheduleDocument(schedule),
		"updated_at": at.UTC(),
	})
}

func (r *SearchRepository) Delete(ctx context.Context, id searches.SearchID) (*searches.Search, error) {
	var doc searchDocument
	if err := r.col.FindOneAndDelete(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		return nil, notFound(err)
	}
	return doc.toAggregate()
}

func (r *SearchRepository) Ping(ctx context.Context) error {
	return r.col.Database().Client().Ping(ctx, nil)
}

func (r *SearchRepository) set(ctx context.Context, id searches.SearchID, fields bson.M) error {
	res, err := r.col.UpdateByID(ctx, string(id), bson.M{"$set": fields})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return searches.ErrNotFound
	}
	return nil
}

func (r *SearchRepository) findAndSet(ctx context.Context, id searches.SearchID, fields bson.M) (*searches.Search, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc searchDocument
	if err := r.col.FindOneAndUpdate(ctx, bson.M{"_id": string(id)}, bson.M{"$set": fields}, opts).Decode(&doc); err != nil {
		return nil, notFound(err)
	}
	return doc.toAggregate()
}

func notFound(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return searches.ErrNotFound
	}
	return err
}

type searchDocument struct {
	ID           string           `bson:"_id"`
	Name         string           `bson:"name"`
	URL          string           `bson:"url"`
	CleaningFee  float64          `bson:"cleaning_fee"`
	CheckinDate  string           `bson:"checkin_date"`
	CheckoutDate string           `bson:"checkout_date"`
	Status       string           `bson:"status"`
	LastRunAt    *time.Time       `bson:"last_run_at"`
	LastError    string           `bson:"last_error"`
	Pricing      pricingDocument  `bson:"pricing"`
	Schedule     scheduleDocument `bson:"schedule"`
	CreatedAt    time.Time        `bson:"created_at"`
	UpdatedAt    time.Time        `bson:"updated_at"`
}

// windowDocument keeps dates as YYYY-MM-DD strings; a null price is Unknown.
type windowDocument struct {
	CheckIn  string   `bson:"checkin"`
	CheckOut string   `bson:"checkout"`
	Date     string   `bson:"date"`
	Price    *float64 `bson:"price"`
}

type pricingDocument struct {
	OneNight       []windowDocument `bson:"one_night"`
	TwoNights      []windowDocument `bson:"two_nights"`
	ThreeNights    []windowDocument `bson:"three_nights"`
	FourteenNights *windowDocument  `bson:"fourteen_nights"`
	ThirtyNights   *windowDocument  `bson:"thirty_nights"`
}

type scheduleTimeDocument struct {
	Time    string `bson:"time"`
	Enabled bool   `bson:"enabled"`
}

type scheduleDocument struct {
	Enabled bool                   `bson:"enabled"`
	Times   []scheduleTimeDocument `bson:"times"`
}

func newSearchDocument(s *searches.Search) searchDocument {
	doc := searchDocument{
		ID:           string(s.ID),
		Name:         s.Name,
		URL:          s.URL,
		CleaningFee:  s.CleaningFee,
		CheckinDate:  s.CheckinDate.String(),
		CheckoutDate: s.CheckoutDate.String(),
		Status:       string(s.Status),
		LastError:    s.LastError,
		Pricing:      newPricingDocument(s.Pricing),
		Schedule:     newScheduleDocument(s.Schedule),
		CreatedAt:    s.CreatedAt.UTC(),
		UpdatedAt:    s.UpdatedAt.UTC(),
	}
	if !s.LastRunAt.IsZero() {
		at := s.LastRunAt.UTC()
		doc.LastRunAt = &at
	}
	return doc
}

func (d searchDocument) toAggregate() (*searches.Search, error) {
	checkin, err := parseOptionalDate(d.CheckinDate)
	if err != nil {
		return nil, fmt.Errorf("search %s checkin_date: %w", d.ID, err)
	}
	checkout, err := parseOptionalDate(d.CheckoutDate)
	if err != nil {
		return nil, fmt.Errorf("search %s checkout_date: %w", d.ID, err)
	}
	status, err := searches.ParseStatus(d.Status)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", d.ID, err)
	}
	snap, err := d.Pricing.toSnapshot()
	if err != nil {
		return nil, fmt.Errorf("search %s pricing: %w", d.ID, err)
	}
	s := &searches.Search{
		ID:           searches.SearchID(d.ID),
		Name:         d.Name,
		URL:          d.URL,
		CleaningFee:  d.CleaningFee,
		CheckinDate:  checkin,
		CheckoutDate: checkout,
		Status:       status,
		LastError:    d.LastError,
		Pricing:      snap,
		Schedule:     d.Schedule.toSchedule(),
		CreatedAt:    d.CreatedAt.UTC(),
		UpdatedAt:    d.UpdatedAt.UTC(),
	}
	if d.LastRunAt != nil {
		s.LastRunAt = d.LastRunAt.UTC()
	}
	return s, nil
}

func newPricingDocument(snap pricing.Snapshot) pricingDocument {
	doc := pricingDocument{
		OneNight:    newWindowDocuments(snap.OneNight),
		TwoNights:   newWindowDocuments(snap.TwoNights),
		ThreeNights: newWindowDocuments(snap.ThreeNights),
	}
	if !snap.FourteenNights.IsZero() {
		w := newWindowDocument(snap.FourteenNights)
		doc.FourteenNights = &w
	}
	if !snap.ThirtyNights.IsZero() {
		w := newWindowDocument(snap.ThirtyNights)
		doc.ThirtyNights = &w
	}
	return doc
}

func (d pricingDocument) toSnapshot() (pricing.Snapshot, error) {
	var (
		snap pricing.Snapshot
		err  error
	)
	if snap.OneNight, err = toWindows(d.OneNight); err != nil {
		return pricing.Snapshot{}, err
	}
	if snap.TwoNights, err = toWindows(d.TwoNights); err != nil {
		return pricing.Snapshot{}, err
	}
	if snap.ThreeNights, err = toWindows(d.ThreeNights); err != nil {
		return pricing.Snapshot{}, err
	}
	if d.FourteenNights != nil {
		if snap.FourteenNights, err = d.FourteenNights.toWindow(); err != nil {
			return pricing.Snapshot{}, err
		}
	}
	if d.ThirtyNights != nil {
		if snap.ThirtyNights, err = d.ThirtyNights.toWindow(); err != nil {
			return pricing.Snapshot{}, err
		}
	}
	return snap, nil
}

func newWindowDocuments(in []pricing.Window) []windowDocument {
	out := make([]windowDocument, 0, len(in))
	for _, w := range in {
		out = append(out, newWindowDocument(w))
	}
	return out
}

func newWindowDocument(w pricing.Window) windowDocument {
	return windowDocument{
		CheckIn:  w.CheckIn.String(),
		CheckOut: w.CheckOut.String(),
		Date:     w.Anchor.String(),
		Price:    w.Price.Float(),
	}
}

func toWindows(in []windowDocument) ([]pricing.Window, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make([]pricing.Window, 0, len(in))
	for _, doc := range in {
		w, err := doc.toWindow()
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, nil
}

func (d windowDocument) toWindow() (pricing.Window, error) {
	in, err := daterange.ParseDate(d.CheckIn)
	if err != nil {
		return pricing.Window{}, err
	}
	out, err := daterange.ParseDate(d.CheckOut)
	if err != nil {
		return pricing.Window{}, err
	}
	anchor, err := parseOptionalDate(d.Date)
	if err != nil {
		return pricing.Window{}, err
	}
	if anchor.IsZero() {
		anchor = in
	}
	return pricing.Window{CheckIn: in, CheckOut: out, Anchor: anchor, Price: pricing.FromFloat(d.Price)}, nil
}

func newScheduleDocument(s searches.Schedule) scheduleDocument {
	doc := scheduleDocument{Enabled: s.Enabled, Times: make([]scheduleTimeDocument, 0, len(s.Times))}
	for _, t := range s.Times {
		doc.Times = append(doc.Times, scheduleTimeDocument{Time: t.At, Enabled: t.Enabled})
	}
	return doc
}

func (d scheduleDocument) toSchedule() searches.Schedule {
	if len(d.Times) == 0 && !d.Enabled {
		return searches.DefaultSchedule()
	}
	out := searches.Schedule{Enabled: d.Enabled}
	for _, t := range d.Times {
		out.Times = append(out.Times, searches.ScheduleTime{At: t.Time, Enabled: t.Enabled})
	}
	return out
}

func parseOptionalDate(raw string) (daterange.Date, error) {
	if raw == "" {
		return daterange.Date{}, nil
	}
	return daterange.ParseDate(raw)
}
