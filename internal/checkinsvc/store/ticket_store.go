package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/avvvet/gym-services/internal/checkinsvc/models"
	mongodb "github.com/avvvet/gym-services/internal/db"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/otel/attribute"
)

const ticketCollection = "checkin_tickets"

// MongoTicketStore keeps one ticket document per member. Mongo purges the
// document through a TTL index once both expiry and cooldown are over.
type MongoTicketStore struct {
	db   *mongo.Database
	coll *mongo.Collection
}

func NewMongoTicketStore(db *mongo.Database) *MongoTicketStore {
	return &MongoTicketStore{db: db, coll: db.Collection(ticketCollection)}
}

func (s *MongoTicketStore) EnsureIndexes(ctx context.Context) error {
	if err := mongodb.CreateTTLIndexForCollection(ctx, s.db, ticketCollection, "purge_at"); err != nil {
		return err
	}
	if err := mongodb.CreateUniqueIndex(ctx, s.db, ticketCollection, "member_id"); err != nil {
		return err
	}
	return mongodb.CreateUniqueIndex(ctx, s.db, ticketCollection, "code")
}

func (s *MongoTicketStore) findOne(ctx context.Context, filter bson.M) (*models.Ticket, error) {
	t := &models.Ticket{}
	if err := s.coll.FindOne(ctx, filter).Decode(t); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return t, nil
}

func (s *MongoTicketStore) GetByMember(ctx context.Context, memberID int64) (t *models.Ticket, err error) {
	ctx, span := startSpan(ctx, "tickets.get_by_member", attribute.Int64("member.id", memberID))
	defer func() { endSpan(span, err) }()

	t, err = s.findOne(ctx, bson.M{"member_id": memberID})
	if err != nil {
		return nil, fmt.Errorf("failed to get ticket for member %d: %w", memberID, err)
	}
	return t, nil
}

func (s *MongoTicketStore) GetByCode(ctx context.Context, code string) (t *models.Ticket, err error) {
	ctx, span := startSpan(ctx, "tickets.get_by_code")
	defer func() { endSpan(span, err) }()

	t, err = s.findOne(ctx, bson.M{"code": code})
	if err != nil {
		return nil, fmt.Errorf("failed to get ticket by code: %w", err)
	}
	return t, nil
}

// Save replaces the member's ticket.
func (s *MongoTicketStore) Save(ctx context.Context, t *models.Ticket) (err error) {
	ctx, span := startSpan(ctx, "tickets.save", attribute.Int64("member.id", t.MemberID))
	defer func() { endSpan(span, err) }()

	t.PurgeAt = purgeAt(t)
	_, err = s.coll.ReplaceOne(ctx, bson.M{"member_id": t.MemberID}, t, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save ticket for member %d: %w", t.MemberID, err)
	}
	return nil
}

// MarkUsed records that the ticket with code opened visitID. It returns nil,
// nil when no ticket carries the code.
func (s *MongoTicketStore) MarkUsed(ctx context.Context, code string, visitID int64, usedAt, cooldownUntil time.Time) (t *models.Ticket, err error) {
	ctx, span := startSpan(ctx, "tickets.mark_used", attribute.Int64("visit.id", visitID))
	defer func() { endSpan(span, err) }()

	update := bson.M{
		"$set": bson.M{
			"used_at":        usedAt,
			"visit_id":       visitID,
			"cooldown_until": cooldownUntil,
		},
		"$max": bson.M{"purge_at": cooldownUntil},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	t = &models.Ticket{}
	if err = s.coll.FindOneAndUpdate(ctx, bson.M{"code": code}, update, opts).Decode(t); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to mark ticket used: %w", err)
	}
	return t, nil
}

func purgeAt(t *models.Ticket) time.Time {
	if t.CooldownUntil != nil && t.CooldownUntil.After(t.ExpiresAt) {
		return *t.CooldownUntil
	}
	return t.ExpiresAt
}

// MemoryTicketStore is the ticket store used when no Mongo URI is configured.
// Tickets are ephemeral, so losing them on restart only forces a reissue.
type MemoryTicketStore struct {
	mu      sync.Mutex
	tickets map[int64]models.Ticket
}

func NewMemoryTicketStore() *MemoryTicketStore {
	return &MemoryTicketStore{tickets: make(map[int64]models.Ticket)}
}

func (s *MemoryTicketStore) GetByMember(_ context.Context, memberID int64) (*models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tickets[memberID]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (s *MemoryTicketStore) GetByCode(_ context.Context, code string) (*models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.tickets {
		if t.Code == code {
			return &t, nil
		}
	}
	return nil, nil
}

func (s *MemoryTicketStore) Save(_ context.Context, t *models.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t.PurgeAt = purgeAt(t)
	s.tickets[t.MemberID] = *t
	return nil
}

func (s *MemoryTicketStore) MarkUsed(_ context.Context, code string, visitID int64, usedAt, cooldownUntil time.Time) (*models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, t := range s.tickets {
		if t.Code != code {
			continue
		}
		t.UsedAt = &usedAt
		t.VisitID = &visitID
		t.CooldownUntil = &cooldownUntil
		t.PurgeAt = purgeAt(&t)
		s.tickets[id] = t
		return &t, nil
	}
	return nil, nil
}

// Purge drops tickets whose purge time is before now.
func (s *MemoryTicketStore) Purge(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, t := range s.tickets {
		if t.PurgeAt.Before(now) {
			delete(s.tickets, id)
			n++
		}
	}
	return n
}

func (s *MemoryTicketStore) Name() string { return "ticket-purge" }

// Sweep lets the reaper purge the in-memory store the way Mongo's TTL index
// purges the collection.
func (s *MemoryTicketStore) Sweep(_ context.Context) (int, error) {
	return s.Purge(time.Now()), nil
}
