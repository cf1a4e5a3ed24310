package event

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/onnwee/nearby/internal/geo"
	"github.com/onnwee/nearby/internal/tracing"
)

// ChangeChannel is the PostgreSQL notification channel fired by the events
// table trigger on every insert, update and delete.
const ChangeChannel = "events_changed"

// Listener reconnect bounds and keepalive interval.
const (
	listenerMinReconnect = 1 * time.Second
	listenerMaxReconnect = 30 * time.Second
	listenerPingInterval = 90 * time.Second
)

const selectEvents = `
	SELECT id, partner_id, title, description,
	       COALESCE(category, ''), COALESCE(event_date, ''),
	       COALESCE(start_time, ''), COALESCE(end_time, ''),
	       is_free, price, COALESCE(currency, ''), capacity,
	       venue_name, venue_address, venue_city, venue_zip,
	       latitude, longitude, created_at, updated_at
	FROM events
	WHERE ($1 = '' OR partner_id = $1)
	ORDER BY created_at ASC, id ASC
`

// PostgresStore is a Store backed by the events table. Subscribers are
// refreshed by Listen, which consumes the table's change notifications.
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
	subs   hub
	// seq orders the queries feeding subscribers; see subscription.pushVersion.
	seq atomic.Uint64
}

// NewPostgresStore creates a PostgresStore. A nil logger uses slog.Default().
func NewPostgresStore(db *sql.DB, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{db: db, logger: logger}
}

// Subscribe implements Store. The subscription only sees changes while Listen runs.
func (s *PostgresStore) Subscribe(ctx context.Context, filter Filter, fn func([]RawRecord)) (Unsubscribe, error) {
	sub := newSubscription(filter, fn)
	s.subs.add(sub)
	unsubscribe := s.subs.unsubscribe(sub)

	version := s.seq.Add(1)
	records, err := s.List(ctx, filter)
	if err != nil {
		unsubscribe()
		return nil, err
	}
	sub.pushVersion(version, records)
	return unsubscribe, nil
}

// List implements Store.
func (s *PostgresStore) List(ctx context.Context, filter Filter) (records []RawRecord, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "events", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	rows, err := s.db.QueryContext(ctx, selectEvents, filter.PartnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	records = []RawRecord{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		records = append(records, r)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}
	return records, nil
}

// Create implements Store.
func (s *PostgresStore) Create(ctx context.Context, ev NewEvent) (id string, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "events", tracing.DBOperationInsert)
	defer func() { endSpan(err) }()

	query := `
		INSERT INTO events (
			id, partner_id, title, description, category,
			event_date, start_time, end_time,
			is_free, price, currency, capacity,
			venue_name, venue_address, venue_city, venue_zip,
			latitude, longitude
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING id
	`

	err = s.db.QueryRowContext(ctx, query,
		uuid.New().String(),
		ev.PartnerID,
		ev.Title,
		ev.Description,
		nullString(ev.Category),
		nullString(ev.Date),
		nullString(ev.StartTime),
		nullString(ev.EndTime),
		ev.IsFree,
		ev.Price,
		ev.Currency,
		nullInt(ev.Capacity),
		ev.Venue.Name(),
		ev.Venue.Address(),
		ev.Venue.City(),
		ev.Venue.Zip(),
		ev.Location.Lat,
		ev.Location.Lng,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to create event: %w", err)
	}
	return id, nil
}

// Listen consumes change notifications for the events table and re-pushes
// every subscriber's set after each one. A dropped connection is re-established
// by the listener; on reconnect every subscriber is refreshed since
// notifications may have been missed. Listen blocks until ctx is cancelled.
func (s *PostgresStore) Listen(ctx context.Context, dsn string) error {
	listener := pq.NewListener(dsn, listenerMinReconnect, listenerMaxReconnect,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				s.logger.Warn("event listener connection problem", "event", int(ev), "error", err)
			}
		})
	defer listener.Close()

	_, endSpan := tracing.StartDBSpan(ctx, "events", tracing.DBOperationListen)
	err := listener.Listen(ChangeChannel)
	endSpan(err)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", ChangeChannel, err)
	}
	s.logger.Info("listening for event changes", "channel", ChangeChannel)

	ticker := time.NewTicker(listenerPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-listener.Notify:
			if n == nil {
				s.logger.Info("event listener reconnected, refreshing subscribers")
			} else {
				s.logger.Debug("event changed", "event_id", n.Extra)
			}
			// Collapse a burst of notifications into one refresh.
			drain(listener.Notify)
			s.Refresh(ctx)
		case <-ticker.C:
			go func() {
				if err := listener.Ping(); err != nil {
					s.logger.Warn("event listener ping failed", "error", err)
				}
			}()
		}
	}
}

// Refresh re-queries and pushes the current set to every subscriber.
// Subscribers sharing a filter share one query. Concurrent refreshes are
// safe: a subscriber never goes back to a set read by an earlier query.
func (s *PostgresStore) Refresh(ctx context.Context) {
	type result struct {
		version uint64
		records []RawRecord
	}
	cache := make(map[Filter]result)
	for _, sub := range s.subs.list() {
		res, ok := cache[sub.filter]
		if !ok {
			res.version = s.seq.Add(1)
			records, err := s.List(ctx, sub.filter)
			if err != nil {
				s.logger.Error("failed to refresh event subscription",
					"partner_id", sub.filter.PartnerID, "error", err)
				continue
			}
			res.records = records
			cache[sub.filter] = res
		}
		if !sub.pushVersion(res.version, res.records) {
			s.logger.Debug("dropped stale event set", "partner_id", sub.filter.PartnerID)
		}
	}
}


func drain(ch <-chan *pq.Notification) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (RawRecord, error) {
	var (
		r        RawRecord
		price    sql.NullFloat64
		capacity sql.NullInt64
		lat, lng sql.NullFloat64
	)
	err := row.Scan(
		&r.ID, &r.PartnerID, &r.Title, &r.Description,
		&r.Category, &r.Date, &r.StartTime, &r.EndTime,
		&r.IsFree, &price, &r.Currency, &capacity,
		&r.VenueName, &r.VenueAddress, &r.VenueCity, &r.VenueZip,
		&lat, &lng, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return RawRecord{}, err
	}
	if price.Valid {
		p := price.Float64
		r.Price = &p
	}
	if capacity.Valid {
		c := int(capacity.Int64)
		r.Capacity = &c
	}
	if lat.Valid && lng.Valid {
		r.Location = &geo.Coordinate{Lat: lat.Float64, Lng: lng.Float64}
	}
	return r, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}
