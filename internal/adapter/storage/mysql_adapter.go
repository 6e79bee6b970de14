package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/rl1809/food-flow/internal/core/domain"
)

var ErrUnknownFeed = errors.New("unknown feed")

type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

func (m *MySQLAdapter) Ping(ctx context.Context) error {
	return m.db.PingContext(ctx)
}

func (m *MySQLAdapter) CreateOrder(ctx context.Context, order domain.Order) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, subtotal_cents, delivery_fee_cents, tax_cents, total_cents,
			payment_method, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID, order.UserID, order.SubtotalCents, order.DeliveryFeeCents, order.TaxCents, order.TotalCents,
		order.PaymentMethod, order.Status, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for i, line := range order.Lines {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_lines (order_id, line_no, item_id, name, unit_price_cents, quantity, image_ref)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			order.ID, i, line.ItemID, line.Name, line.UnitPriceCents, line.Quantity, line.ImageRef,
		)
		if err != nil {
			return fmt.Errorf("insert order line %d: %w", i, err)
		}
	}

	return tx.Commit()
}

func (m *MySQLAdapter) ListOrders(ctx context.Context, userID string) ([]domain.Order, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, user_id, subtotal_cents, delivery_fee_cents, tax_cents, total_cents,
			payment_method, status, created_at, updated_at
		FROM orders WHERE user_id = ? ORDER BY created_at DESC`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	index := make(map[string]int)
	for rows.Next() {
		var o domain.Order
		if err := rows.Scan(&o.ID, &o.UserID, &o.SubtotalCents, &o.DeliveryFeeCents, &o.TaxCents, &o.TotalCents,
			&o.PaymentMethod, &o.Status, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		o.Lines = []domain.CartLine{}
		index[o.ID] = len(orders)
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	if len(orders) == 0 {
		return []domain.Order{}, nil
	}

	lines, err := m.db.QueryContext(ctx, `
		SELECT l.order_id, l.item_id, l.name, l.unit_price_cents, l.quantity, l.image_ref
		FROM order_lines l JOIN orders o ON o.id = l.order_id
		WHERE o.user_id = ? ORDER BY l.order_id, l.line_no`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query order lines: %w", err)
	}
	defer lines.Close()

	for lines.Next() {
		var orderID string
		var l domain.CartLine
		if err := lines.Scan(&orderID, &l.ItemID, &l.Name, &l.UnitPriceCents, &l.Quantity, &l.ImageRef); err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		if i, ok := index[orderID]; ok {
			orders[i].Lines = append(orders[i].Lines, l)
		}
	}
	if err := lines.Err(); err != nil {
		return nil, fmt.Errorf("iterate order lines: %w", err)
	}

	return orders, nil
}

func (m *MySQLAdapter) ListEvents(ctx context.Context, q domain.FeedQuery) ([]domain.FeedEvent, error) {
	var b strings.Builder
	args := []any{q.OwnerID}

	switch q.Feed {
	case domain.FeedMessages:
		b.WriteString(`SELECT id, user_id, driver_id, '', content, created_at, is_read FROM messages WHERE user_id = ?`)
		if q.PeerID != "" {
			b.WriteString(` AND driver_id = ?`)
			args = append(args, q.PeerID)
		}
	case domain.FeedNotifications:
		b.WriteString(`SELECT id, user_id, '', title, message, created_at, is_read FROM notifications WHERE user_id = ?`)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFeed, q.Feed)
	}

	if q.Order == domain.Descending {
		b.WriteString(` ORDER BY created_at DESC, id DESC`)
	} else {
		b.WriteString(` ORDER BY created_at ASC, id ASC`)
	}
	if q.Limit > 0 {
		b.WriteString(` LIMIT ?`)
		args = append(args, q.Limit)
	}

	rows, err := m.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Feed, err)
	}
	defer rows.Close()

	events := []domain.FeedEvent{}
	for rows.Next() {
		e := domain.FeedEvent{Feed: q.Feed}
		if err := rows.Scan(&e.ID, &e.OwnerID, &e.PeerID, &e.Title, &e.Content, &e.CreatedAt, &e.IsRead); err != nil {
			return nil, fmt.Errorf("scan %s: %w", q.Feed, err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", q.Feed, err)
	}
	return events, nil
}

// InsertEvent stores the row and returns it as stored. An id is assigned
// when the caller did not provide one.
func (m *MySQLAdapter) InsertEvent(ctx context.Context, event domain.FeedEvent) (domain.FeedEvent, error) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	var err error
	switch event.Feed {
	case domain.FeedMessages:
		_, err = m.db.ExecContext(ctx, `
			INSERT INTO messages (id, user_id, driver_id, content, created_at, is_read)
			VALUES (?, ?, ?, ?, ?, ?)`,
			event.ID, event.OwnerID, event.PeerID, event.Content, event.CreatedAt, event.IsRead,
		)
	case domain.FeedNotifications:
		_, err = m.db.ExecContext(ctx, `
			INSERT INTO notifications (id, user_id, title, message, created_at, is_read)
			VALUES (?, ?, ?, ?, ?, ?)`,
			event.ID, event.OwnerID, event.Title, event.Content, event.CreatedAt, event.IsRead,
		)
	default:
		return domain.FeedEvent{}, fmt.Errorf("%w: %s", ErrUnknownFeed, event.Feed)
	}
	if err != nil {
		return domain.FeedEvent{}, fmt.Errorf("insert %s: %w", event.Feed, err)
	}
	return event, nil
}

// MarkRead is a no-op for a row of another owner.
func (m *MySQLAdapter) MarkRead(ctx context.Context, feed domain.FeedName, ownerID, id string) error {
	table, err := feedTable(feed)
	if err != nil {
		return err
	}
	if _, err := m.db.ExecContext(ctx, `UPDATE `+table+` SET is_read = TRUE WHERE id = ? AND user_id = ?`, id, ownerID); err != nil {
		return fmt.Errorf("mark %s read: %w", feed, err)
	}
	return nil
}

func (m *MySQLAdapter) MarkAllRead(ctx context.Context, feed domain.FeedName, ownerID string) error {
	table, err := feedTable(feed)
	if err != nil {
		return err
	}
	if _, err := m.db.ExecContext(ctx, `UPDATE `+table+` SET is_read = TRUE WHERE user_id = ? AND is_read = FALSE`, ownerID); err != nil {
		return fmt.Errorf("mark all %s read: %w", feed, err)
	}
	return nil
}

func feedTable(feed domain.FeedName) (string, error) {
	switch feed {
	case domain.FeedMessages:
		return "messages", nil
	case domain.FeedNotifications:
		return "notifications", nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownFeed, feed)
}

func (m *MySQLAdapter) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	var p domain.Profile
	err := m.db.QueryRowContext(ctx, `
		SELECT id, full_name, phone, address, updated_at
		FROM profiles WHERE id = ?`, userID,
	).Scan(&p.ID, &p.FullName, &p.Phone, &p.Address, &p.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query profile: %w", err)
	}
	return &p, nil
}

func (m *MySQLAdapter) UpsertProfile(ctx context.Context, p domain.Profile) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO profiles (id, full_name, phone, address, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE full_name = VALUES(full_name), phone = VALUES(phone),
			address = VALUES(address), updated_at = VALUES(updated_at)`,
		p.ID, p.FullName, p.Phone, p.Address, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

const restaurantColumns = `id, name, image_ref, cuisine, rating, delivery_time, delivery_fee_cents, featured`

func (m *MySQLAdapter) ListRestaurants(ctx context.Context, filter domain.RestaurantFilter) ([]domain.Restaurant, error) {
	query := `SELECT ` + restaurantColumns + ` FROM restaurants WHERE 1 = 1`
	var args []any
	if filter.Cuisine != "" {
		query += ` AND LOWER(cuisine) = ?`
		args = append(args, strings.ToLower(filter.Cuisine))
	}
	if filter.Query != "" {
		query += ` AND (LOWER(name) LIKE ? OR LOWER(cuisine) LIKE ?)`
		pattern := "%" + strings.ToLower(filter.Query) + "%"
		args = append(args, pattern, pattern)
	}
	query += ` ORDER BY featured DESC, rating DESC, id`

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query restaurants: %w", err)
	}
	defer rows.Close()

	restaurants := []domain.Restaurant{}
	for rows.Next() {
		r, err := scanRestaurant(rows)
		if err != nil {
			return nil, err
		}
		restaurants = append(restaurants, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate restaurants: %w", err)
	}
	return restaurants, nil
}

func (m *MySQLAdapter) GetRestaurant(ctx context.Context, id string) (*domain.Restaurant, error) {
	r, err := scanRestaurant(m.db.QueryRowContext(ctx, `SELECT `+restaurantColumns+` FROM restaurants WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRestaurant(s scanner) (domain.Restaurant, error) {
	var r domain.Restaurant
	err := s.Scan(&r.ID, &r.Name, &r.ImageRef, &r.Cuisine, &r.Rating, &r.DeliveryTime, &r.DeliveryFeeCents, &r.Featured)
	if errors.Is(err, sql.ErrNoRows) {
		return r, err
	}
	if err != nil {
		return r, fmt.Errorf("scan restaurant: %w", err)
	}
	return r, nil
}

const menuItemColumns = `id, restaurant_id, name, description, price_cents, image_ref, category, popular, vegetarian`

func (m *MySQLAdapter) ListMenu(ctx context.Context, restaurantID string) ([]domain.MenuItem, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT `+menuItemColumns+` FROM menu_items WHERE restaurant_id = ? ORDER BY category, id`, restaurantID)
	if err != nil {
		return nil, fmt.Errorf("query menu: %w", err)
	}
	defer rows.Close()

	items := []domain.MenuItem{}
	for rows.Next() {
		item, err := scanMenuItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate menu: %w", err)
	}
	return items, nil
}

func (m *MySQLAdapter) GetMenuItem(ctx context.Context, id string) (*domain.MenuItem, error) {
	item, err := scanMenuItem(m.db.QueryRowContext(ctx, `SELECT `+menuItemColumns+` FROM menu_items WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func scanMenuItem(s scanner) (domain.MenuItem, error) {
	var i domain.MenuItem
	err := s.Scan(&i.ID, &i.RestaurantID, &i.Name, &i.Description, &i.PriceCents, &i.ImageRef, &i.Category, &i.Popular, &i.Vegetarian)
	if errors.Is(err, sql.ErrNoRows) {
		return i, err
	}
	if err != nil {
		return i, fmt.Errorf("scan menu item: %w", err)
	}
	return i, nil
}
