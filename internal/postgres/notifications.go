package postgres

import (
	"context"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/katoapp/agrimarket/internal/notify"
)

// Notifications is the notifier's write side.
type Notifications struct {
	DB *pgxpool.Pool
}

func (n *Notifications) Save(ctx context.Context, note notify.Notification) error {
	if note.ID == "" {
		note.ID = uuid.NewString()
	}
	if note.Status == "" {
		note.Status = notify.StatusUnread
	}
	// A retried event finds its earlier rows and writes nothing for them.
	_, err := n.DB.Exec(ctx, `
		INSERT INTO notifications (id, event_id, user_id, title, message, type, status, data)
		VALUES ($1,NULLIF($2,''),$3,$4,$5,$6,$7,$8)
		ON CONFLICT (event_id, user_id) DO NOTHING`,
		note.ID, note.EventID, note.UserID, note.Title, note.Message, note.Type, note.Status, nullJSON(note.Data),
	)
	return err
}
