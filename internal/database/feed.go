package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
)

const feedRetryDelay = 2 * time.Second

// Listen calls fn with the tenant id of every committed agreement change
// until ctx is done. A dropped connection is re-established; changes made
// while disconnected are picked up by subscribers' periodic refresh.
func (s *service) Listen(ctx context.Context, fn func(tenantID string)) error {
	for {
		err := s.listenOnce(ctx, fn)
		if ctx.Err() != nil {
			return nil
		}
		log.Printf("agreement change feed interrupted: %v", err)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(feedRetryDelay):
		}
	}
}

func (s *service) listenOnce(ctx context.Context, fn func(tenantID string)) error {
	conn, err := pgx.Connect(ctx, s.dsn)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{changeChannel}.Sanitize()); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait: %w", err)
		}
		fn(n.Payload)
	}
}
