package cockroach

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"learnhub-backend/internal/domain"
	"learnhub-backend/pkg/logger"
)

const callColumns = `call_id, caller_id, callee_id, call_type, status,
		       started_at, ended_at, duration, is_screen_sharing, screen_share_started_at,
		       connection_quality, version, created_at, updated_at`

// CallRepository handles call data operations
type CallRepository struct {
	db DB
}

// NewCallRepository creates a new call repository
func NewCallRepository(db DB) *CallRepository {
	return &CallRepository{db: db}
}

// Create inserts a new call unless the caller is already in an active call.
// If the callee is in an active call the new call is stored as busy.
// Both checks and the insert run in one transaction.
func (r *CallRepository) Create(ctx context.Context, call *domain.Call) (err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err == nil {
			return
		}
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			logger.Warn("Failed to rollback call transaction", zap.Error(rbErr))
		}
	}()

	callerBusy, err := hasActiveCall(ctx, tx, call.CallerID)
	if err != nil {
		return err
	}
	if callerBusy {
		return domain.ErrCallerBusy
	}

	calleeBusy, err := hasActiveCall(ctx, tx, call.CalleeID)
	if err != nil {
		return err
	}
	if calleeBusy {
		call.Status = domain.CallStatusBusy
	}

	query := `
		INSERT INTO calls (
			call_id, caller_id, callee_id, call_type, status,
			is_screen_sharing, connection_quality, version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`

	err = tx.QueryRow(ctx, query,
		call.CallID,
		call.CallerID,
		call.CalleeID,
		call.CallType,
		call.Status,
		call.IsScreenSharing,
		call.ConnectionQuality,
		call.Version,
	).Scan(&call.CreatedAt, &call.UpdatedAt)
	if err != nil {
		if isSerializationFailure(err) {
			return domain.ErrVersionConflict
		}
		return fmt.Errorf("failed to create call: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		if isSerializationFailure(err) {
			return domain.ErrVersionConflict
		}
		return fmt.Errorf("failed to commit call: %w", err)
	}

	return nil
}

func hasActiveCall(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM calls
			WHERE (caller_id = $1 OR callee_id = $1)
			  AND status IN ('initiated', 'ringing', 'accepted')
		)
	`

	var exists bool
	if err := tx.QueryRow(ctx, query, userID).Scan(&exists); err != nil {
		if isSerializationFailure(err) {
			return false, domain.ErrVersionConflict
		}
		return false, fmt.Errorf("failed to check active calls: %w", err)
	}
	return exists, nil
}

// GetByID retrieves a call by ID
func (r *CallRepository) GetByID(ctx context.Context, callID uuid.UUID) (*domain.Call, error) {
	query := `SELECT ` + callColumns + ` FROM calls WHERE call_id = $1`

	call, err := scanCall(r.db.QueryRow(ctx, query, callID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrCallNotFound
		}
		return nil, fmt.Errorf("failed to get call: %w", err)
	}
	return call, nil
}

// Update writes the mutable fields of call if its stored version is still expectedVersion.
// On success call.Version and call.UpdatedAt hold the new values.
func (r *CallRepository) Update(ctx context.Context, call *domain.Call, expectedVersion int) error {
	query := `
		UPDATE calls
		SET status = $2,
		    started_at = $3,
		    ended_at = $4,
		    duration = $5,
		    is_screen_sharing = $6,
		    screen_share_started_at = $7,
		    connection_quality = $8,
		    version = version + 1,
		    updated_at = now()
		WHERE call_id = $1 AND version = $9
		RETURNING version, updated_at
	`

	err := r.db.QueryRow(ctx, query,
		call.CallID,
		call.Status,
		call.StartedAt,
		call.EndedAt,
		call.Duration,
		call.IsScreenSharing,
		call.ScreenShareStartedAt,
		call.ConnectionQuality,
		expectedVersion,
	).Scan(&call.Version, &call.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isSerializationFailure(err) {
			return domain.ErrVersionConflict
		}
		return fmt.Errorf("failed to update call: %w", err)
	}
	return nil
}

// ListByParticipant retrieves the calls of a user, newest first
func (r *CallRepository) ListByParticipant(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.Call, error) {
	query := `
		SELECT ` + callColumns + `
		FROM calls
		WHERE caller_id = $1 OR callee_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get user calls: %w", err)
	}
	return collectCalls(rows)
}

// ListActiveByParticipant retrieves the initiated, ringing and accepted calls of a user, newest first
func (r *CallRepository) ListActiveByParticipant(ctx context.Context, userID uuid.UUID) ([]*domain.Call, error) {
	query := `
		SELECT ` + callColumns + `
		FROM calls
		WHERE (caller_id = $1 OR callee_id = $1)
		  AND status IN ('initiated', 'ringing', 'accepted')
		ORDER BY created_at DESC
	`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get active calls: %w", err)
	}
	return collectCalls(rows)
}

// ExpirePending marks the user's unanswered calls older than olderThan as missed.
// Age is measured on the database clock; olderThan 0 expires every pending call.
func (r *CallRepository) ExpirePending(ctx context.Context, userID uuid.UUID, olderThan time.Duration) (int64, error) {
	query := `
		UPDATE calls
		SET status = 'missed',
		    ended_at = now(),
		    version = version + 1,
		    updated_at = now()
		WHERE (caller_id = $1 OR callee_id = $1)
		  AND status IN ('initiated', 'ringing')
		  AND created_at <= now() - $2::INTERVAL
	`

	tag, err := r.db.Exec(ctx, query, userID, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to expire pending calls: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ExpireAllPending marks every unanswered call older than olderThan as missed
func (r *CallRepository) ExpireAllPending(ctx context.Context, olderThan time.Duration) (int64, error) {
	query := `
		UPDATE calls
		SET status = 'missed',
		    ended_at = now(),
		    version = version + 1,
		    updated_at = now()
		WHERE status IN ('initiated', 'ringing')
		  AND created_at <= now() - $1::INTERVAL
	`

	tag, err := r.db.Exec(ctx, query, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to expire stale calls: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanCall(row pgx.Row) (*domain.Call, error) {
	call := &domain.Call{}
	err := row.Scan(
		&call.CallID,
		&call.CallerID,
		&call.CalleeID,
		&call.CallType,
		&call.Status,
		&call.StartedAt,
		&call.EndedAt,
		&call.Duration,
		&call.IsScreenSharing,
		&call.ScreenShareStartedAt,
		&call.ConnectionQuality,
		&call.Version,
		&call.CreatedAt,
		&call.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return call, nil
}

func collectCalls(rows pgx.Rows) ([]*domain.Call, error) {
	defer rows.Close()

	calls := make([]*domain.Call, 0)
	for rows.Next() {
		call, err := scanCall(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan call: %w", err)
		}
		calls = append(calls, call)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating calls: %w", err)
	}
	return calls, nil
}
