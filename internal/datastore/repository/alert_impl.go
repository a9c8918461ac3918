package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/civicwatch/alertwatch/internal/datastore/entities"
)

const defaultListLimit = 100

// alertRepository implements AlertRepository.
type alertRepository struct {
	db       *gorm.DB
	useMySQL bool
}

// NewAlertRepository creates a new AlertRepository. Set useMySQL to lock alert
// rows with SELECT ... FOR UPDATE inside transactions.
func NewAlertRepository(db *gorm.DB, useMySQL bool) AlertRepository {
	return &alertRepository{db: db, useMySQL: useMySQL}
}

// ============================================================================
// Reads
// ============================================================================

// Create persists a new alert.
func (r *alertRepository) Create(ctx context.Context, alert *entities.Alert) error {
	return r.db.WithContext(ctx).Create(alert).Error
}

// Get returns an alert by id.
func (r *alertRepository) Get(ctx context.Context, id string) (*entities.Alert, error) {
	var alert entities.Alert
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&alert).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAlertNotFound
		}
		return nil, err
	}
	return &alert, nil
}

// List returns alerts newest first.
func (r *alertRepository) List(ctx context.Context, filter AlertFilter) ([]entities.Alert, error) {
	query := r.db.WithContext(ctx).Model(&entities.Alert{})
	if filter.State != "" {
		query = query.Where("state = ?", filter.State)
	}
	if filter.AuthorID != "" {
		query = query.Where("author_id = ?", filter.AuthorID)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	var alerts []entities.Alert
	err := query.Order("created_at DESC").Order("id").
		Limit(limit).Offset(max(filter.Offset, 0)).
		Find(&alerts).Error
	return alerts, err
}

// ListIDs returns every alert id.
func (r *alertRepository) ListIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&entities.Alert{}).Order("created_at").Pluck("id", &ids).Error
	return ids, err
}

// ListVotes returns the ledger entries of an alert.
func (r *alertRepository) ListVotes(ctx context.Context, alertID string) ([]entities.Vote, error) {
	var votes []entities.Vote
	err := r.db.WithContext(ctx).Where("alert_id = ?", alertID).Order("id").Find(&votes).Error
	return votes, err
}

// Transaction runs fn inside a database transaction bound to ctx.
func (r *alertRepository) Transaction(ctx context.Context, fn func(tx AlertTx) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&alertTx{db: tx, useMySQL: r.useMySQL})
	})
}

// ============================================================================
// Transaction-scoped operations
// ============================================================================

// alertTx implements AlertTx on a *gorm.DB that is already inside a transaction.
// Every statement must go through db, never through the repository's pool,
// otherwise a single-connection SQLite pool deadlocks.
type alertTx struct {
	db       *gorm.DB
	useMySQL bool
}

// LockAlert loads the alert row, locking it on MySQL.
func (t *alertTx) LockAlert(id string) (*entities.Alert, error) {
	query := t.db
	if t.useMySQL {
		query = query.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate})
	}

	var alert entities.Alert
	if err := query.Where("id = ?", id).First(&alert).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAlertNotFound
		}
		return nil, err
	}
	return &alert, nil
}

// CastVote records a vote after checking the ledger for an existing one. The
// unique index on (alert_id, voter_id) backs the check for writers that are
// not serialized by the alert lock.
func (t *alertTx) CastVote(alertID, voterID string, verdict bool) (*entities.Vote, error) {
	var existing int64
	if err := t.db.Model(&entities.Vote{}).
		Where("alert_id = ? AND voter_id = ?", alertID, voterID).
		Count(&existing).Error; err != nil {
		return nil, err
	}
	if existing > 0 {
		return nil, ErrDuplicateVote
	}

	vote := &entities.Vote{AlertID: alertID, VoterID: voterID, Verdict: verdict}
	if err := t.db.Create(vote).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateVote
		}
		return nil, err
	}
	return vote, nil
}

// Tally counts all votes of the alert. It runs in the same transaction as
// CastVote and therefore includes the vote just written.
func (t *alertTx) Tally(alertID string) (Tally, error) {
	var row struct {
		Confirmed int64
		Total     int64
	}
	err := t.db.Model(&entities.Vote{}).
		Select("COALESCE(SUM(CASE WHEN verdict THEN 1 ELSE 0 END), 0) AS confirmed, COUNT(*) AS total").
		Where("alert_id = ?", alertID).
		Scan(&row).Error
	if err != nil {
		return Tally{}, err
	}
	return Tally{Confirmed: int(row.Confirmed), Rejected: int(row.Total - row.Confirmed)}, nil
}

// SaveTally stores counts and state. Callers hold the row from LockAlert, so
// no affected-row check is made; MySQL reports zero rows for unchanged values.
func (t *alertTx) SaveTally(alertID string, tally Tally, state string) error {
	return t.db.Model(&entities.Alert{}).
		Where("id = ?", alertID).
		Updates(map[string]any{
			"confirmed_count": tally.Confirmed,
			"rejected_count":  tally.Rejected,
			"state":           state,
		}).Error
}

// RecordView inserts the (alert, viewer) pair and bumps view_count.
func (t *alertTx) RecordView(alertID, viewerID string) (bool, error) {
	var exists int64
	if err := t.db.Model(&entities.Alert{}).Where("id = ?", alertID).Count(&exists).Error; err != nil {
		return false, err
	}
	if exists == 0 {
		return false, ErrAlertNotFound
	}

	var seen int64
	if err := t.db.Model(&entities.View{}).
		Where("alert_id = ? AND viewer_id = ?", alertID, viewerID).
		Count(&seen).Error; err != nil {
		return false, err
	}
	if seen > 0 {
		return false, nil
	}

	if err := t.db.Create(&entities.View{AlertID: alertID, ViewerID: viewerID}).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return false, nil
		}
		return false, err
	}

	if err := t.db.Model(&entities.Alert{}).
		Where("id = ?", alertID).
		UpdateColumn("view_count", gorm.Expr("view_count + ?", 1)).Error; err != nil {
		return false, err
	}
	return true, nil
}

// UpdateContent writes content columns and stamps last_updated_at.
func (t *alertTx) UpdateContent(alertID string, fields map[string]any, at time.Time) error {
	updates := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		updates[k] = v
	}
	updates["last_updated_at"] = at

	return t.db.Model(&entities.Alert{}).Where("id = ?", alertID).Updates(updates).Error
}

// SetState changes the alert state and optionally resolved_at.
func (t *alertTx) SetState(alertID, state string, resolvedAt *time.Time) error {
	updates := map[string]any{"state": state}
	if resolvedAt != nil {
		updates["resolved_at"] = *resolvedAt
	}

	return t.db.Model(&entities.Alert{}).Where("id = ?", alertID).Updates(updates).Error
}

// DeleteAlert removes the alert and its dependent rows.
func (t *alertTx) DeleteAlert(alertID string) error {
	if err := t.db.Where("alert_id = ?", alertID).Delete(&entities.Vote{}).Error; err != nil {
		return err
	}
	if err := t.db.Where("alert_id = ?", alertID).Delete(&entities.View{}).Error; err != nil {
		return err
	}

	result := t.db.Where("id = ?", alertID).Delete(&entities.Alert{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrAlertNotFound
	}
	return nil
}
