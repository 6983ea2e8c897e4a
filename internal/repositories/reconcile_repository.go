package repositories

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/anonto42/campus-feed/backend/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReconcileRepository queues side effects that must be replayed later.
type ReconcileRepository interface {
	// Enqueue stores task unless a task with the same key already exists.
	Enqueue(ctx context.Context, task *models.ReconcileTask) error
	Pending(ctx context.Context, limit int) ([]models.ReconcileTask, error)
	MarkDone(ctx context.Context, id uint) error
	MarkFailed(ctx context.Context, id uint, cause error) error
	// MarkDead records the final failure and stops further replays.
	MarkDead(ctx context.Context, id uint, cause error) error
}

type postgresReconcileRepository struct {
	db *gorm.DB
}

// NewPostgresReconcileRepository creates the GORM-backed queue. Call Migrate first.
func NewPostgresReconcileRepository(db *gorm.DB) ReconcileRepository {
	return &postgresReconcileRepository{db: db}
}

// Migrate creates the reconcile_tasks table.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&models.ReconcileTask{})
}

func (r *postgresReconcileRepository) Enqueue(ctx context.Context, task *models.ReconcileTask) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "key"}}, DoNothing: true}).
		Create(task).Error
}

func (r *postgresReconcileRepository) Pending(ctx context.Context, limit int) ([]models.ReconcileTask, error) {
	var tasks []models.ReconcileTask
	err := r.db.WithContext(ctx).
		Where("done_at IS NULL AND dead_at IS NULL").
		Order("id ASC").
		Limit(limit).
		Find(&tasks).Error
	return tasks, err
}

func (r *postgresReconcileRepository) MarkDone(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Model(&models.ReconcileTask{}).
		Where("id = ?", id).
		Update("done_at", time.Now()).Error
}

func (r *postgresReconcileRepository) MarkFailed(ctx context.Context, id uint, cause error) error {
	return r.db.WithContext(ctx).Model(&models.ReconcileTask{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": cause.Error(),
		}).Error
}

func (r *postgresReconcileRepository) MarkDead(ctx context.Context, id uint, cause error) error {
	return r.db.WithContext(ctx).Model(&models.ReconcileTask{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": cause.Error(),
			"dead_at":    time.Now(),
		}).Error
}

type memoryReconcileRepository struct {
	mu     sync.Mutex
	nextID uint
	tasks  map[uint]*models.ReconcileTask
	keys   map[string]uint
}

// NewMemoryReconcileRepository is used when no PostgreSQL URL is configured.
func NewMemoryReconcileRepository() ReconcileRepository {
	return &memoryReconcileRepository{
		tasks: make(map[uint]*models.ReconcileTask),
		keys:  make(map[string]uint),
	}
}

func (r *memoryReconcileRepository) Enqueue(_ context.Context, task *models.ReconcileTask) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.keys[task.Key]; ok {
		task.ID = id
		return nil
	}
	r.nextID++
	t := *task
	t.ID = r.nextID
	t.CreatedAt = time.Now()
	t.UpdatedAt = t.CreatedAt
	r.tasks[t.ID] = &t
	r.keys[t.Key] = t.ID
	task.ID = t.ID
	return nil
}

func (r *memoryReconcileRepository) Pending(_ context.Context, limit int) ([]models.ReconcileTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.ReconcileTask, 0)
	for _, t := range r.tasks {
		if t.DoneAt == nil && t.DeadAt == nil {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memoryReconcileRepository) MarkDone(_ context.Context, id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tasks[id]; ok {
		now := time.Now()
		t.DoneAt = &now
		t.UpdatedAt = now
	}
	return nil
}

func (r *memoryReconcileRepository) MarkFailed(_ context.Context, id uint, cause error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tasks[id]; ok {
		t.Attempts++
		t.LastError = cause.Error()
		t.UpdatedAt = time.Now()
	}
	return nil
}

func (r *memoryReconcileRepository) MarkDead(_ context.Context, id uint, cause error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tasks[id]; ok {
		now := time.Now()
		t.Attempts++
		t.LastError = cause.Error()
		t.DeadAt = &now
		t.UpdatedAt = now
	}
	return nil
}
