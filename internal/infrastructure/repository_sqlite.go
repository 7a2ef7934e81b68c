package infrastructure

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/yourusername/velocity-go/internal/domain"
)

// SQLiteJobRepository implements JobRepository using SQLite. It is the
// write-through history behind the in-memory registry, never the source
// of truth for live jobs.
type SQLiteJobRepository struct {
	db *gorm.DB
}

// NewSQLiteJobRepository creates a new SQLite repository
func NewSQLiteJobRepository(dbPath string) (*SQLiteJobRepository, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(&domain.Job{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &SQLiteJobRepository{db: db}, nil
}

// Create persists a new job
func (r *SQLiteJobRepository) Create(job *domain.Job) error {
	return r.db.Create(job).Error
}

// Update persists the latest job snapshot
func (r *SQLiteJobRepository) Update(job *domain.Job) error {
	return r.db.Save(job).Error
}

// FindByID finds a job by ID
func (r *SQLiteJobRepository) FindByID(id string) (*domain.Job, error) {
	var job domain.Job
	err := r.db.First(&job, "id = ?", id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, domain.NewError(domain.KindNotFound, "job not found: %s", id)
		}
		return nil, err
	}
	return &job, nil
}

// FindAll finds jobs, newest first, optionally filtered by state
func (r *SQLiteJobRepository) FindAll(state domain.JobState) ([]*domain.Job, error) {
	var jobs []*domain.Job
	query := r.db
	if state != "" {
		query = query.Where("state = ?", state)
	}
	err := query.Order("created_at DESC").Find(&jobs).Error
	return jobs, err
}

// ResetOrphaned fails rows a previous process left in a non-terminal
// state. Called once at startup, before any new job is accepted.
func (r *SQLiteJobRepository) ResetOrphaned() (int64, error) {
	result := r.db.Model(&domain.Job{}).
		Where("state IN ?", []domain.JobState{domain.StateQueued, domain.StateRunning, domain.StateMerging}).
		Updates(map[string]interface{}{
			"state":         domain.StateFailed,
			"error_kind":    domain.KindInternal,
			"error_message": "interrupted by server restart",
		})
	return result.RowsAffected, result.Error
}

// GetStats returns job counts by state
func (r *SQLiteJobRepository) GetStats() (*domain.JobStats, error) {
	stats := &domain.JobStats{}

	if err := r.db.Model(&domain.Job{}).Count(&stats.Total).Error; err != nil {
		return nil, err
	}

	stateCounts := []struct {
		State domain.JobState
		Count int64
	}{}

	if err := r.db.Model(&domain.Job{}).
		Select("state, count(*) as count").
		Group("state").
		Scan(&stateCounts).Error; err != nil {
		return nil, err
	}

	for _, sc := range stateCounts {
		switch sc.State {
		case domain.StateQueued:
			stats.Queued = sc.Count
		case domain.StateRunning:
			stats.Running = sc.Count
		case domain.StateMerging:
			stats.Merging = sc.Count
		case domain.StateCompleted:
			stats.Completed = sc.Count
		case domain.StateFailed:
			stats.Failed = sc.Count
		case domain.StateCancelled:
			stats.Cancelled = sc.Count
		}
	}

	return stats, nil
}

// Close closes the database connection
func (r *SQLiteJobRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
