package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/printworks/jobtrack/internal/model"
)

type jobRow struct {
	ID                string     `gorm:"primaryKey;size:36"`
	DisplayCode       string     `gorm:"size:32;uniqueIndex;not null"`
	CustomerName      string     `gorm:"size:255"`
	ProductName       string     `gorm:"size:255"`
	Quantity          int        `gorm:"default:0"`
	Status            string     `gorm:"size:32;index"`
	CurrentDepartment string     `gorm:"size:16;index"`
	SubStatuses       string     `gorm:"type:text"`
	Progress          int        `gorm:"default:0"`
	StageLabel        string     `gorm:"size:64"`
	Priority          string     `gorm:"size:16;index"`
	AssigneeID        string     `gorm:"size:64;index"`
	AssigneeName      string     `gorm:"size:255"`
	DueDate           *time.Time `gorm:"index"`
	Notes             string     `gorm:"type:text"`
	HeldStatus        string     `gorm:"size:32"`
	HeldSubStatus     string     `gorm:"size:16"`
	CreatedBy         string     `gorm:"size:64"`
	CreatedAt         time.Time  `gorm:"autoCreateTime:false"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime:false"`
	Version           int64      `gorm:"not null;default:1"`
}

func (jobRow) TableName() string { return "jobs" }

type historyRow struct {
	ID         uint      `gorm:"primaryKey;autoIncrement"`
	JobID      string    `gorm:"size:36;index:idx_job_sequence,priority:1;not null"`
	Sequence   int       `gorm:"index:idx_job_sequence,priority:2"`
	Action     string    `gorm:"size:32"`
	Status     string    `gorm:"size:32"`
	SubStatus  string    `gorm:"size:16"`
	Department string    `gorm:"size:16"`
	ActorID    string    `gorm:"size:64"`
	ActorRole  string    `gorm:"size:16"`
	Notes      string    `gorm:"type:text"`
	Timestamp  time.Time `gorm:"not null"`
}

func (historyRow) TableName() string { return "job_history" }

type sequenceRow struct {
	Name  string `gorm:"primaryKey;size:32"`
	Value int64
}

func (sequenceRow) TableName() string { return "job_sequences" }

const displaySequence = "display"

// AllModels returns the GORM models backing the SQL store.
func AllModels() []interface{} {
	return []interface{}{&jobRow{}, &historyRow{}, &sequenceRow{}}
}

// OpenSQL opens a GORM connection for driver "sqlite" or "mysql" and migrates
// the job tables.
func OpenSQL(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "mysql":
		dialector = mysql.Open(dsn)
	default:
		return nil, fmt.Errorf("store: unsupported sql driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("store: connect %s: %w", driver, err)
	}
	if err := AutoMigrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// AutoMigrate creates or updates the job tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("store: auto-migrate: %w", err)
	}
	return nil
}

// SQLStore persists jobs through GORM. The version column guards updates and
// history rows are insert-only.
type SQLStore struct {
	db *gorm.DB
}

func NewSQLStore(db *gorm.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Create(ctx context.Context, job *model.JobRecord) error {
	row, err := toRow(job)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&jobRow{}).Where("id = ? OR display_code = ?", job.ID, job.DisplayCode).Count(&count).Error; err != nil {
			return fmt.Errorf("store: check duplicate: %w", err)
		}
		if count > 0 {
			return fmt.Errorf("%w: job %s / %s", model.ErrDuplicate, job.ID, job.DisplayCode)
		}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("store: create job %s: %w", job.ID, err)
		}
		return insertHistory(tx, job.ID, job.StatusHistory)
	})
}

func (s *SQLStore) Get(ctx context.Context, id string) (*model.JobRecord, error) {
	db := s.db.WithContext(ctx)
	var row jobRow
	if err := db.First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", model.ErrNotFound, id)
		}
		return nil, fmt.Errorf("store: get job %s: %w", id, err)
	}
	job, err := row.record()
	if err != nil {
		return nil, err
	}
	job.StatusHistory, err = s.History(ctx, id)
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (s *SQLStore) List(ctx context.Context, filter model.JobFilter) ([]*model.JobRecord, error) {
	q := s.db.WithContext(ctx).Model(&jobRow{})
	if filter.Status != "" {
		q = q.Where("status = ?", string(filter.Status))
	}
	if filter.Priority != "" {
		q = q.Where("priority = ?", string(filter.Priority))
	}
	if filter.Department != "" {
		q = q.Where("current_department = ?", string(filter.Department))
	}
	if filter.AssigneeID != "" {
		q = q.Where("assignee_id = ?", filter.AssigneeID)
	}
	if filter.Search != "" {
		term := "%" + strings.ToLower(filter.Search) + "%"
		q = q.Where("LOWER(display_code) LIKE ? OR LOWER(customer_name) LIKE ? OR LOWER(product_name) LIKE ?", term, term, term)
	}

	var rows []jobRow
	if err := q.Order("created_at ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("store: list jobs: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	var hist []historyRow
	if err := s.db.WithContext(ctx).Where("job_id IN ?", ids).Order("job_id, sequence").Find(&hist).Error; err != nil {
		return nil, fmt.Errorf("store: list history: %w", err)
	}
	byJob := make(map[string][]model.HistoryEntry, len(rows))
	for _, h := range hist {
		byJob[h.JobID] = append(byJob[h.JobID], h.entry())
	}

	out := make([]*model.JobRecord, 0, len(rows))
	for _, r := range rows {
		job, err := r.record()
		if err != nil {
			return nil, err
		}
		job.StatusHistory = byJob[r.ID]
		out = append(out, job)
	}
	return out, nil
}

func (s *SQLStore) Update(ctx context.Context, job *model.JobRecord, expectedVersion int64) error {
	row, err := toRow(job)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var stored int64
		if err := tx.Model(&historyRow{}).Where("job_id = ?", job.ID).Count(&stored).Error; err != nil {
			return fmt.Errorf("store: count history: %w", err)
		}
		if int64(len(job.StatusHistory)) < stored {
			return fmt.Errorf("store: history of job %s would shrink", job.ID)
		}

		res := tx.Model(&jobRow{}).
			Where("id = ? AND version = ?", job.ID, expectedVersion).
			Select("*").Omit("id").
			Updates(&row)
		if res.Error != nil {
			return fmt.Errorf("store: update job %s: %w", job.ID, res.Error)
		}
		if res.RowsAffected == 0 {
			var current jobRow
			if err := tx.Select("version").First(&current, "id = ?", job.ID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return fmt.Errorf("%w: %s", model.ErrNotFound, job.ID)
				}
				return fmt.Errorf("store: read version: %w", err)
			}
			return &model.StaleWriteError{JobID: job.ID, Expected: expectedVersion, Actual: current.Version}
		}
		return insertHistory(tx, job.ID, job.StatusHistory[stored:])
	})
}

func (s *SQLStore) History(ctx context.Context, id string) ([]model.HistoryEntry, error) {
	var rows []historyRow
	if err := s.db.WithContext(ctx).Where("job_id = ?", id).Order("sequence").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("store: history %s: %w", id, err)
	}
	out := make([]model.HistoryEntry, len(rows))
	for i, r := range rows {
		out[i] = r.entry()
	}
	return out, nil
}

func (s *SQLStore) NextSequence(ctx context.Context) (int64, error) {
	var seq sequenceRow
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&sequenceRow{Name: displaySequence}).Error; err != nil {
			return err
		}
		if err := tx.Model(&sequenceRow{}).Where("name = ?", displaySequence).
			UpdateColumn("value", gorm.Expr("value + 1")).Error; err != nil {
			return err
		}
		return tx.First(&seq, "name = ?", displaySequence).Error
	})
	if err != nil {
		return 0, fmt.Errorf("store: next sequence: %w", err)
	}
	return seq.Value, nil
}

func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func insertHistory(tx *gorm.DB, jobID string, entries []model.HistoryEntry) error {
	if len(entries) == 0 {
		return nil
	}
	rows := make([]historyRow, len(entries))
	for i, e := range entries {
		rows[i] = historyRow{
			JobID:      jobID,
			Sequence:   e.Sequence,
			Action:     string(e.Action),
			Status:     string(e.Status),
			SubStatus:  string(e.SubStatus),
			Department: string(e.Department),
			ActorID:    e.ActorID,
			ActorRole:  string(e.ActorRole),
			Notes:      e.Notes,
			Timestamp:  e.Timestamp,
		}
	}
	if err := tx.Create(&rows).Error; err != nil {
		return fmt.Errorf("store: append history for %s: %w", jobID, err)
	}
	return nil
}

func (h historyRow) entry() model.HistoryEntry {
	return model.HistoryEntry{
		Sequence:   h.Sequence,
		Action:     model.Action(h.Action),
		Status:     model.Status(h.Status),
		SubStatus:  model.SubStatus(h.SubStatus),
		Department: model.Department(h.Department),
		ActorID:    h.ActorID,
		ActorRole:  model.Role(h.ActorRole),
		Notes:      h.Notes,
		Timestamp:  h.Timestamp,
	}
}

func toRow(job *model.JobRecord) (jobRow, error) {
	subs, err := json.Marshal(job.DepartmentSubStatus)
	if err != nil {
		return jobRow{}, fmt.Errorf("store: marshal sub-statuses: %w", err)
	}
	notes, err := json.Marshal(job.Notes)
	if err != nil {
		return jobRow{}, fmt.Errorf("store: marshal notes: %w", err)
	}
	row := jobRow{
		ID:                job.ID,
		DisplayCode:       job.DisplayCode,
		CustomerName:      job.CustomerName,
		ProductName:       job.ProductName,
		Quantity:          job.Quantity,
		Status:            string(job.Status),
		CurrentDepartment: string(job.CurrentDepartment),
		SubStatuses:       string(subs),
		Progress:          job.ProgressPercentage,
		StageLabel:        job.StageLabel,
		Priority:          string(job.Priority),
		Notes:             string(notes),
		CreatedBy:         job.CreatedBy,
		CreatedAt:         job.CreatedAt,
		UpdatedAt:         job.UpdatedAt,
		Version:           job.Version,
	}
	if job.AssignedTo != nil {
		row.AssigneeID = job.AssignedTo.ID
		row.AssigneeName = job.AssignedTo.Name
	}
	if !job.DueDate.IsZero() {
		due := job.DueDate
		row.DueDate = &due
	}
	if job.HeldFrom != nil {
		row.HeldStatus = string(job.HeldFrom.Status)
		row.HeldSubStatus = string(job.HeldFrom.SubStatus)
	}
	return row, nil
}

func (r jobRow) record() (*model.JobRecord, error) {
	job := &model.JobRecord{
		ID:                 r.ID,
		DisplayCode:        r.DisplayCode,
		CustomerName:       r.CustomerName,
		ProductName:        r.ProductName,
		Quantity:           r.Quantity,
		Status:             model.Status(r.Status),
		CurrentDepartment:  model.Department(r.CurrentDepartment),
		ProgressPercentage: r.Progress,
		StageLabel:         r.StageLabel,
		Priority:           model.Priority(r.Priority),
		CreatedBy:          r.CreatedBy,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
		Version:            r.Version,
	}
	if r.SubStatuses != "" {
		if err := json.Unmarshal([]byte(r.SubStatuses), &job.DepartmentSubStatus); err != nil {
			return nil, fmt.Errorf("store: decode sub-statuses of %s: %w", r.ID, err)
		}
	}
	if r.Notes != "" {
		if err := json.Unmarshal([]byte(r.Notes), &job.Notes); err != nil {
			return nil, fmt.Errorf("store: decode notes of %s: %w", r.ID, err)
		}
	}
	if r.AssigneeID != "" {
		job.AssignedTo = &model.Assignee{ID: r.AssigneeID, Name: r.AssigneeName}
	}
	if r.DueDate != nil {
		job.DueDate = *r.DueDate
	}
	if r.HeldStatus != "" {
		job.HeldFrom = &model.HoldPoint{Status: model.Status(r.HeldStatus), SubStatus: model.SubStatus(r.HeldSubStatus)}
	}
	return job, nil
}
