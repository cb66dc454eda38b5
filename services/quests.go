package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"sync"
	"time"

	"quest-hunt-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// QuestService owns the partner-project catalog and one-off (non-daily)
// quest tasks. The catalog is read through an in-memory snapshot that is
// rebuilt after every admin change; the daily task tracker consumes it via
// the Catalog interface.
type QuestService struct {
	DB       *gorm.DB
	Verifier Verifier

	mu      sync.RWMutex
	catalog map[string]models.Project
}

func NewQuestService(db *gorm.DB, verifier Verifier) *QuestService {
	return &QuestService{
		DB:       db,
		Verifier: verifier,
		catalog:  make(map[string]models.Project),
	}
}

// LoadCatalog seeds the built-in projects (first boot only), applies the
// optional JSON override file and builds the in-memory snapshot. Must run
// before the HTTP surface accepts traffic.
func (s *QuestService) LoadCatalog(ctx context.Context, overridePath string) error {
	seed := make([]models.Project, len(models.DefaultProjects))
	copy(seed, models.DefaultProjects)
	if err := s.DB.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).
		Create(&seed).Error; err != nil {
		return fmt.Errorf("seed project catalog: %w", err)
	}

	if overridePath != "" {
		data, err := os.ReadFile(overridePath)
		if err != nil {
			return fmt.Errorf("read project config %s: %w", overridePath, err)
		}
		var overrides []models.Project
		if err := json.Unmarshal(data, &overrides); err != nil {
			return fmt.Errorf("parse project config %s: %w", overridePath, err)
		}
		for i := range overrides {
			if err := overrides[i].Validate(); err != nil {
				return err
			}
		}
		if err := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).Create(&overrides).Error; err != nil {
			return fmt.Errorf("apply project config overrides: %w", err)
		}
		log.Printf("📦 Applied %d project override(s) from %s", len(overrides), overridePath)
	}

	return s.reloadSnapshot(ctx)
}

func (s *QuestService) reloadSnapshot(ctx context.Context) error {
	var projects []models.Project
	if err := s.DB.WithContext(ctx).Find(&projects).Error; err != nil {
		return fmt.Errorf("load project catalog: %w", err)
	}

	snapshot := make(map[string]models.Project, len(projects))
	for _, p := range projects {
		if err := p.Validate(); err != nil {
			log.Printf("⚠️ Skipping invalid project %s: %v", p.ID, err)
			continue
		}
		snapshot[p.ID] = p
	}

	s.mu.Lock()
	s.catalog = snapshot
	s.mu.Unlock()

	log.Printf("📦 Project catalog loaded: %d project(s)", len(snapshot))
	return nil
}

// Project implements the Catalog interface for the daily task tracker.
func (s *QuestService) Project(id string) (models.Project, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.catalog[id]
	return p, ok
}

// Projects lists the catalog sorted by ID.
func (s *QuestService) Projects() []models.Project {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Project, 0, len(s.catalog))
	for _, p := range s.catalog {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// UpsertProject writes a catalog entry and refreshes the snapshot.
func (s *QuestService) UpsertProject(ctx context.Context, project models.Project) error {
	if err := project.Validate(); err != nil {
		return err
	}
	if err := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&project).Error; err != nil {
		return storeErr("upsert project", err)
	}
	return s.reloadSnapshot(ctx)
}

// SetBadgeImage stores the uploaded artwork URL for a project badge.
func (s *QuestService) SetBadgeImage(ctx context.Context, projectID, url string) error {
	if _, ok := s.Project(projectID); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProject, projectID)
	}
	if err := s.DB.WithContext(ctx).Model(&models.Project{}).
		Where("id = ?", projectID).
		Update("badge_image_url", url).Error; err != nil {
		return storeErr("set badge image", err)
	}
	return s.reloadSnapshot(ctx)
}

// CompleteQuestTask records a one-off quest task (social follow, first swap,
// ...) for a user. Already-completed tasks are idempotent no-ops.
func (s *QuestService) CompleteQuestTask(ctx context.Context, userID, projectID, taskID, verificationData string) (models.TaskProgress, error) {
	var tp models.TaskProgress

	if _, ok := s.Project(projectID); !ok {
		return tp, fmt.Errorf("%w: %s", ErrUnknownProject, projectID)
	}

	err := s.DB.WithContext(ctx).
		Where("user_id = ? AND task_id = ?", userID, taskID).
		First(&tp).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return tp, storeErr("fetch task progress", err)
	}
	if err == nil && tp.Status == models.TaskStatusCompleted {
		return tp, nil
	}

	if s.Verifier != nil {
		verified, err := s.Verifier.Verify(ctx, VerificationRequest{
			UserID:    userID,
			ProjectID: projectID,
			TaskType:  taskID,
			Data:      verificationData,
		})
		if err != nil {
			return tp, err
		}
		if !verified {
			return tp, fmt.Errorf("%w: %s", ErrVerificationFailed, taskID)
		}
	}

	now := time.Now().UTC()
	tp = models.TaskProgress{
		ID:               uuid.NewString(),
		UserID:           userID,
		TaskID:           taskID,
		ProjectID:        projectID,
		Status:           models.TaskStatusCompleted,
		CompletedAt:      &now,
		VerificationData: verificationData,
	}
	if err := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "task_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"status", "completed_at", "verification_data", "updated_at",
		}),
	}).Create(&tp).Error; err != nil {
		return tp, storeErr("record task progress", err)
	}
	return tp, nil
}

// TaskProgressFor lists a user's one-off task records for a project.
func (s *QuestService) TaskProgressFor(ctx context.Context, userID, projectID string) ([]models.TaskProgress, error) {
	var records []models.TaskProgress
	err := s.DB.WithContext(ctx).
		Where("user_id = ? AND project_id = ?", userID, projectID).
		Order("created_at ASC").
		Find(&records).Error
	if err != nil {
		return nil, storeErr("list task progress", err)
	}
	return records, nil
}

// CompletedTaskCount counts a user's completed one-off tasks across projects.
func (s *QuestService) CompletedTaskCount(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := s.DB.WithContext(ctx).Model(&models.TaskProgress{}).
		Where("user_id = ? AND status = ?", userID, models.TaskStatusCompleted).
		Count(&count).Error
	if err != nil {
		return 0, storeErr("count task progress", err)
	}
	return count, nil
}
