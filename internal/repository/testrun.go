package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cukesight/backend/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProjectRepositoryImpl implements ProjectRepository
type ProjectRepositoryImpl struct {
	db *gorm.DB
}

func NewProjectRepository(db *gorm.DB) models.ProjectRepository {
	return &ProjectRepositoryImpl{db: db}
}

func (r *ProjectRepositoryImpl) GetOrCreate(ctx context.Context, name string) (*models.Project, error) {
	return getOrCreateProject(r.db.WithContext(ctx), name)
}

// getOrCreateProject tolerates a concurrent insert of the same name.
func getOrCreateProject(db *gorm.DB, name string) (*models.Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("project name is required")
	}

	if err := db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.Project{Name: name}).Error; err != nil {
		return nil, fmt.Errorf("creating project %q: %w", name, err)
	}

	var project models.Project
	if err := db.Where("name = ?", name).First(&project).Error; err != nil {
		return nil, fmt.Errorf("loading project %q: %w", name, err)
	}
	return &project, nil
}

func (r *ProjectRepositoryImpl) List(ctx context.Context) ([]models.Project, error) {
	var projects []models.Project
	err := r.db.WithContext(ctx).Order("name").Find(&projects).Error
	return projects, err
}

// TestRunRepositoryImpl implements TestRunRepository
type TestRunRepositoryImpl struct {
	db *gorm.DB
}

func NewTestRunRepository(db *gorm.DB) models.TestRunRepository {
	return &TestRunRepositoryImpl{db: db}
}

// CreateTree inserts run, features, scenarios, steps and tags level by
// level so every child row is written after the parent id is known.
func (r *TestRunRepositoryImpl) CreateTree(ctx context.Context, run *models.TestRun, projectName string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		project, err := getOrCreateProject(tx, projectName)
		if err != nil {
			return err
		}
		run.ProjectID = project.ID
		run.Project = *project

		if err := tx.Omit(clause.Associations).Create(run).Error; err != nil {
			return fmt.Errorf("inserting test run: %w", err)
		}

		for fi := range run.Features {
			feature := &run.Features[fi]
			feature.TestRunID = run.ID
			if err := tx.Omit(clause.Associations).Create(feature).Error; err != nil {
				return fmt.Errorf("inserting feature %q: %w", feature.Name, err)
			}

			for si := range feature.Scenarios {
				scenario := &feature.Scenarios[si]
				scenario.FeatureID = feature.ID
				scenario.TestRunID = run.ID
				if err := tx.Omit(clause.Associations).Create(scenario).Error; err != nil {
					return fmt.Errorf("inserting scenario %q: %w", scenario.Name, err)
				}

				for i := range scenario.Steps {
					scenario.Steps[i].ScenarioID = scenario.ID
				}
				if len(scenario.Steps) > 0 {
					if err := tx.CreateInBatches(scenario.Steps, 100).Error; err != nil {
						return fmt.Errorf("inserting steps for scenario %q: %w", scenario.Name, err)
					}
				}

				for i := range scenario.Tags {
					scenario.Tags[i].ScenarioID = scenario.ID
				}
				if len(scenario.Tags) > 0 {
					if err := tx.CreateInBatches(scenario.Tags, 100).Error; err != nil {
						return fmt.Errorf("inserting tags for scenario %q: %w", scenario.Name, err)
					}
				}
			}
		}
		return nil
	})
}

func (r *TestRunRepositoryImpl) GetTree(ctx context.Context, id uint) (*models.TestRun, error) {
	var run models.TestRun
	err := r.db.WithContext(ctx).
		Preload("Project").
		Preload("Features", func(db *gorm.DB) *gorm.DB { return db.Order("position") }).
		Preload("Features.Scenarios", func(db *gorm.DB) *gorm.DB { return db.Order("position") }).
		Preload("Features.Scenarios.Steps", func(db *gorm.DB) *gorm.DB { return db.Order("position") }).
		Preload("Features.Scenarios.Tags", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		First(&run, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("test run %d: %w", id, err)
		}
		return nil, err
	}
	return &run, nil
}

func (r *TestRunRepositoryImpl) SetVectorID(ctx context.Context, id uint, vectorID string) error {
	result := r.db.WithContext(ctx).Model(&models.TestRun{}).
		Where("id = ?", id).
		Update("vector_id", vectorID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("test run %d: %w", id, gorm.ErrRecordNotFound)
	}
	return nil
}

// ListMissingVectorRefs returns ids of runs the vector store does not
// reference yet, oldest first.
func (r *TestRunRepositoryImpl) ListMissingVectorRefs(ctx context.Context, limit int) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).Model(&models.TestRun{}).
		Where("vector_id IS NULL OR vector_id = ''").
		Order("id").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}

func (r *TestRunRepositoryImpl) CountMissingVectorRefs(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.TestRun{}).
		Where("vector_id IS NULL OR vector_id = ''").
		Count(&count).Error
	return count, err
}

func (r *TestRunRepositoryImpl) ListUnindexed(ctx context.Context, limit int) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).Model(&models.TestRun{}).
		Where("vector_id IS NOT NULL AND vector_id <> ''").
		Where("chunks_indexed = ?", false).
		Order("id").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}

func (r *TestRunRepositoryImpl) SetChunksIndexed(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Model(&models.TestRun{}).
		Where("id = ?", id).
		Update("chunks_indexed", true)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("test run %d: %w", id, gorm.ErrRecordNotFound)
	}
	return nil
}

// BuildInfoRepositoryImpl implements BuildInfoRepository
type BuildInfoRepositoryImpl struct {
	db *gorm.DB
}

func NewBuildInfoRepository(db *gorm.DB) models.BuildInfoRepository {
	return &BuildInfoRepositoryImpl{db: db}
}

// Upsert inserts or updates a build keyed by build_id.
func (r *BuildInfoRepositoryImpl) Upsert(ctx context.Context, info *models.BuildInfo) error {
	var existing models.BuildInfo
	err := r.db.WithContext(ctx).
		Where("build_id = ?", info.BuildID).
		Assign(models.BuildInfo{
			BuildNumber: info.BuildNumber,
			Branch:      info.Branch,
			CommitHash:  info.CommitHash,
			BuildDate:   info.BuildDate,
			BuildURL:    info.BuildURL,
			Metadata:    info.Metadata,
		}).
		FirstOrCreate(&existing, models.BuildInfo{BuildID: info.BuildID}).Error
	if err != nil {
		return fmt.Errorf("upserting build %q: %w", info.BuildID, err)
	}
	*info = existing
	return nil
}

func (r *BuildInfoRepositoryImpl) GetByBuildID(ctx context.Context, buildID string) (*models.BuildInfo, error) {
	var info models.BuildInfo
	err := r.db.WithContext(ctx).Where("build_id = ?", buildID).First(&info).Error
	if err != nil {
		return nil, err
	}
	return &info, nil
}

func (r *BuildInfoRepositoryImpl) SetVectorID(ctx context.Context, buildID, vectorID string) error {
	return r.db.WithContext(ctx).Model(&models.BuildInfo{}).
		Where("build_id = ?", buildID).
		Update("vector_id", vectorID).Error
}
