package control

import (
	"context"
	"time"

	"LecturerVote/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Archive 把 kv 中的票数定期落到 mysql，便于统计和备份
type Archive struct {
	db      *gorm.DB
	catalog *Catalog
	ledger  *Ledger
}

func NewArchive(gdb *gorm.DB, catalog *Catalog, ledger *Ledger) *Archive {
	return &Archive{db: gdb, catalog: catalog, ledger: ledger}
}

func (a *Archive) Migrate() error {
	return a.db.AutoMigrate(&model.LecturerTally{})
}

// Sync 全量同步所有课程下讲师的票数，返回写入的条数。
// 事件可能乱序到达，归档里的票数以 Sync 的结果为准。
func (a *Archive) Sync(ctx context.Context) (int, error) {
	at := time.Now().UnixMilli()
	sections, err := a.catalog.ListSections(ctx)
	if err != nil {
		return 0, err
	}

	var tallies []model.LecturerTally
	for _, section := range sections {
		lecturers, err := a.ledger.ListLecturers(ctx, section)
		if err != nil {
			return 0, err
		}
		for _, l := range lecturers {
			tallies = append(tallies, model.LecturerTally{
				CourseSection: l.CourseSection,
				Name:          l.Name,
				Votes:         l.Votes,
				AddedBy:       l.AddedBy,
				AddedAt:       time.UnixMilli(l.Timestamp),
				EventAt:       at,
			})
		}
	}
	if len(tallies) == 0 {
		return 0, nil
	}

	err = a.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "course_section"}, {Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"votes", "event_at", "updated_at"}),
	}).Create(&tallies).Error
	if err != nil {
		logger.WithError(err).Error("failed to archive tallies")
		return 0, err
	}
	return len(tallies), nil
}

// Record 把单个事件写入归档。票数只在事件比已写入的更新时才覆盖，
// 避免并发投票的事件乱序导致票数倒退。
func (a *Archive) Record(ctx context.Context, event model.Event) error {
	tally := model.LecturerTally{
		CourseSection: event.CourseSection,
		Name:          event.Name,
		Votes:         event.Votes,
		AddedAt:       time.UnixMilli(event.Timestamp),
		EventAt:       event.Timestamp,
	}
	if event.Type == model.EventLecturerAdded {
		tally.AddedBy = event.Caller
	}

	return a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&tally)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			return nil
		}

		lecturer := func() *gorm.DB {
			return tx.Model(&model.LecturerTally{}).
				Where("course_section = ? AND name = ?", event.CourseSection, event.Name)
		}
		if event.Type == model.EventLecturerAdded {
			err := lecturer().Updates(map[string]interface{}{
				"added_by": event.Caller,
				"added_at": tally.AddedAt,
			}).Error
			if err != nil {
				return err
			}
		}
		return lecturer().Where("event_at <= ?", event.Timestamp).Updates(map[string]interface{}{
			"votes":    event.Votes,
			"event_at": event.Timestamp,
		}).Error
	})
}
