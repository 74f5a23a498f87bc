package model

import (
	"time"

	"gorm.io/gorm"
)

// LecturerTally 归档到 mysql 的票数快照
type LecturerTally struct {
	gorm.Model
	CourseSection string `gorm:"size:128;uniqueIndex:idx_section_name"`
	Name          string `gorm:"size:255;uniqueIndex:idx_section_name"`
	Votes         int64
	AddedBy       string `gorm:"size:64"`
	AddedAt       time.Time
	// EventAt 最近一次写入的票数对应的时间（毫秒），旧的事件不会覆盖新的票数
	EventAt int64
}
