package model

// 事件类型
const (
	EventLecturerAdded = "lecturer.added"
	EventLecturerVoted = "lecturer.voted"
)

// Event 讲师添加或投票后发出的事件
type Event struct {
	Type          string `json:"type"`
	CourseSection string `json:"courseSection"`
	Name          string `json:"name"`
	Caller        string `json:"caller"`
	Direction     string `json:"direction,omitempty"` // 仅投票事件
	Votes         int64  `json:"votes"`               // 事件发生后的票数
	Timestamp     int64  `json:"timestamp"`
}
