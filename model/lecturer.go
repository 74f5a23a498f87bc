package model

import "strconv"

// 投票方向
const (
	VoteUp   = "up"
	VoteDown = "down"
)

// Lecturer 定义讲师记录，以 hash 形式保存在 kv 存储中
type Lecturer struct {
	CourseSection string `json:"courseSection"` // 所属课程
	Name          string `json:"name"`          // 讲师名，课程内唯一
	Votes         int64  `json:"votes"`         // 票数，可以为负
	AddedBy       string `json:"addedBy"`       // 添加者 uid
	Timestamp     int64  `json:"timestamp"`     // 创建时间，unix 毫秒
}

// Fields 转换成 hash 字段
func (l Lecturer) Fields() map[string]string {
	return map[string]string{
		"courseSection": l.CourseSection,
		"name":          l.Name,
		"votes":         strconv.FormatInt(l.Votes, 10),
		"addedBy":       l.AddedBy,
		"timestamp":     strconv.FormatInt(l.Timestamp, 10),
	}
}

// LecturerFromFields 从 hash 字段还原讲师记录，数字字段解析失败时返回错误
func LecturerFromFields(fields map[string]string) (Lecturer, error) {
	votes, err := strconv.ParseInt(fields["votes"], 10, 64)
	if err != nil {
		return Lecturer{}, err
	}
	ts, err := strconv.ParseInt(fields["timestamp"], 10, 64)
	if err != nil {
		return Lecturer{}, err
	}
	return Lecturer{
		CourseSection: fields["courseSection"],
		Name:          fields["name"],
		Votes:         votes,
		AddedBy:       fields["addedBy"],
		Timestamp:     ts,
	}, nil
}
