package control

import (
	"context"
	"fmt"
	"strings"
	"time"

	"LecturerVote/db"
	"LecturerVote/model"
)

// Publisher 投递讲师事件，失败不影响业务结果
type Publisher interface {
	Publish(ctx context.Context, event model.Event) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, model.Event) error { return nil }

// AddResult 添加讲师的结果，Created 为 false 时 Reason 说明原因
type AddResult struct {
	Created bool
	Reason  string
}

// VoteResult 投票的结果，Votes 是投票后的票数
type VoteResult struct {
	Accepted bool
	Reason   string
	Votes    int64
}

// Ledger 负责讲师的登记、投票去重和票数维护
type Ledger struct {
	store  db.Store
	locker db.Locker
	events Publisher
	now    func() time.Time
	// 单个事件最多等待的时间
	publishTimeout time.Duration
}

const defaultPublishTimeout = 3 * time.Second

func NewLedger(store db.Store, locker db.Locker, events Publisher) *Ledger {
	if events == nil {
		events = nopPublisher{}
	}
	return &Ledger{store: store, locker: locker, events: events, now: time.Now, publishTimeout: defaultPublishTimeout}
}

func required(pairs ...string) error {
	for i := 0; i < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			return fmt.Errorf("%w: %s is required", ErrInvalidArgument, pairs[i])
		}
	}
	return nil
}

// AddLecturer 为课程添加讲师。同一课程下重名时不报错，返回 Created=false。
// 存在性检查和写入在同一把按 key 的锁里完成，事件在释放锁之后投递。
func (l *Ledger) AddLecturer(ctx context.Context, courseSection, name, caller string) (AddResult, error) {
	if err := required("courseSection", courseSection, "lecturerName", name, "caller", caller); err != nil {
		return AddResult{}, err
	}

	lecturer, result, err := l.insertLecturer(ctx, courseSection, name, caller)
	if err != nil || !result.Created {
		return result, err
	}

	l.publish(ctx, model.Event{
		Type:          model.EventLecturerAdded,
		CourseSection: courseSection,
		Name:          name,
		Caller:        caller,
		Timestamp:     lecturer.Timestamp,
	})
	return result, nil
}

func (l *Ledger) insertLecturer(ctx context.Context, courseSection, name, caller string) (model.Lecturer, AddResult, error) {
	key := lecturerKey(courseSection, name)
	unlock, err := l.locker.Lock(ctx, key)
	if err != nil {
		logger.WithError(err).WithField("key", key).Error("failed to lock lecturer")
		return model.Lecturer{}, AddResult{}, err
	}
	defer unlock()

	exists, err := l.store.Exists(ctx, key)
	if err != nil {
		logger.WithError(err).Error("failed to add lecturer")
		return model.Lecturer{}, AddResult{}, err
	}
	if exists {
		return model.Lecturer{}, AddResult{Created: false, Reason: ReasonAlreadyExists}, nil
	}

	lecturer := model.Lecturer{
		CourseSection: courseSection,
		Name:          name,
		Votes:         0,
		AddedBy:       caller,
		Timestamp:     l.now().UnixMilli(),
	}
	// 记录和索引在同一个事务里写入，索引里的名字一定有对应的记录
	if err := l.store.SetObjectIndexed(ctx, key, lecturer.Fields(), lecturerIndexKey(courseSection), name); err != nil {
		logger.WithError(err).Error("failed to add lecturer")
		return model.Lecturer{}, AddResult{}, err
	}
	return lecturer, AddResult{Created: true}, nil
}

// Vote 记录一次投票。每个用户对每位讲师只能投一次，direction 只能是 up 或 down。
func (l *Ledger) Vote(ctx context.Context, courseSection, name, caller, direction string) (VoteResult, error) {
	if err := required("courseSection", courseSection, "lecturerName", name, "caller", caller); err != nil {
		return VoteResult{}, err
	}
	var delta int64
	switch direction {
	case model.VoteUp:
		delta = 1
	case model.VoteDown:
		delta = -1
	default:
		return VoteResult{}, fmt.Errorf("%w: voteType must be %q or %q, got %q", ErrInvalidArgument, model.VoteUp, model.VoteDown, direction)
	}

	key := lecturerKey(courseSection, name)
	exists, err := l.store.Exists(ctx, key)
	if err != nil {
		logger.WithError(err).Error("failed to vote")
		return VoteResult{}, err
	}
	if !exists {
		return VoteResult{Accepted: false, Reason: ReasonNotFound}, nil
	}

	// SetAdd 本身是原子的，同一用户并发投票只有一次能成功
	votedKey := ballotKey(courseSection, name)
	added, err := l.store.SetAdd(ctx, votedKey, caller)
	if err != nil {
		logger.WithError(err).Error("failed to record ballot")
		return VoteResult{}, err
	}
	if !added {
		return VoteResult{Accepted: false, Reason: ReasonAlreadyVoted}, nil
	}

	votes, err := l.store.IncrObjectField(ctx, key, "votes", delta)
	if err != nil {
		logger.WithError(err).Error("failed to update votes")
		// 票数没有更新，撤销这张选票，用户可以重试
		if rerr := l.store.SetRemove(ctx, votedKey, caller); rerr != nil {
			logger.WithError(rerr).WithField("key", votedKey).Error("failed to roll back ballot")
		}
		return VoteResult{}, err
	}

	l.publish(ctx, model.Event{
		Type:          model.EventLecturerVoted,
		CourseSection: courseSection,
		Name:          name,
		Caller:        caller,
		Direction:     direction,
		Votes:         votes,
		Timestamp:     l.now().UnixMilli(),
	})
	return VoteResult{Accepted: true, Votes: votes}, nil
}

// GetLecturer 读取单个讲师
func (l *Ledger) GetLecturer(ctx context.Context, courseSection, name string) (model.Lecturer, error) {
	fields, err := l.store.GetObject(ctx, lecturerKey(courseSection, name))
	if err != nil {
		return model.Lecturer{}, err
	}
	if fields == nil {
		return model.Lecturer{}, fmt.Errorf("%w: lecturer %s in %s", ErrNotFound, name, courseSection)
	}
	lecturer, err := model.LecturerFromFields(fields)
	if err != nil {
		return model.Lecturer{}, fmt.Errorf("%w: corrupt lecturer %s in %s: %v", ErrNotFound, name, courseSection, err)
	}
	return lecturer, nil
}

// ListLecturers 列出课程下的所有讲师，顺序不固定。
// 索引里有名字但读不到记录的会被跳过。
func (l *Ledger) ListLecturers(ctx context.Context, courseSection string) ([]model.Lecturer, error) {
	names, err := l.store.SetMembers(ctx, lecturerIndexKey(courseSection))
	if err != nil {
		logger.WithError(err).Error("failed to list lecturers")
		return nil, err
	}

	lecturers := make([]model.Lecturer, 0, len(names))
	for _, name := range names {
		lecturer, err := l.GetLecturer(ctx, courseSection, name)
		if err != nil {
			logger.WithError(err).WithField("name", name).Debug("skipping lecturer")
			continue
		}
		lecturers = append(lecturers, lecturer)
	}
	return lecturers, nil
}

// publish 尽力投递事件。请求被取消不影响投递，但等待时间不超过 publishTimeout
func (l *Ledger) publish(ctx context.Context, event model.Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.publishTimeout)
	defer cancel()
	if err := l.events.Publish(ctx, event); err != nil {
		logger.WithError(err).WithField("event", event.Type).Warn("failed to publish event")
	}
}
