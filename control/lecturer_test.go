package control

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"LecturerVote/db"
	"LecturerVote/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddLecturerTwice(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store db.Store, locker db.Locker) {
		ctx := context.Background()
		ledger := NewLedger(store, locker, nil)
		ledger.now = func() time.Time { return time.UnixMilli(1700000000000) }

		res, err := ledger.AddLecturer(ctx, "MATH 101-1", "Dr. A", "u1")
		require.NoError(t, err)
		assert.True(t, res.Created)

		res, err = ledger.AddLecturer(ctx, "MATH 101-1", "Dr. A", "u2")
		require.NoError(t, err)
		assert.False(t, res.Created)
		assert.Equal(t, ReasonAlreadyExists, res.Reason)

		lecturers, err := ledger.ListLecturers(ctx, "MATH 101-1")
		require.NoError(t, err)
		require.Len(t, lecturers, 1)
		assert.Equal(t, model.Lecturer{
			CourseSection: "MATH 101-1",
			Name:          "Dr. A",
			Votes:         0,
			AddedBy:       "u1",
			Timestamp:     1700000000000,
		}, lecturers[0])
	})
}

func TestAddLecturerWritesRecordAndIndexTogether(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store db.Store, locker db.Locker) {
		ctx := context.Background()
		res, err := NewLedger(failingIndexStore{store}, locker, nil).AddLecturer(ctx, "MATH 101-1", "Dr. A", "u1")
		require.NoError(t, err)
		assert.True(t, res.Created)

		ledger := NewLedger(store, locker, nil)
		res, err = ledger.AddLecturer(ctx, "MATH 101-1", "Dr. A", "u2")
		require.NoError(t, err)
		assert.Equal(t, ReasonAlreadyExists, res.Reason)

		lecturers, err := ledger.ListLecturers(ctx, "MATH 101-1")
		require.NoError(t, err)
		require.Len(t, lecturers, 1)
		assert.Equal(t, "u1", lecturers[0].AddedBy)
	})
}

func TestAddLecturerFailedWriteCanBeRetried(t *testing.T) {
	store, locker, mr := newRedisBackend(t)
	ctx := context.Background()
	ledger := NewLedger(store, locker, nil)

	mr.SetError("ERR down")
	_, err := ledger.AddLecturer(ctx, "MATH 101-1", "Dr. A", "u1")
	require.Error(t, err)
	mr.SetError("")

	exists, err := store.Exists(ctx, lecturerKey("MATH 101-1", "Dr. A"))
	require.NoError(t, err)
	assert.False(t, exists)

	res, err := ledger.AddLecturer(ctx, "MATH 101-1", "Dr. A", "u1")
	require.NoError(t, err)
	assert.True(t, res.Created)
	lecturers, err := ledger.ListLecturers(ctx, "MATH 101-1")
	require.NoError(t, err)
	assert.Len(t, lecturers, 1)
}

func TestSlowPublisherDoesNotHoldLecturerLock(t *testing.T) {
	store, locker := newBoltBackend(t)
	ctx := context.Background()
	pub := newBlockingPublisher()
	ledger := NewLedger(store, locker, pub)
	ledger.publishTimeout = 5 * time.Second

	done := make(chan AddResult, 1)
	go func() {
		res, err := ledger.AddLecturer(ctx, "MATH 101-1", "Dr. A", "u1")
		assert.NoError(t, err)
		done <- res
	}()

	select {
	case <-pub.started:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher was never called")
	}

	// 第一个请求还卡在投递事件上，同一讲师的请求不应等锁
	res, err := NewLedger(store, locker, nil).AddLecturer(ctx, "MATH 101-1", "Dr. A", "u2")
	assert.NoError(t, err)
	assert.Equal(t, ReasonAlreadyExists, res.Reason)

	close(pub.release)
	assert.True(t, (<-done).Created)
}

func TestPublishIsBoundedByTimeout(t *testing.T) {
	store, locker, _ := newRedisBackend(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pub := newBlockingPublisher()
	defer close(pub.release)
	ledger := NewLedger(store, locker, pub)
	ledger.publishTimeout = 50 * time.Millisecond

	start := time.Now()
	res, err := ledger.AddLecturer(ctx, "MATH 101-1", "Dr. A", "u1")
	require.NoError(t, err)
	assert.True(t, res.Created)
	vres, err := ledger.Vote(ctx, "MATH 101-1", "Dr. A", "u2", model.VoteUp)
	require.NoError(t, err)
	assert.True(t, vres.Accepted)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestAddLecturerValidation(t *testing.T) {
	store, locker, _ := newRedisBackend(t)
	ledger := NewLedger(store, locker, nil)

	for _, tc := range []struct{ section, name, caller string }{
		{"", "Dr. A", "u1"},
		{"MATH 101-1", "  ", "u1"},
		{"MATH 101-1", "Dr. A", ""},
	} {
		_, err := ledger.AddLecturer(context.Background(), tc.section, tc.name, tc.caller)
		assert.True(t, errors.Is(err, ErrInvalidArgument), "%+v", tc)
	}
}

func TestAddLecturerConcurrentSingleWinner(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store db.Store, locker db.Locker) {
		ctx := context.Background()
		ledger := NewLedger(store, locker, nil)

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			created []string
		)
		for i := 0; i < 10; i++ {
			caller := fmt.Sprintf("u%d", i)
			wg.Add(1)
			go func() {
				defer wg.Done()
				res, err := ledger.AddLecturer(ctx, "ENG 101-1", "Dr. B", caller)
				if !assert.NoError(t, err) {
					return
				}
				if res.Created {
					mu.Lock()
					created = append(created, caller)
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		require.Len(t, created, 1)

		l, err := ledger.GetLecturer(ctx, "ENG 101-1", "Dr. B")
		require.NoError(t, err)
		assert.Equal(t, created[0], l.AddedBy)
	})
}

func TestVoteOncePerCaller(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store db.Store, locker db.Locker) {
		ctx := context.Background()
		ledger := NewLedger(store, locker, nil)
		_, err := ledger.AddLecturer(ctx, "MATH 101-1", "Dr. A", "u1")
		require.NoError(t, err)

		res, err := ledger.Vote(ctx, "MATH 101-1", "Dr. A", "u1", model.VoteDown)
		require.NoError(t, err)
		assert.True(t, res.Accepted)
		assert.EqualValues(t, -1, res.Votes)

		res, err = ledger.Vote(ctx, "MATH 101-1", "Dr. A", "u1", model.VoteUp)
		require.NoError(t, err)
		assert.False(t, res.Accepted)
		assert.Equal(t, ReasonAlreadyVoted, res.Reason)

		l, err := ledger.GetLecturer(ctx, "MATH 101-1", "Dr. A")
		require.NoError(t, err)
		assert.EqualValues(t, -1, l.Votes)
	})
}

func TestVoteInvalidDirection(t *testing.T) {
	store, locker, _ := newRedisBackend(t)
	ctx := context.Background()
	ledger := NewLedger(store, locker, nil)
	_, err := ledger.AddLecturer(ctx, "MATH 101-1", "Dr. A", "u1")
	require.NoError(t, err)

	for _, dir := range []string{"", "sideways", "UP"} {
		_, err := ledger.Vote(ctx, "MATH 101-1", "Dr. A", "u1", dir)
		assert.True(t, errors.Is(err, ErrInvalidArgument), dir)
	}
	// 非法请求不会留下选票
	res, err := ledger.Vote(ctx, "MATH 101-1", "Dr. A", "u1", model.VoteUp)
	require.NoError(t, err)
	assert.True(t, res.Accepted)
}

func TestVoteUnknownLecturer(t *testing.T) {
	store, locker, mr := newRedisBackend(t)
	ctx := context.Background()
	ledger := NewLedger(store, locker, nil)

	res, err := ledger.Vote(ctx, "MATH 101-1", "Nobody", "u1", model.VoteUp)
	require.NoError(t, err)
	assert.False(t, res.Accepted)
	assert.Equal(t, ReasonNotFound, res.Reason)
	assert.False(t, mr.Exists("lecturer:MATH 101-1:Nobody"))
	assert.False(t, mr.Exists("lecturer:votes:MATH 101-1:Nobody"))
}

func TestVoteTallyIsCommutative(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store db.Store, locker db.Locker) {
		ctx := context.Background()
		ledger := NewLedger(store, locker, nil)
		_, err := ledger.AddLecturer(ctx, "MATH 101-2", "Dr. C", "admin")
		require.NoError(t, err)

		const ups, downs = 17, 9
		directions := make([]string, 0, ups+downs)
		for i := 0; i < ups; i++ {
			directions = append(directions, model.VoteUp)
		}
		for i := 0; i < downs; i++ {
			directions = append(directions, model.VoteDown)
		}
		rand.Shuffle(len(directions), func(i, j int) { directions[i], directions[j] = directions[j], directions[i] })

		var wg sync.WaitGroup
		for i, dir := range directions {
			caller, dir := fmt.Sprintf("u%d", i), dir
			wg.Add(1)
			go func() {
				defer wg.Done()
				res, err := ledger.Vote(ctx, "MATH 101-2", "Dr. C", caller, dir)
				assert.NoError(t, err)
				assert.True(t, res.Accepted)
			}()
		}
		wg.Wait()

		l, err := ledger.GetLecturer(ctx, "MATH 101-2", "Dr. C")
		require.NoError(t, err)
		assert.EqualValues(t, ups-downs, l.Votes)
	})
}

func TestVoteRollsBackBallotWhenTallyFails(t *testing.T) {
	store, locker, _ := newRedisBackend(t)
	ctx := context.Background()
	_, err := NewLedger(store, locker, nil).AddLecturer(ctx, "MATH 101-1", "Dr. A", "u1")
	require.NoError(t, err)

	broken := NewLedger(failingIncrStore{store}, locker, nil)
	_, err = broken.Vote(ctx, "MATH 101-1", "Dr. A", "u2", model.VoteUp)
	require.Error(t, err)

	voted, err := store.IsSetMember(ctx, ballotKey("MATH 101-1", "Dr. A"), "u2")
	require.NoError(t, err)
	assert.False(t, voted)
}

func TestListLecturersEmptySection(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store db.Store, locker db.Locker) {
		lecturers, err := NewLedger(store, locker, nil).ListLecturers(context.Background(), "ENG 101-2")
		require.NoError(t, err)
		assert.NotNil(t, lecturers)
		assert.Empty(t, lecturers)
	})
}

func TestListLecturersSkipsDanglingIndexEntries(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store db.Store, locker db.Locker) {
		ctx := context.Background()
		ledger := NewLedger(store, locker, nil)
		_, err := ledger.AddLecturer(ctx, "ENG 101-1", "Dr. Real", "u1")
		require.NoError(t, err)
		_, err = store.SetAdd(ctx, lecturerIndexKey("ENG 101-1"), "Dr. Ghost")
		require.NoError(t, err)
		// 字段不完整的记录同样跳过
		_, err = store.SetAdd(ctx, lecturerIndexKey("ENG 101-1"), "Dr. Partial")
		require.NoError(t, err)
		require.NoError(t, store.SetObject(ctx, lecturerKey("ENG 101-1", "Dr. Partial"), map[string]string{"votes": "3"}))

		lecturers, err := ledger.ListLecturers(ctx, "ENG 101-1")
		require.NoError(t, err)
		require.Len(t, lecturers, 1)
		assert.Equal(t, "Dr. Real", lecturers[0].Name)
	})
}

func TestListLecturersStoreUnavailable(t *testing.T) {
	store, locker, mr := newRedisBackend(t)
	mr.SetError("ERR down")

	_, err := NewLedger(store, locker, nil).ListLecturers(context.Background(), "ENG 101-1")
	assert.True(t, errors.Is(err, db.ErrStoreUnavailable))
}

func TestGetLecturerNotFound(t *testing.T) {
	store, locker, _ := newRedisBackend(t)
	_, err := NewLedger(store, locker, nil).GetLecturer(context.Background(), "ENG 101-1", "Nobody")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestLedgerPublishesEvents(t *testing.T) {
	store, locker, _ := newRedisBackend(t)
	ctx := context.Background()
	pub := &recordingPublisher{err: errors.New("broker down")}
	ledger := NewLedger(store, locker, pub)

	res, err := ledger.AddLecturer(ctx, "MATH 101-1", "Dr. A", "u1")
	require.NoError(t, err)
	assert.True(t, res.Created, "publish failure must not fail the add")
	_, err = ledger.AddLecturer(ctx, "MATH 101-1", "Dr. A", "u2")
	require.NoError(t, err)
	vres, err := ledger.Vote(ctx, "MATH 101-1", "Dr. A", "u2", model.VoteUp)
	require.NoError(t, err)
	assert.True(t, vres.Accepted)

	events := pub.Events()
	require.Len(t, events, 2)
	assert.Equal(t, model.EventLecturerAdded, events[0].Type)
	assert.Equal(t, "u1", events[0].Caller)
	assert.Equal(t, model.EventLecturerVoted, events[1].Type)
	assert.Equal(t, model.VoteUp, events[1].Direction)
	assert.EqualValues(t, 1, events[1].Votes)
}

// 添加 Dr. A、重复添加、投票、重复投票、反对票，最后票数为 0
func TestLecturerVotingScenario(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store db.Store, locker db.Locker) {
		ctx := context.Background()
		ledger := NewLedger(store, locker, nil)

		add, err := ledger.AddLecturer(ctx, "MATH 101-1", "Dr. A", "U1")
		require.NoError(t, err)
		assert.True(t, add.Created)

		add, err = ledger.AddLecturer(ctx, "MATH 101-1", "Dr. A", "U2")
		require.NoError(t, err)
		assert.Equal(t, AddResult{Created: false, Reason: ReasonAlreadyExists}, add)

		vote, err := ledger.Vote(ctx, "MATH 101-1", "Dr. A", "U1", model.VoteUp)
		require.NoError(t, err)
		assert.True(t, vote.Accepted)
		assert.EqualValues(t, 1, vote.Votes)

		vote, err = ledger.Vote(ctx, "MATH 101-1", "Dr. A", "U1", model.VoteUp)
		require.NoError(t, err)
		assert.False(t, vote.Accepted)
		l, err := ledger.GetLecturer(ctx, "MATH 101-1", "Dr. A")
		require.NoError(t, err)
		assert.EqualValues(t, 1, l.Votes)

		vote, err = ledger.Vote(ctx, "MATH 101-1", "Dr. A", "U2", model.VoteDown)
		require.NoError(t, err)
		assert.True(t, vote.Accepted)
		assert.EqualValues(t, 0, vote.Votes)

		lecturers, err := ledger.ListLecturers(ctx, "MATH 101-1")
		require.NoError(t, err)
		require.Len(t, lecturers, 1)
		assert.EqualValues(t, 0, lecturers[0].Votes)
	})
}
