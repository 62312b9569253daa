package jobs_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-activity/internal/booking"
	bookingdb "ms-activity/internal/booking/db"
	"ms-activity/internal/database/dbtest"
	"ms-activity/internal/jobs"
	"ms-activity/internal/kafka"
	"ms-activity/internal/lock"
	"ms-activity/internal/logger"
	"ms-activity/internal/utils"
)

func newLocker(t *testing.T) lock.Locker {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return lock.NewRedisLocker(client, lock.NewRegistry(true), time.Minute, logger.Discard())
}

func TestRunOnce_SkipsLockedJobs(t *testing.T) {
	ctx := context.Background()
	locker := newLocker(t)
	s := jobs.NewScheduler(locker, logger.Discard(), time.Hour)

	var runs []string
	s.Add("first", func(context.Context) error { runs = append(runs, "first"); return nil })
	s.Add("second", func(context.Context) error { runs = append(runs, "second"); return nil })

	lease, err := locker.TryLock(ctx, lock.NamespaceJob, "second")
	require.NoError(t, err)

	require.NoError(t, s.RunOnce(ctx))
	assert.Equal(t, []string{"first"}, runs)

	require.NoError(t, lease.Unlock(ctx))
	require.NoError(t, s.RunOnce(ctx))
	assert.Equal(t, []string{"first", "first", "second"}, runs)
}

func TestRunOnce_CollectsErrors(t *testing.T) {
	boom := errors.New("boom")
	s := jobs.NewScheduler(newLocker(t), logger.Discard(), time.Hour)
	ran := false
	s.Add("failing", func(context.Context) error { return boom })
	s.Add("after", func(context.Context) error { ran = true; return nil })

	err := s.RunOnce(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.True(t, ran, "a failing job must not stop the others")
}

func TestArchivePeriods(t *testing.T) {
	ctx := context.Background()
	bunDB := dbtest.NewSQLite(t)
	fx := dbtest.NewFixtures(t, bunDB)
	done := fx.Period(dbtest.Finalized)
	open := fx.Period(dbtest.Confirmed)

	svc := booking.NewService(bookingdb.New(bunDB), kafka.Discard{}, logger.Discard(), 3)
	svc.Now = utils.FixedClock(done.ExecutionEnd.AddDate(0, 0, 1))

	s := jobs.NewScheduler(newLocker(t), logger.Discard(), time.Hour)
	s.Add("archive-periods", jobs.ArchivePeriods(svc, logger.Discard()))
	require.NoError(t, s.RunOnce(ctx))

	p, err := svc.GetPeriod(ctx, done.ID)
	require.NoError(t, err)
	assert.True(t, p.Archived)

	p, err = svc.GetPeriod(ctx, open.ID)
	require.NoError(t, err)
	assert.False(t, p.Archived, "only finalized periods are archived")
}

func TestStart_StopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := jobs.NewScheduler(newLocker(t), logger.Discard(), time.Millisecond)
	ticks := make(chan struct{}, 10)
	s.Add("tick", func(context.Context) error {
		select {
		case ticks <- struct{}{}:
		default:
		}
		return nil
	})

	stopped := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(stopped)
	}()

	<-ticks
	<-ticks
	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}
