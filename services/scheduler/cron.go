package schedulersvc

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/trezcool/schoolvax/core"
)

const jobTimeout = 5 * time.Minute

// Reminder sends the reminders of the drives held in `daysAhead` days.
type Reminder interface {
	SendReminders(ctx context.Context, daysAhead int) (int, error)
}

type Scheduler struct {
	engine    *cron.Cron
	reminder  Reminder
	logger    core.Logger
	spec      string
	daysAhead int
}

func NewScheduler(conf *core.Config, logger core.Logger, reminder Reminder) *Scheduler {
	return &Scheduler{
		engine:    cron.New(cron.WithLocation(conf.Drive.Location())),
		reminder:  reminder,
		logger:    logger,
		spec:      conf.Drive.ReminderSchedule,
		daysAhead: conf.Drive.ReminderDaysAhead,
	}
}

// Start registers the jobs and starts the engine in its own goroutine. An empty spec disables the reminders.
func (s *Scheduler) Start() error {
	if s.spec == "" {
		s.logger.Info("drive reminders disabled")
		return nil
	}
	if _, err := s.engine.AddFunc(s.spec, s.remind); err != nil {
		return errors.Wrapf(err, "adding reminder job %q", s.spec)
	}
	s.engine.Start()
	s.logger.Info(fmt.Sprintf("scheduler started: drive reminders at %q, %d day(s) ahead", s.spec, s.daysAhead))
	return nil
}

// Stop stops the engine and waits for the running jobs, up to the `ctx` deadline.
func (s *Scheduler) Stop(ctx context.Context) error {
	select {
	case <-s.engine.Stop().Done():
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "waiting for scheduled jobs")
	}
}

func (s *Scheduler) remind() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	n, err := s.reminder.SendReminders(ctx, s.daysAhead)
	if err != nil {
		s.logger.Error("sending drive reminders: "+err.Error(), err)
		return
	}
	s.logger.Info(fmt.Sprintf("sent reminders for %d drive(s)", n))
}
