package pipeline

import (
	"context"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// cronParser accepts both five-field and six-field (leading seconds) specs.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// CronRunner runs jobs on cron schedules with a shared base context. A job
// still running when its next tick fires is skipped.
type CronRunner struct {
	cron    *cron.Cron
	logger  *zap.Logger
	baseCtx context.Context
}

func NewCronRunner(logger *zap.Logger, baseCtx context.Context) *CronRunner {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CronRunner{
		cron: cron.New(
			cron.WithParser(cronParser),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		logger:  logger,
		baseCtx: baseCtx,
	}
}

func (r *CronRunner) Add(spec string, job func(context.Context)) (cron.EntryID, error) {
	return r.cron.AddFunc(spec, func() { job(r.baseCtx) })
}

func (r *CronRunner) Start() {
	r.logger.Info("cron started")
	r.cron.Start()
}

// Stop waits for running jobs to return.
func (r *CronRunner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.logger.Info("cron stopped")
}

// ValidateCron reports whether spec parses.
func ValidateCron(spec string) error {
	_, err := cronParser.Parse(spec)
	return err
}
