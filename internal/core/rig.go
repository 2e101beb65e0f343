// Package core owns the capture orchestration sequence: initialize,
// arm queues and barrier, start workers, fire the trigger, wait on
// the completion barrier, tear down.
package core

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Meow-the-Mouse-Muncher/mult-camera-sync/internal/adapter"
	"github.com/Meow-the-Mouse-Muncher/mult-camera-sync/internal/barrier"
	"github.com/Meow-the-Mouse-Muncher/mult-camera-sync/internal/capture"
	"github.com/Meow-the-Mouse-Muncher/mult-camera-sync/internal/config"
	"github.com/Meow-the-Mouse-Muncher/mult-camera-sync/internal/emitter"
	"github.com/Meow-the-Mouse-Muncher/mult-camera-sync/internal/preview"
	"github.com/Meow-the-Mouse-Muncher/mult-camera-sync/internal/queue"
	"github.com/Meow-the-Mouse-Muncher/mult-camera-sync/internal/session"
	"github.com/Meow-the-Mouse-Muncher/mult-camera-sync/internal/trigger"
	"github.com/Meow-the-Mouse-Muncher/mult-camera-sync/internal/types"
)

// PulseSource fires the external trigger pulse train.
type PulseSource interface {
	Fire(pulseCount uint32, frequencyHz float64) error
}

// sensorUnit groups one sensor's pipeline pieces.
type sensorUnit struct {
	cfg     config.SensorConfig
	role    types.SensorRole
	adapter adapter.SensorAdapter
	queue   *queue.Queue
	worker  *capture.Worker
	proc    *capture.Processor
}

// Rig is the session orchestrator. One Rig drives exactly one
// capture session.
type Rig struct {
	cfg   *config.Config
	units []*sensorUnit
	pulse PulseSource
	emit  *emitter.Emitter // nil when MQTT is disabled

	sess        *session.Session
	bar         *barrier.Barrier
	sync        *preview.Synchronizer
	wg          sync.WaitGroup
	interrupted atomic.Bool
}

// New builds a rig from configuration: one adapter per active sensor
// role, the serial pulse dispatcher, and the optional MQTT emitter.
func New(cfg *config.Config) (*Rig, error) {
	r := &Rig{
		cfg: cfg,
		bar: barrier.New(),
	}

	for _, sc := range cfg.Sensors {
		role, err := types.ParseRole(sc.Role)
		if err != nil {
			return nil, err
		}
		r.units = append(r.units, &sensorUnit{
			cfg:     sc,
			role:    role,
			adapter: buildAdapter(role, sc, cfg.Session.FrameRateHz),
		})
	}

	r.pulse = trigger.New(trigger.Config{
		Port:        cfg.Trigger.Port,
		BaudRate:    cfg.Trigger.BaudRate,
		ReadTimeout: time.Duration(cfg.Trigger.ReadTimeoutMS) * time.Millisecond,
	})

	if cfg.MQTT.Enabled {
		r.emit = emitter.New(emitter.Config{
			Broker:       cfg.MQTT.Broker,
			ClientID:     cfg.InstanceID,
			StatusTopic:  cfg.MQTT.Topics.Status,
			PreviewTopic: cfg.MQTT.Topics.Preview,
		})
	}

	return r, nil
}

func buildAdapter(role types.SensorRole, sc config.SensorConfig, rateHz float64) adapter.SensorAdapter {
	switch role {
	case types.EventCamera:
		return adapter.NewEventCamera(rateHz)
	case types.ThermalCamera:
		return adapter.NewThermalCamera(sc.Width, sc.Height, rateHz)
	default:
		return adapter.NewFrameCamera(sc.Width, sc.Height, rateHz)
	}
}

// Run executes one full capture session and returns its report. The
// returned error is non-nil exactly when the session is incomplete;
// already-captured data is persisted either way.
func (r *Rig) Run(ctx context.Context) (*types.SessionReport, error) {
	roles := make([]types.SensorRole, len(r.units))
	for i, u := range r.units {
		roles[i] = u.role
	}

	sess, err := session.New(r.cfg.OutputDir, roles)
	if err != nil {
		return nil, err
	}
	r.sess = sess
	slog.Info("capture session starting",
		"session_id", sess.ID,
		"output", sess.Root,
		"sensors", len(r.units),
	)

	if r.emit != nil {
		if err := r.emit.Connect(); err != nil {
			// Status publishing is best-effort; the session proceeds.
			slog.Warn("mqtt connect failed, continuing without emitter", "error", err)
		}
		defer r.emit.Close()
	}

	// Initialization failures abort before any hardware is triggered:
	// a partial-sensor session is not meaningful.
	if err := r.initSensors(ctx); err != nil {
		r.cleanupSensors()
		return nil, err
	}

	r.arm()
	r.startPipelines()

	// Watch for external cancellation (Ctrl-C) and route it through
	// the same cooperative path as a timeout.
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			slog.Info("cancellation requested, stopping session")
			r.interrupted.Store(true)
			sess.Control.Stop()
		case <-watchDone:
		}
	}()

	// Let every worker reach its first poll before the pulse.
	time.Sleep(time.Duration(r.cfg.Session.SettleMS) * time.Millisecond)

	if err := r.pulse.Fire(uint32(r.cfg.Session.FrameQuota), r.cfg.Session.FrameRateHz); err != nil {
		slog.Error("trigger failed, aborting session", "error", err)
		r.interrupted.Store(true)
		sess.Control.Stop()
		r.teardown()
		report := r.buildReport(r.bar.Snapshot())
		r.publish(report)
		return report, err
	}

	waitErr := r.bar.Wait(time.Duration(r.cfg.Session.BarrierTimeoutS) * time.Second)
	phasesAtWait := r.bar.Snapshot()
	if waitErr != nil {
		slog.Error("completion barrier timed out, forcing teardown", "error", waitErr)
	}

	r.teardown()

	// Build the report from the wait-time phase view: teardown may
	// have finished the phases since, but an incomplete report should
	// name which sensor was stuck where.
	report := r.buildReport(phasesAtWait)
	report.Complete = waitErr == nil && !r.interrupted.Load() && r.sensorsHealthy()
	if !report.Complete {
		slog.Warn("session incomplete", "session_id", sess.ID)
	}
	r.publish(report)
	r.logSummary(report)

	switch {
	case waitErr != nil:
		return report, waitErr
	case !report.Complete:
		return report, fmt.Errorf("session %s incomplete", sess.ID)
	default:
		return report, nil
	}
}

// initSensors connects and configures every adapter in parallel. Any
// failure aborts the whole session.
func (r *Rig) initSensors(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, u := range r.units {
		u := u
		g.Go(func() error {
			if err := u.adapter.Connect(ctx, u.cfg.Address); err != nil {
				return err
			}
			return u.adapter.Configure(adapter.Params{
				FrameRateHz: r.cfg.Session.FrameRateHz,
				Width:       u.cfg.Width,
				Height:      u.cfg.Height,
			})
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("sensor initialization failed: %w", err)
	}
	slog.Info("all sensors initialized", "count", len(r.units))
	return nil
}

// arm builds the barrier, the offload queues, and the optional live
// synchronizer before any worker starts.
func (r *Rig) arm() {
	roles := make([]types.SensorRole, len(r.units))
	for i, u := range r.units {
		roles[i] = u.role
		u.queue = queue.New(u.cfg.QueueCapacity)
	}
	r.bar.Arm(roles)

	if !r.cfg.Preview.Enabled {
		return
	}
	left, _ := types.ParseRole(r.cfg.Preview.Roles[0])
	right, _ := types.ParseRole(r.cfg.Preview.Roles[1])

	sink := r.previewSink()
	r.sync = preview.New(left, right, r.cfg.Preview.PanelWidth, r.cfg.Preview.PanelHeight, sink)
	slog.Info("live preview enabled", "left", left, "right", right, "push_interval", r.cfg.Preview.PushInterval)
}

func (r *Rig) previewSink() preview.Sink {
	if r.emit != nil {
		return r.emit.PreviewSink()
	}
	return func(composite image.Image, tick uint64) {
		slog.Debug("preview composite ready", "tick", tick, "bounds", composite.Bounds())
	}
}

// startPipelines launches one worker and one processor per sensor.
func (r *Rig) startPipelines() {
	for _, u := range r.units {
		quota := r.cfg.Session.FrameQuota
		if u.cfg.FreeRunning {
			quota = 0
		}

		var sync2 *preview.Synchronizer
		pushInterval := 0
		if r.sync != nil && r.previewRole(u.role) {
			sync2 = r.sync
			pushInterval = r.cfg.Preview.PushInterval
		}

		u.worker = capture.NewWorker(capture.WorkerConfig{
			Adapter:      u.adapter,
			Queue:        u.queue,
			Control:      r.sess.Control,
			Barrier:      r.bar,
			Quota:        quota,
			Pacing:       u.cfg.Pacing,
			PollTimeout:  time.Duration(u.cfg.PollTimeoutMS) * time.Millisecond,
			PushInterval: pushInterval,
			Preview:      sync2,
		})
		u.proc = capture.NewProcessor(capture.ProcessorConfig{
			Adapter:    u.adapter,
			Queue:      u.queue,
			Control:    r.sess.Control,
			Barrier:    r.bar,
			DestDir:    r.sess.Dir(u.role),
			DropWarmup: u.cfg.DropWarmup,
			PopTimeout: time.Duration(u.cfg.PollTimeoutMS) * time.Millisecond,
		})

		r.wg.Add(2)
		go func(u *sensorUnit) {
			defer r.wg.Done()
			u.worker.Run()
		}(u)
		go func(u *sensorUnit) {
			defer r.wg.Done()
			u.proc.Run()
		}(u)
	}
	slog.Info("capture pipelines started", "sensors", len(r.units))
}

func (r *Rig) previewRole(role types.SensorRole) bool {
	for _, name := range r.cfg.Preview.Roles {
		if parsed, err := types.ParseRole(name); err == nil && parsed == role {
			return true
		}
	}
	return false
}

// teardown is unconditional: every step runs even when earlier steps
// fail, so queues drain, goroutines exit, and adapters release.
func (r *Rig) teardown() {
	r.sess.Control.Stop()
	for _, u := range r.units {
		u.queue.Close()
	}
	r.wg.Wait()
	r.cleanupSensors()
	slog.Info("teardown complete", "session_id", r.sess.ID)
}

// cleanupSensors releases every adapter; failures are logged and
// swallowed so the remaining cleanups still execute.
func (r *Rig) cleanupSensors() {
	for _, u := range r.units {
		if err := u.adapter.Cleanup(); err != nil {
			slog.Warn("sensor cleanup failed", "role", u.role, "error", err)
		}
	}
}

func (r *Rig) sensorsHealthy() bool {
	for _, u := range r.units {
		if u.worker != nil && u.worker.Err() != nil {
			return false
		}
	}
	return true
}

func (r *Rig) buildReport(phases map[types.SensorRole]barrier.Phase) *types.SessionReport {
	report := &types.SessionReport{
		SessionID: r.sess.ID,
		StartedAt: r.sess.StartedAt,
		Duration:  time.Since(r.sess.StartedAt),
		OutputDir: r.sess.Root,
	}
	for _, u := range r.units {
		phase := phases[u.role]
		sr := types.SensorReport{
			Role:           u.role,
			RoleName:       u.role.String(),
			CaptureDone:    phase >= barrier.CaptureDone,
			ProcessingDone: phase >= barrier.ProcessingDone,
		}
		if u.worker != nil {
			sr.FramesCaptured = u.worker.Captured()
			sr.FramesSkipped = u.worker.Skipped()
			sr.FramesDropped = u.worker.Dropped()
			if err := u.worker.Err(); err != nil {
				sr.Error = err.Error()
			}
		}
		if u.proc != nil {
			sr.FramesPersisted = u.proc.Persisted()
			if err := u.proc.Err(); err != nil && sr.Error == "" {
				sr.Error = err.Error()
			}
		}
		report.Sensors = append(report.Sensors, sr)
	}
	return report
}

func (r *Rig) publish(report *types.SessionReport) {
	if r.emit != nil {
		r.emit.PublishStatus(*report)
	}
}

func (r *Rig) logSummary(report *types.SessionReport) {
	done := 0
	for _, s := range report.Sensors {
		if s.ProcessingDone {
			done++
		}
		slog.Info("sensor summary",
			"role", s.RoleName,
			"capture_done", s.CaptureDone,
			"processing_done", s.ProcessingDone,
			"captured", s.FramesCaptured,
			"persisted", s.FramesPersisted,
			"skipped", s.FramesSkipped,
			"dropped", s.FramesDropped,
			"error", s.Error,
		)
	}
	slog.Info("session finished",
		"session_id", report.SessionID,
		"complete", report.Complete,
		"sensors_done", fmt.Sprintf("%d/%d", done, len(report.Sensors)),
		"duration", report.Duration.Round(time.Millisecond),
	)
}
