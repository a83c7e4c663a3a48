package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler wraps cron-based jobs.
type Scheduler struct {
	cron *cron.Cron
}

func NewScheduler(loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		cron: cron.New(cron.WithLocation(loc), cron.WithSeconds()),
	}
}

// ScheduleDaily registers a daily job at the given HH:MM time string.
func (s *Scheduler) ScheduleDaily(clock string, job func()) (cron.EntryID, error) {
	spec, err := dailySpec(clock)
	if err != nil {
		return 0, err
	}
	return s.cron.AddFunc(spec, job)
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func dailySpec(clock string) (string, error) {
	hour, minute, err := parseClock(clock)
	if err != nil {
		return "", err
	}
	// second minute hour dom month dow
	return fmt.Sprintf("0 %d %d * * *", minute, hour), nil
}

// Broadcaster delivers a message to the clients of a workspace.
type Broadcaster interface {
	Broadcast(message WebSocketMessage, workspaceID string)
	RefreshSessions()
}

// RelativeDateRefresher re-resolves everything whose filters depend on the
// current date once the day rolls over.
type RelativeDateRefresher struct {
	views   *ViewService
	hub     Broadcaster
	timeout time.Duration
}

func NewRelativeDateRefresher(vs *ViewService, hub Broadcaster) *RelativeDateRefresher {
	return &RelativeDateRefresher{views: vs, hub: hub, timeout: 30 * time.Second}
}

// Run tells every workspace which of its saved views changed with the day
// and refreshes live sessions using relative dates.
func (r *RelativeDateRefresher) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	stale, err := r.views.RelativeDateViews(ctx)
	if err != nil {
		return fmt.Errorf("failed to list relative date views: %w", err)
	}

	byWorkspace := make(map[string][]string)
	workspaces := make(map[string]string)
	for _, v := range stale {
		ws, ok := workspaces[v.ListID]
		if !ok {
			ws, err = r.views.WorkspaceOf(ctx, v.ListID)
			if err != nil {
				log.Printf("Failed to find workspace of list %s: %v", v.ListID, err)
				continue
			}
			workspaces[v.ListID] = ws
		}
		byWorkspace[ws] = append(byWorkspace[ws], v.ID)
	}

	for ws, ids := range byWorkspace {
		r.hub.Broadcast(WebSocketMessage{
			Type: "views.refresh",
			Data: map[string]any{"viewIds": ids},
		}, ws)
	}
	r.hub.RefreshSessions()
	log.Printf("Refreshed %d relative date views in %d workspaces", len(stale), len(byWorkspace))
	return nil
}
