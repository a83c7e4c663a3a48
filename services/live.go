package services

import (
	"encoding/json"
	"errors"
	"log"

	"github.com/CrowderSoup/workboard/models"
	"github.com/CrowderSoup/workboard/views"
)

type subscribeRequest struct {
	Subscription string `json:"subscription"`
	ViewQuery
}

type loadMoreRequest struct {
	Subscription string `json:"subscription"`
	GroupKey     string `json:"groupKey"`
}

type subscriptionRequest struct {
	Subscription string `json:"subscription"`
}

type groupsUpdated struct {
	Subscription string              `json:"subscription"`
	Keys         []string            `json:"keys"`
	Groups       []views.GroupResult `json:"groups"`
}

type groupsResolved struct {
	Subscription string           `json:"subscription"`
	Resolution   views.Resolution `json:"resolution"`
}

func (c *Client) fail(subscription string, err error) {
	c.send(WebSocketMessage{
		Type: "error",
		Data: map[string]string{"subscription": subscription, "error": err.Error()},
	})
}

// handle serves one message of the live view protocol.
func (c *Client) handle(msg inboundMessage) {
	switch msg.Type {
	case "view.subscribe":
		var req subscribeRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil || req.Subscription == "" {
			c.fail(req.Subscription, errors.New("view.subscribe needs a subscription and a view"))
			return
		}
		c.subscribe(req)
	case "view.loadMore":
		var req loadMoreRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			c.fail("", err)
			return
		}
		c.loadMore(req)
	case "view.unsubscribe":
		var req subscriptionRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			c.fail("", err)
			return
		}
		c.mu.Lock()
		if s, ok := c.sessions[req.Subscription]; ok {
			s.Close()
			delete(c.sessions, req.Subscription)
		}
		c.mu.Unlock()
	default:
		c.fail("", errors.New("unknown message type "+msg.Type))
	}
}

func (c *Client) session(subscription string, pageSize int) *views.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[subscription]
	if !ok {
		if pageSize <= 0 {
			pageSize = c.Hub.pageSize
		}
		s = views.NewSession(c.Hub.views.Composer(), pageSize)
		c.sessions[subscription] = s
	}
	return s
}

func (c *Client) lookup(subscription string) (*views.Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[subscription]
	return s, ok
}

func (c *Client) subscribe(req subscribeRequest) {
	v, err := c.Hub.views.BuildView(c.ctx, c.Identity.WorkspaceID, req.ViewQuery)
	if err != nil {
		c.fail(req.Subscription, err)
		return
	}
	res, err := c.session(req.Subscription, req.PageSize).Resolve(c.ctx, v)
	if errors.Is(err, views.ErrSuperseded) {
		return
	}
	if err != nil {
		c.fail(req.Subscription, err)
		return
	}
	c.send(WebSocketMessage{Type: "groups.resolved", Data: groupsResolved{Subscription: req.Subscription, Resolution: res}})
}

func (c *Client) loadMore(req loadMoreRequest) {
	s, ok := c.lookup(req.Subscription)
	if !ok {
		c.fail(req.Subscription, errors.New("unknown subscription"))
		return
	}
	g, err := s.LoadMore(c.ctx, req.GroupKey)
	if errors.Is(err, views.ErrSuperseded) {
		return
	}
	if err != nil && g.Definition.Key == "" {
		c.fail(req.Subscription, err)
		return
	}
	c.send(WebSocketMessage{Type: "groups.updated", Data: groupsUpdated{
		Subscription: req.Subscription,
		Keys:         []string{req.GroupKey},
		Groups:       []views.GroupResult{g},
	}})
}

func (c *Client) snapshotSessions() map[string]*views.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]*views.Session, len(c.sessions))
	for sub, s := range c.sessions {
		out[sub] = s
	}
	return out
}

// applyEvent invalidates the affected groups of every live session and
// pushes their new state.
func (c *Client) applyEvent(ev models.CardEvent) {
	for sub, s := range c.snapshotSessions() {
		impact, err := s.Apply(c.ctx, ev)
		if errors.Is(err, views.ErrSuperseded) {
			continue
		}
		if err != nil {
			log.Printf("Failed to apply card event to subscription %s of %s: %v", sub, c.Identity.Email, err)
			c.fail(sub, err)
			continue
		}
		snap := s.Snapshot()
		if impact.Repartition {
			c.send(WebSocketMessage{Type: "groups.resolved", Data: groupsResolved{Subscription: sub, Resolution: snap}})
			continue
		}
		if len(impact.Keys) == 0 {
			continue
		}
		update := groupsUpdated{Subscription: sub, Keys: impact.Keys}
		for _, g := range snap.Groups {
			for _, k := range impact.Keys {
				if g.Definition.Key == k {
					update.Groups = append(update.Groups, g)
				}
			}
		}
		c.send(WebSocketMessage{Type: "groups.updated", Data: update})
	}
}

func (c *Client) refreshRelative() {
	for sub, s := range c.snapshotSessions() {
		if !s.UsesRelativeDates() {
			continue
		}
		res, err := s.Refresh(c.ctx)
		if errors.Is(err, views.ErrSuperseded) {
			continue
		}
		if err != nil {
			c.fail(sub, err)
			continue
		}
		c.send(WebSocketMessage{Type: "groups.resolved", Data: groupsResolved{Subscription: sub, Resolution: res}})
	}
}
