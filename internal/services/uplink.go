package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/hslarson/Dog-Bark-Detector/internal/models"
	"golang.org/x/sync/errgroup"
)

// Uplink delivers a report batch somewhere durable
type Uplink interface {
	Name() string
	SendBatch(ctx context.Context, batch models.ReportBatch) error
}

// Notifier sends an immediate alert for one bark
type Notifier interface {
	Notify(ctx context.Context, event models.BarkEvent) error
}

// Link reports network connectivity
type Link interface {
	IsConnected() bool
}

// AlwaysConnected is a Link for setups without a connectivity signal
type AlwaysConnected struct{}

func (AlwaysConnected) IsConnected() bool { return true }

// MultiUplink fans a batch out to several uplinks. A retried batch is only
// resent to the uplinks that have not accepted it yet.
type MultiUplink struct {
	uplinks []Uplink

	mu        sync.Mutex
	batchID   string
	delivered map[string]bool
}

// NewMultiUplink combines uplinks
func NewMultiUplink(uplinks ...Uplink) *MultiUplink {
	return &MultiUplink{uplinks: uplinks, delivered: map[string]bool{}}
}

// Name lists the member uplinks
func (m *MultiUplink) Name() string {
	names := make([]string, len(m.uplinks))
	for i, u := range m.uplinks {
		names[i] = u.Name()
	}
	return strings.Join(names, "+")
}

// SendBatch sends to every uplink concurrently and joins the failures
func (m *MultiUplink) SendBatch(ctx context.Context, batch models.ReportBatch) error {
	m.mu.Lock()
	if batch.ID != m.batchID {
		m.batchID = batch.ID
		m.delivered = map[string]bool{}
	}
	var targets []Uplink
	for _, u := range m.uplinks {
		if !m.delivered[u.Name()] {
			targets = append(targets, u)
		}
	}
	m.mu.Unlock()

	// Every member reports into its own slot so all failures are joined
	errs := make([]error, len(targets))
	var g errgroup.Group
	for i, u := range targets {
		i, u := i, u
		g.Go(func() error {
			if err := u.SendBatch(ctx, batch); err != nil {
				errs[i] = fmt.Errorf("%s: %w", u.Name(), err)
				return nil
			}
			m.mu.Lock()
			m.delivered[u.Name()] = true
			m.mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(errs...)
}
