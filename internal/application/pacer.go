package application

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"
)

var errPacerBurst = errors.New("pacer cannot grant a reservation")

// Pacer spaces outbound calls at least minDelay apart.
type Pacer struct {
	limiter *rate.Limiter
	clock   Clock
}

func NewPacer(minDelay time.Duration, clock Clock) *Pacer {
	limit := rate.Inf
	if minDelay > 0 {
		limit = rate.Every(minDelay)
	}
	return &Pacer{
		limiter: rate.NewLimiter(limit, 1),
		clock:   clock,
	}
}

// Wait blocks until the next call may go out. A cancelled wait gives its
// slot back.
func (p *Pacer) Wait(ctx context.Context) error {
	now := p.clock.Now()
	r := p.limiter.ReserveN(now, 1)
	if !r.OK() {
		return errPacerBurst
	}
	delay := r.DelayFrom(now)
	if delay <= 0 {
		return nil
	}
	if err := p.clock.Sleep(ctx, delay); err != nil {
		r.CancelAt(p.clock.Now())
		return err
	}
	return nil
}
