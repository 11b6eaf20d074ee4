package app

import (
	"time"

	"github.com/dkeye/Parlor/internal/domain"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropFrame
	KickRecipient
)

// Policy decides what to do with a recipient that keeps refusing critical
// frames. slowSince is when the recipient first went over threshold.
type Policy interface {
	OnBackpressure(id domain.ConnID, slowSince, now time.Time) BackpressureAction
}

// GracePolicy drops frames for a slow recipient until the grace period runs
// out, then kicks it so one stalled client cannot hold memory for the room.
type GracePolicy struct {
	Grace time.Duration
}

func (p GracePolicy) OnBackpressure(_ domain.ConnID, slowSince, now time.Time) BackpressureAction {
	if now.Sub(slowSince) >= p.Grace {
		return KickRecipient
	}
	return DropFrame
}
