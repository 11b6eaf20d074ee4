package app

import "github.com/dkeye/Parlor/internal/domain"

// Presence derives join/leave events from registry mutations. It holds no
// state of its own: the count is read from the registry after the mutation,
// so the number shipped with the event matches the event's cause.
type Presence struct {
	reg *Registry

	// AnnounceRenames gates user_renamed broadcasts; off by default.
	AnnounceRenames bool
}

func NewPresence(reg *Registry) *Presence {
	return &Presence{reg: reg}
}

// Joined is called after a connection transitions Anonymous -> Named.
func (p *Presence) Joined(username string) domain.PresenceEvent {
	return domain.PresenceEvent{
		Kind:      domain.PresenceJoined,
		Username:  username,
		UserCount: p.reg.Count(true),
	}
}

// Left is called after a named connection is removed.
func (p *Presence) Left(username string) domain.PresenceEvent {
	return domain.PresenceEvent{
		Kind:      domain.PresenceLeft,
		Username:  username,
		UserCount: p.reg.Count(true),
	}
}

// Renamed returns nil unless rename announcements are enabled.
func (p *Presence) Renamed(oldName, newName string) *domain.RenameEvent {
	if !p.AnnounceRenames {
		return nil
	}
	return &domain.RenameEvent{OldUsername: oldName, NewUsername: newName}
}
