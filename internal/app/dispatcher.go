package app

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/parlorchat/parlor/internal/core"
	"github.com/parlorchat/parlor/internal/domain"
)

// Dispatcher fans one event out to a user, a room, or everyone. Delivery
// is fire-and-forget: a slow or closed connection drops the frame and the
// next presence refresh supersedes whatever was missed.
type Dispatcher struct {
	reg *Registry
}

func NewDispatcher(reg *Registry) *Dispatcher {
	return &Dispatcher{reg: reg}
}

// ToUser delivers to every connection the user holds (multi-device).
// An offline user is a silent no-op, not an error.
func (d *Dispatcher) ToUser(userID domain.UserID, event string, payload any) {
	d.send(d.reg.ConnsOfUser(userID), event, payload)
}

// ToRoom delivers to every connection of every user currently in the
// room. exclude skips the originating user's own connections.
func (d *Dispatcher) ToRoom(roomID domain.RoomID, event string, payload any, exclude *domain.UserID) {
	d.send(d.reg.ConnsInRoom(roomID, exclude), event, payload)
}

// ToAll delivers to every registered connection (lobby scope).
func (d *Dispatcher) ToAll(event string, payload any) {
	d.send(d.reg.AllConns(), event, payload)
}

func (d *Dispatcher) send(conns []core.Conn, event string, payload any) {
	if len(conns) == 0 {
		return
	}
	frame, err := encodeEvent(event, payload)
	if err != nil {
		log.Error().Err(err).Str("module", "app.dispatcher").Str("event", event).Msg("marshal event")
		return
	}
	sent := 0
	for _, c := range conns {
		if err := c.TrySend(frame); err != nil {
			log.Debug().Err(err).Str("module", "app.dispatcher").Str("event", event).Msg("dropped frame")
			continue
		}
		sent++
	}
	log.Debug().Str("module", "app.dispatcher").Str("event", event).Int("sent_to", sent).Int("conns", len(conns)).Msg("fan-out")
}

// encodeEvent marshals the envelope once so fan-out shares one buffer.
func encodeEvent(event string, payload any) (core.Frame, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(core.Envelope{Event: event, Data: data})
}
